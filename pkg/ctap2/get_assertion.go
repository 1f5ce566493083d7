package ctap2

// GetAssertionOptions is the authenticatorGetAssertion option map.
type GetAssertionOptions struct {
	// up: require user presence
	UserPresence *bool `cbor:"up,omitempty"`
	// uv: legacy FIDO 2.0 built-in user verification flag
	UserVerification *bool `cbor:"uv,omitempty"`
}

// GetAssertionExtensions is the extension input map for getAssertion.
type GetAssertionExtensions struct {
	CredBlob     *bool `cbor:"credBlob,omitempty"`
	LargeBlobKey *bool `cbor:"largeBlobKey,omitempty"`
}

// GetAssertionRequest is the authenticatorGetAssertion (0x02) parameter
// map. PinUvAuthParam and PinUvAuthProtocol start absent and are filled in
// by the UV orchestrator before the request is sent.
type GetAssertionRequest struct {
	// rpId (0x01)
	RpID string `cbor:"1,keyasint"`
	// clientDataHash (0x02)
	ClientDataHash []byte `cbor:"2,keyasint"`
	// allowList (0x03)
	AllowList []PublicKeyCredentialDescriptor `cbor:"3,keyasint,omitempty"`
	// extensions (0x04)
	Extensions *GetAssertionExtensions `cbor:"4,keyasint,omitempty"`
	// options (0x05)
	Options *GetAssertionOptions `cbor:"5,keyasint,omitempty"`
	// pinUvAuthParam (0x06)
	PinUvAuthParam []byte `cbor:"6,keyasint,omitempty"`
	// pinUvAuthProtocol (0x07)
	PinUvAuthProtocol *uint32 `cbor:"7,keyasint,omitempty"`
}

// GetAssertionResponse is the authenticatorGetAssertion response map, also
// used for authenticatorGetNextAssertion.
type GetAssertionResponse struct {
	// credential (0x01)
	Credential *PublicKeyCredentialDescriptor `cbor:"1,keyasint,omitempty"`
	// authData (0x02)
	AuthData []byte `cbor:"2,keyasint"`
	// signature (0x03)
	Signature []byte `cbor:"3,keyasint"`
	// user (0x04)
	User *PublicKeyCredentialUserEntity `cbor:"4,keyasint,omitempty"`
	// numberOfCredentials (0x05)
	NumberOfCredentials *uint32 `cbor:"5,keyasint,omitempty"`
	// userSelected (0x06)
	UserSelected *bool `cbor:"6,keyasint,omitempty"`
	// largeBlobKey (0x07)
	LargeBlobKey []byte `cbor:"7,keyasint,omitempty"`
}

// EnsureUvSet populates the legacy uv option for authenticators that
// predate PIN/UV auth tokens.
func (r *GetAssertionRequest) EnsureUvSet() {
	uv := true
	if r.Options == nil {
		r.Options = &GetAssertionOptions{}
	}
	r.Options.UserVerification = &uv
}

// SetUvAuth attaches a computed pinUvAuthParam. Tokens and the uv option
// are mutually exclusive, so any uv option is cleared.
func (r *GetAssertionRequest) SetUvAuth(protocol uint32, param []byte) {
	r.PinUvAuthParam = param
	r.PinUvAuthProtocol = &protocol
	if r.Options != nil {
		r.Options.UserVerification = nil
	}
}

// UvAuthMessage returns the message a UV auth token authenticates for this
// request: the client data hash.
func (r *GetAssertionRequest) UvAuthMessage() []byte { return r.ClientDataHash }

// Permissions returns the token permission required by this request.
func (r *GetAssertionRequest) Permissions() AuthTokenPermission {
	return PermissionGetAssertion
}

// PermissionsRPID scopes the token to the request's relying party.
func (r *GetAssertionRequest) PermissionsRPID() string { return r.RpID }

// CanUseUv reports whether built-in UV may satisfy this request.
func (r *GetAssertionRequest) CanUseUv(info *GetInfoResponse) bool { return true }

// HandleLegacyPreview is a no-op; getAssertion has no preview variant.
func (r *GetAssertionRequest) HandleLegacyPreview(info *GetInfoResponse) {}
