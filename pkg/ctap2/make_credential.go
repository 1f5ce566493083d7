package ctap2

// MakeCredentialOptions is the authenticatorMakeCredential option map.
type MakeCredentialOptions struct {
	// rk: require a discoverable (resident) credential
	ResidentKey *bool `cbor:"rk,omitempty"`
	// uv: legacy FIDO 2.0 built-in user verification flag
	UserVerification *bool `cbor:"uv,omitempty"`
}

// MakeCredentialExtensions is the extension input map for makeCredential.
type MakeCredentialExtensions struct {
	CredBlob     []byte  `cbor:"credBlob,omitempty"`
	CredProtect  *uint32 `cbor:"credProtect,omitempty"`
	LargeBlobKey *bool   `cbor:"largeBlobKey,omitempty"`
	MinPinLength *bool   `cbor:"minPinLength,omitempty"`
}

// MakeCredentialRequest is the authenticatorMakeCredential (0x01) parameter
// map. PinUvAuthParam and PinUvAuthProtocol start absent and are filled in
// by the UV orchestrator before the request is sent.
type MakeCredentialRequest struct {
	// clientDataHash (0x01)
	ClientDataHash []byte `cbor:"1,keyasint"`
	// rp (0x02)
	Rp PublicKeyCredentialRpEntity `cbor:"2,keyasint"`
	// user (0x03)
	User PublicKeyCredentialUserEntity `cbor:"3,keyasint"`
	// pubKeyCredParams (0x04)
	Algorithms []CredentialType `cbor:"4,keyasint"`
	// excludeList (0x05)
	ExcludeList []PublicKeyCredentialDescriptor `cbor:"5,keyasint,omitempty"`
	// extensions (0x06)
	Extensions *MakeCredentialExtensions `cbor:"6,keyasint,omitempty"`
	// options (0x07)
	Options *MakeCredentialOptions `cbor:"7,keyasint,omitempty"`
	// pinUvAuthParam (0x08)
	PinUvAuthParam []byte `cbor:"8,keyasint,omitempty"`
	// pinUvAuthProtocol (0x09)
	PinUvAuthProtocol *uint32 `cbor:"9,keyasint,omitempty"`
	// enterpriseAttestation (0x0A)
	EnterpriseAttestation *uint32 `cbor:"10,keyasint,omitempty"`
}

// AttestationStatement is a structurally-parsed attestation statement.
// Signature validation is out of scope for this library.
type AttestationStatement struct {
	Alg int64    `cbor:"alg,omitempty"`
	Sig []byte   `cbor:"sig,omitempty"`
	X5c [][]byte `cbor:"x5c,omitempty"`
}

// MakeCredentialResponse is the authenticatorMakeCredential response map.
type MakeCredentialResponse struct {
	// fmt (0x01)
	Fmt string `cbor:"1,keyasint"`
	// authData (0x02)
	AuthData []byte `cbor:"2,keyasint"`
	// attStmt (0x03)
	AttStmt AttestationStatement `cbor:"3,keyasint"`
	// epAtt (0x04)
	EpAtt *bool `cbor:"4,keyasint,omitempty"`
	// largeBlobKey (0x05)
	LargeBlobKey []byte `cbor:"5,keyasint,omitempty"`
}

// EnsureUvSet populates the legacy uv option for authenticators that
// predate PIN/UV auth tokens.
func (r *MakeCredentialRequest) EnsureUvSet() {
	uv := true
	if r.Options == nil {
		r.Options = &MakeCredentialOptions{}
	}
	r.Options.UserVerification = &uv
}

// SetUvAuth attaches a computed pinUvAuthParam. Tokens and the uv option
// are mutually exclusive, so any uv option is cleared.
func (r *MakeCredentialRequest) SetUvAuth(protocol uint32, param []byte) {
	r.PinUvAuthParam = param
	r.PinUvAuthProtocol = &protocol
	if r.Options != nil {
		r.Options.UserVerification = nil
	}
}

// UvAuthMessage returns the message a UV auth token authenticates for this
// request: the client data hash.
func (r *MakeCredentialRequest) UvAuthMessage() []byte { return r.ClientDataHash }

// Permissions returns the token permission required by this request.
func (r *MakeCredentialRequest) Permissions() AuthTokenPermission {
	return PermissionMakeCredential
}

// PermissionsRPID scopes the token to the request's relying party.
func (r *MakeCredentialRequest) PermissionsRPID() string { return r.Rp.ID }

// CanUseUv reports whether built-in UV may satisfy this request.
func (r *MakeCredentialRequest) CanUseUv(info *GetInfoResponse) bool { return true }

// HandleLegacyPreview is a no-op; makeCredential has no preview variant.
func (r *MakeCredentialRequest) HandleLegacyPreview(info *GetInfoResponse) {}
