package ctap2

// ClientPinSubCommand is an authenticatorClientPIN (0x06) subcommand.
type ClientPinSubCommand uint32

const (
	ClientPinGetPinRetries                             ClientPinSubCommand = 0x01
	ClientPinGetKeyAgreement                           ClientPinSubCommand = 0x02
	ClientPinSetPin                                    ClientPinSubCommand = 0x03
	ClientPinChangePin                                 ClientPinSubCommand = 0x04
	ClientPinGetPinToken                               ClientPinSubCommand = 0x05
	ClientPinGetPinUvAuthTokenUsingUvWithPermissions   ClientPinSubCommand = 0x06
	ClientPinGetUvRetries                              ClientPinSubCommand = 0x07
	ClientPinGetPinUvAuthTokenUsingPinWithPermissions  ClientPinSubCommand = 0x09
)

// AuthTokenPermission is the pinUvAuthToken permission bitmask.
type AuthTokenPermission uint32

const (
	PermissionMakeCredential             AuthTokenPermission = 0x01
	PermissionGetAssertion               AuthTokenPermission = 0x02
	PermissionCredentialManagement       AuthTokenPermission = 0x04
	PermissionBioEnrollment              AuthTokenPermission = 0x08
	PermissionLargeBlobWrite             AuthTokenPermission = 0x10
	PermissionAuthenticatorConfiguration AuthTokenPermission = 0x20
)

// ClientPinRequest is the authenticatorClientPIN (0x06) parameter map.
type ClientPinRequest struct {
	// pinUvAuthProtocol (0x01)
	PinUvAuthProtocol *uint32 `cbor:"1,keyasint,omitempty"`
	// subCommand (0x02)
	SubCommand ClientPinSubCommand `cbor:"2,keyasint"`
	// keyAgreement (0x03): platform public key
	KeyAgreement *COSEKey `cbor:"3,keyasint,omitempty"`
	// pinUvAuthParam (0x04)
	PinUvAuthParam []byte `cbor:"4,keyasint,omitempty"`
	// newPinEnc (0x05)
	NewPinEnc []byte `cbor:"5,keyasint,omitempty"`
	// pinHashEnc (0x06)
	PinHashEnc []byte `cbor:"6,keyasint,omitempty"`
	// permissions (0x09)
	Permissions *AuthTokenPermission `cbor:"9,keyasint,omitempty"`
	// rpId (0x0A)
	PermissionsRPID string `cbor:"10,keyasint,omitempty"`
}

// ClientPinResponse is the authenticatorClientPIN response map. All fields
// are optional; an absent body decodes to the zero value.
type ClientPinResponse struct {
	// keyAgreement (0x01): authenticator public key
	KeyAgreement *COSEKey `cbor:"1,keyasint,omitempty"`
	// pinUvAuthToken (0x02), encrypted with the shared secret
	PinUvAuthToken []byte `cbor:"2,keyasint,omitempty"`
	// pinRetries (0x03)
	PinRetries *uint32 `cbor:"3,keyasint,omitempty"`
	// powerCycleState (0x04)
	PowerCycleState *bool `cbor:"4,keyasint,omitempty"`
	// uvRetries (0x05)
	UvRetries *uint32 `cbor:"5,keyasint,omitempty"`
}

// NewClientPinGetKeyAgreement requests the authenticator's key-agreement key.
func NewClientPinGetKeyAgreement(protocol uint32) *ClientPinRequest {
	return &ClientPinRequest{
		PinUvAuthProtocol: &protocol,
		SubCommand:        ClientPinGetKeyAgreement,
	}
}

// NewClientPinGetPinRetries requests the remaining PIN attempt count.
func NewClientPinGetPinRetries() *ClientPinRequest {
	return &ClientPinRequest{SubCommand: ClientPinGetPinRetries}
}

// NewClientPinGetUvRetries requests the remaining built-in UV attempt count.
func NewClientPinGetUvRetries() *ClientPinRequest {
	return &ClientPinRequest{SubCommand: ClientPinGetUvRetries}
}

// NewClientPinGetPinToken requests a legacy PIN token (subcommand 0x05).
func NewClientPinGetPinToken(protocol uint32, platformKey *COSEKey, pinHashEnc []byte) *ClientPinRequest {
	return &ClientPinRequest{
		PinUvAuthProtocol: &protocol,
		SubCommand:        ClientPinGetPinToken,
		KeyAgreement:      platformKey,
		PinHashEnc:        pinHashEnc,
	}
}

// NewClientPinTokenUsingPinWithPermissions requests a permissioned token
// backed by PIN verification (subcommand 0x09).
func NewClientPinTokenUsingPinWithPermissions(protocol uint32, platformKey *COSEKey, pinHashEnc []byte,
	permissions AuthTokenPermission, rpID string) *ClientPinRequest {
	return &ClientPinRequest{
		PinUvAuthProtocol: &protocol,
		SubCommand:        ClientPinGetPinUvAuthTokenUsingPinWithPermissions,
		KeyAgreement:      platformKey,
		PinHashEnc:        pinHashEnc,
		Permissions:       &permissions,
		PermissionsRPID:   rpID,
	}
}

// NewClientPinTokenUsingUvWithPermissions requests a permissioned token
// backed by built-in user verification (subcommand 0x06).
func NewClientPinTokenUsingUvWithPermissions(protocol uint32, platformKey *COSEKey,
	permissions AuthTokenPermission, rpID string) *ClientPinRequest {
	return &ClientPinRequest{
		PinUvAuthProtocol: &protocol,
		SubCommand:        ClientPinGetPinUvAuthTokenUsingUvWithPermissions,
		KeyAgreement:      platformKey,
		Permissions:       &permissions,
		PermissionsRPID:   rpID,
	}
}

// NewClientPinSetPin sets the initial PIN (subcommand 0x03).
func NewClientPinSetPin(protocol uint32, platformKey *COSEKey, newPinEnc, pinUvAuthParam []byte) *ClientPinRequest {
	return &ClientPinRequest{
		PinUvAuthProtocol: &protocol,
		SubCommand:        ClientPinSetPin,
		KeyAgreement:      platformKey,
		NewPinEnc:         newPinEnc,
		PinUvAuthParam:    pinUvAuthParam,
	}
}

// NewClientPinChangePin replaces an existing PIN (subcommand 0x04).
func NewClientPinChangePin(protocol uint32, platformKey *COSEKey, pinHashEnc, newPinEnc, pinUvAuthParam []byte) *ClientPinRequest {
	return &ClientPinRequest{
		PinUvAuthProtocol: &protocol,
		SubCommand:        ClientPinChangePin,
		KeyAgreement:      platformKey,
		PinHashEnc:        pinHashEnc,
		NewPinEnc:         newPinEnc,
		PinUvAuthParam:    pinUvAuthParam,
	}
}
