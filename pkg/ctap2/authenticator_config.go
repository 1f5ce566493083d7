package ctap2

// AuthenticatorConfigSubCommand is an authenticatorConfig (0x0D) subcommand.
type AuthenticatorConfigSubCommand uint32

const (
	ConfigEnableEnterpriseAttestation AuthenticatorConfigSubCommand = 0x01
	ConfigToggleAlwaysUv              AuthenticatorConfigSubCommand = 0x02
	ConfigSetMinPinLength             AuthenticatorConfigSubCommand = 0x03
)

// AuthenticatorConfigParams is the setMinPINLength parameter map.
type AuthenticatorConfigParams struct {
	// newMinPINLength (0x01)
	NewMinPinLength *uint32 `cbor:"1,keyasint,omitempty"`
	// minPinLengthRPIDs (0x02)
	MinPinLengthRPIDs []string `cbor:"2,keyasint,omitempty"`
	// forceChangePin (0x03)
	ForceChangePin *bool `cbor:"3,keyasint,omitempty"`
}

// AuthenticatorConfigRequest is the authenticatorConfig (0x0D) parameter map.
type AuthenticatorConfigRequest struct {
	// subCommand (0x01)
	SubCommand AuthenticatorConfigSubCommand `cbor:"1,keyasint"`
	// subCommandParams (0x02)
	SubCommandParams *AuthenticatorConfigParams `cbor:"2,keyasint,omitempty"`
	// pinUvAuthProtocol (0x03)
	PinUvAuthProtocol *uint32 `cbor:"3,keyasint,omitempty"`
	// pinUvAuthParam (0x04)
	PinUvAuthParam []byte `cbor:"4,keyasint,omitempty"`
}

// NewEnableEnterpriseAttestation builds the enableEnterpriseAttestation
// subcommand.
func NewEnableEnterpriseAttestation() *AuthenticatorConfigRequest {
	return &AuthenticatorConfigRequest{SubCommand: ConfigEnableEnterpriseAttestation}
}

// NewToggleAlwaysUv builds the toggleAlwaysUv subcommand.
func NewToggleAlwaysUv() *AuthenticatorConfigRequest {
	return &AuthenticatorConfigRequest{SubCommand: ConfigToggleAlwaysUv}
}

// NewSetMinPinLength builds a setMinPINLength subcommand updating the
// minimum PIN length.
func NewSetMinPinLength(length uint32) *AuthenticatorConfigRequest {
	return &AuthenticatorConfigRequest{
		SubCommand:       ConfigSetMinPinLength,
		SubCommandParams: &AuthenticatorConfigParams{NewMinPinLength: &length},
	}
}

// NewSetMinPinLengthRPIDs builds a setMinPINLength subcommand updating the
// RP list allowed to read the minimum PIN length.
func NewSetMinPinLengthRPIDs(rpIDs []string) *AuthenticatorConfigRequest {
	return &AuthenticatorConfigRequest{
		SubCommand:       ConfigSetMinPinLength,
		SubCommandParams: &AuthenticatorConfigParams{MinPinLengthRPIDs: rpIDs},
	}
}

// NewForceChangePin builds a setMinPINLength subcommand toggling the
// forceChangePin flag.
func NewForceChangePin(force bool) *AuthenticatorConfigRequest {
	return &AuthenticatorConfigRequest{
		SubCommand:       ConfigSetMinPinLength,
		SubCommandParams: &AuthenticatorConfigParams{ForceChangePin: &force},
	}
}

// EnsureUvSet is a no-op; authenticatorConfig always authenticates with a
// token.
func (r *AuthenticatorConfigRequest) EnsureUvSet() {}

// SetUvAuth attaches a computed pinUvAuthParam.
func (r *AuthenticatorConfigRequest) SetUvAuth(protocol uint32, param []byte) {
	r.PinUvAuthParam = param
	r.PinUvAuthProtocol = &protocol
}

// UvAuthMessage returns the message the token authenticates for
// authenticatorConfig: 32 bytes of 0xff, the command byte 0x0d, the
// subcommand, then the subcommand parameter map.
func (r *AuthenticatorConfigRequest) UvAuthMessage() []byte {
	msg := make([]byte, 32, 34)
	for i := range msg {
		msg[i] = 0xff
	}
	msg = append(msg, byte(CmdAuthenticatorConfig), byte(r.SubCommand))
	if r.SubCommandParams != nil {
		params, err := Marshal(r.SubCommandParams)
		if err == nil {
			msg = append(msg, params...)
		}
	}
	return msg
}

// Permissions returns the token permission required by this request.
func (r *AuthenticatorConfigRequest) Permissions() AuthTokenPermission {
	return PermissionAuthenticatorConfiguration
}

// PermissionsRPID returns no RP scope; configuration is not RP-bound.
func (r *AuthenticatorConfigRequest) PermissionsRPID() string { return "" }

// CanUseUv reports whether built-in UV may satisfy this request.
func (r *AuthenticatorConfigRequest) CanUseUv(info *GetInfoResponse) bool { return true }

// HandleLegacyPreview is a no-op; authenticatorConfig has no preview
// variant.
func (r *AuthenticatorConfigRequest) HandleLegacyPreview(info *GetInfoResponse) {}
