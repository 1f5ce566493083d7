package ctap2

// CredentialManagementSubCommand is an authenticatorCredentialManagement
// subcommand.
type CredentialManagementSubCommand uint32

const (
	CredMgmtGetCredsMetadata                      CredentialManagementSubCommand = 0x01
	CredMgmtEnumerateRPsBegin                     CredentialManagementSubCommand = 0x02
	CredMgmtEnumerateRPsGetNextRP                 CredentialManagementSubCommand = 0x03
	CredMgmtEnumerateCredentialsBegin             CredentialManagementSubCommand = 0x04
	CredMgmtEnumerateCredentialsGetNextCredential CredentialManagementSubCommand = 0x05
	CredMgmtDeleteCredential                      CredentialManagementSubCommand = 0x06
	CredMgmtUpdateUserInformation                 CredentialManagementSubCommand = 0x07
)

// CredentialManagementParams is the subcommand parameter map.
type CredentialManagementParams struct {
	// rpIDHash (0x01)
	RpIDHash []byte `cbor:"1,keyasint,omitempty"`
	// credentialID (0x02)
	CredentialID *PublicKeyCredentialDescriptor `cbor:"2,keyasint,omitempty"`
	// user (0x03)
	User *PublicKeyCredentialUserEntity `cbor:"3,keyasint,omitempty"`
}

// CredentialManagementRequest is the authenticatorCredentialManagement
// (0x0A) parameter map. UsePreview downgrades the command code to the 0x41
// preview variant for authenticators that only implement
// credentialMgmtPreview.
type CredentialManagementRequest struct {
	// subCommand (0x01)
	SubCommand CredentialManagementSubCommand `cbor:"1,keyasint"`
	// subCommandParams (0x02)
	SubCommandParams *CredentialManagementParams `cbor:"2,keyasint,omitempty"`
	// pinUvAuthProtocol (0x03)
	PinUvAuthProtocol *uint32 `cbor:"3,keyasint,omitempty"`
	// pinUvAuthParam (0x04)
	PinUvAuthParam []byte `cbor:"4,keyasint,omitempty"`

	UsePreview bool `cbor:"-"`
}

// CredentialManagementResponse is the authenticatorCredentialManagement
// response map. All fields are optional; an absent body decodes to the zero
// value.
type CredentialManagementResponse struct {
	// existingResidentCredentialsCount (0x01)
	ExistingResidentCredentialsCount *uint32 `cbor:"1,keyasint,omitempty"`
	// maxPossibleRemainingResidentCredentialsCount (0x02)
	MaxPossibleRemainingResidentCredentialsCount *uint32 `cbor:"2,keyasint,omitempty"`
	// rp (0x03)
	Rp *PublicKeyCredentialRpEntity `cbor:"3,keyasint,omitempty"`
	// rpIDHash (0x04)
	RpIDHash []byte `cbor:"4,keyasint,omitempty"`
	// totalRPs (0x05)
	TotalRPs *uint32 `cbor:"5,keyasint,omitempty"`
	// user (0x06)
	User *PublicKeyCredentialUserEntity `cbor:"6,keyasint,omitempty"`
	// credentialID (0x07)
	CredentialID *PublicKeyCredentialDescriptor `cbor:"7,keyasint,omitempty"`
	// publicKey (0x08)
	PublicKey *COSEKey `cbor:"8,keyasint,omitempty"`
	// totalCredentials (0x09)
	TotalCredentials *uint32 `cbor:"9,keyasint,omitempty"`
	// credProtect (0x0A)
	CredProtect *uint32 `cbor:"10,keyasint,omitempty"`
	// largeBlobKey (0x0B)
	LargeBlobKey []byte `cbor:"11,keyasint,omitempty"`
}

// EnsureUvSet is a no-op; credential management always authenticates with a
// token.
func (r *CredentialManagementRequest) EnsureUvSet() {}

// SetUvAuth attaches a computed pinUvAuthParam.
func (r *CredentialManagementRequest) SetUvAuth(protocol uint32, param []byte) {
	r.PinUvAuthParam = param
	r.PinUvAuthProtocol = &protocol
}

// UvAuthMessage returns the message the token authenticates for credential
// management: the subcommand byte followed by the subcommand parameter map.
func (r *CredentialManagementRequest) UvAuthMessage() []byte {
	msg := []byte{byte(r.SubCommand)}
	if r.SubCommandParams != nil {
		params, err := Marshal(r.SubCommandParams)
		if err == nil {
			msg = append(msg, params...)
		}
	}
	return msg
}

// Permissions returns the token permission required by this request.
func (r *CredentialManagementRequest) Permissions() AuthTokenPermission {
	return PermissionCredentialManagement
}

// PermissionsRPID returns no RP scope; management enumerates across RPs.
func (r *CredentialManagementRequest) PermissionsRPID() string { return "" }

// CanUseUv reports whether built-in UV may satisfy this request.
func (r *CredentialManagementRequest) CanUseUv(info *GetInfoResponse) bool { return true }

// HandleLegacyPreview downgrades the request to the preview command when
// only credentialMgmtPreview is advertised.
func (r *CredentialManagementRequest) HandleLegacyPreview(info *GetInfoResponse) {
	if !info.OptionEnabled("credMgmt") && info.OptionEnabled("credentialMgmtPreview") {
		r.UsePreview = true
	}
}
