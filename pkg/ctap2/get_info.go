package ctap2

// GetInfoResponse is the decoded authenticatorGetInfo (0x04) response.
// Optional fields are pointers or nil-able slices so that an absent field is
// distinguishable from one that is present with its zero value.
type GetInfoResponse struct {
	// versions (0x01)
	Versions []string `cbor:"1,keyasint"`
	// extensions (0x02)
	Extensions []string `cbor:"2,keyasint,omitempty"`
	// aaguid (0x03)
	AAGUID []byte `cbor:"3,keyasint"`
	// options (0x04)
	Options map[string]bool `cbor:"4,keyasint,omitempty"`
	// maxMsgSize (0x05)
	MaxMsgSize *uint32 `cbor:"5,keyasint,omitempty"`
	// pinUvAuthProtocols (0x06)
	PinAuthProtos []uint32 `cbor:"6,keyasint,omitempty"`
	// maxCredentialCountInList (0x07)
	MaxCredentialCount *uint32 `cbor:"7,keyasint,omitempty"`
	// maxCredentialIdLength (0x08)
	MaxCredentialIDLength *uint32 `cbor:"8,keyasint,omitempty"`
	// transports (0x09)
	Transports []string `cbor:"9,keyasint,omitempty"`
	// algorithms (0x0A)
	Algorithms []CredentialType `cbor:"10,keyasint,omitempty"`
	// maxSerializedLargeBlobArray (0x0B)
	MaxBlobArray *uint32 `cbor:"11,keyasint,omitempty"`
	// forcePINChange (0x0C)
	ForcePinChange *bool `cbor:"12,keyasint,omitempty"`
	// minPINLength (0x0D)
	MinPinLength *uint32 `cbor:"13,keyasint,omitempty"`
	// firmwareVersion (0x0E)
	FirmwareVersion *uint32 `cbor:"14,keyasint,omitempty"`
	// maxCredBlobLength (0x0F)
	MaxCredBlobLength *uint32 `cbor:"15,keyasint,omitempty"`
	// maxRPIDsForSetMinPINLength (0x10)
	MaxRPIDsForSetMinPinLength *uint32 `cbor:"16,keyasint,omitempty"`
	// preferredPlatformUvAttempts (0x11)
	PreferredPlatformUvAttempts *uint32 `cbor:"17,keyasint,omitempty"`
	// uvModality (0x12)
	UvModality *uint32 `cbor:"18,keyasint,omitempty"`
	// certifications (0x13)
	Certifications map[string]uint32 `cbor:"19,keyasint,omitempty"`
	// remainingDiscoverableCredentials (0x14)
	RemainingDiscoverableCreds *uint32 `cbor:"20,keyasint,omitempty"`
	// vendorPrototypeConfigCommands (0x15)
	VendorPrototypeConfigCommands []uint32 `cbor:"21,keyasint,omitempty"`
	// attestationFormats (0x16)
	AttestationFormats []string `cbor:"22,keyasint,omitempty"`
	// uvCountSinceLastPinEntry (0x17)
	UvCountSinceLastPinEntry *uint32 `cbor:"23,keyasint,omitempty"`
	// longTouchForReset (0x18)
	LongTouchForReset *bool `cbor:"24,keyasint,omitempty"`
	// encIdentifier (0x19)
	EncIdentifier []byte `cbor:"25,keyasint,omitempty"`
	// transportsForReset (0x1A)
	TransportsForReset []string `cbor:"26,keyasint,omitempty"`
	// pinComplexityPolicy (0x1B)
	PinComplexityPolicy *bool `cbor:"27,keyasint,omitempty"`
	// pinComplexityPolicyURL (0x1C)
	PinComplexityPolicyURL []byte `cbor:"28,keyasint,omitempty"`
	// maxPINLength (0x1D)
	MaxPinLength *uint32 `cbor:"29,keyasint,omitempty"`
}

// OptionEnabled reports whether the named option is present and true.
// An absent option is not the same as a disabled one; use OptionPresent to
// tell them apart.
func (i *GetInfoResponse) OptionEnabled(name string) bool {
	if i.Options == nil {
		return false
	}
	v, ok := i.Options[name]
	return ok && v
}

// OptionPresent reports whether the named option appears in the option map
// at all, regardless of its value.
func (i *GetInfoResponse) OptionPresent(name string) bool {
	_, ok := i.Options[name]
	return ok
}

// SupportsFido21 reports whether the authenticator lists FIDO_2_1 among its
// supported versions.
func (i *GetInfoResponse) SupportsFido21() bool {
	for _, v := range i.Versions {
		if v == "FIDO_2_1" {
			return true
		}
	}
	return false
}

// SupportsCredentialManagement reports whether credential management or its
// preview variant is supported.
func (i *GetInfoResponse) SupportsCredentialManagement() bool {
	return i.OptionEnabled("credMgmt") || i.OptionEnabled("credentialMgmtPreview")
}

// SupportsBioEnrollment reports whether bio enrollment or its preview
// variant is supported, enrolled or not.
func (i *GetInfoResponse) SupportsBioEnrollment() bool {
	return i.OptionPresent("bioEnroll") || i.OptionPresent("userVerificationMgmtPreview")
}

// HasBioEnrollments reports whether at least one biometric enrollment
// exists on the authenticator.
func (i *GetInfoResponse) HasBioEnrollments() bool {
	return i.OptionEnabled("bioEnroll") || i.OptionEnabled("userVerificationMgmtPreview")
}

// IsUvProtected implements the "protected by some form of user
// verification" check: clientPin or built-in UV is supported and enabled.
func (i *GetInfoResponse) IsUvProtected() bool {
	return i.OptionEnabled("uv") || // Deprecated no-op UV
		i.OptionEnabled("clientPin") ||
		(i.OptionEnabled("pinUvAuthToken") && i.OptionEnabled("uv"))
}

// UserVerificationOperation is the UV method selected for a request.
type UserVerificationOperation int

const (
	// UvOperationNone means no token is acquired. If the authenticator
	// advertises the legacy FIDO 2.0 uv flag the request's uv option is
	// populated instead.
	UvOperationNone UserVerificationOperation = iota
	UvOperationGetPinToken
	UvOperationGetPinUvAuthTokenUsingPinWithPermissions
	UvOperationGetPinUvAuthTokenUsingUvWithPermissions
)

func (o UserVerificationOperation) String() string {
	switch o {
	case UvOperationGetPinToken:
		return "getPinToken"
	case UvOperationGetPinUvAuthTokenUsingPinWithPermissions:
		return "getPinUvAuthTokenUsingPinWithPermissions"
	case UvOperationGetPinUvAuthTokenUsingUvWithPermissions:
		return "getPinUvAuthTokenUsingUvWithPermissions"
	default:
		return "none"
	}
}

// UvOperation selects the user-verification method for this authenticator.
// uvBlocked is set once built-in UV has exhausted its retry budget for the
// session, forcing the PIN paths.
//
// An authenticator that advertises pinUvAuthToken without uv must also
// advertise clientPin; one that does not gets an ErrUnsupportedFeature
// instead of a crash.
func (i *GetInfoResponse) UvOperation(uvBlocked bool) (UserVerificationOperation, error) {
	if i.OptionEnabled("uv") && !uvBlocked {
		if i.OptionEnabled("pinUvAuthToken") {
			return UvOperationGetPinUvAuthTokenUsingUvWithPermissions, nil
		}
		// Deprecated FIDO 2.0 behaviour: populate the uv flag.
		return UvOperationNone, nil
	}
	if i.OptionEnabled("pinUvAuthToken") {
		if !i.OptionEnabled("clientPin") {
			return UvOperationNone, ErrUnsupportedFeature
		}
		return UvOperationGetPinUvAuthTokenUsingPinWithPermissions, nil
	}
	if i.OptionEnabled("clientPin") {
		return UvOperationGetPinToken, nil
	}
	// No UV and no PIN; nothing to authenticate with.
	return UvOperationNone, nil
}
