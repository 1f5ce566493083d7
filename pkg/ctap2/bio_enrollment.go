package ctap2

// BioEnrollmentModality selects the biometric modality.
type BioEnrollmentModality uint32

const (
	BioModalityFingerprint BioEnrollmentModality = 0x01
)

// BioEnrollmentSubCommand is an authenticatorBioEnrollment subcommand.
type BioEnrollmentSubCommand uint32

const (
	BioEnrollBegin              BioEnrollmentSubCommand = 0x01
	BioEnrollCaptureNextSample  BioEnrollmentSubCommand = 0x02
	BioCancelCurrentEnrollment  BioEnrollmentSubCommand = 0x03
	BioEnumerateEnrollments     BioEnrollmentSubCommand = 0x04
	BioSetFriendlyName          BioEnrollmentSubCommand = 0x05
	BioRemoveEnrollment         BioEnrollmentSubCommand = 0x06
	BioGetFingerprintSensorInfo BioEnrollmentSubCommand = 0x07
)

// BioEnrollmentParams is the subcommand parameter map.
type BioEnrollmentParams struct {
	// templateId (0x01)
	TemplateID []byte `cbor:"1,keyasint,omitempty"`
	// templateFriendlyName (0x02)
	TemplateFriendlyName string `cbor:"2,keyasint,omitempty"`
	// timeoutMilliseconds (0x03)
	TimeoutMilliseconds *uint32 `cbor:"3,keyasint,omitempty"`
}

// BioEnrollmentRequest is the authenticatorBioEnrollment (0x09) parameter
// map. UsePreview downgrades the command code to the 0x40 preview variant
// for authenticators that only implement userVerificationMgmtPreview.
type BioEnrollmentRequest struct {
	// modality (0x01)
	Modality *BioEnrollmentModality `cbor:"1,keyasint,omitempty"`
	// subCommand (0x02)
	SubCommand *BioEnrollmentSubCommand `cbor:"2,keyasint,omitempty"`
	// subCommandParams (0x03)
	SubCommandParams *BioEnrollmentParams `cbor:"3,keyasint,omitempty"`
	// pinUvAuthProtocol (0x04)
	PinUvAuthProtocol *uint32 `cbor:"4,keyasint,omitempty"`
	// pinUvAuthParam (0x05)
	PinUvAuthParam []byte `cbor:"5,keyasint,omitempty"`
	// getModality (0x06)
	GetModality *bool `cbor:"6,keyasint,omitempty"`

	UsePreview bool `cbor:"-"`
}

// TemplateInfo describes one stored enrollment.
type TemplateInfo struct {
	// templateId (0x01)
	TemplateID []byte `cbor:"1,keyasint,omitempty"`
	// templateFriendlyName (0x02)
	TemplateFriendlyName string `cbor:"2,keyasint,omitempty"`
}

// BioEnrollmentResponse is the authenticatorBioEnrollment response map. All
// fields are optional; an absent body decodes to the zero value.
type BioEnrollmentResponse struct {
	// modality (0x01)
	Modality *uint32 `cbor:"1,keyasint,omitempty"`
	// fingerprintKind (0x02)
	FingerprintKind *uint32 `cbor:"2,keyasint,omitempty"`
	// maxCaptureSamplesRequiredForEnroll (0x03)
	MaxCaptureSamplesRequiredForEnroll *uint32 `cbor:"3,keyasint,omitempty"`
	// templateId (0x04)
	TemplateID []byte `cbor:"4,keyasint,omitempty"`
	// lastEnrollSampleStatus (0x05)
	LastEnrollSampleStatus *uint32 `cbor:"5,keyasint,omitempty"`
	// remainingSamples (0x06)
	RemainingSamples *uint32 `cbor:"6,keyasint,omitempty"`
	// templateInfos (0x07)
	TemplateInfos []TemplateInfo `cbor:"7,keyasint,omitempty"`
	// maxTemplateFriendlyName (0x08)
	MaxTemplateFriendlyName *uint32 `cbor:"8,keyasint,omitempty"`
}

// EnsureUvSet is a no-op; bio enrollment always authenticates with a token.
func (r *BioEnrollmentRequest) EnsureUvSet() {}

// SetUvAuth attaches a computed pinUvAuthParam.
func (r *BioEnrollmentRequest) SetUvAuth(protocol uint32, param []byte) {
	r.PinUvAuthParam = param
	r.PinUvAuthProtocol = &protocol
}

// UvAuthMessage returns the message the token authenticates for bio
// enrollment: modality, subcommand, then the subcommand parameter map.
func (r *BioEnrollmentRequest) UvAuthMessage() []byte {
	var msg []byte
	if r.Modality != nil {
		msg = append(msg, byte(*r.Modality))
	}
	if r.SubCommand != nil {
		msg = append(msg, byte(*r.SubCommand))
	}
	if r.SubCommandParams != nil {
		params, err := Marshal(r.SubCommandParams)
		if err == nil {
			msg = append(msg, params...)
		}
	}
	return msg
}

// Permissions returns the token permission required by this request.
func (r *BioEnrollmentRequest) Permissions() AuthTokenPermission {
	return PermissionBioEnrollment
}

// PermissionsRPID returns no RP scope; bio enrollment is not RP-bound.
func (r *BioEnrollmentRequest) PermissionsRPID() string { return "" }

// CanUseUv reports whether built-in UV may satisfy this request. Enrolling
// a first fingerprint cannot rely on the modality being enrolled already.
func (r *BioEnrollmentRequest) CanUseUv(info *GetInfoResponse) bool {
	return info.HasBioEnrollments()
}

// HandleLegacyPreview downgrades the request to the preview command when
// only userVerificationMgmtPreview is advertised.
func (r *BioEnrollmentRequest) HandleLegacyPreview(info *GetInfoResponse) {
	if !info.OptionPresent("bioEnroll") && info.OptionPresent("userVerificationMgmtPreview") {
		r.UsePreview = true
	}
}
