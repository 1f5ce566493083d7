package management

import (
	"context"

	"github.com/jo-bitsch/libwebauthn/pkg/ctap2"
	"github.com/jo-bitsch/libwebauthn/pkg/webauthn"
)

// FingerprintSensorInfo describes the fingerprint sensor.
type FingerprintSensorInfo struct {
	FingerprintKind            uint32
	MaxCaptureSamples          uint32
	MaxTemplateFriendlyNameLen uint32
}

// EnrollmentSample is the progress report for one capture during
// enrollment.
type EnrollmentSample struct {
	TemplateID       []byte
	LastSampleStatus uint32
	RemainingSamples uint32
}

// Bio runs authenticatorBioEnrollment operations for the fingerprint
// modality.
type Bio struct {
	client *webauthn.Client
}

// NewBio wraps a webauthn client.
func NewBio(client *webauthn.Client) *Bio {
	return &Bio{client: client}
}

func (b *Bio) do(ctx context.Context, req *ctap2.BioEnrollmentRequest) (*ctap2.BioEnrollmentResponse, error) {
	if err := b.client.Authenticate(ctx, req); err != nil {
		return nil, err
	}
	return b.client.Protocol().BioEnrollment(ctx, req)
}

func fingerprintRequest(sub ctap2.BioEnrollmentSubCommand, params *ctap2.BioEnrollmentParams) *ctap2.BioEnrollmentRequest {
	modality := ctap2.BioModalityFingerprint
	return &ctap2.BioEnrollmentRequest{
		Modality:         &modality,
		SubCommand:       &sub,
		SubCommandParams: params,
	}
}

// SensorInfo reads the fingerprint sensor description. This subcommand
// needs no authentication.
func (b *Bio) SensorInfo(ctx context.Context) (*FingerprintSensorInfo, error) {
	req := fingerprintRequest(ctap2.BioGetFingerprintSensorInfo, nil)
	info, err := b.client.GetInfo(ctx)
	if err != nil {
		return nil, err
	}
	req.HandleLegacyPreview(info)
	resp, err := b.client.Protocol().BioEnrollment(ctx, req)
	if err != nil {
		return nil, err
	}
	out := &FingerprintSensorInfo{}
	if resp.FingerprintKind != nil {
		out.FingerprintKind = *resp.FingerprintKind
	}
	if resp.MaxCaptureSamplesRequiredForEnroll != nil {
		out.MaxCaptureSamples = *resp.MaxCaptureSamplesRequiredForEnroll
	}
	if resp.MaxTemplateFriendlyName != nil {
		out.MaxTemplateFriendlyNameLen = *resp.MaxTemplateFriendlyName
	}
	return out, nil
}

// EnrollBegin starts a fingerprint enrollment and returns the first sample
// report, including the new template ID.
func (b *Bio) EnrollBegin(ctx context.Context, timeoutMilliseconds *uint32) (*EnrollmentSample, error) {
	var params *ctap2.BioEnrollmentParams
	if timeoutMilliseconds != nil {
		params = &ctap2.BioEnrollmentParams{TimeoutMilliseconds: timeoutMilliseconds}
	}
	resp, err := b.do(ctx, fingerprintRequest(ctap2.BioEnrollBegin, params))
	if err != nil {
		return nil, err
	}
	return sampleFromResponse(resp), nil
}

// EnrollCaptureNext captures the next sample for an in-progress enrollment.
func (b *Bio) EnrollCaptureNext(ctx context.Context, templateID []byte) (*EnrollmentSample, error) {
	resp, err := b.do(ctx, fingerprintRequest(ctap2.BioEnrollCaptureNextSample,
		&ctap2.BioEnrollmentParams{TemplateID: templateID}))
	if err != nil {
		return nil, err
	}
	sample := sampleFromResponse(resp)
	if sample.TemplateID == nil {
		sample.TemplateID = templateID
	}
	return sample, nil
}

// EnrollCancel aborts the in-progress enrollment.
func (b *Bio) EnrollCancel(ctx context.Context) error {
	modality := ctap2.BioModalityFingerprint
	sub := ctap2.BioCancelCurrentEnrollment
	_, err := b.client.Protocol().BioEnrollment(ctx, &ctap2.BioEnrollmentRequest{
		Modality:   &modality,
		SubCommand: &sub,
	})
	return err
}

// Enrollments lists the stored fingerprint templates.
func (b *Bio) Enrollments(ctx context.Context) ([]ctap2.TemplateInfo, error) {
	resp, err := b.do(ctx, fingerprintRequest(ctap2.BioEnumerateEnrollments, nil))
	if err != nil {
		if ce, ok := webauthn.AsCtapError(err); ok && ce == ctap2.ErrInvalidOption {
			// No enrollments yet.
			return nil, nil
		}
		return nil, err
	}
	return resp.TemplateInfos, nil
}

// SetFriendlyName renames a stored template.
func (b *Bio) SetFriendlyName(ctx context.Context, templateID []byte, name string) error {
	_, err := b.do(ctx, fingerprintRequest(ctap2.BioSetFriendlyName,
		&ctap2.BioEnrollmentParams{TemplateID: templateID, TemplateFriendlyName: name}))
	return err
}

// RemoveEnrollment deletes a stored template.
func (b *Bio) RemoveEnrollment(ctx context.Context, templateID []byte) error {
	_, err := b.do(ctx, fingerprintRequest(ctap2.BioRemoveEnrollment,
		&ctap2.BioEnrollmentParams{TemplateID: templateID}))
	return err
}

func sampleFromResponse(resp *ctap2.BioEnrollmentResponse) *EnrollmentSample {
	sample := &EnrollmentSample{TemplateID: resp.TemplateID}
	if resp.LastEnrollSampleStatus != nil {
		sample.LastSampleStatus = *resp.LastEnrollSampleStatus
	}
	if resp.RemainingSamples != nil {
		sample.RemainingSamples = *resp.RemainingSamples
	}
	return sample
}
