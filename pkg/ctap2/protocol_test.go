package ctap2

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

// scriptedChannel replays canned response frames and records request
// frames.
type scriptedChannel struct {
	t         *testing.T
	sent      [][]byte
	responses [][]byte
	inflight  bool
}

func (c *scriptedChannel) CborSend(ctx context.Context, req *CborRequest) error {
	if c.inflight {
		c.t.Fatal("second send without intervening receive")
	}
	frame, err := req.Encode()
	if err != nil {
		return err
	}
	c.sent = append(c.sent, frame)
	c.inflight = true
	return nil
}

func (c *scriptedChannel) CborRecv(ctx context.Context) (*CborResponse, error) {
	if !c.inflight {
		c.t.Fatal("receive without matching send")
	}
	c.inflight = false
	if len(c.responses) == 0 {
		c.t.Fatal("no scripted response left")
	}
	frame := c.responses[0]
	c.responses = c.responses[1:]
	return DecodeResponseFrame(frame)
}

func okFrame(t *testing.T, payload interface{}) []byte {
	frame := []byte{byte(StatusOk)}
	if payload != nil {
		body, err := Marshal(payload)
		if err != nil {
			t.Fatalf("encoding fixture: %v", err)
		}
		frame = append(frame, body...)
	}
	return frame
}

func TestGetInfoRequestBytes(t *testing.T) {
	ch := &scriptedChannel{t: t, responses: [][]byte{
		okFrame(t, map[int]interface{}{1: []string{"FIDO_2_1"}, 3: make([]byte, 16)}),
	}}
	client := NewClient(ch)
	info, err := client.GetInfo(context.Background())
	if err != nil {
		t.Fatalf("GetInfo() failed: %v", err)
	}
	if !bytes.Equal(ch.sent[0], []byte{0x04}) {
		t.Errorf("request bytes = %x, want 04", ch.sent[0])
	}
	if !info.SupportsFido21() {
		t.Error("SupportsFido21() = false")
	}
}

func TestErrorStatusSurfacesAsCtapError(t *testing.T) {
	ch := &scriptedChannel{t: t, responses: [][]byte{{byte(ErrPinRequired)}}}
	client := NewClient(ch)
	_, err := client.GetAssertion(context.Background(), &GetAssertionRequest{
		RpID:           "example.com",
		ClientDataHash: make([]byte, 32),
	})
	var ce CtapError
	if !errors.As(err, &ce) || ce != ErrPinRequired {
		t.Fatalf("err = %v, want CTAP2_ERR_PIN_REQUIRED", err)
	}
}

func TestClientPinEmptyBodySynthesized(t *testing.T) {
	ch := &scriptedChannel{t: t, responses: [][]byte{{byte(StatusOk)}}}
	client := NewClient(ch)
	resp, err := client.ClientPin(context.Background(), NewClientPinGetPinRetries())
	if err != nil {
		t.Fatalf("ClientPin() failed: %v", err)
	}
	if resp == nil || resp.PinRetries != nil || resp.KeyAgreement != nil {
		t.Errorf("expected synthesized default response, got %+v", resp)
	}
}

func TestCredentialManagementEmptyBodySynthesized(t *testing.T) {
	ch := &scriptedChannel{t: t, responses: [][]byte{{byte(StatusOk)}}}
	client := NewClient(ch)
	resp, err := client.CredentialManagement(context.Background(), &CredentialManagementRequest{
		SubCommand: CredMgmtDeleteCredential,
	})
	if err != nil {
		t.Fatalf("CredentialManagement() failed: %v", err)
	}
	if resp == nil {
		t.Fatal("expected synthesized default response")
	}
}

func TestSelectionAndConfigReturnUnit(t *testing.T) {
	ch := &scriptedChannel{t: t, responses: [][]byte{{byte(StatusOk)}, {byte(StatusOk)}}}
	client := NewClient(ch)
	if err := client.Selection(context.Background()); err != nil {
		t.Fatalf("Selection() failed: %v", err)
	}
	// S5: empty OK body is success for authenticatorConfig, not a decode
	// error.
	if err := client.AuthenticatorConfig(context.Background(), NewSetMinPinLength(8)); err != nil {
		t.Fatalf("AuthenticatorConfig() failed: %v", err)
	}
	if ch.sent[1][0] != byte(CmdAuthenticatorConfig) {
		t.Errorf("command byte = %x, want 0x0d", ch.sent[1][0])
	}
}

func TestMakeCredentialMissingBodyIsPlatformError(t *testing.T) {
	ch := &scriptedChannel{t: t, responses: [][]byte{{byte(StatusOk)}}}
	client := NewClient(ch)
	_, err := client.MakeCredential(context.Background(), &MakeCredentialRequest{
		ClientDataHash: make([]byte, 32),
		Rp:             DummyRpEntity(),
		User:           DummyUserEntity(),
		Algorithms:     []CredentialType{DefaultCredentialType()},
	})
	if !errors.Is(err, ErrInvalidDeviceResponse) {
		t.Fatalf("err = %v, want ErrInvalidDeviceResponse", err)
	}
}

func TestDecodeFailureIsPlatformError(t *testing.T) {
	// Body is a CBOR array where a map is expected.
	ch := &scriptedChannel{t: t, responses: [][]byte{{byte(StatusOk), 0x81, 0x01}}}
	client := NewClient(ch)
	_, err := client.GetAssertion(context.Background(), &GetAssertionRequest{
		RpID:           "example.com",
		ClientDataHash: make([]byte, 32),
	})
	if !errors.Is(err, ErrInvalidDeviceResponse) {
		t.Fatalf("err = %v, want ErrInvalidDeviceResponse", err)
	}
}

func TestBioEnrollmentPreviewDowngrade(t *testing.T) {
	ch := &scriptedChannel{t: t, responses: [][]byte{{byte(StatusOk)}}}
	client := NewClient(ch)
	modality := BioModalityFingerprint
	sub := BioGetFingerprintSensorInfo
	req := &BioEnrollmentRequest{Modality: &modality, SubCommand: &sub}
	req.HandleLegacyPreview(buildInfo(map[string]bool{"userVerificationMgmtPreview": true}))
	if _, err := client.BioEnrollment(context.Background(), req); err != nil {
		t.Fatalf("BioEnrollment() failed: %v", err)
	}
	if ch.sent[0][0] != byte(CmdBioEnrollmentPreview) {
		t.Errorf("command byte = %x, want preview 0x40", ch.sent[0][0])
	}
}
