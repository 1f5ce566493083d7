package ctap2

import (
	"bytes"
	"errors"
	"testing"
)

// buildInfo assembles an options map the way authenticators advertise it.
func buildInfo(options map[string]bool) *GetInfoResponse {
	return &GetInfoResponse{
		Versions: []string{"FIDO_2_0", "FIDO_2_1"},
		AAGUID:   make([]byte, 16),
		Options:  options,
	}
}

func TestGetInfoDecode(t *testing.T) {
	aaguid := bytes.Repeat([]byte{0xAB}, 16)
	payload, err := Marshal(map[int]interface{}{
		1: []string{"U2F_V2", "FIDO_2_1"},
		3: aaguid,
	})
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	var info GetInfoResponse
	if err := Unmarshal(payload, &info); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if len(info.Versions) != 2 || info.Versions[1] != "FIDO_2_1" {
		t.Errorf("Versions = %v", info.Versions)
	}
	if !bytes.Equal(info.AAGUID, aaguid) {
		t.Errorf("AAGUID = %x, want %x", info.AAGUID, aaguid)
	}
	if !info.SupportsFido21() {
		t.Error("SupportsFido21() = false, want true")
	}
	if info.MaxMsgSize != nil {
		t.Error("absent maxMsgSize decoded as present")
	}
}

func TestOptionAbsentVersusFalse(t *testing.T) {
	info := buildInfo(map[string]bool{"clientPin": false})
	if info.OptionEnabled("clientPin") {
		t.Error("present-and-false option reported enabled")
	}
	if !info.OptionPresent("clientPin") {
		t.Error("present-and-false option reported absent")
	}
	if info.OptionPresent("bioEnroll") {
		t.Error("absent option reported present")
	}
}

// The §4.4.1 selection table, for every combination of uv, pinUvAuthToken,
// clientPin and uvBlocked.
func TestUvOperationSelection(t *testing.T) {
	cases := []struct {
		name                     string
		uv, token, clientPin     bool
		uvBlocked                bool
		want                     UserVerificationOperation
		wantErr                  bool
	}{
		{"uv+token", true, true, true, false, UvOperationGetPinUvAuthTokenUsingUvWithPermissions, false},
		{"uv+token no pin", true, true, false, false, UvOperationGetPinUvAuthTokenUsingUvWithPermissions, false},
		{"uv legacy", true, false, false, false, UvOperationNone, false},
		{"uv legacy with pin", true, false, true, false, UvOperationNone, false},
		{"uv blocked, token+pin", true, true, true, true, UvOperationGetPinUvAuthTokenUsingPinWithPermissions, false},
		{"uv blocked, pin only", true, false, true, true, UvOperationGetPinToken, false},
		{"uv blocked, nothing", true, false, false, true, UvOperationNone, false},
		{"no uv, token+pin", false, true, true, false, UvOperationGetPinUvAuthTokenUsingPinWithPermissions, false},
		{"no uv, pin only", false, false, true, false, UvOperationGetPinToken, false},
		{"no uv, nothing", false, false, false, false, UvOperationNone, false},
		{"token without pin", false, true, false, false, UvOperationNone, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			options := map[string]bool{}
			if tc.uv {
				options["uv"] = true
			}
			if tc.token {
				options["pinUvAuthToken"] = true
			}
			if tc.clientPin {
				options["clientPin"] = true
			}
			info := buildInfo(options)
			got, err := info.UvOperation(tc.uvBlocked)
			if tc.wantErr {
				if !errors.Is(err, ErrUnsupportedFeature) {
					t.Fatalf("UvOperation() error = %v, want ErrUnsupportedFeature", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("UvOperation() error = %v", err)
			}
			if got != tc.want {
				t.Errorf("UvOperation() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestInfoPredicates(t *testing.T) {
	info := buildInfo(map[string]bool{
		"credentialMgmtPreview":       true,
		"userVerificationMgmtPreview": false,
		"clientPin":                   true,
	})
	if !info.SupportsCredentialManagement() {
		t.Error("SupportsCredentialManagement() = false")
	}
	if !info.SupportsBioEnrollment() {
		t.Error("SupportsBioEnrollment() = false, want true for present preview option")
	}
	if info.HasBioEnrollments() {
		t.Error("HasBioEnrollments() = true for present-and-false option")
	}
	if !info.IsUvProtected() {
		t.Error("IsUvProtected() = false with clientPin enabled")
	}
}

func TestCtapErrorClassification(t *testing.T) {
	retryable := []CtapError{ErrPinInvalid, ErrUvInvalid}
	for _, e := range retryable {
		if !e.IsRetryableUserError() {
			t.Errorf("%v should be retryable", e)
		}
	}
	terminal := []CtapError{ErrPinBlocked, ErrPinAuthBlocked, ErrUvBlocked, ErrNotAllowed, ErrPinRequired}
	for _, e := range terminal {
		if e.IsRetryableUserError() {
			t.Errorf("%v should not be retryable", e)
		}
	}
}
