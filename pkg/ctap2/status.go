package ctap2

import "fmt"

// CtapError is a 1-byte CTAP status code returned by the authenticator.
// The zero value is StatusOk; any non-zero value is an error.
type CtapError byte

// CTAP status codes.
const (
	StatusOk                      CtapError = 0x00
	ErrInvalidCommand             CtapError = 0x01
	ErrInvalidParameter           CtapError = 0x02
	ErrInvalidLength              CtapError = 0x03
	ErrInvalidSeq                 CtapError = 0x04
	ErrMessageTimeout             CtapError = 0x05
	ErrChannelBusy                CtapError = 0x06
	ErrLockRequired               CtapError = 0x0A
	ErrInvalidChannel             CtapError = 0x0B
	ErrCBORUnexpectedType         CtapError = 0x11
	ErrInvalidCBOR                CtapError = 0x12
	ErrMissingParameter           CtapError = 0x14
	ErrLimitExceeded              CtapError = 0x15
	ErrUnsupportedExtension       CtapError = 0x16
	ErrNotAllowed                 CtapError = 0x19
	ErrProcessing                 CtapError = 0x21
	ErrInvalidCredential          CtapError = 0x22
	ErrUserActionPending          CtapError = 0x23
	ErrOperationPending           CtapError = 0x24
	ErrNoOperations               CtapError = 0x25
	ErrUnsupportedAlgorithm       CtapError = 0x26
	ErrOperationDenied            CtapError = 0x27
	ErrKeyStoreFull               CtapError = 0x28
	ErrNoOperationPending         CtapError = 0x2A
	ErrUnsupportedOption          CtapError = 0x2B
	ErrInvalidOption              CtapError = 0x2C
	ErrKeepaliveCancel            CtapError = 0x2D
	ErrNoCredentials              CtapError = 0x2E
	ErrUserActionTimeout          CtapError = 0x2F
	ErrPinInvalid                 CtapError = 0x31
	ErrPinBlocked                 CtapError = 0x32
	ErrPinAuthBlocked             CtapError = 0x33
	ErrPinAuthInvalid             CtapError = 0x34
	ErrPinNotSet                  CtapError = 0x35
	ErrPinRequired                CtapError = 0x36
	ErrPinPolicyViolation         CtapError = 0x37
	ErrPinTokenExpired            CtapError = 0x38
	ErrRequestTooLarge            CtapError = 0x39
	ErrActionTimeout              CtapError = 0x3A
	ErrUvBlocked                  CtapError = 0x3B
	ErrUpRequired                 CtapError = 0x3C
	ErrUvInvalid                  CtapError = 0x3D
	ErrUnauthorizedPermission     CtapError = 0x3E
	ErrOther                      CtapError = 0x7F
)

var ctapErrorNames = map[CtapError]string{
	StatusOk:                  "CTAP1_ERR_SUCCESS",
	ErrInvalidCommand:         "CTAP1_ERR_INVALID_COMMAND",
	ErrInvalidParameter:       "CTAP1_ERR_INVALID_PARAMETER",
	ErrInvalidLength:          "CTAP1_ERR_INVALID_LENGTH",
	ErrInvalidSeq:             "CTAP1_ERR_INVALID_SEQ",
	ErrMessageTimeout:         "CTAP1_ERR_TIMEOUT",
	ErrChannelBusy:            "CTAP1_ERR_CHANNEL_BUSY",
	ErrLockRequired:           "CTAP1_ERR_LOCK_REQUIRED",
	ErrInvalidChannel:         "CTAP1_ERR_INVALID_CHANNEL",
	ErrCBORUnexpectedType:     "CTAP2_ERR_CBOR_UNEXPECTED_TYPE",
	ErrInvalidCBOR:            "CTAP2_ERR_INVALID_CBOR",
	ErrMissingParameter:       "CTAP2_ERR_MISSING_PARAMETER",
	ErrLimitExceeded:          "CTAP2_ERR_LIMIT_EXCEEDED",
	ErrUnsupportedExtension:   "CTAP2_ERR_UNSUPPORTED_EXTENSION",
	ErrNotAllowed:             "CTAP2_ERR_NOT_ALLOWED",
	ErrProcessing:             "CTAP2_ERR_PROCESSING",
	ErrInvalidCredential:      "CTAP2_ERR_INVALID_CREDENTIAL",
	ErrUserActionPending:      "CTAP2_ERR_USER_ACTION_PENDING",
	ErrOperationPending:       "CTAP2_ERR_OPERATION_PENDING",
	ErrNoOperations:           "CTAP2_ERR_NO_OPERATIONS",
	ErrUnsupportedAlgorithm:   "CTAP2_ERR_UNSUPPORTED_ALGORITHM",
	ErrOperationDenied:        "CTAP2_ERR_OPERATION_DENIED",
	ErrKeyStoreFull:           "CTAP2_ERR_KEY_STORE_FULL",
	ErrNoOperationPending:     "CTAP2_ERR_NO_OPERATION_PENDING",
	ErrUnsupportedOption:      "CTAP2_ERR_UNSUPPORTED_OPTION",
	ErrInvalidOption:          "CTAP2_ERR_INVALID_OPTION",
	ErrKeepaliveCancel:        "CTAP2_ERR_KEEPALIVE_CANCEL",
	ErrNoCredentials:          "CTAP2_ERR_NO_CREDENTIALS",
	ErrUserActionTimeout:      "CTAP2_ERR_USER_ACTION_TIMEOUT",
	ErrPinInvalid:             "CTAP2_ERR_PIN_INVALID",
	ErrPinBlocked:             "CTAP2_ERR_PIN_BLOCKED",
	ErrPinAuthBlocked:         "CTAP2_ERR_PIN_AUTH_BLOCKED",
	ErrPinAuthInvalid:         "CTAP2_ERR_PIN_AUTH_INVALID",
	ErrPinNotSet:              "CTAP2_ERR_PIN_NOT_SET",
	ErrPinRequired:            "CTAP2_ERR_PIN_REQUIRED",
	ErrPinPolicyViolation:     "CTAP2_ERR_PIN_POLICY_VIOLATION",
	ErrPinTokenExpired:        "CTAP2_ERR_PIN_TOKEN_EXPIRED",
	ErrRequestTooLarge:        "CTAP2_ERR_REQUEST_TOO_LARGE",
	ErrActionTimeout:          "CTAP2_ERR_ACTION_TIMEOUT",
	ErrUvBlocked:              "CTAP2_ERR_UV_BLOCKED",
	ErrUpRequired:             "CTAP2_ERR_UP_REQUIRED",
	ErrUvInvalid:              "CTAP2_ERR_UV_INVALID",
	ErrUnauthorizedPermission: "CTAP2_ERR_UNAUTHORIZED_PERMISSION",
	ErrOther:                  "CTAP1_ERR_OTHER",
}

// Error implements the error interface.
func (e CtapError) Error() string {
	if name, ok := ctapErrorNames[e]; ok {
		return fmt.Sprintf("%s (0x%02x)", name, byte(e))
	}
	return fmt.Sprintf("CTAP error 0x%02x", byte(e))
}

// IsRetryableUserError reports whether the error is a user mistake that can
// be retried within the same flow, such as a mistyped PIN or a failed
// fingerprint read. Blocked and terminal states are not retryable.
func (e CtapError) IsRetryableUserError() bool {
	switch e {
	case ErrPinInvalid, ErrUvInvalid:
		return true
	default:
		return false
	}
}
