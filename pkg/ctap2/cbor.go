package ctap2

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// PlatformError is a platform-side failure that is not attributable to the
// authenticator or the transport.
type PlatformError string

// Platform errors.
const (
	// ErrInvalidDeviceResponse indicates the authenticator returned a payload
	// that could not be decoded. Always fatal for the request in question.
	ErrInvalidDeviceResponse PlatformError = "invalid device response"
	// ErrUnsupportedFeature indicates the authenticator advertises a
	// capability combination this library cannot serve.
	ErrUnsupportedFeature PlatformError = "unsupported feature"
)

func (e PlatformError) Error() string { return string(e) }

var (
	// encMode emits canonical CTAP2 CBOR: shortest-form integers, map keys
	// sorted ascending (integers by value, strings by length then bytes),
	// no indefinite lengths.
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CTAP2EncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("ctap2: encoder setup: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("ctap2: decoder setup: %v", err))
	}
}

// Marshal encodes v as canonical CTAP2 CBOR.
func Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CTAP2 CBOR data into v. Unknown map keys are ignored so
// that responses from newer authenticators remain usable.
func Unmarshal(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}

// CborRequest is one framed CTAP2 request: a command byte optionally
// followed by a canonical CBOR map of parameters.
type CborRequest struct {
	Command CommandCode
	// Payload is the parameter struct for the command, or nil for
	// parameterless commands such as authenticatorGetInfo.
	Payload interface{}
}

// NewCborRequest builds a parameterless request frame.
func NewCborRequest(cmd CommandCode) *CborRequest {
	return &CborRequest{Command: cmd}
}

// Encode serializes the request to its wire form: command byte followed by
// the canonical CBOR encoding of the payload, if any.
func (r *CborRequest) Encode() ([]byte, error) {
	frame := []byte{byte(r.Command)}
	if r.Payload == nil {
		return frame, nil
	}
	payload, err := Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s parameters: %w", r.Command, err)
	}
	return append(frame, payload...), nil
}

// CborResponse is one framed CTAP2 response: a status byte optionally
// followed by a CBOR body. Data is non-nil iff a body was present.
type CborResponse struct {
	Status CtapError
	Data   []byte
}

// DecodeResponseFrame splits a raw response frame into status and body.
func DecodeResponseFrame(frame []byte) (*CborResponse, error) {
	if len(frame) == 0 {
		return nil, errors.New("empty response frame")
	}
	resp := &CborResponse{Status: CtapError(frame[0])}
	if len(frame) > 1 {
		resp.Data = frame[1:]
	}
	return resp, nil
}
