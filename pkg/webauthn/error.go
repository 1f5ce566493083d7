// Package webauthn drives complete WebAuthn operations against one
// authenticator channel: it negotiates user verification, obtains PIN/UV
// auth tokens, authenticates requests and issues them through the CTAP2
// protocol layer.
package webauthn

import (
	"context"
	"errors"

	"github.com/jo-bitsch/libwebauthn/pkg/ctap2"
	"github.com/jo-bitsch/libwebauthn/pkg/pin"
	"github.com/jo-bitsch/libwebauthn/pkg/transport"
)

// The error surface of this library is a closed set: CTAP status codes
// from the authenticator, transport failures, platform-side failures, PIN
// handling failures, and context cancellation.
type (
	CtapError      = ctap2.CtapError
	TransportError = transport.TransportError
	PlatformError  = ctap2.PlatformError
	PinError       = pin.PinError
)

// AsCtapError extracts an authenticator status code from an error chain.
func AsCtapError(err error) (CtapError, bool) {
	var ce CtapError
	if errors.As(err, &ce) {
		return ce, true
	}
	return 0, false
}

// IsCancelled reports whether the error stems from caller cancellation.
// The authenticator may nevertheless have completed the operation; callers
// must treat cancelled requests as having unknown effect.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsTimeout reports whether the error is a caller-timeout expiry.
func IsTimeout(err error) bool {
	return errors.Is(err, transport.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
