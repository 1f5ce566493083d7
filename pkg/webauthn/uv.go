package webauthn

import (
	"context"
	"crypto/sha256"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/jo-bitsch/libwebauthn/pkg/ctap2"
	"github.com/jo-bitsch/libwebauthn/pkg/pin"
	"github.com/jo-bitsch/libwebauthn/pkg/transport"
)

var log = logrus.WithField("component", "webauthn")

// maxUvAttempts is how often built-in user verification may fail before
// the flow falls back to the PIN.
const maxUvAttempts = 2

// UserVerifiableRequest is a CTAP2 request that can carry a pinUvAuthParam.
// The concrete request types in pkg/ctap2 implement it.
type UserVerifiableRequest interface {
	// EnsureUvSet populates the legacy uv option for FIDO 2.0 devices.
	EnsureUvSet()
	// SetUvAuth attaches the computed pinUvAuthParam and protocol number,
	// clearing any uv option (tokens and uv are mutually exclusive).
	SetUvAuth(protocol uint32, param []byte)
	// UvAuthMessage is the message the token MAC covers.
	UvAuthMessage() []byte
	// Permissions is the token permission set this request needs.
	Permissions() ctap2.AuthTokenPermission
	// PermissionsRPID is the RP the token is scoped to, or "".
	PermissionsRPID() string
	// CanUseUv reports whether built-in UV may satisfy this request.
	CanUseUv(info *ctap2.GetInfoResponse) bool
	// HandleLegacyPreview downgrades to a preview command where needed.
	HandleLegacyPreview(info *ctap2.GetInfoResponse)
}

// Authenticate negotiates the UV method for req, obtains a token if one is
// required and attaches the computed pinUvAuthParam. The token lives only
// for this call and is never persisted.
func (c *Client) Authenticate(ctx context.Context, req UserVerifiableRequest) error {
	return c.authenticate(ctx, req)
}

func (c *Client) authenticate(ctx context.Context, req UserVerifiableRequest) error {
	info, err := c.GetInfo(ctx)
	if err != nil {
		return err
	}
	req.HandleLegacyPreview(info)

	uvBlocked := false
	reason := pinReason(info)
	for {
		op, err := info.UvOperation(uvBlocked)
		if err != nil {
			return err
		}
		if op == ctap2.UvOperationGetPinUvAuthTokenUsingUvWithPermissions && !req.CanUseUv(info) {
			// Nothing enrolled to verify against; use the PIN instead.
			op, err = info.UvOperation(true)
			if err != nil {
				return err
			}
		}
		if op == ctap2.UvOperationNone {
			if info.OptionEnabled("uv") && !uvBlocked {
				// Deprecated FIDO 2.0 behaviour: populate the uv flag.
				req.EnsureUvSet()
			}
			return nil
		}

		proto, err := selectProtocol(info)
		if err != nil {
			return err
		}
		proto.Initialize()

		sharedSecret, platformKey, err := c.keyAgreement(ctx, proto)
		if err != nil {
			return err
		}

		var tokenEnc []byte
		switch op {
		case ctap2.UvOperationGetPinUvAuthTokenUsingUvWithPermissions:
			tokenEnc, err = c.acquireUvToken(ctx, proto, platformKey, req)
			if err != nil {
				if errors.Is(err, ctap2.ErrUvBlocked) {
					log.Info("built-in UV blocked, falling back to PIN")
					uvBlocked = true
					reason = pin.ReasonFallbackFromUV
					continue
				}
				return err
			}
		default:
			tokenEnc, err = c.acquirePinToken(ctx, op, proto, sharedSecret, platformKey, req, reason, info)
			if err != nil {
				return err
			}
		}

		token, err := proto.Decrypt(sharedSecret, tokenEnc)
		if err != nil {
			return err
		}
		param := proto.Authenticate(token, req.UvAuthMessage())[:16]
		req.SetUvAuth(proto.Number(), param)
		return nil
	}
}

// selectProtocol picks a PIN/UV auth protocol from the authenticator's
// advertised list. FIDO 2.0 devices omit the list and implicitly speak
// protocol 1.
func selectProtocol(info *ctap2.GetInfoResponse) (pin.Protocol, error) {
	if len(info.PinAuthProtos) == 0 {
		return pin.New(1)
	}
	return pin.Select(info.PinAuthProtos)
}

// pinReason classifies why a PIN prompt would be shown for this
// authenticator, before any UV fallback occurred.
func pinReason(info *ctap2.GetInfoResponse) pin.RequestReason {
	if info.OptionEnabled("alwaysUv") {
		return pin.ReasonAuthenticatorPolicy
	}
	return pin.ReasonRelyingPartyRequest
}

// keyAgreement fetches the authenticator's key-agreement key and runs the
// protocol's encapsulation, yielding the shared secret and the platform
// public key.
func (c *Client) keyAgreement(ctx context.Context, proto pin.Protocol) ([]byte, *ctap2.COSEKey, error) {
	resp, err := c.proto.ClientPin(ctx, ctap2.NewClientPinGetKeyAgreement(proto.Number()))
	if err != nil {
		return nil, nil, err
	}
	if resp.KeyAgreement == nil {
		return nil, nil, ctap2.ErrInvalidDeviceResponse
	}
	return sharedAndPlatform(proto, resp.KeyAgreement)
}

func sharedAndPlatform(proto pin.Protocol, peer *ctap2.COSEKey) ([]byte, *ctap2.COSEKey, error) {
	shared, platformKey, err := proto.Encapsulate(peer)
	if err != nil {
		log.WithError(err).Error("key agreement failed")
		return nil, nil, err
	}
	return shared, platformKey, nil
}

// acquireUvToken obtains a token via built-in user verification
// (subcommand 0x06), retrying user errors up to maxUvAttempts before
// reporting ErrUvBlocked to trigger the PIN fallback.
func (c *Client) acquireUvToken(ctx context.Context, proto pin.Protocol,
	platformKey *ctap2.COSEKey, req UserVerifiableRequest) ([]byte, error) {
	bus := c.ch.UxBus()
	for attempt := 1; ; attempt++ {
		resp, err := c.proto.ClientPin(ctx, ctap2.NewClientPinTokenUsingUvWithPermissions(
			proto.Number(), platformKey, req.Permissions(), req.PermissionsRPID()))
		if err == nil {
			if resp.PinUvAuthToken == nil {
				return nil, ctap2.ErrInvalidDeviceResponse
			}
			return resp.PinUvAuthToken, nil
		}

		ce, ok := AsCtapError(err)
		if !ok || !ce.IsRetryableUserError() {
			return nil, err
		}
		attemptsLeft := c.uvRetries(ctx)
		bus.Publish(transport.UvRetry{AttemptsLeft: attemptsLeft})
		if attempt >= maxUvAttempts {
			return nil, ctap2.ErrUvBlocked
		}
	}
}

// acquirePinToken prompts for the PIN over the UX bus and obtains a token
// via subcommand 0x05 (legacy) or 0x09 (with permissions), re-prompting on
// retryable PIN errors.
func (c *Client) acquirePinToken(ctx context.Context, op ctap2.UserVerificationOperation,
	proto pin.Protocol, sharedSecret []byte, platformKey *ctap2.COSEKey,
	req UserVerifiableRequest, reason pin.RequestReason, info *ctap2.GetInfoResponse) ([]byte, error) {

	if info.ForcePinChange != nil && *info.ForcePinChange {
		// Only a PIN change may proceed until the user rotates the PIN.
		return nil, pin.ErrPolicyViolation
	}

	bus := c.ch.UxBus()
	var attemptsLeft *uint32
	for {
		prompt := transport.NewPinRequired(reason, attemptsLeft)
		bus.Publish(prompt)
		pinValue, err := prompt.Await(ctx)
		if err != nil {
			return nil, err
		}
		var minLen uint32
		if info.MinPinLength != nil {
			minLen = *info.MinPinLength
		}
		if err := pin.ValidatePin(pinValue, minLen); err != nil {
			return nil, err
		}

		pinHash := sha256.Sum256([]byte(pinValue))
		pinHashEnc, err := proto.Encrypt(sharedSecret, pinHash[:16])
		if err != nil {
			return nil, err
		}

		var cpReq *ctap2.ClientPinRequest
		if op == ctap2.UvOperationGetPinUvAuthTokenUsingPinWithPermissions {
			cpReq = ctap2.NewClientPinTokenUsingPinWithPermissions(
				proto.Number(), platformKey, pinHashEnc, req.Permissions(), req.PermissionsRPID())
		} else {
			cpReq = ctap2.NewClientPinGetPinToken(proto.Number(), platformKey, pinHashEnc)
		}

		resp, err := c.proto.ClientPin(ctx, cpReq)
		if err == nil {
			if resp.PinUvAuthToken == nil {
				return nil, ctap2.ErrInvalidDeviceResponse
			}
			return resp.PinUvAuthToken, nil
		}

		ce, ok := AsCtapError(err)
		if !ok || !ce.IsRetryableUserError() {
			return nil, err
		}
		log.WithField("status", ce.Error()).Info("PIN rejected, prompting again")
		attemptsLeft = c.pinRetries(ctx)
	}
}

// pinRetries reads the remaining PIN attempt count, best effort.
func (c *Client) pinRetries(ctx context.Context) *uint32 {
	resp, err := c.proto.ClientPin(ctx, ctap2.NewClientPinGetPinRetries())
	if err != nil {
		return nil
	}
	return resp.PinRetries
}

// uvRetries reads the remaining built-in UV attempt count, best effort.
func (c *Client) uvRetries(ctx context.Context) *uint32 {
	resp, err := c.proto.ClientPin(ctx, ctap2.NewClientPinGetUvRetries())
	if err != nil {
		return nil
	}
	return resp.UvRetries
}
