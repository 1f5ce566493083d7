package webauthn

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/jo-bitsch/libwebauthn/pkg/ctap2"
	"github.com/jo-bitsch/libwebauthn/pkg/pin"
	"github.com/jo-bitsch/libwebauthn/pkg/transport"
)

// Client runs WebAuthn operations over one authenticator channel. It owns
// the channel's authenticator-info cache and the per-request UV state;
// nothing persists across requests except the cache.
type Client struct {
	ch    transport.Channel
	proto *ctap2.Client

	mu   sync.Mutex
	info *ctap2.GetInfoResponse
}

// NewClient wraps a channel.
func NewClient(ch transport.Channel) *Client {
	return &Client{ch: ch, proto: ctap2.NewClient(ch)}
}

// Protocol exposes the underlying CTAP2 protocol client.
func (c *Client) Protocol() *ctap2.Client { return c.proto }

// Channel exposes the underlying transport channel.
func (c *Client) Channel() transport.Channel { return c.ch }

// GetInfo returns the authenticator info, reading it from the device on
// first use. The cache lock is never held across I/O.
func (c *Client) GetInfo(ctx context.Context) (*ctap2.GetInfoResponse, error) {
	c.mu.Lock()
	cached := c.info
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	return c.RefreshInfo(ctx)
}

// RefreshInfo re-reads authenticator info, replacing the cache. Call after
// operations that mutate it, such as setMinPINLength.
func (c *Client) RefreshInfo(ctx context.Context) (*ctap2.GetInfoResponse, error) {
	info, err := c.proto.GetInfo(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
	return info, nil
}

// MakeCredential authenticates and issues an authenticatorMakeCredential
// request.
func (c *Client) MakeCredential(ctx context.Context, req *ctap2.MakeCredentialRequest) (*ctap2.MakeCredentialResponse, error) {
	if err := c.authenticate(ctx, req); err != nil {
		return nil, err
	}
	c.ch.UxBus().Publish(transport.PresenceRequired{})
	return c.proto.MakeCredential(ctx, req)
}

// GetAssertion authenticates and issues an authenticatorGetAssertion
// request, following up with GetNextAssertion until all matching
// credentials are collected.
func (c *Client) GetAssertion(ctx context.Context, req *ctap2.GetAssertionRequest) ([]ctap2.GetAssertionResponse, error) {
	if err := c.authenticate(ctx, req); err != nil {
		return nil, err
	}
	c.ch.UxBus().Publish(transport.PresenceRequired{})
	first, err := c.proto.GetAssertion(ctx, req)
	if err != nil {
		return nil, err
	}
	assertions := []ctap2.GetAssertionResponse{*first}
	if first.NumberOfCredentials != nil {
		for count := *first.NumberOfCredentials; uint32(len(assertions)) < count; {
			next, err := c.proto.GetNextAssertion(ctx)
			if err != nil {
				return assertions, err
			}
			assertions = append(assertions, *next)
		}
	}
	return assertions, nil
}

// Selection asks the authenticator to signal selection via user presence.
func (c *Client) Selection(ctx context.Context) error {
	c.ch.UxBus().Publish(transport.PresenceRequired{})
	return c.proto.Selection(ctx)
}

// SetPin sets the initial PIN on an authenticator that has none.
func (c *Client) SetPin(ctx context.Context, newPin string) error {
	info, err := c.GetInfo(ctx)
	if err != nil {
		return err
	}
	var minLen uint32
	if info.MinPinLength != nil {
		minLen = *info.MinPinLength
	}
	if err := pin.ValidatePin(newPin, minLen); err != nil {
		return err
	}

	proto, err := selectProtocol(info)
	if err != nil {
		return err
	}
	proto.Initialize()
	shared, platformKey, err := c.keyAgreement(ctx, proto)
	if err != nil {
		return err
	}

	newPinEnc, err := proto.Encrypt(shared, pin.PadPin(newPin))
	if err != nil {
		return err
	}
	param := proto.Authenticate(shared, newPinEnc)[:16]
	_, err = c.proto.ClientPin(ctx, ctap2.NewClientPinSetPin(proto.Number(), platformKey, newPinEnc, param))
	return err
}

// ChangePin replaces the existing PIN. This is the only client-pin
// operation permitted while forcePINChange is set.
func (c *Client) ChangePin(ctx context.Context, oldPin, newPin string) error {
	info, err := c.GetInfo(ctx)
	if err != nil {
		return err
	}
	var minLen uint32
	if info.MinPinLength != nil {
		minLen = *info.MinPinLength
	}
	if err := pin.ValidatePin(newPin, minLen); err != nil {
		return err
	}

	proto, err := selectProtocol(info)
	if err != nil {
		return err
	}
	proto.Initialize()
	shared, platformKey, err := c.keyAgreement(ctx, proto)
	if err != nil {
		return err
	}

	oldHash := sha256.Sum256([]byte(oldPin))
	pinHashEnc, err := proto.Encrypt(shared, oldHash[:16])
	if err != nil {
		return err
	}
	newPinEnc, err := proto.Encrypt(shared, pin.PadPin(newPin))
	if err != nil {
		return err
	}
	msg := append(append([]byte{}, newPinEnc...), pinHashEnc...)
	param := proto.Authenticate(shared, msg)[:16]
	_, err = c.proto.ClientPin(ctx, ctap2.NewClientPinChangePin(proto.Number(), platformKey, pinHashEnc, newPinEnc, param))
	if err == nil {
		// forcePINChange may have been cleared.
		_, _ = c.RefreshInfo(ctx)
	}
	return err
}
