package ctap2

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "ctap2")

// getInfoTimeout bounds authenticatorGetInfo. A healthy authenticator
// answers GetInfo immediately; a tight bound keeps device enumeration fast.
const getInfoTimeout = 250 * time.Millisecond

// Channel is the slice of the transport contract the protocol layer needs:
// an ordered, message-framed request/response pair. Implementations must
// reject a second in-flight request and a receive without a matching send.
type Channel interface {
	CborSend(ctx context.Context, req *CborRequest) error
	CborRecv(ctx context.Context) (*CborResponse, error)
}

// Client issues CTAP2 commands over a channel, one request/response pair at
// a time.
type Client struct {
	ch Channel
}

// NewClient wraps a channel in a CTAP2 protocol client.
func NewClient(ch Channel) *Client {
	return &Client{ch: ch}
}

// roundTrip performs one send/receive exchange and classifies the status.
// The returned response always has Status == StatusOk.
func (c *Client) roundTrip(ctx context.Context, req *CborRequest) (*CborResponse, error) {
	if err := c.ch.CborSend(ctx, req); err != nil {
		return nil, err
	}
	resp, err := c.ch.CborRecv(ctx)
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusOk {
		log.WithFields(logrus.Fields{
			"command": req.Command.String(),
			"status":  resp.Status.Error(),
		}).Debug("command failed with CTAP status")
		return nil, resp.Status
	}
	return resp, nil
}

// parseBody decodes a response body into out, mapping decode failures to
// ErrInvalidDeviceResponse. The protocol layer never guesses at partial
// payloads.
func parseBody(command CommandCode, data []byte, out interface{}) error {
	if err := Unmarshal(data, out); err != nil {
		log.WithError(err).WithField("command", command.String()).
			Error("failed to parse device response")
		return ErrInvalidDeviceResponse
	}
	return nil
}

// GetInfo issues authenticatorGetInfo (0x04) with its tight fixed timeout.
func (c *Client) GetInfo(ctx context.Context) (*GetInfoResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, getInfoTimeout)
	defer cancel()

	resp, err := c.roundTrip(ctx, NewCborRequest(CmdGetInfo))
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, ErrInvalidDeviceResponse
	}
	var info GetInfoResponse
	if err := parseBody(CmdGetInfo, resp.Data, &info); err != nil {
		return nil, err
	}
	log.Debug("GetInfo successful")
	return &info, nil
}

// MakeCredential issues authenticatorMakeCredential (0x01).
func (c *Client) MakeCredential(ctx context.Context, req *MakeCredentialRequest) (*MakeCredentialResponse, error) {
	resp, err := c.roundTrip(ctx, &CborRequest{Command: CmdMakeCredential, Payload: req})
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, ErrInvalidDeviceResponse
	}
	var out MakeCredentialResponse
	if err := parseBody(CmdMakeCredential, resp.Data, &out); err != nil {
		return nil, err
	}
	log.Debug("MakeCredential successful")
	return &out, nil
}

// GetAssertion issues authenticatorGetAssertion (0x02).
func (c *Client) GetAssertion(ctx context.Context, req *GetAssertionRequest) (*GetAssertionResponse, error) {
	resp, err := c.roundTrip(ctx, &CborRequest{Command: CmdGetAssertion, Payload: req})
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, ErrInvalidDeviceResponse
	}
	var out GetAssertionResponse
	if err := parseBody(CmdGetAssertion, resp.Data, &out); err != nil {
		return nil, err
	}
	log.Debug("GetAssertion successful")
	return &out, nil
}

// GetNextAssertion issues authenticatorGetNextAssertion (0x08), retrieving
// the next credential after a GetAssertion reporting multiple matches.
func (c *Client) GetNextAssertion(ctx context.Context) (*GetAssertionResponse, error) {
	resp, err := c.roundTrip(ctx, NewCborRequest(CmdGetNextAssertion))
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, ErrInvalidDeviceResponse
	}
	var out GetAssertionResponse
	if err := parseBody(CmdGetNextAssertion, resp.Data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Selection issues authenticatorSelection (0x0B). A successful response
// carries no body.
func (c *Client) Selection(ctx context.Context) error {
	_, err := c.roundTrip(ctx, NewCborRequest(CmdSelection))
	return err
}

// Reset issues authenticatorReset (0x07), wiping the authenticator.
func (c *Client) Reset(ctx context.Context) error {
	_, err := c.roundTrip(ctx, NewCborRequest(CmdReset))
	return err
}

// ClientPin issues authenticatorClientPIN (0x06).
//
// Some authenticators omit the body entirely on subcommands with an all-
// optional response (instead of sending an empty map); those decode to the
// zero-value response rather than failing.
func (c *Client) ClientPin(ctx context.Context, req *ClientPinRequest) (*ClientPinResponse, error) {
	resp, err := c.roundTrip(ctx, &CborRequest{Command: CmdClientPin, Payload: req})
	if err != nil {
		return nil, err
	}
	var out ClientPinResponse
	if resp.Data == nil {
		return &out, nil
	}
	if err := parseBody(CmdClientPin, resp.Data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BioEnrollment issues authenticatorBioEnrollment (0x09), or its preview
// alias (0x40) when the request was downgraded. Absent bodies decode to the
// zero-value response, as with ClientPin.
func (c *Client) BioEnrollment(ctx context.Context, req *BioEnrollmentRequest) (*BioEnrollmentResponse, error) {
	cmd := CmdBioEnrollment
	if req.UsePreview {
		cmd = CmdBioEnrollmentPreview
	}
	resp, err := c.roundTrip(ctx, &CborRequest{Command: cmd, Payload: req})
	if err != nil {
		return nil, err
	}
	var out BioEnrollmentResponse
	if resp.Data == nil {
		return &out, nil
	}
	if err := parseBody(cmd, resp.Data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CredentialManagement issues authenticatorCredentialManagement (0x0A), or
// its preview alias (0x41) when the request was downgraded. Absent bodies
// decode to the zero-value response, as with ClientPin.
func (c *Client) CredentialManagement(ctx context.Context, req *CredentialManagementRequest) (*CredentialManagementResponse, error) {
	cmd := CmdCredentialManagement
	if req.UsePreview {
		cmd = CmdCredentialManagementPreview
	}
	resp, err := c.roundTrip(ctx, &CborRequest{Command: cmd, Payload: req})
	if err != nil {
		return nil, err
	}
	var out CredentialManagementResponse
	if resp.Data == nil {
		return &out, nil
	}
	if err := parseBody(cmd, resp.Data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthenticatorConfig issues authenticatorConfig (0x0D). A successful
// response carries no body.
func (c *Client) AuthenticatorConfig(ctx context.Context, req *AuthenticatorConfigRequest) error {
	_, err := c.roundTrip(ctx, &CborRequest{Command: CmdAuthenticatorConfig, Payload: req})
	if err != nil {
		log.WithError(err).Warn("authenticator config request failed")
	}
	return err
}
