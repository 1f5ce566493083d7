// Package management exposes the authenticator management surface:
// configuration, credential management and bio enrollment. Each operation
// is a thin wrapper that authenticates the request through the UV
// orchestrator and dispatches it through the CTAP2 protocol layer.
package management

import (
	"context"
	"fmt"

	"github.com/jo-bitsch/libwebauthn/pkg/ctap2"
	"github.com/jo-bitsch/libwebauthn/pkg/webauthn"
)

// Operation is a management operation that may be offered to the user.
type Operation int

const (
	OpToggleAlwaysUv Operation = iota
	OpEnableForceChangePin
	OpDisableForceChangePin
	OpSetMinPinLength
	OpSetMinPinLengthRPIDs
	OpEnableEnterpriseAttestation
)

func (o Operation) String() string {
	switch o {
	case OpToggleAlwaysUv:
		return "toggle alwaysUv"
	case OpEnableForceChangePin:
		return "enable force change PIN"
	case OpDisableForceChangePin:
		return "disable force change PIN"
	case OpSetMinPinLength:
		return "set minimum PIN length"
	case OpSetMinPinLengthRPIDs:
		return "set minimum PIN length RP IDs"
	case OpEnableEnterpriseAttestation:
		return "enable enterprise attestation"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// SupportedOperations derives the configuration operations this
// authenticator offers from its option map. Callers use it to build menus.
func SupportedOperations(info *ctap2.GetInfoResponse) []Operation {
	var ops []Operation
	if info.OptionEnabled("authnrCfg") && info.OptionPresent("alwaysUv") {
		ops = append(ops, OpToggleAlwaysUv)
	}
	if info.OptionEnabled("authnrCfg") && info.OptionPresent("setMinPINLength") {
		if info.ForcePinChange != nil && *info.ForcePinChange {
			ops = append(ops, OpDisableForceChangePin)
		} else {
			ops = append(ops, OpEnableForceChangePin)
		}
		ops = append(ops, OpSetMinPinLength, OpSetMinPinLengthRPIDs)
	}
	if info.OptionPresent("ep") {
		ops = append(ops, OpEnableEnterpriseAttestation)
	}
	return ops
}

// Config runs authenticatorConfig operations.
type Config struct {
	client *webauthn.Client
}

// NewConfig wraps a webauthn client.
func NewConfig(client *webauthn.Client) *Config {
	return &Config{client: client}
}

// do authenticates and dispatches one config request, then refreshes the
// cached authenticator info, which these operations mutate.
func (c *Config) do(ctx context.Context, req *ctap2.AuthenticatorConfigRequest) error {
	if err := c.client.Authenticate(ctx, req); err != nil {
		return err
	}
	if err := c.client.Protocol().AuthenticatorConfig(ctx, req); err != nil {
		return err
	}
	_, err := c.client.RefreshInfo(ctx)
	return err
}

// ToggleAlwaysUv flips the alwaysUv switch.
func (c *Config) ToggleAlwaysUv(ctx context.Context) error {
	return c.do(ctx, ctap2.NewToggleAlwaysUv())
}

// SetMinPinLength raises the minimum PIN length.
func (c *Config) SetMinPinLength(ctx context.Context, length uint32) error {
	return c.do(ctx, ctap2.NewSetMinPinLength(length))
}

// SetMinPinLengthRPIDs sets the RPs allowed to read the minimum PIN length
// via the minPinLength extension.
func (c *Config) SetMinPinLengthRPIDs(ctx context.Context, rpIDs []string) error {
	return c.do(ctx, ctap2.NewSetMinPinLengthRPIDs(rpIDs))
}

// ForceChangePin toggles the forceChangePin flag.
func (c *Config) ForceChangePin(ctx context.Context, force bool) error {
	return c.do(ctx, ctap2.NewForceChangePin(force))
}

// EnableEnterpriseAttestation switches enterprise attestation on.
func (c *Config) EnableEnterpriseAttestation(ctx context.Context) error {
	return c.do(ctx, ctap2.NewEnableEnterpriseAttestation())
}
