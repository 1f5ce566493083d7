package ctap2

import "fmt"

// CommandCode is a CTAP2 authenticator command code.
type CommandCode byte

// CTAP2 command codes.
const (
	CmdMakeCredential              CommandCode = 0x01
	CmdGetAssertion                CommandCode = 0x02
	CmdGetInfo                     CommandCode = 0x04
	CmdClientPin                   CommandCode = 0x06
	CmdReset                       CommandCode = 0x07
	CmdGetNextAssertion            CommandCode = 0x08
	CmdBioEnrollment               CommandCode = 0x09
	CmdCredentialManagement        CommandCode = 0x0A
	CmdSelection                   CommandCode = 0x0B
	CmdLargeBlobs                  CommandCode = 0x0C
	CmdAuthenticatorConfig         CommandCode = 0x0D
	CmdBioEnrollmentPreview        CommandCode = 0x40
	CmdCredentialManagementPreview CommandCode = 0x41
)

// String returns the official command name, e.g. "authenticatorGetInfo".
func (c CommandCode) String() string {
	switch c {
	case CmdMakeCredential:
		return "authenticatorMakeCredential"
	case CmdGetAssertion:
		return "authenticatorGetAssertion"
	case CmdGetInfo:
		return "authenticatorGetInfo"
	case CmdClientPin:
		return "authenticatorClientPIN"
	case CmdReset:
		return "authenticatorReset"
	case CmdGetNextAssertion:
		return "authenticatorGetNextAssertion"
	case CmdBioEnrollment:
		return "authenticatorBioEnrollment"
	case CmdCredentialManagement:
		return "authenticatorCredentialManagement"
	case CmdSelection:
		return "authenticatorSelection"
	case CmdLargeBlobs:
		return "authenticatorLargeBlobs"
	case CmdAuthenticatorConfig:
		return "authenticatorConfig"
	case CmdBioEnrollmentPreview:
		return "authenticatorBioEnrollmentPreview"
	case CmdCredentialManagementPreview:
		return "authenticatorCredentialManagementPreview"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(c))
	}
}
