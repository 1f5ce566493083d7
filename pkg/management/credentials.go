package management

import (
	"context"

	"github.com/jo-bitsch/libwebauthn/pkg/ctap2"
	"github.com/jo-bitsch/libwebauthn/pkg/webauthn"
)

// CredentialsMetadata summarizes discoverable-credential storage.
type CredentialsMetadata struct {
	ExistingCount     uint32
	RemainingCapacity uint32
}

// RelyingParty is one RP with discoverable credentials.
type RelyingParty struct {
	Rp       ctap2.PublicKeyCredentialRpEntity
	RpIDHash []byte
}

// Credential is one discoverable credential.
type Credential struct {
	User         ctap2.PublicKeyCredentialUserEntity
	CredentialID ctap2.PublicKeyCredentialDescriptor
	PublicKey    *ctap2.COSEKey
	CredProtect  *uint32
	LargeBlobKey []byte
}

// Credentials runs authenticatorCredentialManagement operations.
type Credentials struct {
	client *webauthn.Client
}

// NewCredentials wraps a webauthn client.
func NewCredentials(client *webauthn.Client) *Credentials {
	return &Credentials{client: client}
}

func (c *Credentials) do(ctx context.Context, req *ctap2.CredentialManagementRequest) (*ctap2.CredentialManagementResponse, error) {
	if err := c.client.Authenticate(ctx, req); err != nil {
		return nil, err
	}
	return c.client.Protocol().CredentialManagement(ctx, req)
}

// Metadata reads the credential storage summary.
func (c *Credentials) Metadata(ctx context.Context) (*CredentialsMetadata, error) {
	resp, err := c.do(ctx, &ctap2.CredentialManagementRequest{
		SubCommand: ctap2.CredMgmtGetCredsMetadata,
	})
	if err != nil {
		return nil, err
	}
	meta := &CredentialsMetadata{}
	if resp.ExistingResidentCredentialsCount != nil {
		meta.ExistingCount = *resp.ExistingResidentCredentialsCount
	}
	if resp.MaxPossibleRemainingResidentCredentialsCount != nil {
		meta.RemainingCapacity = *resp.MaxPossibleRemainingResidentCredentialsCount
	}
	return meta, nil
}

// RelyingParties enumerates every RP with discoverable credentials.
func (c *Credentials) RelyingParties(ctx context.Context) ([]RelyingParty, error) {
	first, err := c.do(ctx, &ctap2.CredentialManagementRequest{
		SubCommand: ctap2.CredMgmtEnumerateRPsBegin,
	})
	if err != nil {
		if ce, ok := webauthn.AsCtapError(err); ok && ce == ctap2.ErrNoCredentials {
			return nil, nil
		}
		return nil, err
	}
	total := uint32(1)
	if first.TotalRPs != nil {
		total = *first.TotalRPs
	}
	if total == 0 {
		return nil, nil
	}

	rps := []RelyingParty{rpFromResponse(first)}
	// The remaining entries ride on unauthenticated follow-up calls.
	for uint32(len(rps)) < total {
		next, err := c.client.Protocol().CredentialManagement(ctx, &ctap2.CredentialManagementRequest{
			SubCommand: ctap2.CredMgmtEnumerateRPsGetNextRP,
		})
		if err != nil {
			return rps, err
		}
		rps = append(rps, rpFromResponse(next))
	}
	return rps, nil
}

// Credentials enumerates the discoverable credentials for one RP ID hash.
func (c *Credentials) Credentials(ctx context.Context, rpIDHash []byte) ([]Credential, error) {
	first, err := c.do(ctx, &ctap2.CredentialManagementRequest{
		SubCommand:       ctap2.CredMgmtEnumerateCredentialsBegin,
		SubCommandParams: &ctap2.CredentialManagementParams{RpIDHash: rpIDHash},
	})
	if err != nil {
		if ce, ok := webauthn.AsCtapError(err); ok && ce == ctap2.ErrNoCredentials {
			return nil, nil
		}
		return nil, err
	}
	total := uint32(1)
	if first.TotalCredentials != nil {
		total = *first.TotalCredentials
	}

	creds := []Credential{credentialFromResponse(first)}
	for uint32(len(creds)) < total {
		next, err := c.client.Protocol().CredentialManagement(ctx, &ctap2.CredentialManagementRequest{
			SubCommand: ctap2.CredMgmtEnumerateCredentialsGetNextCredential,
		})
		if err != nil {
			return creds, err
		}
		creds = append(creds, credentialFromResponse(next))
	}
	return creds, nil
}

// DeleteCredential removes one discoverable credential.
func (c *Credentials) DeleteCredential(ctx context.Context, credentialID ctap2.PublicKeyCredentialDescriptor) error {
	_, err := c.do(ctx, &ctap2.CredentialManagementRequest{
		SubCommand:       ctap2.CredMgmtDeleteCredential,
		SubCommandParams: &ctap2.CredentialManagementParams{CredentialID: &credentialID},
	})
	return err
}

// UpdateUserInformation rewrites the user entity stored with a credential.
func (c *Credentials) UpdateUserInformation(ctx context.Context,
	credentialID ctap2.PublicKeyCredentialDescriptor, user ctap2.PublicKeyCredentialUserEntity) error {
	_, err := c.do(ctx, &ctap2.CredentialManagementRequest{
		SubCommand: ctap2.CredMgmtUpdateUserInformation,
		SubCommandParams: &ctap2.CredentialManagementParams{
			CredentialID: &credentialID,
			User:         &user,
		},
	})
	return err
}

func rpFromResponse(resp *ctap2.CredentialManagementResponse) RelyingParty {
	rp := RelyingParty{RpIDHash: resp.RpIDHash}
	if resp.Rp != nil {
		rp.Rp = *resp.Rp
	}
	return rp
}

func credentialFromResponse(resp *ctap2.CredentialManagementResponse) Credential {
	cred := Credential{
		PublicKey:    resp.PublicKey,
		CredProtect:  resp.CredProtect,
		LargeBlobKey: resp.LargeBlobKey,
	}
	if resp.User != nil {
		cred.User = *resp.User
	}
	if resp.CredentialID != nil {
		cred.CredentialID = *resp.CredentialID
	}
	return cred
}
