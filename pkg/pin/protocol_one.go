package pin

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/jo-bitsch/libwebauthn/pkg/ctap2"
)

// protocolOne is PIN/UV auth protocol 1: the raw SHA-256 of the ECDH shared
// point serves as both the AES-256-CBC key (zero IV) and the HMAC key.
type protocolOne struct{}

func (p *protocolOne) Number() uint32 { return 1 }

func (p *protocolOne) Initialize() {}

func (p *protocolOne) Encapsulate(peer *ctap2.COSEKey) ([]byte, *ctap2.COSEKey, error) {
	z, platformKey, err := ecdhSharedPoint(peer)
	if err != nil {
		return nil, nil, err
	}
	secret := sha256.Sum256(z)
	return secret[:], platformKey, nil
}

func (p *protocolOne) Encrypt(key, plaintext []byte) ([]byte, error) {
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("plaintext length %d is not block-aligned", len(plaintext))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out, nil
}

func (p *protocolOne) Decrypt(key, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not block-aligned", len(ciphertext))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

func (p *protocolOne) Authenticate(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}

func (p *protocolOne) Verify(key, msg, tag []byte) bool {
	full := p.Authenticate(key, msg)
	// Protocol 1 truncates tags to 16 bytes on the wire.
	if len(tag) == 16 {
		return hmac.Equal(full[:16], tag)
	}
	return hmac.Equal(full, tag)
}
