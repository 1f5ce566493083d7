package pin

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/jo-bitsch/libwebauthn/pkg/ctap2"
)

// protocolTwo is PIN/UV auth protocol 2: HKDF splits the ECDH shared point
// into distinct HMAC and AES keys, and encryption uses a random IV.
type protocolTwo struct{}

const (
	p2HmacInfo = "CTAP2 HMAC key"
	p2AesInfo  = "CTAP2 AES key"
)

func (p *protocolTwo) Number() uint32 { return 2 }

func (p *protocolTwo) Initialize() {}

func (p *protocolTwo) Encapsulate(peer *ctap2.COSEKey) ([]byte, *ctap2.COSEKey, error) {
	z, platformKey, err := ecdhSharedPoint(peer)
	if err != nil {
		return nil, nil, err
	}
	secret, err := p.kdf(z)
	if err != nil {
		return nil, nil, err
	}
	return secret, platformKey, nil
}

// kdf derives the 64-byte shared secret: 32 bytes of HMAC key followed by
// 32 bytes of AES key, each via HKDF-SHA256 with a zero salt.
func (p *protocolTwo) kdf(z []byte) ([]byte, error) {
	salt := make([]byte, 32)
	secret := make([]byte, 64)
	if _, err := io.ReadFull(hkdf.New(sha256.New, z, salt, []byte(p2HmacInfo)), secret[:32]); err != nil {
		return nil, fmt.Errorf("deriving HMAC key: %w", err)
	}
	if _, err := io.ReadFull(hkdf.New(sha256.New, z, salt, []byte(p2AesInfo)), secret[32:]); err != nil {
		return nil, fmt.Errorf("deriving AES key: %w", err)
	}
	return secret, nil
}

func (p *protocolTwo) hmacKey(key []byte) []byte {
	if len(key) >= 64 {
		return key[:32]
	}
	return key
}

func (p *protocolTwo) aesKey(key []byte) []byte {
	if len(key) >= 64 {
		return key[32:64]
	}
	return key
}

func (p *protocolTwo) Encrypt(key, plaintext []byte) ([]byte, error) {
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("plaintext length %d is not block-aligned", len(plaintext))
	}
	block, err := aes.NewCipher(p.aesKey(key))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	out := make([]byte, aes.BlockSize+len(plaintext))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generating IV: %w", err)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], plaintext)
	return out, nil
}

func (p *protocolTwo) Decrypt(key, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 2*aes.BlockSize || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is invalid", len(ciphertext))
	}
	block, err := aes.NewCipher(p.aesKey(key))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	iv, body := ciphertext[:aes.BlockSize], ciphertext[aes.BlockSize:]
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	return out, nil
}

func (p *protocolTwo) Authenticate(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, p.hmacKey(key))
	mac.Write(msg)
	return mac.Sum(nil)
}

func (p *protocolTwo) Verify(key, msg, tag []byte) bool {
	return hmac.Equal(p.Authenticate(key, msg), tag)
}
