package tunnel

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Crypter encrypts the post-handshake tunnel traffic. Nonces are implicit
// little-endian sequence numbers, one counter per direction, so both ends
// must process messages strictly in order.
type Crypter struct {
	writeKey []byte
	readKey  []byte
	writeSeq uint64
	readSeq  uint64
}

// NewCrypter builds a crypter from the two traffic keys produced by the
// handshake split.
func NewCrypter(writeKey, readKey []byte) *Crypter {
	return &Crypter{writeKey: writeKey, readKey: readKey}
}

func seqNonce(seq uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.LittleEndian.PutUint64(nonce[:8], seq)
	return nonce
}

// Encrypt seals one outgoing message.
func (c *Crypter) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(c.writeKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	ciphertext := aead.Seal(nil, seqNonce(c.writeSeq), plaintext, nil)
	c.writeSeq++
	return ciphertext, nil
}

// Decrypt opens one incoming message.
func (c *Crypter) Decrypt(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(c.readKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, seqNonce(c.readSeq), ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("tunnel decryption failed: %w", err)
	}
	c.readSeq++
	return plaintext, nil
}
