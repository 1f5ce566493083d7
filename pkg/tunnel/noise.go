package tunnel

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Noise protocol names for the two caBLE handshake variants. The QR flow
// runs KNpsk0 (the phone learned the platform's identity key from the QR
// code); the known-device flow runs NKpsk0 (the platform knows the phone's
// identity key from the linking record). Both are keyed by a PSK derived
// from the pairing secret and the advertisement plaintext.
const (
	noiseProtocolKN = "Noise_KNpsk0_P256_ChaChaPoly_SHA256"
	noiseProtocolNK = "Noise_NKpsk0_P256_ChaChaPoly_SHA256"
)

const p256PointLength = 65

// symmetricState is the Noise symmetric state: chaining key, handshake
// hash and the current cipher key.
type symmetricState struct {
	ck  [32]byte
	h   [32]byte
	key []byte
	n   uint64
}

func newSymmetricState(protocolName string) *symmetricState {
	s := &symmetricState{}
	if len(protocolName) <= 32 {
		copy(s.h[:], protocolName)
	} else {
		s.h = sha256.Sum256([]byte(protocolName))
	}
	s.ck = s.h
	return s
}

func (s *symmetricState) mixHash(data []byte) {
	hash := sha256.New()
	hash.Write(s.h[:])
	hash.Write(data)
	copy(s.h[:], hash.Sum(nil))
}

// hkdfOutputs implements the Noise HKDF: extract with the chaining key as
// salt, then expand to n 32-byte outputs.
func (s *symmetricState) hkdfOutputs(ikm []byte, n int) ([][32]byte, error) {
	reader := hkdf.New(sha256.New, ikm, s.ck[:], nil)
	out := make([][32]byte, n)
	for i := range out {
		if _, err := io.ReadFull(reader, out[i][:]); err != nil {
			return nil, fmt.Errorf("noise HKDF: %w", err)
		}
	}
	return out, nil
}

func (s *symmetricState) mixKey(ikm []byte) error {
	outs, err := s.hkdfOutputs(ikm, 2)
	if err != nil {
		return err
	}
	s.ck = outs[0]
	s.key = outs[1][:]
	s.n = 0
	return nil
}

func (s *symmetricState) mixKeyAndHash(ikm []byte) error {
	outs, err := s.hkdfOutputs(ikm, 3)
	if err != nil {
		return err
	}
	s.ck = outs[0]
	s.mixHash(outs[1][:])
	s.key = outs[2][:]
	s.n = 0
	return nil
}

func (s *symmetricState) nonce() []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.LittleEndian.PutUint64(nonce[4:], s.n)
	s.n++
	return nonce
}

func (s *symmetricState) encryptAndHash(plaintext []byte) ([]byte, error) {
	if s.key == nil {
		s.mixHash(plaintext)
		return plaintext, nil
	}
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return nil, err
	}
	ciphertext := aead.Seal(nil, s.nonce(), plaintext, s.h[:])
	s.mixHash(ciphertext)
	return ciphertext, nil
}

func (s *symmetricState) decryptAndHash(ciphertext []byte) ([]byte, error) {
	if s.key == nil {
		s.mixHash(ciphertext)
		return ciphertext, nil
	}
	aead, err := chacha20poly1305.New(s.key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, s.nonce(), ciphertext, s.h[:])
	if err != nil {
		return nil, fmt.Errorf("noise handshake decryption: %w", err)
	}
	s.mixHash(ciphertext)
	return plaintext, nil
}

// split derives the two traffic keys. The initiator writes with the first
// and reads with the second.
func (s *symmetricState) split() ([]byte, []byte, error) {
	outs, err := s.hkdfOutputs(nil, 2)
	if err != nil {
		return nil, nil, err
	}
	return outs[0][:], outs[1][:], nil
}

// handshakeConfig parameterizes the initiator handshake.
type handshakeConfig struct {
	// pattern is noiseProtocolKN or noiseProtocolNK.
	pattern string
	// psk keys the psk0 token.
	psk [32]byte
	// localStatic is the platform identity key; required for KN.
	localStatic *ecdh.PrivateKey
	// remoteStatic is the authenticator identity key; required for NK.
	remoteStatic *ecdh.PublicKey
	// prologue binds handshake context (the decrypted advert plaintext).
	prologue []byte
}

// handshakeResult is the outcome of a completed handshake.
type handshakeResult struct {
	crypter *Crypter
	// responderPayload is the plaintext the responder attached to its
	// handshake message: the post-handshake CBOR carrying the initial
	// GetInfo response and an optional linking blob.
	responderPayload []byte
}

// initiatorHandshake runs the platform side of the Noise handshake over
// the given message transport.
func initiatorHandshake(cfg handshakeConfig, write func([]byte) error, read func() ([]byte, error)) (*handshakeResult, error) {
	state := newSymmetricState(cfg.pattern)
	state.mixHash(cfg.prologue)

	// Pre-message static keys.
	switch cfg.pattern {
	case noiseProtocolKN:
		if cfg.localStatic == nil {
			return nil, fmt.Errorf("KN handshake requires a local identity key")
		}
		state.mixHash(cfg.localStatic.PublicKey().Bytes())
	case noiseProtocolNK:
		if cfg.remoteStatic == nil {
			return nil, fmt.Errorf("NK handshake requires the peer identity key")
		}
		state.mixHash(cfg.remoteStatic.Bytes())
	default:
		return nil, fmt.Errorf("unsupported noise pattern %q", cfg.pattern)
	}

	// Message 1: psk, e (KN) or psk, e, es (NK).
	if err := state.mixKeyAndHash(cfg.psk[:]); err != nil {
		return nil, err
	}
	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ephemeral key: %w", err)
	}
	ePub := ephemeral.PublicKey().Bytes()
	state.mixHash(ePub)
	if err := state.mixKey(ePub); err != nil {
		return nil, err
	}
	if cfg.pattern == noiseProtocolNK {
		es, err := ephemeral.ECDH(cfg.remoteStatic)
		if err != nil {
			return nil, fmt.Errorf("es: %w", err)
		}
		if err := state.mixKey(es); err != nil {
			return nil, err
		}
	}
	payload, err := state.encryptAndHash(nil)
	if err != nil {
		return nil, err
	}
	if err := write(append(append([]byte{}, ePub...), payload...)); err != nil {
		return nil, fmt.Errorf("sending handshake message: %w", err)
	}

	// Message 2: e, ee, se (KN) or e, ee (NK).
	msg, err := read()
	if err != nil {
		return nil, fmt.Errorf("reading handshake response: %w", err)
	}
	if len(msg) < p256PointLength {
		return nil, fmt.Errorf("handshake response too short: %d bytes", len(msg))
	}
	rePub, err := ecdh.P256().NewPublicKey(msg[:p256PointLength])
	if err != nil {
		return nil, fmt.Errorf("invalid responder ephemeral key: %w", err)
	}
	state.mixHash(msg[:p256PointLength])
	if err := state.mixKey(msg[:p256PointLength]); err != nil {
		return nil, err
	}
	ee, err := ephemeral.ECDH(rePub)
	if err != nil {
		return nil, fmt.Errorf("ee: %w", err)
	}
	if err := state.mixKey(ee); err != nil {
		return nil, err
	}
	if cfg.pattern == noiseProtocolKN {
		se, err := cfg.localStatic.ECDH(rePub)
		if err != nil {
			return nil, fmt.Errorf("se: %w", err)
		}
		if err := state.mixKey(se); err != nil {
			return nil, err
		}
	}
	responderPayload, err := state.decryptAndHash(msg[p256PointLength:])
	if err != nil {
		return nil, err
	}

	writeKey, readKey, err := state.split()
	if err != nil {
		return nil, err
	}
	return &handshakeResult{
		crypter:          NewCrypter(writeKey, readKey),
		responderPayload: responderPayload,
	}, nil
}
