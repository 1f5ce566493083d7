package tunnel

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
	"testing"
)

// responderHandshake runs the phone's side of the handshake for tests.
// For KN the responder knows the initiator's static key; for NK it owns
// the static key the initiator was given.
func responderHandshake(pattern string, psk [32]byte, prologue []byte,
	initiatorStatic *ecdh.PublicKey, ownStatic *ecdh.PrivateKey, payload []byte,
	read func() ([]byte, error), write func([]byte) error) (*Crypter, error) {

	state := newSymmetricState(pattern)
	state.mixHash(prologue)
	switch pattern {
	case noiseProtocolKN:
		state.mixHash(initiatorStatic.Bytes())
	case noiseProtocolNK:
		state.mixHash(ownStatic.PublicKey().Bytes())
	default:
		return nil, fmt.Errorf("unsupported pattern %q", pattern)
	}

	// Message 1.
	msg, err := read()
	if err != nil {
		return nil, err
	}
	if err := state.mixKeyAndHash(psk[:]); err != nil {
		return nil, err
	}
	rePub, err := ecdh.P256().NewPublicKey(msg[:p256PointLength])
	if err != nil {
		return nil, err
	}
	state.mixHash(msg[:p256PointLength])
	if err := state.mixKey(msg[:p256PointLength]); err != nil {
		return nil, err
	}
	if pattern == noiseProtocolNK {
		es, err := ownStatic.ECDH(rePub)
		if err != nil {
			return nil, err
		}
		if err := state.mixKey(es); err != nil {
			return nil, err
		}
	}
	if _, err := state.decryptAndHash(msg[p256PointLength:]); err != nil {
		return nil, err
	}

	// Message 2.
	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	ePub := ephemeral.PublicKey().Bytes()
	state.mixHash(ePub)
	if err := state.mixKey(ePub); err != nil {
		return nil, err
	}
	ee, err := ephemeral.ECDH(rePub)
	if err != nil {
		return nil, err
	}
	if err := state.mixKey(ee); err != nil {
		return nil, err
	}
	if pattern == noiseProtocolKN {
		se, err := ephemeral.ECDH(initiatorStatic)
		if err != nil {
			return nil, err
		}
		if err := state.mixKey(se); err != nil {
			return nil, err
		}
	}
	ciphertext, err := state.encryptAndHash(payload)
	if err != nil {
		return nil, err
	}
	if err := write(append(append([]byte{}, ePub...), ciphertext...)); err != nil {
		return nil, err
	}

	initiatorWrite, initiatorRead, err := state.split()
	if err != nil {
		return nil, err
	}
	// The responder's directions are mirrored.
	return NewCrypter(initiatorRead, initiatorWrite), nil
}

// pipePair is a synchronous in-memory message pipe.
type pipePair struct {
	in  chan []byte
	out chan []byte
}

func newPipe() (a, b *pipePair) {
	x := make(chan []byte, 8)
	y := make(chan []byte, 8)
	return &pipePair{in: x, out: y}, &pipePair{in: y, out: x}
}

func (p *pipePair) write(msg []byte) error { p.out <- msg; return nil }
func (p *pipePair) read() ([]byte, error)  { return <-p.in, nil }

func runNoiseHandshake(t *testing.T, pattern string, payload []byte) (*handshakeResult, *Crypter) {
	t.Helper()
	var psk [32]byte
	rand.Read(psk[:])
	prologue := []byte("advert plaintext")

	static, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating static key: %v", err)
	}

	initiatorSide, responderSide := newPipe()
	cfg := handshakeConfig{pattern: pattern, psk: psk, prologue: prologue}
	var initiatorStatic *ecdh.PublicKey
	var responderStatic *ecdh.PrivateKey
	if pattern == noiseProtocolKN {
		cfg.localStatic = static
		initiatorStatic = static.PublicKey()
	} else {
		responderStatic = static
		cfg.remoteStatic = static.PublicKey()
	}

	type respOut struct {
		crypter *Crypter
		err     error
	}
	respCh := make(chan respOut, 1)
	go func() {
		crypter, err := responderHandshake(pattern, psk, prologue,
			initiatorStatic, responderStatic, payload,
			responderSide.read, responderSide.write)
		respCh <- respOut{crypter, err}
	}()

	result, err := initiatorHandshake(cfg, initiatorSide.write, initiatorSide.read)
	if err != nil {
		t.Fatalf("initiator handshake failed: %v", err)
	}
	resp := <-respCh
	if resp.err != nil {
		t.Fatalf("responder handshake failed: %v", resp.err)
	}
	return result, resp.crypter
}

func TestNoiseHandshakePatterns(t *testing.T) {
	for _, pattern := range []string{noiseProtocolKN, noiseProtocolNK} {
		t.Run(pattern, func(t *testing.T) {
			payload := []byte("post-handshake payload")
			result, responder := runNoiseHandshake(t, pattern, payload)
			if !bytes.Equal(result.responderPayload, payload) {
				t.Errorf("responder payload = %q, want %q", result.responderPayload, payload)
			}

			// Traffic keys agree in both directions.
			msg := []byte("ctap frame")
			sealed, err := result.crypter.Encrypt(msg)
			if err != nil {
				t.Fatalf("Encrypt() failed: %v", err)
			}
			opened, err := responder.Decrypt(sealed)
			if err != nil {
				t.Fatalf("responder Decrypt() failed: %v", err)
			}
			if !bytes.Equal(opened, msg) {
				t.Error("initiator→responder round trip mismatch")
			}

			back, err := responder.Encrypt([]byte("reply"))
			if err != nil {
				t.Fatalf("responder Encrypt() failed: %v", err)
			}
			replied, err := result.crypter.Decrypt(back)
			if err != nil {
				t.Fatalf("Decrypt() failed: %v", err)
			}
			if !bytes.Equal(replied, []byte("reply")) {
				t.Error("responder→initiator round trip mismatch")
			}
		})
	}
}

func TestNoiseHandshakeWrongPsk(t *testing.T) {
	var psk, wrongPsk [32]byte
	rand.Read(psk[:])
	rand.Read(wrongPsk[:])
	prologue := []byte("advert plaintext")

	static, _ := ecdh.P256().GenerateKey(rand.Reader)
	initiatorSide, responderSide := newPipe()

	go func() {
		_, err := responderHandshake(noiseProtocolKN, wrongPsk, prologue,
			static.PublicKey(), nil, nil,
			responderSide.read, responderSide.write)
		if err != nil {
			// The responder rejects message 1; answer with garbage so the
			// initiator unblocks and fails in turn.
			responderSide.write(make([]byte, p256PointLength+16))
		}
	}()

	_, err := initiatorHandshake(handshakeConfig{
		pattern:     noiseProtocolKN,
		psk:         psk,
		localStatic: static,
		prologue:    prologue,
	}, initiatorSide.write, initiatorSide.read)
	if err == nil {
		t.Fatal("handshake succeeded with mismatched PSKs")
	}
}

func TestCrypterSequenceNonces(t *testing.T) {
	key1 := bytes.Repeat([]byte{0x01}, 32)
	key2 := bytes.Repeat([]byte{0x02}, 32)
	a := NewCrypter(key1, key2)
	b := NewCrypter(key2, key1)

	for i := 0; i < 3; i++ {
		msg := []byte{byte(i)}
		sealed, err := a.Encrypt(msg)
		if err != nil {
			t.Fatalf("Encrypt() failed: %v", err)
		}
		opened, err := b.Decrypt(sealed)
		if err != nil {
			t.Fatalf("Decrypt() failed at message %d: %v", i, err)
		}
		if !bytes.Equal(opened, msg) {
			t.Errorf("message %d mismatch", i)
		}
	}

	// Replaying a ciphertext must fail: the nonce has moved on.
	sealed, _ := a.Encrypt([]byte("x"))
	if _, err := b.Decrypt(sealed); err != nil {
		t.Fatalf("Decrypt() failed: %v", err)
	}
	if _, err := b.Decrypt(sealed); err == nil {
		t.Error("replayed ciphertext decrypted successfully")
	}
}
