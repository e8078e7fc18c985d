package keys

import (
	"crypto/sha256"
	"io"

	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"

	"tee-channel/shared"
)

// HandshakeState tracks the handshake engine's progress
type HandshakeState int

const (
	Uninitialized HandshakeState = iota
	KeysGenerated
	SessionEstablished
)

// String implements fmt.Stringer
func (s HandshakeState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case KeysGenerated:
		return "keys_generated"
	case SessionEstablished:
		return "session_established"
	default:
		return "invalid"
	}
}

// The KDF parameters are fixed by the enclave's own derivation: HKDF-SHA256
// with an empty salt and this exact info string. Changing either breaks the
// handshake against every deployed peer.
const hkdfInfo = "encryption data"

// SessionKeyLen is the length of the derived symmetric key
const SessionKeyLen = 32

// Handshake drives one key agreement: generate an ephemeral pair, then
// derive a session key against a peer public key. Re-entering the
// keys-generated state discards all prior key material; nothing persists
// across reconnects.
type Handshake struct {
	curve Curve
	state HandshakeState
	pair  *KeyPair
	log   *zap.Logger
}

// NewHandshake creates a handshake engine bound to one curve
func NewHandshake(id CurveIdentity, log *zap.Logger) (*Handshake, error) {
	curve, err := ForIdentity(id)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handshake{
		curve: curve,
		state: Uninitialized,
		log:   log,
	}, nil
}

// State returns the current handshake state
func (h *Handshake) State() HandshakeState {
	return h.state
}

// KeyPair returns the current ephemeral pair, or nil before GenerateKeys
func (h *Handshake) KeyPair() *KeyPair {
	return h.pair
}

// GenerateKeys creates a fresh ephemeral key pair, discarding any prior pair
func (h *Handshake) GenerateKeys() error {
	if h.pair != nil {
		h.pair.Destroy()
		h.pair = nil
	}
	pair, err := h.curve.GenerateKeyPair()
	if err != nil {
		h.state = Uninitialized
		return err
	}
	h.pair = pair
	h.state = KeysGenerated
	h.log.Debug("Generated ephemeral key pair",
		zap.String("curve", h.curve.Identity().String()),
		zap.Int("public_key_bytes", len(pair.public)))
	return nil
}

// AdoptKeyPair installs an externally generated pair (per-session key mode
// reuses the pair created at connect time). Any prior pair is discarded.
func (h *Handshake) AdoptKeyPair(pair *KeyPair) error {
	if pair == nil || pair.curve != h.curve.Identity() {
		return shared.NewHandshakeError("keygen", "key pair does not match the handshake curve", nil)
	}
	if h.pair != nil && h.pair != pair {
		h.pair.Destroy()
	}
	h.pair = pair
	h.state = KeysGenerated
	return nil
}

// Establish derives the 256-bit session key against the peer's public key
// (wrapped or raw form). The peer point is validated before any derivation:
// a malformed or adversarial point must never silently produce an insecure
// secret. On success the engine transitions to SessionEstablished.
func (h *Handshake) Establish(peerKey []byte) ([]byte, error) {
	if h.state == Uninitialized {
		return nil, shared.NewHandshakeError("keygen", "no ephemeral key pair generated", nil)
	}

	peerRaw, err := ToRaw(peerKey)
	if err != nil {
		return nil, shared.NewHandshakeError("peer_key", "peer key is not a known encoding", err)
	}
	if err := h.curve.ValidatePoint(peerRaw); err != nil {
		return nil, err
	}

	secret, err := h.curve.SharedSecret(h.pair, peerRaw)
	if err != nil {
		return nil, err
	}

	key, err := DeriveSessionKey(secret)
	if err != nil {
		return nil, err
	}

	h.state = SessionEstablished
	return key, nil
}

// DeriveSessionKey expands an ECDH shared secret into the symmetric session
// key via HKDF-SHA256 with an empty salt and the protocol-constant info
// string.
func DeriveSessionKey(secret []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo))
	key := make([]byte, SessionKeyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, shared.NewHandshakeError("kdf", "HKDF expansion failed", err)
	}
	return key, nil
}
