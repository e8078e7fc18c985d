// Package envelope implements the encrypted wire format of the attested
// channel: a JSON triple {nonce, public_key, data} of hex strings, sealed
// with AES-256-GCM under an ECDH-derived session key.
//
// Nonce convention: the wire carries 32 random bytes but only the first 12
// are the AEAD IV. The truncation is a compatibility requirement of the peer
// implementation's nonce handling and must be reproduced exactly; the unused
// 20 bytes are transmitted but cryptographically inert.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"

	"go.uber.org/zap"

	"tee-channel/keys"
	"tee-channel/shared"
)

// WireNonceLen is the nonce length on the wire; GCMNonceLen is the portion
// used as the AEAD IV.
const (
	WireNonceLen = 32
	GCMNonceLen  = 12
)

// KeyMode selects how often a fresh session key is derived. The deployed
// peers re-derive from the public key carried in each message, so both modes
// interoperate; the difference is purely how much key material this side
// reuses.
type KeyMode int

const (
	// KeyPerMessage generates a fresh ephemeral pair (and thus a fresh
	// session key) for every Encrypt call. Default.
	KeyPerMessage KeyMode = iota
	// KeyPerSession reuses the pair generated at connect time for the
	// whole session.
	KeyPerSession
)

// Encrypted is the wire form of one sealed payload. Each envelope is
// single-use; nonce replay is not checked at this layer.
type Encrypted struct {
	Nonce     string `json:"nonce"`
	PublicKey string `json:"public_key"`
	Data      string `json:"data"`
}

// Codec seals and opens envelopes for one session. Not safe for concurrent
// use in KeyPerMessage mode (Encrypt replaces the held pair); callers
// needing concurrency run one codec per in-flight call.
type Codec struct {
	curve keys.CurveIdentity
	mode  KeyMode
	pair  *keys.KeyPair
	log   *zap.Logger
}

// NewCodec creates a codec bound to a curve and key mode. pair is the
// session's ephemeral pair; it may be nil in KeyPerMessage mode, where
// Encrypt generates its own.
func NewCodec(curve keys.CurveIdentity, mode KeyMode, pair *keys.KeyPair, log *zap.Logger) (*Codec, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if mode == KeyPerSession && pair == nil {
		return nil, shared.NewHandshakeError("keygen", "per-session key mode requires a key pair", nil)
	}
	return &Codec{curve: curve, mode: mode, pair: pair, log: log}, nil
}

// Encrypt seals plaintext for the peer. In KeyPerMessage mode a fresh
// ephemeral pair is generated and retained so the peer's response (sealed
// against that pair's public key) can still be opened.
func (c *Codec) Encrypt(plaintext, peerKey []byte) (*Encrypted, error) {
	pair, err := c.encryptionPair()
	if err != nil {
		return nil, err
	}

	key, err := c.deriveKey(pair, peerKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, WireNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, shared.NewHandshakeError("kdf", "nonce generation failed", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce[:GCMNonceLen], plaintext, nil)

	return &Encrypted{
		Nonce:     hex.EncodeToString(nonce),
		PublicKey: hex.EncodeToString(pair.PublicWrapped()),
		Data:      hex.EncodeToString(ciphertext),
	}, nil
}

// Decrypt opens an envelope sealed against this codec's key pair. An AEAD
// tag mismatch fails with an AuthenticationError; partial plaintext is never
// returned.
func (c *Codec) Decrypt(env *Encrypted) ([]byte, error) {
	if c.pair == nil {
		return nil, shared.NewHandshakeError("keygen", "no key pair held for decryption", nil)
	}

	nonce, err := hex.DecodeString(env.Nonce)
	if err != nil || len(nonce) < GCMNonceLen {
		return nil, shared.NewDecodeError("field", "nonce", "nonce is not valid hex of sufficient length", err)
	}
	peerKey, err := hex.DecodeString(env.PublicKey)
	if err != nil {
		return nil, shared.NewDecodeError("field", "public_key", "public key is not valid hex", err)
	}
	ciphertext, err := hex.DecodeString(env.Data)
	if err != nil {
		return nil, shared.NewDecodeError("field", "data", "ciphertext is not valid hex", err)
	}

	key, err := c.deriveKey(c.pair, peerKey)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce[:GCMNonceLen], ciphertext, nil)
	if err != nil {
		return nil, shared.NewAuthenticationError(err)
	}
	return plaintext, nil
}

// KeyPair returns the pair the codec currently holds
func (c *Codec) KeyPair() *keys.KeyPair {
	return c.pair
}

func (c *Codec) encryptionPair() (*keys.KeyPair, error) {
	if c.mode == KeyPerSession {
		return c.pair, nil
	}
	curve, err := keys.ForIdentity(c.curve)
	if err != nil {
		return nil, err
	}
	pair, err := curve.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if c.pair != nil {
		c.pair.Destroy()
	}
	c.pair = pair
	return pair, nil
}

func (c *Codec) deriveKey(pair *keys.KeyPair, peerKey []byte) ([]byte, error) {
	hs, err := keys.NewHandshake(c.curve, c.log)
	if err != nil {
		return nil, err
	}
	if err := hs.AdoptKeyPair(pair); err != nil {
		return nil, err
	}
	return hs.Establish(peerKey)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, shared.NewHandshakeError("kdf", "AES cipher initialization failed", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, shared.NewHandshakeError("kdf", "GCM initialization failed", err)
	}
	return gcm, nil
}
