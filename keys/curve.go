// Package keys implements the dual-curve key layer of the attested channel:
// ephemeral key pairs, raw/wrapped public key conversion, curve detection and
// the ECDH+HKDF handshake.
package keys

import (
	"fmt"

	"tee-channel/shared"
)

// CurveIdentity identifies the elliptic curve a key or session is bound to.
// A session never mixes curves: every key pair, peer key and derived secret
// carries exactly one identity.
type CurveIdentity int

const (
	CurveP384 CurveIdentity = iota
	CurveSECP256K1
)

// String implements fmt.Stringer
func (c CurveIdentity) String() string {
	switch c {
	case CurveP384:
		return "p384"
	case CurveSECP256K1:
		return "secp256k1"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// KeyPair holds one ephemeral key pair. The private scalar is opaque and is
// never serialized outward; only the raw public point leaves the process.
type KeyPair struct {
	curve   CurveIdentity
	private []byte
	public  []byte // uncompressed point, 0x04 || X || Y
}

// Curve returns the curve this pair is bound to
func (kp *KeyPair) Curve() CurveIdentity {
	return kp.curve
}

// PublicRaw returns the raw uncompressed public point
func (kp *KeyPair) PublicRaw() []byte {
	out := make([]byte, len(kp.public))
	copy(out, kp.public)
	return out
}

// PublicWrapped returns the public point in wrapped (SPKI) form
func (kp *KeyPair) PublicWrapped() []byte {
	wrapped, err := ToWrapped(kp.public)
	if err != nil {
		// A pair generated by this package always has a convertible point
		panic(fmt.Sprintf("keys: unconvertible own public point: %v", err))
	}
	return wrapped
}

// Destroy zeroes the private scalar. The pair is unusable afterwards.
func (kp *KeyPair) Destroy() {
	for i := range kp.private {
		kp.private[i] = 0
	}
	kp.private = nil
}

// Curve is the single polymorphic boundary for curve-specific primitives.
// Exactly one implementation exists per CurveIdentity; all callers dispatch
// through it instead of branching on the identity.
type Curve interface {
	Identity() CurveIdentity
	// GenerateKeyPair creates a fresh ephemeral key pair on the curve
	GenerateKeyPair() (*KeyPair, error)
	// ValidatePoint checks that a raw uncompressed point lies on the curve
	ValidatePoint(raw []byte) error
	// SharedSecret computes the ECDH shared secret between the pair's
	// private scalar and the peer's raw public point
	SharedSecret(kp *KeyPair, peerRaw []byte) ([]byte, error)
}

// ForIdentity returns the Curve implementation for the given identity
func ForIdentity(id CurveIdentity) (Curve, error) {
	switch id {
	case CurveP384:
		return p384Curve{}, nil
	case CurveSECP256K1:
		return secp256k1Curve{}, nil
	default:
		return nil, shared.NewHandshakeError("keygen", fmt.Sprintf("unsupported curve %s", id), nil)
	}
}
