package keys

import (
	"crypto/ecdh"
	"crypto/rand"

	"tee-channel/shared"
)

// p384Curve implements Curve on the NIST P-384 curve using the native ECDH
// primitive from crypto/ecdh.
type p384Curve struct{}

func (p384Curve) Identity() CurveIdentity {
	return CurveP384
}

func (p384Curve) GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.P384().GenerateKey(rand.Reader)
	if err != nil {
		return nil, shared.NewHandshakeError("keygen", "P-384 key generation failed", err)
	}
	return &KeyPair{
		curve:   CurveP384,
		private: priv.Bytes(),
		public:  priv.PublicKey().Bytes(),
	}, nil
}

func (p384Curve) ValidatePoint(raw []byte) error {
	if _, err := ecdh.P384().NewPublicKey(raw); err != nil {
		return shared.NewHandshakeError("validate", "invalid peer key: point not on P-384", err)
	}
	return nil
}

func (p384Curve) SharedSecret(kp *KeyPair, peerRaw []byte) ([]byte, error) {
	priv, err := ecdh.P384().NewPrivateKey(kp.private)
	if err != nil {
		return nil, shared.NewHandshakeError("ecdh", "invalid P-384 private scalar", err)
	}
	pub, err := ecdh.P384().NewPublicKey(peerRaw)
	if err != nil {
		return nil, shared.NewHandshakeError("validate", "invalid peer key: point not on P-384", err)
	}
	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, shared.NewHandshakeError("ecdh", "P-384 ECDH failed", err)
	}
	return secret, nil
}
