package keys

import (
	secp "github.com/decred/dcrd/dcrec/secp256k1/v4"

	"tee-channel/shared"
)

// secp256k1Curve implements Curve on secp256k1 using the decred primitives.
// The ECDH output is the x-only coordinate of private*peer, 32 bytes, which
// is what the enclave side derives its session key from.
type secp256k1Curve struct{}

func (secp256k1Curve) Identity() CurveIdentity {
	return CurveSECP256K1
}

func (secp256k1Curve) GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp.GeneratePrivateKey()
	if err != nil {
		return nil, shared.NewHandshakeError("keygen", "secp256k1 key generation failed", err)
	}
	return &KeyPair{
		curve:   CurveSECP256K1,
		private: priv.Serialize(),
		public:  priv.PubKey().SerializeUncompressed(),
	}, nil
}

func (secp256k1Curve) ValidatePoint(raw []byte) error {
	if _, err := secp.ParsePubKey(raw); err != nil {
		return shared.NewHandshakeError("validate", "invalid peer key: point not on secp256k1", err)
	}
	return nil
}

func (secp256k1Curve) SharedSecret(kp *KeyPair, peerRaw []byte) ([]byte, error) {
	pub, err := secp.ParsePubKey(peerRaw)
	if err != nil {
		return nil, shared.NewHandshakeError("validate", "invalid peer key: point not on secp256k1", err)
	}
	priv := secp.PrivKeyFromBytes(kp.private)
	// x-only coordinate of private * peer_point
	return secp.GenerateSharedSecret(priv, pub), nil
}
