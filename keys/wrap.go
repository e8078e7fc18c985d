package keys

import (
	"bytes"

	"tee-channel/shared"
)

// Key encodings on the wire come in two forms. "Raw" is the bare uncompressed
// point (0x04 || X || Y). "Wrapped" is the DER SubjectPublicKeyInfo encoding:
// a fixed 23-byte algorithm-identifier header (carrying the curve OID)
// followed by the raw point. Both conversions are idempotent: converting a
// key already in the target form is a no-op.
const (
	RawLenP384          = 97
	WrappedLenP384      = 120
	RawLenSECP256K1     = 65
	WrappedLenSECP256K1 = 88

	spkiHeaderLen = 23
)

// Fixed SPKI headers for uncompressed points. The embedded OIDs are
// 1.3.132.0.34 (secp384r1) and 1.3.132.0.10 (secp256k1).
var (
	spkiHeaderP384 = []byte{
		0x30, 0x76, 0x30, 0x10, 0x06, 0x07, 0x2a, 0x86, 0x48, 0xce,
		0x3d, 0x02, 0x01, 0x06, 0x05, 0x2b, 0x81, 0x04, 0x00, 0x22,
		0x03, 0x62, 0x00,
	}
	spkiHeaderSECP256K1 = []byte{
		0x30, 0x56, 0x30, 0x10, 0x06, 0x07, 0x2a, 0x86, 0x48, 0xce,
		0x3d, 0x02, 0x01, 0x06, 0x05, 0x2b, 0x81, 0x04, 0x00, 0x0a,
		0x03, 0x42, 0x00,
	}

	oidP384      = []byte{0x2b, 0x81, 0x04, 0x00, 0x22}
	oidSECP256K1 = []byte{0x2b, 0x81, 0x04, 0x00, 0x0a}
)

// ToWrapped converts a public key to wrapped (SPKI) form. Keys already in
// wrapped form are returned unchanged.
func ToWrapped(key []byte) ([]byte, error) {
	switch len(key) {
	case WrappedLenP384, WrappedLenSECP256K1:
		// Already wrapped
		out := make([]byte, len(key))
		copy(out, key)
		return out, nil
	case RawLenP384:
		return wrapRaw(spkiHeaderP384, key), nil
	case RawLenSECP256K1:
		return wrapRaw(spkiHeaderSECP256K1, key), nil
	default:
		return nil, shared.NewCurveDetectionError(len(key), "length matches no known raw or wrapped encoding")
	}
}

// ToRaw converts a public key to the raw uncompressed point. Keys already in
// raw form are returned unchanged.
func ToRaw(key []byte) ([]byte, error) {
	switch len(key) {
	case RawLenP384, RawLenSECP256K1:
		// Already raw
		out := make([]byte, len(key))
		copy(out, key)
		return out, nil
	case WrappedLenP384:
		return unwrapSPKI(spkiHeaderP384, key)
	case WrappedLenSECP256K1:
		return unwrapSPKI(spkiHeaderSECP256K1, key)
	default:
		return nil, shared.NewCurveDetectionError(len(key), "length matches no known raw or wrapped encoding")
	}
}

// wrapRaw prepends the curve's SPKI header. Conversion is length-driven
// only; whether the bytes are a valid curve point is the handshake's
// validation step, not the converter's.
func wrapRaw(header, raw []byte) []byte {
	out := make([]byte, 0, len(header)+len(raw))
	out = append(out, header...)
	out = append(out, raw...)
	return out
}

func unwrapSPKI(header, wrapped []byte) ([]byte, error) {
	if !bytes.HasPrefix(wrapped, header) {
		return nil, shared.NewCurveDetectionError(len(wrapped), "wrapped key header does not match the curve's algorithm identifier")
	}
	raw := wrapped[spkiHeaderLen:]
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}
