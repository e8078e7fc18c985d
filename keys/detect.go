package keys

import (
	"bytes"

	"go.uber.org/zap"

	"tee-channel/shared"
)

// DetectCurve determines which curve a public key belongs to. Some call
// sites receive a key whose encoding form is not reliably known in advance,
// so detection runs three stages:
//
//  1. search for either curve's algorithm-identifier OID inside the key,
//  2. exact-length match against the four known raw/wrapped lengths,
//  3. size heuristic: keys longer than 80 bytes (160 hex characters) are
//     taken as P-384, shorter as secp256k1.
//
// Stage 3 is a contract violation by the sender, not a normal path:
// misdetection silently corrupts every derived key, so the fallback is
// logged as a security event rather than applied silently. A nil logger is
// replaced with a no-op one.
func DetectCurve(key []byte, log *zap.Logger) (CurveIdentity, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(key) == 0 {
		return 0, shared.NewCurveDetectionError(0, "empty key")
	}

	if bytes.Contains(key, oidP384) {
		return CurveP384, nil
	}
	if bytes.Contains(key, oidSECP256K1) {
		return CurveSECP256K1, nil
	}

	switch len(key) {
	case RawLenP384, WrappedLenP384:
		return CurveP384, nil
	case RawLenSECP256K1, WrappedLenSECP256K1:
		return CurveSECP256K1, nil
	}

	// Ambiguous encoding: warn loudly, then fall back on size
	detected := CurveSECP256K1
	if len(key) > 80 {
		detected = CurveP384
	}
	log.Warn("Ambiguous public key encoding, falling back to size heuristic",
		zap.Int("key_bytes", len(key)),
		zap.String("detected_curve", detected.String()),
		zap.Bool("security_event", true))
	return detected, nil
}
