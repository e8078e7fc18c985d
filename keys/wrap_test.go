package keys

import (
	"bytes"
	"testing"

	"go.uber.org/zap"
)

func generateRaw(t *testing.T, id CurveIdentity) []byte {
	t.Helper()
	curve, err := ForIdentity(id)
	if err != nil {
		t.Fatalf("ForIdentity(%s) failed: %v", id, err)
	}
	pair, err := curve.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair on %s failed: %v", id, err)
	}
	return pair.PublicRaw()
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	for _, id := range []CurveIdentity{CurveP384, CurveSECP256K1} {
		raw := generateRaw(t, id)

		wrapped, err := ToWrapped(raw)
		if err != nil {
			t.Fatalf("ToWrapped(%s raw) failed: %v", id, err)
		}
		back, err := ToRaw(wrapped)
		if err != nil {
			t.Fatalf("ToRaw(%s wrapped) failed: %v", id, err)
		}
		if !bytes.Equal(back, raw) {
			t.Errorf("%s: round trip changed the key", id)
		}
	}
}

func TestWrappedLengths(t *testing.T) {
	cases := []struct {
		id         CurveIdentity
		rawLen     int
		wrappedLen int
	}{
		{CurveP384, RawLenP384, WrappedLenP384},
		{CurveSECP256K1, RawLenSECP256K1, WrappedLenSECP256K1},
	}
	for _, tc := range cases {
		raw := generateRaw(t, tc.id)
		if len(raw) != tc.rawLen {
			t.Fatalf("%s raw point is %d bytes, want %d", tc.id, len(raw), tc.rawLen)
		}
		wrapped, err := ToWrapped(raw)
		if err != nil {
			t.Fatalf("ToWrapped failed: %v", err)
		}
		if len(wrapped) != tc.wrappedLen {
			t.Errorf("%s wrapped key is %d bytes, want %d", tc.id, len(wrapped), tc.wrappedLen)
		}
	}
}

func TestConversionIdempotence(t *testing.T) {
	for _, id := range []CurveIdentity{CurveP384, CurveSECP256K1} {
		raw := generateRaw(t, id)
		wrapped, err := ToWrapped(raw)
		if err != nil {
			t.Fatalf("ToWrapped failed: %v", err)
		}

		// Converting a key already in the target form is a no-op,
		// repeatedly
		again, err := ToWrapped(wrapped)
		if err != nil {
			t.Fatalf("ToWrapped(wrapped) failed: %v", err)
		}
		if !bytes.Equal(again, wrapped) {
			t.Errorf("%s: ToWrapped is not idempotent", id)
		}

		rawAgain, err := ToRaw(raw)
		if err != nil {
			t.Fatalf("ToRaw(raw) failed: %v", err)
		}
		if !bytes.Equal(rawAgain, raw) {
			t.Errorf("%s: ToRaw is not idempotent", id)
		}
	}
}

func TestToWrappedRejectsUnknownLength(t *testing.T) {
	if _, err := ToWrapped(make([]byte, 50)); err == nil {
		t.Error("expected error for a 50-byte key")
	}
	if _, err := ToRaw(make([]byte, 200)); err == nil {
		t.Error("expected error for a 200-byte key")
	}
}

func TestDetectCurveByOID(t *testing.T) {
	for _, id := range []CurveIdentity{CurveP384, CurveSECP256K1} {
		raw := generateRaw(t, id)
		wrapped, err := ToWrapped(raw)
		if err != nil {
			t.Fatalf("ToWrapped failed: %v", err)
		}
		// Wrapped keys carry the OID
		got, err := DetectCurve(wrapped, zap.NewNop())
		if err != nil {
			t.Fatalf("DetectCurve(wrapped %s) failed: %v", id, err)
		}
		if got != id {
			t.Errorf("DetectCurve(wrapped) = %s, want %s", got, id)
		}
	}
}

func TestDetectCurveByLength(t *testing.T) {
	cases := []struct {
		keyLen int
		want   CurveIdentity
	}{
		{RawLenP384, CurveP384},
		{WrappedLenP384, CurveP384},
		{RawLenSECP256K1, CurveSECP256K1},
		{WrappedLenSECP256K1, CurveSECP256K1},
	}
	for _, tc := range cases {
		// Raw points carry no OID; detection falls back to exact length.
		// Wrapped-length inputs without a real header exercise the same
		// path.
		key := make([]byte, tc.keyLen)
		key[0] = 0x04
		got, err := DetectCurve(key, zap.NewNop())
		if err != nil {
			t.Fatalf("DetectCurve(%d bytes) failed: %v", tc.keyLen, err)
		}
		if got != tc.want {
			t.Errorf("DetectCurve(%d bytes) = %s, want %s", tc.keyLen, got, tc.want)
		}
	}

	// Real raw points, for good measure
	for _, id := range []CurveIdentity{CurveP384, CurveSECP256K1} {
		got, err := DetectCurve(generateRaw(t, id), zap.NewNop())
		if err != nil {
			t.Fatalf("DetectCurve(raw %s) failed: %v", id, err)
		}
		if got != id {
			t.Errorf("DetectCurve(raw) = %s, want %s", got, id)
		}
	}
}

func TestDetectCurveSizeFallback(t *testing.T) {
	// Lengths matching no known encoding fall back to the size heuristic
	big, err := DetectCurve(make([]byte, 100), zap.NewNop())
	if err != nil {
		t.Fatalf("DetectCurve fallback failed: %v", err)
	}
	if big != CurveP384 {
		t.Errorf("100-byte key detected as %s, want p384", big)
	}

	small, err := DetectCurve(make([]byte, 40), zap.NewNop())
	if err != nil {
		t.Fatalf("DetectCurve fallback failed: %v", err)
	}
	if small != CurveSECP256K1 {
		t.Errorf("40-byte key detected as %s, want secp256k1", small)
	}

	if _, err := DetectCurve(nil, zap.NewNop()); err == nil {
		t.Error("expected error for an empty key")
	}
}
