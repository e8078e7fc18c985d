package attestation

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"

	"tee-channel/keys"
	"tee-channel/shared"
)

func testP384Raw(t *testing.T) []byte {
	t.Helper()
	curve, err := keys.ForIdentity(keys.CurveP384)
	if err != nil {
		t.Fatalf("ForIdentity failed: %v", err)
	}
	pair, err := curve.GenerateKeyPair()
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	return pair.PublicRaw()
}

// buildEnvelope wraps a payload map in a COSE_Sign1-shaped 4-element array
func buildEnvelope(t *testing.T, payload any) []byte {
	t.Helper()
	protected, err := cbor.Marshal(map[int]int{1: -35})
	if err != nil {
		t.Fatalf("protected header marshal failed: %v", err)
	}
	payloadBytes, err := cbor.Marshal(payload)
	if err != nil {
		t.Fatalf("payload marshal failed: %v", err)
	}
	env, err := cbor.Marshal([]any{
		protected,
		map[string]any{},
		payloadBytes,
		bytes.Repeat([]byte{0xab}, 96),
	})
	if err != nil {
		t.Fatalf("envelope marshal failed: %v", err)
	}
	return env
}

func TestDecodeMinimalDocument(t *testing.T) {
	raw := testP384Raw(t)
	env := buildEnvelope(t, map[string]any{
		"module_id":  "i-test",
		"timestamp":  1700000000,
		"digest":     "SHA384",
		"pcrs":       map[int][]byte{0: make([]byte, 32)},
		"public_key": raw,
	})

	doc, envelope, err := Decode(env)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if doc.ModuleID != "i-test" {
		t.Errorf("ModuleID = %q, want i-test", doc.ModuleID)
	}
	if doc.Timestamp != 1700000000 {
		t.Errorf("Timestamp = %d, want 1700000000", doc.Timestamp)
	}
	if doc.Digest != "SHA384" {
		t.Errorf("Digest = %q, want SHA384", doc.Digest)
	}
	if got := doc.PCRs["0"]; got != strings.Repeat("0", 64) {
		t.Errorf("PCRs[0] = %q, want 64 zero hex characters", got)
	}

	wrapped, err := keys.ToWrapped(raw)
	if err != nil {
		t.Fatalf("ToWrapped failed: %v", err)
	}
	if doc.PublicKey != hex.EncodeToString(wrapped) {
		t.Errorf("PublicKey is not the wrapped form of the input point")
	}

	if len(envelope.Signature) != 96 {
		t.Errorf("Signature is %d bytes, want 96", len(envelope.Signature))
	}
	if len(envelope.ProtectedRaw) == 0 || envelope.Protected == nil {
		t.Error("protected header was not decoded")
	}
}

func TestDecodeIntegerKeyedPayload(t *testing.T) {
	raw := testP384Raw(t)
	env := buildEnvelope(t, map[int]any{
		fieldModuleID:  "i-int-keys",
		fieldTimestamp: 1700000000,
		fieldPCRs:      map[int][]byte{0: bytes.Repeat([]byte{0xff}, 48)},
		fieldPublicKey: raw,
	})

	doc, _, err := Decode(env)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if doc.ModuleID != "i-int-keys" {
		t.Errorf("ModuleID = %q, want i-int-keys", doc.ModuleID)
	}
	if got := doc.PCRs["0"]; got != strings.Repeat("ff", 48) {
		t.Errorf("PCRs[0] = %q, want 96 f characters", got)
	}
}

func TestDecodeStringKeyPreferredOverInteger(t *testing.T) {
	raw := testP384Raw(t)
	// Both forms present; the string form wins
	env := buildEnvelope(t, map[any]any{
		"module_id":   "from-string",
		fieldModuleID: "from-int",
		"public_key":  raw,
	})
	doc, _, err := Decode(env)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if doc.ModuleID != "from-string" {
		t.Errorf("ModuleID = %q, want the string-keyed value", doc.ModuleID)
	}
}

func TestDecodeBase64Transport(t *testing.T) {
	raw := testP384Raw(t)
	env := buildEnvelope(t, map[string]any{
		"module_id":  "i-b64",
		"public_key": raw,
	})
	b64 := base64.StdEncoding.EncodeToString(env)

	// Explicit base64 entry point
	doc, _, err := DecodeBase64(b64)
	if err != nil {
		t.Fatalf("DecodeBase64 failed: %v", err)
	}
	if doc.ModuleID != "i-b64" {
		t.Errorf("ModuleID = %q, want i-b64", doc.ModuleID)
	}

	// Auto-detection on the generic entry point
	doc, _, err = Decode([]byte(b64 + "\n"))
	if err != nil {
		t.Fatalf("Decode(base64 text) failed: %v", err)
	}
	if doc.ModuleID != "i-b64" {
		t.Errorf("auto-detected ModuleID = %q, want i-b64", doc.ModuleID)
	}
}

func TestDecodeBarePayloadFallback(t *testing.T) {
	raw := testP384Raw(t)
	payload, err := cbor.Marshal(map[string]any{
		"module_id":  "i-bare",
		"public_key": raw,
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	doc, _, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode of a bare payload failed: %v", err)
	}
	if doc.ModuleID != "i-bare" {
		t.Errorf("ModuleID = %q, want i-bare", doc.ModuleID)
	}
}

func TestDecodeStageErrors(t *testing.T) {
	var de *shared.DecodeError

	// Not CBOR at all
	_, _, err := Decode([]byte{0xff, 0x00, 0x01})
	if !errors.As(err, &de) || de.Stage != "envelope" {
		t.Errorf("invalid CBOR: got %v, want envelope-stage decode error", err)
	}

	// Valid envelope, payload is not a map
	payloadBytes, _ := cbor.Marshal(12345)
	env, _ := cbor.Marshal([]any{[]byte{}, map[string]any{}, payloadBytes, []byte{}})
	_, _, err = Decode(env)
	if !errors.As(err, &de) || de.Stage != "payload" {
		t.Errorf("non-map payload: got %v, want payload-stage decode error", err)
	}

	// Missing public key
	env = buildEnvelope(t, map[string]any{"module_id": "i-nokey"})
	_, _, err = Decode(env)
	if !errors.As(err, &de) || de.Stage != "field" || de.Field != "public_key" {
		t.Errorf("missing key: got %v, want field-stage error on public_key", err)
	}
}

func TestUserDataAndNonceClassification(t *testing.T) {
	raw := testP384Raw(t)
	addr := "0x52908400098527886E0F7030069857D2E4169EE7"
	env := buildEnvelope(t, map[string]any{
		"module_id":  "i-ud",
		"public_key": raw,
		"user_data":  []byte(`{"eth_addr":"` + addr + `","role":"oracle"}`),
		"nonce":      []byte{0x00, 0x01, 0xfe, 0xff},
	})

	doc, _, err := Decode(env)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if doc.UserDataJSON == nil {
		t.Fatal("printable JSON user_data was not parsed")
	}
	if doc.UserDataJSON["role"] != "oracle" {
		t.Errorf("UserDataJSON[role] = %v, want oracle", doc.UserDataJSON["role"])
	}
	if doc.EnclaveAddress != common.HexToAddress(addr).Hex() {
		t.Errorf("EnclaveAddress = %q, want checksummed %s", doc.EnclaveAddress, addr)
	}
	if doc.Nonce != "0001feff" {
		t.Errorf("binary nonce = %q, want lowercase hex", doc.Nonce)
	}
}

func TestCertificatesSurfacedAsPEM(t *testing.T) {
	raw := testP384Raw(t)
	cert := bytes.Repeat([]byte{0x30, 0x82}, 40)
	env := buildEnvelope(t, map[string]any{
		"module_id":   "i-pem",
		"public_key":  raw,
		"certificate": cert,
		"cabundle":    []any{cert, cert},
	})

	doc, _, err := Decode(env)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !strings.HasPrefix(doc.Certificate, "-----BEGIN CERTIFICATE-----") {
		t.Errorf("certificate is not PEM: %q", doc.Certificate[:30])
	}
	if len(doc.CABundle) != 2 {
		t.Fatalf("CABundle has %d entries, want 2", len(doc.CABundle))
	}
	for _, entry := range doc.CABundle {
		if !strings.HasPrefix(entry, "-----BEGIN CERTIFICATE-----") {
			t.Error("cabundle entry is not PEM")
		}
	}
}

func TestPEMPublicKeyNormalized(t *testing.T) {
	// Some enclave images embed the key as a PEM SPKI block
	raw := testP384Raw(t)
	wrapped, err := keys.ToWrapped(raw)
	if err != nil {
		t.Fatalf("ToWrapped failed: %v", err)
	}
	pemKey := "-----BEGIN PUBLIC KEY-----\n" +
		base64.StdEncoding.EncodeToString(wrapped) +
		"\n-----END PUBLIC KEY-----\n"

	env := buildEnvelope(t, map[string]any{
		"module_id":  "i-pemkey",
		"public_key": []byte(pemKey),
	})
	doc, _, err := Decode(env)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if doc.PublicKey != hex.EncodeToString(wrapped) {
		t.Error("PEM-embedded key did not normalize to the wrapped form")
	}
}
