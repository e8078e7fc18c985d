package attestation

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/fxamacker/cbor/v2"

	"tee-channel/keys"
	"tee-channel/shared"
)

// Decode decodes a signed attestation envelope. The input may be the raw
// CBOR bytes or their base64 text form (the attestation endpoint serves
// both); base64 is detected and stripped transparently.
func Decode(input []byte) (*Document, *SignedEnvelope, error) {
	raw := input
	if decoded, ok := tryBase64(input); ok {
		raw = decoded
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		return nil, nil, err
	}

	doc, err := decodePayload(env.Payload)
	if err != nil {
		return nil, env, err
	}
	return doc, env, nil
}

// DecodeBase64 decodes an envelope transported as a base64 string
func DecodeBase64(s string) (*Document, *SignedEnvelope, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, nil, shared.NewDecodeError("envelope", "", "invalid base64 transport encoding", err)
	}
	return Decode(raw)
}

// decodeEnvelope unpacks the outer COSE_Sign1 structure: a 3- or 4-element
// array of protected header, unprotected header, payload and signature. A
// value that is not such an array is treated as a bare payload (fallback for
// non-enveloped responses).
func decodeEnvelope(raw []byte) (*SignedEnvelope, error) {
	var top any
	if err := cbor.Unmarshal(raw, &top); err != nil {
		return nil, shared.NewDecodeError("envelope", "", "outer structure is not valid CBOR", err)
	}

	elems, ok := top.([]any)
	if !ok || len(elems) < 3 {
		// Not an envelope; the whole value is the payload
		return &SignedEnvelope{Payload: raw}, nil
	}

	env := &SignedEnvelope{}

	// element[0]: protected header, usually a nested-encoded byte string
	switch v := elems[0].(type) {
	case []byte:
		env.ProtectedRaw = v
		if len(v) > 0 {
			var hdr map[any]any
			if err := cbor.Unmarshal(v, &hdr); err != nil {
				return nil, shared.NewDecodeError("envelope", "protected", "protected header is not valid CBOR", err)
			}
			env.Protected = hdr
		}
	case map[any]any:
		env.Protected = v
	}

	// element[1]: unprotected header, passed through
	if hdr, ok := elems[1].(map[any]any); ok {
		env.Unprotected = hdr
	}

	// element[2]: payload
	payload, ok := elems[2].([]byte)
	if !ok || len(payload) == 0 {
		return nil, shared.NewDecodeError("envelope", "payload", "envelope carries no payload", nil)
	}
	env.Payload = payload

	// element[3]: signature, when present
	if len(elems) > 3 {
		if sig, ok := elems[3].([]byte); ok {
			env.Signature = sig
		}
	}

	return env, nil
}

// decodePayload decodes the attestation payload map and extracts typed
// fields. Keys may be short strings or small integers depending on the
// encoder; every field is looked up by both, preferring the string form.
func decodePayload(payload []byte) (*Document, error) {
	var v any
	if err := cbor.Unmarshal(payload, &v); err != nil {
		return nil, shared.NewDecodeError("payload", "", "payload is not valid CBOR", err)
	}
	m, ok := v.(map[any]any)
	if !ok {
		return nil, shared.NewDecodeError("payload", "", fmt.Sprintf("payload decodes to %T, expected a map", v), nil)
	}

	doc := &Document{PCRs: map[string]string{}}

	doc.ModuleID = asText(lookup(m, "module_id", fieldModuleID))
	doc.Digest = asText(lookup(m, "digest", fieldDigest))
	doc.Timestamp = asUint(lookup(m, "timestamp", fieldTimestamp))

	if pcrs, ok := lookup(m, "pcrs", fieldPCRs).(map[any]any); ok {
		for k, val := range pcrs {
			b, ok := val.([]byte)
			if !ok {
				return nil, shared.NewDecodeError("field", "pcrs", fmt.Sprintf("PCR value is %T, expected bytes", val), nil)
			}
			// PCR values are always hex, printable or not
			doc.PCRs[pcrIndex(k)] = hex.EncodeToString(b)
		}
	}

	if cert := asBytes(lookup(m, "certificate", fieldCertificate)); len(cert) > 0 {
		doc.Certificate = pemCertificate(cert)
	}
	if bundle, ok := lookup(m, "cabundle", fieldCABundle).([]any); ok {
		for _, entry := range bundle {
			if der := asBytes(entry); len(der) > 0 {
				doc.CABundle = append(doc.CABundle, pemCertificate(der))
			}
		}
	}

	pub := asBytes(lookup(m, "public_key", fieldPublicKey))
	if len(pub) == 0 {
		return nil, shared.NewDecodeError("field", "public_key", "public key field is empty or missing", nil)
	}
	wrapped, err := normalizePublicKey(pub)
	if err != nil {
		return nil, shared.NewDecodeError("field", "public_key", "public key is not a convertible encoding", err)
	}
	doc.PublicKeyBytes = wrapped
	doc.PublicKey = hex.EncodeToString(wrapped)

	if ud := asBytes(lookup(m, "user_data", fieldUserData)); len(ud) > 0 {
		applyUserData(doc, ud)
	}
	if nonce := asBytes(lookup(m, "nonce", fieldNonce)); len(nonce) > 0 {
		doc.Nonce = classifyBytes(nonce)
	}

	return doc, nil
}

// normalizePublicKey converts whatever key encoding the enclave emitted
// (raw point, SPKI bytes, or a PEM public key) into wrapped form, so all
// callers receive a uniform encoding.
func normalizePublicKey(pub []byte) ([]byte, error) {
	if der, ok := pemToDER(pub); ok {
		pub = der
	}
	return keys.ToWrapped(pub)
}

// lookup fetches a payload field by its string name, falling back to the
// documented integer ID (CBOR integers decode as uint64 or int64).
func lookup(m map[any]any, name string, id uint64) any {
	if v, ok := m[name]; ok {
		return v
	}
	if v, ok := m[id]; ok {
		return v
	}
	if v, ok := m[int64(id)]; ok {
		return v
	}
	return nil
}

func pcrIndex(k any) string {
	switch idx := k.(type) {
	case uint64:
		return strconv.FormatUint(idx, 10)
	case int64:
		return strconv.FormatInt(idx, 10)
	case string:
		return idx
	default:
		return fmt.Sprintf("%v", idx)
	}
}

func asText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return classifyBytes(t)
	default:
		return ""
	}
}

func asBytes(v any) []byte {
	switch t := v.(type) {
	case []byte:
		return t
	case string:
		return []byte(t)
	default:
		return nil
	}
}

func asUint(v any) uint64 {
	switch t := v.(type) {
	case uint64:
		return t
	case int64:
		if t >= 0 {
			return uint64(t)
		}
	}
	return 0
}

// classifyBytes surfaces printable ASCII as text and everything else as
// lowercase hex
func classifyBytes(b []byte) string {
	if isPrintableASCII(b) {
		return string(b)
	}
	return hex.EncodeToString(b)
}

func isPrintableASCII(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c >= 0x20 && c <= 0x7e {
			continue
		}
		if c == '\r' || c == '\n' || c == '\t' {
			continue
		}
		return false
	}
	return true
}

// tryBase64 reports whether the input is base64 text and returns its decoded
// bytes. CBOR envelopes never consist solely of base64 alphabet characters,
// so a clean decode of printable input is unambiguous.
func tryBase64(input []byte) ([]byte, bool) {
	if len(input) == 0 || !isPrintableASCII(input) {
		return nil, false
	}
	s := string(input)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return decoded, true
}
