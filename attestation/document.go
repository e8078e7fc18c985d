// Package attestation decodes AWS Nitro style attestation documents: the
// outer COSE_Sign1 envelope and the CBOR payload map inside it. Decoding is
// deliberately separate from trust: Decode extracts fields without checking
// the certificate chain or PCR values; layering a Verifier on top of it is
// the caller's explicit step.
package attestation

// Document is the decoded attestation payload. All byte-valued fields are
// surfaced in a uniform, human-consumable form: PCRs as lowercase hex,
// certificates as PEM, the public key as hex of its wrapped (SPKI) encoding.
// Immutable once decoded; an enclave may rotate its ephemeral key, so a
// document is only valid for the connection attempt that fetched it.
type Document struct {
	ModuleID  string `json:"module_id"`
	Timestamp uint64 `json:"timestamp"`
	Digest    string `json:"digest"`
	// PCR index (decimal string) to lowercase hex measurement
	PCRs        map[string]string `json:"pcrs"`
	Certificate string            `json:"certificate"`
	CABundle    []string          `json:"cabundle"`
	// Hex of the wrapped public key; empty only on documents without one
	PublicKey string `json:"public_key"`
	UserData  string `json:"user_data,omitempty"`
	Nonce     string `json:"nonce,omitempty"`

	// UserDataJSON is the parsed user_data object when it is valid JSON
	UserDataJSON map[string]any `json:"user_data_json,omitempty"`
	// EnclaveAddress is the checksummed Ethereum address embedded in
	// user_data when one is present (enclaves report their wallet this way)
	EnclaveAddress string `json:"enclave_address,omitempty"`

	// PublicKeyBytes is the wrapped public key as bytes, for key agreement
	PublicKeyBytes []byte `json:"-"`
}

// SignedEnvelope is the outer COSE_Sign1 wire structure. The signature is
// extracted but not verified here; see Verifier.
type SignedEnvelope struct {
	// Protected is the decoded protected header map (nil when absent)
	Protected map[any]any
	// ProtectedRaw is the protected header's original byte string
	ProtectedRaw []byte
	// Unprotected is the unprotected header, passed through as decoded
	Unprotected map[any]any
	// Payload is the still-encoded attestation payload
	Payload []byte
	// Signature is the envelope signature (nil on 3-element envelopes)
	Signature []byte
}

// Payload field IDs. Enclave firmware emits the payload map keyed by short
// strings, but some COSE encoders key it by small integers; lookups try the
// string name first, then the integer ID.
const (
	fieldModuleID    = 1
	fieldDigest      = 2
	fieldTimestamp   = 3
	fieldPCRs        = 4
	fieldCertificate = 5
	fieldCABundle    = 6
	fieldPublicKey   = 7
	fieldUserData    = 8
	fieldNonce       = 9
)
