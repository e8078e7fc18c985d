package shared

import (
	"fmt"
)

// ChannelError is the base error type for all secure-channel errors
type ChannelError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Cause   error  `json:"cause,omitempty"`
}

// Error implements the error interface
func (e *ChannelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *ChannelError) Unwrap() error {
	return e.Cause
}

// DecodeError represents a malformed attestation envelope, payload or field.
// Stage is one of "envelope", "payload" or "field"; Field names the payload
// field when the failure is field-level. Both are kept on the error because
// interoperability breaks with enclave firmware changes must be diagnosable
// from the error alone.
type DecodeError struct {
	*ChannelError
	Stage string `json:"stage"`
	Field string `json:"field,omitempty"`
}

// NewDecodeError creates a new decode error for the given stage
func NewDecodeError(stage, field, message string, cause error) *DecodeError {
	msg := fmt.Sprintf("Decode failed at %s stage: %s", stage, message)
	if field != "" {
		msg = fmt.Sprintf("Decode failed at %s stage (field '%s'): %s", stage, field, message)
	}
	return &DecodeError{
		ChannelError: &ChannelError{
			Type:    "decode_error",
			Message: msg,
			Cause:   cause,
		},
		Stage: stage,
		Field: field,
	}
}

// CurveDetectionError represents an ambiguous or unknown key encoding
type CurveDetectionError struct {
	*ChannelError
	KeyLen int `json:"key_len"`
}

// NewCurveDetectionError creates a new curve detection error
func NewCurveDetectionError(keyLen int, message string) *CurveDetectionError {
	return &CurveDetectionError{
		ChannelError: &ChannelError{
			Type:    "curve_detection_error",
			Message: fmt.Sprintf("Curve detection failed for %d-byte key: %s", keyLen, message),
		},
		KeyLen: keyLen,
	}
}

// HandshakeError represents an invalid peer key or a derivation failure.
// Phase names the handshake stage that failed ("peer_key", "validate",
// "ecdh", "kdf", "keygen").
type HandshakeError struct {
	*ChannelError
	Phase string `json:"phase"`
}

// NewHandshakeError creates a new handshake error
func NewHandshakeError(phase, message string, cause error) *HandshakeError {
	return &HandshakeError{
		ChannelError: &ChannelError{
			Type:    "handshake_error",
			Message: fmt.Sprintf("Handshake failed in %s: %s", phase, message),
			Cause:   cause,
		},
		Phase: phase,
	}
}

// AuthenticationError represents an AEAD tag mismatch on decrypt. No partial
// plaintext ever accompanies it.
type AuthenticationError struct {
	*ChannelError
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(cause error) *AuthenticationError {
	return &AuthenticationError{
		ChannelError: &ChannelError{
			Type:    "authentication_error",
			Message: "Decryption/authentication failed",
			Cause:   cause,
		},
	}
}

// TransportError represents a non-success HTTP exchange. Detail carries any
// structured error body the server returned.
type TransportError struct {
	*ChannelError
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// NewTransportError creates a new transport error
func NewTransportError(status int, detail string, cause error) *TransportError {
	msg := fmt.Sprintf("HTTP request failed with status %d", status)
	if detail != "" {
		msg = fmt.Sprintf("HTTP request failed with status %d: %s", status, detail)
	}
	return &TransportError{
		ChannelError: &ChannelError{
			Type:    "transport_error",
			Message: msg,
			Cause:   cause,
		},
		Status: status,
		Detail: detail,
	}
}

// VerificationError represents a failed attestation trust check (certificate
// chain or PCR manifest mismatch)
type VerificationError struct {
	*ChannelError
	PCRIndex int `json:"pcr_index,omitempty"`
}

// NewVerificationError creates a new verification error
func NewVerificationError(message string, cause error) *VerificationError {
	return &VerificationError{
		ChannelError: &ChannelError{
			Type:    "verification_error",
			Message: message,
			Cause:   cause,
		},
	}
}
