package attestation

import (
	"bytes"
	"fmt"

	"github.com/anjuna-security/go-nitro-attestation/verifier"
	"go.uber.org/zap"

	"tee-channel/shared"
)

// Verifier establishes trust in an attestation document. It is a separate,
// explicit step layered above Decode: decoding extracts fields, a Verifier
// decides whether to believe them.
type Verifier interface {
	// Verify checks the raw signed envelope bytes and returns an error when
	// the document must not be trusted
	Verify(raw []byte) error
}

// PCRPolicy maps PCR indexes to their expected lowercase hex measurements.
// An empty policy checks the signature chain only.
type PCRPolicy map[int]string

// NitroVerifier validates the COSE signature and certificate chain against
// the AWS Nitro root, then compares measurements against the expected PCR
// manifest.
type NitroVerifier struct {
	PCRs PCRPolicy
	log  *zap.Logger
}

// NewNitroVerifier creates a verifier with an optional PCR manifest
func NewNitroVerifier(policy PCRPolicy, log *zap.Logger) *NitroVerifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &NitroVerifier{PCRs: policy, log: log}
}

// Verify implements Verifier
func (v *NitroVerifier) Verify(raw []byte) error {
	sr, err := verifier.NewSignedAttestationReport(bytes.NewReader(raw))
	if err != nil {
		return shared.NewVerificationError("failed to parse signed attestation report", err)
	}
	if err := verifier.Validate(sr, nil); err != nil {
		return shared.NewVerificationError("attestation signature validation failed", err)
	}

	for idx, want := range v.PCRs {
		got := fmt.Sprintf("%x", sr.Document.PCRs[idx])
		if got != want {
			v.log.Warn("PCR measurement mismatch",
				zap.Int("pcr_index", idx),
				zap.String("expected", want),
				zap.String("actual", got),
				zap.Bool("security_event", true))
			return shared.NewVerificationError(
				fmt.Sprintf("PCR%d measurement does not match the expected manifest", idx), nil)
		}
	}

	v.log.Info("Attestation verified", zap.Int("pcrs_checked", len(v.PCRs)))
	return nil
}

// NopVerifier trusts every document. Only for mock endpoints and local
// development; never ship it in a production configuration.
type NopVerifier struct{}

// Verify implements Verifier
func (NopVerifier) Verify([]byte) error {
	return nil
}
