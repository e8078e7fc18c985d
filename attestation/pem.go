package attestation

import (
	"bytes"
	"encoding/pem"
)

// Certificates and CA bundle entries are surfaced as PEM rather than hex
// because their consumers (openssl, humans) expect PEM.

func pemCertificate(der []byte) string {
	// Already PEM-encoded input passes through untouched
	if bytes.HasPrefix(bytes.TrimSpace(der), []byte("-----BEGIN ")) {
		return string(der)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

// pemToDER extracts the DER body of a PEM block, reporting whether the input
// was PEM at all
func pemToDER(data []byte) ([]byte, bool) {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("-----BEGIN ")) {
		return nil, false
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, false
	}
	return block.Bytes, true
}
