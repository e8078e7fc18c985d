package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"tee-channel/shared"
)

// transport wraps the HTTP collaborator. It defines no routing of its own:
// paths come from the caller, this layer only encodes payloads and surfaces
// structured errors on non-success statuses.
type transport struct {
	http *http.Client
	log  *zap.Logger
}

func newTransport(timeout time.Duration, log *zap.Logger) *transport {
	return &transport{
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// fetchedAttestation is the attestation endpoint's response in one of its
// transport forms: raw COSE bytes, base64 inside JSON, or a pre-decoded
// mock document used by local development servers.
type fetchedAttestation struct {
	Raw  []byte
	Mock *mockAttestation
}

type mockAttestation struct {
	PublicKey string `json:"public_key"`
}

// fetchAttestation requests <endpoint>/attestation. GET first, falling back
// to POST on 405 (older enclave images only route POST).
func (t *transport) fetchAttestation(ctx context.Context, endpoint string) (*fetchedAttestation, error) {
	url := strings.TrimRight(endpoint, "/") + "/attestation"

	resp, body, err := t.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		var te *shared.TransportError
		if errors.As(err, &te) && te.Status == http.StatusMethodNotAllowed {
			resp, body, err = t.do(ctx, http.MethodPost, url, nil)
		}
		if err != nil {
			return nil, err
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "cbor") || strings.Contains(contentType, "octet-stream") {
		return &fetchedAttestation{Raw: body}, nil
	}

	// JSON wrapper: base64 envelope or mock document
	var wrapper struct {
		Mock           bool            `json:"mock"`
		Attestation    string          `json:"attestation"`
		AttestationDoc json.RawMessage `json:"attestation_doc"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		// Not JSON either; hand the bytes to the decoder as-is
		return &fetchedAttestation{Raw: body}, nil
	}

	if wrapper.Attestation != "" {
		return &fetchedAttestation{Raw: []byte(wrapper.Attestation)}, nil
	}
	if len(wrapper.AttestationDoc) > 0 {
		var b64 string
		if json.Unmarshal(wrapper.AttestationDoc, &b64) == nil && b64 != "" {
			return &fetchedAttestation{Raw: []byte(b64)}, nil
		}
		var mock mockAttestation
		if json.Unmarshal(wrapper.AttestationDoc, &mock) == nil && mock.PublicKey != "" {
			t.log.Info("Attestation endpoint answered in mock mode")
			return &fetchedAttestation{Mock: &mock}, nil
		}
	}

	return nil, shared.NewDecodeError("envelope", "", "attestation response carries no envelope in any known form", nil)
}

// do executes one HTTP exchange. A non-2xx status fails loudly with any
// structured error detail the server put in the body.
func (t *transport) do(ctx context.Context, method, url string, payload any) (*http.Response, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, shared.NewTransportError(0, "request body is not serializable", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, nil, shared.NewTransportError(0, "request construction failed", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, nil, shared.NewTransportError(0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, shared.NewTransportError(resp.StatusCode, "response body read failed", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := errorDetail(body)
		t.log.Warn("HTTP request failed",
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", detail))
		return resp, body, shared.NewTransportError(resp.StatusCode, detail, nil)
	}

	return resp, body, nil
}

// errorDetail pulls a structured error message out of a failure body
func errorDetail(body []byte) string {
	var structured struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &structured) == nil {
		if structured.Error != "" {
			return structured.Error
		}
		if structured.Detail != "" {
			return structured.Detail
		}
	}
	if len(body) > 0 && len(body) <= 256 {
		return string(body)
	}
	return ""
}
