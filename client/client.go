// Package client is the caller-facing facade of the attested channel. A
// Client is an explicit, constructible object: there is no package-level
// instance or implicit shared state, so multi-tenant callers run as many
// concurrent sessions as they need by constructing one client each.
package client

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"tee-channel/attestation"
	"tee-channel/envelope"
	"tee-channel/keys"
	"tee-channel/shared"
)

// Config holds client behavior knobs
type Config struct {
	// Timeout bounds each HTTP exchange
	Timeout time.Duration
	// KeyMode selects per-message vs per-session key derivation
	KeyMode envelope.KeyMode
	// Verifier, when set, establishes trust in the fetched attestation
	// before any key is extracted from it. Nil skips trust verification
	// (decode-only, the historical behavior).
	Verifier attestation.Verifier
	// Trace enables the diagnostic overlay. It retains plaintext secrets
	// in memory; never enable it in a production build.
	Trace bool
}

// ConfigFromEnv builds a Config from environment variables
func ConfigFromEnv() Config {
	mode := envelope.KeyPerMessage
	if shared.GetEnvOrDefault("CHANNEL_KEY_MODE", "per_message") == "per_session" {
		mode = envelope.KeyPerSession
	}
	return Config{
		Timeout: shared.GetEnvDurationOrDefault("CHANNEL_TIMEOUT", 30*time.Second),
		KeyMode: mode,
		Trace:   shared.GetEnvBoolOrDefault("CHANNEL_TRACE", false),
	}
}

// Response is the outcome of an encrypted call. Sig is the enclave's
// detached signature over the response when the server attached one; it is
// surfaced, not verified, here.
type Response struct {
	Data      json.RawMessage `json:"data"`
	Sig       string          `json:"sig,omitempty"`
	Encrypted bool            `json:"encrypted"`
}

// Client drives one attested session: Connect fetches and decodes the
// enclave's attestation and runs the handshake; Call and CallEncrypted
// exchange payloads. A failed CallEncrypted leaves session state intact and
// is safely retryable; a failed Connect leaves the client unconnected.
type Client struct {
	cfg       Config
	log       *zap.Logger
	transport *transport

	endpoint  string
	doc       *attestation.Document
	serverKey []byte
	curve     keys.CurveIdentity
	codec     *envelope.Codec
	connected bool
	trace     *Trace
}

// New creates a client. A nil logger is replaced with a no-op one.
func New(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := &Client{
		cfg:       cfg,
		log:       log,
		transport: newTransport(cfg.Timeout, log),
	}
	if cfg.Trace {
		c.trace = newTrace()
		c.log = log.With(zap.String("trace_id", c.trace.ID))
		c.log.Warn("Diagnostic tracing enabled; plaintext artifacts will be retained in memory",
			zap.Bool("security_event", true))
	}
	return c
}

// Connected reports whether a session is established
func (c *Client) Connected() bool {
	return c.connected
}

// Document returns the decoded attestation of the connected enclave
func (c *Client) Document() *attestation.Document {
	return c.doc
}

// Trace returns the diagnostic trace, or nil when tracing is disabled
func (c *Client) Trace() *Trace {
	return c.trace
}

// Connect fetches the enclave's attestation from endpoint, decodes it,
// extracts and validates the embedded public key, and establishes the
// session. On any failure the client stays unconnected and Connect is
// safely retryable.
func (c *Client) Connect(ctx context.Context, endpoint string) error {
	log := c.log.With(zap.String("endpoint", endpoint))

	start := time.Now()
	fetched, err := c.transport.fetchAttestation(ctx, endpoint)
	c.trace.add("fetch_attestation", start, err, nil)
	if err != nil {
		log.Error("Failed to fetch attestation", zap.Error(err))
		return err
	}

	start = time.Now()
	doc, err := c.resolveDocument(fetched)
	c.trace.add("decode_attestation", start, err, traceDocSummary(doc))
	if err != nil {
		log.Error("Failed to decode attestation", zap.Error(err))
		return err
	}

	start = time.Now()
	curve, err := keys.DetectCurve(doc.PublicKeyBytes, log)
	c.trace.add("detect_curve", start, err, map[string]string{"curve": curve.String()})
	if err != nil {
		return err
	}

	// Handshake: generate our ephemeral pair and prove the session key is
	// derivable. An all-zero or off-curve peer key fails here, never later.
	start = time.Now()
	hs, err := keys.NewHandshake(curve, log)
	if err == nil {
		if err = hs.GenerateKeys(); err == nil {
			_, err = hs.Establish(doc.PublicKeyBytes)
		}
	}
	if err != nil {
		c.trace.add("handshake", start, err, nil)
		log.Error("Handshake failed", zap.Error(err))
		return err
	}
	c.trace.add("handshake", start, nil, map[string]string{
		"state":            hs.State().String(),
		"server_key_bytes": strconv.Itoa(len(doc.PublicKeyBytes)),
	})

	codec, err := envelope.NewCodec(curve, c.cfg.KeyMode, hs.KeyPair(), log)
	if err != nil {
		return err
	}

	c.endpoint = endpoint
	c.doc = doc
	c.serverKey = doc.PublicKeyBytes
	c.curve = curve
	c.codec = codec
	c.connected = true
	log.Info("Session established",
		zap.String("curve", curve.String()),
		zap.String("module_id", doc.ModuleID))
	return nil
}

// resolveDocument turns a fetched attestation into a decoded Document,
// running the configured trust verifier on real envelopes first.
func (c *Client) resolveDocument(fetched *fetchedAttestation) (*attestation.Document, error) {
	if fetched.Mock != nil {
		return mockDocument(fetched.Mock)
	}
	if c.cfg.Verifier != nil {
		if err := c.cfg.Verifier.Verify(fetched.Raw); err != nil {
			return nil, err
		}
	}
	doc, _, err := attestation.Decode(fetched.Raw)
	return doc, err
}

// Call performs a plaintext JSON exchange. It is the entry point for
// public, non-sensitive endpoints; CallEncrypted layers on top of the same
// transport.
func (c *Client) Call(ctx context.Context, path, method string, body any) (json.RawMessage, error) {
	if method == "" {
		method = http.MethodGet
	}
	_, respBody, err := c.transport.do(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

// CallEncrypted serializes body, seals it for the enclave, POSTs it to
// path, and opens the encrypted response. Plain JSON responses pass through
// unchanged with Encrypted=false.
func (c *Client) CallEncrypted(ctx context.Context, path string, body any) (*Response, error) {
	if !c.connected {
		return nil, &shared.ChannelError{Type: "state_error", Message: "client is not connected; call Connect first"}
	}

	plaintext, err := json.Marshal(body)
	if err != nil {
		return nil, &shared.ChannelError{Type: "state_error", Message: "request body is not serializable", Cause: err}
	}

	start := time.Now()
	sealed, err := c.codec.Encrypt(plaintext, c.serverKey)
	c.trace.add("encrypt_request", start, err, traceEnvelope(sealed, plaintext))
	if err != nil {
		c.log.Error("Failed to encrypt request", zap.Error(err))
		return nil, err
	}

	start = time.Now()
	_, respBody, err := c.transport.do(ctx, http.MethodPost, c.url(path), sealed)
	c.trace.add("http_exchange", start, err, map[string]string{"path": path})
	if err != nil {
		return nil, err
	}

	return c.openResponse(respBody)
}

// openResponse decrypts a response whose data field carries an encrypted
// envelope, and passes anything else through as plain JSON.
func (c *Client) openResponse(body []byte) (*Response, error) {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
		Sig  string          `json:"sig"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil || len(wrapper.Data) == 0 {
		return &Response{Data: body}, nil
	}

	var inner struct {
		Nonce         string `json:"nonce"`
		PublicKey     string `json:"public_key"`
		Data          string `json:"data"`
		EncryptedData string `json:"encrypted_data"`
	}
	if err := json.Unmarshal(wrapper.Data, &inner); err != nil || inner.Nonce == "" || inner.PublicKey == "" {
		return &Response{Data: body, Sig: wrapper.Sig}, nil
	}

	// Older enclave images name the ciphertext field encrypted_data
	ciphertext := inner.Data
	if ciphertext == "" {
		ciphertext = inner.EncryptedData
	}
	if ciphertext == "" {
		return &Response{Data: body, Sig: wrapper.Sig}, nil
	}

	start := time.Now()
	plaintext, err := c.codec.Decrypt(&envelope.Encrypted{
		Nonce:     inner.Nonce,
		PublicKey: inner.PublicKey,
		Data:      ciphertext,
	})
	c.trace.add("decrypt_response", start, err, map[string]string{
		"ciphertext": ciphertext,
		"plaintext":  string(plaintext),
	})
	if err != nil {
		c.log.Error("Failed to decrypt response", zap.Error(err))
		return nil, err
	}

	return &Response{Data: plaintext, Sig: wrapper.Sig, Encrypted: true}, nil
}

func (c *Client) url(path string) string {
	base := c.endpoint
	if base == "" {
		return path
	}
	if len(path) > 0 && path[0] != '/' {
		path = "/" + path
	}
	return base + path
}

// mockDocument builds a minimal document from a mock-mode response, where
// public_key is the hex of a raw or wrapped key
func mockDocument(mock *mockAttestation) (*attestation.Document, error) {
	raw, err := hex.DecodeString(mock.PublicKey)
	if err != nil {
		return nil, shared.NewDecodeError("field", "public_key", "mock public key is not valid hex", err)
	}
	wrapped, err := keys.ToWrapped(raw)
	if err != nil {
		return nil, shared.NewDecodeError("field", "public_key", "mock public key is not a convertible encoding", err)
	}
	return &attestation.Document{
		ModuleID:       "mock",
		PublicKey:      hex.EncodeToString(wrapped),
		PublicKeyBytes: wrapped,
	}, nil
}

func traceDocSummary(doc *attestation.Document) map[string]string {
	if doc == nil {
		return nil
	}
	return map[string]string{
		"module_id":  doc.ModuleID,
		"digest":     doc.Digest,
		"pcr_count":  strconv.Itoa(len(doc.PCRs)),
		"public_key": doc.PublicKey,
	}
}

func traceEnvelope(sealed *envelope.Encrypted, plaintext []byte) map[string]string {
	if sealed == nil {
		return nil
	}
	return map[string]string{
		"nonce":      sealed.Nonce,
		"public_key": sealed.PublicKey,
		"ciphertext": sealed.Data,
		"plaintext":  string(plaintext),
	}
}
