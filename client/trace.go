package client

import (
	"time"

	"github.com/google/uuid"
)

// Trace is the diagnostic overlay: a step-by-step record of one client's
// handshake and calls, for operator debugging of interoperability breaks.
//
// It deliberately retains plaintext and ciphertext artifacts in memory, so
// it is never enabled by default and must not be turned on in production.
type Trace struct {
	ID    string      `json:"id"`
	Steps []TraceStep `json:"steps"`
}

// TraceStep records one intermediate artifact of the protocol
type TraceStep struct {
	Name      string            `json:"name"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
	OK        bool              `json:"ok"`
	Error     string            `json:"error,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

func newTrace() *Trace {
	return &Trace{ID: uuid.NewString()}
}

// add appends a step; a nil trace is a no-op so call sites need no guards
func (t *Trace) add(name string, start time.Time, err error, detail map[string]string) {
	if t == nil {
		return
	}
	step := TraceStep{
		Name:      name,
		StartedAt: start,
		Duration:  time.Since(start),
		OK:        err == nil,
		Detail:    detail,
	}
	if err != nil {
		step.Error = err.Error()
	}
	t.Steps = append(t.Steps, step)
}
