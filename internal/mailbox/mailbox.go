// Package mailbox implements the file rendezvous between the chat frontend
// and the agent worker. Each direction is a single slot file: the writer
// drops a whole payload, the reader claims it by deleting the file. Requests
// and responses travel in a small JSON envelope whose id lets a reader
// discard answers left over from an earlier exchange.
package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// DefaultDir is where the slot files live unless configured otherwise.
	DefaultDir = "/tmp/mcp"

	// RequestSlotName and ResponseSlotName are the slot file names inside
	// the mailbox directory.
	RequestSlotName  = "k8sinput.txt"
	ResponseSlotName = "k8sresponse.txt"

	// DefaultPollInterval is how long a reader sleeps before each check.
	DefaultPollInterval = 2 * time.Second

	// DefaultMaxPollAttempts bounds how many checks AwaitResponse makes
	// before giving up.
	DefaultMaxPollAttempts = 10

	// TimeoutSentinel is returned in place of an answer when the worker
	// never responds within the polling budget.
	TimeoutSentinel = "MCP Client did not respond within the time limit"
)

// Envelope is the payload written into a slot.
type Envelope struct {
	ID   uint64 `json:"id"`
	Body string `json:"body"`
}

// Slot is one direction of the mailbox: a single file holding at most one
// pending payload.
type Slot struct {
	path string
}

// Path returns the slot's file path.
func (s Slot) Path() string { return s.path }

// Write replaces the slot's contents with the encoded envelope.
func (s Slot) Write(env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return os.WriteFile(s.path, payload, 0o644)
}

// TryClaim takes the pending payload, if any. Claiming deletes the file, so
// each payload is delivered at most once. A missing or empty file means
// nothing is pending.
func (s Slot) TryClaim() (Envelope, bool, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Envelope{}, false, nil
	}
	if err != nil {
		return Envelope{}, false, err
	}
	if info.Size() == 0 {
		return Envelope{}, false, nil
	}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Envelope{}, false, nil
	}
	if err != nil {
		return Envelope{}, false, err
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Envelope{}, false, err
	}
	return decodeEnvelope(raw), true, nil
}

// Clear deletes any pending payload without reading it.
func (s Slot) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// decodeEnvelope accepts both the JSON envelope and bare text written by
// older frontends. Bare text decodes with id zero, which matches any
// request.
func decodeEnvelope(raw []byte) Envelope {
	trimmed := bytes.TrimSpace(raw)
	var env Envelope
	if len(trimmed) > 0 && trimmed[0] == '{' && json.Unmarshal(trimmed, &env) == nil && env.Body != "" {
		return env
	}
	return Envelope{Body: string(trimmed)}
}

// Options tune the polling behavior of AwaitResponse.
type Options struct {
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Mailbox pairs the request and response slots under one directory.
type Mailbox struct {
	request  Slot
	response Slot
	interval time.Duration
	attempts int
	seq      atomic.Uint64
}

// New creates the mailbox directory if needed and returns a mailbox over
// it. An empty dir selects DefaultDir.
func New(dir string, opts Options) (*Mailbox, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create mailbox dir %s: %w", dir, err)
	}

	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	attempts := opts.MaxPollAttempts
	if attempts <= 0 {
		attempts = DefaultMaxPollAttempts
	}

	m := &Mailbox{
		request:  Slot{path: filepath.Join(dir, RequestSlotName)},
		response: Slot{path: filepath.Join(dir, ResponseSlotName)},
		interval: interval,
		attempts: attempts,
	}
	// Seed the sequence from the clock so ids stay ahead of anything a
	// previous run left behind in the response slot.
	m.seq.Store(uint64(time.Now().UnixNano()))
	return m, nil
}

// RequestPath returns the request slot's file path.
func (m *Mailbox) RequestPath() string { return m.request.Path() }

// ResponsePath returns the response slot's file path.
func (m *Mailbox) ResponsePath() string { return m.response.Path() }

// Post writes a query into the request slot and returns the id the
// response must carry.
func (m *Mailbox) Post(query string) (uint64, error) {
	id := m.seq.Add(1)
	if err := m.request.Write(Envelope{ID: id, Body: query}); err != nil {
		return 0, fmt.Errorf("post request: %w", err)
	}
	return id, nil
}

// AwaitResponse polls the response slot for the answer to the given
// request. It sleeps before every check. Answers carrying a different,
// non-zero id are stale and get discarded. When the polling budget runs out
// the sentinel text is returned in place of an answer, not an error.
func (m *Mailbox) AwaitResponse(ctx context.Context, id uint64) (string, error) {
	for attempt := 0; attempt < m.attempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.interval):
		}

		env, ok, err := m.response.TryClaim()
		if err != nil {
			return "", fmt.Errorf("claim response: %w", err)
		}
		if !ok {
			continue
		}
		if env.ID != 0 && env.ID != id {
			// Leftover answer to an earlier request. Keep waiting.
			continue
		}
		return env.Body, nil
	}
	return TimeoutSentinel, nil
}

// PostQuit posts the shutdown command into the request slot.
func (m *Mailbox) PostQuit() error {
	_, err := m.Post("q")
	return err
}

// NextRequest claims the pending request, if any.
func (m *Mailbox) NextRequest() (Envelope, bool, error) {
	env, ok, err := m.request.TryClaim()
	if err != nil {
		return Envelope{}, false, fmt.Errorf("claim request: %w", err)
	}
	return env, ok, nil
}

// Respond writes the answer for the given request id into the response
// slot.
func (m *Mailbox) Respond(id uint64, body string) error {
	if err := m.response.Write(Envelope{ID: id, Body: body}); err != nil {
		return fmt.Errorf("post response: %w", err)
	}
	return nil
}

// IsQuit reports whether a request body is the shutdown command.
func IsQuit(body string) bool {
	switch strings.ToLower(strings.TrimSpace(body)) {
	case "q", "quit":
		return true
	}
	return false
}
