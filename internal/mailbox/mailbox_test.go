package mailbox

import (
	"context"
	"os"
	"testing"
	"time"
)

func newTestMailbox(t *testing.T, opts Options) *Mailbox {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	if opts.MaxPollAttempts == 0 {
		opts.MaxPollAttempts = 5
	}
	m, err := New(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestPostThenClaimDeliversAtMostOnce(t *testing.T) {
	m := newTestMailbox(t, Options{})

	id, err := m.Post("how many pods are failing?")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if id == 0 {
		t.Fatal("Post returned id 0")
	}
	if _, err := os.Stat(m.RequestPath()); err != nil {
		t.Fatalf("request slot missing after Post: %v", err)
	}

	env, ok, err := m.NextRequest()
	if err != nil || !ok {
		t.Fatalf("NextRequest: ok=%v err=%v", ok, err)
	}
	if env.ID != id || env.Body != "how many pods are failing?" {
		t.Fatalf("claimed %+v, want id %d", env, id)
	}
	if _, err := os.Stat(m.RequestPath()); !os.IsNotExist(err) {
		t.Fatalf("request slot still exists after claim: %v", err)
	}

	if _, ok, err := m.NextRequest(); err != nil || ok {
		t.Fatalf("second claim: ok=%v err=%v, want nothing pending", ok, err)
	}
}

func TestRespondThenAwait(t *testing.T) {
	m := newTestMailbox(t, Options{})

	id, err := m.Post("query")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if err := m.Respond(id, "two pods are failing"); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	got, err := m.AwaitResponse(context.Background(), id)
	if err != nil {
		t.Fatalf("AwaitResponse: %v", err)
	}
	if got != "two pods are failing" {
		t.Fatalf("answer = %q", got)
	}
	if _, err := os.Stat(m.ResponsePath()); !os.IsNotExist(err) {
		t.Fatal("response slot not claimed")
	}
}

func TestAwaitExhaustionReturnsSentinelNotError(t *testing.T) {
	m := newTestMailbox(t, Options{PollInterval: time.Millisecond, MaxPollAttempts: 3})

	got, err := m.AwaitResponse(context.Background(), 42)
	if err != nil {
		t.Fatalf("AwaitResponse: %v", err)
	}
	if got != TimeoutSentinel {
		t.Fatalf("answer = %q, want the timeout sentinel", got)
	}
}

func TestAwaitDiscardsStaleResponses(t *testing.T) {
	m := newTestMailbox(t, Options{PollInterval: 10 * time.Millisecond, MaxPollAttempts: 20})

	id, err := m.Post("fresh question")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if err := m.Respond(id-1, "stale answer"); err != nil {
		t.Fatalf("Respond stale: %v", err)
	}
	go func() {
		time.Sleep(40 * time.Millisecond)
		_ = m.Respond(id, "fresh answer")
	}()

	got, err := m.AwaitResponse(context.Background(), id)
	if err != nil {
		t.Fatalf("AwaitResponse: %v", err)
	}
	if got != "fresh answer" {
		t.Fatalf("answer = %q, stale response leaked through", got)
	}
}

func TestLegacyPlainTextPayloads(t *testing.T) {
	m := newTestMailbox(t, Options{})

	if err := os.WriteFile(m.RequestPath(), []byte("plain question\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	env, ok, err := m.NextRequest()
	if err != nil || !ok {
		t.Fatalf("NextRequest: ok=%v err=%v", ok, err)
	}
	if env.ID != 0 || env.Body != "plain question" {
		t.Fatalf("claimed %+v, want id 0 with trimmed body", env)
	}

	// A bare-text response matches any request id.
	if err := os.WriteFile(m.ResponsePath(), []byte("plain answer"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := m.AwaitResponse(context.Background(), 777)
	if err != nil {
		t.Fatalf("AwaitResponse: %v", err)
	}
	if got != "plain answer" {
		t.Fatalf("answer = %q", got)
	}
}

func TestEmptyFileIsNotReady(t *testing.T) {
	m := newTestMailbox(t, Options{})

	if err := os.WriteFile(m.RequestPath(), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok, err := m.NextRequest(); err != nil || ok {
		t.Fatalf("empty slot claimed: ok=%v err=%v", ok, err)
	}
}

func TestAwaitHonorsContext(t *testing.T) {
	m := newTestMailbox(t, Options{PollInterval: time.Hour, MaxPollAttempts: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.AwaitResponse(ctx, 1); err == nil {
		t.Fatal("expected context error")
	}
}

func TestIsQuit(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"q", true},
		{"Q", true},
		{"quit", true},
		{" QUIT ", true},
		{"query", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsQuit(tc.in); got != tc.want {
			t.Fatalf("IsQuit(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestPostQuitIsClaimedAsQuit(t *testing.T) {
	m := newTestMailbox(t, Options{})

	if err := m.PostQuit(); err != nil {
		t.Fatalf("PostQuit: %v", err)
	}
	env, ok, err := m.NextRequest()
	if err != nil || !ok {
		t.Fatalf("NextRequest: ok=%v err=%v", ok, err)
	}
	if !IsQuit(env.Body) {
		t.Fatalf("claimed body %q is not a quit command", env.Body)
	}
}

func TestPostIDsAreMonotonic(t *testing.T) {
	m := newTestMailbox(t, Options{})

	var last uint64
	for i := 0; i < 5; i++ {
		id, err := m.Post("q")
		if err != nil {
			t.Fatalf("Post: %v", err)
		}
		if id <= last {
			t.Fatalf("id %d not greater than %d", id, last)
		}
		last = id
		if _, _, err := m.NextRequest(); err != nil {
			t.Fatalf("drain: %v", err)
		}
	}
}
