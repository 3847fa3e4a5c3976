package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/54b3r/kbrag-go/internal/rag"
	"github.com/54b3r/kbrag-go/internal/store"
)

// ---------------------------------------------------------------------------
// Fake Pinger for readiness tests
// ---------------------------------------------------------------------------

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	// name is returned by Name().
	name string
	// err is returned by Ping(); nil means healthy.
	err error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// newReadyTestServer builds a *Server with the given pingers wired in.
func newReadyTestServer(t *testing.T, pingers ...Pinger) *Server {
	t.Helper()
	s, _ := newTestServer(t)
	s.pingers = pingers
	return s
}

// ---------------------------------------------------------------------------
// GET /api/health (liveness)
// ---------------------------------------------------------------------------

// TestHandleHealth_OK verifies that GET /api/health returns 200 with a JSON
// body containing {"status":"ok"}.
func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d, body: %s", w.Code, w.Body.String())
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status: expected %q, got %q", "ok", body["status"])
	}
}

// ---------------------------------------------------------------------------
// GET /api/ready (readiness)
// ---------------------------------------------------------------------------

// TestHandleReady_NoPingers verifies that /api/ready returns 200 with
// ready:true and an empty checks array when no pingers are registered.
func TestHandleReady_NoPingers(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ready {
		t.Errorf("expected ready:true with no pingers")
	}
	if len(resp.Checks) != 0 {
		t.Errorf("expected 0 checks, got %d", len(resp.Checks))
	}
}

// TestHandleReady_AllHealthy verifies that /api/ready returns 200 with
// ready:true when all pingers succeed.
func TestHandleReady_AllHealthy(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(t,
		&fakePinger{name: "embedder", err: nil},
		&fakePinger{name: "vector_store", err: nil},
	)
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ready {
		t.Errorf("expected ready:true")
	}
	if len(resp.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(resp.Checks))
	}
	for _, c := range resp.Checks {
		if !c.OK {
			t.Errorf("check %q: expected ok:true", c.Name)
		}
		if c.Error != "" {
			t.Errorf("check %q: expected no error, got %q", c.Name, c.Error)
		}
	}
}

// barrierPinger succeeds only once every pinger sharing its barrier has
// started, so it times out if checks run one after another.
type barrierPinger struct {
	name    string
	arrived *sync.WaitGroup
	delay   time.Duration
}

func (b *barrierPinger) Name() string { return b.name }

func (b *barrierPinger) Ping(ctx context.Context) error {
	b.arrived.Done()
	done := make(chan struct{})
	go func() {
		b.arrived.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	time.Sleep(b.delay)
	return nil
}

// TestHandleReady_ChecksRunConcurrently verifies that checks overlap, keep
// registration order in the response and report their latency.
func TestHandleReady_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()

	var arrived sync.WaitGroup
	arrived.Add(3)
	s := newReadyTestServer(t,
		&barrierPinger{name: "vector_store", arrived: &arrived, delay: 20 * time.Millisecond},
		&barrierPinger{name: "embedder", arrived: &arrived},
		&barrierPinger{name: "sessions", arrived: &arrived},
	)

	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"vector_store", "embedder", "sessions"}
	if len(resp.Checks) != len(want) {
		t.Fatalf("expected %d checks, got %d", len(want), len(resp.Checks))
	}
	for i, c := range resp.Checks {
		if c.Name != want[i] {
			t.Errorf("check %d = %q, want %q", i, c.Name, want[i])
		}
		if !c.OK {
			t.Errorf("check %q failed: %s", c.Name, c.Error)
		}
	}
	if resp.Checks[0].LatencyMS < 20 {
		t.Errorf("vector_store latency_ms = %d, want >= 20", resp.Checks[0].LatencyMS)
	}
}

// TestHandleReady_OneFailing verifies that /api/ready returns 503 with
// ready:false when one pinger fails, and the failing check has ok:false
// with a non-empty error field.
func TestHandleReady_OneFailing(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(t,
		&fakePinger{name: "embedder", err: nil},
		&fakePinger{name: "vector_store", err: errors.New("connection refused")},
	)
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d, body: %s", w.Code, w.Body.String())
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ready {
		t.Errorf("expected ready:false")
	}

	var storeCheck *readyCheck
	for i := range resp.Checks {
		if resp.Checks[i].Name == "vector_store" {
			storeCheck = &resp.Checks[i]
		}
	}
	if storeCheck == nil {
		t.Fatal("vector_store check missing from response")
	}
	if storeCheck.OK {
		t.Errorf("vector_store check: expected ok:false")
	}
	if storeCheck.Error == "" {
		t.Errorf("vector_store check: expected non-empty error")
	}
}

// TestHandleReady_AllFailing verifies that /api/ready returns 503 with
// ready:false and all checks showing ok:false when every pinger fails.
func TestHandleReady_AllFailing(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(t,
		&fakePinger{name: "embedder", err: errors.New("timeout")},
		&fakePinger{name: "vector_store", err: errors.New("connection refused")},
	)
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d, body: %s", w.Code, w.Body.String())
	}

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ready {
		t.Errorf("expected ready:false")
	}
	for _, c := range resp.Checks {
		if c.OK {
			t.Errorf("check %q: expected ok:false", c.Name)
		}
	}
}

// TestHandleReady_ContentType verifies the response always has Content-Type
// application/json regardless of check outcome.
func TestHandleReady_ContentType(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(t, &fakePinger{name: "embedder", err: errors.New("down")})
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()

	s.handleReady(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
}

// ---------------------------------------------------------------------------
// Concrete pingers
// ---------------------------------------------------------------------------

type stubEmbedder struct {
	vecs [][]float32
	err  error
}

func (s *stubEmbedder) Embed(context.Context, []string) ([][]float32, error) { return s.vecs, s.err }

func TestPingers(t *testing.T) {
	t.Parallel()

	vs, err := rag.NewChromemStore(nil)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		pinger  Pinger
		wantErr bool
	}{
		{"vector store", NewVectorStorePinger(vs, "chromem"), false},
		{"session store", NewSessionStorePinger(store.NewMemoryStore()), false},
		{"embedder ok", NewEmbedderPinger(&stubEmbedder{vecs: [][]float32{{0.1}}}, "embedder"), false},
		{"embedder empty", NewEmbedderPinger(&stubEmbedder{}, "embedder"), true},
		{"embedder down", NewEmbedderPinger(&stubEmbedder{err: errors.New("refused")}, "embedder"), true},
		{"llm ok", NewLLMPinger(func(context.Context) error { return nil }, "gemini"), false},
		{"llm no key", NewLLMPinger(func(context.Context) error { return errors.New("no key") }, "gemini"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.pinger.Ping(context.Background())
			if (err != nil) != tc.wantErr {
				t.Errorf("Ping() error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.pinger.Name() == "" {
				t.Error("Name() is empty")
			}
		})
	}
}

// TestMultiPinger_ReportsFirstFailure verifies the aggregate pinger names
// the failing dependency.
func TestMultiPinger_ReportsFirstFailure(t *testing.T) {
	t.Parallel()

	m := NewMultiPinger(
		&fakePinger{name: "sessions"},
		&fakePinger{name: "vector_store", err: errors.New("refused")},
		&fakePinger{name: "embedder", err: errors.New("timeout")},
	)
	err := m.Ping(context.Background())
	if err == nil || !strings.HasPrefix(err.Error(), "vector_store:") {
		t.Errorf("Ping() = %v, want vector_store failure", err)
	}
}
