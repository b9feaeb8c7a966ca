package flora

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/matsen/pubharvest/internal/source"
)

// floraStub emulates the batch API: login hands out single-use tokens,
// the id listing returns nIDs digests, and batch requests echo records.
type floraStub struct {
	server *httptest.Server
	nIDs   int

	failLogin bool
	failBatch int // 1-based batch number answered with 500, 0 for none

	logins  atomic.Int32
	logouts atomic.Int32
	batches atomic.Int32

	mu     sync.Mutex
	events []string // "login" / "batch:<n ids>" in call order
	used   map[string]bool
}

func newFloraStub(t *testing.T, nIDs int) *floraStub {
	t.Helper()
	stub := &floraStub{nIDs: nIDs, used: map[string]bool{}}
	stub.server = httptest.NewServer(http.HandlerFunc(stub.handle))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *floraStub) record(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *floraStub) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("method") == "login":
		if s.failLogin || q.Get("code") != "user" || q.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := s.logins.Add(1)
		s.record("login")
		fmt.Fprintf(w, `<response><apiSession>tok-%d</apiSession></response>`, n)

	case q.Get("method") == "logout":
		s.logouts.Add(1)
		w.Write([]byte(`<response><status>ok</status></response>`))

	case q.Get("mode") == "list":
		var b strings.Builder
		b.WriteString(`<response><digests>`)
		for i := 1; i <= s.nIDs; i++ {
			fmt.Fprintf(&b, `<digest recordId="%d"/>`, i)
		}
		b.WriteString(`</digests></response>`)
		w.Write([]byte(b.String()))

	default:
		ids := q["recordId"]
		n := s.batches.Add(1)
		s.record(fmt.Sprintf("batch:%d", len(ids)))

		token := q.Get("apiSession")
		s.mu.Lock()
		reused := s.used[token]
		s.used[token] = true
		s.mu.Unlock()
		if reused || int(n) == s.failBatch {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var b strings.Builder
		b.WriteString(`<response><records>`)
		for _, id := range ids {
			fmt.Fprintf(&b, `<record id="%s"><DIGEST_TITLE>Record %s</DIGEST_TITLE><DIGEST_YEAR>2021</DIGEST_YEAR></record>`, id, id)
		}
		b.WriteString(`</records></response>`)
		w.Write([]byte(b.String()))
	}
}

func newTestFetcher(url string, opts ...Option) *Fetcher {
	cfg := Config{
		URL:          url,
		User:         "user",
		Password:     "secret",
		QueryParams:  map[string]string{"mode": "list"},
		RecordParams: map[string]string{"mode": "records"},
	}
	return New(cfg, source.NewClient(source.WithRateLimit(10000)), zerolog.Nop(), opts...)
}

func TestFetch_BatchesWithFreshLogin(t *testing.T) {
	stub := newFloraStub(t, 450)
	f := newTestFetcher(stub.server.URL)

	payload, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(f.BatchErrors) != 0 {
		t.Fatalf("unexpected batch errors: %v", f.BatchErrors)
	}
	if len(payload) != 3 {
		t.Fatalf("expected 3 batch payloads, got %d", len(payload))
	}
	if got := stub.batches.Load(); got != 3 {
		t.Errorf("expected 3 batch requests, got %d", got)
	}
	// One login for the listing plus one per batch.
	if got := stub.logins.Load(); got != 4 {
		t.Errorf("expected 4 logins, got %d", got)
	}

	want := []string{"login", "login", "batch:200", "login", "batch:200", "login", "batch:50"}
	stub.mu.Lock()
	got := stub.events
	stub.mu.Unlock()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("call order = %v, want %v", got, want)
	}

	recs, skipped := f.Normalize(payload)
	if len(skipped) != 0 {
		t.Errorf("unexpected skips: %v", skipped)
	}
	if len(recs) != 450 {
		t.Errorf("expected 450 records, got %d", len(recs))
	}
}

func TestFetch_SingleSessionPolicyReusesToken(t *testing.T) {
	stub := newFloraStub(t, 450)
	f := newTestFetcher(stub.server.URL, WithSessionPolicy(SingleSession))

	payload, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	// The stub treats tokens as single-use, so only the first batch succeeds.
	if len(payload) != 1 {
		t.Errorf("expected 1 successful batch, got %d", len(payload))
	}
	if len(f.BatchErrors) != 2 {
		t.Errorf("expected 2 batch errors, got %d", len(f.BatchErrors))
	}
	if got := stub.logins.Load(); got != 1 {
		t.Errorf("expected 1 login, got %d", got)
	}
}

func TestFetch_BatchFailureContinues(t *testing.T) {
	stub := newFloraStub(t, 450)
	stub.failBatch = 2
	f := newTestFetcher(stub.server.URL)

	payload, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(payload) != 2 {
		t.Errorf("expected 2 successful batches, got %d", len(payload))
	}
	if len(f.BatchErrors) != 1 {
		t.Fatalf("expected 1 batch error, got %d", len(f.BatchErrors))
	}
	var be *BatchError
	if !errors.As(f.BatchErrors[0], &be) || be.Batch != 2 || be.IDs != 200 {
		t.Errorf("unexpected batch error: %v", f.BatchErrors[0])
	}
	if !errors.Is(f.BatchErrors[0], ErrBatch) || !source.IsNetworkError(f.BatchErrors[0]) {
		t.Errorf("batch error should match ErrBatch and ErrNetwork: %v", f.BatchErrors[0])
	}
	if got := stub.batches.Load(); got != 3 {
		t.Errorf("expected all 3 batches attempted, got %d", got)
	}
}

func TestFetch_LoginFailureAborts(t *testing.T) {
	stub := newFloraStub(t, 10)
	stub.failLogin = true
	f := newTestFetcher(stub.server.URL)

	payload, err := f.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !source.IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
	if len(payload) != 0 {
		t.Errorf("expected empty payload, got %d", len(payload))
	}
	if got := stub.batches.Load(); got != 0 {
		t.Errorf("expected no batch requests, got %d", got)
	}
}

func TestFetch_LogsOutEverySession(t *testing.T) {
	stub := newFloraStub(t, 250)
	f := newTestFetcher(stub.server.URL)

	if _, err := f.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if stub.logouts.Load() != stub.logins.Load() {
		t.Errorf("logins %d != logouts %d", stub.logins.Load(), stub.logouts.Load())
	}
}

func TestLogin_MissingToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<response><error>bad credentials</error></response>`))
	}))
	defer server.Close()

	f := newTestFetcher(server.URL)
	if _, err := f.Login(context.Background()); !source.IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestFetch_NoIDs(t *testing.T) {
	stub := newFloraStub(t, 0)
	f := newTestFetcher(stub.server.URL)

	payload, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(payload) != 0 || stub.batches.Load() != 0 {
		t.Errorf("expected no batches, got payload %d, requests %d", len(payload), stub.batches.Load())
	}
}

func TestBatchCount(t *testing.T) {
	tests := []struct{ n, size, want int }{
		{0, 200, 0},
		{1, 200, 1},
		{200, 200, 1},
		{201, 200, 2},
		{450, 200, 3},
	}
	for _, tt := range tests {
		if got := batchCount(tt.n, tt.size); got != tt.want {
			t.Errorf("batchCount(%d, %d) = %d, want %d", tt.n, tt.size, got, tt.want)
		}
	}
}
