package hal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/matsen/pubharvest/internal/source"
)

// halStub serves /search from pages keyed by cursorMark and TEI metadata
// for /<doc>/metadata.
type halStub struct {
	server        *httptest.Server
	searchCalls   atomic.Int32
	metadataCalls atomic.Int32
}

func newHALStub(t *testing.T, pages map[string][]string, next map[string]string) *halStub {
	t.Helper()
	stub := &halStub{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search" {
			stub.searchCalls.Add(1)
			q := r.URL.Query()
			if q.Get("wt") != "json" || q.Get("fq") != "submittedDateY_i:2020" || q.Get("sort") != "docid asc" {
				t.Errorf("unexpected search params: %s", r.URL.RawQuery)
			}
			cursor := q.Get("cursorMark")
			docs := make([]map[string]string, 0)
			for _, id := range pages[cursor] {
				docs = append(docs, map[string]string{"uri_s": stub.server.URL + "/" + id})
			}
			json.NewEncoder(w).Encode(map[string]any{
				"response":       map[string]any{"numFound": 3, "docs": docs},
				"nextCursorMark": next[cursor],
			})
			return
		}

		id, ok := strings.CutSuffix(strings.TrimPrefix(r.URL.Path, "/"), "/metadata")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		stub.metadataCalls.Add(1)
		if id == "broken" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, `<TEI><text><body><listBibl><biblFull>
			<titleStmt><title>Title %[1]s</title></titleStmt>
			<publicationStmt><idno type="halUri">https://hal.science/%[1]s</idno></publicationStmt>
		</biblFull></listBibl></body></text></TEI>`, id)
	}))
	return stub
}

func newTestFetcher(url string, cfg Config) *Fetcher {
	cfg.URL = url + "/search"
	cfg.Query = `"Laue Langevin"`
	cfg.Year = 2020
	return New(cfg, source.NewClient(source.WithRateLimit(1000)), zerolog.Nop())
}

func TestFetch_CursorMarkTermination(t *testing.T) {
	stub := newHALStub(t,
		map[string][]string{"*": {"hal-1", "hal-2"}, "AoE1": {"hal-3"}, "AoE2": {}},
		map[string]string{"*": "AoE1", "AoE1": "AoE2", "AoE2": "AoE2"},
	)
	defer stub.server.Close()

	f := newTestFetcher(stub.server.URL, Config{})
	payload, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(payload) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(payload))
	}
	if got := stub.searchCalls.Load(); got != 3 {
		t.Errorf("expected 3 search requests, got %d", got)
	}
	if got := stub.metadataCalls.Load(); got != 3 {
		t.Errorf("expected 3 metadata requests, got %d", got)
	}

	recs, skipped := f.Normalize(payload)
	if len(skipped) != 0 {
		t.Fatalf("unexpected skips: %v", skipped)
	}
	for i, want := range []string{"hal-1", "hal-2", "hal-3"} {
		if recs[i].ID != "hal.science/"+want {
			t.Errorf("record %d ID = %q, want hal.science/%s", i, recs[i].ID, want)
		}
	}
}

func TestFetch_MaxPagesBound(t *testing.T) {
	// The provider never repeats the cursor: every mark points to a fresh one.
	var pages = map[string][]string{}
	var next = map[string]string{}
	cursor := "*"
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("hal-%d", i)
		pages[cursor] = []string{id}
		next[cursor] = "c" + id
		cursor = "c" + id
	}
	stub := newHALStub(t, pages, next)
	defer stub.server.Close()

	f := newTestFetcher(stub.server.URL, Config{MaxPages: 4})
	uris, err := f.ListURIs(context.Background())
	if err != nil {
		t.Fatalf("ListURIs: %v", err)
	}
	if len(uris) != 4 {
		t.Errorf("expected 4 URIs, got %d", len(uris))
	}
	if got := stub.searchCalls.Load(); got != 4 {
		t.Errorf("expected 4 search requests, got %d", got)
	}
}

func TestFetch_ConcurrentMetadataKeepsOrder(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f"}
	stub := newHALStub(t,
		map[string][]string{"*": ids},
		map[string]string{"*": "*"},
	)
	defer stub.server.Close()

	f := newTestFetcher(stub.server.URL, Config{MetadataConcurrency: 3})
	payload, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	recs, _ := f.Normalize(payload)
	if len(recs) != len(ids) {
		t.Fatalf("expected %d records, got %d", len(ids), len(recs))
	}
	for i, id := range ids {
		if recs[i].ID != "hal.science/"+id {
			t.Errorf("record %d ID = %q, want hal.science/%s", i, recs[i].ID, id)
		}
	}
}

func TestFetch_MetadataFailureAborts(t *testing.T) {
	stub := newHALStub(t,
		map[string][]string{"*": {"hal-1", "broken"}},
		map[string]string{"*": "*"},
	)
	defer stub.server.Close()

	f := newTestFetcher(stub.server.URL, Config{})
	payload, err := f.Fetch(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !source.IsNetworkError(err) {
		t.Errorf("expected network error, got %v", err)
	}
	if payload != nil {
		t.Errorf("expected no payload, got %d documents", len(payload))
	}
}

func TestSearch_MissingCursorIsParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{"numFound":0,"docs":[]}}`))
	}))
	defer server.Close()

	f := New(Config{URL: server.URL}, source.NewClient(source.WithRateLimit(1000)), zerolog.Nop())
	if _, err := f.Search(context.Background(), InitialCursor); err == nil {
		t.Fatal("expected error for response without nextCursorMark")
	}
}
