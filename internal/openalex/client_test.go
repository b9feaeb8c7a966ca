package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/matsen/pubharvest/internal/source"
	"github.com/matsen/pubharvest/internal/tree"
)

// pagedServer serves pages keyed by cursor. The last page carries a null
// next_cursor.
func pagedServer(t *testing.T, pages map[string][]string, next map[string]any) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		cursor := r.URL.Query().Get("cursor")
		ids, ok := pages[cursor]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		results := make([]map[string]any, len(ids))
		for i, id := range ids {
			results[i] = map[string]any{"id": "https://openalex.org/" + id, "title": "Work " + id}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"meta":    map[string]any{"next_cursor": next[cursor]},
			"results": results,
		})
	}))
	return server, &calls
}

func newTestFetcher(url string) *Fetcher {
	client := source.NewClient(source.WithRateLimit(1000))
	return New(Config{URL: url, ROR: "01xtjs520", Year: 2023, PerPage: 2}, client, zerolog.Nop())
}

func TestFetchQuery_ThreePages(t *testing.T) {
	server, calls := pagedServer(t,
		map[string][]string{
			"*":  {"W1", "W2"},
			"c2": {"W3", "W4"},
			"c3": {"W5"},
		},
		map[string]any{"*": "c2", "c2": "c3", "c3": nil},
	)
	defer server.Close()

	f := newTestFetcher(server.URL)
	items, err := f.FetchQuery(context.Background(), f.cfg.Queries()[0])
	if err != nil {
		t.Fatalf("FetchQuery: %v", err)
	}

	want := []string{"W1", "W2", "W3", "W4", "W5"}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for i, item := range items {
		id, _ := tree.String(item, "id")
		if id != "https://openalex.org/"+want[i] {
			t.Errorf("item %d id = %q, want %s", i, id, want[i])
		}
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 requests, got %d", got)
	}
}

func TestFetchQuery_EmptyCursorTerminates(t *testing.T) {
	server, calls := pagedServer(t,
		map[string][]string{"*": {"W1"}},
		map[string]any{"*": ""},
	)
	defer server.Close()

	f := newTestFetcher(server.URL)
	items, err := f.FetchQuery(context.Background(), f.cfg.Queries()[0])
	if err != nil {
		t.Fatalf("FetchQuery: %v", err)
	}
	if len(items) != 1 || calls.Load() != 1 {
		t.Errorf("expected 1 item from 1 request, got %d items, %d requests", len(items), calls.Load())
	}
}

func TestFetchQuery_StatusErrorDiscardsPartial(t *testing.T) {
	// Page c2 is missing from the map, so the server answers 400.
	server, _ := pagedServer(t,
		map[string][]string{"*": {"W1", "W2"}},
		map[string]any{"*": "c2"},
	)
	defer server.Close()

	f := newTestFetcher(server.URL)
	items, err := f.FetchQuery(context.Background(), f.cfg.Queries()[0])
	if err == nil {
		t.Fatal("expected error")
	}
	if !source.IsNetworkError(err) {
		t.Errorf("expected network error, got %v", err)
	}
	if items != nil {
		t.Errorf("expected partial results discarded, got %d items", len(items))
	}
}

func TestPages_Lazy(t *testing.T) {
	server, calls := pagedServer(t,
		map[string][]string{"*": {"W1"}, "c2": {"W2"}},
		map[string]any{"*": "c2", "c2": nil},
	)
	defer server.Close()

	f := newTestFetcher(server.URL)
	for items, err := range f.Pages(context.Background(), f.cfg.Queries()[0]) {
		if err != nil {
			t.Fatalf("Pages: %v", err)
		}
		if len(items) != 1 {
			t.Errorf("expected 1 item on first page, got %d", len(items))
		}
		break
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 request after breaking early, got %d", got)
	}
}

func TestFetch_MultipleQueriesInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("filter")
		id := "W-ror"
		if filter != "institutions.ror:01xtjs520,publication_year:2023" {
			id = "W-search"
		}
		fmt.Fprintf(w, `{"meta":{"next_cursor":null},"results":[{"id":"https://openalex.org/%s"}]}`, id)
	}))
	defer server.Close()

	client := source.NewClient(source.WithRateLimit(1000))
	f := New(Config{
		URL: server.URL, ROR: "01xtjs520", InstitutionID: "I123", Year: 2023, Search: "neutron",
	}, client, zerolog.Nop())

	payload, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(payload) != 2 {
		t.Fatalf("expected 2 results, got %d", len(payload))
	}
	first, _ := tree.String(payload[0], "id")
	second, _ := tree.String(payload[1], "id")
	if first != "https://openalex.org/W-ror" || second != "https://openalex.org/W-search" {
		t.Errorf("unexpected order: %q, %q", first, second)
	}
}

func TestConfigQueries(t *testing.T) {
	cfg := Config{ROR: "01xtjs520", Year: 2022}
	qs := cfg.Queries()
	if len(qs) != 1 {
		t.Fatalf("expected 1 query without search, got %d", len(qs))
	}
	if qs[0].PerPage != DefaultPerPage {
		t.Errorf("PerPage = %d, want %d", qs[0].PerPage, DefaultPerPage)
	}

	cfg.InstitutionID = "I4210"
	cfg.Search = "neutron"
	qs = cfg.Queries()
	if len(qs) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(qs))
	}
	want := "authorships.institutions.lineage:!I4210,publication_year:2022,default.search:neutron"
	if qs[1].Filter != want {
		t.Errorf("Filter = %q, want %q", qs[1].Filter, want)
	}
}
