package openalex

import (
	"errors"
	"testing"

	"github.com/matsen/pubharvest/internal/source"
	"github.com/matsen/pubharvest/internal/tree"
)

func decodeWorks(t *testing.T, data string) []tree.Node {
	t.Helper()
	doc, err := tree.DecodeJSON([]byte(data))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	return tree.Items(doc)
}

func TestNormalizeWorks(t *testing.T) {
	works := decodeWorks(t, `[
		{
			"id": "https://openalex.org/W2741809807",
			"doi": "https://doi.org/10.7717/PEERJ.4375",
			"title": "The state of OA",
			"type": "article",
			"publication_year": 2018,
			"primary_location": {"source": {"issn_l": "2167-8359", "display_name": "PeerJ"}}
		},
		{
			"id": "https://openalex.org/W2",
			"doi": null,
			"title": null,
			"primary_location": null,
			"publication_year": null
		},
		{"title": "no id here"}
	]`)

	recs, skipped := NormalizeWorks(works)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if len(skipped) != 1 || !errors.Is(skipped[0], source.ErrSkipped) {
		t.Errorf("expected one skip error, got %v", skipped)
	}

	r := recs[0]
	if r.ID != "openalex.org/W2741809807" {
		t.Errorf("ID = %q", r.ID)
	}
	if r.DOIString() != "10.7717/peerj.4375" {
		t.Errorf("DOI = %q", r.DOIString())
	}
	if r.TitleString() != "The state of OA" {
		t.Errorf("Title = %q", r.TitleString())
	}
	if r.DocumentType == nil || *r.DocumentType != "article" {
		t.Errorf("DocumentType = %v", r.DocumentType)
	}
	if r.Venue == nil || *r.Venue != "2167-8359 | PeerJ" {
		t.Errorf("Venue = %v", r.Venue)
	}
	if r.YearValue() != 2018 {
		t.Errorf("Year = %d", r.YearValue())
	}
	if r.Provider != "openalex" {
		t.Errorf("Provider = %q", r.Provider)
	}

	empty := recs[1]
	if empty.DOI != nil || empty.Title != nil || empty.Venue != nil || empty.Year != nil {
		t.Errorf("expected nil optional fields, got %+v", empty)
	}
}

func TestHostPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"https://openalex.org/W1", "openalex.org/W1"},
		{"https://doi.org/10.1/x", "doi.org/10.1/x"},
		{"W1", "W1"},
	}
	for _, tt := range tests {
		if got := hostPath(tt.in); got != tt.want {
			t.Errorf("hostPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
