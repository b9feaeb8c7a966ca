package openalex

import (
	"fmt"
	"net/url"

	"github.com/matsen/pubharvest/internal/doi"
	"github.com/matsen/pubharvest/internal/record"
	"github.com/matsen/pubharvest/internal/source"
	"github.com/matsen/pubharvest/internal/tree"
)

// Normalize implements source.Source.
func (f *Fetcher) Normalize(payload source.Payload) ([]record.Record, []error) {
	return NormalizeWorks(payload)
}

// NormalizeWorks maps OpenAlex work objects to records. Works without an id
// are skipped.
func NormalizeWorks(works []tree.Node) ([]record.Record, []error) {
	recs := make([]record.Record, 0, len(works))
	var skipped []error
	for i, w := range works {
		rec, err := normalizeWork(w)
		if err != nil {
			skipped = append(skipped, source.Skipped(source.OpenAlex, i, err.Error()))
			continue
		}
		recs = append(recs, rec)
	}
	return recs, skipped
}

func normalizeWork(w tree.Node) (record.Record, error) {
	rawID, ok := tree.String(w, "id")
	if !ok || rawID == "" {
		return record.Record{}, fmt.Errorf("missing id")
	}

	rec := record.Record{
		ID:       hostPath(rawID),
		Provider: string(source.OpenAlex),
	}

	if rawDOI, ok := tree.String(w, "doi"); ok && rawDOI != "" {
		rec.DOI = record.StringPtr(doi.Clean(hostPath(rawDOI)))
	}
	if title, ok := tree.String(w, "title"); ok {
		rec.Title = &title
	}
	if typ, ok := tree.String(w, "type"); ok {
		rec.DocumentType = record.StringPtr(typ)
	}
	if v, ok := venue(w); ok {
		rec.Venue = &v
	}
	if y, ok := tree.Lookup(w, "publication_year"); ok {
		if year, ok := tree.Int(y); ok {
			rec.Year = &year
		}
	}
	return rec, nil
}

// venue composes "issn_l | display_name" from the primary location's source.
func venue(w tree.Node) (string, bool) {
	src, ok := tree.Lookup(w, "primary_location", "source")
	if !ok {
		return "", false
	}
	issn, _ := tree.String(src, "issn_l")
	name, _ := tree.String(src, "display_name")
	if issn == "" && name == "" {
		return "", false
	}
	return fmt.Sprintf("%s | %s", issn, name), true
}

// hostPath reduces a URL to host+path ("https://openalex.org/W1" becomes
// "openalex.org/W1"). Values that are not URLs pass through unchanged.
func hostPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host + u.Path
}
