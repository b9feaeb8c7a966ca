package flora

import (
	"fmt"

	"github.com/matsen/pubharvest/internal/doi"
	"github.com/matsen/pubharvest/internal/record"
	"github.com/matsen/pubharvest/internal/source"
	"github.com/matsen/pubharvest/internal/tree"
)

// Flora field tags.
const (
	fieldDigestNumber = "DIGEST_NUMBER"
	fieldDOI          = "CHAMP3"
	fieldTitle        = "DIGEST_TITLE"
	fieldJournal      = "DIGEST_JRNAL_TITLE"
	fieldYear         = "DIGEST_YEAR"
)

// Normalize implements source.Source.
func (f *Fetcher) Normalize(payload source.Payload) ([]record.Record, []error) {
	return NormalizeBatches(payload)
}

// NormalizeBatches flattens decoded batch responses into records.
func NormalizeBatches(batches []tree.Node) ([]record.Record, []error) {
	var recs []record.Record
	var skipped []error
	index := 0
	for b, batch := range batches {
		records, ok := tree.Lookup(batch, "response", "records", "record")
		if !ok {
			skipped = append(skipped, fmt.Errorf("%w: flora batch %d has no response/records", source.ErrSkipped, b+1))
			continue
		}
		for _, item := range tree.Items(records) {
			rec, ok := NormalizeRecord(item)
			if !ok {
				skipped = append(skipped, source.Skipped(source.Flora, index, "missing id"))
			} else {
				recs = append(recs, rec)
			}
			index++
		}
	}
	return recs, skipped
}

// NormalizeRecord maps one tagged record. Every field except the id is
// optional; the digest number is preferred over the record's id attribute.
func NormalizeRecord(item tree.Node) (record.Record, bool) {
	id, ok := tree.String(item, fieldDigestNumber)
	if !ok || id == "" {
		id, ok = tree.Attr(item, "id")
	}
	if !ok || id == "" {
		return record.Record{}, false
	}

	rec := record.Record{ID: id, Provider: string(source.Flora)}
	if d, ok := tree.String(item, fieldDOI); ok {
		rec.DOI = doi.Normalize(&d)
	}
	if title, ok := tree.String(item, fieldTitle); ok {
		rec.Title = record.StringPtr(title)
	}
	if journal, ok := tree.String(item, fieldJournal); ok {
		rec.Venue = record.StringPtr(journal)
	}
	if y, ok := tree.Lookup(item, fieldYear); ok {
		if year, ok := tree.Int(y); ok {
			rec.Year = &year
		}
	}
	return rec, true
}
