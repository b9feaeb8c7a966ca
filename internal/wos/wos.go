// Package wos imports Web of Science exports that arrive as JSONL files
// already shaped like stored records.
package wos

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/matsen/pubharvest/internal/doi"
	"github.com/matsen/pubharvest/internal/record"
	"github.com/matsen/pubharvest/internal/source"
	"github.com/matsen/pubharvest/internal/storage"
	"github.com/matsen/pubharvest/internal/tree"
)

// Batch is a source backed by one JSONL export file.
type Batch struct {
	path   string
	logger zerolog.Logger
}

// New creates a batch source reading path.
func New(path string, logger zerolog.Logger) *Batch {
	return &Batch{
		path:   path,
		logger: logger.With().Str("source", string(source.WoS)).Logger(),
	}
}

// Kind implements source.Source.
func (b *Batch) Kind() source.Kind {
	return source.WoS
}

// Fetch decodes every non-blank line of the file. A line that is not a JSON
// object fails the whole import.
func (b *Batch) Fetch(ctx context.Context) (source.Payload, error) {
	f, err := os.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("opening batch file: %w", err)
	}
	defer f.Close()

	var payload source.Payload
	err = storage.ScanLines(f, func(lineNum int, line []byte) error {
		if lineNum%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		node, err := tree.DecodeJSON(line)
		if err != nil {
			return fmt.Errorf("%w: line %d: %v", source.ErrParse, lineNum, err)
		}
		if _, ok := node.(tree.Map); !ok {
			return fmt.Errorf("%w: line %d is not an object", source.ErrParse, lineNum)
		}
		payload = append(payload, node)
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.Debug().Int("lines", len(payload)).Str("path", b.path).Msg("read batch file")
	return payload, nil
}

// Normalize implements source.Source. Identifiers are kept as given; DOIs
// are cleaned since exports carry them in resolver form.
func (b *Batch) Normalize(payload source.Payload) ([]record.Record, []error) {
	return NormalizeLines(payload)
}

// NormalizeLines maps decoded export lines to records.
func NormalizeLines(lines []tree.Node) ([]record.Record, []error) {
	recs := make([]record.Record, 0, len(lines))
	var skipped []error
	for i, line := range lines {
		id, ok := tree.String(line, "id")
		if !ok || id == "" {
			skipped = append(skipped, source.Skipped(source.WoS, i, "missing id"))
			continue
		}

		rec := record.Record{ID: id, Provider: string(source.WoS)}
		if d, ok := tree.String(line, "doi"); ok {
			rec.DOI = doi.Normalize(&d)
		}
		if title, ok := tree.String(line, "title"); ok {
			rec.Title = record.StringPtr(title)
		}
		if typ, ok := tree.String(line, "type"); ok {
			rec.DocumentType = record.StringPtr(typ)
		}
		if venue, ok := tree.String(line, "source"); ok {
			rec.Venue = record.StringPtr(venue)
		}
		if y, ok := tree.Lookup(line, "year"); ok {
			if year, ok := tree.Int(y); ok {
				rec.Year = &year
			}
		}
		recs = append(recs, rec)
	}
	return recs, skipped
}
