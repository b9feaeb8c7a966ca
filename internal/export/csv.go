// Package export writes stored records in interchange formats.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/matsen/pubharvest/internal/record"
)

// ErrEmpty is returned when there is nothing to export.
var ErrEmpty = errors.New("no records to export")

// CSVHeader is the column order of WriteCSV.
var CSVHeader = []string{"id", "doi", "title", "type", "source", "year", "provider", "isValid", "comment"}

// WriteCSV writes a header row and one row per record. Absent values are
// empty cells.
func WriteCSV(w io.Writer, recs []record.Record) error {
	if len(recs) == 0 {
		return ErrEmpty
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, r := range recs {
		year := ""
		if r.Year != nil {
			year = strconv.Itoa(*r.Year)
		}
		row := []string{
			r.ID,
			deref(r.DOI),
			deref(r.Title),
			deref(r.DocumentType),
			deref(r.Venue),
			year,
			r.Provider,
			strconv.FormatBool(r.IsValid),
			deref(r.Comment),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing record %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
