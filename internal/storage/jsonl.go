// Package storage persists harvested records in SQLite and JSONL.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/matsen/pubharvest/internal/record"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// ReadAll reads all records from a JSONL file. A missing file yields no
// records.
func ReadAll(path string) ([]record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening records file: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads JSONL records from r. Blank lines are skipped.
func Decode(r io.Reader) ([]record.Record, error) {
	var recs []record.Record
	err := ScanLines(r, func(lineNum int, line []byte) error {
		var rec record.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("parsing line %d: %w", lineNum, err)
		}
		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// ScanLines calls fn for every non-blank line of r with its 1-based line
// number. Lines may be up to MaxJSONLLineCapacity bytes. The line slice is
// only valid during the call. An error from fn stops the scan and is
// returned unchanged.
func ScanLines(r io.Reader, fn func(lineNum int, line []byte) error) error {
	scanner := bufio.NewScanner(r)

	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(lineNum, line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading records: %w", err)
	}
	return nil
}

// WriteAll writes all records to a JSONL file, replacing existing content.
func WriteAll(path string, recs []record.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating records file: %w", err)
	}
	if err := Encode(f, recs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Encode writes one JSON object per line to w.
func Encode(w io.Writer, recs []record.Record) error {
	bw := bufio.NewWriter(w)
	for i, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
		if _, err := bw.Write(data); err != nil {
			return fmt.Errorf("writing record %d: %w", i, err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing newline: %w", err)
		}
	}
	return bw.Flush()
}
