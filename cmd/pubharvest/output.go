package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/matsen/pubharvest/internal/record"
)

// Constants for output formatting.
const (
	DefaultListLimit = 0 // No limit

	ListTitleMaxLen  = 60 // Used in list command output
	MatchTitleMaxLen = 70 // Used in match command output
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is a generic response for commands that write files.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
	Count  int    `json:"count"`
}

// printRecordsHuman prints one line per record.
func printRecordsHuman(w io.Writer, recs []record.Record) {
	for _, r := range recs {
		fmt.Fprintf(w, "%s  %s  %-8s %s\n", validMark(r.IsValid), yearString(r.Year), r.Provider, r.ID)
		fmt.Fprintf(w, "      %s\n", truncateString(r.TitleString(), ListTitleMaxLen))
		if r.DOI != nil {
			fmt.Fprintf(w, "      doi:%s\n", *r.DOI)
		}
	}
}

func validMark(valid bool) string {
	if valid {
		return "[x]"
	}
	return "[ ]"
}

func yearString(y *int) string {
	if y == nil {
		return "----"
	}
	return strconv.Itoa(*y)
}

// truncateString truncates a string to maxLen runes, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
