// Package doi canonicalizes Digital Object Identifiers for exact matching.
package doi

import "strings"

// prefixes are the resolver forms stripped from the front of a DOI.
var prefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"doi.org/",
	"doi:",
}

// Clean trims, lower-cases and strips the resolver prefix from raw.
//
// Stacked prefixes ("doi:" behind "https://doi.org/") are stripped until none
// remain so that Clean(Clean(x)) == Clean(x) for every input.
func Clean(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	for {
		stripped := false
		for _, p := range prefixes {
			if strings.HasPrefix(d, p) {
				d = strings.TrimSpace(strings.TrimPrefix(d, p))
				stripped = true
				break
			}
		}
		if !stripped {
			return d
		}
	}
}

// Normalize is Clean over an optional value. A value that cleans to the
// empty string is reported as absent.
func Normalize(raw *string) *string {
	if raw == nil {
		return nil
	}
	d := Clean(*raw)
	if d == "" {
		return nil
	}
	return &d
}
