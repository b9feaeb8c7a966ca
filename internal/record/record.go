// Package record defines the normalized publication record shared by all sources.
package record

// Collection names a keyed record store table.
type Collection string

const (
	// Publications holds OpenAlex, HAL and Web of Science records.
	Publications Collection = "publications"
	// Flora holds records harvested from the Flora batch API.
	Flora Collection = "flora"
)

// Collections lists every collection known to the store.
var Collections = []Collection{Publications, Flora}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

// NoTitle is stored when a HAL document carries no title container.
// It is the only sentinel string that reaches the store.
const NoTitle = "No Title"

// Record is a publication normalized into the common schema.
//
// Optional fields are pointers; nil means the source did not provide a
// usable value.
type Record struct {
	// Identity
	ID  string  `json:"id"`  // Source-scoped unique key, primary key within a collection
	DOI *string `json:"doi"` // Canonical DOI (lower-case, no resolver prefix)

	// Metadata
	Title        *string `json:"title"`
	DocumentType *string `json:"type"`
	Venue        *string `json:"source"` // "identifier | display name" composite
	Year         *int    `json:"year"`

	// Provider that produced the record: openalex, hal, flora, wos.
	Provider string `json:"provider"`

	// Reviewer annotations, owned by the validation workflow.
	IsValid bool    `json:"isValid"`
	Comment *string `json:"comment"`
}

// TitleString returns the title or "" when absent.
func (r Record) TitleString() string {
	if r.Title == nil {
		return ""
	}
	return *r.Title
}

// DOIString returns the DOI or "" when absent.
func (r Record) DOIString() string {
	if r.DOI == nil {
		return ""
	}
	return *r.DOI
}

// YearValue returns the year or 0 when absent.
func (r Record) YearValue() int {
	if r.Year == nil {
		return 0
	}
	return *r.Year
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}
