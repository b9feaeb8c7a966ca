package export

import (
	"fmt"
	"strings"

	"github.com/matsen/pubharvest/internal/record"
)

// ToBibTeX converts a record to a BibTeX entry keyed by its id.
func ToBibTeX(r record.Record) string {
	entryType := determineEntryType(r)
	var b strings.Builder

	b.WriteString(fmt.Sprintf("@%s{%s,\n", entryType, citationKey(r.ID)))

	b.WriteString(fmt.Sprintf("  title = {%s},\n", escapeLatex(r.TitleString())))

	if venue := venueName(r.Venue); venue != "" {
		fieldName := "journal"
		if entryType == "inproceedings" {
			fieldName = "booktitle"
		}
		b.WriteString(fmt.Sprintf("  %s = {%s},\n", fieldName, escapeLatex(venue)))
	}

	if r.Year != nil {
		b.WriteString(fmt.Sprintf("  year = {%d},\n", *r.Year))
	}

	if r.DOI != nil {
		b.WriteString(fmt.Sprintf("  doi = {%s},\n", *r.DOI))
	}

	b.WriteString("}\n")

	return b.String()
}

// ToBibTeXList converts multiple records to BibTeX format.
func ToBibTeXList(recs []record.Record) string {
	var entries []string
	for _, r := range recs {
		entries = append(entries, ToBibTeX(r))
	}
	return strings.Join(entries, "\n")
}

// determineEntryType maps the provider document type, falling back to
// venue keywords.
func determineEntryType(r record.Record) string {
	if r.DocumentType != nil {
		switch t := strings.ToLower(*r.DocumentType); {
		case strings.Contains(t, "proceedings"), strings.Contains(t, "comm"), strings.Contains(t, "conference"):
			return "inproceedings"
		case t == "book" || t == "ouv":
			return "book"
		case t == "book-chapter" || t == "couv":
			return "incollection"
		case strings.Contains(t, "thes"):
			return "phdthesis"
		}
	}

	venue := strings.ToLower(venueName(r.Venue))
	if strings.Contains(venue, "proceedings") ||
		strings.Contains(venue, "conference") ||
		strings.Contains(venue, "workshop") ||
		strings.Contains(venue, "symposium") {
		return "inproceedings"
	}

	return "article"
}

// venueName returns the display part of a composite "identifier | name"
// venue.
func venueName(v *string) string {
	if v == nil {
		return ""
	}
	if _, name, ok := strings.Cut(*v, " | "); ok {
		return strings.TrimSpace(name)
	}
	return *v
}

// citationKey replaces characters BibTeX does not allow in keys. Record ids
// can be URLs.
func citationKey(id string) string {
	id = strings.TrimPrefix(id, "https://")
	id = strings.TrimPrefix(id, "http://")
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '{', '}', ' ', '%', '#', '~', '\\':
			return '_'
		}
		return r
	}, id)
}

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	replacer := strings.NewReplacer(
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
		"~", `\textasciitilde{}`,
		"^", `\textasciicircum{}`,
	)
	return replacer.Replace(s)
}
