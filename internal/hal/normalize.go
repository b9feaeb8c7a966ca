package hal

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/matsen/pubharvest/internal/doi"
	"github.com/matsen/pubharvest/internal/record"
	"github.com/matsen/pubharvest/internal/source"
	"github.com/matsen/pubharvest/internal/tree"
)

// biblFull is the path from the TEI root to the bibliographic description.
var biblFull = []string{"TEI", "text", "body", "listBibl", "biblFull"}

// Normalize implements source.Source.
func (f *Fetcher) Normalize(payload source.Payload) ([]record.Record, []error) {
	return NormalizeDocuments(payload)
}

// NormalizeDocuments maps decoded TEI documents to records. A document with
// no halUri identifier is skipped; every other missing field degrades to
// absent (or "No Title").
func NormalizeDocuments(docs []tree.Node) ([]record.Record, []error) {
	recs := make([]record.Record, 0, len(docs))
	var skipped []error
	for i, doc := range docs {
		rec, err := NormalizeDocument(doc)
		if err != nil {
			skipped = append(skipped, source.Skipped(source.HAL, i, err.Error()))
			continue
		}
		recs = append(recs, rec)
	}
	return recs, skipped
}

// NormalizeDocument maps one TEI document to a record.
func NormalizeDocument(doc tree.Node) (record.Record, error) {
	bibl, ok := tree.Lookup(doc, biblFull...)
	if !ok {
		return record.Record{}, fmt.Errorf("missing %s", strings.Join(biblFull, "/"))
	}

	uri, ok := HalURI(bibl)
	if !ok {
		return record.Record{}, fmt.Errorf("missing halUri idno")
	}

	rec := record.Record{
		ID:       hostPath(uri),
		Title:    record.StringPtr(Title(bibl)),
		Provider: string(source.HAL),
	}
	if typ, ok := DocumentType(bibl); ok {
		rec.DocumentType = &typ
	}
	if year, ok := Year(bibl); ok {
		rec.Year = &year
	}
	if v, ok := Venue(uri); ok {
		rec.Venue = &v
	}
	if d, ok := DOI(bibl); ok {
		rec.DOI = record.StringPtr(doi.Clean(d))
	}
	return rec, nil
}

// HalURI selects the publicationStmt idno whose type is halUri.
func HalURI(bibl tree.Node) (string, bool) {
	idnos, ok := tree.Lookup(bibl, "publicationStmt", "idno")
	if !ok {
		return "", false
	}
	entry, ok := tree.FindByAttr(idnos, "type", "halUri")
	if !ok {
		return "", false
	}
	text, ok := tree.Text(entry)
	return text, ok && text != ""
}

// Title takes the text of the first titleStmt title, or record.NoTitle.
func Title(bibl tree.Node) string {
	titles, ok := tree.Lookup(bibl, "titleStmt", "title")
	if !ok {
		return record.NoTitle
	}
	items := tree.Items(titles)
	if len(items) == 0 {
		return record.NoTitle
	}
	text, ok := tree.Text(items[0])
	if !ok || text == "" {
		return record.NoTitle
	}
	return text
}

// DocumentType selects the classCode whose scheme is halTypology.
func DocumentType(bibl tree.Node) (string, bool) {
	codes, ok := tree.Lookup(bibl, "profileDesc", "textClass", "classCode")
	if !ok {
		return "", false
	}
	entry, ok := tree.FindByAttr(codes, "scheme", "halTypology")
	if !ok {
		return "", false
	}
	text, ok := tree.Text(entry)
	return text, ok && text != ""
}

// Year reads the whenReleased edition date and keeps the part before the
// first "-". Every edition is searched when there is more than one.
func Year(bibl tree.Node) (int, bool) {
	editions, ok := tree.Lookup(bibl, "editionStmt", "edition")
	if !ok {
		return 0, false
	}
	for _, edition := range tree.Items(editions) {
		dates, ok := tree.Lookup(edition, "date")
		if !ok {
			continue
		}
		entry, ok := tree.FindByAttr(dates, "type", "whenReleased")
		if !ok {
			continue
		}
		text, ok := tree.Text(entry)
		if !ok {
			return 0, false
		}
		year, _, _ := strings.Cut(text, "-")
		return tree.Int(year)
	}
	return 0, false
}

// DOI reads the doi idno of the source description, when HAL has one.
func DOI(bibl tree.Node) (string, bool) {
	idnos, ok := tree.Lookup(bibl, "sourceDesc", "biblStruct", "idno")
	if !ok {
		return "", false
	}
	entry, ok := tree.FindByAttr(idnos, "type", "doi")
	if !ok {
		return "", false
	}
	text, ok := tree.Text(entry)
	return text, ok && text != ""
}

// Venue is the second-to-last "/" segment of the halUri.
func Venue(uri string) (string, bool) {
	parts := strings.Split(uri, "/")
	if len(parts) < 2 {
		return "", false
	}
	v := parts[len(parts)-2]
	return v, v != ""
}

func hostPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host + u.Path
}
