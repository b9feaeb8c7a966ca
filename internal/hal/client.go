// Package hal harvests documents from the HAL open archive: a Solr search
// with cursorMark deep paging, followed by one TEI metadata fetch per
// document.
package hal

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/matsen/pubharvest/internal/source"
	"github.com/matsen/pubharvest/internal/tree"
)

const (
	// BaseURL is the HAL search endpoint.
	BaseURL = "https://api.archives-ouvertes.fr/search"

	// InitialCursor starts a cursorMark listing.
	InitialCursor = "*"

	DefaultRows     = 1000
	DefaultSort     = "docid asc"
	DefaultMaxPages = 1000

	// metadataSuffix is appended to a document URI to get its TEI record.
	metadataSuffix = "/metadata"
)

// Config holds the HAL settings for one harvest.
type Config struct {
	URL   string
	Query string // Solr q parameter
	Year  int    // Submission year filter
	Rows  int
	Sort  string

	// MaxPages bounds the cursor loop in case the provider keeps returning
	// a new page without advancing the cursor mark.
	MaxPages int

	// MetadataConcurrency is the number of TEI documents fetched at once.
	// One keeps the fetch sequential.
	MetadataConcurrency int
}

func (c *Config) applyDefaults() {
	if c.URL == "" {
		c.URL = BaseURL
	}
	if c.Rows <= 0 {
		c.Rows = DefaultRows
	}
	if c.Sort == "" {
		c.Sort = DefaultSort
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.MetadataConcurrency <= 0 {
		c.MetadataConcurrency = 1
	}
}

// Fetcher is the HAL source.
type Fetcher struct {
	cfg    Config
	client *source.Client
	logger zerolog.Logger
}

// New creates a HAL fetcher.
func New(cfg Config, client *source.Client, logger zerolog.Logger) *Fetcher {
	cfg.applyDefaults()
	return &Fetcher{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("source", string(source.HAL)).Logger(),
	}
}

// Kind implements source.Source.
func (f *Fetcher) Kind() source.Kind {
	return source.HAL
}

// SearchPage is one page of Solr results.
type SearchPage struct {
	URIs       []string
	NumFound   int
	NextCursor string
}

// Search requests one page of the listing at cursor.
func (f *Fetcher) Search(ctx context.Context, cursor string) (*SearchPage, error) {
	params := url.Values{}
	params.Set("q", f.cfg.Query)
	params.Set("rows", strconv.Itoa(f.cfg.Rows))
	params.Set("cursorMark", cursor)
	params.Set("wt", "json")
	params.Set("fq", fmt.Sprintf("submittedDateY_i:%d", f.cfg.Year))
	params.Set("sort", f.cfg.Sort)

	body, err := f.client.Get(ctx, f.cfg.URL, params)
	if err != nil {
		return nil, fmt.Errorf("searching hal: %w", err)
	}

	doc, err := tree.DecodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrParse, err)
	}

	next, ok := tree.String(doc, "nextCursorMark")
	if !ok {
		return nil, fmt.Errorf("%w: search response has no nextCursorMark", source.ErrParse)
	}

	page := &SearchPage{NextCursor: next}
	if n, ok := tree.Lookup(doc, "response", "numFound"); ok {
		page.NumFound, _ = tree.Int(n)
	}
	docs, _ := tree.Lookup(doc, "response", "docs")
	for _, d := range tree.Items(docs) {
		if uri, ok := tree.String(d, "uri_s"); ok && uri != "" {
			page.URIs = append(page.URIs, uri)
		}
	}
	return page, nil
}

// ListURIs walks the cursorMark listing until the returned mark equals the
// one sent, or MaxPages pages have been read.
func (f *Fetcher) ListURIs(ctx context.Context) ([]string, error) {
	cursor := InitialCursor
	var uris []string
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if page > f.cfg.MaxPages {
			f.logger.Warn().Int("max_pages", f.cfg.MaxPages).Str("cursor", cursor).
				Msg("page bound reached before the cursor mark stopped advancing")
			break
		}

		p, err := f.Search(ctx, cursor)
		if err != nil {
			return nil, err
		}
		uris = append(uris, p.URIs...)
		f.logger.Debug().Int("page", page).Int("docs", len(p.URIs)).Int("num_found", p.NumFound).Msg("search page")

		if p.NextCursor == cursor {
			break
		}
		cursor = p.NextCursor
	}
	return uris, nil
}

// FetchMetadata retrieves and decodes the TEI record of one document.
func (f *Fetcher) FetchMetadata(ctx context.Context, uri string) (tree.Node, error) {
	body, err := f.client.Get(ctx, uri+metadataSuffix, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", uri, err)
	}
	doc, err := tree.DecodeXML(body)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata for %s: %v", source.ErrParse, uri, err)
	}
	return doc, nil
}

// Fetch lists every document and fetches its metadata, preserving listing
// order. Any failure aborts the fetch.
func (f *Fetcher) Fetch(ctx context.Context) (source.Payload, error) {
	uris, err := f.ListURIs(ctx)
	if err != nil {
		return nil, err
	}

	docs := make(source.Payload, len(uris))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MetadataConcurrency)
	for i, uri := range uris {
		g.Go(func() error {
			doc, err := f.FetchMetadata(gctx, uri)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f.logger.Info().Int("documents", len(docs)).Msg("fetched metadata")
	return docs, nil
}
