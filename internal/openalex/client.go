// Package openalex harvests works from the OpenAlex REST API using cursor
// pagination.
package openalex

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/matsen/pubharvest/internal/source"
	"github.com/matsen/pubharvest/internal/tree"
)

const (
	// BaseURL is the OpenAlex works endpoint.
	BaseURL = "https://api.openalex.org/works"

	// InitialCursor starts a cursor-paged listing.
	InitialCursor = "*"

	// DefaultPerPage is the page size used when none is configured.
	DefaultPerPage = 100
)

// Config holds the OpenAlex settings for one harvest.
type Config struct {
	URL           string
	ROR           string // Institution ROR id for the affiliation filter
	InstitutionID string // OpenAlex institution id excluded from the search query
	Year          int
	PerPage       int
	Search        string // Optional free-text search for works outside the institution
}

// Query is one filtered listing.
type Query struct {
	Filter  string
	PerPage int
}

// Queries builds the listings configured for a harvest: works affiliated
// with the ROR id, and optionally works matching Search that are not
// affiliated with InstitutionID.
func (c Config) Queries() []Query {
	perPage := c.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	queries := []Query{{
		Filter:  fmt.Sprintf("institutions.ror:%s,publication_year:%d", c.ROR, c.Year),
		PerPage: perPage,
	}}
	if c.Search != "" && c.InstitutionID != "" {
		queries = append(queries, Query{
			Filter: fmt.Sprintf("authorships.institutions.lineage:!%s,publication_year:%d,default.search:%s",
				c.InstitutionID, c.Year, c.Search),
			PerPage: perPage,
		})
	}
	return queries
}

// Fetcher is the OpenAlex source.
type Fetcher struct {
	cfg    Config
	client *source.Client
	logger zerolog.Logger
}

// New creates an OpenAlex fetcher.
func New(cfg Config, client *source.Client, logger zerolog.Logger) *Fetcher {
	if cfg.URL == "" {
		cfg.URL = BaseURL
	}
	return &Fetcher{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("source", string(source.OpenAlex)).Logger(),
	}
}

// Kind implements source.Source.
func (f *Fetcher) Kind() source.Kind {
	return source.OpenAlex
}

// Pages lazily walks a cursor-paged listing. Each iteration performs one
// request. The sequence ends after the page whose meta.next_cursor is empty
// or absent, or after yielding an error. It cannot be restarted.
func (f *Fetcher) Pages(ctx context.Context, q Query) iter.Seq2[[]tree.Node, error] {
	return func(yield func([]tree.Node, error) bool) {
		cursor := InitialCursor
		for cursor != "" {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			params := url.Values{}
			params.Set("filter", q.Filter)
			params.Set("per-page", strconv.Itoa(q.PerPage))
			params.Set("cursor", cursor)

			body, err := f.client.Get(ctx, f.cfg.URL, params)
			if err != nil {
				yield(nil, fmt.Errorf("fetching openalex page: %w", err))
				return
			}

			page, err := tree.DecodeJSON(body)
			if err != nil {
				yield(nil, fmt.Errorf("%w: %v", source.ErrParse, err))
				return
			}

			results, _ := tree.Lookup(page, "results")
			if !yield(tree.Items(results), nil) {
				return
			}

			cursor, _ = tree.String(page, "meta", "next_cursor")
		}
	}
}

// FetchQuery collects every page of q in order. On error the pages already
// gathered are discarded.
func (f *Fetcher) FetchQuery(ctx context.Context, q Query) ([]tree.Node, error) {
	var all []tree.Node
	pages := 0
	for items, err := range f.Pages(ctx, q) {
		if err != nil {
			return nil, err
		}
		pages++
		all = append(all, items...)
	}
	f.logger.Debug().Str("filter", q.Filter).Int("pages", pages).Int("results", len(all)).Msg("query complete")
	return all, nil
}

// Fetch runs every configured query concurrently and concatenates the
// results in query order. Any failing query fails the fetch.
func (f *Fetcher) Fetch(ctx context.Context) (source.Payload, error) {
	queries := f.cfg.Queries()
	results := make([][]tree.Node, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			items, err := f.FetchQuery(gctx, q)
			if err != nil {
				return err
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var payload source.Payload
	for _, items := range results {
		payload = append(payload, items...)
	}
	f.logger.Info().Int("results", len(payload)).Msg("fetched works")
	return payload, nil
}
