// Package flora harvests records from the Flora session-authenticated XML
// batch API.
package flora

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog"

	"github.com/matsen/pubharvest/internal/source"
	"github.com/matsen/pubharvest/internal/tree"
)

// DefaultBatchSize is the number of record ids requested per batch.
const DefaultBatchSize = 200

// Config holds the Flora settings for one harvest.
type Config struct {
	URL          string
	User         string
	Password     string
	QueryParams  map[string]string // Parameters of the id listing request
	RecordParams map[string]string // Parameters of each record batch request
	BatchSize    int
}

// Session is an API session token. The provider treats it as good for one
// batch request.
type Session string

// SessionPolicy decides when a new session is opened.
type SessionPolicy int

const (
	// ReloginPerBatch opens a fresh session before every batch request.
	// The provider invalidates a session after one batch.
	ReloginPerBatch SessionPolicy = iota
	// SingleSession reuses the listing session for every batch.
	SingleSession
)

// BatchError reports one failed batch. The fetch continues past it.
type BatchError struct {
	Batch int // 1-based
	IDs   int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (%d ids): %v", e.Batch, e.IDs, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// ErrBatch is matched by errors.Is for every *BatchError.
var ErrBatch = errors.New("flora batch failed")

func (e *BatchError) Is(target error) bool {
	return target == ErrBatch
}

// Fetcher is the Flora source.
type Fetcher struct {
	cfg    Config
	client *source.Client
	logger zerolog.Logger
	policy SessionPolicy

	// sessionMu serializes session acquisition: the account does not
	// support concurrent sessions.
	sessionMu sync.Mutex

	// BatchErrors holds the failures of the most recent Fetch.
	BatchErrors []error
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithSessionPolicy overrides the default ReloginPerBatch policy.
func WithSessionPolicy(p SessionPolicy) Option {
	return func(f *Fetcher) {
		f.policy = p
	}
}

// New creates a Flora fetcher.
func New(cfg Config, client *source.Client, logger zerolog.Logger, opts ...Option) *Fetcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	f := &Fetcher{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("source", string(source.Flora)).Logger(),
		policy: ReloginPerBatch,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Kind implements source.Source.
func (f *Fetcher) Kind() source.Kind {
	return source.Flora
}

// Login opens a session with the configured credentials.
func (f *Fetcher) Login(ctx context.Context) (Session, error) {
	f.sessionMu.Lock()
	defer f.sessionMu.Unlock()

	params := url.Values{}
	params.Set("method", "login")
	params.Set("code", f.cfg.User)
	params.Set("password", f.cfg.Password)

	body, err := f.client.Get(ctx, f.cfg.URL, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", source.ErrAuth, err)
	}

	doc, err := tree.DecodeXML(body)
	if err != nil {
		return "", fmt.Errorf("%w: login response: %v", source.ErrAuth, err)
	}
	node, ok := tree.FindKey(doc, "apiSession")
	if !ok {
		return "", fmt.Errorf("%w: no apiSession in login response", source.ErrAuth)
	}
	token, ok := tree.Text(node)
	if !ok || token == "" {
		return "", fmt.Errorf("%w: empty apiSession", source.ErrAuth)
	}

	f.logger.Debug().Msg("session opened")
	return Session(token), nil
}

// Logout closes a session. Failures are logged, not returned.
func (f *Fetcher) Logout(ctx context.Context, s Session) {
	if s == "" {
		return
	}
	params := url.Values{}
	params.Set("method", "logout")
	params.Set("apiSession", string(s))
	if _, err := f.client.Get(ctx, f.cfg.URL, params); err != nil {
		f.logger.Warn().Err(err).Msg("logout failed")
		return
	}
	f.logger.Debug().Msg("session closed")
}

// FetchAllIDs lists every record id visible to the session.
func (f *Fetcher) FetchAllIDs(ctx context.Context, s Session) ([]string, error) {
	params := withParams(f.cfg.QueryParams)
	params.Set("apiSession", string(s))

	body, err := f.client.Get(ctx, f.cfg.URL, params)
	if err != nil {
		return nil, fmt.Errorf("fetching record ids: %w", err)
	}
	doc, err := tree.DecodeXML(body)
	if err != nil {
		return nil, fmt.Errorf("%w: id listing: %v", source.ErrParse, err)
	}

	digests, _ := tree.Lookup(doc, "response", "digests", "digest")
	var ids []string
	for _, d := range tree.Items(digests) {
		if id, ok := tree.Attr(d, "recordId"); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// FetchBatches requests ids in batches of BatchSize. Under ReloginPerBatch
// each batch opens its own session first. A failed batch is logged and
// returned as a *BatchError; the remaining batches still run.
func (f *Fetcher) FetchBatches(ctx context.Context, ids []string, listing Session) (source.Payload, []error) {
	var payload source.Payload
	var errs []error

	size := f.cfg.BatchSize
	for start, n := 0, 1; start < len(ids); start, n = start+size, n+1 {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		end := min(start+size, len(ids))
		batch := ids[start:end]

		doc, err := f.fetchBatch(ctx, batch, listing)
		if err != nil {
			be := &BatchError{Batch: n, IDs: len(batch), Err: err}
			f.logger.Error().Err(err).Int("batch", n).Int("ids", len(batch)).Msg("batch failed")
			errs = append(errs, be)
			continue
		}
		payload = append(payload, doc)
	}
	return payload, errs
}

func (f *Fetcher) fetchBatch(ctx context.Context, ids []string, listing Session) (tree.Node, error) {
	s := listing
	if f.policy == ReloginPerBatch {
		var err error
		s, err = f.Login(ctx)
		if err != nil {
			return nil, err
		}
		defer f.Logout(ctx, s)
	}

	params := withParams(f.cfg.RecordParams)
	params.Set("apiSession", string(s))
	for _, id := range ids {
		params.Add("recordId", id)
	}

	body, err := f.client.Get(ctx, f.cfg.URL, params)
	if err != nil {
		return nil, err
	}
	doc, err := tree.DecodeXML(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrParse, err)
	}
	return doc, nil
}

// Fetch logs in, lists ids, fetches all batches and logs out. A failed
// initial login aborts with source.ErrAuth and no payload. Batch failures
// are kept in BatchErrors and do not fail the fetch.
func (f *Fetcher) Fetch(ctx context.Context) (source.Payload, error) {
	f.BatchErrors = nil

	s, err := f.Login(ctx)
	if err != nil {
		return nil, err
	}
	defer f.Logout(context.WithoutCancel(ctx), s)

	ids, err := f.FetchAllIDs(ctx, s)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		f.logger.Info().Msg("no record ids listed")
		return source.Payload{}, nil
	}
	f.logger.Info().Int("ids", len(ids)).Int("batches", batchCount(len(ids), f.cfg.BatchSize)).Msg("listed record ids")

	payload, errs := f.FetchBatches(ctx, ids, s)
	f.BatchErrors = errs
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		f.logger.Warn().Int("failed_batches", len(errs)).Int("batches", len(payload)+len(errs)).Msg("fetched with failed batches")
	}
	return payload, nil
}

// PartialErrors implements harvest's partial-failure reporting.
func (f *Fetcher) PartialErrors() []error {
	return f.BatchErrors
}

func withParams(m map[string]string) url.Values {
	params := url.Values{}
	for k, v := range m {
		params.Set(k, v)
	}
	return params
}

// batchCount returns how many requests FetchBatches makes for n ids.
func batchCount(n, size int) int {
	if n == 0 {
		return 0
	}
	return (n + size - 1) / size
}
