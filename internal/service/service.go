// Package service exposes the harvest, review and matching operations the
// command line drives.
package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/rs/zerolog"

	"github.com/matsen/pubharvest/internal/config"
	"github.com/matsen/pubharvest/internal/flora"
	"github.com/matsen/pubharvest/internal/hal"
	"github.com/matsen/pubharvest/internal/harvest"
	"github.com/matsen/pubharvest/internal/match"
	"github.com/matsen/pubharvest/internal/openalex"
	"github.com/matsen/pubharvest/internal/record"
	"github.com/matsen/pubharvest/internal/source"
	"github.com/matsen/pubharvest/internal/storage"
	"github.com/matsen/pubharvest/internal/wos"
)

// Harvest targets accepted by TriggerHarvest.
const (
	TargetFlora    = "flora"
	TargetOpenAlex = "openalex" // OpenAlex, then HAL
	TargetAll      = "all"
)

// ErrUnknownTarget is returned for a harvest target outside the known set.
var ErrUnknownTarget = errors.New("unknown harvest target")

// ErrNotFound is returned when a record id is not in the store.
var ErrNotFound = storage.ErrNotFound

// ErrConflict is returned by RestoreRecords when restored ids are already
// stored.
var ErrConflict = errors.New("records already stored")

// SourceFactory builds the source for a provider.
type SourceFactory func(kind source.Kind) (source.Source, error)

// Service wires configuration, store and orchestrator together.
type Service struct {
	cfg     *config.Config
	db      *storage.DB
	orch    *harvest.Orchestrator
	sources SourceFactory
	logger  zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSourceFactory replaces the configuration-driven source construction.
func WithSourceFactory(f SourceFactory) Option {
	return func(s *Service) {
		s.sources = f
	}
}

// New creates a service over an open store.
func New(cfg *config.Config, db *storage.DB, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		db:     db,
		orch:   harvest.New(db, logger),
		logger: logger,
	}
	s.sources = s.configuredSource
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// configuredSource builds a network source from the loaded configuration.
func (s *Service) configuredSource(kind source.Kind) (source.Source, error) {
	if err := s.cfg.ValidateSource(kind); err != nil {
		return nil, err
	}
	client := source.NewClient(s.cfg.ClientOptions()...)
	switch kind {
	case source.OpenAlex:
		return openalex.New(s.cfg.OpenAlex.Fetcher(), client, s.logger), nil
	case source.HAL:
		return hal.New(s.cfg.HAL.Fetcher(), client, s.logger), nil
	case source.Flora:
		return flora.New(s.cfg.Flora.Fetcher(), client, s.logger), nil
	default:
		return nil, fmt.Errorf("source %s is not harvested over the network", kind)
	}
}

// Summary reports a TriggerHarvest call. A source that failed appears in
// Errors; the others still report their counts.
type Summary struct {
	Message  string                 `json:"message"`
	Inserted map[source.Kind]int    `json:"inserted"`
	Errors   map[source.Kind]string `json:"errors,omitempty"`
	Details  []string               `json:"details"`
	Runs     []*harvest.Result      `json:"runs"`
}

// Failed reports whether any source failed.
func (s *Summary) Failed() bool {
	return len(s.Errors) > 0
}

// TriggerHarvest harvests target: flora, openalex (OpenAlex then HAL, both
// into publications) or all. The two pipelines of "all" run concurrently.
func (s *Service) TriggerHarvest(ctx context.Context, target string) (*Summary, error) {
	type plan struct {
		name  string
		kinds []source.Kind
		coll  record.Collection
	}
	floraPlan := plan{TargetFlora, []source.Kind{source.Flora}, record.Flora}
	openalexPlan := plan{TargetOpenAlex, []source.Kind{source.OpenAlex, source.HAL}, record.Publications}

	var plans []plan
	switch target {
	case TargetFlora:
		plans = []plan{floraPlan}
	case TargetOpenAlex:
		plans = []plan{openalexPlan}
	case TargetAll, "":
		plans = []plan{floraPlan, openalexPlan}
	default:
		return nil, fmt.Errorf("%w: %q (valid: %s, %s, %s)", ErrUnknownTarget, target, TargetFlora, TargetOpenAlex, TargetAll)
	}

	summary := &Summary{
		Inserted: map[source.Kind]int{},
		Errors:   map[source.Kind]string{},
		Details:  []string{},
		Runs:     []*harvest.Result{},
	}

	var jobs []harvest.Job
	for _, p := range plans {
		job := harvest.Job{Name: p.name, Collection: p.coll}
		for _, kind := range p.kinds {
			src, err := s.sources(kind)
			if err != nil {
				summary.Errors[kind] = err.Error()
				summary.Details = append(summary.Details, fmt.Sprintf("%s not harvested: %v", kind, err))
				continue
			}
			job.Sources = append(job.Sources, src)
		}
		if len(job.Sources) > 0 {
			jobs = append(jobs, job)
		}
	}

	for _, jr := range s.orch.HarvestMany(ctx, jobs) {
		for _, res := range jr.Results {
			summary.Runs = append(summary.Runs, res)
			summary.Inserted[res.Source] = res.Inserted
			detail := fmt.Sprintf("%s: %d records, %d new", res.Source, res.Fetched, res.Inserted)
			if n := len(res.PartialErrors); n > 0 {
				detail += fmt.Sprintf(", %d failed batches", n)
			}
			summary.Details = append(summary.Details, detail)
		}
		for _, kind := range slices.Sorted(maps.Keys(jr.Errors)) {
			err := jr.Errors[kind]
			summary.Errors[kind] = err.Error()
			summary.Details = append(summary.Details, fmt.Sprintf("%s failed: %v", kind, err))
		}
	}

	switch {
	case len(summary.Errors) == 0:
		summary.Message = "harvest completed"
	case len(summary.Runs) == 0:
		summary.Message = "harvest failed"
	default:
		summary.Message = "harvest partially completed"
	}
	return summary, nil
}

// ImportBatch stores the records of a JSONL export into publications.
func (s *Service) ImportBatch(ctx context.Context, path string) (*harvest.Result, error) {
	return s.orch.Harvest(ctx, wos.New(path, s.logger), record.Publications)
}

// CollectionFor maps a listing source to its collection. Anything other
// than flora lists publications.
func CollectionFor(src string) record.Collection {
	if src == TargetFlora {
		return record.Flora
	}
	return record.Publications
}

// ListRecords returns the stored records for src, ordered by year then id.
func (s *Service) ListRecords(ctx context.Context, src string, f storage.Filter) ([]record.Record, error) {
	return s.db.Query(ctx, CollectionFor(src), f)
}

// GetRecord returns one stored record of the collection src lists.
func (s *Service) GetRecord(ctx context.Context, src, id string) (*record.Record, error) {
	coll := CollectionFor(src)
	rec, err := s.db.Get(ctx, coll, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, id, coll)
	}
	return rec, nil
}

// CountRecords returns the size of the collection src lists.
func (s *Service) CountRecords(ctx context.Context, src string) (int, error) {
	return s.db.Count(ctx, CollectionFor(src))
}

// RestoreResult is returned by RestoreRecords.
type RestoreResult struct {
	Collection record.Collection `json:"collection"`
	Restored   int               `json:"restored"`
}

// RestoreRecords loads a JSONL dump written by the jsonl export back into
// the collection src lists, annotations included. The dump is all or
// nothing: if any id is already stored, nothing is written.
func (s *Service) RestoreRecords(ctx context.Context, src, path string) (*RestoreResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening dump: %w", err)
	}
	recs, err := storage.ReadAll(path)
	if err != nil {
		return nil, err
	}

	coll := CollectionFor(src)
	existing, err := s.db.ExistingIDs(ctx, coll)
	if err != nil {
		return nil, err
	}
	var clashes []string
	for _, r := range recs {
		if existing[r.ID] {
			clashes = append(clashes, r.ID)
		}
	}
	if len(clashes) > 0 {
		return nil, fmt.Errorf("%w: %d of %d ids in %s (first: %s)", ErrConflict, len(clashes), len(recs), coll, clashes[0])
	}

	if err := s.db.BulkInsert(ctx, coll, recs); err != nil {
		return nil, err
	}
	s.logger.Info().Str("collection", string(coll)).Int("records", len(recs)).Str("path", path).Msg("restored dump")
	return &RestoreResult{Collection: coll, Restored: len(recs)}, nil
}

// ValidationResult is returned by UpdateValidation.
type ValidationResult struct {
	ID      string  `json:"id"`
	IsValid bool    `json:"isValid"`
	Comment *string `json:"comment,omitempty"`
}

// UpdateValidation records a reviewer decision on a publication. Nil
// arguments leave the field unchanged.
func (s *Service) UpdateValidation(ctx context.Context, id string, isValid *bool, comment *string) (*ValidationResult, error) {
	rec, err := s.db.UpdateValidation(ctx, record.Publications, id, isValid, comment)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Str("id", id).Msg("publication not found")
		}
		return nil, err
	}
	return &ValidationResult{ID: rec.ID, IsValid: rec.IsValid, Comment: rec.Comment}, nil
}

// MatchRecords matches every Flora record against the publications
// collection. The result is empty, never nil, when nothing is stored.
func (s *Service) MatchRecords(ctx context.Context, threshold float64, strategy string) ([]record.Group, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold %.2f outside [0, 1]", threshold)
	}
	floraRecs, err := s.db.Query(ctx, record.Flora, storage.Filter{})
	if err != nil {
		return nil, err
	}
	pool, err := s.db.Query(ctx, record.Publications, storage.Filter{})
	if err != nil {
		return nil, err
	}
	st := match.ParseStrategy(strategy)
	s.logger.Debug().Str("strategy", string(st)).Int("sources", len(floraRecs)).Int("pool", len(pool)).Msg("matching")
	return match.MatchAll(floraRecs, pool, st, threshold), nil
}
