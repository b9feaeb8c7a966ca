// Package harvest runs fetch, normalize and dedup-store pipelines.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/matsen/pubharvest/internal/record"
	"github.com/matsen/pubharvest/internal/source"
	"github.com/matsen/pubharvest/internal/storage"
)

// Store is the subset of the record store a harvest writes to.
type Store interface {
	InsertNew(ctx context.Context, c record.Collection, recs []record.Record) (storage.InsertResult, error)
}

// partialReporter is implemented by sources that tolerate partial failure
// during Fetch.
type partialReporter interface {
	PartialErrors() []error
}

// Result summarizes one harvest run.
type Result struct {
	RunID      uuid.UUID         `json:"run_id"`
	Source     source.Kind       `json:"source"`
	Collection record.Collection `json:"collection"`
	Fetched    int               `json:"fetched"`  // Records normalized
	Inserted   int               `json:"inserted"` // Records newly stored
	Existing   int               `json:"existing"`
	Skipped    int               `json:"skipped"` // Records dropped by normalization
	Duration   time.Duration     `json:"duration_ns"`

	// PartialErrors lists failures the source tolerated, such as a failed
	// batch. They do not fail the run.
	PartialErrors []error `json:"-"`
}

// Orchestrator runs harvests into a store.
type Orchestrator struct {
	store  Store
	logger zerolog.Logger
}

// New creates an orchestrator.
func New(store Store, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{store: store, logger: logger}
}

// Harvest fetches src completely, normalizes the payload and inserts the
// records not yet present in coll. A fetch error aborts the run before
// anything is written.
func (o *Orchestrator) Harvest(ctx context.Context, src source.Source, coll record.Collection) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.New(), Source: src.Kind(), Collection: coll}
	log := o.logger.With().Str("run_id", res.RunID.String()).Str("source", string(res.Source)).Logger()

	log.Info().Str("collection", string(coll)).Msg("harvest started")

	payload, err := src.Fetch(ctx)
	if err != nil {
		log.Error().Err(err).Msg("fetch failed")
		return nil, fmt.Errorf("fetching %s: %w", res.Source, err)
	}
	if p, ok := src.(partialReporter); ok {
		res.PartialErrors = p.PartialErrors()
	}

	recs, skipped := src.Normalize(payload)
	res.Fetched = len(recs)
	res.Skipped = len(skipped)
	for _, s := range skipped {
		log.Debug().Err(s).Msg("record skipped")
	}

	ins, err := o.store.InsertNew(ctx, coll, recs)
	if err != nil {
		log.Error().Err(err).Int("records", len(recs)).Msg("insert failed")
		return nil, fmt.Errorf("storing %s records: %w", res.Source, err)
	}
	res.Inserted = ins.Inserted
	res.Existing = ins.Existing + ins.Duplicates
	res.Duration = time.Since(start)

	log.Info().
		Int("fetched", res.Fetched).
		Int("inserted", res.Inserted).
		Int("existing", res.Existing).
		Int("skipped", res.Skipped).
		Int("partial_errors", len(res.PartialErrors)).
		Dur("duration", res.Duration).
		Msg("harvest finished")
	return res, nil
}

// Job is one pipeline for HarvestMany. Sources run in order and all write
// to Collection.
type Job struct {
	Name       string
	Sources    []source.Source
	Collection record.Collection
}

// JobResult is the outcome of one Job. Sources after a failed one still
// run.
type JobResult struct {
	Name    string
	Results []*Result
	Errors  map[source.Kind]error
}

// Err joins the job's failures, or returns nil when every source succeeded.
func (r JobResult) Err() error {
	kinds := slices.Sorted(maps.Keys(r.Errors))
	errs := make([]error, 0, len(kinds))
	for _, k := range kinds {
		errs = append(errs, r.Errors[k])
	}
	return errors.Join(errs...)
}

// HarvestMany runs jobs concurrently. A failed job does not cancel the
// others; results are returned in job order.
func (o *Orchestrator) HarvestMany(ctx context.Context, jobs []Job) []JobResult {
	out := make([]JobResult, len(jobs))

	var g errgroup.Group
	for i, job := range jobs {
		g.Go(func() error {
			jr := JobResult{Name: job.Name, Errors: map[source.Kind]error{}}
			for _, src := range job.Sources {
				res, err := o.Harvest(ctx, src, job.Collection)
				if err != nil {
					jr.Errors[src.Kind()] = err
					continue
				}
				jr.Results = append(jr.Results, res)
			}
			out[i] = jr
			return nil
		})
	}
	_ = g.Wait()
	return out
}
