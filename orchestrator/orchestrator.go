// Package orchestrator fans per-entity pipelines (Manifest Reader ->
// Batch Planner -> Delta Log Writer) out across a worker pool, collects
// their Results, and never lets one entity's failure abort its peers.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/guidewire-oss/cda-deltasync/deltalog"
	"github.com/guidewire-oss/cda-deltasync/manifest"
	"github.com/guidewire-oss/cda-deltasync/metrics"
	"github.com/guidewire-oss/cda-deltasync/model"
	"github.com/guidewire-oss/cda-deltasync/planner"
	"github.com/guidewire-oss/cda-deltasync/store"
)

// Progress lets the surrounding program render a progress bar or
// suppress UI entirely; the core never imports a terminal library.
type Progress interface {
	Start(total int)
	Advance(table string, n int)
	Finish(table string, ok bool)
}

type noopProgress struct{}

func (noopProgress) Start(int)                {}
func (noopProgress) Advance(string, int)      {}
func (noopProgress) Finish(string, bool)      {}

// Orchestrator drives the whole run: asks the Manifest Reader for the
// entity list, then fans C+D out across entities per Config.
type Orchestrator struct {
	log      zerolog.Logger
	sourceGW store.Gateway
	targetGW store.Gateway
	manifest *manifest.Reader
	cfg      model.Config
	planner  *planner.Planner
	writer   *deltalog.Writer
	progress Progress
	metrics  *metrics.Metrics
}

// Option mutates an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithProgress injects a Progress callback; the default is a no-op.
func WithProgress(p Progress) Option {
	return func(o *Orchestrator) { o.progress = p }
}

// WithMetrics attaches a prometheus Metrics facade.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithResumeCache rebuilds the Delta Log Writer with a local resume
// cache, accelerating Open for warm re-runs.
func WithResumeCache(cache *deltalog.ResumeCache) Option {
	return func(o *Orchestrator) {
		o.writer = deltalog.NewWriter(o.log, o.targetGW, o.cfg.CheckpointInterval, cache)
	}
}

// New builds an Orchestrator. sourceGW is read-only (CDA parquet plus
// manifest); targetGW is read/write (the Delta log).
func New(log zerolog.Logger, sourceGW, targetGW store.Gateway, reader *manifest.Reader, cfg model.Config, opts ...Option) *Orchestrator {
	l := log.With().Str("component", "orchestrator").Logger()
	o := &Orchestrator{
		log:      l,
		sourceGW: sourceGW,
		targetGW: targetGW,
		manifest: reader,
		cfg:      cfg,
		planner:  planner.New(l, sourceGW, cfg.Fanout),
		writer:   deltalog.NewWriter(l, targetGW, cfg.CheckpointInterval, nil),
		progress: noopProgress{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run reads the manifest, fans entity pipelines out across a worker
// pool sized by Config.MaxWorkers (CPU count by default, 1 when
// Config.Parallel is false), and returns every entity's Result once all
// have finished. A malformed top-level manifest is the only run-level
// fatal error; individual malformed entries are skipped and recorded as
// warning-only Results.
func (o *Orchestrator) Run(ctx context.Context) ([]model.Result, error) {
	entries, skipped, err := o.manifest.Read(ctx, o.cfg.TableNames)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	results := make([]model.Result, 0, len(entries)+len(skipped))
	for _, name := range skipped {
		results = append(results, model.Result{Table: name, Warnings: []string{model.ErrEntityMissing.Error()}})
	}

	maxWorkers := o.cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}
	if !o.cfg.Parallel {
		maxWorkers = 1
	}

	o.progress.Start(len(entries))

	var mu sync.Mutex
	var group errgroup.Group
	group.SetLimit(maxWorkers)

	for _, entry := range entries {
		entry := entry
		if o.metrics != nil {
			o.metrics.EntityStarted()
		}
		group.Go(func() error {
			res := o.processEntity(ctx, entry)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			o.progress.Finish(entry.TableName, res.OK())
			if o.metrics != nil {
				o.metrics.EntityCompleted(entry.TableName, res.OK())
			}
			return nil
		})
	}
	_ = group.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Table < results[j].Table })
	return results, nil
}

// tableRoot is the target-store prefix holding one entity's Delta log.
// CDA tables are addressed by name only on the target side; the source
// side's data_files_path stays on the source store.
func tableRoot(entry model.ManifestEntry) string {
	return entry.TableName
}

func (o *Orchestrator) processEntity(ctx context.Context, entry model.ManifestEntry) model.Result {
	log := o.log.With().Str("table", entry.TableName).Logger()
	result := model.Result{
		Table:           entry.TableName,
		ProcessStartTS:  time.Now().UnixMilli(),
		ManifestRecords: entry.TotalProcessedRecords,
	}
	root := tableRoot(entry)

	state, err := o.writer.Open(ctx, entry.TableName, root)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("open delta log: %w", err))
		result.ProcessFinishTS = time.Now().UnixMilli()
		return result
	}
	result.ProcessStartVersion = state.Version
	result.ProcessStartWatermark = state.HighWater

	attempts := 0
	for {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err())
			break
		}

		batches, warnings, err := o.planner.Plan(ctx, entry, state)
		result.Warnings = append(result.Warnings, warnings...)
		if err != nil {
			result.Errors = append(result.Errors, err)
			break
		}
		if len(batches) == 0 {
			break
		}

		conflicted, fatalErr := o.commitBatches(ctx, entry.TableName, root, state, batches, &result)
		if fatalErr != nil {
			result.Errors = append(result.Errors, fatalErr)
			break
		}
		if !conflicted {
			break
		}

		attempts++
		if o.metrics != nil {
			o.metrics.ConflictRetried(entry.TableName)
		}
		if attempts > o.cfg.RetryCap {
			result.Errors = append(result.Errors, fmt.Errorf("%w: exceeded %d retries", model.ErrCommitConflict, o.cfg.RetryCap))
			break
		}
		log.Warn().Int("attempt", attempts).Msg("commit conflict, re-opening and re-planning")
		state, err = o.writer.Open(ctx, entry.TableName, root)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("re-open delta log: %w", err))
			break
		}
	}

	result.ProcessFinishVersion = state.Version
	result.ProcessFinishWatermark = state.HighWater
	result.ProcessFinishTS = time.Now().UnixMilli()
	return result
}

// commitBatches appends batches in order, stopping at the first conflict
// so the caller can re-open, re-plan, and retry from the new watermark.
func (o *Orchestrator) commitBatches(ctx context.Context, table, root string, state *deltalog.State, batches []model.Batch, result *model.Result) (conflicted bool, err error) {
	for _, batch := range batches {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		checkpointWarn, err := o.writer.Append(ctx, root, state, batch, o.sourceGW)
		if err != nil {
			if errors.Is(err, model.ErrCommitConflict) {
				return true, nil
			}
			return false, err
		}
		if checkpointWarn != nil {
			result.Warnings = append(result.Warnings, checkpointWarn.Error())
		}

		result.Watermarks = append(result.Watermarks, batch.TS)
		if batch.IsSchemaChange {
			result.SchemaTimestamps = append(result.SchemaTimestamps, batch.TS)
		}
		if o.metrics != nil {
			o.metrics.BatchCommitted(table, addsSize(batch))
		}
		o.progress.Advance(table, 1)
	}
	return false, nil
}

func addsSize(batch model.Batch) int64 {
	var total int64
	for _, f := range batch.Adds {
		total += f.Size
	}
	return total
}
