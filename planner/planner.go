// Package planner enumerates a CDA entity's SchemaFolders and
// TimestampFolders and turns them into the ordered sequence of Batches
// the Delta Log Writer commits.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/guidewire-oss/cda-deltasync/model"
	"github.com/guidewire-oss/cda-deltasync/store"
)

// LogState is the minimal view of a table's current Delta log the
// planner needs: where to resume from, and the file set live before this
// run's first new batch. Satisfied structurally by deltalog.State so
// this package never imports deltalog.
type LogState interface {
	// HighWaterTS is the highest ts already committed for this entity, or
	// -1 for a brand-new table.
	HighWaterTS() int64
	// LiveFiles is the current live snapshot, keyed by path.
	LiveFiles() map[string]model.LiveFile
}

// Planner lists a CDA entity tree via a Gateway and plans Batches.
type Planner struct {
	log    zerolog.Logger
	gw     store.Gateway
	fanout int

	// discover reads a parquet footer and returns its canonical schema
	// string. Defaults to (*Planner).discoverSchema; tests in this
	// package may override it to avoid needing real parquet bytes.
	discover func(ctx context.Context, file model.FileRef) (string, error)
}

// New builds a Planner. fanout bounds concurrent List/footer-read calls
// issued while planning a single entity.
func New(log zerolog.Logger, gw store.Gateway, fanout int) *Planner {
	if fanout <= 0 {
		fanout = model.DefaultFanout
	}
	p := &Planner{log: log.With().Str("component", "planner").Logger(), gw: gw, fanout: fanout}
	p.discover = p.discoverSchema
	return p
}

// Plan computes the ordered Batch sequence for entry given state. It
// never mutates state; the caller (Delta Log Writer) is responsible for
// applying returned Batches in order.
func (p *Planner) Plan(ctx context.Context, entry model.ManifestEntry, state LogState) ([]model.Batch, []string, error) {
	log := p.log.With().Str("table", entry.TableName).Logger()

	schemaFolders, warnings, err := p.listSchemaFolders(ctx, entry)
	if err != nil {
		return nil, warnings, err
	}
	if len(schemaFolders) == 0 {
		return nil, append(warnings, model.ErrNoSchemaFolders.Error()), nil
	}

	sort.Slice(schemaFolders, func(i, j int) bool {
		return schemaFolders[i].FirstSeenTS < schemaFolders[j].FirstSeenTS
	})

	highWater := state.HighWaterTS()
	var batches []model.Batch

	for _, sf := range schemaFolders {
		tsFolders, w, err := p.listTimestampFolders(ctx, entry.DataFilesPath, sf)
		warnings = append(warnings, w...)
		if err != nil {
			return batches, warnings, err
		}

		surviving := tsFolders[:0:0]
		for _, tf := range tsFolders {
			if tf.TS <= highWater {
				continue
			}
			surviving = append(surviving, tf)
		}
		if len(surviving) == 0 {
			continue
		}

		isContinuation := sf.FirstSeenTS <= highWater
		var prevFiles []model.FileRef
		first := true

		for _, tf := range surviving {
			if len(tf.Files) == 0 {
				warnings = append(warnings, fmt.Sprintf("schema %s: timestamp folder %d has no parquet files, skipped", sf.SchemaID, tf.TS))
				continue
			}

			var removes []string
			isSchemaChange := false

			if first {
				isSchemaChange = !isContinuation
				if len(batches) > 0 {
					removes = filePaths(p.gw, batches[len(batches)-1].Adds)
				} else {
					removes = liveFilePaths(state.LiveFiles())
				}
				if isSchemaChange {
					schemaStr, err := p.discover(ctx, tf.Files[0])
					if err != nil {
						return batches, warnings, fmt.Errorf("%w: schema %s: %v", model.ErrSchemaDiscoveryFailed, sf.SchemaID, err)
					}
					sf.ParquetSchema = schemaStr
				}
			} else {
				removes = filePaths(p.gw, prevFiles)
			}

			batches = append(batches, model.Batch{
				SchemaID:       sf.SchemaID,
				TS:             tf.TS,
				Adds:           tf.Files,
				Removes:        removes,
				IsSchemaChange: isSchemaChange,
				ParquetSchema:  sf.ParquetSchema,
			})

			prevFiles = tf.Files
			first = false
		}

		if first {
			warnings = append(warnings, fmt.Sprintf("schema %s has no non-empty timestamp folders, contributed no batch", sf.SchemaID))
		}
	}

	log.Debug().Int("batches", len(batches)).Int("warnings", len(warnings)).Msg("planned entity")
	return batches, warnings, nil
}

func liveFilePaths(live map[string]model.LiveFile) []string {
	if len(live) == 0 {
		return nil
	}
	paths := make([]string, 0, len(live))
	for p := range live {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func filePaths(gw store.Gateway, files []model.FileRef) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = store.AbsoluteURI(gw, f.Key)
	}
	return paths
}

// listSchemaFolders lists <data_files_path>/ non-recursively and
// reconciles the resulting folder names against entry.SchemaHistory: a
// history entry without a folder, or a folder without a history entry,
// is a warning and is skipped.
func (p *Planner) listSchemaFolders(ctx context.Context, entry model.ManifestEntry) ([]model.SchemaFolder, []string, error) {
	prefix := ensureTrailingSlash(entry.DataFilesPath)
	objs, err := p.gw.List(ctx, prefix, false)
	if err != nil {
		return nil, nil, fmt.Errorf("list schema folders: %w", err)
	}

	found := make(map[string]struct{}, len(objs))
	for _, o := range objs {
		if !strings.HasSuffix(o.Key, "/") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(o.Key, prefix), "/")
		if id == "" {
			continue
		}
		found[id] = struct{}{}
	}

	var warnings []string
	var folders []model.SchemaFolder
	for _, h := range entry.SchemaHistory {
		if _, ok := found[h.SchemaID]; !ok {
			warnings = append(warnings, fmt.Sprintf("schema %s in manifest history has no folder, skipped", h.SchemaID))
			continue
		}
		folders = append(folders, model.SchemaFolder{SchemaID: h.SchemaID, FirstSeenTS: h.TS})
		delete(found, h.SchemaID)
	}
	for id := range found {
		warnings = append(warnings, fmt.Sprintf("schema folder %s has no manifest history entry, skipped (orphan)", id))
	}

	return folders, warnings, nil
}

// timestampFolder is an intermediate result before zero-file filtering.
type timestampFolder struct {
	TS    int64
	Files []model.FileRef
}

func (p *Planner) listTimestampFolders(ctx context.Context, dataFilesPath string, sf model.SchemaFolder) ([]timestampFolder, []string, error) {
	schemaPrefix := ensureTrailingSlash(dataFilesPath) + sf.SchemaID + "/"
	objs, err := p.gw.List(ctx, schemaPrefix, false)
	if err != nil {
		return nil, nil, fmt.Errorf("list timestamp folders for schema %s: %w", sf.SchemaID, err)
	}

	type candidate struct {
		ts  int64
		raw string
	}
	var candidates []candidate
	var warnings []string
	seen := make(map[int64]string)

	for _, o := range objs {
		if !strings.HasSuffix(o.Key, "/") {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(o.Key, schemaPrefix), "/")
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue // not a ts folder, ignore silently (e.g. stray object)
		}
		if prior, dup := seen[ts]; dup {
			warnings = append(warnings, fmt.Sprintf("schema %s: timestamp folder %q duplicates ts of %q, dropped: %v", sf.SchemaID, raw, prior, model.ErrDuplicateTimestampFolder))
			continue
		}
		seen[ts] = raw
		candidates = append(candidates, candidate{ts: ts, raw: raw})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ts < candidates[j].ts })

	folders := make([]timestampFolder, len(candidates))
	var mu sync.Mutex
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(p.fanout)

	for i, c := range candidates {
		i, c := i, c
		group.Go(func() error {
			tsPrefix := schemaPrefix + c.raw + "/"
			fileObjs, err := p.gw.List(gctx, tsPrefix, false)
			if err != nil {
				return fmt.Errorf("list files under %s: %w", tsPrefix, err)
			}
			var files []model.FileRef
			for _, fo := range fileObjs {
				if strings.HasSuffix(fo.Key, "/") || !strings.HasSuffix(fo.Key, ".parquet") {
					continue
				}
				files = append(files, model.FileRef{Key: fo.Key, Size: fo.Size})
			}
			sort.Slice(files, func(a, b int) bool { return files[a].Key < files[b].Key })

			mu.Lock()
			folders[i] = timestampFolder{TS: c.ts, Files: files}
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, warnings, err
	}

	return folders, warnings, nil
}

func ensureTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
