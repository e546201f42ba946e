// Package deltalog owns the _delta_log/ directory under one Delta
// table's target-store root: opening and recovering existing state,
// appending commit files, and rolling checkpoints.
package deltalog

import (
	"bytes"
	"context"
	"fmt"

	goccy "github.com/goccy/go-json"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/guidewire-oss/cda-deltasync/model"
	"github.com/guidewire-oss/cda-deltasync/store"
)

// Writer authors the Delta transaction log for one table against a
// target Gateway, following the state machine NEW -> OPEN -> (PLAN ->
// APPEND -> CHECKPOINT?) -> DONE from the component design.
type Writer struct {
	log                zerolog.Logger
	gw                 store.Gateway
	checkpointInterval int
	intern             *interner
	cache              *ResumeCache
}

// NewWriter builds a Writer against the target Gateway gw. cache may be
// nil; when set, it accelerates Open for warm re-runs but is never
// treated as authoritative.
func NewWriter(log zerolog.Logger, gw store.Gateway, checkpointInterval int, cache *ResumeCache) *Writer {
	if checkpointInterval <= 0 {
		checkpointInterval = model.DefaultCheckpointInterval
	}
	return &Writer{
		log:                log.With().Str("component", "deltalog_writer").Logger(),
		gw:                 gw,
		checkpointInterval: checkpointInterval,
		intern:             newInterner(),
		cache:              cache,
	}
}

func logDir(tableRoot string) string {
	if tableRoot == "" {
		return "_delta_log/"
	}
	if tableRoot[len(tableRoot)-1] != '/' {
		tableRoot += "/"
	}
	return tableRoot + "_delta_log/"
}

// Append builds and conditionally writes the commit for batch, advancing
// state in place on success. sourceGW supplies the scheme/bucket used to
// build the absolute add.path URIs that point back at the source store;
// the target store never receives parquet bytes. A lost conditional-put
// race (model.IsConflict) leaves state untouched; the caller is expected
// to re-Open, re-plan, and retry the whole batch, bounded by its own
// retry cap. checkpointWarning is non-nil only when the commit itself
// succeeded but the follow-on checkpoint write failed.
func (w *Writer) Append(ctx context.Context, tableRoot string, state *State, batch model.Batch, sourceGW store.Gateway) (checkpointWarning error, err error) {
	newVersion := state.Version + 1
	isFirstCommit := state.Version == -1

	var actions []model.Action
	if isFirstCommit {
		actions = append(actions, model.Action{Protocol: &model.ProtocolAction{MinReaderVersion: 1, MinWriterVersion: 2}})
	}
	if isFirstCommit || batch.IsSchemaChange {
		md := model.MetaDataAction{
			ID:               schemaID(batch.ParquetSchema),
			SchemaString:     batch.ParquetSchema,
			PartitionColumns: []string{},
			Configuration:    map[string]string{},
			CreatedTime:      batch.TS,
		}
		actions = append(actions, model.Action{MetaData: &md})
		state.MetaData = &md
	}

	for _, path := range batch.Removes {
		remove := model.RemoveAction{
			Path:                 path,
			DeletionTimestamp:    batch.TS,
			DataChange:           true,
			ExtendedFileMetadata: true,
		}
		if live, ok := state.Live[path]; ok {
			remove.Size = live.Size
			remove.PartitionValues = live.PartitionValues
		}
		actions = append(actions, model.Action{Remove: &remove})
		delete(state.Live, path)
	}

	for _, file := range batch.Adds {
		path := store.AbsoluteURI(sourceGW, file.Key)
		add := model.AddAction{
			Path:             path,
			PartitionValues:  map[string]string{},
			Size:             file.Size,
			ModificationTime: batch.TS,
			DataChange:       true,
		}
		actions = append(actions, model.Action{Add: &add})
		state.Live[w.intern.intern(path)] = model.LiveFile{
			Path: path, Size: file.Size, ModificationTime: batch.TS, PartitionValues: add.PartitionValues,
		}
	}

	actions = append(actions, model.Action{CommitInfo: &model.CommitInfoAction{
		Timestamp:      batch.TS,
		Operation:      "WRITE",
		IsolationLevel: "Serializable",
	}})

	body, err := marshalCommit(actions)
	if err != nil {
		return nil, fmt.Errorf("marshal commit %d: %w", newVersion, err)
	}

	key := fmt.Sprintf("%s%020d.json", logDir(tableRoot), newVersion)
	if err := w.gw.Put(ctx, key, body, true); err != nil {
		if model.IsConflict(err) {
			return nil, fmt.Errorf("%w: version %d", model.ErrCommitConflict, newVersion)
		}
		return nil, fmt.Errorf("put commit %d: %w", newVersion, err)
	}

	state.Version = newVersion
	if batch.TS > state.HighWater {
		state.HighWater = batch.TS
	}
	w.log.Info().Str("schema", batch.SchemaID).Int64("version", newVersion).Int64("ts", batch.TS).
		Int("adds", len(batch.Adds)).Int("removes", len(batch.Removes)).Bool("schema_change", batch.IsSchemaChange).
		Msg("committed batch")

	if newVersion != 0 && newVersion%int64(w.checkpointInterval) == 0 {
		if err := w.checkpoint(ctx, tableRoot, newVersion, state); err != nil {
			checkpointWarning = fmt.Errorf("%w: version %d: %v", model.ErrCheckpointFailed, newVersion, err)
		}
	}

	return checkpointWarning, nil
}

func (w *Writer) checkpoint(ctx context.Context, tableRoot string, version int64, state *State) error {
	rows := make([]checkpointRow, 0, len(state.Live)+1)
	if state.MetaData != nil {
		md := *state.MetaData
		rows = append(rows, checkpointRow{MetaData: &md})
	}
	for _, live := range state.Live {
		add := model.AddAction{
			Path: live.Path, Size: live.Size, ModificationTime: live.ModificationTime,
			PartitionValues: live.PartitionValues, DataChange: true,
		}
		rows = append(rows, checkpointRow{Add: &add})
	}

	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows); err != nil {
		return fmt.Errorf("write checkpoint parquet: %w", err)
	}

	key := fmt.Sprintf("%s%020d.checkpoint.parquet", logDir(tableRoot), version)
	if err := w.gw.Put(ctx, key, buf.Bytes(), false); err != nil {
		return fmt.Errorf("put checkpoint: %w", err)
	}

	lc, err := goccy.Marshal(model.LastCheckpoint{Version: version, Size: int64(len(rows))})
	if err != nil {
		return fmt.Errorf("marshal _last_checkpoint: %w", err)
	}
	if err := w.gw.Put(ctx, logDir(tableRoot)+"_last_checkpoint", lc, false); err != nil {
		return fmt.Errorf("put _last_checkpoint: %w", err)
	}
	w.log.Debug().Int64("version", version).Int("rows", len(rows)).Msg("wrote checkpoint")
	return nil
}

func marshalCommit(actions []model.Action) ([]byte, error) {
	var buf bytes.Buffer
	for _, a := range actions {
		line, err := goccy.Marshal(a)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
