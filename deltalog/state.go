package deltalog

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	goccy "github.com/goccy/go-json"
	"github.com/parquet-go/parquet-go"

	"github.com/guidewire-oss/cda-deltasync/model"
)

// State is a table's current Delta log state: the last committed
// version (-1 for a new table), the high-water ts already committed, the active schema's
// metadata, and the live file snapshot. It satisfies planner.LogState
// structurally, so this package never imports planner.
type State struct {
	Version   int64
	HighWater int64
	MetaData  *model.MetaDataAction
	Live      map[string]model.LiveFile
}

// HighWaterTS implements planner.LogState.
func (s *State) HighWaterTS() int64 { return s.HighWater }

// LiveFiles implements planner.LogState.
func (s *State) LiveFiles() map[string]model.LiveFile { return s.Live }

func newState() *State {
	return &State{Version: -1, HighWater: -1, Live: make(map[string]model.LiveFile)}
}

// checkpointRow is one row of a checkpoint parquet file: the canonical
// Delta checkpoint schema (add, remove, metaData, protocol as nullable
// structs). Exactly one field is populated per row.
type checkpointRow struct {
	Add      *model.AddAction      `parquet:"add,optional"`
	Remove   *model.RemoveAction   `parquet:"remove,optional"`
	MetaData *model.MetaDataAction `parquet:"metaData,optional"`
	Protocol *model.ProtocolAction `parquet:"protocol,optional"`
}

// Open lists table's _delta_log/ directory and reconstructs its current
// State: a checkpoint (if `_last_checkpoint` is present and readable)
// plus every commit strictly newer than it, replayed in order. An empty
// directory yields a fresh State at version -1 ("new table"). When a
// ResumeCache is configured and its cached snapshot's version matches
// the target's current tail, the cache is trusted and replay is skipped
// entirely. The target store remains authoritative whenever it disagrees.
func (w *Writer) Open(ctx context.Context, table, tableRoot string) (*State, error) {
	logPrefix := logDir(tableRoot)
	objs, err := w.gw.List(ctx, logPrefix, false)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", logPrefix, err)
	}

	var jsonVersions []int64
	lastCheckpointPresent := false
	for _, o := range objs {
		name := strings.TrimPrefix(o.Key, logPrefix)
		switch {
		case name == "_last_checkpoint":
			lastCheckpointPresent = true
		case strings.HasSuffix(name, ".json"):
			if v, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 64); err == nil {
				jsonVersions = append(jsonVersions, v)
			}
		}
	}
	if len(jsonVersions) == 0 {
		return newState(), nil
	}
	sort.Slice(jsonVersions, func(i, j int) bool { return jsonVersions[i] < jsonVersions[j] })
	tailVersion := jsonVersions[len(jsonVersions)-1]

	if w.cache != nil {
		if cached, ok := w.cache.Get(table); ok && cached.Version == tailVersion {
			w.log.Debug().Str("table", table).Int64("version", tailVersion).Msg("resumed from local cache, skipped replay")
			return cached, nil
		}
	}

	state := newState()
	startVersion := int64(-1)
	if lastCheckpointPresent {
		lc, err := w.readLastCheckpoint(ctx, logPrefix)
		if err != nil {
			w.log.Warn().Err(err).Str("table", table).Msg("could not read _last_checkpoint, falling back to full replay")
		} else if err := w.replayCheckpoint(ctx, logPrefix, lc.Version, state); err != nil {
			return nil, fmt.Errorf("replay checkpoint %d: %w", lc.Version, err)
		} else {
			startVersion = lc.Version
		}
	}

	for _, v := range jsonVersions {
		if v <= startVersion {
			continue
		}
		if err := w.replayCommit(ctx, logPrefix, v, state); err != nil {
			return nil, fmt.Errorf("replay commit %d: %w", v, err)
		}
		state.Version = v
	}
	if state.Version < startVersion {
		state.Version = startVersion
	}

	if w.cache != nil {
		if err := w.cache.Put(table, state); err != nil {
			w.log.Warn().Err(err).Str("table", table).Msg("could not update resume cache")
		}
	}

	return state, nil
}

func (w *Writer) readLastCheckpoint(ctx context.Context, logPrefix string) (model.LastCheckpoint, error) {
	body, err := w.gw.Get(ctx, logPrefix+"_last_checkpoint", nil)
	if err != nil {
		return model.LastCheckpoint{}, err
	}
	var lc model.LastCheckpoint
	if err := goccy.Unmarshal(body, &lc); err != nil {
		return model.LastCheckpoint{}, err
	}
	return lc, nil
}

func (w *Writer) replayCheckpoint(ctx context.Context, logPrefix string, version int64, state *State) error {
	key := fmt.Sprintf("%s%020d.checkpoint.parquet", logPrefix, version)
	info, err := w.gw.Head(ctx, key)
	if err != nil {
		return err
	}
	ra := &gatewayReaderAt{ctx: ctx, gw: w.gw, key: key}
	rows, err := parquet.Read[checkpointRow](ra, info.Size)
	if err != nil {
		return err
	}
	for _, row := range rows {
		switch {
		case row.MetaData != nil:
			md := *row.MetaData
			state.MetaData = &md
		case row.Add != nil:
			w.applyAdd(state, row.Add)
		}
	}
	return nil
}

func (w *Writer) replayCommit(ctx context.Context, logPrefix string, version int64, state *State) error {
	key := fmt.Sprintf("%s%020d.json", logPrefix, version)
	body, err := w.gw.Get(ctx, key, nil)
	if err != nil {
		return err
	}
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var action model.Action
		if err := goccy.Unmarshal(line, &action); err != nil {
			return fmt.Errorf("unmarshal action: %w", err)
		}
		switch {
		case action.MetaData != nil:
			md := *action.MetaData
			state.MetaData = &md
		case action.Remove != nil:
			delete(state.Live, w.intern.intern(action.Remove.Path))
		case action.Add != nil:
			w.applyAdd(state, action.Add)
		}
	}
	return scanner.Err()
}

func (w *Writer) applyAdd(state *State, add *model.AddAction) {
	path := w.intern.intern(add.Path)
	state.Live[path] = model.LiveFile{
		Path:             add.Path,
		Size:             add.Size,
		ModificationTime: add.ModificationTime,
		PartitionValues:  add.PartitionValues,
	}
	if add.ModificationTime > state.HighWater {
		state.HighWater = add.ModificationTime
	}
}
