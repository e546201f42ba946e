// Package manifest reads the top-level CDA manifest and yields the set
// of entities a run should process.
package manifest

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/guidewire-oss/cda-deltasync/model"
	"github.com/guidewire-oss/cda-deltasync/store"
)

// Reader parses the manifest JSON object at a configured source URI. Its
// dynamic, partially-typed shape (string-encoded ints, optional fields)
// is walked with gjson rather than unmarshaled into a rigid struct:
// unknown fields are ignored, and an entry missing a required field is
// skipped (see Read).
type Reader struct {
	log zerolog.Logger
	gw  store.Gateway
	key string
}

// NewReader builds a Reader that fetches the manifest object at key from
// gw (the source-role Gateway).
func NewReader(log zerolog.Logger, gw store.Gateway, key string) *Reader {
	return &Reader{log: log.With().Str("component", "manifest_reader").Logger(), gw: gw, key: key}
}

// Read fetches and parses the manifest, filtering to names when it is
// non-empty. Entries are returned sorted by table name for determinism.
// A missing or malformed manifest is fatal (wraps model.ErrManifestMalformed);
// an individual malformed entry is skipped and appended to skipped.
func (r *Reader) Read(ctx context.Context, names map[string]struct{}) (entries []model.ManifestEntry, skipped []string, err error) {
	body, err := r.gw.Get(ctx, r.key, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: could not fetch manifest %q: %v", model.ErrManifestMalformed, r.key, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, nil, fmt.Errorf("%w: manifest %q is not valid JSON", model.ErrManifestMalformed, r.key)
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, nil, fmt.Errorf("%w: manifest %q is not a JSON object", model.ErrManifestMalformed, r.key)
	}

	root.ForEach(func(tableKey, value gjson.Result) bool {
		table := tableKey.String()
		if len(names) > 0 {
			if _, want := names[table]; !want {
				return true
			}
		}
		entry, parseErr := parseEntry(table, value)
		if parseErr != nil {
			r.log.Warn().Str("table", table).Err(parseErr).Msg("skipping malformed manifest entry")
			skipped = append(skipped, table)
			return true
		}
		entries = append(entries, entry)
		return true
	})

	sort.Slice(entries, func(i, j int) bool { return entries[i].TableName < entries[j].TableName })
	return entries, skipped, nil
}

func parseEntry(table string, value gjson.Result) (model.ManifestEntry, error) {
	if !value.IsObject() {
		return model.ManifestEntry{}, fmt.Errorf("%w: entry is not an object", model.ErrEntityMissing)
	}

	dataFilesPath := value.Get("dataFilesPath")
	if !dataFilesPath.Exists() || dataFilesPath.String() == "" {
		return model.ManifestEntry{}, fmt.Errorf("%w: missing dataFilesPath", model.ErrEntityMissing)
	}

	lastWrite := value.Get("lastSuccessfulWriteTimestamp")
	lastWriteTS, err := parseEpochMS(lastWrite)
	if err != nil {
		return model.ManifestEntry{}, fmt.Errorf("%w: lastSuccessfulWriteTimestamp: %v", model.ErrEntityMissing, err)
	}

	total := value.Get("totalProcessedRecordsCount")
	var totalRecords int64
	if total.Exists() {
		totalRecords = total.Int()
	}

	history := value.Get("schemaHistory")
	if !history.Exists() || !history.IsObject() {
		return model.ManifestEntry{}, fmt.Errorf("%w: missing schemaHistory", model.ErrEntityMissing)
	}

	var entries []model.SchemaHistoryEntry
	var parseErr error
	history.ForEach(func(schemaID, ts gjson.Result) bool {
		tsVal, err := parseEpochMS(ts)
		if err != nil {
			parseErr = fmt.Errorf("schemaHistory[%s]: %w", schemaID.String(), err)
			return false
		}
		entries = append(entries, model.SchemaHistoryEntry{SchemaID: schemaID.String(), TS: tsVal})
		return true
	})
	if parseErr != nil {
		return model.ManifestEntry{}, fmt.Errorf("%w: %v", model.ErrEntityMissing, parseErr)
	}
	if len(entries) == 0 {
		return model.ManifestEntry{}, fmt.Errorf("%w: empty schemaHistory", model.ErrEntityMissing)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].TS < entries[j].TS })
	for i := 1; i < len(entries); i++ {
		if entries[i].TS <= entries[i-1].TS {
			return model.ManifestEntry{}, fmt.Errorf("%w: schemaHistory is not strictly ascending", model.ErrEntityMissing)
		}
	}

	return model.ManifestEntry{
		TableName:             table,
		DataFilesPath:         dataFilesPath.String(),
		LastSuccessWriteTS:    lastWriteTS,
		TotalProcessedRecords: totalRecords,
		SchemaHistory:         entries,
	}, nil
}

// parseEpochMS accepts either a gjson string or number holding a decimal
// ms-epoch value.
func parseEpochMS(v gjson.Result) (int64, error) {
	if !v.Exists() {
		return 0, fmt.Errorf("missing timestamp")
	}
	switch v.Type {
	case gjson.String:
		return strconv.ParseInt(v.String(), 10, 64)
	case gjson.Number:
		return v.Int(), nil
	default:
		return 0, fmt.Errorf("unexpected timestamp type")
	}
}
