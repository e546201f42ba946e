package model

// ManifestEntry identifies one CDA entity and the point up to which it
// was last processed. SchemaHistory is sorted ascending by timestamp by
// the reader (the manifest's own key order is not meaningful JSON-wise)
// and is invariant: non-empty, strictly ascending by ts.
type ManifestEntry struct {
	TableName             string
	DataFilesPath         string
	LastSuccessWriteTS    int64
	TotalProcessedRecords int64
	SchemaHistory         []SchemaHistoryEntry
}

// SchemaHistoryEntry is one (schema_id, first_seen_ts) pair from the
// manifest's schemaHistory map, ordered ascending by TS once parsed.
type SchemaHistoryEntry struct {
	SchemaID string
	TS       int64
}

// FirstSeen returns the ts at which schemaID first appeared, and whether
// it is present in the history at all.
func (m ManifestEntry) FirstSeen(schemaID string) (int64, bool) {
	for _, h := range m.SchemaHistory {
		if h.SchemaID == schemaID {
			return h.TS, true
		}
	}
	return 0, false
}
