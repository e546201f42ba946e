package model

// SchemaFolder is one <data_files_path>/<schema_id>/ subdirectory.
type SchemaFolder struct {
	SchemaID     string
	FirstSeenTS  int64
	ParquetSchema string // canonical schemaString, discovered lazily
}

// TimestampFolder is one <data_files_path>/<schema_id>/<ts>/ subdirectory.
// Its contents fully replace the entity's state as of TS.
type TimestampFolder struct {
	TS       int64
	SchemaID string
	Files    []FileRef
}

// FileRef is one parquet object directly beneath a TimestampFolder.
type FileRef struct {
	Key  string // object key, relative to the source store root
	Size int64
}

// TotalSize sums the sizes of every file in the folder.
func (t TimestampFolder) TotalSize() int64 {
	var total int64
	for _, f := range t.Files {
		total += f.Size
	}
	return total
}

// Batch is one Delta commit unit: the file diff between two
// TimestampFolders (or, at a schema-change boundary, between the last
// TimestampFolder of the old schema and the first of the new one).
type Batch struct {
	SchemaID       string
	TS             int64
	Adds           []FileRef
	Removes        []string // paths only; size/partitionValues come from live_files
	IsSchemaChange bool
	// ParquetSchema carries the schema's canonical string on every batch
	// of a SchemaFolder whose schema was discovered in this plan (the
	// first of those batches has IsSchemaChange set); it is empty for
	// batches continuing an already-committed schema. The Writer reads it
	// only when it emits a metaData action.
	ParquetSchema string
}
