package model

// The action types below follow the Delta Lake transaction-log spec
// (reader v1 / writer v2). Field names mirror the wire protocol's camelCase
// exactly so they can be marshaled directly with goccy/go-json.

// ProtocolAction declares the minimum reader/writer protocol versions.
// Present only in a new table's first commit.
type ProtocolAction struct {
	MinReaderVersion int `json:"minReaderVersion"`
	MinWriterVersion int `json:"minWriterVersion"`
}

// MetaDataAction declares (or re-declares, on schema change) the table's
// schema. Id is a deterministic hash of SchemaString so idempotent re-runs
// produce the same metadata id.
type MetaDataAction struct {
	ID               string            `json:"id"`
	SchemaString     string            `json:"schemaString"`
	PartitionColumns []string          `json:"partitionColumns"`
	Configuration    map[string]string `json:"configuration"`
	CreatedTime      int64             `json:"createdTime"`
}

// AddAction registers a live parquet file. Path is an absolute URI into
// the source store; no data ever moves.
type AddAction struct {
	Path             string            `json:"path"`
	PartitionValues  map[string]string `json:"partitionValues"`
	Size             int64             `json:"size"`
	ModificationTime int64             `json:"modificationTime"`
	DataChange       bool              `json:"dataChange"`
}

// RemoveAction retires a previously-added file. DeletionTimestamp is the
// ts of the batch that made the file obsolete.
type RemoveAction struct {
	Path                 string            `json:"path"`
	DeletionTimestamp    int64             `json:"deletionTimestamp"`
	DataChange           bool              `json:"dataChange"`
	ExtendedFileMetadata bool              `json:"extendedFileMetadata"`
	PartitionValues      map[string]string `json:"partitionValues"`
	Size                 int64             `json:"size"`
}

// CommitInfoAction is an optional, non-authoritative audit record.
type CommitInfoAction struct {
	Timestamp       int64  `json:"timestamp"`
	Operation       string `json:"operation"`
	IsolationLevel  string `json:"isolationLevel"`
}

// Action is one line of a commit JSON file: exactly one of its fields is
// set. The Writer marshals each populated field as its own NDJSON line,
// in the canonical order protocol, metaData, remove*, add*, commitInfo.
type Action struct {
	Protocol   *ProtocolAction   `json:"protocol,omitempty"`
	MetaData   *MetaDataAction   `json:"metaData,omitempty"`
	Add        *AddAction        `json:"add,omitempty"`
	Remove     *RemoveAction     `json:"remove,omitempty"`
	CommitInfo *CommitInfoAction `json:"commitInfo,omitempty"`
}

// Commit is the full ordered action list for one Delta version.
type Commit struct {
	Version int64
	Actions []Action
}

// LastCheckpoint is the contents of the target table's _last_checkpoint
// sidecar file.
type LastCheckpoint struct {
	Version int64 `json:"version"`
	Size    int64 `json:"size"`
}
