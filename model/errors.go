package model

import "errors"

// Sentinel errors returned by the core components. Callers should match
// them with errors.Is; StoreError additionally carries the object key
// and backend-reported kind for logging.
var (
	// ErrManifestMalformed indicates the top-level manifest JSON is
	// missing, unreadable, not valid JSON, or not a JSON object. It is
	// fatal for the run. An entry missing a required field is reported
	// with ErrEntityMissing instead.
	ErrManifestMalformed = errors.New("manifest malformed")

	// ErrEntityMissing indicates a single manifest entry could not be
	// parsed. The entity is skipped and the error is recorded as a
	// warning on its Result.
	ErrEntityMissing = errors.New("entity missing or malformed")

	// ErrSchemaDiscoveryFailed indicates the planner could not read a
	// parquet footer to discover a SchemaFolder's schema. Fatal for the
	// entity.
	ErrSchemaDiscoveryFailed = errors.New("schema discovery failed")

	// ErrCommitConflict indicates a conditional put on a commit file lost
	// a race with another writer. Retried up to Config.RetryCap.
	ErrCommitConflict = errors.New("commit conflict")

	// ErrCheckpointFailed indicates a checkpoint parquet or
	// _last_checkpoint write failed after its commit was already durable.
	// Non-fatal; recorded as a warning.
	ErrCheckpointFailed = errors.New("checkpoint failed")

	// ErrDuplicateTimestampFolder indicates two TimestampFolders in the
	// same SchemaFolder share a ts. The second is dropped.
	ErrDuplicateTimestampFolder = errors.New("duplicate timestamp folder")

	// ErrNoSchemaFolders indicates an entity has no SchemaFolders at all.
	ErrNoSchemaFolders = errors.New("no schema folders")
)

// StoreKind classifies a Gateway failure so callers can decide whether to
// retry, skip, or abort.
type StoreKind uint8

const (
	// KindNotFound means the requested key does not exist.
	KindNotFound StoreKind = iota + 1
	// KindTransient means the call may succeed on retry.
	KindTransient
	// KindAccessDenied means the caller's credentials were rejected;
	// fatal, never retried.
	KindAccessDenied
	// KindConflict means a conditional write lost a race.
	KindConflict
)

// String implements the Stringer interface.
func (k StoreKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindAccessDenied:
		return "access_denied"
	case KindConflict:
		return "conflict"
	default:
		return "invalid"
	}
}

// StoreError wraps an object-store failure with enough context to decide
// a retry policy and to log usefully.
type StoreError struct {
	Kind StoreKind
	Key  string
	Err  error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Err == nil {
		return e.Kind.String() + ": " + e.Key
	}
	return e.Kind.String() + ": " + e.Key + ": " + e.Err.Error()
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a StoreError worth retrying.
func IsTransient(err error) bool {
	var se *StoreError
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == KindTransient
}

// IsConflict reports whether err is a StoreError from a lost conditional
// write.
func IsConflict(err error) bool {
	var se *StoreError
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == KindConflict
}

// IsNotFound reports whether err is a StoreError for a missing key.
func IsNotFound(err error) bool {
	var se *StoreError
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == KindNotFound
}

// IsAccessDenied reports whether err is a StoreError from rejected
// credentials.
func IsAccessDenied(err error) bool {
	var se *StoreError
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == KindAccessDenied
}
