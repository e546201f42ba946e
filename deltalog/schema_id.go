package deltalog

import (
	"crypto/sha256"
	"encoding/hex"
)

// schemaID derives metaData.id deterministically from the canonical
// parquet schema string, so idempotent re-runs of the same schema
// produce the same id. A single fixed-size digest of a string is the
// entire job here; no library in the dependency graph does anything
// crypto/sha256 doesn't already do for this case.
func schemaID(schemaString string) string {
	sum := sha256.Sum256([]byte(schemaString))
	return hex.EncodeToString(sum[:])
}
