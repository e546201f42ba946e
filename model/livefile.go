package model

// LiveFile is one path currently present in a Delta table's snapshot, as
// tracked incrementally by the Delta Log Writer and consulted by the
// Batch Planner when it needs the previous commit's file set (schema
// boundaries, and the first surviving TimestampFolder of a continuation).
type LiveFile struct {
	Path             string
	Size             int64
	ModificationTime int64
	PartitionValues  map[string]string
}
