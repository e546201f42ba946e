package manifest

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/guidewire-oss/cda-deltasync/model"
	"github.com/guidewire-oss/cda-deltasync/testing/mocks"
)

func TestReadParsesEntriesSortedByTable(t *testing.T) {
	gw := mocks.NewGateway("s3", "bucket")
	gw.Seed("manifest.json", []byte(`{
		"zeta": {"dataFilesPath":"data/zeta","lastSuccessfulWriteTimestamp":"1000","totalProcessedRecordsCount":5,"schemaHistory":{"s1":"500"}},
		"alpha": {"dataFilesPath":"data/alpha","lastSuccessfulWriteTimestamp":"2000","totalProcessedRecordsCount":10,"schemaHistory":{"s1":"100","s2":"900"}}
	}`))

	r := NewReader(zerolog.Nop(), gw, "manifest.json")
	entries, skipped, err := r.Read(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, skipped)
	require.Len(t, entries, 2)
	require.Equal(t, "alpha", entries[0].TableName)
	require.Equal(t, "zeta", entries[1].TableName)
	require.Len(t, entries[0].SchemaHistory, 2)
	require.Equal(t, "s1", entries[0].SchemaHistory[0].SchemaID)
	require.Equal(t, int64(100), entries[0].SchemaHistory[0].TS)
}

func TestReadFiltersByRequestedNames(t *testing.T) {
	gw := mocks.NewGateway("s3", "bucket")
	gw.Seed("manifest.json", []byte(`{
		"zeta": {"dataFilesPath":"data/zeta","lastSuccessfulWriteTimestamp":"1000","totalProcessedRecordsCount":5,"schemaHistory":{"s1":"500"}},
		"alpha": {"dataFilesPath":"data/alpha","lastSuccessfulWriteTimestamp":"2000","totalProcessedRecordsCount":10,"schemaHistory":{"s1":"100"}}
	}`))

	r := NewReader(zerolog.Nop(), gw, "manifest.json")
	entries, _, err := r.Read(context.Background(), map[string]struct{}{"alpha": {}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "alpha", entries[0].TableName)
}

func TestReadSkipsEntryMissingDataFilesPath(t *testing.T) {
	gw := mocks.NewGateway("s3", "bucket")
	gw.Seed("manifest.json", []byte(`{
		"good": {"dataFilesPath":"data/good","lastSuccessfulWriteTimestamp":"0","totalProcessedRecordsCount":1,"schemaHistory":{"s1":"0"}},
		"bad": {"lastSuccessfulWriteTimestamp":"0","totalProcessedRecordsCount":1,"schemaHistory":{"s1":"0"}}
	}`))

	r := NewReader(zerolog.Nop(), gw, "manifest.json")
	entries, skipped, err := r.Read(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, []string{"bad"}, skipped)
}

func TestReadSkipsEntryWithNonAscendingSchemaHistory(t *testing.T) {
	gw := mocks.NewGateway("s3", "bucket")
	// schemaHistory is a map, so the only way to get a non-ascending
	// result after parse-time sorting is a duplicate timestamp.
	gw.Seed("manifest.json", []byte(`{
		"bad": {"dataFilesPath":"data/bad","lastSuccessfulWriteTimestamp":"0","totalProcessedRecordsCount":1,"schemaHistory":{"s1":"100","s2":"100"}}
	}`))

	r := NewReader(zerolog.Nop(), gw, "manifest.json")
	entries, skipped, err := r.Read(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Equal(t, []string{"bad"}, skipped)
}

func TestReadFailsFatallyOnMissingManifest(t *testing.T) {
	gw := mocks.NewGateway("s3", "bucket")
	r := NewReader(zerolog.Nop(), gw, "manifest.json")
	_, _, err := r.Read(context.Background(), nil)
	require.Error(t, err)
}

func TestReadFailsFatallyOnNonObjectManifest(t *testing.T) {
	gw := mocks.NewGateway("s3", "bucket")
	gw.Seed("manifest.json", []byte(`[1,2,3]`))
	r := NewReader(zerolog.Nop(), gw, "manifest.json")
	_, _, err := r.Read(context.Background(), nil)
	require.Error(t, err)
}

func TestFirstSeenLooksUpSchemaHistory(t *testing.T) {
	entry := model.ManifestEntry{SchemaHistory: []model.SchemaHistoryEntry{{SchemaID: "s1", TS: 100}, {SchemaID: "s2", TS: 900}}}

	ts, ok := entry.FirstSeen("s2")
	require.True(t, ok)
	require.Equal(t, int64(900), ts)

	_, ok = entry.FirstSeen("missing")
	require.False(t, ok)
}
