package planner

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/guidewire-oss/cda-deltasync/model"
	"github.com/guidewire-oss/cda-deltasync/testing/mocks"
)

// fakeState is a minimal LogState for planner tests.
type fakeState struct {
	highWater int64
	live      map[string]model.LiveFile
}

func (f fakeState) HighWaterTS() int64                   { return f.highWater }
func (f fakeState) LiveFiles() map[string]model.LiveFile { return f.live }

func newPlanner(gw *mocks.Gateway) *Planner {
	p := New(zerolog.Nop(), gw, 4)
	p.discover = func(ctx context.Context, file model.FileRef) (string, error) {
		return "struct<id:int,name:string>", nil
	}
	return p
}

func TestPlanEmptyTable(t *testing.T) {
	gw := mocks.NewGateway("s3", "bucket")
	entry := model.ManifestEntry{
		TableName:     "t1",
		DataFilesPath: "t1/",
		SchemaHistory: []model.SchemaHistoryEntry{{SchemaID: "s1", TS: 500}},
	}

	batches, warnings, err := newPlanner(gw).Plan(context.Background(), entry, fakeState{highWater: -1})
	require.NoError(t, err)
	require.Empty(t, batches)
	require.NotEmpty(t, warnings)
}

func TestPlanSingleSchemaSingleBatch(t *testing.T) {
	gw := mocks.NewGateway("s3", "bucket")
	gw.Seed("t1/s1/1000/a.parquet", []byte("a"))
	gw.Seed("t1/s1/1000/b.parquet", []byte("bb"))

	entry := model.ManifestEntry{
		TableName:     "t1",
		DataFilesPath: "t1/",
		SchemaHistory: []model.SchemaHistoryEntry{{SchemaID: "s1", TS: 500}},
	}

	batches, warnings, err := newPlanner(gw).Plan(context.Background(), entry, fakeState{highWater: -1})
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, batches, 1)

	b := batches[0]
	require.Equal(t, "s1", b.SchemaID)
	require.Equal(t, int64(1000), b.TS)
	require.True(t, b.IsSchemaChange)
	require.Empty(t, b.Removes)
	require.Len(t, b.Adds, 2)
	require.Equal(t, "t1/s1/1000/a.parquet", b.Adds[0].Key)
	require.NotEmpty(t, b.ParquetSchema)
}

func TestPlanSingleSchemaThreeBatches(t *testing.T) {
	gw := mocks.NewGateway("s3", "bucket")
	gw.Seed("t1/s1/1000/a.parquet", []byte("a"))
	gw.Seed("t1/s1/2000/b.parquet", []byte("b"))
	gw.Seed("t1/s1/3000/c.parquet", []byte("c"))

	entry := model.ManifestEntry{
		TableName:     "t1",
		DataFilesPath: "t1/",
		SchemaHistory: []model.SchemaHistoryEntry{{SchemaID: "s1", TS: 500}},
	}

	batches, warnings, err := newPlanner(gw).Plan(context.Background(), entry, fakeState{highWater: -1})
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, batches, 3)

	require.Equal(t, int64(1000), batches[0].TS)
	require.True(t, batches[0].IsSchemaChange)
	require.Empty(t, batches[0].Removes)

	require.Equal(t, int64(2000), batches[1].TS)
	require.False(t, batches[1].IsSchemaChange)
	require.Equal(t, []string{"s3://bucket/t1/s1/1000/a.parquet"}, batches[1].Removes)
	require.Equal(t, "t1/s1/2000/b.parquet", batches[1].Adds[0].Key)

	require.Equal(t, int64(3000), batches[2].TS)
	require.Equal(t, []string{"s3://bucket/t1/s1/2000/b.parquet"}, batches[2].Removes)
}

func TestPlanSchemaChange(t *testing.T) {
	gw := mocks.NewGateway("s3", "bucket")
	gw.Seed("t1/s1/1000/a.parquet", []byte("a"))
	gw.Seed("t1/s2/2000/x.parquet", []byte("x"))
	gw.Seed("t1/s2/2000/y.parquet", []byte("y"))

	entry := model.ManifestEntry{
		TableName:     "t1",
		DataFilesPath: "t1/",
		SchemaHistory: []model.SchemaHistoryEntry{
			{SchemaID: "s1", TS: 1000},
			{SchemaID: "s2", TS: 2000},
		},
	}

	batches, warnings, err := newPlanner(gw).Plan(context.Background(), entry, fakeState{highWater: -1})
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, batches, 2)

	require.Equal(t, "s1", batches[0].SchemaID)
	require.True(t, batches[0].IsSchemaChange)

	b1 := batches[1]
	require.Equal(t, "s2", b1.SchemaID)
	require.Equal(t, int64(2000), b1.TS)
	require.True(t, b1.IsSchemaChange)
	require.Equal(t, []string{"s3://bucket/t1/s1/1000/a.parquet"}, b1.Removes)
	require.Len(t, b1.Adds, 2)
	require.NotEmpty(t, b1.ParquetSchema)
}

func TestPlanResumeYieldsNothingNew(t *testing.T) {
	gw := mocks.NewGateway("s3", "bucket")
	gw.Seed("t1/s1/1000/a.parquet", []byte("a"))
	gw.Seed("t1/s1/2000/b.parquet", []byte("b"))
	gw.Seed("t1/s1/3000/c.parquet", []byte("c"))

	entry := model.ManifestEntry{
		TableName:     "t1",
		DataFilesPath: "t1/",
		SchemaHistory: []model.SchemaHistoryEntry{{SchemaID: "s1", TS: 500}},
	}

	state := fakeState{
		highWater: 3000,
		live: map[string]model.LiveFile{
			"s3://bucket/t1/s1/2000/b.parquet": {Path: "s3://bucket/t1/s1/2000/b.parquet"},
		},
	}

	batches, warnings, err := newPlanner(gw).Plan(context.Background(), entry, state)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Empty(t, batches)
}

func TestPlanDuplicateTimestampFolderWarns(t *testing.T) {
	gw := mocks.NewGateway("s3", "bucket")
	gw.Seed("t1/s1/01000/a.parquet", []byte("a"))
	gw.Seed("t1/s1/1000/b.parquet", []byte("b"))

	entry := model.ManifestEntry{
		TableName:     "t1",
		DataFilesPath: "t1/",
		SchemaHistory: []model.SchemaHistoryEntry{{SchemaID: "s1", TS: 500}},
	}

	batches, warnings, err := newPlanner(gw).Plan(context.Background(), entry, fakeState{highWater: -1})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.NotEmpty(t, warnings)
}
