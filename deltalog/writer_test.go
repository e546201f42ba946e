package deltalog

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/guidewire-oss/cda-deltasync/model"
	"github.com/guidewire-oss/cda-deltasync/store"
	"github.com/guidewire-oss/cda-deltasync/testing/mocks"
)

func newTestWriter(interval int) (*Writer, *mocks.Gateway, *mocks.Gateway) {
	target := mocks.NewGateway("abfs", "target-bucket")
	source := mocks.NewGateway("s3", "source-bucket")
	w := NewWriter(zerolog.Nop(), target, interval, nil)
	return w, target, source
}

func TestOpenNewTable(t *testing.T) {
	w, _, _ := newTestWriter(0)
	state, err := w.Open(context.Background(), "t1", "t1")
	require.NoError(t, err)
	require.Equal(t, int64(-1), state.Version)
	require.Equal(t, int64(-1), state.HighWater)
	require.Empty(t, state.Live)
}

func TestAppendFirstCommit(t *testing.T) {
	w, _, source := newTestWriter(0)
	state := newState()

	batch := model.Batch{
		SchemaID:       "s1",
		TS:             1000,
		IsSchemaChange: true,
		ParquetSchema:  "struct<id:int>",
		Adds: []model.FileRef{
			{Key: "t1/s1/1000/a.parquet", Size: 10},
			{Key: "t1/s1/1000/b.parquet", Size: 20},
		},
	}

	warn, err := w.Append(context.Background(), "t1", state, batch, source)
	require.NoError(t, err)
	require.NoError(t, warn)
	require.Equal(t, int64(0), state.Version)
	require.Equal(t, int64(1000), state.HighWater)
	require.Len(t, state.Live, 2)
	require.NotNil(t, state.MetaData)
	require.Equal(t, "struct<id:int>", state.MetaData.SchemaString)

	for path := range state.Live {
		require.Contains(t, path, "s3://source-bucket/")
	}
}

func TestAppendThreeBatchesRemovesChain(t *testing.T) {
	w, _, source := newTestWriter(0)
	state := newState()
	ctx := context.Background()

	b0 := model.Batch{SchemaID: "s1", TS: 1000, IsSchemaChange: true, ParquetSchema: "struct<id:int>",
		Adds: []model.FileRef{{Key: "t1/s1/1000/a.parquet", Size: 1}}}
	_, err := w.Append(ctx, "t1", state, b0, source)
	require.NoError(t, err)

	b1 := model.Batch{SchemaID: "s1", TS: 2000, Removes: []string{store.AbsoluteURI(source, "t1/s1/1000/a.parquet")},
		Adds: []model.FileRef{{Key: "t1/s1/2000/b.parquet", Size: 2}}}
	_, err = w.Append(ctx, "t1", state, b1, source)
	require.NoError(t, err)
	require.Equal(t, int64(1), state.Version)
	require.Len(t, state.Live, 1)

	b2 := model.Batch{SchemaID: "s1", TS: 3000, Removes: []string{store.AbsoluteURI(source, "t1/s1/2000/b.parquet")},
		Adds: []model.FileRef{{Key: "t1/s1/3000/c.parquet", Size: 3}}}
	_, err = w.Append(ctx, "t1", state, b2, source)
	require.NoError(t, err)
	require.Equal(t, int64(2), state.Version)
	require.Len(t, state.Live, 1)
	require.Equal(t, int64(3000), state.HighWater)
}

func TestAppendSchemaChangeAtomicity(t *testing.T) {
	w, _, source := newTestWriter(0)
	state := newState()
	ctx := context.Background()

	b0 := model.Batch{SchemaID: "s1", TS: 1000, IsSchemaChange: true, ParquetSchema: "struct<id:int>",
		Adds: []model.FileRef{{Key: "t1/s1/1000/a.parquet", Size: 1}}}
	_, err := w.Append(ctx, "t1", state, b0, source)
	require.NoError(t, err)
	firstMetaID := state.MetaData.ID

	b1 := model.Batch{
		SchemaID:       "s2",
		TS:             2000,
		IsSchemaChange: true,
		ParquetSchema:  "struct<id:int,name:string>",
		Removes:        []string{store.AbsoluteURI(source, "t1/s1/1000/a.parquet")},
		Adds: []model.FileRef{
			{Key: "t1/s2/2000/x.parquet", Size: 5},
			{Key: "t1/s2/2000/y.parquet", Size: 6},
		},
	}
	_, err = w.Append(ctx, "t1", state, b1, source)
	require.NoError(t, err)
	require.Equal(t, int64(1), state.Version)
	require.NotEqual(t, firstMetaID, state.MetaData.ID)
	require.Len(t, state.Live, 2)
}

func TestOpenReplaysAppendedCommits(t *testing.T) {
	w, target, source := newTestWriter(0)
	ctx := context.Background()
	state := newState()

	b0 := model.Batch{SchemaID: "s1", TS: 1000, IsSchemaChange: true, ParquetSchema: "struct<id:int>",
		Adds: []model.FileRef{{Key: "t1/s1/1000/a.parquet", Size: 1}}}
	_, err := w.Append(ctx, "t1", state, b0, source)
	require.NoError(t, err)

	b1 := model.Batch{SchemaID: "s1", TS: 2000, Removes: []string{store.AbsoluteURI(source, "t1/s1/1000/a.parquet")},
		Adds: []model.FileRef{{Key: "t1/s1/2000/b.parquet", Size: 2}}}
	_, err = w.Append(ctx, "t1", state, b1, source)
	require.NoError(t, err)

	reopened := NewWriter(zerolog.Nop(), target, 0, nil)
	replayed, err := reopened.Open(ctx, "t1", "t1")
	require.NoError(t, err)
	require.Equal(t, int64(1), replayed.Version)
	require.Equal(t, int64(2000), replayed.HighWater)
	require.Len(t, replayed.Live, 1)
}

func TestCheckpointRollsOverAtInterval(t *testing.T) {
	w, target, source := newTestWriter(2)
	ctx := context.Background()
	state := newState()

	tsValues := []int64{1000, 2000, 3000, 4000, 5000, 6000}
	for i, ts := range tsValues {
		batch := model.Batch{
			SchemaID: "s1",
			TS:       ts,
			Adds:     []model.FileRef{{Key: "t1/s1/" + string(rune('a'+i)) + ".parquet", Size: int64(i)}},
		}
		if i == 0 {
			batch.IsSchemaChange = true
			batch.ParquetSchema = "struct<id:int>"
		}
		_, err := w.Append(ctx, "t1", state, batch, source)
		require.NoError(t, err)
	}

	require.Equal(t, int64(5), state.Version)

	exists, err := target.Exists(ctx, "t1/_delta_log/00000000000000000002.checkpoint.parquet")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = target.Exists(ctx, "t1/_delta_log/00000000000000000004.checkpoint.parquet")
	require.NoError(t, err)
	require.True(t, exists)

	lcBody, err := target.Get(ctx, "t1/_delta_log/_last_checkpoint", nil)
	require.NoError(t, err)
	require.Contains(t, string(lcBody), `"version":4`)
}

