package planner

import (
	"context"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/guidewire-oss/cda-deltasync/model"
	"github.com/guidewire-oss/cda-deltasync/store"
)

// discoverSchema reads only the footer of the given parquet file (via a
// ranged io.ReaderAt backed by the Gateway) and returns its canonical
// schema string. Row groups are never touched.
func (p *Planner) discoverSchema(ctx context.Context, file model.FileRef) (string, error) {
	size := file.Size
	if size == 0 {
		info, err := p.gw.Head(ctx, file.Key)
		if err != nil {
			return "", fmt.Errorf("head %s: %w", file.Key, err)
		}
		size = info.Size
	}

	ra := &gatewayReaderAt{ctx: ctx, gw: p.gw, key: file.Key}
	pf, err := parquet.OpenFile(ra, size)
	if err != nil {
		return "", fmt.Errorf("open parquet footer for %s: %w", file.Key, err)
	}
	return pf.Schema().String(), nil
}

// gatewayReaderAt adapts a store.Gateway's ranged Get into an
// io.ReaderAt, so parquet.OpenFile can pull exactly the byte ranges it
// needs (the footer and its metadata) without downloading row data.
type gatewayReaderAt struct {
	ctx context.Context
	gw  store.Gateway
	key string
}

func (r *gatewayReaderAt) ReadAt(p []byte, off int64) (int, error) {
	rng := &store.ByteRange{Start: off, End: off + int64(len(p))}
	body, err := r.gw.Get(r.ctx, r.key, rng)
	if err != nil {
		return 0, err
	}
	n := copy(p, body)
	return n, nil
}
