package deltalog

import (
	"context"

	"github.com/guidewire-oss/cda-deltasync/store"
)

// gatewayReaderAt adapts a store.Gateway's ranged Get into an
// io.ReaderAt so parquet.Read can pull only the byte ranges it needs
// from a checkpoint file.
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
	return copy(p, body), nil
}
