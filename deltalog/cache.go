package deltalog

import (
	goccy "github.com/goccy/go-json"

	"github.com/dgraph-io/badger/v2"

	"github.com/guidewire-oss/cda-deltasync/model"
)

// ResumeCache is an optional local accelerator, backed by badger, that
// remembers the last (version, live_files) snapshot seen for a table.
// It is never a source of truth: Open falls back to a full checkpoint +
// log replay whenever the target store's current tail disagrees with
// what is cached.
type ResumeCache struct {
	db *badger.DB
}

type cachedSnapshot struct {
	Version   int64                     `json:"version"`
	HighWater int64                     `json:"high_water"`
	MetaData  *model.MetaDataAction     `json:"meta_data,omitempty"`
	Live      map[string]model.LiveFile `json:"live"`
}

// OpenResumeCache opens (creating if absent) a badger database at dir.
func OpenResumeCache(dir string) (*ResumeCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &ResumeCache{db: db}, nil
}

// Close releases the underlying badger database.
func (c *ResumeCache) Close() error {
	return c.db.Close()
}

// Get returns the cached snapshot for table, and whether one was found.
func (c *ResumeCache) Get(table string) (*State, bool) {
	var snap cachedSnapshot
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(table))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return goccy.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		return nil, false
	}
	return &State{Version: snap.Version, HighWater: snap.HighWater, MetaData: snap.MetaData, Live: snap.Live}, true
}

// Put stores state as the latest known snapshot for table.
func (c *ResumeCache) Put(table string, state *State) error {
	snap := cachedSnapshot{Version: state.Version, HighWater: state.HighWater, MetaData: state.MetaData, Live: state.Live}
	body, err := goccy.Marshal(snap)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(table), body)
	})
}
