package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"spread-trading/internal/catalog"
	"spread-trading/internal/core"
)

var (
	assetPrefix = []byte("asset/")
	assetUpper  = []byte("asset/~")
)

// PebbleCatalog stores one key per asset under asset/<symbol>.
type PebbleCatalog struct {
	db *pebble.DB
}

func OpenPebbleCatalog(dir string) (*PebbleCatalog, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble catalog %s: %w", dir, err)
	}
	return &PebbleCatalog{db: db}, nil
}

func (p *PebbleCatalog) Close() error {
	return p.db.Close()
}

func assetKey(symbol string) []byte {
	return append(append([]byte(nil), assetPrefix...), symbol...)
}

func (p *PebbleCatalog) Load(_ context.Context) (catalog.Catalog, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: assetPrefix,
		UpperBound: assetUpper,
	})
	if err != nil {
		return catalog.Catalog{}, err
	}
	defer iter.Close()

	var entries []catalog.AssetEntry
	for iter.First(); iter.Valid(); iter.Next() {
		var e catalog.AssetEntry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return catalog.Catalog{}, fmt.Errorf("%w: decode %s: %v", core.ErrInvalidConfig, iter.Key(), err)
		}
		entries = append(entries, e)
	}
	if err := iter.Error(); err != nil {
		return catalog.Catalog{}, err
	}
	return catalog.New(entries)
}

// Save replaces the stored catalog in one batch.
func (p *PebbleCatalog) Save(_ context.Context, c catalog.Catalog) error {
	if err := c.Validate(); err != nil {
		return err
	}
	batch := p.db.NewBatch()
	defer batch.Close()
	if err := batch.DeleteRange(assetPrefix, assetUpper, nil); err != nil {
		return err
	}
	for _, e := range c.Assets {
		val, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := batch.Set(assetKey(e.Symbol), val, nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}
