package store

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"spread-trading/internal/catalog"
	"spread-trading/internal/config"
	"spread-trading/internal/core"
)

// FileCatalog keeps the catalog as a YAML document:
//
//	assets:
//	  - symbol: btcinr
//	    buy: "3150000.5"
//	    sell: "3160000"
//	    quantity: "0.0001"
//	    trade_limit: 3
type FileCatalog struct {
	path string
	log  *zap.SugaredLogger
}

type fileCatalogDoc struct {
	Assets []fileAsset `yaml:"assets"`
}

type fileAsset struct {
	Symbol     string         `yaml:"symbol"`
	Buy        config.Decimal `yaml:"buy"`
	Sell       config.Decimal `yaml:"sell"`
	Quantity   config.Decimal `yaml:"quantity"`
	TradeLimit int            `yaml:"trade_limit"`
}

func NewFileCatalog(path string, log *zap.SugaredLogger) *FileCatalog {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &FileCatalog{path: path, log: log}
}

func (f *FileCatalog) Load(_ context.Context) (catalog.Catalog, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return catalog.Catalog{}, fmt.Errorf("%w: read catalog: %v", core.ErrInvalidConfig, err)
	}
	var doc fileCatalogDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return catalog.Catalog{}, fmt.Errorf("%w: decode catalog %s: %v", core.ErrInvalidConfig, f.path, err)
	}
	entries := make([]catalog.AssetEntry, 0, len(doc.Assets))
	for _, a := range doc.Assets {
		entries = append(entries, catalog.AssetEntry{
			Symbol:     a.Symbol,
			Buy:        a.Buy.Decimal,
			Sell:       a.Sell.Decimal,
			Quantity:   a.Quantity.Decimal,
			TradeLimit: a.TradeLimit,
		})
	}
	return catalog.New(entries)
}

func (f *FileCatalog) Save(_ context.Context, c catalog.Catalog) error {
	if err := c.Validate(); err != nil {
		return err
	}
	doc := fileCatalogDoc{Assets: make([]fileAsset, 0, c.Len())}
	for _, e := range c.Assets {
		doc.Assets = append(doc.Assets, fileAsset{
			Symbol:     e.Symbol,
			Buy:        config.Decimal{Decimal: e.Buy},
			Sell:       config.Decimal{Decimal: e.Sell},
			Quantity:   config.Decimal{Decimal: e.Quantity},
			TradeLimit: e.TradeLimit,
		})
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return writeFileAtomic(f.path, buf.Bytes(), f.log)
}
