package store

import (
	"context"

	"go.uber.org/zap"

	"spread-trading/internal/catalog"
	"spread-trading/internal/config"
)

// CatalogStore is a catalog.Store that may hold an open handle.
type CatalogStore interface {
	catalog.Store
	Close() error
}

type fileCloser struct{ *FileCatalog }

func (fileCloser) Close() error { return nil }

// OpenCatalog builds the store selected by catalog.source.
func OpenCatalog(cfg config.CatalogConfig, log *zap.SugaredLogger) (CatalogStore, error) {
	switch cfg.Source {
	case config.CatalogPebble:
		return OpenPebbleCatalog(cfg.Path)
	case config.CatalogPostgres:
		return OpenPostgresCatalog(cfg.Postgres.DSN, cfg.Postgres.Table)
	default:
		return fileCloser{NewFileCatalog(cfg.Path, log)}, nil
	}
}

// LoadCatalog opens, reads and closes the configured store.
func LoadCatalog(ctx context.Context, cfg config.CatalogConfig, log *zap.SugaredLogger) (catalog.Catalog, error) {
	s, err := OpenCatalog(cfg, log)
	if err != nil {
		return catalog.Catalog{}, err
	}
	defer s.Close()
	return s.Load(ctx)
}
