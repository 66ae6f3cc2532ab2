package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"spread-trading/internal/catalog"
	"spread-trading/internal/core"
)

type assetRow struct {
	Symbol     string          `gorm:"primaryKey;size:32"`
	Buy        decimal.Decimal `gorm:"type:numeric;not null"`
	Sell       decimal.Decimal `gorm:"type:numeric;not null"`
	Quantity   decimal.Decimal `gorm:"type:numeric;not null"`
	TradeLimit int             `gorm:"not null"`
	UpdatedAt  time.Time
}

func rowFromEntry(e catalog.AssetEntry, now time.Time) assetRow {
	return assetRow{
		Symbol:     e.Symbol,
		Buy:        e.Buy,
		Sell:       e.Sell,
		Quantity:   e.Quantity,
		TradeLimit: e.TradeLimit,
		UpdatedAt:  now,
	}
}

func (r assetRow) entry() catalog.AssetEntry {
	return catalog.AssetEntry{
		Symbol:     r.Symbol,
		Buy:        r.Buy,
		Sell:       r.Sell,
		Quantity:   r.Quantity,
		TradeLimit: r.TradeLimit,
	}
}

// PostgresCatalog keeps the catalog in a single table keyed by symbol.
type PostgresCatalog struct {
	db    *gorm.DB
	table string
}

func OpenPostgresCatalog(dsn, table string) (*PostgresCatalog, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres catalog: %w", err)
	}
	p := &PostgresCatalog{db: db, table: table}
	if err := db.Table(table).AutoMigrate(&assetRow{}); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("migrate %s: %w", table, err)
	}
	return p, nil
}

func (p *PostgresCatalog) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *PostgresCatalog) Load(ctx context.Context) (catalog.Catalog, error) {
	var rows []assetRow
	if err := p.db.WithContext(ctx).Table(p.table).Order("symbol").Find(&rows).Error; err != nil {
		return catalog.Catalog{}, fmt.Errorf("%w: load catalog: %v", core.ErrInvalidConfig, err)
	}
	entries := make([]catalog.AssetEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return catalog.New(entries)
}

// Save upserts every entry and drops symbols no longer selected.
func (p *PostgresCatalog) Save(ctx context.Context, c catalog.Catalog) error {
	if err := c.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	rows := make([]assetRow, 0, c.Len())
	for _, e := range c.Assets {
		rows = append(rows, rowFromEntry(e, now))
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(p.table).Where("symbol NOT IN ?", c.Symbols()).Delete(&assetRow{}).Error; err != nil {
			return err
		}
		return tx.Table(p.table).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"buy", "sell", "quantity", "trade_limit", "updated_at"}),
		}).Create(&rows).Error
	})
}
