package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"market_sim/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TransactionRecord is a journaled trade.
type TransactionRecord struct {
	ID            string `gorm:"primaryKey"`
	MarketID      string `gorm:"index:idx_tx_market_step"`
	Step          int64  `gorm:"index:idx_tx_market_step"`
	BuyerID       string `gorm:"index"`
	SellerID      string `gorm:"index"`
	AssetType     string
	Quantity      decimal.Decimal `gorm:"type:decimal(24,8)"`
	Price         decimal.Decimal `gorm:"type:decimal(24,8)"`
	Value         decimal.Decimal `gorm:"type:decimal(24,8)"`
	BuyerOrderID  string
	SellerOrderID string
	CreatedAt     time.Time
}

// SnapshotRecord is a market snapshot taken at the end of a step.
type SnapshotRecord struct {
	ID          uint   `gorm:"primaryKey"`
	MarketID    string `gorm:"index:idx_snap_market_step"`
	Step        int64  `gorm:"index:idx_snap_market_step"`
	AssetType   string
	BestBid     decimal.NullDecimal `gorm:"type:decimal(24,8)"`
	BestAsk     decimal.NullDecimal `gorm:"type:decimal(24,8)"`
	Spread      decimal.NullDecimal `gorm:"type:decimal(24,8)"`
	LastPrice   decimal.NullDecimal `gorm:"type:decimal(24,8)"`
	PriceChange decimal.NullDecimal `gorm:"type:decimal(24,12)"`
	Volume      decimal.Decimal     `gorm:"type:decimal(24,8)"`
	Volatility  float64
	BuyDepth    int
	SellDepth   int
	CreatedAt   time.Time
}

// MetaRecord is a key/value pair describing a run (seed, start time, ...).
type MetaRecord struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// Storage journals simulation output to SQLite.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite journal at path. An empty path
// resolves to the per-user data directory.
func NewStorage(path string) (*Storage, error) {
	dbPath := path
	if dbPath == "" {
		var err error
		if dbPath, err = getDBPath(); err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	// Ensure directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&TransactionRecord{}, &SnapshotRecord{}, &MetaRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "MarketSim", "data", "marketsim.db"), nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Journal Operations
// ======================================================================================

// RecordStep stores the trades and end-of-step snapshots of one step in a
// single database transaction.
func (s *Storage) RecordStep(ctx context.Context, step int64, txs map[string][]domain.Transaction, data []domain.MarketData) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var records []TransactionRecord
		for marketID, list := range txs {
			for _, t := range list {
				records = append(records, toTransactionRecord(marketID, t))
			}
		}
		if len(records) > 0 {
			if err := tx.CreateInBatches(records, 100).Error; err != nil {
				return fmt.Errorf("failed to save transactions at step %d: %w", step, err)
			}
		}

		if len(data) > 0 {
			snaps := make([]SnapshotRecord, len(data))
			for i, d := range data {
				snaps[i] = toSnapshotRecord(step, d)
			}
			if err := tx.Create(&snaps).Error; err != nil {
				return fmt.Errorf("failed to save snapshots at step %d: %w", step, err)
			}
		}
		return nil
	})
}

// Transactions returns up to limit journaled trades of a market, oldest
// first. A non-positive limit returns all of them.
func (s *Storage) Transactions(ctx context.Context, marketID string, limit int) ([]domain.Transaction, error) {
	var records []TransactionRecord
	q := s.db.WithContext(ctx).Where("market_id = ?", marketID).Order("step asc, rowid asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}

	out := make([]domain.Transaction, len(records))
	for i, r := range records {
		out[i] = r.toDomain()
	}
	return out, nil
}

// Snapshots returns the journaled snapshots of a market from fromStep on.
func (s *Storage) Snapshots(ctx context.Context, marketID string, fromStep int64) ([]domain.MarketData, error) {
	var records []SnapshotRecord
	err := s.db.WithContext(ctx).
		Where("market_id = ? AND step >= ?", marketID, fromStep).
		Order("step asc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.MarketData, len(records))
	for i, r := range records {
		out[i] = r.toDomain()
	}
	return out, nil
}

// ======================================================================================
// Run Metadata Operations
// ======================================================================================

// SaveMeta saves a run metadata entry
func (s *Storage) SaveMeta(key, value string) error {
	return s.db.Save(&MetaRecord{Key: key, Value: value}).Error
}

// LoadMetaMap loads all run metadata as a map
func (s *Storage) LoadMetaMap() (map[string]string, error) {
	var metas []MetaRecord
	if err := s.db.Find(&metas).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, m := range metas {
		result[m.Key] = m.Value
	}
	return result, nil
}

// ======================================================================================
// Conversions
// ======================================================================================

func toTransactionRecord(marketID string, t domain.Transaction) TransactionRecord {
	return TransactionRecord{
		ID:            t.ID,
		MarketID:      marketID,
		Step:          t.Timestamp,
		BuyerID:       t.BuyerID,
		SellerID:      t.SellerID,
		AssetType:     t.AssetType,
		Quantity:      decimal.NewFromFloat(t.Quantity),
		Price:         decimal.NewFromFloat(t.Price),
		Value:         decimal.NewFromFloat(t.Value),
		BuyerOrderID:  t.BuyerOrderID,
		SellerOrderID: t.SellerOrderID,
	}
}

func (r TransactionRecord) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:            r.ID,
		BuyerID:       r.BuyerID,
		SellerID:      r.SellerID,
		AssetType:     r.AssetType,
		Quantity:      r.Quantity.InexactFloat64(),
		Price:         r.Price.InexactFloat64(),
		Value:         r.Value.InexactFloat64(),
		Timestamp:     r.Step,
		BuyerOrderID:  r.BuyerOrderID,
		SellerOrderID: r.SellerOrderID,
	}
}

func toSnapshotRecord(step int64, d domain.MarketData) SnapshotRecord {
	return SnapshotRecord{
		MarketID:    d.MarketID,
		Step:        step,
		AssetType:   d.AssetType,
		BestBid:     toNull(d.BestBid),
		BestAsk:     toNull(d.BestAsk),
		Spread:      toNull(d.Spread),
		LastPrice:   toNull(d.LastPrice),
		PriceChange: toNull(d.PriceChange),
		Volume:      decimal.NewFromFloat(d.Volume),
		Volatility:  d.Volatility,
		BuyDepth:    d.Depth.Buy,
		SellDepth:   d.Depth.Sell,
	}
}

func (r SnapshotRecord) toDomain() domain.MarketData {
	return domain.MarketData{
		MarketID:    r.MarketID,
		AssetType:   r.AssetType,
		TimeStep:    r.Step,
		BestBid:     fromNull(r.BestBid),
		BestAsk:     fromNull(r.BestAsk),
		Spread:      fromNull(r.Spread),
		Depth:       domain.BookDepth{Buy: r.BuyDepth, Sell: r.SellDepth},
		Volume:      r.Volume.InexactFloat64(),
		LastPrice:   fromNull(r.LastPrice),
		PriceChange: fromNull(r.PriceChange),
		Volatility:  r.Volatility,
	}
}

func toNull(p *float64) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*p))
}

func fromNull(n decimal.NullDecimal) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Decimal.InexactFloat64()
	return &v
}
