// Package storage persists polled vault statistics and caches indexer
// responses for the dashboard daemon.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"infrafi/chain"
	"infrafi/native/lending"
)

var (
	// ErrPathRequired is returned when no DSN or path is configured.
	ErrPathRequired = errors.New("storage path must be configured")
	// ErrNoStats is returned by LatestStats before the first sample.
	ErrNoStats = errors.New("storage: no stats recorded")
)

// StatsRecord is one persisted vault sample. Amounts are stored as raw
// decimal strings so no precision is lost in either backend.
type StatsRecord struct {
	ID                uint      `gorm:"primaryKey"`
	FetchedAt         time.Time `gorm:"index;not null"`
	TotalSupplied     string    `gorm:"not null"`
	TotalBorrowed     string    `gorm:"not null"`
	UtilizationBps    uint64
	SupplyAPYBps      uint64
	BorrowAPYBps      uint64
	MaxLTVBps         uint64
	LiquidationBps    uint64
	RateBaseBps       uint64
	RateMultiplierBps uint64
	RateJumpBps       uint64
	RateKinkBps       uint64
	SupplyIndex       string
	BorrowIndex       string
	Degraded          string
	CreatedAt         time.Time
}

// TableName pins the table name across backends.
func (StatsRecord) TableName() string { return "protocol_stats" }

// Store wraps the gorm handle used for stats history.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres when dsn is a postgres:// URL and otherwise to
// SQLite, treating a bare path as an on-disk database.
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	var dialector gorm.Dialector
	switch {
	case isPostgres(trimmed):
		dialector = postgres.Open(trimmed)
	case isSQLiteDSN(trimmed):
		dialector = sqlite.Open(trimmed)
	default:
		fileDSN, err := FileDSN(trimmed)
		if err != nil {
			return nil, err
		}
		dialector = sqlite.Open(fileDSN)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&StatsRecord{}); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return closeDB(s.db)
}

// RecordStats persists one sample.
func (s *Store) RecordStats(ctx context.Context, stats chain.ProtocolStats) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	rec := toRecord(stats)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert stats: %w", err)
	}
	return nil
}

// LatestStats returns the most recently fetched sample.
func (s *Store) LatestStats(ctx context.Context) (chain.ProtocolStats, error) {
	if s == nil {
		return chain.ProtocolStats{}, fmt.Errorf("storage not configured")
	}
	var rec StatsRecord
	err := s.db.WithContext(ctx).Order("fetched_at DESC").Order("id DESC").Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chain.ProtocolStats{}, ErrNoStats
	}
	if err != nil {
		return chain.ProtocolStats{}, fmt.Errorf("query stats: %w", err)
	}
	return fromRecord(rec), nil
}

// StatsSince returns samples fetched at or after since, oldest first.
func (s *Store) StatsSince(ctx context.Context, since time.Time) ([]chain.ProtocolStats, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	var recs []StatsRecord
	err := s.db.WithContext(ctx).
		Where("fetched_at >= ?", since.UTC()).
		Order("fetched_at ASC").Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	out := make([]chain.ProtocolStats, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec))
	}
	return out, nil
}

// Prune deletes samples fetched before cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("storage not configured")
	}
	res := s.db.WithContext(ctx).Where("fetched_at < ?", cutoff.UTC()).Delete(&StatsRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune stats: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func rawString(v lending.TokenAmount) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func parseRaw(raw string) lending.TokenAmount {
	v, ok := lending.ParseRaw(raw)
	if !ok {
		return lending.Zero()
	}
	return v
}

func toRecord(stats chain.ProtocolStats) StatsRecord {
	fetched := stats.FetchedAt
	if fetched.IsZero() {
		fetched = time.Now()
	}
	return StatsRecord{
		FetchedAt:         fetched.UTC(),
		TotalSupplied:     rawString(stats.TotalSupplied),
		TotalBorrowed:     rawString(stats.TotalBorrowed),
		UtilizationBps:    uint64(stats.UtilizationRate),
		SupplyAPYBps:      uint64(stats.SupplyAPY),
		BorrowAPYBps:      uint64(stats.BorrowAPY),
		MaxLTVBps:         uint64(stats.MaxLTV),
		LiquidationBps:    uint64(stats.LiquidationThreshold),
		RateBaseBps:       uint64(stats.RateModel.BaseRate),
		RateMultiplierBps: uint64(stats.RateModel.Multiplier),
		RateJumpBps:       uint64(stats.RateModel.Jump),
		RateKinkBps:       uint64(stats.RateModel.Kink),
		SupplyIndex:       rawString(stats.SupplyIndex),
		BorrowIndex:       rawString(stats.BorrowIndex),
		Degraded:          strings.Join(stats.Degraded, ","),
	}
}

func fromRecord(rec StatsRecord) chain.ProtocolStats {
	stats := chain.ProtocolStats{
		TotalSupplied:        parseRaw(rec.TotalSupplied),
		TotalBorrowed:        parseRaw(rec.TotalBorrowed),
		UtilizationRate:      lending.BasisPoints(rec.UtilizationBps),
		SupplyAPY:            lending.BasisPoints(rec.SupplyAPYBps),
		BorrowAPY:            lending.BasisPoints(rec.BorrowAPYBps),
		MaxLTV:               lending.BasisPoints(rec.MaxLTVBps),
		LiquidationThreshold: lending.BasisPoints(rec.LiquidationBps),
		RateModel: lending.InterestRateModel{
			BaseRate:   lending.BasisPoints(rec.RateBaseBps),
			Multiplier: lending.BasisPoints(rec.RateMultiplierBps),
			Jump:       lending.BasisPoints(rec.RateJumpBps),
			Kink:       lending.BasisPoints(rec.RateKinkBps),
		},
		SupplyIndex: parseRaw(rec.SupplyIndex),
		BorrowIndex: parseRaw(rec.BorrowIndex),
		FetchedAt:   rec.FetchedAt.UTC(),
	}
	if rec.Degraded != "" {
		stats.Degraded = strings.Split(rec.Degraded, ",")
	}
	return stats
}
