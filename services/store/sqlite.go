package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"ema_scanner_backend/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ScanResultRecord is the relational shape of one archived instrument-day.
type ScanResultRecord struct {
	Key    string `gorm:"primaryKey"`
	Symbol string `gorm:"index:idx_symbol_date"`
	Date   string `gorm:"index:idx_symbol_date;index:idx_date"`

	Price  float64
	Volume int64
	EMA8   float64
	EMA21  float64

	YesterdayDate   string
	YesterdayPrice  float64
	YesterdayVolume int64
	YesterdayEMA8   float64
	YesterdayEMA21  float64

	DayBeforeDate   string
	DayBeforePrice  float64
	DayBeforeVolume int64
	DayBeforeEMA8   float64
	DayBeforeEMA21  float64

	Matched       bool
	TodayUp       bool
	TodayDown     bool
	YesterdayUp   bool
	YesterdayDown bool
	DayBeforeUp   bool
	DayBeforeDown bool

	GeneratedAt time.Time `gorm:"index"`
}

// SQLiteArchive persists scan results in a local SQLite file, the archive
// for single-node deployments where MongoDB is not configured.
type SQLiteArchive struct {
	db *gorm.DB
}

// NewSQLiteArchive opens (or creates) the database file and migrates the
// results table.
func NewSQLiteArchive(path string) (*SQLiteArchive, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite archive %s: %w", path, err)
	}

	if err := db.AutoMigrate(&ScanResultRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite archive: %w", err)
	}

	log.Printf("SQLite archive ready at %s", path)
	return &SQLiteArchive{db: db}, nil
}

func (a *SQLiteArchive) Name() string { return "sqlite" }

// SaveResults upserts each result under its {symbol}_{date} key.
func (a *SQLiteArchive) SaveResults(ctx context.Context, results []models.ScanResult) error {
	if len(results) == 0 {
		return nil
	}

	records := make([]ScanResultRecord, 0, len(results))
	for _, r := range results {
		records = append(records, toRecord(r))
	}

	err := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(records, 100).Error
	if err != nil {
		return fmt.Errorf("failed to archive %d scan results: %w", len(records), err)
	}
	return nil
}

// RecentResults returns archived rows newest first.
func (a *SQLiteArchive) RecentResults(ctx context.Context, symbol string, limit int) ([]models.ScanResult, error) {
	query := a.db.WithContext(ctx).Model(&ScanResultRecord{})
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}

	var records []ScanResultRecord
	err := query.Order("generated_at DESC, date DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query archived results: %w", err)
	}

	results := make([]models.ScanResult, 0, len(records))
	for _, rec := range records {
		results = append(results, fromRecord(rec))
	}
	return results, nil
}

// Close closes the underlying connection.
func (a *SQLiteArchive) Close(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(r models.ScanResult) ScanResultRecord {
	return ScanResultRecord{
		Key:    r.ArchiveKey(),
		Symbol: r.Symbol,
		Date:   r.Date,

		Price:  r.Price,
		Volume: r.Volume,
		EMA8:   r.EMA8,
		EMA21:  r.EMA21,

		YesterdayDate:   r.YesterdayDate,
		YesterdayPrice:  r.YesterdayPrice,
		YesterdayVolume: r.YesterdayVolume,
		YesterdayEMA8:   r.YesterdayEMA8,
		YesterdayEMA21:  r.YesterdayEMA21,

		DayBeforeDate:   r.DayBeforeDate,
		DayBeforePrice:  r.DayBeforePrice,
		DayBeforeVolume: r.DayBeforeVolume,
		DayBeforeEMA8:   r.DayBeforeEMA8,
		DayBeforeEMA21:  r.DayBeforeEMA21,

		Matched:       r.Matched,
		TodayUp:       r.CrossoverPoints.TodayUp,
		TodayDown:     r.CrossoverPoints.TodayDown,
		YesterdayUp:   r.CrossoverPoints.YesterdayUp,
		YesterdayDown: r.CrossoverPoints.YesterdayDown,
		DayBeforeUp:   r.CrossoverPoints.DayBeforeUp,
		DayBeforeDown: r.CrossoverPoints.DayBeforeDown,

		GeneratedAt: r.GeneratedAt,
	}
}

func fromRecord(rec ScanResultRecord) models.ScanResult {
	return models.ScanResult{
		Symbol: rec.Symbol,

		Date:   rec.Date,
		Price:  rec.Price,
		Volume: rec.Volume,
		EMA8:   rec.EMA8,
		EMA21:  rec.EMA21,

		YesterdayDate:   rec.YesterdayDate,
		YesterdayPrice:  rec.YesterdayPrice,
		YesterdayVolume: rec.YesterdayVolume,
		YesterdayEMA8:   rec.YesterdayEMA8,
		YesterdayEMA21:  rec.YesterdayEMA21,

		DayBeforeDate:   rec.DayBeforeDate,
		DayBeforePrice:  rec.DayBeforePrice,
		DayBeforeVolume: rec.DayBeforeVolume,
		DayBeforeEMA8:   rec.DayBeforeEMA8,
		DayBeforeEMA21:  rec.DayBeforeEMA21,

		Matched: rec.Matched,
		CrossoverPoints: models.CrossoverPoints{
			TodayUp:       rec.TodayUp,
			TodayDown:     rec.TodayDown,
			YesterdayUp:   rec.YesterdayUp,
			YesterdayDown: rec.YesterdayDown,
			DayBeforeUp:   rec.DayBeforeUp,
			DayBeforeDown: rec.DayBeforeDown,
		},

		GeneratedAt: rec.GeneratedAt,
	}
}
