package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/brojonat/soltrack/service/metrics"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// transactionModel is the gorm mapping of the transactions table.
type transactionModel struct {
	Signature   string     `gorm:"column:signature;primaryKey"`
	Timestamp   *time.Time `gorm:"column:timestamp;index"`
	Type        string     `gorm:"column:type;index"`
	TokenMint   string     `gorm:"column:token_mint"`
	TokenAmount float64    `gorm:"column:token_amount"`
	Direction   string     `gorm:"column:direction"`
	Fee         *int64     `gorm:"column:fee"`
	RawData     string     `gorm:"column:raw_data"`
}

func (transactionModel) TableName() string {
	return "transactions"
}

// SQLiteStore keeps transactions in a single local SQLite file.
type SQLiteStore struct {
	db      *gorm.DB
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSQLiteStore opens the SQLite file at path, creating its directory if
// needed. An empty path uses a shared in-memory database.
func NewSQLiteStore(path string, logger *slog.Logger, m *metrics.Metrics) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	dsn := "file::memory:?cache=shared"
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		// busy_timeout lets a reader wait for a short sync write instead of failing.
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	logger.Debug("opened sqlite store", "path", path)
	return &SQLiteStore{db: gdb, logger: logger, metrics: m}, nil
}

// EnsureSchema creates the transactions table if absent.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	start := time.Now()
	err := s.db.WithContext(ctx).AutoMigrate(&transactionModel{})
	observe(s.metrics, "ensure_schema", start, err)
	return err
}

// UpsertMany inserts every record whose signature is not stored yet.
// All inserts run in one transaction; on error nothing is written.
func (s *SQLiteStore) UpsertMany(ctx context.Context, records []Record) (int, error) {
	start := time.Now()
	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range records {
			model := recordToModel(r)
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "signature"}},
				DoNothing: true,
			}).Create(&model)
			if result.Error != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", r.Signature, result.Error)
			}
			inserted += int(result.RowsAffected)
		}
		return nil
	})
	observe(s.metrics, "upsert_many", start, err)
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// LatestSignature returns the signature of the most recently timestamped record.
func (s *SQLiteStore) LatestSignature(ctx context.Context) (*string, error) {
	start := time.Now()
	var models []transactionModel
	err := s.newestFirst(ctx).Limit(1).Find(&models).Error
	observe(s.metrics, "latest_signature", start, err)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	return &models[0].Signature, nil
}

// GetTransaction retrieves a record by signature.
func (s *SQLiteStore) GetTransaction(ctx context.Context, signature string) (*Record, error) {
	start := time.Now()
	var model transactionModel
	err := s.db.WithContext(ctx).Where("signature = ?", signature).First(&model).Error
	observe(s.metrics, "get_transaction", start, err)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return modelToRecord(&model), nil
}

// ListTransactions returns a newest-first page of records.
func (s *SQLiteStore) ListTransactions(ctx context.Context, params ListParams) ([]*Record, error) {
	start := time.Now()
	q := s.newestFirst(ctx)
	if params.Type != "" {
		q = q.Where("type = ?", params.Type)
	}
	if params.Limit > 0 {
		q = q.Limit(params.Limit)
	}
	if params.Offset > 0 {
		q = q.Offset(params.Offset)
	}
	var models []transactionModel
	err := q.Find(&models).Error
	observe(s.metrics, "list_transactions", start, err)
	if err != nil {
		return nil, err
	}
	return modelsToRecords(models), nil
}

// ScanAll returns every record, newest first.
func (s *SQLiteStore) ScanAll(ctx context.Context) ([]*Record, error) {
	start := time.Now()
	var models []transactionModel
	err := s.newestFirst(ctx).Find(&models).Error
	observe(s.metrics, "scan_all", start, err)
	if err != nil {
		return nil, err
	}
	return modelsToRecords(models), nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&transactionModel{}).Count(&count).Error
	return count, err
}

// CountByType groups stored records by type, most frequent first.
func (s *SQLiteStore) CountByType(ctx context.Context) ([]TypeCount, error) {
	var counts []TypeCount
	err := s.db.WithContext(ctx).Model(&transactionModel{}).
		Select("type, COUNT(*) AS count").
		Group("type").
		Order("count DESC, type").
		Scan(&counts).Error
	return counts, err
}

// AggregateByMint sums signed amounts per mint.
func (s *SQLiteStore) AggregateByMint(ctx context.Context) (map[string]float64, error) {
	start := time.Now()
	var rows []struct {
		Mint    string
		Balance float64
	}
	err := s.db.WithContext(ctx).Model(&transactionModel{}).
		Select("token_mint AS mint, " + signedAmountSQL + " AS balance").
		Group("token_mint").
		Scan(&rows).Error
	observe(s.metrics, "aggregate_by_mint", start, err)
	if err != nil {
		return nil, err
	}
	balances := make(map[string]float64, len(rows))
	for _, row := range rows {
		balances[row.Mint] = row.Balance
	}
	return balances, nil
}

// Close releases the underlying connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// newestFirst orders by timestamp with untimestamped rows last.
func (s *SQLiteStore) newestFirst(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Order("timestamp IS NULL, timestamp DESC, signature DESC")
}

const signedAmountSQL = "COALESCE(SUM(CASE direction " +
	"WHEN 'in' THEN token_amount " +
	"WHEN 'out' THEN -token_amount " +
	"ELSE 0 END), 0)"

func recordToModel(r Record) transactionModel {
	var ts *time.Time
	if r.Timestamp != nil {
		t := r.Timestamp.UTC()
		ts = &t
	}
	return transactionModel{
		Signature:   r.Signature,
		Timestamp:   ts,
		Type:        r.Type,
		TokenMint:   r.TokenMint,
		TokenAmount: r.TokenAmount,
		Direction:   r.Direction,
		Fee:         r.Fee,
		RawData:     string(r.RawData),
	}
}

func modelToRecord(m *transactionModel) *Record {
	return &Record{
		Signature:   m.Signature,
		Timestamp:   m.Timestamp,
		Type:        m.Type,
		TokenMint:   m.TokenMint,
		TokenAmount: m.TokenAmount,
		Direction:   m.Direction,
		Fee:         m.Fee,
		RawData:     []byte(m.RawData),
	}
}

func modelsToRecords(models []transactionModel) []*Record {
	records := make([]*Record, len(models))
	for i := range models {
		records[i] = modelToRecord(&models[i])
	}
	return records
}
