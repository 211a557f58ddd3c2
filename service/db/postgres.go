package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/brojonat/soltrack/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS transactions (
	signature    TEXT PRIMARY KEY,
	timestamp    TIMESTAMPTZ,
	type         TEXT NOT NULL DEFAULT 'UNKNOWN',
	token_mint   TEXT NOT NULL DEFAULT '',
	token_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
	direction    TEXT NOT NULL DEFAULT 'none',
	fee          BIGINT,
	raw_data     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions (timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions (type);
`

const selectColumns = `signature, timestamp, type, token_mint, token_amount, direction, fee, raw_data::text`

const orderNewestFirst = ` ORDER BY timestamp DESC NULLS LAST, signature DESC`

// PostgresStore keeps transactions in a shared Postgres database.
type PostgresStore struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewPostgresStore connects to the database at url.
func NewPostgresStore(ctx context.Context, url string, logger *slog.Logger, m *metrics.Metrics) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Debug("connected to postgres store")
	return &PostgresStore{pool: pool, logger: logger, metrics: m}, nil
}

// EnsureSchema creates the transactions table if absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, postgresSchema)
	observe(s.metrics, "ensure_schema", start, err)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpsertMany inserts every record whose signature is not stored yet.
// All inserts run in one transaction; on error nothing is written.
func (s *PostgresStore) UpsertMany(ctx context.Context, records []Record) (int, error) {
	start := time.Now()
	inserted, err := s.upsertMany(ctx, records)
	observe(s.metrics, "upsert_many", start, err)
	return inserted, err
}

func (s *PostgresStore) upsertMany(ctx context.Context, records []Record) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted := 0
	for _, r := range records {
		tag, err := tx.Exec(ctx, `
			INSERT INTO transactions (signature, timestamp, type, token_mint, token_amount, direction, fee, raw_data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
			ON CONFLICT (signature) DO NOTHING`,
			r.Signature, r.Timestamp, r.Type, r.TokenMint, r.TokenAmount, r.Direction, r.Fee, string(r.RawData),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert transaction %s: %w", r.Signature, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// LatestSignature returns the signature of the most recently timestamped record.
func (s *PostgresStore) LatestSignature(ctx context.Context) (*string, error) {
	start := time.Now()
	var sig string
	err := s.pool.QueryRow(ctx, `SELECT signature FROM transactions`+orderNewestFirst+` LIMIT 1`).Scan(&sig)
	if errors.Is(err, pgx.ErrNoRows) {
		observe(s.metrics, "latest_signature", start, nil)
		return nil, nil
	}
	observe(s.metrics, "latest_signature", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest signature: %w", err)
	}
	return &sig, nil
}

// GetTransaction retrieves a record by signature.
func (s *PostgresStore) GetTransaction(ctx context.Context, signature string) (*Record, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM transactions WHERE signature = $1`, signature)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		observe(s.metrics, "get_transaction", start, nil)
		return nil, ErrNotFound
	}
	observe(s.metrics, "get_transaction", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return r, nil
}

// ListTransactions returns a newest-first page of records.
func (s *PostgresStore) ListTransactions(ctx context.Context, params ListParams) ([]*Record, error) {
	start := time.Now()
	query := `SELECT ` + selectColumns + ` FROM transactions WHERE ($1 = '' OR type = $1)` + orderNewestFirst
	args := []any{params.Type}
	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	records, err := s.query(ctx, query, args...)
	observe(s.metrics, "list_transactions", start, err)
	return records, err
}

// ScanAll returns every record, newest first.
func (s *PostgresStore) ScanAll(ctx context.Context) ([]*Record, error) {
	start := time.Now()
	records, err := s.query(ctx, `SELECT `+selectColumns+` FROM transactions`+orderNewestFirst)
	observe(s.metrics, "scan_all", start, err)
	return records, err
}

// Count returns the number of stored records.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// CountByType groups stored records by type, most frequent first.
func (s *PostgresStore) CountByType(ctx context.Context) ([]TypeCount, error) {
	rows, err := s.pool.Query(ctx, `SELECT type, COUNT(*) FROM transactions GROUP BY type ORDER BY COUNT(*) DESC, type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by type: %w", err)
	}
	defer rows.Close()

	var counts []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}

// AggregateByMint sums signed amounts per mint.
func (s *PostgresStore) AggregateByMint(ctx context.Context) (map[string]float64, error) {
	start := time.Now()
	balances, err := s.aggregateByMint(ctx)
	observe(s.metrics, "aggregate_by_mint", start, err)
	return balances, err
}

func (s *PostgresStore) aggregateByMint(ctx context.Context) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `SELECT token_mint, `+signedAmountSQL+` FROM transactions GROUP BY token_mint`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by mint: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]float64)
	for rows.Next() {
		var mint string
		var balance float64
		if err := rows.Scan(&mint, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances[mint] = balance
	}
	return balances, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		r   Record
		ts  *time.Time
		raw string
	)
	if err := row.Scan(&r.Signature, &ts, &r.Type, &r.TokenMint, &r.TokenAmount, &r.Direction, &r.Fee, &raw); err != nil {
		return nil, err
	}
	if ts != nil {
		t := ts.UTC()
		r.Timestamp = &t
	}
	r.RawData = []byte(raw)
	return &r, nil
}
