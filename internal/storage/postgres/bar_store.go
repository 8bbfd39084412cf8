package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"gapup-lab/internal/domain"
	"gapup-lab/internal/storage"
)

// BarStore implements storage.BarStore using PostgreSQL.
type BarStore struct {
	pool  *Pool
	clock func() time.Time
}

// NewBarStore creates a new BarStore.
func NewBarStore(pool *Pool) *BarStore {
	return &BarStore{
		pool:  pool,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock for last_updated stamps.
func (s *BarStore) WithClock(clock func() time.Time) *BarStore {
	s.clock = clock
	return s
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// Upsert replaces bars by (symbol, date) and refreshes metadata atomically.
func (s *BarStore) Upsert(ctx context.Context, symbol string, bars []domain.PriceBar) error {
	sym, err := storage.ValidateUpsert(symbol, bars)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO price_bars (symbol, date, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, sym, domain.TruncateDay(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < len(bars); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upsert bar %s %s: %w", sym, bars[i].DateKey(), err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO cache_metadata (symbol, last_updated, start_date, end_date, row_count)
		SELECT $1::text, $2, MIN(date), MAX(date), COUNT(*) FROM price_bars WHERE symbol = $1::text
		ON CONFLICT (symbol) DO UPDATE SET
			last_updated = EXCLUDED.last_updated,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			row_count = EXCLUDED.row_count
	`, sym, s.clock().UTC())
	if err != nil {
		return fmt.Errorf("update metadata %s: %w", sym, err)
	}

	return tx.Commit(ctx)
}

// GetRange retrieves bars within [start, end] (inclusive), ordered by date ASC.
func (s *BarStore) GetRange(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	where := []string{"symbol = $1"}
	args := []any{storage.NormalizeSymbol(symbol)}
	if !start.IsZero() {
		args = append(args, domain.TruncateDay(start))
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if !end.IsZero() {
		args = append(args, domain.TruncateDay(end))
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT date, open, high, low, close, volume
		FROM price_bars
		WHERE %s
		ORDER BY date ASC
	`, strings.Join(where, " AND "))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var result []domain.PriceBar
	for rows.Next() {
		var b domain.PriceBar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.Date = domain.TruncateDay(b.Date)
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, storage.ErrNotFound
	}
	return result, nil
}

const metadataColumns = `symbol, last_updated, start_date, end_date, row_count`

// Metadata returns cache metadata for a symbol.
func (s *BarStore) Metadata(ctx context.Context, symbol string) (*domain.CacheMetadata, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+metadataColumns+` FROM cache_metadata WHERE symbol = $1`,
		storage.NormalizeSymbol(symbol),
	)
	m, err := scanMetadata(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get metadata: %w", err)
	}
	return m, nil
}

// ListMetadata returns metadata for all symbols, ordered by symbol.
func (s *BarStore) ListMetadata(ctx context.Context) ([]*domain.CacheMetadata, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+metadataColumns+` FROM cache_metadata ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	result := []*domain.CacheMetadata{}
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func scanMetadata(row pgx.Row) (*domain.CacheMetadata, error) {
	var m domain.CacheMetadata
	var start, end *time.Time
	if err := row.Scan(&m.Symbol, &m.LastUpdated, &start, &end, &m.Rows); err != nil {
		return nil, err
	}
	m.LastUpdated = m.LastUpdated.UTC()
	if start != nil {
		m.StartDate = domain.TruncateDay(*start)
	}
	if end != nil {
		m.EndDate = domain.TruncateDay(*end)
	}
	return &m, nil
}

// Clear removes one symbol, or all data when symbol is empty.
func (s *BarStore) Clear(ctx context.Context, symbol string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sym := storage.NormalizeSymbol(symbol)
	for _, table := range []string{"price_bars", "cache_metadata"} {
		if sym == "" {
			_, err = tx.Exec(ctx, "DELETE FROM "+table)
		} else {
			_, err = tx.Exec(ctx, "DELETE FROM "+table+" WHERE symbol = $1", sym)
		}
		if err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit(ctx)
}

// Close closes the pool.
func (s *BarStore) Close() error {
	s.pool.Close()
	return nil
}
