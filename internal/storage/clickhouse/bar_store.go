package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gapup-lab/internal/domain"
	"gapup-lab/internal/storage"
)

// chRows is the subset of driver.Rows used by scanners.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// BarStore implements storage.BarStore using ClickHouse.
// Every upsert writes a higher version; reads use FINAL so the latest
// version per (symbol, date) wins before background merges run.
type BarStore struct {
	conn  *Conn
	clock func() time.Time
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{
		conn:  conn,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock for last_updated stamps and row versions.
func (s *BarStore) WithClock(clock func() time.Time) *BarStore {
	s.clock = clock
	return s
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// Upsert appends a new version of each bar and of the symbol metadata.
func (s *BarStore) Upsert(ctx context.Context, symbol string, bars []domain.PriceBar) error {
	sym, err := storage.ValidateUpsert(symbol, bars)
	if err != nil {
		return err
	}

	now := s.clock().UTC()
	version := uint64(now.UnixNano())

	if len(bars) > 0 {
		batch, err := s.conn.PrepareBatch(ctx, `
			INSERT INTO price_bars (symbol, date, open, high, low, close, volume, version)
		`)
		if err != nil {
			return fmt.Errorf("prepare batch: %w", err)
		}

		for _, b := range bars {
			err = batch.Append(
				sym, domain.TruncateDay(b.Date),
				b.Open, b.High, b.Low, b.Close, b.Volume,
				version,
			)
			if err != nil {
				return fmt.Errorf("append to batch: %w", err)
			}
		}

		if err := batch.Send(); err != nil {
			return fmt.Errorf("send batch: %w", err)
		}
	}

	err = s.conn.Exec(ctx,
		`INSERT INTO cache_metadata (symbol, last_updated, version) VALUES (?, ?, ?)`,
		sym, now, version,
	)
	if err != nil {
		return fmt.Errorf("insert metadata: %w", err)
	}
	return nil
}

// GetRange retrieves bars within [start, end] (inclusive), ordered by date ASC.
func (s *BarStore) GetRange(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	where := []string{"symbol = ?"}
	args := []any{storage.NormalizeSymbol(symbol)}
	if !start.IsZero() {
		where = append(where, "date >= toDate(?)")
		args = append(args, start.Format(domain.DateLayout))
	}
	if !end.IsZero() {
		where = append(where, "date <= toDate(?)")
		args = append(args, end.Format(domain.DateLayout))
	}

	query := fmt.Sprintf(`
		SELECT date, open, high, low, close, volume
		FROM price_bars FINAL
		WHERE %s
		ORDER BY date ASC
	`, strings.Join(where, " AND "))

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	result, err := scanBars(rows)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, storage.ErrNotFound
	}
	return result, nil
}

// scanBars scans multiple rows.
func scanBars(rows chRows) ([]domain.PriceBar, error) {
	var bars []domain.PriceBar

	for rows.Next() {
		var b domain.PriceBar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		b.Date = domain.TruncateDay(b.Date)
		bars = append(bars, b)
	}

	return bars, rows.Err()
}

// Metadata returns cache metadata for a symbol.
func (s *BarStore) Metadata(ctx context.Context, symbol string) (*domain.CacheMetadata, error) {
	sym := storage.NormalizeSymbol(symbol)

	rows, err := s.conn.Query(ctx,
		`SELECT last_updated FROM cache_metadata FINAL WHERE symbol = ?`, sym)
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, storage.ErrNotFound
	}
	m := &domain.CacheMetadata{Symbol: sym}
	if err := rows.Scan(&m.LastUpdated); err != nil {
		return nil, fmt.Errorf("scan metadata: %w", err)
	}
	m.LastUpdated = m.LastUpdated.UTC()

	var count uint64
	var minDate, maxDate time.Time
	err = s.conn.QueryRow(ctx, `
		SELECT count(), min(date), max(date)
		FROM price_bars FINAL
		WHERE symbol = ?
	`, sym).Scan(&count, &minDate, &maxDate)
	if err != nil {
		return nil, fmt.Errorf("summarize bars: %w", err)
	}

	m.Rows = int(count)
	if count > 0 {
		m.StartDate = domain.TruncateDay(minDate)
		m.EndDate = domain.TruncateDay(maxDate)
	}
	return m, nil
}

// ListMetadata returns metadata for all symbols, ordered by symbol.
func (s *BarStore) ListMetadata(ctx context.Context) ([]*domain.CacheMetadata, error) {
	rows, err := s.conn.Query(ctx, `SELECT symbol FROM cache_metadata FINAL ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	result := make([]*domain.CacheMetadata, 0, len(symbols))
	for _, sym := range symbols {
		m, err := s.Metadata(ctx, sym)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, nil
}

// Clear removes one symbol, or all data when symbol is empty.
func (s *BarStore) Clear(ctx context.Context, symbol string) error {
	sym := storage.NormalizeSymbol(symbol)
	for _, table := range []string{"price_bars", "cache_metadata"} {
		var err error
		if sym == "" {
			err = s.conn.Exec(ctx, "TRUNCATE TABLE "+table)
		} else {
			err = s.conn.Exec(ctx, "DELETE FROM "+table+" WHERE symbol = ?", sym)
		}
		if err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// Close closes the connection.
func (s *BarStore) Close() error {
	return s.conn.Close()
}
