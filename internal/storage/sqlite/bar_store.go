package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gapup-lab/internal/domain"
	"gapup-lab/internal/storage"
)

// BarStore implements storage.BarStore on the price_data and metadata tables.
type BarStore struct {
	db    *DB
	clock func() time.Time
}

// NewBarStore creates a store on an opened database.
func NewBarStore(db *DB) *BarStore {
	return &BarStore{
		db:    db,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock for last_updated stamps.
func (s *BarStore) WithClock(clock func() time.Time) *BarStore {
	s.clock = clock
	return s
}

// Upsert replaces bars by (symbol, date) and refreshes metadata in one transaction.
func (s *BarStore) Upsert(ctx context.Context, symbol string, bars []domain.PriceBar) error {
	sym, err := storage.ValidateUpsert(symbol, bars)
	if err != nil {
		return err
	}

	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO price_data (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, sym, b.DateKey(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("upsert bar %s %s: %w", sym, b.DateKey(), err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO metadata (symbol, last_updated, start_date, end_date, row_count)
		SELECT ?, ?, MIN(date), MAX(date), COUNT(*) FROM price_data WHERE symbol = ?
	`, sym, formatTime(s.clock()), sym)
	if err != nil {
		return fmt.Errorf("update metadata %s: %w", sym, err)
	}

	return tx.Commit()
}

// GetRange retrieves bars within [start, end] (inclusive), ordered by date ASC.
func (s *BarStore) GetRange(ctx context.Context, symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	where := []string{"symbol = ?"}
	args := []any{storage.NormalizeSymbol(symbol)}
	if !start.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, start.Format(domain.DateLayout))
	}
	if !end.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, end.Format(domain.DateLayout))
	}

	query := fmt.Sprintf(`
		SELECT date, open, high, low, close, volume
		FROM price_data
		WHERE %s
		ORDER BY date ASC
	`, strings.Join(where, " AND "))

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var result []domain.PriceBar
	for rows.Next() {
		var b domain.PriceBar
		var date string
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		if b.Date, err = domain.ParseDate(date); err != nil {
			return nil, err
		}
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
	row := s.db.db.QueryRowContext(ctx,
		`SELECT `+metadataColumns+` FROM metadata WHERE symbol = ?`,
		storage.NormalizeSymbol(symbol),
	)
	m, err := scanMetadata(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return m, err
}

// ListMetadata returns metadata for all symbols, ordered by symbol.
func (s *BarStore) ListMetadata(ctx context.Context) ([]*domain.CacheMetadata, error) {
	rows, err := s.db.db.QueryContext(ctx, `SELECT `+metadataColumns+` FROM metadata ORDER BY symbol`)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanMetadata(row scanner) (*domain.CacheMetadata, error) {
	var m domain.CacheMetadata
	var updated string
	var start, end sql.NullString
	if err := row.Scan(&m.Symbol, &updated, &start, &end, &m.Rows); err != nil {
		return nil, err
	}

	var err error
	if m.LastUpdated, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse last_updated: %w", err)
	}
	if start.Valid {
		if m.StartDate, err = domain.ParseDate(start.String); err != nil {
			return nil, err
		}
	}
	if end.Valid {
		if m.EndDate, err = domain.ParseDate(end.String); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// Clear removes one symbol, or all data when symbol is empty.
func (s *BarStore) Clear(ctx context.Context, symbol string) error {
	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	sym := storage.NormalizeSymbol(symbol)
	for _, table := range []string{"price_data", "metadata"} {
		if sym == "" {
			_, err = tx.ExecContext(ctx, "DELETE FROM "+table)
		} else {
			_, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE symbol = ?", sym)
		}
		if err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.db.logger.Debug().Str("symbol", sym).Msg("cache cleared")
	return nil
}

// Close closes the underlying database.
func (s *BarStore) Close() error {
	return s.db.Close()
}

var _ storage.BarStore = (*BarStore)(nil)
