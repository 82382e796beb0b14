// Package duckdb persists historical price bars fetched through the
// gateway client, one table per symbol.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/govalues/decimal"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/rnovak/ibwire/pkg/gateway"
)

type Store struct {
	dataSourceName string
	db             *sql.DB
}

func NewStore(dataSourceName string) *Store {
	return &Store{
		dataSourceName: dataSourceName,
	}
}

func (s *Store) Connect() error {
	db, err := sql.Open("duckdb", s.dataSourceName)
	if err != nil {
		return fmt.Errorf("sql.Open: %w", err)
	}
	s.db = db
	return nil
}

func (s *Store) Close() {
	_ = s.db.Close()
}

// SaveBars appends bars to the symbol's table, creating it on first use.
func (s *Store) SaveBars(ctx context.Context, symbol string, bars []gateway.Bar) error {
	table := tableName(symbol)

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMP NOT NULL,
		open DECIMAL(18,8) NOT NULL,
		high DECIMAL(18,8) NOT NULL,
		low DECIMAL(18,8) NOT NULL,
		close DECIMAL(18,8) NOT NULL,
		volume DECIMAL(18,8) NOT NULL)`, table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("error creating table %s: %w", table, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (ts, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?)`, table))
	if err != nil {
		return fmt.Errorf("error preparing insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, bar := range bars {
		_, err := stmt.ExecContext(ctx, bar.Time,
			bar.Open.String(), bar.High.String(), bar.Low.String(), bar.Close.String(),
			bar.Volume.String())
		if err != nil {
			return fmt.Errorf("error inserting bar at %s: %w", bar.Time, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing bars: %w", err)
	}
	return nil
}

// LoadBars streams the symbol's bars within [from, to] to handler in time
// order.
func (s *Store) LoadBars(ctx context.Context, symbol string, from, to time.Time, handler func(bar gateway.Bar) error) error {
	query := fmt.Sprintf(`SELECT ts, open, high, low, close, volume FROM %s WHERE ts BETWEEN ? AND ? ORDER BY ts`, tableName(symbol))

	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return fmt.Errorf("error preparing query: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var bar gateway.Bar
		var open, high, low, cls, volume string
		if err := rows.Scan(&bar.Time, &open, &high, &low, &cls, &volume); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}
		if bar.Open, err = decimal.Parse(open); err != nil {
			return fmt.Errorf("error parsing open: %w", err)
		}
		if bar.High, err = decimal.Parse(high); err != nil {
			return fmt.Errorf("error parsing high: %w", err)
		}
		if bar.Low, err = decimal.Parse(low); err != nil {
			return fmt.Errorf("error parsing low: %w", err)
		}
		if bar.Close, err = decimal.Parse(cls); err != nil {
			return fmt.Errorf("error parsing close: %w", err)
		}
		if bar.Volume, err = decimal.Parse(volume); err != nil {
			return fmt.Errorf("error parsing volume: %w", err)
		}
		if err := handler(bar); err != nil {
			return fmt.Errorf("error processing bar: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error scanning rows: %w", err)
	}
	return nil
}

// tableName keeps symbols like BRK.B or EUR/USD usable as identifiers.
func tableName(symbol string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, symbol)
	return cleaned + "_bars"
}
