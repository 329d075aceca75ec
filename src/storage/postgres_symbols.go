package storage

import (
	"fmt"
	"time"

	"market-feed/src/models"
)

// Info: Separate file for Symbol Registration logic specific to Postgres

// -----------------------------------------------------------------------------

// RegisterSymbols upserts the configured symbol catalog so downstream
// consumers (dashboards, ad hoc queries) can join on it.
func (d *PostgresDB) RegisterSymbols(symbols []models.MSymbolConfig) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s".symbols (
			symbol TEXT PRIMARY KEY,
			base_price DOUBLE PRECISION,
			registered_at TIMESTAMP
		);
	`, d.Schema)
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create symbols table: %w", err)
	}

	upsert := fmt.Sprintf(`
		INSERT INTO "%s".symbols (symbol, base_price, registered_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol) DO UPDATE SET base_price = EXCLUDED.base_price
	`, d.Schema)

	now := time.Now()
	for _, s := range symbols {
		if _, err := d.DB.Exec(upsert, s.Symbol, s.BasePrice, now); err != nil {
			return fmt.Errorf("failed to register symbol %s: %w", s.Symbol, err)
		}
	}

	return nil
}
