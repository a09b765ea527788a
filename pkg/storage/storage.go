package storage

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"dealfinder/pkg/models"
)

// Store persists discovered products and per-run price snapshots. Persistence
// is best-effort: discovery and enrichment results stay valid even when a
// save fails, so callers log and move on.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			url TEXT,
			image_url TEXT,
			category TEXT,
			is_prime INTEGER NOT NULL DEFAULT 0,
			rating REAL,
			num_reviews INTEGER,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS price_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			product_id TEXT NOT NULL,
			current_price REAL,
			original_price REAL,
			discount_percent INTEGER NOT NULL DEFAULT 0,
			lowest_ever REAL,
			highest_ever REAL,
			is_historical_low INTEGER NOT NULL DEFAULT 0,
			recorded_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ix_snapshots_product_recorded
			ON price_snapshots (product_id, recorded_at)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Store{db: db}, nil
}

// SaveBatch upserts each product and appends one price snapshot per record
// inside a single transaction.
func (s *Store) SaveBatch(ctx context.Context, records []models.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, rec := range records {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO products (id, title, url, image_url, category, is_prime, rating, num_reviews, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				url = excluded.url,
				image_url = excluded.image_url,
				category = excluded.category,
				is_prime = excluded.is_prime,
				rating = excluded.rating,
				num_reviews = excluded.num_reviews,
				updated_at = excluded.updated_at`,
			rec.ID, rec.Title, rec.URL, rec.ImageURL, rec.Category, rec.IsPrime, rec.Rating, rec.NumReviews, now,
		)
		if err != nil {
			return err
		}

		var lowest, highest *float64
		isLow := false
		if rec.PriceHistory != nil {
			lowest = rec.PriceHistory.LowestEver
			highest = rec.PriceHistory.HighestEver
			isLow = rec.PriceHistory.IsHistoricalLow
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO price_snapshots
				(product_id, current_price, original_price, discount_percent, lowest_ever, highest_ever, is_historical_low, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.CurrentPrice, rec.OriginalPrice, rec.DiscountPercent, lowest, highest, isLow, now,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Snapshot is one persisted price observation.
type Snapshot struct {
	CurrentPrice    *float64  `json:"current_price"`
	OriginalPrice   *float64  `json:"original_price"`
	DiscountPercent int       `json:"discount_percent"`
	LowestEver      *float64  `json:"lowest_ever"`
	HighestEver     *float64  `json:"highest_ever"`
	IsHistoricalLow bool      `json:"is_historical_low"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// History returns the most recent snapshots for a product, newest first.
func (s *Store) History(ctx context.Context, productID string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT current_price, original_price, discount_percent, lowest_ever, highest_ever, is_historical_low, recorded_at
		 FROM price_snapshots
		 WHERE product_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		productID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := make([]Snapshot, 0)
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(
			&snap.CurrentPrice, &snap.OriginalPrice, &snap.DiscountPercent,
			&snap.LowestEver, &snap.HighestEver, &snap.IsHistoricalLow, &snap.RecordedAt,
		); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
