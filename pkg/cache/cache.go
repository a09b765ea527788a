package cache

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"dealfinder/pkg/models"
)

// DefaultTTL bounds how long a discovery result stays servable before the
// pipeline must re-scrape.
const DefaultTTL = 5 * time.Minute

// Key identifies one discovery request. Kind is "category" or "search".
type Key struct {
	Kind        string
	Value       string
	MinDiscount int
}

// Cache stores filtered discovery results with a fixed TTL. Expiry is checked
// lazily on Get; there is no background sweep. Entries are immutable once
// stored and sqlite keeps a partially written entry from ever being visible.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			kind TEXT NOT NULL,
			value TEXT NOT NULL,
			min_discount INTEGER NOT NULL,
			data TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (kind, value, min_discount)
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// SetClock swaps the time source, which lets tests drive expiry
// deterministically.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

func (c *Cache) Get(key Key) ([]models.ProductRecord, bool) {
	var data string
	var createdAt time.Time

	err := c.db.QueryRow(
		`SELECT data, created_at FROM results WHERE kind = ? AND value = ? AND min_discount = ?`,
		key.Kind, key.Value, key.MinDiscount,
	).Scan(&data, &createdAt)

	if err != nil {
		return nil, false
	}

	if c.now().Sub(createdAt) > c.ttl {
		return nil, false
	}

	var records []models.ProductRecord
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		log.Printf("Cache: failed to unmarshal results for %s/%s: %v", key.Kind, key.Value, err)
		return nil, false
	}

	return records, true
}

func (c *Cache) Put(key Key, records []models.ProductRecord) {
	data, err := json.Marshal(records)
	if err != nil {
		log.Printf("Cache: failed to marshal results for %s/%s: %v", key.Kind, key.Value, err)
		return
	}

	_, err = c.db.Exec(
		`INSERT INTO results (kind, value, min_discount, data, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(kind, value, min_discount)
		 DO UPDATE SET data = excluded.data, created_at = excluded.created_at`,
		key.Kind, key.Value, key.MinDiscount, string(data), c.now(),
	)
	if err != nil {
		log.Printf("Cache: failed to store results for %s/%s: %v", key.Kind, key.Value, err)
	}
}

func (c *Cache) Close() error {
	return c.db.Close()
}
