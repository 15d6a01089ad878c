package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS weather (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	city_key    TEXT NOT NULL,
	city        TEXT NOT NULL,
	temperature REAL NOT NULL,
	description TEXT NOT NULL,
	fetched_at  INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_weather_city_key ON weather(city_key, fetched_at);
`

// SQLiteCache keeps every fetched result as a history row. Get returns the
// newest row for the key that has not expired.
type SQLiteCache struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteCache opens (or creates) the database at path. Use ":memory:" for tests.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serializes writes
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteCache{db: db, now: time.Now}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, key string) (models.WeatherResult, bool, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT city, temperature, description, fetched_at FROM weather
		 WHERE city_key = ? AND expires_at > ?
		 ORDER BY fetched_at DESC, id DESC LIMIT 1`,
		key, c.now().UnixNano())

	var (
		out       models.WeatherResult
		fetchedAt int64
	)
	if err := row.Scan(&out.City, &out.Temperature, &out.Description, &fetchedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.WeatherResult{}, false, nil
		}
		return models.WeatherResult{}, false, fmt.Errorf("query weather: %w", err)
	}
	out.Timestamp = time.Unix(0, fetchedAt).UTC()
	return out, true, nil
}

func (c *SQLiteCache) Set(ctx context.Context, key string, value models.WeatherResult, ttl time.Duration) error {
	fetched := value.Timestamp
	if fetched.IsZero() {
		fetched = c.now()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO weather(city_key, city, temperature, description, fetched_at, expires_at)
		 VALUES(?,?,?,?,?,?)`,
		key, value.City, value.Temperature, value.Description,
		fetched.UnixNano(), c.now().Add(ttl).UnixNano())
	if err != nil {
		return fmt.Errorf("insert weather: %w", err)
	}
	return nil
}

// PruneExpired deletes rows whose TTL ended at or before now. Rows still
// servable by Get are kept.
func (c *SQLiteCache) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM weather WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune expired weather: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database handle. Used for health checks.
func (c *SQLiteCache) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close releases the database handle.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
