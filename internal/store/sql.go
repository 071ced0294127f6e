package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/weather-ranker/internal/weather"
)

// Supported SQL drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS locations (
		id      TEXT PRIMARY KEY,
		name    TEXT NOT NULL,
		lat     DOUBLE PRECISION NOT NULL,
		lon     DOUBLE PRECISION NOT NULL,
		country TEXT NOT NULL DEFAULT '',
		state   TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_locations_lat_lon ON locations (lat, lon)`,
	`CREATE TABLE IF NOT EXISTS weather_records (
		id         TEXT PRIMARY KEY,
		source     TEXT NOT NULL,
		coord_key  TEXT NOT NULL,
		fetched_at TIMESTAMP NOT NULL,
		payload    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_weather_records_key_time ON weather_records (coord_key, fetched_at)`,
}

// SQLStore persists records and cached locations through database/sql (Postgres or SQLite).
type SQLStore struct {
	db *sqlx.DB
}

// OpenSQL connects, pings and migrates the database.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewSQLStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an existing connection. Call Migrate before use.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type recordRow struct {
	ID        string    `db:"id"`
	Source    string    `db:"source"`
	CoordKey  string    `db:"coord_key"`
	FetchedAt time.Time `db:"fetched_at"`
	Payload   string    `db:"payload"`
}

// SaveRecord stores the record as JSON and returns it with its id.
func (s *SQLStore) SaveRecord(ctx context.Context, rec weather.Record) (weather.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return weather.Record{}, fmt.Errorf("encode record: %w", err)
	}

	query := s.db.Rebind(`INSERT INTO weather_records (id, source, coord_key, fetched_at, payload) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, rec.ID, string(rec.Source), rec.Coordinates().Key(), rec.FetchedAt.UTC(), string(payload)); err != nil {
		return weather.Record{}, fmt.Errorf("insert record: %w", err)
	}
	return rec, nil
}

// Range returns records for the coordinates between from and to (inclusive), oldest first.
func (s *SQLStore) Range(ctx context.Context, coords weather.Coordinates, from, to time.Time) ([]weather.Record, error) {
	query := s.db.Rebind(`SELECT id, source, coord_key, fetched_at, payload FROM weather_records
		WHERE coord_key = ? AND fetched_at >= ? AND fetched_at <= ?
		ORDER BY fetched_at ASC`)

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, coords.Key(), from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	out := make([]weather.Record, 0, len(rows))
	for _, row := range rows {
		var rec weather.Record
		if err := json.Unmarshal([]byte(row.Payload), &rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", row.ID, err)
		}
		rec.ID = row.ID
		out = append(out, rec)
	}
	return out, nil
}

type locationRow struct {
	ID string `db:"id"`
	weather.Location
}

// Find returns a cached location within tolerance of lat/lon.
func (s *SQLStore) Find(ctx context.Context, lat, lon, tolerance float64) (weather.Location, error) {
	row, err := s.findRow(ctx, s.db, lat, lon, tolerance)
	if err != nil {
		return weather.Location{}, err
	}
	return row.Location, nil
}

// Save inserts or updates a location using the same proximity rules as MemoryStore.
func (s *SQLStore) Save(ctx context.Context, loc weather.Location) (weather.Location, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return weather.Location{}, err
	}
	defer tx.Rollback()

	existing, err := s.findRow(ctx, tx, loc.Lat, loc.Lon, weather.ProximityTolerance)
	switch {
	case err == nil && existing.SameDetails(loc):
		return existing.Location, weather.ErrDuplicateLocation
	case err == nil:
		query := tx.Rebind(`UPDATE locations SET name = ?, lat = ?, lon = ?, country = ?, state = ? WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, query, loc.Name, loc.Lat, loc.Lon, loc.Country, loc.State, existing.ID); err != nil {
			return weather.Location{}, fmt.Errorf("update location: %w", err)
		}
	case errors.Is(err, ErrNotFound):
		query := tx.Rebind(`INSERT INTO locations (id, name, lat, lon, country, state) VALUES (?, ?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, query, uuid.NewString(), loc.Name, loc.Lat, loc.Lon, loc.Country, loc.State); err != nil {
			return weather.Location{}, fmt.Errorf("insert location: %w", err)
		}
	default:
		return weather.Location{}, err
	}

	if err := tx.Commit(); err != nil {
		return weather.Location{}, err
	}
	return loc, nil
}

// Search matches name, country or state case-insensitively.
func (s *SQLStore) Search(ctx context.Context, text string) ([]weather.Location, error) {
	text = strings.TrimSpace(text)
	result := []weather.Location{}
	if text == "" {
		return result, nil
	}

	pattern := "%" + escapeLike(strings.ToLower(text)) + "%"
	query := s.db.Rebind(`SELECT id, name, lat, lon, country, state FROM locations
		WHERE LOWER(name) LIKE ? ESCAPE '\' OR LOWER(country) LIKE ? ESCAPE '\' OR LOWER(state) LIKE ? ESCAPE '\'
		ORDER BY name`)

	var rows []locationRow
	if err := s.db.SelectContext(ctx, &rows, query, pattern, pattern, pattern); err != nil {
		return nil, fmt.Errorf("search locations: %w", err)
	}
	for _, row := range rows {
		result = append(result, row.Location)
	}
	return result, nil
}

func (s *SQLStore) findRow(ctx context.Context, q sqlx.QueryerContext, lat, lon, tolerance float64) (locationRow, error) {
	if tolerance <= 0 {
		tolerance = weather.ProximityTolerance
	}
	query := s.db.Rebind(`SELECT id, name, lat, lon, country, state FROM locations
		WHERE ABS(lat - ?) < ? AND ABS(lon - ?) < ?
		LIMIT 1`)

	var row locationRow
	if err := sqlx.GetContext(ctx, q, &row, query, lat, tolerance, lon, tolerance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return locationRow{}, ErrNotFound
		}
		return locationRow{}, fmt.Errorf("find location: %w", err)
	}
	return row, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
