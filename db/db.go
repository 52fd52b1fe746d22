package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/docutag/sentimint/models"
)

// ErrNotFound is returned when no stored result matches the lookup
var ErrNotFound = errors.New("no result found")

// DB wraps the database connection and provides result history access
type DB struct {
	conn *sql.DB
}

// Config contains database configuration
type Config struct {
	DSN string // PostgreSQL connection string
}

// New opens the database and applies pending migrations
func New(config Config) (*DB, error) {
	db, err := Open(config)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db.conn); err != nil {
		db.conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Open connects to the database without touching the schema
func Open(config Config) (*DB, error) {
	conn, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying database connection for metrics collection
func (db *DB) DB() *sql.DB {
	return db.conn
}

// EntityKey normalizes an entity name for lookups
func EntityKey(entity string) string {
	return strings.ToLower(strings.Join(strings.Fields(entity), " "))
}

// SaveResult stores a sentiment result, replacing any result with the same ID
func (db *DB) SaveResult(result *models.SentimentResult) error {
	jsonData, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		INSERT INTO sentimint_results (id, entity, entity_key, score, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT(id) DO UPDATE SET
			entity = excluded.entity,
			entity_key = excluded.entity_key,
			score = excluded.score,
			data = excluded.data
	`

	_, err = db.conn.Exec(
		query,
		result.ID,
		result.Entity,
		EntityKey(result.Entity),
		result.Score,
		string(jsonData),
		result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	return nil
}

// GetByID retrieves a result by ID
func (db *DB) GetByID(id string) (*models.SentimentResult, error) {
	return db.queryOne("SELECT data FROM sentimint_results WHERE id = $1", id)
}

// LatestForEntity returns the newest result for entity created after since
func (db *DB) LatestForEntity(entity string, since time.Time) (*models.SentimentResult, error) {
	query := `
		SELECT data FROM sentimint_results
		WHERE entity_key = $1 AND created_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return db.queryOne(query, EntityKey(entity), since)
}

func (db *DB) queryOne(query string, args ...interface{}) (*models.SentimentResult, error) {
	var jsonData string
	err := db.conn.QueryRow(query, args...).Scan(&jsonData)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query result: %w", err)
	}

	var result models.SentimentResult
	if err := json.Unmarshal([]byte(jsonData), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return &result, nil
}

// DeleteByID deletes a result by ID
func (db *DB) DeleteByID(id string) error {
	result, err := db.conn.Exec("DELETE FROM sentimint_results WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w with id: %s", ErrNotFound, id)
	}

	return nil
}

// List returns stored results, newest first
func (db *DB) List(limit, offset int) ([]*models.SentimentResult, error) {
	query := `
		SELECT data FROM sentimint_results
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := db.conn.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	results := []*models.SentimentResult{}
	for rows.Next() {
		var jsonData string
		if err := rows.Scan(&jsonData); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		var result models.SentimentResult
		if err := json.Unmarshal([]byte(jsonData), &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}

		results = append(results, &result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// Count returns the number of stored results
func (db *DB) Count() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM sentimint_results").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return count, nil
}
