package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Record is one stored prediction.
type Record struct {
	ID         int64              `json:"id"`
	Features   map[string]float64 `json:"features"`
	Label      int                `json:"label"`
	Potable    bool               `json:"potable"`
	Confidence float64            `json:"confidence"`
	CreatedAt  time.Time          `json:"created_at"`
}

// History persists successful predictions for later review.
type History struct {
	db     *sql.DB
	driver string
}

// Open connects to the store and creates the predictions table if needed.
func Open(driver, dsn string) (*History, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported history driver %q", driver)
	}

	database, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if driver == DriverSQLite {
		database.SetMaxOpenConns(1)
	}

	h := &History{db: database, driver: driver}
	if err := h.createTables(); err != nil {
		database.Close()
		return nil, fmt.Errorf("create history tables: %w", err)
	}
	return h, nil
}

func (h *History) createTables() error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if h.driver == DriverPostgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	_, err := h.db.Exec(`
    CREATE TABLE IF NOT EXISTS predictions (
        id ` + id + `,
        features TEXT NOT NULL,
        label INTEGER NOT NULL,
        potable BOOLEAN NOT NULL,
        confidence REAL NOT NULL,
        created_at TIMESTAMP NOT NULL
    )`)
	return err
}

// Save stores a record. CreatedAt defaults to now.
func (h *History) Save(ctx context.Context, record Record) error {
	if h == nil || h.db == nil {
		return errors.New("history not initialized")
	}
	features, err := json.Marshal(record.Features)
	if err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	_, err = h.db.ExecContext(ctx, h.rebind(`
        INSERT INTO predictions (features, label, potable, confidence, created_at)
        VALUES (?, ?, ?, ?, ?)`),
		string(features), record.Label, record.Potable, record.Confidence, record.CreatedAt.UTC())
	return err
}

// Recent returns up to limit records, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]Record, error) {
	if h == nil || h.db == nil {
		return nil, errors.New("history not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.QueryContext(ctx, h.rebind(`
        SELECT id, features, label, potable, confidence, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var r Record
		var features string
		if err := rows.Scan(&r.ID, &features, &r.Label, &r.Potable, &r.Confidence, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(features), &r.Features); err != nil {
			return nil, fmt.Errorf("decode features of record %d: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// rebind turns ? placeholders into $n for postgres.
func (h *History) rebind(query string) string {
	if h.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
