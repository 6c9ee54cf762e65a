// Package history keeps a SQLite journal of entity value changes.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/model"
)

// Origin tells who changed an entity.
type Origin string

const (
	OriginProtocol Origin = "protocol"
	OriginAdmin    Origin = "admin"
)

// DefaultLimit caps List when the query sets no limit.
const DefaultLimit = 100

// Record is one journal row.
type Record struct {
	ID        int64           `json:"id"`
	UID       int64           `json:"uid"`
	Name      string          `json:"name"`
	Origin    Origin          `json:"origin"`
	Value     json.RawMessage `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
}

// Query selects journal rows. A zero UID matches every entity.
type Query struct {
	UID   int64
	Limit int
}

// Journal records entity changes.
type Journal struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *slog.Logger
}

// Open opens or creates the journal database at path.
// Use ":memory:" for an in-memory journal.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and writes serial.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{db: db, logger: logger}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid INTEGER NOT NULL,
		name TEXT NOT NULL,
		origin TEXT NOT NULL,
		value_json TEXT,
		changed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_changes_uid ON changes(uid);
	CREATE INDEX IF NOT EXISTS idx_changes_changed_at ON changes(changed_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one change.
func (j *Journal) Record(ctx context.Context, uid int64, name string, origin Origin, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value of %d: %w", uid, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO changes (uid, name, origin, value_json, changed_at)
		VALUES (?, ?, ?, ?, ?)
	`, uid, name, string(origin), string(data), time.Now().UTC())
	return err
}

// RecordEntity appends the current raw value of e.
func (j *Journal) RecordEntity(ctx context.Context, e *model.Entity, origin Origin) error {
	return j.Record(ctx, e.UID(), e.Name(), origin, e.ValueRaw())
}

// OnEntityUpdated journals protocol-origin updates. It implements
// model.Subscriber.
func (j *Journal) OnEntityUpdated(ctx context.Context, e *model.Entity) {
	if err := j.RecordEntity(context.WithoutCancel(ctx), e, OriginProtocol); err != nil {
		j.logger.Warn("journal write failed", "uid", e.UID(), "error", err)
	}
}

// List returns matching rows, newest first.
func (j *Journal) List(ctx context.Context, q Query) ([]Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	var (
		rows *sql.Rows
		err  error
	)
	if q.UID != 0 {
		rows, err = j.db.QueryContext(ctx, `
			SELECT id, uid, name, origin, value_json, changed_at
			FROM changes WHERE uid = ?
			ORDER BY id DESC LIMIT ?
		`, q.UID, limit)
	} else {
		rows, err = j.db.QueryContext(ctx, `
			SELECT id, uid, name, origin, value_json, changed_at
			FROM changes
			ORDER BY id DESC LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var (
			r      Record
			origin string
			value  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.UID, &r.Name, &origin, &value, &r.Timestamp); err != nil {
			return nil, err
		}
		r.Origin = Origin(origin)
		if value.Valid {
			r.Value = json.RawMessage(value.String)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the number of rows.
func (j *Journal) Count(ctx context.Context) (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM changes`).Scan(&n)
	return n, err
}

// Clear deletes every row.
func (j *Journal) Clear(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx, `DELETE FROM changes`)
	return err
}

var _ model.Subscriber = (*Journal)(nil)
