package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"gopherai-assistant/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS assistant_interactions (
	id                 TEXT PRIMARY KEY,
	app_id             TEXT NOT NULL,
	user_id            TEXT NOT NULL,
	type               TEXT NOT NULL,
	prompt             TEXT NOT NULL DEFAULT '',
	ai_response        TEXT NOT NULL DEFAULT '',
	function           TEXT NOT NULL DEFAULT '',
	for_interaction_id TEXT NOT NULL DEFAULT '',
	feedback_value     INTEGER,
	timestamp_ms       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interactions_partition_ts
	ON assistant_interactions (app_id, user_id, timestamp_ms DESC);
`

// SQLiteRepository stores records in a local SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Pass ":memory:" for an in-memory database.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory failed: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite failed: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and avoids "database is locked".
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite failed: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set sqlite busy timeout failed: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set sqlite journal mode failed: %w", err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema failed: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, record *model.Record) error {
	var feedback sql.NullInt64
	if record.FeedbackValue != nil {
		feedback.Valid = true
		if *record.FeedbackValue {
			feedback.Int64 = 1
		}
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO assistant_interactions
		(id, app_id, user_id, type, prompt, ai_response, function, for_interaction_id, feedback_value, timestamp_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.AppID, record.UserID, record.Type, record.Prompt, record.AIResponse,
		record.Function, record.ForInteractionID, feedback, record.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create interaction record failed: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListByPartition(ctx context.Context, partition model.Partition, limit int) ([]model.Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT
		id, app_id, user_id, type, prompt, ai_response, function, for_interaction_id, feedback_value, timestamp_ms
		FROM assistant_interactions
		WHERE app_id = ? AND user_id = ?
		ORDER BY timestamp_ms DESC, id DESC
		LIMIT ?`, partition.AppID, partition.UserID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list interaction records failed: %w", err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		var (
			rec      model.Record
			feedback sql.NullInt64
			tsMillis int64
		)
		if err := rows.Scan(&rec.ID, &rec.AppID, &rec.UserID, &rec.Type, &rec.Prompt, &rec.AIResponse,
			&rec.Function, &rec.ForInteractionID, &feedback, &tsMillis); err != nil {
			return nil, fmt.Errorf("scan interaction record failed: %w", err)
		}
		if feedback.Valid {
			value := feedback.Int64 != 0
			rec.FeedbackValue = &value
		}
		rec.Timestamp = time.UnixMilli(tsMillis).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interaction records failed: %w", err)
	}
	return records, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
