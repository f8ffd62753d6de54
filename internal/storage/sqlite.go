package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"autoenroll/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:autoenroll.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS enrollments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			member_id TEXT,
			stream_id TEXT NOT NULL,
			tracklet_id TEXT NOT NULL,
			watchlist_ids_json TEXT,
			duplicate INTEGER NOT NULL,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_enrollments_ts ON enrollments(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_enrollments_stream ON enrollments(stream_id)`,
		`CREATE TABLE IF NOT EXISTS rejections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			stream_id TEXT NOT NULL,
			tracklet_id TEXT NOT NULL,
			reason TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rejections_stream ON rejections(stream_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveEnrollment(ctx context.Context, rec model.EnrollmentRecord) error {
	if s.db == nil {
		return nil
	}
	duplicate := 0
	if rec.Duplicate {
		duplicate = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrollments (ts, member_id, stream_id, tracklet_id, watchlist_ids_json, duplicate, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC(),
		rec.MemberID,
		rec.StreamID,
		rec.TrackletID,
		encodeJSON(rec.WatchlistIDs),
		duplicate,
		rec.Error,
	)
	return err
}

func (s *sqliteStore) SaveRejection(ctx context.Context, rej model.Rejection) error {
	if s.db == nil {
		return nil
	}
	ts := rej.Timestamp
	if ts.IsZero() {
		ts = nowUTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rejections (ts, stream_id, tracklet_id, reason) VALUES (?, ?, ?, ?)`,
		ts.UTC(),
		rej.StreamID,
		rej.TrackletID,
		rej.Reason,
	)
	return err
}
