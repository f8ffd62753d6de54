package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"autoenroll/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/autoenroll?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS enrollments (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			member_id TEXT,
			stream_id TEXT NOT NULL,
			tracklet_id TEXT NOT NULL,
			watchlist_ids_json TEXT,
			duplicate BOOLEAN NOT NULL,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_enrollments_ts ON enrollments(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_enrollments_stream ON enrollments(stream_id)`,
		`CREATE TABLE IF NOT EXISTS rejections (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
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

func (s *postgresStore) SaveEnrollment(ctx context.Context, rec model.EnrollmentRecord) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrollments (ts, member_id, stream_id, tracklet_id, watchlist_ids_json, duplicate, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.Timestamp.UTC(),
		rec.MemberID,
		rec.StreamID,
		rec.TrackletID,
		encodeJSON(rec.WatchlistIDs),
		rec.Duplicate,
		rec.Error,
	)
	return err
}

func (s *postgresStore) SaveRejection(ctx context.Context, rej model.Rejection) error {
	if s.db == nil {
		return nil
	}
	ts := rej.Timestamp
	if ts.IsZero() {
		ts = nowUTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rejections (ts, stream_id, tracklet_id, reason) VALUES ($1, $2, $3, $4)`,
		ts.UTC(),
		rej.StreamID,
		rej.TrackletID,
		rej.Reason,
	)
	return err
}
