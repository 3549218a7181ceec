package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"presence/internal/model"
	"presence/internal/store"
)

// GetOrCreateDailySession inserts the fresh row unless one already exists
// for the date key, then reads back whichever row won. The conditional
// insert is the single atomic operation resolving the first-access-of-day
// race; concurrent callers all converge on one row.
func (s *Store) GetOrCreateDailySession(ctx context.Context, fresh model.DailySession) (model.DailySession, error) {
	if fresh.ID == "" {
		fresh.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_sessions (id, date_key, secret, session_token, code)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (date_key) DO NOTHING
	`, fresh.ID, fresh.DateKey, fresh.Secret, fresh.SessionToken, fresh.Code)
	if err != nil {
		return model.DailySession{}, mapPgErr(err)
	}

	got, err := s.GetDailySession(ctx, fresh.DateKey)
	if err != nil {
		return model.DailySession{}, err
	}
	return *got, nil
}

func (s *Store) GetDailySession(ctx context.Context, dateKey string) (*model.DailySession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, date_key, secret, session_token, code, created_at
		FROM daily_sessions WHERE date_key = $1
	`, dateKey)
	var out model.DailySession
	if err := row.Scan(&out.ID, &out.DateKey, &out.Secret, &out.SessionToken, &out.Code, &out.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapPgErr(err)
	}
	return &out, nil
}

// GetOrCreateClassSession is the (class, day)-scoped variant of
// GetOrCreateDailySession.
func (s *Store) GetOrCreateClassSession(ctx context.Context, fresh model.ClassSession) (model.ClassSession, error) {
	if fresh.ID == "" {
		fresh.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO class_sessions (id, class_id, date_key, pin, barcode, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (class_id, date_key) DO NOTHING
	`, fresh.ID, fresh.ClassID, fresh.DateKey, fresh.PIN, fresh.Barcode, fresh.ExpiresAt)
	if err != nil {
		return model.ClassSession{}, mapPgErr(err)
	}

	got, err := s.GetClassSession(ctx, fresh.ClassID, fresh.DateKey)
	if err != nil {
		return model.ClassSession{}, err
	}
	return *got, nil
}

func (s *Store) GetClassSession(ctx context.Context, classID, dateKey string) (*model.ClassSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, class_id, date_key, pin, barcode, expires_at, created_at
		FROM class_sessions WHERE class_id = $1 AND date_key = $2
	`, classID, dateKey)
	var out model.ClassSession
	if err := row.Scan(&out.ID, &out.ClassID, &out.DateKey, &out.PIN, &out.Barcode, &out.ExpiresAt, &out.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapPgErr(err)
	}
	return &out, nil
}
