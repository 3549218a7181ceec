package postgres

import (
	"context"
	"database/sql"
	"errors"

	"presence/internal/model"
	"presence/internal/store"
)

func (s *Store) FindEnrollment(ctx context.Context, studentID, classID string) (*model.Enrollment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT student_id, class_id, status
		FROM enrollments WHERE student_id = $1 AND class_id = $2
	`, studentID, classID)
	var e model.Enrollment
	if err := row.Scan(&e.StudentID, &e.ClassID, &e.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapPgErr(err)
	}
	return &e, nil
}

func (s *Store) FindClass(ctx context.Context, classID string) (*model.Class, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, status FROM classes WHERE id = $1
	`, classID)
	var c model.Class
	if err := row.Scan(&c.ID, &c.Name, &c.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, mapPgErr(err)
	}
	return &c, nil
}

func (s *Store) UpsertEnrollment(ctx context.Context, e model.Enrollment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrollments (student_id, class_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, class_id) DO UPDATE SET status = EXCLUDED.status
	`, e.StudentID, e.ClassID, e.Status)
	return mapPgErr(err)
}

func (s *Store) UpsertClass(ctx context.Context, c model.Class) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO classes (id, name, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status
	`, c.ID, c.Name, c.Status)
	return mapPgErr(err)
}
