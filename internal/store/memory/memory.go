package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"presence/internal/model"
	"presence/internal/store"
)

// Store is an in-memory implementation used by tests and local dev. A
// single mutex guards all maps; the atomicity this buys matches what the
// Postgres implementation gets from its unique constraints.
type Store struct {
	mu sync.Mutex

	dailySessions map[string]model.DailySession          // dateKey
	classSessions map[[2]string]model.ClassSession       // (classID, dateKey)
	events        map[[2]string]model.AttendanceEvent    // (userID, sessionID)
	classRecords  map[string]model.ClassAttendanceRecord // record ID
	enrollments   map[[2]string]model.Enrollment         // (studentID, classID)
	classes       map[string]model.Class
}

func NewStore() *Store {
	return &Store{
		dailySessions: make(map[string]model.DailySession),
		classSessions: make(map[[2]string]model.ClassSession),
		events:        make(map[[2]string]model.AttendanceEvent),
		classRecords:  make(map[string]model.ClassAttendanceRecord),
		enrollments:   make(map[[2]string]model.Enrollment),
		classes:       make(map[string]model.Class),
	}
}

func (s *Store) GetOrCreateDailySession(_ context.Context, fresh model.DailySession) (model.DailySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.dailySessions[fresh.DateKey]; ok {
		return existing, nil
	}
	if fresh.ID == "" {
		fresh.ID = uuid.NewString()
	}
	if fresh.CreatedAt.IsZero() {
		fresh.CreatedAt = time.Now().UTC()
	}
	s.dailySessions[fresh.DateKey] = fresh
	return fresh, nil
}

func (s *Store) GetDailySession(_ context.Context, dateKey string) (*model.DailySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.dailySessions[dateKey]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sess, nil
}

func (s *Store) GetOrCreateClassSession(_ context.Context, fresh model.ClassSession) (model.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]string{fresh.ClassID, fresh.DateKey}
	if existing, ok := s.classSessions[key]; ok {
		return existing, nil
	}
	if fresh.ID == "" {
		fresh.ID = uuid.NewString()
	}
	if fresh.CreatedAt.IsZero() {
		fresh.CreatedAt = time.Now().UTC()
	}
	s.classSessions[key] = fresh
	return fresh, nil
}

func (s *Store) GetClassSession(_ context.Context, classID, dateKey string) (*model.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.classSessions[[2]string{classID, dateKey}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sess, nil
}

func (s *Store) InsertAttendanceEvent(_ context.Context, evt model.AttendanceEvent) (model.AttendanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]string{evt.UserID, evt.SessionID}
	if _, ok := s.events[key]; ok {
		return model.AttendanceEvent{}, store.ErrConflict
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	s.events[key] = evt
	return evt, nil
}

func (s *Store) GetAttendanceEvent(_ context.Context, userID, sessionID string) (*model.AttendanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evt, ok := s.events[[2]string{userID, sessionID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &evt, nil
}

func (s *Store) ListAttendanceEvents(_ context.Context, userID string, limit, offset int) ([]model.AttendanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.AttendanceEvent
	for _, evt := range s.events {
		if userID != "" && evt.UserID != userID {
			continue
		}
		out = append(out, evt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) FindClassAttendance(_ context.Context, studentID, classID string, from, to time.Time) (*model.ClassAttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.classRecords {
		if rec.StudentID == studentID && rec.ClassID == classID &&
			!rec.Date.Before(from) && rec.Date.Before(to) {
			r := rec
			return &r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) InsertClassAttendance(_ context.Context, rec model.ClassAttendanceRecord) (model.ClassAttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := rec.Date.UTC().Format("2006-01-02")
	for _, existing := range s.classRecords {
		if existing.StudentID == rec.StudentID && existing.ClassID == rec.ClassID &&
			existing.Date.UTC().Format("2006-01-02") == day {
			return model.ClassAttendanceRecord{}, store.ErrConflict
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	s.classRecords[rec.ID] = rec
	return rec, nil
}

func (s *Store) UpdateClassAttendance(_ context.Context, rec model.ClassAttendanceRecord) (model.ClassAttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.classRecords[rec.ID]; !ok {
		return model.ClassAttendanceRecord{}, store.ErrNotFound
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	s.classRecords[rec.ID] = rec
	return rec, nil
}

func (s *Store) ListClassAttendance(_ context.Context, classID string, from, to time.Time) ([]model.ClassAttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.ClassAttendanceRecord
	for _, rec := range s.classRecords {
		if rec.ClassID != classID {
			continue
		}
		if rec.Date.Before(from) || !rec.Date.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (s *Store) FindEnrollment(_ context.Context, studentID, classID string) (*model.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrollments[[2]string{studentID, classID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (s *Store) FindClass(_ context.Context, classID string) (*model.Class, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.classes[classID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) UpsertEnrollment(_ context.Context, e model.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enrollments[[2]string{e.StudentID, e.ClassID}] = e
	return nil
}

func (s *Store) UpsertClass(_ context.Context, c model.Class) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.classes[c.ID] = c
	return nil
}
