package grade

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"shs_lms/backend/internal/grading"
	"shs_lms/backend/internal/shared"
)

// MemoryStore is a mutex-guarded Store used by tests and local runs.
type MemoryStore struct {
	mu        sync.RWMutex
	quarter   map[string]shared.QuarterGradeRecord
	quarterly map[string]shared.QuarterlyGrade
	staged    map[string]shared.StagedBatch
	posted    []shared.PostedGradeRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quarter:   map[string]shared.QuarterGradeRecord{},
		quarterly: map[string]shared.QuarterlyGrade{},
		staged:    map[string]shared.StagedBatch{},
	}
}

func (m *MemoryStore) SaveQuarterGrades(ctx context.Context, records []shared.QuarterGradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.quarter[r.ID] = r
	}
	return nil
}

func (m *MemoryStore) ListQuarterGrades(ctx context.Context, key shared.SectionKey) ([]shared.QuarterGradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []shared.QuarterGradeRecord{}
	for _, r := range m.quarter {
		if r.AcademicYear == key.Period.AcademicYear && r.Quarter == key.Period.Quarter &&
			r.ClassID == key.ClassID && strings.EqualFold(r.Section, key.Section) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentName < out[j].StudentName })
	return out, nil
}

func (m *MemoryStore) SaveQuarterlyGrades(ctx context.Context, grades []shared.QuarterlyGrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range grades {
		m.quarterly[g.ID] = g
	}
	return nil
}

func (m *MemoryStore) GetQuarterlyGrade(ctx context.Context, id string) (*shared.QuarterlyGrade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.quarterly[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (m *MemoryStore) ListQuarterlyGrades(ctx context.Context, academicYear, classID string, quarter grading.Quarter) ([]shared.QuarterlyGrade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []shared.QuarterlyGrade{}
	for _, g := range m.quarterly {
		if g.AcademicYear == academicYear && g.ClassID == classID && g.Quarter == quarter {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *MemoryStore) PutStagedBatch(ctx context.Context, batch shared.StagedBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch.Rows = append([]shared.GradeRow(nil), batch.Rows...)
	m.staged[batch.ID] = batch
	return nil
}

func (m *MemoryStore) GetStagedBatch(ctx context.Context, id string) (*shared.StagedBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.staged[id]
	if !ok {
		return nil, ErrNotFound
	}
	b.Rows = append([]shared.GradeRow(nil), b.Rows...)
	return &b, nil
}

func (m *MemoryStore) DeleteStagedBatch(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.staged[id]; !ok {
		return ErrNotFound
	}
	delete(m.staged, id)
	return nil
}

func (m *MemoryStore) InsertPostedGrades(ctx context.Context, record shared.PostedGradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.posted {
		if p.ID == record.ID || (p.PostingKey == record.PostingKey && p.Sequence == record.Sequence) {
			return fmt.Errorf("posted grade record %s: %w", record.ID, ErrConflict)
		}
	}
	m.posted = append(m.posted, clonePosted(record))
	return nil
}

func (m *MemoryStore) ListPostedGrades(ctx context.Context, postingKey string) ([]shared.PostedGradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []shared.PostedGradeRecord{}
	for _, p := range m.posted {
		if p.PostingKey == postingKey {
			out = append(out, clonePosted(p))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (m *MemoryStore) FindPostedGradesForStudent(ctx context.Context, studentID, classID, section string) ([]shared.PostedGradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []shared.PostedGradeRecord{}
	for _, p := range m.posted {
		if p.ClassID != classID || !strings.EqualFold(p.Section, section) {
			continue
		}
		if _, ok := p.GradeFor(studentID); ok {
			out = append(out, clonePosted(p))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PostedAt.Before(out[j].PostedAt) })
	return out, nil
}

func clonePosted(p shared.PostedGradeRecord) shared.PostedGradeRecord {
	p.Grades = append([]shared.PostedStudentGrade(nil), p.Grades...)
	p.StudentIDs = append([]string(nil), p.StudentIDs...)
	return p
}
