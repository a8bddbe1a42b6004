package grade

import (
	"context"
	"errors"

	"shs_lms/backend/internal/grading"
	"shs_lms/backend/internal/shared"
)

var (
	// ErrNotFound is returned by stores and providers when a record is missing
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert collides with an existing record
	ErrConflict = errors.New("conflict")
)

// Store persists the records owned by the grading pipeline. Posted grade
// snapshots are insert-only: no method updates or deletes one.
type Store interface {
	// Quarter grade records (upsert per student)
	SaveQuarterGrades(ctx context.Context, records []shared.QuarterGradeRecord) error
	ListQuarterGrades(ctx context.Context, key shared.SectionKey) ([]shared.QuarterGradeRecord, error)

	// Quarterly grade store (upsert per student and quarter)
	SaveQuarterlyGrades(ctx context.Context, grades []shared.QuarterlyGrade) error
	GetQuarterlyGrade(ctx context.Context, id string) (*shared.QuarterlyGrade, error)
	ListQuarterlyGrades(ctx context.Context, academicYear, classID string, quarter grading.Quarter) ([]shared.QuarterlyGrade, error)

	// Staged batches (replaced wholesale per posting key)
	PutStagedBatch(ctx context.Context, batch shared.StagedBatch) error
	GetStagedBatch(ctx context.Context, id string) (*shared.StagedBatch, error)
	DeleteStagedBatch(ctx context.Context, id string) error

	// Posted grade snapshots
	InsertPostedGrades(ctx context.Context, record shared.PostedGradeRecord) error
	ListPostedGrades(ctx context.Context, postingKey string) ([]shared.PostedGradeRecord, error)
	FindPostedGradesForStudent(ctx context.Context, studentID, classID, section string) ([]shared.PostedGradeRecord, error)
}
