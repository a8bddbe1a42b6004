package grade

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"shs_lms/backend/internal/grading"
	"shs_lms/backend/internal/shared"
)

// PostRequest posts the grades of a class section quarter. Confirm must be
// set to post again once a snapshot exists.
type PostRequest struct {
	SectionRequest
	Confirm bool `json:"confirm"`
}

// PostResponse reports either the already-posted state (Posted is nil) or
// the snapshot just created
type PostResponse struct {
	AlreadyPosted bool                      `json:"already_posted"`
	PriorPostings int                       `json:"prior_postings"`
	LastPostedAt  *time.Time                `json:"last_posted_at,omitempty"`
	Posted        *shared.PostedGradeRecord `json:"posted,omitempty"`
}

type StudentGradesRequest struct {
	StudentID string `json:"student_id" validate:"required,notblank"`
	ClassID   string `json:"class_id" validate:"required,notblank"`
	Section   string `json:"section" validate:"required,notblank"`
}

// ============================================================================
// Posting Workflow
// ============================================================================

// PostQuarterlyGrades creates a posted grade snapshot from the staged batch
// of the caller, or from the saved quarter grades when nothing is staged.
// A prior snapshot for the same posting key blocks the post unless
// req.Confirm is set; snapshots are only ever added.
func (s *GradeService) PostQuarterlyGrades(ctx context.Context, req PostRequest) (*PostResponse, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sc, err := s.resolveSection(queryCtx, req.SectionRequest)
	if err != nil {
		return nil, err
	}
	key := sc.postingKey(req.FacultyID)

	unlock := s.postLocks.Lock(key.String())
	defer unlock()

	prior, err := s.store.ListPostedGrades(queryCtx, key.String())
	if err != nil {
		return nil, s.internal("failed to load posted grades", err)
	}

	resp := &PostResponse{AlreadyPosted: len(prior) > 0, PriorPostings: len(prior)}
	if len(prior) > 0 {
		last := prior[len(prior)-1].PostedAt
		resp.LastPostedAt = &last
		if !req.Confirm {
			s.metrics.ObservePosting(PostingBlocked)
			return resp, nil
		}
	}

	rows, err := s.postingRows(queryCtx, sc, key)
	if err != nil {
		return nil, err
	}

	partners, err := s.store.ListQuarterlyGrades(queryCtx, sc.key.Period.AcademicYear, sc.key.ClassID, sc.key.Period.Quarter.Partner())
	if err != nil {
		return nil, s.internal("failed to load quarterly grades", err)
	}
	partnerGrade := make(map[string]float64, len(partners))
	for _, g := range partners {
		if g.FinalGrade > 0 {
			partnerGrade[g.StudentID] = g.FinalGrade
		}
	}

	rec := shared.PostedGradeRecord{
		ID:           uuid.NewString(),
		PostingKey:   key.String(),
		Sequence:     len(prior) + 1,
		AcademicYear: sc.key.Period.AcademicYear,
		Term:         sc.key.Period.Term,
		Quarter:      sc.key.Period.Quarter,
		ClassID:      sc.key.ClassID,
		ClassCode:    sc.class.Code,
		SubjectName:  sc.class.SubjectName,
		Section:      sc.key.Section,
		FacultyID:    req.FacultyID,
		Grades:       make([]shared.PostedStudentGrade, 0, len(rows)),
		StudentIDs:   make([]string, 0, len(rows)),
		PostedAt:     s.now(),
	}
	for _, row := range rows {
		rec.Grades = append(rec.Grades, postedGrade(row, partnerGrade))
		rec.StudentIDs = append(rec.StudentIDs, row.StudentID)
	}

	if err := s.store.InsertPostedGrades(queryCtx, rec); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, status.Error(codes.Aborted, "grades for this section were posted concurrently; reload and confirm again")
		}
		return nil, s.internal("failed to post grades", err)
	}

	if rec.Sequence > 1 {
		s.metrics.ObservePosting(PostingRepost)
	} else {
		s.metrics.ObservePosting(PostingFirst)
	}
	for _, g := range rec.Grades {
		s.metrics.ObservePostedGrade(g.QuarterlyGrade)
	}

	log.Printf("INFO: Posted %d grades for class %s section %s %s (sequence %d)", len(rec.Grades), rec.ClassID, rec.Section, rec.Quarter, rec.Sequence)

	if err := s.notifier.NotifyPosted(queryCtx, NewPostedEvent(rec)); err != nil {
		log.Printf("WARN: Failed to notify students of posting %s: %v", rec.ID, err)
	}

	resp.Posted = &rec
	return resp, nil
}

// postingRows picks the rows to post: the live staged batch, else the saved
// quarter grade records
func (s *GradeService) postingRows(ctx context.Context, sc sectionContext, key shared.PostingKey) ([]shared.GradeRow, error) {
	batch, err := s.loadStaged(ctx, key.String())
	if err != nil {
		return nil, err
	}
	if batch != nil {
		if len(batch.Rows) == 0 {
			return nil, status.Error(codes.FailedPrecondition, "staged batch has no rows; discard it or stage grades first")
		}
		return batch.Rows, nil
	}

	saved, err := s.store.ListQuarterGrades(ctx, sc.key)
	if err != nil {
		return nil, s.internal("failed to load saved quarter grades", err)
	}
	if len(saved) == 0 {
		return nil, status.Error(codes.FailedPrecondition, "no staged or saved grades to post for this section")
	}
	rows := make([]shared.GradeRow, 0, len(saved))
	for _, r := range saved {
		rows = append(rows, r.GradeRow)
	}
	return rows, nil
}

// postedGrade carries the term grade when the partner quarter is finalized
func postedGrade(row shared.GradeRow, partnerGrade map[string]float64) shared.PostedStudentGrade {
	g := shared.PostedStudentGrade{
		StudentID:      row.StudentID,
		StudentName:    row.StudentName,
		QuarterlyGrade: row.FinalGrade,
	}
	if row.FinalGrade <= 0 {
		return g
	}
	partner, ok := partnerGrade[row.StudentID]
	if !ok {
		return g
	}
	if tg := grading.ComputeTermGrade(float64Ptr(float64(row.FinalGrade)), &partner); tg != nil {
		g.TermFinalGrade = float64Ptr(tg.Grade)
		g.Remarks = tg.Remarks
	}
	return g
}

// ListPostings returns every snapshot of the caller's posting key, oldest
// first
func (s *GradeService) ListPostings(ctx context.Context, req SectionRequest) ([]shared.PostedGradeRecord, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sc, err := s.resolveSection(queryCtx, req)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListPostedGrades(queryCtx, sc.postingKey(req.FacultyID).String())
	if err != nil {
		return nil, s.internal("failed to load posted grades", err)
	}
	return records, nil
}

// LoadPostedGradesForStudent returns every snapshot of a class section that
// contains the student, reduced to that student's entry
func (s *GradeService) LoadPostedGradesForStudent(ctx context.Context, req StudentGradesRequest) ([]shared.StudentPostedGrade, error) {
	if errs := shared.ValidateStruct(req); errs != nil {
		return nil, invalidArgument(errs)
	}

	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	section := strings.TrimSpace(req.Section)
	if class, err := s.loadClass(queryCtx, req.ClassID, ""); err == nil {
		if canonical, ok := class.MatchSection(section); ok {
			section = canonical
		}
	} else if status.Code(err) != codes.NotFound {
		return nil, err
	}

	records, err := s.store.FindPostedGradesForStudent(queryCtx, req.StudentID, req.ClassID, section)
	if err != nil {
		return nil, s.internal("failed to load posted grades", err)
	}

	out := make([]shared.StudentPostedGrade, 0, len(records))
	for i := range records {
		g, ok := records[i].GradeFor(req.StudentID)
		if !ok {
			continue
		}
		out = append(out, shared.StudentPostedGrade{
			SnapshotID:     records[i].ID,
			Quarter:        records[i].Quarter,
			QuarterlyGrade: g.QuarterlyGrade,
			TermFinalGrade: g.TermFinalGrade,
			Remarks:        g.Remarks,
			PostedAt:       records[i].PostedAt,
		})
	}
	return out, nil
}

// ============================================================================
// Keyed Mutex
// ============================================================================

// keyedMutex serializes work per key. Entries are dropped once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free and returns its unlock function
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
