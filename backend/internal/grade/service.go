package grade

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"shs_lms/backend/internal/grading"
	"shs_lms/backend/internal/shared"
)

// GradeService runs the grading pipeline: computation, staging and posting
type GradeService struct {
	store      Store
	classes    ClassDirectory
	roster     RosterProvider
	activities ActivityProvider
	periods    PeriodProvider

	notifier     Notifier
	metrics      *Metrics
	stagingTTL   time.Duration
	metadataRows int
	now          func() time.Time

	postLocks *keyedMutex
}

// Options tunes a GradeService. Zero values fall back to defaults.
type Options struct {
	StagingTTL   time.Duration
	MetadataRows int
	Notifier     Notifier
	Metrics      *Metrics
	Now          func() time.Time
}

// NewGradeService creates a new GradeService instance
func NewGradeService(store Store, p Providers, opts Options) *GradeService {
	s := &GradeService{
		store:        store,
		classes:      p.Classes,
		roster:       p.Roster,
		activities:   p.Activities,
		periods:      p.Periods,
		notifier:     opts.Notifier,
		metrics:      opts.Metrics,
		stagingTTL:   opts.StagingTTL,
		metadataRows: opts.MetadataRows,
		now:          opts.Now,
		postLocks:    newKeyedMutex(),
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{}
	}
	if s.stagingTTL <= 0 {
		s.stagingTTL = 12 * time.Hour
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ============================================================================
// Request/Response Types
// ============================================================================

// SectionRequest identifies one class section quarter. The period fields
// default to the active academic period when empty.
type SectionRequest struct {
	AcademicYear string `json:"academic_year"`
	Term         string `json:"term" validate:"omitempty,term"`
	Quarter      string `json:"quarter" validate:"omitempty,quarter"`
	ClassID      string `json:"class_id" validate:"required,notblank"`
	Section      string `json:"section" validate:"required,notblank"`
	FacultyID    string `json:"-"`
}

// QuarterGradeInput is one student's component totals and exam score
type QuarterGradeInput struct {
	StudentID           string   `json:"student_id" validate:"required,notblank"`
	WrittenWorksRAW     float64  `json:"written_works_raw" validate:"gte=0"`
	WrittenWorksHPS     float64  `json:"written_works_hps" validate:"gte=0"`
	PerformanceTasksRAW float64  `json:"performance_tasks_raw" validate:"gte=0"`
	PerformanceTasksHPS float64  `json:"performance_tasks_hps" validate:"gte=0"`
	QuarterlyExam       *float64 `json:"quarterly_exam" validate:"omitempty,gte=0,lte=100"`
}

type ComputeResponse struct {
	Period     grading.Period       `json:"period"`
	ClassID    string               `json:"class_id"`
	Section    string               `json:"section"`
	Profile    grading.TrackProfile `json:"profile"`
	TrackLabel string               `json:"track_label"`
	HPS        grading.HPS          `json:"hps"`
	Rows       []shared.GradeRow    `json:"rows"`
}

type SaveQuarterGradesRequest struct {
	SectionRequest
	Grades []QuarterGradeInput `json:"grades" validate:"required,min=1,dive"`
	// Finalize also writes each gradable row to the quarterly grade store
	Finalize bool `json:"finalize"`
}

type SaveQuarterGradesResponse struct {
	Period    grading.Period    `json:"period"`
	Saved     int               `json:"saved"`
	Finalized int               `json:"finalized"`
	Rows      []shared.GradeRow `json:"rows"`
}

type SaveQuarterlyGradeRequest struct {
	AcademicYear string  `json:"academic_year"`
	Term         string  `json:"term" validate:"omitempty,term"`
	Quarter      string  `json:"quarter" validate:"required,quarter"`
	ClassID      string  `json:"class_id" validate:"required,notblank"`
	StudentID    string  `json:"student_id" validate:"required,notblank"`
	FinalGrade   float64 `json:"final_grade" validate:"gte=60,lte=99"`
	FacultyID    string  `json:"-"`
}

type TermGradeRequest struct {
	AcademicYear string `json:"academic_year"`
	Term         string `json:"term" validate:"omitempty,term"`
	ClassID      string `json:"class_id" validate:"required,notblank"`
	StudentID    string `json:"student_id" validate:"required,notblank"`
}

// TermGradeResponse carries both quarterly grades of the term. TermGrade is
// nil unless both are stored.
type TermGradeResponse struct {
	AcademicYear  string             `json:"academic_year"`
	Term          grading.Term       `json:"term"`
	ClassID       string             `json:"class_id"`
	StudentID     string             `json:"student_id"`
	FirstQuarter  *float64           `json:"first_quarter"`
	SecondQuarter *float64           `json:"second_quarter"`
	TermGrade     *grading.TermGrade `json:"term_grade"`
}

// ============================================================================
// Period & Section Resolution
// ============================================================================

// ResolvePeriod normalizes the period of a request. Missing academic year or
// quarter are taken from the active period; an explicit term must contain
// the quarter.
func (s *GradeService) ResolvePeriod(ctx context.Context, academicYear, term, quarter string) (grading.Period, error) {
	academicYear = strings.TrimSpace(academicYear)

	var q grading.Quarter
	if quarter != "" {
		parsed, err := grading.ParseQuarter(quarter)
		if err != nil {
			return grading.Period{}, status.Error(codes.InvalidArgument, err.Error())
		}
		q = parsed
	}

	if academicYear == "" || q == "" {
		active, err := s.activePeriod(ctx)
		if err != nil {
			return grading.Period{}, err
		}
		if academicYear == "" {
			academicYear = active.AcademicYear
		}
		if q == "" {
			q = active.Quarter
		}
	}

	if term != "" {
		t, err := grading.ParseTerm(term)
		if err != nil {
			return grading.Period{}, status.Error(codes.InvalidArgument, err.Error())
		}
		if t != q.Term() {
			return grading.Period{}, status.Errorf(codes.InvalidArgument, "quarter %s does not belong to %s", q, t)
		}
	}

	return grading.Period{AcademicYear: academicYear, Term: q.Term(), Quarter: q}, nil
}

func (s *GradeService) activePeriod(ctx context.Context) (grading.Period, error) {
	if s.periods == nil {
		return grading.Period{}, status.Error(codes.FailedPrecondition, "academic_year and quarter are required")
	}
	p, err := s.periods.ActivePeriod(ctx)
	if err != nil {
		if isNotFound(err) {
			return grading.Period{}, status.Error(codes.FailedPrecondition, "no active academic period; academic_year and quarter are required")
		}
		return grading.Period{}, s.internal("failed to load active academic period", err)
	}
	return p, nil
}

// sectionContext is a resolved class section quarter
type sectionContext struct {
	key     shared.SectionKey
	class   *shared.ClassInfo
	profile grading.TrackProfile
}

func (c sectionContext) postingKey(facultyID string) shared.PostingKey {
	return shared.PostingKey{SectionKey: c.key, FacultyID: facultyID}
}

// resolveSection validates req, resolves its period and class, and checks
// that the requesting faculty member owns the class
func (s *GradeService) resolveSection(ctx context.Context, req SectionRequest) (sectionContext, error) {
	if errs := shared.ValidateStruct(req); errs != nil {
		return sectionContext{}, invalidArgument(errs)
	}

	period, err := s.ResolvePeriod(ctx, req.AcademicYear, req.Term, req.Quarter)
	if err != nil {
		return sectionContext{}, err
	}

	class, err := s.loadClass(ctx, req.ClassID, req.FacultyID)
	if err != nil {
		return sectionContext{}, err
	}

	section, ok := class.MatchSection(req.Section)
	if !ok {
		return sectionContext{}, status.Errorf(codes.NotFound, "section %s not found in class %s", req.Section, class.Code)
	}

	return sectionContext{
		key:     shared.SectionKey{Period: period, ClassID: class.ID, Section: section},
		class:   class,
		profile: grading.ResolveTrackProfile(class.SubjectName),
	}, nil
}

func (s *GradeService) loadClass(ctx context.Context, classID, facultyID string) (*shared.ClassInfo, error) {
	class, err := s.classes.GetClass(ctx, classID)
	if err != nil {
		if isNotFound(err) {
			return nil, status.Errorf(codes.NotFound, "class %s not found", classID)
		}
		return nil, s.internal("failed to load class", err)
	}
	if facultyID != "" && class.FacultyID != "" && class.FacultyID != facultyID {
		return nil, status.Error(codes.PermissionDenied, "faculty is not assigned to this class")
	}
	return class, nil
}

func (s *GradeService) loadRoster(ctx context.Context, key shared.SectionKey) ([]shared.RosterEntry, error) {
	roster, err := s.roster.ListRoster(ctx, key.ClassID, key.Section)
	if err != nil {
		return nil, s.internal("failed to load class roster", err)
	}
	return roster, nil
}

// ============================================================================
// Score Aggregation
// ============================================================================

// ComputeQuarterGrades aggregates activity scores of a class section into
// grade rows. Exam scores come from saved quarter grade records.
func (s *GradeService) ComputeQuarterGrades(ctx context.Context, req SectionRequest) (*ComputeResponse, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sc, err := s.resolveSection(queryCtx, req)
	if err != nil {
		return nil, err
	}
	return s.computeSection(queryCtx, sc)
}

func (s *GradeService) computeSection(ctx context.Context, sc sectionContext) (*ComputeResponse, error) {
	var (
		roster     []shared.RosterEntry
		activities []grading.Activity
		scores     []grading.ActivityScore
		saved      []shared.QuarterGradeRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		roster, err = s.loadRoster(gctx, sc.key)
		return err
	})
	g.Go(func() error {
		var err error
		activities, err = s.activities.ListActivities(gctx, sc.key.ClassID, sc.key.Period.Quarter)
		if err != nil {
			return s.internal("failed to load activities", err)
		}
		ids := make([]string, 0, len(activities))
		for _, a := range activities {
			ids = append(ids, a.ID)
		}
		scores, err = s.activities.ListScores(gctx, sc.key.ClassID, ids)
		if err != nil {
			return s.internal("failed to load activity scores", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		saved, err = s.store.ListQuarterGrades(gctx, sc.key)
		if err != nil {
			return s.internal("failed to load saved quarter grades", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	exams := make(map[string]*float64, len(saved))
	for _, r := range saved {
		exams[r.StudentID] = r.QuarterlyExam
	}

	ids := make([]string, 0, len(roster))
	for _, e := range roster {
		ids = append(ids, e.StudentID)
	}

	breakdowns, hps := grading.Aggregate(grading.AggregateInput{
		StudentIDs: ids,
		Activities: activities,
		Scores:     scores,
		Quarter:    sc.key.Period.Quarter,
		AsOf:       s.now(),
		Profile:    sc.profile,
	})

	rows := make([]shared.GradeRow, 0, len(breakdowns))
	for i, b := range breakdowns {
		rows = append(rows, shared.NewGradeRow(roster[i].StudentName, b, exams[b.StudentID], sc.profile))
	}

	return &ComputeResponse{
		Period:     sc.key.Period,
		ClassID:    sc.key.ClassID,
		Section:    sc.key.Section,
		Profile:    sc.profile,
		TrackLabel: sc.profile.Label(),
		HPS:        hps,
		Rows:       rows,
	}, nil
}

// ============================================================================
// Saving Grades
// ============================================================================

// SaveQuarterGrades computes and persists quarter grade records for a batch
// of students. The batch is rejected whole if any student is not enrolled.
func (s *GradeService) SaveQuarterGrades(ctx context.Context, req SaveQuarterGradesRequest) (*SaveQuarterGradesResponse, error) {
	if errs := shared.ValidateStruct(req); errs != nil {
		return nil, invalidArgument(errs)
	}

	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sc, err := s.resolveSection(queryCtx, req.SectionRequest)
	if err != nil {
		return nil, err
	}
	roster, err := s.loadRoster(queryCtx, sc.key)
	if err != nil {
		return nil, err
	}

	rows, err := buildRows(req.Grades, roster, sc.profile)
	if err != nil {
		return nil, err
	}

	now := s.now()
	records := make([]shared.QuarterGradeRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, shared.QuarterGradeRecord{
			ID:           shared.QuarterGradeID(sc.key, row.StudentID),
			AcademicYear: sc.key.Period.AcademicYear,
			Term:         sc.key.Period.Term,
			Quarter:      sc.key.Period.Quarter,
			ClassID:      sc.key.ClassID,
			Section:      sc.key.Section,
			Track:        sc.profile.Label(),
			GradeRow:     row,
			SavedBy:      req.FacultyID,
			SavedAt:      now,
		})
	}
	// Quarterly grades are written first. Both writes are upserts, so a
	// retry of the same request repairs a partial save.
	finalized := 0
	if req.Finalize {
		var grades []shared.QuarterlyGrade
		for _, row := range rows {
			if row.Gradable() {
				grades = append(grades, newQuarterlyGrade(sc.key.Period, sc.key.ClassID, row.StudentID, float64(row.FinalGrade), req.FacultyID, now))
			}
		}
		if err := s.store.SaveQuarterlyGrades(queryCtx, grades); err != nil {
			return nil, s.internal("failed to save quarterly grades", err)
		}
		finalized = len(grades)
	}

	if err := s.store.SaveQuarterGrades(queryCtx, records); err != nil {
		return nil, s.internal("failed to save quarter grades", err)
	}

	log.Printf("INFO: Saved %d quarter grades for class %s section %s %s", len(records), sc.key.ClassID, sc.key.Section, sc.key.Period.Quarter)

	return &SaveQuarterGradesResponse{Period: sc.key.Period, Saved: len(records), Finalized: finalized, Rows: rows}, nil
}

// SaveQuarterlyGrade stores one student's finalized transmuted grade for a
// quarter
func (s *GradeService) SaveQuarterlyGrade(ctx context.Context, req SaveQuarterlyGradeRequest) (*shared.QuarterlyGrade, error) {
	if errs := shared.ValidateStruct(req); errs != nil {
		return nil, invalidArgument(errs)
	}

	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	period, err := s.ResolvePeriod(queryCtx, req.AcademicYear, req.Term, req.Quarter)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadClass(queryCtx, req.ClassID, req.FacultyID); err != nil {
		return nil, err
	}

	g := newQuarterlyGrade(period, req.ClassID, strings.TrimSpace(req.StudentID), grading.Round2(req.FinalGrade), req.FacultyID, s.now())
	if err := s.store.SaveQuarterlyGrades(queryCtx, []shared.QuarterlyGrade{g}); err != nil {
		return nil, s.internal("failed to save quarterly grade", err)
	}
	return &g, nil
}

// GetTermGrade aggregates the two quarterly grades of a term for a student
func (s *GradeService) GetTermGrade(ctx context.Context, req TermGradeRequest) (*TermGradeResponse, error) {
	if errs := shared.ValidateStruct(req); errs != nil {
		return nil, invalidArgument(errs)
	}

	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	academicYear := strings.TrimSpace(req.AcademicYear)
	var term grading.Term
	if req.Term != "" {
		t, err := grading.ParseTerm(req.Term)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		term = t
	}
	if academicYear == "" || term == "" {
		active, err := s.activePeriod(queryCtx)
		if err != nil {
			return nil, err
		}
		if academicYear == "" {
			academicYear = active.AcademicYear
		}
		if term == "" {
			term = active.Term
		}
	}

	first, second := term.Quarters()
	resp := &TermGradeResponse{AcademicYear: academicYear, Term: term, ClassID: req.ClassID, StudentID: req.StudentID}

	var err error
	if resp.FirstQuarter, err = s.quarterlyValue(queryCtx, academicYear, first, req.ClassID, req.StudentID); err != nil {
		return nil, err
	}
	if resp.SecondQuarter, err = s.quarterlyValue(queryCtx, academicYear, second, req.ClassID, req.StudentID); err != nil {
		return nil, err
	}
	resp.TermGrade = grading.ComputeTermGrade(resp.FirstQuarter, resp.SecondQuarter)
	return resp, nil
}

func (s *GradeService) quarterlyValue(ctx context.Context, academicYear string, q grading.Quarter, classID, studentID string) (*float64, error) {
	g, err := s.store.GetQuarterlyGrade(ctx, shared.QuarterlyGradeID(academicYear, q, classID, studentID))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, s.internal("failed to load quarterly grade", err)
	}
	if g.FinalGrade <= 0 {
		return nil, nil
	}
	v := g.FinalGrade
	return &v, nil
}

// ============================================================================
// Helper Functions
// ============================================================================

// buildRows computes grade rows for inputs. Every student must be on the
// roster and appear once.
func buildRows(inputs []QuarterGradeInput, roster []shared.RosterEntry, profile grading.TrackProfile) ([]shared.GradeRow, error) {
	enrolled := make(map[string]shared.RosterEntry, len(roster))
	for _, e := range roster {
		enrolled[rosterKey(e.StudentID)] = e
	}

	var unknown, duplicate []string
	seen := make(map[string]bool, len(inputs))
	rows := make([]shared.GradeRow, 0, len(inputs))
	for _, in := range inputs {
		id := strings.TrimSpace(in.StudentID)
		entry, ok := enrolled[rosterKey(id)]
		switch {
		case !ok:
			unknown = append(unknown, id)
			continue
		case seen[entry.StudentID]:
			duplicate = append(duplicate, id)
			continue
		}
		seen[entry.StudentID] = true
		rows = append(rows, computeRow(entry.StudentID, entry.StudentName, in.WrittenWorksRAW, in.WrittenWorksHPS, in.PerformanceTasksRAW, in.PerformanceTasksHPS, in.QuarterlyExam, profile))
	}

	if len(unknown) > 0 || len(duplicate) > 0 {
		var parts []string
		if len(unknown) > 0 {
			parts = append(parts, "students not enrolled in this section: "+strings.Join(unknown, ", "))
		}
		if len(duplicate) > 0 {
			parts = append(parts, "students listed more than once: "+strings.Join(duplicate, ", "))
		}
		return nil, status.Error(codes.InvalidArgument, strings.Join(parts, "; "))
	}
	return rows, nil
}

// rosterKey matches student ids the way sheet validation does
func rosterKey(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func computeRow(studentID, name string, wwRAW, wwHPS, ptRAW, ptHPS float64, exam *float64, profile grading.TrackProfile) shared.GradeRow {
	b := grading.NewBreakdown(studentID, wwRAW, wwHPS, ptRAW, ptHPS, profile)
	return shared.NewGradeRow(name, b, exam, profile)
}

func newQuarterlyGrade(p grading.Period, classID, studentID string, finalGrade float64, savedBy string, at time.Time) shared.QuarterlyGrade {
	return shared.QuarterlyGrade{
		ID:           shared.QuarterlyGradeID(p.AcademicYear, p.Quarter, classID, studentID),
		AcademicYear: p.AcademicYear,
		Term:         p.Quarter.Term(),
		Quarter:      p.Quarter,
		ClassID:      classID,
		StudentID:    studentID,
		FinalGrade:   finalGrade,
		SavedBy:      savedBy,
		SavedAt:      at,
	}
}

func invalidArgument(fields map[string]string) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fields[k])
	}
	return status.Error(codes.InvalidArgument, strings.Join(parts, "; "))
}

func (s *GradeService) internal(msg string, err error) error {
	log.Printf("ERROR: %s: %v", msg, err)
	return status.Error(codes.Internal, msg)
}

func float64Ptr(v float64) *float64 { return &v }
