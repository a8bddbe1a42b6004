// ============================================================================
// backend/internal/shared/models.go
// Grading records and the LMS documents the pipeline reads
// ============================================================================

package shared

import (
	"fmt"
	"strings"
	"time"

	"shs_lms/backend/internal/grading"
)

// ============================================================================
// LMS Collaborator Models (read-only)
// ============================================================================

// ClassInfo is a class offering as stored by the class management module
type ClassInfo struct {
	ID          string   `bson:"_id" json:"id"`
	Code        string   `bson:"code" json:"code"`
	SubjectName string   `bson:"subject_name" json:"subject_name"`
	Sections    []string `bson:"sections" json:"sections"`
	FacultyID   string   `bson:"faculty_id" json:"faculty_id"`
}

// MatchSection returns the class's own spelling of section, compared
// case-insensitively. Classes without a section list accept any section.
func (c *ClassInfo) MatchSection(section string) (string, bool) {
	section = strings.TrimSpace(section)
	if len(c.Sections) == 0 {
		return section, section != ""
	}
	for _, s := range c.Sections {
		if strings.EqualFold(strings.TrimSpace(s), section) {
			return s, true
		}
	}
	return "", false
}

// RosterEntry is one student enrolled in a class section
type RosterEntry struct {
	ClassID     string `bson:"class_id" json:"class_id"`
	Section     string `bson:"section" json:"section"`
	StudentID   string `bson:"student_id" json:"student_id"`
	StudentName string `bson:"student_name" json:"student_name"`
}

// AcademicPeriod is the active school period published by the LMS
type AcademicPeriod struct {
	ID           string `bson:"_id" json:"id"`
	AcademicYear string `bson:"academic_year" json:"academic_year"`
	Term         string `bson:"term" json:"term"`       // e.g. "1st Semester"
	Quarter      string `bson:"quarter" json:"quarter"` // raw, e.g. "Quarter 1"
	IsActive     bool   `bson:"is_active" json:"is_active"`
}

// ============================================================================
// Record Keys
// ============================================================================

// SectionKey identifies the grades of one class section for one quarter
type SectionKey struct {
	Period  grading.Period `json:"period"`
	ClassID string         `json:"class_id"`
	Section string         `json:"section"`
}

// String renders the key as a stable document id fragment
func (k SectionKey) String() string {
	return strings.Join([]string{
		k.Period.AcademicYear,
		string(k.Period.Quarter),
		k.ClassID,
		strings.ToUpper(strings.TrimSpace(k.Section)),
	}, "|")
}

// PostingKey identifies a posting stream: one faculty member posting one
// class section quarter. Staged batches and snapshots are keyed by it.
type PostingKey struct {
	SectionKey
	FacultyID string `json:"faculty_id"`
}

// String renders the key as a stable document id fragment
func (k PostingKey) String() string {
	return k.SectionKey.String() + "|" + k.FacultyID
}

// QuarterGradeID is the document id of a student's quarter grade record
func QuarterGradeID(key SectionKey, studentID string) string {
	return key.String() + "|" + studentID
}

// QuarterlyGradeID is the document id of a student's finalized quarterly grade
func QuarterlyGradeID(academicYear string, quarter grading.Quarter, classID, studentID string) string {
	return fmt.Sprintf("%s|%s|%s|%s", academicYear, quarter, classID, studentID)
}

// ============================================================================
// Grade Models
// ============================================================================

// GradeRow is one student's computed quarter figures
type GradeRow struct {
	StudentID   string `bson:"student_id" json:"student_id"`
	StudentName string `bson:"student_name" json:"student_name"`

	WrittenWorksRAW float64 `bson:"written_works_raw" json:"written_works_raw"`
	WrittenWorksHPS float64 `bson:"written_works_hps" json:"written_works_hps"`
	WrittenWorksPS  float64 `bson:"written_works_ps" json:"written_works_ps"`
	WrittenWorksWS  float64 `bson:"written_works_ws" json:"written_works_ws"`

	PerformanceTasksRAW float64 `bson:"performance_tasks_raw" json:"performance_tasks_raw"`
	PerformanceTasksHPS float64 `bson:"performance_tasks_hps" json:"performance_tasks_hps"`
	PerformanceTasksPS  float64 `bson:"performance_tasks_ps" json:"performance_tasks_ps"`
	PerformanceTasksWS  float64 `bson:"performance_tasks_ws" json:"performance_tasks_ws"`

	QuarterlyExam *float64 `bson:"quarterly_exam" json:"quarterly_exam"` // nil until entered
	InitialGrade  float64  `bson:"initial_grade" json:"initial_grade"`
	RawFinalGrade float64  `bson:"raw_final_grade" json:"raw_final_grade"`
	FinalGrade    int      `bson:"final_grade" json:"final_grade"` // 0 = not yet gradable
}

// NewGradeRow fills a GradeRow from a breakdown and the quarterly exam
func NewGradeRow(name string, b grading.Breakdown, exam *float64, profile grading.TrackProfile) GradeRow {
	raw, final := grading.FinalGrade(b.InitialGrade, exam, profile.Percentages.Quarterly)
	return GradeRow{
		StudentID:           b.StudentID,
		StudentName:         name,
		WrittenWorksRAW:     b.WrittenWorks.RAW,
		WrittenWorksHPS:     b.WrittenWorks.HPS,
		WrittenWorksPS:      b.WrittenWorks.PS,
		WrittenWorksWS:      b.WrittenWorks.WS,
		PerformanceTasksRAW: b.PerformanceTasks.RAW,
		PerformanceTasksHPS: b.PerformanceTasks.HPS,
		PerformanceTasksPS:  b.PerformanceTasks.PS,
		PerformanceTasksWS:  b.PerformanceTasks.WS,
		QuarterlyExam:       exam,
		InitialGrade:        b.InitialGrade,
		RawFinalGrade:       raw,
		FinalGrade:          final,
	}
}

// Gradable reports whether the row has a transmuted grade
func (r *GradeRow) Gradable() bool {
	return r.QuarterlyExam != nil && r.FinalGrade > 0
}

// QuarterGradeRecord is a saved per-student, per-section quarter grade
type QuarterGradeRecord struct {
	ID           string          `bson:"_id" json:"id"`
	AcademicYear string          `bson:"academic_year" json:"academic_year"`
	Term         grading.Term    `bson:"term" json:"term"`
	Quarter      grading.Quarter `bson:"quarter" json:"quarter"`
	ClassID      string          `bson:"class_id" json:"class_id"`
	Section      string          `bson:"section" json:"section"`
	Track        string          `bson:"track" json:"track"`

	GradeRow `bson:",inline"`

	SavedBy string    `bson:"saved_by" json:"saved_by"`
	SavedAt time.Time `bson:"saved_at" json:"saved_at"`
}

// QuarterlyGrade is the finalized transmuted grade of one student for one
// quarter, read later by term aggregation
type QuarterlyGrade struct {
	ID           string          `bson:"_id" json:"id"`
	AcademicYear string          `bson:"academic_year" json:"academic_year"`
	Term         grading.Term    `bson:"term" json:"term"`
	Quarter      grading.Quarter `bson:"quarter" json:"quarter"`
	ClassID      string          `bson:"class_id" json:"class_id"`
	StudentID    string          `bson:"student_id" json:"student_id"`
	FinalGrade   float64         `bson:"final_grade" json:"final_grade"`
	SavedBy      string          `bson:"saved_by" json:"saved_by"`
	SavedAt      time.Time       `bson:"saved_at" json:"saved_at"`
}

// ============================================================================
// Staging Models
// ============================================================================

// Staging sources
const (
	StagedFromUpload = "upload"
	StagedFromManual = "manual"
)

// StagedBatch is a proposed set of grade rows awaiting review and posting.
// It is session state: replaced by later uploads and expired after a TTL.
type StagedBatch struct {
	ID           string          `bson:"_id" json:"id"`
	AcademicYear string          `bson:"academic_year" json:"academic_year"`
	Term         grading.Term    `bson:"term" json:"term"`
	Quarter      grading.Quarter `bson:"quarter" json:"quarter"`
	ClassID      string          `bson:"class_id" json:"class_id"`
	Section      string          `bson:"section" json:"section"`
	FacultyID    string          `bson:"faculty_id" json:"faculty_id"`

	Source   string               `bson:"source" json:"source"`
	Filename string               `bson:"filename,omitempty" json:"filename,omitempty"`
	Profile  grading.TrackProfile `bson:"profile" json:"profile"`
	Rows     []GradeRow           `bson:"rows" json:"rows"`

	// Warnings acknowledged by the uploader before staging
	AcknowledgedWarnings []string `bson:"acknowledged_warnings,omitempty" json:"acknowledged_warnings,omitempty"`

	StagedAt  time.Time `bson:"staged_at" json:"staged_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}

// Expired checks if the batch outlived its TTL
func (b *StagedBatch) Expired(now time.Time) bool {
	return !b.ExpiresAt.IsZero() && now.After(b.ExpiresAt)
}

// Row returns the staged row of a student, if any
func (b *StagedBatch) Row(studentID string) (*GradeRow, bool) {
	for i := range b.Rows {
		if strings.EqualFold(b.Rows[i].StudentID, strings.TrimSpace(studentID)) {
			return &b.Rows[i], true
		}
	}
	return nil, false
}

// ============================================================================
// Posting Models
// ============================================================================

// PostedStudentGrade is one student's entry within a posted snapshot
type PostedStudentGrade struct {
	StudentID      string         `bson:"student_id" json:"student_id"`
	StudentName    string         `bson:"student_name" json:"student_name"`
	QuarterlyGrade int            `bson:"quarterly_grade" json:"quarterly_grade"`
	TermFinalGrade *float64       `bson:"term_final_grade,omitempty" json:"term_final_grade,omitempty"`
	Remarks        grading.Remark `bson:"remarks,omitempty" json:"remarks,omitempty"`
}

// PostedGradeRecord is an immutable snapshot of posted grades. Re-posting
// inserts a newer snapshot; existing snapshots are never modified.
type PostedGradeRecord struct {
	ID           string          `bson:"_id" json:"id"`
	PostingKey   string          `bson:"posting_key" json:"posting_key"`
	Sequence     int             `bson:"sequence" json:"sequence"` // 1 for the first posting of the key
	AcademicYear string          `bson:"academic_year" json:"academic_year"`
	Term         grading.Term    `bson:"term" json:"term"`
	Quarter      grading.Quarter `bson:"quarter" json:"quarter"`
	ClassID      string          `bson:"class_id" json:"class_id"`
	ClassCode    string          `bson:"class_code" json:"class_code"`
	SubjectName  string          `bson:"subject_name" json:"subject_name"`
	Section      string          `bson:"section" json:"section"`
	FacultyID    string          `bson:"faculty_id" json:"faculty_id"`

	Grades     []PostedStudentGrade `bson:"grades" json:"grades"`
	StudentIDs []string             `bson:"student_ids" json:"-"`

	PostedAt time.Time `bson:"posted_at" json:"posted_at"`
}

// GradeFor returns the entry of a student within the snapshot
func (p *PostedGradeRecord) GradeFor(studentID string) (PostedStudentGrade, bool) {
	for _, g := range p.Grades {
		if g.StudentID == studentID {
			return g, true
		}
	}
	return PostedStudentGrade{}, false
}

// StudentPostedGrade is a snapshot reduced to what one student sees
type StudentPostedGrade struct {
	SnapshotID     string          `json:"snapshot_id"`
	Quarter        grading.Quarter `json:"quarter"`
	QuarterlyGrade int             `json:"quarterly_grade"`
	TermFinalGrade *float64        `json:"term_final_grade,omitempty"`
	Remarks        grading.Remark  `json:"remarks,omitempty"`
	PostedAt       time.Time       `json:"posted_at"`
}

// ============================================================================
// Constants
// ============================================================================

const (
	// User roles carried in LMS tokens
	RoleStudent = "student"
	RoleFaculty = "faculty"
	RoleAdmin   = "admin"

	// Collections owned by the grading pipeline
	CollectionQuarterGrades   = "quarter_grades"
	CollectionQuarterlyGrades = "quarterly_grades"
	CollectionStagedBatches   = "staged_batches"
	CollectionPostedGrades    = "posted_grades"

	// LMS collections read by the pipeline
	CollectionClasses               = "classes"
	CollectionClassStudents         = "class_students"
	CollectionActivities            = "activities"
	CollectionAssignmentSubmissions = "assignment_submissions"
	CollectionQuizAttempts          = "quiz_attempts"
	CollectionAcademicPeriods       = "academic_periods"
)
