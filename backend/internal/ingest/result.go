package ingest

import "fmt"

// Kind classifies an Issue.
type Kind string

const (
	KindStructural Kind = "structural" // fatal for the upload
	KindRow        Kind = "row"        // rejects the whole batch
	KindAdvisory   Kind = "advisory"   // must be acknowledged before staging
)

// Issue codes
const (
	CodeEmptyFile       = "empty_file"
	CodeNoDataRows      = "no_data_rows"
	CodeUnreadableFile  = "unreadable_file"
	CodeMissingHeader   = "missing_header"
	CodeClassMismatch   = "class_mismatch"
	CodeSectionMismatch = "section_mismatch"

	CodeMissingStudentID = "missing_student_id"
	CodeMissingExam      = "missing_exam"
	CodeInvalidExam      = "invalid_exam"
	CodeExamOutOfRange   = "exam_out_of_range"
	CodeInvalidScore     = "invalid_score"
	CodeDuplicateStudent = "duplicate_student"
	CodeUnknownStudent   = "unknown_student"

	CodeNameMismatch  = "name_mismatch"
	CodeExtraColumn   = "extra_column"
	CodeRawExceedsHPS = "raw_exceeds_hps"
)

// Issue is one error or warning found in a sheet. Row is the 1-based sheet
// row, 0 for file-level issues.
type Issue struct {
	Kind      Kind   `json:"kind"`
	Code      string `json:"code"`
	Row       int    `json:"row,omitempty"`
	StudentID string `json:"student_id,omitempty"`
	Message   string `json:"message"`
}

func (i Issue) String() string {
	if i.Row > 0 {
		return fmt.Sprintf("row %d: %s", i.Row, i.Message)
	}
	return i.Message
}

// Row is one accepted data row of the sheet.
type Row struct {
	Row            int     `json:"row"`
	StudentID      string  `json:"student_id"`
	StudentName    string  `json:"student_name"`
	WrittenRAW     float64 `json:"written_works_raw"`
	WrittenHPS     float64 `json:"written_works_hps"`
	PerformanceRAW float64 `json:"performance_tasks_raw"`
	PerformanceHPS float64 `json:"performance_tasks_hps"`
	QuarterlyExam  float64 `json:"quarterly_exam"`
}

// Result is the outcome of validating a sheet. Warnings and AccentedNames
// are filled regardless of OK; Rows only when OK.
type Result struct {
	OK            bool     `json:"ok"`
	TotalRows     int      `json:"total_rows"`
	ValidRows     int      `json:"valid_rows"`
	Errors        []Issue  `json:"errors"`
	Warnings      []Issue  `json:"warnings"`
	AccentedNames []string `json:"accented_names"`
	Rows          []Row    `json:"rows,omitempty"`
}

// NeedsConfirmation reports whether the uploader has to acknowledge
// advisories before the rows may be staged.
func (r *Result) NeedsConfirmation() bool {
	return len(r.Warnings) > 0 || len(r.AccentedNames) > 0
}

// StructuralFailure reports whether any error is structural.
func (r *Result) StructuralFailure() bool {
	for _, e := range r.Errors {
		if e.Kind == KindStructural {
			return true
		}
	}
	return false
}

func (r *Result) fail(kind Kind, code string, row int, studentID, format string, args ...interface{}) {
	r.Errors = append(r.Errors, Issue{Kind: kind, Code: code, Row: row, StudentID: studentID, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) warn(code string, row int, studentID, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, Issue{Kind: KindAdvisory, Code: code, Row: row, StudentID: studentID, Message: fmt.Sprintf(format, args...)})
}

func newResult() Result {
	return Result{Errors: []Issue{}, Warnings: []Issue{}, AccentedNames: []string{}}
}
