package ingest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"shs_lms/backend/internal/shared"
)

var testRoster = []shared.RosterEntry{
	{ClassID: "c1", Section: "STEM-11A", StudentID: "2024-001", StudentName: "Juan Dela Cruz"},
	{ClassID: "c1", Section: "STEM-11A", StudentID: "2024-002", StudentName: "Maria Clara Santos"},
	{ClassID: "c1", Section: "STEM-11A", StudentID: "2024-003", StudentName: "Jose Rizal"},
}

func testTarget() Target {
	return Target{ClassCode: "GENMATH-11", Section: "STEM-11A", Roster: testRoster}
}

var templateHeader = [][]interface{}{
	{"Class Code:", "GENMATH-11"},
	{"Section:", "STEM-11A"},
	{"Subject:", "General Mathematics"},
	{"Student No.", "Student's Name", "Written Works", nil, "Performance Tasks", nil, "Quarterly Exam"},
	{nil, nil, "RAW", "HPS", "RAW", "HPS"},
}

// buildWorkbook writes rows into the first sheet of a new workbook.
func buildWorkbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("Failed to build cell name: %v", err)
		}
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatalf("Failed to write row %d: %v", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("Failed to write workbook: %v", err)
	}
	return buf
}

func withRows(data ...[]interface{}) [][]interface{} {
	rows := append([][]interface{}{}, templateHeader...)
	return append(rows, data...)
}

func codes(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Code)
	}
	return out
}

func hasCode(issues []Issue, code string) bool {
	for _, i := range issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

func TestValidateFile_ValidSheet(t *testing.T) {
	buf := buildWorkbook(t, withRows(
		[]interface{}{"2024-001", "Juan Dela Cruz", 18, 20, 40, 50, 80},
		[]interface{}{"2024-002", "Maria Clara Santos", 15, 20, 45, 50, 92.5},
		[]interface{}{},
	))

	res := ValidateFile(buf, "grades.xlsx", testTarget())

	if !res.OK {
		t.Fatalf("Expected ok, got errors %v", res.Errors)
	}
	if res.TotalRows != 2 || res.ValidRows != 2 || len(res.Rows) != 2 {
		t.Fatalf("Expected 2 rows, got total=%d valid=%d rows=%d", res.TotalRows, res.ValidRows, len(res.Rows))
	}
	if len(res.Warnings) != 0 || len(res.AccentedNames) != 0 {
		t.Errorf("Expected no advisories, got %v %v", res.Warnings, res.AccentedNames)
	}

	r := res.Rows[0]
	if r.StudentID != "2024-001" || r.WrittenRAW != 18 || r.WrittenHPS != 20 || r.PerformanceRAW != 40 || r.PerformanceHPS != 50 || r.QuarterlyExam != 80 {
		t.Errorf("Unexpected first row: %+v", r)
	}
	if res.Rows[1].QuarterlyExam != 92.5 {
		t.Errorf("Expected exam 92.5, got %v", res.Rows[1].QuarterlyExam)
	}
	if res.NeedsConfirmation() {
		t.Error("Clean sheet should not need confirmation")
	}
}

func TestValidateFile_Mismatch(t *testing.T) {
	rows := withRows([]interface{}{"2024-001", "Juan Dela Cruz", 18, 20, 40, 50, 80})

	t.Run("Wrong class code", func(t *testing.T) {
		target := testTarget()
		target.ClassCode = "ORALCOM-11"
		res := ValidateFile(buildWorkbook(t, rows), "grades.xlsx", target)

		if res.OK {
			t.Fatal("Expected ok=false for class mismatch")
		}
		if !hasCode(res.Errors, CodeClassMismatch) {
			t.Errorf("Expected %s, got %v", CodeClassMismatch, codes(res.Errors))
		}
		if res.TotalRows != 0 || res.Rows != nil {
			t.Errorf("Data rows must not be scanned after a structural failure: %+v", res)
		}
	})

	t.Run("Wrong section", func(t *testing.T) {
		target := testTarget()
		target.Section = "STEM-11B"
		res := ValidateFile(buildWorkbook(t, rows), "grades.xlsx", target)

		if res.OK || !hasCode(res.Errors, CodeSectionMismatch) {
			t.Errorf("Expected %s, got ok=%v %v", CodeSectionMismatch, res.OK, codes(res.Errors))
		}
	})

	t.Run("Case-insensitive match", func(t *testing.T) {
		target := testTarget()
		target.ClassCode = "genmath-11"
		target.Section = " stem-11a "
		res := ValidateFile(buildWorkbook(t, rows), "grades.xlsx", target)
		if !res.OK {
			t.Errorf("Expected ok, got %v", res.Errors)
		}
	})
}

func TestValidateFile_DuplicateAndUnknown(t *testing.T) {
	buf := buildWorkbook(t, withRows(
		[]interface{}{"2024-001", "Juan Dela Cruz", 18, 20, 40, 50, 80},
		[]interface{}{"2024-001", "Juan Dela Cruz", 17, 20, 41, 50, 81},
		[]interface{}{"2099-999", "Stranger", 10, 20, 20, 50, 70},
		[]interface{}{"2024-002", "Maria Clara Santos", 15, 20, 45, 50, 90},
	))

	res := ValidateFile(buf, "grades.xlsx", testTarget())

	if res.OK {
		t.Fatal("Expected ok=false")
	}
	if res.Rows != nil {
		t.Error("Valid rows must not be partially accepted")
	}

	var dup, unknown []string
	for _, e := range res.Errors {
		switch e.Code {
		case CodeDuplicateStudent:
			dup = append(dup, e.StudentID)
		case CodeUnknownStudent:
			unknown = append(unknown, e.StudentID)
		}
	}
	if len(dup) != 1 || dup[0] != "2024-001" {
		t.Errorf("Expected duplicate 2024-001, got %v", dup)
	}
	if len(unknown) != 1 || unknown[0] != "2099-999" {
		t.Errorf("Expected unknown 2099-999, got %v", unknown)
	}
	if res.TotalRows != 4 || res.ValidRows != 2 {
		t.Errorf("Expected total=4 valid=2, got %d/%d", res.TotalRows, res.ValidRows)
	}
}

func TestValidateFile_RowErrors(t *testing.T) {
	tests := []struct {
		name string
		row  []interface{}
		code string
	}{
		{"Missing student number", []interface{}{nil, "Juan Dela Cruz", 18, 20, 40, 50, 80}, CodeMissingStudentID},
		{"Missing exam", []interface{}{"2024-001", "Juan Dela Cruz", 18, 20, 40, 50}, CodeMissingExam},
		{"Non-numeric exam", []interface{}{"2024-001", "Juan Dela Cruz", 18, 20, 40, 50, "absent"}, CodeInvalidExam},
		{"Exam above 100", []interface{}{"2024-001", "Juan Dela Cruz", 18, 20, 40, 50, 101}, CodeExamOutOfRange},
		{"Negative exam", []interface{}{"2024-001", "Juan Dela Cruz", 18, 20, 40, 50, -1}, CodeExamOutOfRange},
		{"Non-numeric RAW", []interface{}{"2024-001", "Juan Dela Cruz", "x", 20, 40, 50, 80}, CodeInvalidScore},
		{"Negative HPS", []interface{}{"2024-001", "Juan Dela Cruz", 18, -20, 40, 50, 80}, CodeInvalidScore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateFile(buildWorkbook(t, withRows(tt.row)), "grades.xlsx", testTarget())
			if res.OK {
				t.Fatal("Expected ok=false")
			}
			if !hasCode(res.Errors, tt.code) {
				t.Errorf("Expected %s, got %v", tt.code, codes(res.Errors))
			}
			for _, e := range res.Errors {
				if e.Kind != KindRow || e.Row != len(templateHeader)+1 {
					t.Errorf("Expected row error on row %d, got %+v", len(templateHeader)+1, e)
				}
			}
		})
	}
}

func TestValidateFile_BlankStudentNumberOnFirstDataRow(t *testing.T) {
	buf := buildWorkbook(t, withRows(
		[]interface{}{nil, "Juan Dela Cruz", 18, 20, 40, 50, 80},
		[]interface{}{"2024-002", "Maria Clara Santos", 15, 20, 45, 50, 90},
	))

	res := ValidateFile(buf, "grades.xlsx", testTarget())

	if res.OK {
		t.Fatal("A row without a student number must fail the sheet")
	}
	if !hasCode(res.Errors, CodeMissingStudentID) {
		t.Errorf("Expected %s, got %v", CodeMissingStudentID, codes(res.Errors))
	}
	if res.TotalRows != 2 {
		t.Errorf("Expected both data rows scanned, got %d", res.TotalRows)
	}
	if len(res.Rows) != 0 {
		t.Errorf("Rejected sheet must carry no rows, got %d", len(res.Rows))
	}
}

func TestValidateFile_RosterSpellingOfStudentID(t *testing.T) {
	target := testTarget()
	target.Roster = []shared.RosterEntry{
		{ClassID: "c1", Section: "STEM-11A", StudentID: "2024-001A", StudentName: "Juan Dela Cruz"},
	}
	buf := buildWorkbook(t, withRows(
		[]interface{}{" 2024-001a ", "Juan Dela Cruz", 18, 20, 40, 50, 80},
	))

	res := ValidateFile(buf, "grades.xlsx", target)

	if !res.OK || len(res.Rows) != 1 {
		t.Fatalf("Expected one accepted row, got ok=%v errors=%v", res.OK, res.Errors)
	}
	if res.Rows[0].StudentID != "2024-001A" {
		t.Errorf("Expected roster id 2024-001A, got %q", res.Rows[0].StudentID)
	}
}

func TestValidateFile_Advisories(t *testing.T) {
	buf := buildWorkbook(t, withRows(
		[]interface{}{"2024-001", "Dela Cruz, Juan", 18, 20, 40, 50, 80},
		[]interface{}{"2024-002", "Mariah Santos", 15, 20, 45, 50, 90},
		[]interface{}{"2024-003", "José Rizal", 22, 20, 45, 50, 90},
	))

	res := ValidateFile(buf, "grades.xlsx", testTarget())

	if !res.OK {
		t.Fatalf("Advisories must not fail validation: %v", res.Errors)
	}
	if !res.NeedsConfirmation() {
		t.Error("Expected confirmation to be required")
	}

	mismatches := 0
	for _, w := range res.Warnings {
		if w.Code == CodeNameMismatch {
			mismatches++
			if w.StudentID != "2024-002" {
				t.Errorf("Unexpected name mismatch for %s", w.StudentID)
			}
		}
	}
	if mismatches != 1 {
		t.Errorf("Expected 1 name mismatch, got %d (%v)", mismatches, codes(res.Warnings))
	}
	if !hasCode(res.Warnings, CodeRawExceedsHPS) {
		t.Errorf("Expected %s, got %v", CodeRawExceedsHPS, codes(res.Warnings))
	}
	if len(res.AccentedNames) != 1 || res.AccentedNames[0] != "José Rizal" {
		t.Errorf("Expected accented name José Rizal, got %v", res.AccentedNames)
	}
	if res.Rows[1].StudentName != "Maria Clara Santos" {
		t.Errorf("Rows should carry the roster name, got %q", res.Rows[1].StudentName)
	}
}

func TestValidateFile_MissingHeader(t *testing.T) {
	csv := strings.Join([]string{
		"Student No.,Student's Name,Written Works,,Performance Tasks,",
		",,RAW,HPS,RAW,HPS",
		"2024-001,Juan Dela Cruz,18,20,40,50",
	}, "\n")

	res := ValidateFile(strings.NewReader(csv), "grades.csv", testTarget())

	if res.OK {
		t.Fatal("Expected ok=false")
	}
	if len(res.Errors) != 1 || res.Errors[0].Code != CodeMissingHeader || !strings.Contains(res.Errors[0].Message, "Quarterly Exam") {
		t.Errorf("Expected a single missing Quarterly Exam header, got %v", res.Errors)
	}
	if res.TotalRows != 0 {
		t.Errorf("Data rows must not be scanned, got %d", res.TotalRows)
	}
}

func TestValidateFile_CSVWithLegacyHeader(t *testing.T) {
	csv := strings.Join([]string{
		"\xef\xbb\xbfstudent no,students  name,WRITTEN WORKS,,PERFORMANCE TASKS,,QUARTERLY EXAM,Remarks",
		",,raw,hps,raw,hps,,",
		",,(sum),(total),(sum),(total),(score),",
		"2024-003,Jose Rizal,10,20,30,50,75,ok",
	}, "\r\n")

	res := ValidateFile(strings.NewReader(csv), "grades.csv", testTarget())

	if !res.OK {
		t.Fatalf("Expected ok, got %v", res.Errors)
	}
	if res.TotalRows != 1 || res.Rows[0].QuarterlyExam != 75 || res.Rows[0].PerformanceRAW != 30 {
		t.Errorf("Unexpected rows: %+v", res.Rows)
	}
	if !hasCode(res.Warnings, CodeExtraColumn) {
		t.Errorf("Expected an extra column warning, got %v", codes(res.Warnings))
	}
}

func TestValidateFile_FileLevel(t *testing.T) {
	t.Run("Empty file", func(t *testing.T) {
		res := ValidateFile(strings.NewReader("\n,,\n"), "grades.csv", testTarget())
		if res.OK || !hasCode(res.Errors, CodeEmptyFile) {
			t.Errorf("Expected %s, got %v", CodeEmptyFile, codes(res.Errors))
		}
	})

	t.Run("Legacy xls", func(t *testing.T) {
		res := ValidateFile(strings.NewReader("binary"), "grades.xls", testTarget())
		if res.OK || !hasCode(res.Errors, CodeUnreadableFile) {
			t.Errorf("Expected %s, got %v", CodeUnreadableFile, codes(res.Errors))
		}
	})

	t.Run("Corrupt workbook", func(t *testing.T) {
		res := ValidateFile(strings.NewReader("PK\x03\x04garbage"), "grades.xlsx", testTarget())
		if res.OK || !hasCode(res.Errors, CodeUnreadableFile) {
			t.Errorf("Expected %s, got %v", CodeUnreadableFile, codes(res.Errors))
		}
	})
}

func TestFoldName(t *testing.T) {
	tests := []struct {
		a, b  string
		match bool
	}{
		{"José Rizal", "Jose Rizal", true},
		{"Dela Cruz, Juan", "juan dela cruz", true},
		{"  MARÍA   CLARA ", "maria clara", true},
		{"Ñiño Santos", "Nino Santos", true},
		{"Juan Dela Cruz", "Juana Dela Cruz", false},
	}
	for _, tt := range tests {
		if got := NamesMatch(tt.a, tt.b); got != tt.match {
			t.Errorf("NamesMatch(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.match)
		}
	}

	if !HasAccent("Ñiño") || HasAccent("Nino") {
		t.Error("HasAccent misclassified names")
	}
}

func TestColumnName(t *testing.T) {
	for c, want := range map[int]string{0: "A", 7: "H", 25: "Z", 26: "AA", 27: "AB"} {
		if got := columnName(c); got != want {
			t.Errorf("columnName(%d) = %s, want %s", c, got, want)
		}
	}
}
