package ingest

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"shs_lms/backend/internal/shared"
)

// DefaultMetadataRows is how many leading rows are scanned for the class
// code and section block.
const DefaultMetadataRows = 12

// Target is the class section an upload is meant for.
type Target struct {
	ClassCode    string
	Section      string
	Roster       []shared.RosterEntry
	MetadataRows int
}

// Header labels, in canonical form.
var (
	labelStudentNo   = []string{"student no", "student id", "lrn"}
	labelStudentName = []string{"students name", "student name", "learners name"}
	labelWritten     = []string{"written work"}
	labelPerformance = []string{"performance task"}
	labelExam        = []string{"quarterly exam", "quarterly assessment"}
	labelRAW         = []string{"raw"}
	labelHPS         = []string{"hps"}
)

type headerLabel struct {
	display string
	aliases []string
	exact   bool
}

var requiredLabels = []headerLabel{
	{"Student No.", labelStudentNo, false},
	{"Student's Name", labelStudentName, false},
	{"Written Works", labelWritten, false},
	{"Performance Tasks", labelPerformance, false},
	{"Quarterly Exam", labelExam, false},
	{"RAW", labelRAW, true},
	{"HPS", labelHPS, true},
}

var labelCleaner = strings.NewReplacer(".", "", ":", "", "'", "", "’", "", "#", "")

// canonical lowercases a label, drops punctuation and collapses whitespace,
// so "Student's  Name" and "students name" compare equal.
func canonical(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(labelCleaner.Replace(s))), " ")
}

func labelMatches(cell string, aliases []string, exact bool) bool {
	c := canonical(cell)
	if c == "" {
		return false
	}
	for _, a := range aliases {
		if c == a || (!exact && strings.Contains(c, a)) {
			return true
		}
	}
	return false
}

// layout is the column map derived from the header block.
type layout struct {
	headerStart int
	dataStart   int

	idCol, nameCol int
	wwRAW, wwHPS   int
	ptRAW, ptHPS   int
	examCol        int

	knownCols map[int]bool
	labels    map[int]string
}

// ValidateFile reads an uploaded sheet and validates it against t.
func ValidateFile(r io.Reader, filename string, t Target) Result {
	grid, err := ReadSheet(r, filename)
	if err != nil {
		res := newResult()
		res.fail(KindStructural, CodeUnreadableFile, 0, "", "%v", err)
		return res
	}
	return Validate(grid, t)
}

// Validate checks headers, metadata and every data row of grid. Structural
// failures stop validation before any data row is scanned.
func Validate(grid Grid, t Target) Result {
	res := newResult()

	if grid.Empty() {
		res.fail(KindStructural, CodeEmptyFile, 0, "", "the file contains no rows")
		return res
	}

	metaRows := t.MetadataRows
	if metaRows <= 0 {
		metaRows = DefaultMetadataRows
	}

	lay, ok := locateHeader(grid, metaRows, &res)
	if ok {
		checkMetadata(grid, lay.headerStart, metaRows, t, &res)
	}
	if res.StructuralFailure() {
		return res
	}

	cols := make([]int, 0, len(lay.labels))
	for c := range lay.labels {
		cols = append(cols, c)
	}
	sort.Ints(cols)
	for _, c := range cols {
		if !lay.knownCols[c] {
			res.warn(CodeExtraColumn, 0, "", "column %s (%q) is not part of the grade template and will be ignored", columnName(c), lay.labels[c])
		}
	}

	scanRows(grid, lay, t.Roster, &res)
	if res.TotalRows == 0 {
		res.fail(KindStructural, CodeNoDataRows, 0, "", "the sheet has a header but no student rows")
	}

	res.OK = len(res.Errors) == 0
	if !res.OK {
		res.Rows = nil
	}
	return res
}

// locateHeader finds the header block and maps the template columns. Missing
// labels are reported as structural errors.
func locateHeader(grid Grid, metaRows int, res *Result) (layout, bool) {
	lay := layout{idCol: 0, nameCol: 1, wwRAW: -1, wwHPS: -1, ptRAW: -1, ptHPS: -1, examCol: -1}

	for r := 0; r < len(grid) && r < metaRows+3; r++ {
		if rowHasLabel(grid[r], labelStudentNo, false) {
			lay.headerStart = r
			break
		}
	}

	var headerRows []int
	for r := lay.headerStart; r < lay.headerStart+2 && r < len(grid); r++ {
		headerRows = append(headerRows, r)
	}
	if third := lay.headerStart + 2; third < len(grid) && isSubHeaderRow(grid, third, lay.headerStart) {
		headerRows = append(headerRows, third)
	}
	lay.dataStart = headerRows[len(headerRows)-1] + 1

	for _, req := range requiredLabels {
		found := false
		for _, r := range headerRows {
			if rowHasLabel(grid[r], req.aliases, req.exact) {
				found = true
				break
			}
		}
		if !found {
			res.fail(KindStructural, CodeMissingHeader, 0, "", "required header %q was not found", req.display)
		}
	}
	if res.StructuralFailure() {
		return lay, false
	}

	lay.labels = map[int]string{}
	wwCol, ptCol, groupRow := -1, -1, lay.headerStart
	for _, r := range headerRows {
		for c, v := range grid[r] {
			if v == "" {
				continue
			}
			if _, seen := lay.labels[c]; !seen {
				lay.labels[c] = v
			}
			switch {
			case labelMatches(v, labelStudentNo, false):
				lay.idCol = c
			case labelMatches(v, labelStudentName, false):
				lay.nameCol = c
			case labelMatches(v, labelWritten, false) && wwCol < 0:
				wwCol, groupRow = c, r
			case labelMatches(v, labelPerformance, false) && ptCol < 0:
				ptCol = c
			case labelMatches(v, labelExam, false) && lay.examCol < 0:
				lay.examCol = c
			}
		}
	}

	sub := headerRows[1:]
	wwEnd := spanEnd(grid[groupRow], wwCol)
	ptEnd := spanEnd(grid[groupRow], ptCol)
	lay.wwRAW = findUnder(grid, sub, labelRAW, wwCol, wwEnd)
	lay.wwHPS = findUnder(grid, sub, labelHPS, wwCol, wwEnd)
	lay.ptRAW = findUnder(grid, sub, labelRAW, ptCol, ptEnd)
	lay.ptHPS = findUnder(grid, sub, labelHPS, ptCol, ptEnd)

	for _, m := range []struct {
		col  int
		name string
	}{
		{lay.wwRAW, "RAW under Written Works"},
		{lay.wwHPS, "HPS under Written Works"},
		{lay.ptRAW, "RAW under Performance Tasks"},
		{lay.ptHPS, "HPS under Performance Tasks"},
	} {
		if m.col < 0 {
			res.fail(KindStructural, CodeMissingHeader, 0, "", "required header %q was not found", m.name)
		}
	}
	if res.StructuralFailure() {
		return lay, false
	}

	lay.knownCols = map[int]bool{
		lay.idCol: true, lay.nameCol: true, lay.examCol: true,
		wwCol: true, ptCol: true,
		lay.wwRAW: true, lay.wwHPS: true, lay.ptRAW: true, lay.ptHPS: true,
	}
	return lay, true
}

// isSubHeaderRow reports whether the row under the two header rows is a
// legacy sub-header such as "(sum) (total)". It must leave the student
// number and name columns empty and hold no numeric cell; anything else is
// a data row.
func isSubHeaderRow(grid Grid, r, headerStart int) bool {
	if grid.BlankRow(r) {
		return false
	}
	for c, v := range grid[headerStart] {
		if labelMatches(v, labelStudentNo, false) || labelMatches(v, labelStudentName, false) {
			if grid.Cell(r, c) != "" {
				return false
			}
		}
	}
	for _, v := range grid[r] {
		if v == "" {
			continue
		}
		if _, err := parseNumber(v); err == nil {
			return false
		}
	}
	return true
}

func rowHasLabel(row []string, aliases []string, exact bool) bool {
	for _, c := range row {
		if labelMatches(c, aliases, exact) {
			return true
		}
	}
	return false
}

// spanEnd returns the exclusive end column of a merged group label: the next
// labelled cell to its right, or unbounded.
func spanEnd(row []string, start int) int {
	for c := start + 1; c < len(row); c++ {
		if row[c] != "" {
			return c
		}
	}
	return math.MaxInt32
}

func findUnder(grid Grid, rows []int, label []string, from, to int) int {
	if from < 0 {
		return -1
	}
	for _, r := range rows {
		for c := from; c < to && c < len(grid[r]); c++ {
			if labelMatches(grid[r][c], label, true) {
				return c
			}
		}
	}
	return -1
}

// checkMetadata compares the class code and section written above the
// header block with the selected target.
func checkMetadata(grid Grid, headerStart, metaRows int, t Target, res *Result) {
	limit := minInt(headerStart, metaRows)
	classCode, section := "", ""

	for r := 0; r < limit; r++ {
		row := grid[r]
		for c, v := range row {
			if v == "" {
				continue
			}
			key, val := v, ""
			if i := strings.Index(v, ":"); i >= 0 {
				key, val = v[:i], strings.TrimSpace(v[i+1:])
			}
			if val == "" {
				val = nextValue(row, c)
			}
			switch canonical(key) {
			case "class code", "subject code":
				if classCode == "" {
					classCode = val
				}
			case "section":
				if section == "" {
					section = val
				}
			}
		}
	}

	if classCode != "" && t.ClassCode != "" && !strings.EqualFold(classCode, strings.TrimSpace(t.ClassCode)) {
		res.fail(KindStructural, CodeClassMismatch, 0, "", "sheet is for class %q but class %q is selected", classCode, t.ClassCode)
	}
	if section != "" && t.Section != "" && !strings.EqualFold(section, strings.TrimSpace(t.Section)) {
		res.fail(KindStructural, CodeSectionMismatch, 0, "", "sheet is for section %q but section %q is selected", section, t.Section)
	}
}

func nextValue(row []string, c int) string {
	for i := c + 1; i < len(row); i++ {
		if row[i] != "" {
			return row[i]
		}
	}
	return ""
}

// scanRows validates every data row. Rows are accepted only if the whole
// sheet turns out clean.
func scanRows(grid Grid, lay layout, roster []shared.RosterEntry, res *Result) {
	known := make(map[string]shared.RosterEntry, len(roster))
	for _, e := range roster {
		known[normalizeID(e.StudentID)] = e
	}
	seen := map[string]int{}
	accented := map[string]bool{}

	for r := lay.dataStart; r < len(grid); r++ {
		if grid.BlankRow(r) {
			continue
		}
		res.TotalRows++
		line := r + 1
		before := len(res.Errors)

		id := grid.Cell(r, lay.idCol)
		name := grid.Cell(r, lay.nameCol)

		if name != "" && HasAccent(name) && !accented[name] {
			accented[name] = true
			res.AccentedNames = append(res.AccentedNames, name)
		}

		if id == "" {
			res.fail(KindRow, CodeMissingStudentID, line, "", "student number is empty")
			continue
		}
		key := normalizeID(id)

		if first, dup := seen[key]; dup {
			res.fail(KindRow, CodeDuplicateStudent, line, id, "student %s already appears on row %d", id, first)
		} else {
			seen[key] = line
		}

		entry, enrolled := known[key]
		if !enrolled {
			res.fail(KindRow, CodeUnknownStudent, line, id, "student %s is not enrolled in this section", id)
		} else if name != "" && entry.StudentName != "" && !NamesMatch(name, entry.StudentName) {
			res.warn(CodeNameMismatch, line, id, "name %q does not match roster name %q", name, entry.StudentName)
		}

		exam, examOK := parseExam(grid.Cell(r, lay.examCol), line, id, res)

		// Accepted rows carry the roster's spelling of the id
		row := Row{Row: line, StudentID: id, StudentName: name}
		if enrolled {
			row.StudentID = entry.StudentID
			if entry.StudentName != "" {
				row.StudentName = entry.StudentName
			}
		}
		var wwOK, ptOK bool
		row.WrittenRAW, row.WrittenHPS, wwOK = parsePair(grid, r, lay.wwRAW, lay.wwHPS, "Written Works", id, res)
		row.PerformanceRAW, row.PerformanceHPS, ptOK = parsePair(grid, r, lay.ptRAW, lay.ptHPS, "Performance Tasks", id, res)
		row.QuarterlyExam = exam

		if examOK && wwOK && ptOK && len(res.Errors) == before {
			res.ValidRows++
			res.Rows = append(res.Rows, row)
		}
	}
}

func parseExam(v string, line int, id string, res *Result) (float64, bool) {
	if v == "" {
		res.fail(KindRow, CodeMissingExam, line, id, "quarterly exam score is empty")
		return 0, false
	}
	f, err := parseNumber(v)
	if err != nil {
		res.fail(KindRow, CodeInvalidExam, line, id, "quarterly exam score %q is not a number", v)
		return 0, false
	}
	if f < 0 || f > 100 {
		res.fail(KindRow, CodeExamOutOfRange, line, id, "quarterly exam score %v is outside 0-100", f)
		return 0, false
	}
	return f, true
}

// parsePair reads the RAW and HPS cells of one component. Empty cells count
// as zero.
func parsePair(grid Grid, r, rawCol, hpsCol int, component, id string, res *Result) (float64, float64, bool) {
	line := r + 1
	ok := true
	read := func(col int, label string) float64 {
		v := grid.Cell(r, col)
		if v == "" {
			return 0
		}
		f, err := parseNumber(v)
		if err != nil || f < 0 {
			res.fail(KindRow, CodeInvalidScore, line, id, "%s %s %q is not a valid score", component, label, v)
			ok = false
			return 0
		}
		return f
	}

	raw := read(rawCol, "RAW")
	hps := read(hpsCol, "HPS")
	if ok && raw > hps {
		res.warn(CodeRawExceedsHPS, line, id, "%s RAW %v exceeds HPS %v", component, raw, hps)
	}
	return raw, hps, ok
}

func parseNumber(v string) (float64, error) {
	v = strings.TrimSuffix(strings.ReplaceAll(v, ",", ""), "%")
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// columnName converts a 0-based index to a spreadsheet column letter.
func columnName(c int) string {
	name := ""
	for c >= 0 {
		name = string(rune('A'+c%26)) + name
		c = c/26 - 1
	}
	return name
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
