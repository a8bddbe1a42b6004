package grading

// Remark is the pass/repeat verdict of a term grade.
type Remark string

const (
	Passed Remark = "PASSED"
	Repeat Remark = "REPEAT"
)

// PassingGrade is the lowest term grade that passes.
const PassingGrade = 75

// TermGrade is a semester final grade.
type TermGrade struct {
	Grade   float64 `json:"term_final_grade" bson:"term_final_grade"`
	Remarks Remark  `json:"remarks" bson:"remarks"`
}

// ComputeTermGrade averages the two already-transmuted quarterly grades of a
// term. It returns nil unless both quarters are present; the average is not
// transmuted again.
func ComputeTermGrade(first, second *float64) *TermGrade {
	if first == nil || second == nil {
		return nil
	}
	g := Round2((*first + *second) / 2)
	return &TermGrade{Grade: g, Remarks: RemarkFor(g)}
}

// RemarkFor returns PASSED for grades at or above PassingGrade.
func RemarkFor(grade float64) Remark {
	if grade >= PassingGrade {
		return Passed
	}
	return Repeat
}
