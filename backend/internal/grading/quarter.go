package grading

import (
	"fmt"
	"strings"
)

// Quarter is the normalized grading-period tag. Raw names such as
// "Quarter 1" or "1st Quarter" are converted with ParseQuarter before they
// reach any computation.
type Quarter string

const (
	Q1 Quarter = "Q1"
	Q2 Quarter = "Q2"
	Q3 Quarter = "Q3"
	Q4 Quarter = "Q4"
)

// Term groups two quarters into one semester.
type Term string

const (
	FirstSemester  Term = "1st Semester"
	SecondSemester Term = "2nd Semester"
)

// Period identifies the academic year, term and quarter every stored record
// is keyed by. It is always passed explicitly.
type Period struct {
	AcademicYear string  `json:"academic_year" bson:"academic_year"`
	Term         Term    `json:"term" bson:"term"`
	Quarter      Quarter `json:"quarter" bson:"quarter"`
}

var quarterTokens = map[string]Quarter{
	"1": Q1, "1st": Q1, "first": Q1, "i": Q1,
	"2": Q2, "2nd": Q2, "second": Q2, "ii": Q2,
	"3": Q3, "3rd": Q3, "third": Q3, "iii": Q3,
	"4": Q4, "4th": Q4, "fourth": Q4, "iv": Q4,
}

// ParseQuarter accepts the spellings found across LMS record sources
// ("Q1", "q1", "Quarter 1", "1st Quarter", "First Quarter", "1").
func ParseQuarter(s string) (Quarter, error) {
	cleaned := strings.ToLower(strings.TrimSpace(s))
	cleaned = strings.NewReplacer("quarter", " ", "qtr", " ", "-", " ", "_", " ", ".", " ").Replace(cleaned)

	var found Quarter
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) == 2 && tok[0] == 'q' {
			tok = tok[1:]
		}
		q, ok := quarterTokens[tok]
		if !ok {
			continue
		}
		if found != "" && found != q {
			return "", fmt.Errorf("ambiguous quarter %q", s)
		}
		found = q
	}

	if found == "" {
		return "", fmt.Errorf("unrecognized quarter %q", s)
	}
	return found, nil
}

// Valid reports whether q is one of Q1..Q4.
func (q Quarter) Valid() bool {
	switch q {
	case Q1, Q2, Q3, Q4:
		return true
	}
	return false
}

// Term returns the semester the quarter belongs to.
func (q Quarter) Term() Term {
	if q == Q3 || q == Q4 {
		return SecondSemester
	}
	return FirstSemester
}

// Partner returns the other quarter of the same term.
func (q Quarter) Partner() Quarter {
	switch q {
	case Q1:
		return Q2
	case Q2:
		return Q1
	case Q3:
		return Q4
	case Q4:
		return Q3
	}
	return ""
}

// Quarters returns the two quarters of the term in order.
func (t Term) Quarters() (Quarter, Quarter) {
	if t == SecondSemester {
		return Q3, Q4
	}
	return Q1, Q2
}

// ParseTerm normalizes "1st Semester", "First Semester", "Sem 1", "term 2" and
// similar spellings.
func ParseTerm(s string) (Term, error) {
	cleaned := strings.ToLower(strings.TrimSpace(s))
	cleaned = strings.NewReplacer("semester", " ", "sem", " ", "term", " ", "-", " ", "_", " ").Replace(cleaned)

	for _, tok := range strings.Fields(cleaned) {
		switch tok {
		case "1", "1st", "first", "i":
			return FirstSemester, nil
		case "2", "2nd", "second", "ii":
			return SecondSemester, nil
		}
	}
	return "", fmt.Errorf("unrecognized term %q", s)
}
