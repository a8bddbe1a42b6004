package grading

import (
	"testing"
	"time"
)

func TestResolveTrackProfile(t *testing.T) {
	tests := []struct {
		subject string
		track   string
		special bool
		want    Percentages
	}{
		{"General Mathematics", TrackAcademic, false, Percentages{25, 50, 25}},
		{"Practical Research 2", TrackAcademic, true, Percentages{25, 45, 30}},
		{"Work Immersion", TrackAcademic, true, Percentages{25, 45, 30}},
		{"TVL - Cookery NC II", TrackTVL, false, Percentages{35, 40, 25}},
		{"Culinary Arts Practicum", TrackTVL, true, Percentages{20, 60, 20}},
		{"  WELDING   ", TrackTVL, false, Percentages{35, 40, 25}},
		{"Sports Exhibit", TrackTVL, true, Percentages{20, 60, 20}},
		{"", TrackAcademic, false, Percentages{25, 50, 25}},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			p := ResolveTrackProfile(tt.subject)
			if p.Track != tt.track || p.Special != tt.special || p.Percentages != tt.want {
				t.Errorf("ResolveTrackProfile(%q) = %+v", tt.subject, p)
			}
			if p.Percentages.Total() != 100 {
				t.Errorf("weights sum to %d, want 100", p.Percentages.Total())
			}
			if again := ResolveTrackProfile(tt.subject); again != p {
				t.Errorf("profile not reproducible: %+v vs %+v", p, again)
			}
		})
	}
}

func TestTransmute(t *testing.T) {
	tests := []struct {
		raw  float64
		want int
	}{
		{0, 60},
		{37.59, 60},
		{37.60, 60},
		{39.15, 60},
		{39.16, 61},
		{60.98, 75},
		{75.02, 84},
		{81.24, 87},
		{81.25, 88},
		{82.5, 88},
		{82.81, 89},
		{96.83, 97},
		{96.84, 98},
		{98.39, 98},
		{98.40, 99},
		{100, 99},
		{-5, 60},
	}

	for _, tt := range tests {
		if got := Transmute(tt.raw); got != tt.want {
			t.Errorf("Transmute(%.2f) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestTransmuteMonotonic(t *testing.T) {
	prev := Transmute(0)
	for i := 1; i <= 10000; i++ {
		g := float64(i) / 100
		cur := Transmute(g)
		if cur < prev {
			t.Fatalf("Transmute(%.2f) = %d < %d", g, cur, prev)
		}
		if cur < MinTransmutedGrade || cur > MaxTransmutedGrade {
			t.Fatalf("Transmute(%.2f) = %d out of range", g, cur)
		}
		prev = cur
	}
}

func TestTransmutationTableShape(t *testing.T) {
	if len(transmutationTable) != MaxTransmutedGrade-MinTransmutedGrade {
		t.Fatalf("table has %d bands", len(transmutationTable))
	}
	for i := 1; i < len(transmutationTable); i++ {
		hi, lo := transmutationTable[i-1], transmutationTable[i]
		if hi.grade != lo.grade+1 {
			t.Errorf("band %d: grades %d then %d", i, hi.grade, lo.grade)
		}
		if w := hi.min - lo.min; w < 1.5 || w > 1.6 {
			t.Errorf("band %d width %.2f", i, w)
		}
	}
}

func TestAggregationExample(t *testing.T) {
	profile := ResolveTrackProfile("Earth and Life Science")
	b := NewBreakdown("2024-001", 18, 20, 40, 50, profile)

	if b.WrittenWorks.PS != 90 || b.WrittenWorks.WS != 22.5 {
		t.Errorf("written = %+v", b.WrittenWorks)
	}
	if b.PerformanceTasks.PS != 80 || b.PerformanceTasks.WS != 40 {
		t.Errorf("performance = %+v", b.PerformanceTasks)
	}
	if b.InitialGrade != 62.5 {
		t.Errorf("initial grade = %v, want 62.5", b.InitialGrade)
	}

	exam := 80.0
	raw, final := FinalGrade(b.InitialGrade, &exam, profile.Percentages.Quarterly)
	if raw != 82.5 {
		t.Errorf("raw final = %v, want 82.5", raw)
	}
	if final != 88 {
		t.Errorf("final grade = %d, want 88", final)
	}
}

func TestFinalGradeWithoutExam(t *testing.T) {
	raw, final := FinalGrade(62.5, nil, 25)
	if raw != 0 || final != 0 {
		t.Errorf("FinalGrade without exam = %v, %d", raw, final)
	}
}

func TestNewComponentZeroHPS(t *testing.T) {
	c := NewComponent(0, 0, 25)
	if c.PS != 0 || c.WS != 0 {
		t.Errorf("zero HPS component = %+v", c)
	}
}

func TestAggregate(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	activities := []Activity{
		{ID: "ww1", Type: WrittenWork, Points: 10, Quarter: Q1, PublishAt: now.Add(-48 * time.Hour)},
		{ID: "ww2", Type: WrittenWork, Points: 10, Quarter: Q1, PublishAt: now.Add(-24 * time.Hour)},
		{ID: "pt1", Type: PerformanceTask, Points: 50, Quarter: Q1, PublishAt: now.Add(-time.Hour)},
		{ID: "future", Type: WrittenWork, Points: 100, Quarter: Q1, PublishAt: now.Add(72 * time.Hour)},
		{ID: "other", Type: WrittenWork, Points: 30, Quarter: Q2, PublishAt: now.Add(-time.Hour)},
	}
	scores := []ActivityScore{
		{StudentID: "s1", ActivityID: "ww1", RawScore: 9, Source: SourceAssignment},
		{StudentID: "s1", ActivityID: "ww2", RawScore: 9, Source: SourceQuiz},
		{StudentID: "s1", ActivityID: "pt1", RawScore: 40, Source: SourceAssignment},
		{StudentID: "s1", ActivityID: "future", RawScore: 100, Source: SourceQuiz},
		{StudentID: "s1", ActivityID: "other", RawScore: 30, Source: SourceQuiz},
		{StudentID: "s2", ActivityID: "ww1", RawScore: 15, Source: SourceQuiz},
		{StudentID: "s2", ActivityID: "ww2", RawScore: 4, Source: SourceQuiz},
		{StudentID: "s2", ActivityID: "ww2", RawScore: 7, Source: SourceQuiz},
		{StudentID: "stranger", ActivityID: "ww1", RawScore: 10, Source: SourceQuiz},
	}

	got, hps := Aggregate(AggregateInput{
		StudentIDs: []string{"s1", "s2", "s3"},
		Activities: activities,
		Scores:     scores,
		Quarter:    Q1,
		AsOf:       now,
		Profile:    ResolveTrackProfile("Oral Communication"),
	})

	if hps.Written != 20 || hps.Performance != 50 {
		t.Fatalf("hps = %+v, want 20/50", hps)
	}
	if len(got) != 3 {
		t.Fatalf("got %d breakdowns", len(got))
	}

	if got[0].StudentID != "s1" || got[0].WrittenWorks.RAW != 18 || got[0].PerformanceTasks.RAW != 40 {
		t.Errorf("s1 = %+v", got[0])
	}
	if got[0].InitialGrade != 62.5 {
		t.Errorf("s1 initial grade = %v", got[0].InitialGrade)
	}
	// Scores above the activity points are clamped; repeated attempts keep the best.
	if got[1].WrittenWorks.RAW != 17 {
		t.Errorf("s2 written RAW = %v, want 17", got[1].WrittenWorks.RAW)
	}
	if got[2].WrittenWorks.RAW != 0 || got[2].WrittenWorks.HPS != 20 {
		t.Errorf("s3 = %+v", got[2])
	}
}

func TestComputeTermGrade(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name          string
		first, second *float64
		want          *TermGrade
	}{
		{"passed", f(88), f(90), &TermGrade{Grade: 89, Remarks: Passed}},
		{"repeat", f(70), f(72), &TermGrade{Grade: 71, Remarks: Repeat}},
		{"boundary", f(74), f(76), &TermGrade{Grade: 75, Remarks: Passed}},
		{"rounded", f(88), f(89), &TermGrade{Grade: 88.5, Remarks: Passed}},
		{"missing second", f(88), nil, nil},
		{"missing first", nil, f(90), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTermGrade(tt.first, tt.second)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("got %+v, want %+v", *got, *tt.want)
			}
		})
	}
}

func TestParseQuarter(t *testing.T) {
	tests := map[string]Quarter{
		"Q1":             Q1,
		"q2":             Q2,
		"Quarter 3":      Q3,
		"4th Quarter":    Q4,
		"First Quarter":  Q1,
		"2":              Q2,
		" quarter_4 ":    Q4,
		"Second quarter": Q2,
	}
	for in, want := range tests {
		got, err := ParseQuarter(in)
		if err != nil || got != want {
			t.Errorf("ParseQuarter(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	for _, bad := range []string{"", "Quarter", "Q5", "midterm", "Q1 Q2"} {
		if _, err := ParseQuarter(bad); err == nil {
			t.Errorf("ParseQuarter(%q) succeeded", bad)
		}
	}
}

func TestQuarterTerms(t *testing.T) {
	if Q1.Term() != FirstSemester || Q2.Term() != FirstSemester {
		t.Error("Q1/Q2 should be first semester")
	}
	if Q3.Term() != SecondSemester || Q4.Term() != SecondSemester {
		t.Error("Q3/Q4 should be second semester")
	}
	if Q1.Partner() != Q2 || Q4.Partner() != Q3 {
		t.Error("unexpected partners")
	}
	a, b := SecondSemester.Quarters()
	if a != Q3 || b != Q4 {
		t.Errorf("second semester quarters = %s, %s", a, b)
	}

	for in, want := range map[string]Term{"1st Semester": FirstSemester, "Second Semester": SecondSemester, "sem 2": SecondSemester} {
		got, err := ParseTerm(in)
		if err != nil || got != want {
			t.Errorf("ParseTerm(%q) = %q, %v", in, got, err)
		}
	}
}
