// Package grading holds the pure computations of the grading pipeline: track
// weighting, score aggregation, transmutation and term aggregation.
package grading

import "time"

// ActivityType partitions activities into grade components.
type ActivityType string

const (
	WrittenWork     ActivityType = "written"
	PerformanceTask ActivityType = "performance"
)

// ScoreSource tags where an ActivityScore was normalized from.
type ScoreSource string

const (
	SourceAssignment ScoreSource = "assignment"
	SourceQuiz       ScoreSource = "quiz"
)

// Activity is one gradable unit as defined by faculty.
type Activity struct {
	ID        string       `json:"id" bson:"_id"`
	ClassID   string       `json:"class_id" bson:"class_id"`
	Type      ActivityType `json:"activity_type" bson:"activity_type"`
	Points    float64      `json:"points" bson:"points"`
	Quarter   Quarter      `json:"quarter" bson:"quarter"`
	PublishAt time.Time    `json:"publish_at" bson:"publish_at"`
}

// Released reports whether the activity counts toward grades at asOf.
// Activities scheduled for the future count toward neither RAW nor HPS.
func (a Activity) Released(asOf time.Time) bool {
	return !a.PublishAt.After(asOf)
}

// ActivityScore is one student's graded result for one activity.
type ActivityScore struct {
	StudentID  string      `json:"student_id" bson:"student_id"`
	ActivityID string      `json:"activity_id" bson:"activity_id"`
	RawScore   float64     `json:"raw_score" bson:"raw_score"`
	Source     ScoreSource `json:"source" bson:"source"`
}

// Component holds the RAW/HPS/PS/WS figures of one grade component.
type Component struct {
	RAW float64 `json:"raw" bson:"raw"`
	HPS float64 `json:"hps" bson:"hps"`
	PS  float64 `json:"ps" bson:"ps"`
	WS  float64 `json:"ws" bson:"ws"`
}

// NewComponent computes PS and WS for the given totals. PS is 0 when HPS is 0.
func NewComponent(raw, hps float64, weight int) Component {
	c := Component{RAW: Round2(raw), HPS: Round2(hps)}
	if hps > 0 {
		c.PS = Round2(raw / hps * 100)
	}
	c.WS = Round2(c.PS * float64(weight) / 100)
	return c
}

// Breakdown is the weighted score summary of one student for one quarter.
type Breakdown struct {
	StudentID        string    `json:"student_id"`
	WrittenWorks     Component `json:"written_works"`
	PerformanceTasks Component `json:"performance_tasks"`
	InitialGrade     float64   `json:"initial_grade"`
}

// NewBreakdown builds a Breakdown from component totals under profile.
func NewBreakdown(studentID string, writtenRAW, writtenHPS, performanceRAW, performanceHPS float64, profile TrackProfile) Breakdown {
	ww := NewComponent(writtenRAW, writtenHPS, profile.Percentages.Written)
	pt := NewComponent(performanceRAW, performanceHPS, profile.Percentages.Performance)
	return Breakdown{
		StudentID:        studentID,
		WrittenWorks:     ww,
		PerformanceTasks: pt,
		InitialGrade:     Round2(ww.WS + pt.WS),
	}
}

// HPS is the highest possible score per component for a class quarter.
type HPS struct {
	Written     float64 `json:"written"`
	Performance float64 `json:"performance"`
}

// ComputeHPS sums points of the released activities of quarter. It depends
// only on activity definitions, so one value serves every student.
func ComputeHPS(activities []Activity, quarter Quarter, asOf time.Time) HPS {
	var h HPS
	for _, a := range activities {
		if a.Quarter != quarter || !a.Released(asOf) {
			continue
		}
		switch a.Type {
		case WrittenWork:
			h.Written += a.Points
		case PerformanceTask:
			h.Performance += a.Points
		}
	}
	return h
}

// AggregateInput is everything the score aggregator reads.
type AggregateInput struct {
	StudentIDs []string
	Activities []Activity
	Scores     []ActivityScore
	Quarter    Quarter
	AsOf       time.Time
	Profile    TrackProfile
}

// Aggregate converts raw activity scores into per-student breakdowns, one
// per entry of StudentIDs and in the same order. Students without scores get
// zero RAW against the shared HPS.
func Aggregate(in AggregateInput) ([]Breakdown, HPS) {
	hps := ComputeHPS(in.Activities, in.Quarter, in.AsOf)

	counted := make(map[string]Activity, len(in.Activities))
	for _, a := range in.Activities {
		if a.Quarter == in.Quarter && a.Released(in.AsOf) {
			counted[a.ID] = a
		}
	}

	type totals struct{ written, performance float64 }
	raw := make(map[string]*totals, len(in.StudentIDs))
	for _, id := range in.StudentIDs {
		raw[id] = &totals{}
	}

	// One score per student and activity; repeated attempts keep the best.
	type scoreKey struct{ student, activity string }
	best := make(map[scoreKey]float64, len(in.Scores))
	for _, s := range in.Scores {
		a, ok := counted[s.ActivityID]
		if !ok {
			continue
		}
		if _, ok := raw[s.StudentID]; !ok {
			continue
		}
		k := scoreKey{s.StudentID, s.ActivityID}
		score := clamp(s.RawScore, 0, a.Points)
		if prev, seen := best[k]; !seen || score > prev {
			best[k] = score
		}
	}

	for k, score := range best {
		t := raw[k.student]
		switch counted[k.activity].Type {
		case WrittenWork:
			t.written += score
		case PerformanceTask:
			t.performance += score
		}
	}

	out := make([]Breakdown, 0, len(in.StudentIDs))
	for _, id := range in.StudentIDs {
		t := raw[id]
		out = append(out, NewBreakdown(id, t.written, hps.Written, t.performance, hps.Performance, in.Profile))
	}
	return out, hps
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
