package grade

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"shs_lms/backend/internal/grading"
	"shs_lms/backend/internal/shared"
)

// MongoDirectory reads the LMS collections the pipeline depends on. Records
// are normalized here so nothing downstream branches on document shape.
type MongoDirectory struct {
	classesCol     *mongo.Collection
	rosterCol      *mongo.Collection
	activitiesCol  *mongo.Collection
	submissionsCol *mongo.Collection
	attemptsCol    *mongo.Collection
	periodsCol     *mongo.Collection
}

// NewMongoDirectory creates a MongoDirectory over db
func NewMongoDirectory(db *mongo.Database) *MongoDirectory {
	return &MongoDirectory{
		classesCol:     db.Collection(shared.CollectionClasses),
		rosterCol:      db.Collection(shared.CollectionClassStudents),
		activitiesCol:  db.Collection(shared.CollectionActivities),
		submissionsCol: db.Collection(shared.CollectionAssignmentSubmissions),
		attemptsCol:    db.Collection(shared.CollectionQuizAttempts),
		periodsCol:     db.Collection(shared.CollectionAcademicPeriods),
	}
}

// Providers returns d wired as every collaborator
func (d *MongoDirectory) Providers() Providers {
	return Providers{Classes: d, Roster: d, Activities: d, Periods: d}
}

// GetClass accepts both a "sections" array and a legacy single "section"
func (d *MongoDirectory) GetClass(ctx context.Context, classID string) (*shared.ClassInfo, error) {
	var doc bson.M
	if err := d.classesCol.FindOne(ctx, bson.M{"_id": classID}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}

	c := &shared.ClassInfo{ID: classID}
	c.Code, _ = shared.GetString(doc["code"])
	c.SubjectName, _ = shared.GetString(doc["subject_name"])
	if c.SubjectName == "" {
		c.SubjectName, _ = shared.GetString(doc["name"])
	}
	c.FacultyID, _ = shared.GetString(doc["faculty_id"])

	if arr, ok := doc["sections"].(primitive.A); ok {
		for _, s := range arr {
			if str, err := shared.GetString(s); err == nil && str != "" {
				c.Sections = append(c.Sections, str)
			}
		}
	}
	if s, err := shared.GetString(doc["section"]); err == nil && s != "" && len(c.Sections) == 0 {
		c.Sections = []string{s}
	}
	return c, nil
}

func (d *MongoDirectory) ListRoster(ctx context.Context, classID, section string) ([]shared.RosterEntry, error) {
	filter := bson.M{"class_id": classID, "section": section}
	return shared.FindAll[shared.RosterEntry](ctx, d.rosterCol, filter, shared.BuildFindOptions(0, "student_name", 1))
}

// ListActivities normalizes quarter names and activity types. Activities with
// an unrecognized quarter or type are skipped with a warning.
func (d *MongoDirectory) ListActivities(ctx context.Context, classID string, quarter grading.Quarter) ([]grading.Activity, error) {
	docs, err := shared.FindAll[bson.M](ctx, d.activitiesCol, bson.M{"class_id": classID})
	if err != nil {
		return nil, err
	}

	out := make([]grading.Activity, 0, len(docs))
	for _, doc := range docs {
		a, err := activityFromDocument(doc)
		if err != nil {
			log.Printf("WARN: Skipping activity %v of class %s: %v", doc["_id"], classID, err)
			continue
		}
		if a.Quarter == quarter {
			out = append(out, a)
		}
	}
	return out, nil
}

func activityFromDocument(doc bson.M) (grading.Activity, error) {
	a := grading.Activity{ID: idString(doc["_id"])}
	a.ClassID, _ = shared.GetString(doc["class_id"])

	rawQuarter, _ := shared.GetString(doc["quarter"])
	q, err := grading.ParseQuarter(rawQuarter)
	if err != nil {
		return a, err
	}
	a.Quarter = q

	rawType, _ := shared.GetString(doc["activity_type"])
	if rawType == "" {
		rawType, _ = shared.GetString(doc["type"])
	}
	t, err := parseActivityType(rawType)
	if err != nil {
		return a, err
	}
	a.Type = t

	if a.Points, err = shared.GetFloat64(doc["points"]); err != nil {
		return a, fmt.Errorf("points: %w", err)
	}

	for _, field := range []string{"publish_at", "scheduled_at", "created_at"} {
		if ts, err := shared.GetTime(doc[field]); err == nil {
			a.PublishAt = ts
			break
		}
	}
	return a, nil
}

func parseActivityType(s string) (grading.ActivityType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(v, "written"), v == "ww":
		return grading.WrittenWork, nil
	case strings.HasPrefix(v, "performance"), v == "pt":
		return grading.PerformanceTask, nil
	}
	return "", fmt.Errorf("unrecognized activity type %q", s)
}

// ListScores merges graded assignment submissions and completed quiz
// attempts into one score list
func (d *MongoDirectory) ListScores(ctx context.Context, classID string, activityIDs []string) ([]grading.ActivityScore, error) {
	if len(activityIDs) == 0 {
		return []grading.ActivityScore{}, nil
	}

	submissions, err := shared.FindAll[bson.M](ctx, d.submissionsCol, bson.M{"assignment_id": bson.M{"$in": activityIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to read submissions: %w", err)
	}
	attempts, err := shared.FindAll[bson.M](ctx, d.attemptsCol, bson.M{"quiz_id": bson.M{"$in": activityIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to read quiz attempts: %w", err)
	}

	out := make([]grading.ActivityScore, 0, len(submissions)+len(attempts))
	for _, doc := range submissions {
		if s, ok := submissionScore(doc); ok {
			out = append(out, s)
		}
	}
	for _, doc := range attempts {
		if s, ok := attemptScore(doc); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// submissionScore reads {assignment_id, student_id, score, status}. Only
// graded submissions count.
func submissionScore(doc bson.M) (grading.ActivityScore, bool) {
	status, _ := shared.GetString(doc["status"])
	graded, _ := shared.GetBool(doc["graded"])
	if !graded && !strings.EqualFold(status, "graded") {
		return grading.ActivityScore{}, false
	}

	score, err := shared.GetFloat64(doc["score"])
	if err != nil {
		return grading.ActivityScore{}, false
	}
	studentID, _ := shared.GetString(doc["student_id"])
	return grading.ActivityScore{
		StudentID:  studentID,
		ActivityID: idString(doc["assignment_id"]),
		RawScore:   score,
		Source:     grading.SourceAssignment,
	}, studentID != ""
}

// attemptScore reads {quiz_id, student_id, total_score|score, status}. Only
// submitted or graded attempts count.
func attemptScore(doc bson.M) (grading.ActivityScore, bool) {
	status, _ := shared.GetString(doc["status"])
	switch strings.ToLower(status) {
	case "submitted", "graded", "completed":
	default:
		return grading.ActivityScore{}, false
	}

	score, err := shared.GetFloat64(doc["total_score"])
	if err != nil {
		if score, err = shared.GetFloat64(doc["score"]); err != nil {
			return grading.ActivityScore{}, false
		}
	}
	studentID, _ := shared.GetString(doc["student_id"])
	return grading.ActivityScore{
		StudentID:  studentID,
		ActivityID: idString(doc["quiz_id"]),
		RawScore:   score,
		Source:     grading.SourceQuiz,
	}, studentID != ""
}

// ActivePeriod reads the active academic period and normalizes its names
func (d *MongoDirectory) ActivePeriod(ctx context.Context) (grading.Period, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var p shared.AcademicPeriod
	if err := d.periodsCol.FindOne(queryCtx, bson.M{"is_active": true}).Decode(&p); err != nil {
		if err == mongo.ErrNoDocuments {
			return grading.Period{}, ErrNotFound
		}
		return grading.Period{}, err
	}

	q, err := grading.ParseQuarter(p.Quarter)
	if err != nil {
		return grading.Period{}, fmt.Errorf("active period %s: %w", p.ID, err)
	}
	return grading.Period{AcademicYear: p.AcademicYear, Term: q.Term(), Quarter: q}, nil
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}
