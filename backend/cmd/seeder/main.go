package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"shs_lms/backend/internal/gateway/util"
	"shs_lms/backend/internal/grade"
	"shs_lms/backend/internal/shared"
)

// Demo identities and the active academic period
const (
	FacultyID1 = "faculty-001"
	FacultyID2 = "faculty-002"

	AcademicYear  = "2026-2027"
	ActiveTerm    = "1st Semester"
	ActiveQuarter = "Quarter 1"

	GenMathID  = "GENMATH-11_2026"
	ResearchID = "PR2-12_2026"
	CookeryID  = "TVL-COOK-11_2026"
)

// ClassSeed describes one class offering
type ClassSeed struct {
	ID          string
	Code        string
	SubjectName string
	Sections    []string
	FacultyID   string
}

// ActivitySeed describes one activity and the scores recorded for it
type ActivitySeed struct {
	ID        string
	ClassID   string
	Type      string // written | performance
	Source    string // assignment | quiz
	Points    float64
	Quarter   string
	PublishAt time.Time
	Scores    map[string]float64
}

func main() {
	log.Println("INFO: Starting Grading Seeder...")

	if err := shared.LoadEnv(".env"); err != nil {
		log.Println("WARN: .env file not found, using system environment variables")
	}

	cfg, err := shared.LoadServiceConfig("seeder")
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	client, db, err := shared.ConnectMongoDB(&cfg.MongoDB)
	if err != nil {
		log.Fatalf("FATAL: Failed to connect to MongoDB: %v", err)
	}
	defer shared.DisconnectMongoDB(client)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Only the collections this seeder owns are cleared
	for _, name := range []string{
		shared.CollectionClasses, shared.CollectionClassStudents, shared.CollectionActivities,
		shared.CollectionAssignmentSubmissions, shared.CollectionQuizAttempts, shared.CollectionAcademicPeriods,
		shared.CollectionQuarterGrades, shared.CollectionQuarterlyGrades, shared.CollectionStagedBatches, shared.CollectionPostedGrades,
	} {
		if err := db.Collection(name).Drop(ctx); err != nil {
			log.Fatalf("FATAL: Failed to drop %s: %v", name, err)
		}
	}
	log.Println("INFO: Grading collections cleared.")

	// --- 1. Academic Period ---
	seedAcademicPeriod(ctx, db)

	// --- 2. Classes ---
	classSeeds := []ClassSeed{
		{GenMathID, "GENMATH-11", "General Mathematics", []string{"STEM-11A", "STEM-11B"}, FacultyID1},
		{ResearchID, "PR2-12", "Practical Research 2", []string{"STEM-12A"}, FacultyID1},
		{CookeryID, "TVL-COOK-11", "TVL - Cookery NC II", []string{"TVL-11A"}, FacultyID2},
	}
	seedClasses(ctx, db, classSeeds)

	// --- 3. Rosters ---
	seedRoster(ctx, db, GenMathID, "STEM-11A", map[string]string{
		"2024-001": "Juan Dela Cruz",
		"2024-002": "Maria Clara Santos",
		"2024-003": "José Rizal",
	})
	seedRoster(ctx, db, GenMathID, "STEM-11B", map[string]string{
		"2024-101": "Andres Bonifacio",
		"2024-102": "Gabriela Silang",
	})
	seedRoster(ctx, db, CookeryID, "TVL-11A", map[string]string{
		"2024-201": "Melchora Aquino",
		"2024-202": "Emilio Aguinaldo",
	})

	// --- 4. Activities and Scores ---
	now := time.Now()
	activitySeeds := []ActivitySeed{
		{"gm-ww1", GenMathID, "written", "quiz", 20, "Quarter 1", now.AddDate(0, 0, -30),
			map[string]float64{"2024-001": 18, "2024-002": 15, "2024-003": 12}},
		{"gm-ww2", GenMathID, "written", "assignment", 30, "Q1", now.AddDate(0, 0, -20),
			map[string]float64{"2024-001": 27, "2024-002": 24}},
		{"gm-pt1", GenMathID, "performance", "assignment", 50, "1st Quarter", now.AddDate(0, 0, -15),
			map[string]float64{"2024-001": 40, "2024-002": 45, "2024-003": 35}},
		{"gm-ww3", GenMathID, "written", "quiz", 25, "Quarter 1", now.AddDate(0, 0, 7), nil},
		{"gm-q2-ww1", GenMathID, "written", "quiz", 20, "Quarter 2", now.AddDate(0, 1, 0), nil},
		{"ck-pt1", CookeryID, "performance", "assignment", 100, "Quarter 1", now.AddDate(0, 0, -10),
			map[string]float64{"2024-201": 92, "2024-202": 81}},
		{"ck-ww1", CookeryID, "written", "quiz", 40, "Quarter 1", now.AddDate(0, 0, -12),
			map[string]float64{"2024-201": 33, "2024-202": 29}},
	}
	seedActivities(ctx, db, activitySeeds)

	// --- 5. Grading Indexes ---
	if err := grade.NewMongoStore(db).EnsureIndexes(ctx); err != nil {
		log.Fatalf("FATAL: Failed to create grading indexes: %v", err)
	}

	// --- 6. Development Tokens ---
	if shared.IsDevelopment(cfg) && cfg.Security.JWTSecret != "" {
		printToken(cfg, util.Claims{UserID: FacultyID1, Role: shared.RoleFaculty})
		printToken(cfg, util.Claims{UserID: "user-2024-001", Role: shared.RoleStudent, StudentID: "2024-001"})
	}

	log.Println("INFO: All data seeding completed successfully.")
}

// ============================================================================
// SEEDING FUNCTIONS
// ============================================================================

func seedAcademicPeriod(ctx context.Context, db *mongo.Database) {
	log.Println("--- Seeding Academic Period ---")
	periods := []interface{}{
		shared.AcademicPeriod{ID: "2026-2027-Q1", AcademicYear: AcademicYear, Term: ActiveTerm, Quarter: ActiveQuarter, IsActive: true},
		shared.AcademicPeriod{ID: "2026-2027-Q2", AcademicYear: AcademicYear, Term: ActiveTerm, Quarter: "Quarter 2", IsActive: false},
	}
	if _, err := db.Collection(shared.CollectionAcademicPeriods).InsertMany(ctx, periods); err != nil {
		log.Fatalf("FATAL: Failed to seed academic periods: %v", err)
	}
	log.Printf("INFO: Active period %s %s %s", AcademicYear, ActiveTerm, ActiveQuarter)
}

func seedClasses(ctx context.Context, db *mongo.Database, seeds []ClassSeed) {
	log.Println("--- Seeding Classes ---")
	docs := make([]interface{}, 0, len(seeds))
	for _, s := range seeds {
		docs = append(docs, bson.M{
			"_id":          s.ID,
			"code":         s.Code,
			"subject_name": s.SubjectName,
			"sections":     s.Sections,
			"faculty_id":   s.FacultyID,
			"created_at":   time.Now(),
		})
	}
	if _, err := db.Collection(shared.CollectionClasses).InsertMany(ctx, docs); err != nil {
		log.Fatalf("FATAL: Failed to seed classes: %v", err)
	}
	log.Printf("INFO: Seeded %d classes", len(docs))
}

func seedRoster(ctx context.Context, db *mongo.Database, classID, section string, students map[string]string) {
	docs := make([]interface{}, 0, len(students))
	for id, name := range students {
		docs = append(docs, shared.RosterEntry{ClassID: classID, Section: section, StudentID: id, StudentName: name})
	}
	if _, err := db.Collection(shared.CollectionClassStudents).InsertMany(ctx, docs); err != nil {
		log.Fatalf("FATAL: Failed to seed roster of %s %s: %v", classID, section, err)
	}
	log.Printf("INFO: Seeded %d students into %s %s", len(docs), classID, section)
}

// seedActivities writes assignment scores as graded submissions and quiz
// scores as completed attempts, the two shapes the directory reads
func seedActivities(ctx context.Context, db *mongo.Database, seeds []ActivitySeed) {
	log.Println("--- Seeding Activities ---")
	var activities, submissions, attempts []interface{}
	for _, a := range seeds {
		activities = append(activities, bson.M{
			"_id":           a.ID,
			"class_id":      a.ClassID,
			"activity_type": a.Type,
			"source":        a.Source,
			"points":        a.Points,
			"quarter":       a.Quarter,
			"publish_at":    a.PublishAt,
		})

		for studentID, score := range a.Scores {
			if a.Source == "quiz" {
				attempts = append(attempts, bson.M{
					"quiz_id":      a.ID,
					"student_id":   studentID,
					"total_score":  score,
					"status":       "completed",
					"submitted_at": a.PublishAt.Add(2 * time.Hour),
				})
				continue
			}
			submissions = append(submissions, bson.M{
				"assignment_id": a.ID,
				"student_id":    studentID,
				"score":         score,
				"status":        "graded",
				"graded":        true,
				"submitted_at":  a.PublishAt.Add(24 * time.Hour),
			})
		}
	}

	insert := func(name string, docs []interface{}) {
		if len(docs) == 0 {
			return
		}
		if _, err := db.Collection(name).InsertMany(ctx, docs); err != nil {
			log.Fatalf("FATAL: Failed to seed %s: %v", name, err)
		}
		log.Printf("INFO: Seeded %d documents into %s", len(docs), name)
	}
	insert(shared.CollectionActivities, activities)
	insert(shared.CollectionAssignmentSubmissions, submissions)
	insert(shared.CollectionQuizAttempts, attempts)
}

func printToken(cfg *shared.ServiceConfig, c util.Claims) {
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    cfg.Security.JWTIssuer,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	}
	token, err := util.SignToken(c, cfg.Security.JWTSecret)
	if err != nil {
		log.Printf("ERROR: Failed to sign %s token: %v", c.Role, err)
		return
	}
	fmt.Printf("%s token (%s): %s\n", c.Role, c.UserID, token)
}
