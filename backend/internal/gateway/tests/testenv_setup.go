package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"shs_lms/backend/internal/gateway"
	"shs_lms/backend/internal/gateway/util"
	"shs_lms/backend/internal/grade"
	"shs_lms/backend/internal/grading"
	"shs_lms/backend/internal/shared"
)

const (
	testSecret  = "test-secret"
	testIssuer  = "shs-lms"
	testClassID = "CLS-GENMATH-11"
	testFaculty = "FAC-001"
)

// TestEnv holds the running gateway and its in-memory backing stores
type TestEnv struct {
	Router    http.Handler
	Store     *grade.MemoryStore
	Directory *grade.MemoryDirectory

	FacultyToken      string
	OtherFacultyToken string
	StudentToken      string
}

// setupGatewayTestEnv wires the gateway to a grading service over memory
// stores, with tokens signed the way the LMS auth service signs them
func setupGatewayTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	// --- 1. Seed the LMS directory ---
	dir := grade.NewMemoryDirectory()
	dir.AddClass(shared.ClassInfo{
		ID:          testClassID,
		Code:        "GENMATH-11",
		SubjectName: "General Mathematics",
		Sections:    []string{"STEM-11A"},
		FacultyID:   testFaculty,
	})
	dir.AddStudents(
		shared.RosterEntry{ClassID: testClassID, Section: "STEM-11A", StudentID: "2024-001", StudentName: "Juan Dela Cruz"},
		shared.RosterEntry{ClassID: testClassID, Section: "STEM-11A", StudentID: "2024-003", StudentName: "Jose Rizal"},
	)
	dir.SetActivePeriod(grading.Period{AcademicYear: "2026-2027", Term: grading.FirstSemester, Quarter: grading.Q1})

	// --- 2. Initialize the grading service ---
	store := grade.NewMemoryStore()
	metrics := grade.NewMetrics()
	svc := grade.NewGradeService(store, dir.Providers(), grade.Options{Metrics: metrics, StagingTTL: time.Hour})

	cfg := &shared.ServiceConfig{
		ServiceName: "grading-service",
		Security:    shared.SecurityConfig{JWTSecret: testSecret, JWTIssuer: testIssuer},
		Upload:      shared.UploadConfig{MaxUploadBytes: 1 << 20},
		CORS: shared.CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173"},
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		},
	}

	// --- 3. Initialize Gateway Router ---
	return &TestEnv{
		Router:            gateway.SetupRoutes(svc, cfg, metrics),
		Store:             store,
		Directory:         dir,
		FacultyToken:      signToken(t, util.Claims{UserID: testFaculty, Role: shared.RoleFaculty}),
		OtherFacultyToken: signToken(t, util.Claims{UserID: "FAC-002", Role: shared.RoleFaculty}),
		StudentToken:      signToken(t, util.Claims{UserID: "USR-1", Role: shared.RoleStudent, StudentID: "2024-001"}),
	}
}

func signToken(t *testing.T, c util.Claims) string {
	t.Helper()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    testIssuer,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := util.SignToken(c, testSecret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}
