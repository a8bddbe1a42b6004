package tests

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"shs_lms/backend/internal/gateway/util"
	"shs_lms/backend/internal/shared"
)

const sectionPath = "/api/grading/classes/" + testClassID + "/sections/STEM-11A/quarters/Q1"

const validSheet = "Class Code,GENMATH-11\n" +
	"Section,STEM-11A\n" +
	"Student No.,Student's Name,Written Works,,Performance Tasks,,Quarterly Exam\n" +
	",,RAW,HPS,RAW,HPS,\n" +
	"2024-001,Juan Dela Cruz,18,20,40,50,80\n" +
	"2024-003,Jose Rizal,10,20,30,50,75\n"

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`

	AlreadyPosted bool `json:"already_posted"`
}

func doRequest(t *testing.T, env *TestEnv, method, path, token string, body []byte, contentType string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	rr := httptest.NewRecorder()
	env.Router.ServeHTTP(rr, req)

	var resp apiResponse
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Invalid JSON response: %v", err)
		}
	}
	return rr, resp
}

func uploadBody(t *testing.T, filename, content string, acknowledge bool) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	fw.Write([]byte(content))
	if acknowledge {
		mw.WriteField("acknowledge", "true")
	}
	mw.Close()
	return buf.Bytes(), mw.FormDataContentType()
}

func TestGateway_Auth(t *testing.T) {
	env := setupGatewayTestEnv(t)

	t.Run("Missing token", func(t *testing.T) {
		rr, _ := doRequest(t, env, "GET", "/api/grading/track?subject=Math", "", nil, "")
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rr.Code)
		}
	})

	t.Run("Wrong secret", func(t *testing.T) {
		forged, _ := util.SignToken(util.Claims{UserID: testFaculty, Role: shared.RoleFaculty, RegisteredClaims: jwt.RegisteredClaims{Issuer: testIssuer}}, "other-secret")
		rr, _ := doRequest(t, env, "GET", "/api/grading/track?subject=Math", forged, nil, "")
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", rr.Code)
		}
	})

	t.Run("Student on faculty route", func(t *testing.T) {
		rr, _ := doRequest(t, env, "GET", sectionPath+"/compute", env.StudentToken, nil, "")
		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", rr.Code)
		}
	})

	t.Run("Faculty not assigned to class", func(t *testing.T) {
		rr, _ := doRequest(t, env, "GET", sectionPath+"/compute", env.OtherFacultyToken, nil, "")
		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403, got %d", rr.Code)
		}
	})
}

func TestGateway_Computations(t *testing.T) {
	env := setupGatewayTestEnv(t)

	// --- Test 1: Track profile (GET /api/grading/track) ---
	t.Run("Track profile", func(t *testing.T) {
		rr, _ := doRequest(t, env, "GET", "/api/grading/track?subject=Work+Immersion", env.StudentToken, nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
		var body struct {
			Label string `json:"label"`
		}
		json.Unmarshal(rr.Body.Bytes(), &body)
		if body.Label != "Academic (Special)" {
			t.Errorf("Unexpected label %q", body.Label)
		}
	})

	// --- Test 2: Transmutation (GET /api/grading/transmute) ---
	t.Run("Transmute", func(t *testing.T) {
		rr, _ := doRequest(t, env, "GET", "/api/grading/transmute?grade=82.5", env.FacultyToken, nil, "")
		var body struct {
			Transmuted int `json:"transmuted_grade"`
		}
		json.Unmarshal(rr.Body.Bytes(), &body)
		if rr.Code != http.StatusOK || body.Transmuted != 88 {
			t.Errorf("Expected 200 and 88, got %d and %d", rr.Code, body.Transmuted)
		}

		rr, _ = doRequest(t, env, "GET", "/api/grading/transmute?grade=abc", env.FacultyToken, nil, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", rr.Code)
		}
	})

	// --- Test 3: Compute (GET .../compute) ---
	t.Run("Compute", func(t *testing.T) {
		rr, resp := doRequest(t, env, "GET", sectionPath+"/compute", env.FacultyToken, nil, "")
		if rr.Code != http.StatusOK || !resp.Success {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var data struct {
			Rows []shared.GradeRow `json:"rows"`
		}
		json.Unmarshal(resp.Data, &data)
		if len(data.Rows) != 2 {
			t.Errorf("Expected 2 rows, got %d", len(data.Rows))
		}
	})

	// --- Test 4: Save quarter grades (PUT .../quarter-grades) ---
	t.Run("Save quarter grades", func(t *testing.T) {
		body := []byte(`{"grades":[{"student_id":"2024-001","written_works_raw":18,"written_works_hps":20,"performance_tasks_raw":40,"performance_tasks_hps":50,"quarterly_exam":80}],"finalize":true}`)
		rr, resp := doRequest(t, env, "PUT", sectionPath+"/quarter-grades", env.FacultyToken, body, "application/json")
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, resp.Message)
		}

		bad := []byte(`{"grades":[{"student_id":"2099-999"}]}`)
		rr, _ = doRequest(t, env, "PUT", sectionPath+"/quarter-grades", env.FacultyToken, bad, "application/json")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for an unknown student, got %d", rr.Code)
		}
	})

	// --- Test 5: Term grades stay with faculty until posted ---
	t.Run("Term grade", func(t *testing.T) {
		body := []byte(`{"quarter":"Q2","class_id":"` + testClassID + `","student_id":"2024-001","final_grade":90}`)
		rr, _ := doRequest(t, env, "PUT", "/api/grading/quarterly-grades", env.FacultyToken, body, "application/json")
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}

		rr, resp := doRequest(t, env, "GET", "/api/grading/term-grades?class_id="+testClassID+"&student_id=2024-001", env.FacultyToken, nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
		var data struct {
			StudentID string `json:"student_id"`
			TermGrade *struct {
				Grade float64 `json:"term_final_grade"`
			} `json:"term_grade"`
		}
		json.Unmarshal(resp.Data, &data)
		if data.StudentID != "2024-001" || data.TermGrade == nil || data.TermGrade.Grade != 89 {
			t.Errorf("Expected term grade 89 for 2024-001, got %+v", data)
		}

		// Saved but unposted grades are invisible to the student
		rr, _ = doRequest(t, env, "GET", "/api/grading/term-grades?class_id="+testClassID, env.StudentToken, nil, "")
		if rr.Code != http.StatusForbidden {
			t.Errorf("Expected 403 for a student, got %d", rr.Code)
		}

		rr, resp = doRequest(t, env, "GET", "/api/grading/students/me/classes/"+testClassID+"/sections/STEM-11A/posted", env.StudentToken, nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
		var grades []shared.StudentPostedGrade
		json.Unmarshal(resp.Data, &grades)
		if len(grades) != 0 {
			t.Errorf("Expected no posted grades before posting, got %+v", grades)
		}
	})
}

func TestGateway_StagingAndPosting(t *testing.T) {
	env := setupGatewayTestEnv(t)

	// --- Test 1: Rejected upload ---
	t.Run("Upload wrong class", func(t *testing.T) {
		body, ct := uploadBody(t, "grades.csv", strings.Replace(validSheet, "GENMATH-11", "PHYSCI-11", 1), true)
		rr, resp := doRequest(t, env, "POST", sectionPath+"/upload", env.FacultyToken, body, ct)
		if rr.Code != http.StatusUnprocessableEntity || resp.Success {
			t.Errorf("Expected 422, got %d", rr.Code)
		}

		rr, _ = doRequest(t, env, "GET", sectionPath+"/staged", env.FacultyToken, nil, "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("Nothing must be staged, got %d", rr.Code)
		}
	})

	// --- Test 2: Valid upload is staged ---
	t.Run("Upload", func(t *testing.T) {
		body, ct := uploadBody(t, "grades.csv", validSheet, false)
		rr, resp := doRequest(t, env, "POST", sectionPath+"/upload", env.FacultyToken, body, ct)
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var data struct {
			Staged *shared.StagedBatch `json:"staged"`
		}
		json.Unmarshal(resp.Data, &data)
		if data.Staged == nil || len(data.Staged.Rows) != 2 {
			t.Fatalf("Expected 2 staged rows, got %+v", data.Staged)
		}
	})

	// --- Test 3: Edit a staged row ---
	t.Run("Patch staged row", func(t *testing.T) {
		rr, _ := doRequest(t, env, "PATCH", sectionPath+"/staged/2024-003", env.FacultyToken, []byte(`{"quarterly_exam":90}`), "application/json")
		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	// --- Test 4: Post, blocked re-post, confirmed re-post ---
	t.Run("Post", func(t *testing.T) {
		rr, _ := doRequest(t, env, "POST", sectionPath+"/post", env.FacultyToken, nil, "")
		if rr.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
		}

		rr, resp := doRequest(t, env, "POST", sectionPath+"/post", env.FacultyToken, nil, "")
		if rr.Code != http.StatusConflict || !resp.AlreadyPosted {
			t.Fatalf("Expected 409 already posted, got %d", rr.Code)
		}

		rr, _ = doRequest(t, env, "POST", sectionPath+"/post?confirm=true", env.FacultyToken, nil, "")
		if rr.Code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d", rr.Code)
		}

		rr, resp = doRequest(t, env, "GET", sectionPath+"/postings", env.FacultyToken, nil, "")
		var postings []shared.PostedGradeRecord
		json.Unmarshal(resp.Data, &postings)
		if rr.Code != http.StatusOK || len(postings) != 2 {
			t.Errorf("Expected 2 snapshots, got %d", len(postings))
		}
	})

	// --- Test 5: Student view ---
	t.Run("Student posted grades", func(t *testing.T) {
		rr, resp := doRequest(t, env, "GET", "/api/grading/students/me/classes/"+testClassID+"/sections/STEM-11A/posted", env.StudentToken, nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", rr.Code)
		}
		var grades []shared.StudentPostedGrade
		json.Unmarshal(resp.Data, &grades)
		if len(grades) != 2 || grades[0].QuarterlyGrade != 88 {
			t.Errorf("Unexpected grades: %+v", grades)
		}
	})

	// --- Test 6: Discard ---
	t.Run("Discard staged", func(t *testing.T) {
		rr, _ := doRequest(t, env, "DELETE", sectionPath+"/staged", env.FacultyToken, nil, "")
		if rr.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", rr.Code)
		}
	})
}

func TestGateway_Operational(t *testing.T) {
	env := setupGatewayTestEnv(t)

	rr, _ := doRequest(t, env, "GET", "/healthz", "", nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200 from /healthz, got %d", rr.Code)
	}

	rr, _ = doRequest(t, env, "GET", "/metrics", "", nil, "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Errorf("Expected Prometheus metrics, got %d", rr.Code)
	}
}
