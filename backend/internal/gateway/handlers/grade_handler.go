package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"shs_lms/backend/internal/gateway/util"
	"shs_lms/backend/internal/grade"
	"shs_lms/backend/internal/grading"
)

// GradeHandler serves grade computation and saving.
type GradeHandler struct {
	Service *grade.GradeService
}

// pathParam returns the unescaped chi URL parameter
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

// sectionFromRequest builds the section target of a faculty route. The
// faculty id always comes from the token.
func sectionFromRequest(r *http.Request) grade.SectionRequest {
	q := r.URL.Query()
	req := grade.SectionRequest{
		AcademicYear: q.Get("academic_year"),
		Term:         q.Get("term"),
		Quarter:      pathParam(r, "quarter"),
		ClassID:      pathParam(r, "class_id"),
		Section:      pathParam(r, "section"),
	}
	if user := util.UserFromContext(r); user != nil {
		req.FacultyID = user.UserID
	}
	return req
}

// ResolveTrack handles GET /api/grading/track?subject=
func (h *GradeHandler) ResolveTrack(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	if strings.TrimSpace(subject) == "" {
		util.WriteJSONError(w, http.StatusBadRequest, "subject is required")
		return
	}

	profile := grading.ResolveTrackProfile(subject)
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"profile": profile,
		"label":   profile.Label(),
	})
}

// Transmute handles GET /api/grading/transmute?grade=
func (h *GradeHandler) Transmute(w http.ResponseWriter, r *http.Request) {
	raw, err := strconv.ParseFloat(r.URL.Query().Get("grade"), 64)
	if err != nil || raw < 0 || raw > 100 {
		util.WriteJSONError(w, http.StatusBadRequest, "grade must be a number between 0 and 100")
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"raw_grade":        raw,
		"transmuted_grade": grading.Transmute(raw),
	})
}

// ComputeQuarterGrades handles GET .../quarters/{quarter}/compute
func (h *GradeHandler) ComputeQuarterGrades(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Service.ComputeQuarterGrades(r.Context(), sectionFromRequest(r))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, resp)
}

// SaveQuarterGrades handles PUT .../quarters/{quarter}/quarter-grades
// Body: {"grades": [...], "finalize": bool}
func (h *GradeHandler) SaveQuarterGrades(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Grades   []grade.QuarterGradeInput `json:"grades"`
		Finalize bool                      `json:"finalize"`
	}
	if err := util.DecodeJSON(r, &body); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.Service.SaveQuarterGrades(r.Context(), grade.SaveQuarterGradesRequest{
		SectionRequest: sectionFromRequest(r),
		Grades:         body.Grades,
		Finalize:       body.Finalize,
	})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, resp)
}

// SaveQuarterlyGrade handles PUT /api/grading/quarterly-grades
func (h *GradeHandler) SaveQuarterlyGrade(w http.ResponseWriter, r *http.Request) {
	var req grade.SaveQuarterlyGradeRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.FacultyID = util.UserFromContext(r).UserID

	saved, err := h.Service.SaveQuarterlyGrade(r.Context(), req)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, saved)
}

// GetTermGrade handles GET /api/grading/term-grades
// Query Params: class_id, student_id, academic_year, term
// Faculty only; students read term grades from posted snapshots.
func (h *GradeHandler) GetTermGrade(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := grade.TermGradeRequest{
		AcademicYear: q.Get("academic_year"),
		Term:         q.Get("term"),
		ClassID:      q.Get("class_id"),
		StudentID:    q.Get("student_id"),
	}

	resp, err := h.Service.GetTermGrade(r.Context(), req)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, resp)
}

func studentIDOf(user *util.Claims) string {
	if user.StudentID != "" {
		return user.StudentID
	}
	return user.UserID
}
