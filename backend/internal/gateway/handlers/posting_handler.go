package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"shs_lms/backend/internal/gateway/util"
	"shs_lms/backend/internal/grade"
)

// PostingHandler serves the staging and posting workflow.
type PostingHandler struct {
	Service        *grade.GradeService
	MaxUploadBytes int64
}

// UploadGrades handles POST .../quarters/{quarter}/upload
// Multipart form: file (xlsx or csv), acknowledge (optional bool)
func (h *PostingHandler) UploadGrades(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			util.WriteJSONError(w, http.StatusRequestEntityTooLarge, "grade sheet exceeds the upload limit")
			return
		}
		util.WriteJSONError(w, http.StatusBadRequest, "multipart form with a file field is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ack, _ := strconv.ParseBool(r.FormValue("acknowledge"))
	req := grade.UploadRequest{
		SectionRequest: sectionFromRequest(r),
		Filename:       header.Filename,
		Acknowledge:    ack,
	}

	resp, err := h.Service.ValidateAndStage(r.Context(), req, file)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	if !resp.Validation.OK {
		util.WriteJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"success":    false,
			"message":    "grade sheet rejected; nothing was staged",
			"validation": resp.Validation,
		})
		return
	}
	util.WriteJSON(w, http.StatusOK, resp)
}

// StageGrades handles POST .../quarters/{quarter}/stage
// Body: {"grades": [...]}; an empty body stages the computed grades
func (h *PostingHandler) StageGrades(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Grades []grade.QuarterGradeInput `json:"grades"`
	}
	if err := util.DecodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
		util.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, err := h.Service.StageRows(r.Context(), grade.StageRowsRequest{
		SectionRequest: sectionFromRequest(r),
		Grades:         body.Grades,
	})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, batch)
}

// GetStaged handles GET .../quarters/{quarter}/staged
func (h *PostingHandler) GetStaged(w http.ResponseWriter, r *http.Request) {
	batch, err := h.Service.GetStagedBatch(r.Context(), sectionFromRequest(r))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, batch)
}

// UpdateStagedRow handles PATCH .../quarters/{quarter}/staged/{student_id}
func (h *PostingHandler) UpdateStagedRow(w http.ResponseWriter, r *http.Request) {
	var req grade.UpdateStagedRowRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.SectionRequest = sectionFromRequest(r)
	req.StudentID = pathParam(r, "student_id")

	batch, err := h.Service.UpdateStagedRow(r.Context(), req)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, batch)
}

// DiscardStaged handles DELETE .../quarters/{quarter}/staged
func (h *PostingHandler) DiscardStaged(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DiscardStagedBatch(r.Context(), sectionFromRequest(r)); err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "staged grades discarded"})
}

// PostGrades handles POST .../quarters/{quarter}/post
// Query Params: confirm (required to post again)
func (h *PostingHandler) PostGrades(w http.ResponseWriter, r *http.Request) {
	confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	resp, err := h.Service.PostQuarterlyGrades(r.Context(), grade.PostRequest{
		SectionRequest: sectionFromRequest(r),
		Confirm:        confirm,
	})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	if resp.Posted == nil {
		util.WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"success":        false,
			"message":        "grades already posted; post again with confirm=true",
			"already_posted": resp.AlreadyPosted,
			"prior_postings": resp.PriorPostings,
			"last_posted_at": resp.LastPostedAt,
		})
		return
	}
	util.WriteJSON(w, http.StatusCreated, resp)
}

// ListPostings handles GET .../quarters/{quarter}/postings
func (h *PostingHandler) ListPostings(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.ListPostings(r.Context(), sectionFromRequest(r))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, records)
}

// GetMyPostedGrades handles GET /api/grading/students/me/classes/{class_id}/sections/{section}/posted
// The student id comes from the token.
func (h *PostingHandler) GetMyPostedGrades(w http.ResponseWriter, r *http.Request) {
	user := util.UserFromContext(r)

	grades, err := h.Service.LoadPostedGradesForStudent(r.Context(), grade.StudentGradesRequest{
		StudentID: studentIDOf(user),
		ClassID:   pathParam(r, "class_id"),
		Section:   pathParam(r, "section"),
	})
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, grades)
}
