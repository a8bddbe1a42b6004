package grade

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"shs_lms/backend/internal/ingest"
	"shs_lms/backend/internal/shared"
)

// UploadRequest targets a grade sheet at a class section quarter
type UploadRequest struct {
	SectionRequest
	Filename string `json:"filename" validate:"required,notblank"`
	// Acknowledge confirms the advisories of the sheet so it may be staged
	Acknowledge bool `json:"acknowledge"`
}

type UploadResponse struct {
	Validation        ingest.Result       `json:"validation"`
	NeedsConfirmation bool                `json:"needs_confirmation"`
	Staged            *shared.StagedBatch `json:"staged,omitempty"`
}

// StageRowsRequest stages a manual edit session. Without grades the
// computed rows of the section are staged.
type StageRowsRequest struct {
	SectionRequest
	Grades []QuarterGradeInput `json:"grades" validate:"omitempty,dive"`
}

// UpdateStagedRowRequest edits one staged row. Nil fields keep their value.
type UpdateStagedRowRequest struct {
	SectionRequest
	StudentID           string   `json:"student_id" validate:"required,notblank"`
	WrittenWorksRAW     *float64 `json:"written_works_raw" validate:"omitempty,gte=0"`
	WrittenWorksHPS     *float64 `json:"written_works_hps" validate:"omitempty,gte=0"`
	PerformanceTasksRAW *float64 `json:"performance_tasks_raw" validate:"omitempty,gte=0"`
	PerformanceTasksHPS *float64 `json:"performance_tasks_hps" validate:"omitempty,gte=0"`
	QuarterlyExam       *float64 `json:"quarterly_exam" validate:"omitempty,gte=0,lte=100"`
	ClearExam           bool     `json:"clear_exam"`
}

// ============================================================================
// Upload Staging
// ============================================================================

// ValidateAndStage validates a grade sheet against the section roster and
// stages its rows. Nothing is written unless the sheet is valid and, when it
// carries advisories, acknowledged.
func (s *GradeService) ValidateAndStage(ctx context.Context, req UploadRequest, file io.Reader) (*UploadResponse, error) {
	if errs := shared.ValidateStruct(req); errs != nil {
		return nil, invalidArgument(errs)
	}

	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sc, err := s.resolveSection(queryCtx, req.SectionRequest)
	if err != nil {
		return nil, err
	}
	roster, err := s.loadRoster(queryCtx, sc.key)
	if err != nil {
		return nil, err
	}

	result := ingest.ValidateFile(file, req.Filename, ingest.Target{
		ClassCode:    sc.class.Code,
		Section:      sc.key.Section,
		Roster:       roster,
		MetadataRows: s.metadataRows,
	})
	resp := &UploadResponse{Validation: result, NeedsConfirmation: result.NeedsConfirmation()}

	if !result.OK {
		s.metrics.ObserveUpload(UploadRejected)
		log.Printf("INFO: Rejected grade sheet %s for class %s section %s (%d errors)", req.Filename, sc.key.ClassID, sc.key.Section, len(result.Errors))
		return resp, nil
	}
	if resp.NeedsConfirmation && !req.Acknowledge {
		s.metrics.ObserveUpload(UploadNeedsConfirmation)
		return resp, nil
	}

	batch := s.newBatch(sc, req.FacultyID, shared.StagedFromUpload)
	batch.Filename = req.Filename
	for _, r := range result.Rows {
		exam := r.QuarterlyExam
		batch.Rows = append(batch.Rows, computeRow(r.StudentID, r.StudentName, r.WrittenRAW, r.WrittenHPS, r.PerformanceRAW, r.PerformanceHPS, &exam, sc.profile))
	}
	for _, w := range result.Warnings {
		batch.AcknowledgedWarnings = append(batch.AcknowledgedWarnings, w.String())
	}
	for _, name := range result.AccentedNames {
		batch.AcknowledgedWarnings = append(batch.AcknowledgedWarnings, "accented name: "+name)
	}

	if err := s.store.PutStagedBatch(queryCtx, batch); err != nil {
		return nil, s.internal("failed to stage grade sheet", err)
	}
	s.metrics.ObserveUpload(UploadAccepted)
	log.Printf("INFO: Staged %d rows from %s for class %s section %s %s", len(batch.Rows), req.Filename, sc.key.ClassID, sc.key.Section, sc.key.Period.Quarter)

	resp.Staged = &batch
	return resp, nil
}

// StageRows stages manually entered grades, replacing any staged batch of
// the same section and faculty
func (s *GradeService) StageRows(ctx context.Context, req StageRowsRequest) (*shared.StagedBatch, error) {
	if errs := shared.ValidateStruct(req); errs != nil {
		return nil, invalidArgument(errs)
	}

	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sc, err := s.resolveSection(queryCtx, req.SectionRequest)
	if err != nil {
		return nil, err
	}

	batch := s.newBatch(sc, req.FacultyID, shared.StagedFromManual)
	if len(req.Grades) == 0 {
		computed, err := s.computeSection(queryCtx, sc)
		if err != nil {
			return nil, err
		}
		batch.Rows = computed.Rows
	} else {
		roster, err := s.loadRoster(queryCtx, sc.key)
		if err != nil {
			return nil, err
		}
		if batch.Rows, err = buildRows(req.Grades, roster, sc.profile); err != nil {
			return nil, err
		}
	}

	if err := s.store.PutStagedBatch(queryCtx, batch); err != nil {
		return nil, s.internal("failed to stage grades", err)
	}
	return &batch, nil
}

// ============================================================================
// Staged Batch Review
// ============================================================================

// GetStagedBatch returns the staged batch of the caller for a section.
// Expired batches are removed and reported as missing.
func (s *GradeService) GetStagedBatch(ctx context.Context, req SectionRequest) (*shared.StagedBatch, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sc, err := s.resolveSection(queryCtx, req)
	if err != nil {
		return nil, err
	}
	batch, err := s.loadStaged(queryCtx, sc.postingKey(req.FacultyID).String())
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, status.Error(codes.NotFound, "no staged grades for this section")
	}
	return batch, nil
}

// UpdateStagedRow edits one row of a staged batch and recomputes its grades
// with the batch's track profile
func (s *GradeService) UpdateStagedRow(ctx context.Context, req UpdateStagedRowRequest) (*shared.StagedBatch, error) {
	if errs := shared.ValidateStruct(req); errs != nil {
		return nil, invalidArgument(errs)
	}

	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	batch, err := s.GetStagedBatch(queryCtx, req.SectionRequest)
	if err != nil {
		return nil, err
	}

	row, ok := batch.Row(strings.TrimSpace(req.StudentID))
	if !ok {
		return nil, status.Errorf(codes.NotFound, "student %s is not in the staged batch", req.StudentID)
	}

	wwRAW, wwHPS := pick(req.WrittenWorksRAW, row.WrittenWorksRAW), pick(req.WrittenWorksHPS, row.WrittenWorksHPS)
	ptRAW, ptHPS := pick(req.PerformanceTasksRAW, row.PerformanceTasksRAW), pick(req.PerformanceTasksHPS, row.PerformanceTasksHPS)
	exam := row.QuarterlyExam
	switch {
	case req.ClearExam:
		exam = nil
	case req.QuarterlyExam != nil:
		exam = float64Ptr(*req.QuarterlyExam)
	}

	*row = computeRow(row.StudentID, row.StudentName, wwRAW, wwHPS, ptRAW, ptHPS, exam, batch.Profile)
	batch.ExpiresAt = s.now().Add(s.stagingTTL)

	if err := s.store.PutStagedBatch(queryCtx, *batch); err != nil {
		return nil, s.internal("failed to update staged row", err)
	}
	return batch, nil
}

// DiscardStagedBatch removes the caller's staged batch for a section
func (s *GradeService) DiscardStagedBatch(ctx context.Context, req SectionRequest) error {
	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sc, err := s.resolveSection(queryCtx, req)
	if err != nil {
		return err
	}
	if err := s.store.DeleteStagedBatch(queryCtx, sc.postingKey(req.FacultyID).String()); err != nil {
		if isNotFound(err) {
			return status.Error(codes.NotFound, "no staged grades for this section")
		}
		return s.internal("failed to discard staged grades", err)
	}
	return nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func (s *GradeService) newBatch(sc sectionContext, facultyID, source string) shared.StagedBatch {
	now := s.now()
	return shared.StagedBatch{
		ID:           sc.postingKey(facultyID).String(),
		AcademicYear: sc.key.Period.AcademicYear,
		Term:         sc.key.Period.Term,
		Quarter:      sc.key.Period.Quarter,
		ClassID:      sc.key.ClassID,
		Section:      sc.key.Section,
		FacultyID:    facultyID,
		Source:       source,
		Profile:      sc.profile,
		Rows:         []shared.GradeRow{},
		StagedAt:     now,
		ExpiresAt:    now.Add(s.stagingTTL),
	}
}

// loadStaged returns the live batch stored under id, or nil when there is
// none. An expired batch is deleted.
func (s *GradeService) loadStaged(ctx context.Context, id string) (*shared.StagedBatch, error) {
	batch, err := s.store.GetStagedBatch(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, s.internal("failed to load staged grades", err)
	}
	if batch.Expired(s.now()) {
		if err := s.store.DeleteStagedBatch(ctx, id); err != nil && !isNotFound(err) {
			log.Printf("WARN: Failed to delete expired staged batch %s: %v", id, err)
		}
		return nil, nil
	}
	return batch, nil
}

func pick(v *float64, fallback float64) float64 {
	if v != nil {
		return *v
	}
	return fallback
}
