package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-api/internal/models"
	"github.com/noah-isme/sma-exam-api/internal/service"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
	"github.com/noah-isme/sma-exam-api/pkg/response"
)

// ExamHandler exposes the exam lifecycle endpoints.
type ExamHandler struct {
	exams *service.ExamService
}

// NewExamHandler constructs handler.
func NewExamHandler(exams *service.ExamService) *ExamHandler {
	return &ExamHandler{exams: exams}
}

// Create godoc
// @Summary Create a draft exam
// @Tags Exams
// @Accept json
// @Produce json
// @Param payload body service.CreateExamRequest true "Exam payload"
// @Success 201 {object} response.Envelope
// @Router /exams [post]
func (h *ExamHandler) Create(c *gin.Context) {
	var req service.CreateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	exam, err := h.exams.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exam)
}

// Get godoc
// @Summary Fetch one exam
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id} [get]
func (h *ExamHandler) Get(c *gin.Context) {
	exam, err := h.exams.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{
		"display_status":    h.exams.DisplayStatus(exam),
		"registration_open": h.exams.RegistrationOpen(exam),
	}
	response.JSON(c, http.StatusOK, exam, nil, meta)
}

// List godoc
// @Summary List exams
// @Tags Exams
// @Produce json
// @Param status query string false "Filter by status"
// @Param subjectId query string false "Filter by subject"
// @Param classId query string false "Filter by class"
// @Param term query string false "Filter by term"
// @Param dateFrom query string false "Earliest exam date (RFC3339)"
// @Param dateTo query string false "Latest exam date (RFC3339)"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} response.Envelope
// @Router /exams [get]
func (h *ExamHandler) List(c *gin.Context) {
	filter := models.ExamFilter{
		Status:    models.ExamStatus(c.Query("status")),
		SubjectID: c.Query("subjectId"),
		ClassID:   c.Query("classId"),
		Term:      models.ExamTerm(c.Query("term")),
		CreatedBy: c.Query("createdBy"),
		Limit:     queryInt(c, "limit"),
		Offset:    queryInt(c, "offset"),
	}
	if from, ok := queryTime(c, "dateFrom"); ok {
		filter.DateFrom = &from
	}
	if to, ok := queryTime(c, "dateTo"); ok {
		filter.DateTo = &to
	}
	if published := c.Query("published"); published != "" {
		value := published == "true"
		filter.Published = &value
	}

	exams, pagination, err := h.exams.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exams, pagination)
}

// Update godoc
// @Summary Edit exam schedule or metadata
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body service.UpdateExamRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Router /exams/{id} [patch]
func (h *ExamHandler) Update(c *gin.Context) {
	var req service.UpdateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	exam, err := h.exams.Update(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// Delete godoc
// @Summary Soft-delete an exam
// @Tags Exams
// @Param id path string true "Exam ID"
// @Success 204
// @Router /exams/{id} [delete]
func (h *ExamHandler) Delete(c *gin.Context) {
	if err := h.exams.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Publish godoc
// @Summary Publish the question paper
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/publish [post]
func (h *ExamHandler) Publish(c *gin.Context) {
	exam, err := h.exams.Publish(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// Cancel godoc
// @Summary Cancel an exam
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body service.CancelExamRequest true "Cancellation payload"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/cancel [post]
func (h *ExamHandler) Cancel(c *gin.Context) {
	var req service.CancelExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	exam, err := h.exams.Cancel(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// Postpone godoc
// @Summary Postpone an exam
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body service.PostponeExamRequest true "Postpone payload"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/postpone [post]
func (h *ExamHandler) Postpone(c *gin.Context) {
	var req service.PostponeExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	exam, err := h.exams.Postpone(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// Begin godoc
// @Summary Mark an exam as ongoing
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/begin [post]
func (h *ExamHandler) Begin(c *gin.Context) {
	exam, err := h.exams.Begin(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// Complete godoc
// @Summary Mark an exam as completed
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/complete [post]
func (h *ExamHandler) Complete(c *gin.Context) {
	exam, err := h.exams.Complete(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// PublishResults godoc
// @Summary Publish exam results
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/results/publish [post]
func (h *ExamHandler) PublishResults(c *gin.Context) {
	exam, err := h.exams.PublishResults(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// PublishAnswerKey godoc
// @Summary Publish the answer key
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/answer-key/publish [post]
func (h *ExamHandler) PublishAnswerKey(c *gin.Context) {
	exam, err := h.exams.PublishAnswerKey(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// RegisterStudent godoc
// @Summary Register a student for an exam
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/registrations [post]
func (h *ExamHandler) RegisterStudent(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	actor := actorFromContext(c)
	if req.StudentID == "" && actor.Role == models.RoleStudent {
		req.StudentID = actor.ID
	}
	exam, err := h.exams.RegisterStudent(c.Request.Context(), actor, c.Param("id"), req.StudentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// AddResult godoc
// @Summary Ingest one student result
// @Tags Results
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body service.AddStudentResultRequest true "Result payload"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/results [post]
func (h *ExamHandler) AddResult(c *gin.Context) {
	var req service.AddStudentResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	exam, err := h.exams.AddStudentResult(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

func queryInt(c *gin.Context, key string) int {
	raw := c.Query(key)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}

func queryTime(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, false
	}
	if value, err := time.Parse(time.RFC3339, raw); err == nil {
		return value, true
	}
	if value, err := time.Parse("2006-01-02", raw); err == nil {
		return value, true
	}
	return time.Time{}, false
}
