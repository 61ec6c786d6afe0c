package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-api/internal/service"
	"github.com/noah-isme/sma-exam-api/pkg/response"
)

// ResultHandler exposes the read-only result projections.
type ResultHandler struct {
	results *service.ResultService
}

// NewResultHandler constructs handler.
func NewResultHandler(results *service.ResultService) *ResultHandler {
	return &ResultHandler{results: results}
}

// Statistics godoc
// @Summary Exam statistics projection
// @Tags Results
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/statistics [get]
func (h *ResultHandler) Statistics(c *gin.Context) {
	stats, err := h.results.GetStatistics(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// StudentResults godoc
// @Summary Recent results for one student
// @Tags Results
// @Produce json
// @Param studentId path string true "Student ID"
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/results [get]
func (h *ResultHandler) StudentResults(c *gin.Context) {
	results, err := h.results.StudentResults(c.Request.Context(), actorFromContext(c), c.Param("studentId"), queryInt(c, "limit"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}

// Export godoc
// @Summary Export the exam result sheet
// @Tags Results
// @Produce octet-stream
// @Param id path string true "Exam ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /exams/{id}/results/export [get]
func (h *ResultHandler) Export(c *gin.Context) {
	payload, filename, err := h.results.ExportResultSheet(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	contentType := "text/csv"
	if c.Query("format") == "pdf" {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, payload)
}
