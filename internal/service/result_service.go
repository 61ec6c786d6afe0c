package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-api/internal/models"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
	"github.com/noah-isme/sma-exam-api/pkg/export"
	"github.com/noah-isme/sma-exam-api/pkg/jobs"
)

// JobTypeStatsRefresh identifies background statistics warm-up jobs.
const JobTypeStatsRefresh = "exam_stats_refresh"

// StatsCacheKey builds the cache key for one exam's statistics projection.
func StatsCacheKey(examID string) string {
	return "exam:stats:" + examID
}

type resultExamReader interface {
	GetByID(ctx context.Context, id string) (*models.Exam, error)
	ListWithResultsFor(ctx context.Context, studentID string, limit int) ([]models.Exam, error)
}

type statsCache interface {
	Enabled() bool
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ResultService is the read-only projection over the aggregate fields the
// lifecycle engine maintains. It performs no independent aggregation beyond
// the deliberate on-read averageMarks recomputation.
type ResultService struct {
	store    resultExamReader
	cache    statsCache
	cacheTTL time.Duration
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewResultService constructs the result query surface.
func NewResultService(store resultExamReader, cache statsCache, cacheTTL time.Duration, logger *zap.Logger) *ResultService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ResultService{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

// GetStatistics returns the per-exam statistics projection, served from cache
// when warm.
func (s *ResultService) GetStatistics(ctx context.Context, examID string) (*models.ExamStatistics, error) {
	key := StatsCacheKey(examID)
	if s.cache != nil && s.cache.Enabled() {
		var cached models.ExamStatistics
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			return &cached, nil
		}
	}

	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	stats := ComputeStatistics(exam)

	if s.cache != nil && s.cache.Enabled() {
		if err := s.cache.Set(ctx, key, stats, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache statistics", zap.String("exam_id", examID), zap.Error(err))
		}
	}
	return stats, nil
}

// StudentResults returns a student's recent exam results, newest exam first.
// Unpublished results are visible only to staff and the student's appearance
// rows are filtered out of exams still awaiting publication.
func (s *ResultService) StudentResults(ctx context.Context, actor models.Actor, studentID string, limit int) ([]models.StudentExamResult, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id required")
	}
	if actor.Role == models.RoleStudent && actor.ID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only view their own results")
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	exams, err := s.store.ListWithResultsFor(ctx, studentID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student results")
	}

	includeUnpublished := actor.CanRecordResults()
	results := make([]models.StudentExamResult, 0, len(exams))
	for i := range exams {
		exam := &exams[i]
		if !exam.ResultsPublished && !includeUnpublished {
			continue
		}
		for _, result := range exam.Results {
			if result.StudentID != studentID {
				continue
			}
			results = append(results, models.StudentExamResult{
				ExamID:           exam.ID,
				ExamCode:         exam.Code,
				ExamName:         exam.Name,
				SubjectID:        exam.SubjectID,
				Term:             exam.Term,
				ExamDate:         exam.ExamDate,
				TotalMarks:       exam.TotalMarks,
				PassingMarks:     exam.PassingMarks,
				ResultsPublished: exam.ResultsPublished,
				Result:           result,
			})
			break
		}
	}
	return results, nil
}

// ExportResultSheet renders the exam's result list as CSV or PDF bytes.
func (s *ResultService) ExportResultSheet(ctx context.Context, examID, format string) ([]byte, string, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, "", err
	}

	sheet := buildResultSheet(exam)
	switch format {
	case "", "csv":
		payload, err := s.csv.Render(sheet)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, fmt.Sprintf("%s-results.csv", exam.Code), nil
	case "pdf":
		payload, err := s.pdf.Render(sheet, fmt.Sprintf("%s - %s", exam.Code, exam.Name))
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, fmt.Sprintf("%s-results.pdf", exam.Code), nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

// StatsRefreshHandler returns the job handler that recomputes and re-caches an
// exam's statistics after result ingestion.
func (s *ResultService) StatsRefreshHandler() jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		examID, ok := job.Payload.(string)
		if !ok || examID == "" {
			return fmt.Errorf("stats refresh job %s carries no exam id", job.ID)
		}
		exam, err := s.loadExam(ctx, examID)
		if err != nil {
			return err
		}
		if s.cache == nil || !s.cache.Enabled() {
			return nil
		}
		return s.cache.Set(ctx, StatsCacheKey(examID), ComputeStatistics(exam), s.cacheTTL)
	}
}

func (s *ResultService) loadExam(ctx context.Context, examID string) (*models.Exam, error) {
	exam, err := s.store.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return exam, nil
}

// ComputeStatistics projects the stored aggregates. passPercentage falls back
// to 0 when nobody appeared; averageMarks is recomputed fresh from the result
// list on every call and is not the same figure as averagePercentage.
func ComputeStatistics(exam *models.Exam) *models.ExamStatistics {
	stats := &models.ExamStatistics{
		ExamID:            exam.ID,
		ExamCode:          exam.Code,
		TotalStudents:     exam.TotalRegistered,
		Appeared:          exam.TotalAppeared,
		Passed:            exam.TotalPassed,
		Failed:            exam.TotalFailed,
		AveragePercentage: exam.AveragePercentage,
		HighestMarks:      exam.HighestMarks,
		LowestMarks:       exam.LowestMarks,
	}
	if exam.TotalAppeared > 0 {
		stats.PassPercentage = float64(exam.TotalPassed) / float64(exam.TotalAppeared) * 100
	}
	if len(exam.Results) > 0 {
		sum := 0.0
		for _, result := range exam.Results {
			sum += result.ObtainedMarks
		}
		stats.AverageMarks = sum / float64(len(exam.Results))
	}
	return stats
}

func buildResultSheet(exam *models.Exam) export.Sheet {
	sheet := export.Sheet{
		Headers: []string{"Student ID", "Obtained Marks", "Percentage", "Grade", "Result"},
		Rows:    make([][]string, 0, len(exam.Results)),
	}
	for _, result := range exam.Results {
		verdict := "FAIL"
		if result.ObtainedMarks >= exam.PassingMarks {
			verdict = "PASS"
		}
		sheet.Rows = append(sheet.Rows, []string{
			result.StudentID,
			strconv.FormatFloat(result.ObtainedMarks, 'f', -1, 64),
			strconv.FormatFloat(result.Percentage, 'f', 2, 64),
			result.Grade,
			verdict,
		})
	}
	return sheet
}
