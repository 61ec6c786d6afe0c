package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-api/internal/models"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
	"github.com/noah-isme/sma-exam-api/pkg/jobs"
)

// Clock supplies the current time; injected for deterministic tests.
type Clock func() time.Time

const minutesPerDay = 24 * 60

type examStore interface {
	Create(ctx context.Context, exam *models.Exam) error
	GetByID(ctx context.Context, id string) (*models.Exam, error)
	GetByCode(ctx context.Context, code string) (*models.Exam, error)
	List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error)
	AtomicUpdate(ctx context.Context, id string, mutate func(*models.Exam) error) (*models.Exam, error)
	SoftDelete(ctx context.Context, id, actorID string) error
	CodeExists(ctx context.Context, code string) (bool, error)
}

type examMetrics interface {
	RecordLifecycleTransition(from, to models.ExamStatus)
	RecordResultSubmission()
	RecordUpdateConflict()
}

type statsInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

type statsEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// CreateExamRequest is the payload for creating a draft exam.
type CreateExamRequest struct {
	Code         string          `json:"code" validate:"omitempty,min=6"`
	Name         string          `json:"name" validate:"required"`
	SubjectID    string          `json:"subject_id" validate:"required"`
	ClassID      string          `json:"class_id" validate:"required"`
	AcademicYear string          `json:"academic_year" validate:"required"`
	Term         models.ExamTerm `json:"term" validate:"required,oneof=FIRST SECOND FINAL UNIT MID PREBOARD"`
	ExamType     string          `json:"exam_type" validate:"required"`
	Category     string          `json:"category"`

	ExamDate        time.Time `json:"exam_date" validate:"required"`
	StartTime       string    `json:"start_time" validate:"required"`
	EndTime         string    `json:"end_time" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"gte=0"`

	Sections  []models.ExamSection  `json:"sections" validate:"dive"`
	Questions []models.ExamQuestion `json:"questions" validate:"dive"`

	TotalMarks   float64 `json:"total_marks" validate:"gte=0"`
	PassingMarks float64 `json:"passing_marks" validate:"gte=0"`

	RequireRegistration   bool       `json:"require_registration"`
	RegistrationStartDate *time.Time `json:"registration_start_date"`
	RegistrationEndDate   *time.Time `json:"registration_end_date"`
	MaxStudents           int        `json:"max_students" validate:"gte=0"`
}

// UpdateExamRequest carries administrative edits. A postponed exam is put back
// on the calendar by setting a new date.
type UpdateExamRequest struct {
	Name            *string    `json:"name"`
	ExamDate        *time.Time `json:"exam_date"`
	StartTime       *string    `json:"start_time"`
	EndTime         *string    `json:"end_time"`
	DurationMinutes *int       `json:"duration_minutes" validate:"omitempty,gte=0"`
	MaxStudents     *int       `json:"max_students" validate:"omitempty,gte=0"`
	Category        *string    `json:"category"`
}

// AddStudentResultRequest is one student's submission for ingestion.
type AddStudentResultRequest struct {
	StudentID     string            `json:"student_id" validate:"required"`
	ObtainedMarks float64           `json:"obtained_marks" validate:"gte=0"`
	Percentage    float64           `json:"percentage" validate:"gte=0,lte=100"`
	Grade         string            `json:"grade" validate:"required"`
	Answers       map[string]string `json:"answers"`
	Status        string            `json:"status"`
}

// PostponeExamRequest reschedules an exam to a later date.
type PostponeExamRequest struct {
	NewDate time.Time `json:"new_date" validate:"required"`
	Reason  string    `json:"reason" validate:"required"`
}

// CancelExamRequest records why an exam was called off.
type CancelExamRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// ExamService owns the exam lifecycle: status transitions, derived-field
// computation and incremental result aggregation. Operations that change a
// record go through the store's atomic update with a bounded conflict retry.
type ExamService struct {
	store        examStore
	cache        statsInvalidator
	statsQueue   statsEnqueuer
	metrics      examMetrics
	validator    *validator.Validate
	logger       *zap.Logger
	clock        Clock
	retries      int
	passingRatio float64
	enforceCap   bool
}

// ExamServiceParams groups constructor dependencies.
type ExamServiceParams struct {
	Store           examStore
	Cache           statsInvalidator
	StatsQueue      statsEnqueuer
	Metrics         examMetrics
	Validator       *validator.Validate
	Logger          *zap.Logger
	Clock           Clock
	UpdateRetries   int
	PassingRatio    float64
	EnforceCapacity bool
}

// NewExamService constructs the lifecycle engine.
func NewExamService(p ExamServiceParams) *ExamService {
	if p.Validator == nil {
		p.Validator = validator.New()
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Clock == nil {
		p.Clock = func() time.Time { return time.Now().UTC() }
	}
	if p.UpdateRetries <= 0 {
		p.UpdateRetries = 3
	}
	if p.PassingRatio <= 0 || p.PassingRatio >= 1 {
		p.PassingRatio = 0.33
	}
	return &ExamService{
		store:        p.Store,
		cache:        p.Cache,
		statsQueue:   p.StatsQueue,
		metrics:      p.Metrics,
		validator:    p.Validator,
		logger:       p.Logger,
		clock:        p.Clock,
		retries:      p.UpdateRetries,
		passingRatio: p.PassingRatio,
		enforceCap:   p.EnforceCapacity,
	}
}

// Create registers a new exam in DRAFT status, assigning a code when absent
// and resolving the derived schedule and marks fields.
func (s *ExamService) Create(ctx context.Context, actor models.Actor, req CreateExamRequest) (*models.Exam, error) {
	if !actor.CanManageExams() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may create exams")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}

	now := s.clock()
	exam := &models.Exam{
		Code:                  strings.TrimSpace(req.Code),
		Name:                  req.Name,
		SubjectID:             req.SubjectID,
		ClassID:               req.ClassID,
		AcademicYear:          req.AcademicYear,
		Term:                  req.Term,
		ExamType:              req.ExamType,
		Category:              req.Category,
		ExamDate:              req.ExamDate,
		StartTime:             req.StartTime,
		EndTime:               req.EndTime,
		DurationMinutes:       req.DurationMinutes,
		Sections:              req.Sections,
		Questions:             req.Questions,
		TotalMarks:            req.TotalMarks,
		PassingMarks:          req.PassingMarks,
		RequireRegistration:   req.RequireRegistration,
		RegistrationStartDate: req.RegistrationStartDate,
		RegistrationEndDate:   req.RegistrationEndDate,
		RegistrationStatus:    models.RegistrationPending,
		MaxStudents:           req.MaxStudents,
		Status:                models.ExamStatusDraft,
		CreatedBy:             actor.ID,
		UpdatedBy:             actor.ID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.resolveDerivedFields(exam); err != nil {
		return nil, err
	}

	if exam.Code == "" {
		code, err := s.assignCode(ctx, now)
		if err != nil {
			return nil, err
		}
		exam.Code = code
	} else {
		taken, err := s.store.CodeExists(ctx, exam.Code)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check exam code")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("exam code %s already in use", exam.Code))
		}
	}

	if err := s.store.Create(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam")
	}
	s.logger.Info("exam created",
		zap.String("exam_id", exam.ID),
		zap.String("code", exam.Code),
		zap.String("created_by", actor.ID))
	return exam, nil
}

// Get loads a single exam.
func (s *ExamService) Get(ctx context.Context, id string) (*models.Exam, error) {
	exam, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return exam, nil
}

// GetByCode loads an exam by its public code.
func (s *ExamService) GetByCode(ctx context.Context, code string) (*models.Exam, error) {
	exam, err := s.store.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	return exam, nil
}

// List returns exams matching the filter with pagination metadata.
func (s *ExamService) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, *models.Pagination, error) {
	exams, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exams")
	}
	return exams, models.NewPagination(filter.Limit, filter.Offset, total), nil
}

// Publish makes the question paper visible and opens registration. Only a
// DRAFT exam can be published; a second call fails with INVALID_STATE.
func (s *ExamService) Publish(ctx context.Context, actor models.Actor, id string) (*models.Exam, error) {
	if !actor.CanManageExams() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may publish exams")
	}
	return s.transition(ctx, id, func(exam *models.Exam) error {
		if exam.Status != models.ExamStatusDraft {
			return appErrors.Clone(appErrors.ErrInvalidState,
				fmt.Sprintf("cannot publish exam in status %s", exam.Status))
		}
		now := s.clock()
		exam.IsPublished = true
		exam.PublishedAt = &now
		exam.Status = models.ExamStatusScheduled
		exam.RegistrationStatus = models.RegistrationOpen
		exam.UpdatedBy = actor.ID
		s.recordTransition(models.ExamStatusDraft, models.ExamStatusScheduled)
		return nil
	})
}

// Cancel moves the exam to CANCELLED. Completed and already cancelled exams
// are refused. Aggregate fields are left untouched.
func (s *ExamService) Cancel(ctx context.Context, actor models.Actor, id string, req CancelExamRequest) (*models.Exam, error) {
	if !actor.CanManageExams() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may cancel exams")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "cancellation reason required")
	}
	return s.transition(ctx, id, func(exam *models.Exam) error {
		if exam.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrInvalidState,
				fmt.Sprintf("cannot cancel exam in status %s", exam.Status))
		}
		from := exam.Status
		exam.Status = models.ExamStatusCancelled
		exam.StatusReason = req.Reason
		exam.RegistrationStatus = models.RegistrationClosed
		exam.UpdatedBy = actor.ID
		s.recordTransition(from, models.ExamStatusCancelled)
		return nil
	})
}

// Postpone moves the exam to POSTPONED and records the new date. A later
// administrative Update returns it to the calendar.
func (s *ExamService) Postpone(ctx context.Context, actor models.Actor, id string, req PostponeExamRequest) (*models.Exam, error) {
	if !actor.CanManageExams() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may postpone exams")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "new date and reason required")
	}
	return s.transition(ctx, id, func(exam *models.Exam) error {
		if exam.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrInvalidState,
				fmt.Sprintf("cannot postpone exam in status %s", exam.Status))
		}
		from := exam.Status
		exam.Status = models.ExamStatusPostponed
		exam.ExamDate = req.NewDate
		exam.StatusReason = req.Reason
		exam.UpdatedBy = actor.ID
		s.recordTransition(from, models.ExamStatusPostponed)
		return nil
	})
}

// PublishResults makes grades visible and freezes averagePercentage as the
// mean of all submitted percentages (0 when no results exist).
func (s *ExamService) PublishResults(ctx context.Context, actor models.Actor, id string) (*models.Exam, error) {
	if !actor.CanManageExams() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may publish results")
	}
	return s.transition(ctx, id, func(exam *models.Exam) error {
		if exam.Status != models.ExamStatusOngoing && exam.Status != models.ExamStatusCompleted {
			return appErrors.Clone(appErrors.ErrInvalidState,
				fmt.Sprintf("cannot publish results for exam in status %s", exam.Status))
		}
		now := s.clock()
		exam.ResultsPublished = true
		exam.ResultsPublishedAt = &now
		exam.AveragePercentage = meanPercentage(exam.Results)
		exam.UpdatedBy = actor.ID
		return nil
	})
}

// PublishAnswerKey flips the third, independent publication flag. It requires
// the paper itself to be published first.
func (s *ExamService) PublishAnswerKey(ctx context.Context, actor models.Actor, id string) (*models.Exam, error) {
	if !actor.CanManageExams() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may publish the answer key")
	}
	return s.transition(ctx, id, func(exam *models.Exam) error {
		if !exam.IsPublished {
			return appErrors.Clone(appErrors.ErrInvalidState, "question paper is not published yet")
		}
		now := s.clock()
		exam.AnswerKeyPublished = true
		exam.AnswerKeyPublishedAt = &now
		exam.UpdatedBy = actor.ID
		return nil
	})
}

// Complete marks an exam as finished once its window has elapsed. The persisted
// status changes only through this explicit operation, never by readers.
func (s *ExamService) Complete(ctx context.Context, actor models.Actor, id string) (*models.Exam, error) {
	if !actor.CanManageExams() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may complete exams")
	}
	return s.transition(ctx, id, func(exam *models.Exam) error {
		if exam.Status != models.ExamStatusScheduled && exam.Status != models.ExamStatusOngoing {
			return appErrors.Clone(appErrors.ErrInvalidState,
				fmt.Sprintf("cannot complete exam in status %s", exam.Status))
		}
		from := exam.Status
		exam.Status = models.ExamStatusCompleted
		exam.RegistrationStatus = models.RegistrationClosed
		exam.UpdatedBy = actor.ID
		s.recordTransition(from, models.ExamStatusCompleted)
		return nil
	})
}

// Begin moves a scheduled exam to ONGOING at the start of its window.
func (s *ExamService) Begin(ctx context.Context, actor models.Actor, id string) (*models.Exam, error) {
	if !actor.CanManageExams() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may start exams")
	}
	return s.transition(ctx, id, func(exam *models.Exam) error {
		if exam.Status != models.ExamStatusScheduled {
			return appErrors.Clone(appErrors.ErrInvalidState,
				fmt.Sprintf("cannot start exam in status %s", exam.Status))
		}
		exam.Status = models.ExamStatusOngoing
		exam.UpdatedBy = actor.ID
		s.recordTransition(models.ExamStatusScheduled, models.ExamStatusOngoing)
		return nil
	})
}

// Update applies administrative edits and re-resolves derived fields. Editing
// a POSTPONED exam's date puts it back into SCHEDULED.
func (s *ExamService) Update(ctx context.Context, actor models.Actor, id string, req UpdateExamRequest) (*models.Exam, error) {
	if !actor.CanManageExams() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators may edit exams")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}
	return s.transition(ctx, id, func(exam *models.Exam) error {
		if exam.Status.Terminal() {
			return appErrors.Clone(appErrors.ErrInvalidState,
				fmt.Sprintf("cannot edit exam in status %s", exam.Status))
		}
		if req.Name != nil {
			exam.Name = *req.Name
		}
		if req.Category != nil {
			exam.Category = *req.Category
		}
		if req.MaxStudents != nil {
			exam.MaxStudents = *req.MaxStudents
		}
		scheduleChanged := false
		if req.ExamDate != nil {
			exam.ExamDate = *req.ExamDate
			scheduleChanged = true
		}
		if req.StartTime != nil {
			exam.StartTime = *req.StartTime
			scheduleChanged = true
		}
		if req.EndTime != nil {
			exam.EndTime = *req.EndTime
			scheduleChanged = true
		}
		if req.DurationMinutes != nil {
			exam.DurationMinutes = *req.DurationMinutes
		} else if scheduleChanged {
			exam.DurationMinutes = 0
		}
		if exam.Status == models.ExamStatusPostponed && req.ExamDate != nil {
			exam.Status = models.ExamStatusScheduled
			exam.StatusReason = ""
			s.recordTransition(models.ExamStatusPostponed, models.ExamStatusScheduled)
		}
		exam.UpdatedBy = actor.ID
		return s.resolveDerivedFields(exam)
	})
}

// Delete soft-deletes an exam, preserving historical results.
func (s *ExamService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if !actor.CanManageExams() {
		return appErrors.Clone(appErrors.ErrForbidden, "only administrators may delete exams")
	}
	if err := s.store.SoftDelete(ctx, id, actor.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete exam")
	}
	s.invalidateStats(ctx, id)
	return nil
}

// RegisterStudent appends a student to the registration set while the window
// is open, enforcing the capacity cap when configured.
func (s *ExamService) RegisterStudent(ctx context.Context, actor models.Actor, id, studentID string) (*models.Exam, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id required")
	}
	if actor.Role == models.RoleStudent && actor.ID != studentID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only register themselves")
	}
	return s.transition(ctx, id, func(exam *models.Exam) error {
		if !RegistrationOpenAt(s.clock(), exam) {
			return appErrors.Clone(appErrors.ErrRegistrationClosed, "registration window is closed")
		}
		if exam.IsRegistered(studentID) {
			return appErrors.Clone(appErrors.ErrConflict, "student already registered")
		}
		if s.enforceCap && exam.MaxStudents > 0 && len(exam.RegisteredStudents) >= exam.MaxStudents {
			return appErrors.Clone(appErrors.ErrCapacityReached,
				fmt.Sprintf("exam is limited to %d students", exam.MaxStudents))
		}
		exam.RegisteredStudents = append(exam.RegisteredStudents, studentID)
		exam.TotalRegistered = len(exam.RegisteredStudents)
		exam.UpdatedBy = actor.ID
		return nil
	})
}

// AddStudentResult folds one submission into the running aggregates without
// rescanning the result list. averagePercentage is deliberately not touched
// here; PublishResults computes it as a batch step.
func (s *ExamService) AddStudentResult(ctx context.Context, actor models.Actor, id string, req AddStudentResultRequest) (*models.Exam, error) {
	if !actor.CanRecordResults() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "caller may not record results")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid result payload")
	}
	exam, err := s.transition(ctx, id, func(exam *models.Exam) error {
		if err := s.resolveDerivedFields(exam); err != nil {
			return err
		}
		if exam.PassingMarks <= 0 {
			return appErrors.Clone(appErrors.ErrValidation, "passing marks are not resolvable for this exam")
		}

		result := models.StudentResult{
			StudentID:     req.StudentID,
			ObtainedMarks: req.ObtainedMarks,
			Percentage:    req.Percentage,
			Grade:         req.Grade,
			Answers:       req.Answers,
			Appeared:      true,
			Status:        req.Status,
			RecordedBy:    actor.ID,
			RecordedAt:    s.clock(),
		}
		exam.Results = append(exam.Results, result)
		exam.TotalAppeared++
		if req.ObtainedMarks >= exam.PassingMarks {
			exam.TotalPassed++
		} else {
			exam.TotalFailed++
		}
		// First submission seeds both extremes from the single value; an
		// unset bound must stay open, not default to zero.
		if exam.HighestMarks == nil || req.ObtainedMarks > *exam.HighestMarks {
			marks := req.ObtainedMarks
			exam.HighestMarks = &marks
		}
		if exam.LowestMarks == nil || req.ObtainedMarks < *exam.LowestMarks {
			marks := req.ObtainedMarks
			exam.LowestMarks = &marks
		}
		exam.UpdatedBy = actor.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordResultSubmission()
	}
	s.enqueueStatsRefresh(exam.ID)
	return exam, nil
}

// transition runs a mutating operation through the store's atomic update,
// retrying lost version races up to the configured budget.
func (s *ExamService) transition(ctx context.Context, id string, mutate func(*models.Exam) error) (*models.Exam, error) {
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		exam, err := s.store.AtomicUpdate(ctx, id, mutate)
		if err == nil {
			s.invalidateStats(ctx, id)
			return exam, nil
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrVersionConflict.Code {
			if s.metrics != nil {
				s.metrics.RecordUpdateConflict()
			}
			lastErr = err
			continue
		}
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update exam")
	}
	s.logger.Warn("exam update lost the race too often",
		zap.String("exam_id", id), zap.Int("attempts", s.retries), zap.Error(lastErr))
	return nil, appErrors.Clone(appErrors.ErrConflict, "exam was modified concurrently, retry the request")
}

// resolveDerivedFields applies the schedule and marks invariants:
// duration from start/end with next-day wrap, section totals, total marks
// from sections and passing marks from the passing ratio.
func (s *ExamService) resolveDerivedFields(exam *models.Exam) error {
	if exam.DurationMinutes == 0 && exam.StartTime != "" && exam.EndTime != "" {
		duration, err := durationBetween(exam.StartTime, exam.EndTime)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start or end time")
		}
		exam.DurationMinutes = duration
	}

	for i := range exam.Sections {
		section := &exam.Sections[i]
		if section.QuestionCount < 0 || section.MarksPerQuestion < 0 {
			return appErrors.Clone(appErrors.ErrValidation, "section counts and marks must be non-negative")
		}
		section.SectionTotal = float64(section.QuestionCount) * section.MarksPerQuestion
	}

	if exam.TotalMarks == 0 && len(exam.Sections) > 0 {
		total := 0.0
		for _, section := range exam.Sections {
			total += section.SectionTotal
		}
		exam.TotalMarks = total
	}

	if exam.PassingMarks == 0 && exam.TotalMarks > 0 {
		exam.PassingMarks = math.Ceil(exam.TotalMarks * s.passingRatio)
	}

	if exam.PassingMarks < 0 || exam.PassingMarks > exam.TotalMarks {
		return appErrors.Clone(appErrors.ErrValidation, "passing marks must be between 0 and total marks")
	}
	return nil
}

func (s *ExamService) assignCode(ctx context.Context, now time.Time) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code := fmt.Sprintf("EXAM-%d-%04d", now.Year(), rand.Intn(10000))
		taken, err := s.store.CodeExists(ctx, code)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check exam code")
		}
		if !taken {
			return code, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrConflict, "could not allocate a unique exam code")
}

func (s *ExamService) recordTransition(from, to models.ExamStatus) {
	if s.metrics != nil {
		s.metrics.RecordLifecycleTransition(from, to)
	}
}

func (s *ExamService) invalidateStats(ctx context.Context, examID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, StatsCacheKey(examID)); err != nil {
		s.logger.Warn("failed to invalidate statistics cache", zap.String("exam_id", examID), zap.Error(err))
	}
}

func (s *ExamService) enqueueStatsRefresh(examID string) {
	if s.statsQueue == nil {
		return
	}
	job := jobs.Job{ID: examID, Type: JobTypeStatsRefresh, Payload: examID}
	if err := s.statsQueue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue statistics refresh", zap.String("exam_id", examID), zap.Error(err))
	}
}

// DisplayStatus returns the advisory time-derived status using the service
// clock, falling back to the persisted status when the schedule is unparsable
// or a terminal/postponed status is already committed.
func (s *ExamService) DisplayStatus(exam *models.Exam) models.ExamStatus {
	switch exam.Status {
	case models.ExamStatusScheduled, models.ExamStatusOngoing:
		derived, err := TimeDerivedStatus(s.clock(), exam)
		if err != nil {
			return exam.Status
		}
		return derived
	default:
		return exam.Status
	}
}

// RegistrationOpen evaluates the registration-window predicate at the service
// clock's current time.
func (s *ExamService) RegistrationOpen(exam *models.Exam) bool {
	return RegistrationOpenAt(s.clock(), exam)
}

// TimeDerivedStatus computes the advisory display status for an exam from the
// wall clock and its schedule. It never mutates the persisted status; that
// only changes through explicit operations, so concurrent cancellations and
// postponements cannot be silently overwritten by readers.
func TimeDerivedStatus(now time.Time, exam *models.Exam) (models.ExamStatus, error) {
	start, err := clockOnDate(exam.ExamDate, exam.StartTime)
	if err != nil {
		return "", fmt.Errorf("parse start time: %w", err)
	}
	end, err := clockOnDate(exam.ExamDate, exam.EndTime)
	if err != nil {
		return "", fmt.Errorf("parse end time: %w", err)
	}
	if end.Before(start) {
		// End before start means the exam runs past midnight.
		end = end.Add(24 * time.Hour)
	}
	switch {
	case now.Before(start):
		return models.ExamStatusScheduled, nil
	case now.After(end):
		return models.ExamStatusCompleted, nil
	default:
		return models.ExamStatusOngoing, nil
	}
}

// RegistrationOpenAt is the pure registration-window predicate. It is
// recomputed on every read and never cached in the stored status.
func RegistrationOpenAt(now time.Time, exam *models.Exam) bool {
	if !exam.RequireRegistration {
		return false
	}
	if exam.RegistrationStatus != models.RegistrationOpen {
		return false
	}
	if exam.RegistrationStartDate != nil && now.Before(*exam.RegistrationStartDate) {
		return false
	}
	if exam.RegistrationEndDate != nil && now.After(*exam.RegistrationEndDate) {
		return false
	}
	return true
}

// durationBetween returns the minutes between two "HH:MM" clock strings,
// wrapping by a day when the end precedes the start.
func durationBetween(startClock, endClock string) (int, error) {
	start, err := parseClockMinutes(startClock)
	if err != nil {
		return 0, err
	}
	end, err := parseClockMinutes(endClock)
	if err != nil {
		return 0, err
	}
	duration := end - start
	if duration < 0 {
		duration += minutesPerDay
	}
	return duration, nil
}

func parseClockMinutes(clock string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(clock), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q, expected HH:MM", clock)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid hour in %q", clock)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid minute in %q", clock)
	}
	return hours*60 + minutes, nil
}

func clockOnDate(date time.Time, clock string) (time.Time, error) {
	minutes, err := parseClockMinutes(clock)
	if err != nil {
		return time.Time{}, err
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return day.Add(time.Duration(minutes) * time.Minute), nil
}

func meanPercentage(results models.StudentResultList) float64 {
	if len(results) == 0 {
		return 0
	}
	sum := 0.0
	for _, result := range results {
		sum += result.Percentage
	}
	return sum / float64(len(results))
}
