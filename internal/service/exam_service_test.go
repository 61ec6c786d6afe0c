package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-exam-api/internal/models"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
)

// fakeExamStore applies mutations under a mutex, honouring the same atomic
// read-modify-write contract as the SQL repository. injectConflicts makes the
// next N updates lose the version race.
type fakeExamStore struct {
	mu              sync.Mutex
	exams           map[string]*models.Exam
	injectConflicts int
	updateCalls     int
}

func newFakeExamStore() *fakeExamStore {
	return &fakeExamStore{exams: make(map[string]*models.Exam)}
}

func (f *fakeExamStore) Create(_ context.Context, exam *models.Exam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if exam.ID == "" {
		exam.ID = fmt.Sprintf("exam-%d", len(f.exams)+1)
	}
	exam.Version = 1
	f.exams[exam.ID] = cloneExam(exam)
	return nil
}

func (f *fakeExamStore) GetByID(_ context.Context, id string) (*models.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exam, ok := f.exams[id]
	if !ok || exam.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	return cloneExam(exam), nil
}

func (f *fakeExamStore) GetByCode(_ context.Context, code string) (*models.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, exam := range f.exams {
		if exam.Code == code && exam.DeletedAt == nil {
			return cloneExam(exam), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeExamStore) List(_ context.Context, _ models.ExamFilter) ([]models.Exam, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Exam, 0, len(f.exams))
	for _, exam := range f.exams {
		out = append(out, *cloneExam(exam))
	}
	return out, len(out), nil
}

func (f *fakeExamStore) AtomicUpdate(_ context.Context, id string, mutate func(*models.Exam) error) (*models.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	stored, ok := f.exams[id]
	if !ok || stored.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	working := cloneExam(stored)
	if err := mutate(working); err != nil {
		return nil, err
	}
	if f.injectConflicts > 0 {
		f.injectConflicts--
		return nil, appErrors.ErrVersionConflict
	}
	working.Version = stored.Version + 1
	f.exams[id] = cloneExam(working)
	return working, nil
}

func (f *fakeExamStore) SoftDelete(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	exam, ok := f.exams[id]
	if !ok || exam.DeletedAt != nil {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	exam.DeletedAt = &now
	return nil
}

func (f *fakeExamStore) CodeExists(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, exam := range f.exams {
		if exam.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func cloneExam(exam *models.Exam) *models.Exam {
	clone := *exam
	clone.Sections = append(models.SectionList(nil), exam.Sections...)
	clone.Questions = append(models.QuestionList(nil), exam.Questions...)
	clone.Results = append(models.StudentResultList(nil), exam.Results...)
	clone.RegisteredStudents = append(clone.RegisteredStudents[:0:0], exam.RegisteredStudents...)
	if exam.HighestMarks != nil {
		v := *exam.HighestMarks
		clone.HighestMarks = &v
	}
	if exam.LowestMarks != nil {
		v := *exam.LowestMarks
		clone.LowestMarks = &v
	}
	return &clone
}

var (
	adminActor   = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
	teacherActor = models.Actor{ID: "teacher-1", Role: models.RoleTeacher}
	studentActor = models.Actor{ID: "student-1", Role: models.RoleStudent}
)

func newTestService(store *fakeExamStore, now time.Time) *ExamService {
	return NewExamService(ExamServiceParams{
		Store:           store,
		Clock:           func() time.Time { return now },
		EnforceCapacity: true,
	})
}

func baseRequest() CreateExamRequest {
	return CreateExamRequest{
		Name:         "Mathematics Final",
		SubjectID:    "subj-math",
		ClassID:      "class-10a",
		AcademicYear: "2026/2027",
		Term:         models.TermFinal,
		ExamType:     "WRITTEN",
		ExamDate:     time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		StartTime:    "09:00",
		EndTime:      "11:30",
	}
}

func mustCreate(t *testing.T, svc *ExamService, req CreateExamRequest) *models.Exam {
	t.Helper()
	exam, err := svc.Create(context.Background(), adminActor, req)
	require.NoError(t, err)
	return exam
}

func TestCreateExamDerivesScheduleAndMarks(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(newFakeExamStore(), now)

	req := baseRequest()
	req.Sections = []models.ExamSection{
		{Name: "A", QuestionCount: 10, MarksPerQuestion: 2, QuestionType: "MCQ"},
		{Name: "B", QuestionCount: 5, MarksPerQuestion: 4, QuestionType: "SHORT"},
	}

	exam := mustCreate(t, svc, req)

	assert.Equal(t, 150, exam.DurationMinutes)
	assert.Equal(t, 40.0, exam.TotalMarks)
	assert.Equal(t, 14.0, exam.PassingMarks)
	assert.Equal(t, 20.0, exam.Sections[0].SectionTotal)
	assert.Equal(t, 20.0, exam.Sections[1].SectionTotal)
	assert.Equal(t, models.ExamStatusDraft, exam.Status)
	assert.Regexp(t, `^EXAM-2026-\d{4}$`, exam.Code)
	assert.Equal(t, "admin-1", exam.CreatedBy)
}

func TestCreateExamDurationWrapsPastMidnight(t *testing.T) {
	svc := newTestService(newFakeExamStore(), time.Now().UTC())

	req := baseRequest()
	req.StartTime = "23:00"
	req.EndTime = "01:00"
	req.TotalMarks = 100

	exam := mustCreate(t, svc, req)
	assert.Equal(t, 120, exam.DurationMinutes)
	assert.Equal(t, 33.0, exam.PassingMarks)
}

func TestCreateExamRejectsPassingAboveTotal(t *testing.T) {
	svc := newTestService(newFakeExamStore(), time.Now().UTC())

	req := baseRequest()
	req.TotalMarks = 50
	req.PassingMarks = 60

	_, err := svc.Create(context.Background(), adminActor, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateExamForbiddenForTeachers(t *testing.T) {
	svc := newTestService(newFakeExamStore(), time.Now().UTC())

	_, err := svc.Create(context.Background(), teacherActor, baseRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestPublishSucceedsOnceThenInvalidState(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeExamStore()
	svc := newTestService(store, now)
	req := baseRequest()
	req.TotalMarks = 100
	exam := mustCreate(t, svc, req)

	published, err := svc.Publish(context.Background(), adminActor, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExamStatusScheduled, published.Status)
	assert.True(t, published.IsPublished)
	require.NotNil(t, published.PublishedAt)
	assert.Equal(t, now, *published.PublishedAt)
	assert.Equal(t, models.RegistrationOpen, published.RegistrationStatus)

	_, err = svc.Publish(context.Background(), adminActor, exam.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestPublishForbiddenForStudents(t *testing.T) {
	svc := newTestService(newFakeExamStore(), time.Now().UTC())
	req := baseRequest()
	req.TotalMarks = 100
	exam := mustCreate(t, svc, req)

	_, err := svc.Publish(context.Background(), studentActor, exam.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCancelAndPostponeRefuseTerminalStates(t *testing.T) {
	svc := newTestService(newFakeExamStore(), time.Now().UTC())
	req := baseRequest()
	req.TotalMarks = 100
	exam := mustCreate(t, svc, req)

	_, err := svc.Cancel(context.Background(), adminActor, exam.ID, CancelExamRequest{Reason: "venue flooded"})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), adminActor, exam.ID, CancelExamRequest{Reason: "again"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	_, err = svc.Postpone(context.Background(), adminActor, exam.ID, PostponeExamRequest{
		NewDate: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		Reason:  "cannot postpone cancelled",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestPostponeRecordsNewDateAndRescheduleViaUpdate(t *testing.T) {
	svc := newTestService(newFakeExamStore(), time.Now().UTC())
	req := baseRequest()
	req.TotalMarks = 100
	exam := mustCreate(t, svc, req)

	_, err := svc.Publish(context.Background(), adminActor, exam.ID)
	require.NoError(t, err)

	newDate := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	postponed, err := svc.Postpone(context.Background(), adminActor, exam.ID, PostponeExamRequest{NewDate: newDate, Reason: "teacher strike"})
	require.NoError(t, err)
	assert.Equal(t, models.ExamStatusPostponed, postponed.Status)
	assert.Equal(t, newDate, postponed.ExamDate)
	assert.Equal(t, "teacher strike", postponed.StatusReason)
	assert.Zero(t, postponed.TotalAppeared)

	laterDate := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	rescheduled, err := svc.Update(context.Background(), adminActor, exam.ID, UpdateExamRequest{ExamDate: &laterDate})
	require.NoError(t, err)
	assert.Equal(t, models.ExamStatusScheduled, rescheduled.Status)
	assert.Empty(t, rescheduled.StatusReason)
}

func TestAddStudentResultAggregatesIncrementally(t *testing.T) {
	svc := newTestService(newFakeExamStore(), time.Now().UTC())
	req := baseRequest()
	req.TotalMarks = 100 // passing resolves to 33
	exam := mustCreate(t, svc, req)
	_, err := svc.Publish(context.Background(), adminActor, exam.ID)
	require.NoError(t, err)
	_, err = svc.Begin(context.Background(), adminActor, exam.ID)
	require.NoError(t, err)

	submissions := []struct {
		student string
		marks   float64
	}{
		{"stu-1", 20}, // fail, seeds both extremes
		{"stu-2", 85},
		{"stu-3", 33}, // exactly passing marks passes
		{"stu-4", 5},
	}
	var updated *models.Exam
	for _, sub := range submissions {
		updated, err = svc.AddStudentResult(context.Background(), teacherActor, exam.ID, AddStudentResultRequest{
			StudentID:     sub.student,
			ObtainedMarks: sub.marks,
			Percentage:    sub.marks,
			Grade:         "C",
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 4, updated.TotalAppeared)
	assert.Equal(t, 2, updated.TotalPassed)
	assert.Equal(t, 2, updated.TotalFailed)
	require.NotNil(t, updated.HighestMarks)
	require.NotNil(t, updated.LowestMarks)
	assert.Equal(t, 85.0, *updated.HighestMarks)
	assert.Equal(t, 5.0, *updated.LowestMarks)
	// averagePercentage is deferred until results publication.
	assert.Zero(t, updated.AveragePercentage)
	assert.Len(t, updated.Results, 4)
}

func TestAddStudentResultFirstLowScoreSeedsExtremes(t *testing.T) {
	svc := newTestService(newFakeExamStore(), time.Now().UTC())
	req := baseRequest()
	req.TotalMarks = 100
	exam := mustCreate(t, svc, req)

	updated, err := svc.AddStudentResult(context.Background(), teacherActor, exam.ID, AddStudentResultRequest{
		StudentID:     "stu-1",
		ObtainedMarks: 0,
		Percentage:    0,
		Grade:         "F",
	})
	require.NoError(t, err)
	require.NotNil(t, updated.HighestMarks)
	require.NotNil(t, updated.LowestMarks)
	assert.Equal(t, 0.0, *updated.HighestMarks)
	assert.Equal(t, 0.0, *updated.LowestMarks)
	assert.Equal(t, 1, updated.TotalFailed)
}

func TestAddStudentResultRequiresResolvablePassingMarks(t *testing.T) {
	svc := newTestService(newFakeExamStore(), time.Now().UTC())
	exam := mustCreate(t, svc, baseRequest()) // no sections, no marks

	_, err := svc.AddStudentResult(context.Background(), teacherActor, exam.ID, AddStudentResultRequest{
		StudentID:     "stu-1",
		ObtainedMarks: 10,
		Percentage:    10,
		Grade:         "D",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAddStudentResultForbiddenForStudents(t *testing.T) {
	svc := newTestService(newFakeExamStore(), time.Now().UTC())
	req := baseRequest()
	req.TotalMarks = 100
	exam := mustCreate(t, svc, req)

	_, err := svc.AddStudentResult(context.Background(), studentActor, exam.ID, AddStudentResultRequest{
		StudentID:     "student-1",
		ObtainedMarks: 50,
		Percentage:    50,
		Grade:         "B",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAddStudentResultRetriesLostRaces(t *testing.T) {
	store := newFakeExamStore()
	svc := newTestService(store, time.Now().UTC())
	req := baseRequest()
	req.TotalMarks = 100
	exam := mustCreate(t, svc, req)

	store.injectConflicts = 2
	updated, err := svc.AddStudentResult(context.Background(), teacherActor, exam.ID, AddStudentResultRequest{
		StudentID:     "stu-1",
		ObtainedMarks: 40,
		Percentage:    40,
		Grade:         "C",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.TotalAppeared)

	store.injectConflicts = 3
	_, err = svc.AddStudentResult(context.Background(), teacherActor, exam.ID, AddStudentResultRequest{
		StudentID:     "stu-2",
		ObtainedMarks: 40,
		Percentage:    40,
		Grade:         "C",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestConcurrentSubmissionsLoseNoUpdates(t *testing.T) {
	store := newFakeExamStore()
	svc := newTestService(store, time.Now().UTC())
	req := baseRequest()
	req.TotalMarks = 100
	exam := mustCreate(t, svc, req)

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.AddStudentResult(context.Background(), teacherActor, exam.ID, AddStudentResultRequest{
				StudentID:     fmt.Sprintf("stu-%d", n),
				ObtainedMarks: float64(n % 100),
				Percentage:    float64(n % 100),
				Grade:         "C",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	final, err := svc.Get(context.Background(), exam.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, final.TotalAppeared)
	assert.Equal(t, workers, final.TotalPassed+final.TotalFailed)
	assert.Len(t, final.Results, workers)
	require.NotNil(t, final.HighestMarks)
	require.NotNil(t, final.LowestMarks)
	assert.GreaterOrEqual(t, *final.HighestMarks, *final.LowestMarks)
}

func TestPublishResultsComputesAveragePercentage(t *testing.T) {
	svc := newTestService(newFakeExamStore(), time.Now().UTC())
	req := baseRequest()
	req.TotalMarks = 100
	exam := mustCreate(t, svc, req)
	_, err := svc.Publish(context.Background(), adminActor, exam.ID)
	require.NoError(t, err)
	_, err = svc.Begin(context.Background(), adminActor, exam.ID)
	require.NoError(t, err)

	for i, pct := range []float64{80, 60, 40} {
		_, err = svc.AddStudentResult(context.Background(), teacherActor, exam.ID, AddStudentResultRequest{
			StudentID:     fmt.Sprintf("stu-%d", i),
			ObtainedMarks: pct,
			Percentage:    pct,
			Grade:         "B",
		})
		require.NoError(t, err)
	}

	published, err := svc.PublishResults(context.Background(), adminActor, exam.ID)
	require.NoError(t, err)
	assert.True(t, published.ResultsPublished)
	require.NotNil(t, published.ResultsPublishedAt)
	assert.Equal(t, 60.0, published.AveragePercentage)
}

func TestPublishResultsWithoutSubmissionsYieldsZeroAverage(t *testing.T) {
	svc := newTestService(newFakeExamStore(), time.Now().UTC())
	req := baseRequest()
	req.TotalMarks = 100
	exam := mustCreate(t, svc, req)
	_, err := svc.Publish(context.Background(), adminActor, exam.ID)
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), adminActor, exam.ID)
	require.NoError(t, err)

	published, err := svc.PublishResults(context.Background(), adminActor, exam.ID)
	require.NoError(t, err)
	assert.Zero(t, published.AveragePercentage)
}

func TestPublishResultsRejectedBeforeExamRuns(t *testing.T) {
	svc := newTestService(newFakeExamStore(), time.Now().UTC())
	req := baseRequest()
	req.TotalMarks = 100
	exam := mustCreate(t, svc, req)

	_, err := svc.PublishResults(context.Background(), adminActor, exam.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestPublishAnswerKeyRequiresPublishedPaper(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(newFakeExamStore(), now)
	req := baseRequest()
	req.TotalMarks = 100
	exam := mustCreate(t, svc, req)

	_, err := svc.PublishAnswerKey(context.Background(), adminActor, exam.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	_, err = svc.Publish(context.Background(), adminActor, exam.ID)
	require.NoError(t, err)
	keyed, err := svc.PublishAnswerKey(context.Background(), adminActor, exam.ID)
	require.NoError(t, err)
	assert.True(t, keyed.AnswerKeyPublished)
	require.NotNil(t, keyed.AnswerKeyPublishedAt)
}

func TestRegisterStudentEnforcesWindowAndCapacity(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	svc := newTestService(newFakeExamStore(), now)

	windowStart := now.Add(-time.Hour)
	windowEnd := now.Add(time.Hour)
	req := baseRequest()
	req.TotalMarks = 100
	req.RequireRegistration = true
	req.RegistrationStartDate = &windowStart
	req.RegistrationEndDate = &windowEnd
	req.MaxStudents = 1
	exam := mustCreate(t, svc, req)

	// Draft exams keep registration pending until publication.
	_, err := svc.RegisterStudent(context.Background(), studentActor, exam.ID, "student-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRegistrationClosed.Code, appErrors.FromError(err).Code)

	_, err = svc.Publish(context.Background(), adminActor, exam.ID)
	require.NoError(t, err)

	registered, err := svc.RegisterStudent(context.Background(), studentActor, exam.ID, "student-1")
	require.NoError(t, err)
	assert.Equal(t, 1, registered.TotalRegistered)

	_, err = svc.RegisterStudent(context.Background(), studentActor, exam.ID, "student-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.RegisterStudent(context.Background(), adminActor, exam.ID, "student-2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCapacityReached.Code, appErrors.FromError(err).Code)
}

func TestRegisterStudentCannotRegisterSomeoneElse(t *testing.T) {
	svc := newTestService(newFakeExamStore(), time.Now().UTC())
	req := baseRequest()
	req.TotalMarks = 100
	exam := mustCreate(t, svc, req)

	_, err := svc.RegisterStudent(context.Background(), studentActor, exam.ID, "other-student")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestOperationsOnUnknownExamReturnNotFound(t *testing.T) {
	svc := newTestService(newFakeExamStore(), time.Now().UTC())

	_, err := svc.Publish(context.Background(), adminActor, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimeDerivedStatusIsAdvisory(t *testing.T) {
	exam := &models.Exam{
		ExamDate:  time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		StartTime: "09:00",
		EndTime:   "11:30",
	}

	cases := []struct {
		name string
		now  time.Time
		want models.ExamStatus
	}{
		{"before start", time.Date(2026, 9, 15, 8, 0, 0, 0, time.UTC), models.ExamStatusScheduled},
		{"at start", time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC), models.ExamStatusOngoing},
		{"during", time.Date(2026, 9, 15, 10, 30, 0, 0, time.UTC), models.ExamStatusOngoing},
		{"at end", time.Date(2026, 9, 15, 11, 30, 0, 0, time.UTC), models.ExamStatusOngoing},
		{"after end", time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC), models.ExamStatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := TimeDerivedStatus(tc.now, exam)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTimeDerivedStatusNextDayWindow(t *testing.T) {
	exam := &models.Exam{
		ExamDate:  time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		StartTime: "23:00",
		EndTime:   "01:00",
	}

	got, err := TimeDerivedStatus(time.Date(2026, 9, 16, 0, 30, 0, 0, time.UTC), exam)
	require.NoError(t, err)
	assert.Equal(t, models.ExamStatusOngoing, got)

	got, err = TimeDerivedStatus(time.Date(2026, 9, 16, 2, 0, 0, 0, time.UTC), exam)
	require.NoError(t, err)
	assert.Equal(t, models.ExamStatusCompleted, got)
}

func TestRegistrationOpenAtPredicate(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	cases := []struct {
		name string
		exam models.Exam
		want bool
	}{
		{"open within window", models.Exam{RequireRegistration: true, RegistrationStatus: models.RegistrationOpen, RegistrationStartDate: &before, RegistrationEndDate: &after}, true},
		{"open with unbounded window", models.Exam{RequireRegistration: true, RegistrationStatus: models.RegistrationOpen}, true},
		{"registration not required", models.Exam{RegistrationStatus: models.RegistrationOpen}, false},
		{"status closed", models.Exam{RequireRegistration: true, RegistrationStatus: models.RegistrationClosed, RegistrationStartDate: &before, RegistrationEndDate: &after}, false},
		{"window not started", models.Exam{RequireRegistration: true, RegistrationStatus: models.RegistrationOpen, RegistrationStartDate: &after}, false},
		{"window elapsed", models.Exam{RequireRegistration: true, RegistrationStatus: models.RegistrationOpen, RegistrationEndDate: &before}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exam := tc.exam
			assert.Equal(t, tc.want, RegistrationOpenAt(now, &exam))
		})
	}
}

func TestDurationBetweenTable(t *testing.T) {
	cases := []struct {
		start, end string
		want       int
	}{
		{"09:00", "11:30", 150},
		{"23:00", "01:00", 120},
		{"00:00", "00:00", 0},
		{"13:15", "13:45", 30},
	}
	for _, tc := range cases {
		got, err := durationBetween(tc.start, tc.end)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s-%s", tc.start, tc.end)
	}

	_, err := durationBetween("25:00", "11:00")
	require.Error(t, err)
	_, err = durationBetween("0900", "11:00")
	require.Error(t, err)
}

func TestDeleteSoftDeletesAndHidesExam(t *testing.T) {
	svc := newTestService(newFakeExamStore(), time.Now().UTC())
	req := baseRequest()
	req.TotalMarks = 100
	exam := mustCreate(t, svc, req)

	require.NoError(t, svc.Delete(context.Background(), adminActor, exam.ID))

	_, err := svc.Get(context.Background(), exam.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	err = svc.Delete(context.Background(), adminActor, exam.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
