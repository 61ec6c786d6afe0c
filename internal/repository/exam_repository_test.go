package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-exam-api/internal/models"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
)

func newExamRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var examRowColumns = []string{
	"id", "code", "name", "subject_id", "class_id", "academic_year", "term", "exam_type", "category",
	"exam_date", "start_time", "end_time", "duration_minutes", "sections", "questions",
	"total_marks", "passing_marks",
	"is_published", "published_at", "results_published", "results_published_at",
	"answer_key_published", "answer_key_published_at",
	"require_registration", "registration_start_date", "registration_end_date",
	"registration_status", "registered_students", "max_students",
	"total_registered", "total_appeared", "total_passed", "total_failed",
	"highest_marks", "lowest_marks", "average_percentage", "results",
	"status", "status_reason", "created_by", "updated_by", "created_at", "updated_at", "deleted_at", "version",
}

func examRow(id string, version int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(examRowColumns).AddRow(
		id, "EXAM-2026-0042", "Mathematics Final", "subj-math", "class-10a", "2026/2027", "FINAL", "WRITTEN", "",
		now, "09:00", "11:30", 150, []byte(`[]`), []byte(`[]`),
		100.0, 33.0,
		true, now, false, nil,
		false, nil,
		true, nil, nil,
		"OPEN", []byte(`{}`), 0,
		0, 1, 1, 0,
		85.0, 85.0, 0.0, []byte(`[{"student_id":"stu-1","obtained_marks":85,"percentage":85,"grade":"A","appeared":true,"recorded_at":"2026-08-01T10:00:00Z"}]`),
		"ONGOING", "", "admin-1", "admin-1", now, now, nil, version,
	)
}

func TestExamRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newExamRepoMock(t)
	defer cleanup()

	repo := NewExamRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO exams")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	exam := &models.Exam{
		Code:         "EXAM-2026-0042",
		Name:         "Mathematics Final",
		SubjectID:    "subj-math",
		ClassID:      "class-10a",
		AcademicYear: "2026/2027",
		Term:         models.TermFinal,
		ExamType:     "WRITTEN",
		ExamDate:     time.Now(),
		StartTime:    "09:00",
		EndTime:      "11:30",
		Status:       models.ExamStatusDraft,
	}
	require.NoError(t, repo.Create(context.Background(), exam))
	require.NotEmpty(t, exam.ID)
	require.Equal(t, 1, exam.Version)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, name")).
		WithArgs(exam.ID).
		WillReturnRows(examRow(exam.ID, 1))

	found, err := repo.GetByID(context.Background(), exam.ID)
	require.NoError(t, err)
	require.Equal(t, exam.ID, found.ID)
	require.Equal(t, models.ExamStatusOngoing, found.Status)
	require.Len(t, found.Results, 1)
	require.Equal(t, "stu-1", found.Results[0].StudentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newExamRepoMock(t)
	defer cleanup()

	repo := NewExamRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, name")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestExamRepositoryAtomicUpdateBumpsVersion(t *testing.T) {
	db, mock, cleanup := newExamRepoMock(t)
	defer cleanup()

	repo := NewExamRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, name")).
		WithArgs("exam-1").
		WillReturnRows(examRow("exam-1", 3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE exams SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.AtomicUpdate(context.Background(), "exam-1", func(exam *models.Exam) error {
		exam.TotalAppeared++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, updated.TotalAppeared)
	require.Equal(t, 4, updated.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryAtomicUpdateVersionConflict(t *testing.T) {
	db, mock, cleanup := newExamRepoMock(t)
	defer cleanup()

	repo := NewExamRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, name")).
		WithArgs("exam-1").
		WillReturnRows(examRow("exam-1", 3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE exams SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.AtomicUpdate(context.Background(), "exam-1", func(exam *models.Exam) error {
		exam.TotalAppeared++
		return nil
	})
	require.ErrorIs(t, err, appErrors.ErrVersionConflict)
}

func TestExamRepositoryAtomicUpdateMutateErrorSkipsWrite(t *testing.T) {
	db, mock, cleanup := newExamRepoMock(t)
	defer cleanup()

	repo := NewExamRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, name")).
		WithArgs("exam-1").
		WillReturnRows(examRow("exam-1", 1))

	boom := errors.New("refused")
	_, err := repo.AtomicUpdate(context.Background(), "exam-1", func(*models.Exam) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newExamRepoMock(t)
	defer cleanup()

	repo := NewExamRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM exams")).
		WithArgs("SCHEDULED", "subj-math").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, name")).
		WithArgs("SCHEDULED", "subj-math").
		WillReturnRows(examRow("exam-1", 1))

	exams, total, err := repo.List(context.Background(), models.ExamFilter{
		Status:    models.ExamStatusScheduled,
		SubjectID: "subj-math",
		Limit:     20,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, exams, 1)
	require.Equal(t, "exam-1", exams[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryListWithResultsFor(t *testing.T) {
	db, mock, cleanup := newExamRepoMock(t)
	defer cleanup()

	repo := NewExamRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, name")).
		WithArgs("stu-1").
		WillReturnRows(examRow("exam-1", 1))

	exams, err := repo.ListWithResultsFor(context.Background(), "stu-1", 10)
	require.NoError(t, err)
	require.Len(t, exams, 1)
	require.Equal(t, "stu-1", exams[0].Results[0].StudentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositorySoftDelete(t *testing.T) {
	db, mock, cleanup := newExamRepoMock(t)
	defer cleanup()

	repo := NewExamRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE exams SET deleted_at")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SoftDelete(context.Background(), "exam-1", "admin-1"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE exams SET deleted_at")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.SoftDelete(context.Background(), "exam-1", "admin-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestExamRepositoryCodeExists(t *testing.T) {
	db, mock, cleanup := newExamRepoMock(t)
	defer cleanup()

	repo := NewExamRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("EXAM-2026-0042").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	taken, err := repo.CodeExists(context.Background(), "EXAM-2026-0042")
	require.NoError(t, err)
	require.True(t, taken)
}
