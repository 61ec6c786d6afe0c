package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-exam-api/internal/models"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
)

const examColumns = `id, code, name, subject_id, class_id, academic_year, term, exam_type, category,
       exam_date, start_time, end_time, duration_minutes, sections, questions,
       total_marks, passing_marks,
       is_published, published_at, results_published, results_published_at,
       answer_key_published, answer_key_published_at,
       require_registration, registration_start_date, registration_end_date,
       registration_status, registered_students, max_students,
       total_registered, total_appeared, total_passed, total_failed,
       highest_marks, lowest_marks, average_percentage, results,
       status, status_reason, created_by, updated_by, created_at, updated_at, deleted_at, version`

// ExamRepository persists exam records. All mutations after creation flow
// through AtomicUpdate so that the optimistic version check guards every
// read-modify-write cycle.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs the repository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

// Create inserts a new exam row at version 1.
func (r *ExamRepository) Create(ctx context.Context, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = now
	}
	exam.UpdatedAt = now
	exam.Version = 1

	const query = `INSERT INTO exams
	(id, code, name, subject_id, class_id, academic_year, term, exam_type, category,
	 exam_date, start_time, end_time, duration_minutes, sections, questions,
	 total_marks, passing_marks,
	 is_published, published_at, results_published, results_published_at,
	 answer_key_published, answer_key_published_at,
	 require_registration, registration_start_date, registration_end_date,
	 registration_status, registered_students, max_students,
	 total_registered, total_appeared, total_passed, total_failed,
	 highest_marks, lowest_marks, average_percentage, results,
	 status, status_reason, created_by, updated_by, created_at, updated_at, deleted_at, version)
	VALUES (:id, :code, :name, :subject_id, :class_id, :academic_year, :term, :exam_type, :category,
	 :exam_date, :start_time, :end_time, :duration_minutes, :sections, :questions,
	 :total_marks, :passing_marks,
	 :is_published, :published_at, :results_published, :results_published_at,
	 :answer_key_published, :answer_key_published_at,
	 :require_registration, :registration_start_date, :registration_end_date,
	 :registration_status, :registered_students, :max_students,
	 :total_registered, :total_appeared, :total_passed, :total_failed,
	 :highest_marks, :lowest_marks, :average_percentage, :results,
	 :status, :status_reason, :created_by, :updated_by, :created_at, :updated_at, :deleted_at, :version)`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return nil
}

// GetByID fetches an exam by identifier. Soft-deleted rows are excluded.
func (r *ExamRepository) GetByID(ctx context.Context, id string) (*models.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams WHERE id = $1 AND deleted_at IS NULL`
	var exam models.Exam
	if err := r.db.GetContext(ctx, &exam, query, id); err != nil {
		return nil, err
	}
	return &exam, nil
}

// GetByCode fetches an exam by its public code.
func (r *ExamRepository) GetByCode(ctx context.Context, code string) (*models.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams WHERE code = $1 AND deleted_at IS NULL`
	var exam models.Exam
	if err := r.db.GetContext(ctx, &exam, query, code); err != nil {
		return nil, err
	}
	return &exam, nil
}

// List returns exams matching the filter, newest exam date first, and the
// total count for pagination.
func (r *ExamRepository) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, int, error) {
	conditions := []string{"deleted_at IS NULL"}
	args := make([]interface{}, 0, 8)

	add := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.SubjectID != "" {
		add("subject_id = $%d", filter.SubjectID)
	}
	if filter.ClassID != "" {
		add("class_id = $%d", filter.ClassID)
	}
	if filter.Term != "" {
		add("term = $%d", filter.Term)
	}
	if filter.CreatedBy != "" {
		add("created_by = $%d", filter.CreatedBy)
	}
	if filter.DateFrom != nil {
		add("exam_date >= $%d", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		add("exam_date <= $%d", *filter.DateTo)
	}
	if filter.Published != nil {
		add("is_published = $%d", *filter.Published)
	}

	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM exams"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count exams: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := "SELECT " + examColumns + " FROM exams" + where +
		fmt.Sprintf(" ORDER BY exam_date DESC, created_at DESC LIMIT %d OFFSET %d", limit, offset)

	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list exams: %w", err)
	}
	return exams, total, nil
}

// AtomicUpdate loads the exam, applies mutate and persists the result only if
// nobody else committed in between. A zero-row update means the version moved
// and the caller must retry with a fresh read.
func (r *ExamRepository) AtomicUpdate(ctx context.Context, id string, mutate func(*models.Exam) error) (*models.Exam, error) {
	exam, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	expectedVersion := exam.Version
	if err := mutate(exam); err != nil {
		return nil, err
	}

	exam.UpdatedAt = time.Now().UTC()
	exam.Version = expectedVersion + 1

	const query = `UPDATE exams SET
	 code = :code, name = :name, subject_id = :subject_id, class_id = :class_id,
	 academic_year = :academic_year, term = :term, exam_type = :exam_type, category = :category,
	 exam_date = :exam_date, start_time = :start_time, end_time = :end_time,
	 duration_minutes = :duration_minutes, sections = :sections, questions = :questions,
	 total_marks = :total_marks, passing_marks = :passing_marks,
	 is_published = :is_published, published_at = :published_at,
	 results_published = :results_published, results_published_at = :results_published_at,
	 answer_key_published = :answer_key_published, answer_key_published_at = :answer_key_published_at,
	 require_registration = :require_registration,
	 registration_start_date = :registration_start_date, registration_end_date = :registration_end_date,
	 registration_status = :registration_status, registered_students = :registered_students,
	 max_students = :max_students,
	 total_registered = :total_registered, total_appeared = :total_appeared,
	 total_passed = :total_passed, total_failed = :total_failed,
	 highest_marks = :highest_marks, lowest_marks = :lowest_marks,
	 average_percentage = :average_percentage, results = :results,
	 status = :status, status_reason = :status_reason,
	 updated_by = :updated_by, updated_at = :updated_at, deleted_at = :deleted_at,
	 version = :version
	WHERE id = :id AND version = :expected_version`

	params := struct {
		*models.Exam
		ExpectedVersion int `db:"expected_version"`
	}{Exam: exam, ExpectedVersion: expectedVersion}

	result, err := r.db.NamedExecContext(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("update exam %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update exam %s: %w", id, err)
	}
	if affected == 0 {
		return nil, appErrors.ErrVersionConflict
	}
	return exam, nil
}

// ListWithResultsFor returns exams holding a result row for the student,
// newest exam date first. Matching relies on JSONB containment so the result
// arrays are not unpacked server-side.
func (r *ExamRepository) ListWithResultsFor(ctx context.Context, studentID string, limit int) ([]models.Exam, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	query := `SELECT ` + examColumns + ` FROM exams
	WHERE deleted_at IS NULL
	  AND results @> jsonb_build_array(jsonb_build_object('student_id', $1::text))
	ORDER BY exam_date DESC
	LIMIT ` + fmt.Sprintf("%d", limit)
	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, studentID); err != nil {
		return nil, fmt.Errorf("list exams for student %s: %w", studentID, err)
	}
	return exams, nil
}

// SoftDelete stamps deleted_at, preserving historical results.
func (r *ExamRepository) SoftDelete(ctx context.Context, id, actorID string) error {
	const query = `UPDATE exams SET deleted_at = $1, updated_by = $2, updated_at = $1, version = version + 1
	WHERE id = $3 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), actorID, id)
	if err != nil {
		return fmt.Errorf("soft delete exam %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete exam %s: %w", id, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CodeExists reports whether an exam code is already taken.
func (r *ExamRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM exams WHERE code = $1)", code)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("check exam code: %w", err)
	}
	return exists, nil
}
