package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ExamStatus is the persisted lifecycle state of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusScheduled ExamStatus = "SCHEDULED"
	ExamStatusOngoing   ExamStatus = "ONGOING"
	ExamStatusCompleted ExamStatus = "COMPLETED"
	ExamStatusCancelled ExamStatus = "CANCELLED"
	ExamStatusPostponed ExamStatus = "POSTPONED"
)

// Terminal reports whether no further lifecycle transition is allowed.
func (s ExamStatus) Terminal() bool {
	return s == ExamStatusCompleted || s == ExamStatusCancelled
}

// ExamTerm identifies the academic term an exam belongs to.
type ExamTerm string

const (
	TermFirst    ExamTerm = "FIRST"
	TermSecond   ExamTerm = "SECOND"
	TermFinal    ExamTerm = "FINAL"
	TermUnit     ExamTerm = "UNIT"
	TermMid      ExamTerm = "MID"
	TermPreboard ExamTerm = "PREBOARD"
)

// RegistrationStatus is the administratively controlled registration switch.
type RegistrationStatus string

const (
	RegistrationOpen    RegistrationStatus = "OPEN"
	RegistrationClosed  RegistrationStatus = "CLOSED"
	RegistrationPending RegistrationStatus = "PENDING"
)

// ExamSection groups questions sharing a uniform mark per question.
type ExamSection struct {
	Name             string  `json:"name"`
	QuestionCount    int     `json:"question_count"`
	MarksPerQuestion float64 `json:"marks_per_question"`
	SectionTotal     float64 `json:"section_total"`
	QuestionType     string  `json:"question_type"`
}

// ExamQuestion references its section by index within the exam.
type ExamQuestion struct {
	Number       int      `json:"number"`
	SectionIndex int      `json:"section_index"`
	Text         string   `json:"text"`
	Options      []string `json:"options,omitempty"`
	AnswerKey    string   `json:"answer_key,omitempty"`
	Marks        float64  `json:"marks"`
}

// SectionList is a JSONB column of exam sections.
type SectionList []ExamSection

// QuestionList is a JSONB column of exam questions.
type QuestionList []ExamQuestion

// Exam is the central entity: one scheduled assessment instance.
type Exam struct {
	ID   string `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`

	SubjectID    string   `db:"subject_id" json:"subject_id"`
	ClassID      string   `db:"class_id" json:"class_id"`
	AcademicYear string   `db:"academic_year" json:"academic_year"`
	Term         ExamTerm `db:"term" json:"term"`
	ExamType     string   `db:"exam_type" json:"exam_type"`
	Category     string   `db:"category" json:"category,omitempty"`

	ExamDate        time.Time `db:"exam_date" json:"exam_date"`
	StartTime       string    `db:"start_time" json:"start_time"`
	EndTime         string    `db:"end_time" json:"end_time"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`

	Sections  SectionList  `db:"sections" json:"sections,omitempty"`
	Questions QuestionList `db:"questions" json:"questions,omitempty"`

	TotalMarks   float64 `db:"total_marks" json:"total_marks"`
	PassingMarks float64 `db:"passing_marks" json:"passing_marks"`

	IsPublished          bool       `db:"is_published" json:"is_published"`
	PublishedAt          *time.Time `db:"published_at" json:"published_at,omitempty"`
	ResultsPublished     bool       `db:"results_published" json:"results_published"`
	ResultsPublishedAt   *time.Time `db:"results_published_at" json:"results_published_at,omitempty"`
	AnswerKeyPublished   bool       `db:"answer_key_published" json:"answer_key_published"`
	AnswerKeyPublishedAt *time.Time `db:"answer_key_published_at" json:"answer_key_published_at,omitempty"`

	RequireRegistration   bool               `db:"require_registration" json:"require_registration"`
	RegistrationStartDate *time.Time         `db:"registration_start_date" json:"registration_start_date,omitempty"`
	RegistrationEndDate   *time.Time         `db:"registration_end_date" json:"registration_end_date,omitempty"`
	RegistrationStatus    RegistrationStatus `db:"registration_status" json:"registration_status"`
	RegisteredStudents    pq.StringArray     `db:"registered_students" json:"registered_students,omitempty"`
	MaxStudents           int                `db:"max_students" json:"max_students"`

	// Aggregates are mutated only by result ingestion and results
	// publication, never written directly by callers.
	TotalRegistered   int      `db:"total_registered" json:"total_registered"`
	TotalAppeared     int      `db:"total_appeared" json:"total_appeared"`
	TotalPassed       int      `db:"total_passed" json:"total_passed"`
	TotalFailed       int      `db:"total_failed" json:"total_failed"`
	HighestMarks      *float64 `db:"highest_marks" json:"highest_marks,omitempty"`
	LowestMarks       *float64 `db:"lowest_marks" json:"lowest_marks,omitempty"`
	AveragePercentage float64  `db:"average_percentage" json:"average_percentage"`

	Results StudentResultList `db:"results" json:"results,omitempty"`

	Status       ExamStatus `db:"status" json:"status"`
	StatusReason string     `db:"status_reason" json:"status_reason,omitempty"`

	CreatedBy string     `db:"created_by" json:"created_by"`
	UpdatedBy string     `db:"updated_by" json:"updated_by"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`

	Version int `db:"version" json:"-"`
}

// IsRegistered reports whether the student already holds a registration.
func (e *Exam) IsRegistered(studentID string) bool {
	for _, id := range e.RegisteredStudents {
		if id == studentID {
			return true
		}
	}
	return false
}

// ExamFilter scopes listing queries.
type ExamFilter struct {
	Status    ExamStatus
	SubjectID string
	ClassID   string
	Term      ExamTerm
	CreatedBy string
	DateFrom  *time.Time
	DateTo    *time.Time
	Published *bool
	Limit     int
	Offset    int
}

func (l SectionList) Value() (driver.Value, error)  { return jsonbValue(l) }
func (l *SectionList) Scan(src interface{}) error   { return jsonbScan(src, l) }
func (l QuestionList) Value() (driver.Value, error) { return jsonbValue(l) }
func (l *QuestionList) Scan(src interface{}) error  { return jsonbScan(src, l) }

func jsonbValue(v interface{}) (driver.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb column: %w", err)
	}
	return raw, nil
}

func jsonbScan(src, dest interface{}) error {
	if src == nil {
		return nil
	}
	var raw []byte
	switch value := src.(type) {
	case []byte:
		raw = value
	case string:
		raw = []byte(value)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
