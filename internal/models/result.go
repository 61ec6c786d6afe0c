package models

import (
	"database/sql/driver"
	"time"
)

// StudentResult is one student's submission record for an exam.
type StudentResult struct {
	StudentID     string             `json:"student_id"`
	ObtainedMarks float64            `json:"obtained_marks"`
	Percentage    float64            `json:"percentage"`
	Grade         string             `json:"grade"`
	Rank          int                `json:"rank,omitempty"`
	Answers       map[string]string  `json:"answers,omitempty"`
	Appeared      bool               `json:"appeared"`
	Status        string             `json:"status,omitempty"`
	RecordedBy    string             `json:"recorded_by,omitempty"`
	RecordedAt    time.Time          `json:"recorded_at"`
}

// StudentResultList is a JSONB column of embedded student results.
type StudentResultList []StudentResult

func (l StudentResultList) Value() (driver.Value, error) { return jsonbValue(l) }
func (l *StudentResultList) Scan(src interface{}) error  { return jsonbScan(src, l) }

// ExamStatistics is the read-only projection served by the result surface.
//
// AverageMarks is recomputed from the result list on every read and is an
// operational figure; AveragePercentage is the published student-facing
// figure frozen at results publication. The two may legitimately differ.
type ExamStatistics struct {
	ExamID            string   `json:"exam_id"`
	ExamCode          string   `json:"exam_code"`
	TotalStudents     int      `json:"total_students"`
	Appeared          int      `json:"appeared"`
	Passed            int      `json:"passed"`
	Failed            int      `json:"failed"`
	PassPercentage    float64  `json:"pass_percentage"`
	AverageMarks      float64  `json:"average_marks"`
	AveragePercentage float64  `json:"average_percentage"`
	HighestMarks      *float64 `json:"highest_marks,omitempty"`
	LowestMarks       *float64 `json:"lowest_marks,omitempty"`
}

// StudentExamResult pairs a student's result with exam context for listings.
type StudentExamResult struct {
	ExamID           string        `json:"exam_id"`
	ExamCode         string        `json:"exam_code"`
	ExamName         string        `json:"exam_name"`
	SubjectID        string        `json:"subject_id"`
	Term             ExamTerm      `json:"term"`
	ExamDate         time.Time     `json:"exam_date"`
	TotalMarks       float64       `json:"total_marks"`
	PassingMarks     float64       `json:"passing_marks"`
	ResultsPublished bool          `json:"results_published"`
	Result           StudentResult `json:"result"`
}
