package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleTeacher    UserRole = "TEACHER"
	RoleStudent    UserRole = "STUDENT"
)

// User represents an account in the directory.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Actor identifies the authenticated caller of an engine operation.
type Actor struct {
	ID   string
	Role UserRole
}

// CanManageExams reports whether the actor may create, publish, cancel or
// postpone exams.
func (a Actor) CanManageExams() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}

// CanRecordResults reports whether the actor may ingest student results.
func (a Actor) CanRecordResults() bool {
	return a.Role == RoleTeacher || a.CanManageExams()
}
