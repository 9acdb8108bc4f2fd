package models

import (
	"time"
)

// StudentProfile is the persisted record the context builder reads. Nullable
// dates are pointers; a nil date simply never enters the context's date map.
type StudentProfile struct {
	ID                   string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" elastic:"type:keyword" json:"id"`
	FirstName            string     `elastic:"type:text,analyzer:standard" json:"first_name"`
	LastName             string     `elastic:"type:text,analyzer:standard" json:"last_name"`
	Email                string     `gorm:"uniqueIndex" elastic:"type:keyword" json:"email"`
	VisaType             string     `elastic:"type:keyword" json:"visa_type"`
	University           string     `elastic:"type:keyword" json:"university"`
	DegreeLevel          string     `elastic:"type:keyword" json:"degree_level"`
	Program              string     `elastic:"type:text,analyzer:standard" json:"program"`
	IsSTEM               bool       `json:"is_stem"`
	EnrollmentStatus     string     `elastic:"type:keyword" json:"enrollment_status"`
	EmploymentStatus     string     `elastic:"type:keyword" json:"employment_status"`
	EmployerName         string     `json:"employer_name"`
	UnemploymentDaysUsed int        `json:"unemployment_days_used"`
	Country              string     `json:"country"`
	State                string     `json:"state"`
	AddressUpToDate      bool       `json:"address_up_to_date"`
	ProgramStartDate     *time.Time `elastic:"type:date" json:"program_start_date"`
	GraduationDate       *time.Time `elastic:"type:date" json:"graduation_date"`
	USEntryDate          *time.Time `elastic:"type:date" json:"us_entry_date"`
	OptStartDate         *time.Time `elastic:"type:date" json:"opt_start_date"`
	OptEndDate           *time.Time `elastic:"type:date" json:"opt_end_date"`
	VisaExpiry           *time.Time `elastic:"type:date" json:"visa_expiry"`
	PassportExpiry       *time.Time `elastic:"type:date" json:"passport_expiry"`
	I20Expiry            *time.Time `elastic:"type:date" json:"i20_expiry"`
	MoveDate             *time.Time `elastic:"type:date" json:"move_date"`
	StatusChangePending  bool       `json:"status_change_pending"`
	CreatedAt            time.Time  `elastic:"type:date" json:"created_at"`
	UpdatedAt            time.Time  `elastic:"type:date" json:"updated_at"`
}

// DocumentRecord tracks one immigration document and its validity window.
type DocumentRecord struct {
	ID         string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	StudentID  string     `gorm:"type:uuid;index" json:"student_id"`
	DocType    string     `json:"doc_type"`
	Status     string     `json:"status"`
	ExpiryDate *time.Time `json:"expiry_date"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Document statuses used by DocumentRecord.Status.
const (
	DocStatusValid   = "valid"
	DocStatusExpired = "expired"
	DocStatusMissing = "missing"
)

// TaskRecord is a previously persisted task, read back to compute compliance
// counts and to unblock tasks whose prerequisites were completed earlier.
type TaskRecord struct {
	ID          string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	StudentID   string    `gorm:"type:uuid;index" json:"student_id"`
	RuleID      string    `gorm:"index" json:"rule_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    int       `json:"priority"`
	DueDate     time.Time `json:"due_date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Task statuses used by TaskRecord.Status.
const (
	TaskStatusPending   = "pending"
	TaskStatusCompleted = "completed"
	TaskStatusOverdue   = "overdue"
)
