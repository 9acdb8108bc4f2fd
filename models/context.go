package models

import (
	"encoding/json"
	"log"
)

// StudentPhase is the derived lifecycle stage used to filter applicable rules.
type StudentPhase string

const (
	PhasePreArrival     StudentPhase = "pre_arrival"
	PhaseInitialEntry   StudentPhase = "initial_entry"
	PhaseDuringProgram  StudentPhase = "during_program"
	PhasePreGraduation  StudentPhase = "pre_graduation"
	PhasePostGraduation StudentPhase = "post_graduation"
	PhaseOptActive      StudentPhase = "opt_active"
	PhaseStemOptActive  StudentPhase = "stem_opt_active"
	PhaseStatusChange   StudentPhase = "status_change"
	// PhaseGeneral is the wildcard phase: rules listing it apply everywhere.
	PhaseGeneral StudentPhase = "general"
)

// Normalized visa types. Anything unrecognized maps to VisaOther.
const (
	VisaF1      = "f1"
	VisaJ1      = "j1"
	VisaM1      = "m1"
	VisaOpt     = "opt"
	VisaStemOpt = "stem_opt"
	VisaH1B     = "h1b"
	VisaOther   = "other"
)

// Unemployment-day allowances for post-completion work authorization.
const (
	OptUnemploymentLimit     = 90
	StemOptUnemploymentLimit = 150
)

// AcademicInfo is the academic slice of the evaluation context.
type AcademicInfo struct {
	Program          string `json:"program,omitempty"`
	DegreeLevel      string `json:"degreeLevel,omitempty"`
	IsSTEM           bool   `json:"isSTEM"`
	EnrollmentStatus string `json:"enrollmentStatus,omitempty"`
	FullTime         bool   `json:"fullTime"`
}

// EmploymentInfo is the employment slice of the evaluation context.
type EmploymentInfo struct {
	Status                  string `json:"status,omitempty"`
	EmployerName            string `json:"employerName,omitempty"`
	IsAuthorized            bool   `json:"isAuthorized"`
	UnemploymentDaysUsed    int    `json:"unemploymentDaysUsed"`
	UnemploymentDaysAllowed int    `json:"unemploymentDaysAllowed"`
}

// DocumentInfo summarizes the validity of the student's documents.
type DocumentInfo struct {
	HasValidPassport bool `json:"hasValidPassport"`
	HasValidVisa     bool `json:"hasValidVisa"`
	HasValidI20      bool `json:"hasValidI20"`
	ExpiredCount     int  `json:"expiredCount"`
	MissingCount     int  `json:"missingCount"`
}

// LocationInfo is the residency slice of the evaluation context.
type LocationInfo struct {
	Country         string `json:"country,omitempty"`
	State           string `json:"state,omitempty"`
	AddressUpToDate bool   `json:"addressUpToDate"`
}

// ComplianceSummary carries aggregate counts plus the derived risk score.
type ComplianceSummary struct {
	PendingTasks     int `json:"pendingTasks"`
	OverdueTasks     int `json:"overdueTasks"`
	CompletedTasks   int `json:"completedTasks"`
	ExpiredDocuments int `json:"expiredDocuments"`
	RiskScore        int `json:"riskScore"`
}

// UserContext is the immutable snapshot of a student's situation that rules
// are evaluated against. Dates holds ISO dates (2006-01-02) keyed by name so
// condition field paths like "dates.usEntryDate" resolve uniformly.
type UserContext struct {
	StudentID    string            `json:"studentId"`
	FirstName    string            `json:"firstName,omitempty"`
	LastName     string            `json:"lastName,omitempty"`
	Email        string            `json:"email,omitempty"`
	VisaType     string            `json:"visaType"`
	CurrentPhase StudentPhase      `json:"currentPhase"`
	University   string            `json:"university,omitempty"`
	Dates        map[string]string `json:"dates"`
	Academic     AcademicInfo      `json:"academic"`
	Employment   EmploymentInfo    `json:"employment"`
	Documents    DocumentInfo      `json:"documents"`
	Location     LocationInfo      `json:"location"`
	Compliance   ComplianceSummary `json:"compliance"`
	Flags        map[string]bool   `json:"flags,omitempty"`
	// CompletedRules holds the rule IDs whose task was completed in an
	// earlier pass, so regenerated prerequisites stay satisfied.
	CompletedRules map[string]bool `json:"completedRules,omitempty"`
}

// AsMap flattens the context into a generic map so dot-notation field paths
// can be resolved against it. Field names follow the json tags.
func (u *UserContext) AsMap() map[string]interface{} {
	raw, err := json.Marshal(u)
	if err != nil {
		log.Printf("ERROR flattening context for student %s: %v", u.StudentID, err)
		return map[string]interface{}{}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Printf("ERROR flattening context for student %s: %v", u.StudentID, err)
		return map[string]interface{}{}
	}
	return out
}
