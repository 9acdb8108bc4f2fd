package services

import (
	"fmt"
	"log"
	"strings"
	"time"

	model "github.com/visaeagle/VisaEagle-backend/models"
)

const isoDate = "2006-01-02"

// ContextBuilder turns raw provider data into the immutable evaluation
// context. The profile fetch is fatal on failure; documents and tasks
// degrade to empty lists with a warning.
type ContextBuilder struct {
	provider StudentDataProvider
	now      func() time.Time
}

func NewContextBuilder(provider StudentDataProvider) *ContextBuilder {
	return &ContextBuilder{provider: provider, now: time.Now}
}

// Build fetches and transforms everything known about a student.
func (b *ContextBuilder) Build(studentID string) (*model.UserContext, error) {
	profile, err := b.provider.FetchProfile(studentID)
	if err != nil {
		return nil, &StudentError{StudentID: studentID, Err: fmt.Errorf("%w: %v", ErrContextInvalid, err)}
	}

	docs, err := b.provider.FetchDocuments(studentID)
	if err != nil {
		log.Printf("WARNING could not fetch documents for student %s, continuing with none: %v", studentID, err)
		docs = nil
	}
	tasks, err := b.provider.FetchTasks(studentID)
	if err != nil {
		log.Printf("WARNING could not fetch tasks for student %s, continuing with none: %v", studentID, err)
		tasks = nil
	}

	now := b.now()
	visaType := NormalizeVisaType(profile.VisaType)

	uctx := &model.UserContext{
		StudentID:  studentID,
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
		Email:      profile.Email,
		VisaType:   visaType,
		University: profile.University,
		Dates:      buildDateMap(profile, now),
		Academic: model.AcademicInfo{
			Program:          profile.Program,
			DegreeLevel:      profile.DegreeLevel,
			IsSTEM:           profile.IsSTEM,
			EnrollmentStatus: profile.EnrollmentStatus,
			FullTime:         strings.EqualFold(profile.EnrollmentStatus, "full_time"),
		},
		Employment: model.EmploymentInfo{
			Status:                  profile.EmploymentStatus,
			EmployerName:            profile.EmployerName,
			IsAuthorized:            visaType == model.VisaOpt || visaType == model.VisaStemOpt || visaType == model.VisaH1B,
			UnemploymentDaysUsed:    profile.UnemploymentDaysUsed,
			UnemploymentDaysAllowed: unemploymentAllowance(visaType),
		},
		Documents: summarizeDocuments(docs, now),
		Location: model.LocationInfo{
			Country:         profile.Country,
			State:           profile.State,
			AddressUpToDate: profile.AddressUpToDate,
		},
		Flags: map[string]bool{
			"statusChangePending": profile.StatusChangePending,
			"travelPlanned":       false,
			"hasEmployer":         profile.EmployerName != "",
		},
		CompletedRules: completedRuleIDs(tasks),
	}

	uctx.CurrentPhase = DerivePhase(profile, visaType, now)
	uctx.Compliance = summarizeCompliance(profile, uctx, tasks, now)
	return uctx, nil
}

// NormalizeVisaType maps free-form visa strings to the closed set the rules
// are written against.
func NormalizeVisaType(raw string) string {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.NewReplacer("-", "", "_", "", " ", "").Replace(cleaned)
	switch cleaned {
	case "f1", "f1student":
		return model.VisaF1
	case "j1":
		return model.VisaJ1
	case "m1":
		return model.VisaM1
	case "opt", "postcompletionopt":
		return model.VisaOpt
	case "stemopt", "stem":
		return model.VisaStemOpt
	case "h1b":
		return model.VisaH1B
	default:
		return model.VisaOther
	}
}

// DerivePhase classifies the student's lifecycle stage. The precedence is
// fixed: status change, then OPT/STEM OPT activity, then the academic
// timeline, then general.
func DerivePhase(profile *model.StudentProfile, visaType string, now time.Time) model.StudentPhase {
	if profile.StatusChangePending {
		return model.PhaseStatusChange
	}
	if visaType == model.VisaStemOpt {
		return model.PhaseStemOptActive
	}
	if visaType == model.VisaOpt {
		return model.PhaseOptActive
	}
	if profile.ProgramStartDate != nil && now.Before(*profile.ProgramStartDate) {
		return model.PhasePreArrival
	}
	if profile.USEntryDate != nil && now.Sub(*profile.USEntryDate) <= 30*24*time.Hour && !now.Before(*profile.USEntryDate) {
		return model.PhaseInitialEntry
	}
	if profile.GraduationDate != nil {
		untilGraduation := profile.GraduationDate.Sub(now)
		if untilGraduation < 0 {
			return model.PhasePostGraduation
		}
		if untilGraduation <= 90*24*time.Hour {
			return model.PhasePreGraduation
		}
	}
	if profile.ProgramStartDate != nil && !now.Before(*profile.ProgramStartDate) {
		return model.PhaseDuringProgram
	}
	return model.PhaseGeneral
}

func unemploymentAllowance(visaType string) int {
	switch visaType {
	case model.VisaStemOpt:
		return model.StemOptUnemploymentLimit
	case model.VisaOpt:
		return model.OptUnemploymentLimit
	default:
		return 0
	}
}

// completedRuleIDs collects the rules whose task was already completed, so a
// regenerated prerequisite does not re-block its dependents.
func completedRuleIDs(tasks []model.TaskRecord) map[string]bool {
	completed := make(map[string]bool)
	for _, task := range tasks {
		if task.Status == model.TaskStatusCompleted && task.RuleID != "" {
			completed[task.RuleID] = true
		}
	}
	return completed
}

func buildDateMap(profile *model.StudentProfile, now time.Time) map[string]string {
	dates := map[string]string{
		"now": now.Format(isoDate),
	}
	put := func(key string, t *time.Time) {
		if t != nil {
			dates[key] = t.Format(isoDate)
		}
	}
	put("programStartDate", profile.ProgramStartDate)
	put("graduationDate", profile.GraduationDate)
	put("usEntryDate", profile.USEntryDate)
	put("optStartDate", profile.OptStartDate)
	put("optEndDate", profile.OptEndDate)
	put("visaExpiry", profile.VisaExpiry)
	put("passportExpiry", profile.PassportExpiry)
	put("i20Expiry", profile.I20Expiry)
	put("moveDate", profile.MoveDate)
	return dates
}

func summarizeDocuments(docs []model.DocumentRecord, now time.Time) model.DocumentInfo {
	info := model.DocumentInfo{}
	valid := map[string]bool{}
	for _, doc := range docs {
		status := doc.Status
		if doc.ExpiryDate != nil && doc.ExpiryDate.Before(now) {
			status = model.DocStatusExpired
		}
		switch status {
		case model.DocStatusExpired:
			info.ExpiredCount++
		case model.DocStatusMissing:
			info.MissingCount++
		case model.DocStatusValid:
			valid[strings.ToLower(doc.DocType)] = true
		}
	}
	info.HasValidPassport = valid["passport"]
	info.HasValidVisa = valid["visa"]
	info.HasValidI20 = valid["i20"]
	return info
}

// summarizeCompliance computes the aggregate counts and the 0-100 risk
// score: 12 points per overdue task, 18 per expired document, up to 25 from
// the unemployment ratio, and 10/20 for a passport expiring within 180/90
// days.
func summarizeCompliance(profile *model.StudentProfile, uctx *model.UserContext, tasks []model.TaskRecord, now time.Time) model.ComplianceSummary {
	summary := model.ComplianceSummary{
		ExpiredDocuments: uctx.Documents.ExpiredCount,
	}
	for _, task := range tasks {
		switch task.Status {
		case model.TaskStatusCompleted:
			summary.CompletedTasks++
		case model.TaskStatusOverdue:
			summary.OverdueTasks++
		case model.TaskStatusPending:
			if task.DueDate.Before(now) {
				summary.OverdueTasks++
			} else {
				summary.PendingTasks++
			}
		}
	}

	score := summary.OverdueTasks*12 + summary.ExpiredDocuments*18

	if allowed := uctx.Employment.UnemploymentDaysAllowed; allowed > 0 {
		used := uctx.Employment.UnemploymentDaysUsed
		if used > allowed {
			used = allowed
		}
		score += used * 25 / allowed
	}

	if profile.PassportExpiry != nil {
		untilExpiry := profile.PassportExpiry.Sub(now)
		if untilExpiry <= 90*24*time.Hour {
			score += 20
		} else if untilExpiry <= 180*24*time.Hour {
			score += 10
		}
	}

	if score > 100 {
		score = 100
	}
	summary.RiskScore = score
	return summary
}
