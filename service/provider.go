package services

import (
	"fmt"
	"log"

	model "github.com/visaeagle/VisaEagle-backend/models"
	"gorm.io/gorm"
)

// StudentDataProvider fetches the raw data the context builder transforms.
// The profile fetch is the primary read; document and task fetches are
// secondary and callers degrade gracefully when they fail.
type StudentDataProvider interface {
	FetchProfile(studentID string) (*model.StudentProfile, error)
	FetchDocuments(studentID string) ([]model.DocumentRecord, error)
	FetchTasks(studentID string) ([]model.TaskRecord, error)
	SaveTasks(studentID string, tasks []model.GeneratedTask) error
}

// GormStudentProvider reads student data from Postgres through GORM.
type GormStudentProvider struct {
	db *gorm.DB
}

func NewGormStudentProvider(db *gorm.DB) *GormStudentProvider {
	return &GormStudentProvider{db: db}
}

func (p *GormStudentProvider) FetchProfile(studentID string) (*model.StudentProfile, error) {
	var profile model.StudentProfile
	if err := p.db.First(&profile, "id = ?", studentID).Error; err != nil {
		log.Printf("ERROR fetching profile for student %s: %v", studentID, err)
		return nil, fmt.Errorf("failed to fetch profile for student %s: %w", studentID, err)
	}
	return &profile, nil
}

func (p *GormStudentProvider) FetchDocuments(studentID string) ([]model.DocumentRecord, error) {
	var docs []model.DocumentRecord
	if err := p.db.Where("student_id = ?", studentID).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch documents for student %s: %w", studentID, err)
	}
	return docs, nil
}

func (p *GormStudentProvider) FetchTasks(studentID string) ([]model.TaskRecord, error) {
	var tasks []model.TaskRecord
	if err := p.db.Where("student_id = ?", studentID).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch tasks for student %s: %w", studentID, err)
	}
	return tasks, nil
}

// SaveTasks persists generated tasks as pending task records. Existing
// pending records for the same rule are replaced so re-evaluation does not
// duplicate rows.
func (p *GormStudentProvider) SaveTasks(studentID string, tasks []model.GeneratedTask) error {
	for _, task := range tasks {
		record := model.TaskRecord{
			StudentID:   studentID,
			RuleID:      task.RuleID,
			Title:       task.Title,
			Description: task.Description,
			Status:      model.TaskStatusPending,
			Priority:    task.Priority,
			DueDate:     task.DueDate,
		}
		err := p.db.Where("student_id = ? AND rule_id = ? AND status = ?",
			studentID, task.RuleID, model.TaskStatusPending).
			Delete(&model.TaskRecord{}).Error
		if err != nil {
			log.Printf("ERROR clearing stale task for rule %s: %v", task.RuleID, err)
			return err
		}
		if err := p.db.Create(&record).Error; err != nil {
			log.Printf("ERROR saving task for rule %s: %v", task.RuleID, err)
			return err
		}
	}
	log.Printf("Saved %d tasks for student %s", len(tasks), studentID)
	return nil
}
