package services

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	model "github.com/visaeagle/VisaEagle-backend/models"
)

// EngineConfig gates the engine's optional behavior.
type EngineConfig struct {
	EnableSmartDates          bool
	EnableDependencies        bool
	EnableUniversityOverrides bool
	EnableAutoCompletion      bool
	CacheEvaluationResults    bool
	MaxTasksPerEvaluation     int
	CacheTTL                  time.Duration
	DebugMode                 bool
	PerformanceTracking       bool
}

// DefaultEngineConfig returns the documented defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		EnableSmartDates:          true,
		EnableDependencies:        true,
		EnableUniversityOverrides: true,
		EnableAutoCompletion:      true,
		CacheEvaluationResults:    true,
		MaxTasksPerEvaluation:     50,
		CacheTTL:                  5 * time.Minute,
		PerformanceTracking:       true,
	}
}

// Flat fallback offset used when smart dates are disabled.
const fallbackDueOffsetDays = 30

// RuleEngine orchestrates one evaluation pass: build context, filter rules,
// evaluate, compute dates, render templates, resolve dependencies, cache.
// All collaborators are injected; there is no shared global instance.
type RuleEngine struct {
	config    EngineConfig
	contexts  *ContextBuilder
	evaluator *RuleEvaluator
	dates     *DateCalculator
	templates *TemplateRenderer
	resolver  *DependencyResolver
	cache     ResultCache
	search    *SearchService
	now       func() time.Time
	rules     []model.RuleDefinition
	overrides map[string]map[string]model.TaskTemplate
	mu        sync.RWMutex
}

func NewRuleEngine(
	config EngineConfig,
	contexts *ContextBuilder,
	evaluator *RuleEvaluator,
	dates *DateCalculator,
	templates *TemplateRenderer,
	resolver *DependencyResolver,
	cache ResultCache,
	search *SearchService,
) *RuleEngine {
	if cache == nil {
		cache = NewInMemoryResultCache(config.CacheTTL)
	}
	return &RuleEngine{
		config:    config,
		contexts:  contexts,
		evaluator: evaluator,
		dates:     dates,
		templates: templates,
		resolver:  resolver,
		cache:     cache,
		search:    search,
		now:       time.Now,
		overrides: make(map[string]map[string]model.TaskTemplate),
	}
}

// LoadRules validates every definition and atomically replaces the active
// set. A single invalid definition rejects the whole load.
func (e *RuleEngine) LoadRules(defs []model.RuleDefinition) error {
	for i := range defs {
		if err := ValidateRuleDefinition(&defs[i]); err != nil {
			return err
		}
	}

	byID := make(map[string]model.RuleDefinition, len(defs))
	for _, def := range defs {
		existing, seen := byID[def.ID]
		if !seen || def.Priority > existing.Priority {
			byID[def.ID] = def
		}
	}
	active := make([]model.RuleDefinition, 0, len(byID))
	for _, def := range byID {
		active = append(active, def)
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority > active[j].Priority
		}
		return active[i].ID < active[j].ID
	})

	e.mu.Lock()
	e.rules = active
	e.mu.Unlock()

	e.cache.Clear()
	log.Printf("Loaded %d rules into engine", len(active))

	if e.search != nil {
		e.search.IndexRules(active)
	}
	return nil
}

// GetRulesCount reports the number of distinct active rule definitions.
func (e *RuleEngine) GetRulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// SetUniversityOverrides installs scope-specific template overrides keyed by
// university then rule ID. University keys are matched case-insensitively.
func (e *RuleEngine) SetUniversityOverrides(overrides map[string]map[string]model.TaskTemplate) {
	normalized := make(map[string]map[string]model.TaskTemplate, len(overrides))
	for university, templates := range overrides {
		normalized[strings.ToLower(university)] = templates
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overrides = normalized
}

// InvalidateCache drops the cached result for one student.
func (e *RuleEngine) InvalidateCache(studentID string) {
	e.cache.Invalidate(studentID)
}

// EvaluateForStudent runs a full evaluation pass. Context-build failures are
// returned as errors; per-rule failures degrade into the result's error list.
func (e *RuleEngine) EvaluateForStudent(studentID string) (*model.RuleEngineResult, error) {
	if e.config.CacheEvaluationResults {
		if cached := e.cache.Get(studentID); cached != nil {
			if e.config.DebugMode {
				log.Printf("Serving cached evaluation for student %s", studentID)
			}
			return cached, nil
		}
	}

	started := e.now()

	uctx, err := e.contexts.Build(studentID)
	if err != nil {
		return nil, err
	}

	// Snapshot the active set so a concurrent reload cannot change the
	// rules mid-evaluation.
	e.mu.RLock()
	snapshot := make([]model.RuleDefinition, len(e.rules))
	copy(snapshot, e.rules)
	overrides := e.overrides[strings.ToLower(uctx.University)]
	e.mu.RUnlock()

	candidates := filterApplicable(snapshot, uctx)
	if e.config.DebugMode {
		log.Printf("Student %s: %d of %d rules applicable in phase %s", studentID, len(candidates), len(snapshot), uctx.CurrentPhase)
	}

	result := &model.RuleEngineResult{
		StudentID:      studentID,
		EvaluatedAt:    started,
		Context:        uctx,
		Evaluations:    make([]model.RuleEvaluation, 0, len(candidates)),
		GeneratedTasks: []model.GeneratedTask{},
		Errors:         []string{},
	}

	for i := range candidates {
		rule := &candidates[i]
		evaluation := model.RuleEvaluation{RuleID: rule.ID, RuleName: rule.Name}
		evaluation.Conditions = e.evaluator.Evaluate(rule.Conditions, uctx)
		evaluation.Matched = Matches(evaluation.Conditions)

		if evaluation.Matched {
			task, err := e.generateTask(rule, uctx, overrides)
			if err != nil {
				ruleErr := &RuleError{RuleID: rule.ID, Err: err}
				evaluation.Error = ruleErr.Error()
				result.Errors = append(result.Errors, ruleErr.Error())
				log.Printf("WARNING rule %s failed for student %s: %v", rule.ID, studentID, err)
			} else {
				result.GeneratedTasks = append(result.GeneratedTasks, task)
			}
		}
		result.Evaluations = append(result.Evaluations, evaluation)
	}

	if e.config.EnableDependencies && len(result.GeneratedTasks) > 1 {
		ordered, err := e.resolver.Resolve(result.GeneratedTasks)
		if err != nil {
			// Keep the unordered batch rather than dropping tasks.
			result.Errors = append(result.Errors, err.Error())
			log.Printf("WARNING dependency resolution failed for student %s, keeping unordered tasks: %v", studentID, err)
		} else {
			result.GeneratedTasks = ordered
		}
	}

	if max := e.config.MaxTasksPerEvaluation; max > 0 && len(result.GeneratedTasks) > max {
		result.GeneratedTasks = result.GeneratedTasks[:max]
	}

	if e.config.PerformanceTracking {
		result.Performance = model.PerformanceSummary{
			RulesEvaluated:  len(candidates),
			RulesMatched:    countMatched(result.Evaluations),
			TasksGenerated:  len(result.GeneratedTasks),
			ExecutionTimeMs: time.Since(started).Milliseconds(),
		}
	}

	if e.config.CacheEvaluationResults {
		e.cache.Set(studentID, result)
	}
	if e.search != nil {
		e.search.IndexResult(result)
	}
	if e.config.DebugMode {
		log.Printf("Evaluation complete: %s", summarizeResult(result))
	}
	return result, nil
}

func (e *RuleEngine) generateTask(rule *model.RuleDefinition, uctx *model.UserContext, overrides map[string]model.TaskTemplate) (model.GeneratedTask, error) {
	template := rule.Template
	if e.config.EnableUniversityOverrides {
		if override, exists := overrides[rule.ID]; exists {
			template = override
		}
	}

	var due time.Time
	if e.config.EnableSmartDates && template.DueDate != nil {
		computed, err := e.dates.ComputeDueDate(template.DueDate, uctx)
		if err != nil {
			return model.GeneratedTask{}, fmt.Errorf("%w: %w", ErrTaskGeneration, err)
		}
		due = computed
	} else {
		due = e.now().AddDate(0, 0, fallbackDueOffsetDays)
	}

	task := model.GeneratedTask{
		ID:                uuid.NewString(),
		RuleID:            rule.ID,
		Title:             e.templates.Render(template.Title, uctx),
		Description:       e.templates.Render(template.Description, uctx),
		DueDate:           due,
		Deadline:          endOfDay(due),
		Category:          template.Category,
		Priority:          rule.Priority,
		Phase:             uctx.CurrentPhase,
		Prerequisites:     template.Prerequisites,
		Recurring:         template.Recurring,
		RecurringInterval: template.RecurringInterval,
		Context: map[string]interface{}{
			"phase":    string(uctx.CurrentPhase),
			"visaType": uctx.VisaType,
			"ruleName": rule.Name,
		},
	}
	if task.Category == "" {
		task.Category = rule.Category
	}

	// A task completed in an earlier pass stays completed, so its dependents
	// are not re-blocked on regeneration.
	if uctx.CompletedRules[rule.ID] {
		task.Completed = true
	}

	if e.config.EnableAutoCompletion && template.AutoCompleteCondition != nil {
		task.AutoCompleteCondition = template.AutoCompleteCondition
		check := e.evaluator.Evaluate([]model.RuleCondition{*template.AutoCompleteCondition}, uctx)
		if Matches(check) {
			task.Completed = true
		}
	}
	return task, nil
}

// filterApplicable keeps active rules matching the student's visa type,
// phase (or the general wildcard) and university scope, sorted by
// descending priority.
func filterApplicable(rules []model.RuleDefinition, uctx *model.UserContext) []model.RuleDefinition {
	candidates := make([]model.RuleDefinition, 0, len(rules))
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if !containsFold(rule.VisaTypes, uctx.VisaType) {
			continue
		}
		if !phaseApplies(rule.Phases, uctx.CurrentPhase) {
			continue
		}
		if rule.University != "" && !strings.EqualFold(rule.University, uctx.University) {
			continue
		}
		candidates = append(candidates, rule)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates
}

func phaseApplies(phases []model.StudentPhase, current model.StudentPhase) bool {
	for _, phase := range phases {
		if phase == current || phase == model.PhaseGeneral {
			return true
		}
	}
	return false
}

func containsFold(haystack []string, needle string) bool {
	for _, item := range haystack {
		if strings.EqualFold(item, needle) {
			return true
		}
	}
	return false
}

func countMatched(evaluations []model.RuleEvaluation) int {
	matched := 0
	for _, evaluation := range evaluations {
		if evaluation.Matched {
			matched++
		}
	}
	return matched
}

func endOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, day.Location())
}

// Summary line used by callers that log the outcome of a pass.
func summarizeResult(result *model.RuleEngineResult) string {
	return fmt.Sprintf("student %s: %d evaluated, %d tasks, %d errors",
		result.StudentID, len(result.Evaluations), len(result.GeneratedTasks), len(result.Errors))
}
