package models

import "time"

// GeneratedTask is a concrete obligation produced by one matched rule during
// one evaluation pass. Tasks are ephemeral; persistence belongs to the caller.
type GeneratedTask struct {
	ID                    string                 `json:"id"`
	RuleID                string                 `json:"ruleId"`
	Title                 string                 `json:"title"`
	Description           string                 `json:"description"`
	DueDate               time.Time              `json:"dueDate"`
	Deadline              time.Time              `json:"deadline"`
	Category              string                 `json:"category"`
	Priority              int                    `json:"priority"`
	Phase                 StudentPhase           `json:"phase"`
	Completed             bool                   `json:"completed"`
	Blocked               bool                   `json:"blocked"`
	Prerequisites         []string               `json:"prerequisites,omitempty"`
	AutoCompleteCondition *RuleCondition         `json:"autoCompleteCondition,omitempty"`
	Recurring             bool                   `json:"recurring,omitempty"`
	RecurringInterval     string                 `json:"recurringInterval,omitempty"`
	Context               map[string]interface{} `json:"context,omitempty"`
}

// ConditionResult is the diagnostic outcome of one leaf or composite
// condition: what was found, what was expected and why it passed or failed.
type ConditionResult struct {
	Field    string      `json:"field,omitempty"`
	Operator string      `json:"operator,omitempty"`
	Passed   bool        `json:"passed"`
	Actual   interface{} `json:"actual,omitempty"`
	Expected interface{} `json:"expected,omitempty"`
	Reason   string      `json:"reason"`
}

// RuleEvaluation records the verdict for a single rule.
type RuleEvaluation struct {
	RuleID     string            `json:"ruleId"`
	RuleName   string            `json:"ruleName"`
	Matched    bool              `json:"matched"`
	Conditions []ConditionResult `json:"conditions,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// PerformanceSummary is populated when performance tracking is enabled.
type PerformanceSummary struct {
	RulesEvaluated  int   `json:"rulesEvaluated"`
	RulesMatched    int   `json:"rulesMatched"`
	TasksGenerated  int   `json:"tasksGenerated"`
	ExecutionTimeMs int64 `json:"executionTimeMs"`
}

// RuleEngineResult is the full outcome of one evaluation pass for one
// student. Errors holds non-fatal per-rule failures; a structural failure
// (e.g. the context could not be built) is returned as an error instead.
type RuleEngineResult struct {
	StudentID      string             `json:"studentId"`
	EvaluatedAt    time.Time          `json:"evaluatedAt"`
	Context        *UserContext       `json:"context"`
	Evaluations    []RuleEvaluation   `json:"evaluations"`
	GeneratedTasks []GeneratedTask    `json:"generatedTasks"`
	Errors         []string           `json:"errors"`
	Performance    PerformanceSummary `json:"performance"`
}
