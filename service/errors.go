package services

import (
	"errors"
	"fmt"
)

// Error kinds for the engine. Structural failures abort the operation;
// per-rule failures are recorded in the result's error list instead.
var (
	ErrRuleLoading           = errors.New("rule loading failed")
	ErrInvalidRuleDefinition = errors.New("invalid rule definition")
	ErrContextInvalid        = errors.New("context invalid")
	ErrConditionEvaluation   = errors.New("condition evaluation failed")
	ErrDateCalculation       = errors.New("date calculation failed")
	ErrDependencyCycle       = errors.New("dependency cycle detected")
	ErrTaskGeneration        = errors.New("task generation failed")
)

// RuleError wraps a failure with the rule it originated from.
type RuleError struct {
	RuleID string
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.RuleID, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// StudentError wraps a structural failure with the student it concerns.
type StudentError struct {
	StudentID string
	Err       error
}

func (e *StudentError) Error() string {
	return fmt.Sprintf("student %s: %v", e.StudentID, e.Err)
}

func (e *StudentError) Unwrap() error {
	return e.Err
}
