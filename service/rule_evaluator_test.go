package services

import (
	"testing"
	"time"

	"github.com/agiledragon/gomonkey/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	model "github.com/visaeagle/VisaEagle-backend/models"
)

var testNow = time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC)

func testContext() *model.UserContext {
	return &model.UserContext{
		StudentID:    "student-1",
		FirstName:    "Priya",
		LastName:     "Sharma",
		VisaType:     model.VisaF1,
		CurrentPhase: model.PhasePreGraduation,
		University:   "State University",
		Dates: map[string]string{
			"now":            testNow.Format(isoDate),
			"usEntryDate":    "2024-01-01",
			"graduationDate": "2025-05-15",
			"optEndDate":     "2026-06-30",
			"passportExpiry": "2025-08-01",
		},
		Academic: model.AcademicInfo{
			Program:          "Computer Science",
			DegreeLevel:      "masters",
			IsSTEM:           true,
			EnrollmentStatus: "full_time",
			FullTime:         true,
		},
		Employment: model.EmploymentInfo{
			Status:                  "employed",
			EmployerName:            "Acme Robotics",
			IsAuthorized:            false,
			UnemploymentDaysUsed:    30,
			UnemploymentDaysAllowed: 90,
		},
		Documents: model.DocumentInfo{
			HasValidPassport: true,
			HasValidVisa:     true,
			HasValidI20:      true,
		},
		Location: model.LocationInfo{
			Country:         "US",
			State:           "CA",
			AddressUpToDate: true,
		},
		Compliance: model.ComplianceSummary{RiskScore: 20},
		Flags:      map[string]bool{"travelPlanned": true},
	}
}

func newTestEvaluator() *RuleEvaluator {
	e := NewRuleEvaluator()
	e.now = func() time.Time { return testNow }
	return e
}

func TestEvaluateLeafOperators(t *testing.T) {
	evaluator := newTestEvaluator()
	uctx := testContext()

	tests := []struct {
		name string
		cond model.RuleCondition
		want bool
	}{
		{
			name: "equals bool",
			cond: model.RuleCondition{Field: "academic.isSTEM", Operator: model.OpEquals, Value: true},
			want: true,
		},
		{
			name: "equals case insensitive string",
			cond: model.RuleCondition{Field: "employment.status", Operator: model.OpEquals, Value: "EMPLOYED"},
			want: true,
		},
		{
			name: "notEquals",
			cond: model.RuleCondition{Field: "visaType", Operator: model.OpNotEquals, Value: "j1"},
			want: true,
		},
		{
			name: "greaterThan number",
			cond: model.RuleCondition{Field: "employment.unemploymentDaysUsed", Operator: model.OpGreaterThan, Value: 20},
			want: true,
		},
		{
			name: "lessThan date",
			cond: model.RuleCondition{Field: "dates.usEntryDate", Operator: model.OpLessThan, Value: "2024-06-01"},
			want: true,
		},
		{
			name: "contains substring",
			cond: model.RuleCondition{Field: "employment.employerName", Operator: model.OpContains, Value: "robotics"},
			want: true,
		},
		{
			name: "notContains",
			cond: model.RuleCondition{Field: "employment.employerName", Operator: model.OpNotContains, Value: "legal"},
			want: true,
		},
		{
			name: "in membership",
			cond: model.RuleCondition{Field: "visaType", Operator: model.OpIn, Value: []interface{}{"f1", "j1"}},
			want: true,
		},
		{
			name: "notIn membership",
			cond: model.RuleCondition{Field: "visaType", Operator: model.OpNotIn, Value: []interface{}{"h1b", "opt"}},
			want: true,
		},
		{
			name: "between bounds",
			cond: model.RuleCondition{Field: "employment.unemploymentDaysUsed", Operator: model.OpBetween, Value: []interface{}{10, 50}},
			want: true,
		},
		{
			name: "regex match",
			cond: model.RuleCondition{Field: "academic.program", Operator: model.OpRegex, Value: "(?i)computer"},
			want: true,
		},
		{
			name: "exists",
			cond: model.RuleCondition{Field: "dates.graduationDate", Operator: model.OpExists},
			want: true,
		},
		{
			name: "notExists on absent field",
			cond: model.RuleCondition{Field: "dates.moveDate", Operator: model.OpNotExists},
			want: true,
		},
		{
			name: "equals fails closed on absent field",
			cond: model.RuleCondition{Field: "dates.moveDate", Operator: model.OpEquals, Value: "2024-01-01"},
			want: false,
		},
		{
			name: "exists fails on absent field",
			cond: model.RuleCondition{Field: "academic.advisor", Operator: model.OpExists},
			want: false,
		},
		{
			name: "unknown operator fails",
			cond: model.RuleCondition{Field: "visaType", Operator: "startsWith", Value: "f"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := evaluator.Evaluate([]model.RuleCondition{tt.cond}, uctx)
			require.Len(t, results, 1)
			assert.Equal(t, tt.want, results[0].Passed, results[0].Reason)
			assert.NotEmpty(t, results[0].Reason)
		})
	}
}

func TestEvaluateTimeValueComparison(t *testing.T) {
	evaluator := newTestEvaluator()
	uctx := testContext()

	// Passport expires 2025-08-01; within 180 days of 2025-03-05 but not
	// within 30.
	within180 := model.RuleCondition{Field: "dates.passportExpiry", Operator: model.OpLessThan, TimeValue: "180days"}
	within30 := model.RuleCondition{Field: "dates.passportExpiry", Operator: model.OpLessThan, TimeValue: "30days"}

	results := evaluator.Evaluate([]model.RuleCondition{within180, within30}, uctx)
	require.Len(t, results, 2)
	assert.True(t, results[0].Passed, results[0].Reason)
	assert.False(t, results[1].Passed, results[1].Reason)
}

func TestEvaluateCompositeConditions(t *testing.T) {
	evaluator := newTestEvaluator()
	uctx := testContext()

	andGroup := model.RuleCondition{
		LogicOperator: model.LogicAnd,
		Conditions: []model.RuleCondition{
			{Field: "academic.isSTEM", Operator: model.OpEquals, Value: true},
			{Field: "documents.hasValidVisa", Operator: model.OpEquals, Value: true},
		},
	}
	orGroup := model.RuleCondition{
		LogicOperator: model.LogicOr,
		Conditions: []model.RuleCondition{
			{Field: "academic.isSTEM", Operator: model.OpEquals, Value: false},
			{Field: "documents.hasValidVisa", Operator: model.OpEquals, Value: true},
		},
	}
	negated := model.RuleCondition{
		LogicOperator: model.LogicAnd,
		Negate:        true,
		Conditions: []model.RuleCondition{
			{Field: "academic.isSTEM", Operator: model.OpEquals, Value: true},
		},
	}

	results := evaluator.Evaluate([]model.RuleCondition{andGroup, orGroup, negated}, uctx)
	require.Len(t, results, 3)
	assert.True(t, results[0].Passed)
	assert.True(t, results[1].Passed)
	assert.False(t, results[2].Passed)
}

func TestEvaluateRegexGuards(t *testing.T) {
	evaluator := newTestEvaluator()
	uctx := testContext()

	blacklisted := model.RuleCondition{Field: "academic.program", Operator: model.OpRegex, Value: `(a+)+b`}
	results := evaluator.Evaluate([]model.RuleCondition{blacklisted}, uctx)
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Reason, "disallowed construct")

	long := make([]byte, maxRegexPatternLength+1)
	for i := range long {
		long[i] = 'a'
	}
	oversized := model.RuleCondition{Field: "academic.program", Operator: model.OpRegex, Value: string(long)}
	results = evaluator.Evaluate([]model.RuleCondition{oversized}, uctx)
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Reason, "exceeds")
}

func TestEvaluateBetweenArity(t *testing.T) {
	evaluator := newTestEvaluator()
	uctx := testContext()

	oneBound := model.RuleCondition{Field: "employment.unemploymentDaysUsed", Operator: model.OpBetween, Value: []interface{}{10}}
	results := evaluator.Evaluate([]model.RuleCondition{oneBound}, uctx)
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Reason, "exactly two bounds")
}

func TestEvaluateRecoversFromPanic(t *testing.T) {
	evaluator := newTestEvaluator()
	uctx := testContext()

	patches := gomonkey.ApplyFunc(lookupPath, func(map[string]interface{}, string) (interface{}, bool) {
		panic("boom")
	})
	defer patches.Reset()

	cond := model.RuleCondition{Field: "visaType", Operator: model.OpEquals, Value: "f1"}
	results := evaluator.Evaluate([]model.RuleCondition{cond}, uctx)
	require.Len(t, results, 1)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Reason, "condition evaluation failed")
	assert.Contains(t, results[0].Reason, "boom")
}

func TestMatchesRequiresEveryCondition(t *testing.T) {
	passing := []model.ConditionResult{{Passed: true}, {Passed: true}}
	mixed := []model.ConditionResult{{Passed: true}, {Passed: false}}

	assert.True(t, Matches(passing))
	assert.False(t, Matches(mixed))
	assert.False(t, Matches(nil))
}
