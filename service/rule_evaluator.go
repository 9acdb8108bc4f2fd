package services

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	model "github.com/visaeagle/VisaEagle-backend/models"
)

const maxRegexPatternLength = 200

// Patterns known to backtrack catastrophically. Checked before compiling a
// rule-supplied regex.
var regexBlacklist = []string{
	`(.*)*`, `(.+)+`, `(.*)+`, `(.+)*`,
	`(\w+)*`, `(\w+)+`, `(\d+)*`, `(\d+)+`,
	`(a+)+`, `([a-zA-Z]+)*`,
}

var timeValuePattern = regexp.MustCompile(`^(\d+)(minutes?|hours?|days?|weeks?|months?|years?)$`)

// RuleEvaluator judges condition trees against a context. Evaluation is pure
// and synchronous; one condition failing to evaluate becomes a failed
// ConditionResult, never a batch failure.
type RuleEvaluator struct {
	now func() time.Time
}

func NewRuleEvaluator() *RuleEvaluator {
	return &RuleEvaluator{now: time.Now}
}

// Evaluate returns one result per top-level condition.
func (e *RuleEvaluator) Evaluate(conditions []model.RuleCondition, uctx *model.UserContext) []model.ConditionResult {
	flat := uctx.AsMap()
	results := make([]model.ConditionResult, 0, len(conditions))
	for i := range conditions {
		results = append(results, e.evaluateNode(&conditions[i], flat))
	}
	return results
}

// Matches reports whether every result passed. A rule matches only when all
// of its top-level conditions do.
func Matches(results []model.ConditionResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return len(results) > 0
}

func (e *RuleEvaluator) evaluateNode(cond *model.RuleCondition, flat map[string]interface{}) (result model.ConditionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = model.ConditionResult{
				Field:    cond.Field,
				Operator: string(cond.Operator),
				Passed:   false,
				Reason:   fmt.Sprintf("%v: %v", ErrConditionEvaluation, r),
			}
		}
	}()

	if cond.IsGroup() {
		return e.evaluateGroup(cond, flat)
	}
	return e.evaluateLeaf(cond, flat)
}

func (e *RuleEvaluator) evaluateGroup(cond *model.RuleCondition, flat map[string]interface{}) model.ConditionResult {
	passed := cond.LogicOperator != model.LogicOr
	reasons := make([]string, 0, len(cond.Conditions))

	for i := range cond.Conditions {
		child := e.evaluateNode(&cond.Conditions[i], flat)
		reasons = append(reasons, child.Reason)
		if cond.LogicOperator == model.LogicOr {
			if child.Passed {
				passed = true
			}
		} else if !child.Passed {
			passed = false
		}
	}
	if cond.Negate {
		passed = !passed
	}

	return model.ConditionResult{
		Operator: string(cond.LogicOperator),
		Passed:   passed,
		Reason:   fmt.Sprintf("%s(%s)", cond.LogicOperator, strings.Join(reasons, "; ")),
	}
}

func (e *RuleEvaluator) evaluateLeaf(cond *model.RuleCondition, flat map[string]interface{}) model.ConditionResult {
	actual, found := lookupPath(flat, cond.Field)
	expected := cond.Value
	if cond.TimeValue != "" {
		deadline, err := e.resolveTimeValue(cond.TimeValue)
		if err != nil {
			return failed(cond, actual, expected, err.Error())
		}
		expected = deadline.Format(isoDate)
	}

	// Absence is only meaningful to the existence operators; everything
	// else fails closed.
	if !found {
		switch cond.Operator {
		case model.OpNotExists:
			return passedResult(cond, nil, nil, fmt.Sprintf("field %s is absent", cond.Field))
		case model.OpExists:
			return failed(cond, nil, nil, fmt.Sprintf("field %s is absent", cond.Field))
		default:
			return failed(cond, nil, expected, fmt.Sprintf("field %s not found in context", cond.Field))
		}
	}

	switch cond.Operator {
	case model.OpExists:
		return passedResult(cond, actual, nil, fmt.Sprintf("field %s is present", cond.Field))
	case model.OpNotExists:
		return failed(cond, actual, nil, fmt.Sprintf("field %s is present", cond.Field))

	case model.OpEquals, model.OpNotEquals:
		equal := valuesEqual(actual, expected)
		want := cond.Operator == model.OpEquals
		if equal == want {
			return passedResult(cond, actual, expected, describeComparison(cond, actual, expected, true))
		}
		return failed(cond, actual, expected, describeComparison(cond, actual, expected, false))

	case model.OpGreaterThan, model.OpLessThan:
		cmp, err := compareValues(actual, expected)
		if err != nil {
			return failed(cond, actual, expected, err.Error())
		}
		ok := (cond.Operator == model.OpGreaterThan && cmp > 0) || (cond.Operator == model.OpLessThan && cmp < 0)
		if ok {
			return passedResult(cond, actual, expected, describeComparison(cond, actual, expected, true))
		}
		return failed(cond, actual, expected, describeComparison(cond, actual, expected, false))

	case model.OpContains, model.OpNotContains:
		has := containsValue(actual, expected)
		want := cond.Operator == model.OpContains
		if has == want {
			return passedResult(cond, actual, expected, describeComparison(cond, actual, expected, true))
		}
		return failed(cond, actual, expected, describeComparison(cond, actual, expected, false))

	case model.OpIn, model.OpNotIn:
		set, ok := asSlice(expected)
		if !ok {
			return failed(cond, actual, expected, fmt.Sprintf("operator %s requires an array value", cond.Operator))
		}
		member := false
		for _, candidate := range set {
			if valuesEqual(actual, candidate) {
				member = true
				break
			}
		}
		want := cond.Operator == model.OpIn
		if member == want {
			return passedResult(cond, actual, expected, describeComparison(cond, actual, expected, true))
		}
		return failed(cond, actual, expected, describeComparison(cond, actual, expected, false))

	case model.OpBetween:
		bounds, ok := asSlice(expected)
		if !ok || len(bounds) != 2 {
			return failed(cond, actual, expected, "between requires exactly two bounds")
		}
		low, err := compareValues(actual, bounds[0])
		if err != nil {
			return failed(cond, actual, expected, err.Error())
		}
		high, err := compareValues(actual, bounds[1])
		if err != nil {
			return failed(cond, actual, expected, err.Error())
		}
		if low >= 0 && high <= 0 {
			return passedResult(cond, actual, expected, describeComparison(cond, actual, expected, true))
		}
		return failed(cond, actual, expected, describeComparison(cond, actual, expected, false))

	case model.OpRegex:
		pattern, ok := expected.(string)
		if !ok {
			return failed(cond, actual, expected, "regex operator requires a string pattern")
		}
		if err := vetPattern(pattern); err != nil {
			return failed(cond, actual, expected, err.Error())
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return failed(cond, actual, expected, fmt.Sprintf("invalid pattern: %v", err))
		}
		if re.MatchString(fmt.Sprintf("%v", actual)) {
			return passedResult(cond, actual, expected, describeComparison(cond, actual, expected, true))
		}
		return failed(cond, actual, expected, describeComparison(cond, actual, expected, false))

	default:
		return failed(cond, actual, expected, fmt.Sprintf("unknown operator %q", cond.Operator))
	}
}

// resolveTimeValue turns a duration string like "180days" into a concrete
// instant relative to now.
func (e *RuleEvaluator) resolveTimeValue(raw string) (time.Time, error) {
	match := timeValuePattern.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return time.Time{}, fmt.Errorf("unparsable time value %q", raw)
	}
	amount, _ := strconv.Atoi(match[1])
	now := e.now()
	switch strings.TrimSuffix(match[2], "s") {
	case "minute":
		return now.Add(time.Duration(amount) * time.Minute), nil
	case "hour":
		return now.Add(time.Duration(amount) * time.Hour), nil
	case "day":
		return now.AddDate(0, 0, amount), nil
	case "week":
		return now.AddDate(0, 0, amount*7), nil
	case "month":
		return now.AddDate(0, amount, 0), nil
	case "year":
		return now.AddDate(amount, 0, 0), nil
	}
	return time.Time{}, fmt.Errorf("unparsable time value %q", raw)
}

func vetPattern(pattern string) error {
	if len(pattern) > maxRegexPatternLength {
		return fmt.Errorf("pattern exceeds %d characters", maxRegexPatternLength)
	}
	for _, bad := range regexBlacklist {
		if strings.Contains(pattern, bad) {
			return fmt.Errorf("pattern contains disallowed construct %q", bad)
		}
	}
	return nil
}

// lookupPath resolves a dot-separated path against nested maps. An undefined
// segment short-circuits to not-found.
func lookupPath(flat map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	var current interface{} = flat
	for _, segment := range strings.Split(path, ".") {
		asMap, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = asMap[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// valuesEqual compares case-insensitively for strings, instant-wise for
// dates, and structurally for arrays and objects.
func valuesEqual(a, b interface{}) bool {
	if ta, okA := tryDate(a); okA {
		if tb, okB := tryDate(b); okB {
			return ta.Equal(tb)
		}
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.EqualFold(sa, sb)
	}
	na, okA := tryNumber(a)
	nb, okB := tryNumber(b)
	if okA && okB {
		return na == nb
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders dates first, then numbers, then strings.
func compareValues(a, b interface{}) (int, error) {
	if ta, ok := tryDate(a); ok {
		if tb, ok := tryDate(b); ok {
			switch {
			case ta.Before(tb):
				return -1, nil
			case ta.After(tb):
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if na, ok := tryNumber(a); ok {
		if nb, ok := tryNumber(b); ok {
			switch {
			case na < nb:
				return -1, nil
			case na > nb:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(strings.ToLower(sa), strings.ToLower(sb)), nil
	}
	return 0, fmt.Errorf("cannot order %T against %T", a, b)
}

// containsValue supports substring search, array membership and object-value
// search.
func containsValue(haystack, needle interface{}) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(strings.ToLower(h), strings.ToLower(fmt.Sprintf("%v", needle)))
	case []interface{}:
		for _, item := range h {
			if valuesEqual(item, needle) {
				return true
			}
		}
	case map[string]interface{}:
		for _, value := range h {
			if valuesEqual(value, needle) {
				return true
			}
		}
	}
	return false
}

func asSlice(value interface{}) ([]interface{}, bool) {
	switch v := value.(type) {
	case []interface{}:
		return v, true
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func tryDate(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		// Only strings shaped like dates; plain words must not order as
		// zero dates.
		if len(v) < 8 {
			return time.Time{}, false
		}
		if parsed, err := parseDate(v); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func tryNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func passedResult(cond *model.RuleCondition, actual, expected interface{}, reason string) model.ConditionResult {
	return model.ConditionResult{
		Field:    cond.Field,
		Operator: string(cond.Operator),
		Passed:   true,
		Actual:   actual,
		Expected: expected,
		Reason:   reason,
	}
}

func failed(cond *model.RuleCondition, actual, expected interface{}, reason string) model.ConditionResult {
	return model.ConditionResult{
		Field:    cond.Field,
		Operator: string(cond.Operator),
		Passed:   false,
		Actual:   actual,
		Expected: expected,
		Reason:   reason,
	}
}

func describeComparison(cond *model.RuleCondition, actual, expected interface{}, passed bool) string {
	verdict := "does not satisfy"
	if passed {
		verdict = "satisfies"
	}
	return fmt.Sprintf("%s=%v %s %s %v", cond.Field, actual, verdict, cond.Operator, expected)
}
