package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	model "github.com/visaeagle/VisaEagle-backend/models"
)

// The three placeholder forms. Conditionals are expanded first so the later
// passes never misread the "?" syntax as a field path.
var (
	conditionalPlaceholder = regexp.MustCompile(`\{\?([^{}]+?)\}`)
	calculatedPlaceholder  = regexp.MustCompile(`\{#([A-Za-z][A-Za-z0-9]*)\}`)
	fieldPlaceholder       = regexp.MustCompile(`\{([A-Za-z][A-Za-z0-9_.]*)\}`)
	comparisonExpr         = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_.]*)\s*(==|!=|>|<)\s*(.+)$`)
)

// TemplateRenderer expands task title/description templates. Rendering never
// fails on malformed input: bad placeholders become inline markers instead.
type TemplateRenderer struct {
	now func() time.Time
}

func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{now: time.Now}
}

// Render expands conditionals, then calculations, then plain field paths.
func (r *TemplateRenderer) Render(template string, uctx *model.UserContext) string {
	if template == "" || !strings.Contains(template, "{") {
		return template
	}
	flat := uctx.AsMap()

	out := conditionalPlaceholder.ReplaceAllStringFunc(template, func(match string) string {
		body := match[2 : len(match)-1]
		return r.renderConditional(body, flat)
	})
	out = calculatedPlaceholder.ReplaceAllStringFunc(out, func(match string) string {
		name := match[2 : len(match)-1]
		return r.renderCalculated(name, uctx)
	})
	out = fieldPlaceholder.ReplaceAllStringFunc(out, func(match string) string {
		path := match[1 : len(match)-1]
		value, found := lookupPath(flat, path)
		if !found {
			return ""
		}
		return formatValue(value)
	})
	return out
}

// renderConditional handles "expr:trueText:falseText". The expression is
// either !field, a single comparison, or bare truthiness of a field.
func (r *TemplateRenderer) renderConditional(body string, flat map[string]interface{}) string {
	parts := strings.SplitN(body, ":", 3)
	if len(parts) != 3 {
		return fmt.Sprintf("{Invalid conditional: %s}", body)
	}
	expr, trueText, falseText := strings.TrimSpace(parts[0]), parts[1], parts[2]

	if r.evalConditionalExpr(expr, flat) {
		return trueText
	}
	return falseText
}

func (r *TemplateRenderer) evalConditionalExpr(expr string, flat map[string]interface{}) bool {
	if strings.HasPrefix(expr, "!") {
		return !r.evalConditionalExpr(strings.TrimSpace(expr[1:]), flat)
	}
	if match := comparisonExpr.FindStringSubmatch(expr); match != nil {
		actual, found := lookupPath(flat, match[1])
		if !found {
			return false
		}
		expected := parseLiteral(match[3])
		switch match[2] {
		case "==":
			return valuesEqual(actual, expected)
		case "!=":
			return !valuesEqual(actual, expected)
		case ">":
			cmp, err := compareValues(actual, expected)
			return err == nil && cmp > 0
		case "<":
			cmp, err := compareValues(actual, expected)
			return err == nil && cmp < 0
		}
		return false
	}
	value, found := lookupPath(flat, expr)
	return found && isTruthy(value)
}

// renderCalculated resolves the fixed catalogue of derived values. Unknown
// names render a visible marker so rule authors notice typos.
func (r *TemplateRenderer) renderCalculated(name string, uctx *model.UserContext) string {
	now := r.now()
	switch name {
	case "daysUntilGraduation":
		return daysUntil(uctx, "graduationDate", now)
	case "daysUntilOptExpiry":
		return daysUntil(uctx, "optEndDate", now)
	case "daysUntilPassportExpiry":
		return daysUntil(uctx, "passportExpiry", now)
	case "remainingUnemploymentDays":
		remaining := uctx.Employment.UnemploymentDaysAllowed - uctx.Employment.UnemploymentDaysUsed
		if remaining < 0 {
			remaining = 0
		}
		return fmt.Sprintf("%d", remaining)
	case "timeRemaining":
		return friendlyTimeRemaining(uctx, now)
	case "urgencyLevel":
		return urgencyEmoji(uctx)
	default:
		return fmt.Sprintf("{Unknown calculation: %s}", name)
	}
}

func daysUntil(uctx *model.UserContext, dateKey string, now time.Time) string {
	raw, exists := uctx.Dates[dateKey]
	if !exists {
		return ""
	}
	target, err := parseDate(raw)
	if err != nil {
		return ""
	}
	days := int(target.Sub(now).Hours() / 24)
	return fmt.Sprintf("%d", days)
}

// friendlyTimeRemaining describes the time until the nearest tracked expiry
// in coarse human units.
func friendlyTimeRemaining(uctx *model.UserContext, now time.Time) string {
	var nearest time.Time
	for _, key := range []string{"graduationDate", "optEndDate", "visaExpiry", "passportExpiry"} {
		raw, exists := uctx.Dates[key]
		if !exists {
			continue
		}
		parsed, err := parseDate(raw)
		if err != nil || parsed.Before(now) {
			continue
		}
		if nearest.IsZero() || parsed.Before(nearest) {
			nearest = parsed
		}
	}
	if nearest.IsZero() {
		return "no upcoming deadlines"
	}
	days := int(nearest.Sub(now).Hours() / 24)
	switch {
	case days <= 1:
		return "due now"
	case days < 14:
		return fmt.Sprintf("%d days left", days)
	case days < 60:
		return fmt.Sprintf("about %d weeks left", days/7)
	default:
		return fmt.Sprintf("about %d months left", days/30)
	}
}

func urgencyEmoji(uctx *model.UserContext) string {
	score := uctx.Compliance.RiskScore
	switch {
	case score >= 70:
		return "🔴"
	case score >= 40:
		return "🟡"
	default:
		return "🟢"
	}
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	case string:
		if parsed, ok := tryDate(v); ok {
			return parsed.Format("January 2, 2006")
		}
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func isTruthy(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case nil:
		return false
	default:
		return true
	}
}

// parseLiteral interprets the right-hand side of a conditional comparison.
func parseLiteral(raw string) interface{} {
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, `'"`)
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	var num float64
	if _, err := fmt.Sscanf(raw, "%g", &num); err == nil && fmt.Sprintf("%g", num) == raw {
		return num
	}
	return raw
}
