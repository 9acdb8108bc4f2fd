package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	model "github.com/visaeagle/VisaEagle-backend/models"
)

// offsetPattern is the whole bounded offset grammar: a sign, an amount and a
// closed set of units. Nothing else parses.
var offsetPattern = regexp.MustCompile(`^([+-]?)(\d+)(day|days|week|weeks|month|months|year|years)$`)

// Fixed-date US federal holidays, month/day. Floating holidays are excluded
// so the adjustment stays deterministic without a calendar feed.
var observedHolidays = map[string]bool{
	"01-01": true, // New Year's Day
	"06-19": true, // Juneteenth
	"07-04": true, // Independence Day
	"11-11": true, // Veterans Day
	"12-25": true, // Christmas Day
}

// DateCalculator computes concrete due dates from declarative configs.
type DateCalculator struct {
	now func() time.Time
}

func NewDateCalculator() *DateCalculator {
	return &DateCalculator{now: time.Now}
}

// ComputeDueDate dispatches on the config type. Any missing context field,
// bad offset, or unknown calculation is fatal for the one rule that owns the
// config, never for the batch.
func (d *DateCalculator) ComputeDueDate(cfg *model.SmartDateConfig, uctx *model.UserContext) (time.Time, error) {
	if cfg == nil {
		return time.Time{}, fmt.Errorf("%w: no date configuration", ErrDateCalculation)
	}

	var due time.Time
	var err error

	switch cfg.Type {
	case model.DateFixed:
		due, err = parseDate(cfg.BaseDate)
		if err != nil {
			err = fmt.Errorf("%w: fixed date %q: %v", ErrDateCalculation, cfg.BaseDate, err)
		}
	case model.DateRelative:
		due, err = d.computeRelative(cfg, uctx)
	case model.DateCalculated:
		due, err = d.computeCalculated(cfg, uctx)
	case model.DateRecurring:
		due, err = d.computeRecurring(cfg)
	default:
		err = fmt.Errorf("%w: unknown date config type %q", ErrDateCalculation, cfg.Type)
	}
	if err != nil {
		return time.Time{}, err
	}

	return clampDate(due, cfg)
}

func (d *DateCalculator) computeRelative(cfg *model.SmartDateConfig, uctx *model.UserContext) (time.Time, error) {
	raw, found := lookupPath(uctx.AsMap(), cfg.BaseDate)
	if !found {
		return time.Time{}, fmt.Errorf("%w: base date field %q not present in context", ErrDateCalculation, cfg.BaseDate)
	}
	str, ok := raw.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: base date field %q is not a date", ErrDateCalculation, cfg.BaseDate)
	}
	base, err := parseDate(str)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: base date field %q: %v", ErrDateCalculation, cfg.BaseDate, err)
	}

	due := base
	if cfg.Offset != "" {
		amount, unit, err := ParseOffset(cfg.Offset)
		if err != nil {
			return time.Time{}, err
		}
		due = applyOffset(base, amount, unit)
	}

	if cfg.BusinessDaysOnly || cfg.SkipHolidays {
		due = adjustToBusinessDay(due, cfg.SkipHolidays)
	}
	return due, nil
}

// computeCalculated dispatches to the closed catalogue of named formulas.
func (d *DateCalculator) computeCalculated(cfg *model.SmartDateConfig, uctx *model.UserContext) (time.Time, error) {
	now := d.now()

	switch cfg.Calculation {
	case "optApplicationDeadline":
		// 90 days before graduation, or within a week once the window is open.
		graduation, err := contextDate(uctx, "graduationDate")
		if err != nil {
			return time.Time{}, err
		}
		windowOpen := graduation.AddDate(0, 0, -90)
		if now.After(windowOpen) {
			return now.AddDate(0, 0, 7), nil
		}
		return windowOpen, nil

	case "passportRenewal":
		// 6 months before expiry, or within two weeks if already inside that
		// window.
		expiry, err := contextDate(uctx, "passportExpiry")
		if err != nil {
			return time.Time{}, err
		}
		renewBy := expiry.AddDate(0, -6, 0)
		if now.After(renewBy) {
			return now.AddDate(0, 0, 14), nil
		}
		return renewBy, nil

	case "addressUpdate":
		// 10 days after the move, or 3 days out when no move date exists.
		moved, err := contextDate(uctx, "moveDate")
		if err != nil {
			return now.AddDate(0, 0, 3), nil
		}
		return moved.AddDate(0, 0, 10), nil

	case "sevisTransfer":
		// Transfer-out must complete within 60 days of graduation.
		graduation, err := contextDate(uctx, "graduationDate")
		if err != nil {
			return time.Time{}, err
		}
		return graduation.AddDate(0, 0, 60), nil

	case "stemReportingWindow":
		// Validation reports anchor on the OPT start date, every 6 months.
		start, err := contextDate(uctx, "optStartDate")
		if err != nil {
			return time.Time{}, err
		}
		next := start
		for !next.After(now) {
			next = next.AddDate(0, 6, 0)
		}
		return next, nil

	default:
		return time.Time{}, fmt.Errorf("%w: unknown calculation %q", ErrDateCalculation, cfg.Calculation)
	}
}

// computeRecurring returns the next occurrence of the cadence, anchored at
// the first day of the next period.
func (d *DateCalculator) computeRecurring(cfg *model.SmartDateConfig) (time.Time, error) {
	now := d.now()
	year, month, _ := now.Date()

	switch cfg.RecurringPattern {
	case "monthly":
		return time.Date(year, month+1, 1, 0, 0, 0, 0, now.Location()), nil
	case "quarterly":
		nextQuarter := (int(month)-1)/3*3 + 4
		return time.Date(year, time.Month(nextQuarter), 1, 0, 0, 0, 0, now.Location()), nil
	case "semiannual":
		if month < time.July {
			return time.Date(year, time.July, 1, 0, 0, 0, 0, now.Location()), nil
		}
		return time.Date(year+1, time.January, 1, 0, 0, 0, 0, now.Location()), nil
	case "yearly":
		return time.Date(year+1, time.January, 1, 0, 0, 0, 0, now.Location()), nil
	}

	// Custom interval: "every15days" style.
	if strings.HasPrefix(cfg.RecurringPattern, "every") {
		amount, unit, err := ParseOffset("+" + strings.TrimPrefix(cfg.RecurringPattern, "every"))
		if err == nil {
			return applyOffset(now, amount, unit), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unknown recurring pattern %q", ErrDateCalculation, cfg.RecurringPattern)
}

// ParseOffset parses the signed offset grammar, e.g. "+90days" or "-2weeks".
func ParseOffset(offset string) (int, string, error) {
	match := offsetPattern.FindStringSubmatch(strings.TrimSpace(offset))
	if match == nil {
		return 0, "", fmt.Errorf("%w: unparsable offset %q", ErrDateCalculation, offset)
	}
	amount, err := strconv.Atoi(match[2])
	if err != nil {
		return 0, "", fmt.Errorf("%w: unparsable offset amount %q", ErrDateCalculation, offset)
	}
	if match[1] == "-" {
		amount = -amount
	}
	return amount, strings.TrimSuffix(match[3], "s"), nil
}

func applyOffset(base time.Time, amount int, unit string) time.Time {
	switch unit {
	case "day":
		return base.AddDate(0, 0, amount)
	case "week":
		return base.AddDate(0, 0, amount*7)
	case "month":
		return base.AddDate(0, amount, 0)
	case "year":
		return base.AddDate(amount, 0, 0)
	}
	return base
}

// adjustToBusinessDay snaps weekend dates forward to Monday and, when asked,
// skips observed holidays, re-checking the weekend after each skip.
func adjustToBusinessDay(date time.Time, skipHolidays bool) time.Time {
	for {
		switch date.Weekday() {
		case time.Saturday:
			date = date.AddDate(0, 0, 2)
			continue
		case time.Sunday:
			date = date.AddDate(0, 0, 1)
			continue
		}
		if skipHolidays && observedHolidays[date.Format("01-02")] {
			date = date.AddDate(0, 0, 1)
			continue
		}
		return date
	}
}

func clampDate(due time.Time, cfg *model.SmartDateConfig) (time.Time, error) {
	if cfg.MinDate != "" {
		min, err := parseDate(cfg.MinDate)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: min date %q: %v", ErrDateCalculation, cfg.MinDate, err)
		}
		if due.Before(min) {
			due = min
		}
	}
	if cfg.MaxDate != "" {
		max, err := parseDate(cfg.MaxDate)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: max date %q: %v", ErrDateCalculation, cfg.MaxDate, err)
		}
		if due.After(max) {
			due = max
		}
	}
	return due, nil
}

func contextDate(uctx *model.UserContext, key string) (time.Time, error) {
	raw, exists := uctx.Dates[key]
	if !exists {
		return time.Time{}, fmt.Errorf("%w: required date %q missing from context", ErrDateCalculation, key)
	}
	parsed, err := parseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", ErrDateCalculation, key, err)
	}
	return parsed, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{isoDate, time.RFC3339, "01/02/2006"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable date %q", raw)
}
