package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	model "github.com/visaeagle/VisaEagle-backend/models"
)

func newTestCalculator() *DateCalculator {
	d := NewDateCalculator()
	d.now = func() time.Time { return testNow }
	return d
}

func TestComputeDueDateFixed(t *testing.T) {
	calc := newTestCalculator()

	due, err := calc.ComputeDueDate(&model.SmartDateConfig{Type: model.DateFixed, BaseDate: "2025-10-01"}, testContext())
	require.NoError(t, err)
	assert.Equal(t, "2025-10-01", due.Format(isoDate))

	_, err = calc.ComputeDueDate(&model.SmartDateConfig{Type: model.DateFixed, BaseDate: "next tuesday"}, testContext())
	assert.ErrorIs(t, err, ErrDateCalculation)
}

func TestComputeDueDateRelative(t *testing.T) {
	calc := newTestCalculator()
	uctx := testContext()

	// Entry on 2024-01-01 plus 90 days lands on 2024-03-31 across the leap
	// February.
	due, err := calc.ComputeDueDate(&model.SmartDateConfig{
		Type:     model.DateRelative,
		BaseDate: "dates.usEntryDate",
		Offset:   "+90days",
	}, uctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-31", due.Format(isoDate))

	due, err = calc.ComputeDueDate(&model.SmartDateConfig{
		Type:     model.DateRelative,
		BaseDate: "dates.graduationDate",
		Offset:   "-2weeks",
	}, uctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-05-01", due.Format(isoDate))

	_, err = calc.ComputeDueDate(&model.SmartDateConfig{
		Type:     model.DateRelative,
		BaseDate: "dates.moveDate",
		Offset:   "+10days",
	}, uctx)
	assert.ErrorIs(t, err, ErrDateCalculation)

	_, err = calc.ComputeDueDate(&model.SmartDateConfig{
		Type:     model.DateRelative,
		BaseDate: "dates.usEntryDate",
		Offset:   "90 days from now",
	}, uctx)
	assert.ErrorIs(t, err, ErrDateCalculation)
}

func TestComputeDueDateBusinessDayAdjustment(t *testing.T) {
	calc := newTestCalculator()
	uctx := testContext()
	// 2025-07-01 plus 4 days is Saturday 2025-07-05.
	uctx.Dates["reportDate"] = "2025-07-01"

	due, err := calc.ComputeDueDate(&model.SmartDateConfig{
		Type:             model.DateRelative,
		BaseDate:         "dates.reportDate",
		Offset:           "+4days",
		BusinessDaysOnly: true,
	}, uctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-07-07", due.Format(isoDate))
	assert.Equal(t, time.Monday, due.Weekday())

	// Independence Day 2025 falls on a Friday; skipping it runs into the
	// weekend, which snaps forward to Monday again.
	due, err = calc.ComputeDueDate(&model.SmartDateConfig{
		Type:         model.DateRelative,
		BaseDate:     "dates.reportDate",
		Offset:       "+3days",
		SkipHolidays: true,
	}, uctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-07-07", due.Format(isoDate))
}

func TestComputeDueDateCalculated(t *testing.T) {
	calc := newTestCalculator()
	uctx := testContext()
	uctx.Dates["optStartDate"] = "2024-07-01"

	tests := []struct {
		calculation string
		want        string
	}{
		// The 90-day window before the 2025-05-15 graduation is already open
		// on 2025-03-05, so the deadline collapses to a week out.
		{"optApplicationDeadline", "2025-03-12"},
		// Six months before the 2025-08-01 expiry has passed; two weeks out.
		{"passportRenewal", "2025-03-19"},
		// No move date recorded; fall back to three days out.
		{"addressUpdate", "2025-03-08"},
		{"sevisTransfer", "2025-07-14"},
		{"stemReportingWindow", "2025-07-01"},
	}
	for _, tt := range tests {
		t.Run(tt.calculation, func(t *testing.T) {
			due, err := calc.ComputeDueDate(&model.SmartDateConfig{
				Type:        model.DateCalculated,
				Calculation: tt.calculation,
			}, uctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, due.Format(isoDate))
		})
	}

	_, err := calc.ComputeDueDate(&model.SmartDateConfig{
		Type:        model.DateCalculated,
		Calculation: "daysSinceLastLogin",
	}, uctx)
	assert.ErrorIs(t, err, ErrDateCalculation)
}

func TestComputeDueDateRecurring(t *testing.T) {
	calc := newTestCalculator()
	uctx := testContext()

	tests := []struct {
		pattern string
		want    string
	}{
		{"monthly", "2025-04-01"},
		{"quarterly", "2025-04-01"},
		{"semiannual", "2025-07-01"},
		{"yearly", "2026-01-01"},
		{"every15days", "2025-03-20"},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			due, err := calc.ComputeDueDate(&model.SmartDateConfig{
				Type:             model.DateRecurring,
				RecurringPattern: tt.pattern,
			}, uctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, due.Format(isoDate))
		})
	}

	_, err := calc.ComputeDueDate(&model.SmartDateConfig{
		Type:             model.DateRecurring,
		RecurringPattern: "whenever",
	}, uctx)
	assert.ErrorIs(t, err, ErrDateCalculation)
}

func TestComputeDueDateClamping(t *testing.T) {
	calc := newTestCalculator()
	uctx := testContext()

	due, err := calc.ComputeDueDate(&model.SmartDateConfig{
		Type:     model.DateFixed,
		BaseDate: "2025-01-01",
		MinDate:  "2025-02-01",
	}, uctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01", due.Format(isoDate))

	due, err = calc.ComputeDueDate(&model.SmartDateConfig{
		Type:     model.DateFixed,
		BaseDate: "2025-12-01",
		MaxDate:  "2025-06-30",
	}, uctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-30", due.Format(isoDate))
}

func TestComputeDueDateRejectsUnknownType(t *testing.T) {
	calc := newTestCalculator()

	_, err := calc.ComputeDueDate(&model.SmartDateConfig{Type: "lunar"}, testContext())
	assert.ErrorIs(t, err, ErrDateCalculation)

	_, err = calc.ComputeDueDate(nil, testContext())
	assert.ErrorIs(t, err, ErrDateCalculation)
}

func TestParseOffset(t *testing.T) {
	tests := []struct {
		offset string
		amount int
		unit   string
		ok     bool
	}{
		{"+90days", 90, "day", true},
		{"-2weeks", -2, "week", true},
		{"6months", 6, "month", true},
		{"+1year", 1, "year", true},
		{"ninety days", 0, "", false},
		{"+90fortnights", 0, "", false},
		{"", 0, "", false},
	}
	for _, tt := range tests {
		amount, unit, err := ParseOffset(tt.offset)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrDateCalculation, tt.offset)
			continue
		}
		require.NoError(t, err, tt.offset)
		assert.Equal(t, tt.amount, amount)
		assert.Equal(t, tt.unit, unit)
	}
}
