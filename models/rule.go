package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ConditionOperator is the closed set of comparison operators a rule condition
// may use. Anything outside this set is rejected at evaluation time.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpNotEquals   ConditionOperator = "notEquals"
	OpGreaterThan ConditionOperator = "greaterThan"
	OpLessThan    ConditionOperator = "lessThan"
	OpContains    ConditionOperator = "contains"
	OpNotContains ConditionOperator = "notContains"
	OpIn          ConditionOperator = "in"
	OpNotIn       ConditionOperator = "notIn"
	OpBetween     ConditionOperator = "between"
	OpRegex       ConditionOperator = "regex"
	OpExists      ConditionOperator = "exists"
	OpNotExists   ConditionOperator = "notExists"
)

// LogicOperator combines the children of a composite condition.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

// RuleCondition is either a leaf (Field + Operator + Value) or a composite
// (Conditions + LogicOperator). A node with both populated is invalid.
type RuleCondition struct {
	Field     string            `json:"field,omitempty"`
	Operator  ConditionOperator `json:"operator,omitempty"`
	Value     interface{}       `json:"value,omitempty"`
	TimeValue string            `json:"timeValue,omitempty"`

	Conditions    []RuleCondition `json:"conditions,omitempty"`
	LogicOperator LogicOperator   `json:"logicOperator,omitempty"`
	Negate        bool            `json:"negate,omitempty"`
}

// IsGroup reports whether the condition is a composite node.
func (c *RuleCondition) IsGroup() bool {
	return len(c.Conditions) > 0
}

// Validate rejects ambiguous nodes that mix leaf and composite fields.
func (c *RuleCondition) Validate() error {
	if c.IsGroup() {
		if c.Field != "" || c.Operator != "" {
			return fmt.Errorf("condition mixes nested conditions with field %q", c.Field)
		}
		if c.LogicOperator != LogicAnd && c.LogicOperator != LogicOr {
			return fmt.Errorf("composite condition has invalid logic operator %q", c.LogicOperator)
		}
		for i := range c.Conditions {
			if err := c.Conditions[i].Validate(); err != nil {
				return err
			}
		}
		return nil
	}
	if c.Field == "" {
		return fmt.Errorf("leaf condition is missing a field path")
	}
	if c.Operator == "" {
		return fmt.Errorf("condition on field %q is missing an operator", c.Field)
	}
	return nil
}

// DateConfigType selects the due-date computation strategy.
type DateConfigType string

const (
	DateFixed      DateConfigType = "fixed"
	DateRelative   DateConfigType = "relative"
	DateCalculated DateConfigType = "calculated"
	DateRecurring  DateConfigType = "recurring"
)

// SmartDateConfig declares how a task's due date is computed. BaseDate is a
// literal date for the fixed type and a context field path for relative.
// Offset uses the bounded grammar [+-]N(day|week|month|year)s, e.g. "+90days".
type SmartDateConfig struct {
	Type             DateConfigType `json:"type"`
	BaseDate         string         `json:"baseDate,omitempty"`
	Offset           string         `json:"offset,omitempty"`
	Calculation      string         `json:"calculation,omitempty"`
	RecurringPattern string         `json:"recurringPattern,omitempty"`
	BusinessDaysOnly bool           `json:"businessDaysOnly,omitempty"`
	SkipHolidays     bool           `json:"skipHolidays,omitempty"`
	MinDate          string         `json:"minDate,omitempty"`
	MaxDate          string         `json:"maxDate,omitempty"`
}

// TaskTemplate describes the task a matched rule produces. Title and
// Description may contain {field.path}, {#calculation} and
// {?expr:true:false} placeholders.
type TaskTemplate struct {
	Title                 string           `json:"title"`
	Description           string           `json:"description"`
	Category              string           `json:"category,omitempty"`
	DueDate               *SmartDateConfig `json:"dueDate,omitempty"`
	Prerequisites         []string         `json:"prerequisites,omitempty"`
	AutoCompleteCondition *RuleCondition   `json:"autoCompleteCondition,omitempty"`
	Recurring             bool             `json:"recurring,omitempty"`
	RecurringInterval     string           `json:"recurringInterval,omitempty"`
}

// RuleDefinition is the in-memory form of a compliance rule, whichever source
// it was loaded from.
type RuleDefinition struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category"`
	Phases      []StudentPhase  `json:"phases"`
	VisaTypes   []string        `json:"visaTypes"`
	Conditions  []RuleCondition `json:"conditions"`
	Template    TaskTemplate    `json:"template"`
	Priority    int             `json:"priority"`
	Active      bool            `json:"active"`
	Version     int             `json:"version,omitempty"`
	University  string          `json:"university,omitempty"`
	CreatedAt   time.Time       `json:"createdAt,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt,omitempty"`
}

// ComplianceRule is the persisted form of a rule definition. The condition
// tree and task template are stored as JSONB; in Elasticsearch the name and
// description are indexed as text for search.
type ComplianceRule struct {
	ID          string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" elastic:"type:keyword" json:"id"`
	RuleID      string         `gorm:"uniqueIndex;not null" elastic:"type:keyword" json:"rule_id"`
	Name        string         `gorm:"not null" elastic:"type:text,analyzer:standard" json:"name"`
	Description string         `elastic:"type:text,analyzer:standard" json:"description"`
	Category    string         `elastic:"type:keyword" json:"category"`
	Phases      datatypes.JSON `elastic:"type:keyword" json:"phases"`
	VisaTypes   datatypes.JSON `elastic:"type:keyword" json:"visa_types"`
	Conditions  datatypes.JSON `elastic:"type:object" json:"conditions"`
	Template    datatypes.JSON `elastic:"type:object" json:"template"`
	Priority    int            `elastic:"type:integer" json:"priority"`
	Active      bool           `elastic:"type:boolean" json:"active"`
	Version     int            `json:"version"`
	University  string         `elastic:"type:keyword" json:"university"`
	CreatedAt   time.Time      `elastic:"type:date" json:"created_at"`
	UpdatedAt   time.Time      `elastic:"type:date" json:"updated_at"`
}

// ToDefinition unpacks the JSONB columns into a RuleDefinition.
func (r *ComplianceRule) ToDefinition() (RuleDefinition, error) {
	def := RuleDefinition{
		ID:          r.RuleID,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Priority:    r.Priority,
		Active:      r.Active,
		Version:     r.Version,
		University:  r.University,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if len(r.Phases) > 0 {
		if err := json.Unmarshal(r.Phases, &def.Phases); err != nil {
			return def, fmt.Errorf("rule %s has invalid phases: %w", r.RuleID, err)
		}
	}
	if len(r.VisaTypes) > 0 {
		if err := json.Unmarshal(r.VisaTypes, &def.VisaTypes); err != nil {
			return def, fmt.Errorf("rule %s has invalid visa types: %w", r.RuleID, err)
		}
	}
	if len(r.Conditions) > 0 {
		if err := json.Unmarshal(r.Conditions, &def.Conditions); err != nil {
			return def, fmt.Errorf("rule %s has invalid conditions: %w", r.RuleID, err)
		}
	}
	if len(r.Template) > 0 {
		if err := json.Unmarshal(r.Template, &def.Template); err != nil {
			return def, fmt.Errorf("rule %s has invalid template: %w", r.RuleID, err)
		}
	}
	return def, nil
}

// FromDefinition packs a RuleDefinition into the persisted form.
func FromDefinition(def RuleDefinition) (ComplianceRule, error) {
	phases, err := json.Marshal(def.Phases)
	if err != nil {
		return ComplianceRule{}, err
	}
	visaTypes, err := json.Marshal(def.VisaTypes)
	if err != nil {
		return ComplianceRule{}, err
	}
	conditions, err := json.Marshal(def.Conditions)
	if err != nil {
		return ComplianceRule{}, err
	}
	template, err := json.Marshal(def.Template)
	if err != nil {
		return ComplianceRule{}, err
	}
	return ComplianceRule{
		RuleID:      def.ID,
		Name:        def.Name,
		Description: def.Description,
		Category:    def.Category,
		Phases:      datatypes.JSON(phases),
		VisaTypes:   datatypes.JSON(visaTypes),
		Conditions:  datatypes.JSON(conditions),
		Template:    datatypes.JSON(template),
		Priority:    def.Priority,
		Active:      def.Active,
		Version:     def.Version,
		University:  def.University,
	}, nil
}
