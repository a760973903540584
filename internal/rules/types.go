package rules

// Type identifies one checker kind. The set is closed; anything else is
// reported by Validate and produces no findings.
type Type string

const (
	TypeMissingRequired  Type = "missing_required"
	TypeRangeCheck       Type = "range_check"
	TypeLogicCheck       Type = "logic_check"
	TypeConsistencyCheck Type = "consistency_check"
	TypeDateLogic        Type = "date_logic"
	TypeDuplicateCheck   Type = "duplicate_check"
	TypePatternMatch     Type = "pattern_match"
)

var knownTypes = map[Type]bool{
	TypeMissingRequired:  true,
	TypeRangeCheck:       true,
	TypeLogicCheck:       true,
	TypeConsistencyCheck: true,
	TypeDateLogic:        true,
	TypeDuplicateCheck:   true,
	TypePatternMatch:     true,
}

func (t Type) Known() bool {
	return knownTypes[t]
}

// Rule is one declarative check definition. Only the parameters relevant to
// the rule's type are consulted; the rest stay at their zero values.
type Rule struct {
	Type     Type   `json:"type" yaml:"type"`
	Name     string `json:"name" yaml:"name"`
	Severity string `json:"severity" yaml:"severity"`
	Message  string `json:"message" yaml:"message"`

	// missing_required
	Fields []string `json:"fields,omitempty" yaml:"fields,omitempty"`

	// range_check, pattern_match, date_logic future_date_check, consistency_check
	Field string `json:"field,omitempty" yaml:"field,omitempty"`

	// range_check
	MinValue           *float64 `json:"min_value,omitempty" yaml:"min_value,omitempty"`
	MaxValue           *float64 `json:"max_value,omitempty" yaml:"max_value,omitempty"`
	CheckNumericFormat bool     `json:"check_numeric_format,omitempty" yaml:"check_numeric_format,omitempty"`

	// logic_check
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`

	// consistency_check: same_value (default), increasing, decreasing
	ConsistencyType string `json:"consistency_type,omitempty" yaml:"consistency_type,omitempty"`

	// date_logic: chronological_order or future_date_check
	DateRule      string   `json:"date_rule,omitempty" yaml:"date_rule,omitempty"`
	DateFields    []string `json:"date_fields,omitempty" yaml:"date_fields,omitempty"`
	MaxFutureDays int      `json:"max_future_days,omitempty" yaml:"max_future_days,omitempty"`

	// duplicate_check
	KeyFields []string `json:"key_fields,omitempty" yaml:"key_fields,omitempty"`

	// pattern_match: must_match (default) or must_not_match
	Pattern     string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	PatternType string `json:"pattern_type,omitempty" yaml:"pattern_type,omitempty"`

	// Optional gate applied before any record-level check.
	Conditions map[string]Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Set groups rules into named categories. Category grouping only affects
// reporting; every rule is evaluated regardless of its category.
type Set struct {
	Categories map[string][]Rule `json:"categories" yaml:"categories"`
}

func (s Set) Empty() bool {
	for _, rules := range s.Categories {
		if len(rules) > 0 {
			return false
		}
	}
	return true
}

// SeverityLevel carries the SLA metadata attached to findings of a known
// severity.
type SeverityLevel struct {
	Description        string `json:"description" yaml:"description"`
	Priority           int    `json:"priority" yaml:"priority"`
	ResponseTimeHours  int    `json:"response_time_hours" yaml:"response_time_hours"`
	EscalationRequired bool   `json:"escalation_required" yaml:"escalation_required"`
}

func DefaultSeverityLevels() map[string]SeverityLevel {
	return map[string]SeverityLevel{
		"CRITICAL": {
			Description:        "Critical data issues that affect subject safety or primary endpoints",
			Priority:           1,
			ResponseTimeHours:  24,
			EscalationRequired: true,
		},
		"MAJOR": {
			Description:       "Important data issues that affect data quality or secondary endpoints",
			Priority:          2,
			ResponseTimeHours: 72,
		},
		"MINOR": {
			Description:       "Minor data issues or inconsistencies",
			Priority:          3,
			ResponseTimeHours: 168,
		},
		"INFO": {
			Description:       "Informational queries or data clarification requests",
			Priority:          4,
			ResponseTimeHours: 336,
		},
	}
}

// AutoCloseRule closes OPEN findings without human review when every
// configured condition holds.
type AutoCloseRule struct {
	Conditions AutoCloseConditions `json:"conditions" yaml:"conditions"`
	Reason     string              `json:"reason" yaml:"reason"`
}

type AutoCloseConditions struct {
	// SeverityBelow lists the severities eligible for closure.
	SeverityBelow []string `json:"severity_below,omitempty" yaml:"severity_below,omitempty"`
	// QueryType lists the finding types eligible for closure.
	QueryType []string `json:"query_type,omitempty" yaml:"query_type,omitempty"`
	// AgeDays is the minimum age of the finding in days.
	AgeDays *int `json:"age_days,omitempty" yaml:"age_days,omitempty"`
}
