package query

import (
	"time"

	"trialqc/internal/rules"
)

// Input is the query tool payload: raw CSV plus the declarative rule set and
// optional severity/auto-close configuration.
type Input struct {
	Data           string                         `json:"data"`
	QueryRules     rules.Set                      `json:"query_rules"`
	SeverityLevels map[string]rules.SeverityLevel `json:"severity_levels"`
	AutoCloseRules map[string]rules.AutoCloseRule `json:"auto_close_rules"`
}

// Query is one finding: a single rule violation tied to a record or a record
// group. Status starts OPEN and may flip to AUTO_CLOSED exactly once.
type Query struct {
	QueryID   string `json:"query_id"`
	SubjectID string `json:"subject_id"`
	Visit     string `json:"visit,omitempty"`
	Field     string `json:"field,omitempty"`
	Value     string `json:"value,omitempty"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	QueryType string `json:"query_type"`
	Status    string `json:"status"`

	RecordIndex      *int     `json:"record_index,omitempty"`
	DuplicateOfIndex *int     `json:"duplicate_of_index,omitempty"`
	KeyFields        []string `json:"key_fields,omitempty"`
	Values           []string `json:"values,omitempty"`
	ViolationDetails []string `json:"violation_details,omitempty"`
	ConsistencyType  string   `json:"consistency_type,omitempty"`
	ViolationType    string   `json:"violation_type,omitempty"`
	LogicExpression  string   `json:"logic_expression,omitempty"`
	Pattern          string   `json:"pattern,omitempty"`
	PatternType      string   `json:"pattern_type,omitempty"`

	RuleName        string               `json:"rule_name"`
	RuleCategory    string               `json:"rule_category"`
	GeneratedDate   time.Time            `json:"generated_date"`
	SeverityDetails *rules.SeverityLevel `json:"severity_details,omitempty"`

	ClosureReason string     `json:"closure_reason,omitempty"`
	ClosureDate   *time.Time `json:"closure_date,omitempty"`
}

const (
	StatusOpen       = "OPEN"
	StatusAutoClosed = "AUTO_CLOSED"
)

const (
	typeMissingRequired  = "missing_required"
	typeRangeViolation   = "range_violation"
	typeFormatViolation  = "format_violation"
	typeLogicViolation   = "logic_violation"
	typeConsistency      = "consistency_violation"
	typeDateLogic        = "date_logic_violation"
	typeFutureDate       = "future_date_violation"
	typeDuplicateRecord  = "duplicate_record"
	typePatternViolation = "pattern_violation"
)

type Statistics struct {
	TotalRecordsChecked int            `json:"total_records_checked"`
	QueriesGenerated    int            `json:"queries_generated"`
	AutoClosedQueries   int            `json:"auto_closed_queries"`
	CriticalQueries     int            `json:"critical_queries"`
	MajorQueries        int            `json:"major_queries"`
	MinorQueries        int            `json:"minor_queries"`
	InfoQueries         int            `json:"info_queries"`
	RulesTriggered      map[string]int `json:"rules_triggered"`
	AffectedSubjects    int            `json:"affected_subjects"`
	ProcessingTime      float64        `json:"processing_time"`
}

type RuleCount struct {
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

type Summary struct {
	BySeverity       map[string]int `json:"by_severity"`
	ByType           map[string]int `json:"by_type"`
	ByStatus         map[string]int `json:"by_status"`
	TopRules         []RuleCount    `json:"top_rules"`
	AffectedSubjects int            `json:"affected_subjects"`
	Recommendation   string         `json:"recommendation"`
}

type ProcessingInfo struct {
	TotalQueries          int     `json:"total_queries"`
	ShownQueries          int     `json:"shown_queries"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

type Result struct {
	Success        bool            `json:"success"`
	Queries        []Query         `json:"queries"`
	Errors         []string        `json:"errors"`
	Warnings       []string        `json:"warnings"`
	Statistics     Statistics      `json:"statistics"`
	Summary        *Summary        `json:"summary,omitempty"`
	ProcessingInfo *ProcessingInfo `json:"processing_info,omitempty"`
}

// maxReturnedQueries caps the response size; totals stay in ProcessingInfo.
const maxReturnedQueries = 1000
