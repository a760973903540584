package query

import (
	"testing"
	"time"

	"trialqc/internal/records"
	"trialqc/internal/rules"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func parseTable(t *testing.T, csv string) records.Table {
	t.Helper()
	table, err := records.Parse(csv)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return table
}

func contextFor(table records.Table, severity string) checkContext {
	return checkContext{
		records:  table.Records,
		groups:   records.GroupBy(table.Records, subjectKeyField),
		severity: severity,
		template: "query on {field}",
		now:      testNow,
	}
}

func TestMissingRequired(t *testing.T) {
	table := parseTable(t, "subject_id,age,sex\n001,25,M\n002,,F\n003,  ,M\n")
	rule := rules.Rule{Type: rules.TypeMissingRequired, Fields: []string{"age"}}
	queries := checkMissingRequired(rule, contextFor(table, "MAJOR"))
	if len(queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(queries))
	}
	if queries[0].SubjectID != "002" || queries[1].SubjectID != "003" {
		t.Fatalf("unexpected subjects: %s, %s", queries[0].SubjectID, queries[1].SubjectID)
	}
	if queries[0].QueryType != typeMissingRequired {
		t.Fatalf("unexpected type: %s", queries[0].QueryType)
	}
}

func TestMissingRequiredFieldOrder(t *testing.T) {
	table := parseTable(t, "subject_id,age,sex\n001,,\n")
	rule := rules.Rule{Type: rules.TypeMissingRequired, Fields: []string{"sex", "age"}}
	queries := checkMissingRequired(rule, contextFor(table, "MINOR"))
	if len(queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(queries))
	}
	if queries[0].Field != "sex" || queries[1].Field != "age" {
		t.Fatalf("findings must follow field-list order: %s, %s", queries[0].Field, queries[1].Field)
	}
}

func TestMissingRequiredConditionsGate(t *testing.T) {
	table := parseTable(t, "subject_id,arm,dose\n001,A,\n002,B,\n")
	lit := "A"
	rule := rules.Rule{
		Type:       rules.TypeMissingRequired,
		Fields:     []string{"dose"},
		Conditions: map[string]rules.Condition{"arm": {Literal: &lit}},
	}
	queries := checkMissingRequired(rule, contextFor(table, "MAJOR"))
	if len(queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(queries))
	}
	if queries[0].SubjectID != "001" {
		t.Fatalf("unexpected subject: %s", queries[0].SubjectID)
	}
}

func TestRangeCheckBoundsAndBoundaries(t *testing.T) {
	table := parseTable(t, "subject_id,age\n001,17\n002,18\n003,85\n004,86\n")
	min := 18.0
	max := 85.0
	rule := rules.Rule{Type: rules.TypeRangeCheck, Field: "age", MinValue: &min, MaxValue: &max}
	queries := checkRange(rule, contextFor(table, "CRITICAL"))
	if len(queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(queries))
	}
	if queries[0].SubjectID != "001" || queries[1].SubjectID != "004" {
		t.Fatalf("boundary values must not violate: %+v", queries)
	}
	if queries[0].ViolationDetails[0] != "below minimum 18" {
		t.Fatalf("unexpected detail: %s", queries[0].ViolationDetails[0])
	}
	if queries[1].ViolationDetails[0] != "above maximum 85" {
		t.Fatalf("unexpected detail: %s", queries[1].ViolationDetails[0])
	}
}

func TestRangeCheckNonNumericSkipped(t *testing.T) {
	table := parseTable(t, "subject_id,age\n001,abc\n")
	min := 18.0
	rule := rules.Rule{Type: rules.TypeRangeCheck, Field: "age", MinValue: &min}
	if queries := checkRange(rule, contextFor(table, "MAJOR")); len(queries) != 0 {
		t.Fatalf("expected no queries, got %d", len(queries))
	}
}

func TestRangeCheckNumericFormat(t *testing.T) {
	table := parseTable(t, "subject_id,age\n001,abc\n")
	min := 18.0
	rule := rules.Rule{Type: rules.TypeRangeCheck, Field: "age", MinValue: &min, CheckNumericFormat: true}
	queries := checkRange(rule, contextFor(table, "MAJOR"))
	if len(queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(queries))
	}
	if queries[0].QueryType != typeFormatViolation {
		t.Fatalf("unexpected type: %s", queries[0].QueryType)
	}
}

func TestLogicCheck(t *testing.T) {
	table := parseTable(t, "subject_id,sex,pregnant\n001,M,Y\n002,F,Y\n003,M,N\n")
	rule := rules.Rule{
		Type:       rules.TypeLogicCheck,
		Expression: `{sex} == "M" and {pregnant} == "Y"`,
	}
	queries := checkLogic(rule, contextFor(table, "CRITICAL"))
	if len(queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(queries))
	}
	if queries[0].SubjectID != "001" {
		t.Fatalf("unexpected subject: %s", queries[0].SubjectID)
	}
	if queries[0].LogicExpression == "" {
		t.Fatalf("expected expression recorded")
	}
}

func TestLogicCheckBadExpressionYieldsNothing(t *testing.T) {
	table := parseTable(t, "subject_id,sex\n001,M\n")
	rule := rules.Rule{Type: rules.TypeLogicCheck, Expression: "{sex} ="}
	if queries := checkLogic(rule, contextFor(table, "MAJOR")); len(queries) != 0 {
		t.Fatalf("expected no queries, got %d", len(queries))
	}
}

func TestConsistencySameValue(t *testing.T) {
	table := parseTable(t, "subject_id,sex\n001,M\n001,F\n002,M\n002,M\n")
	rule := rules.Rule{Type: rules.TypeConsistencyCheck, Field: "sex", ConsistencyType: "same_value"}
	queries := checkConsistency(rule, contextFor(table, "MAJOR"))
	if len(queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(queries))
	}
	if queries[0].SubjectID != "001" {
		t.Fatalf("unexpected subject: %s", queries[0].SubjectID)
	}
	if len(queries[0].Values) != 2 {
		t.Fatalf("unexpected values: %v", queries[0].Values)
	}
}

func TestConsistencyIncreasing(t *testing.T) {
	table := parseTable(t, "subject_id,visit_num\n001,1\n001,3\n001,2\n002,1\n002,2\n")
	rule := rules.Rule{Type: rules.TypeConsistencyCheck, Field: "visit_num", ConsistencyType: "increasing"}
	queries := checkConsistency(rule, contextFor(table, "MINOR"))
	if len(queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(queries))
	}
	if queries[0].SubjectID != "001" {
		t.Fatalf("unexpected subject: %s", queries[0].SubjectID)
	}
	if queries[0].ConsistencyType != "increasing" {
		t.Fatalf("unexpected mode: %s", queries[0].ConsistencyType)
	}
}

func TestConsistencyDecreasing(t *testing.T) {
	table := parseTable(t, "subject_id,weight\n001,80\n001,82\n")
	rule := rules.Rule{Type: rules.TypeConsistencyCheck, Field: "weight", ConsistencyType: "decreasing"}
	queries := checkConsistency(rule, contextFor(table, "MINOR"))
	if len(queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(queries))
	}
}

func TestDateLogicChronologicalOrder(t *testing.T) {
	table := parseTable(t, "subject_id,consent_date,screening_date,randomization_date\n001,2024-01-10,2024-01-05,2024-01-20\n002,2024-01-01,2024-01-02,2024-01-03\n")
	rule := rules.Rule{
		Type:       rules.TypeDateLogic,
		DateRule:   "chronological_order",
		DateFields: []string{"consent_date", "screening_date", "randomization_date"},
	}
	queries := checkDateLogic(rule, contextFor(table, "MAJOR"))
	if len(queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(queries))
	}
	if queries[0].SubjectID != "001" {
		t.Fatalf("unexpected subject: %s", queries[0].SubjectID)
	}
	if queries[0].ViolationType != "chronological_order" {
		t.Fatalf("unexpected violation type: %s", queries[0].ViolationType)
	}
}

func TestDateLogicFutureDate(t *testing.T) {
	table := parseTable(t, "subject_id,visit_date\n001,2024-06-10\n002,2024-05-01\n")
	rule := rules.Rule{
		Type:          rules.TypeDateLogic,
		DateRule:      "future_date_check",
		Field:         "visit_date",
		MaxFutureDays: 3,
	}
	queries := checkDateLogic(rule, contextFor(table, "MINOR"))
	if len(queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(queries))
	}
	if queries[0].SubjectID != "001" {
		t.Fatalf("unexpected subject: %s", queries[0].SubjectID)
	}
}

func TestDuplicateCheckFirstOccurrence(t *testing.T) {
	table := parseTable(t, "subject_id,visit,test_name\n001,V1,HGB\n002,V1,HGB\n001,V1,HGB\n")
	rule := rules.Rule{Type: rules.TypeDuplicateCheck, KeyFields: []string{"subject_id", "visit", "test_name"}}
	queries := checkDuplicates(rule, contextFor(table, "MAJOR"))
	if len(queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(queries))
	}
	if queries[0].RecordIndex == nil || *queries[0].RecordIndex != 2 {
		t.Fatalf("unexpected record index: %+v", queries[0].RecordIndex)
	}
	if queries[0].DuplicateOfIndex == nil || *queries[0].DuplicateOfIndex != 0 {
		t.Fatalf("duplicate must reference first occurrence: %+v", queries[0].DuplicateOfIndex)
	}
}

func TestDuplicateCheckNMinusOne(t *testing.T) {
	table := parseTable(t, "subject_id,visit\n001,V1\n001,V1\n001,V1\n001,V1\n")
	rule := rules.Rule{Type: rules.TypeDuplicateCheck, KeyFields: []string{"subject_id", "visit"}}
	queries := checkDuplicates(rule, contextFor(table, "MAJOR"))
	if len(queries) != 3 {
		t.Fatalf("expected N-1 queries, got %d", len(queries))
	}
	for _, q := range queries {
		if *q.DuplicateOfIndex != 0 {
			t.Fatalf("all duplicates must point at index 0, got %d", *q.DuplicateOfIndex)
		}
	}
}

func TestPatternMustMatch(t *testing.T) {
	table := parseTable(t, "subject_id\nS-001\nX001\n")
	rule := rules.Rule{Type: rules.TypePatternMatch, Field: "subject_id", Pattern: `S-\d{3}$`}
	queries := checkPattern(rule, contextFor(table, "MINOR"))
	if len(queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(queries))
	}
	if queries[0].Value != "X001" {
		t.Fatalf("unexpected value: %s", queries[0].Value)
	}
}

func TestPatternMustNotMatch(t *testing.T) {
	table := parseTable(t, "subject_id,comment\n001,TEST DATA\n002,real entry\n")
	rule := rules.Rule{
		Type:        rules.TypePatternMatch,
		Field:       "comment",
		Pattern:     `TEST`,
		PatternType: "must_not_match",
	}
	queries := checkPattern(rule, contextFor(table, "INFO"))
	if len(queries) != 1 {
		t.Fatalf("expected 1 query, got %d", len(queries))
	}
	if queries[0].SubjectID != "001" {
		t.Fatalf("unexpected subject: %s", queries[0].SubjectID)
	}
}

func TestPatternBadRegexYieldsNothing(t *testing.T) {
	table := parseTable(t, "subject_id\n001\n")
	rule := rules.Rule{Type: rules.TypePatternMatch, Field: "subject_id", Pattern: "(["}
	if queries := checkPattern(rule, contextFor(table, "INFO")); len(queries) != 0 {
		t.Fatalf("expected no queries, got %d", len(queries))
	}
}

func TestRenderMessage(t *testing.T) {
	rec := records.Record{Fields: map[string]string{"subject_id": "001", "age": "25"}}
	got := renderMessage("Subject {subject_id}: {field} is {age} ({unknown})", rec, map[string]string{"field": "age"})
	want := "Subject 001: age is 25 ({unknown})"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestQueryIDStable(t *testing.T) {
	a := queryID("RV", "1", "age")
	b := queryID("RV", "1", "age")
	if a != b {
		t.Fatalf("query ids must be deterministic: %s vs %s", a, b)
	}
	if a == queryID("RV", "2", "age") {
		t.Fatalf("different inputs must produce different ids")
	}
}
