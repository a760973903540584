package query

import (
	"strings"
	"testing"
)

func TestSummaryCounts(t *testing.T) {
	queries := []Query{
		{Severity: "CRITICAL", QueryType: typeRangeViolation, Status: StatusOpen},
		{Severity: "MAJOR", QueryType: typeRangeViolation, Status: StatusOpen},
		{Severity: "MAJOR", QueryType: typeMissingRequired, Status: StatusAutoClosed},
	}
	stats := Statistics{
		RulesTriggered:   map[string]int{"r1": 2, "r2": 1},
		AffectedSubjects: 2,
	}
	summary := buildSummary(queries, stats)
	if summary.BySeverity["CRITICAL"] != 1 || summary.BySeverity["MAJOR"] != 2 {
		t.Fatalf("unexpected severity counts: %v", summary.BySeverity)
	}
	if summary.ByType[typeRangeViolation] != 2 {
		t.Fatalf("unexpected type counts: %v", summary.ByType)
	}
	if summary.ByStatus[StatusAutoClosed] != 1 {
		t.Fatalf("unexpected status counts: %v", summary.ByStatus)
	}
	if summary.AffectedSubjects != 2 {
		t.Fatalf("unexpected affected subjects: %d", summary.AffectedSubjects)
	}
}

func TestSummaryTopRulesOrdered(t *testing.T) {
	stats := Statistics{RulesTriggered: map[string]int{}}
	for i, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		stats.RulesTriggered[name] = i + 1
	}
	summary := buildSummary(nil, stats)
	if len(summary.TopRules) != topRuleLimit {
		t.Fatalf("expected %d top rules, got %d", topRuleLimit, len(summary.TopRules))
	}
	if summary.TopRules[0].Rule != "l" || summary.TopRules[0].Count != 12 {
		t.Fatalf("unexpected top rule: %+v", summary.TopRules[0])
	}
	for i := 0; i+1 < len(summary.TopRules); i++ {
		if summary.TopRules[i].Count < summary.TopRules[i+1].Count {
			t.Fatalf("top rules must be sorted by count")
		}
	}
}

func TestRecommendationThresholds(t *testing.T) {
	if got := recommendation(map[string]int{"CRITICAL": 2}, 2); !strings.Contains(got, "Immediate attention") {
		t.Fatalf("unexpected recommendation: %s", got)
	}
	if got := recommendation(map[string]int{"MAJOR": 6}, 6); !strings.Contains(got, "High priority") {
		t.Fatalf("unexpected recommendation: %s", got)
	}
	if got := recommendation(map[string]int{"MINOR": 60}, 60); !strings.Contains(got, "Large number") {
		t.Fatalf("unexpected recommendation: %s", got)
	}
	if got := recommendation(map[string]int{"MINOR": 3}, 3); !strings.Contains(got, "manageable") {
		t.Fatalf("unexpected recommendation: %s", got)
	}
}

func TestSummaryDeterministic(t *testing.T) {
	queries := []Query{
		{Severity: "MINOR", QueryType: typePatternViolation, Status: StatusOpen},
	}
	stats := Statistics{RulesTriggered: map[string]int{"x": 1, "y": 1}}
	a := buildSummary(queries, stats)
	b := buildSummary(queries, stats)
	if a.TopRules[0] != b.TopRules[0] || a.Recommendation != b.Recommendation {
		t.Fatalf("summary must be deterministic")
	}
}
