package query

import (
	"fmt"
	"sort"
)

const topRuleLimit = 10

// buildSummary is a pure function over the finalized finding list; the same
// findings always produce the same summary.
func buildSummary(queries []Query, stats Statistics) Summary {
	summary := Summary{
		BySeverity:       map[string]int{},
		ByType:           map[string]int{},
		ByStatus:         map[string]int{},
		TopRules:         []RuleCount{},
		AffectedSubjects: stats.AffectedSubjects,
	}

	for _, q := range queries {
		severity := q.Severity
		if severity == "" {
			severity = "INFO"
		}
		summary.BySeverity[severity]++
		queryType := q.QueryType
		if queryType == "" {
			queryType = "unknown"
		}
		summary.ByType[queryType]++
		status := q.Status
		if status == "" {
			status = "UNKNOWN"
		}
		summary.ByStatus[status]++
	}

	top := make([]RuleCount, 0, len(stats.RulesTriggered))
	for rule, count := range stats.RulesTriggered {
		top = append(top, RuleCount{Rule: rule, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Rule < top[j].Rule
	})
	if len(top) > topRuleLimit {
		top = top[:topRuleLimit]
	}
	summary.TopRules = top

	summary.Recommendation = recommendation(summary.BySeverity, len(queries))
	return summary
}

func recommendation(bySeverity map[string]int, total int) string {
	critical := bySeverity["CRITICAL"]
	major := bySeverity["MAJOR"]
	switch {
	case critical > 0:
		return fmt.Sprintf("Immediate attention required: %d critical queries need resolution within 24 hours.", critical)
	case major > 5:
		return fmt.Sprintf("High priority: %d major queries require attention within 72 hours.", major)
	case total > 50:
		return "Large number of queries generated. Consider reviewing data collection processes."
	default:
		return "Query volume is manageable. Continue with routine data cleaning process."
	}
}
