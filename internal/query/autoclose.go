package query

import (
	"sort"
	"time"

	"trialqc/internal/rules"
)

// autoClose flips OPEN findings to AUTO_CLOSED when every condition of an
// auto-close rule holds. The transition is one-way: an already closed finding
// is never touched again, so re-applying the same rules is a no-op. Rules are
// applied in name order to keep closure attribution stable.
func autoClose(queries []Query, closeRules map[string]rules.AutoCloseRule, now time.Time) int {
	names := make([]string, 0, len(closeRules))
	for name := range closeRules {
		names = append(names, name)
	}
	sort.Strings(names)

	closed := 0
	for _, name := range names {
		rule := closeRules[name]
		for i := range queries {
			if queries[i].Status != StatusOpen {
				continue
			}
			if !closeConditionsHold(queries[i], rule.Conditions, now) {
				continue
			}
			queries[i].Status = StatusAutoClosed
			reason := rule.Reason
			if reason == "" {
				reason = "Auto-closed by system rule"
			}
			queries[i].ClosureReason = reason
			closedAt := now
			queries[i].ClosureDate = &closedAt
			closed++
		}
	}
	return closed
}

func closeConditionsHold(q Query, conds rules.AutoCloseConditions, now time.Time) bool {
	if conds.SeverityBelow != nil && !containsString(conds.SeverityBelow, q.Severity) {
		return false
	}
	if conds.QueryType != nil && !containsString(conds.QueryType, q.QueryType) {
		return false
	}
	if conds.AgeDays != nil {
		ageDays := int(now.Sub(q.GeneratedDate).Hours() / 24)
		if ageDays < *conds.AgeDays {
			return false
		}
	}
	return true
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
