package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

type ErrorDetail struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
	Hint    string `json:"hint"`
}

func (d ErrorDetail) String() string {
	if d.Hint == "" {
		return fmt.Sprintf("%s: %s", d.Field, d.Problem)
	}
	return fmt.Sprintf("%s: %s (%s)", d.Field, d.Problem, d.Hint)
}

// Validate inspects a rule set and reports configuration problems as
// warnings. A rule with problems still runs (and simply produces no findings
// when its type or pattern is unusable); evaluation is never aborted by a bad
// rule definition.
func Validate(set Set, severityLevels map[string]SeverityLevel) []ErrorDetail {
	var details []ErrorDetail
	for _, category := range CategoryNames(set) {
		for i, rule := range set.Categories[category] {
			ref := fmt.Sprintf("categories.%s[%d]", category, i)
			if !rule.Type.Known() {
				details = append(details, ErrorDetail{
					Field:   ref + ".type",
					Problem: fmt.Sprintf("unknown rule type %q", rule.Type),
					Hint:    "rule will produce no findings",
				})
			}
			severity := strings.ToUpper(rule.Severity)
			if severity != "" && severityLevels != nil {
				if _, ok := severityLevels[severity]; !ok {
					details = append(details, ErrorDetail{
						Field:   ref + ".severity",
						Problem: fmt.Sprintf("unknown severity %q", rule.Severity),
						Hint:    "counted as INFO, no SLA details attached",
					})
				}
			}
			if rule.Type == TypePatternMatch && rule.Pattern != "" {
				if _, err := regexp.Compile(rule.Pattern); err != nil {
					details = append(details, ErrorDetail{
						Field:   ref + ".pattern",
						Problem: "invalid regular expression",
						Hint:    err.Error(),
					})
				}
			}
			if rule.Type == TypeLogicCheck && rule.Expression != "" {
				if _, err := ParseExpr(rule.Expression); err != nil {
					details = append(details, ErrorDetail{
						Field:   ref + ".expression",
						Problem: "invalid expression",
						Hint:    err.Error(),
					})
				}
			}
		}
	}
	return details
}

// CategoryNames returns the category names in sorted order so rule
// application and reporting stay deterministic across runs.
func CategoryNames(set Set) []string {
	names := make([]string, 0, len(set.Categories))
	for name := range set.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
