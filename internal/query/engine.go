package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"trialqc/internal/records"
	"trialqc/internal/rules"
)

const subjectKeyField = "subject_id"

// Run evaluates the rule set against the CSV payload and returns the full
// finding report. It never returns an error: every failure mode is folded
// into the result per the taxonomy in the package docs.
func Run(input Input) *Result {
	return runAt(input, time.Now())
}

// runAt is Run with an injected clock, for deterministic tests.
func runAt(input Input, now time.Time) *Result {
	if strings.TrimSpace(input.Data) == "" {
		return failure("No data provided")
	}
	if input.QueryRules.Empty() {
		return failure("No query rules provided")
	}

	severityLevels := input.SeverityLevels
	if len(severityLevels) == 0 {
		severityLevels = rules.DefaultSeverityLevels()
	}

	result := &Result{
		Success:  true,
		Errors:   []string{},
		Warnings: []string{},
	}
	started := time.Now()

	table, err := records.Parse(input.Data)
	if err == records.ErrNoData {
		return failure("No data provided")
	}
	if err != nil {
		return failure(fmt.Sprintf("Query generation failed: %v", err))
	}
	result.Statistics.TotalRecordsChecked = len(table.Records)
	if len(table.Records) == 0 {
		res := failure("Data is empty")
		res.Statistics = result.Statistics
		return res
	}

	for _, detail := range rules.Validate(input.QueryRules, severityLevels) {
		result.Warnings = append(result.Warnings, detail.String())
	}

	groups := records.GroupBy(table.Records, subjectKeyField)

	result.Statistics.RulesTriggered = map[string]int{}
	affected := map[string]bool{}

	var queries []Query
	for _, category := range rules.CategoryNames(input.QueryRules) {
		for _, rule := range input.QueryRules.Categories[category] {
			ruleQueries := applyRule(rule, category, table.Records, groups, severityLevels, now)
			if len(ruleQueries) == 0 {
				continue
			}
			queries = append(queries, ruleQueries...)
			name := rule.Name
			if name == "" {
				name = "Unknown Rule"
			}
			result.Statistics.RulesTriggered[name] += len(ruleQueries)
			for _, q := range ruleQueries {
				if q.SubjectID != "" && q.SubjectID != "Unknown" {
					affected[q.SubjectID] = true
				}
			}
		}
	}

	if len(input.AutoCloseRules) > 0 {
		result.Statistics.AutoClosedQueries = autoClose(queries, input.AutoCloseRules, now)
	}

	result.Statistics.QueriesGenerated = len(queries)
	result.Statistics.AffectedSubjects = len(affected)
	for _, q := range queries {
		switch strings.ToUpper(q.Severity) {
		case "CRITICAL":
			result.Statistics.CriticalQueries++
		case "MAJOR":
			result.Statistics.MajorQueries++
		case "MINOR":
			result.Statistics.MinorQueries++
		default:
			result.Statistics.InfoQueries++
		}
	}
	result.Statistics.ProcessingTime = time.Since(started).Seconds()

	summary := buildSummary(queries, result.Statistics)
	result.Summary = &summary

	shown := queries
	if len(shown) > maxReturnedQueries {
		shown = shown[:maxReturnedQueries]
	}
	result.Queries = shown
	if result.Queries == nil {
		result.Queries = []Query{}
	}
	result.ProcessingInfo = &ProcessingInfo{
		TotalQueries:          len(queries),
		ShownQueries:          len(shown),
		ProcessingTimeSeconds: result.Statistics.ProcessingTime,
	}
	return result
}

func applyRule(rule rules.Rule, category string, recs []records.Record, groups []records.Group, severityLevels map[string]rules.SeverityLevel, now time.Time) []Query {
	check, ok := checkers[rule.Type]
	if !ok {
		return nil
	}
	severity := strings.ToUpper(rule.Severity)
	if severity == "" {
		severity = "INFO"
	}
	template := rule.Message
	if template == "" {
		template = "Data query generated"
	}
	queries := check(rule, checkContext{
		records:  recs,
		groups:   groups,
		severity: severity,
		template: template,
		now:      now,
	})
	name := rule.Name
	if name == "" {
		name = "Unknown Rule"
	}
	for i := range queries {
		queries[i].RuleName = name
		queries[i].RuleCategory = category
		queries[i].GeneratedDate = now
		if level, ok := severityLevels[severity]; ok {
			detail := level
			queries[i].SeverityDetails = &detail
		}
	}
	return queries
}

func failure(message string) *Result {
	return &Result{
		Success:  false,
		Queries:  []Query{},
		Errors:   []string{message},
		Warnings: []string{},
	}
}

// Tool adapts Run to the registry contract, folding defaults from service
// configuration into requests that omit severity levels or auto-close rules.
func Tool(defaultLevels map[string]rules.SeverityLevel, defaultCloseRules map[string]rules.AutoCloseRule) func(context.Context, []byte) any {
	return func(_ context.Context, raw []byte) any {
		var input Input
		if err := json.Unmarshal(raw, &input); err != nil {
			return failure(fmt.Sprintf("Invalid input: %v", err))
		}
		if len(input.SeverityLevels) == 0 {
			input.SeverityLevels = defaultLevels
		}
		if len(input.AutoCloseRules) == 0 {
			input.AutoCloseRules = defaultCloseRules
		}
		return Run(input)
	}
}
