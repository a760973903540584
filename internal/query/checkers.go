package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"trialqc/internal/records"
	"trialqc/internal/rules"
)

// checkContext carries everything a checker needs besides the rule itself.
// The clock is injected so findings stay reproducible in tests.
type checkContext struct {
	records  []records.Record
	groups   []records.Group
	severity string
	template string
	now      time.Time
}

type checker func(rule rules.Rule, cc checkContext) []Query

var checkers = map[rules.Type]checker{
	rules.TypeMissingRequired:  checkMissingRequired,
	rules.TypeRangeCheck:       checkRange,
	rules.TypeLogicCheck:       checkLogic,
	rules.TypeConsistencyCheck: checkConsistency,
	rules.TypeDateLogic:        checkDateLogic,
	rules.TypeDuplicateCheck:   checkDuplicates,
	rules.TypePatternMatch:     checkPattern,
}

func checkMissingRequired(rule rules.Rule, cc checkContext) []Query {
	var queries []Query
	for _, rec := range cc.records {
		if !rules.Matches(rec, rule.Conditions) {
			continue
		}
		for _, field := range rule.Fields {
			if strings.TrimSpace(rec.Get(field)) != "" {
				continue
			}
			idx := rec.Index
			queries = append(queries, Query{
				QueryID:     queryID("MR", strconv.Itoa(rec.Index), field),
				SubjectID:   subjectID(rec),
				Visit:       visit(rec),
				Field:       field,
				Severity:    cc.severity,
				Message:     renderMessage(cc.template, rec, map[string]string{"field": field}),
				QueryType:   typeMissingRequired,
				Status:      StatusOpen,
				RecordIndex: &idx,
			})
		}
	}
	return queries
}

func checkRange(rule rules.Rule, cc checkContext) []Query {
	var queries []Query
	field := rule.Field
	for _, rec := range cc.records {
		if !rules.Matches(rec, rule.Conditions) {
			continue
		}
		raw := rec.Get(field)
		if !rec.Has(field) || raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			if rule.CheckNumericFormat {
				idx := rec.Index
				queries = append(queries, Query{
					QueryID:     queryID("NF", strconv.Itoa(rec.Index), field),
					SubjectID:   subjectID(rec),
					Visit:       visit(rec),
					Field:       field,
					Value:       raw,
					Severity:    cc.severity,
					Message:     fmt.Sprintf("Non-numeric value in numeric field %s: '%s'", field, raw),
					QueryType:   typeFormatViolation,
					Status:      StatusOpen,
					RecordIndex: &idx,
				})
			}
			continue
		}
		var details []string
		if rule.MinValue != nil && value < *rule.MinValue {
			details = append(details, fmt.Sprintf("below minimum %v", *rule.MinValue))
		}
		if rule.MaxValue != nil && value > *rule.MaxValue {
			details = append(details, fmt.Sprintf("above maximum %v", *rule.MaxValue))
		}
		if len(details) == 0 {
			continue
		}
		idx := rec.Index
		queries = append(queries, Query{
			QueryID:   queryID("RV", strconv.Itoa(rec.Index), field),
			SubjectID: subjectID(rec),
			Visit:     visit(rec),
			Field:     field,
			Value:     raw,
			Severity:  cc.severity,
			Message: renderMessage(cc.template, rec, map[string]string{
				"field":     field,
				"value":     raw,
				"violation": strings.Join(details, ", "),
			}),
			QueryType:        typeRangeViolation,
			Status:           StatusOpen,
			RecordIndex:      &idx,
			ViolationDetails: details,
		})
	}
	return queries
}

func checkLogic(rule rules.Rule, cc checkContext) []Query {
	expr, err := rules.ParseExpr(rule.Expression)
	if err != nil {
		// Validate already reported the bad expression; the rule yields nothing.
		return nil
	}
	var queries []Query
	for _, rec := range cc.records {
		if !rules.Matches(rec, rule.Conditions) {
			continue
		}
		if !expr.Eval(rec) {
			continue
		}
		idx := rec.Index
		queries = append(queries, Query{
			QueryID:         queryID("LC", strconv.Itoa(rec.Index), rule.Expression),
			SubjectID:       subjectID(rec),
			Visit:           visit(rec),
			Severity:        cc.severity,
			Message:         renderMessage(cc.template, rec, nil),
			QueryType:       typeLogicViolation,
			Status:          StatusOpen,
			RecordIndex:     &idx,
			LogicExpression: rule.Expression,
		})
	}
	return queries
}

func checkConsistency(rule rules.Rule, cc checkContext) []Query {
	field := rule.Field
	mode := rule.ConsistencyType
	if mode == "" {
		mode = "same_value"
	}
	var queries []Query
	for _, group := range cc.groups {
		if len(group.Records) < 2 {
			continue
		}
		var values []string
		var numbers []float64
		for _, rec := range group.Records {
			if !rules.Matches(rec, rule.Conditions) {
				continue
			}
			raw := rec.Get(field)
			if !rec.Has(field) || raw == "" {
				continue
			}
			values = append(values, raw)
			if mode == "increasing" || mode == "decreasing" {
				if num, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
					numbers = append(numbers, num)
				}
			}
		}
		if len(distinct(values)) < 2 {
			continue
		}
		violation := false
		var violationMsg string
		switch mode {
		case "same_value":
			violation = true
			violationMsg = fmt.Sprintf("Inconsistent values for %s: %s", field, strings.Join(values, ", "))
		case "increasing":
			if !monotonic(numbers, true) {
				violation = true
				violationMsg = fmt.Sprintf("Values not increasing for %s: %s", field, strings.Join(values, ", "))
			}
		case "decreasing":
			if !monotonic(numbers, false) {
				violation = true
				violationMsg = fmt.Sprintf("Values not decreasing for %s: %s", field, strings.Join(values, ", "))
			}
		}
		if !violation {
			continue
		}
		queries = append(queries, Query{
			QueryID:   queryID("CC", group.Key, field, strings.Join(values, "|")),
			SubjectID: group.Key,
			Field:     field,
			Severity:  cc.severity,
			Message: renderMessage(cc.template, records.Record{}, map[string]string{
				"field":         field,
				"values":        strings.Join(values, ", "),
				"subject_id":    group.Key,
				"violation_msg": violationMsg,
			}),
			QueryType:       typeConsistency,
			Status:          StatusOpen,
			Values:          values,
			ConsistencyType: mode,
		})
	}
	return queries
}

func checkDateLogic(rule rules.Rule, cc checkContext) []Query {
	switch rule.DateRule {
	case "chronological_order":
		return checkChronologicalOrder(rule, cc)
	case "future_date_check":
		return checkFutureDates(rule, cc)
	default:
		return nil
	}
}

func checkChronologicalOrder(rule rules.Rule, cc checkContext) []Query {
	var queries []Query
	for _, group := range cc.groups {
		for _, rec := range group.Records {
			if !rules.Matches(rec, rule.Conditions) {
				continue
			}
			var dates []time.Time
			var fields []string
			for _, field := range rule.DateFields {
				raw := rec.Get(field)
				if !rec.Has(field) || raw == "" {
					continue
				}
				parsed, err := rules.ParseDate(raw)
				if err != nil {
					continue
				}
				dates = append(dates, parsed)
				fields = append(fields, field)
			}
			for i := 0; i+1 < len(dates); i++ {
				if !dates[i].After(dates[i+1]) {
					continue
				}
				queries = append(queries, Query{
					QueryID:   queryID("DL", group.Key, strconv.Itoa(rec.Index), fields[i], fields[i+1]),
					SubjectID: group.Key,
					Severity:  cc.severity,
					Message: renderMessage(cc.template, rec, map[string]string{
						"field1": fields[i],
						"date1":  rec.Get(fields[i]),
						"field2": fields[i+1],
						"date2":  rec.Get(fields[i+1]),
					}),
					QueryType:     typeDateLogic,
					Status:        StatusOpen,
					ViolationType: "chronological_order",
				})
			}
		}
	}
	return queries
}

func checkFutureDates(rule rules.Rule, cc checkContext) []Query {
	field := rule.Field
	maxAllowed := cc.now.AddDate(0, 0, rule.MaxFutureDays)
	var queries []Query
	for _, rec := range cc.records {
		if !rules.Matches(rec, rule.Conditions) {
			continue
		}
		raw := rec.Get(field)
		if !rec.Has(field) || raw == "" {
			continue
		}
		parsed, err := rules.ParseDate(raw)
		if err != nil {
			continue
		}
		if !parsed.After(maxAllowed) {
			continue
		}
		idx := rec.Index
		queries = append(queries, Query{
			QueryID:   queryID("FD", strconv.Itoa(rec.Index), field),
			SubjectID: subjectID(rec),
			Field:     field,
			Value:     raw,
			Severity:  cc.severity,
			Message: renderMessage(cc.template, rec, map[string]string{
				"field": field,
				"value": raw,
			}),
			QueryType:     typeFutureDate,
			Status:        StatusOpen,
			RecordIndex:   &idx,
			ViolationType: "future_date_check",
		})
	}
	return queries
}

func checkDuplicates(rule rules.Rule, cc checkContext) []Query {
	if len(rule.KeyFields) == 0 {
		return nil
	}
	seen := map[string]int{}
	var queries []Query
	for _, rec := range cc.records {
		if !rules.Matches(rec, rule.Conditions) {
			continue
		}
		parts := make([]string, len(rule.KeyFields))
		for i, field := range rule.KeyFields {
			parts[i] = rec.Get(field)
		}
		key := strings.Join(parts, "\x1f")
		first, dup := seen[key]
		if !dup {
			seen[key] = rec.Index
			continue
		}
		idx := rec.Index
		firstIdx := first
		queries = append(queries, Query{
			QueryID:   queryID("DUP", strconv.Itoa(rec.Index), key),
			SubjectID: subjectID(rec),
			Severity:  cc.severity,
			Message: renderMessage(cc.template, rec, map[string]string{
				"key_fields": strings.Join(rule.KeyFields, ", "),
				"key_values": strings.Join(parts, ", "),
			}),
			QueryType:        typeDuplicateRecord,
			Status:           StatusOpen,
			RecordIndex:      &idx,
			DuplicateOfIndex: &firstIdx,
			KeyFields:        rule.KeyFields,
		})
	}
	return queries
}

func checkPattern(rule rules.Rule, cc checkContext) []Query {
	if rule.Pattern == "" {
		return nil
	}
	// Anchored at the start, matching the usual EDC edit-check convention.
	re, err := regexp.Compile("^(?:" + rule.Pattern + ")")
	if err != nil {
		return nil
	}
	patternType := rule.PatternType
	if patternType == "" {
		patternType = "must_match"
	}
	field := rule.Field
	var queries []Query
	for _, rec := range cc.records {
		if !rules.Matches(rec, rule.Conditions) {
			continue
		}
		raw := rec.Get(field)
		if !rec.Has(field) || raw == "" {
			continue
		}
		matched := re.MatchString(raw)
		violation := (patternType == "must_match" && !matched) ||
			(patternType == "must_not_match" && matched)
		if !violation {
			continue
		}
		idx := rec.Index
		queries = append(queries, Query{
			QueryID:   queryID("PT", strconv.Itoa(rec.Index), field),
			SubjectID: subjectID(rec),
			Field:     field,
			Value:     raw,
			Severity:  cc.severity,
			Message: renderMessage(cc.template, rec, map[string]string{
				"field":   field,
				"value":   raw,
				"pattern": rule.Pattern,
			}),
			QueryType:   typePatternViolation,
			Status:      StatusOpen,
			RecordIndex: &idx,
			Pattern:     rule.Pattern,
			PatternType: patternType,
		})
	}
	return queries
}

func subjectID(rec records.Record) string {
	if id := strings.TrimSpace(rec.Get("subject_id")); id != "" {
		return id
	}
	return "Unknown"
}

func visit(rec records.Record) string {
	if v := rec.Get("visit_name"); v != "" {
		return v
	}
	return rec.Get("visit")
}

func distinct(values []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func monotonic(values []float64, increasing bool) bool {
	for i := 0; i+1 < len(values); i++ {
		if increasing && values[i] > values[i+1] {
			return false
		}
		if !increasing && values[i] < values[i+1] {
			return false
		}
	}
	return true
}

// queryID derives a stable identifier from the rule kind and the offending
// location, so repeated runs over the same input name the same findings.
func queryID(prefix string, parts ...string) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(prefix+":"+strings.Join(parts, "|")))
	return prefix + "_" + strings.ReplaceAll(id.String(), "-", "")[:12]
}

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// renderMessage fills {name} placeholders from the extras map first, then the
// record's fields. Unknown placeholders are left untouched.
func renderMessage(template string, rec records.Record, extra map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		if extra != nil {
			if v, ok := extra[name]; ok {
				return v
			}
		}
		if rec.Has(name) {
			return rec.Get(name)
		}
		return match
	})
}
