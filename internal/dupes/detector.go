package dupes

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"trialqc/internal/records"
)

// Input is the duplicate subject detector payload.
type Input struct {
	Data                string   `json:"data"`
	MatchingFields      []string `json:"matching_fields"`
	MatchingAlgorithm   string   `json:"matching_algorithm"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
}

type Match struct {
	Record          map[string]string `json:"record"`
	Index           int               `json:"index"`
	SimilarityScore float64           `json:"similarity_score"`
}

type Criterion struct {
	Value1     string  `json:"value1"`
	Value2     string  `json:"value2"`
	Similarity float64 `json:"similarity"`
	MatchType  string  `json:"match_type"`
}

type Group struct {
	GroupID           string               `json:"group_id"`
	MatchType         string               `json:"match_type"`
	Confidence        string               `json:"confidence"`
	Records           []Match              `json:"records"`
	MatchingCriteria  map[string]Criterion `json:"matching_criteria"`
	RecommendedAction string               `json:"recommended_action"`
}

type Statistics struct {
	TotalRecords           int            `json:"total_records"`
	DuplicateGroups        int            `json:"duplicate_groups"`
	TotalDuplicateRecords  int            `json:"total_duplicate_records"`
	UniqueRecords          int            `json:"unique_records"`
	DuplicationRate        float64        `json:"duplication_rate"`
	ConfidenceDistribution map[string]int `json:"confidence_distribution"`
	MatchTypeDistribution  map[string]int `json:"match_type_distribution"`
	MatchingFieldsUsed     []string       `json:"matching_fields_used"`
	LargestDuplicateGroup  int            `json:"largest_duplicate_group"`
	AvgGroupSize           float64        `json:"avg_group_size"`
}

type Recommendation struct {
	Priority        string `json:"priority"`
	Category        string `json:"category"`
	Issue           string `json:"issue"`
	Recommendation  string `json:"recommendation"`
	EstimatedImpact string `json:"estimated_impact"`
}

type DetectionSummary struct {
	TotalRecords                int      `json:"total_records"`
	DuplicateGroups             int      `json:"duplicate_groups"`
	PotentiallyDuplicateRecords int      `json:"potentially_duplicate_records"`
	MatchingAlgorithm           string   `json:"matching_algorithm"`
	MatchingFields              []string `json:"matching_fields"`
	SimilarityThreshold         float64  `json:"similarity_threshold"`
}

type Result struct {
	Success          bool              `json:"success"`
	DuplicatesFound  []Group           `json:"duplicates_found"`
	Errors           []string          `json:"errors"`
	Warnings         []string          `json:"warnings"`
	Statistics       *Statistics       `json:"statistics,omitempty"`
	Recommendations  []Recommendation  `json:"recommendations"`
	DetectionSummary *DetectionSummary `json:"detection_summary,omitempty"`
}

const (
	maxReturnedGroups = 100
	defaultThreshold  = 85.0
	phoneticFloor     = 70.0
)

func defaultMatchingFields() []string {
	return []string{
		"first_name", "last_name", "date_of_birth", "dob",
		"gender", "sex", "phone_number", "phone", "email",
		"address", "zip_code", "postal_code", "ssn",
		"medical_record_number", "mrn", "initials",
	}
}

// Run screens the record set for potential duplicate enrollments using the
// requested matching algorithm. Like every tool, it never returns an error.
func Run(input Input) *Result {
	if input.Data == "" {
		return failure("No data provided")
	}
	table, err := records.Parse(input.Data)
	if err == records.ErrNoData {
		return failure("No data provided")
	}
	if err != nil {
		return failure(fmt.Sprintf("Duplicate detection failed: %v", err))
	}
	if len(table.Records) == 0 {
		return failure("Data is empty")
	}

	result := &Result{
		Success:         true,
		Errors:          []string{},
		Warnings:        []string{},
		Recommendations: []Recommendation{},
	}

	matchingFields := input.MatchingFields
	if len(matchingFields) == 0 {
		matchingFields = defaultMatchingFields()
	}
	available := map[string]bool{}
	for _, header := range table.Headers {
		available[header] = true
	}
	var validFields []string
	for _, field := range matchingFields {
		if available[field] {
			validFields = append(validFields, field)
		}
	}
	if len(validFields) == 0 {
		result.Warnings = append(result.Warnings, "No specified matching fields found in data, using default fields")
		limit := len(table.Headers)
		if limit > 5 {
			limit = 5
		}
		validFields = append(validFields, table.Headers[:limit]...)
	}

	threshold := input.SimilarityThreshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	algorithm := input.MatchingAlgorithm
	if algorithm == "" {
		algorithm = "comprehensive"
	}

	var groups []Group
	switch algorithm {
	case "exact":
		groups = exactGroups(table.Records, validFields, nil)
	case "fuzzy":
		groups = fuzzyGroups(table.Records, validFields, threshold, nil, "fuzzy", "fuzzy")
	default:
		groups = comprehensiveGroups(table.Records, validFields, threshold)
	}

	stats := buildStatistics(table.Records, groups, validFields)
	result.Statistics = &stats
	result.Recommendations = buildRecommendations(groups, stats)

	shown := groups
	if len(shown) > maxReturnedGroups {
		shown = shown[:maxReturnedGroups]
	}
	if shown == nil {
		shown = []Group{}
	}
	result.DuplicatesFound = shown

	duplicateRecords := 0
	for _, g := range groups {
		duplicateRecords += len(g.Records)
	}
	result.DetectionSummary = &DetectionSummary{
		TotalRecords:                len(table.Records),
		DuplicateGroups:             len(groups),
		PotentiallyDuplicateRecords: duplicateRecords,
		MatchingAlgorithm:           algorithm,
		MatchingFields:              validFields,
		SimilarityThreshold:         threshold,
	}
	return result
}

func failure(message string) *Result {
	return &Result{
		Success:         false,
		DuplicatesFound: []Group{},
		Errors:          []string{message},
		Warnings:        []string{},
		Recommendations: []Recommendation{},
	}
}

func exactGroups(recs []records.Record, fields []string, exclude map[int]bool) []Group {
	var groups []Group
	processed := map[int]bool{}
	for i, rec := range recs {
		if processed[i] || exclude[i] {
			continue
		}
		matches := []Match{{Record: rec.Fields, Index: i, SimilarityScore: 100}}
		for j := i + 1; j < len(recs); j++ {
			if processed[j] || exclude[j] {
				continue
			}
			if isExactMatch(rec, recs[j], fields) {
				matches = append(matches, Match{Record: recs[j].Fields, Index: j, SimilarityScore: 100})
				processed[j] = true
			}
		}
		if len(matches) < 2 {
			continue
		}
		processed[i] = true
		groups = append(groups, Group{
			GroupID:           fmt.Sprintf("exact_%d", len(groups)+1),
			MatchType:         "exact",
			Confidence:        "high",
			Records:           matches,
			MatchingCriteria:  matchingCriteria(recs[matches[0].Index], recs[matches[1].Index], fields),
			RecommendedAction: "immediate_review",
		})
	}
	return groups
}

func fuzzyGroups(recs []records.Record, fields []string, threshold float64, exclude map[int]bool, groupPrefix, matchType string) []Group {
	var groups []Group
	processed := map[int]bool{}
	for i, rec := range recs {
		if processed[i] || exclude[i] {
			continue
		}
		matches := []Match{{Record: rec.Fields, Index: i, SimilarityScore: 100}}
		for j := i + 1; j < len(recs); j++ {
			if processed[j] || exclude[j] {
				continue
			}
			score := similarity(rec, recs[j], fields)
			if score >= threshold {
				matches = append(matches, Match{Record: recs[j].Fields, Index: j, SimilarityScore: score})
			}
		}
		if len(matches) < 2 {
			continue
		}
		sortMatches(matches)
		confidence := confidenceFor(matches[1].SimilarityScore)
		action := "priority_review"
		if confidence == "low" {
			action = "detailed_review"
		}
		for _, m := range matches[1:] {
			processed[m.Index] = true
		}
		processed[i] = true
		groups = append(groups, Group{
			GroupID:           fmt.Sprintf("%s_%d", groupPrefix, len(groups)+1),
			MatchType:         matchType,
			Confidence:        confidence,
			Records:           matches,
			MatchingCriteria:  matchingCriteria(recs[matches[0].Index], recs[matches[1].Index], fields),
			RecommendedAction: action,
		})
	}
	return groups
}

func comprehensiveGroups(recs []records.Record, fields []string, threshold float64) []Group {
	groups := exactGroups(recs, fields, nil)
	inExact := map[int]bool{}
	for _, g := range groups {
		for _, m := range g.Records {
			inExact[m.Index] = true
		}
	}
	groups = append(groups, fuzzyGroups(recs, fields, threshold, inExact, "comprehensive", "comprehensive_fuzzy")...)
	groups = append(groups, phoneticGroups(recs, fields, inExact)...)
	return groups
}

func phoneticGroups(recs []records.Record, fields []string, exclude map[int]bool) []Group {
	var nameFields []string
	for _, field := range fields {
		if containsFold(field, "name") {
			nameFields = append(nameFields, field)
		}
	}
	if len(nameFields) == 0 {
		return nil
	}
	var groups []Group
	processed := map[int]bool{}
	for i, rec := range recs {
		if processed[i] || exclude[i] {
			continue
		}
		matches := []Match{{Record: rec.Fields, Index: i, SimilarityScore: 100}}
		for j := i + 1; j < len(recs); j++ {
			if processed[j] || exclude[j] {
				continue
			}
			if !hasPhoneticMatch(rec, recs[j], nameFields) {
				continue
			}
			score := similarity(rec, recs[j], fields)
			if score >= phoneticFloor {
				matches = append(matches, Match{Record: recs[j].Fields, Index: j, SimilarityScore: score})
			}
		}
		if len(matches) < 2 {
			continue
		}
		for _, m := range matches[1:] {
			processed[m.Index] = true
		}
		processed[i] = true
		groups = append(groups, Group{
			GroupID:           fmt.Sprintf("phonetic_%d", len(groups)+1),
			MatchType:         "phonetic",
			Confidence:        "low",
			Records:           matches,
			MatchingCriteria:  matchingCriteria(recs[matches[0].Index], recs[matches[1].Index], fields),
			RecommendedAction: "manual_review",
		})
	}
	return groups
}

func confidenceFor(score float64) string {
	switch {
	case score >= 95:
		return "high"
	case score >= 90:
		return "medium"
	default:
		return "low"
	}
}

func sortMatches(matches []Match) {
	// Insertion sort keeps equal-score matches in index order.
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].SimilarityScore > matches[j-1].SimilarityScore; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
}

func matchingCriteria(a, b records.Record, fields []string) map[string]Criterion {
	criteria := map[string]Criterion{}
	for _, field := range fields {
		v1 := a.Get(field)
		v2 := b.Get(field)
		if v1 == "" || v2 == "" {
			continue
		}
		score := fieldSimilarity(field, v1, v2)
		matchType := "weak"
		if score == 100 {
			matchType = "exact"
		} else if score >= 80 {
			matchType = "partial"
		}
		criteria[field] = Criterion{
			Value1:     v1,
			Value2:     v2,
			Similarity: math.Round(score*100) / 100,
			MatchType:  matchType,
		}
	}
	return criteria
}

func buildStatistics(recs []records.Record, groups []Group, fields []string) Statistics {
	totalDuplicates := 0
	largest := 0
	for _, g := range groups {
		totalDuplicates += len(g.Records)
		if len(g.Records) > largest {
			largest = len(g.Records)
		}
	}
	confidence := map[string]int{"high": 0, "medium": 0, "low": 0}
	matchTypes := map[string]int{"exact": 0, "fuzzy": 0, "phonetic": 0, "comprehensive_fuzzy": 0}
	for _, g := range groups {
		confidence[g.Confidence]++
		matchTypes[g.MatchType]++
	}
	stats := Statistics{
		TotalRecords:           len(recs),
		DuplicateGroups:        len(groups),
		TotalDuplicateRecords:  totalDuplicates,
		UniqueRecords:          len(recs) - totalDuplicates + len(groups),
		ConfidenceDistribution: confidence,
		MatchTypeDistribution:  matchTypes,
		MatchingFieldsUsed:     fields,
		LargestDuplicateGroup:  largest,
	}
	if len(recs) > 0 {
		stats.DuplicationRate = math.Round(float64(totalDuplicates)/float64(len(recs))*100*100) / 100
	}
	if len(groups) > 0 {
		stats.AvgGroupSize = math.Round(float64(totalDuplicates)/float64(len(groups))*100) / 100
	}
	return stats
}

func buildRecommendations(groups []Group, stats Statistics) []Recommendation {
	recommendations := []Recommendation{}
	highConf := 0
	lowConf := 0
	phonetic := 0
	for _, g := range groups {
		switch g.Confidence {
		case "high":
			highConf++
		case "low":
			lowConf++
		}
		if g.MatchType == "phonetic" {
			phonetic++
		}
	}
	if highConf > 0 {
		recommendations = append(recommendations, Recommendation{
			Priority:        "HIGH",
			Category:        "High Confidence Duplicates",
			Issue:           fmt.Sprintf("%d high-confidence duplicate groups detected", highConf),
			Recommendation:  "Review and merge or exclude duplicate records immediately",
			EstimatedImpact: "Critical - affects data integrity",
		})
	}
	if stats.DuplicationRate > 5 {
		recommendations = append(recommendations, Recommendation{
			Priority:        "MEDIUM",
			Category:        "Duplication Rate",
			Issue:           fmt.Sprintf("Duplication rate is %.1f%%, above acceptable threshold", stats.DuplicationRate),
			Recommendation:  "Implement stronger enrollment screening procedures and real-time duplicate checking",
			EstimatedImpact: "High - reduces study efficiency",
		})
	}
	if stats.LargestDuplicateGroup > 2 {
		recommendations = append(recommendations, Recommendation{
			Priority:        "MEDIUM",
			Category:        "Large Duplicate Groups",
			Issue:           fmt.Sprintf("Largest duplicate group contains %d records", stats.LargestDuplicateGroup),
			Recommendation:  "Investigate potential systematic enrollment issues or data entry problems",
			EstimatedImpact: "Medium - may indicate process issues",
		})
	}
	if lowConf > 0 {
		recommendations = append(recommendations, Recommendation{
			Priority:        "LOW",
			Category:        "Low Confidence Matches",
			Issue:           fmt.Sprintf("%d low-confidence potential duplicates found", lowConf),
			Recommendation:  "Schedule manual review of potential duplicates to verify false positives",
			EstimatedImpact: "Low - primarily for verification",
		})
	}
	if phonetic > 0 {
		recommendations = append(recommendations, Recommendation{
			Priority:        "LOW",
			Category:        "Phonetic Matches",
			Issue:           fmt.Sprintf("%d phonetic name matches detected", phonetic),
			Recommendation:  "Review phonetic matches for potential name variations or spelling errors",
			EstimatedImpact: "Low - may help identify clerical errors",
		})
	}
	return recommendations
}

// Tool adapts Run to the registry contract.
func Tool() func(context.Context, []byte) any {
	return func(_ context.Context, raw []byte) any {
		var input Input
		if err := json.Unmarshal(raw, &input); err != nil {
			return failure(fmt.Sprintf("Invalid input: %v", err))
		}
		return Run(input)
	}
}
