package dupes

import (
	"testing"
)

func TestRunNoData(t *testing.T) {
	result := Run(Input{})
	if result.Success {
		t.Fatalf("expected failure for empty input")
	}
	if len(result.Errors) != 1 || result.Errors[0] != "No data provided" {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
}

func TestExactDuplicates(t *testing.T) {
	data := "first_name,last_name,date_of_birth\n" +
		"John,Smith,1980-05-01\n" +
		"Mary,Jones,1975-02-10\n" +
		"John,Smith,1980-05-01\n"
	result := Run(Input{Data: data, MatchingAlgorithm: "exact"})
	if !result.Success {
		t.Fatalf("unexpected failure: %v", result.Errors)
	}
	if len(result.DuplicatesFound) != 1 {
		t.Fatalf("expected 1 group, got %d", len(result.DuplicatesFound))
	}
	group := result.DuplicatesFound[0]
	if group.MatchType != "exact" || group.Confidence != "high" {
		t.Fatalf("unexpected group classification: %s %s", group.MatchType, group.Confidence)
	}
	if len(group.Records) != 2 {
		t.Fatalf("expected 2 records in group, got %d", len(group.Records))
	}
	if group.Records[0].Index != 0 || group.Records[1].Index != 2 {
		t.Fatalf("unexpected member indices: %d %d", group.Records[0].Index, group.Records[1].Index)
	}
	if group.RecommendedAction != "immediate_review" {
		t.Fatalf("unexpected action: %s", group.RecommendedAction)
	}
}

func TestFuzzyMatchNearIdentical(t *testing.T) {
	data := "first_name,last_name,date_of_birth\n" +
		"Jonathan,Smith,1980-05-01\n" +
		"Jonathon,Smith,1980-05-01\n" +
		"Mary,Jones,1975-02-10\n"
	result := Run(Input{Data: data, MatchingAlgorithm: "fuzzy", SimilarityThreshold: 85})
	if !result.Success {
		t.Fatalf("unexpected failure: %v", result.Errors)
	}
	if len(result.DuplicatesFound) != 1 {
		t.Fatalf("expected 1 fuzzy group, got %d", len(result.DuplicatesFound))
	}
	score := result.DuplicatesFound[0].Records[1].SimilarityScore
	if score < 85 || score >= 100 {
		t.Fatalf("unexpected similarity score %v", score)
	}
}

func TestComprehensiveSkipsExactMembers(t *testing.T) {
	data := "first_name,last_name\n" +
		"John,Smith\n" +
		"John,Smith\n" +
		"Mary,Jones\n"
	result := Run(Input{Data: data})
	if !result.Success {
		t.Fatalf("unexpected failure: %v", result.Errors)
	}
	if len(result.DuplicatesFound) != 1 {
		t.Fatalf("expected only the exact group, got %d groups", len(result.DuplicatesFound))
	}
	if result.DuplicatesFound[0].MatchType != "exact" {
		t.Fatalf("unexpected match type %s", result.DuplicatesFound[0].MatchType)
	}
}

func TestPhoneticNicknames(t *testing.T) {
	if got := nameSimilarity("bob", "robert"); got != 95 {
		t.Fatalf("nickname similarity = %v, want 95", got)
	}
	if soundex("smith") != soundex("smyth") {
		t.Fatalf("expected smith and smyth to share a soundex code")
	}
	if soundex("robert") != "R163" {
		t.Fatalf("soundex(robert) = %s", soundex("robert"))
	}
}

func TestPhoneSimilarity(t *testing.T) {
	if got := phoneSimilarity("555-123-4567", "(555) 123-4567"); got != 100 {
		t.Fatalf("normalized phones should match exactly, got %v", got)
	}
	if got := phoneSimilarity("15551234567", "5551234567"); got != 90 {
		t.Fatalf("prefix-extended phone similarity = %v, want 90", got)
	}
	if got := phoneSimilarity("5551234567", "4441234567"); got != 85 {
		t.Fatalf("shared local number similarity = %v, want 85", got)
	}
}

func TestDateSimilarityBands(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"1980-05-01", "1980-05-01", 100},
		{"1980-05-01", "1980-05-02", 95},
		{"1980-05-01", "1980-05-06", 80},
		{"1980-05-01", "1980-05-25", 60},
		{"1980-05-01", "1980-11-01", 30},
		{"1980-05-01", "1990-05-01", 0},
	}
	for _, tc := range cases {
		if got := dateSimilarity(tc.a, tc.b); got != tc.want {
			t.Fatalf("dateSimilarity(%s, %s) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestStatisticsAndRecommendations(t *testing.T) {
	data := "first_name,last_name\n" +
		"John,Smith\n" +
		"John,Smith\n" +
		"Mary,Jones\n" +
		"Alice,Brown\n"
	result := Run(Input{Data: data, MatchingAlgorithm: "exact"})
	stats := result.Statistics
	if stats == nil {
		t.Fatalf("missing statistics")
	}
	if stats.TotalRecords != 4 || stats.DuplicateGroups != 1 || stats.TotalDuplicateRecords != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.UniqueRecords != 3 {
		t.Fatalf("unique records = %d, want 3", stats.UniqueRecords)
	}
	if stats.DuplicationRate != 50 {
		t.Fatalf("duplication rate = %v, want 50", stats.DuplicationRate)
	}
	foundHigh := false
	for _, rec := range result.Recommendations {
		if rec.Priority == "HIGH" {
			foundHigh = true
		}
	}
	if !foundHigh {
		t.Fatalf("expected a HIGH priority recommendation, got %+v", result.Recommendations)
	}
}

func TestUnknownMatchingFieldsFallBack(t *testing.T) {
	data := "colA,colB\nx,y\nx,y\n"
	result := Run(Input{Data: data, MatchingFields: []string{"nope"}, MatchingAlgorithm: "exact"})
	if !result.Success {
		t.Fatalf("unexpected failure: %v", result.Errors)
	}
	if len(result.Warnings) == 0 {
		t.Fatalf("expected a warning about missing matching fields")
	}
	if len(result.DuplicatesFound) != 1 {
		t.Fatalf("expected fallback fields to find the duplicate")
	}
}

func TestLevenshtein(t *testing.T) {
	if d := levenshtein([]rune("kitten"), []rune("sitting")); d != 3 {
		t.Fatalf("levenshtein(kitten, sitting) = %d, want 3", d)
	}
	if s := stringSimilarity("abc", "abc"); s != 100 {
		t.Fatalf("identical similarity = %v", s)
	}
	if s := stringSimilarity("abc", ""); s != 0 {
		t.Fatalf("empty similarity = %v", s)
	}
}
