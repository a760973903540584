package dupes

import (
	"regexp"
	"strings"
	"time"

	"trialqc/internal/records"
	"trialqc/internal/rules"
)

var (
	nonDigitRe    = regexp.MustCompile(`\D`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
	punctuationRe = regexp.MustCompile(`[.,\-_()]`)
)

var fieldWeights = map[string]float64{
	"first_name":            2.0,
	"last_name":             2.5,
	"date_of_birth":         3.0,
	"dob":                   3.0,
	"ssn":                   4.0,
	"medical_record_number": 4.0,
	"mrn":                   4.0,
	"email":                 2.0,
	"phone_number":          2.0,
	"phone":                 2.0,
	"address":               1.5,
	"gender":                1.0,
	"sex":                   1.0,
}

var nicknamePairs = map[[2]string]bool{
	{"james", "jim"}: true, {"james", "jimmy"}: true,
	{"william", "bill"}: true, {"william", "will"}: true,
	{"robert", "bob"}: true, {"robert", "rob"}: true,
	{"michael", "mike"}: true, {"david", "dave"}: true,
	{"richard", "rick"}: true, {"richard", "dick"}: true,
	{"thomas", "tom"}: true, {"christopher", "chris"}: true,
	{"matthew", "matt"}: true, {"anthony", "tony"}: true,
	{"elizabeth", "liz"}: true, {"elizabeth", "beth"}: true,
	{"patricia", "pat"}: true, {"jennifer", "jen"}: true,
	{"linda", "lynn"}: true, {"barbara", "barb"}: true,
	{"susan", "sue"}: true, {"jessica", "jess"}: true,
	{"sarah", "sara"}: true, {"sarah", "sally"}: true,
	{"karen", "kay"}: true, {"karen", "carrie"}: true,
	{"nancy", "nan"}: true, {"nancy", "nance"}: true,
	{"lisa", "lee"}: true, {"lisa", "lis"}: true,
	{"betty", "beth"}: true, {"betty", "bette"}: true,
	{"helen", "nell"}: true, {"helen", "ellie"}: true,
	{"sandra", "sandy"}: true, {"donna", "don"}: true,
	{"carol", "carrie"}: true, {"ruth", "rue"}: true,
	{"sharon", "shari"}: true, {"michelle", "shelly"}: true,
	{"laura", "laurie"}: true, {"kimberly", "kim"}: true,
	{"deborah", "deb"}: true, {"dorothy", "dot"}: true,
}

func normalizeValue(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = whitespaceRe.ReplaceAllString(normalized, " ")
	return punctuationRe.ReplaceAllString(normalized, "")
}

func isExactMatch(a, b records.Record, fields []string) bool {
	matches := 0
	total := 0
	for _, field := range fields {
		v1 := normalizeValue(a.Get(field))
		v2 := normalizeValue(b.Get(field))
		if v1 != "" && v2 != "" {
			total++
			if v1 == v2 {
				matches++
			}
		} else if v1 != "" || v2 != "" {
			total++
		}
	}
	return matches >= 2 && total > 0 && matches == total
}

// similarity returns a weighted 0-100 score over the fields both records
// populate. Fields without an explicit weight count as 1.
func similarity(a, b records.Record, fields []string) float64 {
	var totalWeight, weightedScore float64
	for _, field := range fields {
		v1 := normalizeValue(a.Get(field))
		v2 := normalizeValue(b.Get(field))
		if v1 == "" || v2 == "" {
			continue
		}
		weight := fieldWeights[field]
		if weight == 0 {
			weight = 1
		}
		totalWeight += weight
		weightedScore += fieldSimilarity(field, v1, v2) * weight
	}
	if totalWeight == 0 {
		return 0
	}
	return weightedScore / totalWeight
}

// fieldSimilarity scores two values on a 0-100 scale using a comparison
// appropriate to the field.
func fieldSimilarity(field, v1, v2 string) float64 {
	switch field {
	case "date_of_birth", "dob":
		return dateSimilarity(v1, v2)
	case "phone_number", "phone":
		return phoneSimilarity(v1, v2)
	case "first_name", "last_name":
		return nameSimilarity(v1, v2)
	default:
		return stringSimilarity(v1, v2)
	}
}

// parseDate also accepts the compact form normalization produces when it
// strips the separators out of an ISO date.
func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse("20060102", v); err == nil {
		return t, nil
	}
	return rules.ParseDate(v)
}

func dateSimilarity(v1, v2 string) float64 {
	d1, err1 := parseDate(v1)
	d2, err2 := parseDate(v2)
	if err1 != nil || err2 != nil {
		return stringSimilarity(v1, v2)
	}
	days := d1.Sub(d2) / (24 * time.Hour)
	if days < 0 {
		days = -days
	}
	switch {
	case days == 0:
		return 100
	case days <= 1:
		return 95
	case days <= 7:
		return 80
	case days <= 30:
		return 60
	case days <= 365:
		return 30
	default:
		return 0
	}
}

func phoneSimilarity(v1, v2 string) float64 {
	p1 := nonDigitRe.ReplaceAllString(v1, "")
	p2 := nonDigitRe.ReplaceAllString(v2, "")
	if p1 == p2 {
		return 100
	}
	if p1 == "" || p2 == "" {
		return 0
	}
	// Same number under a longer prefix, e.g. with a country code.
	if strings.Contains(p1, p2) || strings.Contains(p2, p1) {
		return 90
	}
	// Same local number under different area codes.
	if len(p1) >= 7 && len(p2) >= 7 && p1[len(p1)-7:] == p2[len(p2)-7:] {
		return 85
	}
	return stringSimilarity(v1, v2)
}

func nameSimilarity(v1, v2 string) float64 {
	if v1 == v2 {
		return 100
	}
	if isNicknameMatch(v1, v2) {
		return 95
	}
	if soundex(v1) == soundex(v2) {
		return 90
	}
	return stringSimilarity(v1, v2)
}

func isNicknameMatch(a, b string) bool {
	return nicknamePairs[[2]string{a, b}] || nicknamePairs[[2]string{b, a}]
}

func hasPhoneticMatch(a, b records.Record, nameFields []string) bool {
	for _, field := range nameFields {
		v1 := normalizeValue(a.Get(field))
		v2 := normalizeValue(b.Get(field))
		if v1 == "" || v2 == "" || v1 == v2 {
			continue
		}
		if soundex(v1) == soundex(v2) {
			return true
		}
	}
	return false
}

// stringSimilarity is a Levenshtein-based score on a 0-100 scale.
func stringSimilarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 100
	}
	if s1 == "" || s2 == "" {
		return 0
	}
	r1 := []rune(s1)
	r2 := []rune(s2)
	longest := len(r1)
	if len(r2) > longest {
		longest = len(r2)
	}
	return (1 - float64(levenshtein(r1, r2))/float64(longest)) * 100
}

func levenshtein(r1, r2 []rune) int {
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}
	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
