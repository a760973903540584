package rules

import "testing"

func TestParseDateFormats(t *testing.T) {
	cases := map[string]string{
		"2024-03-15":  "2024-03-15",
		"03/15/2024":  "2024-03-15",
		"15/03/2024":  "2024-03-15",
		"2024/03/15":  "2024-03-15",
		"15-Mar-2024": "2024-03-15",
	}
	for input, want := range cases {
		parsed, err := ParseDate(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got := parsed.Format("2006-01-02"); got != want {
			t.Fatalf("parse %q: got %s, want %s", input, got, want)
		}
	}
}

func TestParseDateAmbiguousPrefersUSOrder(t *testing.T) {
	parsed, err := ParseDate("03/04/2024")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Month() != 3 || parsed.Day() != 4 {
		t.Fatalf("expected March 4, got %v", parsed)
	}
}

func TestParseDateInvalid(t *testing.T) {
	if _, err := ParseDate("not-a-date"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ParseDate(""); err == nil {
		t.Fatalf("expected error")
	}
}
