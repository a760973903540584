package rules

import (
	"fmt"
	"time"
)

// dateFormats are tried in order; the first one that parses wins, so
// ambiguous day/month values resolve to the US form.
var dateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"2006/01/02",
	"2-Jan-2006",
}

// ParseDate parses a civil date in one of the supported formats. Dates are
// naive: no timezone information is attached beyond UTC.
func ParseDate(value string) (time.Time, error) {
	for _, format := range dateFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", value)
}
