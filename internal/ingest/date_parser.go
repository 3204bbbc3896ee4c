package ingest

import (
	"fmt"
	"strings"
	"time"
)

// CODICE dates are xsd:date and may carry a zone offset ("2024-05-10+02:00").
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02Z07:00",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

var clockLayouts = []string{
	"15:04:05",
	"15:04:05Z07:00",
	"15:04:05.999999999",
	"15:04:05.999999999Z07:00",
	"15:04",
}

const endOfDayClock = "23:59:59"

// parseFeedDate parses a date field in loc unless the value carries its own offset.
func parseFeedDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// parseDeadline joins an EndDate with an optional EndTime. A missing time means
// the end of that day.
func parseDeadline(date, clock string, loc *time.Location) (time.Time, error) {
	day, err := parseFeedDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}

	clock = strings.TrimSpace(clock)
	if clock == "" {
		clock = endOfDayClock
	}

	for _, layout := range clockLayouts {
		c, err := time.ParseInLocation(layout, clock, day.Location())
		if err != nil {
			continue
		}
		return time.Date(day.Year(), day.Month(), day.Day(),
			c.Hour(), c.Minute(), c.Second(), c.Nanosecond(), c.Location()), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", clock)
}
