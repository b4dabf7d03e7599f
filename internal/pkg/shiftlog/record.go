package shiftlog

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

//DateLayout is the ISO 8601 calendar date format used for shift dates
const DateLayout = "2006-01-02"

const unknownTraffic = "unknown"

//Traffic is either a numeric congestion measure (minutes of travel time or an index) or unknown
type Traffic struct {
	value float64
	known bool
}

//UnknownTraffic is the sentinel used when no congestion measure could be obtained
var UnknownTraffic = Traffic{}

//KnownTraffic wraps a numeric congestion measure
func KnownTraffic(value float64) Traffic {
	return Traffic{value: value, known: true}
}

//ParseTraffic accepts a number or the unknown sentinel. Empty strings are treated as unknown.
func ParseTraffic(s string) (Traffic, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, unknownTraffic) {
		return UnknownTraffic, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return UnknownTraffic, fmt.Errorf("traffic value %q is neither a number nor %q", s, unknownTraffic)
	}

	return KnownTraffic(v), nil
}

//Value returns the numeric measure and whether it is known
func (t Traffic) Value() (float64, bool) {
	return t.value, t.known
}

//IsKnown reports whether a numeric measure is present
func (t Traffic) IsKnown() bool {
	return t.known
}

func (t Traffic) String() string {
	if !t.known {
		return unknownTraffic
	}
	return strconv.FormatFloat(t.value, 'f', -1, 64)
}

//Record is one logged work session
type Record struct {
	Date      string
	StartHour string
	EndHour   string
	Earnings  float64
	Weather   string
	Traffic   Traffic
}

//ValidationError describes a record that cannot be stored
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid shift record: %s %s", e.Field, e.Reason)
}

//Validate checks the invariants a record must satisfy before it is appended to a log
func Validate(r Record) error {
	if math.IsNaN(r.Earnings) || math.IsInf(r.Earnings, 0) {
		return &ValidationError{Field: "earnings", Reason: "must be a finite number"}
	}
	if r.Earnings < 0 {
		return &ValidationError{Field: "earnings", Reason: fmt.Sprintf("must not be negative, got %g", r.Earnings)}
	}

	for _, field := range []struct{ name, value string }{
		{"start_hour", r.StartHour}, {"end_hour", r.EndHour}, {"weather", r.Weather},
	} {
		if strings.IndexFunc(field.value, unicode.IsControl) >= 0 {
			return &ValidationError{Field: field.name, Reason: "must not contain control characters"}
		}
	}

	if _, err := ParseHour(r.StartHour); err != nil {
		return &ValidationError{Field: "start_hour", Reason: err.Error()}
	}

	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return &ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not a YYYY-MM-DD date", r.Date)}
	}

	return nil
}

//ParseHour resolves a time-of-day marker to an hour between 0 and 23. Accepted forms are
//"09:30 PM", "9 pm", "21:30" and "21".
func ParseHour(s string) (int, error) {
	value := strings.ToUpper(strings.TrimSpace(s))
	if value == "" {
		return 0, errors.New("hour is empty")
	}

	meridiem := ""
	if strings.HasSuffix(value, "AM") || strings.HasSuffix(value, "PM") {
		meridiem = value[len(value)-2:]
		value = strings.TrimSpace(value[:len(value)-2])
	}

	hourPart, minutePart, hasMinutes := value, "", false
	if idx := strings.IndexByte(value, ':'); idx >= 0 {
		hourPart, minutePart, hasMinutes = value[:idx], value[idx+1:], true
	}

	hour, err := parseDigits(hourPart)
	if err != nil {
		return 0, fmt.Errorf("%q is not a time of day", s)
	}

	if hasMinutes {
		minute, err := parseDigits(minutePart)
		if err != nil || len(minutePart) != 2 || minute > 59 {
			return 0, fmt.Errorf("%q has an invalid minute component", s)
		}
	}

	if meridiem != "" {
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("%q is outside the 12 hour clock", s)
		}
		if hour == 12 {
			hour = 0
		}
		if meridiem == "PM" {
			hour += 12
		}
		return hour, nil
	}

	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%q is outside 0-23", s)
	}

	return hour, nil
}

//parseDigits is strconv.Atoi without the optional sign
func parseDigits(s string) (int, error) {
	if s == "" || strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, fmt.Errorf("%q is not an unsigned number", s)
	}
	return strconv.Atoi(s)
}
