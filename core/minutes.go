package core

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MinInterval is the shortest reminder interval or tick period accepted (0.1 minutes)
const MinInterval = 6 * time.Second

var (
	minIntervalMinutes = decimal.RequireFromString("0.1")
	millisPerMinute    = decimal.NewFromInt(60_000)
	// largest whole number of minutes a time.Duration can hold
	maxIntervalMinutes = decimal.NewFromInt(math.MaxInt64 / int64(time.Minute))
)

// ParseMinutes parses a decimal number of minutes such as "1440" or "0.5" into a duration
// with millisecond precision. Values below MinInterval or beyond the range of time.Duration are rejected.
func ParseMinutes(field, value string) (time.Duration, error) {
	minutes, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, NewValidationError(field, "%q is not a number of minutes", value)
	}
	if minutes.LessThan(minIntervalMinutes) {
		return 0, NewValidationError(field, "must be at least %s minutes, got %s", minIntervalMinutes, minutes)
	}

	if minutes.GreaterThan(maxIntervalMinutes) {
		return 0, NewValidationError(field, "must be at most %s minutes, got %s", maxIntervalMinutes, minutes)
	}

	millis := minutes.Mul(millisPerMinute).Round(0).IntPart()
	return time.Duration(millis) * time.Millisecond, nil
}

// FormatMinutes renders a duration as a decimal number of minutes without float noise
func FormatMinutes(d time.Duration) string {
	return decimal.NewFromInt(d.Milliseconds()).Div(millisPerMinute).String()
}
