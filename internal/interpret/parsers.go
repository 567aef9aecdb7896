package interpret

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the only date format the portal emits.
const TimestampLayout = "2006-01-02 15:04:05"

const (
	kindAmount    = "amount"
	kindTimestamp = "timestamp"
	kindYesNo     = "yes/no flag"
)

var (
	errNotString = errors.New("value is not a string")
	errEmpty     = errors.New("value is empty")
)

// time.Parse tolerates single-digit hours, so the shape is checked first.
var timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)

// ParseAmount converts a decimal string such as "100" or "-12.50" to a float.
func ParseAmount(v any) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, &ConversionError{Kind: kindAmount, Value: v, Err: errNotString}
	}

	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, &ConversionError{Kind: kindAmount, Value: v, Err: errEmpty}
	}
	if strings.ContainsAny(trimmed, "xX_") {
		return 0, &ConversionError{Kind: kindAmount, Value: v}
	}

	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, &ConversionError{Kind: kindAmount, Value: v, Err: err}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ConversionError{Kind: kindAmount, Value: v}
	}

	return f, nil
}

// ParseTimestamp converts "YYYY-MM-DD HH:MM:SS" to a UTC time.
func ParseTimestamp(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, &ConversionError{Kind: kindTimestamp, Value: v, Err: errNotString}
	}
	if !timestampPattern.MatchString(s) {
		return time.Time{}, &ConversionError{Kind: kindTimestamp, Value: v}
	}

	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, &ConversionError{Kind: kindTimestamp, Value: v, Err: err}
	}

	return t, nil
}

// ParseYesNo converts "Y" or "N" in either case to a bool.
func ParseYesNo(v any) (bool, error) {
	s, ok := v.(string)
	if !ok {
		return false, &ConversionError{Kind: kindYesNo, Value: v, Err: errNotString}
	}

	switch strings.ToLower(s) {
	case "y":
		return true, nil
	case "n":
		return false, nil
	}

	return false, &ConversionError{Kind: kindYesNo, Value: v}
}
