package interpret

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	t.Run("should parse integer and decimal strings", func(t *testing.T) {
		cases := map[string]float64{
			"100":     100.0,
			"-12.50":  -12.5,
			" 42.1 ":  42.1,
			"1e3":     1000,
			"0":       0,
			"+7.25":   7.25,
			"1234.56": 1234.56,
		}
		for in, expected := range cases {
			got, err := ParseAmount(in)
			assert.NoError(t, err, in)
			assert.InDelta(t, expected, got, 1e-9, in)
		}
	})

	t.Run("should reject values that are not decimal numbers", func(t *testing.T) {
		for _, in := range []any{"", "   ", "abc", "$100", "1,000", "NaN", "Inf", "0x10", "1_000", nil, 100, 12.5} {
			_, err := ParseAmount(in)
			var convErr *ConversionError
			assert.True(t, errors.As(err, &convErr), "%#v should fail with ConversionError", in)
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Run("should parse the portal timestamp format", func(t *testing.T) {
		got, err := ParseTimestamp("2013-01-01 00:00:00")
		assert.NoError(t, err)
		assert.Equal(t, time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC), got)

		got, err = ParseTimestamp("2012-09-28 13:45:09")
		assert.NoError(t, err)
		assert.Equal(t, time.Date(2012, 9, 28, 13, 45, 9, 0, time.UTC), got)
	})

	t.Run("should reject any other shape", func(t *testing.T) {
		for _, in := range []any{
			"2013-01-01",
			"not-a-date",
			"",
			"2013-01-01T00:00:00",
			"2013-01-01 00:00:00Z",
			"2013-1-1 0:00:00",
			"2013-01-01 0:00:00",
			" 2013-01-01 00:00:00",
			"2013-13-01 00:00:00",
			"2013-02-30 00:00:00",
			nil,
			time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC),
		} {
			_, err := ParseTimestamp(in)
			var convErr *ConversionError
			assert.True(t, errors.As(err, &convErr), "%#v should fail with ConversionError", in)
		}
	})
}

func TestParseYesNo(t *testing.T) {
	t.Run("should accept Y and N in any case", func(t *testing.T) {
		for in, expected := range map[string]bool{"Y": true, "y": true, "N": false, "n": false} {
			got, err := ParseYesNo(in)
			assert.NoError(t, err)
			assert.Equal(t, expected, got, in)
		}
	})

	t.Run("should reject everything else", func(t *testing.T) {
		for _, in := range []any{"yes", "no", "", "T", "1", nil, true} {
			_, err := ParseYesNo(in)
			var convErr *ConversionError
			assert.True(t, errors.As(err, &convErr), "%#v should fail with ConversionError", in)
		}
	})
}
