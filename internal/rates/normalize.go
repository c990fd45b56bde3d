package rates

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// Normalize converts one raw record into a Point, or reports why the record
// is malformed. Malformed records are expected in the wild and are skipped by
// the loader, so failures here are ordinary errors, not aborts.
func Normalize(rec Record) (Point, error) {
	if len(rec) != 2 {
		return Point{}, fmt.Errorf("record has %d elements, want 2", len(rec))
	}

	t, err := parseEpochMillis(rec[0])
	if err != nil {
		return Point{}, fmt.Errorf("timestamp %q: %v", rec[0], err)
	}

	v, err := parseValue(rec[1])
	if err != nil {
		return Point{}, fmt.Errorf("value %q: %v", rec[1], err)
	}

	return Point{Time: t, Value: v}, nil
}

// parseEpochMillis interprets a scalar as milliseconds since the epoch and
// converts it to a local wall-clock instant at second precision.
//
// The conversion deliberately uses the process's local timezone with no
// stored offset, matching the behavior the rest of the system depends on.
func parseEpochMillis(raw any) (time.Time, error) {
	s, err := scalarText(raw)
	if err != nil {
		return time.Time{}, err
	}

	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("not an integer millisecond count")
	}
	return time.UnixMilli(ms).Truncate(time.Second), nil
}

// parseValue interprets a scalar as an exact decimal number.
//
// Textual values may use either '.' or ',' as the decimal separator and may
// carry thousands separators and non-breaking spaces. Normalization rules:
//   - strip all whitespace, including NBSP;
//   - a single comma with no period is the decimal separator;
//   - any separator immediately followed by exactly three digits and a
//     non-digit (or end of string) is a thousands separator and is dropped.
func parseValue(raw any) (decimal.Decimal, error) {
	s, err := scalarText(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	s = stripThousandsSeparators(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("not a decimal number")
	}
	return d, nil
}

// stripThousandsSeparators removes every '.' or ',' that is preceded by a
// digit and followed by exactly three digits and then a non-digit or the end
// of the string.
func stripThousandsSeparators(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c == '.' || c == ',') && i > 0 && isASCIIDigit(s[i-1]) && followedByThreeDigitGroup(s, i+1) {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func followedByThreeDigitGroup(s string, i int) bool {
	if i+3 > len(s) {
		return false
	}
	for j := i; j < i+3; j++ {
		if !isASCIIDigit(s[j]) {
			return false
		}
	}
	return i+3 == len(s) || !isASCIIDigit(s[i+3])
}

func isASCIIDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// scalarText renders a JSON scalar as text. Containers are rejected; numbers
// keep their exact wire representation (the payload is decoded with
// json.Decoder.UseNumber).
func scalarText(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("not a textual scalar")
	}
}
