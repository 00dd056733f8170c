package request

import (
	"math/big"
	"strings"
	"time"

	"github.com/remiblancher/certwizard/internal/validation"
)

// dateOnly is accepted alongside RFC 3339 and means midnight UTC.
const dateOnly = "2006-01-02"

// ParseSerial accepts decimal or hex with a 0x prefix.
func ParseSerial(text string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(text), 0)
	if !ok {
		return nil, validation.New(validation.InvalidSerial, "serial", text, "not a number")
	}
	if err := CheckSerial(n); err != nil {
		return nil, err
	}
	return n, nil
}

// ParseTime parses an RFC 3339 timestamp or a YYYY-MM-DD date for field.
// An empty text returns the zero time.
func ParseTime(field, text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, dateOnly} {
		if t, err := time.Parse(layout, text); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, validation.New(validation.InvalidValidity, field, text, "expected RFC 3339 time or YYYY-MM-DD")
}
