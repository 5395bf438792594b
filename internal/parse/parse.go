// Package parse converts the comma-separated id lists and date strings
// arriving on the query string into the few concrete types the
// handlers need. One function per target type.
package parse

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateOnly = "2006-01-02"

// IDList splits a comma-separated list of numeric ids. Empty input and
// empty items yield nil, meaning "filter absent".
func IDList(s string) ([]uint64, error) {
	var ids []uint64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DateOrNil parses an RFC3339 timestamp or a plain yyyy-mm-dd date.
// Empty input yields nil.
func DateOrNil(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DecimalOrNil parses a decimal amount. Empty input yields nil.
func DecimalOrNil(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
