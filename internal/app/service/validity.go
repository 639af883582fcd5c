package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MaxValidityDays caps a batch item's lifetime at roughly one hundred years.
const MaxValidityDays = 36500

// Validity is a batch item's lifetime in days. It decodes from a JSON number or
// a numeric string and never fails decoding; bad values surface from Days so a
// single malformed item does not reject the whole batch.
type Validity struct {
	raw string
	set bool
}

// ValidityDays builds a Validity for callers that already hold a number.
func ValidityDays(days int) Validity {
	return Validity{raw: strconv.Itoa(days), set: true}
}

func (v *Validity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Validity{}
		return nil
	}

	var s string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			s = string(data)
		}
	} else {
		s = string(data)
	}

	s = strings.TrimSpace(s)
	*v = Validity{raw: s, set: s != ""}
	return nil
}

func (v Validity) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	if n, err := strconv.Atoi(v.raw); err == nil {
		return []byte(strconv.Itoa(n)), nil
	}
	return json.Marshal(v.raw)
}

// IsSet reports whether a value was supplied.
func (v Validity) IsSet() bool {
	return v.set
}

// Days returns the number of days, or nil when unset.
func (v Validity) Days() (*int, error) {
	if !v.set {
		return nil, nil
	}
	n, err := strconv.Atoi(v.raw)
	if err != nil {
		return nil, fmt.Errorf("%w: validity %q is not a whole number of days", ErrInvalidExpiration, v.raw)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: validity must be a positive number of days, got %d", ErrInvalidExpiration, n)
	}
	if n > MaxValidityDays {
		return nil, fmt.Errorf("%w: validity must be at most %d days, got %d", ErrInvalidExpiration, MaxValidityDays, n)
	}
	return &n, nil
}
