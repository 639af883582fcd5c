package service

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	maxURLLength   = 2048
	maxAliasLength = 64
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Aliases travel as raw path segments, so only RFC 3986 unreserved
	// characters are allowed.
	_ = v.RegisterValidation("pathsegment", func(fl validator.FieldLevel) bool {
		return isUnreservedSegment(fl.Field().String())
	})
	return v
}

func isUnreservedSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case c == '-', c == '.', c == '_', c == '~':
		default:
			return false
		}
	}
	return true
}

var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ftp":   true,
}

// reservedAliases shadow fixed routes and can never be used as short codes.
var reservedAliases = map[string]bool{
	"api":           true,
	"analytics":     true,
	"shorten":       true,
	"batch-shorten": true,
	"health":        true,
}

// ValidateLongURL accepts absolute http, https and ftp URLs with a host.
func ValidateLongURL(raw string) error {
	if err := validate.Var(raw, fmt.Sprintf("required,max=%d,url", maxURLLength)); err != nil {
		return fmt.Errorf("%w: %q is not a valid URL", ErrInvalidURL, raw)
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %q is not a valid URL", ErrInvalidURL, raw)
	}
	if !allowedSchemes[strings.ToLower(u.Scheme)] {
		return fmt.Errorf("%w: scheme %q is not allowed, use http, https or ftp", ErrInvalidURL, u.Scheme)
	}
	return nil
}

// ValidateAlias checks a caller-chosen alias before it is used as a path segment.
func ValidateAlias(alias string) error {
	if strings.TrimSpace(alias) == "" {
		return fmt.Errorf("%w: alias must not be empty", ErrInvalidAlias)
	}
	if err := validate.Var(alias, fmt.Sprintf("max=%d", maxAliasLength)); err != nil {
		return fmt.Errorf("%w: alias must be at most %d characters", ErrInvalidAlias, maxAliasLength)
	}
	if err := validate.Var(alias, "pathsegment"); err != nil {
		return fmt.Errorf("%w: alias %q may only contain letters, digits, '-', '.', '_' and '~'", ErrInvalidAlias, alias)
	}
	if reservedAliases[strings.ToLower(alias)] {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidAlias, alias)
	}
	return nil
}

var expirationLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseExpirationDate parses an absolute expiration timestamp.
// Values without a zone are read as UTC; an empty string means no expiration.
func ParseExpirationDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q is not an ISO 8601 date or datetime", ErrInvalidExpiration, raw)
}
