package service

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

// FingerprintLength is the number of hex characters kept from the URL hash.
const FingerprintLength = 6

// Fingerprint derives the generated short code for a long URL.
// The same URL always yields the same code.
func Fingerprint(longURL string) string {
	sum := md5.Sum([]byte(longURL))
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}

var repeatedSlashes = regexp.MustCompile(`/{2,}`)

// BuildShortURL joins baseURL and code, collapsing runs of slashes after the
// scheme separator so "http://host//x" becomes "http://host/x".
func BuildShortURL(baseURL, code string) string {
	joined := strings.TrimRight(baseURL, "/") + "/" + code

	scheme, rest := "", joined
	if i := strings.Index(joined, "://"); i >= 0 {
		scheme, rest = joined[:i+3], joined[i+3:]
	}
	return scheme + repeatedSlashes.ReplaceAllString(rest, "/")
}
