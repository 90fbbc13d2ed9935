// Package fingerprint computes the two identities of a bundle: a cheap
// content fingerprint and a normalized name key.
package fingerprint

import (
	"regexp"
	"strings"
)

var (
	// " (2)", "_2" and " copy" left behind by file managers and hosts
	copySuffixPattern = regexp.MustCompile(`(?i)(\s*\(\d+\)$)|(_\d+$)|(\s+copy$)`)

	// architecture, plugin format and bit-depth markers
	noiseTokenPattern = regexp.MustCompile(`(?i)[_\-\s]?(x64|x86|vst[23]?|\d{1,2}bit)`)

	nonAlphanumericPattern = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// NormalizeIdentity reduces a bundle name to the key used for duplicate
// grouping and learned rules. The result is lowercase and alphanumeric only.
//
// Token removal can expose new tokens (e.g. "vvstst"), so stripping repeats
// until the key stops changing; this makes the function idempotent.
func NormalizeIdentity(name string) string {
	key := copySuffixPattern.ReplaceAllString(strings.TrimSpace(name), "")
	for {
		next := noiseTokenPattern.ReplaceAllString(key, "")
		next = strings.ToLower(nonAlphanumericPattern.ReplaceAllString(next, ""))
		if next == key {
			return key
		}
		key = next
	}
}
