// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package slug derives filesystem-safe identifiers from free text.
package slug

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode"
)

// maxLen bounds the readable part of a slug.
const maxLen = 48

// Make lowercases s and replaces every run of non-alphanumeric characters
// with a single hyphen. Leading and trailing hyphens are dropped. Returns
// "" when s contains no letters or digits.
func Make(s string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	out := b.String()
	if len(out) > maxLen {
		out = strings.TrimRight(truncateRunes(out, maxLen), "-")
	}
	return out
}

// Hashed returns Make(s) followed by the first 8 hex characters of
// SHA-256(s). Distinct inputs that slugify identically still get distinct
// results. An input with no usable characters yields "q-<hash>".
func Hashed(s string) string {
	h := sha256.Sum256([]byte(s))
	base := Make(s)
	if base == "" {
		base = "q"
	}
	return fmt.Sprintf("%s-%x", base, h[:4])
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return s[:cut]
}
