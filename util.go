package main

import "strings"

// 50 from RFC
const maxChannelLength = 50

// Arbitrary. Something low enough we won't hit message limit.
const maxTopicLength = 300

const maxRealNameLength = 64

// canonicalizeNick converts the given nick to its canonical representation
// (which must be unique). RFC 2812 says nicknames are case-insensitive, so
// we compare by upper-cased form. The display form keeps the casing the
// client last supplied.
//
// Note: We don't check validity or strip whitespace.
func canonicalizeNick(n string) string {
	return strings.ToUpper(n)
}

// canonicalizeChannel converts the given channel to its canonical
// representation (which must be unique).
//
// Note: We don't check validity or strip whitespace.
func canonicalizeChannel(c string) string {
	return strings.ToUpper(c)
}

// isValidNick checks if a nickname is valid.
func isValidNick(maxLen int, n string) bool {
	if len(n) == 0 || len(n) > maxLen {
		return false
	}

	for i, char := range n {
		if char >= 'a' && char <= 'z' || char >= 'A' && char <= 'Z' {
			continue
		}

		if char >= '0' && char <= '9' {
			// No digits in first position.
			if i == 0 {
				return false
			}
			continue
		}

		if strings.ContainsRune("-_[]{}\\`^|", char) {
			// No specials in first position either.
			if i == 0 {
				return false
			}
			continue
		}

		return false
	}

	return true
}

// isValidUser checks if a user (USER command) is valid.
func isValidUser(maxLen int, u string) bool {
	if len(u) == 0 || len(u) > maxLen {
		return false
	}

	for _, char := range u {
		if char >= 'a' && char <= 'z' || char >= 'A' && char <= 'Z' {
			continue
		}

		if char >= '0' && char <= '9' {
			continue
		}

		return false
	}

	return true
}

func isValidRealName(s string) bool {
	// Arbitrary. Length only.
	return len(s) <= maxRealNameLength
}

// isValidChannel checks a channel name for validity.
func isValidChannel(c string) bool {
	if len(c) == 0 || len(c) > maxChannelLength {
		return false
	}

	if c[0] != '#' {
		return false
	}

	// After the #, anything except the separators RFC 2812 forbids.
	for _, char := range c[1:] {
		if char == ' ' || char == ',' || char == '\x00' || char == '\x07' {
			return false
		}
	}

	return true
}
