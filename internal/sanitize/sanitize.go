// Package sanitize strips characters that are unsafe for the vault's
// replication path from text before it is persisted.
//
// The vault store and the JSON state documents are both replicated by
// downstream sync tooling that chokes on raw control characters and on
// invalid UTF-8 sequences. Sanitizing on every persisted write is a
// correctness safeguard, not cosmetics: a single corrupt note can wedge
// replication for the whole vault.
package sanitize

import (
	"strings"
	"unicode/utf8"
)

// String returns s with C0 control characters (other than tab, newline and
// carriage return), DEL, and invalid UTF-8 sequences removed.
func String(s string) string {
	if clean(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			// Invalid byte sequence; drop the byte.
			i++
			continue
		}
		if !allowed(r) {
			i += size
			continue
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}

// Bytes is the []byte form of String.
func Bytes(data []byte) []byte {
	return []byte(String(string(data)))
}

// clean reports whether s needs no rewriting, so the common case avoids
// an allocation.
func clean(s string) bool {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return false
		}
		if !allowed(r) {
			return false
		}
		i += size
	}
	return true
}

func allowed(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	if r < 0x20 || r == 0x7f {
		return false
	}
	return true
}
