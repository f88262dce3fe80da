package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Mode selects which character set a normalized name is reduced to.
type Mode int

const (
	// ModeIdentifier keeps lowercase ASCII letters and digits only. Used for
	// short names (sAMAccountName).
	ModeIdentifier Mode = iota

	// ModeIdentifierDash additionally keeps '-'. Used for mail local-parts.
	ModeIdentifierDash

	// ModeDisplay preserves casing and keeps ASCII letters, digits, space
	// and '-'. Used for display and common names.
	ModeDisplay
)

// translitTable maps characters that survive Unicode decomposition unchanged
// to their conventional Latin expansions. Multi-character expansions are
// deliberate: "Müller" becomes "Mueller", not "Muller".
var translitTable = map[rune]string{
	'ä': "ae", 'ö': "oe", 'ü': "ue", 'ß': "ss",
	'Ä': "Ae", 'Ö': "Oe", 'Ü': "Ue", 'ẞ': "Ss",
	'æ': "ae", 'Æ': "Ae", 'ø': "oe", 'Ø': "Oe",
	'å': "aa", 'Å': "Aa",
	'đ': "d", 'Đ': "D", 'ð': "d", 'Ð': "D",
	'þ': "th", 'Þ': "Th",
	'ł': "l", 'Ł': "L",
	'œ': "oe", 'Œ': "Oe",
	'ı': "i", 'İ': "I",
}

// stripMarks removes combining marks left behind by canonical decomposition,
// turning "é" into "e" and "ñ" into "n".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize reduces a raw human name to a form safe for the given mode.
//
// The pipeline is transliteration, Unicode decomposition with combining-mark
// removal, then a mode-specific character whitelist. Input without any
// transliterable or decomposable characters passes through the first two
// steps unchanged. Normalize never fails; unsupported characters are simply
// dropped.
func Normalize(raw string, mode Mode) string {
	var expanded strings.Builder
	expanded.Grow(len(raw))
	for _, r := range raw {
		if repl, ok := translitTable[r]; ok {
			expanded.WriteString(repl)
			continue
		}
		expanded.WriteRune(r)
	}

	stripped, _, err := transform.String(stripMarks, expanded.String())
	if err != nil {
		// The chain cannot fail on valid UTF-8; fall back to the
		// transliterated input for anything else.
		stripped = expanded.String()
	}

	var out strings.Builder
	out.Grow(len(stripped))
	for _, r := range stripped {
		switch mode {
		case ModeIdentifier:
			if r >= 'A' && r <= 'Z' {
				out.WriteRune(r + ('a' - 'A'))
			} else if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				out.WriteRune(r)
			}
		case ModeIdentifierDash:
			if r >= 'A' && r <= 'Z' {
				out.WriteRune(r + ('a' - 'A'))
			} else if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
				out.WriteRune(r)
			}
		case ModeDisplay:
			if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') ||
				(r >= '0' && r <= '9') || r == ' ' || r == '-' {
				out.WriteRune(r)
			}
		}
	}

	return out.String()
}
