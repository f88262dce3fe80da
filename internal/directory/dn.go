package directory

import (
	"strings"
)

// EscapeDNValue escapes a DN attribute value per RFC 4514: the characters
// , + " \ < > ; always, a leading #, leading and trailing spaces, and NUL
// bytes as \00.
func EscapeDNValue(value string) string {
	if value == "" {
		return value
	}

	var b strings.Builder
	b.Grow(len(value) + 8)

	for i, r := range value {
		switch r {
		case ',', '+', '"', '\\', '<', '>', ';':
			b.WriteRune('\\')
			b.WriteRune(r)
		case '#':
			if i == 0 {
				b.WriteRune('\\')
			}
			b.WriteRune(r)
		case ' ':
			if i == 0 || i == len(value)-1 {
				b.WriteRune('\\')
			}
			b.WriteRune(r)
		case 0:
			b.WriteString("\\00")
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

// UserDN builds the DN for a user entry with the given common name inside a
// container.
func UserDN(commonName, container string) string {
	return "CN=" + EscapeDNValue(commonName) + "," + container
}

// ParentDN strips the leading RDN from a DN. The input is assumed to be a
// well-formed DN produced by the directory itself.
func ParentDN(dn string) string {
	depth := 0
	for i := 0; i < len(dn); i++ {
		switch dn[i] {
		case '\\':
			i++ // skip escaped character
		case ',':
			if depth == 0 {
				return dn[i+1:]
			}
		}
	}
	return ""
}

// DNInContainer reports whether a DN sits underneath the given container,
// compared case-insensitively the way directories match DNs.
func DNInContainer(dn, container string) bool {
	if container == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(dn), strings.ToLower(container))
}
