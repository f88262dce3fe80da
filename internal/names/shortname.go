package names

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Variant identifies which of the three deterministic slicing strategies
// produced a short name, and carries the disambiguation suffix shared by
// every name-dependent attribute derived from it. Index 0 has an empty
// suffix; any other index suffixes its decimal value.
type Variant struct {
	Index  int
	Suffix string
}

// VariantFor returns the variant for a candidate index.
func VariantFor(index int) Variant {
	v := Variant{Index: index}
	if index > 0 {
		v.Suffix = strconv.Itoa(index)
	}
	return v
}

// ExistsFunc reports whether a short name is already taken in the directory.
type ExistsFunc func(ctx context.Context, shortName string) (bool, error)

// ShortNamesExhaustedError is returned when every candidate short name for a
// given first/last name pair is already in use.
type ShortNamesExhaustedError struct {
	GivenName  string
	Surname    string
	Candidates []string
}

func (e *ShortNamesExhaustedError) Error() string {
	return fmt.Sprintf("no free short name for %q %q: candidates %s all taken",
		e.GivenName, e.Surname, strings.Join(e.Candidates, ", "))
}

// head returns at most n characters from the start of s.
func head(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

// candidateSlices is the fixed order of slicing strategies: three of the
// first name plus two of the last, two plus three, then three plus three.
var candidateSlices = [3][2]int{{3, 2}, {2, 3}, {3, 3}}

// ResolveShortName generates the ordered short-name candidates for a name
// pair and returns the first one the directory reports unused, together with
// the variant that produced it. Candidates that collapse to the same string
// (very short names) are checked only once and keep their earliest index.
// When all distinct candidates are taken it returns a
// *ShortNamesExhaustedError; the caller must not create anything in that
// case.
func ResolveShortName(ctx context.Context, givenName, surname string, exists ExistsFunc) (string, Variant, error) {
	first := Normalize(givenName, ModeIdentifier)
	last := Normalize(surname, ModeIdentifier)

	seen := make(map[string]bool, len(candidateSlices))
	var attempted []string

	for index, slice := range candidateSlices {
		candidate := head(first, slice[0]) + head(last, slice[1])
		if candidate == "" || seen[candidate] {
			continue
		}
		seen[candidate] = true
		attempted = append(attempted, candidate)

		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", Variant{}, fmt.Errorf("short name availability check for %q: %w", candidate, err)
		}
		if !taken {
			return candidate, VariantFor(index), nil
		}
	}

	return "", Variant{}, &ShortNamesExhaustedError{
		GivenName:  givenName,
		Surname:    surname,
		Candidates: attempted,
	}
}

// Attributes holds the name-dependent directory attributes derived from a
// winning variant. DisplayName never carries a suffix; the other three share
// the variant's suffix so they stay mutually consistent.
type Attributes struct {
	CommonName    string
	PrincipalName string
	EmailAddress  string
	DisplayName   string
}

// DeriveAttributes computes the four name-dependent attributes for a
// first/last name pair under this variant. It is a pure function of its
// inputs.
func (v Variant) DeriveAttributes(givenName, surname, mailDomain string) Attributes {
	displayFirst := Normalize(givenName, ModeDisplay)
	displayLast := Normalize(surname, ModeDisplay)

	localPart := Normalize(givenName, ModeIdentifierDash) + "." +
		Normalize(surname, ModeIdentifierDash) + v.Suffix
	address := localPart + "@" + mailDomain

	return Attributes{
		CommonName:    strings.TrimSpace(displayFirst+" "+displayLast) + v.Suffix,
		PrincipalName: address,
		EmailAddress:  address,
		DisplayName:   strings.TrimSpace(displayFirst + " " + displayLast),
	}
}
