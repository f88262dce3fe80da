package names

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// takenSet builds an ExistsFunc over a fixed set of used short names that
// also records every name it was asked about.
func takenSet(used ...string) (ExistsFunc, *[]string) {
	set := make(map[string]bool, len(used))
	for _, u := range used {
		set[u] = true
	}
	var checked []string
	fn := func(_ context.Context, shortName string) (bool, error) {
		checked = append(checked, shortName)
		return set[shortName], nil
	}
	return fn, &checked
}

func TestResolveShortNameFirstCandidateFree(t *testing.T) {
	exists, checked := takenSet()

	short, variant, err := ResolveShortName(context.Background(), "John", "Doe", exists)
	require.NoError(t, err)
	assert.Equal(t, "johdo", short)
	assert.Equal(t, 0, variant.Index)
	assert.Equal(t, "", variant.Suffix)
	assert.Equal(t, []string{"johdo"}, *checked)
}

func TestResolveShortNameFallsThroughInOrder(t *testing.T) {
	testCases := []struct {
		name          string
		taken         []string
		expectedShort string
		expectedIndex int
	}{
		{
			name:          "first taken",
			taken:         []string{"johdo"},
			expectedShort: "jodoe",
			expectedIndex: 1,
		},
		{
			name:          "first two taken",
			taken:         []string{"johdo", "jodoe"},
			expectedShort: "johdoe",
			expectedIndex: 2,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			exists, _ := takenSet(tc.taken...)
			short, variant, err := ResolveShortName(context.Background(), "John", "Doe", exists)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedShort, short)
			assert.Equal(t, tc.expectedIndex, variant.Index)
		})
	}
}

func TestResolveShortNameExhausted(t *testing.T) {
	exists, checked := takenSet("johdo", "jodoe", "johdoe")

	_, _, err := ResolveShortName(context.Background(), "John", "Doe", exists)
	require.Error(t, err)

	var exhausted *ShortNamesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, []string{"johdo", "jodoe", "johdoe"}, exhausted.Candidates)
	assert.Len(t, *checked, 3)
}

// Very short names collapse candidates; duplicates must be checked once and
// must not burn an attempt.
func TestResolveShortNameDuplicateCandidatesSkipped(t *testing.T) {
	// "Al" + "Bo": slices give albo, albo, albo.
	exists, checked := takenSet()
	short, variant, err := ResolveShortName(context.Background(), "Al", "Bo", exists)
	require.NoError(t, err)
	assert.Equal(t, "albo", short)
	assert.Equal(t, 0, variant.Index)
	assert.Equal(t, []string{"albo"}, *checked)

	// When the single distinct candidate is taken, resolution is exhausted
	// after one check.
	exists, checked = takenSet("albo")
	_, _, err = ResolveShortName(context.Background(), "Al", "Bo", exists)
	var exhausted *ShortNamesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, []string{"albo"}, exhausted.Candidates)
	assert.Len(t, *checked, 1)
}

func TestResolveShortNameNormalizesInput(t *testing.T) {
	exists, _ := takenSet()
	short, _, err := ResolveShortName(context.Background(), "Jörg", "Müller", exists)
	require.NoError(t, err)
	assert.Equal(t, "joemu", short)
}

func TestVariantFor(t *testing.T) {
	assert.Equal(t, Variant{Index: 0, Suffix: ""}, VariantFor(0))
	assert.Equal(t, Variant{Index: 1, Suffix: "1"}, VariantFor(1))
	assert.Equal(t, Variant{Index: 2, Suffix: "2"}, VariantFor(2))
}

func TestDeriveAttributes(t *testing.T) {
	testCases := []struct {
		name     string
		variant  Variant
		first    string
		last     string
		expected Attributes
	}{
		{
			name:    "unsuffixed variant",
			variant: VariantFor(0),
			first:   "John",
			last:    "Doe",
			expected: Attributes{
				CommonName:    "John Doe",
				PrincipalName: "john.doe@corp.example.com",
				EmailAddress:  "john.doe@corp.example.com",
				DisplayName:   "John Doe",
			},
		},
		{
			name:    "suffixed variant keeps display name clean",
			variant: VariantFor(1),
			first:   "John",
			last:    "Doe",
			expected: Attributes{
				CommonName:    "John Doe1",
				PrincipalName: "john.doe1@corp.example.com",
				EmailAddress:  "john.doe1@corp.example.com",
				DisplayName:   "John Doe",
			},
		},
		{
			name:    "transliterated name with dash surname",
			variant: VariantFor(2),
			first:   "Jörg",
			last:    "Meyer-Süß",
			expected: Attributes{
				CommonName:    "Joerg Meyer-Suess2",
				PrincipalName: "joerg.meyer-suess2@corp.example.com",
				EmailAddress:  "joerg.meyer-suess2@corp.example.com",
				DisplayName:   "Joerg Meyer-Suess",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.variant.DeriveAttributes(tc.first, tc.last, "corp.example.com")
			assert.Equal(t, tc.expected, got)

			// Pure function: repeated calls agree.
			assert.Equal(t, got, tc.variant.DeriveAttributes(tc.first, tc.last, "corp.example.com"))
		})
	}
}
