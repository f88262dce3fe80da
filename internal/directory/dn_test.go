package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeDNValue(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain value",
			input:    "John Doe",
			expected: "John Doe",
		},
		{
			name:     "comma escaped",
			input:    "Doe, John",
			expected: "Doe\\, John",
		},
		{
			name:     "leading and trailing spaces",
			input:    " John ",
			expected: "\\ John\\ ",
		},
		{
			name:     "leading hash",
			input:    "#1",
			expected: "\\#1",
		},
		{
			name:     "special characters",
			input:    `a+b"c\d<e>f;g`,
			expected: `a\+b\"c\\d\<e\>f\;g`,
		},
		{
			name:     "empty",
			input:    "",
			expected: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, EscapeDNValue(tc.input))
		})
	}
}

func TestUserDN(t *testing.T) {
	assert.Equal(t, "CN=John Doe,OU=Staff,DC=corp,DC=example,DC=com",
		UserDN("John Doe", "OU=Staff,DC=corp,DC=example,DC=com"))
	assert.Equal(t, "CN=Doe\\, John,OU=Staff,DC=corp,DC=example,DC=com",
		UserDN("Doe, John", "OU=Staff,DC=corp,DC=example,DC=com"))
}

func TestParentDN(t *testing.T) {
	assert.Equal(t, "OU=Staff,DC=corp,DC=example,DC=com",
		ParentDN("CN=John Doe,OU=Staff,DC=corp,DC=example,DC=com"))

	// Escaped comma in the RDN must not split early.
	assert.Equal(t, "OU=Staff,DC=corp,DC=example,DC=com",
		ParentDN("CN=Doe\\, John,OU=Staff,DC=corp,DC=example,DC=com"))

	assert.Equal(t, "", ParentDN("DC=com"))
}

func TestDNInContainer(t *testing.T) {
	dn := "CN=John Doe,OU=Disabled,DC=corp,DC=example,DC=com"

	assert.True(t, DNInContainer(dn, "OU=Disabled,DC=corp,DC=example,DC=com"))
	assert.True(t, DNInContainer(dn, "ou=disabled,dc=corp,dc=example,dc=com"))
	assert.False(t, DNInContainer(dn, "OU=Staff,DC=corp,DC=example,DC=com"))
	assert.False(t, DNInContainer(dn, ""))
}
