package directory

import (
	"testing"
	"unicode/utf16"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry() *ldap.Entry {
	return &ldap.Entry{
		DN: "CN=John Doe,OU=Staff,DC=corp,DC=example,DC=com",
		Attributes: []*ldap.EntryAttribute{
			{Name: "objectGUID", ByteValues: [][]byte{{
				0x78, 0x56, 0x34, 0x12, 0x34, 0x12, 0x34, 0x12,
				0x12, 0x34, 0x56, 0x78, 0x90, 0x12, 0x34, 0x56,
			}}},
			{Name: "sAMAccountName", Values: []string{"johdo"}},
			{Name: "userPrincipalName", Values: []string{"john.doe@corp.example.com"}},
			{Name: "mail", Values: []string{"john.doe@corp.example.com"}},
			{Name: "employeeID", Values: []string{"E12345"}},
			{Name: "cn", Values: []string{"John Doe"}},
			{Name: "displayName", Values: []string{"John Doe"}},
			{Name: "givenName", Values: []string{"John"}},
			{Name: "sn", Values: []string{"Doe"}},
			{Name: "physicalDeliveryOfficeName", Values: []string{"NRW"}},
			{Name: "company", Values: []string{"Example Corp"}},
			{Name: "department", Values: []string{"Engineering"}},
			{Name: "title", Values: []string{"Engineer"}},
			{Name: "manager", Values: []string{"CN=Jane Boss,OU=Staff,DC=corp,DC=example,DC=com"}},
			{Name: "userAccountControl", Values: []string{"512"}},
			{Name: "memberOf", Values: []string{"CN=All Staff,OU=Groups,DC=corp,DC=example,DC=com"}},
			{Name: "whenCreated", Values: []string{"20240105093000.0Z"}},
		},
	}
}

func TestEntryToRecord(t *testing.T) {
	rec, err := entryToRecord(testEntry())
	require.NoError(t, err)

	assert.Equal(t, "CN=John Doe,OU=Staff,DC=corp,DC=example,DC=com", rec.DN)
	assert.Equal(t, "12345678-1234-1234-1234-567890123456", rec.ObjectGUID)
	assert.Equal(t, "johdo", rec.ShortName)
	assert.Equal(t, "E12345", rec.EmployeeID)
	assert.Equal(t, "john.doe@corp.example.com", rec.PrincipalName)
	assert.Equal(t, "John Doe", rec.DisplayName)
	assert.Equal(t, "NRW", rec.Office)
	assert.Equal(t, "CN=Jane Boss,OU=Staff,DC=corp,DC=example,DC=com", rec.ManagerDN)
	assert.True(t, rec.Enabled)
	assert.Equal(t, int32(512), rec.UserAccountControl)
	assert.Equal(t, 2024, rec.WhenCreated.Year())
}

func TestEntryToRecordDisabledAccount(t *testing.T) {
	entry := testEntry()
	for _, attr := range entry.Attributes {
		if attr.Name == "userAccountControl" {
			attr.Values = []string{"514"} // normal account + disabled bit
		}
	}

	rec, err := entryToRecord(entry)
	require.NoError(t, err)
	assert.False(t, rec.Enabled)
}

func TestEntryToRecordNil(t *testing.T) {
	_, err := entryToRecord(nil)
	assert.Error(t, err)
}

func TestGUIDFromBytes(t *testing.T) {
	guid, err := guidFromBytes([]byte{
		0x78, 0x56, 0x34, 0x12, 0x34, 0x12, 0x34, 0x12,
		0x12, 0x34, 0x56, 0x78, 0x90, 0x12, 0x34, 0x56,
	})
	require.NoError(t, err)
	assert.Equal(t, "12345678-1234-1234-1234-567890123456", guid)

	_, err = guidFromBytes([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestSIDFromBytesMalformed(t *testing.T) {
	assert.Equal(t, "", sidFromBytes(nil))
	assert.Equal(t, "", sidFromBytes([]byte{0x01}))
}

func TestEncodePassword(t *testing.T) {
	encoded := EncodePassword("Secret42!")

	// UTF-16LE of the quoted password.
	codes := utf16.Encode([]rune(`"Secret42!"`))
	require.Len(t, encoded, len(codes)*2)
	for i, c := range codes {
		assert.Equal(t, byte(c), encoded[i*2])
		assert.Equal(t, byte(c>>8), encoded[i*2+1])
	}
}
