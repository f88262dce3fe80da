package directory

import (
	"fmt"
	"strconv"
	"time"
	"unicode/utf16"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// userAccountControl flags, from the Microsoft attribute documentation.
const (
	uacAccountDisabled int32 = 0x0002
	uacNormalAccount   int32 = 0x0200
)

// recordAttributes is the attribute set fetched for every record lookup.
var recordAttributes = []string{
	"objectGUID", "objectSid", "distinguishedName",
	"sAMAccountName", "userPrincipalName", "mail", "employeeID",
	"cn", "displayName", "givenName", "sn",
	"physicalDeliveryOfficeName", "company", "division", "department",
	"title", "description", "manager",
	"userAccountControl", "memberOf",
	"whenCreated", "whenChanged",
}

// entryToRecord converts an LDAP entry into a Record.
func entryToRecord(entry *ldap.Entry) (*Record, error) {
	if entry == nil {
		return nil, fmt.Errorf("entry cannot be nil")
	}

	rec := &Record{
		DN:            entry.DN,
		ShortName:     entry.GetAttributeValue("sAMAccountName"),
		PrincipalName: entry.GetAttributeValue("userPrincipalName"),
		EmailAddress:  entry.GetAttributeValue("mail"),
		EmployeeID:    entry.GetAttributeValue("employeeID"),
		CommonName:    entry.GetAttributeValue("cn"),
		DisplayName:   entry.GetAttributeValue("displayName"),
		GivenName:     entry.GetAttributeValue("givenName"),
		Surname:       entry.GetAttributeValue("sn"),
		Office:        entry.GetAttributeValue("physicalDeliveryOfficeName"),
		Company:       entry.GetAttributeValue("company"),
		Division:      entry.GetAttributeValue("division"),
		Department:    entry.GetAttributeValue("department"),
		Title:         entry.GetAttributeValue("title"),
		Description:   entry.GetAttributeValue("description"),
		ManagerDN:     entry.GetAttributeValue("manager"),
		MemberOf:      entry.GetAttributeValues("memberOf"),
	}

	if guidBytes := entry.GetRawAttributeValue("objectGUID"); len(guidBytes) > 0 {
		if guid, err := guidFromBytes(guidBytes); err == nil {
			rec.ObjectGUID = guid
		}
	} else {
		rec.ObjectGUID = entry.GetAttributeValue("objectGUID")
	}

	if sidBytes := entry.GetRawAttributeValue("objectSid"); len(sidBytes) > 0 {
		rec.ObjectSID = sidFromBytes(sidBytes)
	} else {
		rec.ObjectSID = entry.GetAttributeValue("objectSid")
	}

	if uacStr := entry.GetAttributeValue("userAccountControl"); uacStr != "" {
		if uac, err := strconv.ParseInt(uacStr, 10, 32); err == nil {
			rec.UserAccountControl = int32(uac)
			rec.Enabled = int32(uac)&uacAccountDisabled == 0
		}
	}

	if created := entry.GetAttributeValue("whenCreated"); created != "" {
		if t, err := time.Parse("20060102150405.0Z", created); err == nil {
			rec.WhenCreated = t
		}
	}
	if changed := entry.GetAttributeValue("whenChanged"); changed != "" {
		if t, err := time.Parse("20060102150405.0Z", changed); err == nil {
			rec.WhenChanged = t
		}
	}

	return rec, nil
}

// guidFromBytes converts the directory's mixed-endian binary objectGUID into
// its canonical string form. The first three groups are stored little-endian.
func guidFromBytes(b []byte) (string, error) {
	if len(b) != 16 {
		return "", fmt.Errorf("objectGUID must be 16 bytes, got %d", len(b))
	}

	reordered := []byte{
		b[3], b[2], b[1], b[0],
		b[5], b[4],
		b[7], b[6],
		b[8], b[9], b[10], b[11], b[12], b[13], b[14], b[15],
	}

	u, err := uuid.FromBytes(reordered)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// sidFromBytes converts a binary objectSid to its S-1-5-21-... form,
// returning empty on malformed input.
func sidFromBytes(b []byte) (sid string) {
	defer func() {
		if recover() != nil {
			sid = ""
		}
	}()
	if len(b) < 8 {
		return ""
	}
	return objectsid.Decode(b).String()
}

// EncodePassword encodes a cleartext credential the way the directory's
// unicodePwd attribute requires: the quoted password as UTF-16LE bytes. The
// write must travel over TLS.
func EncodePassword(password string) string {
	codes := utf16.Encode([]rune(`"` + password + `"`))
	encoded := make([]byte, len(codes)*2)
	for i, c := range codes {
		encoded[i*2] = byte(c)
		encoded[i*2+1] = byte(c >> 8)
	}
	return string(encoded)
}
