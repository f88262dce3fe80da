package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 10*time.Second, cfg.Directory.DialTimeout)
	assert.Equal(t, 3, cfg.Directory.MaxRetries)
	assert.Equal(t, "employeeNumber", cfg.Provisioning.EmployeeIDMirrorAttribute)
	assert.Equal(t, 25, cfg.Notify.SMTPPort)
	assert.Equal(t, 30*time.Second, cfg.Notify.SendTimeout)
	assert.False(t, cfg.Provisioning.AllowNameEdits)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("IDFORGE_ADDR", ":9090")
	t.Setenv("IDFORGE_DIRECTORY_ADDRESSES", "ldaps://dc1.corp.example.com, ldaps://dc2.corp.example.com")
	t.Setenv("IDFORGE_DIRECTORY_DIAL_TIMEOUT", "5s")
	t.Setenv("IDFORGE_CONTAINERS_BY_OFFICE", "NRW=OU=NRW,OU=People,DC=corp,DC=example,DC=com")
	t.Setenv("IDFORGE_OFFICE_GROUPS", "NRW=NRW-Staff,NRW-VPN;Berlin=Berlin-Staff")
	t.Setenv("IDFORGE_ALLOW_NAME_EDITS", "true")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"ldaps://dc1.corp.example.com", "ldaps://dc2.corp.example.com"}, cfg.Directory.Addresses)
	assert.Equal(t, 5*time.Second, cfg.Directory.DialTimeout)
	assert.Equal(t, map[string]string{"NRW": "OU=NRW,OU=People,DC=corp,DC=example,DC=com"}, cfg.Provisioning.ContainersByOffice)
	assert.Equal(t, map[string][]string{
		"NRW":    {"NRW-Staff", "NRW-VPN"},
		"Berlin": {"Berlin-Staff"},
	}, cfg.Provisioning.OfficeGroups)
	assert.True(t, cfg.Provisioning.AllowNameEdits)
}

func TestFromEnvBadDuration(t *testing.T) {
	t.Setenv("IDFORGE_MAILBOX_TIMEOUT", "soon")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IDFORGE_MAILBOX_TIMEOUT")
}

func TestValidate(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Error(t, cfg.Validate())

	cfg.Directory.Addresses = []string{"ldaps://dc1.corp.example.com"}
	cfg.Directory.BaseDN = "DC=corp,DC=example,DC=com"
	cfg.Provisioning.MailDomain = "example.com"
	cfg.Provisioning.DefaultContainer = "OU=People,DC=corp,DC=example,DC=com"
	assert.NoError(t, cfg.Validate())
}
