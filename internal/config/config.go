// Package config binds the process configuration from environment variables
// so main stays lean. Defaults live on struct tags; every value can be
// overridden through IDFORGE_* variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
)

// Config is the whole process configuration.
type Config struct {
	Addr string `default:":8080"`

	Directory    Directory
	Provisioning Provisioning
	Mailbox      Mailbox
	Notify       Notify
}

// Directory holds the connection settings of the directory store.
type Directory struct {
	// Addresses are LDAP URLs tried in order.
	Addresses []string
	BaseDN    string

	BindDN       string
	BindPassword string

	DialTimeout time.Duration `default:"10s"`
	MaxRetries  int           `default:"3"`
}

// Provisioning holds the business policy applied by the engine.
type Provisioning struct {
	MailDomain string

	DefaultContainer   string
	DisabledContainer  string
	ContainersByOffice map[string]string

	GlobalGroups []string
	OfficeGroups map[string][]string

	EmployeeIDMirrorAttribute string `default:"employeeNumber"`
	AllowNameEdits            bool
}

// Mailbox holds the remoting endpoint settings.
type Mailbox struct {
	Endpoint string

	KerberosRealm  string
	KerberosConfig string `default:"/etc/krb5.conf"`
	KerberosKeytab string
	Username       string
	Password       string

	Timeout time.Duration `default:"60s"`
}

// Notify holds the mail relay and routing settings.
type Notify struct {
	SMTPHost string
	SMTPPort int `default:"25"`
	From     string

	AdminAddresses  []string
	OfficeAddresses map[string][]string

	SendTimeout time.Duration `default:"30s"`
}

// FromEnv builds the configuration: struct-tag defaults first, then
// environment overrides.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	setString(&cfg.Addr, "IDFORGE_ADDR")

	setList(&cfg.Directory.Addresses, "IDFORGE_DIRECTORY_ADDRESSES")
	setString(&cfg.Directory.BaseDN, "IDFORGE_DIRECTORY_BASE_DN")
	setString(&cfg.Directory.BindDN, "IDFORGE_DIRECTORY_BIND_DN")
	setString(&cfg.Directory.BindPassword, "IDFORGE_DIRECTORY_BIND_PASSWORD")
	if err := setDuration(&cfg.Directory.DialTimeout, "IDFORGE_DIRECTORY_DIAL_TIMEOUT"); err != nil {
		return nil, err
	}
	if err := setInt(&cfg.Directory.MaxRetries, "IDFORGE_DIRECTORY_MAX_RETRIES"); err != nil {
		return nil, err
	}

	setString(&cfg.Provisioning.MailDomain, "IDFORGE_MAIL_DOMAIN")
	setString(&cfg.Provisioning.DefaultContainer, "IDFORGE_DEFAULT_CONTAINER")
	setString(&cfg.Provisioning.DisabledContainer, "IDFORGE_DISABLED_CONTAINER")
	setStringMap(&cfg.Provisioning.ContainersByOffice, "IDFORGE_CONTAINERS_BY_OFFICE")
	setList(&cfg.Provisioning.GlobalGroups, "IDFORGE_GLOBAL_GROUPS")
	setListMap(&cfg.Provisioning.OfficeGroups, "IDFORGE_OFFICE_GROUPS")
	setString(&cfg.Provisioning.EmployeeIDMirrorAttribute, "IDFORGE_EMPLOYEE_ID_MIRROR_ATTRIBUTE")
	setBool(&cfg.Provisioning.AllowNameEdits, "IDFORGE_ALLOW_NAME_EDITS")

	setString(&cfg.Mailbox.Endpoint, "IDFORGE_MAILBOX_ENDPOINT")
	setString(&cfg.Mailbox.KerberosRealm, "IDFORGE_KRB5_REALM")
	setString(&cfg.Mailbox.KerberosConfig, "IDFORGE_KRB5_CONFIG")
	setString(&cfg.Mailbox.KerberosKeytab, "IDFORGE_KRB5_KEYTAB")
	setString(&cfg.Mailbox.Username, "IDFORGE_MAILBOX_USERNAME")
	setString(&cfg.Mailbox.Password, "IDFORGE_MAILBOX_PASSWORD")
	if err := setDuration(&cfg.Mailbox.Timeout, "IDFORGE_MAILBOX_TIMEOUT"); err != nil {
		return nil, err
	}

	setString(&cfg.Notify.SMTPHost, "IDFORGE_SMTP_HOST")
	if err := setInt(&cfg.Notify.SMTPPort, "IDFORGE_SMTP_PORT"); err != nil {
		return nil, err
	}
	setString(&cfg.Notify.From, "IDFORGE_NOTIFY_FROM")
	setList(&cfg.Notify.AdminAddresses, "IDFORGE_ADMIN_ADDRESSES")
	setListMap(&cfg.Notify.OfficeAddresses, "IDFORGE_OFFICE_ADDRESSES")
	if err := setDuration(&cfg.Notify.SendTimeout, "IDFORGE_NOTIFY_SEND_TIMEOUT"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the engine cannot start with.
func (c *Config) Validate() error {
	if len(c.Directory.Addresses) == 0 {
		return fmt.Errorf("config: IDFORGE_DIRECTORY_ADDRESSES is required")
	}
	if c.Directory.BaseDN == "" {
		return fmt.Errorf("config: IDFORGE_DIRECTORY_BASE_DN is required")
	}
	if c.Provisioning.MailDomain == "" {
		return fmt.Errorf("config: IDFORGE_MAIL_DOMAIN is required")
	}
	if c.Provisioning.DefaultContainer == "" {
		return fmt.Errorf("config: IDFORGE_DEFAULT_CONTAINER is required")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}

// setList parses a comma-separated list.
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

// setStringMap parses "key=value;key=value".
func setStringMap(dst *map[string]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && name != "" {
			out[name] = value
		}
	}
	*dst = out
}

// setListMap parses "key=a,b;key=c".
func setListMap(dst *map[string][]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	out := make(map[string][]string)
	for _, pair := range strings.Split(v, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" {
			continue
		}
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out[name] = append(out[name], item)
			}
		}
	}
	*dst = out
}
