// Package directory implements the identity record store on top of an
// LDAP-style directory service.
package directory

import (
	"context"
	"crypto/tls"
	"time"
)

// Key selects which unique attribute a lookup matches against.
type Key string

const (
	KeyShortName     Key = "sAMAccountName"
	KeyEmployeeID    Key = "employeeID"
	KeyPrincipalName Key = "userPrincipalName"
	KeyDN            Key = "distinguishedName"
)

// Record is a provisioned identity as stored in the directory. Records are
// never deleted; the only destructive-looking transition is Enabled = false.
type Record struct {
	// Store identity
	DN         string `json:"dn"`
	ObjectGUID string `json:"objectGUID,omitempty"`
	ObjectSID  string `json:"objectSID,omitempty"`

	// Unique handles
	ShortName     string `json:"shortName"`
	EmployeeID    string `json:"employeeID"`
	PrincipalName string `json:"principalName"`
	EmailAddress  string `json:"emailAddress"`

	// Name fields
	CommonName  string `json:"commonName"`
	DisplayName string `json:"displayName"`
	GivenName   string `json:"givenName,omitempty"`
	Surname     string `json:"surname,omitempty"`

	// Organizational fields
	Office      string `json:"office,omitempty"`
	Company     string `json:"company,omitempty"`
	Division    string `json:"division,omitempty"`
	Department  string `json:"department,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ManagerDN   string `json:"managerDN,omitempty"`

	// State
	Enabled            bool     `json:"enabled"`
	UserAccountControl int32    `json:"-"`
	MemberOf           []string `json:"memberOf,omitempty"`

	WhenCreated time.Time `json:"whenCreated,omitempty"`
	WhenChanged time.Time `json:"whenChanged,omitempty"`
}

// Change is one reconciled attribute difference, kept in evaluation order for
// audit and notification bodies.
type Change struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// Store is the directory surface the provisioning engine consumes. All
// operations are blocking network calls; callers own context deadlines.
type Store interface {
	// FindByKey looks a record up by one of its unique attributes and
	// returns a not-found StoreError on a miss.
	FindByKey(ctx context.Context, key Key, value string) (*Record, error)

	// FindByFilter returns the first record matching a raw filter, scoped
	// to a container DN, or domain-wide when container is empty.
	FindByFilter(ctx context.Context, filter, container string) (*Record, error)

	// Create adds a new entry at dn with the given attributes and reads it
	// back. Duplicate DNs or unique attributes surface as conflicts.
	Create(ctx context.Context, dn string, attrs map[string][]string) (*Record, error)

	// WriteAttributes replaces the given attribute values on an entry.
	WriteAttributes(ctx context.Context, dn string, attrs map[string][]string) error

	// Rename changes the entry's common name in place and returns the new
	// DN. The entry stays in its current container.
	Rename(ctx context.Context, dn, newCommonName string) (string, error)

	// AddToGroup adds the member DN to the named group. Adding an existing
	// member is not an error.
	AddToGroup(ctx context.Context, group, memberDN string) error

	// GroupExists reports whether a group with the given name exists.
	GroupExists(ctx context.Context, group string) (bool, error)

	// AttributeDefined reports whether the directory schema defines an
	// attribute. The result is stable for the life of the process.
	AttributeDefined(ctx context.Context, name string) (bool, error)

	// Close releases all pooled connections.
	Close() error
}

// Config holds connection settings for the LDAP store.
type Config struct {
	// Addresses are LDAP URLs (ldap:// or ldaps://) tried in order.
	Addresses []string
	BaseDN    string

	BindDN       string
	BindPassword string

	UseTLS      bool
	TLSConfig   *tls.Config
	DialTimeout time.Duration

	// Pool settings
	MaxConnections int
	MaxIdleTime    time.Duration

	// Retry settings
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64

	// SearchTimeout bounds individual search operations.
	SearchTimeout time.Duration
}

// withDefaults fills unset fields with conservative defaults.
func (c Config) withDefaults() Config {
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 5
	}
	if c.MaxIdleTime == 0 {
		c.MaxIdleTime = 5 * time.Minute
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = 2.0
	}
	if c.SearchTimeout == 0 {
		c.SearchTimeout = 30 * time.Second
	}
	return c
}
