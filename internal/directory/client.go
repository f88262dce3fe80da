package directory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// ldapStore implements Store over pooled LDAP connections with retry on
// transient failures.
type ldapStore struct {
	cfg    Config
	pool   *connPool
	logger *slog.Logger

	schemaMu sync.Mutex
	schemaNC string
}

// Open creates a Store for the configured directory. The first connection is
// established lazily on the first operation.
func Open(cfg Config, logger *slog.Logger) (Store, error) {
	cfg = cfg.withDefaults()
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("directory: at least one address is required")
	}
	if cfg.BaseDN == "" {
		return nil, fmt.Errorf("directory: base DN is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("subsystem", "directory")

	return &ldapStore{
		cfg:    cfg,
		pool:   newConnPool(cfg, logger),
		logger: logger,
	}, nil
}

func (s *ldapStore) Close() error {
	s.pool.close()
	return nil
}

// withConn runs fn on a pooled connection, retrying transient failures with
// exponential backoff. Connections that error out are discarded rather than
// returned to the pool.
func (s *ldapStore) withConn(ctx context.Context, op, target string, fn func(*ldap.Conn) error) error {
	backoff := s.cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Debug("retrying directory operation",
				"operation", op,
				"target", target,
				"attempt", attempt,
				"backoff_ms", backoff.Milliseconds())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if next := time.Duration(float64(backoff) * s.cfg.BackoffFactor); next < s.cfg.MaxBackoff {
				backoff = next
			} else {
				backoff = s.cfg.MaxBackoff
			}
		}

		conn, err := s.pool.get(ctx)
		if err != nil {
			lastErr = err
			if !IsRetryable(err) {
				return WrapLDAP(op, target, err)
			}
			continue
		}

		err = fn(conn.raw)
		if err == nil {
			s.pool.put(conn)
			return nil
		}

		lastErr = err
		if !IsRetryable(err) {
			s.pool.put(conn)
			return WrapLDAP(op, target, err)
		}
		s.pool.discard(conn)
	}

	s.logger.Error("directory operation failed after retries",
		"operation", op,
		"target", target,
		"error", lastErr)
	return WrapLDAP(op, target, lastErr)
}

// searchOne performs a search expected to return at most one entry.
func (s *ldapStore) searchOne(ctx context.Context, op, target, baseDN string, scope, sizeLimit int, filter string, attrs []string) (*ldap.Entry, error) {
	req := ldap.NewSearchRequest(
		baseDN,
		scope,
		ldap.NeverDerefAliases,
		sizeLimit,
		int(s.cfg.SearchTimeout.Seconds()),
		false,
		filter,
		attrs,
		nil,
	)

	var result *ldap.SearchResult
	err := s.withConn(ctx, op, target, func(conn *ldap.Conn) error {
		var searchErr error
		result, searchErr = conn.Search(req)
		return searchErr
	})
	if err != nil {
		// A missing search base is a lookup miss, not a server fault.
		if IsNotFound(err) {
			return nil, NotFoundError(op, target)
		}
		return nil, err
	}

	if len(result.Entries) == 0 {
		return nil, NotFoundError(op, target)
	}
	return result.Entries[0], nil
}

func (s *ldapStore) FindByKey(ctx context.Context, key Key, value string) (*Record, error) {
	if value == "" {
		return nil, fmt.Errorf("directory: lookup value cannot be empty")
	}

	var entry *ldap.Entry
	var err error

	if key == KeyDN {
		entry, err = s.searchOne(ctx, "find_by_dn", value,
			value, ldap.ScopeBaseObject, 1,
			"(objectClass=user)", recordAttributes)
	} else {
		filter := fmt.Sprintf("(&(objectClass=user)(!(objectClass=computer))(%s=%s))",
			key, ldap.EscapeFilter(value))
		entry, err = s.searchOne(ctx, "find_by_"+string(key), value,
			s.cfg.BaseDN, ldap.ScopeWholeSubtree, 1,
			filter, recordAttributes)
	}
	if err != nil {
		return nil, err
	}

	return entryToRecord(entry)
}

func (s *ldapStore) FindByFilter(ctx context.Context, filter, container string) (*Record, error) {
	baseDN := container
	if baseDN == "" {
		baseDN = s.cfg.BaseDN
	}

	entry, err := s.searchOne(ctx, "find_by_filter", filter,
		baseDN, ldap.ScopeWholeSubtree, 1,
		filter, recordAttributes)
	if err != nil {
		return nil, err
	}
	return entryToRecord(entry)
}

func (s *ldapStore) Create(ctx context.Context, dn string, attrs map[string][]string) (*Record, error) {
	req := ldap.NewAddRequest(dn, nil)
	for name, values := range attrs {
		req.Attribute(name, values)
	}

	err := s.withConn(ctx, "create", dn, func(conn *ldap.Conn) error {
		return conn.Add(req)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("directory entry created", "dn", dn)
	return s.FindByKey(ctx, KeyDN, dn)
}

func (s *ldapStore) WriteAttributes(ctx context.Context, dn string, attrs map[string][]string) error {
	if len(attrs) == 0 {
		return nil
	}

	req := ldap.NewModifyRequest(dn, nil)
	for name, values := range attrs {
		req.Replace(name, values)
	}

	err := s.withConn(ctx, "write_attributes", dn, func(conn *ldap.Conn) error {
		return conn.Modify(req)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("directory attributes written",
		"dn", dn,
		"attribute_count", len(attrs))
	return nil
}

func (s *ldapStore) Rename(ctx context.Context, dn, newCommonName string) (string, error) {
	newRDN := "CN=" + EscapeDNValue(newCommonName)
	req := ldap.NewModifyDNRequest(dn, newRDN, true, "")

	err := s.withConn(ctx, "rename", dn, func(conn *ldap.Conn) error {
		return conn.ModifyDN(req)
	})
	if err != nil {
		return "", err
	}

	newDN := UserDN(newCommonName, ParentDN(dn))
	s.logger.Info("directory entry renamed",
		"old_dn", dn,
		"new_dn", newDN)
	return newDN, nil
}

func (s *ldapStore) findGroupDN(ctx context.Context, group string) (string, error) {
	filter := fmt.Sprintf("(&(objectClass=group)(cn=%s))", ldap.EscapeFilter(group))
	entry, err := s.searchOne(ctx, "find_group", group,
		s.cfg.BaseDN, ldap.ScopeWholeSubtree, 1,
		filter, []string{"distinguishedName"})
	if err != nil {
		return "", err
	}
	return entry.DN, nil
}

func (s *ldapStore) GroupExists(ctx context.Context, group string) (bool, error) {
	_, err := s.findGroupDN(ctx, group)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *ldapStore) AddToGroup(ctx context.Context, group, memberDN string) error {
	groupDN, err := s.findGroupDN(ctx, group)
	if err != nil {
		return err
	}

	req := ldap.NewModifyRequest(groupDN, nil)
	req.Add("member", []string{memberDN})

	err = s.withConn(ctx, "add_to_group", group, func(conn *ldap.Conn) error {
		addErr := conn.Modify(req)
		// Membership is a set; re-adding an existing member converges.
		if ldap.IsErrorWithCode(addErr, ldap.LDAPResultEntryAlreadyExists) ||
			ldap.IsErrorWithCode(addErr, ldap.LDAPResultAttributeOrValueExists) {
			return nil
		}
		return addErr
	})
	if err != nil {
		return err
	}

	s.logger.Info("group membership added",
		"group", group,
		"member_dn", memberDN)
	return nil
}

// schemaNamingContext resolves and caches the schema container DN from the
// root DSE.
func (s *ldapStore) schemaNamingContext(ctx context.Context) (string, error) {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaNC != "" {
		return s.schemaNC, nil
	}

	entry, err := s.searchOne(ctx, "root_dse", "",
		"", ldap.ScopeBaseObject, 1,
		"(objectClass=*)", []string{"schemaNamingContext"})
	if err != nil {
		return "", err
	}

	nc := entry.GetAttributeValue("schemaNamingContext")
	if nc == "" {
		return "", fmt.Errorf("directory: root DSE has no schemaNamingContext")
	}
	s.schemaNC = nc
	return nc, nil
}

func (s *ldapStore) AttributeDefined(ctx context.Context, name string) (bool, error) {
	schemaNC, err := s.schemaNamingContext(ctx)
	if err != nil {
		return false, err
	}

	filter := fmt.Sprintf("(&(objectClass=attributeSchema)(lDAPDisplayName=%s))", ldap.EscapeFilter(name))
	_, err = s.searchOne(ctx, "attribute_defined", name,
		schemaNC, ldap.ScopeWholeSubtree, 1,
		filter, []string{"lDAPDisplayName"})
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
