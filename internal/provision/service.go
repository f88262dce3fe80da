package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/idforge/idforge/internal/creds"
	"github.com/idforge/idforge/internal/directory"
	"github.com/idforge/idforge/internal/mailbox"
	"github.com/idforge/idforge/internal/metrics"
	"github.com/idforge/idforge/internal/names"
)

const uacNormalAccount = 0x0200

// MailboxController is the mailbox lifecycle surface the service drives.
type MailboxController interface {
	EnsureEnabled(ctx context.Context, key string) (mailbox.EnableResult, error)
	EnsureDisabled(ctx context.Context, key string) error
}

// Notifier receives provisioning events. Implementations must not block the
// caller on delivery.
type Notifier interface {
	IdentityCreated(rec *directory.Record, password string)
	IdentityUpdated(rec *directory.Record, changes []directory.Change)
	MailboxOnboarded(rec *directory.Record)
}

// SchemaCache answers process-lifetime schema capability probes.
type SchemaCache interface {
	HasAttribute(ctx context.Context, name string) (bool, error)
}

// ValidationError reports a request that cannot be processed as given.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// Config is the business policy the service applies. All values are plain
// data resolved by the configuration layer.
type Config struct {
	// MailDomain is the domain of derived principal and email addresses.
	MailDomain string

	// ContainersByOffice maps an office name to the container DN new
	// identities for that office are created in. DefaultContainer is used
	// for offices without a mapping.
	ContainersByOffice map[string]string
	DefaultContainer   string

	// DisabledContainer is where retired identities are parked. Records
	// found under it are treated as gone.
	DisabledContainer string

	// GlobalGroups are granted to every new identity. OfficeGroups are
	// granted per office when the group exists.
	GlobalGroups []string
	OfficeGroups map[string][]string

	// EmployeeIDMirrorAttribute, when set and defined by the directory
	// schema, receives a copy of the employee ID on creation. Older
	// schema revisions lack it.
	EmployeeIDMirrorAttribute string

	// AllowNameEdits permits updates to change given name and surname.
	AllowNameEdits bool
}

// CreateRequest carries the fields of a new identity.
type CreateRequest struct {
	EmployeeID string `json:"employeeID"`
	GivenName  string `json:"givenName"`
	Surname    string `json:"surname"`

	Office      string `json:"office,omitempty"`
	Company     string `json:"company,omitempty"`
	Division    string `json:"division,omitempty"`
	Department  string `json:"department,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	ManagerEmployeeID string `json:"managerEmployeeID,omitempty"`
}

// Service implements the provisioning operations. It holds no cross-request
// state beyond per-employee advisory locks and the schema probe cache.
type Service struct {
	store    directory.Store
	mailbox  MailboxController
	notifier Notifier
	schema   SchemaCache
	cfg      Config
	logger   *slog.Logger

	// locks serializes operations per employee ID within this process.
	// Concurrent writers on other nodes still race; the store's
	// uniqueness semantics are the backstop.
	locks sync.Map
}

// NewService wires the provisioning engine.
func NewService(store directory.Store, mbx MailboxController, notifier Notifier, schemaCache SchemaCache, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		mailbox:  mbx,
		notifier: notifier,
		schema:   schemaCache,
		cfg:      cfg,
		logger:   logger.With("subsystem", "provision"),
	}
}

func (s *Service) lock(employeeID string) func() {
	v, _ := s.locks.LoadOrStore(employeeID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CreateIdentity provisions a new identity: it resolves a free short name,
// derives the name-dependent attributes and an initial credential, creates
// the directory entry in the office's container, grants group memberships
// and notifies per policy. The generated password is returned once and never
// stored.
func (s *Service) CreateIdentity(ctx context.Context, req CreateRequest) (*directory.Record, string, error) {
	switch {
	case req.EmployeeID == "":
		return nil, "", &ValidationError{Field: "employeeID", Reason: "is required"}
	case req.GivenName == "":
		return nil, "", &ValidationError{Field: "givenName", Reason: "is required"}
	case req.Surname == "":
		return nil, "", &ValidationError{Field: "surname", Reason: "is required"}
	}

	unlock := s.lock(req.EmployeeID)
	defer unlock()

	if existing, err := s.store.FindByKey(ctx, directory.KeyEmployeeID, req.EmployeeID); err == nil {
		return nil, "", directory.ConflictError("create", req.EmployeeID,
			fmt.Errorf("employee ID already assigned to %s", existing.ShortName))
	} else if !directory.IsNotFound(err) {
		return nil, "", err
	}

	shortName, variant, err := names.ResolveShortName(ctx, req.GivenName, req.Surname, s.shortNameTaken)
	if err != nil {
		var exhausted *names.ShortNamesExhaustedError
		if errors.As(err, &exhausted) {
			metrics.ShortNameExhaustions.Inc()
		}
		return nil, "", err
	}

	derived := variant.DeriveAttributes(req.GivenName, req.Surname, s.cfg.MailDomain)
	password := creds.Generate(creds.DefaultLength)

	container := s.cfg.DefaultContainer
	if c, ok := s.cfg.ContainersByOffice[req.Office]; ok {
		container = c
	}
	dn := directory.UserDN(derived.CommonName, container)

	attrs := map[string][]string{
		"objectClass":        {"top", "person", "organizationalPerson", "user"},
		"sAMAccountName":     {shortName},
		"userPrincipalName":  {derived.PrincipalName},
		"mail":               {derived.EmailAddress},
		"givenName":          {req.GivenName},
		"sn":                 {req.Surname},
		"displayName":        {derived.DisplayName},
		"employeeID":         {req.EmployeeID},
		"unicodePwd":         {directory.EncodePassword(password)},
		"userAccountControl": {strconv.Itoa(uacNormalAccount)},
	}
	for attr, value := range map[string]string{
		"physicalDeliveryOfficeName": req.Office,
		"company":                    req.Company,
		"division":                   req.Division,
		"department":                 req.Department,
		"title":                      req.Title,
		"description":                req.Description,
	} {
		if value != "" {
			attrs[attr] = []string{value}
		}
	}

	if s.cfg.EmployeeIDMirrorAttribute != "" {
		defined, err := s.schema.HasAttribute(ctx, s.cfg.EmployeeIDMirrorAttribute)
		if err != nil {
			s.logger.Warn("schema probe failed, mirror attribute skipped",
				"attribute", s.cfg.EmployeeIDMirrorAttribute, "error", err)
		} else if defined {
			attrs[s.cfg.EmployeeIDMirrorAttribute] = []string{req.EmployeeID}
		}
	}

	if req.ManagerEmployeeID != "" {
		if managerDN, err := s.resolveManagerDN(ctx, req.ManagerEmployeeID); err != nil {
			s.logger.Warn("manager resolution failed, field left unset",
				"employee_id", req.EmployeeID,
				"manager_employee_id", req.ManagerEmployeeID,
				"error", err)
		} else {
			attrs["manager"] = []string{managerDN}
		}
	}

	created, err := s.store.Create(ctx, dn, attrs)
	if err != nil {
		if directory.IsConflict(err) {
			// A concurrent creation won the short name race. Treated
			// like exhaustion: the caller retries with fresh input.
			return nil, "", directory.ConflictError("create", shortName, err)
		}
		return nil, "", err
	}

	s.assignGroups(ctx, created)

	metrics.IdentitiesCreated.Inc()
	s.logger.Info("identity created",
		"employee_id", created.EmployeeID,
		"short_name", created.ShortName,
		"dn", created.DN,
		"variant", variant.Index)

	s.notifier.IdentityCreated(created, password)
	return created, password, nil
}

// UpdateIdentity reconciles an existing identity against the request,
// writing only the fields that differ. The change list is returned in
// evaluation order; an empty list means nothing was written.
func (s *Service) UpdateIdentity(ctx context.Context, employeeID string, req UpdateRequest) (*directory.Record, []directory.Change, error) {
	unlock := s.lock(employeeID)
	defer unlock()

	rec, err := s.store.FindByKey(ctx, directory.KeyEmployeeID, employeeID)
	if err != nil {
		return nil, nil, err
	}
	if s.cfg.DisabledContainer != "" && directory.DNInContainer(rec.DN, s.cfg.DisabledContainer) {
		return nil, nil, directory.NotFoundError("update", employeeID)
	}

	plan := buildPlan(ctx, rec, req, s.cfg.AllowNameEdits, s.resolveManagerDN, s.logger)
	if plan.empty() {
		metrics.UpdatesNoop.Inc()
		s.logger.Info("no attribute changes", "employee_id", employeeID)
		s.notifier.IdentityUpdated(rec, nil)
		return rec, nil, nil
	}

	if len(plan.Attrs) > 0 {
		if err := s.store.WriteAttributes(ctx, rec.DN, plan.Attrs); err != nil {
			return nil, nil, err
		}
	}

	// The rename runs last so its failure cannot taint the committed
	// attribute writes.
	dn := rec.DN
	if plan.NewCommonName != "" {
		newDN, err := s.store.Rename(ctx, rec.DN, plan.NewCommonName)
		if err != nil {
			return nil, nil, err
		}
		dn = newDN
	}

	updated, err := s.store.FindByKey(ctx, directory.KeyDN, dn)
	if err != nil {
		return nil, nil, err
	}

	metrics.IdentitiesUpdated.Inc()
	s.logger.Info("identity updated",
		"employee_id", employeeID,
		"changes", len(plan.Changes))

	s.notifier.IdentityUpdated(updated, plan.Changes)
	return updated, plan.Changes, nil
}

// GetIdentity looks an identity up by employee ID.
func (s *Service) GetIdentity(ctx context.Context, employeeID string) (*directory.Record, error) {
	return s.store.FindByKey(ctx, directory.KeyEmployeeID, employeeID)
}

// EnableMailbox converges the identity's mailbox onto the enabled state and
// sends the welcome notice the first time the mailbox comes up.
func (s *Service) EnableMailbox(ctx context.Context, employeeID string) (mailbox.EnableResult, error) {
	unlock := s.lock(employeeID)
	defer unlock()

	rec, err := s.store.FindByKey(ctx, directory.KeyEmployeeID, employeeID)
	if err != nil {
		return mailbox.EnableResult{}, err
	}

	result, err := s.mailbox.EnsureEnabled(ctx, rec.ShortName)
	if err != nil {
		return mailbox.EnableResult{}, err
	}

	metrics.MailboxTransitions.WithLabelValues("enabled").Inc()
	if !result.AlreadyEnabled {
		s.notifier.MailboxOnboarded(rec)
	}
	return result, nil
}

// DisableMailbox converges the identity's mailbox onto the disabled state.
func (s *Service) DisableMailbox(ctx context.Context, employeeID string) error {
	unlock := s.lock(employeeID)
	defer unlock()

	rec, err := s.store.FindByKey(ctx, directory.KeyEmployeeID, employeeID)
	if err != nil {
		return err
	}

	if err := s.mailbox.EnsureDisabled(ctx, rec.ShortName); err != nil {
		return err
	}
	metrics.MailboxTransitions.WithLabelValues("disabled").Inc()
	return nil
}

// Close releases the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}

func (s *Service) shortNameTaken(ctx context.Context, shortName string) (bool, error) {
	_, err := s.store.FindByKey(ctx, directory.KeyShortName, shortName)
	if err == nil {
		return true, nil
	}
	if directory.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *Service) resolveManagerDN(ctx context.Context, employeeID string) (string, error) {
	rec, err := s.store.FindByKey(ctx, directory.KeyEmployeeID, employeeID)
	if err != nil {
		return "", err
	}
	return rec.DN, nil
}

// assignGroups grants the configured global and office memberships. Failures
// are logged and skipped so a broken group never blocks provisioning.
func (s *Service) assignGroups(ctx context.Context, rec *directory.Record) {
	for _, group := range s.cfg.GlobalGroups {
		if err := s.store.AddToGroup(ctx, group, rec.DN); err != nil {
			s.logger.Warn("group assignment failed",
				"group", group, "dn", rec.DN, "error", err)
		}
	}
	for _, group := range s.cfg.OfficeGroups[rec.Office] {
		exists, err := s.store.GroupExists(ctx, group)
		if err != nil {
			s.logger.Warn("group existence check failed", "group", group, "error", err)
			continue
		}
		if !exists {
			s.logger.Warn("office group does not exist, skipped", "group", group, "office", rec.Office)
			continue
		}
		if err := s.store.AddToGroup(ctx, group, rec.DN); err != nil {
			s.logger.Warn("group assignment failed",
				"group", group, "dn", rec.DN, "error", err)
		}
	}
}
