// Package notify fans provisioning events out to operator and office
// mailboxes. Delivery is advisory: a failed or skipped notification never
// fails the operation that triggered it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/idforge/idforge/internal/directory"
	"github.com/idforge/idforge/internal/metrics"
)

// Sender delivers a single message. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// Config holds the routing policy for provisioning notifications.
type Config struct {
	// AdminAddresses receive every event, including credential material
	// for newly created identities.
	AdminAddresses []string

	// OfficeAddresses routes creation notices to office-local recipients,
	// keyed by office name. Offices without an entry get no office notice.
	OfficeAddresses map[string][]string

	// SendTimeout bounds each delivery attempt.
	SendTimeout time.Duration
}

// Notifier applies the routing policy and dispatches messages in the
// background.
type Notifier struct {
	sender Sender
	cfg    Config
	logger *slog.Logger
}

// New creates a notifier. A nil logger falls back to the default.
func New(sender Sender, cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Notifier{
		sender: sender,
		cfg:    cfg,
		logger: logger.With("subsystem", "notify"),
	}
}

// IdentityCreated announces a newly provisioned identity. Administrators
// receive the full notice including the initial credential; the office group,
// if one is configured for the identity's office, receives a redacted notice
// without credential material.
func (n *Notifier) IdentityCreated(rec *directory.Record, password string) {
	subject := fmt.Sprintf("Identity created: %s (%s)", rec.DisplayName, rec.ShortName)

	if len(n.cfg.AdminAddresses) > 0 {
		body := creationBody(rec, password)
		n.dispatch("identity_created", n.cfg.AdminAddresses, subject, body)
	} else {
		n.logger.Warn("no admin addresses configured, creation notice dropped",
			"short_name", rec.ShortName)
	}

	if office, ok := n.cfg.OfficeAddresses[rec.Office]; ok && len(office) > 0 {
		body := creationBody(rec, "")
		n.dispatch("identity_created_office", office, subject, body)
	}
}

// IdentityUpdated announces a reconciled identity. An empty change set is
// deliberately silent: no message is produced and the skip is logged at debug
// level so it is distinguishable from a delivery failure.
func (n *Notifier) IdentityUpdated(rec *directory.Record, changes []directory.Change) {
	if len(changes) == 0 {
		n.logger.Debug("no attribute changes, update notice skipped",
			"short_name", rec.ShortName)
		return
	}
	if len(n.cfg.AdminAddresses) == 0 {
		n.logger.Warn("no admin addresses configured, update notice dropped",
			"short_name", rec.ShortName)
		return
	}

	subject := fmt.Sprintf("Identity updated: %s (%s)", rec.DisplayName, rec.ShortName)

	var b strings.Builder
	fmt.Fprintf(&b, "The identity %s (employee ID %s) was updated.\n\nChanges:\n", rec.ShortName, rec.EmployeeID)
	for _, ch := range changes {
		fmt.Fprintf(&b, "  %s: %q -> %q\n", ch.Field, ch.Old, ch.New)
	}

	n.dispatch("identity_updated", n.cfg.AdminAddresses, subject, b.String())
}

// MailboxOnboarded sends the welcome notice to the identity's own address
// after its mailbox became reachable.
func (n *Notifier) MailboxOnboarded(rec *directory.Record) {
	if rec.EmailAddress == "" {
		n.logger.Warn("identity has no email address, welcome notice dropped",
			"short_name", rec.ShortName)
		return
	}

	subject := fmt.Sprintf("Welcome, %s", rec.DisplayName)
	body := fmt.Sprintf(
		"Hello %s,\n\nyour mailbox %s is now active.\n\nSign-in name: %s\n",
		rec.GivenName, rec.EmailAddress, rec.PrincipalName)

	n.dispatch("mailbox_onboarded", []string{rec.EmailAddress}, subject, body)
}

// dispatch delivers in the background. The goroutine carries its own timeout
// detached from any request context, so an already-answered API call cannot
// cancel the delivery.
func (n *Notifier) dispatch(event string, to []string, subject, body string) {
	recipients := make([]string, len(to))
	copy(recipients, to)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.SendTimeout)
		defer cancel()

		if err := n.sender.Send(ctx, recipients, subject, body); err != nil {
			metrics.NotificationsFailed.Inc()
			n.logger.Error("notification delivery failed",
				"event", event,
				"recipients", len(recipients),
				"error", err)
			return
		}
		metrics.NotificationsSent.Inc()
		n.logger.Debug("notification delivered",
			"event", event,
			"recipients", len(recipients))
	}()
}

// creationBody renders the creation notice. An empty password produces the
// redacted office variant.
func creationBody(rec *directory.Record, password string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A new identity was provisioned.\n\n")
	fmt.Fprintf(&b, "  Name:         %s\n", rec.DisplayName)
	fmt.Fprintf(&b, "  Short name:   %s\n", rec.ShortName)
	fmt.Fprintf(&b, "  Employee ID:  %s\n", rec.EmployeeID)
	fmt.Fprintf(&b, "  Sign-in name: %s\n", rec.PrincipalName)
	fmt.Fprintf(&b, "  Email:        %s\n", rec.EmailAddress)
	if rec.Office != "" {
		fmt.Fprintf(&b, "  Office:       %s\n", rec.Office)
	}
	if password != "" {
		fmt.Fprintf(&b, "\n  Initial password: %s\n", password)
	}
	return b.String()
}
