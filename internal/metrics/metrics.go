// Package metrics exposes the engine's Prometheus collectors. Collectors are
// registered on the default registry at package load.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IdentitiesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idforge_identities_created_total",
		Help: "Identities successfully provisioned in the directory.",
	})

	IdentitiesUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idforge_identities_updated_total",
		Help: "Update operations that wrote at least one attribute.",
	})

	UpdatesNoop = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idforge_identity_updates_noop_total",
		Help: "Update operations whose change set was empty.",
	})

	ShortNameExhaustions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idforge_short_name_exhaustions_total",
		Help: "Creation attempts that found every short name candidate taken.",
	})

	MailboxTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idforge_mailbox_transitions_total",
		Help: "Mailbox lifecycle convergences by target state.",
	}, []string{"state"})

	NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idforge_notifications_sent_total",
		Help: "Notifications handed to the mail relay.",
	})

	NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idforge_notifications_failed_total",
		Help: "Notifications dropped after a delivery error.",
	})
)
