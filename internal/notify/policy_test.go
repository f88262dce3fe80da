package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idforge/idforge/internal/directory"
)

type sentMessage struct {
	To      []string
	Subject string
	Body    string
}

// captureSender records deliveries and signals each one on a channel so
// tests can wait for the background dispatch.
type captureSender struct {
	mu       sync.Mutex
	messages []sentMessage
	signal   chan struct{}
	err      error
}

func newCaptureSender() *captureSender {
	return &captureSender{signal: make(chan struct{}, 16)}
}

func (s *captureSender) Send(_ context.Context, to []string, subject, body string) error {
	s.mu.Lock()
	s.messages = append(s.messages, sentMessage{To: to, Subject: subject, Body: body})
	s.mu.Unlock()
	s.signal <- struct{}{}
	return s.err
}

func (s *captureSender) wait(t *testing.T, n int) []sentMessage {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.signal:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d of %d", i+1, n)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func testRecord() *directory.Record {
	return &directory.Record{
		DN:            "CN=John Doe,OU=NRW,OU=People,DC=corp,DC=example,DC=com",
		ShortName:     "jodoe",
		EmployeeID:    "100234",
		PrincipalName: "jodoe@corp.example.com",
		EmailAddress:  "john.doe@example.com",
		DisplayName:   "John Doe",
		GivenName:     "John",
		Surname:       "Doe",
		Office:        "NRW",
	}
}

func TestIdentityCreatedRouting(t *testing.T) {
	sender := newCaptureSender()
	n := New(sender, Config{
		AdminAddresses:  []string{"idadmin@example.com"},
		OfficeAddresses: map[string][]string{"NRW": {"office-nrw@example.com"}},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n.IdentityCreated(testRecord(), "S3cret!pass")
	messages := sender.wait(t, 2)

	var admin, office *sentMessage
	for i := range messages {
		switch messages[i].To[0] {
		case "idadmin@example.com":
			admin = &messages[i]
		case "office-nrw@example.com":
			office = &messages[i]
		}
	}
	require.NotNil(t, admin, "admin notice missing")
	require.NotNil(t, office, "office notice missing")

	assert.Contains(t, admin.Body, "S3cret!pass")
	assert.Contains(t, admin.Subject, "jodoe")

	// The office copy must never carry credential material.
	assert.NotContains(t, office.Body, "S3cret!pass")
	assert.NotContains(t, office.Body, "password")
	assert.Contains(t, office.Body, "jodoe")
}

func TestIdentityCreatedUnmappedOffice(t *testing.T) {
	sender := newCaptureSender()
	n := New(sender, Config{
		AdminAddresses:  []string{"idadmin@example.com"},
		OfficeAddresses: map[string][]string{"NRW": {"office-nrw@example.com"}},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := testRecord()
	rec.Office = "Bavaria"
	n.IdentityCreated(rec, "pw")

	messages := sender.wait(t, 1)
	require.Len(t, messages, 1)
	assert.Equal(t, []string{"idadmin@example.com"}, messages[0].To)
}

func TestIdentityUpdatedEmptyChangeSetSilent(t *testing.T) {
	sender := newCaptureSender()
	n := New(sender, Config{AdminAddresses: []string{"idadmin@example.com"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n.IdentityUpdated(testRecord(), nil)

	select {
	case <-sender.signal:
		t.Fatal("unexpected notification for empty change set")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestIdentityUpdatedListsChanges(t *testing.T) {
	sender := newCaptureSender()
	n := New(sender, Config{AdminAddresses: []string{"idadmin@example.com"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n.IdentityUpdated(testRecord(), []directory.Change{
		{Field: "physicalDeliveryOfficeName", Old: "Moscow", New: "NRW"},
	})

	messages := sender.wait(t, 1)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Body, "Moscow")
	assert.Contains(t, messages[0].Body, "NRW")
	assert.Contains(t, messages[0].Subject, "updated")
}

func TestMailboxOnboardedTargetsIdentity(t *testing.T) {
	sender := newCaptureSender()
	n := New(sender, Config{AdminAddresses: []string{"idadmin@example.com"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n.MailboxOnboarded(testRecord())

	messages := sender.wait(t, 1)
	require.Len(t, messages, 1)
	assert.Equal(t, []string{"john.doe@example.com"}, messages[0].To)
	assert.Contains(t, messages[0].Body, "john.doe@example.com")
	assert.Contains(t, messages[0].Body, "John")
}

func TestDeliveryFailureDoesNotPropagate(t *testing.T) {
	sender := newCaptureSender()
	sender.err = errors.New("relay unreachable")
	n := New(sender, Config{AdminAddresses: []string{"idadmin@example.com"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Must not panic or block; the error stays inside the dispatcher.
	n.IdentityCreated(testRecord(), "pw")
	sender.wait(t, 1)
}
