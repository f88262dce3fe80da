// Package mailbox drives the idempotent mailbox lifecycle against the remote
// mail subsystem.
package mailbox

import (
	"context"
	"fmt"
	"log/slog"
)

// Command names understood by the remoting endpoint.
const (
	CommandEnable        = "enable-mailbox"
	CommandDisable       = "disable-mailbox"
	CommandSetVisibility = "set-mailbox-visibility"
	CommandSetProtocols  = "set-client-protocols"
)

// CommandRunner is the remote command surface of the mailbox subsystem. Run
// must be idempotent for the commands above; failures carry the remote error
// text.
type CommandRunner interface {
	Exists(ctx context.Context, key string) (bool, error)
	Run(ctx context.Context, command, key string, params map[string]string) error
}

// CommandError reports a failed remote command together with the command name
// and the mailbox key it targeted.
type CommandError struct {
	Command string
	Key     string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("mailbox command %q failed for %q: %v", e.Command, e.Key, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// EnableResult reports the outcome of an EnsureEnabled call.
type EnableResult struct {
	// AlreadyEnabled is true when the mailbox existed before the call.
	AlreadyEnabled bool
}

// Controller converges mailboxes onto one of two states, Enabled or
// Disabled. It persists nothing: every call re-derives current state from
// the subsystem, so repeated calls are safe and heal configuration drift.
type Controller struct {
	runner CommandRunner
	logger *slog.Logger
}

// NewController creates a mailbox controller.
func NewController(runner CommandRunner, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		runner: runner,
		logger: logger.With("subsystem", "mailbox"),
	}
}

// EnsureEnabled converges the mailbox for key onto the Enabled state. A
// missing mailbox is created; the two configuration commands (unhide from
// address lists, enable client access protocols) are applied on every call,
// whether or not the mailbox already existed. Any command failure aborts the
// whole call.
func (c *Controller) EnsureEnabled(ctx context.Context, key string) (EnableResult, error) {
	exists, err := c.runner.Exists(ctx, key)
	if err != nil {
		return EnableResult{}, &CommandError{Command: "exists", Key: key, Err: err}
	}

	if !exists {
		if err := c.runner.Run(ctx, CommandEnable, key, nil); err != nil {
			return EnableResult{}, &CommandError{Command: CommandEnable, Key: key, Err: err}
		}
		c.logger.Info("mailbox created", "key", key)
	}

	// Always reconfigure, even right after creation.
	reconfigure := []struct {
		command string
		params  map[string]string
	}{
		{CommandSetVisibility, map[string]string{"hiddenFromAddressLists": "false"}},
		{CommandSetProtocols, map[string]string{"activeSync": "true", "webAccess": "true"}},
	}
	for _, step := range reconfigure {
		if err := c.runner.Run(ctx, step.command, key, step.params); err != nil {
			return EnableResult{}, &CommandError{Command: step.command, Key: key, Err: err}
		}
	}

	c.logger.Info("mailbox enabled",
		"key", key,
		"already_enabled", exists)
	return EnableResult{AlreadyEnabled: exists}, nil
}

// EnsureDisabled converges the mailbox for key onto the Disabled state. The
// disable command is issued unconditionally; the subsystem treats disabling
// an absent mailbox as a no-op.
func (c *Controller) EnsureDisabled(ctx context.Context, key string) error {
	if err := c.runner.Run(ctx, CommandDisable, key, nil); err != nil {
		return &CommandError{Command: CommandDisable, Key: key, Err: err}
	}

	c.logger.Info("mailbox disabled", "key", key)
	return nil
}
