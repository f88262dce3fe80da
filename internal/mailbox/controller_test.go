package mailbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *mockRunner) Run(ctx context.Context, command, key string, params map[string]string) error {
	args := m.Called(ctx, command, key, params)
	return args.Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnsureEnabledCreatesWhenAbsent(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Exists", mock.Anything, "jodoe").Return(false, nil).Once()
	runner.On("Run", mock.Anything, CommandEnable, "jodoe", mock.Anything).Return(nil).Once()
	runner.On("Run", mock.Anything, CommandSetVisibility, "jodoe", map[string]string{
		"hiddenFromAddressLists": "false",
	}).Return(nil).Once()
	runner.On("Run", mock.Anything, CommandSetProtocols, "jodoe", map[string]string{
		"activeSync": "true",
		"webAccess":  "true",
	}).Return(nil).Once()

	ctrl := NewController(runner, discardLogger())
	result, err := ctrl.EnsureEnabled(context.Background(), "jodoe")
	require.NoError(t, err)
	assert.False(t, result.AlreadyEnabled)
	runner.AssertExpectations(t)
}

func TestEnsureEnabledIdempotent(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Exists", mock.Anything, "jodoe").Return(true, nil).Twice()
	runner.On("Run", mock.Anything, CommandSetVisibility, "jodoe", mock.Anything).Return(nil).Twice()
	runner.On("Run", mock.Anything, CommandSetProtocols, "jodoe", mock.Anything).Return(nil).Twice()

	ctrl := NewController(runner, discardLogger())

	for i := 0; i < 2; i++ {
		result, err := ctrl.EnsureEnabled(context.Background(), "jodoe")
		require.NoError(t, err)
		assert.True(t, result.AlreadyEnabled)
	}

	// The enable command itself must never run for an existing mailbox,
	// but both configuration commands run on every invocation.
	runner.AssertNotCalled(t, "Run", mock.Anything, CommandEnable, "jodoe", mock.Anything)
	runner.AssertExpectations(t)
}

func TestEnsureEnabledConfigureFailureAborts(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Exists", mock.Anything, "jodoe").Return(true, nil).Once()
	runner.On("Run", mock.Anything, CommandSetVisibility, "jodoe", mock.Anything).
		Return(errors.New("access denied")).Once()

	ctrl := NewController(runner, discardLogger())
	_, err := ctrl.EnsureEnabled(context.Background(), "jodoe")
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, CommandSetVisibility, cmdErr.Command)
	assert.Equal(t, "jodoe", cmdErr.Key)

	// The protocol step must not run after the visibility step failed.
	runner.AssertNotCalled(t, "Run", mock.Anything, CommandSetProtocols, "jodoe", mock.Anything)
	runner.AssertExpectations(t)
}

func TestEnsureEnabledExistenceCheckError(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Exists", mock.Anything, "jodoe").Return(false, errors.New("connection refused")).Once()

	ctrl := NewController(runner, discardLogger())
	_, err := ctrl.EnsureEnabled(context.Background(), "jodoe")
	require.Error(t, err)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEnsureDisabledUnconditional(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Run", mock.Anything, CommandDisable, "jodoe", mock.Anything).Return(nil).Twice()

	ctrl := NewController(runner, discardLogger())
	require.NoError(t, ctrl.EnsureDisabled(context.Background(), "jodoe"))
	require.NoError(t, ctrl.EnsureDisabled(context.Background(), "jodoe"))

	// No existence probe for disable.
	runner.AssertNotCalled(t, "Exists", mock.Anything, mock.Anything)
	runner.AssertExpectations(t)
}

func TestEnsureDisabledError(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Run", mock.Anything, CommandDisable, "jodoe", mock.Anything).
		Return(errors.New("mailbox database offline")).Once()

	ctrl := NewController(runner, discardLogger())
	err := ctrl.EnsureDisabled(context.Background(), "jodoe")

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, CommandDisable, cmdErr.Command)
	assert.Contains(t, err.Error(), "mailbox database offline")
}
