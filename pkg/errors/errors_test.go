package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseErrorWrapsUnderlying(t *testing.T) {
	t.Parallel()

	underlying := fmt.Errorf("unexpected token")
	err := NewParseError("feed.xml", 12, underlying)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, "feed.xml", parseErr.Path)
	require.Equal(t, 12, parseErr.Line)
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "feed.xml:12")
}

func TestValidationErrorCarriesField(t *testing.T) {
	t.Parallel()

	err := NewValidationError("update_process_name", "is required", nil)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "update_process_name", validationErr.Field)
	require.Contains(t, err.Error(), "is required")
}

func TestExecutionErrorIncludesTaskContext(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("disk full")
	err := NewExecutionError("bin/app", "prepare", underlying)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "bin/app", execErr.TaskID)
	require.Equal(t, "prepare error on task bin/app: disk full", err.Error())
	require.True(t, stdErrors.Is(err, underlying))
}

func TestExecutionErrorDefaultsPhase(t *testing.T) {
	t.Parallel()

	err := NewExecutionError("", "", stdErrors.New("boom"))
	require.Equal(t, "execute error: boom", err.Error())
}

func TestHandoffErrorUnwraps(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("no client")
	err := NewHandoffError("connect", underlying)

	var handoffErr *HandoffError
	require.ErrorAs(t, err, &handoffErr)
	require.Equal(t, "connect", handoffErr.Stage)
	require.ErrorIs(t, err, underlying)
}

func TestVerificationErrorMessage(t *testing.T) {
	t.Parallel()

	err := NewVerificationError("key-1", "contains private key material", nil)
	require.Equal(t, "verification error [key-1]: contains private key material", err.Error())
}
