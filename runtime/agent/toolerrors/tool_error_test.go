package toolerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindRecoverable(t *testing.T) {
	recoverable := []Kind{
		KindUnknownTool, KindInvalidArguments, KindAuthorizationDenied,
		KindTransient, KindPermanent, KindPartial,
	}
	for _, k := range recoverable {
		require.True(t, k.Recoverable(), string(k))
	}
	fatal := []Kind{KindOracleTimeout, KindMalformedAction, KindBudgetExceeded}
	for _, k := range fatal {
		require.False(t, k.Recoverable(), string(k))
	}
}

func TestNewAndError(t *testing.T) {
	err := New(KindTransient, "calendar API returned 503")
	require.Equal(t, "transient: calendar API returned 503", err.Error())
	require.True(t, err.Retryable())

	require.Equal(t, "tool error", New(KindPermanent, "").Message)

	err = Newf(KindInvalidArguments, "missing %q", "title")
	require.Equal(t, `invalid_arguments: missing "title"`, err.Error())
	require.False(t, err.Retryable())
}

func TestWrapPreservesChain(t *testing.T) {
	inner := New(KindTransient, "connection reset")
	outer := Wrap(KindPartial, "event may have been created", inner)
	require.Equal(t, KindPartial, outer.Kind)

	var te *ToolError
	require.True(t, errors.As(outer.Unwrap(), &te))
	require.Equal(t, KindTransient, te.Kind)

	// Message falls back to the cause when omitted.
	require.Equal(t, inner.Error(), Wrap(KindPermanent, "", inner).Message)
}

func TestFromError(t *testing.T) {
	require.Nil(t, FromError(nil))

	// Plain errors default to permanent.
	converted := FromError(errors.New("boom"))
	require.Equal(t, KindPermanent, converted.Kind)
	require.Equal(t, "boom", converted.Message)

	// Wrapped tool errors keep their kind.
	wrapped := fmt.Errorf("dispatch: %w", New(KindAuthorizationDenied, "scope missing"))
	converted = FromError(wrapped)
	require.Equal(t, KindAuthorizationDenied, converted.Kind)

	// Wrapped chains are converted link by link.
	chain := FromError(fmt.Errorf("outer: %w", errors.New("inner")))
	require.Equal(t, "outer: inner", chain.Message)
	require.NotNil(t, chain.Cause)
	require.Equal(t, "inner", chain.Cause.Message)
}

func TestNilToolError(t *testing.T) {
	var err *ToolError
	require.Equal(t, "", err.Error())
	require.False(t, err.Retryable())
	require.NoError(t, err.Unwrap())
}
