package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("connection refused")

	// When: wrapping with AppError
	appErr := New(ErrCodeIndexUnavailable, "index service unreachable", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, appErr)
	assert.Equal(t, originalErr, errors.Unwrap(appErr))
	assert.True(t, errors.Is(appErr, originalErr))
}

func TestAppError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "generation error",
			code:     ErrCodeGenerationNotFound,
			message:  "generation 7 not found",
			expected: "[ERR_404_GENERATION_NOT_FOUND] generation 7 not found",
		},
		{
			name:     "index error",
			code:     ErrCodeIndexTimeout,
			message:  "bulk request timed out",
			expected: "[ERR_301_INDEX_TIMEOUT] bulk request timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestAppError_Is_MatchesByCodeThroughWrapping(t *testing.T) {
	sentinel := New(ErrCodeJobRunning, "job running", nil)
	err := fmt.Errorf("submit reindex: %w", New(ErrCodeJobRunning, "reindex already running", nil))

	assert.True(t, errors.Is(err, sentinel))
	assert.False(t, errors.Is(err, New(ErrCodeInternal, "x", nil)))
	assert.Equal(t, ErrCodeJobRunning, GetCode(err))
}

func TestNew_DerivesCategorySeverityRetryable(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeStoreUnavailable, CategoryStore, SeverityFatal, false},
		{ErrCodeIndexTimeout, CategoryIndex, SeverityWarning, true},
		{ErrCodeInvalidPercent, CategoryValidation, SeverityError, false},
		{ErrCodeNotifyFailed, CategoryInternal, SeverityWarning, true},
		{"bad", CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestHelpers_NonAppError(t *testing.T) {
	plain := errors.New("plain")

	assert.False(t, IsRetryable(plain))
	assert.False(t, IsFatal(plain))
	assert.Empty(t, GetCode(plain))
	assert.Empty(t, GetCategory(plain))
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestFormatForCLI_IncludesSuggestionAndCode(t *testing.T) {
	err := New(ErrCodeGenerationInUse, "generation 3 is promoted", nil).
		WithSuggestion("demote it first").
		WithDetail("generation", "3")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: generation 3 is promoted")
	assert.Contains(t, out, "Hint: demote it first")
	assert.Contains(t, out, "Code: ERR_405_GENERATION_IN_USE")
	assert.Contains(t, FormatForCLI(errors.New("boom")), "ERR_501_INTERNAL")
	assert.Empty(t, FormatForCLI(nil))
}

func TestLogAttrs(t *testing.T) {
	assert.Nil(t, LogAttrs(nil))
	assert.Len(t, LogAttrs(errors.New("x")), 1)

	attrs := LogAttrs(New(ErrCodeBulkWriteFailed, "bulk", errors.New("disk")).WithDetail("index", "wiki-1"))
	assert.Len(t, attrs, 6)
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	// Given: a function that fails twice
	calls := 0
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	// When: retrying
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	// Then: it succeeds on the third call
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	cfg := RetryConfig{
		MaxRetries:   5,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
		ShouldRetry:  IsRetryable,
	}

	err := Retry(context.Background(), cfg, func() error {
		calls++
		return ValidationError("bad input", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithResult_ExhaustsRetries(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	calls := 0

	_, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, errors.New("down")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, DefaultRetryConfig(), func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	// Given: a breaker with a controllable clock
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker("index",
		WithMaxFailures(2),
		WithResetTimeout(time.Minute),
		WithClock(func() time.Time { return now }),
	)
	fail := func() error { return errors.New("down") }

	// When: two failures happen
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)

	// Then: the circuit opens and calls are rejected without running
	assert.Equal(t, StateOpen, cb.State())
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	// When: the reset timeout passes and the probe succeeds
	now = now.Add(2 * time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(func() error { return nil }))

	// Then: the circuit closes again
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "index", cb.Name())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker("index", WithMaxFailures(1), WithResetTimeout(time.Second),
		WithClock(func() time.Time { return now }))

	_ = cb.Execute(func() error { return errors.New("down") })
	now = now.Add(2 * time.Second)
	_ = cb.Execute(func() error { return errors.New("still down") })

	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, "open", cb.State().String())
}
