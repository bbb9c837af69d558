package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrmt/openrmt/pkg/errors"
)

func TestAppErrorFormatting(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := errors.New(errors.CodeEvalFailed, errors.ErrorTypeTraining, "evaluation pass failed")
		assert.Equal(t, "[TRAIN_004] evaluation pass failed", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := stderrors.New("connection refused")
		err := errors.Wrap(cause, errors.CodeDatabaseFailed, "persisting run failed")
		assert.Equal(t, "[INFRA_002] persisting run failed: connection refused", err.Error())
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, errors.Wrap(nil, errors.CodeInternal, "ignored"))
	})

	t.Run("preserves the original type of an AppError", func(t *testing.T) {
		inner := errors.ValidationError("batch size must be positive")
		wrapped := errors.Wrap(inner, errors.CodeForwardFailed, "training step failed")
		assert.Equal(t, errors.ErrorTypeValidation, wrapped.Type)
		assert.Equal(t, errors.CodeForwardFailed, wrapped.Code)
	})

	t.Run("unwraps to the cause", func(t *testing.T) {
		cause := stderrors.New("disk full")
		wrapped := errors.Wrap(cause, errors.CodeLogWriteFailed, "metric append failed")
		assert.True(t, stderrors.Is(wrapped, cause))
	})
}

func TestCodeAndTypeChecks(t *testing.T) {
	err := errors.TrainingError(errors.CodeBackwardFailed, "gradient pass failed")

	assert.True(t, errors.Is(err, errors.CodeBackwardFailed))
	assert.False(t, errors.Is(err, errors.CodeForwardFailed))
	assert.True(t, errors.IsType(err, errors.ErrorTypeTraining))
	assert.False(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Equal(t, errors.CodeBackwardFailed, errors.GetCode(err))

	t.Run("plain errors report unknown", func(t *testing.T) {
		plain := stderrors.New("boom")
		assert.False(t, errors.Is(plain, errors.CodeInternal))
		assert.Equal(t, "UNKNOWN", errors.GetCode(plain))
	})

	t.Run("nil reports empty", func(t *testing.T) {
		assert.Equal(t, "", errors.GetCode(nil))
	})
}

func TestConstructors(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		err := errors.ValidationErrorf("eval interval %d, want >= 1", 0)
		assert.Equal(t, errors.ErrorTypeValidation, err.Type)
		assert.Contains(t, err.Message, "eval interval 0")
	})

	t.Run("not found", func(t *testing.T) {
		err := errors.NotFoundError("training run")
		assert.Equal(t, errors.ErrorTypeNotFound, err.Type)
		assert.Equal(t, "training run not found", err.Message)
	})

	t.Run("internal captures a stack", func(t *testing.T) {
		err := errors.InternalError("unreachable state")
		assert.NotEmpty(t, err.Stack)
	})

	t.Run("infrastructure", func(t *testing.T) {
		err := errors.InfrastructureError("redis", stderrors.New("timeout"))
		require.NotNil(t, err)
		assert.Equal(t, errors.ErrorTypeInfrastructure, err.Type)
	})
}

func TestWithDetails(t *testing.T) {
	err := errors.ValidationError("bad input").
		WithDetails("field", "batch_size").
		WithDetails("value", -1)

	assert.Equal(t, "batch_size", err.Details["field"])
	assert.Equal(t, -1, err.Details["value"])
}
