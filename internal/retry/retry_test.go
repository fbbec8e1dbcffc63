package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errTemporary = errors.New("temporary error")

func TestExponential_SuccessImmediate(t *testing.T) {
	err := Exponential(func() error { return nil }, ExponentialConfig{
		InitialInterval: 5 * time.Millisecond,
		MaxElapsedTime:  100 * time.Millisecond,
	})
	assert.NoError(t, err)
}

func TestExponential_RetryThenSuccess(t *testing.T) {
	var calls, onRetryCount int

	err := Exponential(func() error {
		if calls < 3 {
			calls++
			return errTemporary
		}
		return nil
	}, ExponentialConfig{
		InitialInterval: 2 * time.Millisecond,
		MaxElapsedTime:  500 * time.Millisecond,
		OnRetry: func(err error, next time.Duration) {
			onRetryCount++
			assert.Error(t, err)
			assert.Greater(t, next, time.Duration(0))
		},
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, onRetryCount)
}

func TestExponential_InvalidConfig(t *testing.T) {
	err := Exponential(func() error { return nil }, ExponentialConfig{})
	assert.Error(t, err)
}

func TestExponential_Permanent(t *testing.T) {
	calls := 0
	fatal := errors.New("fatal")

	err := Exponential(func() error {
		calls++
		return Permanent(fatal)
	}, ExponentialConfig{
		InitialInterval: time.Millisecond,
		MaxElapsedTime:  100 * time.Millisecond,
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestConstant_RetryThenSuccess(t *testing.T) {
	calls := 0
	err := Constant(func() error {
		calls++
		if calls < 2 {
			return errTemporary
		}
		return nil
	}, time.Millisecond, 3, nil)

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestConstant_Exhausted(t *testing.T) {
	calls := 0
	err := Constant(func() error {
		calls++
		return errTemporary
	}, time.Millisecond, 3, nil)

	assert.ErrorIs(t, err, errTemporary)
	assert.Equal(t, 3, calls)
}

func TestConstant_NotRetryable(t *testing.T) {
	calls := 0
	err := Constant(func() error {
		calls++
		return errTemporary
	}, time.Millisecond, 5, func(error) bool { return false })

	assert.ErrorIs(t, err, errTemporary)
	assert.Equal(t, 1, calls)
}
