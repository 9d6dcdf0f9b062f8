package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/policyrag/ai"
	"github.com/poiesic/policyrag/ai/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embedOperation wraps an embedding call the way BatchProcessor does.
func embedOperation(embedder ai.Embedder, texts []string) func() error {
	return func() error {
		_, err := embedder.EmbedTexts(context.Background(), texts)
		return err
	}
}

func rateLimited(failures int) *mock.MockEmbedder {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if embedder.CallCount() <= failures {
			return nil, &ai.ProviderError{Op: "embed", Reason: ai.ReasonRateLimit, Err: errors.New("429 too many requests")}
		}
		return make([][]float32, len(texts)), nil
	}
	return embedder
}

func TestRetryWithBackoff_FirstAttemptSucceeds(t *testing.T) {
	embedder := mock.NewMockEmbedder()

	err := RetryWithBackoff(context.Background(), embedOperation(embedder, []string{"leave policy"}), 3, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.CallCount())
}

func TestRetryWithBackoff_RecoversFromRateLimit(t *testing.T) {
	embedder := rateLimited(2)

	err := RetryWithBackoff(context.Background(), embedOperation(embedder, []string{"a", "b"}), 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, embedder.CallCount())
}

func TestRetryWithBackoff_ReturnsLastError(t *testing.T) {
	embedder := rateLimited(10)

	err := RetryWithBackoff(context.Background(), embedOperation(embedder, []string{"a"}), 3, time.Millisecond)
	require.Error(t, err)
	assert.True(t, ai.IsReason(err, ai.ReasonRateLimit))
	assert.Equal(t, 3, embedder.CallCount(), "should attempt exactly maxAttempts times")
}

func TestRetryWithBackoff_PlainErrorsAreRetried(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		if attempts < 2 {
			return errors.New("connection reset")
		}
		return nil
	}, 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithBackoff_PermanentProviderErrors(t *testing.T) {
	for _, reason := range []ai.Reason{ai.ReasonAuth, ai.ReasonQuota} {
		t.Run(string(reason), func(t *testing.T) {
			attempts := 0
			providerErr := &ai.ProviderError{Op: "embed", Reason: reason, Err: errors.New("rejected")}
			operation := func() error {
				attempts++
				return fmt.Errorf("embedding batch: %w", providerErr)
			}

			err := RetryWithBackoff(context.Background(), operation, 5, time.Millisecond)
			assert.True(t, ai.IsReason(err, reason))
			assert.Equal(t, 1, attempts, "should not retry")
		})
	}
}

func TestRetryWithBackoff_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	operation := func() error {
		attempts++
		cancel()
		return errors.New("upstream unavailable")
	}

	err := RetryWithBackoff(ctx, operation, 10, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_DeadlineNotRetried(t *testing.T) {
	attempts := 0
	operation := func() error {
		attempts++
		return fmt.Errorf("embed: %w", context.DeadlineExceeded)
	}

	err := RetryWithBackoff(context.Background(), operation, 5, time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_DelayDoubles(t *testing.T) {
	var starts []time.Time
	operation := func() error {
		starts = append(starts, time.Now())
		if len(starts) < 4 {
			return errors.New("busy")
		}
		return nil
	}

	base := 10 * time.Millisecond
	err := RetryWithBackoff(context.Background(), operation, 5, base)
	require.NoError(t, err)
	require.Len(t, starts, 4)

	for i := 1; i < len(starts); i++ {
		want := base << (i - 1)
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), want, "gap before attempt %d", i+1)
	}
}

func TestRetryWithBackoff_InvalidMaxAttempts(t *testing.T) {
	for _, maxAttempts := range []int{0, -1} {
		t.Run(fmt.Sprint(maxAttempts), func(t *testing.T) {
			attempts := 0
			err := RetryWithBackoff(context.Background(), func() error {
				attempts++
				return nil
			}, maxAttempts, time.Millisecond)
			assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
			assert.Equal(t, 0, attempts)
		})
	}
}
