package openai

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/poiesic/policyrag/ai"
	"golang.org/x/time/rate"
)

var (
	errEmptyEmbedding = errors.New("embedding response was empty")
	errEmbeddingCount = errors.New("embedding response count does not match input")
)

// newLimiter returns a token bucket for rps requests per second.
// A non-positive rps disables throttling.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), int(math.Max(1, math.Ceil(rps))))
}

// Substrings of langchaingo errors, which carry the HTTP status and the
// provider's message as text.
var (
	authMarkers = []string{
		"status code: 401", "status code: 403", "unauthorized",
		"invalid api key", "incorrect api key", "no auth credentials",
	}
	quotaMarkers = []string{
		"status code: 402", "insufficient_quota", "insufficient quota",
		"exceeded your current quota", "insufficient credits",
	}
	rateLimitMarkers = []string{
		"status code: 429", "rate limit", "rate_limit", "too many requests",
	}
)

// classify wraps err in an *ai.ProviderError with a reason derived from it.
// Errors that carry no recognizable marker are transient.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ai.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ai.ProviderError{Op: op, Reason: reasonFor(err), Err: err}
}

func reasonFor(err error) ai.Reason {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ai.ReasonTransient
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, authMarkers):
		return ai.ReasonAuth
	case containsAny(msg, quotaMarkers):
		return ai.ReasonQuota
	case containsAny(msg, rateLimitMarkers):
		return ai.ReasonRateLimit
	default:
		return ai.ReasonTransient
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
