package ai

import (
	"errors"
	"fmt"
)

// Reason classifies a provider failure.
type Reason string

const (
	ReasonAuth      Reason = "auth"
	ReasonQuota     Reason = "quota"
	ReasonRateLimit Reason = "rate_limit"
	ReasonTransient Reason = "transient"
)

// ErrEmptyCompletion indicates the generator returned no usable text.
var ErrEmptyCompletion = errors.New("generator returned an empty completion")

// ProviderError reports a failed embedding or generation call.
type ProviderError struct {
	Op     string // "embed" or "generate"
	Reason Reason
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Reason, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsReason reports whether err contains a ProviderError with the given reason.
func IsReason(err error, reason Reason) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Reason == reason
}
