package vidquota

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrInvalidRequest      = errors.New("vidquota: invalid request")
	ErrUnsupportedModel    = errors.New("vidquota: unsupported model")
	ErrQuotaExhausted      = errors.New("vidquota: daily quota exhausted")
	ErrProviderTimeout     = errors.New("vidquota: provider timed out")
	ErrProviderUnavailable = errors.New("vidquota: provider unavailable")
	ErrBadResponse         = errors.New("vidquota: bad provider response")
	ErrStorage             = errors.New("vidquota: storage failure")
)

// GenerationError wraps an error with the orchestration context it failed in.
type GenerationError struct {
	Err    error
	Stage  Stage
	UserID string
	Model  Model

	// Quota is the snapshot the decision was based on, when one was built.
	Quota *QuotaSnapshot
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("vidquota: stage=%s user=%s model=%s: %v",
		e.Stage, e.UserID, e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsValidation returns true for bad input rejected before any side effect.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrUnsupportedModel)
}

// IsProviderFailure returns true if the remote provider call failed.
// Quota is never consumed for these.
func IsProviderFailure(err error) bool {
	return errors.Is(err, ErrProviderTimeout) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrBadResponse)
}

// StorageError marks err as a persistence failure while keeping the cause
// reachable through errors.Is / errors.As.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
