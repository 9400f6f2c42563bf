package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/clustercheck/clustercheck/pkg/lock"
	"github.com/clustercheck/clustercheck/pkg/verdict"
)

// MessageUnknownLock is reported when the lock vanished between creation and
// the expiry query.
const MessageUnknownLock = "Unknown lock problem"

// ConfigError marks failures caused by invalid arguments or missing check
// definitions rather than by the store.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	if e == nil || e.Err == nil {
		return "configuration error"
	}
	return e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Classify maps a run error to the plugin status and message shown to the
// monitoring system.
func Classify(err error) (verdict.Status, string) {
	if err == nil {
		return verdict.StatusOK, ""
	}

	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return verdict.StatusUnknown, cfgErr.Error()
	}

	var anomaly *lock.AnomalyError
	if errors.As(err, &anomaly) {
		return verdict.StatusCritical, anomaly.Error()
	}

	if errors.Is(err, lock.ErrLockState) {
		return verdict.StatusUnknown, MessageUnknownLock
	}

	return verdict.StatusCritical, fmt.Sprintf("%s (%s)", err.Error(), errorKind(err))
}

// errorKind names the innermost error in the chain.
func errorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	return fmt.Sprintf("%T", root)
}
