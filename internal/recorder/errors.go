// ABOUTME: Error types surfaced by the session controller
// ABOUTME: Session errors for commands, provider errors for observers, failed fixes for data loss

package recorder

import (
	"errors"
	"fmt"
	"time"

	"github.com/harper/triplog/internal/models"
)

// ErrCannotRecord is returned by start when location authorization forbids recording.
var ErrCannotRecord = errors.New("location authorization does not allow recording")

// SessionError is returned by a command that could not be applied. The
// status is unchanged when it is returned.
type SessionError struct {
	Command Command
	Err     error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// ProviderErrorKind classifies location provider failures.
type ProviderErrorKind string

const (
	KindLocationUnknown  ProviderErrorKind = "location-unknown"
	KindUpdatesPaused    ProviderErrorKind = "updates-paused"
	KindPermissionDenied ProviderErrorKind = "permission-denied"
	KindServicesDisabled ProviderErrorKind = "services-disabled"
	KindUnknown          ProviderErrorKind = "unknown"
)

// ProviderError is a recoverable location provider failure.
type ProviderError struct {
	Kind ProviderErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return "location provider: " + string(e.Kind)
	}
	return fmt.Sprintf("location provider: %s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// FailedFix is a fix that could not be saved. Failed fixes are kept for
// inspection and retry.
type FailedFix struct {
	Fix      models.Fix `json:"fix"`
	Reason   string     `json:"reason"`
	FailedAt time.Time  `json:"failed_at"`
}
