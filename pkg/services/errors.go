package services

import (
	"errors"
	"fmt"

	"plusload/pkg/data"
)

// ErrSubscriptionRequired signals a chapter viewer without a terminal last
// page: the content is behind an access restriction the caller cannot
// bypass. It aborts only the affected chapter.
var ErrSubscriptionRequired = errors.New("a subscription is required to download this chapter")

// ErrNoTargets signals a download request without any title or chapter
// selection.
var ErrNoTargets = errors.New("expected at least one title or chapter id")

// InterruptedError wraps a cancelled run. It carries the partial summary
// accumulated before the interrupt so callers can still report progress.
type InterruptedError struct {
	Summary data.DownloadSummary
	Cause   error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("download interrupted: %d downloaded, %d failed", e.Summary.Downloaded, e.Summary.Failed)
}

func (e *InterruptedError) Unwrap() error {
	return e.Cause
}
