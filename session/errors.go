package session

import (
	"context"
	"errors"
)

// Sentinel errors for common error conditions.
var (
	ErrEngineClosed      = errors.New("engine is closed")
	ErrEmptyPrompt       = errors.New("prompt is empty")
	ErrNoPendingApproval = errors.New("no approval is pending")
	ErrApprovalMismatch  = errors.New("approval request id does not match the pending request")
	ErrApprovalStale     = errors.New("approval decision was sent but the request is no longer pending")
)

// IsCancellation reports whether err stems from the stream being cancelled by
// Stop, Close, a superseding Send, or the caller's context. Deadlines are not
// cancellations.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
