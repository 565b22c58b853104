package port

import "context"

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, runID string, displayName string, stage string, errorMsg string) error
}
