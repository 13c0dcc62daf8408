package approval

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
)

// Notifier delivers the side-channel approval request (typically an email
// with one link per outcome). Implementations are fire-and-forget from the
// gate's point of view: errors are logged, never surfaced to the run.
type Notifier interface {
	Notify(ctx context.Context, approvalID string, payload map[string]any, approveURL, rejectURL string) error
}

// CallbackURLs builds the approve/reject callback URLs for an approval.
// The HTTP handler behind them is the caller's concern.
func CallbackURLs(baseURL, approvalID string) (approveURL, rejectURL string) {
	escaped := url.PathEscape(approvalID)
	approveURL = fmt.Sprintf("%s/approvals/%s/approve", baseURL, escaped)
	rejectURL = fmt.Sprintf("%s/approvals/%s/reject", baseURL, escaped)
	return approveURL, rejectURL
}

// LogNotifier writes approval requests to the log. Used as the default when
// no email transport is wired in.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, approvalID string, payload map[string]any, approveURL, rejectURL string) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "approval requested",
		slog.String("approval_id", approvalID),
		slog.String("approve_url", approveURL),
		slog.String("reject_url", rejectURL),
		slog.Any("payload", payload),
	)
	return nil
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, approvalID string, payload map[string]any, approveURL, rejectURL string) error

func (f NotifierFunc) Notify(ctx context.Context, approvalID string, payload map[string]any, approveURL, rejectURL string) error {
	return f(ctx, approvalID, payload, approveURL, rejectURL)
}
