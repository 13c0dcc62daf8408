package executors

import (
	"context"
	"log/slog"

	"github.com/rendis/conduit/internal/expressions"
	"github.com/rendis/conduit/pkg/schema"
)

// Messenger is the boundary to an outbound message channel (email delivery
// lives behind it, out of the core's scope).
type Messenger interface {
	Send(ctx context.Context, to, subject, body string) error
}

// MessengerFunc adapts a function to the Messenger interface.
type MessengerFunc func(ctx context.Context, to, subject, body string) error

func (f MessengerFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

// LogMessenger writes messages to the log instead of delivering them.
type LogMessenger struct {
	Logger *slog.Logger
}

func (m *LogMessenger) Send(ctx context.Context, to, subject, body string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "message sent",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.Int("body_bytes", len(body)),
	)
	return nil
}

// NotifyExecutor handles external-notify nodes: it interpolates recipient,
// subject, and body, then hands delivery to the injected Messenger.
//
// Config: "to" (required), "subject", "body". A body defaulting to the
// findings digest of the gathered inputs keeps simple graphs useful.
// Output: {"sent": true, "to": string}.
type NotifyExecutor struct {
	messenger Messenger
}

func NewNotifyExecutor(messenger Messenger) *NotifyExecutor {
	if messenger == nil {
		messenger = &LogMessenger{}
	}
	return &NotifyExecutor{messenger: messenger}
}

func (x *NotifyExecutor) Type() schema.NodeType { return schema.NodeTypeExternalNotify }

func (x *NotifyExecutor) Execute(ctx context.Context, in ExecInput) (map[string]any, error) {
	to := expressions.Resolve(stringParam(in.Config, "to", ""), in.Trigger, in.Results)
	if to == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "external-notify node has no recipient").WithNode(in.NodeID)
	}

	subject := expressions.Resolve(stringParam(in.Config, "subject", ""), in.Trigger, in.Results)
	body := expressions.Resolve(stringParam(in.Config, "body", ""), in.Trigger, in.Results)
	if body == "" {
		body = Findings(in.Inputs)
	}

	if err := x.messenger.Send(ctx, to, subject, body); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotify, "send failed: %s", err.Error()).
			WithNode(in.NodeID).WithCause(err)
	}

	return map[string]any{"sent": true, "to": to}, nil
}
