package executors

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rendis/conduit/internal/expressions"
	"github.com/rendis/conduit/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultFetchTimeout    = 30 * time.Second
)

// FetchExecutor handles external-fetch nodes: an HTTP request against an
// external service. The URL, body, and header values are interpolated.
//
// Config: "url" (required), "method" (default GET), "body", "headers".
// Output: {"status": int, "body": any}; JSON responses are decoded.
type FetchExecutor struct {
	client  *http.Client
	maxBody int64
}

// NewFetchExecutor creates a FetchExecutor. A nil client gets a default with
// a 30s timeout; handlers enforce their own I/O deadlines, not the engine.
func NewFetchExecutor(client *http.Client) *FetchExecutor {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &FetchExecutor{client: client, maxBody: defaultMaxResponseBody}
}

func (x *FetchExecutor) Type() schema.NodeType { return schema.NodeTypeExternalFetch }

func (x *FetchExecutor) Execute(ctx context.Context, in ExecInput) (map[string]any, error) {
	rawURL := stringParam(in.Config, "url", "")
	if rawURL == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "external-fetch node has no url").WithNode(in.NodeID)
	}
	url := expressions.Resolve(rawURL, in.Trigger, in.Results)

	method := strings.ToUpper(stringParam(in.Config, "method", http.MethodGet))

	var body io.Reader
	if raw := stringParam(in.Config, "body", ""); raw != "" {
		body = strings.NewReader(expressions.Resolve(raw, in.Trigger, in.Results))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "build request: %s", err.Error()).
			WithNode(in.NodeID).WithCause(err)
	}
	for key, val := range mapParam(in.Config, "headers") {
		if s, ok := val.(string); ok {
			req.Header.Set(key, expressions.Resolve(s, in.Trigger, in.Results))
		}
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "request failed: %s", err.Error()).
			WithNode(in.NodeID).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, x.maxBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "read response: %s", err.Error()).
			WithNode(in.NodeID).WithCause(err)
	}

	out := map[string]any{"status": resp.StatusCode}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		var decoded any
		if err := json.Unmarshal(data, &decoded); err == nil {
			out["body"] = decoded
			return out, nil
		}
	}
	out["body"] = string(data)
	return out, nil
}
