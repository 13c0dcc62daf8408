package executors

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/conduit/pkg/schema"
)

func TestFetchExecutorJSONResponse(t *testing.T) {
	var gotPath, gotMethod, gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Token")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "r-1", "ok": true})
	}))
	defer server.Close()

	x := NewFetchExecutor(server.Client())
	out, err := x.Execute(context.Background(), ExecInput{
		Config: map[string]any{
			"url":     server.URL + "/items/{{itemId}}",
			"headers": map[string]any{"X-Token": "{{token}}"},
		},
		Trigger: map[string]any{"itemId": "42", "token": "secret"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/items/42", gotPath)
	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "secret", gotHeader)
	assert.Equal(t, 200, out["status"])

	body := out["body"].(map[string]any)
	assert.Equal(t, "r-1", body["id"])
	assert.Equal(t, true, body["ok"])
}

func TestFetchExecutorPostWithInterpolatedBody(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer server.Close()

	x := NewFetchExecutor(server.Client())
	out, err := x.Execute(context.Background(), ExecInput{
		Config: map[string]any{
			"url":    server.URL,
			"method": "post",
			"body":   `{"env": "{{env}}"}`,
		},
		Trigger: map[string]any{"env": "prod"},
	})
	require.NoError(t, err)

	assert.Equal(t, `{"env": "prod"}`, gotBody)
	assert.Equal(t, 201, out["status"])
	assert.Equal(t, "created", out["body"])
}

func TestFetchExecutorNonJSONBodyIsString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("plain response"))
	}))
	defer server.Close()

	x := NewFetchExecutor(server.Client())
	out, err := x.Execute(context.Background(), ExecInput{
		Config: map[string]any{"url": server.URL},
	})
	require.NoError(t, err)
	assert.Equal(t, "plain response", out["body"])
}

func TestFetchExecutorErrorStatusIsStillAResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	x := NewFetchExecutor(server.Client())
	out, err := x.Execute(context.Background(), ExecInput{
		Config: map[string]any{"url": server.URL},
	})
	require.NoError(t, err)
	assert.Equal(t, 503, out["status"])
}

func TestFetchExecutorMissingURL(t *testing.T) {
	x := NewFetchExecutor(nil)
	_, err := x.Execute(context.Background(), ExecInput{NodeID: "f"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, err.(*schema.ConduitError).Code)
}

func TestFetchExecutorUnreachableHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	x := NewFetchExecutor(nil)
	_, err := x.Execute(context.Background(), ExecInput{
		Config: map[string]any{"url": url},
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExecution, err.(*schema.ConduitError).Code)
}
