package actions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iannil/gaia/internal/workflow"
)

func TestRegister(t *testing.T) {
	reg := workflow.NewRegistry()
	Register(reg)
	assert.Equal(t, []string{"echo", "http.request", "shell"}, reg.Names())
}

func TestEcho(t *testing.T) {
	out, err := Echo(context.Background(), map[string]any{"message": "hello"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"message": "hello"}, out)

	t.Run("missing message yields empty string", func(t *testing.T) {
		out, err := Echo(context.Background(), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"message": ""}, out)
	})

	t.Run("non-string values are rendered", func(t *testing.T) {
		out, err := Echo(context.Background(), map[string]any{"message": 42}, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"message": "42"}, out)
	})
}

func TestShell(t *testing.T) {
	t.Run("successful command", func(t *testing.T) {
		out, err := Shell(context.Background(), map[string]any{"command": "echo hello"}, nil)
		require.NoError(t, err)
		result := out.(map[string]any)
		assert.Equal(t, "hello", result["stdout"])
		assert.Equal(t, 0, result["exit_code"])
		assert.Equal(t, true, result["success"])
	})

	t.Run("non-zero exit is reported, not an error", func(t *testing.T) {
		out, err := Shell(context.Background(), map[string]any{"command": "echo oops >&2; exit 3"}, nil)
		require.NoError(t, err)
		result := out.(map[string]any)
		assert.Equal(t, 3, result["exit_code"])
		assert.Equal(t, false, result["success"])
		assert.Equal(t, "oops", result["stderr"])
	})

	t.Run("missing command parameter", func(t *testing.T) {
		_, err := Shell(context.Background(), nil, nil)
		assert.Error(t, err)
	})

	t.Run("cwd parameter", func(t *testing.T) {
		dir := t.TempDir()
		out, err := Shell(context.Background(), map[string]any{"command": "pwd", "cwd": dir}, nil)
		require.NoError(t, err)
		assert.Contains(t, out.(map[string]any)["stdout"], dir)
	})
}

func TestHTTPRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		case "/echo-method":
			w.Write([]byte(r.Method))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			assert.Equal(t, "token-123", r.Header.Get("Authorization"))
			w.Write([]byte("plain"))
		}
	}))
	defer server.Close()

	t.Run("json response is decoded", func(t *testing.T) {
		out, err := HTTPRequest(context.Background(), map[string]any{"url": server.URL + "/json"}, nil)
		require.NoError(t, err)
		result := out.(map[string]any)
		assert.Equal(t, 200, result["status_code"])
		assert.Equal(t, true, result["success"])
		assert.Equal(t, map[string]any{"status": "ok"}, result["body"])
	})

	t.Run("method and headers", func(t *testing.T) {
		out, err := HTTPRequest(context.Background(), map[string]any{
			"url":    server.URL + "/echo-method",
			"method": "post",
			"body":   map[string]any{"k": "v"},
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, "POST", out.(map[string]any)["body"])

		out, err = HTTPRequest(context.Background(), map[string]any{
			"url":     server.URL + "/authed",
			"headers": map[string]any{"Authorization": "token-123"},
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, "plain", out.(map[string]any)["body"])
	})

	t.Run("non-2xx is reported, not an error", func(t *testing.T) {
		out, err := HTTPRequest(context.Background(), map[string]any{"url": server.URL + "/missing"}, nil)
		require.NoError(t, err)
		result := out.(map[string]any)
		assert.Equal(t, 404, result["status_code"])
		assert.Equal(t, false, result["success"])
	})

	t.Run("missing url parameter", func(t *testing.T) {
		_, err := HTTPRequest(context.Background(), nil, nil)
		assert.Error(t, err)
	})

	t.Run("unreachable server", func(t *testing.T) {
		_, err := HTTPRequest(context.Background(), map[string]any{"url": "http://127.0.0.1:1/"}, nil)
		assert.Error(t, err)
	})
}
