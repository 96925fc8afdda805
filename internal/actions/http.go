package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// httpClient is shared across requests. Step timeouts apply through the
// request context; this is an upper bound for steps that set none.
var httpClient = &http.Client{Timeout: 5 * time.Minute}

// HTTPRequest performs an HTTP request. Parameters: url (required), method
// (default GET), headers (map), body (string, or any value serialized as
// JSON). The response body is decoded as JSON when the server says so,
// otherwise returned as a string. Non-2xx statuses are reported in the
// output, not as handler errors.
func HTTPRequest(ctx context.Context, params, _ map[string]any) (any, error) {
	url, err := stringParam(params, "url")
	if err != nil {
		return nil, err
	}

	method := http.MethodGet
	if raw, ok := params["method"].(string); ok && raw != "" {
		method = strings.ToUpper(raw)
	}

	var body io.Reader
	if raw, ok := params["body"]; ok {
		switch v := raw.(type) {
		case string:
			body = strings.NewReader(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encoding request body: %w", err)
			}
			body = strings.NewReader(string(encoded))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if headers, ok := params["headers"].(map[string]any); ok {
		for name, value := range headers {
			req.Header.Set(name, fmt.Sprint(value))
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var decoded any = string(raw)
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var parsed any
		if json.Unmarshal(raw, &parsed) == nil {
			decoded = parsed
		}
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        decoded,
		"success":     resp.StatusCode >= 200 && resp.StatusCode < 300,
	}, nil
}
