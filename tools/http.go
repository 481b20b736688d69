// HTTP Client Function.
//
// Information Hiding:
// - HTTP client implementation details hidden
// - Request/response handling abstracted
// - Domain allowlist enforced before any request

package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxHTTPBody caps how much of a response body is handed back to the agent.
const maxHTTPBody = 64 * 1024

// HTTPTool makes HTTP requests.
type HTTPTool struct {
	client         *http.Client
	timeoutSecs    uint64
	allowedDomains []string
}

// NewHTTPTool creates a new HTTP function with the given timeout.
func NewHTTPTool(timeoutSecs uint64) *HTTPTool {
	return &HTTPTool{
		client: &http.Client{
			Timeout: time.Duration(timeoutSecs) * time.Second,
		},
		timeoutSecs: timeoutSecs,
	}
}

// WithAllowedDomains sets the allowed domains for requests.
func (t *HTTPTool) WithAllowedDomains(domains []string) *HTTPTool {
	t.allowedDomains = domains
	return t
}

// WithClient replaces the HTTP client.
func (t *HTTPTool) WithClient(c *http.Client) *HTTPTool {
	t.client = c
	return t
}

// Metadata returns the function metadata.
func (t *HTTPTool) Metadata() Metadata {
	return Metadata{
		Name:        "http_request",
		Description: "Make HTTP GET or POST requests to fetch data from URLs",
		Parameters: []Parameter{
			{Name: "url", ParamType: "string", Description: "The URL to request", Required: true},
			{Name: "method", ParamType: "string", Description: "HTTP method (GET or POST)", Required: false},
			{Name: "body", ParamType: "string", Description: "Request body for POST requests", Required: false},
		},
	}
}

// Call makes the HTTP request. Non-2xx statuses are returned as errors.
func (t *HTTPTool) Call(ctx context.Context, call Call) (Result, error) {
	rawURL := stringParam(call.Params, "url")
	if rawURL == "" {
		return Result{}, errors.New("URL cannot be empty")
	}

	if !t.isDomainAllowed(rawURL) {
		return Result{}, fmt.Errorf("access to domain in '%s' is not allowed", rawURL)
	}

	method := strings.ToUpper(stringParam(call.Params, "method"))
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodPost {
		return Result{}, errors.New("only GET and POST methods are supported")
	}

	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(stringParam(call.Params, "body"))
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("request timed out after %d seconds", t.timeoutSecs)
		}
		return Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return TextResult(fmt.Sprintf("Status: %s\n\n%s", resp.Status, string(data))), nil
	}
	return Result{}, fmt.Errorf("HTTP error: %s\n\n%s", resp.Status, string(data))
}

// isDomainAllowed checks if the URL's domain is in the allowlist.
// Uses proper URL parsing to prevent bypass attacks.
func (t *HTTPTool) isDomainAllowed(urlStr string) bool {
	if len(t.allowedDomains) == 0 {
		return true
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	host := u.Hostname()
	for _, domain := range t.allowedDomains {
		// Exact match or subdomain match
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func stringParam(params map[string]any, key string) string {
	switch v := params[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
