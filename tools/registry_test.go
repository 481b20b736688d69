package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewCurrentTimeTool()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !r.Has("current_time") {
		t.Error("expected current_time to be registered")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("expected missing function to be absent")
	}
	if err := r.Register(NewCurrentTimeTool()); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestRegistrySubset(t *testing.T) {
	r, err := WithDefaults()
	if err != nil {
		t.Fatalf("WithDefaults failed: %v", err)
	}
	if got := strings.Join(r.Names(), ","); got != "current_time,http_request" {
		t.Errorf("unexpected names: %s", got)
	}

	sub, err := r.Subset([]string{"http_request"})
	if err != nil {
		t.Fatalf("Subset failed: %v", err)
	}
	if sub.Has("current_time") || !sub.Has("http_request") {
		t.Errorf("unexpected subset: %v", sub.Names())
	}

	if _, err := r.Subset([]string{"http_request", "nope"}); err == nil || !strings.Contains(err.Error(), "nope") {
		t.Errorf("expected unknown function error, got %v", err)
	}
}

func TestRegistryDescription(t *testing.T) {
	r, _ := WithDefaults()
	desc := r.Description()
	if !strings.Contains(desc, "Function: http_request") || !strings.Contains(desc, "url (string)") {
		t.Errorf("unexpected description:\n%s", desc)
	}
}

func TestParamDocs(t *testing.T) {
	docs := NewHTTPTool(1).Metadata().ParamDocs()
	if docs["url"] != "string, required: The URL to request" {
		t.Errorf("unexpected url doc: %v", docs["url"])
	}
	if (Metadata{Name: "bare"}).ParamDocs() != nil {
		t.Error("expected nil docs for function without parameters")
	}
}

func TestCurrentTimeTool(t *testing.T) {
	fixed := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	tool := &CurrentTimeTool{now: func() time.Time { return fixed }}

	tests := []struct {
		name    string
		params  map[string]any
		want    string
		wantErr bool
	}{
		{"default utc", nil, "2024-03-10T12:00:00Z", false},
		{"named zone", map[string]any{"timezone": "Asia/Tokyo"}, "2024-03-10T21:00:00+09:00", false},
		{"unknown zone", map[string]any{"timezone": "Mars/Olympus"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Call(context.Background(), Call{Params: tt.params})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Call() error = %v, wantErr %v", err, tt.wantErr)
			}
			if res.Text != tt.want {
				t.Errorf("Call() = %q, want %q", res.Text, tt.want)
			}
		})
	}
}

func TestHTTPTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("hello " + r.Method))
		default:
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	tool := NewHTTPTool(5).WithClient(srv.Client())
	ctx := context.Background()

	res, err := tool.Call(ctx, Call{Params: map[string]any{"url": srv.URL + "/ok"}})
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if !strings.Contains(res.Text, "hello GET") {
		t.Errorf("unexpected body: %q", res.Text)
	}

	res, err = tool.Call(ctx, Call{Params: map[string]any{"url": srv.URL + "/ok", "method": "post", "body": "x"}})
	if err != nil || !strings.Contains(res.Text, "hello POST") {
		t.Errorf("POST failed: %q, %v", res.Text, err)
	}

	if _, err := tool.Call(ctx, Call{Params: map[string]any{"url": srv.URL + "/missing"}}); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected HTTP error, got %v", err)
	}
	if _, err := tool.Call(ctx, Call{}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := tool.Call(ctx, Call{Params: map[string]any{"url": srv.URL, "method": "DELETE"}}); err == nil {
		t.Error("expected error for unsupported method")
	}
}

func TestHTTPToolDomainAllowlist(t *testing.T) {
	tool := NewHTTPTool(1).WithAllowedDomains([]string{"example.com"})

	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/a", true},
		{"https://api.example.com/a", true},
		{"https://evil-example.com/a", false},
		{"https://example.com.evil.org/a", false},
	}
	for _, tt := range tests {
		if got := tool.isDomainAllowed(tt.url); got != tt.want {
			t.Errorf("isDomainAllowed(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
