package salesctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRunAskCommand(t *testing.T) {
	var gotMethod, gotPath, gotAPIKey, gotContentType string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sql":"SELECT 1","cached":false}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-api-key", "k1",
		"ask", "top", "5", "products",
	}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodPost || gotPath != "/v1/ask" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAPIKey != "k1" || gotContentType != "application/json" {
		t.Fatalf("headers api_key=%q content_type=%q", gotAPIKey, gotContentType)
	}
	if gotBody["question"] != "top 5 products" {
		t.Fatalf("question = %q", gotBody["question"])
	}
	if !strings.Contains(stdout.String(), `"sql": "SELECT 1"`) {
		t.Fatalf("stdout = %s", stdout.String())
	}
}

func TestRunAskSQLOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"sql":"SELECT product_name FROM sales LIMIT 5","cached":true}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-sql-only", "ask", "products"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if strings.TrimSpace(stdout.String()) != "SELECT product_name FROM sales LIMIT 5" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunAskRequiresQuestion(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"ask"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
}

func TestRunReadCommands(t *testing.T) {
	cases := map[string]string{
		"stats":       "/v1/stats",
		"schema":      "/v1/schema",
		"cache-stats": "/v1/cache/stats",
		"health":      "/v1/health",
		"ready":       "/v1/ready",
	}
	for command, path := range cases {
		var gotMethod, gotPath string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotPath = r.URL.Path
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}))

		code := Run(context.Background(), []string{"-base-url", srv.URL, command}, Options{})
		srv.Close()
		if code != 0 {
			t.Fatalf("%s exit code = %d", command, code)
		}
		if gotMethod != http.MethodGet || gotPath != path {
			t.Fatalf("%s request = %s %s", command, gotMethod, gotPath)
		}
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error_code":"unsafe_query"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "ask", "drop everything"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "http 422") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"unknown"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
	if stderr.Len() == 0 {
		t.Fatal("expected usage output")
	}
}
