package server

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
)

// These tests live in package server (not server_test) so they can reach
// the unexported httpLogRecover middleware directly; registry_test.go and
// server_test.go exercise the package's exported surface from outside.

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPLogRecoverPassesThroughNormalRequests(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	ts := httptest.NewServer(httpLogRecover(discardLogger(), next))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTeapot)
	}
}

func TestHTTPLogRecoverRecoversPanic(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("intentional test panic")
	})

	ts := httptest.NewServer(httpLogRecover(discardLogger(), next))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestInterceptorsAppliesToConnectHandler(t *testing.T) {
	t.Parallel()

	checker := grpchealth.NewStaticChecker(grpchealth.HealthV1ServiceName)
	path, handler := grpchealth.NewHandler(checker, Interceptors(discardLogger()))

	mux := http.NewServeMux()
	mux.Handle(path, handler)

	ts := httptest.NewServer(mux)
	defer ts.Close()

	// A bare Connect unary POST with an empty JSON body against the
	// health handler, the same shape used by server_test.go's
	// TestHealthEndpointServes, just targeting the handler directly
	// rather than through the full Server mux.
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/grpc.health.v1.Health/Check",
		bytes.NewBufferString("{}"))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		t.Error("handler not mounted at expected path")
	}
}

// compile-time check that Interceptors returns a real connect.HandlerOption.
var _ connect.HandlerOption = Interceptors(discardLogger())
