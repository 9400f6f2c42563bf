package checkdef

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func newTestAPI(t *testing.T, handler http.HandlerFunc) (*APIClient, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	host, portText, err := net.SplitHostPort(server.Listener.Addr().String())
	if err != nil {
		t.Fatalf("failed to split test server address: %v", err)
	}
	port, _ := strconv.Atoi(portText)
	client, err := NewAPIClient(APIClientOptions{
		Host:      host,
		Port:      port,
		User:      "admin",
		Password:  "secret",
		UserAgent: "check-cluster/test",
	})
	if err != nil {
		t.Fatalf("failed to create api client: %v", err)
	}
	return client, server.Close
}

func TestAPIClientFetchesCheck(t *testing.T) {
	client, stop := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checks/disk" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			t.Errorf("expected basic auth, got %q/%q (%v)", user, pass, ok)
		}
		if got := r.Header.Get("User-Agent"); got != "check-cluster/test" {
			t.Errorf("unexpected user agent %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"disk","interval":60,"subscribers":["all"]}`))
	})
	defer stop()

	def, err := client.Check(context.Background(), "disk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Interval != 60 {
		t.Fatalf("expected interval 60, got %d", def.Interval)
	}
	if _, ok := def.Extra["subscribers"]; !ok {
		t.Fatalf("expected extra fields to be kept, got %v", def.Extra)
	}
}

func TestAPIClientNotFound(t *testing.T) {
	client, stop := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	defer stop()

	if _, err := client.Check(context.Background(), "disk"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAPIClientServerError(t *testing.T) {
	client, stop := newTestAPI(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	})
	defer stop()

	_, err := client.Check(context.Background(), "disk")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Body != "backend down" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestNewAPIClientValidation(t *testing.T) {
	if _, err := NewAPIClient(APIClientOptions{Port: 4567}); err == nil {
		t.Fatal("expected error for missing host")
	}
	if _, err := NewAPIClient(APIClientOptions{Host: "localhost"}); err == nil {
		t.Fatal("expected error for missing port")
	}
}
