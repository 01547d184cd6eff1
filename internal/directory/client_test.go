package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestServer(t *testing.T) (*httptest.Server, *string) {
	t.Helper()
	var lastAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/organization/developers", func(w http.ResponseWriter, r *http.Request) {
		lastAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 7, "email": "dev7@x.com"},
			{"id": 8, "email": "dev8@x.com"},
		})
	})
	mux.HandleFunc("/organization/product-owners", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 3, "email": "po3@x.com"},
		})
	})
	mux.HandleFunc("/organization/11", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "Acme"})
	})
	mux.HandleFunc("/organization/12", func(w http.ResponseWriter, r *http.Request) {
		// some deployments expose title instead of name
		_ = json.NewEncoder(w).Encode(map[string]any{"title": "Globex"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &lastAuth
}

func TestDeveloperEmail(t *testing.T) {
	srv, lastAuth := newTestServer(t)
	c := NewClient(srv.URL, "svc-token", time.Second)

	email, err := c.DeveloperEmail(context.Background(), 7)
	if err != nil {
		t.Fatalf("DeveloperEmail() error: %v", err)
	}
	if email != "dev7@x.com" {
		t.Errorf("DeveloperEmail() = %q, want dev7@x.com", email)
	}
	if *lastAuth != "Bearer svc-token" {
		t.Errorf("Authorization = %q, want Bearer svc-token", *lastAuth)
	}
}

func TestDeveloperEmail_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	c := NewClient(srv.URL, "", time.Second)

	if _, err := c.DeveloperEmail(context.Background(), 99); err == nil {
		t.Error("DeveloperEmail(99) = nil error, want not-found")
	}
}

func TestMemberEmail_FallsBackToProductOwners(t *testing.T) {
	srv, _ := newTestServer(t)
	c := NewClient(srv.URL, "", time.Second)

	email, err := c.MemberEmail(context.Background(), 3)
	if err != nil {
		t.Fatalf("MemberEmail() error: %v", err)
	}
	if email != "po3@x.com" {
		t.Errorf("MemberEmail() = %q, want po3@x.com", email)
	}
}

func TestOrganizationName(t *testing.T) {
	srv, _ := newTestServer(t)
	c := NewClient(srv.URL, "", time.Second)

	tests := []struct {
		id   int64
		want string
	}{
		{11, "Acme"},
		{12, "Globex"},
	}
	for _, tt := range tests {
		got, err := c.OrganizationName(context.Background(), tt.id)
		if err != nil {
			t.Fatalf("OrganizationName(%d) error: %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("OrganizationName(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestGet_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if _, err := c.DeveloperEmail(context.Background(), 7); err == nil {
		t.Error("DeveloperEmail() = nil error on 500 response")
	}
}
