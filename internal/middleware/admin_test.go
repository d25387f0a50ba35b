package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAdminAuthAuthenticate(t *testing.T) {
	auth, err := NewAdminAuth("admin", "secret-pass", "jwt-secret")
	if err != nil {
		t.Fatalf("NewAdminAuth: %v", err)
	}

	if _, err := auth.Authenticate("admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := auth.Authenticate("other", "secret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong login: err = %v, want ErrInvalidCredentials", err)
	}

	token, err := auth.Authenticate("admin", "secret-pass")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}
}

func TestAdminAuthMiddleware(t *testing.T) {
	auth, err := NewAdminAuth("admin", "secret-pass", "jwt-secret")
	if err != nil {
		t.Fatalf("NewAdminAuth: %v", err)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := auth.Middleware(next)

	t.Run("valid token", func(t *testing.T) {
		token, err := auth.Authenticate("admin", "secret-pass")
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/api/admin/promo", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/promo", nil)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		other, err := NewAdminAuth("admin", "secret-pass", "another-secret")
		if err != nil {
			t.Fatalf("NewAdminAuth: %v", err)
		}
		token, err := other.Authenticate("admin", "secret-pass")
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/api/admin/promo", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/promo", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
	})
}
