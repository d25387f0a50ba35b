package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

const testBotToken = "12345:test-bot-token"

func signedInitData(t *testing.T, a *TelegramAuth, user string, authDate time.Time, startParam string) string {
	t.Helper()

	values := url.Values{}
	values.Set("user", user)
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("query_id", "AAHdF6IQAAAAAN0XohDhrOrc")
	if startParam != "" {
		values.Set("start_param", startParam)
	}

	return a.SignInitData(values)
}

func TestTelegramAuthValidate(t *testing.T) {
	auth := NewTelegramAuth(testBotToken)

	userJSON := `{"id":279058397,"first_name":"Владислав","username":"vdkfrost"}`

	t.Run("valid init data", func(t *testing.T) {
		initData := signedInitData(t, auth, userJSON, time.Now(), "KAVREF12345")

		user, err := auth.Validate(initData)
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if user.ID != 279058397 {
			t.Fatalf("id = %d, want 279058397", user.ID)
		}
		if user.Username != "vdkfrost" {
			t.Fatalf("username = %s, want vdkfrost", user.Username)
		}
		if user.StartParam != "KAVREF12345" {
			t.Fatalf("start_param = %s, want KAVREF12345", user.StartParam)
		}
	})

	t.Run("tampered payload", func(t *testing.T) {
		initData := signedInitData(t, auth, userJSON, time.Now(), "")

		values, _ := url.ParseQuery(initData)
		values.Set("user", `{"id":1,"first_name":"evil"}`)

		if _, err := auth.Validate(values.Encode()); err == nil {
			t.Fatal("expected error for tampered init data")
		}
	})

	t.Run("wrong bot token", func(t *testing.T) {
		other := NewTelegramAuth("99999:other-token")
		initData := signedInitData(t, other, userJSON, time.Now(), "")

		if _, err := auth.Validate(initData); err == nil {
			t.Fatal("expected error for foreign signature")
		}
	})

	t.Run("expired auth_date", func(t *testing.T) {
		initData := signedInitData(t, auth, userJSON, time.Now().Add(-25*time.Hour), "")

		if _, err := auth.Validate(initData); err == nil {
			t.Fatal("expected error for expired init data")
		}
	})

	t.Run("missing hash", func(t *testing.T) {
		if _, err := auth.Validate("user=%7B%22id%22%3A1%7D&auth_date=1"); err == nil {
			t.Fatal("expected error for missing hash")
		}
	})
}

func TestTelegramAuthMiddleware(t *testing.T) {
	auth := NewTelegramAuth(testBotToken)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := GetTelegramUserFromContext(r.Context())
		if !ok {
			t.Fatal("user missing from context")
		}
		if user.ID != 42 {
			t.Fatalf("id = %d, want 42", user.ID)
		}
		w.WriteHeader(http.StatusOK)
	})

	handler := auth.Middleware(next)

	t.Run("authorized", func(t *testing.T) {
		initData := signedInitData(t, auth, `{"id":42,"first_name":"Test"}`, time.Now(), "")

		req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
		req.Header.Set("Authorization", "tma "+initData)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
	})

	t.Run("invalid signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
		req.Header.Set("Authorization", "tma user=%7B%22id%22%3A42%7D&auth_date=1&hash=deadbeef")

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", w.Code)
		}
	})
}
