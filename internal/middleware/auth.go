package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

type contextKey string

const telegramUserKey contextKey = "telegramUser"

// Подписанные Telegram init data считаются действительными сутки.
const initDataTTL = 24 * time.Hour

// TelegramUser содержит данные пользователя Mini App, проверенные по подписи Telegram.
type TelegramUser struct {
	ID         int64  `json:"id"`
	FirstName  string `json:"first_name"`
	Username   string `json:"username"`
	StartParam string `json:"-"`
}

// TelegramAuth проверяет подпись init data Telegram Mini App.
type TelegramAuth struct {
	secretKey []byte
	now       func() time.Time
}

// NewTelegramAuth создаёт TelegramAuth для указанного токена бота.
// Ключ подписи — HMAC-SHA256 от токена с ключом "WebAppData".
func NewTelegramAuth(botToken string) *TelegramAuth {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))

	return &TelegramAuth{
		secretKey: mac.Sum(nil),
		now:       time.Now,
	}
}

// Middleware проверяет init data из заголовка Authorization ("tma <initData>")
// и кладёт данные пользователя в контекст запроса.
func (a *TelegramAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		initData, ok := strings.CutPrefix(r.Header.Get("Authorization"), "tma ")
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		user, err := a.Validate(initData)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), telegramUserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Validate проверяет подпись и срок действия init data и возвращает пользователя.
func (a *TelegramAuth) Validate(initData string) (*TelegramUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("parse init data: %w", err)
	}

	gotHash := values.Get("hash")
	if gotHash == "" {
		return nil, fmt.Errorf("init data has no hash")
	}
	values.Del("hash")

	// data-check-string: пары key=value, отсортированные по ключу,
	// разделённые переводом строки.
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}

	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(strings.Join(pairs, "\n")))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(gotHash)) {
		return nil, fmt.Errorf("init data signature mismatch")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse auth_date: %w", err)
	}
	if a.now().Sub(time.Unix(authDate, 0)) > initDataTTL {
		return nil, fmt.Errorf("init data expired")
	}

	var user TelegramUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil {
		return nil, fmt.Errorf("parse user: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("init data has no user id")
	}

	user.StartParam = values.Get("start_param")

	return &user, nil
}

// SignInitData подписывает значения как это делает Telegram. Используется в тестах.
func (a *TelegramAuth) SignInitData(values url.Values) string {
	values.Del("hash")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}

	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(strings.Join(pairs, "\n")))
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))

	return values.Encode()
}

// GetTelegramUserFromContext извлекает пользователя Telegram из контекста запроса.
func GetTelegramUserFromContext(ctx context.Context) (*TelegramUser, bool) {
	user, ok := ctx.Value(telegramUserKey).(*TelegramUser)
	return user, ok
}
