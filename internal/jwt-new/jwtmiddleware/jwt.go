package jwtmiddleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/linemk/tolo-delivery/internal/domain/models"
	"github.com/linemk/tolo-delivery/internal/lib/api/response"
	"github.com/linemk/tolo-delivery/internal/lib/apperr"
	"github.com/linemk/tolo-delivery/internal/service"
)

type contextKey string

const UserKey contextKey = "user"

// InitDataHeader - заголовок, в котором Mini App передаёт подписанный initData
const InitDataHeader = "X-Telegram-Init-Data"

// New создаёт middleware аутентификации: сначала Bearer-токен, без него - initData.
func New(log *slog.Logger, auth service.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "jwtmiddleware.New"
			logger := log.With(slog.String("op", op))

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				logger.Warn("invalid authorization header")
				response.Error(w, logger, apperr.ErrTokenInvalid)
				return
			}

			user, err := auth.Authenticate(r.Context(), token, r.Header.Get(InitDataHeader))
			if err != nil {
				logger.Warn("authentication failed", slog.Any("error", err))
				response.Error(w, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken достаёт токен из "Bearer <token>". Пустой заголовок - не ошибка.
func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", true
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// FromContext извлекает пользователя из контекста.
func FromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserKey).(*models.User)
	return user, ok && user != nil
}

// WithUser кладёт пользователя в контекст
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}
