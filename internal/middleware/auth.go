// Package middleware содержит HTTP middleware сервиса магазина.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/mmeshcher/shopcart-system/internal/model"
	"github.com/mmeshcher/shopcart-system/internal/repository"
)

type contextKey string

const userIDKey contextKey = "userID"

// Authenticator описывает проверку токена сессии: подпись, существование
// пользователя и совпадение с токеном, сохранённым в его записи.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// AuthMiddleware выполняет проверку аутентификации пользователя по токену
// из заголовка Authorization. Токен передаётся как есть, без префикса Bearer.
type AuthMiddleware struct {
	auth Authenticator
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware.
func NewAuthMiddleware(auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// Middleware проверяет токен и добавляет идентификатор пользователя
// в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeMessage(w, http.StatusUnauthorized, "No token provided")
			return
		}

		u, err := a.auth.Authenticate(r.Context(), tokenString)
		if err != nil {
			// Токен подписан верно, но его владелец исчез из хранилища.
			if errors.Is(err, repository.ErrUserNotFound) {
				writeMessage(w, http.StatusNotFound, "User not found")
				return
			}
			writeMessage(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, u.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
