package middleware

import "net/http"

// ReadinessChecker сообщает, готово ли хранилище к обслуживанию запросов.
type ReadinessChecker interface {
	StoreReady() bool
}

// Readiness возвращает middleware, который отклоняет запросы со статусом 503,
// пока соединение с хранилищем не установлено. Флаг готовности поддерживается
// фоновым монитором хранилища.
func Readiness(checker ReadinessChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !checker.StoreReady() {
				writeMessage(w, http.StatusServiceUnavailable,
					"Database not connected. Start PostgreSQL or set DATABASE_URI.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
