// Package validation содержит функции валидации входных данных.
package validation

import "strings"

// ValidCredentials проверяет, что имя пользователя и пароль не пустые.
func ValidCredentials(username, password string) bool {
	return strings.TrimSpace(username) != "" && password != ""
}

// ValidPrice проверяет, что цена товара положительна.
func ValidPrice(price float64) bool {
	return price > 0
}
