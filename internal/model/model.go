// Package model содержит доменные сущности сервиса магазина.
package model

import (
	"time"

	"github.com/google/uuid"
)

// User представляет зарегистрированного пользователя магазина.
// Token хранит единственный действующий токен сессии; nil означает,
// что активной сессии нет.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash []byte
	Token        *string
	CreatedAt    time.Time
}

// ItemStatus описывает статус товара в каталоге.
type ItemStatus string

const (
	ItemStatusAvailable ItemStatus = "available"
)

// Item описывает товар каталога. Цена хранится в центах.
type Item struct {
	ID          uuid.UUID
	Name        string
	PriceCents  int64
	Description string
	Image       string
	Status      ItemStatus
	CreatedAt   time.Time
}

// CartStatus описывает статус корзины.
type CartStatus string

const (
	CartStatusActive   CartStatus = "active"
	CartStatusInactive CartStatus = "inactive"
)

// CartLine описывает одну позицию корзины: товар и его количество.
type CartLine struct {
	Item     Item
	Quantity int
}

// Cart описывает корзину пользователя. После оформления заказа
// позиции очищаются, а статус переводится в inactive; сама корзина
// сохраняется ради ссылки из заказа.
type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Lines     []CartLine
	Status    CartStatus
	CreatedAt time.Time
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "completed"
)

// Order описывает оформленный заказ: снимок позиций корзины и
// итоговая сумма, зафиксированная в момент оформления. Заказ после
// создания не изменяется.
type Order struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	CartID     uuid.UUID
	Lines      []CartLine
	TotalCents int64
	Status     OrderStatus
	CreatedAt  time.Time
}
