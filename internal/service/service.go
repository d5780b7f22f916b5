// Package service реализует бизнес-логику сервиса магазина.
package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/shopcart-system/internal/model"
	"github.com/mmeshcher/shopcart-system/internal/repository"
	"github.com/mmeshcher/shopcart-system/internal/token"
)

// ErrInvalidCredentials возвращается при неверной паре имя/пароль.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrCartOwnedByAnother возвращается, если корзина принадлежит другому пользователю.
	ErrCartOwnedByAnother = errors.New("cart does not belong to this user")
	// ErrCartEmpty возвращается при попытке оформить заказ из пустой корзины.
	ErrCartEmpty = errors.New("cart is empty")
)

const defaultItemImage = "https://via.placeholder.com/200?text=Item"

const storeCheckInterval = 5 * time.Second

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ready() bool
	CheckReady(ctx context.Context) error

	CreateUser(ctx context.Context, username string, passwordHash []byte) (uuid.UUID, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	SetUserToken(ctx context.Context, id uuid.UUID, token string) error
	ClearUserToken(ctx context.Context, id uuid.UUID) error

	CreateItem(ctx context.Context, item model.Item) (*model.Item, error)
	GetItemByID(ctx context.Context, id uuid.UUID) (*model.Item, error)
	ListItems(ctx context.Context) ([]model.Item, error)

	AddCartLine(ctx context.Context, userID, itemID uuid.UUID) (*model.Cart, error)
	GetCartByID(ctx context.Context, id uuid.UUID) (*model.Cart, error)
	GetCartByUser(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	ListCarts(ctx context.Context) ([]model.Cart, error)

	CreateOrder(ctx context.Context, userID, cartID uuid.UUID, lines []model.CartLine, totalCents int64) (*model.Order, error)
	RetireCart(ctx context.Context, cartID uuid.UUID) error
	GetOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
}

// Service содержит бизнес-логику сервиса магазина.
type Service struct {
	repo   Repository
	tokens *token.Manager
}

// NewService создаёт новый сервис с указанным репозиторием и менеджером токенов.
func NewService(repo Repository, tokens *token.Manager) *Service {
	return &Service{
		repo:   repo,
		tokens: tokens,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// StoreReady сообщает, готово ли хранилище к обслуживанию запросов.
func (s *Service) StoreReady() bool {
	return s.repo.Ready()
}

// StartStoreMonitor запускает фоновый процесс, который следит за доступностью
// хранилища и поддерживает флаг готовности. Первая успешная проверка
// инициализирует схему БД.
func (s *Service) StartStoreMonitor(ctx context.Context) {
	check := func() {
		checkCtx, cancel := context.WithTimeout(ctx, storeCheckInterval)
		defer cancel()
		_ = s.repo.CheckReady(checkCtx)
	}

	check()

	go func() {
		ticker := time.NewTicker(storeCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

// Register регистрирует нового пользователя. Пароль сохраняется
// только в виде bcrypt-хеша.
func (s *Service) Register(ctx context.Context, username, password string) (uuid.UUID, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return uuid.Nil, err
	}

	return s.repo.CreateUser(ctx, username, hash)
}

// Login проверяет учётные данные и выпускает новый токен сессии.
// Если у пользователя уже есть действующий токен, вход с другого
// устройства запрещён до явного выхода.
func (s *Service) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	u, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	// Проверка активной сессии идёт до проверки пароля.
	if u.Token != nil {
		return "", nil, repository.ErrAlreadyLoggedIn
	}

	if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	t, err := s.tokens.Issue(u.ID)
	if err != nil {
		return "", nil, err
	}

	if err := s.repo.SetUserToken(ctx, u.ID, t); err != nil {
		return "", nil, err
	}

	return t, u, nil
}

// Logout сбрасывает токен сессии пользователя.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	return s.repo.ClearUserToken(ctx, userID)
}

// Authenticate проверяет токен сессии: подпись, существование пользователя
// и точное совпадение с токеном, сохранённым в его записи. Проверка ничего
// не изменяет в хранилище.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*model.User, error) {
	userID, err := s.tokens.Parse(tokenString)
	if err != nil {
		return nil, err
	}

	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if u.Token == nil || *u.Token != tokenString {
		return nil, token.ErrInvalidToken
	}

	return u, nil
}

// ListUsers возвращает всех пользователей.
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.repo.ListUsers(ctx)
}

// AddItem добавляет товар в каталог. Цена принимается в долларах
// и хранится в центах.
func (s *Service) AddItem(ctx context.Context, name string, price float64, description, image string) (*model.Item, error) {
	if image == "" {
		image = defaultItemImage
	}

	return s.repo.CreateItem(ctx, model.Item{
		Name:        name,
		PriceCents:  int64(math.Round(price * 100)),
		Description: description,
		Image:       image,
	})
}

// ListItems возвращает все товары каталога.
func (s *Service) ListItems(ctx context.Context) ([]model.Item, error) {
	return s.repo.ListItems(ctx)
}

// AddToCart добавляет товар в корзину пользователя: количество уже
// присутствующего товара увеличивается на единицу, новый товар
// добавляется отдельной позицией.
func (s *Service) AddToCart(ctx context.Context, userID, itemID uuid.UUID) (*model.Cart, error) {
	if _, err := s.repo.GetItemByID(ctx, itemID); err != nil {
		return nil, err
	}

	return s.repo.AddCartLine(ctx, userID, itemID)
}

// GetCartByUser возвращает корзину пользователя.
func (s *Service) GetCartByUser(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	return s.repo.GetCartByUser(ctx, userID)
}

// ListCarts возвращает все корзины.
func (s *Service) ListCarts(ctx context.Context) ([]model.Cart, error) {
	return s.repo.ListCarts(ctx)
}

// Checkout оформляет заказ из корзины: фиксирует снимок позиций и итоговую
// сумму, затем очищает корзину. Создание заказа и очистка корзины — два
// отдельных обращения к хранилищу; сбой между ними оставит оформленный
// заказ рядом с неочищенной корзиной.
func (s *Service) Checkout(ctx context.Context, userID, cartID uuid.UUID) (*model.Order, error) {
	cart, err := s.repo.GetCartByID(ctx, cartID)
	if err != nil {
		return nil, err
	}

	if cart.UserID != userID {
		return nil, ErrCartOwnedByAnother
	}

	if len(cart.Lines) == 0 {
		return nil, ErrCartEmpty
	}

	var totalCents int64
	for _, line := range cart.Lines {
		totalCents += line.Item.PriceCents * int64(line.Quantity)
	}

	order, err := s.repo.CreateOrder(ctx, userID, cartID, cart.Lines, totalCents)
	if err != nil {
		return nil, err
	}

	if err := s.repo.RetireCart(ctx, cartID); err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrdersByUser возвращает заказы пользователя.
func (s *Service) GetOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return s.repo.GetOrdersByUser(ctx, userID)
}

// ListOrders возвращает все заказы.
func (s *Service) ListOrders(ctx context.Context) ([]model.Order, error) {
	return s.repo.ListOrders(ctx)
}
