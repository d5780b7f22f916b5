// Package handler содержит HTTP-обработчики API сервиса магазина.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/shopcart-system/internal/middleware"
	"github.com/mmeshcher/shopcart-system/internal/model"
	"github.com/mmeshcher/shopcart-system/internal/repository"
	"github.com/mmeshcher/shopcart-system/internal/service"
	"github.com/mmeshcher/shopcart-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Register(ctx context.Context, username, password string) (uuid.UUID, error)
	Login(ctx context.Context, username, password string) (string, *model.User, error)
	Logout(ctx context.Context, userID uuid.UUID) error
	ListUsers(ctx context.Context) ([]model.User, error)

	AddItem(ctx context.Context, name string, price float64, description, image string) (*model.Item, error)
	ListItems(ctx context.Context) ([]model.Item, error)

	AddToCart(ctx context.Context, userID, itemID uuid.UUID) (*model.Cart, error)
	GetCartByUser(ctx context.Context, userID uuid.UUID) (*model.Cart, error)
	ListCarts(ctx context.Context) ([]model.Cart, error)

	Checkout(ctx context.Context, userID, cartID uuid.UUID) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
}

// Handler реализует HTTP-обработчики API сервиса магазина.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	readiness      middleware.ReadinessChecker
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, readiness middleware.ReadinessChecker) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		readiness:      readiness,
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"message": message})
}

type userResponse struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Token     *string `json:"token,omitempty"`
	CreatedAt string  `json:"createdAt"`
}

func toUserResponse(u model.User) userResponse {
	return userResponse{
		ID:        u.ID.String(),
		Username:  u.Username,
		Token:     u.Token,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

type itemResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"createdAt"`
}

func toItemResponse(item model.Item) itemResponse {
	return itemResponse{
		ID:          item.ID.String(),
		Name:        item.Name,
		Price:       float64(item.PriceCents) / 100,
		Description: item.Description,
		Image:       item.Image,
		Status:      string(item.Status),
		CreatedAt:   item.CreatedAt.Format(time.RFC3339),
	}
}

type cartLineResponse struct {
	Item     itemResponse `json:"item"`
	Quantity int          `json:"quantity"`
}

type cartResponse struct {
	ID        string             `json:"id"`
	UserID    string             `json:"userId"`
	Items     []cartLineResponse `json:"items"`
	Status    string             `json:"status"`
	CreatedAt string             `json:"createdAt"`
}

func toCartLines(lines []model.CartLine) []cartLineResponse {
	resp := make([]cartLineResponse, 0, len(lines))
	for _, line := range lines {
		resp = append(resp, cartLineResponse{
			Item:     toItemResponse(line.Item),
			Quantity: line.Quantity,
		})
	}
	return resp
}

func toCartResponse(cart model.Cart) cartResponse {
	return cartResponse{
		ID:        cart.ID.String(),
		UserID:    cart.UserID.String(),
		Items:     toCartLines(cart.Lines),
		Status:    string(cart.Status),
		CreatedAt: cart.CreatedAt.Format(time.RFC3339),
	}
}

type orderResponse struct {
	ID         string             `json:"id"`
	UserID     string             `json:"userId"`
	CartID     string             `json:"cartId"`
	Items      []cartLineResponse `json:"items"`
	TotalPrice float64            `json:"totalPrice"`
	Status     string             `json:"status"`
	CreatedAt  string             `json:"createdAt"`
}

func toOrderResponse(order model.Order) orderResponse {
	return orderResponse{
		ID:         order.ID.String(),
		UserID:     order.UserID.String(),
		CartID:     order.CartID.String(),
		Items:      toCartLines(order.Lines),
		TotalPrice: float64(order.TotalCents) / 100,
		Status:     string(order.Status),
		CreatedAt:  order.CreatedAt.Format(time.RFC3339),
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	if !validation.ValidCredentials(req.Username, req.Password) {
		writeMessage(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	userID, err := h.service.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			writeMessage(w, http.StatusBadRequest, "User already exists")
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "User created successfully",
		"userId":  userID.String(),
	})
}

// ListUsers возвращает список всех пользователей без хешей паролей.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users error", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Login выполняет аутентификацию пользователя и выпуск токена сессии.
// Пока у пользователя есть действующий токен, повторный вход запрещён.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	if !validation.ValidCredentials(req.Username, req.Password) {
		writeMessage(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	t, u, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			writeMessage(w, http.StatusBadRequest, "Invalid username or password")
		case errors.Is(err, repository.ErrAlreadyLoggedIn):
			writeMessage(w, http.StatusForbidden, "You cannot login on another device.")
		default:
			h.logger.Error("login user error", zap.Error(err))
			writeMessage(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token":    t,
		"userId":   u.ID.String(),
		"username": u.Username,
	})
}

// Logout завершает сессию текущего пользователя.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "No token provided")
		return
	}

	if err := h.service.Logout(r.Context(), userID); err != nil {
		h.logger.Error("logout error", zap.Error(err), zap.String("userID", userID.String()))
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeMessage(w, http.StatusOK, "Logged out successfully")
}

type addItemRequest struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
}

// AddItem добавляет товар в каталог.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Name and price are required")
		return
	}

	if req.Name == "" || req.Price == 0 {
		writeMessage(w, http.StatusBadRequest, "Name and price are required")
		return
	}

	if !validation.ValidPrice(req.Price) {
		writeMessage(w, http.StatusBadRequest, "Price must be positive")
		return
	}

	item, err := h.service.AddItem(r.Context(), req.Name, req.Price, req.Description, req.Image)
	if err != nil {
		h.logger.Error("add item error", zap.Error(err), zap.String("name", req.Name))
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Item created successfully",
		"item":    toItemResponse(*item),
	})
}

// ListItems возвращает все товары каталога.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context())
	if err != nil {
		h.logger.Error("list items error", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]itemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toItemResponse(item))
	}

	writeJSON(w, http.StatusOK, resp)
}

type addToCartRequest struct {
	ItemID string `json:"itemId"`
}

// AddToCart добавляет товар в корзину текущего пользователя.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "No token provided")
		return
	}

	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Item ID is required")
		return
	}

	if req.ItemID == "" {
		writeMessage(w, http.StatusBadRequest, "Item ID is required")
		return
	}

	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		writeMessage(w, http.StatusNotFound, "Item not found")
		return
	}

	cart, err := h.service.AddToCart(r.Context(), userID, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			writeMessage(w, http.StatusNotFound, "Item not found")
			return
		}
		h.logger.Error("add to cart error", zap.Error(err), zap.String("itemID", req.ItemID))
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Item added to cart",
		"cart":    toCartResponse(*cart),
	})
}

// ListCarts возвращает все корзины.
func (h *Handler) ListCarts(w http.ResponseWriter, r *http.Request) {
	carts, err := h.service.ListCarts(r.Context())
	if err != nil {
		h.logger.Error("list carts error", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]cartResponse, 0, len(carts))
	for _, cart := range carts {
		resp = append(resp, toCartResponse(cart))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetUserCart возвращает корзину текущего пользователя.
func (h *Handler) GetUserCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "No token provided")
		return
	}

	cart, err := h.service.GetCartByUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			writeMessage(w, http.StatusNotFound, "Cart not found")
			return
		}
		h.logger.Error("get cart error", zap.Error(err), zap.String("userID", userID.String()))
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toCartResponse(*cart))
}

type createOrderRequest struct {
	CartID string `json:"cartId"`
}

// CreateOrder оформляет заказ из корзины текущего пользователя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "No token provided")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Cart ID is required")
		return
	}

	if req.CartID == "" {
		writeMessage(w, http.StatusBadRequest, "Cart ID is required")
		return
	}

	cartID, err := uuid.Parse(req.CartID)
	if err != nil {
		writeMessage(w, http.StatusNotFound, "Cart not found")
		return
	}

	order, err := h.service.Checkout(r.Context(), userID, cartID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCartNotFound):
			writeMessage(w, http.StatusNotFound, "Cart not found")
		case errors.Is(err, service.ErrCartOwnedByAnother):
			writeMessage(w, http.StatusForbidden, "Cart does not belong to this user")
		case errors.Is(err, service.ErrCartEmpty):
			writeMessage(w, http.StatusBadRequest, "Cart is empty")
		default:
			h.logger.Error("create order error", zap.Error(err), zap.String("cartID", req.CartID))
			writeMessage(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Order created successfully",
		"order":   toOrderResponse(*order),
	})
}

// ListOrders возвращает все заказы.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		h.logger.Error("list orders error", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetUserOrders возвращает заказы текущего пользователя.
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "No token provided")
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err), zap.String("userID", userID.String()))
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health сообщает, что сервер запущен. Доступен даже при недоступном хранилище.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Server is running"})
}
