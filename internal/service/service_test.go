package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/shopcart-system/internal/model"
	"github.com/mmeshcher/shopcart-system/internal/repository"
	"github.com/mmeshcher/shopcart-system/internal/token"
)

type stubRepo struct {
	createUserID  uuid.UUID
	createUserErr error

	userByUsername    *model.User
	userByUsernameErr error

	userByID    *model.User
	userByIDErr error

	setTokenErr   error
	setTokenValue string

	clearTokenCalled bool

	item    *model.Item
	itemErr error

	createdItem model.Item

	cart    *model.Cart
	cartErr error

	addedCart *model.Cart

	createdOrderTotal int64
	createOrderErr    error

	retireCalled bool
	retireErr    error
}

func (s *stubRepo) Close() error                         { return nil }
func (s *stubRepo) Ready() bool                          { return true }
func (s *stubRepo) CheckReady(ctx context.Context) error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, username string, passwordHash []byte) (uuid.UUID, error) {
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.userByUsername, s.userByUsernameErr
}

func (s *stubRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.userByID, s.userByIDErr
}

func (s *stubRepo) ListUsers(ctx context.Context) ([]model.User, error) { return nil, nil }

func (s *stubRepo) SetUserToken(ctx context.Context, id uuid.UUID, token string) error {
	s.setTokenValue = token
	return s.setTokenErr
}

func (s *stubRepo) ClearUserToken(ctx context.Context, id uuid.UUID) error {
	s.clearTokenCalled = true
	return nil
}

func (s *stubRepo) CreateItem(ctx context.Context, item model.Item) (*model.Item, error) {
	s.createdItem = item
	return &item, nil
}

func (s *stubRepo) GetItemByID(ctx context.Context, id uuid.UUID) (*model.Item, error) {
	return s.item, s.itemErr
}

func (s *stubRepo) ListItems(ctx context.Context) ([]model.Item, error) { return nil, nil }

func (s *stubRepo) AddCartLine(ctx context.Context, userID, itemID uuid.UUID) (*model.Cart, error) {
	return s.addedCart, nil
}

func (s *stubRepo) GetCartByID(ctx context.Context, id uuid.UUID) (*model.Cart, error) {
	return s.cart, s.cartErr
}

func (s *stubRepo) GetCartByUser(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	return s.cart, s.cartErr
}

func (s *stubRepo) ListCarts(ctx context.Context) ([]model.Cart, error) { return nil, nil }

func (s *stubRepo) CreateOrder(ctx context.Context, userID, cartID uuid.UUID, lines []model.CartLine, totalCents int64) (*model.Order, error) {
	if s.createOrderErr != nil {
		return nil, s.createOrderErr
	}
	s.createdOrderTotal = totalCents
	return &model.Order{
		ID:         uuid.New(),
		UserID:     userID,
		CartID:     cartID,
		Lines:      lines,
		TotalCents: totalCents,
		Status:     model.OrderStatusCompleted,
	}, nil
}

func (s *stubRepo) RetireCart(ctx context.Context, cartID uuid.UUID) error {
	s.retireCalled = true
	return s.retireErr
}

func (s *stubRepo) GetOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return nil, nil
}

func (s *stubRepo) ListOrders(ctx context.Context) ([]model.Order, error) { return nil, nil }

func newTestService(repo Repository) *Service {
	return NewService(repo, token.NewManager("test-secret"))
}

func mustHash(t *testing.T, password string) []byte {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return hash
}

func TestLogin_IssuesAndStoresToken(t *testing.T) {
	userID := uuid.New()
	repo := &stubRepo{
		userByUsername: &model.User{
			ID:           userID,
			Username:     "alice",
			PasswordHash: mustHash(t, "secret"),
		},
	}
	svc := newTestService(repo)

	tok, u, err := svc.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tok == "" {
		t.Fatalf("login returned empty token")
	}
	if u.ID != userID {
		t.Fatalf("login user id = %s, want %s", u.ID, userID)
	}
	if repo.setTokenValue != tok {
		t.Fatalf("stored token %q differs from issued %q", repo.setTokenValue, tok)
	}
}

func TestLogin_SecondSessionRejected(t *testing.T) {
	existing := "already-issued-token"
	repo := &stubRepo{
		userByUsername: &model.User{
			ID:           uuid.New(),
			Username:     "alice",
			PasswordHash: mustHash(t, "secret"),
			Token:        &existing,
		},
	}
	svc := newTestService(repo)

	// Даже с верным паролем второй вход до выхода запрещён.
	_, _, err := svc.Login(context.Background(), "alice", "secret")
	if !errors.Is(err, repository.ErrAlreadyLoggedIn) {
		t.Fatalf("err = %v, want ErrAlreadyLoggedIn", err)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	repo := &stubRepo{
		userByUsername: &model.User{
			ID:           uuid.New(),
			Username:     "alice",
			PasswordHash: mustHash(t, "secret"),
		},
	}
	svc := newTestService(repo)

	_, _, err := svc.Login(context.Background(), "alice", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}

	repo.userByUsername = nil
	repo.userByUsernameErr = repository.ErrUserNotFound

	_, _, err = svc.Login(context.Background(), "ghost", "secret")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials for unknown user", err)
	}
}

func TestAuthenticate_TokenMustMatchStored(t *testing.T) {
	tokens := token.NewManager("test-secret")
	userID := uuid.New()

	issued, err := tokens.Issue(userID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	repo := &stubRepo{
		userByID: &model.User{ID: userID, Username: "alice", Token: &issued},
	}
	svc := NewService(repo, tokens)

	u, err := svc.Authenticate(context.Background(), issued)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u.ID != userID {
		t.Fatalf("user id = %s, want %s", u.ID, userID)
	}

	// Токен с верной подписью, но не совпадающий с сохранённым, отклоняется.
	other := "stale-token"
	repo.userByID.Token = &other

	_, err = svc.Authenticate(context.Background(), issued)
	if !errors.Is(err, token.ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}

	// Токен очищен выходом из системы.
	repo.userByID.Token = nil

	_, err = svc.Authenticate(context.Background(), issued)
	if !errors.Is(err, token.ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken for cleared token", err)
	}
}

func TestAuthenticate_UserGone(t *testing.T) {
	tokens := token.NewManager("test-secret")
	issued, err := tokens.Issue(uuid.New())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	repo := &stubRepo{userByIDErr: repository.ErrUserNotFound}
	svc := NewService(repo, tokens)

	_, err = svc.Authenticate(context.Background(), issued)
	if !errors.Is(err, repository.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestLogout_ClearsToken(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo)

	if err := svc.Logout(context.Background(), uuid.New()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if !repo.clearTokenCalled {
		t.Fatalf("logout did not clear the token")
	}
}

func TestAddItem_PriceStoredInCents(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo)

	item, err := svc.AddItem(context.Background(), "Wireless Mouse", 29.99, "", "")
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if item.PriceCents != 2999 {
		t.Fatalf("price cents = %d, want 2999", item.PriceCents)
	}
	if repo.createdItem.Image == "" {
		t.Fatalf("default image was not applied")
	}
}

func TestAddToCart_UnknownItem(t *testing.T) {
	repo := &stubRepo{itemErr: repository.ErrItemNotFound}
	svc := newTestService(repo)

	_, err := svc.AddToCart(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, repository.ErrItemNotFound) {
		t.Fatalf("err = %v, want ErrItemNotFound", err)
	}
}

func TestCheckout_TotalAndRetire(t *testing.T) {
	userID := uuid.New()
	cartID := uuid.New()

	repo := &stubRepo{
		cart: &model.Cart{
			ID:     cartID,
			UserID: userID,
			Status: model.CartStatusActive,
			Lines: []model.CartLine{
				{Item: model.Item{ID: uuid.New(), PriceCents: 129999}, Quantity: 1},
				{Item: model.Item{ID: uuid.New(), PriceCents: 2999}, Quantity: 3},
			},
		},
	}
	svc := newTestService(repo)

	order, err := svc.Checkout(context.Background(), userID, cartID)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	want := int64(129999 + 3*2999)
	if order.TotalCents != want {
		t.Fatalf("total = %d, want %d", order.TotalCents, want)
	}
	if !repo.retireCalled {
		t.Fatalf("cart was not retired after checkout")
	}
}

func TestCheckout_FailureOrder(t *testing.T) {
	userID := uuid.New()
	cartID := uuid.New()

	t.Run("cart not found", func(t *testing.T) {
		repo := &stubRepo{cartErr: repository.ErrCartNotFound}
		svc := newTestService(repo)

		_, err := svc.Checkout(context.Background(), userID, cartID)
		if !errors.Is(err, repository.ErrCartNotFound) {
			t.Fatalf("err = %v, want ErrCartNotFound", err)
		}
	})

	t.Run("foreign cart rejected before emptiness", func(t *testing.T) {
		repo := &stubRepo{
			cart: &model.Cart{ID: cartID, UserID: uuid.New()},
		}
		svc := newTestService(repo)

		_, err := svc.Checkout(context.Background(), userID, cartID)
		if !errors.Is(err, ErrCartOwnedByAnother) {
			t.Fatalf("err = %v, want ErrCartOwnedByAnother", err)
		}
		if repo.retireCalled {
			t.Fatalf("foreign cart must not be retired")
		}
	})

	t.Run("empty cart", func(t *testing.T) {
		repo := &stubRepo{
			cart: &model.Cart{ID: cartID, UserID: userID},
		}
		svc := newTestService(repo)

		_, err := svc.Checkout(context.Background(), userID, cartID)
		if !errors.Is(err, ErrCartEmpty) {
			t.Fatalf("err = %v, want ErrCartEmpty", err)
		}
	})
}
