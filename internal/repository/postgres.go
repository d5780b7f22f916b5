// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/shopcart-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже занятым именем.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrAlreadyLoggedIn возвращается, если у пользователя уже есть активный токен сессии.
	ErrAlreadyLoggedIn = errors.New("user already logged in")
	// ErrItemNotFound возвращается, если товар не найден.
	ErrItemNotFound = errors.New("item not found")
	// ErrCartNotFound возвращается, если корзина не найдена.
	ErrCartNotFound = errors.New("cart not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
// Соединение устанавливается лениво: пока БД недоступна, репозиторий
// остаётся в состоянии «не готов», а миграции выполняются при первом
// успешном подключении.
type PostgresRepository struct {
	pool  *pgxpool.Pool
	ready atomic.Bool

	mu       sync.Mutex
	migrated bool
}

// NewPostgresRepository создаёт новый репозиторий. Ошибка возвращается только
// при некорректном DSN; недоступность самой БД ошибкой не считается.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// CheckReady проверяет доступность БД и обновляет флаг готовности.
// При первом успешном подключении выполняет миграции схемы.
func (r *PostgresRepository) CheckReady(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		r.ready.Store(false)
		return fmt.Errorf("ping database: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.migrated {
		if err := r.runMigrations(ctx); err != nil {
			r.ready.Store(false)
			return err
		}
		r.migrated = true
	}

	r.ready.Store(true)
	return nil
}

// Ready сообщает, готово ли хранилище к обслуживанию запросов.
func (r *PostgresRepository) Ready() bool {
	return r.ready.Load()
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, username string, passwordHash []byte) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id`,
		username, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return uuid.Nil, fmt.Errorf("%w: %s", ErrUserExists, username)
		}
		return uuid.Nil, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByUsername возвращает пользователя по имени.
func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, token, created_at FROM users WHERE username = $1`,
		username,
	)
	return scanUser(row)
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, token, created_at FROM users WHERE id = $1`,
		id,
	)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Token, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// ListUsers возвращает всех пользователей.
func (r *PostgresRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, username, password_hash, token, created_at FROM users ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Token, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return users, nil
}

// SetUserToken сохраняет токен сессии пользователя. Обновление выполняется
// только при отсутствии действующего токена, поэтому два параллельных входа
// не могут выиграть одновременно.
func (r *PostgresRepository) SetUserToken(ctx context.Context, id uuid.UUID, token string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE users SET token = $2 WHERE id = $1 AND token IS NULL`,
		id, token,
	)
	if err != nil {
		return fmt.Errorf("set token: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrAlreadyLoggedIn
	}
	return nil
}

// ClearUserToken сбрасывает токен сессии пользователя.
func (r *PostgresRepository) ClearUserToken(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET token = NULL WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// CreateItem добавляет товар в каталог.
func (r *PostgresRepository) CreateItem(ctx context.Context, item model.Item) (*model.Item, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO items (name, price_cents, description, image)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, name, price_cents, description, image, status, created_at`,
		item.Name, item.PriceCents, item.Description, item.Image,
	)

	var created model.Item
	err := row.Scan(&created.ID, &created.Name, &created.PriceCents,
		&created.Description, &created.Image, &created.Status, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	return &created, nil
}

// GetItemByID возвращает товар по идентификатору.
func (r *PostgresRepository) GetItemByID(ctx context.Context, id uuid.UUID) (*model.Item, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, price_cents, description, image, status, created_at
		 FROM items WHERE id = $1`,
		id,
	)

	var item model.Item
	err := row.Scan(&item.ID, &item.Name, &item.PriceCents,
		&item.Description, &item.Image, &item.Status, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &item, nil
}

// ListItems возвращает все товары каталога.
func (r *PostgresRepository) ListItems(ctx context.Context) ([]model.Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, price_cents, description, image, status, created_at
		 FROM items ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var item model.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.PriceCents,
			&item.Description, &item.Image, &item.Status, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// DeleteAllItems очищает каталог. Используется командой начального заполнения.
func (r *PostgresRepository) DeleteAllItems(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM items`)
	if err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	return nil
}

// AddCartLine добавляет товар в корзину пользователя. Если корзины ещё нет,
// она создаётся; если товар уже есть в корзине, его количество увеличивается
// на единицу. Гонка двух первых добавлений не защищена: каждая сторона может
// создать свою корзину, при чтении берётся самая свежая.
func (r *PostgresRepository) AddCartLine(ctx context.Context, userID, itemID uuid.UUID) (*model.Cart, error) {
	var cartID uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM carts WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`,
		userID,
	).Scan(&cartID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = r.pool.QueryRow(ctx,
			`INSERT INTO carts (user_id) VALUES ($1) RETURNING id`,
			userID,
		).Scan(&cartID)
	}
	if err != nil {
		return nil, fmt.Errorf("find or create cart: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO cart_items (cart_id, item_id) VALUES ($1, $2)
		 ON CONFLICT (cart_id, item_id) DO UPDATE SET quantity = cart_items.quantity + 1`,
		cartID, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert cart line: %w", err)
	}

	return r.GetCartByID(ctx, cartID)
}

// GetCartByID возвращает корзину с позициями, где ссылки на товары
// развёрнуты в полные записи каталога.
func (r *PostgresRepository) GetCartByID(ctx context.Context, id uuid.UUID) (*model.Cart, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, status, created_at FROM carts WHERE id = $1`,
		id,
	)

	cart, err := scanCart(row)
	if err != nil {
		return nil, err
	}

	cart.Lines, err = r.cartLines(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	return cart, nil
}

// GetCartByUser возвращает самую свежую корзину пользователя независимо от статуса.
func (r *PostgresRepository) GetCartByUser(ctx context.Context, userID uuid.UUID) (*model.Cart, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, status, created_at FROM carts
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`,
		userID,
	)

	cart, err := scanCart(row)
	if err != nil {
		return nil, err
	}

	cart.Lines, err = r.cartLines(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	return cart, nil
}

func scanCart(row pgx.Row) (*model.Cart, error) {
	var cart model.Cart
	err := row.Scan(&cart.ID, &cart.UserID, &cart.Status, &cart.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return &cart, nil
}

func (r *PostgresRepository) cartLines(ctx context.Context, cartID uuid.UUID) ([]model.CartLine, error) {
	return r.lines(ctx,
		`SELECT i.id, i.name, i.price_cents, i.description, i.image, i.status, i.created_at, ci.quantity
		 FROM cart_items ci
		 JOIN items i ON i.id = ci.item_id
		 WHERE ci.cart_id = $1
		 ORDER BY ci.added_at`,
		cartID,
	)
}

func (r *PostgresRepository) orderLines(ctx context.Context, orderID uuid.UUID) ([]model.CartLine, error) {
	return r.lines(ctx,
		`SELECT i.id, i.name, i.price_cents, i.description, i.image, i.status, i.created_at, oi.quantity
		 FROM order_items oi
		 JOIN items i ON i.id = oi.item_id
		 WHERE oi.order_id = $1
		 ORDER BY oi.added_at`,
		orderID,
	)
}

func (r *PostgresRepository) lines(ctx context.Context, query string, id uuid.UUID) ([]model.CartLine, error) {
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("select lines: %w", err)
	}
	defer rows.Close()

	var lines []model.CartLine
	for rows.Next() {
		var line model.CartLine
		if err := rows.Scan(&line.Item.ID, &line.Item.Name, &line.Item.PriceCents,
			&line.Item.Description, &line.Item.Image, &line.Item.Status,
			&line.Item.CreatedAt, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

// ListCarts возвращает все корзины с позициями.
func (r *PostgresRepository) ListCarts(ctx context.Context) ([]model.Cart, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, status, created_at FROM carts ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("select carts: %w", err)
	}
	defer rows.Close()

	var carts []model.Cart
	for rows.Next() {
		var cart model.Cart
		if err := rows.Scan(&cart.ID, &cart.UserID, &cart.Status, &cart.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cart: %w", err)
		}
		carts = append(carts, cart)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range carts {
		carts[i].Lines, err = r.cartLines(ctx, carts[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return carts, nil
}

// CreateOrder сохраняет заказ и снимок его позиций в одной транзакции.
// Очистка исходной корзины выполняется отдельным вызовом RetireCart.
func (r *PostgresRepository) CreateOrder(ctx context.Context, userID, cartID uuid.UUID, lines []model.CartLine, totalCents int64) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var order model.Order
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (user_id, cart_id, total_cents) VALUES ($1, $2, $3)
		 RETURNING id, user_id, cart_id, total_cents, status, created_at`,
		userID, cartID, totalCents,
	).Scan(&order.ID, &order.UserID, &order.CartID, &order.TotalCents, &order.Status, &order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for _, line := range lines {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (order_id, item_id, quantity) VALUES ($1, $2, $3)`,
			order.ID, line.Item.ID, line.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("insert order line: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	order.Lines = lines
	return &order, nil
}

// RetireCart очищает позиции корзины и переводит её в статус inactive.
// Корзина не удаляется: на неё продолжает ссылаться созданный заказ.
func (r *PostgresRepository) RetireCart(ctx context.Context, cartID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart lines: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE carts SET status = $2 WHERE id = $1`,
		cartID, string(model.CartStatusInactive),
	); err != nil {
		return fmt.Errorf("retire cart: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetOrdersByUser возвращает заказы пользователя с позициями.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return r.selectOrders(ctx,
		`SELECT id, user_id, cart_id, total_cents, status, created_at
		 FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
}

// ListOrders возвращает все заказы с позициями.
func (r *PostgresRepository) ListOrders(ctx context.Context) ([]model.Order, error) {
	return r.selectOrders(ctx,
		`SELECT id, user_id, cart_id, total_cents, status, created_at
		 FROM orders ORDER BY created_at DESC`,
	)
}

func (r *PostgresRepository) selectOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.CartID, &o.TotalCents, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range orders {
		orders[i].Lines, err = r.orderLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return orders, nil
}
