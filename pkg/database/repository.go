package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/elad014/stockwatch/pkg/metrics"
	"github.com/elad014/stockwatch/pkg/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// StockRepository defines the interface for watchlist data access
type StockRepository interface {
	List(ctx context.Context) ([]models.Stock, error)
	ListSymbols(ctx context.Context) ([]string, error)
	Get(ctx context.Context, name string) (models.Stock, error)
	Add(ctx context.Context, stock models.Stock) error
	Remove(ctx context.Context, name string) error
	UpdateQuote(ctx context.Context, symbol string, price float64, volume int64) error
	Count(ctx context.Context) (int64, error)
}

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id int64) (models.User, error)
	Count(ctx context.Context) (int64, error)
}

// stockRepository implements StockRepository
type stockRepository struct {
	db *DB
}

// NewStockRepository creates a new stock repository
func NewStockRepository(db *DB) StockRepository {
	return &stockRepository{db: db}
}

// List retrieves the full watchlist ordered by price, most expensive
// first, nulls (never refreshed) last.
func (r *stockRepository) List(ctx context.Context) ([]models.Stock, error) {
	start := time.Now()
	defer func() {
		metrics.DatabaseOperationDuration.WithLabelValues("list_stocks", "success").Observe(time.Since(start).Seconds())
	}()

	query := `
		SELECT name, company, price, trading_volume, avg_trading_volume, updated_at
		FROM stocks
		ORDER BY price DESC NULLS LAST, name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("list_stocks").Inc()
		return nil, fmt.Errorf("failed to list stocks: %w", err)
	}
	defer rows.Close()

	var stocks []models.Stock
	for rows.Next() {
		var s models.Stock
		var company sql.NullString
		if err := rows.Scan(&s.Name, &company, &s.Price, &s.TradingVolume, &s.AvgTradingVolume, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		s.Company = company.String
		stocks = append(stocks, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stocks: %w", err)
	}

	metrics.DatabaseOperations.WithLabelValues("list_stocks", "success").Inc()
	return stocks, nil
}

// ListSymbols retrieves just the tracked symbol names. This is the
// scheduler's per-tick read.
func (r *stockRepository) ListSymbols(ctx context.Context) ([]string, error) {
	start := time.Now()
	defer func() {
		metrics.DatabaseOperationDuration.WithLabelValues("list_symbols", "success").Observe(time.Since(start).Seconds())
	}()

	rows, err := r.db.QueryContext(ctx, `SELECT name FROM stocks ORDER BY name`)
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("list_symbols").Inc()
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	metrics.DatabaseOperations.WithLabelValues("list_symbols", "success").Inc()
	return symbols, nil
}

// Get retrieves one stock by name.
func (r *stockRepository) Get(ctx context.Context, name string) (models.Stock, error) {
	query := `
		SELECT name, company, price, trading_volume, avg_trading_volume, updated_at
		FROM stocks
		WHERE name = $1
	`

	var s models.Stock
	var company sql.NullString
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&s.Name, &company, &s.Price, &s.TradingVolume, &s.AvgTradingVolume, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Stock{}, fmt.Errorf("stock %s: %w", name, ErrNotFound)
	}
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("get_stock").Inc()
		return models.Stock{}, fmt.Errorf("failed to get stock: %w", err)
	}
	s.Company = company.String
	return s, nil
}

// Add inserts a stock. Re-adding an existing symbol is a no-op rather
// than an error.
func (r *stockRepository) Add(ctx context.Context, stock models.Stock) error {
	start := time.Now()
	defer func() {
		metrics.DatabaseOperationDuration.WithLabelValues("add_stock", "success").Observe(time.Since(start).Seconds())
	}()

	query := `
		INSERT INTO stocks (name, company, price, trading_volume, avg_trading_volume)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO NOTHING
	`

	var company sql.NullString
	if stock.Company != "" {
		company = sql.NullString{String: stock.Company, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query, stock.Name, company, stock.Price, stock.TradingVolume, stock.AvgTradingVolume)
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("add_stock").Inc()
		return fmt.Errorf("failed to add stock: %w", err)
	}

	metrics.DatabaseOperations.WithLabelValues("add_stock", "success").Inc()
	return nil
}

// Remove deletes a stock from the watchlist.
func (r *stockRepository) Remove(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM stocks WHERE name = $1`, name)
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("remove_stock").Inc()
		return fmt.Errorf("failed to remove stock: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("stock %s: %w", name, ErrNotFound)
	}

	metrics.DatabaseOperations.WithLabelValues("remove_stock", "success").Inc()
	return nil
}

// UpdateQuote writes price and volume in a single statement so a symbol
// can never end up with a price from one fetch and a volume from another.
func (r *stockRepository) UpdateQuote(ctx context.Context, symbol string, price float64, volume int64) error {
	start := time.Now()
	defer func() {
		metrics.DatabaseOperationDuration.WithLabelValues("update_quote", "success").Observe(time.Since(start).Seconds())
	}()

	query := `
		UPDATE stocks
		SET price = $1, trading_volume = $2
		WHERE name = $3
	`

	res, err := r.db.ExecContext(ctx, query, price, volume, symbol)
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("update_quote").Inc()
		return fmt.Errorf("failed to update quote for %s: %w", symbol, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Symbol was removed between the list read and this write.
		return fmt.Errorf("stock %s: %w", symbol, ErrNotFound)
	}

	metrics.DatabaseOperations.WithLabelValues("update_quote", "success").Inc()
	return nil
}

// Count returns the number of tracked stocks.
func (r *stockRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stocks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count stocks: %w", err)
	}
	return n, nil
}

// userRepository implements UserRepository
type userRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) UserRepository {
	return &userRepository{db: db}
}

// Create inserts a user and fills in the generated ID.
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	start := time.Now()
	defer func() {
		metrics.DatabaseOperationDuration.WithLabelValues("create_user", "success").Observe(time.Since(start).Seconds())
	}()

	query := `
		INSERT INTO users (full_name, password, email, phone_number, country, user_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING user_id
	`

	err := r.db.QueryRowContext(ctx, query,
		user.FullName, user.PasswordHash, user.Email, user.PhoneNumber, user.Country, user.UserType,
	).Scan(&user.ID)
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("create_user").Inc()
		return fmt.Errorf("failed to create user: %w", err)
	}

	metrics.DatabaseOperations.WithLabelValues("create_user", "success").Inc()
	return nil
}

// GetByEmail retrieves a user by email.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (models.User, error) {
	query := `
		SELECT user_id, full_name, password, email, phone_number, country, user_type
		FROM users
		WHERE email = $1
	`

	var u models.User
	var phone, country sql.NullString
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&u.ID, &u.FullName, &u.PasswordHash, &u.Email, &phone, &country, &u.UserType)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("get_user_by_email").Inc()
		return models.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	u.PhoneNumber = phone.String
	u.Country = country.String
	return u, nil
}

// GetByID retrieves a user by ID.
func (r *userRepository) GetByID(ctx context.Context, id int64) (models.User, error) {
	query := `
		SELECT user_id, full_name, password, email, phone_number, country, user_type
		FROM users
		WHERE user_id = $1
	`

	var u models.User
	var phone, country sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.FullName, &u.PasswordHash, &u.Email, &phone, &country, &u.UserType)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		metrics.DatabaseErrors.WithLabelValues("get_user_by_id").Inc()
		return models.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	u.PhoneNumber = phone.String
	u.Country = country.String
	return u, nil
}

// Count returns the number of registered users.
func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
