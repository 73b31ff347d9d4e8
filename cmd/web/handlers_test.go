package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elad014/stockwatch/pkg/alphavantage"
	"github.com/elad014/stockwatch/pkg/auth"
	"github.com/elad014/stockwatch/pkg/database"
	"github.com/elad014/stockwatch/pkg/logger"
	"github.com/elad014/stockwatch/pkg/models"
	"github.com/elad014/stockwatch/pkg/redisclient"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	m.Run()
}

type fakeStockRepo struct {
	stocks  map[string]models.Stock
	order   []string
	listErr error
}

func newFakeStockRepo() *fakeStockRepo {
	return &fakeStockRepo{stocks: make(map[string]models.Stock)}
}

func (f *fakeStockRepo) List(ctx context.Context) ([]models.Stock, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.Stock, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, f.stocks[name])
	}
	return out, nil
}

func (f *fakeStockRepo) ListSymbols(ctx context.Context) ([]string, error) {
	return append([]string(nil), f.order...), nil
}

func (f *fakeStockRepo) Get(ctx context.Context, name string) (models.Stock, error) {
	s, ok := f.stocks[name]
	if !ok {
		return models.Stock{}, database.ErrNotFound
	}
	return s, nil
}

func (f *fakeStockRepo) Add(ctx context.Context, stock models.Stock) error {
	if _, ok := f.stocks[stock.Name]; !ok {
		f.order = append(f.order, stock.Name)
	}
	f.stocks[stock.Name] = stock
	return nil
}

func (f *fakeStockRepo) Remove(ctx context.Context, name string) error {
	if _, ok := f.stocks[name]; !ok {
		return database.ErrNotFound
	}
	delete(f.stocks, name)
	for i, n := range f.order {
		if n == name {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStockRepo) UpdateQuote(ctx context.Context, symbol string, price float64, volume int64) error {
	return nil
}

func (f *fakeStockRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(f.stocks)), nil
}

type fakeUserRepo struct {
	users  map[string]models.User
	nextID int64
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]models.User), nextID: 1}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	user.ID = f.nextID
	f.nextID++
	f.users[user.Email] = *user
	return nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	u, ok := f.users[email]
	if !ok {
		return models.User{}, database.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int64) (models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, database.ErrNotFound
}

func (f *fakeUserRepo) Count(ctx context.Context) (int64, error) {
	return int64(len(f.users)), nil
}

type fakeProbe struct {
	quote models.Quote
	err   error
}

func (f *fakeProbe) Quote(ctx context.Context, symbol string) (models.Quote, error) {
	if f.err != nil {
		return models.Quote{}, f.err
	}
	q := f.quote
	q.Symbol = symbol
	return q, nil
}

type fakeQuoteCache struct {
	quotes map[string]models.Quote
	err    error
}

func (f *fakeQuoteCache) GetLatest(ctx context.Context, symbol string) (models.Quote, error) {
	if f.err != nil {
		return models.Quote{}, f.err
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return models.Quote{}, redisclient.ErrCacheMiss
	}
	return q, nil
}

type testEnv struct {
	server *Server
	stocks *fakeStockRepo
	users  *fakeUserRepo
	probe  *fakeProbe
	auth   *auth.Service
	dir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	authSvc, err := auth.NewService("test-secret", "stockwatch", time.Hour)
	require.NoError(t, err)

	dir := t.TempDir()
	stocks := newFakeStockRepo()
	users := newFakeUserRepo()
	probe := &fakeProbe{quote: models.Quote{Price: 189.25, Volume: 52000000}}

	server := NewServer(stocks, users, authSvc, probe, NewHub(),
		filepath.Join(dir, "version.txt"), filepath.Join(dir, "service.log"))

	return &testEnv{server: server, stocks: stocks, users: users, probe: probe, auth: authSvc, dir: dir}
}

func (e *testEnv) tokenFor(t *testing.T, userType int) string {
	t.Helper()
	token, err := e.auth.GenerateToken(models.User{ID: 42, Email: "t@example.com", UserType: userType})
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Routes().ServeHTTP(rec, req)
	return rec
}

func TestSignup(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/signup", "", models.SignupRequest{
		FullName: "Ada Lovelace",
		Email:    "ada@example.com",
		Password: "correct-horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	stored, err := env.users.GetByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, stored.UserType)
	require.NotEqual(t, "correct-horse", stored.PasswordHash)

	t.Run("duplicate email", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/signup", "", models.SignupRequest{
			FullName: "Ada Again",
			Email:    "ada@example.com",
			Password: "correct-horse",
		})
		require.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("short password", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/signup", "", models.SignupRequest{
			FullName: "Bob",
			Email:    "bob@example.com",
			Password: "short",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	hash, err := auth.HashPassword("correct-horse")
	require.NoError(t, err)
	require.NoError(t, env.users.Create(context.Background(), &models.User{
		FullName: "Ada", Email: "ada@example.com", PasswordHash: hash,
	}))

	t.Run("success", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/login", "", models.LoginRequest{
			Email: "ada@example.com", Password: "correct-horse",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Success bool `json:"success"`
			Data    struct {
				Token string `json:"token"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.True(t, resp.Success)

		claims, err := env.auth.ValidateToken(resp.Data.Token)
		require.NoError(t, err)
		require.Equal(t, "ada@example.com", claims.Email)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/login", "", models.LoginRequest{
			Email: "ada@example.com", Password: "wrong",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown email", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/login", "", models.LoginRequest{
			Email: "nobody@example.com", Password: "whatever",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestListStocks(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, models.RoleUser)

	require.NoError(t, env.stocks.Add(context.Background(), models.Stock{
		Name:          "AAPL",
		Price:         sql.NullFloat64{Float64: 189.25, Valid: true},
		TradingVolume: sql.NullInt64{Int64: 52000000, Valid: true},
	}))
	require.NoError(t, env.stocks.Add(context.Background(), models.Stock{Name: "NEWCO"}))

	t.Run("requires auth", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/stocks", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("renders null for unrefreshed symbols", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/stocks", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data []models.StockView `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 2)
		require.NotNil(t, resp.Data[0].Price)
		require.Equal(t, 189.25, *resp.Data[0].Price)
		require.Nil(t, resp.Data[1].Price)
		require.Nil(t, resp.Data[1].TradingVolume)
	})
}

func TestAddStock(t *testing.T) {
	t.Run("seeds quote on successful probe", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.tokenFor(t, models.RoleUser)

		rec := env.do(t, http.MethodPost, "/api/v1/stocks", token, models.AddStockRequest{Ticker: "aapl"})
		require.Equal(t, http.StatusCreated, rec.Code)

		stored, err := env.stocks.Get(context.Background(), "AAPL")
		require.NoError(t, err)
		require.True(t, stored.Price.Valid)
		require.Equal(t, 189.25, stored.Price.Float64)
	})

	t.Run("rejects unknown symbols", func(t *testing.T) {
		env := newTestEnv(t)
		env.probe.err = alphavantage.ErrSymbolNotFound
		token := env.tokenFor(t, models.RoleUser)

		rec := env.do(t, http.MethodPost, "/api/v1/stocks", token, models.AddStockRequest{Ticker: "NOPE"})
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		_, err := env.stocks.Get(context.Background(), "NOPE")
		require.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("adds without quote when provider is rate limited", func(t *testing.T) {
		env := newTestEnv(t)
		env.probe.err = alphavantage.ErrRateLimited
		token := env.tokenFor(t, models.RoleUser)

		rec := env.do(t, http.MethodPost, "/api/v1/stocks", token, models.AddStockRequest{Ticker: "MSFT"})
		require.Equal(t, http.StatusCreated, rec.Code)

		stored, err := env.stocks.Get(context.Background(), "MSFT")
		require.NoError(t, err)
		require.False(t, stored.Price.Valid)
	})

	t.Run("quote without usable price stays null", func(t *testing.T) {
		env := newTestEnv(t)
		env.probe.quote = models.Quote{Price: 0, Volume: 1000}
		token := env.tokenFor(t, models.RoleUser)

		rec := env.do(t, http.MethodPost, "/api/v1/stocks", token, models.AddStockRequest{Ticker: "NEWCO"})
		require.Equal(t, http.StatusCreated, rec.Code)

		stored, err := env.stocks.Get(context.Background(), "NEWCO")
		require.NoError(t, err)
		require.False(t, stored.Price.Valid)
		require.False(t, stored.TradingVolume.Valid)
	})

	t.Run("rejects overlong tickers", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.tokenFor(t, models.RoleUser)

		rec := env.do(t, http.MethodPost, "/api/v1/stocks", token, models.AddStockRequest{Ticker: "WAYTOOLONGSYMBOL"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRemoveStock(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, models.RoleUser)

	require.NoError(t, env.stocks.Add(context.Background(), models.Stock{Name: "AAPL"}))

	t.Run("removes tracked symbol", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/api/v1/stocks/AAPL", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		_, err := env.stocks.Get(context.Background(), "AAPL")
		require.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("unknown symbol is 404", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/api/v1/stocks/TSLA", token, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestStockQuote(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, models.RoleUser)

	require.NoError(t, env.stocks.Add(context.Background(), models.Stock{
		Name:  "AAPL",
		Price: sql.NullFloat64{Float64: 180.00, Valid: true},
	}))

	t.Run("serves cached quote when present", func(t *testing.T) {
		env.server.SetQuoteCache(&fakeQuoteCache{quotes: map[string]models.Quote{
			"AAPL": {Symbol: "AAPL", Price: 189.25, Volume: 52000000},
		}})

		rec := env.do(t, http.MethodGet, "/api/v1/stocks/AAPL/quote", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data models.Quote `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, 189.25, resp.Data.Price)
		require.Equal(t, int64(52000000), resp.Data.Volume)
	})

	t.Run("falls back to stored row on cache miss", func(t *testing.T) {
		env.server.SetQuoteCache(&fakeQuoteCache{})

		rec := env.do(t, http.MethodGet, "/api/v1/stocks/AAPL/quote", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data models.StockView `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.Data.Price)
		require.Equal(t, 180.00, *resp.Data.Price)
	})

	t.Run("falls back to stored row on cache error", func(t *testing.T) {
		env.server.SetQuoteCache(&fakeQuoteCache{err: errors.New("circuit breaker is open")})

		rec := env.do(t, http.MethodGet, "/api/v1/stocks/AAPL/quote", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("works without a configured cache", func(t *testing.T) {
		env.server.SetQuoteCache(nil)

		rec := env.do(t, http.MethodGet, "/api/v1/stocks/AAPL/quote", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown symbol is 404", func(t *testing.T) {
		env.server.SetQuoteCache(nil)

		rec := env.do(t, http.MethodGet, "/api/v1/stocks/TSLA/quote", token, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestManagerEndpoints(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.tokenFor(t, models.RoleUser)
	managerToken := env.tokenFor(t, models.RoleManager)

	t.Run("forbidden for regular users", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/manager/status", userToken, nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("status reports version and counts", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(env.dir, "version.txt"), []byte("1.4.2\n"), 0644))
		require.NoError(t, env.stocks.Add(context.Background(), models.Stock{Name: "AAPL"}))

		rec := env.do(t, http.MethodGet, "/api/v1/manager/status", managerToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data struct {
				Version string `json:"version"`
				Stocks  int64  `json:"stocks"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "1.4.2", resp.Data.Version)
		require.Equal(t, int64(1), resp.Data.Stocks)
	})

	t.Run("status includes migration history when wired", func(t *testing.T) {
		env.server.SetMigrationSource(func(ctx context.Context) ([]database.MigrationStatus, error) {
			return []database.MigrationStatus{
				{Version: 1, Applied: true, Description: "Create users and stocks tables"},
				{Version: 2, Applied: false, Description: "Add average trading volume"},
			}, nil
		})

		rec := env.do(t, http.MethodGet, "/api/v1/manager/status", managerToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data struct {
				Migrations []database.MigrationStatus `json:"migrations"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data.Migrations, 2)
		require.Equal(t, 1, resp.Data.Migrations[0].Version)
		require.True(t, resp.Data.Migrations[0].Applied)
		require.False(t, resp.Data.Migrations[1].Applied)
	})

	t.Run("status fails when migration history is unreadable", func(t *testing.T) {
		env.server.SetMigrationSource(func(ctx context.Context) ([]database.MigrationStatus, error) {
			return nil, errors.New("relation schema_migrations does not exist")
		})
		rec := env.do(t, http.MethodGet, "/api/v1/manager/status", managerToken, nil)
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		env.server.SetMigrationSource(nil)
	})

	t.Run("log read and clean", func(t *testing.T) {
		logPath := filepath.Join(env.dir, "service.log")
		require.NoError(t, os.WriteFile(logPath, []byte("line one\nline two\n"), 0644))

		rec := env.do(t, http.MethodGet, "/api/v1/manager/log", managerToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Contains(t, resp.Data, "line one")

		rec = env.do(t, http.MethodPost, "/api/v1/manager/log/clean", managerToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		data, err := os.ReadFile(logPath)
		require.NoError(t, err)
		require.Empty(t, data)
	})
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)

	t.Run("healthy with no registered checks", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/health", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unhealthy dependency surfaces as 503", func(t *testing.T) {
		env.server.AddHealthCheck("database", func(ctx context.Context) error {
			return context.DeadlineExceeded
		})
		rec := env.do(t, http.MethodGet, "/health", "", nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
