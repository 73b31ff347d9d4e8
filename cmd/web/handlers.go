package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/elad014/stockwatch/pkg/alphavantage"
	"github.com/elad014/stockwatch/pkg/auth"
	"github.com/elad014/stockwatch/pkg/database"
	"github.com/elad014/stockwatch/pkg/logger"
	"github.com/elad014/stockwatch/pkg/metrics"
	"github.com/elad014/stockwatch/pkg/models"
	"github.com/elad014/stockwatch/pkg/quotesource"
	"github.com/elad014/stockwatch/pkg/redisclient"
	"github.com/elad014/stockwatch/pkg/validation"
)

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// latestQuotes reads the freshest cached quote for a symbol.
type latestQuotes interface {
	GetLatest(ctx context.Context, symbol string) (models.Quote, error)
}

// Server holds the web tier's dependencies.
type Server struct {
	stocks      database.StockRepository
	users       database.UserRepository
	auth        *auth.Service
	probe       quotesource.Source
	hub         *Hub
	cache       latestQuotes
	migrations  func(ctx context.Context) ([]database.MigrationStatus, error)
	health      []healthCheck
	versionFile string
	logFile     string
}

type healthCheck struct {
	name  string
	check func(ctx context.Context) error
}

// NewServer wires the web handlers.
func NewServer(stocks database.StockRepository, users database.UserRepository, authSvc *auth.Service, probe quotesource.Source, hub *Hub, versionFile, logFile string) *Server {
	return &Server{
		stocks:      stocks,
		users:       users,
		auth:        authSvc,
		probe:       probe,
		hub:         hub,
		versionFile: versionFile,
		logFile:     logFile,
	}
}

// AddHealthCheck registers a dependency probe for /health.
func (s *Server) AddHealthCheck(name string, check func(ctx context.Context) error) {
	s.health = append(s.health, healthCheck{name: name, check: check})
}

// SetQuoteCache enables cache-first quote reads. Without it the quote
// endpoint serves the stored row only.
func (s *Server) SetQuoteCache(cache latestQuotes) {
	s.cache = cache
}

// SetMigrationSource exposes migration state through the manager
// status endpoint.
func (s *Server) SetMigrationSource(fn func(ctx context.Context) ([]database.MigrationStatus, error)) {
	s.migrations = fn
}

// Routes builds the web router.
func (s *Server) Routes() http.Handler {
	router := mux.NewRouter()

	router.Use(loggingMiddleware)
	router.Use(corsMiddleware)
	router.Use(metricsMiddleware)

	router.HandleFunc("/health", s.healthHandler).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()

	// Public endpoints (no auth required)
	apiRouter.HandleFunc("/signup", s.signupHandler).Methods("POST")
	apiRouter.HandleFunc("/login", s.loginHandler).Methods("POST")

	// Protected endpoints (auth required)
	protectedRouter := apiRouter.PathPrefix("").Subrouter()
	protectedRouter.Use(s.auth.AuthMiddleware)

	protectedRouter.HandleFunc("/stocks", s.listStocksHandler).Methods("GET")
	protectedRouter.HandleFunc("/stocks", s.addStockHandler).Methods("POST")
	protectedRouter.HandleFunc("/stocks/{symbol}", s.removeStockHandler).Methods("DELETE")
	protectedRouter.HandleFunc("/stocks/{symbol}/quote", s.stockQuoteHandler).Methods("GET")

	// Manager endpoints (manager role required)
	managerRouter := protectedRouter.PathPrefix("/manager").Subrouter()
	managerRouter.Use(s.auth.RoleMiddleware(auth.RoleManager))

	managerRouter.HandleFunc("/status", s.statusHandler).Methods("GET")
	managerRouter.HandleFunc("/log", s.logHandler).Methods("GET")
	managerRouter.HandleFunc("/log/clean", s.logCleanHandler).Methods("POST")

	// Live quote stream
	router.HandleFunc("/ws/quotes", s.wsQuotesHandler).Methods("GET")

	// Metrics endpoint (no auth required)
	router.Handle("/metrics", metrics.Handler())

	return router
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Log.Error("JSON encoding error", zap.Error(err))
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, Response{Success: false, Error: message})
}

// healthHandler checks every registered dependency.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, hc := range s.health {
		if err := hc.check(ctx); err != nil {
			logger.Log.Warn("health check failed", zap.String("dependency", hc.name), zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, hc.name+" health check failed")
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// signupHandler registers a new user. Every signup gets the regular
// user role; managers are promoted directly in the database.
func (s *Server) signupHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Sanitize()
	if err := req.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		s.writeError(w, http.StatusConflict, "email already registered")
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		logger.Log.Error("signup lookup failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Log.Error("password hashing failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	user := models.User{
		FullName:     req.FullName,
		Email:        req.Email,
		PhoneNumber:  req.PhoneNumber,
		Country:      req.Country,
		PasswordHash: hash,
		UserType:     models.RoleUser,
	}
	if err := s.users.Create(ctx, &user); err != nil {
		logger.Log.Error("user creation failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	logger.Log.Info("user registered", zap.Int64("user_id", user.ID), zap.String("email", user.Email))
	s.writeJSON(w, http.StatusCreated, Response{Success: true, Data: user})
}

// loginHandler exchanges credentials for a session token.
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Sanitize()
	if err := req.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	user, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		logger.Log.Error("login lookup failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		logger.Log.Warn("failed login attempt", zap.String("email", req.Email), zap.String("ip", r.RemoteAddr))
		s.writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.auth.GenerateToken(user)
	if err != nil {
		logger.Log.Error("token generation failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]interface{}{
		"token": token,
		"user":  user,
	}})
}

// listStocksHandler returns the watchlist, priciest first.
func (s *Server) listStocksHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	stocks, err := s.stocks.List(ctx)
	if err != nil {
		logger.Log.Error("failed to list stocks", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	views := make([]models.StockView, 0, len(stocks))
	for _, stock := range stocks {
		views = append(views, stock.View())
	}
	s.writeJSON(w, http.StatusOK, Response{Success: true, Data: views})
}

// addStockHandler adds a symbol to the watchlist. The symbol is probed
/// against the collector first: unknown symbols are rejected, while a
// rate-limited or unreachable provider only means the first price
// arrives with the next scheduler run.
func (s *Server) addStockHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AddStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Sanitize()
	if err := req.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	stock := models.Stock{Name: req.Ticker}
	quote, err := s.probe.Quote(ctx, req.Ticker)
	switch {
	case err == nil:
		// A quote with no usable price stays null; the stocks table
		// only accepts positive prices.
		if quote.Price > 0 {
			stock.Price = sql.NullFloat64{Float64: quote.Price, Valid: true}
			stock.TradingVolume = sql.NullInt64{Int64: quote.Volume, Valid: true}
		}
	case errors.Is(err, alphavantage.ErrSymbolNotFound):
		s.writeError(w, http.StatusUnprocessableEntity, "unknown symbol: "+req.Ticker)
		return
	default:
		logger.Log.Warn("symbol probe inconclusive, adding without quote",
			zap.String("symbol", req.Ticker),
			zap.String("class", alphavantage.ErrorClass(err)))
	}

	if err := s.stocks.Add(ctx, stock); err != nil {
		logger.Log.Error("failed to add stock", zap.String("symbol", req.Ticker), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	user, _ := auth.GetUserFromContext(r.Context())
	logger.Log.Info("stock added",
		zap.String("symbol", req.Ticker),
		zap.Int64("user_id", userID(user)))
	s.writeJSON(w, http.StatusCreated, Response{Success: true, Data: stock.View()})
}

// stockQuoteHandler serves the freshest quote for one symbol: the
// Redis cache when the scheduler has populated it, the stored row
// otherwise.
func (s *Server) stockQuoteHandler(w http.ResponseWriter, r *http.Request) {
	symbol := validation.NormalizeTicker(mux.Vars(r)["symbol"])
	if !validation.IsValidTicker(symbol) {
		s.writeError(w, http.StatusBadRequest, "invalid symbol")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if s.cache != nil {
		quote, err := s.cache.GetLatest(ctx, symbol)
		if err == nil {
			s.writeJSON(w, http.StatusOK, Response{Success: true, Data: quote})
			return
		}
		if !errors.Is(err, redisclient.ErrCacheMiss) {
			logger.Log.Warn("quote cache read failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	stock, err := s.stocks.Get(ctx, symbol)
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "symbol not tracked: "+symbol)
		return
	}
	if err != nil {
		logger.Log.Error("failed to get stock", zap.String("symbol", symbol), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, Response{Success: true, Data: stock.View()})
}

// removeStockHandler deletes a symbol from the watchlist.
func (s *Server) removeStockHandler(w http.ResponseWriter, r *http.Request) {
	symbol := validation.NormalizeTicker(mux.Vars(r)["symbol"])
	if !validation.IsValidTicker(symbol) {
		s.writeError(w, http.StatusBadRequest, "invalid symbol")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := s.stocks.Remove(ctx, symbol); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "symbol not tracked: "+symbol)
			return
		}
		logger.Log.Error("failed to remove stock", zap.String("symbol", symbol), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	user, _ := auth.GetUserFromContext(r.Context())
	logger.Log.Info("stock removed",
		zap.String("symbol", symbol),
		zap.Int64("user_id", userID(user)))
	s.writeJSON(w, http.StatusOK, Response{Success: true})
}

// statusHandler reports deployment version and table counts.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	version := "unknown"
	if data, err := os.ReadFile(s.versionFile); err == nil {
		version = strings.TrimSpace(string(data))
	}

	stockCount, err := s.stocks.Count(ctx)
	if err != nil {
		logger.Log.Error("failed to count stocks", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	userCount, err := s.users.Count(ctx)
	if err != nil {
		logger.Log.Error("failed to count users", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	data := map[string]interface{}{
		"version": version,
		"stocks":  stockCount,
		"users":   userCount,
	}

	if s.migrations != nil {
		status, err := s.migrations(ctx)
		if err != nil {
			logger.Log.Error("failed to get migration status", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		data["migrations"] = status
	}

	s.writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

// logHandler returns the tail of the service log file.
func (s *Server) logHandler(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(s.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			s.writeJSON(w, http.StatusOK, Response{Success: true, Data: ""})
			return
		}
		logger.Log.Error("failed to read log file", zap.String("path", s.logFile), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, Response{Success: true, Data: string(data)})
}

// logCleanHandler truncates the service log file.
func (s *Server) logCleanHandler(w http.ResponseWriter, r *http.Request) {
	if err := os.Truncate(s.logFile, 0); err != nil && !os.IsNotExist(err) {
		logger.Log.Error("failed to truncate log file", zap.String("path", s.logFile), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	user, _ := auth.GetUserFromContext(r.Context())
	logger.Log.Info("log file cleaned", zap.Int64("user_id", userID(user)))
	s.writeJSON(w, http.StatusOK, Response{Success: true})
}

func userID(claims *auth.Claims) int64 {
	if claims == nil {
		return 0
	}
	return claims.UserID
}
