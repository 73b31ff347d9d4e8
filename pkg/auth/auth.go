package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/elad014/stockwatch/pkg/logger"
	"github.com/elad014/stockwatch/pkg/metrics"
	"github.com/elad014/stockwatch/pkg/models"
)

// RoleManager guards the manager-only endpoints.
const RoleManager = "manager"

// RoleUser is the default role assigned at signup.
const RoleUser = "user"

type contextKey string

const userContextKey contextKey = "user"

// Claims represents JWT claims
type Claims struct {
	UserID   int64  `json:"user_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Service issues and validates session tokens.
type Service struct {
	secret     []byte
	issuer     string
	expiration time.Duration
}

// NewService creates an authentication service. The secret must be
// non-empty; there is no insecure default.
func NewService(secret, issuer string, expiration time.Duration) (*Service, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is required")
	}
	if issuer == "" {
		issuer = "stockwatch"
	}
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	return &Service{secret: []byte(secret), issuer: issuer, expiration: expiration}, nil
}

// RoleForUser maps the stored user type to a token role.
func RoleForUser(user models.User) string {
	if user.IsManager() {
		return RoleManager
	}
	return RoleUser
}

// GenerateToken generates a new JWT token for a user
func (s *Service) GenerateToken(user models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Role:     RoleForUser(user),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		metrics.AuthErrors.WithLabelValues("generate_token").Inc()
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	metrics.AuthOperations.WithLabelValues("generate_token", "success").Inc()
	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})

	if err != nil {
		metrics.AuthErrors.WithLabelValues("validate_token").Inc()
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		metrics.AuthErrors.WithLabelValues("validate_token").Inc()
		return nil, errors.New("invalid token")
	}

	if claims.Issuer != s.issuer {
		metrics.AuthErrors.WithLabelValues("validate_token").Inc()
		return nil, errors.New("invalid issuer")
	}

	metrics.AuthOperations.WithLabelValues("validate_token", "success").Inc()
	return claims, nil
}

// AuthMiddleware creates middleware for JWT authentication
func (s *Service) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract token from Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		// Check Bearer token format
		if !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := s.ValidateToken(tokenString)
		if err != nil {
			logger.Log.Warn("token validation failed", zap.Error(err), zap.String("ip", r.RemoteAddr))
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// Add claims to request context
		ctx := context.WithValue(r.Context(), userContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RoleMiddleware creates middleware for role-based access control
func (s *Service) RoleMiddleware(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUserFromContext(r.Context())
			if !ok {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			if user.Role != requiredRole {
				logger.Log.Warn("insufficient permissions",
					zap.Int64("user_id", user.UserID),
					zap.String("user_role", user.Role),
					zap.String("required_role", requiredRole))
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts user claims from context
func GetUserFromContext(ctx context.Context) (*Claims, bool) {
	user, ok := ctx.Value(userContextKey).(*Claims)
	return user, ok
}

// HashPassword derives a storable hash from a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		metrics.AuthErrors.WithLabelValues("hash_password").Inc()
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
