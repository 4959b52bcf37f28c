package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainRepo "github.com/EdulogyIT/holibayt-backend/internal/domain/repository"
	apperrors "github.com/EdulogyIT/holibayt-backend/pkg/errors"
)

// InternalTokenHeader carries the shared secret of scheduler and operator calls.
const InternalTokenHeader = "X-Internal-Token"

const adminRole = "admin"

// AuthUser represents the authenticated caller of a request
type AuthUser struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsAdmin  bool   `json:"is_admin"`
	IsSystem bool   `json:"is_system"`
}

// contextKey is used for storing user in context
type contextKey string

const (
	userContextKey contextKey = "authenticated_user"
)

// JWTConfig holds the configuration for JWT middleware
type JWTConfig struct {
	Secret        string
	InternalToken string
	// Roles is consulted when the token itself does not say the user is an admin.
	Roles     domainRepo.RoleRepository
	Logger    *zap.Logger
	SkipPaths []string // Paths to skip authentication
}

// JWTMiddleware authenticates either a Supabase JWT or the internal system token.
func JWTMiddleware(config JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, skipPath := range config.SkipPaths {
				if strings.HasPrefix(path, skipPath) {
					return next(c)
				}
			}

			if token := c.Request().Header.Get(InternalTokenHeader); token != "" {
				if !validInternalToken(config.InternalToken, token) {
					config.Logger.Warn("Invalid internal token",
						zap.String("path", path),
						zap.String("remote_ip", c.RealIP()))
					return c.JSON(http.StatusUnauthorized, echo.Map{
						"success": false,
						"error":   "Invalid internal token",
						"code":    "INVALID_INTERNAL_TOKEN",
					})
				}
				setUser(c, &AuthUser{UserID: "system", Role: "system", IsSystem: true})
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				config.Logger.Warn("Missing authorization header",
					zap.String("path", path),
					zap.String("method", c.Request().Method))
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"success": false,
					"error":   "Authorization header required",
					"code":    "MISSING_AUTH_HEADER",
				})
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				config.Logger.Warn("Invalid authorization header format",
					zap.String("path", path))
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"success": false,
					"error":   "Invalid authorization header format. Expected: Bearer <token>",
					"code":    "INVALID_AUTH_FORMAT",
				})
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(config.Secret), nil
			})
			if err != nil || !token.Valid {
				config.Logger.Warn("JWT validation failed",
					zap.Error(err),
					zap.String("path", path))
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"success": false,
					"error":   "Invalid or expired token",
					"code":    "INVALID_TOKEN",
				})
			}

			userID, _ := claims.GetSubject()
			if userID == "" {
				config.Logger.Warn("Token without subject", zap.String("path", path))
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"success": false,
					"error":   "Invalid token claims",
					"code":    "INVALID_CLAIMS",
				})
			}

			email, _ := claims["email"].(string)
			role := roleFromClaims(claims)
			user := &AuthUser{
				UserID:  userID,
				Email:   email,
				Role:    role,
				IsAdmin: role == adminRole,
			}

			if !user.IsAdmin && config.Roles != nil {
				isAdmin, err := config.Roles.IsAdmin(c.Request().Context(), userID)
				if err != nil {
					// Treated as a regular user; admin-only routes will refuse.
					config.Logger.Warn("Role lookup failed",
						zap.String("user_id", userID),
						zap.Error(err))
				}
				user.IsAdmin = isAdmin
			}

			setUser(c, user)

			config.Logger.Debug("User authenticated successfully",
				zap.String("user_id", userID),
				zap.Bool("is_admin", user.IsAdmin),
				zap.String("path", path))

			return next(c)
		}
	}
}

// RequireAdmin rejects callers that are not platform admins.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := GetUserFromContext(c)
			if err != nil || !user.IsAdmin {
				return c.JSON(http.StatusForbidden, echo.Map{
					"success": false,
					"error":   "Admin access required",
					"code":    "ADMIN_REQUIRED",
				})
			}
			return next(c)
		}
	}
}

// RequireSystem only lets internal-token callers through.
func RequireSystem() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := GetUserFromContext(c)
			if err != nil || !user.IsSystem {
				return c.JSON(http.StatusForbidden, echo.Map{
					"success": false,
					"error":   "Internal token required",
					"code":    "SYSTEM_REQUIRED",
				})
			}
			return next(c)
		}
	}
}

// GetUserFromContext extracts the authenticated user from the request context
func GetUserFromContext(c echo.Context) (*AuthUser, error) {
	user, ok := c.Request().Context().Value(userContextKey).(*AuthUser)
	if !ok || user == nil {
		return nil, fmt.Errorf("no authenticated user found in context")
	}
	return user, nil
}

// RequireAuth returns the authenticated user, or an UNAUTHENTICATED error that
// the HTTP error handler renders as 401.
func RequireAuth(c echo.Context) (*AuthUser, error) {
	user, err := GetUserFromContext(c)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrUnauthenticated, "Authentication required", nil)
	}
	return user, nil
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func setUser(c echo.Context, user *AuthUser) {
	c.SetRequest(c.Request().WithContext(WithUser(c.Request().Context(), user)))
	c.Set("user_id", user.UserID)
}

func validInternalToken(expected, got string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// roleFromClaims prefers app_metadata.role, which only the service role can set;
// the top-level role claim is "authenticated" for ordinary Supabase users.
func roleFromClaims(claims jwt.MapClaims) string {
	if meta, ok := claims["app_metadata"].(map[string]interface{}); ok {
		if role, ok := meta["role"].(string); ok && role != "" {
			return role
		}
	}
	role, _ := claims["role"].(string)
	return role
}
