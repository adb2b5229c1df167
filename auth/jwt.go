package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/buckneer/beastie-club/types"
	"github.com/buckneer/beastie-club/wheel"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Context keys for caller identity
const (
	AccountIDKey = "account_id"
	UsernameKey  = "username"
	DeviceIDKey  = "device_id"
	IdentityKey  = "identity"
	ClaimsKey    = "claims"
)

// DeviceIDHeader carries the installation identifier of an unauthenticated app.
const DeviceIDHeader = "X-Device-ID"

// Claims represents the JWT claims structure
type Claims struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}

// JWTConfig holds identity middleware configuration
type JWTConfig struct {
	Secret      string
	TokenPrefix string // "Bearer"
	SkipPaths   []string
}

// DefaultJWTConfig returns default JWT configuration
func DefaultJWTConfig(secret string) JWTConfig {
	return JWTConfig{
		Secret:      secret,
		TokenPrefix: "Bearer",
		SkipPaths:   []string{"/health", "/api/health"},
	}
}

// IdentityMiddleware resolves the caller identity for each request.
//
// A valid Bearer token yields an account identity. Without a token, the
// X-Device-ID header yields a guest identity. Requests carrying neither
// proceed without an identity; handlers that require one reject them.
// An Authorization header that is present but invalid is always a 401,
// it never silently downgrades to guest.
func IdentityMiddleware(secret string, logger zerolog.Logger) gin.HandlerFunc {
	return IdentityMiddlewareWithConfig(DefaultJWTConfig(secret), logger)
}

// IdentityMiddlewareWithConfig creates an identity middleware with custom configuration
func IdentityMiddlewareWithConfig(config JWTConfig, logger zerolog.Logger) gin.HandlerFunc {
	skipPaths := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		deviceID := strings.TrimSpace(c.GetHeader(DeviceIDHeader))
		if deviceID != "" {
			c.Set(DeviceIDKey, deviceID)
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if deviceID != "" {
				c.Set(IdentityKey, wheel.GuestIdentity(deviceID))
			}
			c.Next()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != config.TokenPrefix {
			logger.Warn().Str("auth_header", authHeader).Msg("Invalid Authorization header format")
			abortUnauthorized(c, "Invalid Authorization header format. Expected: Bearer <token>")
			return
		}

		tokenString := parts[1]

		claims, err := ParseToken(config.Secret, tokenString)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to parse JWT token")
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		c.Set(AccountIDKey, claims.AccountID)
		c.Set(UsernameKey, claims.Username)
		c.Set(ClaimsKey, claims)
		c.Set(IdentityKey, wheel.AccountIdentity(claims.AccountID))

		logger.Debug().
			Str("account_id", claims.AccountID).
			Str("username", claims.Username).
			Msg("JWT authentication successful")

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	errorResp := types.ErrorResponse{
		StatusCode: http.StatusUnauthorized,
		IsSuccess:  false,
		Error: types.ErrorDetail{
			Timestamp:    time.Now().Format(time.RFC3339),
			Path:         c.Request.URL.Path,
			ErrorMessage: message,
		},
	}
	c.JSON(http.StatusUnauthorized, errorResp)
	c.Abort()
}

// ParseToken validates a token string and returns its claims
func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// GetIdentity extracts the resolved caller identity from context
func GetIdentity(c *gin.Context) (wheel.Identity, bool) {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return wheel.Identity{}, false
	}
	id, ok := v.(wheel.Identity)
	return id, ok
}

// GetAccountID extracts account ID from context
func GetAccountID(c *gin.Context) (string, bool) {
	accountID, exists := c.Get(AccountIDKey)
	if !exists {
		return "", false
	}
	accountIDStr, ok := accountID.(string)
	return accountIDStr, ok
}

// GetDeviceID extracts the device ID header value from context
func GetDeviceID(c *gin.Context) (string, bool) {
	deviceID, exists := c.Get(DeviceIDKey)
	if !exists {
		return "", false
	}
	deviceIDStr, ok := deviceID.(string)
	return deviceIDStr, ok
}

// GetClaims extracts full claims from context
func GetClaims(c *gin.Context) (*Claims, bool) {
	claims, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claimsObj, ok := claims.(*Claims)
	return claimsObj, ok
}

// GenerateToken generates a new JWT token
func GenerateToken(secret string, accountID, username string, expiration time.Duration) (string, error) {
	claims := &Claims{
		AccountID: accountID,
		Username:  username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
