package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/mr1hm/go-alert-automation/internal/models"
)

const contextUserKey = "currentUser"

type Claims struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// CurrentUser is the authenticated caller of a request.
type CurrentUser struct {
	ID   int64
	Role models.Role
}

func (u CurrentUser) IsAdmin() bool {
	return u.Role == models.RoleAdmin
}

// NewToken signs an HS256 token for userID.
func NewToken(secret []byte, userID int64, role models.Role, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// AuthMiddleware requires a valid bearer token and stores the caller in the
// gin context. An empty secret rejects every request.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			abort(c, http.StatusUnauthorized, "unauthorized", "Authorization header missing or invalid")
			return
		}
		if len(secret) == 0 {
			abort(c, http.StatusUnauthorized, "unauthorized", "authentication is not configured")
			return
		}

		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), &Claims{},
			func(t *jwt.Token) (any, error) { return secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		)
		if err != nil || !token.Valid {
			abort(c, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		claims, ok := token.Claims.(*Claims)
		if !ok || claims.UserID == 0 {
			abort(c, http.StatusUnauthorized, "unauthorized", "invalid token claims")
			return
		}

		c.Set(contextUserKey, CurrentUser{ID: claims.UserID, Role: models.Role(claims.Role)})
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := currentUser(c)
		if !ok || !u.IsAdmin() {
			abort(c, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) (CurrentUser, bool) {
	v, ok := c.Get(contextUserKey)
	if !ok {
		return CurrentUser{}, false
	}
	u, ok := v.(CurrentUser)
	return u, ok
}
