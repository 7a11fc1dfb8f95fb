package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/consult-api/internal/handler"
	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/pkg/auth"
)

const accessTokenCookie = "access_token"

type AuthMiddleware struct {
	jwt auth.JWTService
}

func NewAuthMiddleware(jwt auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// Authenticate verifies the bearer token or the access-token cookie
// and stores the claims for downstream handlers.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			if cookie, err := c.Cookie(accessTokenCookie); err == nil {
				token = cookie
			}
		}
		if token == "" {
			abortUnauthorized(c, "missing credentials")
			return
		}

		claims, err := m.jwt.ValidateToken(token)
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(auth.ContextKey, claims)
		c.Next()
	}
}

// RequireRole restricts a route to the given roles. Runs after
// Authenticate.
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := auth.ClaimsFrom(c)
		if claims == nil {
			abortUnauthorized(c, "missing credentials")
			return
		}
		for _, role := range roles {
			if claims.Role == string(role) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, &handler.Response{
			Success:    false,
			StatusCode: http.StatusForbidden,
			Message:    "insufficient role",
			Timestamp:  time.Now().UTC(),
		})
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, &handler.Response{
		Success:    false,
		StatusCode: http.StatusUnauthorized,
		Message:    message,
		Timestamp:  time.Now().UTC(),
	})
}
