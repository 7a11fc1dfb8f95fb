package auth

import "github.com/gin-gonic/gin"

// ContextKey is where the auth middleware stores the verified claims.
const ContextKey = "authClaims"

// ClaimsFrom returns the verified claims of the current request, or
// nil on unauthenticated routes.
func ClaimsFrom(c *gin.Context) *Claims {
	v, ok := c.Get(ContextKey)
	if !ok {
		return nil
	}
	claims, ok := v.(*Claims)
	if !ok {
		return nil
	}
	return claims
}
