package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const tokenContextKey = "characterlab/auth-token"

// RequireAuth guards a route group: requests without a valid bearer token are
// rejected with 401. The validated token stays on the context so logout can
// revoke the exact credential that authenticated the request.
func (s *Service) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken := s.requestToken(c)
		if authToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		if _, err := s.ValidateToken(c.Request.Context(), authToken); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(tokenContextKey, authToken)
		c.Next()
	}
}

// AuthTokenFromContext retrieves the bearer token captured by RequireAuth.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(tokenContextKey)
	if !ok {
		return "", false
	}
	token, ok := val.(string)
	return token, ok
}

// requestToken pulls the credential from the Authorization header, falling
// back to the auth cookie for browser clients.
func (s *Service) requestToken(c *gin.Context) string {
	header := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	token, err := c.Cookie(s.cookieName)
	if err != nil {
		return ""
	}
	return token
}
