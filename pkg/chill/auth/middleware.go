package auth

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const (
	// ContextKeyUID is the key for the verified caller uid in gin context
	ContextKeyUID = "uid"
	// ContextKeyService marks a request authenticated with the service key
	ContextKeyService = "service"
)

// ServiceKeyHash returns the bcrypt hash of the privileged service key,
// or "" when no service identity is configured.
func ServiceKeyHash() string {
	return os.Getenv("CHILL_SERVICE_KEY_HASH")
}

// HashServiceKey produces the bcrypt hash to put in
// CHILL_SERVICE_KEY_HASH for a chosen key.
func HashServiceKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// AuthMiddleware validates bearer credentials and sets the caller
// identity in context. A credential matching the configured service key
// is privileged; anything else must be a valid user JWT.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		// Expect "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		tokenString := parts[1]
		if hash := ServiceKeyHash(); hash != "" {
			if bcrypt.CompareHashAndPassword([]byte(hash), []byte(tokenString)) == nil {
				c.Set(ContextKeyService, true)
				c.Next()
				return
			}
		}

		claims, err := ValidateToken(tokenString)
		if err != nil {
			if err == ErrExpiredToken {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has expired"})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			c.Abort()
			return
		}

		c.Set(ContextKeyUID, claims.UID)
		c.Next()
	}
}

// GetUID returns the verified uid from the gin context.
func GetUID(c *gin.Context) (string, bool) {
	uid, exists := c.Get(ContextKeyUID)
	if !exists {
		return "", false
	}
	return uid.(string), true
}

// IsService reports whether the request carries the privileged service
// identity.
func IsService(c *gin.Context) bool {
	v, exists := c.Get(ContextKeyService)
	return exists && v.(bool)
}
