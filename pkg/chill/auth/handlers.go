package auth

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// DevLoginEnabled reports whether the unauthenticated development token
// endpoint should be mounted. Never set CHILL_DEV_LOGIN in production:
// the endpoint mints a token for any uid asked for.
func DevLoginEnabled() bool {
	return os.Getenv("CHILL_DEV_LOGIN") == "true"
}

// Handler serves the development auth endpoints.
type Handler struct{}

// NewHandler creates the auth handler.
func NewHandler() *Handler {
	return &Handler{}
}

// RegisterRoutes registers the development auth routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/token", h.Token)
}

// TokenRequest is the dev token request body.
type TokenRequest struct {
	UID string `json:"uid" binding:"required"`
}

// Token mints a JWT for the requested uid.
func (h *Handler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uid is required"})
		return
	}

	token, err := GenerateToken(req.UID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
