package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fairdice-backend/internal/models"
	"fairdice-backend/internal/services"
)

type UserHandler struct {
	users      *services.UserService
	seeds      *services.SeedManager
	jwtService *services.JWTService
}

func NewUserHandler(users *services.UserService, seeds *services.SeedManager, jwtService *services.JWTService) *UserHandler {
	return &UserHandler{
		users:      users,
		seeds:      seeds,
		jwtService: jwtService,
	}
}

// Register signs a wallet in, creating the user on first sight, and
// returns a session token.
func (h *UserHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	user, created, err := h.users.Register(c.Request.Context(), req.WalletAddress, req.Username)
	if err != nil {
		respondError(c, "Failed to register", err)
		return
	}

	token, expiresAt, err := h.jwtService.GenerateToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"success":    true,
		"user":       user,
		"token":      token,
		"expires_at": expiresAt,
	})
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, "Failed to get user", err)
		return
	}

	verification, err := h.seeds.VerificationData(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, "Failed to get verification data", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":         user,
		"verification": verification,
	})
}
