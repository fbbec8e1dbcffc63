package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fairdice-backend/internal/fairness"
	"fairdice-backend/internal/models"
	"fairdice-backend/internal/services"
)

type PublicHandler struct {
	engine *services.DiceEngine
	house  *services.HouseService
}

func NewPublicHandler(engine *services.DiceEngine, house *services.HouseService) *PublicHandler {
	return &PublicHandler{
		engine: engine,
		house:  house,
	}
}

// Verify recomputes a roll from a revealed seed. It needs no account, so
// anyone can audit a shared bet.
func (h *PublicHandler) Verify(c *gin.Context) {
	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	hasher, err := fairness.Lookup(req.HashAlgorithm)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Unknown hash algorithm",
			"details": err.Error(),
		})
		return
	}

	v, err := fairness.Verify(hasher, req.ServerSeed, req.ServerSeedHash, req.ClientSeed, req.Nonce)
	if err != nil {
		respondError(c, "Failed to verify", err)
		return
	}

	resp := gin.H{
		"success":      true,
		"verification": v,
	}
	if req.Target > 0 {
		resp["won"] = v.Result < req.Target
		if m, err := h.engine.Multiplier(req.Target); err == nil {
			resp["multiplier"] = m
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *PublicHandler) HouseStats(c *gin.Context) {
	stat, err := h.house.Stats(c.Request.Context(), c.Query("period"))
	if err != nil {
		respondError(c, "Failed to get house stats", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   stat,
	})
}
