package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fairdice-backend/internal/models"
	"fairdice-backend/internal/services"
)

type SeedHandler struct {
	seeds *services.SeedManager
}

func NewSeedHandler(seeds *services.SeedManager) *SeedHandler {
	return &SeedHandler{seeds: seeds}
}

func (h *SeedHandler) GetActive(c *gin.Context) {
	data, err := h.seeds.VerificationData(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, "Failed to get verification data", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"verification": data,
	})
}

// Rotate retires the active pair and commits a new one. The old pair can
// then be revealed.
func (h *SeedHandler) Rotate(c *gin.Context) {
	var req models.RotateSeedRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request",
				"details": err.Error(),
			})
			return
		}
	}

	result, err := h.seeds.CreateSeedPair(c.Request.Context(), userID(c), req.ClientSeed)
	if err != nil {
		respondError(c, "Failed to rotate seed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"active":  result.Active,
		"retired": result.Retired,
	})
}

func (h *SeedHandler) SetClientSeed(c *gin.Context) {
	var req models.ClientSeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	active, err := h.seeds.ActiveSeedPair(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, "Failed to get active seed", err)
		return
	}

	pair, err := h.seeds.RotateClientSeed(c.Request.Context(), userID(c), active.ID, req.ClientSeed)
	if err != nil {
		respondError(c, "Failed to change client seed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"pair":    pair,
	})
}

func (h *SeedHandler) Reveal(c *gin.Context) {
	pair, err := h.seeds.RevealSeedPair(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to reveal seed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"pair":    pair,
	})
}
