package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fairdice-backend/internal/models"
	"fairdice-backend/internal/retry"
	"fairdice-backend/internal/services"
)

type DiceHandler struct {
	engine *services.DiceEngine
	maxBet decimal.Decimal
}

func NewDiceHandler(engine *services.DiceEngine, maxBet decimal.Decimal) *DiceHandler {
	return &DiceHandler{
		engine: engine,
		maxBet: maxBet,
	}
}

// lost nonce races committed nothing and are replayed; a persistence
// failure may have committed and is not.
func isRace(err error) bool {
	return errors.Is(err, services.ErrConcurrencyConflict) || errors.Is(err, services.ErrNonceReuse)
}

func (h *DiceHandler) PlaceBet(c *gin.Context) {
	var req models.BetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if err := req.Validate(h.maxBet); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid bet",
			"details": err.Error(),
		})
		return
	}

	var bet *models.Bet
	err := retry.Constant(func() error {
		var err error
		bet, err = h.engine.PlaceBet(c.Request.Context(), userID(c), req.PairID, req.Amount, req.Target)
		return err
	}, retry.DefaultInterval, retry.DefaultMaxAttempts, isRace)
	if err != nil {
		respondError(c, "Failed to place bet", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"bet":     bet,
	})
}

func (h *DiceHandler) GetBetHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultHistoryLimit)))
	if err != nil {
		limit = services.DefaultHistoryLimit
	}

	bets, err := h.engine.ListBets(c.Request.Context(), userID(c), limit)
	if err != nil {
		respondError(c, "Failed to get bet history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"bets":    bets,
		"count":   len(bets),
	})
}

func (h *DiceHandler) GetBet(c *gin.Context) {
	bet, err := h.engine.GetBet(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to get bet", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"bet":     bet,
	})
}
