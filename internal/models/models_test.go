package models_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairdice-backend/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestUserApplyBet(t *testing.T) {
	user := models.NewUser("0x0000000000000000000000000000000000000001", "alice")

	outcomes := []struct {
		won    bool
		amount string
		payout string
		profit string
	}{
		{true, "100", "196", "96"},
		{true, "10", "19.6", "9.6"},
		{false, "50", "0", "-50"},
		{true, "1", "1.96", "0.96"},
	}

	for _, o := range outcomes {
		user.ApplyBet(&models.Bet{
			BetAmount: dec(o.amount),
			Won:       o.won,
			Payout:    dec(o.payout),
			Profit:    dec(o.profit),
			CreatedAt: time.Now(),
		})
	}

	assert.True(t, user.TotalWagered.Equal(dec("161")))
	assert.True(t, user.TotalWon.Equal(dec("217.56")))
	assert.True(t, user.TotalProfit.Equal(dec("56.56")))
	assert.Equal(t, int64(4), user.GamesPlayed)
	assert.Equal(t, 1, user.CurrentStreak)
	assert.Equal(t, 2, user.BestStreak)
}

func TestSeedPairPublic(t *testing.T) {
	pair := &models.SeedPair{
		ID:         models.NewID(),
		ServerSeed: "secret",
		IsActive:   true,
	}
	assert.Equal(t, models.SeedStatusActive, pair.Status())
	assert.Empty(t, pair.Public().ServerSeed)
	assert.Equal(t, "secret", pair.ServerSeed, "Public must not mutate the pair")

	pair.IsActive = false
	assert.Equal(t, models.SeedStatusRetired, pair.Status())
	assert.Empty(t, pair.Public().ServerSeed)

	now := time.Now()
	pair.RevealedAt = &now
	assert.Equal(t, models.SeedStatusRevealed, pair.Status())
	assert.Equal(t, "secret", pair.Public().ServerSeed)
}

func TestNormalizeWalletAddress(t *testing.T) {
	addr, err := models.NormalizeWalletAddress(" 0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed ")
	require.NoError(t, err)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", addr)

	_, err = models.NormalizeWalletAddress("not-an-address")
	assert.Error(t, err)
}

func TestBetRequestValidate(t *testing.T) {
	maxBet := dec("1000")

	valid := &models.BetRequest{PairID: "p", Amount: dec("50"), Target: 5000}
	assert.NoError(t, valid.Validate(maxBet))
	highest := &models.BetRequest{PairID: "p", Amount: dec("50"), Target: 9998}
	assert.NoError(t, highest.Validate(maxBet))

	invalid := []*models.BetRequest{
		{PairID: "", Amount: dec("50"), Target: 5000},
		{PairID: "p", Amount: dec("0"), Target: 5000},
		{PairID: "p", Amount: dec("-1"), Target: 5000},
		{PairID: "p", Amount: dec("1000.01"), Target: 5000},
		{PairID: "p", Amount: dec("50"), Target: 0},
		{PairID: "p", Amount: dec("50"), Target: 9999},
		{PairID: "p", Amount: dec("50"), Target: 10000},
	}
	for _, req := range invalid {
		assert.Error(t, req.Validate(maxBet))
	}
}

func TestHouseStatApply(t *testing.T) {
	stat := models.NewHouseStat("2026-01-02")
	stat.Apply(models.HouseStatDelta{Volume: dec("100"), HouseProfit: dec("100")}, true)
	stat.Apply(models.HouseStatDelta{Volume: dec("100"), HouseProfit: dec("-96")}, false)

	assert.True(t, stat.Volume.Equal(dec("200")))
	assert.True(t, stat.HouseProfit.Equal(dec("4")))
	assert.Equal(t, int64(2), stat.BetCount)
	assert.Equal(t, int64(1), stat.UniquePlayers)
	assert.True(t, stat.RevenueShare(dec("0.1")).Equal(dec("0.4")))

	stat.HouseProfit = dec("-10")
	assert.True(t, stat.RevenueShare(dec("0.1")).IsZero())
}

func TestDeltaForBet(t *testing.T) {
	bet := &models.Bet{
		UserID:    "u1",
		BetAmount: dec("100"),
		Profit:    dec("96"),
		CreatedAt: time.Date(2026, 3, 4, 23, 59, 0, 0, time.UTC),
	}
	d := models.DeltaForBet(bet)
	assert.Equal(t, "2026-03-04", d.Period)
	assert.True(t, d.HouseProfit.Equal(dec("-96")))
	assert.True(t, d.Volume.Equal(dec("100")))
}
