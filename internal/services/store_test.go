package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"fairdice-backend/internal/models"
	"fairdice-backend/internal/services"
)

func newSQLiteStore(t *testing.T) *services.SQLStore {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", models.NewID())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := services.NewSQLStore(db)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })
	return store
}

var storeImplementations = map[string]func(t *testing.T) services.Store{
	"memory": func(t *testing.T) services.Store { return services.NewMemoryStore() },
	"sqlite": func(t *testing.T) services.Store { return newSQLiteStore(t) },
}

func testPair(userID, clientSeed string) *models.SeedPair {
	return &models.SeedPair{
		ID:             models.NewID(),
		UserID:         userID,
		ServerSeed:     "server-" + clientSeed,
		ServerSeedHash: "hash-" + clientSeed,
		HashAlgorithm:  "sha256",
		ClientSeed:     clientSeed,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
}

func testBet(pair *models.SeedPair, nonce uint64, won bool) *models.Bet {
	bet := &models.Bet{
		ID:         models.NewID(),
		UserID:     pair.UserID,
		SeedPairID: pair.ID,
		Nonce:      nonce,
		BetAmount:  decimal.NewFromInt(100),
		Target:     5000,
		Multiplier: decimal.RequireFromString("1.96"),
		Result:     7000,
		Payout:     decimal.Zero,
		Profit:     decimal.NewFromInt(-100),
		FairnessProof: models.FairnessProof{
			ServerSeedHash: pair.ServerSeedHash,
			HashAlgorithm:  pair.HashAlgorithm,
			ClientSeed:     pair.ClientSeed,
			Nonce:          nonce,
			Target:         5000,
			Result:         7000,
		},
		CreatedAt: time.Now().UTC().Add(time.Duration(nonce) * time.Millisecond),
	}
	if won {
		bet.Won = true
		bet.Result = 1000
		bet.FairnessProof.Result = 1000
		bet.Payout = decimal.NewFromInt(196)
		bet.Profit = decimal.NewFromInt(96)
	}
	return bet
}

func TestStore_Users(t *testing.T) {
	for name, open := range storeImplementations {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()

			user := models.NewUser("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", "alice")
			require.NoError(t, store.CreateUser(ctx, user))

			err := store.CreateUser(ctx, models.NewUser(user.WalletAddress, "bob"))
			assert.ErrorIs(t, err, services.ErrInvalidInput)

			got, err := store.GetUserByWallet(ctx, user.WalletAddress)
			require.NoError(t, err)
			assert.Equal(t, user.ID, got.ID)
			assert.Equal(t, "alice", got.Username)

			_, err = store.GetUser(ctx, "missing")
			assert.ErrorIs(t, err, services.ErrNotFound)
		})
	}
}

func TestStore_SeedPairLifecycle(t *testing.T) {
	for name, open := range storeImplementations {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			userID := models.NewID()

			_, err := store.GetActiveSeedPair(ctx, userID)
			assert.ErrorIs(t, err, services.ErrNotFound)

			first := testPair(userID, "one")
			retired, err := store.ActivateSeedPair(ctx, first, time.Now())
			require.NoError(t, err)
			assert.Nil(t, retired)

			_, err = store.RevealSeedPair(ctx, first.ID, time.Now())
			assert.ErrorIs(t, err, services.ErrInvalidState)

			second := testPair(userID, "two")
			retired, err = store.ActivateSeedPair(ctx, second, time.Now())
			require.NoError(t, err)
			require.NotNil(t, retired)
			assert.Equal(t, first.ID, retired.ID)
			assert.False(t, retired.IsActive)
			require.NotNil(t, retired.RetiredAt)

			active, err := store.GetActiveSeedPair(ctx, userID)
			require.NoError(t, err)
			assert.Equal(t, second.ID, active.ID)

			old, err := store.GetSeedPair(ctx, first.ID)
			require.NoError(t, err)
			assert.Equal(t, models.SeedStatusRetired, old.Status())

			revealed, err := store.RevealSeedPair(ctx, first.ID, time.Now())
			require.NoError(t, err)
			assert.Equal(t, "server-one", revealed.ServerSeed)
			assert.Equal(t, models.SeedStatusRevealed, revealed.Status())

			_, err = store.RevealSeedPair(ctx, first.ID, time.Now())
			assert.ErrorIs(t, err, services.ErrInvalidState)

			_, err = store.UpdateClientSeed(ctx, first.ID, "late")
			assert.ErrorIs(t, err, services.ErrInvalidState)

			updated, err := store.UpdateClientSeed(ctx, second.ID, "three")
			require.NoError(t, err)
			assert.Equal(t, "three", updated.ClientSeed)

			_, err = store.RevealSeedPair(ctx, "missing", time.Now())
			assert.ErrorIs(t, err, services.ErrNotFound)
		})
	}
}

func TestStore_CommitBet(t *testing.T) {
	for name, open := range storeImplementations {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()

			user := models.NewUser("0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", "")
			require.NoError(t, store.CreateUser(ctx, user))
			pair := testPair(user.ID, "client")
			_, err := store.ActivateSeedPair(ctx, pair, time.Now())
			require.NoError(t, err)

			updated, err := store.CommitBet(ctx, testBet(pair, 0, true))
			require.NoError(t, err)
			assert.Equal(t, int64(1), updated.GamesPlayed)
			assert.Equal(t, 1, updated.CurrentStreak)

			updated, err = store.CommitBet(ctx, testBet(pair, 1, false))
			require.NoError(t, err)
			assert.Equal(t, int64(2), updated.GamesPlayed)
			assert.Equal(t, 0, updated.CurrentStreak)
			assert.Equal(t, 1, updated.BestStreak)
			assert.True(t, decimal.NewFromInt(-4).Equal(updated.TotalProfit), updated.TotalProfit.String())

			// stale nonce
			_, err = store.CommitBet(ctx, testBet(pair, 1, true))
			assert.ErrorIs(t, err, services.ErrConcurrencyConflict)

			// client seed changed after the roll was computed
			stale := testBet(pair, 2, true)
			_, err = store.UpdateClientSeed(ctx, pair.ID, "rotated")
			require.NoError(t, err)
			_, err = store.CommitBet(ctx, stale)
			assert.ErrorIs(t, err, services.ErrConcurrencyConflict)

			stored, err := store.GetSeedPair(ctx, pair.ID)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), stored.Nonce)

			bets, err := store.ListBets(ctx, user.ID, 0)
			require.NoError(t, err)
			require.Len(t, bets, 2)
			assert.Equal(t, uint64(1), bets[0].Nonce, "newest first")
			assert.Equal(t, uint64(0), bets[1].Nonce)

			got, err := store.GetBet(ctx, bets[1].ID)
			require.NoError(t, err)
			assert.True(t, got.Won)
			assert.Equal(t, "client", got.FairnessProof.ClientSeed)

			user2, err := store.GetUser(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(2), user2.GamesPlayed)
		})
	}
}

func TestStore_CommitBetOnRetiredPair(t *testing.T) {
	for name, open := range storeImplementations {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()

			user := models.NewUser("0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB", "")
			require.NoError(t, store.CreateUser(ctx, user))
			pair := testPair(user.ID, "a")
			_, err := store.ActivateSeedPair(ctx, pair, time.Now())
			require.NoError(t, err)
			_, err = store.ActivateSeedPair(ctx, testPair(user.ID, "b"), time.Now())
			require.NoError(t, err)

			_, err = store.CommitBet(ctx, testBet(pair, 0, true))
			assert.ErrorIs(t, err, services.ErrConcurrencyConflict)

			got, err := store.GetUser(ctx, user.ID)
			require.NoError(t, err)
			assert.Zero(t, got.GamesPlayed)
		})
	}
}

func TestStore_HouseStats(t *testing.T) {
	for name, open := range storeImplementations {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			period := "2024-03-01"

			empty, err := store.GetHouseStats(ctx, period)
			require.NoError(t, err)
			assert.Zero(t, empty.BetCount)
			assert.True(t, empty.Volume.IsZero())

			deltas := []models.HouseStatDelta{
				{Period: period, UserID: "u1", Volume: decimal.NewFromInt(100), HouseProfit: decimal.NewFromInt(100)},
				{Period: period, UserID: "u2", Volume: decimal.NewFromInt(50), HouseProfit: decimal.NewFromInt(-48)},
				{Period: period, UserID: "u1", Volume: decimal.NewFromInt(10), HouseProfit: decimal.NewFromInt(10)},
			}
			for _, d := range deltas {
				require.NoError(t, store.IncrementHouseStats(ctx, d))
			}

			stat, err := store.GetHouseStats(ctx, period)
			require.NoError(t, err)
			assert.Equal(t, int64(3), stat.BetCount)
			assert.Equal(t, int64(2), stat.UniquePlayers)
			assert.True(t, decimal.NewFromInt(160).Equal(stat.Volume), stat.Volume.String())
			assert.True(t, decimal.NewFromInt(62).Equal(stat.HouseProfit), stat.HouseProfit.String())
			assert.Nil(t, stat.ClosedAt)

			pool := stat.RevenueShare(decimal.RequireFromString("0.1"))
			closed, err := store.CloseHouseStats(ctx, period, pool, time.Now())
			require.NoError(t, err)
			assert.NotNil(t, closed.ClosedAt)
			assert.True(t, decimal.RequireFromString("6.2").Equal(closed.RevenueSharePool), closed.RevenueSharePool.String())
		})
	}
}

func TestMemoryStore_RateLimit(t *testing.T) {
	store := services.NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := store.CheckRateLimit(ctx, "u", "bet", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := store.CheckRateLimit(ctx, "u", "bet", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = store.CheckRateLimit(ctx, "u", "seed", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "actions are counted separately")

	allowed, err = store.CheckRateLimit(ctx, "v", "bet", 1, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, allowed)
	time.Sleep(5 * time.Millisecond)
	allowed, err = store.CheckRateLimit(ctx, "v", "bet", 1, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, allowed, "window expired")
}
