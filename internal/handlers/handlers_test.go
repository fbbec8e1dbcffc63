package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairdice-backend/internal/config"
	"fairdice-backend/internal/fairness"
	"fairdice-backend/internal/handlers"
	"fairdice-backend/internal/models"
	"fairdice-backend/internal/services"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	return newTestServerWithStore(t, services.NewMemoryStore(), mutate)
}

type storeWithLimiter interface {
	services.Store
	services.RateLimiter
}

func newTestServerWithStore(t *testing.T, store storeWithLimiter, mutate func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	if mutate != nil {
		mutate(cfg)
	}

	seeds := services.NewSeedManager(store, fairness.SHA256, cfg.Game.ServerSeedBytes, nil)
	house := services.NewHouseService(store, cfg.Game.RevenueShare, nil)

	router := handlers.NewRouter(handlers.Deps{
		Config:  cfg,
		Users:   services.NewUserService(store),
		Seeds:   seeds,
		Engine:  services.NewDiceEngine(store, seeds, house, cfg.Game, nil),
		House:   house,
		JWT:     services.NewJWTService(cfg.JWTSecret, cfg.TokenTTL),
		Limiter: store,
	})
	return &testServer{t: t, router: router}
}

func (s *testServer) do(method, path, token string, body any, out any) int {
	s.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if out != nil {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func (s *testServer) register(wallet string) (token string, user models.User) {
	s.t.Helper()

	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	code := s.do(http.MethodPost, "/auth/register", "", gin.H{"wallet_address": wallet}, &resp)
	require.Contains(s.t, []int{http.StatusOK, http.StatusCreated}, code)
	require.NotEmpty(s.t, resp.Token)
	return resp.Token, resp.User
}

func (s *testServer) activePair(token string) models.VerificationData {
	s.t.Helper()

	var resp struct {
		Verification models.VerificationData `json:"verification"`
	}
	require.Equal(s.t, http.StatusOK, s.do(http.MethodGet, "/api/seeds/active", token, nil, &resp))
	return resp.Verification
}

const (
	walletA = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	walletB = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

func TestRegister(t *testing.T) {
	s := newTestServer(t, nil)

	var first struct {
		User models.User `json:"user"`
	}
	code := s.do(http.MethodPost, "/auth/register", "", gin.H{"wallet_address": walletA, "username": "alice"}, &first)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", first.User.WalletAddress)

	var again struct {
		User models.User `json:"user"`
	}
	code = s.do(http.MethodPost, "/auth/register", "", gin.H{"wallet_address": walletA}, &again)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, first.User.ID, again.User.ID)

	code = s.do(http.MethodPost, "/auth/register", "", gin.H{"wallet_address": "nope"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/me", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/me", "garbage", nil, nil))
}

func TestBetRevealVerifyFlow(t *testing.T) {
	s := newTestServer(t, nil)
	token, user := s.register(walletA)

	active := s.activePair(token)
	assert.Zero(t, active.CurrentNonce)

	var betResp struct {
		Success bool       `json:"success"`
		Bet     models.Bet `json:"bet"`
	}
	code := s.do(http.MethodPost, "/api/dice/bet", token, gin.H{
		"pair_id": active.PairID,
		"amount":  "100",
		"target":  5000,
	}, &betResp)
	require.Equal(t, http.StatusOK, code)
	bet := betResp.Bet
	assert.Equal(t, user.ID, bet.UserID)
	assert.Equal(t, uint64(0), bet.Nonce)
	assert.Equal(t, bet.Result < 5000, bet.Won)
	assert.Empty(t, bet.FairnessProof.ServerSeed)

	var me struct {
		User         models.User             `json:"user"`
		Verification models.VerificationData `json:"verification"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/me", token, nil, &me))
	assert.Equal(t, int64(1), me.User.GamesPlayed)
	assert.True(t, bet.Profit.Equal(me.User.TotalProfit))
	assert.Equal(t, uint64(1), me.Verification.CurrentNonce)

	// the active pair cannot be revealed
	code = s.do(http.MethodPost, "/api/seeds/"+active.PairID+"/reveal", token, nil, nil)
	assert.Equal(t, http.StatusConflict, code)

	var rotated struct {
		Active  models.SeedPair `json:"active"`
		Retired models.SeedPair `json:"retired"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/seeds/rotate", token, gin.H{"client_seed": "next"}, &rotated))
	assert.Equal(t, active.PairID, rotated.Retired.ID)
	assert.Equal(t, "next", rotated.Active.ClientSeed)
	assert.Empty(t, rotated.Retired.ServerSeed)

	// betting on the retired pair fails
	code = s.do(http.MethodPost, "/api/dice/bet", token, gin.H{
		"pair_id": active.PairID, "amount": "1", "target": 5000,
	}, nil)
	assert.Equal(t, http.StatusConflict, code)

	otherToken, _ := s.register(walletB)
	code = s.do(http.MethodPost, "/api/seeds/"+active.PairID+"/reveal", otherToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, code)

	var revealed struct {
		Pair models.SeedPair `json:"pair"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/seeds/"+active.PairID+"/reveal", token, nil, &revealed))
	require.NotEmpty(t, revealed.Pair.ServerSeed)

	var stored struct {
		Bet models.Bet `json:"bet"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/dice/bets/"+bet.ID, token, nil, &stored))
	assert.Equal(t, revealed.Pair.ServerSeed, stored.Bet.FairnessProof.ServerSeed)

	var verified struct {
		Verification fairness.Verification `json:"verification"`
		Won          bool                  `json:"won"`
		Multiplier   decimal.Decimal       `json:"multiplier"`
	}
	code = s.do(http.MethodPost, "/verify", "", gin.H{
		"server_seed":      revealed.Pair.ServerSeed,
		"server_seed_hash": bet.FairnessProof.ServerSeedHash,
		"client_seed":      bet.FairnessProof.ClientSeed,
		"nonce":            bet.Nonce,
		"target":           bet.Target,
	}, &verified)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, verified.Verification.HashMatches)
	assert.Equal(t, bet.Result, verified.Verification.Result)
	assert.Equal(t, bet.Won, verified.Won)
	assert.True(t, decimal.RequireFromString("1.96").Equal(verified.Multiplier))

	var history struct {
		Count int `json:"count"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/dice/bets?limit=5", token, nil, &history))
	assert.Equal(t, 1, history.Count)

	var stats struct {
		Stats models.HouseStat `json:"stats"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, "/house/stats", "", nil, &stats))
	assert.Equal(t, int64(1), stats.Stats.BetCount)
}

func TestPlaceBetValidation(t *testing.T) {
	s := newTestServer(t, nil)
	token, _ := s.register(walletA)
	active := s.activePair(token)

	tests := []struct {
		name string
		body gin.H
		want int
	}{
		{"missing pair", gin.H{"amount": "1", "target": 5000}, http.StatusBadRequest},
		{"target zero", gin.H{"pair_id": active.PairID, "amount": "1", "target": 0}, http.StatusBadRequest},
		{"target too high", gin.H{"pair_id": active.PairID, "amount": "1", "target": 10000}, http.StatusBadRequest},
		{"negative amount", gin.H{"pair_id": active.PairID, "amount": "-1", "target": 5000}, http.StatusBadRequest},
		{"above max bet", gin.H{"pair_id": active.PairID, "amount": "10000.01", "target": 5000}, http.StatusBadRequest},
		{"target max outcome", gin.H{"pair_id": active.PairID, "amount": "1", "target": 9999}, http.StatusBadRequest},
		{"unknown pair", gin.H{"pair_id": models.NewID(), "amount": "1", "target": 5000}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.do(http.MethodPost, "/api/dice/bet", token, tt.body, nil))
		})
	}

	assert.Zero(t, s.activePair(token).CurrentNonce)

	code := s.do(http.MethodPost, "/api/dice/bet", token, gin.H{
		"pair_id": active.PairID, "amount": "1", "target": 9998,
	}, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestClientSeedChange(t *testing.T) {
	s := newTestServer(t, nil)
	token, _ := s.register(walletA)
	active := s.activePair(token)

	var resp struct {
		Pair models.SeedPair `json:"pair"`
	}
	require.Equal(t, http.StatusOK, s.do(http.MethodPut, "/api/seeds/active/client-seed", token, gin.H{"client_seed": "mine"}, &resp))
	assert.Equal(t, active.PairID, resp.Pair.ID)
	assert.Equal(t, "mine", resp.Pair.ClientSeed)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/api/seeds/active/client-seed", token, gin.H{"client_seed": ""}, nil))
}

func TestBetRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.BetsPerMinute = 2
	})
	token, _ := s.register(walletA)
	active := s.activePair(token)

	body := gin.H{"pair_id": active.PairID, "amount": "1", "target": 5000}
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/dice/bet", token, body, nil))
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/dice/bet", token, body, nil))
	assert.Equal(t, http.StatusTooManyRequests, s.do(http.MethodPost, "/api/dice/bet", token, body, nil))

	// reads are not limited
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/dice/bets", token, nil, nil))
}

func TestVerifyRejectsUnknownAlgorithm(t *testing.T) {
	s := newTestServer(t, nil)

	code := s.do(http.MethodPost, "/verify", "", gin.H{
		"server_seed":    "abc123",
		"client_seed":    "player1",
		"hash_algorithm": "md5",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	var resp struct {
		Verification fairness.Verification `json:"verification"`
	}
	code = s.do(http.MethodPost, "/verify", "", gin.H{
		"server_seed": "abc123",
		"client_seed": "player1",
	}, &resp)
	require.Equal(t, http.StatusOK, code)
	result, err := fairness.Generate(fairness.SHA256, "abc123", "player1", 0)
	require.NoError(t, err)
	assert.Equal(t, result, resp.Verification.Result)
}

// lostReplyStore fails every commit the way a store does when the
// connection drops around EXEC.
type lostReplyStore struct {
	*services.MemoryStore
}

func (s lostReplyStore) CommitBet(ctx context.Context, bet *models.Bet) (*models.User, error) {
	return nil, fmt.Errorf("%w: commit bet: connection reset", services.ErrPersistence)
}

func TestPersistenceFailureIsNotRetryable(t *testing.T) {
	s := newTestServerWithStore(t, lostReplyStore{services.NewMemoryStore()}, nil)
	token, _ := s.register(walletA)
	active := s.activePair(token)

	var resp struct {
		Error     string `json:"error"`
		Retryable bool   `json:"retryable"`
	}
	code := s.do(http.MethodPost, "/api/dice/bet", token, gin.H{
		"pair_id": active.PairID, "amount": "1", "target": 5000,
	}, &resp)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, resp.Retryable)
	assert.NotEmpty(t, resp.Error)
}
