package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fairdice-backend/internal/config"
	"fairdice-backend/internal/fairness"
	"fairdice-backend/internal/logger"
	"fairdice-backend/internal/models"
)

const (
	multiplierPlaces = 4
	amountPlaces     = 8

	commitTimeout = 5 * time.Second
)

var (
	one          = decimal.NewFromInt(1)
	outcomeSpace = decimal.NewFromInt(fairness.OutcomeSpace)
)

// DiceEngine is the only component that creates bets. A bet wins when the
// roll is strictly below the chosen target.
type DiceEngine struct {
	store       Store
	seeds       *SeedManager
	house       *HouseService
	houseEdge   decimal.Decimal
	maxBet      decimal.Decimal
	broadcaster Broadcaster
	now         func() time.Time
}

func NewDiceEngine(store Store, seeds *SeedManager, house *HouseService, cfg config.GameConfig, broadcaster Broadcaster) *DiceEngine {
	if broadcaster == nil {
		broadcaster = NewMultiBroadcaster()
	}
	return &DiceEngine{
		store:       store,
		seeds:       seeds,
		house:       house,
		houseEdge:   cfg.HouseEdge,
		maxBet:      cfg.MaxBet,
		broadcaster: broadcaster,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Multiplier is (1 - edge) / (target / 10000), truncated to four places.
// High targets may pay 1x or less: a win then returns at most the stake.
func (e *DiceEngine) Multiplier(target int) (decimal.Decimal, error) {
	if target < 1 || target > fairness.MaxTarget {
		return decimal.Zero, fmt.Errorf("%w: target must be between 1 and %d", ErrInvalidStake, fairness.MaxTarget)
	}

	m := one.Sub(e.houseEdge).
		Mul(outcomeSpace).
		Div(decimal.NewFromInt(int64(target))).
		Truncate(multiplierPlaces)
	if !m.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: target %d pays %sx", ErrInvalidStake, target, m.String())
	}
	return m, nil
}

func (e *DiceEngine) validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: bet amount must be positive", ErrInvalidStake)
	}
	if amount.Exponent() < -amountPlaces {
		return fmt.Errorf("%w: bet amount has more than %d decimal places", ErrInvalidStake, amountPlaces)
	}
	if amount.GreaterThan(e.maxBet) {
		return fmt.Errorf("%w: maximum bet amount is %s", ErrInvalidStake, e.maxBet.String())
	}
	return nil
}

// roll computes the outcome at nonce, which must be the pair's next one.
func roll(pair *models.SeedPair, nonce uint64) (int, error) {
	if nonce != pair.Nonce {
		return 0, fmt.Errorf("%w: pair %s is at nonce %d, not %d", ErrNonceReuse, pair.ID, pair.Nonce, nonce)
	}

	hasher, err := fairness.Lookup(pair.HashAlgorithm)
	if err != nil {
		return 0, fmt.Errorf("%w: pair %s: %v", ErrInvalidState, pair.ID, err)
	}
	return fairness.Generate(hasher, pair.ServerSeed, pair.ClientSeed, nonce)
}

// PlaceBet resolves one bet on the caller's active pair. The nonce
// consumption, the bet record and the user aggregates are committed
// together or not at all; house stats and broadcasts follow and never fail
// the bet.
func (e *DiceEngine) PlaceBet(ctx context.Context, userID, pairID string, amount decimal.Decimal, target int) (*models.Bet, error) {
	if err := e.validateAmount(amount); err != nil {
		return nil, err
	}
	multiplier, err := e.Multiplier(target)
	if err != nil {
		return nil, err
	}

	unlock := e.seeds.locks.Lock(userID)
	defer unlock()

	pair, err := e.store.GetSeedPair(ctx, pairID)
	if err != nil {
		return nil, err
	}
	if pair.UserID != userID {
		return nil, fmt.Errorf("%w: pair %s", ErrForbidden, pairID)
	}
	if !pair.IsActive {
		return nil, fmt.Errorf("%w: pair %s", ErrInsufficientPairState, pairID)
	}

	nonce := pair.Nonce
	result, err := roll(pair, nonce)
	if err != nil {
		return nil, err
	}

	won := result < target
	payout := decimal.Zero
	profit := amount.Neg()
	if won {
		payout = amount.Mul(multiplier).Truncate(amountPlaces)
		profit = payout.Sub(amount)
	}

	bet := &models.Bet{
		ID:         models.NewID(),
		UserID:     userID,
		SeedPairID: pair.ID,
		Nonce:      nonce,
		BetAmount:  amount,
		Target:     target,
		Multiplier: multiplier,
		Result:     result,
		Won:        won,
		Payout:     payout,
		Profit:     profit,
		FairnessProof: models.FairnessProof{
			ServerSeedHash: pair.ServerSeedHash,
			HashAlgorithm:  pair.HashAlgorithm,
			ClientSeed:     pair.ClientSeed,
			Nonce:          nonce,
			Target:         target,
			Result:         result,
		},
		CreatedAt: e.now(),
	}

	// a caller that goes away must not abort a commit half way
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()

	user, err := e.store.CommitBet(commitCtx, bet)
	if err != nil {
		return nil, e.commitError(commitCtx, bet, err)
	}

	logger.L().Debug("Bet settled",
		"user_id", userID,
		"bet_id", bet.ID,
		"nonce", nonce,
		"target", target,
		"result", result,
		"won", won,
		"profit", profit.String(),
	)

	e.afterCommit(commitCtx, bet, user)
	return bet, nil
}

// commitError reports a lost nonce race as ErrNonceReuse when the pair has
// since moved past the nonce this bet rolled.
func (e *DiceEngine) commitError(ctx context.Context, bet *models.Bet, err error) error {
	if !errors.Is(err, ErrConcurrencyConflict) {
		return err
	}

	pair, getErr := e.store.GetSeedPair(ctx, bet.SeedPairID)
	if getErr == nil && pair.IsActive && pair.Nonce > bet.Nonce {
		return fmt.Errorf("%w: nonce %d on pair %s: %w", ErrNonceReuse, bet.Nonce, bet.SeedPairID, err)
	}
	return err
}

func (e *DiceEngine) afterCommit(ctx context.Context, bet *models.Bet, user *models.User) {
	if e.house != nil {
		if err := e.house.Record(ctx, bet); err != nil {
			logger.L().Warn("Failed to record house stats", "bet_id", bet.ID, "error", err)
		}
	}
	e.broadcaster.BroadcastBet(bet, user)
}

// GetBet returns one of the user's bets. Once its pair is revealed the
// proof carries the server seed.
func (e *DiceEngine) GetBet(ctx context.Context, userID, betID string) (*models.Bet, error) {
	bet, err := e.store.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}
	if bet.UserID != userID {
		return nil, fmt.Errorf("%w: bet %s", ErrNotFound, betID)
	}

	pair, err := e.store.GetSeedPair(ctx, bet.SeedPairID)
	if err != nil {
		return nil, err
	}
	if pair.Status() == models.SeedStatusRevealed {
		return bet.WithServerSeed(pair.ServerSeed), nil
	}
	return bet, nil
}

// ListBets returns the user's most recent bets, newest first, with server
// seeds filled in for revealed pairs.
func (e *DiceEngine) ListBets(ctx context.Context, userID string, limit int) ([]*models.Bet, error) {
	bets, err := e.store.ListBets(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	revealed := make(map[string]string)
	checked := make(map[string]bool)
	for i, bet := range bets {
		if !checked[bet.SeedPairID] {
			checked[bet.SeedPairID] = true
			pair, err := e.store.GetSeedPair(ctx, bet.SeedPairID)
			if err != nil {
				return nil, err
			}
			if pair.Status() == models.SeedStatusRevealed {
				revealed[pair.ID] = pair.ServerSeed
			}
		}
		if seed, ok := revealed[bet.SeedPairID]; ok {
			bets[i] = bet.WithServerSeed(seed)
		}
	}
	return bets, nil
}
