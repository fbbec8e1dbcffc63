package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fairdice-backend/internal/models"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// Store is the persistence the engine runs on. Implementations must make
// ActivateSeedPair and CommitBet atomic: either every write lands or none.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByWallet(ctx context.Context, walletAddress string) (*models.User, error)

	GetSeedPair(ctx context.Context, pairID string) (*models.SeedPair, error)
	GetActiveSeedPair(ctx context.Context, userID string) (*models.SeedPair, error)
	// ActivateSeedPair stores pair as its user's active pair, retiring the
	// previous active pair at retiredAt. It returns the retired pair, or
	// nil when the user had none.
	ActivateSeedPair(ctx context.Context, pair *models.SeedPair, retiredAt time.Time) (*models.SeedPair, error)
	// RevealSeedPair marks a retired pair revealed. Active or already
	// revealed pairs fail with ErrInvalidState.
	RevealSeedPair(ctx context.Context, pairID string, revealedAt time.Time) (*models.SeedPair, error)
	// UpdateClientSeed replaces the client seed of an active pair.
	UpdateClientSeed(ctx context.Context, pairID, clientSeed string) (*models.SeedPair, error)

	// CommitBet consumes bet.Nonce on bet.SeedPairID, appends the bet and
	// folds it into the user's aggregates. The nonce is consumed only if
	// the pair is still active, its nonce equals bet.Nonce and its client
	// seed equals the proof's; otherwise ErrConcurrencyConflict.
	CommitBet(ctx context.Context, bet *models.Bet) (*models.User, error)
	GetBet(ctx context.Context, betID string) (*models.Bet, error)
	// ListBets returns the user's most recent bets, newest first.
	ListBets(ctx context.Context, userID string, limit int) ([]*models.Bet, error)

	IncrementHouseStats(ctx context.Context, delta models.HouseStatDelta) error
	// GetHouseStats returns the counters for period, zero valued if no bet
	// was recorded in it.
	GetHouseStats(ctx context.Context, period string) (*models.HouseStat, error)
	CloseHouseStats(ctx context.Context, period string, pool decimal.Decimal, closedAt time.Time) (*models.HouseStat, error)

	Close() error
}

// RateLimiter counts actions in fixed windows.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID, action string, limit int, window time.Duration) (bool, error)
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}

// isDomainError reports whether err already carries one of the engine's
// sentinels and can be returned as is.
func isDomainError(err error) bool {
	for _, target := range []error{
		ErrInvalidInput, ErrInvalidStake, ErrNotFound, ErrForbidden, ErrInvalidSeed,
		ErrInvalidState, ErrInsufficientPairState, ErrNonceReuse,
		ErrConcurrencyConflict, ErrPersistence,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxHistoryLimit {
		return DefaultHistoryLimit
	}
	return limit
}

func checkCommit(pair *models.SeedPair, bet *models.Bet) error {
	if !pair.IsActive {
		return fmt.Errorf("%w: pair %s", ErrConcurrencyConflict, pair.ID)
	}
	if pair.UserID != bet.UserID {
		return fmt.Errorf("%w: pair %s", ErrForbidden, pair.ID)
	}
	if pair.Nonce != bet.Nonce || pair.ClientSeed != bet.FairnessProof.ClientSeed {
		return fmt.Errorf("%w: pair %s at nonce %d, bet expected %d", ErrConcurrencyConflict, pair.ID, pair.Nonce, bet.Nonce)
	}
	return nil
}
