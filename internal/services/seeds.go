package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fairdice-backend/internal/fairness"
	"fairdice-backend/internal/logger"
	"fairdice-backend/internal/models"
)

const maxClientSeedLength = 128

// SeedManager owns the commitment lifecycle of seed pairs:
// active -> retired -> revealed. Bets and rotations of one user are
// serialized on the same per-user lock.
type SeedManager struct {
	store       Store
	hasher      fairness.Hasher
	seedBytes   int
	locks       *keyedMutex
	broadcaster Broadcaster
	now         func() time.Time
}

func NewSeedManager(store Store, hasher fairness.Hasher, seedBytes int, broadcaster Broadcaster) *SeedManager {
	if broadcaster == nil {
		broadcaster = NewMultiBroadcaster()
	}
	return &SeedManager{
		store:       store,
		hasher:      hasher,
		seedBytes:   seedBytes,
		locks:       newKeyedMutex(),
		broadcaster: broadcaster,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func validateClientSeed(clientSeed string) (string, error) {
	clientSeed = strings.TrimSpace(clientSeed)
	if clientSeed == "" {
		return "", fmt.Errorf("%w: client seed must not be empty", ErrInvalidInput)
	}
	if len(clientSeed) > maxClientSeedLength {
		return "", fmt.Errorf("%w: client seed longer than %d characters", ErrInvalidInput, maxClientSeedLength)
	}
	return clientSeed, nil
}

func clientSeedOrDefault(clientSeed *string) (string, error) {
	if clientSeed == nil {
		return models.GenerateClientSeed()
	}
	return validateClientSeed(*clientSeed)
}

// CreateSeedPair commits a fresh server seed for userID and makes it the
// active pair, retiring the previous one. A nil clientSeed gets a random
// default; a supplied one must not be blank.
func (m *SeedManager) CreateSeedPair(ctx context.Context, userID string, clientSeed *string) (*models.RotationResult, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	return m.createLocked(ctx, userID, clientSeed)
}

func (m *SeedManager) createLocked(ctx context.Context, userID string, clientSeed *string) (*models.RotationResult, error) {
	client, err := clientSeedOrDefault(clientSeed)
	if err != nil {
		return nil, err
	}

	serverSeed, err := fairness.NewSeed(m.seedBytes)
	if err != nil {
		return nil, err
	}

	now := m.now()
	pair := &models.SeedPair{
		ID:             models.NewID(),
		UserID:         userID,
		ServerSeed:     serverSeed,
		ServerSeedHash: m.hasher.Commit(serverSeed),
		HashAlgorithm:  m.hasher.Name(),
		ClientSeed:     client,
		Nonce:          0,
		IsActive:       true,
		CreatedAt:      now,
	}

	retired, err := m.store.ActivateSeedPair(ctx, pair, now)
	if err != nil {
		return nil, err
	}

	result := &models.RotationResult{Active: pair.Public()}
	if retired != nil {
		result.Retired = retired.Public()
		logger.L().Info("Seed pair rotated", "user_id", userID, "pair_id", pair.ID, "retired_id", retired.ID, "retired_nonce", retired.Nonce)
	} else {
		logger.L().Info("Seed pair created", "user_id", userID, "pair_id", pair.ID)
	}

	m.broadcaster.BroadcastSeedRotation(userID, result)
	return result, nil
}

// ActiveSeedPair returns the user's active pair, committing a first one
// when the user has none yet. The server seed is never included.
func (m *SeedManager) ActiveSeedPair(ctx context.Context, userID string) (*models.SeedPair, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	pair, err := m.store.GetActiveSeedPair(ctx, userID)
	if err == nil {
		return pair.Public(), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	result, err := m.createLocked(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	return result.Active, nil
}

func (m *SeedManager) VerificationData(ctx context.Context, userID string) (*models.VerificationData, error) {
	pair, err := m.ActiveSeedPair(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &models.VerificationData{
		PairID:         pair.ID,
		ClientSeed:     pair.ClientSeed,
		ServerSeedHash: pair.ServerSeedHash,
		HashAlgorithm:  pair.HashAlgorithm,
		CurrentNonce:   pair.Nonce,
	}, nil
}

// RevealSeedPair exposes the server seed of a retired pair owned by
// userID. Active pairs and pairs revealed before fail with
// ErrInvalidState.
func (m *SeedManager) RevealSeedPair(ctx context.Context, userID, pairID string) (*models.SeedPair, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	pair, err := m.store.GetSeedPair(ctx, pairID)
	if err != nil {
		return nil, err
	}
	if pair.UserID != userID {
		return nil, fmt.Errorf("%w: pair %s", ErrForbidden, pairID)
	}

	hasher, err := fairness.Lookup(pair.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: pair %s: %v", ErrInvalidState, pairID, err)
	}
	if hasher.Commit(pair.ServerSeed) != pair.ServerSeedHash {
		logger.L().Error("Stored server seed does not match its commitment", "pair_id", pairID)
		return nil, fmt.Errorf("%w: commitment mismatch on pair %s", ErrPersistence, pairID)
	}

	revealed, err := m.store.RevealSeedPair(ctx, pairID, m.now())
	if err != nil {
		return nil, err
	}

	logger.L().Info("Seed pair revealed", "user_id", userID, "pair_id", pairID, "nonce", revealed.Nonce)
	return revealed, nil
}

// RotateClientSeed replaces the client seed of the caller's active pair at
// any nonce. This is a player initiated re-commitment: bets made before
// the change keep verifying against the client seed their proof records.
func (m *SeedManager) RotateClientSeed(ctx context.Context, userID, pairID, clientSeed string) (*models.SeedPair, error) {
	clientSeed, err := validateClientSeed(clientSeed)
	if err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(userID)
	defer unlock()

	pair, err := m.store.GetSeedPair(ctx, pairID)
	if err != nil {
		return nil, err
	}
	if pair.UserID != userID {
		return nil, fmt.Errorf("%w: pair %s", ErrForbidden, pairID)
	}
	if !pair.IsActive {
		return nil, fmt.Errorf("%w: pair %s is not active", ErrInvalidState, pairID)
	}

	updated, err := m.store.UpdateClientSeed(ctx, pairID, clientSeed)
	if err != nil {
		return nil, err
	}

	logger.L().Info("Client seed changed", "user_id", userID, "pair_id", pairID, "nonce", updated.Nonce)
	return updated.Public(), nil
}
