package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fairdice-backend/internal/models"
)

type rateWindow struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps everything in process. It is the fallback used when no
// Redis or database is configured, and the store the engine tests run on.
type MemoryStore struct {
	mu sync.RWMutex

	users       map[string]*models.User
	wallets     map[string]string // wallet address -> user id
	pairs       map[string]*models.SeedPair
	activePairs map[string]string // user id -> pair id
	bets        map[string]*models.Bet
	userBets    map[string][]string
	houseStats  map[string]*models.HouseStat
	players     map[string]map[string]struct{}
	rates       map[string]*rateWindow
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*models.User),
		wallets:     make(map[string]string),
		pairs:       make(map[string]*models.SeedPair),
		activePairs: make(map[string]string),
		bets:        make(map[string]*models.Bet),
		userBets:    make(map[string][]string),
		houseStats:  make(map[string]*models.HouseStat),
		players:     make(map[string]map[string]struct{}),
		rates:       make(map[string]*rateWindow),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[user.WalletAddress]; ok {
		return fmt.Errorf("%w: wallet %s already registered", ErrInvalidInput, user.WalletAddress)
	}
	cp := *user
	s.users[user.ID] = &cp
	s.wallets[user.WalletAddress] = user.ID
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	cp := *user
	return &cp, nil
}

func (s *MemoryStore) GetUserByWallet(ctx context.Context, walletAddress string) (*models.User, error) {
	s.mu.RLock()
	userID, ok := s.wallets[walletAddress]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: wallet %s", ErrNotFound, walletAddress)
	}
	return s.GetUser(ctx, userID)
}

func (s *MemoryStore) GetSeedPair(_ context.Context, pairID string) (*models.SeedPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pair, ok := s.pairs[pairID]
	if !ok {
		return nil, fmt.Errorf("%w: seed pair %s", ErrNotFound, pairID)
	}
	cp := *pair
	return &cp, nil
}

func (s *MemoryStore) GetActiveSeedPair(ctx context.Context, userID string) (*models.SeedPair, error) {
	s.mu.RLock()
	pairID, ok := s.activePairs[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no active seed pair for user %s", ErrNotFound, userID)
	}
	return s.GetSeedPair(ctx, pairID)
}

func (s *MemoryStore) ActivateSeedPair(_ context.Context, pair *models.SeedPair, retiredAt time.Time) (*models.SeedPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var retired *models.SeedPair
	if prevID, ok := s.activePairs[pair.UserID]; ok {
		prev := s.pairs[prevID]
		prev.IsActive = false
		at := retiredAt
		prev.RetiredAt = &at
		cp := *prev
		retired = &cp
	}

	cp := *pair
	s.pairs[pair.ID] = &cp
	s.activePairs[pair.UserID] = pair.ID
	return retired, nil
}

func (s *MemoryStore) RevealSeedPair(_ context.Context, pairID string, revealedAt time.Time) (*models.SeedPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, ok := s.pairs[pairID]
	if !ok {
		return nil, fmt.Errorf("%w: seed pair %s", ErrNotFound, pairID)
	}
	if pair.IsActive {
		return nil, fmt.Errorf("%w: pair %s is still active", ErrInvalidState, pairID)
	}
	if pair.RevealedAt != nil {
		return nil, fmt.Errorf("%w: pair %s already revealed", ErrInvalidState, pairID)
	}

	at := revealedAt
	pair.RevealedAt = &at
	cp := *pair
	return &cp, nil
}

func (s *MemoryStore) UpdateClientSeed(_ context.Context, pairID, clientSeed string) (*models.SeedPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, ok := s.pairs[pairID]
	if !ok {
		return nil, fmt.Errorf("%w: seed pair %s", ErrNotFound, pairID)
	}
	if !pair.IsActive {
		return nil, fmt.Errorf("%w: pair %s is not active", ErrInvalidState, pairID)
	}

	pair.ClientSeed = clientSeed
	cp := *pair
	return &cp, nil
}

func (s *MemoryStore) CommitBet(ctx context.Context, bet *models.Bet) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pair, ok := s.pairs[bet.SeedPairID]
	if !ok {
		return nil, fmt.Errorf("%w: seed pair %s", ErrNotFound, bet.SeedPairID)
	}
	user, ok := s.users[bet.UserID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, bet.UserID)
	}
	if err := checkCommit(pair, bet); err != nil {
		return nil, err
	}

	// nothing below can fail
	pair.Nonce++
	cp := *bet
	s.bets[bet.ID] = &cp
	s.userBets[bet.UserID] = append(s.userBets[bet.UserID], bet.ID)
	user.ApplyBet(bet)

	updated := *user
	return &updated, nil
}

func (s *MemoryStore) GetBet(_ context.Context, betID string) (*models.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bet, ok := s.bets[betID]
	if !ok {
		return nil, fmt.Errorf("%w: bet %s", ErrNotFound, betID)
	}
	cp := *bet
	return &cp, nil
}

func (s *MemoryStore) ListBets(_ context.Context, userID string, limit int) ([]*models.Bet, error) {
	limit = clampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.userBets[userID]
	bets := make([]*models.Bet, 0, min(limit, len(ids)))
	for i := len(ids) - 1; i >= 0 && len(bets) < limit; i-- {
		cp := *s.bets[ids[i]]
		bets = append(bets, &cp)
	}
	return bets, nil
}

func (s *MemoryStore) IncrementHouseStats(_ context.Context, delta models.HouseStatDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stat, ok := s.houseStats[delta.Period]
	if !ok {
		stat = models.NewHouseStat(delta.Period)
		s.houseStats[delta.Period] = stat
	}

	players, ok := s.players[delta.Period]
	if !ok {
		players = make(map[string]struct{})
		s.players[delta.Period] = players
	}
	_, seen := players[delta.UserID]
	players[delta.UserID] = struct{}{}

	stat.Apply(delta, !seen)
	return nil
}

func (s *MemoryStore) GetHouseStats(_ context.Context, period string) (*models.HouseStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stat, ok := s.houseStats[period]
	if !ok {
		return models.NewHouseStat(period), nil
	}
	cp := *stat
	return &cp, nil
}

func (s *MemoryStore) CloseHouseStats(_ context.Context, period string, pool decimal.Decimal, closedAt time.Time) (*models.HouseStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stat, ok := s.houseStats[period]
	if !ok {
		stat = models.NewHouseStat(period)
		s.houseStats[period] = stat
	}
	stat.RevenueSharePool = pool
	at := closedAt
	stat.ClosedAt = &at
	cp := *stat
	return &cp, nil
}

func (s *MemoryStore) CheckRateLimit(_ context.Context, userID, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, userID, action)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.rates[key]
	if !ok || now.After(w.resetAt) {
		w = &rateWindow{resetAt: now.Add(window)}
		s.rates[key] = w
	}
	w.count++
	return w.count <= limit, nil
}

// Pairs returns every pair of a user, oldest first.
func (s *MemoryStore) Pairs(userID string) []*models.SeedPair {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pairs []*models.SeedPair
	for _, p := range s.pairs {
		if p.UserID == userID {
			cp := *p
			pairs = append(pairs, &cp)
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].CreatedAt.Before(pairs[j].CreatedAt) })
	return pairs
}

func (s *MemoryStore) Close() error { return nil }
