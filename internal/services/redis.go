package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"fairdice-backend/internal/config"
	"fairdice-backend/internal/logger"
	"fairdice-backend/internal/models"
	"fairdice-backend/internal/retry"
)

const (
	houseStatsAttempts = 5

	scriptErrNotFound   = "NOTFOUND"
	scriptErrActive     = "ACTIVE"
	scriptErrInactive   = "INACTIVE"
	scriptErrRevealed   = "REVEALED"
	scriptErrRegistered = "REGISTERED"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Store.RedisURL,
		Password: cfg.Store.RedisPass,
		DB:       cfg.Store.RedisDB,
	})

	err := retry.Exponential(func() error {
		return client.Ping(ctx).Err()
	}, retry.ExponentialConfig{
		InitialInterval: 200 * time.Millisecond,
		MaxElapsedTime:  5 * time.Second,
		OnRetry: func(err error, next time.Duration) {
			logger.L().Warn("Redis not reachable, retrying", "addr", cfg.Store.RedisURL, "next", next, "error", err)
		},
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// scriptError maps the error replies of the Lua scripts below to the
// engine's sentinel errors.
func scriptError(err error, id string) error {
	if err == nil {
		return nil
	}
	switch msg := err.Error(); {
	case strings.Contains(msg, scriptErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	case strings.Contains(msg, scriptErrActive):
		return fmt.Errorf("%w: pair %s is still active", ErrInvalidState, id)
	case strings.Contains(msg, scriptErrInactive):
		return fmt.Errorf("%w: pair %s is not active", ErrInvalidState, id)
	case strings.Contains(msg, scriptErrRevealed):
		return fmt.Errorf("%w: pair %s already revealed", ErrInvalidState, id)
	case strings.Contains(msg, scriptErrRegistered):
		return fmt.Errorf("%w: wallet %s already registered", ErrInvalidInput, id)
	default:
		return persistenceError("script", err)
	}
}

type stringReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJSON[T any](ctx context.Context, c stringReader, key, what string) (*T, error) {
	data, err := c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	if err != nil {
		return nil, persistenceError("get "+what, err)
	}

	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, persistenceError("unmarshal "+what, err)
	}
	return &v, nil
}

var createUserScript = redis.NewScript(`
	if redis.call("EXISTS", KEYS[1]) == 1 then
		return redis.error_reply("REGISTERED")
	end
	redis.call("SET", KEYS[1], ARGV[1])
	redis.call("SET", KEYS[2], ARGV[2])
	return "OK"
`)

func (s *RedisStore) CreateUser(ctx context.Context, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	keys := []string{
		fmt.Sprintf(KeyUserWallet, user.WalletAddress),
		fmt.Sprintf(KeyUser, user.ID),
	}
	err = createUserScript.Run(ctx, s.client, keys, user.ID, data).Err()
	return scriptError(err, user.WalletAddress)
}

func (s *RedisStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return getJSON[models.User](ctx, s.client, fmt.Sprintf(KeyUser, userID), "user "+userID)
}

func (s *RedisStore) GetUserByWallet(ctx context.Context, walletAddress string) (*models.User, error) {
	userID, err := s.client.Get(ctx, fmt.Sprintf(KeyUserWallet, walletAddress)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: wallet %s", ErrNotFound, walletAddress)
	}
	if err != nil {
		return nil, persistenceError("get wallet", err)
	}
	return s.GetUser(ctx, userID)
}

func (s *RedisStore) GetSeedPair(ctx context.Context, pairID string) (*models.SeedPair, error) {
	return getJSON[models.SeedPair](ctx, s.client, fmt.Sprintf(KeySeedPair, pairID), "seed pair "+pairID)
}

func (s *RedisStore) GetActiveSeedPair(ctx context.Context, userID string) (*models.SeedPair, error) {
	pairID, err := s.client.Get(ctx, fmt.Sprintf(KeyUserActiveSeed, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: no active seed pair for user %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, persistenceError("get active seed", err)
	}
	return s.GetSeedPair(ctx, pairID)
}

var activateSeedScript = redis.NewScript(`
	local pointer = KEYS[1]
	local newKey = KEYS[2]
	local prefix = ARGV[3]

	local retired = false
	local prevID = redis.call("GET", pointer)
	if prevID then
		local prevKey = prefix .. prevID
		local data = redis.call("GET", prevKey)
		if data then
			local pair = cjson.decode(data)
			pair.is_active = false
			pair.retired_at = ARGV[4]
			retired = cjson.encode(pair)
			redis.call("SET", prevKey, retired)
		end
	end

	redis.call("SET", newKey, ARGV[2])
	redis.call("SET", pointer, ARGV[1])

	return retired
`)

func (s *RedisStore) ActivateSeedPair(ctx context.Context, pair *models.SeedPair, retiredAt time.Time) (*models.SeedPair, error) {
	data, err := json.Marshal(pair)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal seed pair: %w", err)
	}

	keys := []string{
		fmt.Sprintf(KeyUserActiveSeed, pair.UserID),
		fmt.Sprintf(KeySeedPair, pair.ID),
	}
	prefix := strings.TrimSuffix(KeySeedPair, "%s")

	res, err := activateSeedScript.Run(ctx, s.client, keys,
		pair.ID, data, prefix, retiredAt.UTC().Format(time.RFC3339Nano)).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, scriptError(err, pair.ID)
	}

	var retired models.SeedPair
	if err := json.Unmarshal([]byte(res), &retired); err != nil {
		return nil, persistenceError("unmarshal retired pair", err)
	}
	return &retired, nil
}

var revealSeedScript = redis.NewScript(`
	local data = redis.call("GET", KEYS[1])
	if not data then
		return redis.error_reply("NOTFOUND")
	end

	local pair = cjson.decode(data)
	if pair.is_active then
		return redis.error_reply("ACTIVE")
	end
	if pair.revealed_at then
		return redis.error_reply("REVEALED")
	end

	pair.revealed_at = ARGV[1]
	local updated = cjson.encode(pair)
	redis.call("SET", KEYS[1], updated)

	return updated
`)

func (s *RedisStore) RevealSeedPair(ctx context.Context, pairID string, revealedAt time.Time) (*models.SeedPair, error) {
	key := fmt.Sprintf(KeySeedPair, pairID)
	res, err := revealSeedScript.Run(ctx, s.client, []string{key}, revealedAt.UTC().Format(time.RFC3339Nano)).Text()
	if err != nil {
		return nil, scriptError(err, pairID)
	}

	var pair models.SeedPair
	if err := json.Unmarshal([]byte(res), &pair); err != nil {
		return nil, persistenceError("unmarshal revealed pair", err)
	}
	return &pair, nil
}

var updateClientSeedScript = redis.NewScript(`
	local data = redis.call("GET", KEYS[1])
	if not data then
		return redis.error_reply("NOTFOUND")
	end

	local pair = cjson.decode(data)
	if not pair.is_active then
		return redis.error_reply("INACTIVE")
	end

	pair.client_seed = ARGV[1]
	local updated = cjson.encode(pair)
	redis.call("SET", KEYS[1], updated)

	return updated
`)

func (s *RedisStore) UpdateClientSeed(ctx context.Context, pairID, clientSeed string) (*models.SeedPair, error) {
	key := fmt.Sprintf(KeySeedPair, pairID)
	res, err := updateClientSeedScript.Run(ctx, s.client, []string{key}, clientSeed).Text()
	if err != nil {
		return nil, scriptError(err, pairID)
	}

	var pair models.SeedPair
	if err := json.Unmarshal([]byte(res), &pair); err != nil {
		return nil, persistenceError("unmarshal seed pair", err)
	}
	return &pair, nil
}

// CommitBet runs an optimistic transaction: the pair and user keys are
// watched, and the MULTI block that advances the nonce, appends the bet
// and rewrites the user only executes if neither changed meanwhile.
func (s *RedisStore) CommitBet(ctx context.Context, bet *models.Bet) (*models.User, error) {
	pairKey := fmt.Sprintf(KeySeedPair, bet.SeedPairID)
	userKey := fmt.Sprintf(KeyUser, bet.UserID)
	betKey := fmt.Sprintf(KeyBet, bet.ID)
	userBetsKey := fmt.Sprintf(KeyUserBets, bet.UserID)

	var updated *models.User
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		pair, err := getJSON[models.SeedPair](ctx, tx, pairKey, "seed pair "+bet.SeedPairID)
		if err != nil {
			return err
		}
		user, err := getJSON[models.User](ctx, tx, userKey, "user "+bet.UserID)
		if err != nil {
			return err
		}
		if err := checkCommit(pair, bet); err != nil {
			return err
		}

		pair.Nonce++
		user.ApplyBet(bet)

		pairData, err := json.Marshal(pair)
		if err != nil {
			return err
		}
		userData, err := json.Marshal(user)
		if err != nil {
			return err
		}
		betData, err := json.Marshal(bet)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, pairKey, pairData, 0)
			pipe.Set(ctx, betKey, betData, 0)
			pipe.Set(ctx, userKey, userData, 0)
			pipe.ZAdd(ctx, userBetsKey, redis.Z{
				Score:  float64(bet.CreatedAt.UnixMicro()),
				Member: bet.ID,
			})
			pipe.ZRemRangeByRank(ctx, userBetsKey, 0, -UserBetIndexSize-1)
			return nil
		})
		if err != nil {
			return err
		}

		updated = user
		return nil
	}, pairKey, userKey)

	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, redis.TxFailedErr):
		return nil, fmt.Errorf("%w: pair %s changed during commit", ErrConcurrencyConflict, bet.SeedPairID)
	case isDomainError(err):
		return nil, err
	default:
		return nil, persistenceError("commit bet", err)
	}
}

func (s *RedisStore) GetBet(ctx context.Context, betID string) (*models.Bet, error) {
	return getJSON[models.Bet](ctx, s.client, fmt.Sprintf(KeyBet, betID), "bet "+betID)
}

func (s *RedisStore) ListBets(ctx context.Context, userID string, limit int) ([]*models.Bet, error) {
	limit = clampLimit(limit)

	ids, err := s.client.ZRevRange(ctx, fmt.Sprintf(KeyUserBets, userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, persistenceError("list bet ids", err)
	}
	if len(ids) == 0 {
		return []*models.Bet{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, fmt.Sprintf(KeyBet, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, persistenceError("get bets", err)
	}

	bets := make([]*models.Bet, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			continue
		}

		var bet models.Bet
		if err := json.Unmarshal([]byte(data), &bet); err != nil {
			continue
		}
		bets = append(bets, &bet)
	}

	return bets, nil
}

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func readHouseStats(ctx context.Context, c hashReader, period string) (*models.HouseStat, error) {
	fields, err := c.HGetAll(ctx, fmt.Sprintf(KeyHouseStats, period)).Result()
	if err != nil {
		return nil, persistenceError("get house stats", err)
	}

	stat := models.NewHouseStat(period)
	parse := func(name string, dst *decimal.Decimal) error {
		v, ok := fields[name]
		if !ok {
			return nil
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return persistenceError("parse "+name, err)
		}
		*dst = d
		return nil
	}
	if err := parse("volume", &stat.Volume); err != nil {
		return nil, err
	}
	if err := parse("house_profit", &stat.HouseProfit); err != nil {
		return nil, err
	}
	if err := parse("revenue_share_pool", &stat.RevenueSharePool); err != nil {
		return nil, err
	}
	if v, ok := fields["bet_count"]; ok {
		stat.BetCount, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields["closed_at"]; ok {
		if at, err := time.Parse(time.RFC3339Nano, v); err == nil {
			stat.ClosedAt = &at
		}
	}
	if v, ok := fields["updated_at"]; ok {
		stat.UpdatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	return stat, nil
}

func (s *RedisStore) IncrementHouseStats(ctx context.Context, delta models.HouseStatDelta) error {
	key := fmt.Sprintf(KeyHouseStats, delta.Period)
	playersKey := fmt.Sprintf(KeyHousePlayers, delta.Period)

	increment := func(tx *redis.Tx) error {
		stat, err := readHouseStats(ctx, tx, delta.Period)
		if err != nil {
			return err
		}
		stat.Apply(delta, false)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"volume", stat.Volume.String(),
				"house_profit", stat.HouseProfit.String(),
				"bet_count", stat.BetCount,
				"updated_at", stat.UpdatedAt.Format(time.RFC3339Nano),
			)
			pipe.PFAdd(ctx, playersKey, delta.UserID)
			pipe.Expire(ctx, playersKey, TTLHousePlayers)
			return nil
		})
		return err
	}

	// every bet of the day touches this key, so lost races are expected
	for attempt := 0; attempt < houseStatsAttempts; attempt++ {
		err := s.client.Watch(ctx, increment, key)
		if !errors.Is(err, redis.TxFailedErr) {
			if err != nil && !isDomainError(err) {
				return persistenceError("increment house stats", err)
			}
			return err
		}
	}
	return fmt.Errorf("%w: house stats %s", ErrConcurrencyConflict, delta.Period)
}

func (s *RedisStore) GetHouseStats(ctx context.Context, period string) (*models.HouseStat, error) {
	stat, err := readHouseStats(ctx, s.client, period)
	if err != nil {
		return nil, err
	}

	players, err := s.client.PFCount(ctx, fmt.Sprintf(KeyHousePlayers, period)).Result()
	if err != nil {
		return nil, persistenceError("count players", err)
	}
	stat.UniquePlayers = players

	return stat, nil
}

func (s *RedisStore) CloseHouseStats(ctx context.Context, period string, pool decimal.Decimal, closedAt time.Time) (*models.HouseStat, error) {
	err := s.client.HSet(ctx, fmt.Sprintf(KeyHouseStats, period),
		"revenue_share_pool", pool.String(),
		"closed_at", closedAt.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return nil, persistenceError("close house stats", err)
	}
	return s.GetHouseStats(ctx, period)
}

func (s *RedisStore) CheckRateLimit(ctx context.Context, userID, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, userID, action)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	if count == 1 {
		s.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

// DeleteUser removes a user and its wallet index. Only used to clean up
// after integration tests.
func (s *RedisStore) DeleteUser(ctx context.Context, user *models.User) error {
	return s.client.Del(ctx,
		fmt.Sprintf(KeyUser, user.ID),
		fmt.Sprintf(KeyUserWallet, user.WalletAddress),
		fmt.Sprintf(KeyUserActiveSeed, user.ID),
		fmt.Sprintf(KeyUserBets, user.ID),
	).Err()
}
