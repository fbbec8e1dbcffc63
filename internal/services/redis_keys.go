package services

import "time"

const (
	KeyUser           = "user:%s:info"
	KeyUserWallet     = "user:wallet:%s"
	KeySeedPair       = "seed:%s"
	KeyUserActiveSeed = "user:%s:active_seed"
	KeyBet            = "bet:%s"
	KeyUserBets       = "user:%s:bets"
	KeyHouseStats     = "house:stats:%s"
	KeyHousePlayers   = "house:players:%s"
	KeyRateLimit      = "ratelimit:%s:%s"

	TTLHousePlayers = 45 * 24 * time.Hour // 45 days

	// the per-user bet index keeps the newest entries; bet records never expire
	UserBetIndexSize = 1000
)
