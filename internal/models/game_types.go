package models

import "github.com/shopspring/decimal"

type RegisterRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
	Username      string `json:"username" binding:"max=64"`
}

type BetRequest struct {
	PairID string          `json:"pair_id" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
	Target int             `json:"target" binding:"required,min=1,max=9998"`
}

type RotateSeedRequest struct {
	ClientSeed *string `json:"client_seed"`
}

type ClientSeedRequest struct {
	ClientSeed string `json:"client_seed" binding:"required,max=128"`
}

type VerifyRequest struct {
	ServerSeed     string `json:"server_seed" binding:"required"`
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed" binding:"required"`
	Nonce          uint64 `json:"nonce"`
	HashAlgorithm  string `json:"hash_algorithm"`
	Target         int    `json:"target" binding:"omitempty,min=1,max=9998"`
}

// RotationResult is returned by createOrRotateSeed: the new active pair
// and the pair it replaced, if any.
type RotationResult struct {
	Active  *SeedPair `json:"active"`
	Retired *SeedPair `json:"retired,omitempty"`
}

type VerificationData struct {
	PairID         string `json:"pair_id"`
	ClientSeed     string `json:"client_seed"`
	ServerSeedHash string `json:"server_seed_hash"`
	HashAlgorithm  string `json:"hash_algorithm"`
	CurrentNonce   uint64 `json:"current_nonce"`
}
