package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FairnessProof carries what a player needs to recompute the roll. The
// server seed is filled in only when the pair has been revealed.
type FairnessProof struct {
	ServerSeedHash string `json:"server_seed_hash" gorm:"type:varchar(128);not null"`
	HashAlgorithm  string `json:"hash_algorithm" gorm:"type:varchar(16);not null"`
	ClientSeed     string `json:"client_seed" gorm:"type:varchar(128);not null"`
	Nonce          uint64 `json:"nonce" gorm:"not null"`
	Target         int    `json:"target" gorm:"not null"`
	Result         int    `json:"result" gorm:"not null"`
	ServerSeed     string `json:"server_seed,omitempty" gorm:"-"`
}

// Bet is an immutable dice_bets record.
type Bet struct {
	ID         string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID     string          `json:"user_id" gorm:"type:varchar(36);not null;index"`
	SeedPairID string          `json:"seed_pair_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_dice_bets_pair_nonce"`
	Nonce      uint64          `json:"nonce" gorm:"not null;uniqueIndex:idx_dice_bets_pair_nonce"`
	BetAmount  decimal.Decimal `json:"bet_amount" gorm:"type:numeric(30,8);not null"`
	Target     int             `json:"target" gorm:"not null"`
	Multiplier decimal.Decimal `json:"multiplier" gorm:"type:numeric(20,4);not null"`
	Result     int             `json:"result" gorm:"not null"`
	Won        bool            `json:"won" gorm:"not null"`
	Payout     decimal.Decimal `json:"payout" gorm:"type:numeric(30,8);not null"`
	Profit     decimal.Decimal `json:"profit" gorm:"type:numeric(30,8);not null"`

	FairnessProof FairnessProof `json:"fairness_proof" gorm:"embedded;embeddedPrefix:proof_"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (Bet) TableName() string { return "dice_bets" }

// WithServerSeed returns a copy whose proof includes the revealed seed.
func (b *Bet) WithServerSeed(serverSeed string) *Bet {
	cp := *b
	cp.FairnessProof.ServerSeed = serverSeed
	return &cp
}
