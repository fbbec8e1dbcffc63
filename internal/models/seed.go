package models

import "time"

type SeedStatus string

const (
	SeedStatusActive   SeedStatus = "active"
	SeedStatusRetired  SeedStatus = "retired"
	SeedStatusRevealed SeedStatus = "revealed"
)

// SeedPair is a server/client seed commitment. The server seed stays
// secret until the pair is retired and revealed; Public strips it.
type SeedPair struct {
	ID             string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID         string `json:"user_id" gorm:"type:varchar(36);not null;index;uniqueIndex:idx_game_seeds_one_active,where:is_active = true"`
	ServerSeed     string `json:"server_seed,omitempty" gorm:"type:varchar(128);not null"`
	ServerSeedHash string `json:"server_seed_hash" gorm:"type:varchar(128);not null"`
	HashAlgorithm  string `json:"hash_algorithm" gorm:"type:varchar(16);not null"`
	ClientSeed     string `json:"client_seed" gorm:"type:varchar(128);not null"`
	Nonce          uint64 `json:"nonce" gorm:"not null"`
	IsActive       bool   `json:"is_active" gorm:"not null"`

	CreatedAt  time.Time  `json:"created_at"`
	RetiredAt  *time.Time `json:"retired_at,omitempty"`
	RevealedAt *time.Time `json:"revealed_at,omitempty"`
}

func (SeedPair) TableName() string { return "game_seeds" }

func (p *SeedPair) Status() SeedStatus {
	switch {
	case p.IsActive:
		return SeedStatusActive
	case p.RevealedAt != nil:
		return SeedStatusRevealed
	default:
		return SeedStatusRetired
	}
}

// Public returns a copy safe to hand to players: the server seed is only
// kept once the pair has been revealed.
func (p *SeedPair) Public() *SeedPair {
	cp := *p
	if p.Status() != SeedStatusRevealed {
		cp.ServerSeed = ""
	}
	return &cp
}
