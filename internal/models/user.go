package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID            string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	WalletAddress string `json:"wallet_address" gorm:"type:varchar(42);uniqueIndex;not null"`
	Username      string `json:"username" gorm:"type:varchar(64)"`

	TotalWagered  decimal.Decimal `json:"total_wagered" gorm:"type:numeric(30,8);not null"`
	TotalWon      decimal.Decimal `json:"total_won" gorm:"type:numeric(30,8);not null"`
	TotalProfit   decimal.Decimal `json:"total_profit" gorm:"type:numeric(30,8);not null"`
	GamesPlayed   int64           `json:"games_played" gorm:"not null"`
	CurrentStreak int             `json:"current_streak" gorm:"not null"`
	BestStreak    int             `json:"best_streak" gorm:"not null"`

	IsActive  bool      `json:"is_active" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

func NewUser(walletAddress, username string) *User {
	now := time.Now().UTC()
	return &User{
		ID:            NewID(),
		WalletAddress: walletAddress,
		Username:      username,
		TotalWagered:  decimal.Zero,
		TotalWon:      decimal.Zero,
		TotalProfit:   decimal.Zero,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ApplyBet folds a settled bet into the aggregates. A win extends the
// current streak, a loss resets it to zero. CurrentStreak counts the
// wins since the last loss, so the first win after a loss makes it 1.
func (u *User) ApplyBet(b *Bet) {
	u.TotalWagered = u.TotalWagered.Add(b.BetAmount)
	u.TotalProfit = u.TotalProfit.Add(b.Profit)
	u.GamesPlayed++

	if b.Won {
		u.TotalWon = u.TotalWon.Add(b.Payout)
		u.CurrentStreak++
		if u.CurrentStreak > u.BestStreak {
			u.BestStreak = u.CurrentStreak
		}
	} else {
		u.CurrentStreak = 0
	}

	u.UpdatedAt = b.CreatedAt
}
