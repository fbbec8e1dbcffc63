package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const PeriodLayout = "2006-01-02"

// HouseStat is the per-day rollup. House profit is the negated sum of
// player profit.
type HouseStat struct {
	Period           string          `json:"period" gorm:"primaryKey;type:varchar(10)"`
	Volume           decimal.Decimal `json:"volume" gorm:"type:numeric(30,8);not null"`
	HouseProfit      decimal.Decimal `json:"house_profit" gorm:"type:numeric(30,8);not null"`
	BetCount         int64           `json:"bet_count" gorm:"not null"`
	UniquePlayers    int64           `json:"unique_players" gorm:"not null"`
	RevenueSharePool decimal.Decimal `json:"revenue_share_pool" gorm:"type:numeric(30,8);not null"`
	ClosedAt         *time.Time      `json:"closed_at,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (HouseStat) TableName() string { return "house_stats" }

// HouseStatPlayer records that a user played in a period.
type HouseStatPlayer struct {
	Period string `gorm:"primaryKey;type:varchar(10)"`
	UserID string `gorm:"primaryKey;type:varchar(36)"`
}

func (HouseStatPlayer) TableName() string { return "house_stat_players" }

type HouseStatDelta struct {
	Period      string
	UserID      string
	Volume      decimal.Decimal
	HouseProfit decimal.Decimal
}

func NewHouseStat(period string) *HouseStat {
	return &HouseStat{
		Period:           period,
		Volume:           decimal.Zero,
		HouseProfit:      decimal.Zero,
		RevenueSharePool: decimal.Zero,
	}
}

// PeriodOf returns the UTC day a timestamp falls in.
func PeriodOf(t time.Time) string {
	return t.UTC().Format(PeriodLayout)
}

// DeltaForBet converts a settled bet into house counters.
func DeltaForBet(b *Bet) HouseStatDelta {
	return HouseStatDelta{
		Period:      PeriodOf(b.CreatedAt),
		UserID:      b.UserID,
		Volume:      b.BetAmount,
		HouseProfit: b.Profit.Neg(),
	}
}

// Apply adds a delta to the counters. newPlayer reports whether the
// delta's user had not been counted in this period yet.
func (s *HouseStat) Apply(d HouseStatDelta, newPlayer bool) {
	s.Volume = s.Volume.Add(d.Volume)
	s.HouseProfit = s.HouseProfit.Add(d.HouseProfit)
	s.BetCount++
	if newPlayer {
		s.UniquePlayers++
	}
	s.UpdatedAt = time.Now().UTC()
}

// RevenueShare is the pool owed for a period: the positive part of the
// house profit times rate.
func (s *HouseStat) RevenueShare(rate decimal.Decimal) decimal.Decimal {
	if !s.HouseProfit.IsPositive() {
		return decimal.Zero
	}
	return s.HouseProfit.Mul(rate).Truncate(8)
}
