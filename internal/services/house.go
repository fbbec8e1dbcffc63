package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fairdice-backend/internal/logger"
	"fairdice-backend/internal/models"
)

// HouseService keeps the per-day rollup. None of it is on the bet's
// critical path.
type HouseService struct {
	store        Store
	revenueShare decimal.Decimal
	broadcaster  Broadcaster
	now          func() time.Time
}

func NewHouseService(store Store, revenueShare decimal.Decimal, broadcaster Broadcaster) *HouseService {
	if broadcaster == nil {
		broadcaster = NewMultiBroadcaster()
	}
	return &HouseService{
		store:        store,
		revenueShare: revenueShare,
		broadcaster:  broadcaster,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Record folds a committed bet into its period's counters.
func (h *HouseService) Record(ctx context.Context, bet *models.Bet) error {
	return h.store.IncrementHouseStats(ctx, models.DeltaForBet(bet))
}

func parsePeriod(period string, now time.Time) (string, error) {
	if period == "" {
		return models.PeriodOf(now), nil
	}
	if _, err := time.Parse(models.PeriodLayout, period); err != nil {
		return "", fmt.Errorf("%w: period must look like %s", ErrInvalidInput, models.PeriodLayout)
	}
	return period, nil
}

// Stats returns the rollup of period, today when empty. The revenue share
// pool of an open period is what it would be if closed now.
func (h *HouseService) Stats(ctx context.Context, period string) (*models.HouseStat, error) {
	period, err := parsePeriod(period, h.now())
	if err != nil {
		return nil, err
	}

	stat, err := h.store.GetHouseStats(ctx, period)
	if err != nil {
		return nil, err
	}
	if stat.ClosedAt == nil {
		stat.RevenueSharePool = stat.RevenueShare(h.revenueShare)
	}
	return stat, nil
}

// ClosePeriod persists the revenue share pool of period and announces the
// final rollup.
func (h *HouseService) ClosePeriod(ctx context.Context, period string) (*models.HouseStat, error) {
	period, err := parsePeriod(period, h.now())
	if err != nil {
		return nil, err
	}

	stat, err := h.store.GetHouseStats(ctx, period)
	if err != nil {
		return nil, err
	}

	closed, err := h.store.CloseHouseStats(ctx, period, stat.RevenueShare(h.revenueShare), h.now())
	if err != nil {
		return nil, err
	}

	logger.L().Info("House period closed",
		"period", period,
		"bets", closed.BetCount,
		"volume", closed.Volume.String(),
		"house_profit", closed.HouseProfit.String(),
		"revenue_share_pool", closed.RevenueSharePool.String(),
	)
	h.broadcaster.BroadcastHousePeriod(closed)
	return closed, nil
}
