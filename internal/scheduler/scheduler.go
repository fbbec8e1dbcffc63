package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"fairdice-backend/internal/logger"
	"fairdice-backend/internal/models"
)

// CloseHouseSpec runs five minutes past midnight UTC, once the previous
// day can no longer receive bets.
const CloseHouseSpec = "0 5 0 * * *"

type periodCloser interface {
	ClosePeriod(ctx context.Context, period string) (*models.HouseStat, error)
}

// SetupCron registers the house stats job and starts the scheduler. The
// caller stops it on shutdown.
func SetupCron(house periodCloser) (*cron.Cron, error) {
	cronService := cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC))

	_, err := cronService.AddFunc(CloseHouseSpec, func() {
		if err := CloseYesterday(context.Background(), house, time.Now()); err != nil {
			logger.L().Error("Failed to close house period", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}

	cronService.Start()
	return cronService, nil
}

// CloseYesterday closes the UTC day before now.
func CloseYesterday(ctx context.Context, house periodCloser, now time.Time) error {
	period := models.PeriodOf(now.UTC().AddDate(0, 0, -1))

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	_, err := house.ClosePeriod(ctx, period)
	return err
}
