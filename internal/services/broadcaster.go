package services

import "fairdice-backend/internal/models"

// Broadcaster receives settled results after they are committed. Calls
// must not block the caller for long; failures are the implementation's
// to log.
type Broadcaster interface {
	BroadcastBet(bet *models.Bet, user *models.User)
	BroadcastSeedRotation(userID string, rotation *models.RotationResult)
	BroadcastHousePeriod(stat *models.HouseStat)
}

type multiBroadcaster []Broadcaster

// NewMultiBroadcaster fans every event out to each non-nil broadcaster.
func NewMultiBroadcaster(bs ...Broadcaster) Broadcaster {
	var m multiBroadcaster
	for _, b := range bs {
		if b != nil {
			m = append(m, b)
		}
	}
	return m
}

func (m multiBroadcaster) BroadcastBet(bet *models.Bet, user *models.User) {
	for _, b := range m {
		b.BroadcastBet(bet, user)
	}
}

func (m multiBroadcaster) BroadcastSeedRotation(userID string, rotation *models.RotationResult) {
	for _, b := range m {
		b.BroadcastSeedRotation(userID, rotation)
	}
}

func (m multiBroadcaster) BroadcastHousePeriod(stat *models.HouseStat) {
	for _, b := range m {
		b.BroadcastHousePeriod(stat)
	}
}
