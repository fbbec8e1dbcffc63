package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/nats-io/nats.go"

	"fairdice-backend/internal/logger"
	"fairdice-backend/internal/models"
	"fairdice-backend/internal/retry"
)

const (
	TypeBetSettled  = "bet.settled"
	TypeSeedRotated = "seed.rotated"
	TypeHousePeriod = "house.period"
)

type Event struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id,omitempty"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// Emitter publishes engine events to NATS under <prefix>.<type>, e.g.
// dice.bet.settled.
type Emitter struct {
	conn          *nats.Conn
	pub           publisher
	subjectPrefix string
}

func NewEmitter(natsURL, subjectPrefix string) (*Emitter, error) {
	var conn *nats.Conn
	err := retry.Exponential(func() error {
		var err error
		conn, err = nats.Connect(natsURL, nats.Name("fairdice"), nats.MaxReconnects(-1))
		// a malformed URL or rejected credentials will not heal by waiting
		var urlErr *url.Error
		if errors.As(err, &urlErr) || errors.Is(err, nats.ErrAuthorization) {
			return retry.Permanent(err)
		}
		return err
	}, retry.ExponentialConfig{
		InitialInterval: 200 * time.Millisecond,
		MaxElapsedTime:  5 * time.Second,
		OnRetry: func(err error, next time.Duration) {
			logger.L().Warn("NATS not reachable, retrying", "url", natsURL, "next", next, "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Emitter{
		conn:          conn,
		pub:           conn,
		subjectPrefix: subjectPrefix,
	}, nil
}

func (e *Emitter) Subject(eventType string) string {
	return e.subjectPrefix + "." + eventType
}

func (e *Emitter) Emit(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return e.pub.Publish(e.Subject(event.Type), data)
}

func (e *Emitter) emit(eventType, userID string, data any) {
	err := e.Emit(Event{
		Type:      eventType,
		UserID:    userID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		logger.L().Warn("Failed to publish event", "type", eventType, "error", err)
	}
}

func (e *Emitter) BroadcastBet(bet *models.Bet, _ *models.User) {
	e.emit(TypeBetSettled, bet.UserID, bet)
}

func (e *Emitter) BroadcastSeedRotation(userID string, rotation *models.RotationResult) {
	e.emit(TypeSeedRotated, userID, rotation)
}

func (e *Emitter) BroadcastHousePeriod(stat *models.HouseStat) {
	e.emit(TypeHousePeriod, "", stat)
}

func (e *Emitter) Close() {
	if e.conn != nil {
		e.conn.Drain()
	}
}
