package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fairdice-backend/internal/logger"
	"fairdice-backend/internal/models"
)

const maxUsernameLength = 64

type UserService struct {
	store Store
}

func NewUserService(store Store) *UserService {
	return &UserService{store: store}
}

// Register returns the user owning walletAddress, creating it on first
// sight. created reports whether a new user was stored.
func (s *UserService) Register(ctx context.Context, walletAddress, username string) (user *models.User, created bool, err error) {
	address, err := models.NormalizeWalletAddress(walletAddress)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	username = strings.TrimSpace(username)
	if len(username) > maxUsernameLength {
		return nil, false, fmt.Errorf("%w: username longer than %d characters", ErrInvalidInput, maxUsernameLength)
	}

	existing, err := s.store.GetUserByWallet(ctx, address)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	user = models.NewUser(address, username)
	if err := s.store.CreateUser(ctx, user); err != nil {
		// lost a race with a concurrent registration of the same wallet
		if errors.Is(err, ErrInvalidInput) {
			if existing, getErr := s.store.GetUserByWallet(ctx, address); getErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	logger.L().Info("User registered", "user_id", user.ID, "wallet", address)
	return user, true, nil
}

func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.store.GetUser(ctx, userID)
}
