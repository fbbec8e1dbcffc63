package models

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fairdice-backend/internal/fairness"
)

func NewID() string {
	return uuid.New().String()
}

func GenerateClientSeed() (string, error) {
	return fairness.NewSeed(16) // 128 bits of entropy
}

// NormalizeWalletAddress validates an EVM address and returns its EIP-55
// checksummed form.
func NormalizeWalletAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid wallet address: %q", address)
	}
	return common.HexToAddress(address).Hex(), nil
}

func (br *BetRequest) Validate(maxBet decimal.Decimal) error {
	if br.PairID == "" {
		return fmt.Errorf("pair_id is required")
	}
	if !br.Amount.IsPositive() {
		return fmt.Errorf("bet amount must be positive")
	}
	if br.Amount.GreaterThan(maxBet) {
		return fmt.Errorf("maximum bet amount is %s", maxBet.String())
	}
	if br.Target <= 0 || br.Target > fairness.MaxTarget {
		return fmt.Errorf("target must be between 1 and %d", fairness.MaxTarget)
	}
	return nil
}
