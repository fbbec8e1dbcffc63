package fairness

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
)

const (
	// OutcomeSpace is the number of distinct dice results, 0000 to 9999.
	OutcomeSpace = 10000
	MaxOutcome   = OutcomeSpace - 1
	// MaxTarget is the highest accepted bet target. A target of MaxOutcome
	// or above would win on every roll but one.
	MaxTarget = MaxOutcome - 1

	wordSize = 8
	maxPages = 64
)

var (
	ErrInvalidSeed     = errors.New("invalid seed")
	ErrDigestExhausted = errors.New("no unbiased word found in digest stream")
)

// acceptLimit is the largest multiple of OutcomeSpace that fits in 64
// bits, minus one. Words above it are rejected so the modulo is unbiased.
const acceptLimit uint64 = math.MaxUint64 - (math.MaxUint64%OutcomeSpace+1)%OutcomeSpace

// Message is the HMAC input for one digest page: clientSeed:nonce:cursor.
func Message(clientSeed string, nonce uint64, cursor int) []byte {
	return []byte(clientSeed + ":" + strconv.FormatUint(nonce, 10) + ":" + strconv.Itoa(cursor))
}

// Generate derives the dice result for (serverSeed, clientSeed, nonce).
// Digest pages are produced with cursor 0, 1, 2, ... and consumed as
// big-endian 64-bit words; the first word not above acceptLimit is
// reduced modulo OutcomeSpace.
func Generate(h Hasher, serverSeed, clientSeed string, nonce uint64) (int, error) {
	if serverSeed == "" || clientSeed == "" {
		return 0, ErrInvalidSeed
	}

	for cursor := 0; cursor < maxPages; cursor++ {
		digest := h.MAC(serverSeed, Message(clientSeed, nonce, cursor))
		for i := 0; i+wordSize <= len(digest); i += wordSize {
			word := binary.BigEndian.Uint64(digest[i : i+wordSize])
			if word <= acceptLimit {
				return int(word % OutcomeSpace), nil
			}
		}
	}

	return 0, ErrDigestExhausted
}

// Digest returns the hex encoded first digest page, shown to players next
// to the result.
func Digest(h Hasher, serverSeed, clientSeed string, nonce uint64) string {
	return hex.EncodeToString(h.MAC(serverSeed, Message(clientSeed, nonce, 0)))
}

// NewSeed returns n random bytes from crypto/rand, hex encoded.
func NewSeed(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate seed: %w", err)
	}
	return hex.EncodeToString(b), nil
}

type Verification struct {
	Algorithm      string `json:"algorithm"`
	ServerSeedHash string `json:"server_seed_hash"`
	HashMatches    bool   `json:"hash_matches"`
	ClientSeed     string `json:"client_seed"`
	Nonce          uint64 `json:"nonce"`
	Result         int    `json:"result"`
	Digest         string `json:"digest"`
}

// Verify recomputes a past roll from a revealed server seed. When
// committedHash is non-empty it is compared with the recomputed
// commitment.
func Verify(h Hasher, serverSeed, committedHash, clientSeed string, nonce uint64) (*Verification, error) {
	result, err := Generate(h, serverSeed, clientSeed, nonce)
	if err != nil {
		return nil, err
	}

	hash := h.Commit(serverSeed)
	matches := true
	if committedHash != "" {
		matches = subtle.ConstantTimeCompare([]byte(hash), []byte(committedHash)) == 1
	}

	return &Verification{
		Algorithm:      h.Name(),
		ServerSeedHash: hash,
		HashMatches:    matches,
		ClientSeed:     clientSeed,
		Nonce:          nonce,
		Result:         result,
		Digest:         Digest(h, serverSeed, clientSeed, nonce),
	}, nil
}
