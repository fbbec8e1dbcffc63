package fairness

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
)

// Hasher is the one-way function pair used by a seed commitment: Commit
// publishes the server seed hash, MAC derives the roll digests. Each seed
// pair records the hasher name so historical pairs stay verifiable after
// the default changes.
type Hasher interface {
	Name() string
	Commit(serverSeed string) string
	MAC(serverSeed string, message []byte) []byte
}

type stdHasher struct {
	name string
	new  func() hash.Hash
}

func (h stdHasher) Name() string { return h.name }

func (h stdHasher) Commit(serverSeed string) string {
	d := h.new()
	d.Write([]byte(serverSeed))
	return hex.EncodeToString(d.Sum(nil))
}

func (h stdHasher) MAC(serverSeed string, message []byte) []byte {
	m := hmac.New(h.new, []byte(serverSeed))
	m.Write(message)
	return m.Sum(nil)
}

var (
	SHA256 Hasher = stdHasher{name: "sha256", new: sha256.New}
	SHA512 Hasher = stdHasher{name: "sha512", new: sha512.New}

	registry = map[string]Hasher{
		SHA256.Name(): SHA256,
		SHA512.Name(): SHA512,
	}
)

// Lookup returns the hasher registered under name. An empty name resolves
// to SHA256, which is what pairs created before algorithms were recorded
// used.
func Lookup(name string) (Hasher, error) {
	if name == "" {
		return SHA256, nil
	}
	h, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown hash algorithm: %s", name)
	}
	return h, nil
}

// Algorithms lists the registered hasher names.
func Algorithms() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
