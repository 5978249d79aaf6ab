package crypto

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const hkdfInfoPrefix = "stratizen/messages/v1/"

// KeyProvider resolves the symmetric key used for one encryption scope.
type KeyProvider interface {
	KeyFor(ctx context.Context, scope string) ([]byte, error)
}

// StaticKey is a single shared key returned for every scope.
type StaticKey []byte

// KeyFor returns a copy of the shared key.
func (k StaticKey) KeyFor(_ context.Context, _ string) ([]byte, error) {
	if len(k) != KeySize {
		return nil, fmt.Errorf("invalid static key length: got %d want %d", len(k), KeySize)
	}
	out := make([]byte, KeySize)
	copy(out, k)
	return out, nil
}

// HKDFKeyProvider derives one key per scope from a master secret with HKDF-SHA256.
type HKDFKeyProvider struct {
	secret []byte
	salt   []byte

	mu    sync.Mutex
	cache map[string][]byte
}

// NewHKDFKeyProvider builds a provider over a master secret and optional salt.
func NewHKDFKeyProvider(secret, salt []byte) (*HKDFKeyProvider, error) {
	if len(secret) < KeySize {
		return nil, fmt.Errorf("master secret too short: got %d want >= %d", len(secret), KeySize)
	}

	return &HKDFKeyProvider{
		secret: append([]byte(nil), secret...),
		salt:   append([]byte(nil), salt...),
		cache:  make(map[string][]byte),
	}, nil
}

// KeyFor derives (or returns the cached) key for scope.
func (p *HKDFKeyProvider) KeyFor(ctx context.Context, scope string) ([]byte, error) {
	if scope == "" {
		return nil, errors.New("key scope is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if key, ok := p.cache[scope]; ok {
		return key, nil
	}

	key := make([]byte, KeySize)
	reader := hkdf.New(sha256.New, p.secret, p.salt, []byte(hkdfInfoPrefix+scope))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key for scope %q: %w", scope, err)
	}
	p.cache[scope] = key

	return key, nil
}
