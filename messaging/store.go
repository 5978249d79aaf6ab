// Package messaging is the local-first encrypted message store. It encrypts message
// bodies before they reach storage, derives order-insensitive conversation IDs, and
// answers transcript and inbox queries over the persisted records.
package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stratizen/crypto"
	"stratizen/storage"
)

// DefaultDedupWindow is how long a ClientToken suppresses duplicate sends.
const DefaultDedupWindow = 5 * time.Minute

// Repository is the persistence surface the store needs. *storage.Store implements it.
type Repository interface {
	InsertMessage(ctx context.Context, message storage.Message) (int64, error)
	InsertMessageOnce(ctx context.Context, message storage.Message, token string, since int64) (int64, bool, error)
	ListPairMessages(ctx context.Context, a, b string, window storage.TimeRange) ([]storage.Message, error)
	ListParticipantMessages(ctx context.Context, userID string, window storage.TimeRange) ([]storage.Message, error)
	LatestTimestamp(ctx context.Context) (int64, error)
	LatestPairMessage(ctx context.Context, a, b string) (*storage.Message, error)
	SetReadMarker(ctx context.Context, marker storage.ReadMarker) error
	GetReadMarker(ctx context.Context, conversationID, userID string) (*storage.ReadMarker, error)
	ListReadMarkers(ctx context.Context, userID string) (map[string]storage.ReadMarker, error)
}

// Store is safe for concurrent use. Writes are serialized in call order.
type Store struct {
	repo        Repository
	keys        crypto.KeyProvider
	now         func() time.Time
	dedupWindow time.Duration
	trackUnread bool

	writeMu       sync.Mutex
	lastTimestamp int64

	subMu     sync.RWMutex
	nextSubID uint64
	subs      []subscription
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock used to stamp new messages.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDedupWindow sets how long a ClientToken suppresses duplicates. Zero or negative
// makes tokens suppress duplicates for as long as storage retains them.
func WithDedupWindow(window time.Duration) Option {
	return func(s *Store) {
		s.dedupWindow = window
	}
}

// WithUnreadTracking turns on unread counts in GetUserConversations.
func WithUnreadTracking(enabled bool) Option {
	return func(s *Store) {
		s.trackUnread = enabled
	}
}

// New builds a Store over repo. The newest persisted timestamp seeds the write clock
// so timestamps stay non-decreasing across restarts.
func New(ctx context.Context, repo Repository, keys crypto.KeyProvider, opts ...Option) (*Store, error) {
	if repo == nil {
		return nil, fmt.Errorf("messaging: repository is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("messaging: key provider is required")
	}

	s := &Store{
		repo:        repo,
		keys:        keys,
		now:         time.Now,
		dedupWindow: DefaultDedupWindow,
	}
	for _, opt := range opts {
		opt(s)
	}

	latest, err := repo.LatestTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed message clock: %w", err)
	}
	s.lastTimestamp = latest

	return s, nil
}

// nextTimestamp must be called with writeMu held.
func (s *Store) nextTimestamp() int64 {
	ts := s.now().UnixMilli()
	if ts < s.lastTimestamp {
		ts = s.lastTimestamp
	}
	return ts
}
