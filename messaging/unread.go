package messaging

import (
	"context"
	"errors"
	"fmt"

	"stratizen/storage"
)

// MarkConversationRead records that userID has read everything currently exchanged with
// peerID. It is a no-op when the pair has no messages.
func (s *Store) MarkConversationRead(ctx context.Context, userID, peerID string) error {
	conversationID := ConversationID(userID, peerID)

	latest, err := s.repo.LatestPairMessage(ctx, userID, peerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("mark %q read for %q: %w", conversationID, userID, err)
	}

	if err := s.repo.SetReadMarker(ctx, storage.ReadMarker{
		ConversationID:    conversationID,
		UserID:            userID,
		LastReadTimestamp: latest.Timestamp,
		LastReadMessageID: latest.ID,
	}); err != nil {
		return fmt.Errorf("mark %q read for %q: %w", conversationID, userID, err)
	}
	return nil
}

// UnreadCount returns how many messages from peerID userID has not read yet. It is
// always 0 unless unread tracking is enabled.
func (s *Store) UnreadCount(ctx context.Context, userID, peerID string) (int, error) {
	if !s.trackUnread {
		return 0, nil
	}

	conversationID := ConversationID(userID, peerID)
	marker := storage.ReadMarker{ConversationID: conversationID, UserID: userID}
	stored, err := s.repo.GetReadMarker(ctx, conversationID, userID)
	switch {
	case err == nil:
		marker = *stored
	case !errors.Is(err, storage.ErrNotFound):
		return 0, fmt.Errorf("load read marker for %q in %q: %w", userID, conversationID, err)
	}

	records, err := s.repo.ListPairMessages(ctx, userID, peerID, storage.TimeRange{
		From: marker.LastReadTimestamp,
		To:   storage.AllTime.To,
	})
	if err != nil {
		return 0, fmt.Errorf("count unread in %q: %w", conversationID, err)
	}

	unread := 0
	for _, record := range records {
		if isUnread(record, userID, marker) {
			unread++
		}
	}
	return unread, nil
}

// isUnread reports whether record is an incoming message past the read marker.
func isUnread(record storage.Message, userID string, marker storage.ReadMarker) bool {
	return record.Receiver == userID && record.Sender != userID && !marker.Covers(record)
}
