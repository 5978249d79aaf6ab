package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SetReadMarker records how far userID has read into a conversation.
// The stored (timestamp, message id) position never moves backwards.
func (s *Store) SetReadMarker(ctx context.Context, marker ReadMarker) error {
	if marker.ConversationID == "" {
		return errors.New("conversation_id is required")
	}
	if marker.UserID == "" {
		return errors.New("user_id is required")
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO read_markers (conversation_id, user_id, last_read_timestamp, last_read_message_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_id, user_id) DO UPDATE SET
		  last_read_timestamp = excluded.last_read_timestamp,
		  last_read_message_id = excluded.last_read_message_id
		WHERE excluded.last_read_timestamp > read_markers.last_read_timestamp
		   OR (excluded.last_read_timestamp = read_markers.last_read_timestamp
		       AND excluded.last_read_message_id > read_markers.last_read_message_id)`,
		marker.ConversationID,
		marker.UserID,
		marker.LastReadTimestamp,
		marker.LastReadMessageID,
	)
	if err != nil {
		return fmt.Errorf("set read marker for %q in %q: %w", marker.UserID, marker.ConversationID, err)
	}

	return nil
}

// GetReadMarker returns the read marker for userID in a conversation.
func (s *Store) GetReadMarker(ctx context.Context, conversationID, userID string) (*ReadMarker, error) {
	marker := ReadMarker{ConversationID: conversationID, UserID: userID}
	err := s.db.QueryRowContext(
		ctx,
		`SELECT last_read_timestamp, last_read_message_id
		FROM read_markers
		WHERE conversation_id = ? AND user_id = ?`,
		conversationID,
		userID,
	).Scan(&marker.LastReadTimestamp, &marker.LastReadMessageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get read marker for %q in %q: %w", userID, conversationID, err)
	}

	return &marker, nil
}

// ListReadMarkers returns every read marker held by userID keyed by conversation ID.
func (s *Store) ListReadMarkers(ctx context.Context, userID string) (map[string]ReadMarker, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT conversation_id, last_read_timestamp, last_read_message_id
		FROM read_markers
		WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list read markers for %q: %w", userID, err)
	}
	defer rows.Close()

	markers := make(map[string]ReadMarker)
	for rows.Next() {
		marker := ReadMarker{UserID: userID}
		if err := rows.Scan(&marker.ConversationID, &marker.LastReadTimestamp, &marker.LastReadMessageID); err != nil {
			return nil, fmt.Errorf("scan read marker row: %w", err)
		}
		markers[marker.ConversationID] = marker
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate read marker rows: %w", err)
	}

	return markers, nil
}
