package messaging

import (
	"context"
	"fmt"
	"sort"

	"stratizen/models"
	"stratizen/storage"
)

// GetConversation returns the transcript between userA and userB, oldest first, with
// bodies decrypted. Argument order does not matter.
func (s *Store) GetConversation(ctx context.Context, userA, userB string) ([]models.Message, error) {
	records, err := s.repo.ListPairMessages(ctx, userA, userB, storage.AllTime)
	if err != nil {
		return nil, fmt.Errorf("load conversation %q: %w", ConversationID(userA, userB), err)
	}

	messages := make([]models.Message, 0, len(records))
	for _, record := range records {
		messages = append(messages, models.Message{
			ID:        record.ID,
			Sender:    record.Sender,
			Receiver:  record.Receiver,
			Content:   s.decryptRecord(ctx, record),
			Timestamp: record.Timestamp,
		})
	}
	return messages, nil
}

type conversationGroup struct {
	id     string
	peer   string
	latest storage.Message
	unread int
}

// GetUserConversations returns one row per conversation userID takes part in, most
// recently active first.
func (s *Store) GetUserConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	records, err := s.repo.ListParticipantMessages(ctx, userID, storage.AllTime)
	if err != nil {
		return nil, fmt.Errorf("load conversations for %q: %w", userID, err)
	}

	var markers map[string]storage.ReadMarker
	if s.trackUnread {
		markers, err = s.repo.ListReadMarkers(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load read markers for %q: %w", userID, err)
		}
	}

	byPeer := make(map[string]*conversationGroup)
	groups := make([]*conversationGroup, 0)
	for _, record := range records {
		peer := otherParticipant(record, userID)
		id := ConversationID(userID, peer)

		group, ok := byPeer[peer]
		if !ok {
			group = &conversationGroup{id: id, peer: peer, latest: record}
			byPeer[peer] = group
			groups = append(groups, group)
		} else if record.Timestamp >= group.latest.Timestamp {
			// Records arrive in (timestamp, id) order, so a tie goes to the later insert.
			group.latest = record
		}

		if s.trackUnread && isUnread(record, userID, markers[id]) {
			group.unread++
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].latest.Timestamp != groups[j].latest.Timestamp {
			return groups[i].latest.Timestamp > groups[j].latest.Timestamp
		}
		return groups[i].latest.ID > groups[j].latest.ID
	})

	conversations := make([]models.Conversation, 0, len(groups))
	for _, group := range groups {
		conversations = append(conversations, models.Conversation{
			ConversationID: group.id,
			ParticipantID:  group.peer,
			LastMessage:    s.decryptRecord(ctx, group.latest),
			LastTimestamp:  group.latest.Timestamp,
			UnreadCount:    group.unread,
		})
	}
	return conversations, nil
}
