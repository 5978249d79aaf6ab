package messaging

import (
	"context"
	"fmt"

	"stratizen/logging"
	"stratizen/models"
	"stratizen/storage"
)

// SendMessage encrypts the body, stamps it, and appends one immutable record.
//
// Storage failures are returned so callers can offer a retry. A retry without a
// ClientToken writes a second record; with the same token inside the dedup window it
// is dropped and SendMessage returns nil.
func (s *Store) SendMessage(ctx context.Context, out models.OutgoingMessage) error {
	conversationID := ConversationID(out.Sender, out.Receiver)
	ciphertext, err := s.Encrypt(ctx, out.Sender, out.Receiver, out.Content)
	if err != nil {
		return fmt.Errorf("encrypt message for %q: %w", conversationID, err)
	}

	logger := logging.Ctx(ctx).With().
		Str(logging.FieldComponent, "messaging").
		Str(logging.FieldConversationID, conversationID).
		Logger()

	s.writeMu.Lock()
	record := storage.Message{
		Sender:    out.Sender,
		Receiver:  out.Receiver,
		Content:   ciphertext,
		Timestamp: s.nextTimestamp(),
	}

	inserted := true
	if out.ClientToken == "" {
		record.ID, err = s.repo.InsertMessage(ctx, record)
	} else {
		since := int64(0)
		if s.dedupWindow > 0 {
			since = record.Timestamp - s.dedupWindow.Milliseconds()
		}
		record.ID, inserted, err = s.repo.InsertMessageOnce(ctx, record, out.ClientToken, since)
	}
	if err == nil && inserted {
		s.lastTimestamp = record.Timestamp
	}
	s.writeMu.Unlock()

	if err != nil {
		return fmt.Errorf("store message for %q: %w", conversationID, err)
	}
	if !inserted {
		logger.Info().Int64(logging.FieldMessageID, record.ID).Msg("duplicate send suppressed")
		return nil
	}

	logger.Debug().Int64(logging.FieldMessageID, record.ID).Msg("message stored")

	s.publish(models.Message{
		ID:        record.ID,
		Sender:    record.Sender,
		Receiver:  record.Receiver,
		Content:   out.Content,
		Timestamp: record.Timestamp,
	})
	return nil
}
