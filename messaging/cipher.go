package messaging

import (
	"context"
	"fmt"

	"stratizen/crypto"
	"stratizen/logging"
	"stratizen/storage"
)

// DecryptionFailed replaces the body of any record that cannot be decrypted.
const DecryptionFailed = "[decryption failed]"

// Encrypt seals plaintext with the key of the conversation between a and b into
// storable text.
func (s *Store) Encrypt(ctx context.Context, a, b, plaintext string) (string, error) {
	key, err := s.keys.KeyFor(ctx, keyScope(a, b))
	if err != nil {
		return "", fmt.Errorf("resolve key for %q: %w", ConversationID(a, b), err)
	}

	ciphertext, err := crypto.Seal(key, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("seal message for %q: %w", ConversationID(a, b), err)
	}
	return ciphertext, nil
}

// Decrypt opens ciphertext with the key of the conversation between a and b. It never
// fails: anything that does not decrypt yields DecryptionFailed.
func (s *Store) Decrypt(ctx context.Context, a, b, ciphertext string) string {
	return s.decrypt(ctx, a, b, ciphertext, 0)
}

func (s *Store) decryptRecord(ctx context.Context, record storage.Message) string {
	return s.decrypt(ctx, record.Sender, record.Receiver, record.Content, record.ID)
}

// decrypt logs and masks failures. recordID is 0 for bodies not read from storage.
func (s *Store) decrypt(ctx context.Context, a, b, ciphertext string, recordID int64) string {
	plaintext, err := s.open(ctx, keyScope(a, b), ciphertext)
	if err == nil {
		return plaintext
	}

	logger := logging.Ctx(ctx)
	event := logger.Warn().
		Err(err).
		Str(logging.FieldComponent, "messaging").
		Str(logging.FieldConversationID, ConversationID(a, b))
	if recordID != 0 {
		event = event.Int64(logging.FieldMessageID, recordID)
	}
	event.Msg("message decryption failed")
	return DecryptionFailed
}

func (s *Store) open(ctx context.Context, scope, ciphertext string) (plaintext string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decrypt panicked: %v", r)
		}
	}()

	key, err := s.keys.KeyFor(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("resolve key: %w", err)
	}

	raw, err := crypto.Open(key, ciphertext)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
