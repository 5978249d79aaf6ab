package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const messageColumns = `id, sender, receiver, content, timestamp`

// InsertMessage appends one message row and returns its assigned ID.
func (s *Store) InsertMessage(ctx context.Context, message Message) (int64, error) {
	if err := validateMessage(message); err != nil {
		return 0, err
	}

	id, err := insertMessage(ctx, s.db, message)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// InsertMessageOnce appends a message unless token was already recorded at or after since.
// It reports the ID of the stored row and whether a new row was written.
func (s *Store) InsertMessageOnce(ctx context.Context, message Message, token string, since int64) (int64, bool, error) {
	if token == "" {
		return 0, false, errors.New("send token is required")
	}
	if err := validateMessage(message); err != nil {
		return 0, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin send transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var existingID int64
	err = tx.QueryRowContext(
		ctx,
		`SELECT message_id FROM send_tokens WHERE token = ? AND created_at >= ?`,
		token,
		since,
	).Scan(&existingID)
	switch {
	case err == nil:
		return existingID, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, false, fmt.Errorf("look up send token %q: %w", token, err)
	}

	id, err := insertMessage(ctx, tx, message)
	if err != nil {
		return 0, false, err
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO send_tokens (token, message_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET message_id = excluded.message_id, created_at = excluded.created_at`,
		token,
		id,
		message.Timestamp,
	); err != nil {
		return 0, false, fmt.Errorf("record send token %q: %w", token, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit send transaction: %w", err)
	}

	return id, true, nil
}

// ListPairMessages returns messages exchanged between a and b in either direction,
// ordered by timestamp then insertion order.
func (s *Store) ListPairMessages(ctx context.Context, a, b string, window TimeRange) ([]Message, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+messageColumns+`
		FROM messages
		WHERE ((sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?))
		  AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp ASC, id ASC`,
		a, b,
		b, a,
		window.From, window.To,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages between %q and %q: %w", a, b, err)
	}

	return collectMessages(rows)
}

// ListParticipantMessages returns every message sent or received by userID,
// ordered by timestamp then insertion order.
func (s *Store) ListParticipantMessages(ctx context.Context, userID string, window TimeRange) ([]Message, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+messageColumns+`
		FROM messages
		WHERE (sender = ? OR receiver = ?)
		  AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp ASC, id ASC`,
		userID,
		userID,
		window.From, window.To,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages for participant %q: %w", userID, err)
	}

	return collectMessages(rows)
}

// LatestTimestamp returns the newest message timestamp, or 0 for an empty table.
func (s *Store) LatestTimestamp(ctx context.Context) (int64, error) {
	var latest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM messages`).Scan(&latest); err != nil {
		return 0, fmt.Errorf("read latest message timestamp: %w", err)
	}
	return nullInt64Value(latest), nil
}

// LatestPairMessage returns the newest message exchanged between a and b, by
// timestamp then insertion order.
func (s *Store) LatestPairMessage(ctx context.Context, a, b string) (*Message, error) {
	message, err := scanMessage(s.db.QueryRowContext(
		ctx,
		`SELECT `+messageColumns+`
		FROM messages
		WHERE (sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`,
		a, b,
		b, a,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read latest message between %q and %q: %w", a, b, err)
	}
	return message, nil
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, db execQuerier, message Message) (int64, error) {
	res, err := db.ExecContext(
		ctx,
		`INSERT INTO messages (sender, receiver, content, timestamp)
		VALUES (?, ?, ?, ?)`,
		message.Sender,
		message.Receiver,
		message.Content,
		message.Timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("insert message from %q to %q: %w", message.Sender, message.Receiver, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted message id: %w", err)
	}
	return id, nil
}

func validateMessage(message Message) error {
	if message.Sender == "" {
		return errors.New("sender is required")
	}
	if message.Receiver == "" {
		return errors.New("receiver is required")
	}
	if message.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, *message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}

	return messages, nil
}

func scanMessage(row scanner) (*Message, error) {
	var (
		message   Message
		sender    sql.NullString
		receiver  sql.NullString
		content   sql.NullString
		timestamp sql.NullInt64
	)

	if err := row.Scan(
		&message.ID,
		&sender,
		&receiver,
		&content,
		&timestamp,
	); err != nil {
		return nil, err
	}

	message.Sender = nullStringValue(sender)
	message.Receiver = nullStringValue(receiver)
	message.Content = nullStringValue(content)
	message.Timestamp = nullInt64Value(timestamp)

	return &message, nil
}
