package storage

import (
	"context"
	"errors"
	"fmt"
)

// PruneSendTokens removes send_tokens rows older than cutoff timestamp.
func (s *Store) PruneSendTokens(ctx context.Context, cutoffTimestamp int64) (int64, error) {
	if cutoffTimestamp <= 0 {
		return 0, errors.New("cutoff timestamp must be > 0")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM send_tokens WHERE created_at < ?`, cutoffTimestamp)
	if err != nil {
		return 0, fmt.Errorf("prune send tokens: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read rows affected for send token prune: %w", err)
	}

	return rowsAffected, nil
}
