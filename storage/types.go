package storage

import (
	"database/sql"
	"errors"
	"math"
	"time"
)

var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("storage: record not found")
)

// Message is the SQLite representation of a chat message. Content is ciphertext.
type Message struct {
	ID        int64
	Sender    string
	Receiver  string
	Content   string
	Timestamp int64
}

// TimeRange bounds a scan by message timestamp, both ends inclusive.
type TimeRange struct {
	From int64
	To   int64
}

// AllTime covers every representable message timestamp.
var AllTime = TimeRange{From: math.MinInt64, To: math.MaxInt64}

// ReadMarker is how far one user has read into one conversation: the position
// (timestamp, id) of the newest message read.
type ReadMarker struct {
	ConversationID    string
	UserID            string
	LastReadTimestamp int64
	LastReadMessageID int64
}

// Covers reports whether message is at or before the marker position.
func (m ReadMarker) Covers(message Message) bool {
	if message.Timestamp != m.LastReadTimestamp {
		return message.Timestamp < m.LastReadTimestamp
	}
	return message.ID <= m.LastReadMessageID
}

type scanner interface {
	Scan(dest ...any) error
}

func nullStringValue(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

func nullInt64Value(ni sql.NullInt64) int64 {
	if !ni.Valid {
		return 0
	}
	return ni.Int64
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
