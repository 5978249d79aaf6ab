package models

// Conversation is one row of a user's inbox, derived from the latest message in a pair.
type Conversation struct {
	ConversationID string `json:"conversation_id"`
	ParticipantID  string `json:"participant_id"`
	LastMessage    string `json:"last_message"`
	LastTimestamp  int64  `json:"last_timestamp"`
	UnreadCount    int    `json:"unread_count"`
}
