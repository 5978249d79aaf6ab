package logging

const (
	FieldComponent      = "component"
	FieldUserID         = "user_id"
	FieldPeerID         = "peer_id"
	FieldConversationID = "conversation_id"
	FieldMessageID      = "message_id"
	FieldCount          = "count"
)
