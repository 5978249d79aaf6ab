package messaging

import (
	"strconv"

	"stratizen/storage"
)

// ConversationSeparator joins the two participant IDs of a conversation ID.
const ConversationSeparator = "_"

// ConversationID returns the order-insensitive ID of the conversation between a and b.
// IDs that themselves contain the separator can map two pairs to one ID, so it is a
// display and grouping key only; filters and key scopes use keyScope or the raw pair.
func ConversationID(a, b string) string {
	a, b = sortedPair(a, b)
	return a + ConversationSeparator + b
}

// keyScope is the unambiguous encryption scope for the pair: each ID is length-prefixed.
func keyScope(a, b string) string {
	a, b = sortedPair(a, b)
	return strconv.Itoa(len(a)) + ":" + a + strconv.Itoa(len(b)) + ":" + b
}

func sortedPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// isBetween reports whether message was exchanged between a and b in either direction.
func isBetween(sender, receiver, a, b string) bool {
	return (sender == a && receiver == b) || (sender == b && receiver == a)
}

// otherParticipant returns the party of message that is not userID. For a message a user
// sent to themselves that is the user.
func otherParticipant(message storage.Message, userID string) string {
	if message.Sender == userID {
		return message.Receiver
	}
	return message.Sender
}
