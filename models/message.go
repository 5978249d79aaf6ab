package models

// Message represents a plaintext message entry after decryption.
type Message struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// OutgoingMessage is what a caller hands to the store to send.
//
// ClientToken is optional. When set, a resend carrying the same token within the
// store's dedup window is suppressed instead of creating a duplicate record.
type OutgoingMessage struct {
	Sender      string `json:"sender"`
	Receiver    string `json:"receiver"`
	Content     string `json:"content"`
	ClientToken string `json:"client_token,omitempty"`
}
