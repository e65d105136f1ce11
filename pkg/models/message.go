package models

// Message is a directed unit of communication between two participants, or
// from one participant into a channel. Exactly one of Receiver/Channel is
// set. The read flag is the only field mutated after insert.
type Message struct {
	ID       string `json:"id"`
	Sender   string `json:"sender_id"`
	Receiver string `json:"receiver_id,omitempty"`
	// Channel is set instead of Receiver for channel (group) messages.
	Channel string `json:"channel_id,omitempty"`
	Content string `json:"content"`
	IsRead  bool   `json:"is_read"`
	// CreatedTS is a server-assigned timestamp (ns).
	CreatedTS int64 `json:"created_at"`

	// Joined display attributes; populated on read paths, never stored.
	SenderProfile   *Profile `json:"sender,omitempty"`
	ReceiverProfile *Profile `json:"receiver,omitempty"`
}

// Direct reports whether the message is a two-party message rather than a
// channel message.
func (m Message) Direct() bool { return m.Channel == "" }

// CounterpartyOf returns the other participant relative to userID. For a
// self-addressed message both sides equal userID and that id is returned.
func (m Message) CounterpartyOf(userID string) string {
	if m.Sender == userID {
		return m.Receiver
	}
	return m.Sender
}
