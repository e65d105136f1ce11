package models

// ThreadKind discriminates the two conversation variants.
type ThreadKind string

const (
	ThreadDirect  ThreadKind = "direct"
	ThreadChannel ThreadKind = "channel"
)

// ThreadRef identifies a conversation target as an explicit tagged union:
// a direct thread names the counterparty, a channel thread names the
// channel. This replaces ad-hoc "dm_A_B"/"channel_N" string keys.
type ThreadRef struct {
	Kind ThreadKind `json:"kind"`
	// Counterparty is set when Kind == ThreadDirect.
	Counterparty string `json:"counterparty_id,omitempty"`
	// Channel is set when Kind == ThreadChannel.
	Channel string `json:"channel_id,omitempty"`
}

// DirectThread returns a ThreadRef for a two-party conversation.
func DirectThread(counterparty string) ThreadRef {
	return ThreadRef{Kind: ThreadDirect, Counterparty: counterparty}
}

// ChannelThread returns a ThreadRef for a channel conversation.
func ChannelThread(channel string) ThreadRef {
	return ThreadRef{Kind: ThreadChannel, Channel: channel}
}

// Valid reports whether the ref names exactly one concrete target.
func (t ThreadRef) Valid() bool {
	switch t.Kind {
	case ThreadDirect:
		return t.Counterparty != "" && t.Channel == ""
	case ThreadChannel:
		return t.Channel != "" && t.Counterparty == ""
	}
	return false
}

// Conversation is the derived per-counterparty view: contact identity, the
// most recent message in the pair and the count of unread inbound messages.
// It is recomputed from the flat message set on every aggregation run and
// never persisted.
type Conversation struct {
	Contact     Profile `json:"contact"`
	LastMessage Message `json:"last_message"`
	UnreadCount int     `json:"unread_count"`
}
