package chat

import (
	"sort"

	"placeme/pkg/models"
)

// BuildConversations folds a user's flat message history into one entry per
// counterparty. The input must be ordered newest first; because of that, the
// first message seen for a counterparty IS the conversation's last message,
// and later (older) messages only contribute to the unread count.
//
// Unread counts inbound messages only: a message increments the count when
// the user is not its sender and it has not been read. The user's own
// outbound messages never count, whatever their read flag says.
//
// Self-addressed messages (sender == receiver == user) fold into a
// conversation with the user themselves rather than being dropped.
func BuildConversations(userID string, msgs []models.Message) []models.Conversation {
	byContact := make(map[string]*models.Conversation)
	order := make([]string, 0)

	for _, m := range msgs {
		if !m.Direct() {
			continue
		}
		contact := m.CounterpartyOf(userID)
		if contact == "" {
			continue
		}
		conv, ok := byContact[contact]
		if !ok {
			conv = &models.Conversation{
				Contact:     contactProfile(contact, m),
				LastMessage: m,
			}
			byContact[contact] = conv
			order = append(order, contact)
		}
		if m.Sender != userID && !m.IsRead {
			conv.UnreadCount++
		}
	}

	out := make([]models.Conversation, 0, len(byContact))
	for _, c := range order {
		out = append(out, *byContact[c])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessage.CreatedTS > out[j].LastMessage.CreatedTS
	})
	return out
}

// UnreadFor counts the messages in msgs not authored by userID and not yet
// read. Channel views reuse the direct-conversation unread rule with the
// channel's history as input.
func UnreadFor(userID string, msgs []models.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Sender != userID && !m.IsRead {
			n++
		}
	}
	return n
}

// contactProfile picks the joined profile matching the contact id, falling
// back to a bare id when no profile document exists.
func contactProfile(contact string, m models.Message) models.Profile {
	if m.SenderProfile != nil && m.SenderProfile.ID == contact {
		return *m.SenderProfile
	}
	if m.ReceiverProfile != nil && m.ReceiverProfile.ID == contact {
		return *m.ReceiverProfile
	}
	return models.Profile{ID: contact}
}
