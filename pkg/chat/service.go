package chat

import (
	"fmt"
	"strings"
	"sync"

	"placeme/pkg/logger"
	"placeme/pkg/models"
	"placeme/pkg/store"
	"placeme/pkg/utils"
	"placeme/pkg/validation"
)

// Publisher receives change events for fan-out to live subscribers. A nil
// Publisher disables fan-out.
type Publisher interface {
	Publish(eventType string, m models.Message)
}

// Service implements the message operations on top of the store, with
// validation before any write and change-event publication after it.
type Service struct {
	pub  Publisher
	gens genGuard
}

// NewService returns a Service publishing change events to pub.
func NewService(pub Publisher) *Service {
	return &Service{pub: pub, gens: genGuard{seen: map[string]uint64{}}}
}

// SendMessage validates and persists a message to the given target and
// publishes an insert event. Validation failures surface as
// *ValidationError and never touch the store. The body is stored trimmed;
// an empty or whitespace-only body is rejected.
func (s *Service) SendMessage(sender string, target models.ThreadRef, content string) (models.Message, error) {
	if !target.Valid() {
		return models.Message{}, &ValidationError{Reason: "thread target must name exactly one of counterparty_id or channel_id"}
	}
	m := models.Message{
		ID:      utils.GenID(),
		Sender:  sender,
		Content: strings.TrimSpace(content),
	}
	switch target.Kind {
	case models.ThreadDirect:
		m.Receiver = target.Counterparty
	case models.ThreadChannel:
		m.Channel = target.Channel
	}
	if err := validation.ValidateMessage(m); err != nil {
		return models.Message{}, &ValidationError{Reason: err.Error()}
	}
	if !m.Direct() {
		ch, err := store.GetChannel(m.Channel)
		if err != nil {
			return models.Message{}, fmt.Errorf("channel %s: %w", m.Channel, ErrNotFound)
		}
		if !ch.HasMember(sender) {
			return models.Message{}, ErrNotMember
		}
	}
	stored, err := store.InsertMessage(m)
	if err != nil {
		return models.Message{}, &StoreError{Op: "insert", Err: err}
	}
	s.publish("INSERT", stored)
	logger.Info("message_sent", "id", stored.ID, "sender", sender,
		"kind", string(target.Kind))
	return stored, nil
}

// Conversations returns the user's aggregated conversation list, newest
// activity first.
func (s *Service) Conversations(userID string) ([]models.Conversation, error) {
	if err := validation.ValidateIdentity("user_id", userID); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	msgs, err := store.FetchForUser(userID)
	if err != nil {
		return nil, &StoreError{Op: "fetch_for_user", Err: err}
	}
	return BuildConversations(userID, msgs), nil
}

// OpenConversation returns the full message history for a thread and flips
// unread inbound direct messages to read. The returned slice is the state
// observed before any flips, so the caller sees which messages were unread
// when the thread was opened.
//
// Concurrent opens of the same thread race: the fetch that started last
// wins, and earlier in-flight fetches return ErrStaleFetch so stale data is
// never surfaced.
func (s *Service) OpenConversation(userID string, target models.ThreadRef) ([]models.Message, error) {
	if err := validation.ValidateIdentity("user_id", userID); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	if !target.Valid() {
		return nil, &ValidationError{Reason: "thread target must name exactly one of counterparty_id or channel_id"}
	}
	if target.Kind == models.ThreadChannel {
		ch, err := store.GetChannel(target.Channel)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", target.Channel, ErrNotFound)
		}
		if !ch.HasMember(userID) {
			return nil, ErrNotMember
		}
	}
	key := threadKey(userID, target)
	gen := s.gens.begin(key)

	var msgs []models.Message
	var err error
	switch target.Kind {
	case models.ThreadDirect:
		msgs, err = store.FetchForPair(userID, target.Counterparty)
	case models.ThreadChannel:
		msgs, err = store.FetchForChannel(target.Channel)
	}
	if err != nil {
		return nil, &StoreError{Op: "fetch_thread", Err: err}
	}
	if !s.gens.current(key, gen) {
		logger.Debug("stale_fetch_discarded", "thread", key, "generation", gen)
		return nil, ErrStaleFetch
	}

	// Channel messages carry the same single read flag as direct ones, so a
	// member's open flips unread rows channel-wide.
	var unread []string
	for _, m := range msgs {
		if m.Sender != userID && !m.IsRead {
			unread = append(unread, m.ID)
		}
	}
	if len(unread) > 0 {
		if err := store.MarkRead(unread); err != nil {
			return nil, &StoreError{Op: "mark_read", Err: err}
		}
		switch target.Kind {
		case models.ThreadDirect:
			s.publish("UPDATE", models.Message{Sender: target.Counterparty, Receiver: userID})
		case models.ThreadChannel:
			s.publish("UPDATE", models.Message{Channel: target.Channel})
		}
		logger.Info("conversation_opened", "user", userID, "thread", key,
			"marked_read", len(unread))
	}
	return msgs, nil
}

// MarkMessagesRead flips the given message ids to read on behalf of userID
// and publishes an update event. Direct ids the user did not receive are
// skipped, as are channel ids in channels the user does not belong to.
func (s *Service) MarkMessagesRead(userID string, ids []string) (int, error) {
	var mine []string
	for _, id := range ids {
		m, err := store.GetMessage(id)
		if err != nil {
			continue
		}
		if m.IsRead || m.Sender == userID {
			continue
		}
		if m.Direct() {
			if m.Receiver == userID {
				mine = append(mine, id)
			}
			continue
		}
		if ch, err := store.GetChannel(m.Channel); err == nil && ch.HasMember(userID) {
			mine = append(mine, id)
		}
	}
	if len(mine) == 0 {
		return 0, nil
	}
	if err := store.MarkRead(mine); err != nil {
		return 0, &StoreError{Op: "mark_read", Err: err}
	}
	s.publish("UPDATE", models.Message{Receiver: userID})
	return len(mine), nil
}

// DeleteMessage removes a message. Only the sender may delete their own
// message unless force is set (admin surface). Deleting an unknown id is a
// no-op.
func (s *Service) DeleteMessage(requester, id string, force bool) error {
	m, err := store.GetMessage(id)
	if err != nil {
		return nil
	}
	if !force && m.Sender != requester {
		return &ValidationError{Reason: "only the sender may delete a message"}
	}
	if err := store.DeleteMessage(id); err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	s.publish("DELETE", m)
	return nil
}

func (s *Service) publish(eventType string, m models.Message) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(eventType, m)
}

// threadKey produces the guard key for one user's view of a conversation
// target. Keys are scoped by the opening user: each participant refreshes
// their own view, so their fetch generations must never interfere.
func threadKey(userID string, t models.ThreadRef) string {
	if t.Kind == models.ThreadChannel {
		return userID + "|channel:" + t.Channel
	}
	return userID + "|direct:" + t.Counterparty
}

// genGuard hands out per-thread fetch generations so overlapping fetches
// can detect that a newer one superseded them.
type genGuard struct {
	mu   sync.Mutex
	seen map[string]uint64
}

func (g *genGuard) begin(key string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[key]++
	return g.seen[key]
}

func (g *genGuard) current(key string, gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen[key] == gen
}
