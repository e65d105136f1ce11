package chat

import (
	"testing"

	"placeme/pkg/models"
)

// history builds a newest-first slice the way the store returns it.
func history(msgs ...models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func dm(id, sender, receiver, content string, ts int64, read bool) models.Message {
	return models.Message{ID: id, Sender: sender, Receiver: receiver, Content: content, CreatedTS: ts, IsRead: read}
}

func TestLastMessageIsNewestPerCounterparty(t *testing.T) {
	msgs := history(
		dm("1", "me", "bob", "hi bob", 100, true),
		dm("2", "bob", "me", "hi back", 200, true),
		dm("3", "me", "carol", "hi carol", 300, true),
		dm("4", "bob", "me", "latest from bob", 400, true),
	)
	convs := BuildConversations("me", msgs)
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	if convs[0].Contact.ID != "bob" || convs[0].LastMessage.ID != "4" {
		t.Fatalf("bob's conversation wrong: %+v", convs[0])
	}
	if convs[1].Contact.ID != "carol" || convs[1].LastMessage.ID != "3" {
		t.Fatalf("carol's conversation wrong: %+v", convs[1])
	}
}

func TestUnreadCountsInboundOnly(t *testing.T) {
	msgs := history(
		dm("1", "bob", "me", "unread 1", 100, false),
		dm("2", "bob", "me", "unread 2", 200, false),
		dm("3", "me", "bob", "my own unread reply", 300, false),
		dm("4", "bob", "me", "already read", 400, true),
	)
	convs := BuildConversations("me", msgs)
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
	if convs[0].UnreadCount != 2 {
		t.Fatalf("unread = %d, want 2 (own messages and read messages must not count)", convs[0].UnreadCount)
	}
}

func TestUnreadDropsToZeroAfterRead(t *testing.T) {
	msgs := history(
		dm("1", "bob", "me", "a", 100, true),
		dm("2", "bob", "me", "b", 200, true),
	)
	convs := BuildConversations("me", msgs)
	if convs[0].UnreadCount != 0 {
		t.Fatalf("unread = %d after everything read", convs[0].UnreadCount)
	}
}

func TestConversationsOrderedByLatestActivity(t *testing.T) {
	msgs := history(
		dm("1", "me", "old", "stale thread", 100, true),
		dm("2", "mid", "me", "middle thread", 200, true),
		dm("3", "fresh", "me", "busiest thread", 300, false),
	)
	convs := BuildConversations("me", msgs)
	want := []string{"fresh", "mid", "old"}
	if len(convs) != len(want) {
		t.Fatalf("expected %d conversations, got %d", len(want), len(convs))
	}
	for i, c := range convs {
		if c.Contact.ID != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, c.Contact.ID, want[i])
		}
	}
}

func TestSelfConversationIsKept(t *testing.T) {
	msgs := history(
		dm("1", "me", "me", "note to self", 100, false),
		dm("2", "bob", "me", "hello", 200, false),
	)
	convs := BuildConversations("me", msgs)
	if len(convs) != 2 {
		t.Fatalf("expected self conversation plus bob, got %d", len(convs))
	}
	var self *models.Conversation
	for i := range convs {
		if convs[i].Contact.ID == "me" {
			self = &convs[i]
		}
	}
	if self == nil {
		t.Fatal("self conversation missing")
	}
	if self.LastMessage.ID != "1" {
		t.Fatalf("self last message %s", self.LastMessage.ID)
	}
	// a self message is never inbound
	if self.UnreadCount != 0 {
		t.Fatalf("self unread = %d, want 0", self.UnreadCount)
	}
}

func TestChannelMessagesExcludedFromDirectAggregation(t *testing.T) {
	msgs := history(
		models.Message{ID: "1", Sender: "bob", Channel: "ch_general", Content: "in channel", CreatedTS: 100},
		dm("2", "bob", "me", "direct", 200, false),
	)
	convs := BuildConversations("me", msgs)
	if len(convs) != 1 || convs[0].LastMessage.ID != "2" {
		t.Fatalf("channel traffic leaked into direct conversations: %+v", convs)
	}
}

func TestContactProfileJoined(t *testing.T) {
	p := &models.Profile{ID: "bob", Name: "Bob"}
	msgs := history(
		models.Message{ID: "1", Sender: "bob", Receiver: "me", Content: "hi", CreatedTS: 100, SenderProfile: p},
	)
	convs := BuildConversations("me", msgs)
	if convs[0].Contact.Name != "Bob" {
		t.Fatalf("contact profile not taken from joined message: %+v", convs[0].Contact)
	}
}

func TestEmptyHistoryYieldsNoConversations(t *testing.T) {
	if convs := BuildConversations("me", nil); len(convs) != 0 {
		t.Fatalf("expected none, got %d", len(convs))
	}
}
