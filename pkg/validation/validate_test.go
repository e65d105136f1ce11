package validation

import (
	"strings"
	"testing"

	"placeme/pkg/models"
)

func valid() models.Message {
	return models.Message{Sender: "alice", Receiver: "bob", Content: "hello"}
}

func TestValidMessagePasses(t *testing.T) {
	if err := ValidateMessage(valid()); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}
	m := valid()
	m.Receiver = ""
	m.Channel = "ch_general"
	if err := ValidateMessage(m); err != nil {
		t.Fatalf("valid channel message rejected: %v", err)
	}
}

func TestRejectsMissingFields(t *testing.T) {
	cases := map[string]func(*models.Message){
		"no sender":  func(m *models.Message) { m.Sender = "" },
		"no target":  func(m *models.Message) { m.Receiver = "" },
		"no content": func(m *models.Message) { m.Content = "" },
		"whitespace-only content": func(m *models.Message) {
			m.Content = "   \t\n"
		},
		"both targets": func(m *models.Message) {
			m.Channel = "ch_general"
		},
	}
	for name, mutate := range cases {
		m := valid()
		mutate(&m)
		if err := ValidateMessage(m); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

func TestRejectsOversizedContent(t *testing.T) {
	m := valid()
	m.Content = strings.Repeat("x", defaultMaxContent+1)
	if err := ValidateMessage(m); err == nil {
		t.Fatal("oversized content accepted")
	}
}

func TestRejectsBadIdentifiers(t *testing.T) {
	for _, id := range []string{"has space", "semi;colon", "slash/id", strings.Repeat("a", defaultMaxIDLen+1)} {
		m := valid()
		m.Receiver = id
		if err := ValidateMessage(m); err == nil {
			t.Errorf("identifier %q accepted", id)
		}
	}
	for _, id := range []string{"user-1", "user_2", "a.b@example.com"} {
		if err := ValidateIdentity("user_id", id); err != nil {
			t.Errorf("identifier %q rejected: %v", id, err)
		}
	}
}
