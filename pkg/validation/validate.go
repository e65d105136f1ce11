package validation

import (
	"fmt"
	"strings"

	"placeme/pkg/config"
	"placeme/pkg/models"
)

const (
	defaultMaxContent = 8 * 1024
	defaultMaxIDLen   = 128
)

// ValidateMessage checks an outgoing message before any store access is
// attempted. It returns a human-readable reason on failure.
func ValidateMessage(m models.Message) error {
	maxContent, maxID := config.GetChatLimits()
	if maxContent <= 0 {
		maxContent = defaultMaxContent
	}
	if maxID <= 0 {
		maxID = defaultMaxIDLen
	}

	if m.Sender == "" {
		return fmt.Errorf("sender_id is required")
	}
	if err := validateID("sender_id", m.Sender, maxID); err != nil {
		return err
	}
	if m.Receiver == "" && m.Channel == "" {
		return fmt.Errorf("either receiver_id or channel_id is required")
	}
	if m.Receiver != "" && m.Channel != "" {
		return fmt.Errorf("receiver_id and channel_id are mutually exclusive")
	}
	if m.Receiver != "" {
		if err := validateID("receiver_id", m.Receiver, maxID); err != nil {
			return err
		}
	}
	if m.Channel != "" {
		if err := validateID("channel_id", m.Channel, maxID); err != nil {
			return err
		}
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("content must not be empty or whitespace-only")
	}
	if len(m.Content) > maxContent {
		return fmt.Errorf("content exceeds %d bytes", maxContent)
	}
	return nil
}

// ValidateIdentity checks a user or channel identity supplied in a path or
// query parameter.
func ValidateIdentity(field, id string) error {
	_, maxID := config.GetChatLimits()
	if maxID <= 0 {
		maxID = defaultMaxIDLen
	}
	if id == "" {
		return fmt.Errorf("%s is required", field)
	}
	return validateID(field, id, maxID)
}

func validateID(field, id string, max int) error {
	if len(id) > max {
		return fmt.Errorf("%s exceeds %d bytes", field, max)
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == '@':
		default:
			return fmt.Errorf("%s contains invalid character %q", field, c)
		}
	}
	return nil
}
