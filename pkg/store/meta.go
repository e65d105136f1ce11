package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"placeme/pkg/logger"
	"placeme/pkg/models"
)

// SaveProfile upserts a user profile document.
func SaveProfile(p models.Profile) error {
	if db == nil {
		return errNotOpen
	}
	if p.ID == "" {
		return fmt.Errorf("profile id required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := db.Set(profileKey(p.ID), data, pebble.Sync); err != nil {
		logger.Error("save_profile_failed", "id", p.ID, "error", err)
		return err
	}
	logger.Info("profile_saved", "id", p.ID)
	return nil
}

// GetProfile returns the stored profile for an identity.
func GetProfile(id string) (models.Profile, error) {
	var p models.Profile
	if db == nil {
		return p, errNotOpen
	}
	v, closer, err := db.Get(profileKey(id))
	if err != nil {
		return p, err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := json.Unmarshal(v, &p); err != nil {
		return p, fmt.Errorf("invalid profile JSON: %w", err)
	}
	return p, nil
}

// ListProfiles returns every stored profile in key order.
func ListProfiles() ([]models.Profile, error) {
	if db == nil {
		return nil, errNotOpen
	}
	prefix := []byte("profile:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Profile
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var p models.Profile
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, iter.Error()
}

// SaveChannel upserts a channel's metadata document.
func SaveChannel(ch models.Channel) error {
	if db == nil {
		return errNotOpen
	}
	if ch.ID == "" {
		return fmt.Errorf("channel id required")
	}
	if ch.CreatedTS == 0 {
		ch.CreatedTS = time.Now().UTC().UnixNano()
	}
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("failed to marshal channel: %w", err)
	}
	if err := db.Set(channelMetaKey(ch.ID), data, pebble.Sync); err != nil {
		logger.Error("save_channel_failed", "id", ch.ID, "error", err)
		return err
	}
	logger.Info("channel_saved", "id", ch.ID)
	return nil
}

// GetChannel returns channel metadata by id.
func GetChannel(id string) (models.Channel, error) {
	var ch models.Channel
	if db == nil {
		return ch, errNotOpen
	}
	v, closer, err := db.Get(channelMetaKey(id))
	if err != nil {
		return ch, err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := json.Unmarshal(v, &ch); err != nil {
		return ch, fmt.Errorf("invalid channel JSON: %w", err)
	}
	return ch, nil
}

// ListChannels returns every channel's metadata in key order.
func ListChannels() ([]models.Channel, error) {
	if db == nil {
		return nil, errNotOpen
	}
	prefix := []byte("channel:")
	suffix := []byte(":meta")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Channel
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		k := iter.Key()
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		if !bytes.HasSuffix(k, suffix) {
			continue
		}
		var ch models.Channel
		if err := json.Unmarshal(iter.Value(), &ch); err != nil {
			continue
		}
		out = append(out, ch)
	}
	return out, iter.Error()
}

// DeleteChannel hard-deletes a channel's metadata together with its
// messages and their index rows. Deleting an unknown channel is a no-op.
func DeleteChannel(id string) error {
	if db == nil {
		return errNotOpen
	}
	if _, err := GetChannel(id); err != nil {
		logger.Debug("delete_channel_missing", "id", id)
		return nil
	}
	ids, err := scanIndex(channelMsgPrefix(id))
	if err != nil {
		return err
	}
	for _, mid := range ids {
		if err := DeleteMessage(mid); err != nil {
			return err
		}
	}
	if err := db.Delete(channelMetaKey(id), pebble.Sync); err != nil {
		logger.Error("delete_channel_failed", "id", id, "error", err)
		return err
	}
	logger.Info("channel_deleted", "id", id, "messages_removed", len(ids))
	return nil
}

// AddChannelMember adds an identity to a channel's member list. Adding an
// existing member is a no-op.
func AddChannelMember(channelID, userID string) (models.Channel, error) {
	ch, err := GetChannel(channelID)
	if err != nil {
		return ch, err
	}
	if ch.HasMember(userID) {
		return ch, nil
	}
	ch.Members = append(ch.Members, userID)
	if err := SaveChannel(ch); err != nil {
		return ch, err
	}
	logger.Info("channel_member_added", "channel", channelID, "user", userID)
	return ch, nil
}
