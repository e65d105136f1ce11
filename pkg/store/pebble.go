package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"placeme/pkg/logger"
	"placeme/pkg/models"
)

var (
	db     *pebble.DB
	dbPath string
)

// seq reduces key collisions when multiple messages share the same
// nanosecond timestamp.
var seq uint64

// Open opens (or creates) a Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool { return db != nil }

var errNotOpen = fmt.Errorf("pebble not opened; call store.Open first")

// InsertMessage assigns id and timestamp, persists the canonical document
// and its index rows in a single synced batch and returns the stored
// message. A failed insert leaves no partial state behind.
func InsertMessage(m models.Message) (models.Message, error) {
	if db == nil {
		return models.Message{}, errNotOpen
	}
	if m.ID == "" {
		return models.Message{}, fmt.Errorf("message id required")
	}
	if m.CreatedTS == 0 {
		m.CreatedTS = time.Now().UTC().UnixNano()
	}
	m.IsRead = false
	m.SenderProfile, m.ReceiverProfile = nil, nil

	data, err := json.Marshal(m)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	s := atomic.AddUint64(&seq, 1)

	b := db.NewBatch()
	_ = b.Set(msgKey(m.ID), data, nil)
	idVal := []byte(m.ID)
	if m.Direct() {
		_ = b.Set(pairKey(m.Sender, m.Receiver, m.CreatedTS, s), idVal, nil)
		_ = b.Set(userKey(m.Sender, m.CreatedTS, s), idVal, nil)
		if m.Receiver != m.Sender {
			_ = b.Set(userKey(m.Receiver, m.CreatedTS, s), idVal, nil)
		}
	} else {
		_ = b.Set(channelMsgKey(m.Channel, m.CreatedTS, s), idVal, nil)
		_ = b.Set(userKey(m.Sender, m.CreatedTS, s), idVal, nil)
	}
	if err := db.Apply(b, pebble.Sync); err != nil {
		logger.Error("insert_message_failed", "id", m.ID, "error", err)
		return models.Message{}, err
	}
	metricInsert.Inc()
	logger.Info("message_inserted", "id", m.ID, "sender", m.Sender,
		"receiver", m.Receiver, "channel", m.Channel)

	// bump channel activity; best-effort
	if !m.Direct() {
		if ch, err := GetChannel(m.Channel); err == nil {
			ch.LastActivityTS = m.CreatedTS
			_ = SaveChannel(ch)
		}
	}
	return m, nil
}

// GetMessage returns the canonical document for a message id.
func GetMessage(id string) (models.Message, error) {
	var m models.Message
	if db == nil {
		return m, errNotOpen
	}
	v, closer, err := db.Get(msgKey(id))
	if err != nil {
		return m, err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := json.Unmarshal(v, &m); err != nil {
		return m, fmt.Errorf("invalid message JSON: %w", err)
	}
	return m, nil
}

// FetchForUser returns all messages where the user is sender or receiver,
// newest first, with sender/receiver profiles joined.
func FetchForUser(userID string) ([]models.Message, error) {
	ids, err := scanIndex(userPrefix(userID))
	if err != nil {
		return nil, err
	}
	// index order is oldest first; walk backwards for newest-first output
	out := make([]models.Message, 0, len(ids))
	cache := map[string]*models.Profile{}
	for i := len(ids) - 1; i >= 0; i-- {
		m, err := GetMessage(ids[i])
		if err != nil {
			// index row may outlive a hard-deleted canonical row
			continue
		}
		joinProfiles(&m, cache)
		out = append(out, m)
	}
	metricFetch.Inc()
	return out, nil
}

// FetchForPair returns all messages exchanged between exactly these two
// identities, oldest first (chronological reading order).
func FetchForPair(a, b string) ([]models.Message, error) {
	ids, err := scanIndex(pairPrefix(a, b))
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(ids))
	cache := map[string]*models.Profile{}
	for _, id := range ids {
		m, err := GetMessage(id)
		if err != nil {
			continue
		}
		joinProfiles(&m, cache)
		out = append(out, m)
	}
	metricFetch.Inc()
	return out, nil
}

// FetchForChannel returns a channel's messages oldest first.
func FetchForChannel(channelID string) ([]models.Message, error) {
	ids, err := scanIndex(channelMsgPrefix(channelID))
	if err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(ids))
	cache := map[string]*models.Profile{}
	for _, id := range ids {
		m, err := GetMessage(id)
		if err != nil {
			continue
		}
		joinProfiles(&m, cache)
		out = append(out, m)
	}
	metricFetch.Inc()
	return out, nil
}

// MarkRead flips the read flag on the given messages. It is idempotent:
// already-read rows are skipped. Partial failures are logged and do not
// roll back earlier flips.
func MarkRead(ids []string) error {
	if db == nil {
		return errNotOpen
	}
	for _, id := range ids {
		m, err := GetMessage(id)
		if err != nil {
			logger.Warn("mark_read_missing", "id", id, "error", err)
			continue
		}
		if m.IsRead {
			continue
		}
		m.IsRead = true
		data, err := json.Marshal(m)
		if err != nil {
			logger.Error("mark_read_marshal_failed", "id", id, "error", err)
			continue
		}
		if err := db.Set(msgKey(id), data, pebble.Sync); err != nil {
			logger.Error("mark_read_failed", "id", id, "error", err)
			continue
		}
		metricMarkRead.Inc()
	}
	return nil
}

// DeleteMessage hard-deletes a message and its index rows. Deleting an
// unknown id is a no-op.
func DeleteMessage(id string) error {
	if db == nil {
		return errNotOpen
	}
	m, err := GetMessage(id)
	if err != nil {
		// already gone; keep the operation idempotent
		logger.Debug("delete_message_missing", "id", id)
		return nil
	}
	b := db.NewBatch()
	_ = b.Delete(msgKey(id), nil)
	if m.Direct() {
		deleteIndexRows(b, pairPrefix(m.Sender, m.Receiver), id)
		deleteIndexRows(b, userPrefix(m.Sender), id)
		if m.Receiver != m.Sender {
			deleteIndexRows(b, userPrefix(m.Receiver), id)
		}
	} else {
		deleteIndexRows(b, channelMsgPrefix(m.Channel), id)
		deleteIndexRows(b, userPrefix(m.Sender), id)
	}
	if err := db.Apply(b, pebble.Sync); err != nil {
		logger.Error("delete_message_failed", "id", id, "error", err)
		return err
	}
	metricDelete.Inc()
	logger.Info("message_deleted", "id", id)
	return nil
}

// PurgeOlderThan hard-deletes messages created before cutoff (ns). At most
// batchSize rows are removed per call; the number deleted is returned so
// the retention runner can loop until done.
func PurgeOlderThan(cutoff int64, batchSize int) (int, error) {
	if db == nil {
		return 0, errNotOpen
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	prefix := []byte("msg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	var victims []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		if m.CreatedTS < cutoff {
			victims = append(victims, m.ID)
			if len(victims) >= batchSize {
				break
			}
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	for _, id := range victims {
		if err := DeleteMessage(id); err != nil {
			return 0, err
		}
	}
	return len(victims), nil
}

// scanIndex collects message ids under an index prefix in key order.
func scanIndex(prefix string) ([]string, error) {
	if db == nil {
		return nil, errNotOpen
	}
	p := []byte(prefix)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var ids []string
	for iter.SeekGE(p); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), p) {
			break
		}
		ids = append(ids, string(iter.Value()))
	}
	return ids, iter.Error()
}

// deleteIndexRows queues deletes for every index row under prefix whose
// value is the given message id.
func deleteIndexRows(b *pebble.Batch, prefix, id string) {
	p := []byte(prefix)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return
	}
	defer iter.Close()
	for iter.SeekGE(p); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), p) {
			break
		}
		if string(iter.Value()) == id {
			k := append([]byte(nil), iter.Key()...)
			_ = b.Delete(k, nil)
		}
	}
}

// joinProfiles attaches display attributes for sender/receiver, caching
// lookups for the duration of one fetch.
func joinProfiles(m *models.Message, cache map[string]*models.Profile) {
	lookup := func(id string) *models.Profile {
		if id == "" {
			return nil
		}
		if p, ok := cache[id]; ok {
			return p
		}
		p, err := GetProfile(id)
		if err != nil {
			cache[id] = nil
			return nil
		}
		cache[id] = &p
		return &p
	}
	m.SenderProfile = lookup(m.Sender)
	m.ReceiverProfile = lookup(m.Receiver)
}
