package api

import (
	"encoding/json"
	"fmt"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"placeme/pkg/auth"
	"placeme/pkg/chat"
	"placeme/pkg/config"
	"placeme/pkg/logger"
	"placeme/pkg/models"
	"placeme/pkg/realtime"
	"placeme/pkg/store"
	"placeme/pkg/utils"
	"placeme/pkg/validation"
)

// sendRequest is the body of POST /v1/messages. Exactly one of ReceiverID
// and ChannelID must be set.
type sendRequest struct {
	ReceiverID string `json:"receiver_id"`
	ChannelID  string `json:"channel_id"`
	Content    string `json:"content"`
}

// SendMessage persists a message from the authenticated author to a
// counterparty or channel and returns the stored row.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	author, err := auth.ResolveAuthorFromRequest(r)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var target models.ThreadRef
	switch {
	case req.ReceiverID != "" && req.ChannelID == "":
		target = models.DirectThread(req.ReceiverID)
	case req.ChannelID != "" && req.ReceiverID == "":
		target = models.ChannelThread(req.ChannelID)
	default:
		utils.JSONError(w, http.StatusBadRequest, "exactly one of receiver_id or channel_id is required")
		return
	}
	m, err := h.Svc.SendMessage(author, target, req.Content)
	if err != nil {
		writeChatError(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusCreated, m)
}

// ListMessages returns the authenticated author's full flat history,
// newest first. With ?with=<id> it returns the pair's history with that
// counterparty instead, oldest first, without touching read state.
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	author, err := auth.ResolveAuthorFromRequest(r)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if with := r.URL.Query().Get("with"); with != "" {
		if err := validation.ValidateIdentity("with", with); err != nil {
			utils.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		msgs, err := store.FetchForPair(author, with)
		if err != nil {
			writeChatError(w, &chat.StoreError{Op: "fetch_for_pair", Err: err})
			return
		}
		utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"messages": msgs})
		return
	}
	msgs, err := store.FetchForUser(author)
	if err != nil {
		writeChatError(w, &chat.StoreError{Op: "fetch_for_user", Err: err})
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

// GetMessage returns a single message the author participates in.
func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	author, err := auth.ResolveAuthorFromRequest(r)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id := mux.Vars(r)["id"]
	m, err := store.GetMessage(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "message not found")
		return
	}
	if m.Direct() && m.Sender != author && m.Receiver != author {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	utils.JSONWrite(w, http.StatusOK, m)
}

// DeleteMessage removes the author's own message.
func (h *Handlers) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	author, err := auth.ResolveAuthorFromRequest(r)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := h.Svc.DeleteMessage(author, mux.Vars(r)["id"], false); err != nil {
		writeChatError(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

// MarkRead flips the listed messages to read for the authenticated
// receiver.
func (h *Handlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	author, err := auth.ResolveAuthorFromRequest(r)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	n, err := h.Svc.MarkMessagesRead(author, req.IDs)
	if err != nil {
		writeChatError(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]int{"marked": n})
}

// ListConversations returns the author's aggregated conversation list.
func (h *Handlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	author, err := auth.ResolveAuthorFromRequest(r)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, err.Error())
		return
	}
	convs, err := h.Svc.Conversations(author)
	if err != nil {
		writeChatError(w, err)
		return
	}
	if h.Hub != nil {
		for i := range convs {
			convs[i].Contact.Online = h.Hub.Online(convs[i].Contact.ID)
		}
	}
	utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"conversations": convs})
}

// OpenConversation returns the thread history with the named counterparty
// and flips unread inbound messages to read.
func (h *Handlers) OpenConversation(w http.ResponseWriter, r *http.Request) {
	author, err := auth.ResolveAuthorFromRequest(r)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, err.Error())
		return
	}
	counterparty := mux.Vars(r)["counterparty"]
	msgs, err := h.Svc.OpenConversation(author, models.DirectThread(counterparty))
	if err != nil {
		writeChatError(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

type channelRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
}

// CreateChannel creates a channel owned by the author, who is always a
// member.
func (h *Handlers) CreateChannel(w http.ResponseWriter, r *http.Request) {
	author, err := auth.ResolveAuthorFromRequest(r)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req channelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		utils.JSONError(w, http.StatusBadRequest, "name is required")
		return
	}
	ch := models.Channel{
		ID:          utils.GenChannelID(),
		Name:        req.Name,
		Description: req.Description,
		Author:      author,
		Members:     []string{author},
	}
	for _, m := range req.Members {
		if m != author && !ch.HasMember(m) {
			ch.Members = append(ch.Members, m)
		}
	}
	if err := store.SaveChannel(ch); err != nil {
		writeChatError(w, &chat.StoreError{Op: "save_channel", Err: err})
		return
	}
	utils.JSONWrite(w, http.StatusCreated, ch)
}

// ListChannels returns every channel's metadata. When the caller's
// identity resolves and they belong to a channel, its per-caller unread
// count is included.
func (h *Handlers) ListChannels(w http.ResponseWriter, r *http.Request) {
	chs, err := store.ListChannels()
	if err != nil {
		writeChatError(w, &chat.StoreError{Op: "list_channels", Err: err})
		return
	}
	if author, err := auth.ResolveAuthorFromRequest(r); err == nil {
		for i := range chs {
			chs[i].Unread = channelUnread(author, chs[i])
		}
	}
	utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"channels": chs})
}

// GetChannel returns one channel's metadata with the caller's unread count.
func (h *Handlers) GetChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := store.GetChannel(mux.Vars(r)["id"])
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "channel not found")
		return
	}
	if author, err := auth.ResolveAuthorFromRequest(r); err == nil {
		ch.Unread = channelUnread(author, ch)
	}
	utils.JSONWrite(w, http.StatusOK, ch)
}

// channelUnread derives the caller's unread count for a channel they
// belong to. Non-members and fetch failures yield zero.
func channelUnread(author string, ch models.Channel) int {
	if !ch.HasMember(author) {
		return 0
	}
	msgs, err := store.FetchForChannel(ch.ID)
	if err != nil {
		return 0
	}
	return chat.UnreadFor(author, msgs)
}

// DeleteChannel removes a channel with all its messages. Only the channel
// author or an admin key may delete it; an unknown id is a no-op.
func (h *Handlers) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	author, err := auth.ResolveAuthorFromRequest(r)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id := mux.Vars(r)["id"]
	ch, err := store.GetChannel(id)
	if err != nil {
		utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "deleted"})
		return
	}
	role, _ := auth.RoleFromContext(r.Context())
	if ch.Author != author && role != auth.RoleAdmin {
		utils.JSONError(w, http.StatusForbidden, "only the channel author may delete it")
		return
	}
	if err := store.DeleteChannel(id); err != nil {
		writeChatError(w, &chat.StoreError{Op: "delete_channel", Err: err})
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type memberRequest struct {
	UserID string `json:"user_id"`
}

// AddChannelMember adds a user to a channel. Only members may add others.
func (h *Handlers) AddChannelMember(w http.ResponseWriter, r *http.Request) {
	author, err := auth.ResolveAuthorFromRequest(r)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validation.ValidateIdentity("user_id", req.UserID); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := mux.Vars(r)["id"]
	ch, err := store.GetChannel(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "channel not found")
		return
	}
	if !ch.HasMember(author) {
		utils.JSONError(w, http.StatusForbidden, "only members may add members")
		return
	}
	ch, err = store.AddChannelMember(id, req.UserID)
	if err != nil {
		writeChatError(w, &chat.StoreError{Op: "add_member", Err: err})
		return
	}
	utils.JSONWrite(w, http.StatusOK, ch)
}

// ChannelMessages returns a channel's history, oldest first, flipping the
// member's unread rows to read. Membership is enforced by the service.
func (h *Handlers) ChannelMessages(w http.ResponseWriter, r *http.Request) {
	author, err := auth.ResolveAuthorFromRequest(r)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, err.Error())
		return
	}
	msgs, err := h.Svc.OpenConversation(author, models.ChannelThread(mux.Vars(r)["id"]))
	if err != nil {
		writeChatError(w, err)
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

type profileRequest struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Role      string `json:"role"`
}

// PutProfile upserts a user's display profile (backend surface).
func (h *Handlers) PutProfile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := validation.ValidateIdentity("id", id); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p := models.Profile{ID: id, Name: req.Name, AvatarURL: req.AvatarURL, Role: req.Role}
	if err := store.SaveProfile(p); err != nil {
		writeChatError(w, &chat.StoreError{Op: "save_profile", Err: err})
		return
	}
	utils.JSONWrite(w, http.StatusOK, p)
}

// GetProfile returns a stored profile with its live online flag.
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := store.GetProfile(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "profile not found")
		return
	}
	if h.Hub != nil {
		p.Online = h.Hub.Online(id)
	}
	utils.JSONWrite(w, http.StatusOK, p)
}

// ListProfiles returns every stored profile with live online flags.
func (h *Handlers) ListProfiles(w http.ResponseWriter, r *http.Request) {
	ps, err := store.ListProfiles()
	if err != nil {
		writeChatError(w, &chat.StoreError{Op: "list_profiles", Err: err})
		return
	}
	if h.Hub != nil {
		for i := range ps {
			ps[i].Online = h.Hub.Online(ps[i].ID)
		}
	}
	utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"profiles": ps})
}

type signRequest struct {
	UserID string `json:"user_id"`
}

// SignIdentity mints a frontend signature for a user identity (backend
// surface).
func (h *Handlers) SignIdentity(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validation.ValidateIdentity("user_id", req.UserID); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	var key string
	for k := range config.GetSigningKeys() {
		key = k
		break
	}
	if key == "" {
		utils.JSONError(w, http.StatusServiceUnavailable, "no signing keys configured")
		return
	}
	sig := auth.SignUserID(key, req.UserID)
	logger.AuditLog("identity_signature_minted", "user", req.UserID)
	utils.JSONWrite(w, http.StatusOK, map[string]string{"user_id": req.UserID, "signature": sig})
}

// Subscribe upgrades the request to the websocket change feed for the
// authenticated user.
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	author, err := auth.ResolveAuthorFromRequest(r)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := h.Hub.ServeWS(w, r, author); err != nil {
		var se *realtime.SubscriptionError
		if errors.As(err, &se) {
			logger.Warn("subscription_failed", "user", author, "status", se.Status, "error", se.Err)
		}
		// Upgrade failures already wrote a response.
	}
}

// writeChatError maps service errors onto HTTP statuses.
func writeChatError(w http.ResponseWriter, err error) {
	var ve *chat.ValidationError
	var se *chat.StoreError
	switch {
	case errors.As(err, &ve):
		utils.JSONError(w, http.StatusBadRequest, ve.Reason)
	case errors.Is(err, chat.ErrNotMember):
		utils.JSONError(w, http.StatusForbidden, "not a channel member")
	case errors.Is(err, chat.ErrNotFound):
		utils.JSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, chat.ErrStaleFetch):
		utils.JSONError(w, http.StatusConflict, "superseded by a newer fetch")
	case errors.As(err, &se):
		logger.Error("store_error", "op", se.Op, "error", se.Err)
		utils.JSONError(w, http.StatusInternalServerError, "storage failure")
	default:
		utils.JSONError(w, http.StatusInternalServerError, "internal error")
	}
}
