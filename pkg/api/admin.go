package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"placeme/pkg/logger"
	"placeme/pkg/store"
	"placeme/pkg/utils"
)

// AdminStats reports live operational counters.
func (h *Handlers) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"store_ready": store.Ready(),
	}
	if h.Hub != nil {
		enq, deq, dropped := h.Hub.QueueStats()
		stats["realtime"] = map[string]interface{}{
			"clients":         h.Hub.ClientCount(),
			"online_users":    h.Hub.OnlineIDs(),
			"events_enqueued": enq,
			"events_dequeued": deq,
			"events_dropped":  dropped,
		}
	}
	utils.JSONWrite(w, http.StatusOK, stats)
}

// AdminRunRetention triggers one immediate retention sweep.
func (h *Handlers) AdminRunRetention(w http.ResponseWriter, r *http.Request) {
	if h.RunRetention == nil {
		utils.JSONError(w, http.StatusConflict, "retention disabled")
		return
	}
	n, err := h.RunRetention()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "retention sweep failed")
		return
	}
	logger.AuditLog("admin_retention_triggered", "purged", n)
	utils.JSONWrite(w, http.StatusOK, map[string]int{"purged": n})
}

// AdminDeleteMessage force-deletes any message regardless of sender.
func (h *Handlers) AdminDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.Svc.DeleteMessage("", id, true); err != nil {
		writeChatError(w, err)
		return
	}
	logger.AuditLog("admin_message_deleted", "id", id)
	utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "deleted"})
}
