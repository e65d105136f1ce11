package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"placeme/pkg/auth"
	"placeme/pkg/chat"
	"placeme/pkg/realtime"
	"placeme/pkg/store"
	"placeme/pkg/telemetry"
	"placeme/pkg/utils"
)

// Handlers carries the wired services the HTTP surface dispatches to.
// RunRetention is invoked by the admin trigger; nil disables it.
type Handlers struct {
	Svc          *chat.Service
	Hub          *realtime.Hub
	RunRetention func() (int, error)
}

// NewRouter builds the full route table. Gateway middleware is applied by
// the caller around the returned handler; health and metrics are mounted
// here so they stay inside the snapshot of one mux.
func NewRouter(h *Handlers, gw func(http.Handler) http.Handler) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !store.Ready() {
			utils.JSONError(w, http.StatusServiceUnavailable, "store not ready")
			return
		}
		utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ready"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	mountDocs(r)

	v1 := mux.NewRouter().PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/messages", h.SendMessage).Methods(http.MethodPost)
	v1.HandleFunc("/messages", h.ListMessages).Methods(http.MethodGet)
	v1.HandleFunc("/messages/read", h.MarkRead).Methods(http.MethodPost)
	v1.HandleFunc("/messages/{id}", h.GetMessage).Methods(http.MethodGet)
	v1.HandleFunc("/messages/{id}", h.DeleteMessage).Methods(http.MethodDelete)

	v1.HandleFunc("/conversations", h.ListConversations).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{counterparty}/open", h.OpenConversation).Methods(http.MethodPost)

	v1.HandleFunc("/channels", h.CreateChannel).Methods(http.MethodPost)
	v1.HandleFunc("/channels", h.ListChannels).Methods(http.MethodGet)
	v1.HandleFunc("/channels/{id}", h.GetChannel).Methods(http.MethodGet)
	v1.HandleFunc("/channels/{id}", h.DeleteChannel).Methods(http.MethodDelete)
	v1.HandleFunc("/channels/{id}/members", h.AddChannelMember).Methods(http.MethodPost)
	v1.HandleFunc("/channels/{id}/messages", h.ChannelMessages).Methods(http.MethodGet)

	v1.HandleFunc("/profiles", h.ListProfiles).Methods(http.MethodGet)
	v1.HandleFunc("/profiles/{id}", h.GetProfile).Methods(http.MethodGet)
	v1.Handle("/profiles/{id}", auth.RequireRole(http.HandlerFunc(h.PutProfile), auth.RoleBackend, auth.RoleAdmin)).Methods(http.MethodPut)

	v1.Handle("/sign", auth.RequireRole(http.HandlerFunc(h.SignIdentity), auth.RoleBackend, auth.RoleAdmin)).Methods(http.MethodPost)

	v1.HandleFunc("/realtime", h.Subscribe).Methods(http.MethodGet)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Handle("/stats", auth.RequireRole(http.HandlerFunc(h.AdminStats), auth.RoleAdmin)).Methods(http.MethodGet)
	admin.Handle("/retention/run", auth.RequireRole(http.HandlerFunc(h.AdminRunRetention), auth.RoleAdmin)).Methods(http.MethodPost)
	admin.Handle("/messages/{id}", auth.RequireRole(http.HandlerFunc(h.AdminDeleteMessage), auth.RoleAdmin)).Methods(http.MethodDelete)

	r.PathPrefix("/v1/").Handler(telemetry.Middleware(gw(v1)))
	return r
}
