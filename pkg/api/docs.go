package api

import (
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
)

// openapiDoc is served at /docs/doc.json and rendered by the swagger UI.
// It covers the public surface; admin routes are deliberately undocumented.
const openapiDoc = `{
  "swagger": "2.0",
  "info": {"title": "PlaceMe Messaging API", "version": "1.0"},
  "basePath": "/v1",
  "paths": {
    "/messages": {
      "post": {"summary": "Send a message to a counterparty or channel"},
      "get": {"summary": "Fetch the caller's history, newest first; ?with=<id> narrows to one pair, oldest first"}
    },
    "/messages/read": {"post": {"summary": "Mark messages as read"}},
    "/messages/{id}": {
      "get": {"summary": "Fetch one message"},
      "delete": {"summary": "Delete the caller's own message"}
    },
    "/conversations": {"get": {"summary": "Aggregated conversation list"}},
    "/conversations/{counterparty}/open": {"post": {"summary": "Open a thread and mark inbound messages read"}},
    "/channels": {
      "post": {"summary": "Create a channel"},
      "get": {"summary": "List channels"}
    },
    "/channels/{id}": {
      "get": {"summary": "Channel metadata with the caller's unread count"},
      "delete": {"summary": "Delete a channel and its messages (author or admin)"}
    },
    "/channels/{id}/members": {"post": {"summary": "Add a channel member"}},
    "/channels/{id}/messages": {"get": {"summary": "Channel history, oldest first"}},
    "/profiles": {"get": {"summary": "List profiles with online flags"}},
    "/profiles/{id}": {
      "get": {"summary": "Fetch one profile"},
      "put": {"summary": "Upsert a profile (backend only)"}
    },
    "/sign": {"post": {"summary": "Mint a frontend identity signature (backend only)"}},
    "/realtime": {"get": {"summary": "Websocket change feed"}}
  }
}`

func mountDocs(r *mux.Router) {
	r.HandleFunc("/docs/doc.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(openapiDoc))
	}).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))
}
