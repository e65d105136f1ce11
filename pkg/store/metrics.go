package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricInsert = promauto.NewCounter(prometheus.CounterOpts{
		Name: "placeme_store_messages_inserted_total",
		Help: "Messages persisted to the store.",
	})
	metricFetch = promauto.NewCounter(prometheus.CounterOpts{
		Name: "placeme_store_fetches_total",
		Help: "Message fetch scans served by the store.",
	})
	metricMarkRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "placeme_store_messages_marked_read_total",
		Help: "Messages flipped to read.",
	})
	metricDelete = promauto.NewCounter(prometheus.CounterOpts{
		Name: "placeme_store_messages_deleted_total",
		Help: "Messages hard-deleted from the store.",
	})
)
