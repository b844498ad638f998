package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	conversationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_conversations_created_total",
		Help: "Conversations created for a new visitor session.",
	})

	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_turns_total",
		Help: "Chat turns by outcome.",
	}, []string{"outcome"})

	contactsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_contacts_extracted_total",
		Help: "Visitor contact fields found in user messages.",
	}, []string{"field"})

	providerStreamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_provider_stream_duration_seconds",
		Help:    "Time from provider request to end of the relayed stream.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})
)

const (
	outcomeCompleted   = "completed"
	outcomeEmpty       = "empty"
	outcomeInterrupted = "interrupted"
	outcomeRejected    = "rejected"
	outcomeFailed      = "failed"
)
