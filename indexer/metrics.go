package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScannerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "scanner",
		Name:      "state",
		Help:      "Shows 1 for the current state of the historical scanner.",
	}, []string{"chain_id", "address", "state"})
	ScannerHeadBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "scanner",
		Name:      "head_block",
		Help:      "Chain head observed at the start of the historical pass, minus confirmations.",
	}, []string{"chain_id", "address"})
	ScannerScannedBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "indexer",
		Subsystem: "scanner",
		Name:      "scanned_block",
		Help:      "Last block of the latest chunk handed to the event queue.",
	}, []string{"chain_id", "address"})
	EnqueuedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "events",
		Name:      "enqueued_total",
		Help:      "Transfer events submitted to the queue by source and result.",
	}, []string{"source", "result"})
	DroppedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Transfer events dropped before enqueueing by source and reason.",
	}, []string{"source", "reason"})
	Resubscriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "subscriber",
		Name:      "resubscriptions_total",
		Help:      "Number of attempts to re-establish the live logs subscription.",
	}, []string{"chain_id", "address"})
	PersistedTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "persister",
		Name:      "transfers_total",
		Help:      "Transfers handled by the persister, by whether a new row was written.",
	}, []string{"result"})
	TimestampLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "indexer",
		Subsystem: "timestamps",
		Name:      "lookups_total",
		Help:      "Block timestamp lookups by the level that answered them.",
	}, []string{"source"})
)
