package adapters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "nwbio_store",
		Name:      "chunks",
		Help:      "Dataset chunks moved between the store and memory.",
	}, []string{"op"})

	storeBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "nwbio_store",
		Name:      "bytes",
		Help:      "Compressed chunk bytes moved between the store and memory.",
	}, []string{"op"})

	chunkCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "nwbio_store",
		Name:      "chunk_cache",
		Help:      "Chunk cache lookups by result.",
	}, []string{"result"})

	storeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "nwbio_store",
		Name:      "open_sessions",
		Help:      "Store sessions currently open.",
	})
)
