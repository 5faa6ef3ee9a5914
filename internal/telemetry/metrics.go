// Package telemetry holds the process-wide prometheus instruments, exposed
// on /metrics by the HTTP server.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doclens_llm_calls_total",
		Help: "Generation calls by backend, purpose bucket and outcome.",
	}, []string{"provider", "purpose", "outcome"})

	generationTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doclens_llm_tokens_total",
		Help: "Tokens consumed by generation calls.",
	}, []string{"provider", "purpose", "direction"})

	generationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "doclens_llm_latency_seconds",
		Help:    "Generation call latency.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"provider", "purpose"})

	documentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "doclens_documents_processed_total",
		Help: "Upload pipeline runs by final document status.",
	}, []string{"status"})
)

// ObserveGeneration records one generation attempt.
func ObserveGeneration(provider, purpose string, ok bool, inputTokens, outputTokens int64, latency time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	generationCalls.WithLabelValues(provider, purpose, outcome).Inc()
	generationTokens.WithLabelValues(provider, purpose, "input").Add(float64(inputTokens))
	generationTokens.WithLabelValues(provider, purpose, "output").Add(float64(outputTokens))
	generationLatency.WithLabelValues(provider, purpose).Observe(latency.Seconds())
}

// ObserveDocumentProcessed records one upload pipeline completion.
func ObserveDocumentProcessed(status string) {
	documentsProcessed.WithLabelValues(status).Inc()
}
