// Package metrics declares the Prometheus collectors for the protest pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "erc_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erc_pipeline_runs_total",
			Help: "Total number of pipeline runs by result",
		},
		[]string{"result"},
	)

	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erc_pipeline_failures_total",
			Help: "Total number of pipeline failures by originating stage",
		},
		[]string{"stage"},
	)

	NavigationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erc_navigation_attempts_total",
			Help: "Navigation attempts by wait strategy and result",
		},
		[]string{"strategy", "result"},
	)

	TranscriptStrategy = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erc_transcript_strategy_total",
			Help: "Transcripts produced by each extraction strategy",
		},
		[]string{"strategy"},
	)

	AttachmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erc_attachments_total",
			Help: "Cited URLs processed by status",
		},
		[]string{"status"},
	)

	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erc_llm_requests_total",
			Help: "Generative model requests by provider and result",
		},
		[]string{"provider", "result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "erc_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		},
		[]string{"route", "code"},
	)

	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "erc_pipeline_active_runs",
			Help: "Number of pipeline runs in flight",
		},
	)
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)
