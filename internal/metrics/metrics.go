package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examflow_tokens_issued_total",
			Help: "Total number of access tokens issued",
		},
		[]string{"kind"},
	)

	TokenValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examflow_token_validations_total",
			Help: "Token validations by outcome reason",
		},
		[]string{"reason"},
	)

	SessionClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examflow_session_claims_total",
			Help: "Session claim attempts by outcome reason",
		},
		[]string{"reason"},
	)

	SubmissionScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "examflow_submission_percentage",
			Help:    "Distribution of submission percentages",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"status"},
	)

	QuestionGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examflow_question_generations_total",
			Help: "Question generation runs by generator",
		},
		[]string{"generator"},
	)

	MonitorEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examflow_monitor_events_total",
			Help: "Proctoring events received",
		},
		[]string{"event_type", "severity"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "examflow_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)
