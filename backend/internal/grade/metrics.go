package grade

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Upload outcomes and posting kinds
const (
	UploadAccepted          = "accepted"
	UploadRejected          = "rejected"
	UploadNeedsConfirmation = "needs_confirmation"

	PostingFirst   = "first"
	PostingRepost  = "repost"
	PostingBlocked = "blocked"
)

// Metrics holds the pipeline's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	uploads      *prometheus.CounterVec
	postings     *prometheus.CounterVec
	postedGrades prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_upload_validations_total",
			Help: "Total grade sheet validations by outcome.",
		}, []string{"outcome"}),
		postings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_postings_total",
			Help: "Total posting attempts by kind.",
		}, []string{"kind"}),
		postedGrades: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grading_posted_quarterly_grade",
			Help:    "Distribution of posted transmuted quarterly grades.",
			Buckets: prometheus.LinearBuckets(60, 5, 8),
		}),
	}

	m.registry.MustRegister(
		m.uploads,
		m.postings,
		m.postedGrades,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry for scraping
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveUpload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePosting(kind string) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObservePostedGrade(grade int) {
	if m == nil || grade <= 0 {
		return
	}
	m.postedGrades.Observe(float64(grade))
}
