package metrics

import (
	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Group label values for GroupFailuresTotal.
const (
	GroupAmounts = "amounts"
	GroupDates   = "dates"
	GroupFlags   = "flags"
)

// Metrics holds Prometheus metrics for ingestion and the API.
//
// Metrics:
//   - tracer_records_interpreted_total{category}
//   - tracer_group_failures_total{category, group}
//   - tracer_row_errors_total{category}
//   - tracer_documents_upserted_total{category}
//   - tracer_archives_total{category, status}
//   - tracer_archive_bytes{category}
//   - tracer_api_requests_total{code}
type Metrics struct {
	RecordsInterpretedTotal *prometheus.CounterVec
	GroupFailuresTotal      *prometheus.CounterVec
	RowErrorsTotal          *prometheus.CounterVec
	DocumentsUpsertedTotal  *prometheus.CounterVec
	ArchivesTotal           *prometheus.CounterVec
	ArchiveBytes            *prometheus.HistogramVec
	APIRequestsTotal        *prometheus.CounterVec
}

// New registers every collector on reg. Each registry may only be used once.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RecordsInterpretedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracer_records_interpreted_total",
				Help: "Total number of records run through interpretation",
			},
			[]string{"category"},
		),
		GroupFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracer_group_failures_total",
				Help: "Total number of field groups left uninterpreted",
			},
			[]string{"category", "group"},
		),
		RowErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracer_row_errors_total",
				Help: "Total number of CSV rows that could not be tokenized",
			},
			[]string{"category"},
		),
		DocumentsUpsertedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracer_documents_upserted_total",
				Help: "Total number of documents written to the store",
			},
			[]string{"category"},
		),
		ArchivesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracer_archives_total",
				Help: "Total number of archives by final status",
			},
			[]string{"category", "status"},
		),
		ArchiveBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracer_archive_bytes",
				Help:    "Size of downloaded archives in bytes",
				Buckets: prometheus.ExponentialBuckets(1<<16, 4, 8),
			},
			[]string{"category"},
		),
		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracer_api_requests_total",
				Help: "Total number of API requests by status code",
			},
			[]string{"code"},
		),
	}
}

// ObserveRecord counts one interpreted record and its failed groups.
func (m *Metrics) ObserveRecord(category models.Category, r models.Record) {
	c := string(category)
	m.RecordsInterpretedTotal.WithLabelValues(c).Inc()
	if !r.Flag(models.AmountsInterpreted) {
		m.GroupFailuresTotal.WithLabelValues(c, GroupAmounts).Inc()
	}
	if !r.Flag(models.DatesInterpreted) {
		m.GroupFailuresTotal.WithLabelValues(c, GroupDates).Inc()
	}
	if !r.Flag(models.BooleanFieldsInterpreted) {
		m.GroupFailuresTotal.WithLabelValues(c, GroupFlags).Inc()
	}
}
