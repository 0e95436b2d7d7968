package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArchiveFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessvault_archive_files_total",
			Help: "Files visited while building folder archives, by result",
		},
		[]string{"result"},
	)

	ArchiveBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assessvault_archive_size_bytes",
			Help:    "Size of generated folder archives",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	DeletedItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessvault_deleted_items_total",
			Help: "Items removed by recursive folder deletes, by kind and result",
		},
		[]string{"kind", "result"},
	)

	DocumentsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessvault_documents_generated_total",
			Help: "Documents rendered from assessment JSON, by kind",
		},
		[]string{"kind"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "assessvault_http_request_duration_seconds",
			Help: "HTTP request latency by route and status",
		},
		[]string{"route", "status"},
	)
)
