// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Record stages.
const (
	StageRead        = "read"
	StageDecoded     = "decoded"
	StageSelected    = "selected"
	StageModified    = "modified"
	StagePassthrough = "passthrough"
	StageWritten     = "written"
)

var (
	// RecordsTotal counts records by command and pipeline stage
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usbrevue_records_total",
			Help: "Total number of records seen per pipeline stage",
		},
		[]string{"command", "stage"},
	)

	// ErrorsTotal counts record errors by command and error kind
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usbrevue_errors_total",
			Help: "Total number of record errors",
		},
		[]string{"command", "kind"},
	)

	// FieldChangesTotal counts rewritten fields by name
	FieldChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usbrevue_field_changes_total",
			Help: "Total number of record fields changed by rules",
		},
		[]string{"field"},
	)

	// RecordsByXferType counts decoded records by transfer type
	RecordsByXferType = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usbrevue_records_by_xfer_type_total",
			Help: "Total number of decoded records per transfer type",
		},
		[]string{"xfer_type"},
	)

	// RunDurationSeconds measures whole command runs
	RunDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "usbrevue_run_duration_seconds",
			Help:    "Duration of command runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		},
		[]string{"command"},
	)
)
