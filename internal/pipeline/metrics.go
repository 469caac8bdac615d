package pipeline

import (
	"sync/atomic"

	"firestige.xyz/usbrevue/internal/core"
	"firestige.xyz/usbrevue/internal/metrics"
)

// Metrics contains per-run counters and mirrors them to Prometheus.
type Metrics struct {
	command string

	Read        atomic.Uint64
	Decoded     atomic.Uint64
	Selected    atomic.Uint64
	Modified    atomic.Uint64
	Changes     atomic.Uint64
	Skipped     atomic.Uint64
	Passthrough atomic.Uint64
	Written     atomic.Uint64

	done atomic.Bool // source reached EOF
}

// NewMetrics creates a new metrics instance.
func NewMetrics(command string) *Metrics {
	return &Metrics{command: command}
}

// read counts a record and returns its 1-based position in the stream.
func (m *Metrics) read() uint64 {
	metrics.RecordsTotal.WithLabelValues(m.command, metrics.StageRead).Inc()
	return m.Read.Add(1)
}

func (m *Metrics) decoded(x core.XferType) {
	m.Decoded.Add(1)
	metrics.RecordsTotal.WithLabelValues(m.command, metrics.StageDecoded).Inc()
	metrics.RecordsByXferType.WithLabelValues(x.String()).Inc()
}

func (m *Metrics) selected() {
	m.Selected.Add(1)
	metrics.RecordsTotal.WithLabelValues(m.command, metrics.StageSelected).Inc()
}

func (m *Metrics) modified(changes []core.Change) {
	m.Modified.Add(1)
	m.Changes.Add(uint64(len(changes)))
	metrics.RecordsTotal.WithLabelValues(m.command, metrics.StageModified).Inc()
	for _, c := range changes {
		metrics.FieldChangesTotal.WithLabelValues(c.Field.String()).Inc()
	}
}

func (m *Metrics) failed(kind string) {
	m.Skipped.Add(1)
	metrics.ErrorsTotal.WithLabelValues(m.command, kind).Inc()
}

func (m *Metrics) written(passthrough bool) {
	m.Written.Add(1)
	metrics.RecordsTotal.WithLabelValues(m.command, metrics.StageWritten).Inc()
	if passthrough {
		m.Passthrough.Add(1)
		metrics.RecordsTotal.WithLabelValues(m.command, metrics.StagePassthrough).Inc()
	}
}

// Result returns a snapshot of the counters.
func (m *Metrics) Result() Result {
	return Result{
		Read:        m.Read.Load(),
		Decoded:     m.Decoded.Load(),
		Selected:    m.Selected.Load(),
		Modified:    m.Modified.Load(),
		Changes:     m.Changes.Load(),
		Skipped:     m.Skipped.Load(),
		Passthrough: m.Passthrough.Load(),
		Written:     m.Written.Load(),
	}
}

// Result summarizes a run.
type Result struct {
	Read        uint64
	Decoded     uint64
	Selected    uint64
	Modified    uint64 // records with at least one changed field
	Changes     uint64 // changed fields across all records
	Skipped     uint64 // records that failed under the skip policy
	Passthrough uint64 // failed records written unchanged
	Written     uint64
}
