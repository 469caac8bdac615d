// Package pipeline rewrites usbmon capture streams record by record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/segmentio/ksuid"

	"firestige.xyz/usbrevue/internal/capture"
	"firestige.xyz/usbrevue/internal/config"
	"firestige.xyz/usbrevue/internal/core"
	"firestige.xyz/usbrevue/internal/filter"
	"firestige.xyz/usbrevue/internal/log"
	"firestige.xyz/usbrevue/internal/metrics"
	"firestige.xyz/usbrevue/internal/rule"
)

// Modifier applies a rule set to the selected records of a capture stream
// and writes every record, changed or not, in input order.
type Modifier struct {
	rules      *rule.Set
	filter     *filter.Filter
	onError    string
	verbose    bool
	bufferSize int
	command    string

	runID   ksuid.KSUID
	log     log.Logger
	metrics *Metrics
}

// Config contains modifier configuration.
type Config struct {
	Rules      *rule.Set
	Filter     *filter.Filter // nil selects every record
	OnError    string         // config.OnErrorAbort or config.OnErrorSkip
	Verbose    bool           // log every changed field
	BufferSize int            // read-ahead channel size
	Command    string         // metrics label
}

type frame struct {
	data []byte
	ci   gopacket.CaptureInfo
}

// New creates a new modifier.
func New(cfg Config) *Modifier {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.OnError == "" {
		cfg.OnError = config.OnErrorAbort
	}
	if cfg.Rules == nil {
		cfg.Rules = rule.NewSet()
	}
	if cfg.Command == "" {
		cfg.Command = "modify"
	}

	runID := ksuid.New()
	return &Modifier{
		rules:      cfg.Rules,
		filter:     cfg.Filter,
		onError:    cfg.OnError,
		verbose:    cfg.Verbose,
		bufferSize: cfg.BufferSize,
		command:    cfg.Command,
		runID:      runID,
		log:        log.GetLogger().WithField("run_id", runID.String()),
		metrics:    NewMetrics(cfg.Command),
	}
}

// RunID identifies this modifier in logs.
func (m *Modifier) RunID() string { return m.runID.String() }

// Run copies src to dst until src is exhausted, ctx is cancelled, or a record
// fails under the abort policy. The returned Result is valid in every case.
func (m *Modifier) Run(ctx context.Context, src capture.Source, dst capture.Sink) (Result, error) {
	start := time.Now()
	m.log.WithFields(map[string]interface{}{
		"rules":    m.rules.Len(),
		"select":   m.filter.String(),
		"on_error": m.onError,
	}).Info("modify started")

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan frame, m.bufferSize)
	readErr := make(chan error, 1)
	go m.readLoop(readCtx, src, frames, readErr)

	var err error
	for fr := range frames {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = m.processFrame(fr, dst); err != nil {
			break
		}
	}
	cancel()
	// wait for readLoop so src is not read after Run returns
	for range frames {
	}

	if err == nil {
		select {
		case err = <-readErr:
		default:
			if !m.metrics.done.Load() {
				err = ctx.Err()
			}
		}
	}

	res := m.metrics.Result()
	metrics.RunDurationSeconds.WithLabelValues(m.command).Observe(time.Since(start).Seconds())
	entry := m.log.WithFields(map[string]interface{}{
		"read":     res.Read,
		"modified": res.Modified,
		"changes":  res.Changes,
		"skipped":  res.Skipped,
		"written":  res.Written,
	})
	if err != nil {
		entry.WithError(err).Error("modify failed")
		return res, err
	}
	entry.Info("modify finished")
	return res, nil
}

// readLoop feeds frames in stream order and closes out when src is exhausted.
func (m *Modifier) readLoop(ctx context.Context, src capture.Source, out chan<- frame, errc chan<- error) {
	defer close(out)
	for {
		data, ci, err := src.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				m.metrics.done.Store(true)
			} else {
				errc <- err
			}
			return
		}
		select {
		case out <- frame{data: data, ci: ci}:
		case <-ctx.Done():
			return
		}
	}
}

// processFrame handles one record. Frames that are not selected, or that
// fail under the skip policy, are written unchanged.
func (m *Modifier) processFrame(fr frame, dst capture.Sink) error {
	n := m.metrics.read()

	rec, err := core.DecodeFrame(fr.data)
	if err != nil {
		return m.fail(n, fr, dst, err)
	}
	m.metrics.decoded(rec.XferType)

	if !m.filter.Match(rec) {
		return m.write(fr.ci, fr.data, dst, false)
	}
	m.metrics.selected()

	mod := rec.Clone()
	if _, err := m.rules.Apply(mod); err != nil {
		return m.fail(n, fr, dst, err)
	}

	out := fr.data
	if changes := mod.Diff(rec); len(changes) > 0 {
		if out, err = core.Encode(mod); err != nil {
			return m.fail(n, fr, dst, err)
		}
		m.metrics.modified(changes)
		if m.verbose {
			for _, c := range changes {
				m.log.WithFields(map[string]interface{}{
					"record": n,
					"field":  c.Field.String(),
					"old":    c.Old,
					"new":    c.New,
				}).Info("field changed")
			}
		}
	}
	return m.write(fr.ci, out, dst, false)
}

// fail applies the error policy to a record that could not be processed.
func (m *Modifier) fail(n uint64, fr frame, dst capture.Sink, err error) error {
	kind := core.ErrorKind(err)
	m.metrics.failed(kind)
	if m.onError != config.OnErrorSkip {
		return fmt.Errorf("record %d: %w", n, err)
	}
	m.log.WithError(err).WithFields(map[string]interface{}{
		"record": n,
		"kind":   kind,
	}).Warn("record skipped, writing original")
	return m.write(fr.ci, fr.data, dst, true)
}

func (m *Modifier) write(ci gopacket.CaptureInfo, data []byte, dst capture.Sink, passthrough bool) error {
	if err := dst.WritePacket(ci, data); err != nil {
		return err
	}
	m.metrics.written(passthrough)
	return nil
}
