package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"firestige.xyz/usbrevue/internal/capture"
	"firestige.xyz/usbrevue/internal/core"
	"firestige.xyz/usbrevue/internal/log"
)

// Mismatch describes a record whose re-encoding differs from its input.
type Mismatch struct {
	Record uint64 // 1-based position in the stream
	Offset int    // first differing byte, -1 when the record did not decode
	Err    error
}

func (m Mismatch) String() string {
	if m.Err != nil {
		return fmt.Sprintf("record %d: %v", m.Record, m.Err)
	}
	return fmt.Sprintf("record %d: differs at offset %d", m.Record, m.Offset)
}

// CheckResult summarizes a round-trip check.
type CheckResult struct {
	Records    uint64
	Mismatches []Mismatch
}

// OK reports whether every record round-tripped.
func (r CheckResult) OK() bool { return len(r.Mismatches) == 0 }

// Check decodes and re-encodes every record of src and reports those whose
// bytes change. It stops early only on read errors or cancellation.
func Check(ctx context.Context, src capture.Source) (CheckResult, error) {
	var res CheckResult
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		data, _, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
		res.Records++
		if m, ok := checkFrame(res.Records, data); !ok {
			res.Mismatches = append(res.Mismatches, m)
		}
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"records":    res.Records,
		"mismatches": len(res.Mismatches),
	}).Info("check finished")
	return res, nil
}

func checkFrame(n uint64, frame []byte) (Mismatch, bool) {
	rec, err := core.DecodeFrame(frame)
	if err != nil {
		return Mismatch{Record: n, Offset: -1, Err: err}, false
	}
	out, err := core.Encode(rec)
	if err != nil {
		return Mismatch{Record: n, Offset: -1, Err: err}, false
	}
	if off := firstDiff(frame, out); off >= 0 {
		return Mismatch{Record: n, Offset: off}, false
	}
	return Mismatch{}, true
}

// firstDiff returns the first offset at which a and b differ, or -1.
func firstDiff(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	if len(a) != len(b) {
		return n
	}
	return -1
}
