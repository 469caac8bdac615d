// Package stats summarizes usbmon capture streams.
package stats

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"firestige.xyz/usbrevue/internal/core"
	"firestige.xyz/usbrevue/internal/filter"
)

// Collector accumulates a Summary one record at a time.
type Collector struct {
	filter  *filter.Filter
	offsets []int
	s       Summary
	byOff   map[int]*OffsetStats
}

// Summary is the result of a collection.
type Summary struct {
	Records       uint64            `yaml:"records"`
	Undecodable   uint64            `yaml:"undecodable"`
	Selector      string            `yaml:"selector,omitempty"`
	Matched       uint64            `yaml:"matched"`
	PayloadBytes  uint64            `yaml:"payload_bytes"`
	TransferBytes uint64            `yaml:"transfer_bytes"`
	ByXferType    map[string]uint64 `yaml:"by_xfer_type"`
	ByEventType   map[string]uint64 `yaml:"by_event_type"`
	ByDevice      map[string]uint64 `yaml:"by_device"`
	Offsets       []OffsetStats     `yaml:"offsets,omitempty"`
}

// OffsetStats tracks the range of one payload byte across matched records
// long enough to carry it.
type OffsetStats struct {
	Offset  int    `yaml:"offset"`
	Samples uint64 `yaml:"samples"`
	Min     uint8  `yaml:"min"`
	Max     uint8  `yaml:"max"`
}

// NewCollector creates a collector. f may be nil to match every record;
// offsets lists the payload bytes whose range is tracked.
func NewCollector(f *filter.Filter, offsets ...int) *Collector {
	c := &Collector{
		filter: f,
		byOff:  make(map[int]*OffsetStats),
		s: Summary{
			Selector:    f.String(),
			ByXferType:  make(map[string]uint64),
			ByEventType: make(map[string]uint64),
			ByDevice:    make(map[string]uint64),
		},
	}
	for _, off := range offsets {
		if _, dup := c.byOff[off]; dup || off < 0 {
			continue
		}
		c.offsets = append(c.offsets, off)
		c.byOff[off] = &OffsetStats{Offset: off}
	}
	sort.Ints(c.offsets)
	return c
}

// AddFrame decodes and adds a raw frame. Frames that do not decode are only
// counted.
func (c *Collector) AddFrame(frame []byte) {
	rec, err := core.DecodeFrame(frame)
	if err != nil {
		c.s.Records++
		c.s.Undecodable++
		return
	}
	c.Add(rec)
}

// Add adds a decoded record.
func (c *Collector) Add(r *core.Record) {
	c.s.Records++
	c.s.ByXferType[r.XferType.String()]++
	c.s.ByEventType[eventName(r.EventType)]++
	c.s.ByDevice[fmt.Sprintf("%d:%d", r.BusNum, r.DevNum)]++
	c.s.PayloadBytes += uint64(len(r.Data()))
	c.s.TransferBytes += uint64(r.Length())

	if !c.filter.Match(r) {
		return
	}
	c.s.Matched++

	data := r.Data()
	for _, off := range c.offsets {
		if off >= len(data) {
			continue
		}
		st := c.byOff[off]
		b := data[off]
		if st.Samples == 0 || b < st.Min {
			st.Min = b
		}
		if st.Samples == 0 || b > st.Max {
			st.Max = b
		}
		st.Samples++
	}
}

// Summary returns a snapshot of the collected statistics.
func (c *Collector) Summary() Summary {
	s := c.s
	s.ByXferType = copyMap(c.s.ByXferType)
	s.ByEventType = copyMap(c.s.ByEventType)
	s.ByDevice = copyMap(c.s.ByDevice)
	s.Offsets = make([]OffsetStats, 0, len(c.offsets))
	for _, off := range c.offsets {
		s.Offsets = append(s.Offsets, *c.byOff[off])
	}
	return s
}

// WriteYAML renders the summary as a YAML document.
func (s Summary) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return enc.Close()
}

// WriteText renders the summary as aligned text.
func (s Summary) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "records\t%s\n", humanize.Comma(int64(s.Records)))
	if s.Undecodable > 0 {
		fmt.Fprintf(tw, "undecodable\t%s\n", humanize.Comma(int64(s.Undecodable)))
	}
	if s.Selector != "" {
		fmt.Fprintf(tw, "matched\t%s/%s\t(%s)\n",
			humanize.Comma(int64(s.Matched)), humanize.Comma(int64(s.Records)), s.Selector)
	}
	fmt.Fprintf(tw, "payload\t%s\n", humanize.IBytes(s.PayloadBytes))
	fmt.Fprintf(tw, "transferred\t%s\n", humanize.IBytes(s.TransferBytes))

	section := func(title string, m map[string]uint64) {
		if len(m) == 0 {
			return
		}
		fmt.Fprintf(tw, "%s\n", title)
		for _, k := range sortedKeys(m) {
			fmt.Fprintf(tw, "  %s\t%s\n", k, humanize.Comma(int64(m[k])))
		}
	}
	section("by transfer type", s.ByXferType)
	section("by event type", s.ByEventType)
	section("by device (bus:dev)", s.ByDevice)

	if len(s.Offsets) > 0 {
		fmt.Fprintf(tw, "payload offsets\n")
		for _, o := range s.Offsets {
			if o.Samples == 0 {
				fmt.Fprintf(tw, "  data[%d]\tno samples\n", o.Offset)
				continue
			}
			fmt.Fprintf(tw, "  data[%d]\tmin=0x%02x\tmax=0x%02x\tsamples=%d\n", o.Offset, o.Min, o.Max, o.Samples)
		}
	}
	return tw.Flush()
}

func eventName(b byte) string {
	if b >= 0x21 && b <= 0x7e {
		return string(rune(b))
	}
	return fmt.Sprintf("0x%02x", b)
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyMap(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
