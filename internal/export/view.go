// Package export renders decoded usbmon records in text and structured
// formats.
package export

import (
	"encoding/hex"
	"fmt"

	"firestige.xyz/usbrevue/internal/core"
)

// View is the exported form of a record. Gated fields are nil unless the
// record's transfer type carries them.
type View struct {
	URB        string `json:"urb" yaml:"urb" cbor:"urb" msgpack:"urb"`
	EventType  string `json:"event_type" yaml:"event_type" cbor:"event_type" msgpack:"event_type"`
	XferType   string `json:"xfer_type" yaml:"xfer_type" cbor:"xfer_type" msgpack:"xfer_type"`
	EpNum      uint8  `json:"epnum" yaml:"epnum" cbor:"epnum" msgpack:"epnum"`
	Direction  string `json:"direction" yaml:"direction" cbor:"direction" msgpack:"direction"`
	DevNum     uint8  `json:"devnum" yaml:"devnum" cbor:"devnum" msgpack:"devnum"`
	BusNum     uint16 `json:"busnum" yaml:"busnum" cbor:"busnum" msgpack:"busnum"`
	FlagSetup  uint8  `json:"flag_setup" yaml:"flag_setup" cbor:"flag_setup" msgpack:"flag_setup"`
	FlagData   uint8  `json:"flag_data" yaml:"flag_data" cbor:"flag_data" msgpack:"flag_data"`
	TsSec      int64  `json:"ts_sec" yaml:"ts_sec" cbor:"ts_sec" msgpack:"ts_sec"`
	TsUsec     int32  `json:"ts_usec" yaml:"ts_usec" cbor:"ts_usec" msgpack:"ts_usec"`
	Status     int32  `json:"status" yaml:"status" cbor:"status" msgpack:"status"`
	Length     uint32 `json:"length" yaml:"length" cbor:"length" msgpack:"length"`
	LenCap     uint32 `json:"len_cap" yaml:"len_cap" cbor:"len_cap" msgpack:"len_cap"`
	Setup      string `json:"setup,omitempty" yaml:"setup,omitempty" cbor:"setup,omitempty" msgpack:"setup,omitempty"`
	ErrorCount *int32 `json:"error_count,omitempty" yaml:"error_count,omitempty" cbor:"error_count,omitempty" msgpack:"error_count,omitempty"`
	NumDesc    *int32 `json:"numdesc,omitempty" yaml:"numdesc,omitempty" cbor:"numdesc,omitempty" msgpack:"numdesc,omitempty"`
	Interval   *int32 `json:"interval,omitempty" yaml:"interval,omitempty" cbor:"interval,omitempty" msgpack:"interval,omitempty"`
	StartFrame *int32 `json:"start_frame,omitempty" yaml:"start_frame,omitempty" cbor:"start_frame,omitempty" msgpack:"start_frame,omitempty"`
	XferFlags  uint32 `json:"xfer_flags" yaml:"xfer_flags" cbor:"xfer_flags" msgpack:"xfer_flags"`
	NDesc      uint32 `json:"ndesc" yaml:"ndesc" cbor:"ndesc" msgpack:"ndesc"`
	Data       string `json:"data" yaml:"data" cbor:"data" msgpack:"data"`
}

// NewView builds the exported form of r.
func NewView(r *core.Record) View {
	v := View{
		URB:       fmt.Sprintf("0x%016x", r.URB),
		EventType: string(rune(r.EventType)),
		XferType:  r.XferType.String(),
		EpNum:     r.EpNum,
		Direction: "out",
		DevNum:    r.DevNum,
		BusNum:    r.BusNum,
		FlagSetup: r.FlagSetup,
		FlagData:  r.FlagData,
		TsSec:     r.TsSec,
		TsUsec:    r.TsUsec,
		Status:    r.Status,
		Length:    r.Length(),
		LenCap:    r.LenCap(),
		XferFlags: r.XferFlags,
		NDesc:     r.NDesc,
		Data:      hex.EncodeToString(r.Data()),
	}
	if r.IsIn() {
		v.Direction = "in"
	}
	if s, err := r.Setup(); err == nil {
		v.Setup = hex.EncodeToString(s[:])
	}
	v.ErrorCount = gated(r.ErrorCount)
	v.NumDesc = gated(r.NumDesc)
	v.Interval = gated(r.Interval)
	v.StartFrame = gated(r.StartFrame)
	return v
}

func gated(get func() (int32, error)) *int32 {
	v, err := get()
	if err != nil {
		return nil
	}
	return &v
}

// fields returns the view as a flat map of protobuf-compatible scalars.
func (v View) fields() map[string]interface{} {
	m := map[string]interface{}{
		"urb":        v.URB,
		"event_type": v.EventType,
		"xfer_type":  v.XferType,
		"epnum":      uint32(v.EpNum),
		"direction":  v.Direction,
		"devnum":     uint32(v.DevNum),
		"busnum":     uint32(v.BusNum),
		"flag_setup": uint32(v.FlagSetup),
		"flag_data":  uint32(v.FlagData),
		"ts_sec":     v.TsSec,
		"ts_usec":    v.TsUsec,
		"status":     v.Status,
		"length":     v.Length,
		"len_cap":    v.LenCap,
		"xfer_flags": v.XferFlags,
		"ndesc":      v.NDesc,
		"data":       v.Data,
	}
	if v.Setup != "" {
		m["setup"] = v.Setup
	}
	for k, p := range map[string]*int32{
		"error_count": v.ErrorCount,
		"numdesc":     v.NumDesc,
		"interval":    v.Interval,
		"start_frame": v.StartFrame,
	} {
		if p != nil {
			m[k] = *p
		}
	}
	return m
}
