package export

import (
	"fmt"
	"strings"

	"firestige.xyz/usbrevue/internal/core"
)

// Text formats r as one line in the style of the usbmon text interface:
//
//	URB TIME EVENT TYPE:BUS:DEV:EP STATUS|SETUP LENGTH [= DATA|FLAG]
func Text(r *core.Record) string {
	var sb strings.Builder
	dir := "o"
	if r.IsIn() {
		dir = "i"
	}
	fmt.Fprintf(&sb, "%016x %d.%06d %c %s%s:%d:%03d:%d",
		r.URB, r.TsSec, r.TsUsec, r.EventType, r.XferType.Short(), dir,
		r.BusNum, r.DevNum, r.Endpoint())

	if s, err := r.Setup(); err == nil && r.FlagSetup == 0 {
		fmt.Fprintf(&sb, " s %s", s)
	} else {
		fmt.Fprintf(&sb, " %d", r.Status)
	}
	if n, err := r.Interval(); err == nil {
		fmt.Fprintf(&sb, ":%d", n)
	}
	fmt.Fprintf(&sb, " %d", r.Length())

	if data := r.Data(); len(data) > 0 {
		sb.WriteString(" =")
		for i := 0; i < len(data); i += 4 {
			fmt.Fprintf(&sb, " %x", data[i:min(i+4, len(data))])
		}
	} else if r.FlagData != 0 {
		fmt.Fprintf(&sb, " %c", r.FlagData)
	}
	return sb.String()
}
