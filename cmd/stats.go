package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/usbrevue/internal/config"
	"firestige.xyz/usbrevue/internal/filter"
	"firestige.xyz/usbrevue/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize a capture",
	Long: `Count the records of a usbmon capture by transfer type, event type and
device, total the payload and transfer bytes, and track the range of selected
payload bytes.

Examples:
  usbrevue stats -i in.pcap
  usbrevue stats -i in.pcap --match "xfer_type==3" --offset 0 --offset 1 --format yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats(cmd.Context(), globalCfg, statsOpts, cmd.OutOrStdout())
	},
}

type statsOptions struct {
	input   string
	offsets []int
	match   string
	format  string
}

var statsOpts statsOptions

func init() {
	statsCmd.Flags().StringVarP(&statsOpts.input, "input", "i", "-", "input capture (pcap or pcapng), - for stdin")
	statsCmd.Flags().IntSliceVar(&statsOpts.offsets, "offset", nil, "payload offset whose min/max is tracked (repeatable)")
	statsCmd.Flags().StringVarP(&statsOpts.match, "match", "m", "", "count records matching this selector")
	statsCmd.Flags().StringVarP(&statsOpts.format, "format", "f", "text", "output format: text or yaml")
}

func runStats(ctx context.Context, cfg *config.GlobalConfig, opts statsOptions, w io.Writer) error {
	format := strings.ToLower(opts.format)
	if format != "text" && format != "yaml" {
		return fmt.Errorf("unsupported stats format: %s (must be text or yaml)", opts.format)
	}
	f, err := filter.Parse(opts.match)
	if err != nil {
		return err
	}

	in, err := openInput(opts.input)
	if err != nil {
		return err
	}
	defer in.Close()

	offsets := append(append([]int(nil), cfg.Stats.Offsets...), opts.offsets...)
	c := stats.NewCollector(f, offsets...)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, _, err := in.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		c.AddFrame(data)
	}

	s := c.Summary()
	if format == "yaml" {
		return s.WriteYAML(w)
	}
	return s.WriteText(w)
}
