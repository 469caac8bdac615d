package cmd

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/usbrevue/internal/core"
	"firestige.xyz/usbrevue/internal/export"
	"firestige.xyz/usbrevue/internal/filter"
	"firestige.xyz/usbrevue/internal/log"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print decoded records",
	Long: `Decode the records of a usbmon capture and print them as usbmon-style
text lines, JSON lines, YAML documents, a CBOR sequence or MessagePack.
Gated fields are only printed for transfer types that carry them.

Examples:
  usbrevue dump -i in.pcap
  usbrevue dump -i in.pcap --format json --select "devnum==3"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDump(cmd.Context(), dumpOpts, cmd.OutOrStdout())
	},
}

type dumpOptions struct {
	input    string
	format   string
	selector string
}

var dumpOpts dumpOptions

func init() {
	dumpCmd.Flags().StringVarP(&dumpOpts.input, "input", "i", "-", "input capture (pcap or pcapng), - for stdin")
	dumpCmd.Flags().StringVarP(&dumpOpts.format, "format", "f", "text", "output format: text, json, yaml, cbor or msgpack")
	dumpCmd.Flags().StringVarP(&dumpOpts.selector, "select", "s", "", "only print records matching this selector")
}

func runDump(ctx context.Context, opts dumpOptions, w io.Writer) error {
	enc, err := export.NewEncoder(opts.format, w)
	if err != nil {
		return err
	}
	f, err := filter.Parse(opts.selector)
	if err != nil {
		return err
	}

	in, err := openInput(opts.input)
	if err != nil {
		return err
	}
	defer in.Close()

	var n uint64
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
		n++

		if f.Compiled() && !f.MatchFrame(data) {
			continue
		}
		rec, err := core.DecodeFrame(data)
		if err != nil {
			log.GetLogger().WithError(err).WithField("record", n).Warn("record not decodable, skipped")
			continue
		}
		if !f.Match(rec) {
			continue
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return enc.Close()
}
