package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/usbrevue/internal/pipeline"
)

// ErrCheckFailed reports that at least one record did not round-trip.
var ErrCheckFailed = errors.New("usbrevue: round-trip check failed")

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that every record re-encodes byte for byte",
	Long: `Decode and re-encode every record of a usbmon capture and report the
records whose bytes change or that do not decode. Exits non-zero on any
mismatch.

Examples:
  usbrevue check -i in.pcap`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.Context(), checkInput, cmd.OutOrStdout())
	},
}

var checkInput string

func init() {
	checkCmd.Flags().StringVarP(&checkInput, "input", "i", "-", "input capture (pcap or pcapng), - for stdin")
}

func runCheck(ctx context.Context, input string, w io.Writer) error {
	in, err := openInput(input)
	if err != nil {
		return err
	}
	defer in.Close()

	res, err := pipeline.Check(ctx, in)
	if err != nil {
		return err
	}
	for _, m := range res.Mismatches {
		fmt.Fprintln(w, m)
	}
	if !res.OK() {
		return fmt.Errorf("%w: %d of %d records", ErrCheckFailed, len(res.Mismatches), res.Records)
	}
	fmt.Fprintf(w, "%d records, all round-trip\n", res.Records)
	return nil
}
