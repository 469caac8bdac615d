package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"firestige.xyz/usbrevue/internal/capture"
	"firestige.xyz/usbrevue/internal/config"
	"firestige.xyz/usbrevue/internal/filter"
	"firestige.xyz/usbrevue/internal/pipeline"
	"firestige.xyz/usbrevue/internal/rule"
)

var modifyCmd = &cobra.Command{
	Use:   "modify",
	Short: "Rewrite record fields in a capture",
	Long: `Read a usbmon capture, assign fields of the selected records and write
the result as pcap. Records that are not selected pass through unchanged.

Assignments are field=value or data[N]=value. They are given with -e
(repeatable, comma separated) and/or loaded from a YAML routine file:

  select: "xfer_type==2"
  rules:
    - set: devnum
      value: 5

Examples:
  usbrevue modify -i in.pcap -o out.pcap -e devnum=5,busnum=1
  usbrevue modify --routine fix.yml --select "devnum==3" < in.pcap > out.pcap`,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := runModify(cmd.Context(), globalCfg, modifyOpts)
		if res.Read == 0 && err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "modified %s of %s records (%s field changes, %s skipped)\n",
			humanize.Comma(int64(res.Modified)), humanize.Comma(int64(res.Read)),
			humanize.Comma(int64(res.Changes)), humanize.Comma(int64(res.Skipped)))
		return err
	},
}

type modifyOptions struct {
	input    string
	output   string
	exps     []string
	routine  string
	selector string
	verbose  bool
	onError  string
}

var modifyOpts modifyOptions

func init() {
	modifyCmd.Flags().StringVarP(&modifyOpts.input, "input", "i", "-", "input capture (pcap or pcapng), - for stdin")
	modifyCmd.Flags().StringVarP(&modifyOpts.output, "output", "o", "-", "output pcap, - for stdout")
	modifyCmd.Flags().StringArrayVarP(&modifyOpts.exps, "exp", "e", nil, "comma separated assignments (repeatable)")
	modifyCmd.Flags().StringVarP(&modifyOpts.routine, "routine", "r", "", "YAML routine file")
	modifyCmd.Flags().StringVarP(&modifyOpts.selector, "select", "s", "", "only modify records matching this selector")
	modifyCmd.Flags().BoolVarP(&modifyOpts.verbose, "verbose", "v", false, "log every changed field")
	modifyCmd.Flags().StringVar(&modifyOpts.onError, "on-error", "", "error policy: abort or skip (default from config)")
}

// buildModifier resolves rules, selector and policy from options and config.
func buildModifier(cfg *config.GlobalConfig, opts modifyOptions) (*pipeline.Modifier, error) {
	b := pipeline.NewBuilder().WithCommand("modify")

	var selectors []string
	if opts.routine != "" {
		rt, err := rule.LoadRoutine(opts.routine)
		if err != nil {
			return nil, err
		}
		set, err := rt.Set()
		if err != nil {
			return nil, fmt.Errorf("routine %s: %w", opts.routine, err)
		}
		b.WithRules(set.Rules()...)
		if rt.Select != "" {
			selectors = append(selectors, rt.Select)
		}
	}
	for _, e := range opts.exps {
		rules, err := rule.ParseList(e)
		if err != nil {
			return nil, err
		}
		b.WithRules(rules...)
	}
	if opts.routine == "" && len(opts.exps) == 0 {
		return nil, fmt.Errorf("%w: at least one of --exp or --routine is required", rule.ErrInvalidRule)
	}

	if opts.selector != "" {
		selectors = append(selectors, opts.selector)
	}
	f, err := filter.Parse(strings.Join(selectors, " && "))
	if err != nil {
		return nil, err
	}

	onError := cfg.Modify.OnError
	if opts.onError != "" {
		onError = strings.ToLower(opts.onError)
		if onError != config.OnErrorAbort && onError != config.OnErrorSkip {
			return nil, fmt.Errorf("%w: --on-error %q (must be abort/skip)", config.ErrConfigInvalid, opts.onError)
		}
	}

	return b.WithFilter(f).
		WithOnError(onError).
		WithVerbose(opts.verbose || cfg.Modify.Verbose).
		Build(), nil
}

func runModify(ctx context.Context, cfg *config.GlobalConfig, opts modifyOptions) (pipeline.Result, error) {
	m, err := buildModifier(cfg, opts)
	if err != nil {
		return pipeline.Result{}, err
	}

	stopMetrics, err := startMetrics(ctx, cfg.Metrics)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer stopMetrics()

	in, err := openInput(opts.input)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer in.Close()

	out, err := capture.Create(opts.output, max(in.Snaplen(), cfg.Capture.Snaplen), cfg.Capture.Nanoseconds)
	if err != nil {
		return pipeline.Result{}, err
	}

	res, err := m.Run(ctx, in, out)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close output: %w", cerr)
	}
	return res, err
}
