// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/usbrevue/internal/capture"
	"firestige.xyz/usbrevue/internal/config"
	"firestige.xyz/usbrevue/internal/log"
	"firestige.xyz/usbrevue/internal/metrics"
)

var (
	// Global flags
	configFile string
	logLevel   string

	// globalCfg is loaded before any subcommand runs
	globalCfg = config.Default()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "usbrevue",
	Short: "usbrevue - rewrite and inspect usbmon captures",
	Long: `usbrevue decodes Linux usbmon capture records (pcap link type 220),
lets you rewrite their fields with static assignments, and re-encodes them
byte for byte.

Capture data is read from and written to files or stdin/stdout, so the tools
chain with tcpdump and wireshark:

  tcpdump -i usbmon1 -w - | usbrevue modify -e devnum=5 | wireshark -k -i -`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configFile, logLevel)
		if err != nil {
			return err
		}
		globalCfg = cfg
		return log.Init(cfg.Log)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and USBREVUE_* environment when empty)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "",
		"log level override (trace, debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(modifyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(checkCmd)
}

// loadConfig loads the config file and applies the log level flag.
func loadConfig(path, level string) (*config.GlobalConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level != "" {
		cfg.Log.Level = level
		if err := cfg.ValidateAndApplyDefaults(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// startMetrics starts the metrics server when enabled. The returned stop
// function is always safe to call.
func startMetrics(ctx context.Context, cfg config.MetricsConfig) (func(), error) {
	if !cfg.Enabled {
		return func() {}, nil
	}
	srv := metrics.NewServer(cfg.Listen, cfg.Path)
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := srv.Stop(context.Background()); err != nil {
			log.GetLogger().WithError(err).Warn("metrics server stop failed")
		}
	}, nil
}

// openInput opens a capture for reading and logs its format.
func openInput(path string) (*capture.Reader, error) {
	r, err := capture.Open(path)
	if err != nil {
		return nil, err
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"input":   displayPath(path),
		"format":  r.Format(),
		"snaplen": r.Snaplen(),
	}).Debug("capture opened")
	return r, nil
}

func displayPath(path string) string {
	if path == "" || path == "-" {
		return "stdin"
	}
	return path
}
