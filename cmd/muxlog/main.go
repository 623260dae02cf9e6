package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

const longHelp = `muxlog demultiplexes an interleaved marine telemetry stream.

Each input record has the form <timestamp>;<discriminator>;<payload>.
Records are paced by their timestamps, routed by discriminator
(A = Actisense, N = NMEA 0183, I = inline JSON) and merged into one
stream of JSON lines on stdout.`

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var printConfig bool

	root := &cobra.Command{
		Use:           "muxlog",
		Short:         "Demultiplex interleaved marine telemetry into one event stream",
		Long:          longHelp,
		Version:       fmt.Sprintf("%s (%s, built %s) %s/%s", version, commit, buildTime, runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  muxlog --file capture.log --throttle none > events.jsonl
  nc -l 4000 | muxlog --tcp-enabled=false
  muxlog --config ~/.config/muxlog/config.yml --print-config`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if printConfig {
				return writeConfig(cmd.OutOrStdout(), cfg)
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	f := root.Flags()
	f.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/muxlog/config.yml)")
	f.BoolVar(&printConfig, "print-config", false, "print the effective configuration as YAML and exit")

	f.String("host", defaultBindHost, "bind host for derived listen addresses")
	f.Bool("tcp-enabled", true, "accept records over TCP")
	f.Int("tcp-port", defaultTCPPort, "TCP ingest port")
	f.String("tcp-addr", "", "TCP ingest address (overrides host and tcp-port)")
	f.String("file", "", "read records from a recorded multiplexed log file")
	f.Bool("file-follow", false, "keep reading the file as it grows")
	f.Bool("api-enabled", true, "serve the HTTP API")
	f.Int("api-port", defaultAPIPort, "HTTP API port")
	f.String("api-addr", "", "HTTP API address (overrides host and api-port)")
	f.String("throttle", defaultThrottle, "timestamp pacing: replay or none")
	f.Duration("max-gap", 0, "skip timestamp jumps larger than this instead of waiting them out (0 = wait)")
	f.String("inline-policy", "drop", "malformed inline JSON handling: drop or fail")
	f.String("decoder-policy", "drop", "decoder error handling: drop or fail")
	f.Bool("output-envelope", false, "write discriminator and timestamp alongside each event")
	f.String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	f.String("log-format", defaultLogFormat, "log format (console or json)")

	return root
}

func writeConfig(w io.Writer, cfg appConfig) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
