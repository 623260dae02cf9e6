package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/muxlog/internal/demux"
	"github.com/tinytelemetry/muxlog/internal/httpserver"
	"github.com/tinytelemetry/muxlog/internal/logging"
	"github.com/tinytelemetry/muxlog/internal/metrics"
	"github.com/tinytelemetry/muxlog/internal/model"
	"github.com/tinytelemetry/muxlog/internal/throttle"
)

// runServer wires the inputs, the demultiplexer, the JSON line output and
// the HTTP API, and runs until every input is exhausted or a signal arrives.
func runServer(parent context.Context, cfg appConfig) error {
	log, err := logging.NewZerolog(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		log.Info("shutting down gracefully (signal again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			log.Warn("force shutdown")
		case <-deadline.C:
			log.Warn("shutdown timed out, forcing exit")
		}
		os.Exit(1)
	}()

	opts := []demux.Option{demux.WithLogger(log), demux.WithMetrics(m)}
	if cfg.Throttle == throttleNone {
		opts = append(opts, demux.WithThrottle(throttle.None()))
	}
	pipeline := demux.New(ctx, cfg.pipelineConfig(), opts...)

	out := make(chan model.Event, cfg.OutputBuffer)
	if err := pipeline.AttachOutput(out); err != nil {
		return err
	}

	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, pipeline,
			httpserver.WithGatherer(reg), httpserver.WithLogger(log))
		if err := apiServer.Start(); err != nil {
			_ = pipeline.Stop()
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	// Build input plugins and source multiplexer
	plugins := buildInputPlugins(InputPluginConfig{
		TCPEnabled: cfg.TCPEnabled,
		TCPAddr:    cfg.TCPAddr,
		FilePath:   cfg.File,
		FileFollow: cfg.FileFollow,
		Logger:     log,
	})

	sources := make([]NamedSource, 0, len(plugins))
	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		src, err := plugin.Build(ctx)
		if err != nil {
			log.Error("input plugin failed", logging.String("plugin", plugin.Name()), logging.Err(err))
			continue
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		_ = pipeline.Stop()
		return errors.New("no input sources available: enable tcp, pass --file, or pipe records on stdin")
	}

	mux := NewSourceMultiplexer(ctx, sources, cfg.MuxBufferSize)
	mux.Start()
	defer mux.Stop()

	printStartupBanner(cfg, mux.SourceNames())

	g, gctx := errgroup.WithContext(ctx)

	// Feed: sources into the pipeline, honoring backpressure.
	g.Go(func() error {
		defer pipeline.Close()
		return feed(gctx, pipeline, mux.Records())
	})

	// Output: merged events as JSON lines on stdout.
	g.Go(func() error {
		return copyEvents(newEventWriter(os.Stdout, cfg.OutputEnvelope), out)
	})

	// Any failure, or a signal, abandons the remaining records.
	stop := context.AfterFunc(gctx, func() { _ = pipeline.Stop() })
	defer stop()

	g.Go(func() error {
		err := pipeline.Wait()
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil
		}
		return err
	})

	err = g.Wait()
	st := pipeline.Stats()
	log.Info("pipeline finished",
		logging.Uint64("written", st.Written),
		logging.Uint64("events", st.Router.Events),
		logging.Uint64("dropped", st.Router.Dropped),
		logging.Uint64("backpressured", st.Backpressured))
	return err
}

// feed writes records into the pipeline until the sources are exhausted.
// A canceled context ends the feed without error.
func feed(ctx context.Context, pipeline *demux.Demultiplexer, records <-chan model.SourceRecord) error {
	for rec := range records {
		err := pipeline.WriteContext(ctx, rec.Record)
		switch {
		case err == nil:
		case errors.Is(err, demux.ErrClosed), ctx.Err() != nil:
			return nil
		default:
			return err
		}
	}
	return nil
}

func printStartupBanner(cfg appConfig, sources []string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔╦╗╦ ╦═╗ ╦╦  ╔═╗╔═╗
    ║║║║ ║╔╩╦╝║  ║ ║║ ╦
    ╩ ╩╚═╝╩ ╚═╩═╝╚═╝╚═╝`)

	separator := dim.Render("    ─────────────────────────────────")
	lines := []string{"", logo, "    " + dim.Render("v"+version), "", separator, ""}

	lines = append(lines, bold.Render("    Inputs"), "")
	for _, name := range []string{"tcp", "file", "stdin"} {
		active := false
		for _, s := range sources {
			if s == name {
				active = true
			}
		}
		detail := dim.Render("disabled")
		marker := dot
		if active {
			marker = check
			switch name {
			case "tcp":
				detail = cyan.Render(cfg.TCPAddr)
			case "file":
				detail = dim.Render(shortenPath(cfg.File))
				if cfg.FileFollow {
					detail += dim.Render(" (follow)")
				}
			default:
				detail = dim.Render("piped")
			}
		}
		lines = append(lines, fmt.Sprintf("    %s  %-13s %s", marker, name, detail))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Gateway"), "")
	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API      %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API      %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Pipeline"), "")
	throttleDetail := cfg.Throttle
	if cfg.Throttle == throttleReplay && cfg.MaxGap > 0 {
		throttleDetail += " (max gap " + cfg.MaxGap.String() + ")"
	}
	lines = append(lines, fmt.Sprintf("    %s  Throttle      %s", check, dim.Render(throttleDetail)))
	lines = append(lines, fmt.Sprintf("    %s  High water    %s", check, dim.Render(fmt.Sprint(cfg.HighWaterMark))))
	lines = append(lines, fmt.Sprintf("    %s  Policies      %s", check,
		dim.Render("inline="+cfg.InlinePolicy+" decoder="+cfg.DecoderPolicy)))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File   %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File   %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	// stdout carries the event stream.
	fmt.Fprintln(os.Stderr, strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
