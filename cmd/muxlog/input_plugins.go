package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tinytelemetry/muxlog/internal/logging"
	"github.com/tinytelemetry/muxlog/internal/logsource"
	"github.com/tinytelemetry/muxlog/internal/tcpserver"
)

// NamedSource aliases the shared source abstraction to keep app-layer APIs explicit.
type NamedSource = logsource.Source

// InputSourcePlugin is a small plugin primitive for wiring record inputs.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (NamedSource, error)
}

// InputPluginConfig defines runtime input selection.
type InputPluginConfig struct {
	TCPEnabled bool
	TCPAddr    string
	FilePath   string
	FileFollow bool
	Logger     logging.Logger
}

func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	log := logging.OrNoop(cfg.Logger)
	return []InputSourcePlugin{
		tcpInputPlugin{addr: cfg.TCPAddr, enabled: cfg.TCPEnabled, log: log},
		fileInputPlugin{path: cfg.FilePath, follow: cfg.FileFollow, log: log},
		stdinInputPlugin{log: log},
	}
}

type tcpInputPlugin struct {
	addr    string
	enabled bool
	log     logging.Logger
}

func (p tcpInputPlugin) Name() string { return "tcp" }

func (p tcpInputPlugin) Enabled() bool { return p.enabled }

func (p tcpInputPlugin) Build(_ context.Context) (NamedSource, error) {
	server := tcpserver.NewServer(p.addr, tcpserver.ServerConfig{Logger: p.log})
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("start tcp server: %w", err)
	}
	return logsource.NewTCPSource(server), nil
}

type fileInputPlugin struct {
	path   string
	follow bool
	log    logging.Logger
}

func (p fileInputPlugin) Name() string { return "file" }

func (p fileInputPlugin) Enabled() bool { return p.path != "" }

func (p fileInputPlugin) Build(ctx context.Context) (NamedSource, error) {
	src, err := logsource.NewFileSource(ctx, logsource.FileConfig{
		Path:   p.path,
		Follow: p.follow,
		Logger: p.log,
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

type stdinInputPlugin struct {
	log logging.Logger
}

func (p stdinInputPlugin) Name() string { return "stdin" }

func (p stdinInputPlugin) Enabled() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func (p stdinInputPlugin) Build(ctx context.Context) (NamedSource, error) {
	return logsource.NewStdinSource(ctx, logsource.StdinConfig{Logger: p.log}), nil
}
