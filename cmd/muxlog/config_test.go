package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/muxlog/internal/router"
)

func TestLoadConfig_AddressResolution(t *testing.T) {
	resetMuxlogEnv(t)

	tests := []struct {
		name        string
		configYAML  string
		wantHost    string
		wantTCPAddr string
		wantAPIAddr string
	}{
		{
			name: "defaults to localhost host",
			configYAML: `
tcp-port: 4100
api-port: 3100
`,
			wantHost:    "127.0.0.1",
			wantTCPAddr: "127.0.0.1:4100",
			wantAPIAddr: "127.0.0.1:3100",
		},
		{
			name: "host applies to derived tcp and api addresses",
			configYAML: `
host: 0.0.0.0
tcp-port: 4200
api-port: 3200
`,
			wantHost:    "0.0.0.0",
			wantTCPAddr: "0.0.0.0:4200",
			wantAPIAddr: "0.0.0.0:3200",
		},
		{
			name: "explicit addresses override host and ports",
			configYAML: `
host: 0.0.0.0
tcp-port: 4300
api-port: 3300
tcp-addr: 10.0.0.5:9999
api-addr: 10.0.0.5:8888
`,
			wantHost:    "0.0.0.0",
			wantTCPAddr: "10.0.0.5:9999",
			wantAPIAddr: "10.0.0.5:8888",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeTempConfig(t, tt.configYAML), nil)
			if err != nil {
				t.Fatalf("loadConfig returned error: %v", err)
			}
			if cfg.Host != tt.wantHost {
				t.Fatalf("Host = %q, want %q", cfg.Host, tt.wantHost)
			}
			if cfg.TCPAddr != tt.wantTCPAddr {
				t.Fatalf("TCPAddr = %q, want %q", cfg.TCPAddr, tt.wantTCPAddr)
			}
			if cfg.APIAddr != tt.wantAPIAddr {
				t.Fatalf("APIAddr = %q, want %q", cfg.APIAddr, tt.wantAPIAddr)
			}
		})
	}
}

func TestLoadConfig_PipelineSettings(t *testing.T) {
	resetMuxlogEnv(t)

	tests := []struct {
		name         string
		configYAML   string
		wantErr      bool
		errSubstring string
		assert       func(t *testing.T, cfg appConfig)
	}{
		{
			name:       "defaults",
			configYAML: `tcp-port: 4000`,
			assert: func(t *testing.T, cfg appConfig) {
				t.Helper()
				if cfg.Throttle != throttleReplay {
					t.Fatalf("throttle = %q, want replay", cfg.Throttle)
				}
				pc := cfg.pipelineConfig()
				if pc.Delimiter != ';' {
					t.Fatalf("delimiter = %q, want ';'", pc.Delimiter)
				}
				if pc.InlinePolicy != router.PolicyDrop || pc.DecoderPolicy != router.PolicyDrop {
					t.Fatalf("policies = %v/%v, want drop/drop", pc.InlinePolicy, pc.DecoderPolicy)
				}
				if pc.Decoders.Actisense == nil || pc.Decoders.NMEA0183 == nil {
					t.Fatal("expected default decoders for A and N")
				}
			},
		},
		{
			name: "custom pipeline tunables",
			configYAML: `
high-water-mark: 64
delimiter: "|"
throttle: none
max-gap: 5s
inline-policy: fail
decoder-policy: fail
output-envelope: true
`,
			assert: func(t *testing.T, cfg appConfig) {
				t.Helper()
				pc := cfg.pipelineConfig()
				if pc.HighWaterMark != 64 || pc.Delimiter != '|' {
					t.Fatalf("pipeline config = %+v", pc)
				}
				if pc.InlinePolicy != router.PolicyFail || pc.DecoderPolicy != router.PolicyFail {
					t.Fatalf("policies = %v/%v, want fail/fail", pc.InlinePolicy, pc.DecoderPolicy)
				}
				if pc.MaxGap != 5*time.Second || !cfg.OutputEnvelope || cfg.Throttle != throttleNone {
					t.Fatalf("config = %+v", cfg)
				}
			},
		},
		{
			name:         "multi-byte delimiter rejected",
			configYAML:   `delimiter: "::"`,
			wantErr:      true,
			errSubstring: "invalid delimiter",
		},
		{
			name:         "unknown throttle rejected",
			configYAML:   `throttle: fast`,
			wantErr:      true,
			errSubstring: "invalid throttle",
		},
		{
			name:         "unknown policy rejected",
			configYAML:   `inline-policy: ignore`,
			wantErr:      true,
			errSubstring: "invalid inline-policy",
		},
		{
			name:         "invalid port rejected",
			configYAML:   `tcp-port: 70000`,
			wantErr:      true,
			errSubstring: "invalid tcp-port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeTempConfig(t, tt.configYAML), nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errSubstring != "" && !strings.Contains(err.Error(), tt.errSubstring) {
					t.Fatalf("error = %q, want substring %q", err.Error(), tt.errSubstring)
				}
				return
			}
			if err != nil {
				t.Fatalf("loadConfig returned error: %v", err)
			}
			if tt.assert != nil {
				tt.assert(t, cfg)
			}
		})
	}
}

func TestLoadConfig_EnvAndFlagPrecedence(t *testing.T) {
	resetMuxlogEnv(t)
	t.Setenv("MUXLOG_TCP_PORT", "4500")
	t.Setenv("MUXLOG_API_PORT", "3500")

	cmd := newRootCommand()
	if err := cmd.Flags().Parse([]string{"--api-port", "3600"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := loadConfig(writeTempConfig(t, "tcp-port: 4400\napi-port: 3400"), cmd.Flags())
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.TCPPort != 4500 {
		t.Fatalf("TCPPort = %d, want env value 4500", cfg.TCPPort)
	}
	if cfg.APIPort != 3600 {
		t.Fatalf("APIPort = %d, want flag value 3600", cfg.APIPort)
	}
}

func TestWriteConfig_YAML(t *testing.T) {
	resetMuxlogEnv(t)

	path := writeTempConfig(t, "throttle: none\nmax-gap: 2s")
	cfg, err := loadConfig(path, nil)
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}

	var buf bytes.Buffer
	if err := writeConfig(&buf, cfg); err != nil {
		t.Fatalf("writeConfig: %v", err)
	}

	var got map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal printed config: %v", err)
	}
	if got["throttle"] != "none" {
		t.Fatalf("throttle = %v, want none", got["throttle"])
	}
	if got["max-gap"] != "2s" {
		t.Fatalf("max-gap = %v, want 2s", got["max-gap"])
	}
	if _, ok := got["ConfigPath"]; ok {
		t.Fatal("config path should not be printed")
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func resetMuxlogEnv(t *testing.T) {
	t.Helper()

	original := make(map[string]string)
	existed := make(map[string]bool)

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "MUXLOG_") {
			continue
		}
		original[key] = value
		existed[key] = true
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}

	t.Cleanup(func() {
		for key := range existed {
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("cleanup unset %s: %v", key, err)
			}
		}
		for key, value := range original {
			if err := os.Setenv(key, value); err != nil {
				t.Fatalf("cleanup restore %s: %v", key, err)
			}
		}
	})
}
