package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseYAMLConfigSuccess(t *testing.T) {
	path := writeTempConfig(t, "proxy-port: 6100\ntarget-port: 7100\ntarget: 192.168.1.10\ncontroller: http://127.0.0.1:5000\nudp: true\nlog: proxy.log\n")

	var cfg Config
	if err := parseYAMLConfig(&cfg, path); err != nil {
		t.Fatalf("parseYAMLConfig returned error: %v", err)
	}

	if cfg.ProxyPort != 6100 || cfg.TargetPort != 7100 {
		t.Fatalf("unexpected port fields: %+v", cfg)
	}

	if cfg.Target != "192.168.1.10" || cfg.Controller != "http://127.0.0.1:5000" {
		t.Fatalf("unexpected target/controller fields: %+v", cfg)
	}

	if !cfg.UDP || cfg.Log != "proxy.log" {
		t.Fatalf("unexpected remaining fields: %+v", cfg)
	}
}

func TestParseYAMLConfigMissingFile(t *testing.T) {
	var cfg Config
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	if err := parseYAMLConfig(&cfg, missing); err == nil {
		t.Fatalf("parseYAMLConfig expected error for missing file")
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}
