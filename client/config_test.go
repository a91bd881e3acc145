package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseJSONConfigSuccess(t *testing.T) {
	path := writeTempConfig(t, `{"server":"127.0.0.1:80","port":34254,"tickers_path":"tickers.txt","ping_host":"127.0.0.1","log":"client.log"}`)

	var cfg Config
	if err := parseJSONConfig(&cfg, path); err != nil {
		t.Fatalf("parseJSONConfig returned error: %v", err)
	}

	if cfg.Server != "127.0.0.1:80" || cfg.Port != 34254 {
		t.Fatalf("unexpected fields: %+v", cfg)
	}
}

func TestParseJSONConfigMissingFile(t *testing.T) {
	var cfg Config
	missing := filepath.Join(t.TempDir(), "missing.json")
	if err := parseJSONConfig(&cfg, missing); err == nil {
		t.Fatalf("parseJSONConfig expected error for missing file")
	}
}

func TestReadTickersStripsBlankLinesAndWhitespace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tickers.txt")
	body := "  AMD  \n\nINT\n   \nGAZ\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tickers, err := readTickers(path)
	if err != nil {
		t.Fatalf("readTickers: %v", err)
	}
	want := []string{"AMD", "INT", "GAZ"}
	if len(tickers) != len(want) {
		t.Fatalf("got %v, want %v", tickers, want)
	}
	for i := range want {
		if tickers[i] != want[i] {
			t.Fatalf("got %v, want %v", tickers, want)
		}
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}
