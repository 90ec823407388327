package us

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCSVSymbols(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.csv")
	content := "symbol,name\naapl,Apple\n MSFT ,Microsoft\n,blank\nBRK.B\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadCSVSymbols(path)
	if err != nil {
		t.Fatalf("LoadCSVSymbols: %v", err)
	}
	want := []string{"AAPL", "MSFT", "BRK.B"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("symbol %d = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := LoadCSVSymbols(filepath.Join(dir, "missing.csv")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestUniverse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.csv")
	if err := os.WriteFile(path, []byte("symbol\nmsft\nTSLA\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Universe([]string{"aapl", "MSFT", " "}, path)
	if err != nil {
		t.Fatalf("Universe: %v", err)
	}
	want := []string{"AAPL", "MSFT", "TSLA"}
	if len(got) != len(want) {
		t.Fatalf("Universe = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Universe[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	only, err := Universe([]string{"SPY"}, "")
	if err != nil || len(only) != 1 {
		t.Errorf("Universe without CSV = %v, %v", only, err)
	}
}
