package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDigestTracksContentAndPaths(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "application"), 0o755); err != nil {
		t.Fatal(err)
	}
	write := func(rel, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, rel), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("nagini.yaml", "server:\n  base_path: /opt\n")
	write("application/app.conf", "a=1")

	first, err := Digest(dir)
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if len(first) != 64 {
		t.Fatalf("expected 32-byte hex digest, got %q", first)
	}

	again, _ := Digest(dir)
	if again != first {
		t.Fatal("digest is not stable")
	}

	write("application/app.conf", "a=2")
	changed, _ := Digest(dir)
	if changed == first {
		t.Fatal("content change not reflected in digest")
	}

	write("application/app.conf", "a=1")
	if err := os.Rename(filepath.Join(dir, "application", "app.conf"), filepath.Join(dir, "application", "app.conf.1")); err != nil {
		t.Fatal(err)
	}
	renamed, _ := Digest(dir)
	if renamed == first {
		t.Fatal("rename not reflected in digest")
	}
}
