package main

import (
	"path/filepath"
	"testing"
)

func TestRunArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "version", args: []string{"--version"}, want: 0},
		{name: "missing host", args: []string{"/etc/nagini"}, want: 1},
		{name: "unknown flag", args: []string{"--bogus"}, want: 1},
		{name: "missing config", args: []string{filepath.Join(t.TempDir(), "none"), "alpha"}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(tt.args); got != tt.want {
				t.Fatalf("run(%v) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}
