package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFatalfClosesLogFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "trust-fund.log")
	initLogRotator(file)

	code := -1
	exit = func(c int) { code = c }
	defer func() { exit = os.Exit }()

	fatalf("Failed to initialize database: %v", "disk full")

	if code != 1 {
		t.Fatalf("exit code %d", code)
	}
	if logRotator != nil {
		t.Fatal("log rotator still open")
	}
	b, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "Failed to initialize database: disk full") {
		t.Fatalf("log file missing message: %q", b)
	}
}
