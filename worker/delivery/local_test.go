package delivery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestLocalDeliver(t *testing.T) {
	work := t.TempDir()
	src := filepath.Join(work, "output.mp4")
	if err := os.WriteFile(src, []byte("artifact"), 0o644); err != nil {
		t.Fatal(err)
	}

	outDir := filepath.Join(t.TempDir(), "out")
	l := NewLocal(outDir, zaptest.NewLogger(t))

	receipt, err := l.Deliver(context.Background(), Artifact{ID: "task-9", Path: src})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if receipt.Backend != "local" {
		t.Errorf("backend = %q, want local", receipt.Backend)
	}
	if !strings.HasSuffix(receipt.Location, "task-9_output.mp4") {
		t.Errorf("location = %q, want task-prefixed name", receipt.Location)
	}

	data, err := os.ReadFile(receipt.Location)
	if err != nil {
		t.Fatalf("reading delivered file: %v", err)
	}
	if string(data) != "artifact" {
		t.Errorf("delivered %q, want original bytes", data)
	}
}

func TestLocalDeliverMissingSource(t *testing.T) {
	l := NewLocal(t.TempDir(), zaptest.NewLogger(t))
	if _, err := l.Deliver(context.Background(), Artifact{Path: "/nonexistent.mp4"}); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}
