package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func shellRunner() *Runner {
	return &Runner{bin: "sh", killGrace: 500 * time.Millisecond}
}

func TestScanStatusLines(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("frame=1\rframe=2\nlast"))
	scanner.Split(scanStatusLines)

	var got []string
	for scanner.Scan() {
		got = append(got, scanner.Text())
	}
	want := []string{"frame=1", "frame=2", "last"}
	if len(got) != len(want) {
		t.Fatalf("got %d tokens %v, want %v", len(got), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStderrTailBounded(t *testing.T) {
	tail := &stderrTail{}
	tail.add("   ")
	for i := 0; i < 25; i++ {
		tail.add(fmt.Sprintf("line %d", i))
	}
	if n := len(tail.lines); n != tailLines {
		t.Fatalf("tail holds %d lines, want %d", n, tailLines)
	}
	if tail.lines[0] != "line 5" || tail.lines[tailLines-1] != "line 24" {
		t.Errorf("tail window wrong: first %q last %q", tail.lines[0], tail.lines[tailLines-1])
	}
}

func TestInvokeStreamsStderr(t *testing.T) {
	requireShell(t)
	r := shellRunner()

	var lines []string
	err := r.invoke(context.Background(), Command{
		Label: "echo",
		Args:  []string{"-c", `printf 'frame=1\rframe=2\rdone\n' 1>&2`},
	}, func(line string) { lines = append(lines, line) })
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	joined := strings.Join(lines, "|")
	for _, w := range []string{"frame=1", "frame=2", "done"} {
		if !strings.Contains(joined, w) {
			t.Errorf("missing %q in streamed lines %q", w, joined)
		}
	}
}

func TestInvokeFailureCarriesStderrTail(t *testing.T) {
	requireShell(t)
	r := shellRunner()

	err := r.invoke(context.Background(), Command{
		Label: "fail",
		Args:  []string{"-c", `echo 'no such codec: wibble' 1>&2; exit 3`},
	}, nil)
	if err == nil {
		t.Fatal("expected error from failing command")
	}
	if !strings.Contains(err.Error(), "no such codec: wibble") {
		t.Errorf("error should carry stderr detail, got %q", err)
	}
	if !strings.Contains(err.Error(), "exit status 3") {
		t.Errorf("error should carry the exit status, got %q", err)
	}
}

func TestInvokeCancelTerminates(t *testing.T) {
	requireShell(t)
	r := shellRunner()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := r.invoke(ctx, Command{Label: "sleep", Args: []string{"-c", "sleep 30"}}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v, process was not terminated", elapsed)
	}
}
