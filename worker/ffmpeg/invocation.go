package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const (
	scannerBuffer = 1024 * 1024
	tailLines     = 20
)

// scanStatusLines splits on \n and \r. The transcoder rewrites its
// stats line in place with carriage returns, so a plain line scanner
// would only ever see the final one.
func scanStatusLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// stderrTail keeps the most recent non-blank lines so a failed
// invocation can report what the transcoder actually complained about.
type stderrTail struct {
	lines []string
}

func (t *stderrTail) add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > tailLines {
		t.lines = t.lines[1:]
	}
}

func (t *stderrTail) String() string {
	return strings.Join(t.lines, "\n")
}

// invoke runs one command to completion, streaming stderr lines to
// onLine. Cancellation sends SIGTERM first and escalates to SIGKILL
// after the grace period.
func (r *Runner) invoke(ctx context.Context, c Command, onLine func(string)) error {
	cmd := exec.Command(r.bin, c.Args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", r.bin, err)
	}

	waited := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cmd.Process.Signal(syscall.SIGTERM)
			select {
			case <-waited:
			case <-time.After(r.killGrace):
				cmd.Process.Kill()
			}
		case <-waited:
		}
	}()

	tail := &stderrTail{}
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), scannerBuffer)
	scanner.Split(scanStatusLines)
	for scanner.Scan() {
		line := scanner.Text()
		tail.add(line)
		if onLine != nil {
			onLine(line)
		}
	}

	waitErr := cmd.Wait()
	close(waited)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		if detail := tail.String(); detail != "" {
			return fmt.Errorf("%s %s: %w: %s", r.bin, c.Label, waitErr, detail)
		}
		return fmt.Errorf("%s %s: %w", r.bin, c.Label, waitErr)
	}
	return nil
}
