package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SunilSharmaNP/fvt/worker/jobspec"
)

// Downloader materializes task inputs. Local paths pass through
// untouched; remote refs are fetched into the task's work directory
// with bounded retries.
type Downloader struct {
	client  *http.Client
	retries int
	backoff time.Duration
	logger  *zap.Logger
}

func NewDownloader(retries int, logger *zap.Logger) *Downloader {
	if retries < 1 {
		retries = 1
	}
	return &Downloader{
		client:  &http.Client{},
		retries: retries,
		backoff: time.Second,
		logger:  logger,
	}
}

func (d *Downloader) Fetch(ctx context.Context, ref jobspec.InputRef, destDir string) (string, error) {
	if !ref.Remote() {
		p := string(ref)
		info, err := os.Stat(p)
		if err != nil {
			return "", fmt.Errorf("local input: %w", err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("local input %s is a directory", filepath.Base(p))
		}
		return p, nil
	}

	var lastErr error
	backoff := d.backoff
	for attempt := 1; attempt <= d.retries; attempt++ {
		p, err := d.download(ctx, string(ref), destDir)
		if err == nil {
			return p, nil
		}
		lastErr = err
		if !retryable(err) || attempt == d.retries {
			break
		}
		if d.logger != nil {
			d.logger.Warn("Download failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", lastErr
}

func (d *Downloader) download(ctx context.Context, rawURL, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &statusError{code: resp.StatusCode, url: rawURL}
	}

	dest := filepath.Join(destDir, remoteName(rawURL))
	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Base(part), err)
	}

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		f.Close()
		os.Remove(part)
		return "", fmt.Errorf("read body: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(part)
		return "", fmt.Errorf("close %s: %w", filepath.Base(part), err)
	}
	if n == 0 {
		os.Remove(part)
		return "", fmt.Errorf("empty response body")
	}
	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return "", fmt.Errorf("finalize download: %w", err)
	}
	return dest, nil
}

type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.url, e.code)
}

// retryable reports whether another attempt could help. Client errors
// are permanent; server errors and transport failures are not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500
	}
	return true
}

// remoteName derives a collision-free filename from the URL path.
func remoteName(rawURL string) string {
	name := "input.bin"
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			name = base
		}
	}
	return uuid.NewString()[:8] + "_" + name
}
