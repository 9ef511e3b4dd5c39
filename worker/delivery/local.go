package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Local copies artifacts into a directory on disk. It serves
// deployments without a chat backend and is the development default.
type Local struct {
	dir    string
	logger *zap.Logger
}

func NewLocal(dir string, logger *zap.Logger) *Local {
	return &Local{dir: dir, logger: logger}
}

func (l *Local) Deliver(ctx context.Context, a Artifact) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return Receipt{}, fmt.Errorf("create output dir: %w", err)
	}

	name := filepath.Base(a.Path)
	if a.ID != "" {
		name = a.ID + "_" + name
	}
	dest := filepath.Join(l.dir, name)

	if err := copyFile(a.Path, dest); err != nil {
		return Receipt{}, err
	}

	l.logger.Info("Stored artifact",
		zap.String("task_id", a.ID),
		zap.String("path", dest))
	return Receipt{Backend: "local", Location: dest}, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(src), err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(dest), err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("copy to %s: %w", filepath.Base(dest), err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("close %s: %w", filepath.Base(dest), err)
	}
	return nil
}
