package delivery

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const thumbMaxWidth = 320

// Thumbnailer extracts a poster frame from a video and shrinks it for
// chat previews.
type Thumbnailer struct {
	bin    string
	logger *zap.Logger
}

func NewThumbnailer(bin string, logger *zap.Logger) *Thumbnailer {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Thumbnailer{bin: bin, logger: logger}
}

// Generate writes a JPEG thumbnail next to the video and returns its
// path. The caller owns the file; it lives in the task's work
// directory and is removed with it.
func (t *Thumbnailer) Generate(ctx context.Context, videoPath string) (string, error) {
	frame := videoPath + ".frame.jpg"
	defer os.Remove(frame)

	cmd := exec.CommandContext(ctx, t.bin,
		"-ss", "1", "-i", videoPath, "-vframes", "1", "-q:v", "2", "-y", frame)
	if out, err := cmd.CombinedOutput(); err != nil {
		if len(out) > 512 {
			out = out[len(out)-512:]
		}
		return "", fmt.Errorf("extract frame: %w: %s", err, out)
	}

	thumb := videoPath + ".thumb.jpg"
	if err := Shrink(frame, thumb, thumbMaxWidth); err != nil {
		return "", err
	}

	t.logger.Info("Generated thumbnail", zap.String("path", thumb))
	return thumb, nil
}

// Shrink resizes an image to at most maxWidth wide, preserving the
// aspect ratio, and saves it as JPEG. Images already narrow enough are
// re-encoded as-is.
func Shrink(inputPath, outputPath string, maxWidth int) error {
	src, err := imaging.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}

	var processed image.Image = src
	if src.Bounds().Dx() > maxWidth {
		processed = imaging.Resize(src, maxWidth, 0, imaging.Lanczos)
	}

	if err := imaging.Save(processed, outputPath, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("failed to save JPEG: %w", err)
	}
	return nil
}
