package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Result is the subset of ffprobe output the engine cares about:
// enough to size the progress denominator, pick merge strategies, and
// compute crop geometry.
type Result struct {
	Duration time.Duration
	Format   string
	Size     int64
	Video    *VideoStream
	Audio    *AudioStream
	HasSubs  bool
}

type VideoStream struct {
	Codec  string
	Width  int
	Height int
	PixFmt string
	FPS    float64
}

type AudioStream struct {
	Codec      string
	SampleRate int
	Channels   int
}

type Prober struct {
	bin string
}

func New(bin string) *Prober {
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{bin: bin}
}

func (p *Prober) Probe(ctx context.Context, path string) (*Result, error) {
	cmd := exec.CommandContext(ctx, p.bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return ParseJSON(out)
}

// ParseJSON converts raw ffprobe JSON into a Result. Exported so tests
// run without an ffprobe binary.
func ParseJSON(data []byte) (*Result, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	r := &Result{
		Format: raw.Format.FormatName,
		Size:   parseInt64(raw.Format.Size),
	}
	if secs := parseFloat(raw.Format.Duration); secs > 0 {
		r.Duration = time.Duration(secs * float64(time.Second))
	}

	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "video":
			if r.Video == nil {
				r.Video = &VideoStream{
					Codec:  s.CodecName,
					Width:  s.Width,
					Height: s.Height,
					PixFmt: s.PixFmt,
					FPS:    parseFrameRate(s.AvgFrameRate),
				}
			}
		case "audio":
			if r.Audio == nil {
				r.Audio = &AudioStream{
					Codec:      s.CodecName,
					SampleRate: int(parseInt64(s.SampleRate)),
					Channels:   s.Channels,
				}
			}
		case "subtitle":
			r.HasSubs = true
		}
	}
	return r, nil
}

// Compatible reports whether the inputs can be concatenated with
// stream copy. Incompatible inputs need the re-encoding concat filter.
func Compatible(results []*Result) (bool, string) {
	if len(results) < 2 {
		return false, "not enough inputs"
	}

	ref := results[0]
	if ref.Video == nil {
		return false, "first input has no video stream"
	}

	for _, r := range results[1:] {
		if r.Video == nil {
			return false, "input has no video stream"
		}
		if r.Video.Width != ref.Video.Width || r.Video.Height != ref.Video.Height {
			return false, "resolution mismatch"
		}
		if r.Video.Codec != ref.Video.Codec {
			return false, "video codec mismatch"
		}
		if r.Video.PixFmt != ref.Video.PixFmt {
			return false, "pixel format mismatch"
		}
		if math.Abs(r.Video.FPS-ref.Video.FPS) > 0.1 {
			return false, "frame rate mismatch"
		}
		if r.Audio != nil && ref.Audio != nil {
			if r.Audio.Codec != ref.Audio.Codec {
				return false, "audio codec mismatch"
			}
			if r.Audio.SampleRate != ref.Audio.SampleRate {
				return false, "audio sample rate mismatch"
			}
		}
	}
	return true, "compatible"
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

type ffprobeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	PixFmt       string `json:"pix_fmt"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Channels     int    `json:"channels"`
	SampleRate   string `json:"sample_rate"`
}

// ffprobe reports numbers as strings.

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseFrameRate handles ffprobe's fractional rates like "30000/1001".
func parseFrameRate(s string) float64 {
	if s == "" || s == "0/0" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return parseFloat(num) / d
}
