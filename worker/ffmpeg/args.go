package ffmpeg

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/SunilSharmaNP/fvt/worker/jobspec"
	"github.com/SunilSharmaNP/fvt/worker/probe"
)

// Command is one transcoder invocation: argv without the binary.
// Progress marks commands whose stderr is worth feeding the tracker.
type Command struct {
	Args     []string
	Progress bool
	Label    string
}

// Plan is the full argument derivation for a task: one or two
// commands (gif needs a palette pass) and the final artifact path.
type Plan struct {
	Commands []Command
	Output   string
}

// OutputName returns the artifact filename for a tool.
func OutputName(job *jobspec.Descriptor) string {
	switch job.Tool {
	case jobspec.ToolGif:
		return "output.gif"
	case jobspec.ToolExtract:
		if job.Options.Extract != nil {
			switch job.Options.Extract.Stream {
			case jobspec.ExtractAudio:
				return "output.mp3"
			case jobspec.ExtractSubtitles:
				return "output.srt"
			case jobspec.ExtractThumbnail:
				return "output.jpg"
			}
		}
	}
	return "output.mp4"
}

// BuildPlan derives the invocation arguments for a validated job.
// probes holds one result per input, in input order.
func BuildPlan(job *jobspec.Descriptor, inputs []string, workDir string, probes []*probe.Result, presets map[string]EncodePreset) (*Plan, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs")
	}
	out := filepath.Join(workDir, OutputName(job))
	in := inputs[0]

	switch job.Tool {
	case jobspec.ToolMerge:
		return buildMerge(inputs, out, workDir, probes)
	case jobspec.ToolEncode:
		return buildEncode(in, out, job.Options.Encode, probes[0], presets)
	case jobspec.ToolTrim:
		start, end, err := trimWindow(job.Options.Trim, probes[0])
		if err != nil {
			return nil, err
		}
		return trimPlan(in, out, start, end), nil
	case jobspec.ToolSample:
		return buildSample(in, out, job.Options.Sample, probes[0])
	case jobspec.ToolWatermark:
		return buildWatermark(in, inputs, out, job.Options.Watermark)
	case jobspec.ToolExtract:
		return buildExtract(in, out, job.Options.Extract), nil
	case jobspec.ToolRotate:
		return buildRotate(in, out, job.Options.Rotate.Angle)
	case jobspec.ToolFlip:
		return buildFlip(in, out, job.Options.Flip.Direction)
	case jobspec.ToolSpeed:
		return buildSpeed(in, out, job.Options.Speed.Factor), nil
	case jobspec.ToolVolume:
		return buildVolume(in, out, job.Options.Volume.Percent), nil
	case jobspec.ToolCrop:
		return buildCrop(in, out, job.Options.Crop.Aspect, probes[0])
	case jobspec.ToolGif:
		return buildGif(in, out, workDir, job.Options.Gif), nil
	case jobspec.ToolReverse:
		return buildReverse(in, out), nil
	}
	return nil, fmt.Errorf("no argument builder for tool %q", job.Tool)
}

// --- merge ---

func buildMerge(inputs []string, out, workDir string, probes []*probe.Result) (*Plan, error) {
	if ok, _ := probe.Compatible(probes); ok {
		listPath := filepath.Join(workDir, "concat.txt")
		if err := writeConcatList(listPath, inputs); err != nil {
			return nil, err
		}
		return &Plan{
			Output: out,
			Commands: []Command{{
				Label:    "concat copy",
				Progress: true,
				Args: []string{
					"-f", "concat", "-safe", "0", "-i", listPath,
					"-c", "copy", "-movflags", "+faststart", "-y", out,
				},
			}},
		}, nil
	}

	// Incompatible streams: concat filter with a full re-encode.
	withAudio := true
	for _, p := range probes {
		if p.Audio == nil {
			withAudio = false
			break
		}
	}

	args := make([]string, 0, 4*len(inputs)+16)
	var fc strings.Builder
	for i, in := range inputs {
		args = append(args, "-i", in)
		fc.WriteString(fmt.Sprintf("[%d:v:0]", i))
		if withAudio {
			fc.WriteString(fmt.Sprintf("[%d:a:0]", i))
		}
	}
	if withAudio {
		fc.WriteString(fmt.Sprintf("concat=n=%d:v=1:a=1[v][a]", len(inputs)))
	} else {
		fc.WriteString(fmt.Sprintf("concat=n=%d:v=1:a=0[v]", len(inputs)))
	}

	args = append(args, "-filter_complex", fc.String(), "-map", "[v]")
	if withAudio {
		args = append(args, "-map", "[a]")
	}
	args = append(args,
		"-c:v", "libx264", "-preset", "medium", "-crf", "23",
		"-c:a", "aac", "-b:a", "128k",
		"-movflags", "+faststart", "-y", out,
	)

	return &Plan{
		Output:   out,
		Commands: []Command{{Label: "concat reencode", Progress: true, Args: args}},
	}, nil
}

func writeConcatList(path string, inputs []string) error {
	var b strings.Builder
	for _, in := range inputs {
		escaped := strings.ReplaceAll(in, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

// --- encode ---

func buildEncode(in, out string, o *jobspec.EncodeOptions, pr *probe.Result, presets map[string]EncodePreset) (*Plan, error) {
	if o == nil {
		o = &jobspec.EncodeOptions{}
	}
	name := o.Preset
	if name == "" {
		name = DefaultPresetName
	}
	p, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown encode preset %q", name)
	}

	if o.Codec != "" {
		p.VideoCodec = o.Codec
	}
	if o.CRF != nil {
		p.CRF = *o.CRF
	}
	if o.Tune != "" {
		p.Tune = o.Tune
	}
	if o.Profile != "" {
		p.Profile = o.Profile
	}
	if o.Height != 0 {
		p.Height = o.Height
	}
	if o.AudioBitrate != "" {
		p.AudioBitrate = o.AudioBitrate
	}

	args := []string{"-i", in}
	if p.Height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=-2:%d", p.Height))
	}
	args = append(args, "-c:v", p.VideoCodec, "-crf", strconv.Itoa(p.CRF), "-preset", p.Preset)
	if p.Tune != "" {
		args = append(args, "-tune", p.Tune)
	}
	// libx265 rejects -profile:v; it takes profiles via x265-params.
	if p.Profile != "" && p.VideoCodec == "libx264" {
		args = append(args, "-profile:v", p.Profile)
	}
	args = append(args, "-pix_fmt", p.PixFmt)

	copyAudio := o.CopyAudio
	if !copyAudio && pr != nil && pr.Audio != nil && pr.Audio.Codec == p.AudioCodec {
		copyAudio = true
	}
	if copyAudio {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-c:a", p.AudioCodec, "-b:a", p.AudioBitrate)
	}
	args = append(args, "-movflags", "+faststart", "-y", out)

	return &Plan{
		Output:   out,
		Commands: []Command{{Label: "encode " + name, Progress: true, Args: args}},
	}, nil
}

// --- trim / sample ---

func trimWindow(o *jobspec.TrimOptions, pr *probe.Result) (float64, float64, error) {
	start, err := jobspec.ParseTimecode(o.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err := jobspec.ParseTimecode(o.End)
	if err != nil {
		return 0, 0, err
	}
	if pr != nil && pr.Duration > 0 {
		total := pr.Duration.Seconds()
		if end > total {
			end = total
		}
		if start >= total {
			return 0, 0, fmt.Errorf("trim start %.1fs is past the end of the input", start)
		}
	}
	if end <= start {
		return 0, 0, fmt.Errorf("trim window is empty")
	}
	return start, end, nil
}

func trimPlan(in, out string, start, end float64) *Plan {
	return &Plan{
		Output: out,
		Commands: []Command{{
			Label:    "trim",
			Progress: true,
			Args: []string{
				"-ss", formatSeconds(start), "-i", in, "-t", formatSeconds(end - start),
				"-c", "copy", "-avoid_negative_ts", "1",
				"-movflags", "+faststart", "-y", out,
			},
		}},
	}
}

func buildSample(in, out string, o *jobspec.SampleOptions, pr *probe.Result) (*Plan, error) {
	if pr == nil || pr.Duration == 0 {
		return nil, fmt.Errorf("cannot sample: input duration unknown")
	}
	total := pr.Duration.Seconds()
	dur := float64(o.Duration)
	if dur >= total {
		return nil, fmt.Errorf("sample duration %.0fs exceeds input length %.0fs", dur, total)
	}

	var start float64
	switch o.From {
	case "middle":
		start = (total - dur) / 2
	case "end":
		start = total - dur
	case "random":
		start = rand.Float64() * (total - dur)
	default:
		start = 0
	}
	if start < 0 {
		start = 0
	}
	return trimPlan(in, out, start, start+dur), nil
}

// --- watermark ---

var textPositions = map[string]string{
	"top_left":     "x=10:y=10",
	"top_right":    "x=w-tw-10:y=10",
	"bottom_left":  "x=10:y=h-th-10",
	"bottom_right": "x=w-tw-10:y=h-th-10",
	"center":       "x=(w-tw)/2:y=(h-th)/2",
}

var overlayPositions = map[string]string{
	"top_left":     "10:10",
	"top_right":    "W-w-10:10",
	"bottom_left":  "10:H-h-10",
	"bottom_right": "W-w-10:H-h-10",
	"center":       "(W-w)/2:(H-h)/2",
}

func buildWatermark(in string, inputs []string, out string, o *jobspec.WatermarkOptions) (*Plan, error) {
	position := o.Position
	if position == "" {
		position = "bottom_right"
	}

	if o.Mode == jobspec.WatermarkText {
		size := o.FontSize
		if size == 0 {
			size = 24
		}
		color := o.FontColor
		if color == "" {
			color = "white"
		}
		text := strings.ReplaceAll(o.Text, "'", `\'`)
		draw := fmt.Sprintf("drawtext=text='%s':fontsize=%d:fontcolor=%s:%s:box=1:boxcolor=black@0.5:boxborderw=5",
			text, size, color, textPositions[position])
		return &Plan{
			Output: out,
			Commands: []Command{{
				Label:    "text watermark",
				Progress: true,
				Args: []string{
					"-i", in, "-vf", draw,
					"-c:v", "libx264", "-crf", "23", "-preset", "medium",
					"-c:a", "copy", "-y", out,
				},
			}},
		}, nil
	}

	if len(inputs) < 2 {
		return nil, fmt.Errorf("image watermark needs a watermark image input")
	}
	opacity := o.Opacity
	if opacity == 0 {
		opacity = 0.7
	}
	fc := fmt.Sprintf("[1:v]format=rgba,colorchannelmixer=aa=%s[wm];[0:v][wm]overlay=%s:format=auto[outv]",
		formatSeconds(opacity), overlayPositions[position])
	return &Plan{
		Output: out,
		Commands: []Command{{
			Label:    "image watermark",
			Progress: true,
			Args: []string{
				"-i", in, "-i", inputs[1],
				"-filter_complex", fc,
				"-map", "[outv]", "-map", "0:a?",
				"-c:v", "libx264", "-crf", "23", "-preset", "medium",
				"-c:a", "copy", "-y", out,
			},
		}},
	}, nil
}

// --- extract ---

func buildExtract(in, out string, o *jobspec.ExtractOptions) *Plan {
	var cmd Command
	switch o.Stream {
	case jobspec.ExtractAudio:
		cmd = Command{
			Label:    "extract audio",
			Progress: true,
			Args:     []string{"-i", in, "-vn", "-c:a", "libmp3lame", "-b:a", "192k", "-y", out},
		}
	case jobspec.ExtractSubtitles:
		cmd = Command{
			Label: "extract subtitles",
			Args:  []string{"-i", in, "-map", "0:s:0", "-c:s", "srt", "-y", out},
		}
	case jobspec.ExtractThumbnail:
		args := []string{"-i", in, "-vframes", "1", "-q:v", "2", "-y", out}
		if o.Timestamp > 0 {
			args = append([]string{"-ss", formatSeconds(o.Timestamp)}, args...)
		}
		cmd = Command{Label: "extract thumbnail", Args: args}
	default:
		cmd = Command{
			Label:    "extract video",
			Progress: true,
			Args:     []string{"-i", in, "-an", "-c:v", "copy", "-y", out},
		}
	}
	return &Plan{Output: out, Commands: []Command{cmd}}
}

// --- rotate / flip ---

var transposeFilters = map[int]string{
	90:  "transpose=1",
	180: "transpose=2,transpose=2",
	270: "transpose=2",
}

func buildRotate(in, out string, angle int) (*Plan, error) {
	vf, ok := transposeFilters[angle]
	if !ok {
		return nil, fmt.Errorf("unsupported rotation angle %d", angle)
	}
	return singleFilterPlan(in, out, "rotate", vf), nil
}

func buildFlip(in, out, direction string) (*Plan, error) {
	var vf string
	switch direction {
	case "horizontal":
		vf = "hflip"
	case "vertical":
		vf = "vflip"
	default:
		return nil, fmt.Errorf("unsupported flip direction %q", direction)
	}
	return singleFilterPlan(in, out, "flip", vf), nil
}

func singleFilterPlan(in, out, label, vf string) *Plan {
	return &Plan{
		Output: out,
		Commands: []Command{{
			Label:    label,
			Progress: true,
			Args: []string{
				"-i", in, "-vf", vf, "-c:a", "copy",
				"-movflags", "+faststart", "-y", out,
			},
		}},
	}
}

// --- speed / volume ---

func buildSpeed(in, out string, factor float64) *Plan {
	vf := fmt.Sprintf("setpts=%s*PTS", formatSeconds(1/factor))
	af := fmt.Sprintf("atempo=%s", formatSeconds(factor))
	return &Plan{
		Output: out,
		Commands: []Command{{
			Label:    "speed",
			Progress: true,
			Args: []string{
				"-i", in, "-vf", vf, "-af", af,
				"-c:v", "libx264", "-preset", "medium", "-crf", "23",
				"-c:a", "aac", "-b:a", "128k",
				"-movflags", "+faststart", "-y", out,
			},
		}},
	}
}

func buildVolume(in, out string, percent int) *Plan {
	af := fmt.Sprintf("volume=%s", formatSeconds(float64(percent)/100))
	return &Plan{
		Output: out,
		Commands: []Command{{
			Label:    "volume",
			Progress: true,
			Args: []string{
				"-i", in, "-af", af,
				"-c:v", "copy", "-c:a", "aac", "-b:a", "128k",
				"-movflags", "+faststart", "-y", out,
			},
		}},
	}
}

// --- crop ---

var aspectRatios = map[string][2]int{
	"16:9": {16, 9},
	"4:3":  {4, 3},
	"1:1":  {1, 1},
	"9:16": {9, 16},
}

func buildCrop(in, out, aspect string, pr *probe.Result) (*Plan, error) {
	if pr == nil || pr.Video == nil {
		return nil, fmt.Errorf("cannot crop: input dimensions unknown")
	}
	ar, ok := aspectRatios[aspect]
	if !ok {
		return nil, fmt.Errorf("unsupported aspect ratio %q", aspect)
	}

	width, height := pr.Video.Width, pr.Video.Height
	target := float64(ar[0]) / float64(ar[1])
	current := float64(width) / float64(height)
	if diff := target - current; diff < 0.01 && diff > -0.01 {
		return nil, fmt.Errorf("input is already %s", aspect)
	}

	var newW, newH, x, y int
	if current > target {
		newW = int(float64(height) * target)
		newH = height
		x = (width - newW) / 2
	} else {
		newW = width
		newH = int(float64(width) / target)
		y = (height - newH) / 2
	}
	newW -= newW % 2
	newH -= newH % 2

	vf := fmt.Sprintf("crop=%d:%d:%d:%d", newW, newH, x, y)
	return &Plan{
		Output: out,
		Commands: []Command{{
			Label:    "crop",
			Progress: true,
			Args: []string{
				"-i", in, "-vf", vf,
				"-c:a", "copy", "-c:v", "libx264", "-preset", "medium", "-crf", "23",
				"-movflags", "+faststart", "-y", out,
			},
		}},
	}, nil
}

// --- gif ---

var paletteColors = map[string]int{
	"low":    128,
	"medium": 64,
	"high":   32,
}

func buildGif(in, out, workDir string, o *jobspec.GifOptions) *Plan {
	if o == nil {
		o = &jobspec.GifOptions{}
	}
	fps := o.FPS
	if fps == 0 {
		fps = 10
	}
	width := o.Width
	if width == 0 {
		width = 480
	}
	quality := o.Quality
	if quality == "" {
		quality = "medium"
	}

	filters := fmt.Sprintf("fps=%d,scale=%d:-1:flags=lanczos", fps, width)
	palette := filepath.Join(workDir, "palette.png")

	return &Plan{
		Output: out,
		Commands: []Command{
			{
				Label: "gif palette",
				Args: []string{
					"-i", in,
					"-vf", fmt.Sprintf("%s,palettegen=max_colors=%d", filters, paletteColors[quality]),
					"-y", palette,
				},
			},
			{
				Label:    "gif render",
				Progress: true,
				Args: []string{
					"-i", in, "-i", palette,
					"-filter_complex", fmt.Sprintf("%s[x];[x][1:v]paletteuse", filters),
					"-y", out,
				},
			},
		},
	}
}

// --- reverse ---

func buildReverse(in, out string) *Plan {
	return &Plan{
		Output: out,
		Commands: []Command{{
			Label:    "reverse",
			Progress: true,
			Args: []string{
				"-i", in, "-vf", "reverse", "-af", "areverse",
				"-c:v", "libx264", "-preset", "medium", "-crf", "23",
				"-c:a", "aac", "-b:a", "128k",
				"-avoid_negative_ts", "make_zero",
				"-movflags", "+faststart", "-y", out,
			},
		}},
	}
}

// formatSeconds renders a float without a trailing ".0" for whole
// values, matching what the transcoder expects everywhere a number is
// interpolated into args or filters.
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// TotalFor derives the progress denominator for a job from its probed
// inputs. Speed changes stretch or shrink the output clock, which is
// what the transcoder reports against.
func TotalFor(job *jobspec.Descriptor, probes []*probe.Result) time.Duration {
	if len(probes) == 0 || probes[0] == nil {
		return 0
	}

	switch job.Tool {
	case jobspec.ToolMerge:
		var total time.Duration
		for _, p := range probes {
			if p != nil {
				total += p.Duration
			}
		}
		return total
	case jobspec.ToolTrim:
		if o := job.Options.Trim; o != nil {
			start, err1 := jobspec.ParseTimecode(o.Start)
			end, err2 := jobspec.ParseTimecode(o.End)
			if err1 == nil && err2 == nil {
				if total := probes[0].Duration.Seconds(); total > 0 && end > total {
					end = total
				}
				if end > start {
					return time.Duration((end - start) * float64(time.Second))
				}
			}
		}
	case jobspec.ToolSample:
		if o := job.Options.Sample; o != nil {
			return time.Duration(o.Duration) * time.Second
		}
	case jobspec.ToolSpeed:
		if o := job.Options.Speed; o != nil && o.Factor > 0 {
			return time.Duration(float64(probes[0].Duration) / o.Factor)
		}
	}
	return probes[0].Duration
}
