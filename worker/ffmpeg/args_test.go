package ffmpeg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SunilSharmaNP/fvt/worker/jobspec"
	"github.com/SunilSharmaNP/fvt/worker/probe"
)

func testJob(tool jobspec.Tool, opts jobspec.Options) *jobspec.Descriptor {
	return &jobspec.Descriptor{
		ID:          "task-1",
		RequesterID: 42,
		Tool:        tool,
		Inputs:      []jobspec.InputRef{"a.mp4"},
		Options:     opts,
	}
}

func videoProbe(seconds float64) *probe.Result {
	return &probe.Result{
		Duration: time.Duration(seconds * float64(time.Second)),
		Video: &probe.VideoStream{
			Codec: "h264", Width: 1920, Height: 1080, PixFmt: "yuv420p", FPS: 29.97,
		},
		Audio: &probe.AudioStream{Codec: "aac", SampleRate: 48000, Channels: 2},
	}
}

func joinedArgs(t *testing.T, plan *Plan, idx int) string {
	t.Helper()
	if idx >= len(plan.Commands) {
		t.Fatalf("plan has %d commands, wanted index %d", len(plan.Commands), idx)
	}
	return strings.Join(plan.Commands[idx].Args, " ")
}

func TestBuildPlanMergeCompatible(t *testing.T) {
	dir := t.TempDir()
	j := testJob(jobspec.ToolMerge, jobspec.Options{})
	j.Inputs = []jobspec.InputRef{"a.mp4", "b.mp4"}
	probes := []*probe.Result{videoProbe(10), videoProbe(20)}

	plan, err := BuildPlan(j, []string{"/in/a.mp4", "/in/b's.mp4"}, dir, probes, DefaultPresets())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(plan.Commands))
	}
	joined := joinedArgs(t, plan, 0)
	if !strings.Contains(joined, "-f concat -safe 0") {
		t.Errorf("expected concat demuxer, got %q", joined)
	}
	if !strings.Contains(joined, "-c copy") {
		t.Errorf("expected stream copy, got %q", joined)
	}

	data, err := os.ReadFile(filepath.Join(dir, "concat.txt"))
	if err != nil {
		t.Fatalf("reading concat list: %v", err)
	}
	want := "file '/in/a.mp4'\n" + `file '/in/b'\''s.mp4'` + "\n"
	if string(data) != want {
		t.Errorf("concat list = %q, want %q", string(data), want)
	}
}

func TestBuildPlanMergeReencode(t *testing.T) {
	j := testJob(jobspec.ToolMerge, jobspec.Options{})
	j.Inputs = []jobspec.InputRef{"a.mp4", "b.mp4"}
	second := videoProbe(20)
	second.Video.Codec = "hevc"
	probes := []*probe.Result{videoProbe(10), second}

	plan, err := BuildPlan(j, []string{"/in/a.mp4", "/in/b.mp4"}, t.TempDir(), probes, DefaultPresets())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	joined := joinedArgs(t, plan, 0)
	if !strings.Contains(joined, "[0:v:0][0:a:0][1:v:0][1:a:0]concat=n=2:v=1:a=1[v][a]") {
		t.Errorf("expected concat filter with audio, got %q", joined)
	}
	if !strings.Contains(joined, "-map [v]") || !strings.Contains(joined, "-map [a]") {
		t.Errorf("expected both stream maps, got %q", joined)
	}
	if !strings.Contains(joined, "-c:v libx264") {
		t.Errorf("expected re-encode, got %q", joined)
	}
}

func TestBuildPlanMergeReencodeNoAudio(t *testing.T) {
	j := testJob(jobspec.ToolMerge, jobspec.Options{})
	j.Inputs = []jobspec.InputRef{"a.mp4", "b.mp4"}
	second := videoProbe(20)
	second.Video.Codec = "hevc"
	second.Audio = nil
	probes := []*probe.Result{videoProbe(10), second}

	plan, err := BuildPlan(j, []string{"/in/a.mp4", "/in/b.mp4"}, t.TempDir(), probes, DefaultPresets())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	joined := joinedArgs(t, plan, 0)
	if !strings.Contains(joined, "[0:v:0][1:v:0]concat=n=2:v=1:a=0[v]") {
		t.Errorf("expected video-only concat filter, got %q", joined)
	}
	if strings.Contains(joined, "-map [a]") {
		t.Errorf("audio map should be absent, got %q", joined)
	}
}

func TestBuildPlanEncode(t *testing.T) {
	crf := 20
	tests := []struct {
		name string
		opts *jobspec.EncodeOptions
		pr   *probe.Result
		want []string
		not  []string
	}{
		{
			name: "default preset",
			opts: nil,
			pr:   videoProbe(10),
			want: []string{"-c:v libx264", "-crf 26", "-preset slow", "-profile:v high", "-pix_fmt yuv420p", "-c:a copy"},
		},
		{
			name: "h265 drops profile flag",
			opts: &jobspec.EncodeOptions{Preset: "h265_medium"},
			pr:   videoProbe(10),
			want: []string{"-c:v libx265", "-crf 28"},
			not:  []string{"-profile:v"},
		},
		{
			name: "mobile preset scales",
			opts: &jobspec.EncodeOptions{Preset: "mobile_480p"},
			pr:   videoProbe(10),
			want: []string{"-vf scale=-2:480", "-profile:v baseline", "-tune film"},
		},
		{
			name: "overrides win",
			opts: &jobspec.EncodeOptions{CRF: &crf, Height: 720, AudioBitrate: "192k"},
			pr: &probe.Result{
				Duration: 10 * time.Second,
				Video:    &probe.VideoStream{Codec: "h264", Width: 1920, Height: 1080, PixFmt: "yuv420p", FPS: 30},
				Audio:    &probe.AudioStream{Codec: "mp3", SampleRate: 44100, Channels: 2},
			},
			want: []string{"-crf 20", "-vf scale=-2:720", "-c:a aac -b:a 192k"},
			not:  []string{"-c:a copy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := testJob(jobspec.ToolEncode, jobspec.Options{Encode: tt.opts})
			plan, err := BuildPlan(j, []string{"/in/a.mp4"}, t.TempDir(), []*probe.Result{tt.pr}, DefaultPresets())
			if err != nil {
				t.Fatalf("BuildPlan: %v", err)
			}
			joined := joinedArgs(t, plan, 0)
			for _, w := range tt.want {
				if !strings.Contains(joined, w) {
					t.Errorf("missing %q in %q", w, joined)
				}
			}
			for _, n := range tt.not {
				if strings.Contains(joined, n) {
					t.Errorf("unexpected %q in %q", n, joined)
				}
			}
		})
	}
}

func TestBuildPlanTrim(t *testing.T) {
	j := testJob(jobspec.ToolTrim, jobspec.Options{
		Trim: &jobspec.TrimOptions{Start: "00:10", End: "00:30"},
	})
	plan, err := BuildPlan(j, []string{"/in/a.mp4"}, t.TempDir(), []*probe.Result{videoProbe(60)}, DefaultPresets())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	joined := joinedArgs(t, plan, 0)
	if !strings.Contains(joined, "-ss 10 -i /in/a.mp4 -t 20") {
		t.Errorf("wrong trim window: %q", joined)
	}
	if !strings.Contains(joined, "-c copy") || !strings.Contains(joined, "-avoid_negative_ts 1") {
		t.Errorf("expected stream copy trim: %q", joined)
	}
}

func TestBuildPlanTrimClampsEnd(t *testing.T) {
	j := testJob(jobspec.ToolTrim, jobspec.Options{
		Trim: &jobspec.TrimOptions{Start: "00:10", End: "05:00"},
	})
	plan, err := BuildPlan(j, []string{"/in/a.mp4"}, t.TempDir(), []*probe.Result{videoProbe(25)}, DefaultPresets())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if joined := joinedArgs(t, plan, 0); !strings.Contains(joined, "-ss 10 -i /in/a.mp4 -t 15") {
		t.Errorf("end not clamped to input duration: %q", joined)
	}
}

func TestBuildPlanTrimStartPastEnd(t *testing.T) {
	j := testJob(jobspec.ToolTrim, jobspec.Options{
		Trim: &jobspec.TrimOptions{Start: "01:00", End: "02:00"},
	})
	_, err := BuildPlan(j, []string{"/in/a.mp4"}, t.TempDir(), []*probe.Result{videoProbe(30)}, DefaultPresets())
	if err == nil {
		t.Fatal("expected error for start past input end")
	}
}

func TestBuildPlanSample(t *testing.T) {
	tests := []struct {
		from     string
		wantArgs string
	}{
		{"start", "-ss 0 -i /in/a.mp4 -t 30"},
		{"middle", "-ss 45 -i /in/a.mp4 -t 30"},
		{"end", "-ss 90 -i /in/a.mp4 -t 30"},
	}
	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			j := testJob(jobspec.ToolSample, jobspec.Options{
				Sample: &jobspec.SampleOptions{Duration: 30, From: tt.from},
			})
			plan, err := BuildPlan(j, []string{"/in/a.mp4"}, t.TempDir(), []*probe.Result{videoProbe(120)}, DefaultPresets())
			if err != nil {
				t.Fatalf("BuildPlan: %v", err)
			}
			if joined := joinedArgs(t, plan, 0); !strings.Contains(joined, tt.wantArgs) {
				t.Errorf("sample from %s: got %q, want %q", tt.from, joined, tt.wantArgs)
			}
		})
	}
}

func TestBuildPlanSampleTooLong(t *testing.T) {
	j := testJob(jobspec.ToolSample, jobspec.Options{
		Sample: &jobspec.SampleOptions{Duration: 120, From: "start"},
	})
	_, err := BuildPlan(j, []string{"/in/a.mp4"}, t.TempDir(), []*probe.Result{videoProbe(60)}, DefaultPresets())
	if err == nil {
		t.Fatal("expected error when sample exceeds input length")
	}
}

func TestBuildPlanWatermarkText(t *testing.T) {
	j := testJob(jobspec.ToolWatermark, jobspec.Options{
		Watermark: &jobspec.WatermarkOptions{
			Mode: jobspec.WatermarkText, Text: "it's mine", Position: "top_left",
			FontSize: 32, FontColor: "yellow",
		},
	})
	plan, err := BuildPlan(j, []string{"/in/a.mp4"}, t.TempDir(), []*probe.Result{videoProbe(10)}, DefaultPresets())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	joined := joinedArgs(t, plan, 0)
	for _, w := range []string{
		`drawtext=text='it\'s mine'`,
		"fontsize=32", "fontcolor=yellow", "x=10:y=10",
		"box=1:boxcolor=black@0.5",
	} {
		if !strings.Contains(joined, w) {
			t.Errorf("missing %q in %q", w, joined)
		}
	}
}

func TestBuildPlanWatermarkImage(t *testing.T) {
	j := testJob(jobspec.ToolWatermark, jobspec.Options{
		Watermark: &jobspec.WatermarkOptions{
			Mode: jobspec.WatermarkImage, Position: "bottom_right", Opacity: 0.5,
		},
	})
	j.Inputs = []jobspec.InputRef{"a.mp4", "logo.png"}
	plan, err := BuildPlan(j, []string{"/in/a.mp4", "/in/logo.png"},
		t.TempDir(), []*probe.Result{videoProbe(10), nil}, DefaultPresets())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	joined := joinedArgs(t, plan, 0)
	for _, w := range []string{
		"-i /in/a.mp4 -i /in/logo.png",
		"colorchannelmixer=aa=0.5",
		"overlay=W-w-10:H-h-10",
		"-map [outv] -map 0:a?",
	} {
		if !strings.Contains(joined, w) {
			t.Errorf("missing %q in %q", w, joined)
		}
	}
}

func TestBuildPlanExtract(t *testing.T) {
	tests := []struct {
		stream   string
		ts       float64
		wantExt  string
		wantArgs string
	}{
		{jobspec.ExtractVideo, 0, "output.mp4", "-an -c:v copy"},
		{jobspec.ExtractAudio, 0, "output.mp3", "-vn -c:a libmp3lame -b:a 192k"},
		{jobspec.ExtractSubtitles, 0, "output.srt", "-map 0:s:0 -c:s srt"},
		{jobspec.ExtractThumbnail, 12.5, "output.jpg", "-ss 12.5 -i /in/a.mp4 -vframes 1 -q:v 2"},
	}
	for _, tt := range tests {
		t.Run(tt.stream, func(t *testing.T) {
			j := testJob(jobspec.ToolExtract, jobspec.Options{
				Extract: &jobspec.ExtractOptions{Stream: tt.stream, Timestamp: tt.ts},
			})
			plan, err := BuildPlan(j, []string{"/in/a.mp4"}, t.TempDir(), []*probe.Result{videoProbe(60)}, DefaultPresets())
			if err != nil {
				t.Fatalf("BuildPlan: %v", err)
			}
			if got := filepath.Base(plan.Output); got != tt.wantExt {
				t.Errorf("output = %q, want %q", got, tt.wantExt)
			}
			if joined := joinedArgs(t, plan, 0); !strings.Contains(joined, tt.wantArgs) {
				t.Errorf("got %q, want %q", joined, tt.wantArgs)
			}
		})
	}
}

func TestBuildPlanRotateFlip(t *testing.T) {
	tests := []struct {
		name string
		opts jobspec.Options
		tool jobspec.Tool
		want string
	}{
		{"rotate 90", jobspec.Options{Rotate: &jobspec.RotateOptions{Angle: 90}}, jobspec.ToolRotate, "-vf transpose=1"},
		{"rotate 180", jobspec.Options{Rotate: &jobspec.RotateOptions{Angle: 180}}, jobspec.ToolRotate, "-vf transpose=2,transpose=2"},
		{"rotate 270", jobspec.Options{Rotate: &jobspec.RotateOptions{Angle: 270}}, jobspec.ToolRotate, "-vf transpose=2"},
		{"flip horizontal", jobspec.Options{Flip: &jobspec.FlipOptions{Direction: "horizontal"}}, jobspec.ToolFlip, "-vf hflip"},
		{"flip vertical", jobspec.Options{Flip: &jobspec.FlipOptions{Direction: "vertical"}}, jobspec.ToolFlip, "-vf vflip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := testJob(tt.tool, tt.opts)
			plan, err := BuildPlan(j, []string{"/in/a.mp4"}, t.TempDir(), []*probe.Result{videoProbe(10)}, DefaultPresets())
			if err != nil {
				t.Fatalf("BuildPlan: %v", err)
			}
			joined := joinedArgs(t, plan, 0)
			if !strings.Contains(joined, tt.want) {
				t.Errorf("got %q, want %q", joined, tt.want)
			}
			if !strings.Contains(joined, "-c:a copy") {
				t.Errorf("audio should be copied: %q", joined)
			}
		})
	}
}

func TestBuildPlanSpeed(t *testing.T) {
	tests := []struct {
		factor float64
		setpts string
		atempo string
	}{
		{2, "setpts=0.5*PTS", "atempo=2"},
		{0.5, "setpts=2*PTS", "atempo=0.5"},
		{1.5, "setpts=0.6666666666666666*PTS", "atempo=1.5"},
	}
	for _, tt := range tests {
		j := testJob(jobspec.ToolSpeed, jobspec.Options{Speed: &jobspec.SpeedOptions{Factor: tt.factor}})
		plan, err := BuildPlan(j, []string{"/in/a.mp4"}, t.TempDir(), []*probe.Result{videoProbe(10)}, DefaultPresets())
		if err != nil {
			t.Fatalf("BuildPlan: %v", err)
		}
		joined := joinedArgs(t, plan, 0)
		if !strings.Contains(joined, tt.setpts) || !strings.Contains(joined, tt.atempo) {
			t.Errorf("factor %v: got %q, want %q and %q", tt.factor, joined, tt.setpts, tt.atempo)
		}
	}
}

func TestBuildPlanVolume(t *testing.T) {
	j := testJob(jobspec.ToolVolume, jobspec.Options{Volume: &jobspec.VolumeOptions{Percent: 150}})
	plan, err := BuildPlan(j, []string{"/in/a.mp4"}, t.TempDir(), []*probe.Result{videoProbe(10)}, DefaultPresets())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	joined := joinedArgs(t, plan, 0)
	if !strings.Contains(joined, "-af volume=1.5") {
		t.Errorf("wrong volume filter: %q", joined)
	}
	if !strings.Contains(joined, "-c:v copy") {
		t.Errorf("video should be copied: %q", joined)
	}
}

func TestBuildPlanCrop(t *testing.T) {
	j := testJob(jobspec.ToolCrop, jobspec.Options{Crop: &jobspec.CropOptions{Aspect: "1:1"}})
	plan, err := BuildPlan(j, []string{"/in/a.mp4"}, t.TempDir(), []*probe.Result{videoProbe(10)}, DefaultPresets())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if joined := joinedArgs(t, plan, 0); !strings.Contains(joined, "-vf crop=1080:1080:420:0") {
		t.Errorf("wrong crop for 1920x1080 to 1:1: %q", joined)
	}
}

func TestBuildPlanCropAlreadyAtAspect(t *testing.T) {
	j := testJob(jobspec.ToolCrop, jobspec.Options{Crop: &jobspec.CropOptions{Aspect: "16:9"}})
	_, err := BuildPlan(j, []string{"/in/a.mp4"}, t.TempDir(), []*probe.Result{videoProbe(10)}, DefaultPresets())
	if err == nil {
		t.Fatal("expected error when input already matches the aspect")
	}
}

func TestBuildPlanGif(t *testing.T) {
	dir := t.TempDir()
	j := testJob(jobspec.ToolGif, jobspec.Options{Gif: &jobspec.GifOptions{}})
	plan, err := BuildPlan(j, []string{"/in/a.mp4"}, dir, []*probe.Result{videoProbe(10)}, DefaultPresets())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Commands) != 2 {
		t.Fatalf("gif needs palette and render passes, got %d commands", len(plan.Commands))
	}

	palette := joinedArgs(t, plan, 0)
	if !strings.Contains(palette, "fps=10,scale=480:-1:flags=lanczos,palettegen=max_colors=64") {
		t.Errorf("wrong palette pass: %q", palette)
	}
	if plan.Commands[0].Progress {
		t.Error("palette pass should not report progress")
	}

	render := joinedArgs(t, plan, 1)
	if !strings.Contains(render, "[x];[x][1:v]paletteuse") {
		t.Errorf("wrong render pass: %q", render)
	}
	if !strings.Contains(render, filepath.Join(dir, "palette.png")) {
		t.Errorf("render pass should consume the palette: %q", render)
	}
	if got := filepath.Base(plan.Output); got != "output.gif" {
		t.Errorf("output = %q, want output.gif", got)
	}
}

func TestBuildPlanReverse(t *testing.T) {
	j := testJob(jobspec.ToolReverse, jobspec.Options{})
	plan, err := BuildPlan(j, []string{"/in/a.mp4"}, t.TempDir(), []*probe.Result{videoProbe(10)}, DefaultPresets())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	joined := joinedArgs(t, plan, 0)
	if !strings.Contains(joined, "-vf reverse -af areverse") {
		t.Errorf("wrong reverse filters: %q", joined)
	}
	if !strings.Contains(joined, "-avoid_negative_ts make_zero") {
		t.Errorf("missing timestamp fix: %q", joined)
	}
}

func TestTotalFor(t *testing.T) {
	merge := testJob(jobspec.ToolMerge, jobspec.Options{})
	if got := TotalFor(merge, []*probe.Result{videoProbe(10), videoProbe(20)}); got != 30*time.Second {
		t.Errorf("merge total = %v, want 30s", got)
	}

	trim := testJob(jobspec.ToolTrim, jobspec.Options{
		Trim: &jobspec.TrimOptions{Start: "00:05", End: "00:45"},
	})
	if got := TotalFor(trim, []*probe.Result{videoProbe(60)}); got != 40*time.Second {
		t.Errorf("trim total = %v, want 40s", got)
	}
	if got := TotalFor(trim, []*probe.Result{videoProbe(30)}); got != 25*time.Second {
		t.Errorf("clamped trim total = %v, want 25s", got)
	}

	speed := testJob(jobspec.ToolSpeed, jobspec.Options{Speed: &jobspec.SpeedOptions{Factor: 2}})
	if got := TotalFor(speed, []*probe.Result{videoProbe(60)}); got != 30*time.Second {
		t.Errorf("speed total = %v, want 30s", got)
	}

	encode := testJob(jobspec.ToolEncode, jobspec.Options{})
	if got := TotalFor(encode, []*probe.Result{videoProbe(60)}); got != 60*time.Second {
		t.Errorf("encode total = %v, want 60s", got)
	}
}
