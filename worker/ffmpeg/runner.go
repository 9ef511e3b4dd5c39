package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/SunilSharmaNP/fvt/worker/jobspec"
	"github.com/SunilSharmaNP/fvt/worker/probe"
	"github.com/SunilSharmaNP/fvt/worker/progress"
)

// Runner probes inputs, derives a plan and drives the transcoder
// through it. One Runner serves all tasks; each Run call is
// independent.
type Runner struct {
	bin       string
	killGrace time.Duration
	prober    *probe.Prober
	presets   map[string]EncodePreset
	logger    *zap.Logger
}

func NewRunner(bin string, killGrace time.Duration, prober *probe.Prober, presets map[string]EncodePreset, logger *zap.Logger) *Runner {
	if bin == "" {
		bin = "ffmpeg"
	}
	if killGrace == 0 {
		killGrace = 10 * time.Second
	}
	if presets == nil {
		presets = DefaultPresets()
	}
	return &Runner{
		bin:       bin,
		killGrace: killGrace,
		prober:    prober,
		presets:   presets,
		logger:    logger,
	}
}

// Run executes the job against its fetched inputs and returns the
// artifact path. emit receives progress snapshots as the transcoder
// reports them.
func (r *Runner) Run(ctx context.Context, job *jobspec.Descriptor, inputs []string, workDir string, emit func(progress.Snapshot)) (string, error) {
	probes := make([]*probe.Result, len(inputs))
	for i, in := range inputs {
		res, err := r.prober.Probe(ctx, in)
		if err != nil {
			return "", fmt.Errorf("probe %s: %w", filepath.Base(in), err)
		}
		probes[i] = res
	}

	plan, err := BuildPlan(job, inputs, workDir, probes, r.presets)
	if err != nil {
		return "", err
	}

	tracker := progress.NewTracker(TotalFor(job, probes))
	for _, c := range plan.Commands {
		r.logger.Info("Starting invocation",
			zap.String("task_id", job.ID),
			zap.String("tool", string(job.Tool)),
			zap.String("label", c.Label))

		var onLine func(string)
		if c.Progress && emit != nil {
			onLine = func(line string) {
				if snap, ok := tracker.Observe(line); ok {
					emit(snap)
				}
			}
		}
		if err := r.invoke(ctx, c, onLine); err != nil {
			return "", err
		}
	}

	info, err := os.Stat(plan.Output)
	if err != nil {
		return "", fmt.Errorf("no output produced: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("output %s is empty", filepath.Base(plan.Output))
	}

	r.logger.Info("Invocation complete",
		zap.String("task_id", job.ID),
		zap.String("output", filepath.Base(plan.Output)),
		zap.Int64("size_bytes", info.Size()))
	return plan.Output, nil
}
