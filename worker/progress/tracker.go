package progress

import (
	"regexp"
	"strconv"
	"time"
)

// The transcoder's stderr is a best-effort text protocol: stats lines
// carry "time=HH:MM:SS.cc" and "speed=N.NNx", the input banner carries
// "Duration: HH:MM:SS.cc". Anything else is ignored.
var (
	durationRe = regexp.MustCompile(`Duration: (\d{2}):(\d{2}):(\d{2}\.\d{2})`)
	timeRe     = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2}\.\d{2})`)
	speedRe    = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// Snapshot is a point-in-time view of one running invocation.
type Snapshot struct {
	Fraction  float64       `json:"fraction"`
	Processed time.Duration `json:"processed"`
	Total     time.Duration `json:"total"`
	Elapsed   time.Duration `json:"elapsed"`
	Remaining time.Duration `json:"remaining"`
	Speed     float64       `json:"speed"`
}

// Tracker accumulates progress for a single invocation and is
// discarded with it. Not safe for concurrent use; the invocation's
// stderr reader is the only caller.
type Tracker struct {
	total       time.Duration
	start       time.Time
	speed       float64
	processed   time.Duration
	lastEmitted float64
	emittedAny  bool
	now         func() time.Time
}

func NewTracker(total time.Duration) *Tracker {
	t := &Tracker{
		total: total,
		now:   time.Now,
	}
	t.start = t.now()
	return t
}

// SetTotal overrides the expected duration; used when probing already
// determined it. A zero total leaves the fraction at zero until a
// Duration line shows up.
func (t *Tracker) SetTotal(total time.Duration) {
	t.total = total
}

// Observe consumes one raw line. It returns a snapshot and true when
// the line advanced progress; malformed or stale lines return false
// and keep the last good state.
func (t *Tracker) Observe(line string) (Snapshot, bool) {
	if t.total == 0 {
		if m := durationRe.FindStringSubmatch(line); m != nil {
			t.total = hmsToDuration(m[1], m[2], m[3])
			return Snapshot{}, false
		}
	}

	if m := speedRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
			t.speed = v
		}
	}

	m := timeRe.FindStringSubmatch(line)
	if m == nil {
		return Snapshot{}, false
	}
	t.processed = hmsToDuration(m[1], m[2], m[3])

	snap := t.snapshot()
	if t.emittedAny && snap.Fraction < t.lastEmitted {
		// Out-of-order read; never let a stale fraction overwrite a
		// newer one.
		return Snapshot{}, false
	}
	t.lastEmitted = snap.Fraction
	t.emittedAny = true
	return snap, true
}

// Current returns the latest state without consuming a line.
func (t *Tracker) Current() Snapshot {
	return t.snapshot()
}

func (t *Tracker) snapshot() Snapshot {
	elapsed := t.now().Sub(t.start)

	var fraction float64
	if t.total > 0 {
		fraction = float64(t.processed) / float64(t.total)
		if fraction > 1 {
			fraction = 1
		}
	}

	var remaining time.Duration
	if fraction > 0.001 {
		remaining = time.Duration(float64(elapsed) * (1 - fraction) / fraction)
	}

	return Snapshot{
		Fraction:  fraction,
		Processed: t.processed,
		Total:     t.total,
		Elapsed:   elapsed,
		Remaining: remaining,
		Speed:     t.speed,
	}
}

func hmsToDuration(h, m, s string) time.Duration {
	hours, _ := strconv.Atoi(h)
	mins, _ := strconv.Atoi(m)
	secs, _ := strconv.ParseFloat(s, 64)
	total := float64(hours)*3600 + float64(mins)*60 + secs
	return time.Duration(total * float64(time.Second))
}
