package jobspec

import (
	"fmt"
	"strconv"
	"strings"
)

type Tool string

const (
	ToolMerge     Tool = "merge"
	ToolEncode    Tool = "encode"
	ToolTrim      Tool = "trim"
	ToolWatermark Tool = "watermark"
	ToolSample    Tool = "sample"
	ToolExtract   Tool = "extract"
	ToolRotate    Tool = "rotate"
	ToolFlip      Tool = "flip"
	ToolSpeed     Tool = "speed"
	ToolVolume    Tool = "volume"
	ToolCrop      Tool = "crop"
	ToolGif       Tool = "gif"
	ToolReverse   Tool = "reverse"
)

var knownTools = map[Tool]bool{
	ToolMerge:     true,
	ToolEncode:    true,
	ToolTrim:      true,
	ToolWatermark: true,
	ToolSample:    true,
	ToolExtract:   true,
	ToolRotate:    true,
	ToolFlip:      true,
	ToolSpeed:     true,
	ToolVolume:    true,
	ToolCrop:      true,
	ToolGif:       true,
	ToolReverse:   true,
}

func (t Tool) Valid() bool {
	return knownTools[t]
}

// InputRef is a single input reference: either a path on the local
// filesystem or an http(s) URL to download.
type InputRef string

func (r InputRef) Remote() bool {
	s := string(r)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Descriptor is the immutable record of a validated transformation
// request. It seeds exactly one task.
type Descriptor struct {
	ID          string     `json:"id"`
	TraceID     string     `json:"trace_id"`
	RequesterID int64      `json:"requester_id"`
	ChatID      int64      `json:"chat_id"`
	Tool        Tool       `json:"tool"`
	Inputs      []InputRef `json:"inputs"`
	Options     Options    `json:"options"`
}

// ParseTimecode accepts plain seconds ("90", "90.5"), MM:SS or
// HH:MM:SS(.cc) and returns seconds.
func ParseTimecode(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timecode")
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timecode %q", s)
	}

	total := 0.0
	for _, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timecode %q", s)
		}
		total = total*60 + v
	}
	return total, nil
}
