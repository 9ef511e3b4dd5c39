package jobspec

// Options is a tagged union: the field matching Descriptor.Tool is
// populated, the rest stay nil. Merge and reverse take no options.
type Options struct {
	Encode    *EncodeOptions    `json:"encode,omitempty"`
	Trim      *TrimOptions      `json:"trim,omitempty"`
	Watermark *WatermarkOptions `json:"watermark,omitempty"`
	Sample    *SampleOptions    `json:"sample,omitempty"`
	Extract   *ExtractOptions   `json:"extract,omitempty"`
	Rotate    *RotateOptions    `json:"rotate,omitempty"`
	Flip      *FlipOptions      `json:"flip,omitempty"`
	Speed     *SpeedOptions     `json:"speed,omitempty"`
	Volume    *VolumeOptions    `json:"volume,omitempty"`
	Crop      *CropOptions      `json:"crop,omitempty"`
	Gif       *GifOptions       `json:"gif,omitempty"`
}

// EncodeOptions selects a named preset or overrides individual codec
// parameters. An empty struct means the default preset. Preset names
// are resolved against the runtime preset table, not validated here.
type EncodeOptions struct {
	Preset       string `json:"preset,omitempty"`
	Codec        string `json:"codec,omitempty" validate:"omitempty,oneof=libx264 libx265"`
	CRF          *int   `json:"crf,omitempty" validate:"omitempty,min=0,max=51"`
	Tune         string `json:"tune,omitempty"`
	Profile      string `json:"profile,omitempty"`
	Height       int    `json:"height,omitempty" validate:"omitempty,oneof=360 480 720 1080"`
	AudioBitrate string `json:"audio_bitrate,omitempty"`
	CopyAudio    bool   `json:"copy_audio,omitempty"`
}

type TrimOptions struct {
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

const (
	WatermarkText  = "text"
	WatermarkImage = "image"
)

type WatermarkOptions struct {
	Mode      string  `json:"mode" validate:"required,oneof=text image"`
	Text      string  `json:"text,omitempty"`
	Position  string  `json:"position,omitempty" validate:"omitempty,oneof=top_left top_right bottom_left bottom_right center"`
	Opacity   float64 `json:"opacity,omitempty" validate:"omitempty,gt=0,max=1"`
	FontSize  int     `json:"font_size,omitempty" validate:"omitempty,min=8,max=96"`
	FontColor string  `json:"font_color,omitempty"`
}

type SampleOptions struct {
	Duration int    `json:"duration" validate:"required,min=1,max=600"`
	From     string `json:"from,omitempty" validate:"omitempty,oneof=start middle end random"`
}

const (
	ExtractVideo     = "video"
	ExtractAudio     = "audio"
	ExtractSubtitles = "subtitles"
	ExtractThumbnail = "thumbnail"
)

type ExtractOptions struct {
	Stream    string  `json:"stream" validate:"required,oneof=video audio subtitles thumbnail"`
	Timestamp float64 `json:"timestamp,omitempty" validate:"omitempty,min=0"`
}

type RotateOptions struct {
	Angle int `json:"angle" validate:"required,oneof=90 180 270"`
}

type FlipOptions struct {
	Direction string `json:"direction" validate:"required,oneof=horizontal vertical"`
}

type SpeedOptions struct {
	Factor float64 `json:"factor" validate:"required,min=0.5,max=2"`
}

type VolumeOptions struct {
	Percent int `json:"percent" validate:"required,min=1,max=500"`
}

type CropOptions struct {
	Aspect string `json:"aspect" validate:"required,oneof=16:9 4:3 1:1 9:16"`
}

type GifOptions struct {
	FPS     int    `json:"fps,omitempty" validate:"omitempty,min=5,max=30"`
	Width   int    `json:"width,omitempty" validate:"omitempty,min=240,max=1080"`
	Quality string `json:"quality,omitempty" validate:"omitempty,oneof=low medium high"`
}
