package ffmpeg

// EncodePreset mirrors the knobs the encode tool exposes. Presets can
// be overridden from a YAML file at startup; these are the built-ins.
type EncodePreset struct {
	VideoCodec   string `yaml:"vcodec"`
	CRF          int    `yaml:"crf"`
	Preset       string `yaml:"preset"`
	Tune         string `yaml:"tune"`
	Profile      string `yaml:"profile"`
	PixFmt       string `yaml:"pix_fmt"`
	AudioCodec   string `yaml:"acodec"`
	AudioBitrate string `yaml:"abitrate"`
	Height       int    `yaml:"height"`
}

const DefaultPresetName = "default_h264"

func DefaultPresets() map[string]EncodePreset {
	return map[string]EncodePreset{
		"default_h264": {
			VideoCodec:   "libx264",
			CRF:          26,
			Preset:       "slow",
			Profile:      "high",
			PixFmt:       "yuv420p",
			AudioCodec:   "aac",
			AudioBitrate: "128k",
		},
		"h265_medium": {
			VideoCodec:   "libx265",
			CRF:          28,
			Preset:       "medium",
			PixFmt:       "yuv420p",
			AudioCodec:   "aac",
			AudioBitrate: "128k",
		},
		"mobile_480p": {
			VideoCodec:   "libx264",
			CRF:          28,
			Preset:       "fast",
			Tune:         "film",
			Profile:      "baseline",
			PixFmt:       "yuv420p",
			AudioCodec:   "aac",
			AudioBitrate: "96k",
			Height:       480,
		},
	}
}
