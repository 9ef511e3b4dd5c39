package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/SunilSharmaNP/fvt/worker/ffmpeg"
)

// LoadPresets returns the built-in encode presets, overlaid with any
// definitions from the YAML file at path. An empty path means
// built-ins only.
func LoadPresets(path string) (map[string]ffmpeg.EncodePreset, error) {
	presets := ffmpeg.DefaultPresets()
	if path == "" {
		return presets, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets file: %w", err)
	}

	var overrides map[string]ffmpeg.EncodePreset
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse presets file: %w", err)
	}

	for name, preset := range overrides {
		presets[name] = preset
	}
	return presets, nil
}
