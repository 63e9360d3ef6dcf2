// Package config reads the optional wisp.yaml file that tunes REPL and VM
// defaults, grounded on funvibe-funxy/internal/ext/config.go's yaml-tag
// struct pattern (plain fields, `yaml:"...,omitempty"` on anything with a
// sensible zero-value default).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level shape of wisp.yaml.
type Config struct {
	// Prompt is the string the REPL prints before reading each line.
	Prompt string `yaml:"prompt,omitempty"`

	// Prelude is a path to a source file loaded into every session before
	// the REPL or the requested file runs.
	Prelude string `yaml:"prelude,omitempty"`

	// StackSize is the operand stack's capacity, in Values.
	StackSize int `yaml:"stack_size,omitempty"`

	// FrameCapacity is the frame heap's capacity, in frames.
	FrameCapacity int `yaml:"frame_capacity,omitempty"`
}

// Default returns the configuration used when no wisp.yaml is present, or a
// field is left unset within one that is.
func Default() Config {
	return Config{
		Prompt:        "wisp> ",
		StackSize:     4096,
		FrameCapacity: 1024,
	}
}

// Load reads wisp.yaml at path, applying its values over Default(). A
// missing file is not an error: the caller gets the defaults back.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if parsed.Prompt != "" {
		cfg.Prompt = parsed.Prompt
	}
	if parsed.Prelude != "" {
		cfg.Prelude = parsed.Prelude
	}
	if parsed.StackSize != 0 {
		cfg.StackSize = parsed.StackSize
	}
	if parsed.FrameCapacity != 0 {
		cfg.FrameCapacity = parsed.FrameCapacity
	}
	return cfg, nil
}
