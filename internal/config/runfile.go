package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tendant/simple-reels/internal/publish"
)

// RunFile is the optional YAML description of one reel. Fields that are set
// override the environment.
//
//	prompt: A lighthouse at dawn, waves crashing
//	scenes:
//	  - A lighthouse at dawn
//	  - The beam sweeps across the water
//	voiceover_script: Every morning the light goes out. [Pause] And the day begins.
//	post_text: Dawn at the edge of the world
//	hashtags: [lighthouse, sea]
//	scheduled_time: "2026-05-01T09:00:00Z"
//	targets:
//	  - platform: tiktok
//	  - platform: facebook
//	    pageId: "1234567890"
type RunFile struct {
	Prompt          string           `yaml:"prompt"`
	Scenes          []string         `yaml:"scenes"`
	VoiceoverScript string           `yaml:"voiceover_script"`
	PostText        string           `yaml:"post_text"`
	Hashtags        []string         `yaml:"hashtags"`
	ScheduledTime   string           `yaml:"scheduled_time"`
	TaskID          string           `yaml:"task_id"`
	Targets         []publish.Target `yaml:"targets"`
}

// ReadRunFile parses a YAML run file.
func ReadRunFile(path string) (*RunFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}
	var rf RunFile
	if err := yaml.Unmarshal(b, &rf); err != nil {
		return nil, fmt.Errorf("parse run file %s: %w", path, err)
	}
	return &rf, nil
}
