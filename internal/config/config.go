package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Paths     PathsConfig     `yaml:"paths"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Model     ModelConfig     `yaml:"model"`
	Upload    UploadConfig    `yaml:"upload"`
}

type PathsConfig struct {
	FramesDir    string `yaml:"frames_dir"`
	ThumbnailDir string `yaml:"thumbnail_dir"`
	PostedDir    string `yaml:"posted_dir"`
	InboxDir     string `yaml:"inbox_dir"`
}

type SchedulerConfig struct {
	LeadMinutes         int `yaml:"lead_minutes"`
	EarlyBoundSec       int `yaml:"early_bound_sec"`
	LateBoundSec        int `yaml:"late_bound_sec"`
	PregenIntervalSec   int `yaml:"pregen_interval_sec"`
	PublishIntervalSec  int `yaml:"publish_interval_sec"`
	TemplateIntervalSec int `yaml:"template_interval_sec"`
	ReclaimMinutes      int `yaml:"reclaim_minutes"`
	PublishWorkers      int `yaml:"publish_workers"`
}

type ModelConfig struct {
	Name          string `yaml:"name"`
	BaseURL       string `yaml:"base_url"`
	MaxAttempts   int    `yaml:"max_attempts"`
	TitleMaxChars int    `yaml:"title_max_chars"`
	DescMaxChars  int    `yaml:"desc_max_chars"`
	MinTitleChars int    `yaml:"min_title_chars"`
}

type UploadConfig struct {
	CategoryID string `yaml:"category_id"`
	Privacy    string `yaml:"privacy"`
	Language   string `yaml:"language"`
}

// Default returns the documented defaults: 10m lead, -60s/+300s due window,
// 30s publish cadence.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			FramesDir:    "data/frames",
			ThumbnailDir: "data/thumbnails",
			PostedDir:    "data/posted",
			InboxDir:     "data/inbox",
		},
		Scheduler: SchedulerConfig{
			LeadMinutes:         10,
			EarlyBoundSec:       60,
			LateBoundSec:        300,
			PregenIntervalSec:   60,
			PublishIntervalSec:  30,
			TemplateIntervalSec: 60,
			ReclaimMinutes:      15,
			PublishWorkers:      1,
		},
		Model: ModelConfig{
			Name:          "meta-llama/llama-4-scout-17b-16e-instruct",
			MaxAttempts:   3,
			TitleMaxChars: 60,
			DescMaxChars:  200,
			MinTitleChars: 10,
		},
		Upload: UploadConfig{
			CategoryID: "22",
			Privacy:    "public",
			Language:   "en",
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error; defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c SchedulerConfig) Lead() time.Duration            { return time.Duration(c.LeadMinutes) * time.Minute }
func (c SchedulerConfig) EarlyBound() time.Duration      { return time.Duration(c.EarlyBoundSec) * time.Second }
func (c SchedulerConfig) LateBound() time.Duration       { return time.Duration(c.LateBoundSec) * time.Second }
func (c SchedulerConfig) PregenInterval() time.Duration  { return time.Duration(c.PregenIntervalSec) * time.Second }
func (c SchedulerConfig) PublishInterval() time.Duration { return time.Duration(c.PublishIntervalSec) * time.Second }
func (c SchedulerConfig) TemplateInterval() time.Duration {
	return time.Duration(c.TemplateIntervalSec) * time.Second
}
func (c SchedulerConfig) ReclaimAge() time.Duration { return time.Duration(c.ReclaimMinutes) * time.Minute }
