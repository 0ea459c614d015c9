package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone    = "UTC"
	configPathEnv      = "ARTICLE_POSTER_CONFIG"
	databasePathEnv    = "DATABASE_PATH"
	openAIAPIKeyEnv    = "OPENAI_API_KEY"
	openAIModelEnv     = "OPENAI_MODEL"
	pixabayAPIKeyEnv   = "PIXABAY_API_KEY"
	publishCategoryEnv = "PUBLISH_CATEGORY"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Pixabay   PixabayConfig   `yaml:"pixabay"`
	Publish   PublishConfig   `yaml:"publish"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig describes the sqlite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// WindowConfig is one preferred publishing daypart: hours in [Start, End).
type WindowConfig struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// SchedulerConfig defines the allocation policies and timer cadence.
type SchedulerConfig struct {
	Timezone       string         `yaml:"timezone"`
	SweepInterval  Duration       `yaml:"sweepInterval"`
	PublishTimeout Duration       `yaml:"publishTimeout"`
	Windows        []WindowConfig `yaml:"windows"`
	BatchSize      int            `yaml:"batchSize"`
	BatchDays      int            `yaml:"batchDays"`
	PerDay         int            `yaml:"perDay"`
	FallbackHour   int            `yaml:"fallbackHour"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// OpenAIConfig defines how to contact the chat-completions API.
type OpenAIConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

// PixabayConfig wires the stock image search API.
type PixabayConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// PublishConfig groups WordPress publishing settings.
type PublishConfig struct {
	CategoryName string `yaml:"categoryName"`
}

// LoggingConfig controls the console logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Scheduler.Windows) == 0 {
		cfg.Scheduler.Windows = defaultConfig().Scheduler.Windows
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.OpenAI.APIKey = v
	}

	if v := os.Getenv(openAIModelEnv); v != "" {
		c.OpenAI.Model = v
	}

	if v := os.Getenv(pixabayAPIKeyEnv); v != "" {
		c.Pixabay.APIKey = v
	}

	if v := os.Getenv(publishCategoryEnv); v != "" {
		c.Publish.CategoryName = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}
	if override.Scheduler.SweepInterval > 0 {
		base.Scheduler.SweepInterval = override.Scheduler.SweepInterval
	}
	if override.Scheduler.PublishTimeout > 0 {
		base.Scheduler.PublishTimeout = override.Scheduler.PublishTimeout
	}
	if len(override.Scheduler.Windows) > 0 {
		base.Scheduler.Windows = override.Scheduler.Windows
	}
	if override.Scheduler.BatchSize > 0 {
		base.Scheduler.BatchSize = override.Scheduler.BatchSize
	}
	if override.Scheduler.BatchDays > 0 {
		base.Scheduler.BatchDays = override.Scheduler.BatchDays
	}
	if override.Scheduler.PerDay > 0 {
		base.Scheduler.PerDay = override.Scheduler.PerDay
	}
	if override.Scheduler.FallbackHour > 0 {
		base.Scheduler.FallbackHour = override.Scheduler.FallbackHour
	}

	if override.OpenAI.Endpoint != "" {
		base.OpenAI.Endpoint = override.OpenAI.Endpoint
	}
	if override.OpenAI.Model != "" {
		base.OpenAI.Model = override.OpenAI.Model
	}
	if override.OpenAI.APIKey != "" {
		base.OpenAI.APIKey = override.OpenAI.APIKey
	}

	if override.Pixabay.Endpoint != "" {
		base.Pixabay.Endpoint = override.Pixabay.Endpoint
	}
	if override.Pixabay.APIKey != "" {
		base.Pixabay.APIKey = override.Pixabay.APIKey
	}

	if override.Publish.CategoryName != "" {
		base.Publish.CategoryName = override.Publish.CategoryName
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database: DatabaseConfig{Path: "data/articleposter.db"},
		Scheduler: SchedulerConfig{
			Timezone:       defaultTimezone,
			SweepInterval:  Duration(10 * time.Minute),
			PublishTimeout: Duration(60 * time.Second),
			Windows: []WindowConfig{
				{Start: 9, End: 11},
				{Start: 13, End: 15},
				{Start: 18, End: 21},
			},
			BatchSize:    10,
			BatchDays:    3,
			PerDay:       3,
			FallbackHour: 9,
			location:     tz,
		},
		OpenAI: OpenAIConfig{
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-4",
			APIKey:   "",
		},
		Pixabay: PixabayConfig{
			Endpoint: "https://pixabay.com/api/",
			APIKey:   "",
		},
		Publish: PublishConfig{CategoryName: "AI記事"},
		Logging: LoggingConfig{Level: "info"},
	}
}
