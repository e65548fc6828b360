package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz QuizConfig `yaml:"quiz"`
	AI   AIConfig   `yaml:"ai"`
	Log  LogConfig  `yaml:"log"`
}

// QuizConfig bounds room creation and caches generated question sets.
type QuizConfig struct {
	MinQuestions       int    `yaml:"minQuestions"`
	MaxQuestions       int    `yaml:"maxQuestions"`
	MinTimePerQuestion int    `yaml:"minTimePerQuestion"`
	MaxTimePerQuestion int    `yaml:"maxTimePerQuestion"`
	CodeLength         int    `yaml:"codeLength"`
	CodeAttempts       int    `yaml:"codeAttempts"`
	CacheTTL           string `yaml:"cacheTTL"`
}

// AIConfig points at an OpenAI compatible chat completions endpoint.
type AIConfig struct {
	URL     string `yaml:"url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"apiKey"`
	Timeout string `yaml:"timeout"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads YAML config from path and applies defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if key := os.Getenv("AI_API_KEY"); key != "" {
		cfg.AI.APIKey = key
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	setDefault(&c.Quiz.MinQuestions, 5)
	setDefault(&c.Quiz.MaxQuestions, 20)
	setDefault(&c.Quiz.MinTimePerQuestion, 10)
	setDefault(&c.Quiz.MaxTimePerQuestion, 60)
	setDefault(&c.Quiz.CodeLength, 6)
	setDefault(&c.Quiz.CodeAttempts, 10)
	if c.Quiz.CacheTTL == "" {
		c.Quiz.CacheTTL = "10m"
	}
	if c.Redis.TTL == "" {
		c.Redis.TTL = "2h"
	}
	if c.AI.URL == "" {
		c.AI.URL = "https://api.openai.com/v1"
	}
	if c.AI.Model == "" {
		c.AI.Model = "gpt-4o-mini"
	}
	if c.AI.Timeout == "" {
		c.AI.Timeout = "30s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func setDefault(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
