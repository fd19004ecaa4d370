package pipeline

import (
	"time"

	"clipforge/internal/config"
	"clipforge/internal/models"
)

// Config tunes one orchestrator.
type Config struct {
	// Kind is the media feature this orchestrator serves.
	Kind string

	PollInterval    time.Duration
	MaxPollAttempts int
	SourceURLTTL    time.Duration
	ResultURLTTL    time.Duration
	MaxClipSeconds  int

	DefaultMusicURL string
	BadMusicURLs    []string

	ChargeMode models.ChargeMode

	// PersistTimeout bounds failure bookkeeping, which runs detached from
	// the task context.
	PersistTimeout time.Duration
}

// ConfigFrom maps process configuration onto an orchestrator Config.
func ConfigFrom(kind string, p config.PipelineConfig) Config {
	return Config{
		Kind:            kind,
		PollInterval:    p.PollInterval,
		MaxPollAttempts: p.MaxPollAttempts,
		SourceURLTTL:    p.SourceURLTTL,
		ResultURLTTL:    p.ResultURLTTL,
		MaxClipSeconds:  p.MaxClipSeconds,
		DefaultMusicURL: p.DefaultMusicURL,
		BadMusicURLs:    p.BadMusicURLs,
		ChargeMode:      models.ChargeMode(p.CreditMode),
	}
}

func (c Config) withDefaults() Config {
	if c.Kind == "" {
		c.Kind = "video"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = 60
	}
	if c.SourceURLTTL <= 0 {
		c.SourceURLTTL = 15 * time.Minute
	}
	if c.ResultURLTTL <= 0 {
		c.ResultURLTTL = 15 * time.Minute
	}
	if c.ChargeMode == "" {
		c.ChargeMode = models.ChargeCheck
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 10 * time.Second
	}
	return c
}
