// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the mentor service's agent configuration from an
// embedded YAML document, with environment variable overrides for the
// values operators most often tune.
package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Default Configuration
// =============================================================================

//go:embed mentor_config.yaml
var defaultMentorConfigYAML []byte

// MaxYAMLFileSize caps config documents to prevent pathological inputs.
const MaxYAMLFileSize = 1 * 1024 * 1024

// =============================================================================
// Configuration Types
// =============================================================================

// MentorConfig is the full configuration for the mentor agent service.
//
// Description:
//
//	Groups the tunables for the tool-use loop, the result classifier,
//	the final synthesis prompt, follow-up prompt budgets, webhook
//	delivery, and history seeding.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type MentorConfig struct {
	Agent      AgentConfig      `yaml:"agent"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Synthesis  SynthesisConfig  `yaml:"synthesis"`
	Followup   FollowupConfig   `yaml:"followup"`
	Notify     NotifyConfig     `yaml:"notify"`
	History    HistoryConfig    `yaml:"history"`
}

// AgentConfig controls the tool-use loop.
type AgentConfig struct {
	// MaxIterations is the hard cap on tool-use rounds per session.
	MaxIterations int `yaml:"max_iterations"`

	// IterationDelaySeconds is the pause between rounds.
	IterationDelaySeconds int `yaml:"iteration_delay_seconds"`

	// ResultMaxChars truncates serialized tool results beyond this length.
	ResultMaxChars int `yaml:"result_max_chars"`

	// CompletionSentinel ends the loop when present in a model reply.
	// Matched case-insensitively.
	CompletionSentinel string `yaml:"completion_sentinel"`
}

// ClassifierConfig controls the success/error judgment of tool results.
type ClassifierConfig struct {
	// Temperature for the judgment model call.
	Temperature float32 `yaml:"temperature"`

	// MaxTokens for the judgment model call. The reply is one token.
	MaxTokens int `yaml:"max_tokens"`

	// ErrorKeywords mark a result as failed when the judgment call is
	// unavailable. Matched case-insensitively as substrings.
	ErrorKeywords []string `yaml:"error_keywords"`

	// CacheTTLMinutes is how long cached verdicts stay valid.
	CacheTTLMinutes int `yaml:"cache_ttl_minutes"`
}

// SynthesisConfig caps the material fed into the final summary prompt.
type SynthesisConfig struct {
	MaxSuccesses        int `yaml:"max_successes"`
	SuccessPreviewChars int `yaml:"success_preview_chars"`
	MaxFailures         int `yaml:"max_failures"`
	FailurePreviewChars int `yaml:"failure_preview_chars"`
	MaxTokens           int `yaml:"max_tokens"`
}

// FollowupConfig sets token budgets for the follow-up prompt branches
// and the simplified retry after a model timeout.
type FollowupConfig struct {
	CorrectiveMaxTokens  int     `yaml:"corrective_max_tokens"`
	ProgressMaxTokens    int     `yaml:"progress_max_tokens"`
	AlternativeMaxTokens int     `yaml:"alternative_max_tokens"`
	RetryTemperature     float32 `yaml:"retry_temperature"`
	RetryMaxTokens       int     `yaml:"retry_max_tokens"`
}

// NotifyConfig controls webhook delivery.
type NotifyConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// HistoryConfig controls session seeding from client-provided history.
type HistoryConfig struct {
	MaxMessages int `yaml:"max_messages"`
}

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultMaxIterations is the default tool-use round cap.
	DefaultMaxIterations = 10

	// DefaultIterationDelaySeconds is the default inter-round pause.
	DefaultIterationDelaySeconds = 2

	// DefaultResultMaxChars is the default tool result truncation point.
	DefaultResultMaxChars = 5000

	// DefaultCompletionSentinel ends the loop when the model says it.
	DefaultCompletionSentinel = "LISTO"

	// DefaultHistoryMaxMessages is the default history window.
	DefaultHistoryMaxMessages = 20

	// DefaultNotifyTimeoutSeconds is the default webhook timeout.
	DefaultNotifyTimeoutSeconds = 10
)

// IterationDelay returns the inter-round pause as a time.Duration.
func (a AgentConfig) IterationDelay() time.Duration {
	return time.Duration(a.IterationDelaySeconds) * time.Second
}

// CacheTTL returns the classifier cache lifetime as a time.Duration.
func (c ClassifierConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// Timeout returns the webhook delivery timeout as a time.Duration.
func (n NotifyConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// =============================================================================
// Singleton Config
// =============================================================================

var (
	mentorConfigMu      sync.RWMutex
	mentorConfigOnce    sync.Once
	cachedMentorConfig  *MentorConfig
	mentorConfigLoadErr error
)

// GetMentorConfig returns the cached mentor configuration.
//
// Description:
//
//	Loads the embedded defaults on first call, applies environment
//	overrides, and caches the result for subsequent calls.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//
// Outputs:
//
//	*MentorConfig - The loaded configuration. Never nil on success.
//	error - Non-nil if loading or validation failed.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func GetMentorConfig(ctx context.Context) (*MentorConfig, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetMentorConfig: ctx must not be nil")
	}

	mentorConfigMu.RLock()
	if cachedMentorConfig != nil || mentorConfigLoadErr != nil {
		cfg, err := cachedMentorConfig, mentorConfigLoadErr
		mentorConfigMu.RUnlock()
		return cfg, err
	}
	mentorConfigMu.RUnlock()

	mentorConfigMu.Lock()
	defer mentorConfigMu.Unlock()

	if cachedMentorConfig != nil || mentorConfigLoadErr != nil {
		return cachedMentorConfig, mentorConfigLoadErr
	}

	mentorConfigOnce.Do(func() {
		cachedMentorConfig, mentorConfigLoadErr = LoadMentorConfig(defaultMentorConfigYAML)
	})

	return cachedMentorConfig, mentorConfigLoadErr
}

// ResetMentorConfig resets the cached config for testing.
//
// Thread Safety: Safe for concurrent use.
func ResetMentorConfig() {
	mentorConfigMu.Lock()
	defer mentorConfigMu.Unlock()
	cachedMentorConfig = nil
	mentorConfigLoadErr = nil
	mentorConfigOnce = sync.Once{}
}

// LoadMentorConfig loads and validates a MentorConfig from YAML bytes.
//
// Description:
//
//	Parses the YAML, applies defaults for missing fields, applies
//	environment overrides, and validates the result.
//
// Inputs:
//
//	data - Raw YAML bytes to parse.
//
// Outputs:
//
//	*MentorConfig - The validated configuration.
//	error - Non-nil if parsing or validation fails.
func LoadMentorConfig(data []byte) (*MentorConfig, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("LoadMentorConfig: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadMentorConfig: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var cfg MentorConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("LoadMentorConfig: parsing YAML: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := validateMentorConfig(&cfg); err != nil {
		return nil, fmt.Errorf("LoadMentorConfig: validation: %w", err)
	}

	slog.Info("mentor config loaded",
		slog.Int("max_iterations", cfg.Agent.MaxIterations),
		slog.Int("iteration_delay_s", cfg.Agent.IterationDelaySeconds),
		slog.Int("result_max_chars", cfg.Agent.ResultMaxChars),
		slog.String("completion_sentinel", cfg.Agent.CompletionSentinel),
		slog.Int("classifier_keywords", len(cfg.Classifier.ErrorKeywords)),
	)

	return &cfg, nil
}

func applyDefaults(cfg *MentorConfig) {
	if cfg.Agent.MaxIterations <= 0 {
		cfg.Agent.MaxIterations = DefaultMaxIterations
	}
	if cfg.Agent.IterationDelaySeconds < 0 {
		cfg.Agent.IterationDelaySeconds = DefaultIterationDelaySeconds
	}
	if cfg.Agent.ResultMaxChars <= 0 {
		cfg.Agent.ResultMaxChars = DefaultResultMaxChars
	}
	if cfg.Agent.CompletionSentinel == "" {
		cfg.Agent.CompletionSentinel = DefaultCompletionSentinel
	}
	if cfg.Classifier.MaxTokens <= 0 {
		cfg.Classifier.MaxTokens = 10
	}
	if cfg.Classifier.Temperature <= 0 {
		cfg.Classifier.Temperature = 0.1
	}
	if cfg.Classifier.ErrorKeywords == nil {
		cfg.Classifier.ErrorKeywords = []string{
			"error", "missing", "not found", "denied",
			"forbidden", "invalid", "failed", "unable",
		}
	}
	if cfg.Classifier.CacheTTLMinutes <= 0 {
		cfg.Classifier.CacheTTLMinutes = 60
	}
	if cfg.Synthesis.MaxSuccesses <= 0 {
		cfg.Synthesis.MaxSuccesses = 3
	}
	if cfg.Synthesis.SuccessPreviewChars <= 0 {
		cfg.Synthesis.SuccessPreviewChars = 1000
	}
	if cfg.Synthesis.MaxFailures <= 0 {
		cfg.Synthesis.MaxFailures = 2
	}
	if cfg.Synthesis.FailurePreviewChars <= 0 {
		cfg.Synthesis.FailurePreviewChars = 500
	}
	if cfg.Synthesis.MaxTokens <= 0 {
		cfg.Synthesis.MaxTokens = 1500
	}
	if cfg.Followup.CorrectiveMaxTokens <= 0 {
		cfg.Followup.CorrectiveMaxTokens = 700
	}
	if cfg.Followup.ProgressMaxTokens <= 0 {
		cfg.Followup.ProgressMaxTokens = 500
	}
	if cfg.Followup.AlternativeMaxTokens <= 0 {
		cfg.Followup.AlternativeMaxTokens = 600
	}
	if cfg.Followup.RetryMaxTokens <= 0 {
		cfg.Followup.RetryMaxTokens = 300
	}
	if cfg.Followup.RetryTemperature <= 0 {
		cfg.Followup.RetryTemperature = 0.3
	}
	if cfg.Notify.TimeoutSeconds <= 0 {
		cfg.Notify.TimeoutSeconds = DefaultNotifyTimeoutSeconds
	}
	if cfg.History.MaxMessages <= 0 {
		cfg.History.MaxMessages = DefaultHistoryMaxMessages
	}
}

// applyEnvOverrides lets operators tune the loop without rebuilding.
// Unparseable values are logged and ignored.
func applyEnvOverrides(cfg *MentorConfig) {
	if v := os.Getenv("MENTOR_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxIterations = n
		} else {
			slog.Warn("ignoring invalid MENTOR_MAX_ITERATIONS", slog.String("value", v))
		}
	}
	if v := os.Getenv("MENTOR_ITERATION_DELAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Agent.IterationDelaySeconds = n
		} else {
			slog.Warn("ignoring invalid MENTOR_ITERATION_DELAY_SECONDS", slog.String("value", v))
		}
	}
	if v := os.Getenv("MENTOR_RESULT_MAX_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.ResultMaxChars = n
		} else {
			slog.Warn("ignoring invalid MENTOR_RESULT_MAX_CHARS", slog.String("value", v))
		}
	}
	if v := os.Getenv("MENTOR_COMPLETION_SENTINEL"); v != "" {
		cfg.Agent.CompletionSentinel = v
	}
	if v := os.Getenv("MENTOR_HISTORY_MAX_MESSAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.History.MaxMessages = n
		} else {
			slog.Warn("ignoring invalid MENTOR_HISTORY_MAX_MESSAGES", slog.String("value", v))
		}
	}
}

// validateMentorConfig checks loaded values for consistency.
func validateMentorConfig(cfg *MentorConfig) error {
	if cfg.Agent.MaxIterations > 100 {
		return fmt.Errorf("agent.max_iterations too large (%d > 100)", cfg.Agent.MaxIterations)
	}
	if cfg.Classifier.Temperature < 0 || cfg.Classifier.Temperature > 2 {
		return fmt.Errorf("classifier.temperature out of range: %v", cfg.Classifier.Temperature)
	}
	if len(cfg.Classifier.ErrorKeywords) == 0 {
		return fmt.Errorf("classifier.error_keywords must not be empty")
	}
	for i, kw := range cfg.Classifier.ErrorKeywords {
		if kw == "" {
			return fmt.Errorf("classifier.error_keywords[%d] must not be empty", i)
		}
	}
	if cfg.Synthesis.MaxTokens < cfg.Followup.ProgressMaxTokens {
		return fmt.Errorf("synthesis.max_tokens (%d) must be at least followup.progress_max_tokens (%d)",
			cfg.Synthesis.MaxTokens, cfg.Followup.ProgressMaxTokens)
	}
	return nil
}
