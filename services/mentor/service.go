// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mentor wires the orchestration loop, the capability registry,
// the webhook notifier and the team feedback pipeline behind the HTTP
// surface.
package mentor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianMentor/services/llm"
	"github.com/AleutianAI/AleutianMentor/services/mentor/agent"
	"github.com/AleutianAI/AleutianMentor/services/mentor/config"
	"github.com/AleutianAI/AleutianMentor/services/mentor/feedback"
	"github.com/AleutianAI/AleutianMentor/services/mentor/notify"
	"github.com/AleutianAI/AleutianMentor/services/mentor/tools"
)

// sessionMaxDuration bounds one async session end to end.
const sessionMaxDuration = 10 * time.Minute

var sessionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "mentor",
		Subsystem: "service",
		Name:      "sessions_total",
		Help:      "Agent sessions by mode and outcome.",
	},
	[]string{"mode", "outcome"},
)

// Service owns the per-process dependencies and runs agent sessions.
//
// Description:
//
//	One Service serves all requests. Each async session gets its own
//	supervisor goroutine and its own Notifier bound to the caller's
//	webhook; the model client, capability registry and verdict cache
//	are shared.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	cfg      *config.MentorConfig
	client   llm.ChatClient
	registry *tools.Registry
	cache    *agent.VerdictCache
	pipeline *feedback.TeamPipeline
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewService creates a Service.
//
// Inputs:
//   - cfg: Loaded configuration. Must not be nil.
//   - client: Model client shared by the loop, the classifier and the
//     team pipeline. Must not be nil.
//   - registry: Capability registry, fully populated. Must not be nil.
//   - cache: Verdict cache. May be nil; classification then always runs.
//   - logger: May be nil.
func NewService(cfg *config.MentorConfig, client llm.ChatClient, registry *tools.Registry, cache *agent.VerdictCache, logger *slog.Logger) *Service {
	if cfg == nil || client == nil || registry == nil {
		panic("NewService: cfg, client and registry must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		client:   client,
		registry: registry,
		cache:    cache,
		pipeline: feedback.NewTeamPipeline(client, logger),
		logger:   logger,
	}
}

// Registry exposes the capability registry for the /tools endpoint and
// the chat CLI.
func (s *Service) Registry() *tools.Registry {
	return s.registry
}

// RunSync answers one question without webhook streaming.
func (s *Service) RunSync(ctx context.Context, role, message string, previous []string) (string, error) {
	answer, err := s.run(ctx, role, message, previous, nil)
	if err != nil {
		sessionsTotal.WithLabelValues("sync", "error").Inc()
		return "", err
	}
	sessionsTotal.WithLabelValues("sync", "ok").Inc()
	return answer, nil
}

// StartSession launches one async session in the background.
//
// Description:
//
//	The supervisor goroutine outlives the HTTP request. It streams
//	progress to the callback URL and guarantees exactly one terminal
//	notification (completed or error) on every exit path, including
//	panics, before releasing the session's notifier.
func (s *Service) StartSession(sessionID, role, message string, previous []string, callbackURL string) {
	s.wg.Add(1)
	go s.runSession(sessionID, role, message, previous, callbackURL)
}

// TeamFeedback runs the loop-free pipeline.
func (s *Service) TeamFeedback(ctx context.Context, sub feedback.Submission, evals []feedback.Evaluation) feedback.Feedback {
	return s.pipeline.Make(ctx, sub, evals)
}

// Wait blocks until every in-flight async session has finished. Called
// during shutdown, after the HTTP server stops accepting requests.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) runSession(sessionID, role, message string, previous []string, callbackURL string) {
	defer s.wg.Done()

	// Detached from the originating request: the session keeps running
	// after the acknowledgement response is sent.
	ctx, cancel := context.WithTimeout(context.Background(), sessionMaxDuration)
	defer cancel()

	notifier := notify.NewNotifier(callbackURL, s.cfg.Notify.Timeout(), s.logger)
	defer notifier.Close()

	logger := s.logger.With(slog.String("session_id", sessionID), slog.String("role", role))

	terminalSent := false
	sendTerminal := func(status agent.Status, text string) {
		if terminalSent {
			return
		}
		terminalSent = true
		// A fresh context: the session deadline must not suppress the
		// terminal notification it caused.
		notifier.Send(context.Background(), notify.Update{
			SessionID:      sessionID,
			PartialMessage: text,
			Status:         string(status),
			IsComplete:     true,
		})
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("session panicked", slog.Any("panic", r))
			sessionsTotal.WithLabelValues("async", "panic").Inc()
			sendTerminal(agent.StatusError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	progress := agent.ProgressFunc(func(ctx context.Context, text string, status agent.Status, isComplete bool) bool {
		return notifier.Send(ctx, notify.Update{
			SessionID:      sessionID,
			PartialMessage: text,
			Status:         string(status),
			IsComplete:     isComplete,
		})
	})

	logger.Info("session started")
	answer, err := s.run(ctx, role, message, previous, progress)
	if err != nil {
		logger.Error("session failed", slog.String("error", err.Error()))
		sessionsTotal.WithLabelValues("async", "error").Inc()
		sendTerminal(agent.StatusError, err.Error())
		return
	}

	logger.Info("session completed")
	sessionsTotal.WithLabelValues("async", "ok").Inc()
	sendTerminal(agent.StatusCompleted, answer)
}

func (s *Service) run(ctx context.Context, role, message string, previous []string, progress agent.ProgressFunc) (string, error) {
	persona, err := personaFor(role)
	if err != nil {
		return "", err
	}

	invoker := agent.NewInvoker(s.registry, s.cfg.Agent.ResultMaxChars, s.logger)
	classifier := agent.NewClassifier(s.client, s.cfg.Classifier, s.cache, s.logger)
	loop := agent.NewLoop(s.client, invoker, classifier, s.cfg, progress, s.logger)

	seed := s.seedMessages(persona, previous)
	return loop.Run(ctx, message, seed)
}

func personaFor(role string) (string, error) {
	switch role {
	case RoleCoordinator:
		return feedback.CoordinatorPersona(), nil
	case RoleTeacher:
		return feedback.TeacherPersona(), nil
	default:
		return "", fmt.Errorf("mentor: unknown user role %q", role)
	}
}

// seedMessages builds the conversation seed: the capability-aware system
// preamble, then the trimmed client-provided history as context.
func (s *Service) seedMessages(persona string, previous []string) []llm.Message {
	preamble := agent.SystemPreamble(persona, s.registry.CatalogText(), s.cfg.Agent.CompletionSentinel)
	seed := []llm.Message{{Role: "system", Content: preamble}}

	history := trimHistory(previous, s.cfg.History.MaxMessages)
	if len(history) > 0 {
		seed = append(seed, llm.Message{
			Role:    "user",
			Content: "CONVERSATION HISTORY:\n" + strings.Join(history, "\n"),
		})
	}
	return seed
}

func trimHistory(previous []string, max int) []string {
	if max > 0 && len(previous) > max {
		return previous[len(previous)-max:]
	}
	return previous
}
