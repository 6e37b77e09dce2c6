// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianMentor/services/llm"
	"github.com/AleutianAI/AleutianMentor/services/mentor/config"
)

var agentTracer = otel.Tracer("services/mentor/agent")

// Default sampling for the primary model calls. Follow-up and synthesis
// calls override only the token budget.
const (
	defaultTemperature = float32(0.7)
	defaultMaxTokens   = 2000
)

// =============================================================================
// Orchestration Loop
// =============================================================================

// Loop drives one session's tool-use rounds.
//
// Description:
//
//	Each round: call the primary model, extract capability requests,
//	execute them sequentially in source order, classify every result,
//	and build the matching follow-up prompt. The loop ends when the
//	model emits the completion sentinel, produces no further requests,
//	or exhausts the iteration budget; it then synthesizes a final
//	answer from a bounded evidence summary.
//
//	Model transport failures degrade to empty responses: one simplified
//	retry with reduced context, then graceful termination. No tool
//	failure is ever fatal.
//
// Thread Safety: A Loop value is safe for concurrent use; each Run call
// keeps all mutable state on its own stack. The rate limiter is shared,
// which also spaces out rounds across concurrent sessions.
type Loop struct {
	client     llm.ChatClient
	invoker    *Invoker
	classifier *Classifier
	cfg        *config.MentorConfig
	limiter    *rate.Limiter
	progress   ProgressFunc
	logger     *slog.Logger
}

// NewLoop creates a Loop.
//
// Inputs:
//   - client: Primary model client. Must not be nil.
//   - invoker: Capability invoker. Must not be nil.
//   - classifier: Result classifier. Must not be nil.
//   - cfg: Loaded mentor configuration. Must not be nil.
//   - progress: Progress publisher. May be nil.
//   - logger: May be nil.
func NewLoop(client llm.ChatClient, invoker *Invoker, classifier *Classifier, cfg *config.MentorConfig, progress ProgressFunc, logger *slog.Logger) *Loop {
	if client == nil || invoker == nil || classifier == nil || cfg == nil {
		panic("NewLoop: client, invoker, classifier and cfg must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	// rate.Every spaces iterations at the configured delay; burst 1 lets
	// the first round proceed immediately.
	delay := cfg.Agent.IterationDelay()
	var limiter *rate.Limiter
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}

	return &Loop{
		client:     client,
		invoker:    invoker,
		classifier: classifier,
		cfg:        cfg,
		limiter:    limiter,
		progress:   progress,
		logger:     logger,
	}
}

// Run executes the loop for one query.
//
// Description:
//
//	seed must already contain the conversation history and the
//	capability-description system preamble; Run appends the user query
//	and drives the rounds.
//
// Inputs:
//   - ctx: Context for the whole session.
//   - query: The user's question.
//   - seed: Prior messages including the system preamble.
//
// Outputs:
//   - string: The final answer text.
//   - error: Non-nil only when the very first model call yields nothing;
//     every later failure degrades to a best-effort answer.
func (l *Loop) Run(ctx context.Context, query string, seed []llm.Message) (string, error) {
	ctx, span := agentTracer.Start(ctx, "agent.Loop.Run")
	defer span.End()
	start := time.Now()

	messages := make([]llm.Message, 0, len(seed)+2)
	messages = append(messages, seed...)
	messages = append(messages, llm.Message{Role: "user", Content: query})

	l.progress.publish(ctx, "Analyzing your question...", StatusProcessing, false)

	current := l.chatText(ctx, messages, defaultMaxTokens)
	if current == "" {
		recordLoopRun(start, 0, "initial_timeout")
		return "", fmt.Errorf("agent: model returned no content for initial call")
	}

	if !LooksLikeToolRequest(current) {
		span.SetAttributes(attribute.String("termination", "direct"))
		recordLoopRun(start, 1, "direct")
		return current, nil
	}

	var allRecords []ToolExecutionRecord
	iteration := 0
	reason := "no_requests"
	budget := l.cfg.Agent.MaxIterations
	sentinel := l.cfg.Agent.CompletionSentinel

	for iteration < budget && LooksLikeToolRequest(current) {
		iteration++

		requests := ExtractRequests(current)
		if len(requests) == 0 {
			reason = "no_requests"
			break
		}

		l.logger.Info("executing capability requests",
			slog.Int("iteration", iteration),
			slog.Int("budget", budget),
			slog.Int("requests", len(requests)),
		)
		l.progress.publish(ctx,
			fmt.Sprintf("Running %d capability request(s), iteration %d/%d...", len(requests), iteration, budget),
			StatusProcessing, false)

		records := l.executeRound(ctx, requests, iteration)
		allRecords = append(allRecords, records...)
		outcome := partition(records)

		messages = l.appendFollowup(messages, outcome, records, query, iteration, budget)
		reply := l.followupReply(ctx, messages, outcome, iteration, budget)

		if reply == "" {
			// One simplified retry with reduced context, then give up.
			reply = l.retrySimplified(ctx, query, iteration)
			if reply == "" {
				reason = "timeout"
				break
			}
		}

		current = reply
		if strings.Contains(strings.ToUpper(reply), strings.ToUpper(sentinel)) {
			reason = "sentinel"
			break
		}

		if iteration >= budget {
			reason = "budget"
			break
		}
		if err := l.waitBetweenIterations(ctx); err != nil {
			reason = "cancelled"
			break
		}
	}
	if iteration >= budget && reason == "no_requests" {
		reason = "budget"
	}

	span.SetAttributes(
		attribute.String("termination", reason),
		attribute.Int("iterations", iteration),
		attribute.Int("tool_executions", len(allRecords)),
	)
	recordLoopRun(start, iteration, reason)

	return l.finalAnswer(ctx, messages, allRecords, current, query), nil
}

// executeRound runs one iteration's requests sequentially, in source
// order, classifying each result. Later requests are not informed of
// earlier ones' results within the same round.
func (l *Loop) executeRound(ctx context.Context, requests []ToolInvocationRequest, iteration int) []ToolExecutionRecord {
	ctx, span := agentTracer.Start(ctx, "agent.Loop.executeRound")
	defer span.End()
	span.SetAttributes(
		attribute.Int("iteration", iteration),
		attribute.Int("requests", len(requests)),
	)

	records := make([]ToolExecutionRecord, 0, len(requests))
	for i, req := range requests {
		l.logger.Info("invoking capability",
			slog.String("tool", req.Name),
			slog.Int("position", i+1),
			slog.Int("of", len(requests)),
		)

		rec := ToolExecutionRecord{
			Request:   req,
			Result:    l.invoker.Invoke(ctx, req),
			Iteration: iteration,
		}
		rec.IsError = l.classifier.Classify(ctx, req, rec.ResultJSON())

		if rec.IsError {
			l.logger.Warn("capability result classified as error", slog.String("tool", req.Name))
		}
		records = append(records, rec)
	}
	return records
}

// appendFollowup appends the iteration's assistant note and the branch-
// specific user message to the conversation.
func (l *Loop) appendFollowup(messages []llm.Message, outcome IterationOutcome, records []ToolExecutionRecord, query string, iteration, budget int) []llm.Message {
	sentinel := l.cfg.Agent.CompletionSentinel

	var note, followup string
	switch {
	case len(outcome.Failed) > 0 && iteration < budget:
		note = fmt.Sprintf("I executed capabilities in iteration %d but encountered some errors.", iteration)
		followup = correctivePrompt(outcome, query, sentinel)
	case len(outcome.Succeeded) > 0:
		note = fmt.Sprintf("I executed the capabilities for iteration %d.", iteration)
		followup = progressPrompt(records, query, sentinel)
	default:
		note = fmt.Sprintf("Every capability in iteration %d failed.", iteration)
		followup = alternativePrompt(outcome, query, sentinel)
	}

	messages = append(messages, llm.Message{Role: "assistant", Content: note})
	messages = append(messages, llm.Message{Role: "user", Content: followup})
	return messages
}

// followupReply sends the follow-up with the branch's token budget.
func (l *Loop) followupReply(ctx context.Context, messages []llm.Message, outcome IterationOutcome, iteration, budget int) string {
	var maxTokens int
	switch {
	case len(outcome.Failed) > 0 && iteration < budget:
		maxTokens = l.cfg.Followup.CorrectiveMaxTokens
	case len(outcome.Succeeded) > 0:
		maxTokens = l.cfg.Followup.ProgressMaxTokens
	default:
		maxTokens = l.cfg.Followup.AlternativeMaxTokens
	}
	return l.chatText(ctx, messages, maxTokens)
}

// retrySimplified issues the one reduced-context retry after an empty
// reply.
func (l *Loop) retrySimplified(ctx context.Context, query string, iteration int) string {
	l.logger.Warn("empty model reply, retrying with simplified context", slog.Int("iteration", iteration))

	simple := []llm.Message{{
		Role:    "user",
		Content: retryPrompt(query, iteration, l.cfg.Agent.CompletionSentinel),
	}}
	params := llm.GenerationParams{
		Temperature: llm.Ptr(l.cfg.Followup.RetryTemperature),
		MaxTokens:   llm.Ptr(l.cfg.Followup.RetryMaxTokens),
	}
	reply, err := l.client.Chat(ctx, simple, params)
	if err != nil {
		l.logger.Warn("simplified retry failed", slog.String("error", err.Error()))
		return ""
	}
	return strings.TrimSpace(reply)
}

// finalAnswer synthesizes the answer after the loop ends.
//
// With no records, the last model text is the answer. With records, one
// more model call composes the answer from a bounded evidence summary;
// if that reply still looks like a capability request it is discarded
// for a canned fallback, preventing recursive tool use.
func (l *Loop) finalAnswer(ctx context.Context, messages []llm.Message, allRecords []ToolExecutionRecord, current, query string) string {
	if len(allRecords) == 0 {
		if current == "" {
			return noToolsTimeoutAnswer
		}
		return current
	}

	ctx, span := agentTracer.Start(ctx, "agent.Loop.finalAnswer")
	defer span.End()

	l.progress.publish(ctx, "Composing the final answer...", StatusProcessing, false)

	final := append(messages, llm.Message{
		Role:    "user",
		Content: synthesisPrompt(allRecords, query, l.cfg.Synthesis),
	})
	reply := l.chatText(ctx, final, l.cfg.Synthesis.MaxTokens)

	if reply == "" {
		span.SetAttributes(attribute.String("synthesis", "timeout"))
		return fallbackAfterTimeout(allRecords)
	}
	if LooksLikeToolRequest(reply) {
		l.logger.Warn("synthesis reply attempted further tool use, substituting fallback")
		span.SetAttributes(attribute.String("synthesis", "fallback"))
		return fallbackAnswer(allRecords)
	}
	span.SetAttributes(attribute.String("synthesis", "model"))
	return reply
}

// chatText calls the primary model and degrades every failure to "".
func (l *Loop) chatText(ctx context.Context, messages []llm.Message, maxTokens int) string {
	params := llm.GenerationParams{
		Temperature: llm.Ptr(defaultTemperature),
		MaxTokens:   llm.Ptr(maxTokens),
	}
	reply, err := l.client.Chat(ctx, messages, params)
	if err != nil {
		l.logger.Warn("primary model call failed", slog.String("error", err.Error()))
		return ""
	}
	return strings.TrimSpace(reply)
}

// waitBetweenIterations applies the inter-iteration delay.
func (l *Loop) waitBetweenIterations(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("agent: iteration pacing interrupted: %w", err)
	}
	return nil
}
