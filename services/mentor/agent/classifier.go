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

	"github.com/AleutianAI/AleutianMentor/services/llm"
	"github.com/AleutianAI/AleutianMentor/services/mentor/config"
)

// =============================================================================
// Result Classifier
// =============================================================================

// errorToken and successToken are the two-word vocabulary the judgment
// call is constrained to. EXITO matches the upstream wire contract the
// service inherited; the prompt spells both out explicitly.
const (
	errorToken   = "ERROR"
	successToken = "EXITO"
)

// Classifier decides whether one tool result represents an error.
//
// Description:
//
//	Primary strategy is a constrained secondary model call: near-zero
//	temperature, tiny output budget, two-token vocabulary. The reply is
//	an error verdict only if the error token literally appears in the
//	upper-cased reply; a reply containing neither token counts as
//	success. That default is an explicit policy, exercised by tests,
//	not an accident.
//
//	The keyword fallback runs only when the judgment call itself fails:
//	any configured error keyword in the stringified result marks it
//	failed. The fallback is deterministic, so every record leaves the
//	classifier with a resolved verdict.
//
//	Verdicts may be cached keyed by SHA256(tool, arguments, result); a
//	nil cache disables reuse without changing behavior.
//
// Thread Safety: Safe for concurrent use.
type Classifier struct {
	client llm.ChatClient
	cfg    config.ClassifierConfig
	cache  *VerdictCache
	logger *slog.Logger
}

// NewClassifier creates a Classifier.
//
// Inputs:
//   - client: Chat client for the judgment call. Must not be nil.
//   - cfg: Classifier settings (temperature, token budget, keywords).
//   - cache: Verdict cache. May be nil.
//   - logger: May be nil.
func NewClassifier(client llm.ChatClient, cfg config.ClassifierConfig, cache *VerdictCache, logger *slog.Logger) *Classifier {
	if client == nil {
		panic("NewClassifier: client must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{client: client, cfg: cfg, cache: cache, logger: logger}
}

// Classify returns true when the result represents an error.
//
// Description:
//
//	Consults the cache, then the judgment model, then the keyword
//	fallback. Never returns an unresolved state and never mutates the
//	conversation.
//
// Thread Safety: Safe for concurrent use.
func (c *Classifier) Classify(ctx context.Context, req ToolInvocationRequest, resultJSON string) bool {
	key := VerdictKey(req.Name, req.ArgumentsJSON(), resultJSON)
	if verdict, found, err := c.cache.Load(ctx, key); err != nil {
		c.logger.Warn("verdict cache load failed", slog.String("error", err.Error()))
	} else if found {
		return verdict
	}

	isError, method := c.classifyUncached(ctx, req, resultJSON)
	recordClassification(method, isError)

	if err := c.cache.Save(ctx, key, isError); err != nil {
		c.logger.Warn("verdict cache save failed", slog.String("error", err.Error()))
	}
	return isError
}

func (c *Classifier) classifyUncached(ctx context.Context, req ToolInvocationRequest, resultJSON string) (bool, string) {
	prompt := classificationPrompt(req, resultJSON)
	params := llm.GenerationParams{
		Temperature: llm.Ptr(c.cfg.Temperature),
		MaxTokens:   llm.Ptr(c.cfg.MaxTokens),
	}

	reply, err := c.client.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, params)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			c.logger.Warn("judgment call failed, using keyword fallback",
				slog.String("tool", req.Name),
				slog.String("error", err.Error()),
			)
		} else {
			c.logger.Warn("judgment call returned nothing, using keyword fallback",
				slog.String("tool", req.Name),
			)
		}
		return c.keywordFallback(resultJSON), "keyword"
	}

	verdict := strings.Contains(strings.ToUpper(reply), errorToken)
	c.logger.Debug("result classified",
		slog.String("tool", req.Name),
		slog.Bool("is_error", verdict),
		slog.String("reply", strings.TrimSpace(reply)),
	)
	return verdict, "model"
}

// keywordFallback scans the stringified result for error indicators.
// Deterministic: the same input always yields the same verdict.
func (c *Classifier) keywordFallback(resultJSON string) bool {
	lowered := strings.ToLower(resultJSON)
	for _, kw := range c.cfg.ErrorKeywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// classificationPrompt builds the single-turn judgment instruction. The
// result is pre-capped before this point, but the prompt bounds it again
// to keep the judgment call cheap.
func classificationPrompt(req ToolInvocationRequest, resultJSON string) string {
	const resultBudget = 1000
	if len(resultJSON) > resultBudget {
		resultJSON = resultJSON[:resultBudget]
	}

	return fmt.Sprintf(`Analyze this capability result and decide whether it is an ERROR or a SUCCESS:

CAPABILITY USED: %s
ARGUMENTS: %s
RESULT: %s

CRITERIA:
- ERROR if: it contains error messages, missing parameters, resources not found, permission denied, or malformed output
- SUCCESS if: it returns valid data, lists, or objects with useful information

Reply with EXACTLY one word: "ERROR" or "EXITO"`,
		req.Name, req.ArgumentsJSON(), resultJSON)
}
