// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package feedback

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianMentor/services/llm"
)

// TypeTeam identifies team-level feedback in the Feedback DTO and the
// /types catalog.
const TypeTeam = "team"

const (
	// stageTemperature keeps the pipeline's wording stable across runs.
	stageTemperature = float32(0.3)

	// criteriaMaxChars caps the concatenated rubric detail fed to each
	// stage prompt.
	criteriaMaxChars = 5000

	// stageFallback replaces a stage's text when the model call fails.
	// The pipeline always completes; a dead model degrades the wording,
	// not the request.
	stageFallback = "The language model could not be reached for this section."
)

var stagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "mentor",
		Subsystem: "feedback",
		Name:      "pipeline_stages_total",
		Help:      "Team pipeline stage outcomes.",
	},
	[]string{"stage", "outcome"},
)

// TeamPipeline generates team feedback with three chained model calls:
// strengths, improvements, then the combined write-up. No capability
// loop is involved.
//
// Thread Safety: Safe for concurrent use.
type TeamPipeline struct {
	client llm.ChatClient
	logger *slog.Logger
}

// NewTeamPipeline creates a TeamPipeline.
//
// Inputs:
//   - client: Model client. Must not be nil.
//   - logger: May be nil.
func NewTeamPipeline(client llm.ChatClient, logger *slog.Logger) *TeamPipeline {
	if client == nil {
		panic("NewTeamPipeline: client must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TeamPipeline{client: client, logger: logger}
}

// Make generates the feedback for one submission.
//
// Description:
//
//	Runs the three stages in order; the combined stage sees the first
//	two stages' output. A failed stage degrades to a fixed notice
//	instead of failing the pipeline, so Make always returns a complete
//	Feedback.
func (p *TeamPipeline) Make(ctx context.Context, sub Submission, evals []Evaluation) Feedback {
	p.logger.Info("generating team feedback",
		slog.Int64("submission_id", sub.ID),
		slog.String("team", sub.TeamName),
		slog.Int("evaluations", len(evals)),
	)

	criteria := concatCriteria(evals)
	types := evaluationTypes(evals)

	strengths := p.stage(ctx, "strengths",
		strengthsPrompt(sub.TeamName, sub.AssignmentTitle, len(evals), criteria, types))
	improvements := p.stage(ctx, "improvements",
		improvementsPrompt(sub.TeamName, sub.AssignmentTitle, len(evals), criteria, types))
	content := p.stage(ctx, "combined",
		combinedFeedbackPrompt(sub.TeamName, sub.AssignmentTitle, len(evals), criteria, types, strengths, improvements))

	return Feedback{
		SubmissionID:    sub.ID,
		FeedbackType:    TypeTeam,
		Content:         content,
		FeedbackDate:    FlexTime{Time: time.Now().UTC()},
		Strengths:       strengths,
		Improvements:    improvements,
		TeamName:        sub.TeamName,
		AssignmentTitle: sub.AssignmentTitle,
	}
}

func (p *TeamPipeline) stage(ctx context.Context, name, prompt string) string {
	messages := []llm.Message{{Role: "user", Content: prompt}}
	params := llm.GenerationParams{Temperature: llm.Ptr(stageTemperature)}

	reply, err := p.client.Chat(ctx, messages, params)
	if err != nil {
		p.logger.Error("feedback stage failed",
			slog.String("stage", name),
			slog.String("error", err.Error()),
		)
		stagesTotal.WithLabelValues(name, "error").Inc()
		return stageFallback
	}

	stagesTotal.WithLabelValues(name, "ok").Inc()
	return strings.TrimSpace(reply)
}

// concatCriteria joins every evaluation's rubric JSON, capped at
// criteriaMaxChars.
func concatCriteria(evals []Evaluation) string {
	parts := make([]string, 0, len(evals))
	for _, e := range evals {
		if e.CriteriaJSON != "" {
			parts = append(parts, e.CriteriaJSON)
		}
	}
	joined := strings.Join(parts, " ")
	if len(joined) > criteriaMaxChars {
		joined = joined[:criteriaMaxChars] + "..."
	}
	return joined
}

func evaluationTypes(evals []Evaluation) string {
	types := make([]string, 0, len(evals))
	for _, e := range evals {
		if e.EvaluationType != "" {
			types = append(types, e.EvaluationType)
		}
	}
	return strings.Join(types, ", ")
}
