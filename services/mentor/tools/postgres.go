// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxSearchLimit caps search_submissions result sizes regardless of what
// the model asks for.
const maxSearchLimit = 50

// defaultSearchLimit is used when the model omits the limit parameter.
const defaultSearchLimit = 10

// =============================================================================
// PostgresTools
// =============================================================================

// PostgresTools provides the academic-database capabilities over a shared
// pgx connection pool.
//
// Description:
//
//	The pool is owned by the service and shared across sessions; the
//	handlers only borrow connections per query. Queries read the
//	academic schema (class, team, assignment, submission, evaluation,
//	feedback and their join tables) and return row maps the invoker
//	serializes back into the conversation.
//
// Thread Safety: Safe for concurrent use. pgxpool handles connection
// checkout internally.
type PostgresTools struct {
	pool *pgxpool.Pool
}

// NewPostgresTools connects a capability provider to the academic database.
//
// Inputs:
//   - ctx: Context for the initial connect and ping.
//   - dsn: Postgres connection string.
//
// Outputs:
//   - *PostgresTools: The provider. Caller closes it via Close.
//   - error: Non-nil if the pool cannot be created or pinged.
func NewPostgresTools(ctx context.Context, dsn string) (*PostgresTools, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("tools: parsing database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tools: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("tools: pinging database: %w", err)
	}
	return &PostgresTools{pool: pool}, nil
}

// NewPostgresToolsFromPool wraps an existing pool. The caller keeps
// ownership of the pool's lifecycle.
func NewPostgresToolsFromPool(pool *pgxpool.Pool) *PostgresTools {
	return &PostgresTools{pool: pool}
}

// Close releases the connection pool.
func (p *PostgresTools) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Pool exposes the underlying pool for health checks.
func (p *PostgresTools) Pool() *pgxpool.Pool {
	return p.pool
}

// RegisterAll registers every academic-database capability on the registry.
//
// Outputs:
//   - error: Non-nil if any registration fails (duplicate name).
func (p *PostgresTools) RegisterAll(reg *Registry) error {
	entries := []struct {
		spec    Spec
		handler Handler
	}{
		{
			spec: Spec{
				Name:        "list_classes",
				Description: "List all classes with their professor and semester.",
			},
			handler: p.listClasses,
		},
		{
			spec: Spec{
				Name:        "class_performance",
				Description: "Average evaluation scores per team for one class.",
				Params: []ParamSpec{
					{Name: "class_id", Type: "string", Description: "Class identifier.", Required: true},
				},
			},
			handler: p.classPerformance,
		},
		{
			spec: Spec{
				Name:        "team_evaluations",
				Description: "Evaluations recorded for a team, optionally filtered by assignment.",
				Params: []ParamSpec{
					{Name: "team_id", Type: "string", Description: "Team identifier.", Required: true},
					{Name: "assignment_id", Type: "string", Description: "Restrict to one assignment."},
				},
			},
			handler: p.teamEvaluations,
		},
		{
			spec: Spec{
				Name:        "search_submissions",
				Description: "Search submissions by team name and/or assignment title.",
				Params: []ParamSpec{
					{Name: "team_name", Type: "string", Description: "Partial team name to match."},
					{Name: "assignment_title", Type: "string", Description: "Partial assignment title to match."},
					{Name: "limit", Type: "int", Description: "Maximum rows to return (default 10, max 50)."},
				},
			},
			handler: p.searchSubmissions,
		},
		{
			spec: Spec{
				Name:        "feedback_history",
				Description: "Stored feedback entries for one submission.",
				Params: []ParamSpec{
					{Name: "submission_id", Type: "string", Description: "Submission identifier.", Required: true},
				},
			},
			handler: p.feedbackHistory,
		},
		{
			spec: Spec{
				Name:        "evaluation_detail",
				Description: "One evaluation with its criteria scores and evaluator.",
				Params: []ParamSpec{
					{Name: "evaluation_id", Type: "string", Description: "Evaluation identifier.", Required: true},
				},
			},
			handler: p.evaluationDetail,
		},
	}

	for _, e := range entries {
		if err := reg.Register(e.spec, e.handler); err != nil {
			return fmt.Errorf("tools: registering %s: %w", e.spec.Name, err)
		}
	}
	slog.Info("database capabilities registered", slog.Int("count", len(entries)))
	return nil
}

// =============================================================================
// Handlers
// =============================================================================

func (p *PostgresTools) listClasses(ctx context.Context, _ map[string]any) (any, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT c.id, c.name, c.semester, COALESCE(u.name, '') AS professor
		 FROM class c
		 LEFT JOIN "user" u ON u.id = c.professor_id
		 ORDER BY c.semester DESC, c.name`)
	if err != nil {
		return nil, fmt.Errorf("tools: list_classes query: %w", err)
	}
	defer rows.Close()

	classes, err := rowsToMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("tools: list_classes scan: %w", err)
	}
	return map[string]any{"classes": classes, "count": len(classes)}, nil
}

func (p *PostgresTools) classPerformance(ctx context.Context, args map[string]any) (any, error) {
	classID, err := StringArg(args, "class_id")
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT t.id AS team_id, t.name AS team_name,
		        COUNT(e.id) AS evaluation_count,
		        COALESCE(AVG(e.score), 0) AS average_score
		 FROM class_team ct
		 JOIN team t ON t.id = ct.team_id
		 LEFT JOIN submission s ON s.team_id = t.id
		 LEFT JOIN evaluation e ON e.submission_id = s.id
		 WHERE ct.class_id = $1
		 GROUP BY t.id, t.name
		 ORDER BY average_score DESC`,
		classID)
	if err != nil {
		return nil, fmt.Errorf("tools: class_performance query: %w", err)
	}
	defer rows.Close()

	teams, err := rowsToMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("tools: class_performance scan: %w", err)
	}
	return map[string]any{"class_id": classID, "teams": teams}, nil
}

func (p *PostgresTools) teamEvaluations(ctx context.Context, args map[string]any) (any, error) {
	teamID, err := StringArg(args, "team_id")
	if err != nil {
		return nil, err
	}
	assignmentID, err := OptionalStringArg(args, "assignment_id", "")
	if err != nil {
		return nil, err
	}

	q := `SELECT e.id, e.score, e.comments, e.created_at,
	             a.title AS assignment_title,
	             COALESCE(u.name, '') AS evaluator
	      FROM evaluation e
	      JOIN submission s ON s.id = e.submission_id
	      JOIN assignment a ON a.id = s.assignment_id
	      LEFT JOIN "user" u ON u.id = e.evaluator_id
	      WHERE s.team_id = $1`
	argv := []any{teamID}
	if assignmentID != "" {
		q += ` AND a.id = $2`
		argv = append(argv, assignmentID)
	}
	q += ` ORDER BY e.created_at DESC`

	rows, err := p.pool.Query(ctx, q, argv...)
	if err != nil {
		return nil, fmt.Errorf("tools: team_evaluations query: %w", err)
	}
	defer rows.Close()

	evals, err := rowsToMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("tools: team_evaluations scan: %w", err)
	}
	return map[string]any{"team_id": teamID, "evaluations": evals, "count": len(evals)}, nil
}

func (p *PostgresTools) searchSubmissions(ctx context.Context, args map[string]any) (any, error) {
	teamName, err := OptionalStringArg(args, "team_name", "")
	if err != nil {
		return nil, err
	}
	assignmentTitle, err := OptionalStringArg(args, "assignment_title", "")
	if err != nil {
		return nil, err
	}
	limit, err := OptionalIntArg(args, "limit", defaultSearchLimit)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	if teamName == "" && assignmentTitle == "" {
		return nil, fmt.Errorf("tools: search_submissions requires team_name or assignment_title")
	}

	var conds []string
	var argv []any
	if teamName != "" {
		argv = append(argv, "%"+teamName+"%")
		conds = append(conds, fmt.Sprintf("t.name ILIKE $%d", len(argv)))
	}
	if assignmentTitle != "" {
		argv = append(argv, "%"+assignmentTitle+"%")
		conds = append(conds, fmt.Sprintf("a.title ILIKE $%d", len(argv)))
	}
	argv = append(argv, limit)

	q := fmt.Sprintf(
		`SELECT s.id, s.submitted_at, s.content,
		        t.name AS team_name, a.title AS assignment_title
		 FROM submission s
		 JOIN team t ON t.id = s.team_id
		 JOIN assignment a ON a.id = s.assignment_id
		 WHERE %s
		 ORDER BY s.submitted_at DESC
		 LIMIT $%d`,
		strings.Join(conds, " AND "), len(argv))

	rows, err := p.pool.Query(ctx, q, argv...)
	if err != nil {
		return nil, fmt.Errorf("tools: search_submissions query: %w", err)
	}
	defer rows.Close()

	subs, err := rowsToMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("tools: search_submissions scan: %w", err)
	}
	return map[string]any{"submissions": subs, "count": len(subs)}, nil
}

func (p *PostgresTools) feedbackHistory(ctx context.Context, args map[string]any) (any, error) {
	submissionID, err := StringArg(args, "submission_id")
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT f.id, f.content, f.feedback_type, f.created_at
		 FROM feedback f
		 WHERE f.submission_id = $1
		 ORDER BY f.created_at DESC`,
		submissionID)
	if err != nil {
		return nil, fmt.Errorf("tools: feedback_history query: %w", err)
	}
	defer rows.Close()

	entries, err := rowsToMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("tools: feedback_history scan: %w", err)
	}
	return map[string]any{"submission_id": submissionID, "feedback": entries, "count": len(entries)}, nil
}

func (p *PostgresTools) evaluationDetail(ctx context.Context, args map[string]any) (any, error) {
	evaluationID, err := StringArg(args, "evaluation_id")
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx,
		`SELECT e.id, e.score, e.comments, e.criteria, e.created_at,
		        COALESCE(u.name, '') AS evaluator,
		        s.id AS submission_id, a.title AS assignment_title
		 FROM evaluation e
		 JOIN submission s ON s.id = e.submission_id
		 JOIN assignment a ON a.id = s.assignment_id
		 LEFT JOIN "user" u ON u.id = e.evaluator_id
		 WHERE e.id = $1`,
		evaluationID)
	if err != nil {
		return nil, fmt.Errorf("tools: evaluation_detail query: %w", err)
	}
	defer rows.Close()

	details, err := rowsToMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("tools: evaluation_detail scan: %w", err)
	}
	if len(details) == 0 {
		return nil, fmt.Errorf("tools: evaluation %s not found", evaluationID)
	}
	return details[0], nil
}

// =============================================================================
// Row Helpers
// =============================================================================

// rowsToMaps converts a pgx result set into column-keyed maps.
func rowsToMaps(rows pgx.Rows) ([]map[string]any, error) {
	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}
