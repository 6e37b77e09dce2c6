// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package feedback holds the academic wire DTOs and the loop-free team
// feedback pipeline.
package feedback

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// Flexible Timestamps
// =============================================================================

// FlexTime is a timestamp that unmarshals from either an ISO-8601 string
// or the gateway's array form [year, month, day, hour, minute, second,
// nanoseconds]. It always marshals back as an ISO string.
type FlexTime struct {
	time.Time
}

// UnmarshalJSON accepts null, an ISO string, or a numeric array.
func (t *FlexTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := parseISO(s)
		if err != nil {
			return fmt.Errorf("feedback: parsing timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}

	var parts []int64
	if err := json.Unmarshal(data, &parts); err == nil {
		parsed, err := fromArray(parts)
		if err != nil {
			return fmt.Errorf("feedback: parsing timestamp array: %w", err)
		}
		t.Time = parsed
		return nil
	}

	return fmt.Errorf("feedback: timestamp must be an ISO string or [y,m,d,h,m,s] array, got %s", data)
}

// MarshalJSON renders null for the zero time, ISO-8601 otherwise.
func (t FlexTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

func parseISO(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized layout")
}

// fromArray converts [year, month, day, hour, minute, second, nanoseconds]
// to a time. The nanoseconds element is optional.
func fromArray(parts []int64) (time.Time, error) {
	if len(parts) < 6 {
		return time.Time{}, fmt.Errorf("array must have at least 6 elements, got %d", len(parts))
	}
	nanos := int64(0)
	if len(parts) > 6 {
		nanos = parts[6]
	}
	return time.Date(
		int(parts[0]), time.Month(parts[1]), int(parts[2]),
		int(parts[3]), int(parts[4]), int(parts[5]), int(nanos),
		time.UTC,
	), nil
}

// =============================================================================
// DTOs
// =============================================================================

// Submission is one team's delivery of an assignment.
type Submission struct {
	ID              int64    `json:"id"`
	AssignmentID    int64    `json:"assignmentId"`
	AssignmentTitle string   `json:"assignmentTitle"`
	TeamID          int64    `json:"teamId"`
	TeamName        string   `json:"teamName"`
	SubmittedAt     FlexTime `json:"submittedAt"`
	FileURL         string   `json:"fileUrl,omitempty"`
	ClassID         int64    `json:"classId,omitempty"`
	ClassName       string   `json:"className,omitempty"`
}

// Evaluation is one evaluator's scored rubric for a submission. Score is
// on a 0-100 scale; CriteriaJSON carries the rubric detail verbatim.
type Evaluation struct {
	ID              int64    `json:"id"`
	SubmissionID    int64    `json:"submissionId"`
	EvaluatorID     int64    `json:"evaluatorId"`
	EvaluatorName   string   `json:"evaluatorName,omitempty"`
	EvaluationType  string   `json:"evaluationType"`
	Score           float64  `json:"score"`
	CriteriaJSON    string   `json:"criteriaJson,omitempty"`
	CreatedAt       FlexTime `json:"createdAt,omitempty"`
	EvaluationDate  FlexTime `json:"evaluationDate"`
	TeamName        string   `json:"teamName,omitempty"`
	AssignmentTitle string   `json:"assignmentTitle,omitempty"`
}

// Feedback is the generated team feedback for one submission.
type Feedback struct {
	ID              int64    `json:"id,omitempty"`
	SubmissionID    int64    `json:"submissionId"`
	FeedbackType    string   `json:"feedbackType"`
	Content         string   `json:"content"`
	FeedbackDate    FlexTime `json:"feedbackDate"`
	Strengths       string   `json:"strengths,omitempty"`
	Improvements    string   `json:"improvements,omitempty"`
	TeamName        string   `json:"teamName,omitempty"`
	AssignmentTitle string   `json:"assignmentTitle,omitempty"`
}
