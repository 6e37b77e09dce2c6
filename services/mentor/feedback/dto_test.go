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
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestFlexTime_ISOString(t *testing.T) {
	var sub Submission
	raw := `{"id": 7, "teamName": "rockets", "submittedAt": "2025-08-03T09:35:00Z"}`
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := time.Date(2025, 8, 3, 9, 35, 0, 0, time.UTC)
	if !sub.SubmittedAt.Equal(want) {
		t.Errorf("SubmittedAt = %v, want %v", sub.SubmittedAt.Time, want)
	}
}

func TestFlexTime_ArrayForm(t *testing.T) {
	var sub Submission
	raw := `{"id": 7, "submittedAt": [2025, 8, 3, 9, 35, 0, 574404200]}`
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := time.Date(2025, 8, 3, 9, 35, 0, 574404200, time.UTC)
	if !sub.SubmittedAt.Equal(want) {
		t.Errorf("SubmittedAt = %v, want %v", sub.SubmittedAt.Time, want)
	}
}

func TestFlexTime_ArrayWithoutNanos(t *testing.T) {
	var ft FlexTime
	if err := json.Unmarshal([]byte(`[2025, 1, 2, 3, 4, 5]`), &ft); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if !ft.Equal(want) {
		t.Errorf("time = %v, want %v", ft.Time, want)
	}
}

func TestFlexTime_Null(t *testing.T) {
	var ft FlexTime
	if err := json.Unmarshal([]byte(`null`), &ft); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !ft.IsZero() {
		t.Errorf("null must decode to the zero time, got %v", ft.Time)
	}
}

func TestFlexTime_ShortArrayRejected(t *testing.T) {
	var ft FlexTime
	if err := json.Unmarshal([]byte(`[2025, 1, 2]`), &ft); err == nil {
		t.Error("arrays shorter than 6 elements must be rejected")
	}
}

func TestFlexTime_GarbageRejected(t *testing.T) {
	var ft FlexTime
	if err := json.Unmarshal([]byte(`{"nested": true}`), &ft); err == nil {
		t.Error("objects are not a valid timestamp form")
	}
}

func TestFlexTime_MarshalsAsISO(t *testing.T) {
	fb := Feedback{
		SubmissionID: 9,
		FeedbackType: TypeTeam,
		Content:      "solid work",
		FeedbackDate: FlexTime{Time: time.Date(2025, 8, 3, 9, 35, 0, 0, time.UTC)},
	}
	out, err := json.Marshal(fb)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, `"feedbackDate":"2025-08-03T09:35:00Z"`) {
		t.Errorf("feedbackDate not ISO encoded: %s", s)
	}
	if !strings.Contains(s, `"submissionId":9`) {
		t.Errorf("wire fields must be camelCase: %s", s)
	}
}

func TestFlexTime_ZeroMarshalsAsNull(t *testing.T) {
	out, err := json.Marshal(FlexTime{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != "null" {
		t.Errorf("zero time = %s, want null", out)
	}
}

func TestEvaluation_WireFieldNames(t *testing.T) {
	raw := `{
		"id": 1,
		"submissionId": 2,
		"evaluatorId": 3,
		"evaluatorName": "Prof. Rivera",
		"evaluationType": "peer",
		"score": 87.5,
		"criteriaJson": "{\"clarity\": 9}",
		"evaluationDate": "2025-08-01T12:00:00Z"
	}`
	var ev Evaluation
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ev.SubmissionID != 2 || ev.Score != 87.5 || ev.EvaluationType != "peer" {
		t.Errorf("decoded evaluation mismatch: %+v", ev)
	}
	if ev.CriteriaJSON != `{"clarity": 9}` {
		t.Errorf("CriteriaJSON = %q", ev.CriteriaJSON)
	}
}
