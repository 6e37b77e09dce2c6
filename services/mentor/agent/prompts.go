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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianMentor/services/mentor/config"
)

// =============================================================================
// Prompt Construction
// =============================================================================
//
// The three follow-up branches (corrective / progress / alternative) share
// structure but differ in wording and token budget. They are kept as
// separate builders: the wording differences have not been proven inert
// and merging them would change model behavior in untested ways.

// SystemPreamble builds the capability-aware system prompt.
//
// Description:
//
//	Combines the role persona with the capability catalog and the JSON
//	request format the extractor understands. Appended once per session
//	before the first model call.
//
// Inputs:
//   - persona: Role-specific instruction text (coordinator/teacher).
//   - catalogText: Rendered capability catalog from the registry.
//   - sentinel: The completion token the model may emit to stop.
func SystemPreamble(persona, catalogText, sentinel string) string {
	return fmt.Sprintf(`%s

%s

IMPORTANT:
- If you need specific information from the academic database to answer, you may use these capabilities
- To use a capability, reply with this JSON format:

{
    "tool_request": {
        "tool_name": "name_of_the_capability",
        "arguments": {
            "param1": "value1",
            "param2": "value2"
        }
    },
    "reason": "Why you need this capability"
}

- If you already have enough information, or you are told NOT to use more capabilities, answer directly
- If you do not need capabilities, just answer normally
- When you are done gathering information, reply "%s"`,
		persona, catalogText, sentinel)
}

// correctivePrompt is the some-failed follow-up: enumerate each failure
// with its arguments and result, name the successes, and push the model
// to diagnose and fix rather than repeat itself.
func correctivePrompt(outcome IterationOutcome, originalQuestion, sentinel string) string {
	var errCtx strings.Builder
	for _, rec := range outcome.Failed {
		fmt.Fprintf(&errCtx, "- Error in '%s' with arguments %s: %s\n",
			rec.Request.Name, rec.Request.ArgumentsJSON(), rec.ResultJSON())
	}

	successCtx := ""
	if len(outcome.Succeeded) > 0 {
		successCtx = fmt.Sprintf("Successful capabilities: %s\n", joinToolNames(outcome.Succeeded))
	}

	return fmt.Sprintf(`ERRORS DETECTED:
%s%s
Original question: %s

The errors above were identified automatically. Analyze each specific error and:

1. If required parameters are missing (such as "missing required parameter: class_id"), add the missing parameters
2. If there is a format or syntax problem, fix the structure of the call
3. If it is a permission/access error, try an alternative capability
4. If an identifier is wrong, verify the correct one first (for example with a search capability)
5. If it is a provider error, try a more specific query

IMPORTANT:
- Learn from each specific error and correct it
- Use the JSON format for new capability calls
- If you already have enough successful information, reply "%s"
- Do not repeat exactly the same failing calls

Which capability will you use to fix these specific errors, or can you answer now?`,
		errCtx.String(), successCtx, originalQuestion, sentinel)
}

// progressPrompt is the all-succeeded follow-up: list what ran and ask
// whether more capabilities are needed.
func progressPrompt(records []ToolExecutionRecord, originalQuestion, sentinel string) string {
	return fmt.Sprintf(`Results: executed %d capability call(s): %s

Original question: %s

Do you need to run more specific capabilities, or can you answer now?
If you need another capability, use the JSON format.
If you have enough, reply "%s".`,
		len(records), joinToolNames(records), originalQuestion, sentinel)
}

// alternativePrompt is the all-failed follow-up: summarize every failure
// and ask for a different strategy or a partial answer.
func alternativePrompt(outcome IterationOutcome, originalQuestion, sentinel string) string {
	var errCtx strings.Builder
	errCtx.WriteString("All capabilities failed:\n")
	for _, rec := range outcome.Failed {
		fmt.Fprintf(&errCtx, "- %s: %s\n", rec.Request.Name, rec.ResultJSON())
	}

	return fmt.Sprintf(`%s
Original question: %s

All the capabilities above failed. Please:
1. Analyze the errors and find a different strategy
2. Use alternative capabilities or different parameters
3. If you believe you can partially answer from general knowledge, reply "%s"

Which alternative capability will you try?`,
		errCtx.String(), originalQuestion, sentinel)
}

// retryPrompt is the reduced-context message for the single retry after
// an empty model reply.
func retryPrompt(originalQuestion string, iteration int, sentinel string) string {
	return fmt.Sprintf(`Original question: %s

Iteration %d completed. Do you need more specific capabilities (JSON format), or can you reply "%s"?`,
		originalQuestion, iteration, sentinel)
}

// synthesisPrompt builds the final-answer instruction over a bounded
// evidence summary.
func synthesisPrompt(all []ToolExecutionRecord, originalQuestion string, syn config.SynthesisConfig) string {
	outcome := partition(all)

	var summary strings.Builder
	fmt.Fprintf(&summary, "Capabilities executed: %d (%d succeeded, %d failed)\n",
		len(all), len(outcome.Succeeded), len(outcome.Failed))

	if len(outcome.Succeeded) > 0 {
		summary.WriteString("\nSUCCESSFUL RESULTS:\n")
		for i, rec := range capRecords(outcome.Succeeded, syn.MaxSuccesses) {
			fmt.Fprintf(&summary, "%d. %s: %s...\n", i+1, rec.Request.Name,
				previewString(rec.ResultJSON(), syn.SuccessPreviewChars))
		}
	}
	if len(outcome.Failed) > 0 {
		summary.WriteString("\nERRORS ENCOUNTERED:\n")
		for i, rec := range capRecords(outcome.Failed, syn.MaxFailures) {
			fmt.Fprintf(&summary, "%d. %s: %s...\n", i+1, rec.Request.Name,
				previewString(rec.ResultJSON(), syn.FailurePreviewChars))
		}
	}

	return fmt.Sprintf(`Based on these results from the academic database:

%s

Answer the original question: %s

INSTRUCTIONS:
- If you have successful results, use them to answer completely
- If you only have errors, explain what was attempted and why it did not work
- If you have a mix, answer with the available information and mention the limitations
- Be concise but complete

IMPORTANT: do NOT use any more capabilities. Answer directly with the available information.`,
		summary.String(), originalQuestion)
}

// =============================================================================
// Canned Fallback Answers
// =============================================================================
//
// Used when the synthesis call still tries to invoke capabilities, or
// returns nothing. Derived only from success/failure counts so they can
// never trigger further tool use.

func fallbackAnswer(all []ToolExecutionRecord) string {
	outcome := partition(all)
	if len(outcome.Succeeded) > 0 {
		return fmt.Sprintf(
			"Based on the %d successful database lookups, I gathered the information needed for your question. %d capability call(s) failed, but the successful results cover the analysis.",
			len(outcome.Succeeded), len(outcome.Failed))
	}
	return fmt.Sprintf(
		"I attempted %d database capability call(s), but all of them failed. The most common causes are wrong identifiers, missing parameters, or records that do not exist. Please verify the class, team, or assignment identifiers and try again.",
		len(all))
}

func fallbackAfterTimeout(all []ToolExecutionRecord) string {
	outcome := partition(all)
	if len(outcome.Succeeded) > 0 {
		return fmt.Sprintf(
			"I executed %d capability call(s) successfully (%d failed), but timed out while composing the final answer. The successful results are available.",
			len(outcome.Succeeded), len(outcome.Failed))
	}
	return fmt.Sprintf(
		"I attempted %d capability call(s) but all of them failed, including access problems, wrong parameters, or missing records.",
		len(all))
}

// noToolsTimeoutAnswer covers the degenerate case where the loop ended
// with no records and no model text.
const noToolsTimeoutAnswer = "The capabilities could not be executed because the model did not respond in time."

// =============================================================================
// Helpers
// =============================================================================

func joinToolNames(records []ToolExecutionRecord) string {
	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = rec.Request.Name
	}
	return strings.Join(names, ", ")
}

func capRecords(records []ToolExecutionRecord, max int) []ToolExecutionRecord {
	if max > 0 && len(records) > max {
		return records[:max]
	}
	return records
}

func previewString(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}
