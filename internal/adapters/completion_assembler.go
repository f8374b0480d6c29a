// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package adapters

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/moshi-labs/moshi-voice/internal/conversation"
)

// assembleCompletionPrompt builds a flat prompt for non-chat completion
// models: numbered INSTRUCTIONS for every system-role message, followed
// by a CONVERSATION block where each message is rendered "role: content".
func assembleCompletionPrompt(messages []conversation.Message) string {
	var instructions []string
	var conversationLines []string

	for _, m := range messages {
		if m.Role == conversation.RoleSystem {
			instructions = append(instructions, m.Content)
		} else {
			conversationLines = append(conversationLines, fmt.Sprintf("%s: %s", m.Role, m.Content))
		}
	}

	var b strings.Builder
	b.WriteString("INSTRUCTIONS:\n")
	for i, instr := range instructions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, instr)
	}
	b.WriteString("\nCONVERSATION:\n")
	for _, line := range conversationLines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(string(conversation.RoleAssistant) + ":")
	return b.String()
}

var completionReplyPattern = regexp.MustCompile(`(?i)^\s*(assistant|user|system)\s*:\s*(.*)$`)

// cleanCompletionOutput takes the raw text a completion-style model
// returned after the prompt's trailing "assistant:" cue, keeps only the
// first well-formed "Name: content" reply, and strips the role prefix.
// Anything after the first newline that starts a new "role:" turn
// (the model inventing the next exchange) is discarded.
func cleanCompletionOutput(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	lines := strings.SplitN(raw, "\n", -1)
	var kept []string
	seenFirst := false
	for _, line := range lines {
		if m := completionReplyPattern.FindStringSubmatch(line); m != nil {
			if seenFirst {
				// A second "role:" line means the model started
				// fabricating the next turn; stop here.
				break
			}
			seenFirst = true
			kept = append(kept, m[2])
			continue
		}
		if seenFirst {
			kept = append(kept, line)
		} else if !seenFirst && len(kept) == 0 {
			// No leading "role:" marker at all: treat the whole first
			// line as the reply body.
			kept = append(kept, line)
			seenFirst = true
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
