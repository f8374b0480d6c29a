// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package conversation holds the shared data model: Role, Message,
// Transcript and Character. These are plain immutable values; the
// orchestrator is the only component that appends to a Transcript.
package conversation

import "time"

// Role is one of system, user or assistant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is immutable once appended to a Transcript.
type Message struct {
	Role    Role
	Content string
}

// Activity supplies the fixed system-role prefix for a conversation
// kind. The contract is only that the prefix consists of system-role
// messages, in order, before any user/assistant message.
type Activity interface {
	Kind() string
	Prefix() []Message
}

// unstructuredActivity is the one built-in Activity: a general-purpose
// conversation partner for language learning. Further activities can be
// registered without changing the orchestrator.
type unstructuredActivity struct{}

// Unstructured is the default Activity used when none is configured.
var Unstructured Activity = unstructuredActivity{}

func (unstructuredActivity) Kind() string { return "unstructured" }

func (unstructuredActivity) Prefix() []Message {
	return []Message{
		{Role: RoleSystem, Content: "You are a friendly conversation partner helping the user practice a spoken language."},
		{Role: RoleSystem, Content: "Speak naturally and stay in character as a conversation partner, not a translator."},
		{Role: RoleSystem, Content: "Only translate or explain grammar when the user explicitly asks for it."},
	}
}

// Transcript is the ordered sequence of Messages for one session, plus
// its metadata. The prefix (system-role "prompt") is fixed by the
// activity kind; the suffix grows one user/assistant pair per turn.
type Transcript struct {
	Messages     []Message
	ActivityKind string
	SessionID    string
	UserID       string
	Language     string
	CreatedAt    time.Time
}

// New starts a Transcript with activity's fixed prefix already in place.
func New(activity Activity, sessionID, userID string, createdAt time.Time) Transcript {
	return Transcript{
		Messages:     append([]Message(nil), activity.Prefix()...),
		ActivityKind: activity.Kind(),
		SessionID:    sessionID,
		UserID:       userID,
		CreatedAt:    createdAt,
	}
}

// Append adds one message. System messages are never appended here after
// construction; the orchestrator only appends user/assistant turns.
func (t *Transcript) Append(role Role, content string) {
	t.Messages = append(t.Messages, Message{Role: role, Content: content})
}

// Character is the voice/language pair pinned on the first successful
// language detection of a session and immutable thereafter.
type Character struct {
	VoiceDescriptor string
	LanguageCode    string
}
