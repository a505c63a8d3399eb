// Package llm defines the provider-neutral language-model contract the
// routing engine depends on. Providers implement Client; the engine treats
// every call as an oracle and supplies its own fail-safe defaults.
package llm

import (
	"context"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

type Result struct {
	Text     string
	Usage    Usage
	Duration time.Duration
}

type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
}

// TranscriptionRequest carries raw media bytes to a speech-to-text model.
// Language is the fixed transcription target, not auto-detected.
type TranscriptionRequest struct {
	Model    string
	Audio    []byte
	FileName string
	MimeType string
	Language string
}

type Client interface {
	Chat(ctx context.Context, req Request) (Result, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (string, error)
}
