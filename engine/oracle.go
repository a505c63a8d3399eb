package engine

import (
	"context"
	"strings"

	"github.com/cherrynik/tg-ai-bot/llm"
)

// Oracle wire tokens. Classifier prompts pin the model to answer with exactly
// one of these; parsing below turns anything else into the safe default, so
// fail-closed behavior is carried by the types rather than by string
// comparisons at call sites.
const (
	tokenAnswer     = "ANSWER"
	tokenSkip       = "SKIP"
	tokenTranscribe = "TRANSCRIBE"
	tokenRefusal    = "REFUSAL"
)

type AddressingDecision int

const (
	NotAddressed AddressingDecision = iota
	Addressed
)

// parseAddressingToken maps oracle output to a decision. Unexpected tokens
// mean silence: an uninvited assistant in a group chat must not guess.
func parseAddressingToken(s string) AddressingDecision {
	if strings.EqualFold(strings.TrimSpace(s), tokenAnswer) {
		return Addressed
	}
	return NotAddressed
}

type TranscribeDecision int

const (
	TranscribeSkip TranscribeDecision = iota
	TranscribeRequested
)

func parseTranscribeToken(s string) TranscribeDecision {
	if strings.EqualFold(strings.TrimSpace(s), tokenTranscribe) {
		return TranscribeRequested
	}
	return TranscribeSkip
}

type RefusalVerdict int

const (
	VerdictAnswer RefusalVerdict = iota
	VerdictRefusal
)

// parseRefusalToken defaults to VerdictAnswer: when the refusal check is
// inconclusive the draft is delivered rather than re-asked.
func parseRefusalToken(s string) RefusalVerdict {
	if strings.EqualFold(strings.TrimSpace(s), tokenRefusal) {
		return VerdictRefusal
	}
	return VerdictAnswer
}

// isDeclineOutput reports the generator's deliberate non-response: empty
// output or the literal decline token.
func isDeclineOutput(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, tokenSkip)
}

// classify runs one single-token classification call.
func (e *Engine) classify(ctx context.Context, systemPrompt, text string) (string, error) {
	res, err := e.client.Chat(ctx, llm.Request{
		Model: e.cfg.ClassifierModel,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: text},
		},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}

// generate runs one response generation call with optional context turns.
func (e *Engine) generate(ctx context.Context, systemPrompt string, contextTurns []llm.Message, text string) (string, error) {
	messages := make([]llm.Message, 0, len(contextTurns)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, contextTurns...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: text})

	res, err := e.client.Chat(ctx, llm.Request{
		Model:       e.cfg.ChatModel,
		Messages:    messages,
		Temperature: e.cfg.ChatTemperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}
