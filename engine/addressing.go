package engine

import (
	"context"
	"log/slog"
)

// classifyAddressed asks the oracle whether the message targets the bot. The
// prompt pins the model to the current message only; conversation history is
// never grounds for addressing. Every failure mode resolves to NotAddressed.
func (e *Engine) classifyAddressed(ctx context.Context, log *slog.Logger, msg Message) AddressingDecision {
	isReplyToBot := msg.ReplyTo != nil && msg.ReplyTo.From.ID == e.cfg.BotID && e.cfg.BotID != 0

	systemPrompt, err := renderAddressingSystemPrompt(e.cfg.BotName, isReplyToBot)
	if err != nil {
		log.Error("failed to render addressing prompt", "error", err)
		return NotAddressed
	}

	token, err := e.classify(ctx, systemPrompt, msg.Text)
	if err != nil {
		log.Warn("addressing classification failed", "error", err)
		return NotAddressed
	}

	decision := parseAddressingToken(token)
	log.Debug("addressing decision",
		"preview", previewText(msg.Text, e.cfg.MaxPreviewLength),
		"reply_to_bot", isReplyToBot,
		"addressed", decision == Addressed,
	)
	return decision
}
