package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cherrynik/tg-ai-bot/llm"
)

const generationFailureApology = "Извините, произошла ошибка при обработке запроса."

// respond drives the main addressed path: context assembly, generation with
// the refusal-retry loop, delivery.
func (e *Engine) respond(ctx context.Context, log *slog.Logger, msg Message) {
	if err := e.transport.SendTyping(ctx, msg.Chat.ID); err != nil {
		log.Debug("typing indicator failed", "error", err)
	}

	assembled := e.assembleContext(msg)
	systemPrompt, err := renderPersonaSystemPrompt(personaPromptData{
		BotName:          e.cfg.BotName,
		BotUsername:      e.cfg.BotUsername,
		PersonaIdentity:  e.cfg.PersonaIdentity,
		MainReplyMessage: assembled.MainReplyMessage,
		ChatTitle:        msg.Chat.Title,
		ChatKind:         string(msg.Chat.Kind),
		Roster:           assembled.Roster,
	})
	if err != nil {
		log.Error("failed to render system prompt", "error", err)
		return
	}

	reply, deliver := e.draftReply(ctx, log, systemPrompt, assembled.Turns, msg.Text)
	if !deliver {
		log.Debug("generator declined to answer")
		return
	}

	if err := e.transport.SendText(ctx, msg.Chat.ID, reply, SendOptions{ReplyToMessageID: msg.ID, Markdown: true}); err != nil {
		log.Error("failed to send reply", "error", err)
		return
	}
	log.Info("reply sent", "chat_title", msg.Chat.Title)
}

// draftReply runs the Drafting state with its single retry edge and reports
// the final text and whether to deliver it.
//
// A generation error on the first call surfaces as the fixed apology (the
// addressed path never ends in silence because of an outage). An empty draft
// or the decline token is a deliberate non-response and stays silent: at that
// point nothing has been committed. Once a non-empty draft exists, the
// refusal classifier decides between delivering it, one absurdist
// reformulation, and the deterministic fallback.
func (e *Engine) draftReply(ctx context.Context, log *slog.Logger, systemPrompt string, contextTurns []llm.Message, text string) (string, bool) {
	draft, err := e.generate(ctx, systemPrompt, contextTurns, text)
	if err != nil {
		log.Error("generation failed", "error", err)
		return generationFailureApology, true
	}
	if isDeclineOutput(draft) {
		return "", false
	}

	if e.classifyRefusal(ctx, log, draft) == VerdictAnswer {
		return draft, true
	}

	log.Info("draft classified as refusal; reformulating once")
	retryPrompt, err := renderReformulatePrompt(text)
	if err != nil {
		log.Error("failed to render reformulation prompt", "error", err)
		return e.fallbackReply(text), true
	}
	retry, err := e.generate(ctx, systemPrompt, contextTurns, retryPrompt)
	if err != nil || isDeclineOutput(retry) {
		if err != nil {
			log.Warn("reformulated generation failed", "error", err)
		}
		return e.fallbackReply(text), true
	}
	if e.classifyRefusal(ctx, log, retry) == VerdictAnswer {
		return retry, true
	}
	return e.fallbackReply(text), true
}

// classifyRefusal labels a non-empty draft. Classification failures count as
// ANSWER: an inconclusive check must not trigger another generation round.
func (e *Engine) classifyRefusal(ctx context.Context, log *slog.Logger, draft string) RefusalVerdict {
	token, err := e.classify(ctx, refusalCheckPromptSource, draft)
	if err != nil {
		log.Warn("refusal classification failed", "error", err)
		return VerdictAnswer
	}
	return parseRefusalToken(token)
}

// fallbackReply is the deterministic last resort after a doubly-refused
// request: a fixed joking phrasing that echoes the user's ask. Never empty.
func (e *Engine) fallbackReply(request string) string {
	return fmt.Sprintf(
		"Ладно-ладно, %q - запрос мощный, но мой внутренний цензор победил меня в честной борьбе. Считай, что я ответил гениально, а ты моргнул и пропустил. 😏",
		previewText(request, e.cfg.MaxContextMessageLength),
	)
}

// maybeTrollComment fires the unsolicited-commentary gate for a message that
// was not addressed to the bot. No refusal retry on this path: an empty or
// declined result is simply dropped.
func (e *Engine) maybeTrollComment(ctx context.Context, log *slog.Logger, msg Message) {
	if e.rng.Float64() >= e.cfg.TrollCommentProbability {
		return
	}

	log.Debug("troll comment gate fired")
	if err := e.transport.SendTyping(ctx, msg.Chat.ID); err != nil {
		log.Debug("typing indicator failed", "error", err)
	}

	trollPrompt, err := renderTrollCommentPrompt(e.cfg.BotName, msg.From.DetailedLabel(), msg.Text)
	if err != nil {
		log.Error("failed to render troll prompt", "error", err)
		return
	}
	systemPrompt, err := renderPersonaSystemPrompt(personaPromptData{
		BotName:         e.cfg.BotName,
		BotUsername:     e.cfg.BotUsername,
		PersonaIdentity: e.cfg.PersonaIdentity,
	})
	if err != nil {
		log.Error("failed to render system prompt", "error", err)
		return
	}

	comment, err := e.generate(ctx, systemPrompt, nil, trollPrompt)
	if err != nil {
		log.Debug("troll comment generation failed", "error", err)
		return
	}
	if isDeclineOutput(comment) {
		return
	}

	if err := e.transport.SendText(ctx, msg.Chat.ID, comment, SendOptions{ReplyToMessageID: msg.ID}); err != nil {
		log.Debug("failed to send troll comment", "error", err)
		return
	}
	log.Info("troll comment sent")
}
