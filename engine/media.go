package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cherrynik/tg-ai-bot/llm"
)

const transcriptionFailureNotice = "Не удалось расшифровать это сообщение."

// routeMediaReply handles an addressed reply to a media message. It reports
// whether it terminated the pipeline: once transcription intent is confirmed
// the message never falls through to ordinary generation, whatever the
// transcription outcome. A reply without media, a SKIP classification, or a
// classification failure all fall through.
func (e *Engine) routeMediaReply(ctx context.Context, log *slog.Logger, msg Message) bool {
	media := msg.ReplyTo.Media
	if media == nil {
		return false
	}

	log.Debug("reply to media message", "media_kind", media.Kind)

	intentPrompt, err := renderTranscribeIntentPrompt(media.Label(), msg.Text)
	if err != nil {
		log.Error("failed to render transcription intent prompt", "error", err)
		return false
	}
	token, err := e.classify(ctx, intentPrompt, msg.Text)
	if err != nil {
		log.Warn("transcription intent classification failed", "error", err)
		return false
	}
	if parseTranscribeToken(token) != TranscribeRequested {
		log.Debug("no transcription requested")
		return false
	}

	if err := e.transport.SendTyping(ctx, msg.Chat.ID); err != nil {
		log.Debug("typing indicator failed", "error", err)
	}

	transcript, err := e.transcribeMedia(ctx, *media)
	if err != nil {
		log.Warn("transcription failed", "media_kind", media.Kind, "error", err)
		transcript = ""
	}
	reply := strings.TrimSpace(transcript)
	if reply == "" {
		reply = transcriptionFailureNotice
	}

	if err := e.transport.SendText(ctx, msg.Chat.ID, reply, SendOptions{ReplyToMessageID: msg.ID}); err != nil {
		log.Error("failed to send transcription reply", "error", err)
	}
	return true
}

func (e *Engine) transcribeMedia(ctx context.Context, media Media) (string, error) {
	data, err := e.transport.FetchMedia(ctx, media.FileID)
	if err != nil {
		return "", err
	}
	return e.transcriber.Transcribe(ctx, llm.TranscriptionRequest{
		Model:    e.cfg.TranscriptionModel,
		Audio:    data,
		FileName: media.FileName(),
		MimeType: media.MimeType,
		Language: e.cfg.TranscriptionLanguage,
	})
}
