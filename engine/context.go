package engine

import (
	"fmt"
	"strings"

	"github.com/cherrynik/tg-ai-bot/internal/chathistory"
	"github.com/cherrynik/tg-ai-bot/llm"
)

// assembledContext is the immutable prompt context for one generation:
// the distinguished primary-target turn (if any) first, then history turns
// oldest to newest, plus the participant roster.
type assembledContext struct {
	Turns            []llm.Message
	MainReplyMessage string
	Roster           string
}

func (e *Engine) assembleContext(msg Message) assembledContext {
	var out assembledContext

	if msg.ReplyTo != nil && strings.TrimSpace(msg.ReplyTo.Text) != "" {
		out.MainReplyMessage = msg.ReplyTo.Text
		out.Turns = append(out.Turns, llm.Message{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("[ОСНОВНОЕ СООБЩЕНИЕ - ОТВЕТЬ НА ЭТО] От %s: %s", msg.ReplyTo.From.Label(), msg.ReplyTo.Text),
		})
	}

	selected := e.selectHistory(msg)
	for _, entry := range selected {
		author := historyAuthor(entry)
		out.Turns = append(out.Turns, llm.Message{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("[Предыдущее сообщение от %s] %s", author.Label(), truncateRunes(entry.Text, e.cfg.MaxContextMessageLength)),
		})
	}

	out.Roster = e.buildRoster(msg, selected)
	return out
}

// selectHistory picks up to ContextMessageLimit recent text entries of the
// chat window, excluding the current message itself, preserving arrival
// order so the generator reads them naturally.
func (e *Engine) selectHistory(msg Message) []chathistory.Entry {
	window := e.history.Recent(msg.Chat.ID)

	filtered := make([]chathistory.Entry, 0, len(window))
	for _, entry := range window {
		if entry.MessageID == msg.ID {
			continue
		}
		if strings.TrimSpace(entry.Text) == "" {
			continue
		}
		filtered = append(filtered, entry)
	}
	if len(filtered) > e.cfg.ContextMessageLimit {
		filtered = filtered[len(filtered)-e.cfg.ContextMessageLimit:]
	}
	return filtered
}

// buildRoster renders the distinct participants referenced by the primary
// target, the current sender, and the selected slice, in first-seen order.
func (e *Engine) buildRoster(msg Message, selected []chathistory.Entry) string {
	var (
		order []int64
		seen  = make(map[int64]User)
	)
	add := func(u User) {
		if u.ID == 0 {
			return
		}
		if _, ok := seen[u.ID]; ok {
			return
		}
		seen[u.ID] = u
		order = append(order, u.ID)
	}

	if msg.ReplyTo != nil {
		add(msg.ReplyTo.From)
	}
	add(msg.From)
	for _, entry := range selected {
		add(historyAuthor(entry))
	}

	if len(order) == 0 {
		return ""
	}
	lines := make([]string, 0, len(order))
	for i, id := range order {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, seen[id].DetailedLabel()))
	}
	return strings.Join(lines, "\n")
}

func historyAuthor(entry chathistory.Entry) User {
	return User{
		ID:        entry.FromUserID,
		FirstName: entry.FromFirstName,
		LastName:  entry.FromLastName,
		Username:  entry.FromUsername,
		IsBot:     entry.FromIsBot,
	}
}
