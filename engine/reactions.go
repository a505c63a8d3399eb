package engine

import (
	"context"
	"log/slog"
)

// reactionCatalog is the set of emoji the Telegram API accepts for message
// reactions.
var reactionCatalog = []string{
	"👍", "👎", "❤", "🔥", "🥰", "👏", "😁", "🤔", "🤯", "😱",
	"🤬", "😢", "🎉", "🤩", "🤮", "💩", "🙏", "👌", "🕊", "🤡",
	"🥱", "🥴", "😍", "🐳", "❤‍🔥", "🌚", "🌭", "💯", "🤣", "⚡",
	"🍌", "🏆", "💔", "🤨", "😐", "🍓", "🍾", "💋", "🖕", "😈",
	"😴", "😭", "🤓", "👻", "👨‍💻", "👀", "🎃", "🙈", "😇", "😨",
	"🤝", "✍", "🤗", "🫡", "🎅", "🎄", "☃", "💅", "🤪", "🗿",
	"🆒", "💘", "🙉", "🦄", "😘", "💊", "🙊", "😎", "👾", "🤷‍♂",
	"🤷", "🤷‍♀", "😡",
}

// maybeReact fires the cosmetic reaction gate for a group message not
// authored by the bot itself. Reactions are best-effort: a platform
// rejection is logged and never retried.
func (e *Engine) maybeReact(ctx context.Context, log *slog.Logger, msg Message) {
	if e.cfg.BotID != 0 && msg.From.ID == e.cfg.BotID {
		return
	}
	if e.rng.Float64() >= e.cfg.ReactionProbability {
		return
	}

	emoji := e.reactions[e.rng.Intn(len(e.reactions))]
	if err := e.transport.SendReaction(ctx, msg.Chat.ID, msg.ID, emoji); err != nil {
		log.Debug("reaction rejected", "emoji", emoji, "error", err)
		return
	}
	log.Debug("reaction attached", "emoji", emoji)
}
