package main

import (
	"time"

	"github.com/spf13/viper"

	"github.com/cherrynik/tg-ai-bot/engine"
	"github.com/cherrynik/tg-ai-bot/internal/chathistory"
)

func initViperDefaults() {
	// Telegram transport
	viper.SetDefault("telegram.token", "")
	viper.SetDefault("telegram.base_url", "https://api.telegram.org")
	viper.SetDefault("telegram.target_chat_id", int64(0))
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.max_concurrency", 4)

	// LLM provider
	viper.SetDefault("openai.base_url", "https://api.openai.com")
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("models.chat", "gpt-4o")
	viper.SetDefault("models.classifier", "gpt-4o-mini")
	viper.SetDefault("models.transcription", "whisper-1")
	viper.SetDefault("models.chat_temperature", 0.9)
	viper.SetDefault("transcription.language", "ru")

	// Bot identity
	viper.SetDefault("bot.name", "")
	viper.SetDefault("bot.greeting_message", "")
	viper.SetDefault("bot.startup_message", "")
	viper.SetDefault("persona.file", "")

	// Engagement gates
	viper.SetDefault("engagement.reaction_probability", engine.DefaultReactionProbability)
	viper.SetDefault("engagement.troll_probability", engine.DefaultTrollCommentProbability)

	// Context window
	viper.SetDefault("history.max_messages", chathistory.DefaultLimit)
	viper.SetDefault("history.context_limit", engine.DefaultContextMessageLimit)
	viper.SetDefault("history.max_context_message_length", engine.DefaultMaxContextMessageLength)
	viper.SetDefault("history.max_preview_length", engine.DefaultMaxPreviewLength)

	// Persistent state
	viper.SetDefault("state.dir", "~/.tgaibot")

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
}
