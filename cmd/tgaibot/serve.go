package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/cherrynik/tg-ai-bot/engine"
	"github.com/cherrynik/tg-ai-bot/internal/chathistory"
	"github.com/cherrynik/tg-ai-bot/internal/fsstore"
	"github.com/cherrynik/tg-ai-bot/internal/logutil"
	"github.com/cherrynik/tg-ai-bot/internal/statepaths"
	"github.com/cherrynik/tg-ai-bot/internal/telegram"
	"github.com/cherrynik/tg-ai-bot/internal/worker"
	"github.com/cherrynik/tg-ai-bot/providers/openai"
	"github.com/cherrynik/tg-ai-bot/registry"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram long-polling daemon",
		RunE:  runServe,
	}

	cmd.Flags().String("telegram-token", "", "Telegram bot token.")
	cmd.Flags().Int64("target-chat-id", 0, "Restrict group handling to this chat id (0 = all chats).")
	_ = viper.BindPFlag("telegram.token", cmd.Flags().Lookup("telegram-token"))
	_ = viper.BindPFlag("telegram.target_chat_id", cmd.Flags().Lookup("target-chat-id"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	token := strings.TrimSpace(viper.GetString("telegram.token"))
	if token == "" {
		return fmt.Errorf("missing telegram.token (set via --telegram-token or %s_TELEGRAM_TOKEN)", envPrefix)
	}
	apiKey := strings.TrimSpace(viper.GetString("openai.api_key"))
	if apiKey == "" {
		return fmt.Errorf("missing openai.api_key (set via %s_OPENAI_API_KEY)", envPrefix)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := telegram.NewClient(nil, viper.GetString("telegram.base_url"), token)
	me, err := api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	botName := strings.TrimSpace(viper.GetString("bot.name"))
	if botName == "" {
		botName = telegram.DisplayName(me)
	}

	persona, err := loadPersona(viper.GetString("persona.file"))
	if err != nil {
		return err
	}

	stateDir := statepaths.StateDir()
	if err := fsstore.EnsureDir(stateDir); err != nil {
		return fmt.Errorf("prepare state dir %s: %w", stateDir, err)
	}
	chats := registry.NewChatStore(statepaths.ChatsPath())
	users := registry.NewUserStore(statepaths.UsersPath())

	oai := openai.New(viper.GetString("openai.base_url"), apiKey)
	history := chathistory.NewStore(viper.GetInt("history.max_messages"))

	eng, err := engine.New(engine.Options{
		Config: engine.Config{
			BotName:                 botName,
			BotUsername:             me.Username,
			BotID:                   me.ID,
			TargetChatID:            viper.GetInt64("telegram.target_chat_id"),
			GreetingMessage:         viper.GetString("bot.greeting_message"),
			ChatModel:               viper.GetString("models.chat"),
			ClassifierModel:         viper.GetString("models.classifier"),
			TranscriptionModel:      viper.GetString("models.transcription"),
			ChatTemperature:         viper.GetFloat64("models.chat_temperature"),
			TranscriptionLanguage:   viper.GetString("transcription.language"),
			ReactionProbability:     viper.GetFloat64("engagement.reaction_probability"),
			TrollCommentProbability: viper.GetFloat64("engagement.troll_probability"),
			ContextMessageLimit:     viper.GetInt("history.context_limit"),
			MaxContextMessageLength: viper.GetInt("history.max_context_message_length"),
			MaxPreviewLength:        viper.GetInt("history.max_preview_length"),
			PersonaIdentity:         persona.Identity,
			ExtraReactions:          persona.ExtraReactions,
		},
		Logger:      logger,
		Client:      oai,
		Transcriber: oai,
		Transport:   &telegramTransport{api: api},
		History:     history,
		Chats:       chats,
		Users:       users,
	})
	if err != nil {
		return err
	}

	logger.Info("bot started",
		"bot_id", me.ID,
		"bot_username", me.Username,
		"bot_name", botName,
		"state_dir", stateDir,
	)

	broadcastStartup(ctx, logger, api, chats)

	maxConcurrency := viper.GetInt("telegram.max_concurrency")
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	jobs := make(chan telegram.Update, maxConcurrency)
	sem := make(chan struct{}, maxConcurrency)

	g, ctx := errgroup.WithContext(ctx)

	worker.Start(worker.StartOptions[telegram.Update]{
		Ctx:  ctx,
		Sem:  sem,
		Jobs: jobs,
		Handle: func(ctx context.Context, upd telegram.Update) {
			dispatchUpdate(ctx, eng, me.ID, upd)
		},
	})

	pollTimeout := viper.GetDuration("telegram.poll_timeout")
	g.Go(func() error {
		var offset int64
		for {
			updates, next, err := api.GetUpdates(ctx, offset, pollTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if telegram.IsPollTimeout(err) {
					continue
				}
				logger.Warn("getUpdates failed", "error", err)
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return nil
				}
				continue
			}
			offset = next
			for _, upd := range updates {
				if err := worker.Enqueue(ctx, ctx, jobs, upd); err != nil {
					return nil
				}
			}
		}
	})

	err = g.Wait()
	logger.Info("bot stopped")
	return err
}

// broadcastStartup tells the configured target chat the bot is back, but only
// when that chat is already in the registry.
func broadcastStartup(ctx context.Context, logger *slog.Logger, api *telegram.Client, chats *registry.ChatStore) {
	message := strings.TrimSpace(viper.GetString("bot.startup_message"))
	target := viper.GetInt64("telegram.target_chat_id")
	if message == "" || target == 0 {
		return
	}

	known, err := chats.Known(target)
	if err != nil {
		logger.Warn("failed to read chat registry", "error", err)
		return
	}
	if !known {
		return
	}
	if err := api.SendText(ctx, target, message, telegram.SendOptions{}); err != nil {
		logger.Warn("startup broadcast failed", "chat_id", target, "error", err)
		return
	}
	logger.Info("startup broadcast sent", "chat_id", target)
}

func dispatchUpdate(ctx context.Context, eng *engine.Engine, botID int64, upd telegram.Update) {
	m := upd.Message
	if m == nil || m.Chat == nil {
		return
	}

	switch {
	case len(m.NewChatMembers) > 0:
		eng.HandleMemberJoined(ctx, joinEvent(m, botID))
	case m.LeftChatMember != nil:
		eng.HandleMemberLeft(ctx, leftEvent(m, botID))
	default:
		eng.HandleMessage(ctx, engineMessage(m))
	}
}

func joinEvent(m *telegram.Message, botID int64) engine.MemberEvent {
	ev := engine.MemberEvent{Chat: chatRef(m.Chat)}
	for _, member := range m.NewChatMembers {
		ev.Joined = append(ev.Joined, engineUser(&member))
		if member.ID == botID {
			ev.BotSelf = true
		}
	}
	return ev
}

func leftEvent(m *telegram.Message, botID int64) engine.MemberEvent {
	left := engineUser(m.LeftChatMember)
	return engine.MemberEvent{
		Chat:    chatRef(m.Chat),
		Left:    &left,
		BotSelf: m.LeftChatMember.ID == botID,
	}
}

func engineMessage(m *telegram.Message) engine.Message {
	msg := engine.Message{
		ID:     m.MessageID,
		Chat:   chatRef(m.Chat),
		Text:   messageText(m),
		Media:  mediaOf(m),
		SentAt: m.Date,
	}
	if m.From != nil {
		msg.From = engineUser(m.From)
	}
	if m.ReplyTo != nil {
		reply := engineMessage(m.ReplyTo)
		if reply.Chat.ID == 0 {
			reply.Chat = msg.Chat
		}
		msg.ReplyTo = &reply
	}
	return msg
}

// messageText routes captions of media messages the same way as plain text.
func messageText(m *telegram.Message) string {
	if strings.TrimSpace(m.Text) != "" {
		return m.Text
	}
	return m.Caption
}

func mediaOf(m *telegram.Message) *engine.Media {
	switch {
	case m.Voice != nil:
		return &engine.Media{Kind: engine.MediaVoice, FileID: m.Voice.FileID, MimeType: orDefault(m.Voice.MimeType, "audio/ogg")}
	case m.VideoNote != nil:
		return &engine.Media{Kind: engine.MediaVideoNote, FileID: m.VideoNote.FileID, MimeType: "video/mp4"}
	case m.Video != nil:
		return &engine.Media{Kind: engine.MediaVideo, FileID: m.Video.FileID, MimeType: orDefault(m.Video.MimeType, "video/mp4")}
	case m.Document != nil:
		mime := m.Document.MimeType
		if strings.HasPrefix(mime, "audio/") || strings.HasPrefix(mime, "video/") {
			return &engine.Media{Kind: engine.MediaDocument, FileID: m.Document.FileID, MimeType: mime}
		}
		return nil
	default:
		return nil
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func chatRef(c *telegram.Chat) engine.ChatRef {
	return engine.ChatRef{
		ID:    c.ID,
		Kind:  engine.ChatKind(c.Type),
		Title: c.Title,
	}
}

func engineUser(u *telegram.User) engine.User {
	return engine.User{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		IsBot:     u.IsBot,
	}
}

// telegramTransport adapts the Bot API client to the engine's transport
// contract.
type telegramTransport struct {
	api *telegram.Client
}

func (t *telegramTransport) SendText(ctx context.Context, chatID int64, text string, opts engine.SendOptions) error {
	return t.api.SendText(ctx, chatID, text, telegram.SendOptions{
		ReplyToMessageID: opts.ReplyToMessageID,
		Markdown:         opts.Markdown,
	})
}

func (t *telegramTransport) SendReaction(ctx context.Context, chatID, messageID int64, emoji string) error {
	return t.api.SendReaction(ctx, chatID, messageID, emoji)
}

func (t *telegramTransport) SendTyping(ctx context.Context, chatID int64) error {
	return t.api.SendTyping(ctx, chatID)
}

func (t *telegramTransport) FetchMedia(ctx context.Context, fileID string) ([]byte, error) {
	return t.api.FetchMedia(ctx, fileID)
}
