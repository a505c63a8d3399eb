// Package engine implements the conversational routing core: per-message
// addressing decisions, reply-chain transcription routing, bounded context
// assembly, generation with a refusal-retry loop, and the probability-gated
// engagement side effects.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cherrynik/tg-ai-bot/internal/chathistory"
	"github.com/cherrynik/tg-ai-bot/llm"
	"github.com/cherrynik/tg-ai-bot/registry"
)

const (
	DefaultReactionProbability     = 0.15
	DefaultTrollCommentProbability = 0.08
	DefaultContextMessageLimit     = 10
	DefaultMaxContextMessageLength = 300
	DefaultMaxPreviewLength        = 50
)

// Transport is the chat-platform collaborator. Implementations own all wire
// framing; the engine only decides what to send and when.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, opts SendOptions) error
	SendReaction(ctx context.Context, chatID, messageID int64, emoji string) error
	SendTyping(ctx context.Context, chatID int64) error
	FetchMedia(ctx context.Context, fileID string) ([]byte, error)
}

type SendOptions struct {
	ReplyToMessageID int64
	Markdown         bool
}

type ChatRegistry interface {
	MarkKnown(chatID int64) error
}

type UserRegistry interface {
	Upsert(u registry.User) error
}

type Config struct {
	BotName     string
	BotUsername string
	BotID       int64

	// TargetChatID restricts group handling to one chat when non-zero.
	TargetChatID int64

	GreetingMessage string

	ChatModel          string
	ClassifierModel    string
	TranscriptionModel string
	ChatTemperature    float64

	TranscriptionLanguage string

	ReactionProbability     float64
	TrollCommentProbability float64

	ContextMessageLimit     int
	MaxContextMessageLength int
	MaxPreviewLength        int

	// PersonaIdentity is an optional paragraph merged into the system
	// prompt, loaded from the persona file.
	PersonaIdentity string

	// ExtraReactions extends the built-in emoji catalog.
	ExtraReactions []string
}

func (c Config) withDefaults() Config {
	if c.ReactionProbability <= 0 {
		c.ReactionProbability = DefaultReactionProbability
	}
	if c.TrollCommentProbability <= 0 {
		c.TrollCommentProbability = DefaultTrollCommentProbability
	}
	if c.ContextMessageLimit <= 0 {
		c.ContextMessageLimit = DefaultContextMessageLimit
	}
	if c.MaxContextMessageLength <= 0 {
		c.MaxContextMessageLength = DefaultMaxContextMessageLength
	}
	if c.MaxPreviewLength <= 0 {
		c.MaxPreviewLength = DefaultMaxPreviewLength
	}
	if strings.TrimSpace(c.TranscriptionLanguage) == "" {
		c.TranscriptionLanguage = "ru"
	}
	return c
}

type Options struct {
	Config      Config
	Logger      *slog.Logger
	Client      llm.Client
	Transcriber llm.Transcriber
	Transport   Transport
	History     *chathistory.Store
	Chats       ChatRegistry
	Users       UserRegistry

	// Rand seeds the engagement gates; nil means time-seeded.
	Rand *rand.Rand
}

type Engine struct {
	cfg         Config
	logger      *slog.Logger
	client      llm.Client
	transcriber llm.Transcriber
	transport   Transport
	history     *chathistory.Store
	chats       ChatRegistry
	users       UserRegistry
	rng         *lockedRand
	reactions   []string
}

func New(opts Options) (*Engine, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("engine: llm client is required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("engine: transport is required")
	}
	if opts.History == nil {
		return nil, fmt.Errorf("engine: history store is required")
	}
	if opts.Chats == nil || opts.Users == nil {
		return nil, fmt.Errorf("engine: registries are required")
	}
	cfg := opts.Config.withDefaults()
	if strings.TrimSpace(cfg.BotName) == "" {
		return nil, fmt.Errorf("engine: bot name is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Engine{
		cfg:         cfg,
		logger:      logger,
		client:      opts.Client,
		transcriber: opts.Transcriber,
		transport:   opts.Transport,
		history:     opts.History,
		chats:       opts.Chats,
		users:       opts.Users,
		rng:         &lockedRand{r: rng},
		reactions:   append(append([]string(nil), reactionCatalog...), cfg.ExtraReactions...),
	}, nil
}

// HandleMessage runs the full routing pipeline for one inbound message.
// Errors are resolved internally (safe defaults, fixed notices); nothing here
// is fatal to the caller.
func (e *Engine) HandleMessage(ctx context.Context, msg Message) {
	if msg.From.ID == 0 || strings.TrimSpace(msg.Text) == "" {
		return
	}

	log := e.logger.With("corr", uuid.NewString(), "chat_id", msg.Chat.ID)

	switch {
	case msg.Chat.Kind.IsGroup():
		e.handleGroupMessage(ctx, log, msg)
	case msg.Chat.Kind == ChatPrivate:
		e.handlePrivateMessage(ctx, log, msg)
	}
}

func (e *Engine) handleGroupMessage(ctx context.Context, log *slog.Logger, msg Message) {
	if e.cfg.TargetChatID != 0 && msg.Chat.ID != e.cfg.TargetChatID {
		return
	}

	if err := e.chats.MarkKnown(msg.Chat.ID); err != nil {
		log.Warn("failed to persist chat registry", "error", err)
	}
	e.history.Append(msg.Chat.ID, historyEntry(msg))
	if err := e.users.Upsert(registryUser(msg.From)); err != nil {
		log.Warn("failed to persist user registry", "error", err)
	}

	e.maybeReact(ctx, log, msg)

	log.Info("group message",
		"chat_title", msg.Chat.Title,
		"chat_kind", msg.Chat.Kind,
		"from", msg.From.Label(),
		"preview", previewText(msg.Text, e.cfg.MaxPreviewLength),
	)

	if e.classifyAddressed(ctx, log, msg) != Addressed {
		log.Debug("message not addressed to bot")
		e.maybeTrollComment(ctx, log, msg)
		return
	}

	if msg.ReplyTo != nil {
		if handled := e.routeMediaReply(ctx, log, msg); handled {
			return
		}
	}

	e.respond(ctx, log, msg)
}

func (e *Engine) handlePrivateMessage(ctx context.Context, log *slog.Logger, msg Message) {
	log.Info("private message", "preview", previewText(msg.Text, e.cfg.MaxPreviewLength))

	if err := e.users.Upsert(registryUser(msg.From)); err != nil {
		log.Warn("failed to persist user registry", "error", err)
	}
	if err := e.transport.SendTyping(ctx, msg.Chat.ID); err != nil {
		log.Debug("typing indicator failed", "error", err)
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

	reply, deliver := e.draftReply(ctx, log, systemPrompt, nil, msg.Text)
	if !deliver {
		return
	}
	if err := e.transport.SendText(ctx, msg.Chat.ID, reply, SendOptions{Markdown: true}); err != nil {
		log.Error("failed to send private reply", "error", err)
	}
}

// HandleMemberJoined registers the chat, records the joined profiles, and
// greets the chat when the bot itself was added.
func (e *Engine) HandleMemberJoined(ctx context.Context, ev MemberEvent) {
	log := e.logger.With("chat_id", ev.Chat.ID)

	if err := e.chats.MarkKnown(ev.Chat.ID); err != nil {
		log.Warn("failed to persist chat registry", "error", err)
	}
	for _, member := range ev.Joined {
		if member.ID == e.cfg.BotID {
			continue
		}
		if err := e.users.Upsert(registryUser(member)); err != nil {
			log.Warn("failed to persist user registry", "user_id", member.ID, "error", err)
		}
	}

	if !ev.BotSelf {
		return
	}
	log.Info("bot added to chat", "chat_title", ev.Chat.Title, "chat_kind", ev.Chat.Kind)
	greeting := strings.TrimSpace(e.cfg.GreetingMessage)
	if greeting == "" {
		return
	}
	if err := e.transport.SendText(ctx, ev.Chat.ID, greeting, SendOptions{}); err != nil {
		log.Error("failed to send greeting", "error", err)
	}
}

// HandleMemberLeft only logs. The chat stays registered: membership history
// is kept deliberately, matching the write-only registry contract.
func (e *Engine) HandleMemberLeft(_ context.Context, ev MemberEvent) {
	if ev.BotSelf {
		e.logger.Warn("bot removed from chat", "chat_id", ev.Chat.ID, "chat_title", ev.Chat.Title)
		return
	}
	if ev.Left != nil {
		e.logger.Debug("member left chat", "chat_id", ev.Chat.ID, "user_id", ev.Left.ID)
	}
}

func historyEntry(msg Message) chathistory.Entry {
	return chathistory.Entry{
		MessageID:     msg.ID,
		FromUserID:    msg.From.ID,
		FromFirstName: msg.From.FirstName,
		FromLastName:  msg.From.LastName,
		FromUsername:  msg.From.Username,
		FromIsBot:     msg.From.IsBot,
		Text:          msg.Text,
		SentAt:        time.Unix(msg.SentAt, 0).UTC(),
	}
}

func registryUser(u User) registry.User {
	firstName := strings.TrimSpace(u.FirstName)
	if firstName == "" {
		firstName = "Неизвестно"
	}
	return registry.User{
		ID:        u.ID,
		FirstName: firstName,
		LastName:  u.LastName,
		Username:  u.Username,
		IsBot:     u.IsBot,
	}
}

// lockedRand serializes draws: handlers run concurrently and math/rand.Rand
// is not goroutine safe.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}
