package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"testing"

	"github.com/cherrynik/tg-ai-bot/internal/chathistory"
	"github.com/cherrynik/tg-ai-bot/llm"
	"github.com/cherrynik/tg-ai-bot/registry"
)

const (
	testChatModel       = "chat-model"
	testClassifierModel = "classifier-model"
)

// stubOracle routes classifier-model calls to Classify and chat-model calls
// to Generate, mirroring the two oracle roles the engine distinguishes.
type stubOracle struct {
	mu            sync.Mutex
	classifyCalls int
	generateCalls int

	Classify func(call int, systemPrompt, text string) (string, error)
	Generate func(call int, systemPrompt string, messages []llm.Message) (string, error)
}

func (s *stubOracle) Chat(_ context.Context, req llm.Request) (llm.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Model {
	case testClassifierModel:
		s.classifyCalls++
		if s.Classify == nil {
			return llm.Result{Text: "SKIP"}, nil
		}
		systemPrompt := req.Messages[0].Content
		text := req.Messages[len(req.Messages)-1].Content
		out, err := s.Classify(s.classifyCalls, systemPrompt, text)
		return llm.Result{Text: out}, err
	default:
		s.generateCalls++
		if s.Generate == nil {
			return llm.Result{Text: ""}, nil
		}
		out, err := s.Generate(s.generateCalls, req.Messages[0].Content, req.Messages[1:])
		return llm.Result{Text: out}, err
	}
}

func (s *stubOracle) counts() (classify, generate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classifyCalls, s.generateCalls
}

type stubTranscriber struct {
	mu    sync.Mutex
	calls []llm.TranscriptionRequest

	Text string
	Err  error
}

func (s *stubTranscriber) Transcribe(_ context.Context, req llm.TranscriptionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	return s.Text, s.Err
}

type sentText struct {
	ChatID int64
	Text   string
	Opts   SendOptions
}

type sentReaction struct {
	ChatID    int64
	MessageID int64
	Emoji     string
}

type stubTransport struct {
	mu        sync.Mutex
	Texts     []sentText
	Reactions []sentReaction
	Typing    int

	SendTextErr     error
	SendReactionErr error
	MediaBytes      []byte
	FetchMediaErr   error
}

func (s *stubTransport) SendText(_ context.Context, chatID int64, text string, opts SendOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendTextErr != nil {
		return s.SendTextErr
	}
	s.Texts = append(s.Texts, sentText{ChatID: chatID, Text: text, Opts: opts})
	return nil
}

func (s *stubTransport) SendReaction(_ context.Context, chatID, messageID int64, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendReactionErr != nil {
		return s.SendReactionErr
	}
	s.Reactions = append(s.Reactions, sentReaction{ChatID: chatID, MessageID: messageID, Emoji: emoji})
	return nil
}

func (s *stubTransport) SendTyping(_ context.Context, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Typing++
	return nil
}

func (s *stubTransport) FetchMedia(_ context.Context, _ string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FetchMediaErr != nil {
		return nil, s.FetchMediaErr
	}
	return s.MediaBytes, nil
}

func (s *stubTransport) sentTexts() []sentText {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentText, len(s.Texts))
	copy(out, s.Texts)
	return out
}

func (s *stubTransport) sentReactions() []sentReaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentReaction, len(s.Reactions))
	copy(out, s.Reactions)
	return out
}

// memChatRegistry / memUserRegistry avoid file IO in pipeline tests.
type memChatRegistry struct {
	mu    sync.Mutex
	chats map[int64]bool
}

func (m *memChatRegistry) MarkKnown(chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chats == nil {
		m.chats = make(map[int64]bool)
	}
	m.chats[chatID] = true
	return nil
}

type memUserRegistry struct {
	mu    sync.Mutex
	users map[int64]registry.User
}

func (m *memUserRegistry) Upsert(u registry.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users == nil {
		m.users = make(map[int64]registry.User)
	}
	m.users[u.ID] = u
	return nil
}

type testEnv struct {
	engine      *Engine
	oracle      *stubOracle
	transcriber *stubTranscriber
	transport   *stubTransport
	history     *chathistory.Store
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()

	oracle := &stubOracle{}
	transcriber := &stubTranscriber{}
	transport := &stubTransport{}
	history := chathistory.NewStore(20)

	opts := Options{
		Config: Config{
			BotName:            "Тестобот",
			BotUsername:        "testobot",
			BotID:              99,
			ChatModel:          testChatModel,
			ClassifierModel:    testClassifierModel,
			TranscriptionModel: "whisper-1",
		},
		Logger:      slog.New(slog.DiscardHandler),
		Client:      oracle,
		Transcriber: transcriber,
		Transport:   transport,
		History:     history,
		Chats:       &memChatRegistry{},
		Users:       &memUserRegistry{},
		Rand:        rand.New(rand.NewSource(1)),
	}
	if mutate != nil {
		mutate(&opts)
	}

	eng, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{
		engine:      eng,
		oracle:      oracle,
		transcriber: transcriber,
		transport:   transport,
		history:     history,
	}
}

func groupMessage(id int64, from User, text string) Message {
	return Message{
		ID:   id,
		Chat: ChatRef{ID: -100500, Kind: ChatGroup, Title: "Тестовый чат"},
		From: from,
		Text: text,
	}
}

var (
	alice = User{ID: 1, FirstName: "Алиса", Username: "alice"}
	bob   = User{ID: 2, FirstName: "Боб", LastName: "Смирнов"}
)
