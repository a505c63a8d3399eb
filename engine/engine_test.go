package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/cherrynik/tg-ai-bot/internal/chathistory"
	"github.com/cherrynik/tg-ai-bot/llm"
	"github.com/cherrynik/tg-ai-bot/registry"
)

// quietGates pins both engagement probabilities to an effectively-never value
// so pipeline assertions are deterministic.
func quietGates(opts *Options) {
	opts.Config.ReactionProbability = 1e-12
	opts.Config.TrollCommentProbability = 1e-12
}

func scriptOracle(env *testEnv, addressing, refusal string, draft string) {
	env.oracle.Classify = func(_ int, systemPrompt, _ string) (string, error) {
		switch {
		case strings.Contains(systemPrompt, "обращаются ли к тебе"):
			return addressing, nil
		case strings.Contains(systemPrompt, "классификатор ответов"):
			return refusal, nil
		default:
			return "SKIP", nil
		}
	}
	env.oracle.Generate = func(_ int, _ string, _ []llm.Message) (string, error) {
		return draft, nil
	}
}

func TestHandleMessageAddressedGroupReply(t *testing.T) {
	env := newTestEnv(t, quietGates)
	scriptOracle(env, "ANSWER", "ANSWER", "Солнечно, бери панамку.")

	msg := groupMessage(101, alice, "бот, какая погода?")
	env.engine.HandleMessage(context.Background(), msg)

	texts := env.transport.sentTexts()
	if len(texts) != 1 {
		t.Fatalf("sent %d messages, want exactly 1 reply", len(texts))
	}
	got := texts[0]
	if got.ChatID != msg.Chat.ID {
		t.Errorf("reply chat = %d, want %d", got.ChatID, msg.Chat.ID)
	}
	if got.Opts.ReplyToMessageID != msg.ID {
		t.Errorf("reply target = %d, want %d", got.Opts.ReplyToMessageID, msg.ID)
	}
	if !got.Opts.Markdown {
		t.Error("main reply must request markdown rendering")
	}
	if got.Text != "Солнечно, бери панамку." {
		t.Errorf("reply text = %q", got.Text)
	}

	window := env.history.Recent(msg.Chat.ID)
	if len(window) != 1 || window[0].MessageID != msg.ID {
		t.Errorf("history window = %+v, want the handled message", window)
	}
}

func TestHandleMessageNotAddressedStaysSilent(t *testing.T) {
	env := newTestEnv(t, quietGates)
	scriptOracle(env, "SKIP", "ANSWER", "не должно отправиться")

	env.engine.HandleMessage(context.Background(), groupMessage(102, bob, "Алиса, глянь что нашёл"))

	if texts := env.transport.sentTexts(); len(texts) != 0 {
		t.Fatalf("sent %d messages for a message addressed to someone else", len(texts))
	}
	// The message still lands in the context window for later replies.
	if window := env.history.Recent(-100500); len(window) != 1 {
		t.Errorf("history window = %d entries, want 1", len(window))
	}
}

func TestHandleMessageRegistersChatAndUser(t *testing.T) {
	chats := &memChatRegistry{}
	users := &memUserRegistry{}
	env := newTestEnv(t, func(opts *Options) {
		quietGates(opts)
		opts.Chats = chats
		opts.Users = users
	})
	scriptOracle(env, "SKIP", "ANSWER", "")

	msg := groupMessage(103, bob, "привет всем")
	env.engine.HandleMessage(context.Background(), msg)

	if !chats.chats[msg.Chat.ID] {
		t.Error("chat not registered")
	}
	u, ok := users.users[bob.ID]
	if !ok {
		t.Fatal("sender not registered")
	}
	if u.FirstName != "Боб" || u.LastName != "Смирнов" {
		t.Errorf("registered user = %+v", u)
	}
}

func TestHandleMessageTargetChatRestriction(t *testing.T) {
	env := newTestEnv(t, func(opts *Options) {
		quietGates(opts)
		opts.Config.TargetChatID = -200
	})
	scriptOracle(env, "ANSWER", "ANSWER", "ответ")

	env.engine.HandleMessage(context.Background(), groupMessage(104, alice, "бот?"))

	if classify, generate := env.oracle.counts(); classify != 0 || generate != 0 {
		t.Fatal("messages from other chats must not reach the oracle")
	}
	if texts := env.transport.sentTexts(); len(texts) != 0 {
		t.Fatal("messages from other chats must not be answered")
	}
}

func TestHandleMessageIgnoresNonRoutable(t *testing.T) {
	env := newTestEnv(t, quietGates)
	scriptOracle(env, "ANSWER", "ANSWER", "ответ")

	noSender := groupMessage(105, User{}, "текст")
	env.engine.HandleMessage(context.Background(), noSender)

	empty := groupMessage(106, alice, "   ")
	env.engine.HandleMessage(context.Background(), empty)

	if classify, generate := env.oracle.counts(); classify != 0 || generate != 0 {
		t.Fatal("non-routable messages must not reach the oracle")
	}
}

func TestHandleMessagePrivateChat(t *testing.T) {
	env := newTestEnv(t, quietGates)
	scriptOracle(env, "SKIP", "ANSWER", "Привет! Чем помочь?")

	msg := Message{
		ID:   201,
		Chat: ChatRef{ID: 555, Kind: ChatPrivate},
		From: alice,
		Text: "привет",
	}
	env.engine.HandleMessage(context.Background(), msg)

	texts := env.transport.sentTexts()
	if len(texts) != 1 {
		t.Fatalf("sent %d messages, want 1", len(texts))
	}
	if texts[0].Opts.ReplyToMessageID != 0 {
		t.Error("private replies do not quote the inbound message")
	}
	if texts[0].Text != "Привет! Чем помочь?" {
		t.Errorf("reply = %q", texts[0].Text)
	}
	// Private chats never run the addressing gate.
	if classify, _ := env.oracle.counts(); classify != 1 {
		t.Errorf("classifier ran %d times, want only the refusal check", classify)
	}
}

func TestHandleMessageMediaReplyFullPipeline(t *testing.T) {
	env := newTestEnv(t, quietGates)
	env.transport.MediaBytes = []byte("ogg")
	env.transcriber.Text = "Текст из голосового."
	env.oracle.Classify = func(_ int, systemPrompt, _ string) (string, error) {
		switch {
		case strings.Contains(systemPrompt, "обращаются ли к тебе"):
			return "ANSWER", nil
		case strings.Contains(systemPrompt, "ЗАПРОС НА ТРАНСКРИПЦИЮ"):
			return "TRANSCRIBE", nil
		default:
			return "ANSWER", nil
		}
	}

	msg := voiceReply("что тут?")
	env.engine.HandleMessage(context.Background(), msg)

	texts := env.transport.sentTexts()
	if len(texts) != 1 || texts[0].Text != "Текст из голосового." {
		t.Fatalf("sent %+v, want only the transcript", texts)
	}
	// Terminal route: generation never ran.
	if _, generate := env.oracle.counts(); generate != 0 {
		t.Errorf("generator ran %d times after a terminal transcription", generate)
	}
}

func TestHandleMemberJoinedGreetsOnSelfJoin(t *testing.T) {
	chats := &memChatRegistry{}
	users := &memUserRegistry{}
	env := newTestEnv(t, func(opts *Options) {
		opts.Config.GreetingMessage = "Всем привет, я на связи!"
		opts.Chats = chats
		opts.Users = users
	})

	ev := MemberEvent{
		Chat:    ChatRef{ID: -300, Kind: ChatSupergroup, Title: "Новый чат"},
		Joined:  []User{{ID: 99, FirstName: "Тестобот", IsBot: true}, {ID: 7, FirstName: "Гриша"}},
		BotSelf: true,
	}
	env.engine.HandleMemberJoined(context.Background(), ev)

	texts := env.transport.sentTexts()
	if len(texts) != 1 || texts[0].Text != "Всем привет, я на связи!" {
		t.Fatalf("sent %+v, want the greeting", texts)
	}
	if !chats.chats[-300] {
		t.Error("joined chat not registered")
	}
	if _, ok := users.users[7]; !ok {
		t.Error("co-joined member not registered")
	}
	if _, ok := users.users[99]; ok {
		t.Error("the bot must not register itself")
	}
}

func TestHandleMemberJoinedOrdinaryMemberNoGreeting(t *testing.T) {
	env := newTestEnv(t, func(opts *Options) {
		opts.Config.GreetingMessage = "Всем привет!"
	})

	ev := MemberEvent{
		Chat:   ChatRef{ID: -300, Kind: ChatGroup},
		Joined: []User{{ID: 7, FirstName: "Гриша"}},
	}
	env.engine.HandleMemberJoined(context.Background(), ev)

	if texts := env.transport.sentTexts(); len(texts) != 0 {
		t.Fatalf("greeted on an ordinary member join: %+v", texts)
	}
}

func TestHandleMemberLeftKeepsRegistration(t *testing.T) {
	chats := &memChatRegistry{}
	env := newTestEnv(t, func(opts *Options) {
		opts.Chats = chats
	})

	chat := ChatRef{ID: -400, Kind: ChatGroup}
	env.engine.HandleMemberJoined(context.Background(), MemberEvent{Chat: chat, Joined: []User{{ID: 7, FirstName: "Гриша"}}})
	left := User{ID: 7, FirstName: "Гриша"}
	env.engine.HandleMemberLeft(context.Background(), MemberEvent{Chat: chat, Left: &left})

	if !chats.chats[-400] {
		t.Error("chat registration must survive member departures")
	}
}

func TestNewValidation(t *testing.T) {
	base := func() Options {
		return Options{
			Config:    Config{BotName: "Бот", ChatModel: "m", ClassifierModel: "c"},
			Client:    &stubOracle{},
			Transport: &stubTransport{},
			History:   chathistory.NewStore(chathistory.DefaultLimit),
			Chats:     &memChatRegistry{},
			Users:     &memUserRegistry{},
		}
	}

	if _, err := New(base()); err != nil {
		t.Fatalf("valid options rejected: %v", err)
	}

	missing := []struct {
		name   string
		mutate func(*Options)
	}{
		{"client", func(o *Options) { o.Client = nil }},
		{"transport", func(o *Options) { o.Transport = nil }},
		{"history", func(o *Options) { o.History = nil }},
		{"chats", func(o *Options) { o.Chats = nil }},
		{"users", func(o *Options) { o.Users = nil }},
		{"bot name", func(o *Options) { o.Config.BotName = " " }},
	}
	for _, tc := range missing {
		t.Run(tc.name, func(t *testing.T) {
			opts := base()
			tc.mutate(&opts)
			if _, err := New(opts); err == nil {
				t.Fatalf("New() accepted options without %s", tc.name)
			}
		})
	}
}

func TestRegistryUserDefaultsFirstName(t *testing.T) {
	u := registryUser(User{ID: 12, Username: "ghost"})
	want := registry.User{ID: 12, FirstName: "Неизвестно", Username: "ghost"}
	if u != want {
		t.Errorf("registryUser() = %+v, want %+v", u, want)
	}
}
