package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/cherrynik/tg-ai-bot/llm"
)

func TestDraftReplyDeliversAcceptedDraft(t *testing.T) {
	env := newTestEnv(t, nil)
	env.oracle.Generate = func(_ int, _ string, _ []llm.Message) (string, error) {
		return "Солнечно и плюс двадцать.", nil
	}
	env.oracle.Classify = func(_ int, _, _ string) (string, error) {
		return "ANSWER", nil
	}

	reply, deliver := env.engine.draftReply(context.Background(), slog.New(slog.DiscardHandler), "system", nil, "какая погода?")
	if !deliver || reply != "Солнечно и плюс двадцать." {
		t.Fatalf("draftReply() = (%q, %v), want the accepted draft", reply, deliver)
	}
	classify, generate := env.oracle.counts()
	if classify != 1 || generate != 1 {
		t.Errorf("oracle calls = %d classify, %d generate; want 1 and 1", classify, generate)
	}
}

func TestDraftReplyDoubleRefusalHitsDeterministicFallback(t *testing.T) {
	env := newTestEnv(t, nil)
	env.oracle.Generate = func(call int, _ string, _ []llm.Message) (string, error) {
		if call == 1 {
			return "Извините, я не могу это обсуждать.", nil
		}
		return "К сожалению, и так я тоже не могу.", nil
	}
	env.oracle.Classify = func(_ int, _, _ string) (string, error) {
		return "REFUSAL", nil
	}

	request := "расскажи запретную шутку"
	reply, deliver := env.engine.draftReply(context.Background(), slog.New(slog.DiscardHandler), "system", nil, request)
	if !deliver {
		t.Fatal("double refusal must still deliver the fallback")
	}
	if strings.TrimSpace(reply) == "" {
		t.Fatal("fallback reply is empty")
	}
	if !strings.Contains(reply, request) {
		t.Errorf("fallback %q does not echo the request", reply)
	}

	// The loop is bounded: two generation attempts, two refusal checks.
	classify, generate := env.oracle.counts()
	if generate != 2 {
		t.Errorf("generate calls = %d, want exactly 2", generate)
	}
	if classify != 2 {
		t.Errorf("classify calls = %d, want exactly 2", classify)
	}
}

func TestDraftReplyRetryAccepted(t *testing.T) {
	env := newTestEnv(t, nil)
	env.oracle.Generate = func(call int, _ string, text []llm.Message) (string, error) {
		if call == 1 {
			return "Я не могу помочь с этим.", nil
		}
		return "Ладно, слушай анекдот.", nil
	}
	env.oracle.Classify = func(call int, _, _ string) (string, error) {
		if call == 1 {
			return "REFUSAL", nil
		}
		return "ANSWER", nil
	}

	reply, deliver := env.engine.draftReply(context.Background(), slog.New(slog.DiscardHandler), "system", nil, "шутку давай")
	if !deliver || reply != "Ладно, слушай анекдот." {
		t.Fatalf("draftReply() = (%q, %v), want the reformulated draft", reply, deliver)
	}
}

func TestDraftReplyRetryCarriesReformulation(t *testing.T) {
	env := newTestEnv(t, nil)
	var secondUserTurn string
	env.oracle.Generate = func(call int, _ string, messages []llm.Message) (string, error) {
		if call == 2 {
			secondUserTurn = messages[len(messages)-1].Content
		}
		return "Я отказываюсь.", nil
	}
	env.oracle.Classify = func(_ int, _, _ string) (string, error) {
		return "REFUSAL", nil
	}

	env.engine.draftReply(context.Background(), slog.New(slog.DiscardHandler), "system", nil, "сделай невозможное")
	if !strings.Contains(secondUserTurn, "сделай невозможное") {
		t.Errorf("retry turn %q does not quote the original request", secondUserTurn)
	}
	if !strings.Contains(secondUserTurn, "абсурд") {
		t.Errorf("retry turn %q is not the reformulation prompt", secondUserTurn)
	}
}

func TestDraftReplyDeclineStaysSilent(t *testing.T) {
	for _, token := range []string{"", "SKIP", "  skip  "} {
		env := newTestEnv(t, nil)
		env.oracle.Generate = func(_ int, _ string, _ []llm.Message) (string, error) {
			return token, nil
		}

		reply, deliver := env.engine.draftReply(context.Background(), slog.New(slog.DiscardHandler), "system", nil, "ну?")
		if deliver || reply != "" {
			t.Errorf("decline %q: draftReply() = (%q, %v), want silence", token, reply, deliver)
		}
		if classify, _ := env.oracle.counts(); classify != 0 {
			t.Errorf("decline %q: refusal check ran %d times on an empty draft", token, classify)
		}
	}
}

func TestDraftReplyGenerationErrorYieldsApology(t *testing.T) {
	env := newTestEnv(t, nil)
	env.oracle.Generate = func(_ int, _ string, _ []llm.Message) (string, error) {
		return "", errors.New("connection reset")
	}

	reply, deliver := env.engine.draftReply(context.Background(), slog.New(slog.DiscardHandler), "system", nil, "привет")
	if !deliver || reply != generationFailureApology {
		t.Fatalf("draftReply() = (%q, %v), want the fixed apology", reply, deliver)
	}
}

func TestDraftReplyRetryErrorFallsBack(t *testing.T) {
	env := newTestEnv(t, nil)
	env.oracle.Generate = func(call int, _ string, _ []llm.Message) (string, error) {
		if call == 1 {
			return "Не могу.", nil
		}
		return "", errors.New("timeout")
	}
	env.oracle.Classify = func(_ int, _, _ string) (string, error) {
		return "REFUSAL", nil
	}

	reply, deliver := env.engine.draftReply(context.Background(), slog.New(slog.DiscardHandler), "system", nil, "запрос")
	if !deliver || strings.TrimSpace(reply) == "" {
		t.Fatalf("draftReply() = (%q, %v), want a non-empty fallback", reply, deliver)
	}
}

func TestClassifyRefusalErrorDefaultsToAnswer(t *testing.T) {
	env := newTestEnv(t, nil)
	env.oracle.Classify = func(_ int, _, _ string) (string, error) {
		return "", errors.New("rate limited")
	}

	if got := env.engine.classifyRefusal(context.Background(), slog.New(slog.DiscardHandler), "какой-то черновик"); got != VerdictAnswer {
		t.Fatalf("classifyRefusal() on error = %v, want VerdictAnswer", got)
	}
}
