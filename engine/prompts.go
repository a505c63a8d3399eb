package engine

import (
	_ "embed"

	"github.com/cherrynik/tg-ai-bot/internal/prompttmpl"
)

//go:embed prompts/addressing_system.tmpl
var addressingSystemPromptSource string

//go:embed prompts/transcribe_intent.tmpl
var transcribeIntentPromptSource string

//go:embed prompts/system_persona.tmpl
var systemPersonaPromptSource string

//go:embed prompts/refusal_check.tmpl
var refusalCheckPromptSource string

//go:embed prompts/reformulate.tmpl
var reformulatePromptSource string

//go:embed prompts/troll_comment.tmpl
var trollCommentPromptSource string

var (
	addressingSystemPromptTemplate = prompttmpl.MustParse("addressing_system", addressingSystemPromptSource, nil)
	transcribeIntentPromptTemplate = prompttmpl.MustParse("transcribe_intent", transcribeIntentPromptSource, nil)
	systemPersonaPromptTemplate    = prompttmpl.MustParse("system_persona", systemPersonaPromptSource, nil)
	reformulatePromptTemplate      = prompttmpl.MustParse("reformulate", reformulatePromptSource, nil)
	trollCommentPromptTemplate     = prompttmpl.MustParse("troll_comment", trollCommentPromptSource, nil)
)

type addressingPromptData struct {
	BotName      string
	IsReplyToBot bool
}

func renderAddressingSystemPrompt(botName string, isReplyToBot bool) (string, error) {
	return prompttmpl.Render(addressingSystemPromptTemplate, addressingPromptData{
		BotName:      botName,
		IsReplyToBot: isReplyToBot,
	})
}

type transcribeIntentPromptData struct {
	MediaLabel string
	Text       string
}

func renderTranscribeIntentPrompt(mediaLabel, text string) (string, error) {
	return prompttmpl.Render(transcribeIntentPromptTemplate, transcribeIntentPromptData{
		MediaLabel: mediaLabel,
		Text:       text,
	})
}

type personaPromptData struct {
	BotName          string
	BotUsername      string
	PersonaIdentity  string
	MainReplyMessage string
	ChatTitle        string
	ChatKind         string
	Roster           string
}

func renderPersonaSystemPrompt(data personaPromptData) (string, error) {
	return prompttmpl.Render(systemPersonaPromptTemplate, data)
}

type reformulatePromptData struct {
	Request string
}

func renderReformulatePrompt(request string) (string, error) {
	return prompttmpl.Render(reformulatePromptTemplate, reformulatePromptData{Request: request})
}

type trollCommentPromptData struct {
	BotName  string
	UserInfo string
	Text     string
}

func renderTrollCommentPrompt(botName, userInfo, text string) (string, error) {
	return prompttmpl.Render(trollCommentPromptTemplate, trollCommentPromptData{
		BotName:  botName,
		UserInfo: userInfo,
		Text:     text,
	})
}
