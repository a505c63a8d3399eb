package engine

import (
	"fmt"
	"strings"
)

type ChatKind string

const (
	ChatPrivate    ChatKind = "private"
	ChatGroup      ChatKind = "group"
	ChatSupergroup ChatKind = "supergroup"
)

func (k ChatKind) IsGroup() bool {
	return k == ChatGroup || k == ChatSupergroup
}

type ChatRef struct {
	ID    int64
	Kind  ChatKind
	Title string
}

type User struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	IsBot     bool
}

// Label renders the short author form used in context turns:
// "Имя Фамилия (@тэг)".
func (u User) Label() string {
	var parts []string
	if first := strings.TrimSpace(u.FirstName); first != "" {
		parts = append(parts, first)
	}
	if last := strings.TrimSpace(u.LastName); last != "" {
		parts = append(parts, last)
	}
	name := strings.Join(parts, " ")
	username := strings.TrimSpace(u.Username)
	switch {
	case name != "" && username != "":
		return fmt.Sprintf("%s (@%s)", name, username)
	case name != "":
		return name
	case username != "":
		return "@" + username
	default:
		return "Неизвестный пользователь"
	}
}

// DetailedLabel renders the roster form with every known profile field.
func (u User) DetailedLabel() string {
	var parts []string
	if first := strings.TrimSpace(u.FirstName); first != "" {
		parts = append(parts, "Имя: "+first)
	}
	if last := strings.TrimSpace(u.LastName); last != "" {
		parts = append(parts, "Фамилия: "+last)
	}
	if username := strings.TrimSpace(u.Username); username != "" {
		parts = append(parts, "Тэг: @"+username)
	}
	if u.IsBot {
		parts = append(parts, "Бот: Да")
	} else {
		parts = append(parts, "Бот: Нет")
	}
	return strings.Join(parts, ", ")
}

type MediaKind string

const (
	MediaVoice     MediaKind = "voice"
	MediaVideo     MediaKind = "video"
	MediaVideoNote MediaKind = "video_note"
	MediaDocument  MediaKind = "document"
)

// Media describes a transcribable payload attached to a message. Document
// media is only constructed for audio/video mime types.
type Media struct {
	Kind     MediaKind
	FileID   string
	MimeType string
}

// Label is the human phrasing used inside classification prompts.
func (m Media) Label() string {
	switch m.Kind {
	case MediaVideo:
		return "видео"
	case MediaVideoNote:
		return "кружочек"
	default:
		return "голосовое"
	}
}

// FileName picks a transcription upload name matching the payload container.
func (m Media) FileName() string {
	if strings.HasPrefix(m.MimeType, "video/") {
		return "video.mp4"
	}
	return "audio.ogg"
}

// Message is the read-only view of one inbound chat message. Non-text
// messages are not routed into the pipeline.
type Message struct {
	ID      int64
	Chat    ChatRef
	From    User
	Text    string
	ReplyTo *Message
	Media   *Media
	SentAt  int64
}

// MemberEvent describes a chat membership change.
type MemberEvent struct {
	Chat    ChatRef
	Joined  []User
	Left    *User
	BotSelf bool // the bot itself joined or left
}

// previewText shortens user text for log lines.
func previewText(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// truncateRunes bounds context turn content without splitting a rune.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
