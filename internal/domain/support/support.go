// Package support holds the customer-facing support chat domain types.
package support

import (
	"cmp"
	"errors"
	"slices"
	"strings"
	"time"
)

// DefaultWelcomeMessage is shown when the transcript is empty and the
// server did not provide a welcome text.
const DefaultWelcomeMessage = "Hello! How can we help you today?"

// DefaultMaxFileSize matches the server's default upload limit (5 MB).
const DefaultMaxFileSize int64 = 5 * 1024 * 1024

// Position is the screen corner the widget is anchored to.
type Position string

const (
	PositionLeft  Position = "left"
	PositionRight Position = "right"
)

// ParsePosition accepts both the short form and the "bottom-*" values the
// settings endpoint emits. Unknown values fall back to right.
func ParsePosition(s string) Position {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "bottom-left", "top-left":
		return PositionLeft
	default:
		return PositionRight
	}
}

// WidgetConfig is the widget configuration returned by the config endpoint.
// It is fetched once and never changes for the lifetime of a controller.
type WidgetConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	Position         Position `json:"position" yaml:"position"`
	PrimaryColor     string   `json:"primary_color,omitempty" yaml:"primary_color,omitempty"`
	WelcomeMessage   string   `json:"welcome_message" yaml:"welcome_message"`
	OfflineMessage   string   `json:"offline_message,omitempty" yaml:"offline_message,omitempty"`
	ShowOnlineStatus bool     `json:"show_online_status" yaml:"show_online_status"`
	AgentsOnline     int      `json:"agents_online" yaml:"agents_online"`
	MaxFileSize      int64    `json:"max_file_size" yaml:"max_file_size"` // bytes
}

// DefaultConfig is the safe configuration used when the config endpoint
// cannot be reached or returns garbage: the widget stays disabled.
func DefaultConfig() WidgetConfig {
	return WidgetConfig{
		Enabled:          false,
		Position:         PositionRight,
		WelcomeMessage:   DefaultWelcomeMessage,
		ShowOnlineStatus: true,
		MaxFileSize:      DefaultMaxFileSize,
	}
}

// Welcome returns the welcome text, falling back to the default greeting.
func (c WidgetConfig) Welcome() string {
	if strings.TrimSpace(c.WelcomeMessage) == "" {
		return DefaultWelcomeMessage
	}
	return c.WelcomeMessage
}

// FileSizeLimit returns the effective client-side upload limit in bytes.
func (c WidgetConfig) FileSizeLimit() int64 {
	if c.MaxFileSize <= 0 {
		return DefaultMaxFileSize
	}
	return c.MaxFileSize
}

// ConversationStatus mirrors the server-side conversation lifecycle.
type ConversationStatus string

const (
	StatusOpen     ConversationStatus = "open"
	StatusPending  ConversationStatus = "pending"
	StatusResolved ConversationStatus = "resolved"
	StatusClosed   ConversationStatus = "closed"
)

// Agent is the support representative assigned to a conversation.
type Agent struct {
	Name          string `json:"name"`
	LocalizedName string `json:"localized_name,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	IsOnline      bool   `json:"is_online"`
}

// DisplayName picks the localized name for Bengali pages when one is set.
func (a Agent) DisplayName(lang string) string {
	if strings.HasPrefix(strings.ToLower(lang), "bn") && a.LocalizedName != "" {
		return a.LocalizedName
	}
	return a.Name
}

// Conversation is the single support thread tied to the visitor session.
type Conversation struct {
	ID     string             `json:"conversation_id"`
	Status ConversationStatus `json:"status,omitempty"`
	Agent  *Agent             `json:"agent,omitempty"`
}

// MessageKind is the server-supplied type tag of a message.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindFile   MessageKind = "file"
	KindSystem MessageKind = "system"
)

// Attachment is a file attached to a message.
type Attachment struct {
	URL  string      `json:"url"`
	Name string      `json:"name"`
	Kind MessageKind `json:"kind"`
}

// IsImage reports whether the attachment should render inline.
func (a Attachment) IsImage() bool { return a.Kind == KindImage }

// Message is one entry of the conversation transcript. IDs increase
// monotonically with arrival order.
type Message struct {
	ID           int64       `json:"id"`
	IsAgent      bool        `json:"is_agent"`
	SenderName   string      `json:"sender_name"`
	SenderAvatar string      `json:"sender_avatar,omitempty"`
	Kind         MessageKind `json:"kind"`
	Content      string      `json:"content"`
	Attachment   *Attachment `json:"attachment,omitempty"`
	IsRead       bool        `json:"is_read"`
	CreatedAt    time.Time   `json:"created_at"`
}

// After returns the messages with an id greater than lastSeen, ordered by
// id ascending. Equal ids keep their input order.
func After(msgs []Message, lastSeen int64) []Message {
	var out []Message
	for i := range msgs {
		if msgs[i].ID > lastSeen {
			out = append(out, msgs[i])
		}
	}
	slices.SortStableFunc(out, func(a, b Message) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// MaxID returns the largest id in msgs, or floor if none is larger.
func MaxID(msgs []Message, floor int64) int64 {
	for i := range msgs {
		if msgs[i].ID > floor {
			floor = msgs[i].ID
		}
	}
	return floor
}

// Sentinel errors shared by the widget and its adapters.
var (
	ErrDisabled       = errors.New("support: chat widget is disabled")
	ErrNoConversation = errors.New("support: no active conversation")
	ErrEmptyMessage   = errors.New("support: message content is required")
	ErrFileTooLarge   = errors.New("support: file exceeds size limit")
)
