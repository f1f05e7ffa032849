// Package render maps support messages to presentation-neutral view models
// and renders those view models to escaped HTML fragments.
package render

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Strob0t/supportchat/internal/domain/support"
)

// Side is the transcript column a bubble is drawn in.
type Side string

const (
	SideAgent Side = "agent"
	SideUser  Side = "user"
)

// Default header texts shown before an agent is assigned.
const (
	DefaultAgentName = "Customer Support"
	StatusOnline     = "Support is online"
	StatusOffline    = "Support is offline"
)

// Avatar is either an image or a placeholder. Agent placeholders use an
// icon, visitor placeholders show the sender's initial.
type Avatar struct {
	URL       string `json:"url,omitempty"`
	Alt       string `json:"alt,omitempty"`
	Initial   string `json:"initial,omitempty"`
	AgentIcon bool   `json:"agent_icon,omitempty"`
}

// AttachmentView describes how an attachment is drawn. Inline attachments
// are images that open in a new tab on click; the rest are download links.
type AttachmentView struct {
	URL    string `json:"url"`
	Name   string `json:"name"`
	Inline bool   `json:"inline"`
}

// Bubble is the view model of one transcript message.
type Bubble struct {
	MessageID  int64           `json:"message_id"`
	Side       Side            `json:"side"`
	System     bool            `json:"system,omitempty"`
	Sender     string          `json:"sender"`
	Avatar     Avatar          `json:"avatar"`
	Content    string          `json:"content"`
	Attachment *AttachmentView `json:"attachment,omitempty"`
	Time       string          `json:"time"`
}

// Class returns the CSS class of the bubble's row.
func (b Bubble) Class() string {
	if b.System {
		return "system-message"
	}
	if b.Side == SideAgent {
		return "agent-message"
	}
	return "user-message"
}

// NoticeKind identifies a placeholder that replaces the transcript.
type NoticeKind string

const (
	NoticeWelcome NoticeKind = "welcome"
	NoticeLogin   NoticeKind = "login"
	NoticeError   NoticeKind = "error"
)

// Notice is a system placeholder. The optional link sits between Text and
// Suffix.
type Notice struct {
	Kind     NoticeKind `json:"kind"`
	Text     string     `json:"text"`
	LinkText string     `json:"link_text,omitempty"`
	LinkURL  string     `json:"link_url,omitempty"`
	Suffix   string     `json:"suffix,omitempty"`
}

// Plain returns the notice as plain text.
func (n Notice) Plain() string {
	return n.Text + n.LinkText + n.Suffix
}

// Transcript is a full transcript render: either a notice or bubbles.
type Transcript struct {
	Notice  *Notice  `json:"notice,omitempty"`
	Bubbles []Bubble `json:"bubbles,omitempty"`
}

// AgentHeader is the view model of the chat window header.
type AgentHeader struct {
	Name       string `json:"name"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	Online     bool   `json:"online"`
	Status     string `json:"status"`
	ShowStatus bool   `json:"show_status"`
}

// Badge is the unread counter on the launcher button.
type Badge struct {
	Count   int    `json:"count"`
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
}

// Options control locale-dependent parts of rendering.
type Options struct {
	Location *time.Location
	Language string
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

// NewBubble maps a message to its bubble.
func NewBubble(m support.Message, opts Options) Bubble {
	b := Bubble{
		MessageID: m.ID,
		Side:      SideUser,
		System:    m.Kind == support.KindSystem,
		Sender:    m.SenderName,
		Content:   m.Content,
	}
	if m.IsAgent {
		b.Side = SideAgent
	}

	switch {
	case m.SenderAvatar != "":
		b.Avatar = Avatar{URL: m.SenderAvatar, Alt: m.SenderName}
	case m.IsAgent:
		b.Avatar = Avatar{AgentIcon: true}
	default:
		b.Avatar = Avatar{Initial: initial(m.SenderName)}
	}

	if a := m.Attachment; a != nil && a.URL != "" {
		b.Attachment = &AttachmentView{
			URL:    a.URL,
			Name:   a.Name,
			Inline: a.IsImage() || m.Kind == support.KindImage,
		}
	}

	if !m.CreatedAt.IsZero() {
		b.Time = m.CreatedAt.In(opts.location()).Format("15:04")
	}
	return b
}

// NewTranscript renders msgs in input order, or the welcome placeholder
// when there are none.
func NewTranscript(msgs []support.Message, cfg support.WidgetConfig, opts Options) Transcript {
	if len(msgs) == 0 {
		n := Welcome(cfg)
		return Transcript{Notice: &n}
	}
	out := Transcript{Bubbles: make([]Bubble, 0, len(msgs))}
	for i := range msgs {
		out.Bubbles = append(out.Bubbles, NewBubble(msgs[i], opts))
	}
	return out
}

// Welcome is the placeholder for an empty transcript.
func Welcome(cfg support.WidgetConfig) Notice {
	return Notice{Kind: NoticeWelcome, Text: cfg.Welcome()}
}

// LoginPrompt is shown when the visitor has no authenticated session.
func LoginPrompt(loginURL string) Notice {
	if loginURL == "" {
		loginURL = "/accounts/login/"
	}
	return Notice{
		Kind:     NoticeLogin,
		Text:     "Please ",
		LinkText: "login",
		LinkURL:  loginURL,
		Suffix:   " to start a conversation with support.",
	}
}

// ConnectError is shown when the conversation could not be reached.
func ConnectError() Notice {
	return Notice{Kind: NoticeError, Text: "Failed to connect. Please try again."}
}

// NewAgentHeader builds the header for the assigned agent. A nil agent
// yields the generic support header.
func NewAgentHeader(agent *support.Agent, cfg support.WidgetConfig, lang string) AgentHeader {
	h := AgentHeader{
		Name:       DefaultAgentName,
		Online:     true,
		Status:     StatusOnline,
		ShowStatus: cfg.ShowOnlineStatus,
	}
	if agent == nil {
		return h
	}
	if name := agent.DisplayName(lang); name != "" {
		h.Name = name
	}
	h.AvatarURL = agent.AvatarURL
	h.Online = agent.IsOnline
	if !agent.IsOnline {
		h.Status = StatusOffline
	}
	return h
}

// UnreadBadge renders the unread counter. Zero hides the badge and counts
// above 99 collapse to "99+".
func UnreadBadge(n int) Badge {
	switch {
	case n <= 0:
		return Badge{}
	case n > 99:
		return Badge{Count: n, Text: "99+", Visible: true}
	default:
		return Badge{Count: n, Text: strconv.Itoa(n), Visible: true}
	}
}

func initial(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "?"
	}
	r, _ := utf8.DecodeRuneInString(name)
	return string(r)
}
