package ws

import (
	"context"

	"github.com/Strob0t/supportchat/internal/domain/support"
	"github.com/Strob0t/supportchat/internal/port/presenter"
	"github.com/Strob0t/supportchat/internal/render"
)

// Event type constants for WebSocket messages.
const (
	EventSnapshot          = "snapshot"
	EventMount             = "widget.mount"
	EventOpen              = "widget.open"
	EventAgent             = "agent.update"
	EventTranscriptReplace = "transcript.replace"
	EventTranscriptAppend  = "transcript.append"
	EventBadge             = "badge.update"
	EventInput             = "input.set"
	EventSendEnabled       = "send.enabled"
	EventFileClear         = "file.clear"
	EventAlert             = "alert"
	EventChime             = "chime"
)

// Snapshot is the full mirrored screen sent to a new connection.
type Snapshot struct {
	Mounted     bool                  `json:"mounted"`
	Config      *support.WidgetConfig `json:"config,omitempty"`
	Open        bool                  `json:"open"`
	Agent       *render.AgentHeader   `json:"agent,omitempty"`
	Transcript  []string              `json:"transcript"`
	Badge       render.Badge          `json:"badge"`
	Input       string                `json:"input"`
	SendEnabled bool                  `json:"send_enabled"`
}

// AppendEvent carries one new bubble.
type AppendEvent struct {
	MessageID int64  `json:"message_id"`
	HTML      string `json:"html"`
}

// ReplaceEvent carries the whole transcript.
type ReplaceEvent struct {
	HTML []string `json:"html"`
}

var (
	_ presenter.Presenter = (*Hub)(nil)
	_ presenter.Chime     = (*Hub)(nil)
)

func (h *Hub) Mount(cfg support.WidgetConfig) {
	h.publish(EventMount, cfg, func(s *Snapshot) {
		s.Mounted = true
		s.Config = &cfg
	})
}

func (h *Hub) SetOpen(open bool) {
	h.publish(EventOpen, map[string]bool{"open": open}, func(s *Snapshot) { s.Open = open })
}

func (h *Hub) ShowAgent(a render.AgentHeader) {
	h.publish(EventAgent, a, func(s *Snapshot) { s.Agent = &a })
}

func (h *Hub) ReplaceTranscript(t render.Transcript) {
	html, err := h.frags.Transcript(t)
	if err != nil {
		h.log.Error("render transcript", "error", err)
		return
	}
	h.publish(EventTranscriptReplace, ReplaceEvent{HTML: html}, func(s *Snapshot) {
		s.Transcript = append([]string(nil), html...)
	})
}

func (h *Hub) AppendBubble(b render.Bubble) {
	html, err := h.frags.Bubble(b)
	if err != nil {
		h.log.Error("render bubble", "message_id", b.MessageID, "error", err)
		return
	}
	h.publish(EventTranscriptAppend, AppendEvent{MessageID: b.MessageID, HTML: html}, func(s *Snapshot) {
		s.Transcript = append(s.Transcript, html)
	})
}

func (h *Hub) SetBadge(b render.Badge) {
	h.publish(EventBadge, b, func(s *Snapshot) { s.Badge = b })
}

func (h *Hub) SetInput(text string) {
	h.publish(EventInput, map[string]string{"text": text}, func(s *Snapshot) { s.Input = text })
}

func (h *Hub) SetSendEnabled(enabled bool) {
	h.publish(EventSendEnabled, map[string]bool{"enabled": enabled}, func(s *Snapshot) { s.SendEnabled = enabled })
}

func (h *Hub) ClearFileInput() {
	h.publish(EventFileClear, struct{}{}, nil)
}

func (h *Hub) Alert(message string) {
	h.publish(EventAlert, map[string]string{"message": message}, nil)
}

// Play asks connected browsers to play the notification sound.
func (h *Hub) Play(context.Context) error {
	h.publish(EventChime, struct{}{}, nil)
	return nil
}
