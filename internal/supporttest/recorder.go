// Package supporttest provides test doubles for the support chat: a
// recording presenter and an in-memory support API server.
package supporttest

import (
	"context"
	"sync"

	"github.com/Strob0t/supportchat/internal/domain/support"
	"github.com/Strob0t/supportchat/internal/port/presenter"
	"github.com/Strob0t/supportchat/internal/render"
)

// Event is one recorded presenter call.
type Event struct {
	Op    string
	Value any
}

// Recorder is a presenter.Presenter that keeps every call and the
// resulting screen state.
type Recorder struct {
	mu          sync.Mutex
	events      []Event
	mounted     *support.WidgetConfig
	open        bool
	agent       *render.AgentHeader
	notice      *render.Notice
	bubbles     []render.Bubble
	badge       render.Badge
	input       string
	sendEnabled bool
	fileClears  int
	alerts      []string
	chimes      int
}

var _ presenter.Presenter = (*Recorder)(nil)

// NewRecorder creates an empty recorder with the send control enabled.
func NewRecorder() *Recorder {
	return &Recorder{sendEnabled: true}
}

func (r *Recorder) record(op string, v any) {
	r.events = append(r.events, Event{Op: op, Value: v})
}

func (r *Recorder) Mount(cfg support.WidgetConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("mount", cfg)
	r.mounted = &cfg
}

func (r *Recorder) SetOpen(open bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("open", open)
	r.open = open
}

func (r *Recorder) ShowAgent(h render.AgentHeader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("agent", h)
	r.agent = &h
}

func (r *Recorder) ReplaceTranscript(t render.Transcript) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("replace", t)
	r.notice = t.Notice
	r.bubbles = append([]render.Bubble(nil), t.Bubbles...)
}

func (r *Recorder) AppendBubble(b render.Bubble) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("append", b)
	r.notice = nil
	r.bubbles = append(r.bubbles, b)
}

func (r *Recorder) SetBadge(b render.Badge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("badge", b)
	r.badge = b
}

func (r *Recorder) SetInput(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("input", text)
	r.input = text
}

func (r *Recorder) SetSendEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("send-enabled", enabled)
	r.sendEnabled = enabled
}

func (r *Recorder) ClearFileInput() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("clear-file", nil)
	r.fileClears++
}

func (r *Recorder) Alert(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("alert", message)
	r.alerts = append(r.alerts, message)
}

// Play implements presenter.Chime.
func (r *Recorder) Play(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("chime", nil)
	r.chimes++
	return nil
}

// Events returns a copy of all recorded calls.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many times op was recorded.
func (r *Recorder) Count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Op == op {
			n++
		}
	}
	return n
}

// Mounted returns the config passed to Mount, or nil.
func (r *Recorder) Mounted() *support.WidgetConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mounted
}

// IsOpen reports the last SetOpen value.
func (r *Recorder) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// Agent returns the last agent header, or nil.
func (r *Recorder) Agent() *render.AgentHeader {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agent
}

// Notice returns the notice currently shown in the transcript, or nil.
func (r *Recorder) Notice() *render.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notice
}

// Bubbles returns the bubbles currently in the transcript.
func (r *Recorder) Bubbles() []render.Bubble {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]render.Bubble(nil), r.bubbles...)
}

// Badge returns the last badge.
func (r *Recorder) Badge() render.Badge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.badge
}

// Input returns the text input content.
func (r *Recorder) Input() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.input
}

// SendEnabled reports whether the send control is enabled.
func (r *Recorder) SendEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sendEnabled
}

// FileClears returns how many times the file input was cleared.
func (r *Recorder) FileClears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fileClears
}

// Alerts returns all alerts shown so far.
func (r *Recorder) Alerts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.alerts...)
}

// Chimes returns how many times the chime played.
func (r *Recorder) Chimes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chimes
}
