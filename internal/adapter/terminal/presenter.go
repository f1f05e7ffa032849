// Package terminal draws the chat widget as lines of styled text.
package terminal

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/Strob0t/supportchat/internal/domain/support"
	"github.com/Strob0t/supportchat/internal/port/presenter"
	"github.com/Strob0t/supportchat/internal/render"
)

const defaultAccent = "#2563EB"

type styles struct {
	header lipgloss.Style
	agent  lipgloss.Style
	user   lipgloss.Style
	system lipgloss.Style
	dim    lipgloss.Style
	alert  lipgloss.Style
	badge  lipgloss.Style
}

// Presenter writes widget renders to w. It implements presenter.Presenter.
type Presenter struct {
	mu       sync.Mutex
	w        io.Writer
	renderer *lipgloss.Renderer
	color    bool
	st       styles

	open        bool
	sendEnabled bool
}

// Option configures a Presenter.
type Option func(*Presenter)

// WithColor toggles ANSI styling. Styling is also dropped when w is not a
// terminal.
func WithColor(on bool) Option {
	return func(p *Presenter) { p.color = on }
}

var _ presenter.Presenter = (*Presenter)(nil)

// New creates a presenter writing to w.
func New(w io.Writer, opts ...Option) *Presenter {
	p := &Presenter{w: w, renderer: lipgloss.NewRenderer(w), color: true, sendEnabled: true}
	for _, opt := range opts {
		opt(p)
	}
	p.st = p.buildStyles(defaultAccent)
	return p
}

func (p *Presenter) buildStyles(accent string) styles {
	base := p.renderer.NewStyle()
	st := styles{
		header: base.Bold(true),
		agent:  base.Bold(true),
		user:   base.Bold(true),
		system: base.Italic(true),
		dim:    base,
		alert:  base.Bold(true),
		badge:  base.Bold(true),
	}
	if !p.color {
		return st
	}
	st.header = st.header.Foreground(lipgloss.Color(accent))
	st.agent = st.agent.Foreground(lipgloss.Color(accent))
	st.user = st.user.Foreground(lipgloss.Color("#16A34A"))
	st.system = st.system.Foreground(lipgloss.Color("#888888"))
	st.dim = st.dim.Foreground(lipgloss.Color("#AFAFAF"))
	st.alert = st.alert.Foreground(lipgloss.Color("196"))
	st.badge = st.badge.Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("196"))
	return st
}

func (p *Presenter) println(s string) {
	_, _ = fmt.Fprintln(p.w, s)
}

func (p *Presenter) Mount(cfg support.WidgetConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cfg.PrimaryColor != "" {
		p.st = p.buildStyles(cfg.PrimaryColor)
	}
	p.println(p.st.header.Render("── "+render.DefaultAgentName+" ──") + " " +
		p.st.dim.Render("type /open to start chatting"))
}

func (p *Presenter) SetOpen(open bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if open == p.open {
		return
	}
	p.open = open
	if open {
		p.println(p.st.dim.Render("[chat opened]"))
	} else {
		p.println(p.st.dim.Render("[chat minimized]"))
	}
}

func (p *Presenter) ShowAgent(h render.AgentHeader) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := p.st.header.Render(h.Name)
	if h.ShowStatus {
		line += p.st.dim.Render(" · " + h.Status)
	}
	p.println(line)
}

func (p *Presenter) ReplaceTranscript(t render.Transcript) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.println(p.st.dim.Render(strings.Repeat("─", 40)))
	if t.Notice != nil {
		p.println(p.st.system.Render(t.Notice.Plain()))
		if t.Notice.LinkURL != "" {
			p.println(p.st.dim.Render("  " + t.Notice.LinkURL))
		}
		return
	}
	for _, b := range t.Bubbles {
		p.writeBubble(b)
	}
}

func (p *Presenter) AppendBubble(b render.Bubble) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeBubble(b)
}

func (p *Presenter) writeBubble(b render.Bubble) {
	if b.System {
		p.println(p.st.system.Render(b.Content))
		return
	}
	name := p.st.user
	if b.Side == render.SideAgent {
		name = p.st.agent
	}
	sender := b.Sender
	if sender == "" {
		sender = "?"
	}
	var sb strings.Builder
	if b.Time != "" {
		sb.WriteString(p.st.dim.Render("[" + b.Time + "]"))
		sb.WriteByte(' ')
	}
	sb.WriteString(name.Render(sender + ":"))
	sb.WriteByte(' ')
	sb.WriteString(b.Content)
	p.println(sb.String())

	if a := b.Attachment; a != nil {
		kind := "file"
		if a.Inline {
			kind = "image"
		}
		p.println(p.st.dim.Render(fmt.Sprintf("  %s: %s <%s>", kind, a.Name, a.URL)))
	}
}

func (p *Presenter) SetBadge(b render.Badge) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !b.Visible {
		return
	}
	p.println(p.st.badge.Render(" " + b.Text + " unread "))
}

func (p *Presenter) SetInput(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if text == "" {
		return
	}
	p.println(p.st.dim.Render("draft: " + text))
}

func (p *Presenter) SetSendEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendEnabled = enabled
}

// SendEnabled reports the state of the send control.
func (p *Presenter) SendEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sendEnabled
}

func (p *Presenter) ClearFileInput() {}

func (p *Presenter) Alert(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.println(p.st.alert.Render("! " + message))
}

// Bell rings the terminal bell.
type Bell struct {
	W io.Writer
}

// Play writes BEL.
func (b Bell) Play(context.Context) error {
	_, err := io.WriteString(b.W, "\a")
	return err
}
