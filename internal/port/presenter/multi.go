package presenter

import (
	"context"
	"errors"

	"github.com/Strob0t/supportchat/internal/domain/support"
	"github.com/Strob0t/supportchat/internal/render"
)

// Multi fans every call out to all presenters in order.
func Multi(ps ...Presenter) Presenter {
	return multi(ps)
}

type multi []Presenter

func (m multi) Mount(cfg support.WidgetConfig) {
	for _, p := range m {
		p.Mount(cfg)
	}
}

func (m multi) SetOpen(open bool) {
	for _, p := range m {
		p.SetOpen(open)
	}
}

func (m multi) ShowAgent(h render.AgentHeader) {
	for _, p := range m {
		p.ShowAgent(h)
	}
}

func (m multi) ReplaceTranscript(t render.Transcript) {
	for _, p := range m {
		p.ReplaceTranscript(t)
	}
}

func (m multi) AppendBubble(b render.Bubble) {
	for _, p := range m {
		p.AppendBubble(b)
	}
}

func (m multi) SetBadge(b render.Badge) {
	for _, p := range m {
		p.SetBadge(b)
	}
}

func (m multi) SetInput(text string) {
	for _, p := range m {
		p.SetInput(text)
	}
}

func (m multi) SetSendEnabled(enabled bool) {
	for _, p := range m {
		p.SetSendEnabled(enabled)
	}
}

func (m multi) ClearFileInput() {
	for _, p := range m {
		p.ClearFileInput()
	}
}

func (m multi) Alert(message string) {
	for _, p := range m {
		p.Alert(message)
	}
}

// Chimes plays every chime and joins their errors.
func Chimes(cs ...Chime) Chime {
	return ChimeFunc(func(ctx context.Context) error {
		var errs []error
		for _, c := range cs {
			if err := c.Play(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
