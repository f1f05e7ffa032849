// Package presenter defines the render target the widget draws into.
package presenter

import (
	"context"

	"github.com/Strob0t/supportchat/internal/domain/support"
	"github.com/Strob0t/supportchat/internal/render"
)

// Presenter receives view models from the widget controller. Calls are
// serialized by the controller; implementations need not lock against it.
type Presenter interface {
	// Mount creates the widget chrome. Never called for a disabled widget.
	Mount(cfg support.WidgetConfig)
	SetOpen(open bool)
	ShowAgent(h render.AgentHeader)
	// ReplaceTranscript clears the transcript and draws t.
	ReplaceTranscript(t render.Transcript)
	// AppendBubble adds a single bubble at the end of the transcript.
	AppendBubble(b render.Bubble)
	SetBadge(b render.Badge)
	SetInput(text string)
	SetSendEnabled(enabled bool)
	ClearFileInput()
	// Alert shows a blocking, user-visible error.
	Alert(message string)
}

// Chime plays the new-message notification sound.
type Chime interface {
	Play(ctx context.Context) error
}

// ChimeFunc adapts a function to the Chime interface.
type ChimeFunc func(ctx context.Context) error

// Play calls f(ctx).
func (f ChimeFunc) Play(ctx context.Context) error { return f(ctx) }

// Silent is a Chime that does nothing.
var Silent Chime = ChimeFunc(func(context.Context) error { return nil })
