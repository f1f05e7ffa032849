// Package supportapi defines the port to the remote support service: widget
// configuration plus the conversation and message store.
package supportapi

import (
	"context"
	"errors"
	"io"

	"github.com/Strob0t/supportchat/internal/domain/support"
)

// ErrUnauthenticated is returned by Conversation when the server answers
// with a non-2xx status. The widget treats it as "not logged in".
var ErrUnauthenticated = errors.New("supportapi: not authenticated")

// Upload is a file sent as a message attachment.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
	Caption     string
}

// MessageQuery narrows a message fetch. The zero value fetches everything.
type MessageQuery struct {
	// After asks the server for messages with an id greater than this one.
	After int64
}

// Service is the port interface the widget controller depends on.
type Service interface {
	// Config returns the widget configuration.
	Config(ctx context.Context) (support.WidgetConfig, error)

	// Conversation returns the visitor's active conversation, creating one
	// if needed. Returns ErrUnauthenticated on any non-2xx response.
	Conversation(ctx context.Context) (*support.Conversation, error)

	// Messages returns the conversation transcript ordered by id.
	Messages(ctx context.Context, conversationID string, q MessageQuery) ([]support.Message, error)

	// Send posts a text message.
	Send(ctx context.Context, conversationID, content string) error

	// UploadFile posts a multipart attachment.
	UploadFile(ctx context.Context, conversationID string, up Upload) error
}
