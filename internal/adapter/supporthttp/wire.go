package supporthttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/Strob0t/supportchat/internal/domain/support"
	"github.com/Strob0t/supportchat/internal/port/supportapi"
)

type wireConfig struct {
	Enabled          bool    `json:"enabled"`
	Position         string  `json:"position"`
	PrimaryColor     *string `json:"primary_color"`
	ShowOnlineStatus *bool   `json:"show_online_status"`
	WelcomeMessage   string  `json:"welcome_message"`
	OfflineMessage   string  `json:"offline_message"`
	AgentsOnline     int     `json:"agents_online"`
	MaxFileSize      int64   `json:"max_file_size"`
}

func (w wireConfig) toDomain() support.WidgetConfig {
	cfg := support.WidgetConfig{
		Enabled:          w.Enabled,
		Position:         support.ParsePosition(w.Position),
		WelcomeMessage:   w.WelcomeMessage,
		OfflineMessage:   w.OfflineMessage,
		ShowOnlineStatus: true,
		AgentsOnline:     w.AgentsOnline,
		MaxFileSize:      w.MaxFileSize,
	}
	if w.PrimaryColor != nil {
		cfg.PrimaryColor = *w.PrimaryColor
	}
	if w.ShowOnlineStatus != nil {
		cfg.ShowOnlineStatus = *w.ShowOnlineStatus
	}
	return cfg
}

type wireAgent struct {
	Name     *string `json:"name"`
	NameBN   *string `json:"name_bn"`
	Avatar   *string `json:"avatar"`
	IsOnline bool    `json:"is_online"`
}

type wireConversation struct {
	ID     string     `json:"conversation_id"`
	Status string     `json:"status"`
	Agent  *wireAgent `json:"agent"`
}

// The endpoint always sends an agent object; an unassigned conversation
// has a null name.
func (w wireConversation) toDomain() *support.Conversation {
	conv := &support.Conversation{
		ID:     w.ID,
		Status: support.ConversationStatus(w.Status),
	}
	if w.Agent != nil && deref(w.Agent.Name) != "" {
		conv.Agent = &support.Agent{
			Name:          deref(w.Agent.Name),
			LocalizedName: deref(w.Agent.NameBN),
			AvatarURL:     deref(w.Agent.Avatar),
			IsOnline:      w.Agent.IsOnline,
		}
	}
	return conv
}

type wireMessage struct {
	ID             int64     `json:"id"`
	SenderName     string    `json:"sender_name"`
	SenderAvatar   *string   `json:"sender_avatar"`
	IsAgent        bool      `json:"is_agent"`
	MessageType    string    `json:"message_type"`
	Content        string    `json:"content"`
	Attachment     *string   `json:"attachment"`
	AttachmentName *string   `json:"attachment_name"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      timestamp `json:"created_at"`
}

func (w wireMessage) toDomain() support.Message {
	kind := support.MessageKind(w.MessageType)
	if kind == "" {
		kind = support.KindText
	}
	m := support.Message{
		ID:           w.ID,
		IsAgent:      w.IsAgent,
		SenderName:   w.SenderName,
		SenderAvatar: deref(w.SenderAvatar),
		Kind:         kind,
		Content:      w.Content,
		IsRead:       w.IsRead,
		CreatedAt:    time.Time(w.CreatedAt),
	}
	if u := deref(w.Attachment); u != "" {
		att := &support.Attachment{URL: u, Name: deref(w.AttachmentName), Kind: support.KindFile}
		if kind == support.KindImage {
			att.Kind = support.KindImage
		}
		if att.Name == "" {
			att.Name = filepath.Base(u)
		}
		m.Attachment = att
	}
	return m
}

// timestamp accepts Python isoformat output with or without an offset.
type timestamp time.Time

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
}

func (t *timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		if string(b) == "null" {
			*t = timestamp{}
			return nil
		}
		return err
	}
	if s == "" {
		*t = timestamp{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			*t = timestamp(v)
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func encodeUpload(up supportapi.Upload) (body []byte, contentType string, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	ct := up.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(strings.ToLower(filepath.Ext(up.Name)))
	}
	if ct == "" {
		ct = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(up.Name)))
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if up.Body != nil {
		if _, err := io.Copy(part, up.Body); err != nil {
			return nil, "", fmt.Errorf("copy file: %w", err)
		}
	}
	if err := mw.WriteField("content", up.Caption); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// DetectContentType sniffs the first bytes of a file when its extension is
// not registered.
func DetectContentType(name string, head []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return http.DetectContentType(head)
}
