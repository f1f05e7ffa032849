package supporttest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/supportchat/internal/domain/support"
)

// Session and CSRF values the fake server accepts.
const (
	SessionID = "test-session"
	CSRFToken = "test-csrf"
)

// LoginPath is where requests without a session are redirected.
const LoginPath = "/accounts/login/"

// Message is a transcript entry as the server stores it.
type Message struct {
	ID             int64
	SenderName     string
	IsAgent        bool
	Type           string
	Content        string
	Attachment     string
	AttachmentName string
	CreatedAt      time.Time
}

// Server is an in-memory support API speaking the /support/api wire format.
type Server struct {
	URL string

	mu             sync.Mutex
	cfg            support.WidgetConfig
	conversationID string
	agent          *support.Agent
	messages       []Message
	nextID         int64
	fail           map[string]int
	calls          map[string]int
}

// NewServer starts a server that is closed when t finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		cfg:            support.WidgetConfig{Enabled: true, Position: support.PositionRight, WelcomeMessage: "Welcome to the bookstore!", ShowOnlineStatus: true, MaxFileSize: support.DefaultMaxFileSize},
		conversationID: "CONV-1",
		nextID:         1,
		fail:           make(map[string]int),
		calls:          make(map[string]int),
	}
	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	s.URL = srv.URL
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get(LoginPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, "<!DOCTYPE html><html><body><form>Sign in</form></body></html>")
	})
	r.Route("/support/api", func(r chi.Router) {
		r.Use(s.count)
		r.Get("/config/", s.handleConfig)
		r.With(s.requireSession).Get("/conversation/create/", s.handleCreate)
		r.Route("/conversation/{id}", func(r chi.Router) {
			r.Use(s.requireSession, s.requireConversation)
			r.Get("/messages/", s.handleMessages)
			r.With(s.requireCSRF).Post("/send/", s.handleSend)
			r.With(s.requireCSRF).Post("/upload/", s.handleUpload)
		})
	})
	return r
}

// SetConfig replaces the widget configuration.
func (s *Server) SetConfig(cfg support.WidgetConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// SetAgent assigns an agent to the conversation.
func (s *Server) SetAgent(a *support.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agent = a
}

// FailNext makes the next n requests to an endpoint fail with 500. suffix
// is one of "/config/", "/create/", "/messages/", "/send/" or "/upload/".
func (s *Server) FailNext(suffix string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[suffix] = n
}

// Calls returns how many requests hit the endpoint named by suffix.
func (s *Server) Calls(suffix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[suffix]
}

// AddMessage stores a message and returns its id.
func (s *Server) AddMessage(m Message) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(m)
}

// AgentSays stores a text message from the agent.
func (s *Server) AgentSays(content string) int64 {
	return s.AddMessage(Message{SenderName: "Support Agent", IsAgent: true, Type: "text", Content: content})
}

// Messages returns a copy of the stored transcript.
func (s *Server) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

func (s *Server) addLocked(m Message) int64 {
	m.ID = s.nextID
	s.nextID++
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Type == "" {
		m.Type = "text"
	}
	s.messages = append(s.messages, m)
	return m.ID
}

var trackedSuffixes = []string{"/config/", "/create/", "/messages/", "/send/", "/upload/"}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		var fail bool
		for _, suffix := range trackedSuffixes {
			if !strings.HasSuffix(r.URL.Path, suffix) {
				continue
			}
			s.calls[suffix]++
			if n := s.fail[suffix]; n > 0 {
				s.fail[suffix] = n - 1
				fail = true
			}
		}
		s.mu.Unlock()

		if fail {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("sessionid")
		if err != nil || ck.Value != SessionID {
			http.Redirect(w, r, LoginPath+"?next="+url.QueryEscape(r.URL.Path), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireConversation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		ok := chi.URLParam(r, "id") == s.conversationID
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("csrftoken")
		if err != nil || ck.Value != CSRFToken || r.Header.Get("X-CSRFToken") != ck.Value {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "CSRF verification failed"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	pos := "bottom-right"
	if cfg.Position == support.PositionLeft {
		pos = "bottom-left"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":            cfg.Enabled,
		"position":           pos,
		"primary_color":      nullable(cfg.PrimaryColor),
		"show_online_status": cfg.ShowOnlineStatus,
		"welcome_message":    cfg.WelcomeMessage,
		"offline_message":    cfg.OfflineMessage,
		"agents_online":      cfg.AgentsOnline,
		"max_file_size":      cfg.MaxFileSize,
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent := map[string]any{"name": nil, "name_bn": nil, "avatar": nil, "is_online": false}
	if s.agent != nil {
		agent = map[string]any{
			"name":      s.agent.Name,
			"name_bn":   nullable(s.agent.LocalizedName),
			"avatar":    nullable(s.agent.AvatarURL),
			"is_online": s.agent.IsOnline,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": s.conversationID,
		"status":          "open",
		"agent":           agent,
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.messages))
	for _, m := range s.messages {
		if m.ID <= after {
			continue
		}
		out = append(out, map[string]any{
			"id":              m.ID,
			"sender_name":     m.SenderName,
			"sender_avatar":   nil,
			"is_agent":        m.IsAgent,
			"message_type":    m.Type,
			"content":         m.Content,
			"attachment":      nullable(m.Attachment),
			"attachment_name": nullable(m.AttachmentName),
			"is_read":         false,
			"created_at":      m.CreatedAt.Format("2006-01-02T15:04:05.000000-07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Message content is required"})
		return
	}

	s.mu.Lock()
	id := s.addLocked(Message{SenderName: "Visitor", Content: body.Content})
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": map[string]any{"id": id, "content": body.Content}})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file provided"})
		return
	}
	defer f.Close()
	size, _ := io.Copy(io.Discard, f)

	s.mu.Lock()
	defer s.mu.Unlock()
	if size > s.cfg.FileSizeLimit() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "File size exceeds limit"})
		return
	}
	kind := "file"
	if strings.HasPrefix(hdr.Header.Get("Content-Type"), "image/") {
		kind = "image"
	}
	content := r.FormValue("content")
	if content == "" {
		content = "Sent an attachment"
	}
	id := s.addLocked(Message{
		SenderName:     "Visitor",
		Type:           kind,
		Content:        content,
		Attachment:     "/media/support/attachments/" + hdr.Filename,
		AttachmentName: hdr.Filename,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": map[string]any{"id": id, "message_type": kind}})
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
