package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Strob0t/supportchat/internal/adapter/supporthttp"
	"github.com/Strob0t/supportchat/internal/adapter/terminal"
	"github.com/Strob0t/supportchat/internal/adapter/ws"
	"github.com/Strob0t/supportchat/internal/config"
	"github.com/Strob0t/supportchat/internal/render"
	"github.com/Strob0t/supportchat/internal/supporttest"
	"github.com/Strob0t/supportchat/internal/widget"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		cmd  string
		arg  string
	}{
		{"hello there", "", ""},
		{"/open", "open", ""},
		{"  /Upload  ~/receipt.pdf ", "upload", "~/receipt.pdf"},
		{"//etc/hosts is a path", "", ""},
		{"/", "", ""},
	}
	for _, tt := range tests {
		cmd, arg := parseCommand(tt.line)
		if cmd != tt.cmd || arg != tt.arg {
			t.Errorf("parseCommand(%q) = (%q, %q), want (%q, %q)", tt.line, cmd, arg, tt.cmd, tt.arg)
		}
	}
}

func TestMessageText(t *testing.T) {
	if got := messageText("//etc/hosts"); got != "/etc/hosts" {
		t.Errorf("messageText = %q", got)
	}
	if got := messageText("  hi // there"); got != "  hi // there" {
		t.Errorf("messageText = %q", got)
	}
}

func newSession(t *testing.T, srv *supporttest.Server) (*session, *bytes.Buffer) {
	t.Helper()
	cfg := config.Defaults().Support
	cfg.BaseURL = srv.URL
	cfg.SessionCookie = supporttest.SessionID
	cfg.CSRFToken = supporttest.CSRFToken
	client, err := supporthttp.NewClient(cfg, supporthttp.WithTransport(http.DefaultTransport))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	var out bytes.Buffer
	ctl := widget.New(client, terminal.New(&out, terminal.WithColor(false)))
	t.Cleanup(ctl.Shutdown)
	if err := ctl.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return &session{ctl: ctl, out: &out}, &out
}

func TestSessionFlow(t *testing.T) {
	srv := supporttest.NewServer(t)
	s, out := newSession(t, srv)
	ctx := context.Background()

	s.handle(ctx, "hello")
	if !strings.Contains(out.String(), "Open the chat first with /open.") {
		t.Fatalf("expected hint, got:\n%s", out)
	}

	s.handle(ctx, "/open")
	if !strings.Contains(out.String(), "Welcome to the bookstore!") {
		t.Fatalf("expected welcome, got:\n%s", out)
	}

	s.handle(ctx, "Is the new edition in stock?")
	if !strings.Contains(out.String(), "Visitor: Is the new edition in stock?") {
		t.Fatalf("expected sent message in transcript, got:\n%s", out)
	}

	s.handle(ctx, "/status")
	if !strings.Contains(out.String(), "widget=open conversation=CONV-1 (polling)") {
		t.Fatalf("unexpected status:\n%s", out)
	}

	if quit := s.handle(ctx, "/quit"); !quit {
		t.Fatal("expected /quit to end the session")
	}
}

func TestSessionUpload(t *testing.T) {
	srv := supporttest.NewServer(t)
	s, out := newSession(t, srv)
	ctx := context.Background()
	s.handle(ctx, "/open")

	s.handle(ctx, "/upload")
	if !strings.Contains(out.String(), "usage: /upload <path>") {
		t.Fatalf("expected usage, got:\n%s", out)
	}

	path := filepath.Join(t.TempDir(), "receipt.txt")
	if err := os.WriteFile(path, []byte("order #1234"), 0o600); err != nil {
		t.Fatal(err)
	}
	s.handle(ctx, "/upload "+path)
	if !strings.Contains(out.String(), "Sent receipt.txt") {
		t.Fatalf("expected upload in transcript, got:\n%s", out)
	}
	msgs := srv.Messages()
	if len(msgs) != 1 || msgs[0].AttachmentName != "receipt.txt" || msgs[0].Type != "file" {
		t.Fatalf("unexpected server messages: %+v", msgs)
	}
}

func TestSessionRun(t *testing.T) {
	srv := supporttest.NewServer(t)
	s, out := newSession(t, srv)

	in := strings.NewReader("/open\nfirst\n/quit\nnever sent\n")
	if err := s.run(context.Background(), in); err != nil {
		t.Fatalf("run: %v", err)
	}
	msgs := srv.Messages()
	if len(msgs) != 1 || msgs[0].Content != "first" {
		t.Fatalf("unexpected server messages: %+v", msgs)
	}
	if strings.Contains(out.String(), "never sent") {
		t.Fatal("input after /quit must be ignored")
	}
}

func TestMirrorRoutes(t *testing.T) {
	hub := ws.NewHub(render.NewFragments(nil), nil)
	srv := httptest.NewServer(mirrorRoutes("supportchat", hub, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}

func TestConfigCommandRedacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "supportchat.yaml")
	yaml := "support:\n  base_url: https://books.example.com\n  session_cookie: s3cret\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "--config", path, "--env-file", ""})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if strings.Contains(out.String(), "s3cret") {
		t.Fatalf("session cookie leaked:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "https://books.example.com") {
		t.Fatalf("expected base url in output:\n%s", out.String())
	}
}

func TestSessionEmoji(t *testing.T) {
	srv := supporttest.NewServer(t)
	s, out := newSession(t, srv)
	ctx := context.Background()
	s.handle(ctx, "/open")

	s.handle(ctx, "/emoji")
	if !strings.Contains(out.String(), "1 😊") || !strings.Contains(out.String(), "10 🙌") {
		t.Fatalf("expected emoji list, got:\n%s", out)
	}

	s.handle(ctx, "/emoji 11")
	if !strings.Contains(out.String(), "usage: /emoji") {
		t.Fatalf("expected usage, got:\n%s", out)
	}

	s.handle(ctx, "/emoji 4 Thanks for the help")
	s.handle(ctx, "/emoji 8")
	msgs := srv.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %+v", msgs)
	}
	if msgs[0].Content != "Thanks for the help 👍" || msgs[1].Content != "🎉" {
		t.Fatalf("unexpected contents: %q, %q", msgs[0].Content, msgs[1].Content)
	}
}
