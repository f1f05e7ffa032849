package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	telemetry "github.com/Strob0t/supportchat/internal/adapter/otel"
	"github.com/Strob0t/supportchat/internal/adapter/ristretto"
	"github.com/Strob0t/supportchat/internal/adapter/supporthttp"
	"github.com/Strob0t/supportchat/internal/adapter/terminal"
	"github.com/Strob0t/supportchat/internal/adapter/ws"
	"github.com/Strob0t/supportchat/internal/config"
	"github.com/Strob0t/supportchat/internal/domain/support"
	"github.com/Strob0t/supportchat/internal/logger"
	"github.com/Strob0t/supportchat/internal/port/presenter"
	"github.com/Strob0t/supportchat/internal/port/supportapi"
	"github.com/Strob0t/supportchat/internal/render"
	"github.com/Strob0t/supportchat/internal/resilience"
	"github.com/Strob0t/supportchat/internal/widget"
)

const helpText = `Commands:
  /open            open the chat window
  /close           minimize the chat window
  /toggle          open or minimize
  /upload <path>   send a file
  /emoji [n text]  list emojis, or send text ending with emoji n
  /status          show widget state
  /help            show this help
  /quit            leave
Any other line is sent as a message.`

func newChatCmd(opts *rootOptions) *cobra.Command {
	var (
		mirror   string
		autoOpen bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive support chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFrom(opts.configPath)
			if err != nil {
				return err
			}
			if mirror != "" {
				cfg.Mirror.Addr = mirror
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), autoOpen)
		},
	}
	cmd.Flags().StringVar(&mirror, "mirror", "", "serve a browser mirror of the widget on this address (e.g. :8090)")
	cmd.Flags().BoolVar(&autoOpen, "open", false, "open the chat window on start")
	return cmd
}

func runChat(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, autoOpen bool) error {
	log, closer, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = closer.Close() }()
	slog.SetDefault(log)

	if f, ok := in.(*os.File); ok && cfg.Support.SessionCookie == "" && isTerminal(f) {
		session, err := promptSecret(out, int(f.Fd()), "Session cookie (blank to continue as guest): ")
		if err != nil {
			return err
		}
		cfg.Support.SessionCookie = session
	}

	shutdownOtel, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			log.Warn("telemetry shutdown", "error", err)
		}
	}()
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	clientOpts := []supporthttp.Option{supporthttp.WithLogger(log)}
	if cfg.Breaker.Enabled {
		b := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
		b.OnStateChange(func(from, to resilience.State) {
			log.Warn("support api circuit", "from", from.String(), "to", to.String())
		})
		clientOpts = append(clientOpts, supporthttp.WithBreaker(b))
	}
	client, err := supporthttp.NewClient(cfg.Support, clientOpts...)
	if err != nil {
		return fmt.Errorf("support client: %w", err)
	}

	view := terminal.New(out, terminal.WithColor(cfg.UI.Color && isTerminal(out)))
	var (
		presenters = []presenter.Presenter{view}
		chimes     []presenter.Chime
		cache      *ristretto.Cache
	)
	if cfg.UI.Sound {
		chimes = append(chimes, terminal.Bell{W: out})
	}

	if cfg.Mirror.Addr != "" {
		if cfg.Cache.MaxSizeMB > 0 {
			cache, err = ristretto.New(cfg.Cache.MaxSizeMB << 20)
			if err != nil {
				return fmt.Errorf("fragment cache: %w", err)
			}
			defer cache.Close()
		}
		frags := render.NewFragments(nil)
		if cache != nil {
			frags = render.NewFragments(cache)
		}
		hub := ws.NewHub(frags, log)
		defer hub.Close()
		presenters = append(presenters, hub)
		chimes = append(chimes, hub)

		srv := newMirrorServer(cfg.Mirror.Addr, cfg.Logging.Service, hub, log)
		go func() {
			log.Info("starting mirror", "addr", cfg.Mirror.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("mirror failed", "error", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	ctl := widget.New(client, presenter.Multi(presenters...),
		widget.WithLogger(log),
		widget.WithChime(presenter.Chimes(chimes...)),
		widget.WithPollInterval(cfg.Poll.Interval),
		widget.WithIncrementalPoll(cfg.Poll.Incremental),
		widget.WithLanguage(cfg.Support.Language),
		widget.WithLoginURL(cfg.Support.LoginURL),
		widget.WithMetrics(metrics),
	)
	defer ctl.Shutdown()

	if err := ctl.Init(ctx); err != nil {
		return err
	}
	if ctl.State() == widget.StateDisabled {
		_, _ = fmt.Fprintln(out, "Support chat is currently unavailable.")
		return nil
	}

	s := &session{ctl: ctl, out: out, cache: cache}
	if autoOpen {
		s.handle(ctx, "/open")
	}
	return s.run(ctx, in)
}

// session reads commands and forwards them to the controller.
type session struct {
	ctl   *widget.Controller
	out   io.Writer
	cache *ristretto.Cache
}

func (s *session) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if s.handle(ctx, line) {
				return nil
			}
		}
	}
}

// handle runs one input line and reports whether the session should end.
// Failures the widget already showed to the user are not printed again.
func (s *session) handle(ctx context.Context, line string) (quit bool) {
	cmd, arg := parseCommand(line)
	var err error
	switch cmd {
	case "":
		err = s.ctl.Send(ctx, messageText(line))
	case "quit", "exit":
		return true
	case "help":
		s.println(helpText)
	case "open":
		err = s.ctl.Open(ctx)
	case "close":
		err = s.ctl.Close()
	case "toggle":
		err = s.ctl.Toggle(ctx)
	case "upload":
		err = s.upload(ctx, arg)
	case "emoji":
		err = s.emoji(ctx, arg)
	case "status":
		s.status()
	default:
		s.println("unknown command /" + cmd + ", try /help")
	}

	switch {
	case err == nil,
		errors.Is(err, support.ErrEmptyMessage),
		errors.Is(err, supportapi.ErrUnauthenticated):
	case errors.Is(err, support.ErrNoConversation):
		s.println("Open the chat first with /open.")
	case errors.Is(err, support.ErrDisabled):
		s.println("Support chat is currently unavailable.")
	case errors.Is(err, errUsage), errors.Is(err, errEmojiUsage), errors.Is(err, os.ErrNotExist):
		s.println(err.Error())
	default:
		slog.Debug("command failed", "command", cmd, "error", err)
	}
	return false
}

var (
	errUsage      = errors.New("usage: /upload <path>")
	errEmojiUsage = errors.New("usage: /emoji <1-10> [text]")
)

// emojis is the widget's preset picker.
var emojis = []string{"😊", "😂", "❤️", "👍", "🙏", "😢", "😍", "🎉", "👏", "🙌"}

func (s *session) emoji(ctx context.Context, arg string) error {
	if arg == "" {
		var sb strings.Builder
		for i, e := range emojis {
			fmt.Fprintf(&sb, "%d %s  ", i+1, e)
		}
		s.println(strings.TrimSpace(sb.String()))
		return nil
	}
	num, text, _ := strings.Cut(arg, " ")
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 || n > len(emojis) {
		return errEmojiUsage
	}
	text = strings.TrimSpace(text)
	if text != "" {
		text += " "
	}
	return s.ctl.Send(ctx, text+emojis[n-1])
}

func (s *session) upload(ctx context.Context, path string) error {
	if path == "" {
		return errUsage
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	name := filepath.Base(path)
	return s.ctl.Upload(ctx, widget.File{
		Name:        name,
		ContentType: supporthttp.DetectContentType(name, head[:n]),
		Size:        info.Size(),
		Body:        f,
	})
}

func (s *session) status() {
	conv := "none"
	if c := s.ctl.Conversation(); c != nil {
		conv = c.ID
	}
	cfg := s.ctl.Config()
	s.println(fmt.Sprintf("widget=%s conversation=%s (%s) unread=%d last_seen=%d max_upload=%s",
		s.ctl.State(), conv, s.ctl.ConversationState(), s.ctl.Unread(), s.ctl.LastSeenID(),
		humanize.IBytes(uint64(cfg.FileSizeLimit()))))
	if s.cache != nil {
		st := s.cache.Stats()
		s.println(fmt.Sprintf("fragment cache: %d hits, %d misses", st.Hits, st.Misses))
	}
}

func (s *session) println(line string) {
	_, _ = fmt.Fprintln(s.out, line)
}

// parseCommand splits "/cmd arg" lines. Plain text yields an empty cmd.
// A leading "//" escapes a message that starts with a slash.
func parseCommand(line string) (cmd, arg string) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "//") {
		return "", ""
	}
	cmd, arg, _ = strings.Cut(trimmed[1:], " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

// messageText drops the escaping slash of a "//" line.
func messageText(line string) string {
	if i := strings.Index(line, "//"); i >= 0 && strings.TrimSpace(line[:i]) == "" {
		return line[:i] + line[i+1:]
	}
	return line
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func promptSecret(out io.Writer, fd int, prompt string) (string, error) {
	_, _ = fmt.Fprint(out, prompt)
	b, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read session cookie: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
