// Package widget implements the support chat widget controller: it loads the
// widget configuration, lazily creates the visitor's conversation, polls for
// new messages while the widget is open and drives a presenter.
//
// Controller state is guarded by a mutex. Network calls never hold it, and
// presenter calls are made with it held so renders happen in completion
// order. Presenters must not call back into the controller.
package widget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	telemetry "github.com/Strob0t/supportchat/internal/adapter/otel"
	"github.com/Strob0t/supportchat/internal/domain/support"
	"github.com/Strob0t/supportchat/internal/logger"
	"github.com/Strob0t/supportchat/internal/port/presenter"
	"github.com/Strob0t/supportchat/internal/port/supportapi"
	"github.com/Strob0t/supportchat/internal/render"
)

// DefaultPollInterval is the delay between message polls while open.
const DefaultPollInterval = 3 * time.Second

// User-facing alert texts.
const (
	AlertSendFailed   = "Failed to send message. Please try again."
	AlertUploadFailed = "Failed to upload file. Please try again."
)

// ErrNotInitialized is returned by operations called before Init.
var ErrNotInitialized = errors.New("widget: not initialized")

// File is an attachment picked by the visitor.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithChime sets the new-message notification sound.
func WithChime(ch presenter.Chime) Option {
	return func(c *Controller) { c.chime = ch }
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.interval = d }
}

// WithTicker replaces the ticker factory used by the poll task.
func WithTicker(fn TickerFunc) Option {
	return func(c *Controller) { c.newTicker = fn }
}

// WithLanguage sets the page language used for agent names.
func WithLanguage(lang string) Option {
	return func(c *Controller) { c.renderOpts.Language = lang }
}

// WithLocation sets the time zone bubble timestamps are shown in.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) { c.renderOpts.Location = loc }
}

// WithLoginURL sets the link target of the login prompt.
func WithLoginURL(u string) Option {
	return func(c *Controller) { c.loginURL = u }
}

// WithMetrics records poll, send and upload metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithIncrementalPoll makes poll ticks ask the server only for messages
// after the last seen id.
func WithIncrementalPoll(on bool) Option {
	return func(c *Controller) { c.incremental = on }
}

// Controller owns all widget state for one visitor session.
type Controller struct {
	svc         supportapi.Service
	view        presenter.Presenter
	chime       presenter.Chime
	log         *slog.Logger
	metrics     *telemetry.Metrics
	interval    time.Duration
	newTicker   TickerFunc
	renderOpts  render.Options
	loginURL    string
	incremental bool

	// runCtx outlives Close so in-flight polls finish; Shutdown cancels it.
	runCtx context.Context
	cancel context.CancelFunc
	poller *poller
	opens  singleflight.Group

	mu         sync.Mutex
	state      State
	convState  ConversationState
	cfg        support.WidgetConfig
	conv       *support.Conversation
	lastSeenID int64
	unread     int
}

// New creates a controller. Call Init before any other operation.
func New(svc supportapi.Service, view presenter.Presenter, opts ...Option) *Controller {
	c := &Controller{
		svc:       svc,
		view:      view,
		chime:     presenter.Silent,
		log:       slog.Default(),
		metrics:   telemetry.NopMetrics(),
		interval:  DefaultPollInterval,
		newTicker: newStdTicker,
		cfg:       support.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.runCtx, c.cancel = context.WithCancel(context.Background())
	c.poller = newPoller(c.interval, c.newTicker, c.poll)
	return c
}

// Init fetches the widget configuration. Any fetch failure falls back to
// support.DefaultConfig, which leaves the widget disabled.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateUninitialized {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConfigLoading
	c.mu.Unlock()

	cfg, err := c.svc.Config(ctx)
	if err != nil {
		c.log.Warn("widget config unavailable, using defaults", "error", err)
		cfg = support.DefaultConfig()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	if !cfg.Enabled {
		c.state = StateDisabled
		c.log.Info("support chat disabled")
		return nil
	}
	c.state = StateClosed
	c.view.Mount(cfg)
	return nil
}

// Open shows the chat window, resets the unread counter and makes sure a
// conversation exists and is being polled.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkReadyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = StateOpen
	c.unread = 0
	c.view.SetOpen(true)
	c.view.SetBadge(render.UnreadBadge(0))
	c.mu.Unlock()

	_, err, _ := c.opens.Do("conversation", func() (any, error) {
		return nil, c.connect(ctx)
	})
	return err
}

// Close hides the chat window and stops the poll task. A poll already in
// flight is not cancelled and still updates state when it completes.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReadyLocked(); err != nil {
		return err
	}
	if c.state != StateOpen {
		return nil
	}
	c.state = StateClosed
	c.view.SetOpen(false)
	c.poller.Stop()
	if c.convState == ConversationPolling {
		c.convState = ConversationReady
	}
	return nil
}

// Toggle closes an open widget and opens a closed one.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	open := c.state == StateOpen
	c.mu.Unlock()
	if open {
		return c.Close()
	}
	return c.Open(ctx)
}

// Send posts text to the conversation and reloads the transcript. On
// failure the input is restored unchanged and an alert is shown.
func (c *Controller) Send(ctx context.Context, text string) error {
	content := strings.TrimSpace(text)

	c.mu.Lock()
	if err := c.checkReadyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if content == "" {
		c.mu.Unlock()
		return support.ErrEmptyMessage
	}
	conv := c.conv
	if conv == nil {
		c.mu.Unlock()
		return support.ErrNoConversation
	}
	c.view.SetInput("")
	c.view.SetSendEnabled(false)
	c.mu.Unlock()

	ctx = logger.WithConversationID(ctx, conv.ID)
	ctx, span := telemetry.StartSendSpan(ctx, conv.ID)
	defer span.End()

	err := c.svc.Send(ctx, conv.ID, content)
	c.metrics.RecordSend(ctx, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		logger.From(ctx, c.log).Warn("send message failed", "error", err)

		c.mu.Lock()
		c.view.SetInput(text)
		c.view.SetSendEnabled(true)
		c.view.Alert(AlertSendFailed)
		c.mu.Unlock()
		return fmt.Errorf("send message: %w", err)
	}

	c.reload(ctx, conv)
	return nil
}

// Upload sends f as an attachment. Files above the configured limit are
// rejected before any network call. The file input is cleared either way.
func (c *Controller) Upload(ctx context.Context, f File) error {
	c.mu.Lock()
	if err := c.checkReadyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	defer c.clearFileInput()

	conv := c.conv
	limit := c.cfg.FileSizeLimit()
	c.mu.Unlock()

	if conv == nil {
		return support.ErrNoConversation
	}

	ctx = logger.WithConversationID(ctx, conv.ID)
	log := logger.From(ctx, c.log).With("file", f.Name, "size", humanize.IBytes(uint64(max(f.Size, 0))))

	if f.Size > limit {
		c.metrics.UploadsRejected.Add(ctx, 1)
		log.Info("attachment rejected", "limit", humanize.IBytes(uint64(limit)))
		c.alert(FileTooLargeMessage(limit))
		return fmt.Errorf("upload %s: %w", f.Name, support.ErrFileTooLarge)
	}

	ctx, span := telemetry.StartUploadSpan(ctx, conv.ID, f.Name, f.Size)
	defer span.End()

	err := c.svc.UploadFile(ctx, conv.ID, supportapi.Upload{
		Name:        f.Name,
		ContentType: f.ContentType,
		Size:        f.Size,
		Body:        f.Body,
		Caption:     "Sent " + f.Name,
	})
	c.metrics.RecordUpload(ctx, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		log.Warn("upload failed", "error", err)
		c.alert(AlertUploadFailed)
		return fmt.Errorf("upload %s: %w", f.Name, err)
	}

	log.Info("attachment uploaded")
	c.reload(ctx, conv)
	return nil
}

// FileTooLargeMessage is the alert shown for an oversized attachment.
func FileTooLargeMessage(limit int64) string {
	mb := strconv.FormatFloat(float64(limit)/(1024*1024), 'f', -1, 64)
	return "File size must be less than " + mb + "MB"
}

// Shutdown stops polling, cancels in-flight polls and waits for the poll
// loop to exit.
func (c *Controller) Shutdown() {
	c.poller.Stop()
	c.cancel()
	c.poller.Wait()
}

// State returns the visibility state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConversationState returns the conversation lifecycle state.
func (c *Controller) ConversationState() ConversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.convState
}

// Unread returns the number of agent messages received while closed.
func (c *Controller) Unread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// LastSeenID returns the highest message id rendered so far.
func (c *Controller) LastSeenID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeenID
}

// Config returns the effective widget configuration.
func (c *Controller) Config() support.WidgetConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Conversation returns a copy of the current conversation, or nil.
func (c *Controller) Conversation() *support.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conv == nil {
		return nil
	}
	conv := *c.conv
	return &conv
}

// connect creates the conversation on first open and (re)starts polling.
func (c *Controller) connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.convState {
	case ConversationUnauthenticated:
		c.mu.Unlock()
		return supportapi.ErrUnauthenticated
	case ConversationReady, ConversationPolling:
		c.startPollingLocked()
		c.mu.Unlock()
		return nil
	}
	c.convState = ConversationCreating
	c.mu.Unlock()

	ctx, span := telemetry.StartOpenSpan(ctx)
	defer span.End()

	conv, err := c.svc.Conversation(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "conversation unavailable")

		c.mu.Lock()
		defer c.mu.Unlock()
		if errors.Is(err, supportapi.ErrUnauthenticated) {
			c.log.Info("visitor not logged in", "error", err)
			c.convState = ConversationUnauthenticated
			notice := render.LoginPrompt(c.loginURL)
			c.view.ReplaceTranscript(render.Transcript{Notice: &notice})
			return err
		}
		c.log.Warn("create conversation failed", "error", err)
		c.convState = ConversationNone
		notice := render.ConnectError()
		c.view.ReplaceTranscript(render.Transcript{Notice: &notice})
		return fmt.Errorf("open conversation: %w", err)
	}

	c.mu.Lock()
	c.conv = conv
	c.convState = ConversationReady
	c.view.ShowAgent(render.NewAgentHeader(conv.Agent, c.cfg, c.renderOpts.Language))
	c.mu.Unlock()

	ctx = logger.WithConversationID(ctx, conv.ID)
	logger.From(ctx, c.log).Info("conversation ready", "status", conv.Status)
	c.reload(ctx, conv)

	c.mu.Lock()
	c.startPollingLocked()
	c.mu.Unlock()
	return nil
}

// startPollingLocked starts the poll task if the widget is open.
func (c *Controller) startPollingLocked() {
	if c.conv == nil || c.state != StateOpen {
		return
	}
	c.poller.Start(c.runCtx)
	c.convState = ConversationPolling
}

// reload replaces the transcript with the full message list.
func (c *Controller) reload(ctx context.Context, conv *support.Conversation) {
	msgs, err := c.svc.Messages(ctx, conv.ID, supportapi.MessageQuery{})
	if err != nil {
		logger.From(ctx, c.log).Warn("load messages failed", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.ReplaceTranscript(render.NewTranscript(msgs, c.cfg, c.renderOpts))
	c.lastSeenID = support.MaxID(msgs, c.lastSeenID)
}

// poll is one poll tick.
func (c *Controller) poll(ctx context.Context) {
	c.mu.Lock()
	conv := c.conv
	last := c.lastSeenID
	c.mu.Unlock()
	if conv == nil {
		return
	}

	ctx = logger.WithConversationID(ctx, conv.ID)
	ctx, span := telemetry.StartPollSpan(ctx, conv.ID, last)
	defer span.End()

	q := supportapi.MessageQuery{}
	if c.incremental {
		q.After = last
	}

	start := time.Now()
	msgs, err := c.svc.Messages(ctx, conv.ID, q)
	if err != nil {
		c.metrics.RecordPoll(ctx, time.Since(start), 0, err)
		span.RecordError(err)
		logger.From(ctx, c.log).Warn("poll messages failed", "error", err)
		return
	}

	c.mu.Lock()
	// Filter against the current value: a reload may have advanced it
	// while the request was in flight.
	delta := support.After(msgs, c.lastSeenID)
	for i := range delta {
		c.view.AppendBubble(render.NewBubble(delta[i], c.renderOpts))
		if c.state != StateOpen && delta[i].IsAgent {
			c.unread++
		}
	}
	c.lastSeenID = support.MaxID(delta, c.lastSeenID)
	if len(delta) > 0 {
		c.view.SetBadge(render.UnreadBadge(c.unread))
	}
	c.mu.Unlock()

	c.metrics.RecordPoll(ctx, time.Since(start), len(delta), nil)
	if len(delta) == 0 {
		return
	}
	if err := c.chime.Play(ctx); err != nil {
		logger.From(ctx, c.log).Debug("notification sound failed", "error", err)
	}
}

func (c *Controller) checkReadyLocked() error {
	switch c.state {
	case StateDisabled:
		return support.ErrDisabled
	case StateUninitialized, StateConfigLoading:
		return ErrNotInitialized
	}
	return nil
}

func (c *Controller) alert(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.Alert(msg)
}

func (c *Controller) clearFileInput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.ClearFileInput()
}
