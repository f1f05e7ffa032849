package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/supportchat/internal/domain/support"
	"github.com/Strob0t/supportchat/internal/port/supportapi"
	"github.com/Strob0t/supportchat/internal/render"
)

func TestInitDisabled(t *testing.T) {
	h := newHarness(t)
	h.svc.cfg.Enabled = false
	h.init(t)

	if h.ctl.State() != StateDisabled {
		t.Fatalf("expected disabled, got %s", h.ctl.State())
	}
	if h.rec.Mounted() != nil || len(h.rec.Events()) != 0 {
		t.Fatalf("disabled widget must render nothing, got %v", h.rec.Events())
	}
	if err := h.ctl.Open(context.Background()); !errors.Is(err, support.ErrDisabled) {
		t.Fatalf("Open: expected ErrDisabled, got %v", err)
	}
	if err := h.ctl.Send(context.Background(), "hi"); !errors.Is(err, support.ErrDisabled) {
		t.Fatalf("Send: expected ErrDisabled, got %v", err)
	}
	if h.svc.conversationCalls() != 0 {
		t.Fatal("disabled widget must not create a conversation")
	}
}

func TestInitConfigFailureFallsBack(t *testing.T) {
	h := newHarness(t)
	h.svc.cfgErr = errors.New("connection refused")
	h.init(t)

	if h.ctl.State() != StateDisabled {
		t.Fatalf("expected disabled, got %s", h.ctl.State())
	}
	if got := h.ctl.Config(); got != support.DefaultConfig() {
		t.Fatalf("expected default config, got %+v", got)
	}
	if len(h.rec.Alerts()) != 0 {
		t.Fatal("config failure must not be surfaced")
	}
}

func TestInitEnabledMounts(t *testing.T) {
	h := newHarness(t)
	h.init(t)

	if h.ctl.State() != StateClosed {
		t.Fatalf("expected closed, got %s", h.ctl.State())
	}
	if m := h.rec.Mounted(); m == nil || m.WelcomeMessage != "Hi there" {
		t.Fatalf("expected mount with config, got %+v", m)
	}
}

func TestOperationsBeforeInit(t *testing.T) {
	h := newHarness(t)
	if err := h.ctl.Open(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestOpenEmptyConversationShowsWelcome(t *testing.T) {
	h := newHarness(t)
	h.svc.conv.Agent = &support.Agent{Name: "Rahim", IsOnline: true}
	h.init(t)
	h.open(t)

	n := h.rec.Notice()
	if n == nil || n.Kind != render.NoticeWelcome || n.Text != "Hi there" {
		t.Fatalf("expected welcome notice, got %+v", n)
	}
	if a := h.rec.Agent(); a == nil || a.Name != "Rahim" || a.Status != render.StatusOnline {
		t.Fatalf("unexpected agent header: %+v", a)
	}
	if !h.rec.IsOpen() {
		t.Fatal("expected window shown")
	}
	if h.ctl.ConversationState() != ConversationPolling {
		t.Fatalf("expected polling, got %s", h.ctl.ConversationState())
	}
	if h.tickers.count() != 1 {
		t.Fatalf("expected one ticker, got %d", h.tickers.count())
	}
}

func TestOpenLoadsTranscript(t *testing.T) {
	h := newHarness(t)
	h.svc.setMessages(userMsg(1, "hello"), agentMsg(2, "hi, how can I help?"))
	h.init(t)
	h.open(t)

	bubbles := h.rec.Bubbles()
	if len(bubbles) != 2 || bubbles[0].Side != render.SideUser || bubbles[1].Side != render.SideAgent {
		t.Fatalf("unexpected transcript: %+v", bubbles)
	}
	if h.ctl.LastSeenID() != 2 {
		t.Fatalf("expected lastSeenID 2, got %d", h.ctl.LastSeenID())
	}
	if h.ctl.Unread() != 0 {
		t.Fatalf("initial load must not count unread, got %d", h.ctl.Unread())
	}
}

func TestOpenUnauthenticatedIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.svc.convErr = fmt.Errorf("create conversation: %w", supportapi.ErrUnauthenticated)
	h.init(t)

	err := h.ctl.Open(context.Background())
	if !errors.Is(err, supportapi.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	n := h.rec.Notice()
	if n == nil || n.Kind != render.NoticeLogin || n.LinkURL != "/accounts/login/" {
		t.Fatalf("expected login prompt, got %+v", n)
	}
	if h.ctl.ConversationState() != ConversationUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", h.ctl.ConversationState())
	}

	h.svc.mu.Lock()
	h.svc.convErr = nil
	h.svc.mu.Unlock()
	_ = h.ctl.Close()
	if err := h.ctl.Open(context.Background()); !errors.Is(err, supportapi.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated on reopen, got %v", err)
	}
	if h.svc.conversationCalls() != 1 {
		t.Fatalf("unauthenticated must not be retried, got %d calls", h.svc.conversationCalls())
	}
	if h.tickers.count() != 0 {
		t.Fatal("polling must not start without a conversation")
	}
}

func TestOpenCustomLoginURL(t *testing.T) {
	h := newHarness(t, WithLoginURL("/en/accounts/login/?next=/books/"))
	h.svc.convErr = supportapi.ErrUnauthenticated
	h.init(t)
	_ = h.ctl.Open(context.Background())

	if n := h.rec.Notice(); n == nil || n.LinkURL != "/en/accounts/login/?next=/books/" {
		t.Fatalf("unexpected login prompt: %+v", n)
	}
}

func TestOpenTransportFailureRetries(t *testing.T) {
	h := newHarness(t)
	h.svc.convErr = errors.New("dial tcp: connection refused")
	h.init(t)

	if err := h.ctl.Open(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	n := h.rec.Notice()
	if n == nil || n.Kind != render.NoticeError || n.Text != "Failed to connect. Please try again." {
		t.Fatalf("expected connect error notice, got %+v", n)
	}
	if h.ctl.ConversationState() != ConversationNone {
		t.Fatalf("expected none, got %s", h.ctl.ConversationState())
	}

	h.svc.mu.Lock()
	h.svc.convErr = nil
	h.svc.mu.Unlock()
	h.open(t)
	if h.ctl.ConversationState() != ConversationPolling {
		t.Fatalf("expected polling after retry, got %s", h.ctl.ConversationState())
	}
	if h.svc.conversationCalls() != 2 {
		t.Fatalf("expected 2 create calls, got %d", h.svc.conversationCalls())
	}
}

func TestReopenRestartsPollingWithoutReload(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	h.open(t)
	loads := h.svc.messageCalls()

	if err := h.ctl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	h.ctl.poller.Wait()
	if !h.tickers.last().stopped.Load() {
		t.Fatal("expected ticker stopped on close")
	}
	if h.ctl.ConversationState() != ConversationReady {
		t.Fatalf("expected ready after close, got %s", h.ctl.ConversationState())
	}

	h.open(t)
	if h.tickers.count() != 2 {
		t.Fatalf("expected a new ticker on reopen, got %d", h.tickers.count())
	}
	if h.svc.messageCalls() != loads {
		t.Fatal("reopen must not reload the transcript")
	}
	if h.svc.conversationCalls() != 1 {
		t.Fatalf("expected one conversation, got %d", h.svc.conversationCalls())
	}
}

func TestOpenTwiceKeepsSingleTicker(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	h.open(t)
	h.open(t)

	if h.tickers.count() != 1 {
		t.Fatalf("expected one ticker, got %d", h.tickers.count())
	}
}

func TestConcurrentOpenCreatesOneConversation(t *testing.T) {
	h := newHarness(t)
	h.svc.convGate = make(chan struct{})
	h.init(t)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.ctl.Open(context.Background())
		}()
	}
	waitFor(t, func() bool { return h.svc.conversationCalls() == 1 })
	close(h.svc.convGate)
	wg.Wait()

	if h.svc.conversationCalls() != 1 {
		t.Fatalf("expected one create call, got %d", h.svc.conversationCalls())
	}
	if h.tickers.count() != 1 {
		t.Fatalf("expected one ticker, got %d", h.tickers.count())
	}
}

func TestPollAppendsDelta(t *testing.T) {
	h := newHarness(t)
	h.svc.setMessages(userMsg(1, "hello"))
	h.init(t)
	h.open(t)

	h.svc.setMessages(userMsg(1, "hello"), agentMsg(2, "hi!"))
	h.ctl.poll(context.Background())

	if got := h.rec.Count("append"); got != 1 {
		t.Fatalf("expected one appended bubble, got %d", got)
	}
	bubbles := h.rec.Bubbles()
	if last := bubbles[len(bubbles)-1]; last.MessageID != 2 || last.Content != "hi!" {
		t.Fatalf("unexpected appended bubble: %+v", last)
	}
	if h.ctl.Unread() != 0 {
		t.Fatalf("open widget must not count unread, got %d", h.ctl.Unread())
	}
	if h.rec.Chimes() != 1 {
		t.Fatalf("expected chime, got %d", h.rec.Chimes())
	}

	h.ctl.poll(context.Background())
	if h.rec.Count("append") != 1 || h.rec.Chimes() != 1 {
		t.Fatal("an empty delta must not render or chime")
	}
}

func TestPollCountsUnreadAgentMessagesWhileClosed(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	h.open(t)
	_ = h.ctl.Close()

	h.svc.setMessages(agentMsg(3, "a"), userMsg(4, "b"), agentMsg(5, "c"))
	h.ctl.poll(context.Background())

	if h.ctl.Unread() != 2 {
		t.Fatalf("expected 2 unread, got %d", h.ctl.Unread())
	}
	if b := h.rec.Badge(); !b.Visible || b.Text != "2" {
		t.Fatalf("unexpected badge: %+v", b)
	}
	if h.ctl.LastSeenID() != 5 {
		t.Fatalf("expected lastSeenID 5, got %d", h.ctl.LastSeenID())
	}

	h.open(t)
	if h.ctl.Unread() != 0 {
		t.Fatalf("expected unread reset on open, got %d", h.ctl.Unread())
	}
	if b := h.rec.Badge(); b.Visible {
		t.Fatalf("expected hidden badge, got %+v", b)
	}
}

func TestPollSortsDeltaAndNeverRewindsLastSeen(t *testing.T) {
	h := newHarness(t)
	h.svc.setMessages(userMsg(3, "x"))
	h.init(t)
	h.open(t)

	h.svc.setMessages(agentMsg(5, "five"), agentMsg(4, "four"), userMsg(2, "old"))
	h.ctl.poll(context.Background())

	var ids []int64
	for _, e := range h.rec.Events() {
		if e.Op == "append" {
			ids = append(ids, e.Value.(render.Bubble).MessageID)
		}
	}
	if len(ids) != 2 || ids[0] != 4 || ids[1] != 5 {
		t.Fatalf("expected appends [4 5], got %v", ids)
	}

	h.svc.setMessages(userMsg(1, "stale"))
	h.ctl.poll(context.Background())
	if h.ctl.LastSeenID() != 5 {
		t.Fatalf("lastSeenID must not decrease, got %d", h.ctl.LastSeenID())
	}
}

func TestPollFailureIsSilent(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	h.open(t)
	before := len(h.rec.Events())

	h.svc.mu.Lock()
	h.svc.msgsErr = errors.New("502 bad gateway")
	h.svc.mu.Unlock()
	h.ctl.poll(context.Background())

	if len(h.rec.Events()) != before {
		t.Fatalf("poll failure must not render, got %v", h.rec.Events()[before:])
	}
	if h.ctl.ConversationState() != ConversationPolling {
		t.Fatal("poll failure must not stop polling")
	}
}

func TestPollIncrementalQuery(t *testing.T) {
	h := newHarness(t, WithIncrementalPoll(true))
	h.svc.setMessages(userMsg(7, "x"))
	h.init(t)
	h.open(t)

	h.ctl.poll(context.Background())

	h.svc.mu.Lock()
	defer h.svc.mu.Unlock()
	if first := h.svc.queries[0]; first.After != 0 {
		t.Fatalf("full load must fetch everything, got after=%d", first.After)
	}
	if last := h.svc.queries[len(h.svc.queries)-1]; last.After != 7 {
		t.Fatalf("expected after=7, got %d", last.After)
	}
}

func TestInFlightPollCompletesAfterClose(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	h.open(t)

	h.svc.mu.Lock()
	h.svc.msgs = []support.Message{agentMsg(1, "late reply")}
	h.svc.msgsGate = make(chan struct{})
	h.svc.msgsStarted = make(chan struct{}, 1)
	h.svc.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.ctl.poll(context.Background())
		close(done)
	}()
	<-h.svc.msgsStarted
	_ = h.ctl.Close()
	close(h.svc.msgsGate)
	<-done

	if h.ctl.Unread() != 1 {
		t.Fatalf("expected in-flight poll to count unread, got %d", h.ctl.Unread())
	}
	if h.ctl.LastSeenID() != 1 {
		t.Fatalf("expected lastSeenID 1, got %d", h.ctl.LastSeenID())
	}
	if h.rec.IsOpen() {
		t.Fatal("window must stay hidden")
	}
}

func TestTickerDrivesPoll(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	h.open(t)

	h.svc.setMessages(agentMsg(1, "ping"))
	h.tickers.last().ch <- time.Now()
	waitFor(t, func() bool { return h.rec.Count("append") == 1 })
}

func TestSendReloadsTranscript(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	h.open(t)
	replaces := h.rec.Count("replace")

	if err := h.ctl.Send(context.Background(), "  where is my order?  "); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(h.svc.sent) != 1 || h.svc.sent[0] != "where is my order?" {
		t.Fatalf("expected trimmed content, got %q", h.svc.sent)
	}
	if h.rec.Input() != "" || h.rec.SendEnabled() {
		t.Fatalf("expected cleared input and disabled send, got %q/%v", h.rec.Input(), h.rec.SendEnabled())
	}
	if h.rec.Count("replace") != replaces+1 {
		t.Fatal("expected a full reload after send")
	}
}

func TestSendFailureRestoresInput(t *testing.T) {
	h := newHarness(t)
	h.svc.sendErr = errors.New("500")
	h.init(t)
	h.open(t)

	err := h.ctl.Send(context.Background(), "  hi  ")
	if err == nil || !strings.Contains(err.Error(), "send message") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if h.rec.Input() != "  hi  " {
		t.Fatalf("expected input restored verbatim, got %q", h.rec.Input())
	}
	if !h.rec.SendEnabled() {
		t.Fatal("expected send re-enabled")
	}
	if alerts := h.rec.Alerts(); len(alerts) != 1 || alerts[0] != AlertSendFailed {
		t.Fatalf("unexpected alerts: %v", alerts)
	}
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t)
	h.init(t)

	if err := h.ctl.Send(context.Background(), "hello"); !errors.Is(err, support.ErrNoConversation) {
		t.Fatalf("expected ErrNoConversation, got %v", err)
	}
	h.open(t)
	if err := h.ctl.Send(context.Background(), " \n\t "); !errors.Is(err, support.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if len(h.svc.sent) != 0 || h.rec.Count("input") != 0 {
		t.Fatal("rejected send must not touch the network or the input")
	}
}

func TestUploadTooLarge(t *testing.T) {
	h := newHarness(t)
	h.svc.cfg.MaxFileSize = 1 << 20
	h.init(t)
	h.open(t)

	err := h.ctl.Upload(context.Background(), File{Name: "scan.pdf", Size: 2 << 20, Body: strings.NewReader("")})
	if !errors.Is(err, support.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if alerts := h.rec.Alerts(); len(alerts) != 1 || alerts[0] != "File size must be less than 1MB" {
		t.Fatalf("unexpected alerts: %v", alerts)
	}
	if len(h.svc.uploads) != 0 {
		t.Fatal("oversized file must not be uploaded")
	}
	if h.rec.FileClears() != 1 {
		t.Fatalf("expected file input cleared, got %d", h.rec.FileClears())
	}
}

func TestUploadSuccess(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	h.open(t)
	replaces := h.rec.Count("replace")

	err := h.ctl.Upload(context.Background(), File{Name: "cover.png", ContentType: "image/png", Size: 3, Body: strings.NewReader("png")})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(h.svc.uploads) != 1 || h.svc.uploads[0].Caption != "Sent cover.png" {
		t.Fatalf("unexpected uploads: %+v", h.svc.uploads)
	}
	if h.rec.Count("replace") != replaces+1 {
		t.Fatal("expected reload after upload")
	}
	if h.rec.FileClears() != 1 {
		t.Fatal("expected file input cleared")
	}
}

func TestUploadFailure(t *testing.T) {
	h := newHarness(t)
	h.svc.uploadErr = errors.New("413")
	h.init(t)
	h.open(t)

	if err := h.ctl.Upload(context.Background(), File{Name: "a.txt", Size: 1, Body: strings.NewReader("a")}); err == nil {
		t.Fatal("expected error")
	}
	if alerts := h.rec.Alerts(); len(alerts) != 1 || alerts[0] != AlertUploadFailed {
		t.Fatalf("unexpected alerts: %v", alerts)
	}
	if h.rec.FileClears() != 1 {
		t.Fatal("expected file input cleared")
	}
}

func TestFileTooLargeMessage(t *testing.T) {
	tests := []struct {
		limit int64
		want  string
	}{
		{5 << 20, "File size must be less than 5MB"},
		{1572864, "File size must be less than 1.5MB"},
		{512 << 10, "File size must be less than 0.5MB"},
	}
	for _, tt := range tests {
		if got := FileTooLargeMessage(tt.limit); got != tt.want {
			t.Errorf("FileTooLargeMessage(%d) = %q, want %q", tt.limit, got, tt.want)
		}
	}
}

func TestToggle(t *testing.T) {
	h := newHarness(t)
	h.init(t)

	if err := h.ctl.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if h.ctl.State() != StateOpen {
		t.Fatalf("expected open, got %s", h.ctl.State())
	}
	if err := h.ctl.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if h.ctl.State() != StateClosed {
		t.Fatalf("expected closed, got %s", h.ctl.State())
	}
}

func TestConversationReturnsCopy(t *testing.T) {
	h := newHarness(t)
	h.init(t)
	if h.ctl.Conversation() != nil {
		t.Fatal("expected no conversation before open")
	}
	h.open(t)
	conv := h.ctl.Conversation()
	conv.ID = "mutated"
	if h.ctl.Conversation().ID != "CONV-1" {
		t.Fatal("Conversation must return a copy")
	}
}
