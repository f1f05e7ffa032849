package widget

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/supportchat/internal/domain/support"
	"github.com/Strob0t/supportchat/internal/port/supportapi"
	"github.com/Strob0t/supportchat/internal/supporttest"
)

type fakeService struct {
	mu sync.Mutex

	cfg    support.WidgetConfig
	cfgErr error

	conv      *support.Conversation
	convErr   error
	convCalls int
	convGate  chan struct{}

	msgs        []support.Message
	msgsErr     error
	msgCalls    int
	queries     []supportapi.MessageQuery
	msgsGate    chan struct{}
	msgsStarted chan struct{}

	sendErr error
	sent    []string

	uploadErr error
	uploads   []supportapi.Upload
}

func newFakeService() *fakeService {
	return &fakeService{
		cfg:  support.WidgetConfig{Enabled: true, WelcomeMessage: "Hi there", ShowOnlineStatus: true, MaxFileSize: 5 << 20},
		conv: &support.Conversation{ID: "CONV-1", Status: support.StatusOpen},
	}
}

func (f *fakeService) Config(context.Context) (support.WidgetConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg, f.cfgErr
}

func (f *fakeService) Conversation(context.Context) (*support.Conversation, error) {
	f.mu.Lock()
	f.convCalls++
	gate := f.convGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.convErr != nil {
		return nil, f.convErr
	}
	conv := *f.conv
	return &conv, nil
}

func (f *fakeService) Messages(_ context.Context, _ string, q supportapi.MessageQuery) ([]support.Message, error) {
	f.mu.Lock()
	f.msgCalls++
	f.queries = append(f.queries, q)
	gate, started := f.msgsGate, f.msgsStarted
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msgsErr != nil {
		return nil, f.msgsErr
	}
	return append([]support.Message(nil), f.msgs...), nil
}

func (f *fakeService) Send(_ context.Context, _ string, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, content)
	return nil
}

func (f *fakeService) UploadFile(_ context.Context, _ string, up supportapi.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, up)
	return nil
}

func (f *fakeService) setMessages(msgs ...support.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = msgs
}

func (f *fakeService) messageCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgCalls
}

func (f *fakeService) conversationCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convCalls
}

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

type tickers struct {
	mu  sync.Mutex
	all []*fakeTicker
}

func (ts *tickers) New(time.Duration) Ticker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	ts.all = append(ts.all, t)
	return t
}

func (ts *tickers) count() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.all)
}

func (ts *tickers) last() *fakeTicker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.all[len(ts.all)-1]
}

func agentMsg(id int64, content string) support.Message {
	return support.Message{ID: id, IsAgent: true, SenderName: "Agent", Kind: support.KindText, Content: content}
}

func userMsg(id int64, content string) support.Message {
	return support.Message{ID: id, SenderName: "Visitor", Kind: support.KindText, Content: content}
}

type harness struct {
	svc     *fakeService
	rec     *supporttest.Recorder
	tickers *tickers
	ctl     *Controller
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{svc: newFakeService(), rec: supporttest.NewRecorder(), tickers: &tickers{}}
	opts = append([]Option{WithTicker(h.tickers.New), WithChime(h.rec), WithLocation(time.UTC)}, opts...)
	h.ctl = New(h.svc, h.rec, opts...)
	t.Cleanup(h.ctl.Shutdown)
	return h
}

func (h *harness) init(t *testing.T) {
	t.Helper()
	if err := h.ctl.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

func (h *harness) open(t *testing.T) {
	t.Helper()
	if err := h.ctl.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
