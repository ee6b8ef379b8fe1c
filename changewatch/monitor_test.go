package changewatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pagewatch/changewatch/change"
	"github.com/hazyhaar/pagewatch/changewatch/internal/analyzer"
	"github.com/hazyhaar/pagewatch/changewatch/internal/session"
	"github.com/hazyhaar/pagewatch/changewatch/internal/trigger"
)

type memTarget struct {
	mu   sync.Mutex
	text string
}

func (t *memTarget) set(s string) {
	t.mu.Lock()
	t.text = s
	t.mu.Unlock()
}

func (t *memTarget) Text(context.Context, string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text, nil
}

func (t *memTarget) Identity(context.Context) analyzer.Source {
	return analyzer.Source{URL: "https://shop.example.com/item", Title: "Item"}
}

type webhook struct {
	srv    *httptest.Server
	mu     sync.Mutex
	bodies [][]byte
	status int
}

func newWebhook(t *testing.T) *webhook {
	t.Helper()
	wh := &webhook{status: http.StatusOK}
	wh.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		wh.mu.Lock()
		wh.bodies = append(wh.bodies, body)
		status := wh.status
		wh.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(wh.srv.Close)
	return wh
}

func (wh *webhook) body(i int) []byte {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	return wh.bodies[i]
}

func (wh *webhook) count() int {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	return len(wh.bodies)
}

type fixture struct {
	m      *Monitor
	target *memTarget
	sched  *trigger.Manual
	store  *Store
}

func newFixture(t *testing.T, cfg *Config) *fixture {
	t.Helper()
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	if cfg == nil {
		cfg = DefaultConfig()
	}
	f := &fixture{
		target: &memTarget{},
		sched:  trigger.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		store:  store,
	}
	f.m = New(cfg, nil,
		WithStore(store),
		WithTarget(f.target),
		WithScheduler(f.sched),
	)
	if err := f.m.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.m.Close() })
	return f
}

func TestMonitor_StartPersistsAndStopClears(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	wh := newWebhook(t)

	mc := MonitorConfig{EndpointURL: wh.srv.URL, Scope: change.ScopeAll, Keywords: []string{"price"}, PollIntervalSeconds: 900}
	if err := f.m.Start(ctx, mc); err != nil {
		t.Fatal(err)
	}
	st, err := f.store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Running {
		t.Error("running flag not persisted")
	}
	if st.Monitor.PollIntervalSeconds != 300 {
		t.Errorf("stored interval: got %d, want 300 (clamped)", st.Monitor.PollIntervalSeconds)
	}
	if s := f.m.Status(); !s.Running || s.SessionID == "" {
		t.Errorf("Status: got %+v", s)
	}

	if err := f.m.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.m.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	st, _ = f.store.Load(ctx)
	if st.Running {
		t.Error("running flag still set after Stop")
	}
	if st.Monitor.EndpointURL != wh.srv.URL {
		t.Errorf("stored endpoint: got %q", st.Monitor.EndpointURL)
	}
}

func TestMonitor_InvalidStartClearsFlag(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.store.SetRunning(ctx, true); err != nil {
		t.Fatal(err)
	}

	err := f.m.Start(ctx, MonitorConfig{EndpointURL: "hooks.example.com/no-scheme"})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Start: got %v, want ErrInvalidConfig", err)
	}
	st, _ := f.store.Load(ctx)
	if st.Running {
		t.Error("running flag should be cleared after a failed start")
	}
	if f.m.Status().Running {
		t.Error("monitor should not be running")
	}
}

func TestMonitor_DeliversChange(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	wh := newWebhook(t)

	f.target.set("Price: $10")
	if err := f.m.Start(ctx, MonitorConfig{
		EndpointURL: wh.srv.URL, Scope: change.ScopeKeywords,
		Keywords: []string{"price"}, PollIntervalSeconds: 5,
	}); err != nil {
		t.Fatal(err)
	}

	f.target.set("Price: $12")
	f.sched.Advance(5 * time.Second)
	f.m.sess.Wait()

	if wh.count() != 1 {
		t.Fatalf("webhook calls: got %d, want 1", wh.count())
	}
	p, err := change.UnmarshalPayload(wh.body(0))
	if err != nil {
		t.Fatal(err)
	}
	if p.Data.SourceTitle != "Item" || p.Data.NewExcerpt != "Price: $12" {
		t.Errorf("payload data: got %+v", p.Data)
	}

	events := f.m.Status().Events
	if len(events) != 2 || events[1].Kind != session.EventDelivered {
		t.Errorf("events: got %+v", events)
	}
}

func TestMonitor_RejectedKeepsRunning(t *testing.T) {
	f := newFixture(t, nil)
	wh := newWebhook(t)
	wh.mu.Lock()
	wh.status = http.StatusInternalServerError
	wh.mu.Unlock()

	f.target.set("a")
	if err := f.m.Start(context.Background(), MonitorConfig{EndpointURL: wh.srv.URL, PollIntervalSeconds: 1}); err != nil {
		t.Fatal(err)
	}
	f.target.set("b")
	f.sched.Advance(time.Second)
	f.m.sess.Wait()
	f.target.set("c")
	f.sched.Advance(time.Second)
	f.m.sess.Wait()

	if wh.count() != 2 {
		t.Errorf("webhook calls: got %d, want 2", wh.count())
	}
	st := f.m.Status()
	if !st.Running {
		t.Error("monitor stopped after rejection")
	}
	last := st.Events[len(st.Events)-1]
	if last.Kind != session.EventRejected || last.Status != 500 {
		t.Errorf("last event: got %+v", last)
	}
}

func TestMonitor_EventHistoryCapped(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < eventHistory+5; i++ {
		f.m.observe(Event{Kind: session.EventStopped, Status: i})
	}
	events := f.m.Status().Events
	if len(events) != eventHistory {
		t.Fatalf("events: got %d, want %d", len(events), eventHistory)
	}
	if events[0].Status != 5 {
		t.Errorf("oldest kept event: got %d, want 5", events[0].Status)
	}
}

func TestMonitor_Resume(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	started, err := f.m.Resume(ctx)
	if err != nil || started {
		t.Fatalf("Resume on empty store: got %v, %v", started, err)
	}

	mc := MonitorConfig{EndpointURL: "https://hooks.example.com/in", Scope: change.ScopeText, PollIntervalSeconds: 30}
	if err := f.store.Save(ctx, mc); err != nil {
		t.Fatal(err)
	}
	started, _ = f.m.Resume(ctx)
	if started {
		t.Fatal("Resume started without the running flag")
	}

	if err := f.store.SetRunning(ctx, true); err != nil {
		t.Fatal(err)
	}
	started, err = f.m.Resume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !started {
		t.Fatal("Resume did not start")
	}
	st := f.m.Status()
	if !st.Running || st.Monitor.Scope != change.ScopeText || st.Monitor.PollIntervalSeconds != 30 {
		t.Errorf("Status: got %+v", st)
	}
}

func TestMonitor_NotOpen(t *testing.T) {
	m := New(nil, nil)
	if err := m.Start(context.Background(), MonitorConfig{EndpointURL: "https://x.example"}); err == nil {
		t.Error("Start before Open: expected error")
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Errorf("Stop before Open: %v", err)
	}
}

func TestMonitor_OpenFileTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target = TargetConfig{Kind: TargetFile, Path: t.TempDir() + "/missing.txt"}
	cfg.State.Path = ":memory:"
	m := New(cfg, nil)
	if err := m.Open(context.Background()); err == nil {
		m.Close()
		t.Fatal("expected error opening a missing file target")
	}
}

func TestMonitor_InvalidRestartKeepsFlag(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if err := f.m.Start(ctx, MonitorConfig{EndpointURL: "https://hooks.example.com/in"}); err != nil {
		t.Fatal(err)
	}
	err := f.m.Start(ctx, MonitorConfig{EndpointURL: "not-a-url"})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Start: got %v, want ErrInvalidConfig", err)
	}

	st, err := f.store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	live := f.m.Status()
	if !live.Running {
		t.Fatal("previous session should still be running")
	}
	if st.Running != live.Running {
		t.Errorf("persisted running: got %v, want %v", st.Running, live.Running)
	}
	if st.Monitor.EndpointURL != "https://hooks.example.com/in" {
		t.Errorf("stored endpoint: got %q", st.Monitor.EndpointURL)
	}
}

func TestMonitor_ConcurrentStartsPersistLiveConfig(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mc := MonitorConfig{EndpointURL: "https://hooks.example.com/in", PollIntervalSeconds: i}
			if err := f.m.Start(ctx, mc); err != nil {
				t.Errorf("Start %d: %v", i, err)
			}
			if i%3 == 0 {
				if err := f.m.Stop(ctx); err != nil {
					t.Errorf("Stop %d: %v", i, err)
				}
			}
		}(i)
	}
	wg.Wait()

	st, err := f.store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	live := f.m.Status()
	if st.Running != live.Running {
		t.Errorf("persisted running: got %v, live %v", st.Running, live.Running)
	}
	if live.Running && st.Monitor.PollIntervalSeconds != live.Monitor.PollIntervalSeconds {
		t.Errorf("stored interval: got %d, live %d", st.Monitor.PollIntervalSeconds, live.Monitor.PollIntervalSeconds)
	}
}

func TestMonitor_SettingsFallBackToConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Monitor.Scope = change.ScopeSymbols
	cfg.Monitor.TargetSelector = " #alerts "
	f := newFixture(t, cfg)
	ctx := context.Background()

	mc, err := f.m.Settings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if mc.Scope != change.ScopeSymbols || mc.TargetSelector != "#alerts" {
		t.Errorf("Settings before any start: got %+v", mc)
	}

	if err := f.m.Start(ctx, MonitorConfig{EndpointURL: "https://hooks.example.com/in", Scope: change.ScopeText}); err != nil {
		t.Fatal(err)
	}
	mc, _ = f.m.Settings(ctx)
	if mc.Scope != change.ScopeText {
		t.Errorf("Settings after start: got scope %q, want %q", mc.Scope, change.ScopeText)
	}
}
