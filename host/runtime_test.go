package host

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/hotswap/contract"
	"github.com/wippyai/hotswap/engine"
	"github.com/wippyai/hotswap/errors"
	"github.com/wippyai/hotswap/loader"
	"github.com/wippyai/hotswap/units/counter"
)

const waitTimeout = 5 * time.Second

type recorder struct {
	views  chan string
	status chan Status
}

func newRecorder() *recorder {
	return &recorder{
		views:  make(chan string, 256),
		status: make(chan Status, 256),
	}
}

func (r *recorder) Render(v contract.View) { r.views <- v.String() }
func (r *recorder) Status(st Status)       { r.status <- st }

func (r *recorder) waitView(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(waitTimeout)
	var last string
	for {
		select {
		case v := <-r.views:
			if v == want {
				return
			}
			last = v
		case <-deadline:
			t.Fatalf("view %q not rendered, last %q", want, last)
		}
	}
}

func (r *recorder) waitStatus(t *testing.T, ev Event) Status {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case st := <-r.status:
			if st.Event == ev {
				return st
			}
		case <-deadline:
			t.Fatalf("status %s not reported", ev)
		}
	}
}

type harness struct {
	t     *testing.T
	rt    *Runtime
	rec   *recorder
	loc   loader.Location
	mtime time.Time
	done  chan error
	stop  context.CancelFunc
}

func newHarness(t *testing.T, initial []byte, opts Options) *harness {
	t.Helper()
	return newHarnessWith(t, initial, opts, loader.Options{SettleDelay: time.Millisecond, ReadAttempts: 2})
}

func newHarnessWith(t *testing.T, initial []byte, opts Options, lopts loader.Options) *harness {
	t.Helper()
	ctx := context.Background()
	eng, err := engine.New(ctx, engine.Config{})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { eng.Close(ctx) })

	h := &harness{
		t:     t,
		rec:   newRecorder(),
		loc:   loader.Locate(t.TempDir(), "counter", ""),
		mtime: time.Now().Add(-time.Hour).Truncate(time.Second),
	}
	if initial != nil {
		h.write(initial)
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Hour
	}
	ld := loader.New(eng, h.loc, lopts)
	h.rt = New(ld, h.rec, opts)
	return h
}

func (h *harness) write(data []byte) {
	h.t.Helper()
	h.mtime = h.mtime.Add(time.Second)
	if err := writeFile(h.loc.Path(), data, h.mtime); err != nil {
		h.t.Fatal(err)
	}
}

func writeFile(path string, data []byte, mtime time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	return os.Chtimes(path, mtime, mtime)
}

// nextView returns the next rendered view.
func (r *recorder) nextView(t *testing.T) string {
	t.Helper()
	select {
	case v := <-r.views:
		return v
	case <-time.After(waitTimeout):
		t.Fatal("no view rendered")
		return ""
	}
}

// firstRender runs fn once, before the first view is recorded.
type firstRender struct {
	*recorder
	once sync.Once
	fn   func()
}

func (r *firstRender) Render(v contract.View) {
	r.once.Do(r.fn)
	r.recorder.Render(v)
}

func (h *harness) start() {
	h.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.stop = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.rt.Run(ctx) }()
	h.t.Cleanup(func() {
		cancel()
		<-h.done
	})
}

func (h *harness) wait() error {
	h.t.Helper()
	select {
	case err := <-h.done:
		h.done <- err
		return err
	case <-time.After(waitTimeout):
		h.t.Fatal("Run did not return")
		return nil
	}
}

func (h *harness) dispatch(kinds ...contract.Kind) {
	for _, k := range kinds {
		h.rt.Dispatch(contract.Message{Kind: k})
	}
}

func viewA(n int32) string {
	return counter.View(counter.Options{}, n).String()
}

func viewB(n int32) string {
	return counter.View(counter.Options{Decrement: true, Label: "Counter (B): "}, n).String()
}

func TestRun_LoadFailureIsFatal(t *testing.T) {
	h := newHarness(t, counter.Build(counter.Options{Version: contract.Version + 1}), Options{})
	err := h.rt.Run(context.Background())
	if !errors.IsFatal(err) || errors.KindOf(err) != errors.KindContractMismatch {
		t.Fatalf("Run = %v", err)
	}
	select {
	case v := <-h.rec.views:
		t.Fatalf("view rendered after failed load: %q", v)
	default:
	}
}

func TestRun_DispatchesInOrder(t *testing.T) {
	h := newHarness(t, counter.B(), Options{})
	h.start()
	h.rec.waitView(t, viewB(0))

	h.dispatch(counter.Increment, counter.Increment, counter.Decrement, counter.Increment)
	h.rec.waitView(t, viewB(1))
	h.rec.waitView(t, viewB(2))

	h.stop()
	if err := h.wait(); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if h.rt.Loader().Phase() != loader.PhaseUnloaded {
		t.Fatalf("phase after shutdown = %s", h.rt.Loader().Phase())
	}
	h.rec.waitStatus(t, EventStopped)
}

func TestRun_CounterScenario(t *testing.T) {
	h := newHarness(t, counter.A(), Options{})
	h.start()
	h.rec.waitView(t, viewA(0))

	h.dispatch(counter.Increment, counter.Increment, counter.Increment)
	h.rec.waitView(t, viewA(3))

	h.write(counter.B())
	h.rt.Reload()
	st := h.rec.waitStatus(t, EventReloaded)
	if st.Generation != 2 {
		t.Fatalf("generation = %d, want 2", st.Generation)
	}
	h.rec.waitView(t, viewB(3))

	h.dispatch(counter.Decrement)
	h.rec.waitView(t, viewB(2))
}

func TestRun_WatcherTriggersReload(t *testing.T) {
	h := newHarness(t, counter.A(), Options{PollInterval: 10 * time.Millisecond})
	h.start()
	h.rec.waitView(t, viewA(0))
	h.dispatch(counter.Increment)
	h.rec.waitView(t, viewA(1))

	h.write(counter.B())
	h.rec.waitStatus(t, EventReloaded)
	h.rec.waitView(t, viewB(1))
}

// A build that lands after Load read the artifact but before the watcher
// took its first look is still reloaded.
func TestRun_WatcherSeesBuildWrittenAtStartup(t *testing.T) {
	h := newHarness(t, counter.A(), Options{})
	next := h.mtime.Add(time.Second)
	var werr error
	r := &firstRender{recorder: h.rec, fn: func() {
		werr = writeFile(h.loc.Path(), counter.B(), next)
	}}
	h.rt = New(h.rt.Loader(), r, Options{PollInterval: 10 * time.Millisecond})
	h.start()

	h.rec.waitView(t, viewA(0))
	if werr != nil {
		t.Fatalf("write: %v", werr)
	}
	st := h.rec.waitStatus(t, EventReloaded)
	if st.Generation != 2 {
		t.Fatalf("generation = %d, want 2", st.Generation)
	}
	h.rec.waitView(t, viewB(0))
}

// Messages dispatched while a reload is in progress wait in the queue and
// reach the new unit.
func TestRun_DispatchDuringReload(t *testing.T) {
	h := newHarnessWith(t, counter.A(), Options{},
		loader.Options{SettleDelay: 150 * time.Millisecond, ReadAttempts: 2})
	h.start()
	h.rec.waitView(t, viewA(0))
	h.dispatch(counter.Increment, counter.Increment, counter.Increment)
	h.rec.waitView(t, viewA(3))

	h.write(counter.B())
	h.rt.Reload()
	h.rec.waitStatus(t, EventReloading)
	// Decrement is a no-op for A, so only the new unit can take the counter to 2
	h.dispatch(counter.Decrement)

	st := h.rec.waitStatus(t, EventReloaded)
	if st.Generation != 2 {
		t.Fatalf("generation = %d, want 2", st.Generation)
	}
	if v := h.rec.nextView(t); v != viewB(3) {
		t.Fatalf("first view after reload = %q, want %q", v, viewB(3))
	}
	if v := h.rec.nextView(t); v != viewB(2) {
		t.Fatalf("view after queued Decrement = %q, want %q", v, viewB(2))
	}
}

func TestRun_ReloadFailureKeepsServing(t *testing.T) {
	h := newHarness(t, counter.A(), Options{})
	h.start()
	h.rec.waitView(t, viewA(0))

	h.write(counter.Build(counter.Options{Decrement: true, Version: contract.Version + 1}))
	h.rt.Reload()
	st := h.rec.waitStatus(t, EventReloadFailed)
	if !errors.IsRecoverable(st.Err) || st.Generation != 1 {
		t.Fatalf("status = %+v", st)
	}

	h.dispatch(counter.Increment)
	h.rec.waitView(t, viewA(1))
}

func TestRun_IdenticalRewrite(t *testing.T) {
	h := newHarness(t, counter.A(), Options{})
	h.start()
	h.rec.waitView(t, viewA(0))

	h.write(counter.A())
	h.rt.Reload()
	h.rec.waitStatus(t, EventUnchanged)
}

func TestRun_UpdateFailureIsReported(t *testing.T) {
	poison := contract.KindUser + 9
	h := newHarness(t, counter.Build(counter.Options{TrapOn: poison}), Options{})
	h.start()
	h.rec.waitView(t, viewA(0))

	h.dispatch(counter.Increment, poison)
	st := h.rec.waitStatus(t, EventUpdateFailed)
	if errors.KindOf(st.Err) != errors.KindTrap {
		t.Fatalf("status error = %v", st.Err)
	}
	h.dispatch(counter.Increment)
	h.rec.waitView(t, viewA(2))
}

func TestRun_ScheduledMessage(t *testing.T) {
	h := newHarness(t, counter.Build(counter.Options{TickAfter: 20 * time.Millisecond}), Options{})
	h.start()
	h.rec.waitView(t, viewA(0))

	h.dispatch(counter.Increment)
	h.rec.waitView(t, viewA(1))
	// the tick handler increments without scheduling again
	h.rec.waitView(t, viewA(2))
}

func TestRun_Quit(t *testing.T) {
	h := newHarness(t, counter.Build(counter.Options{Quit: true, Unload: true}), Options{})
	h.start()
	opts := counter.Options{Quit: true}
	h.rec.waitView(t, counter.View(opts, 0).String())

	h.dispatch(counter.Exit)
	if err := h.wait(); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if h.rt.Loader().Current() != nil {
		t.Fatal("unit still bound after quit")
	}
}

func TestRun_NotReentrant(t *testing.T) {
	h := newHarness(t, counter.A(), Options{})
	h.start()
	h.rec.waitView(t, viewA(0))

	if err := h.rt.Run(context.Background()); errors.KindOf(err) != errors.KindInvalidState {
		t.Fatalf("second Run = %v", err)
	}
}

func TestQueue_FIFO(t *testing.T) {
	q := newQueue()
	if _, ok := q.pop(); ok {
		t.Fatal("pop on empty queue")
	}
	for i := range 100 {
		q.push(contract.Message{Kind: contract.KindUser, Arg: int64(i)})
	}
	if q.len() != 100 {
		t.Fatalf("len = %d", q.len())
	}
	for i := range 100 {
		select {
		case <-q.ready:
		default:
			t.Fatalf("ready not signalled with %d queued", q.len())
		}
		msg, ok := q.pop()
		if !ok || msg.Arg != int64(i) {
			t.Fatalf("pop %d = %v, %v", i, msg, ok)
		}
	}
	select {
	case <-q.ready:
		t.Fatal("ready signalled on empty queue")
	default:
	}
}
