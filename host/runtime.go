package host

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/hotswap/contract"
	"github.com/wippyai/hotswap/errors"
	"github.com/wippyai/hotswap/loader"
)

// DefaultPollInterval is how often the watcher observes the artifact.
const DefaultPollInterval = time.Second

// Options configures a Runtime.
type Options struct {
	Logger *zap.Logger

	// PollInterval is the artifact observation period.
	PollInterval time.Duration

	// ShutdownTimeout bounds the final unload at shutdown.
	ShutdownTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	return o
}

// Runtime drives a Logic Unit: it dispatches messages through update,
// renders the view after each one and performs reloads between messages.
//
// Every call into the unit happens on the goroutine running Run. Other
// goroutines only enqueue messages and request reload checks.
type Runtime struct {
	loader   *loader.Loader
	renderer Renderer
	status   StatusRenderer
	log      *zap.Logger
	queue    *queue
	check    chan struct{}
	opts     Options
	force    atomic.Bool
	running  atomic.Bool
}

// New creates a runtime over ld. The renderer may also implement
// StatusRenderer.
func New(ld *loader.Loader, r Renderer, opts Options) *Runtime {
	opts = opts.withDefaults()
	rt := &Runtime{
		loader:   ld,
		renderer: r,
		log:      opts.Logger,
		queue:    newQueue(),
		check:    make(chan struct{}, 1),
		opts:     opts,
	}
	if sr, ok := r.(StatusRenderer); ok {
		rt.status = sr
	}
	return rt
}

// Loader returns the loader driven by the runtime.
func (r *Runtime) Loader() *loader.Loader {
	return r.loader
}

// Dispatch enqueues msg. It never blocks and is safe from any goroutine.
// Messages reach the unit in the order they were dispatched; messages
// queued during a reload are delivered to the new unit.
func (r *Runtime) Dispatch(msg contract.Message) {
	r.queue.push(msg)
}

// Pending returns the number of queued messages.
func (r *Runtime) Pending() int {
	return r.queue.len()
}

// Reload asks the loop to reload the artifact even if the watcher has
// not seen a change. Safe from any goroutine.
func (r *Runtime) Reload() {
	r.force.Store(true)
	r.requestCheck()
}

func (r *Runtime) requestCheck() {
	select {
	case r.check <- struct{}{}:
	default:
	}
}

// Run loads the unit, renders its first view and serves messages until
// ctx is done or the unit asks to quit. A load failure is returned before
// any update or view runs. The unit is unloaded before Run returns.
func (r *Runtime) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.InvalidState(errors.PhaseCall, "runtime already running")
	}
	defer r.running.Store(false)

	if err := r.loader.Load(ctx); err != nil {
		return err
	}
	defer r.shutdown(ctx)

	r.report(EventLoaded, nil)
	r.render(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.watch(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return r.loop(gctx, g)
	})
	return g.Wait()
}

func (r *Runtime) loop(ctx context.Context, g *errgroup.Group) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.check:
			r.reload(ctx, r.force.Swap(false))
		case <-r.queue.ready:
			msg, ok := r.queue.pop()
			if !ok {
				continue
			}
			if r.step(ctx, g, msg) {
				r.log.Info("unit requested quit")
				return nil
			}
		}
	}
}

// step runs one message through update, executes the returned commands and
// renders. It reports whether the unit asked to quit.
func (r *Runtime) step(ctx context.Context, g *errgroup.Group, msg contract.Message) bool {
	out, err := r.loader.Update(ctx, msg)
	if err != nil {
		r.log.Error("update failed", zap.Stringer("message", msg), zap.Error(err))
		r.report(EventUpdateFailed, err)
		r.render(ctx)
		return false
	}

	quit := false
	for _, cmd := range out.Commands {
		switch cmd.Op {
		case contract.OpSchedule:
			r.schedule(ctx, g, cmd)
		case contract.OpQuit:
			quit = true
		case contract.OpNone:
		default:
			r.log.Warn("unknown command", zap.Stringer("op", cmd.Op))
		}
	}
	if quit {
		return true
	}
	r.render(ctx)
	return false
}

// schedule delivers cmd.Message after cmd.Arg milliseconds. Timers belong
// to the runtime, not to a unit: they survive reloads and stop at shutdown.
func (r *Runtime) schedule(ctx context.Context, g *errgroup.Group, cmd contract.Command) {
	delay := time.Duration(cmd.Arg) * time.Millisecond
	msg := cmd.Message
	g.Go(func() error {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
			r.Dispatch(msg)
		}
		return nil
	})
}

func (r *Runtime) reload(ctx context.Context, force bool) {
	if !force {
		changed, err := r.loader.Changed()
		if err != nil {
			// the artifact is briefly missing while the build replaces it
			r.log.Debug("artifact not available", zap.Error(err))
			return
		}
		if !changed {
			return
		}
	}

	r.report(EventReloading, nil)
	swapped, err := r.loader.Reload(ctx)
	switch {
	case err != nil:
		r.log.Error("reload failed, keeping the running unit", zap.Error(err))
		r.report(EventReloadFailed, err)
	case swapped:
		r.report(EventReloaded, nil)
		r.render(ctx)
	default:
		r.report(EventUnchanged, nil)
	}
}

func (r *Runtime) render(ctx context.Context) {
	view, err := r.loader.View(ctx)
	if err != nil {
		r.log.Error("view failed", zap.Error(err))
		return
	}
	r.renderer.Render(view)
}

func (r *Runtime) report(ev Event, err error) {
	if r.status == nil {
		return
	}
	st := Status{Time: time.Now(), Event: ev, Err: err}
	if u := r.loader.Current(); u != nil {
		st.Unit = u.Name()
		st.Generation = u.Generation()
	}
	r.status.Status(st)
}

func (r *Runtime) shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.ShutdownTimeout)
	defer cancel()
	if err := r.loader.Close(ctx); err != nil {
		r.log.Warn("unload failed", zap.Error(err))
	}
	r.report(EventStopped, nil)
}
