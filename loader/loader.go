package loader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wippyai/hotswap/contract"
	"github.com/wippyai/hotswap/engine"
	"github.com/wippyai/hotswap/errors"
)

const tracerName = "github.com/wippyai/hotswap/loader"

// Default option values.
const (
	DefaultLoadTimeout  = 10 * time.Second
	DefaultSettleDelay  = 50 * time.Millisecond
	DefaultReadAttempts = 5
)

// Phase is the loader lifecycle state.
type Phase int32

const (
	PhaseUnloaded Phase = iota
	PhaseLoaded
	PhaseReloading
)

func (p Phase) String() string {
	switch p {
	case PhaseUnloaded:
		return "unloaded"
	case PhaseLoaded:
		return "loaded"
	case PhaseReloading:
		return "reloading"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Options configures a Loader. Zero values select defaults.
type Options struct {
	Logger *zap.Logger

	// LoadTimeout bounds reading, compiling, instantiating and validating
	// one artifact, including the initialize call at startup.
	LoadTimeout time.Duration

	// CallTimeout bounds each update, view and unload call. Zero disables
	// the bound. A call that runs out of time closes its instance.
	CallTimeout time.Duration

	// SettleDelay is how long size and modification time must stay
	// unchanged before an artifact is considered fully written.
	SettleDelay time.Duration

	// ReadAttempts bounds the retries of an incomplete artifact.
	ReadAttempts uint
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.LoadTimeout <= 0 {
		o.LoadTimeout = DefaultLoadTimeout
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	} else if o.SettleDelay == 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.ReadAttempts == 0 {
		o.ReadAttempts = DefaultReadAttempts
	}
	return o
}

// Stats counts loader activity.
type Stats struct {
	LastReload time.Time
	LastError  string
	Generation uint64
	Loads      uint64
	Reloads    uint64
	Failures   uint64
	Unchanged  uint64
}

// instanceSeq names instances uniquely across every loader of the process.
var instanceSeq atomic.Uint64

// Loader owns the bound Logic Unit, the state block and the reload
// protocol. Its operations are serialized; the host drives them from a
// single goroutine.
type Loader struct {
	engine *engine.Engine
	tracer trace.Tracer
	log    *zap.Logger

	mu       sync.Mutex
	current  *Unit
	state    contract.State
	marker   Marker
	rejected Marker

	statsMu sync.Mutex
	stats   Stats

	loc   Location
	opts  Options
	phase atomic.Int32
}

// New creates a loader for the artifact at loc. Nothing is read until Load.
func New(eng *engine.Engine, loc Location, opts Options) *Loader {
	opts = opts.withDefaults()
	return &Loader{
		engine: eng,
		loc:    loc,
		opts:   opts,
		log:    opts.Logger.With(zap.String("artifact", loc.Path())),
		tracer: otel.Tracer(tracerName),
	}
}

// Location returns the artifact location.
func (l *Loader) Location() Location {
	return l.loc
}

// Phase returns the lifecycle phase. Safe from any goroutine.
func (l *Loader) Phase() Phase {
	return Phase(l.phase.Load())
}

// Stats returns a snapshot of the counters. Safe from any goroutine.
func (l *Loader) Stats() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

// Current returns the bound unit, or nil before Load and after Close.
func (l *Loader) Current() *Unit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Marker returns the marker of the bound artifact version.
func (l *Loader) Marker() Marker {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.marker
}

// State returns a copy of the state block.
func (l *Loader) State() contract.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// Load binds the artifact for the first time and initializes the state.
// Every error is fatal: nothing stays bound and no update or view may run.
func (l *Loader) Load(ctx context.Context) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, span := l.tracer.Start(ctx, "hotswap.load",
		trace.WithAttributes(attribute.String("hotswap.artifact", l.loc.Path())))
	defer func() { endSpan(span, err) }()

	if l.Phase() != PhaseUnloaded {
		return errors.Fatal(errors.InvalidState(errors.PhaseLocate, "already loaded"))
	}
	if err := l.loc.Validate(); err != nil {
		return errors.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.opts.LoadTimeout)
	defer cancel()

	art, err := ReadArtifact(ctx, l.loc, l.opts.SettleDelay, l.opts.ReadAttempts, l.log)
	if err != nil {
		l.fail(err)
		return errors.Fatal(err)
	}

	u, err := l.open(ctx, art, 1, nil)
	if err != nil {
		l.fail(err)
		return errors.Fatal(err)
	}

	if _, err := u.call(ctx, 0, contract.ExportInit); err != nil {
		_ = u.close(context.Background())
		err = errors.Wrap(errors.PhaseInit, errors.KindOf(err), err, "initialize")
		l.fail(err)
		return errors.Fatal(err)
	}

	state := make(contract.State, u.stateSize)
	if err := u.sync(state); err != nil {
		_ = u.close(context.Background())
		l.fail(err)
		return errors.Fatal(err)
	}

	l.current = u
	l.state = state
	l.marker = art.Marker
	l.phase.Store(int32(PhaseLoaded))

	l.statsMu.Lock()
	l.stats.Loads++
	l.stats.Generation = u.gen
	l.statsMu.Unlock()

	span.SetAttributes(attribute.Int64("hotswap.generation", int64(u.gen)))
	l.log.Info("unit loaded",
		zap.String("unit", u.name),
		zap.Uint64("generation", u.gen),
		zap.Uint32("state_size", u.stateSize),
		zap.Stringer("marker", art.Marker))
	return nil
}

// Changed reports whether the artifact on disk differs from both the bound
// version and the last rejected candidate. It only stats the file.
func (l *Loader) Changed() (bool, error) {
	st, err := l.loc.Stat()
	if err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return false, nil
	}
	return !l.marker.Matches(st) && !l.rejected.Matches(st), nil
}

// Reload replaces the bound unit with the current artifact. It reports
// whether a new unit was bound; a rewrite with identical content only
// refreshes the marker. Errors are recoverable: the previous unit stays
// bound and callable, and the same artifact version is not retried until
// it changes again.
func (l *Loader) Reload(ctx context.Context) (swapped bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, span := l.tracer.Start(ctx, "hotswap.reload",
		trace.WithAttributes(attribute.String("hotswap.artifact", l.loc.Path())))
	defer func() { endSpan(span, err) }()

	if l.current == nil || l.Phase() != PhaseLoaded {
		return false, errors.Recoverable(errors.InvalidState(errors.PhaseReload, "no unit loaded"))
	}

	l.phase.Store(int32(PhaseReloading))
	defer l.phase.Store(int32(PhaseLoaded))

	ctx, cancel := context.WithTimeout(ctx, l.opts.LoadTimeout)
	defer cancel()

	old := l.current

	art, err := ReadArtifact(ctx, l.loc, l.opts.SettleDelay, l.opts.ReadAttempts, l.log)
	if err != nil {
		l.rejected = art.Marker
		l.fail(err)
		return false, errors.Recoverable(err)
	}

	// An interrupted unit is replaced even by identical bytes.
	if art.Marker.SameContent(l.marker) && !old.inst.Closed() {
		l.marker = art.Marker
		l.rejected = Marker{}
		l.statsMu.Lock()
		l.stats.Unchanged++
		l.statsMu.Unlock()
		l.log.Debug("artifact rewritten with identical content", zap.Stringer("marker", art.Marker))
		return false, nil
	}

	size := old.stateSize
	cand, err := l.open(ctx, art, old.gen+1, &size)
	if err != nil {
		l.rejected = art.Marker
		l.fail(err)
		return false, errors.Recoverable(err)
	}

	// The candidate passed every check; from here on the old unit is retired.
	if old.inst.Closed() {
		l.log.Warn("previous unit was interrupted, its state window is lost",
			zap.String("unit", old.name))
	} else {
		if old.hasUnload {
			if _, err := old.call(ctx, l.opts.CallTimeout, contract.ExportUnload); err != nil {
				l.log.Warn("unload hook failed", zap.String("unit", old.name), zap.Error(err))
			}
		}
		if !old.inst.Closed() {
			if err := old.sync(l.state); err != nil {
				l.log.Warn("state sync from previous unit failed", zap.String("unit", old.name), zap.Error(err))
			}
		}
	}

	if err := cand.attach(l.state); err != nil {
		_ = cand.close(context.Background())
		l.rejected = art.Marker
		l.fail(err)
		return false, errors.Recoverable(errors.Wrap(errors.PhaseReload, errors.KindOutOfBounds, err, "attach state"))
	}

	l.current = cand
	if err := old.close(context.Background()); err != nil {
		l.log.Warn("closing previous unit failed", zap.String("unit", old.name), zap.Error(err))
	}

	l.marker = art.Marker
	l.rejected = Marker{}

	l.statsMu.Lock()
	l.stats.Reloads++
	l.stats.Generation = cand.gen
	l.stats.LastReload = time.Now()
	l.stats.LastError = ""
	l.statsMu.Unlock()

	span.SetAttributes(attribute.Int64("hotswap.generation", int64(cand.gen)))
	l.log.Info("unit reloaded",
		zap.String("unit", cand.name),
		zap.Uint64("generation", cand.gen),
		zap.Stringer("marker", art.Marker))
	return true, nil
}

// Update dispatches msg to the bound unit and syncs the state block. Errors
// raised by the unit are returned unmasked and are not retried; the state
// window is then restored from the block, so the block always holds the
// state left by the last completed update.
func (l *Loader) Update(ctx context.Context, msg contract.Message) (contract.Output, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.current
	if u == nil {
		return contract.Output{}, errors.InvalidState(errors.PhaseCall, "no unit loaded")
	}

	packed, err := u.call(ctx, l.opts.CallTimeout, contract.ExportUpdate, uint64(msg.Kind), uint64(msg.Arg))
	if err != nil {
		l.restore(u)
		return contract.Output{}, err
	}

	raw, err := u.read(packed, contract.ExportUpdate)
	if err != nil {
		l.restore(u)
		return contract.Output{}, err
	}
	out, err := contract.DecodeOutput(raw)
	if err != nil {
		l.restore(u)
		return contract.Output{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Export(contract.ExportUpdate).
			Cause(err).
			Build()
	}

	if err := u.sync(l.state); err != nil {
		return contract.Output{}, err
	}
	return out, nil
}

// View asks the bound unit for its view description. The state window is
// not read back.
func (l *Loader) View(ctx context.Context) (contract.View, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.current
	if u == nil {
		return contract.View{}, errors.InvalidState(errors.PhaseCall, "no unit loaded")
	}

	packed, err := u.call(ctx, l.opts.CallTimeout, contract.ExportView)
	if err != nil {
		return contract.View{}, err
	}
	raw, err := u.read(packed, contract.ExportView)
	if err != nil {
		return contract.View{}, err
	}
	if raw == nil {
		return contract.View{}, nil
	}
	v, err := contract.DecodeView(raw)
	if err != nil {
		return contract.View{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Export(contract.ExportView).
			Cause(err).
			Build()
	}
	return v, nil
}

// Close runs the unload hook, closes the bound unit and drops the state.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	u := l.current
	if u == nil {
		return nil
	}

	if u.hasUnload && !u.inst.Closed() {
		if _, err := u.call(ctx, l.opts.CallTimeout, contract.ExportUnload); err != nil {
			l.log.Warn("unload hook failed", zap.String("unit", u.name), zap.Error(err))
		} else if err := u.sync(l.state); err != nil {
			l.log.Warn("state sync failed", zap.Error(err))
		}
	}

	err := u.close(ctx)
	l.current = nil
	l.state = nil
	l.phase.Store(int32(PhaseUnloaded))
	l.log.Info("unit unloaded", zap.String("unit", u.name), zap.Uint64("generation", u.gen))
	return err
}

// open compiles, instantiates and validates a unit. When stateSize is set
// the unit must declare exactly that size. On error nothing stays open.
func (l *Loader) open(ctx context.Context, art Artifact, gen uint64, stateSize *uint32) (*Unit, error) {
	mod, err := l.engine.Compile(ctx, art.Data)
	if err != nil {
		return nil, withArtifact(err, art.Path)
	}
	defer mod.Close(context.Background())

	if err := bind(mod); err != nil {
		return nil, withArtifact(err, art.Path)
	}

	name := fmt.Sprintf("unit-%d", instanceSeq.Add(1))
	inst, err := mod.Instantiate(ctx, engine.InstanceConfig{Name: name})
	if err != nil {
		return nil, withArtifact(err, art.Path)
	}

	_, hasUnload := mod.Signature(contract.ExportUnload)
	u := &Unit{
		inst:      inst,
		log:       l.log,
		marker:    art.Marker,
		name:      name,
		gen:       gen,
		hasUnload: hasUnload,
	}
	if mem := inst.Memory(); mem != nil {
		u.mem = mem
	}

	if err := l.validate(ctx, u, stateSize); err != nil {
		_ = u.close(context.Background())
		return nil, withArtifact(err, art.Path)
	}
	return u, nil
}

// bind resolves every Capability Interface export and checks its type.
func bind(mod *engine.Module) error {
	if !mod.HasMemory(contract.ExportMemory) {
		return errors.MissingEntryPoint(contract.ExportMemory)
	}
	for _, ep := range contract.EntryPoints {
		sig, ok := mod.Signature(ep.Name)
		if !ok {
			if ep.Required {
				return errors.MissingEntryPoint(ep.Name)
			}
			continue
		}
		if !sig.Equal(ep.Signature) {
			return errors.SignatureMismatch(ep.Name, ep.Signature.String(), sig.String())
		}
	}
	return nil
}

func (l *Loader) validate(ctx context.Context, u *Unit, stateSize *uint32) error {
	version, err := u.call(ctx, 0, contract.ExportContractVersion)
	if err != nil {
		return err
	}
	if uint32(version) != contract.Version {
		return errors.ContractMismatch(contract.Version, uint32(version))
	}

	ptr, err := u.call(ctx, 0, contract.ExportStatePtr)
	if err != nil {
		return err
	}
	size, err := u.call(ctx, 0, contract.ExportStateSize)
	if err != nil {
		return err
	}
	u.statePtr, u.stateSize = uint32(ptr), uint32(size)

	if stateSize != nil && u.stateSize != *stateSize {
		return errors.LayoutMismatch(*stateSize, u.stateSize)
	}
	if u.mem == nil {
		return errors.MissingEntryPoint(contract.ExportMemory)
	}
	if uint64(u.statePtr)+uint64(u.stateSize) > uint64(u.mem.Size()) {
		return errors.OutOfBounds(errors.PhaseValidate, "state window", u.statePtr, u.stateSize, u.mem.Size())
	}
	return nil
}

// restore puts the block back into the window after a failed update.
func (l *Loader) restore(u *Unit) {
	if u.inst.Closed() {
		return
	}
	if err := u.attach(l.state); err != nil {
		l.log.Warn("state restore failed", zap.String("unit", u.name), zap.Error(err))
	}
}

func (l *Loader) fail(err error) {
	l.statsMu.Lock()
	l.stats.Failures++
	l.stats.LastError = err.Error()
	l.statsMu.Unlock()
	l.log.Warn("artifact rejected", zap.Error(err))
}

func withArtifact(err error, path string) error {
	var e *errors.Error
	if errors.As(err, &e) && e.Artifact == "" {
		cp := *e
		cp.Artifact = path
		return &cp
	}
	return err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
