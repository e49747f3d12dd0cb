package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/hotswap"
	"github.com/wippyai/hotswap/contract"
	"github.com/wippyai/hotswap/errors"
)

// Engine compiles and instantiates Logic Units on a single wazero runtime.
// Each instance is independent; instances of different builds coexist
// until the older one is closed.
type Engine struct {
	runtime      wazero.Runtime
	cache        wazero.CompilationCache
	stdout       io.Writer
	stderr       io.Writer
	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

// Config holds configuration for engine creation
type Config struct {
	// Stdout and Stderr receive guest output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	// CacheDir persists compiled code between runs. Empty keeps the cache
	// in memory.
	CacheDir string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// Interpreter forces the interpreter even where the compiler is available.
	Interpreter bool
}

// New creates an engine. Function calls stop when their context is done,
// which closes the instance they run in.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.Interpreter {
		runtimeCfg = wazero.NewRuntimeConfigInterpreter()
	}
	runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)

	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "compilation cache "+cfg.CacheDir)
		}
		cache = c
	} else {
		cache = wazero.NewCompilationCache()
	}
	runtimeCfg = runtimeCfg.WithCompilationCache(cache)

	stdout, stderr := cfg.Stdout, cfg.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cache:   cache,
		stdout:  stdout,
		stderr:  stderr,
	}, nil
}

// Close closes every instance and compiled module of the engine.
func (e *Engine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if cerr := e.cache.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

// Compile compiles a module. Compilation itself cannot be interrupted, so
// when ctx ends first the result is discarded in the background and a
// timeout error is returned.
func (e *Engine) Compile(ctx context.Context, data []byte) (*Module, error) {
	type result struct {
		compiled wazero.CompiledModule
		err      error
	}
	done := make(chan result, 1)
	go func() {
		compiled, err := e.runtime.CompileModule(context.WithoutCancel(ctx), data)
		done <- result{compiled, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, errors.New(errors.PhaseCompile, errors.KindCompilation).
				Cause(r.err).
				Detail("compile failed").
				Build()
		}
		return &Module{engine: e, compiled: r.compiled}, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.compiled != nil {
				_ = r.compiled.Close(context.Background())
			}
		}()
		return nil, errors.Timeout(errors.PhaseCompile, "compile", ctx.Err())
	}
}

// InitWASI instantiates the WASI singleton for this engine's runtime.
// Safe for concurrent calls.
func (e *Engine) InitWASI(ctx context.Context) error {
	if e.wasiInitDone.Load() {
		return nil
	}

	e.wasiInitMu.Lock()
	defer e.wasiInitMu.Unlock()

	if e.wasiInitDone.Load() {
		return nil
	}

	if e.runtime.Module(wasiModuleName) != nil {
		e.wasiInitDone.Store(true)
		return nil
	}

	if _, err := instantiateWASI(ctx, e.runtime); err != nil {
		if e.runtime.Module(wasiModuleName) == nil {
			return fmt.Errorf("instantiate WASI: %w", err)
		}
	}

	e.wasiInitDone.Store(true)
	return nil
}

// Module is a compiled Logic Unit.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
}

// Signature returns the type of an exported function.
func (m *Module) Signature(name string) (contract.Signature, bool) {
	def, ok := m.compiled.ExportedFunctions()[name]
	if !ok {
		return contract.Signature{}, false
	}
	return contract.Signature{
		Params:  valueTypes(def.ParamTypes()),
		Results: valueTypes(def.ResultTypes()),
	}, true
}

// HasMemory reports whether a memory is exported under name.
func (m *Module) HasMemory(name string) bool {
	_, ok := m.compiled.ExportedMemories()[name]
	return ok
}

// ExportNames lists exported functions.
func (m *Module) ExportNames() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	return names
}

// NeedsWASI reports whether the module imports from wasi_snapshot_preview1.
func (m *Module) NeedsWASI() bool {
	for _, def := range m.compiled.ImportedFunctions() {
		if mod, _, ok := def.Import(); ok && mod == wasiModuleName {
			return true
		}
	}
	return false
}

// Close releases the compiled code. Instances created from it stay valid.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// InstanceConfig holds configuration for module instantiation
type InstanceConfig struct {
	// Name must be unique among live instances. Empty instantiates anonymously.
	Name string
}

// Instantiate creates an instance and runs the reactor initializer if the
// module exports one. Start functions are not run.
func (m *Module) Instantiate(ctx context.Context, cfg InstanceConfig) (*Instance, error) {
	if m.NeedsWASI() {
		if err := m.engine.InitWASI(ctx); err != nil {
			return nil, errors.Wrap(errors.PhaseInstantiate, errors.KindInstantiation, err, "wasi")
		}
	}

	modConfig := wazero.NewModuleConfig().
		WithName(cfg.Name).
		WithStartFunctions().
		WithStdout(m.engine.stdout).
		WithStderr(m.engine.stderr).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader)

	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Timeout(errors.PhaseInstantiate, "instantiate", err)
		}
		return nil, errors.New(errors.PhaseInstantiate, errors.KindInstantiation).
			Cause(err).
			Detail("instantiate %q", cfg.Name).
			Build()
	}

	inst := &Instance{
		name:   cfg.Name,
		module: mod,
		funcs:  make(map[string]api.Function),
	}
	if mem := mod.Memory(); mem != nil {
		inst.memory = &Memory{mem: mem}
	}

	if fn := mod.ExportedFunction(contract.ExportReactorInit); fn != nil {
		if _, err := fn.Call(ctx); err != nil {
			_ = mod.Close(context.Background())
			return nil, errors.Trap(contract.ExportReactorInit, err)
		}
	}

	Logger().Debug("instance created", zap.String("name", cfg.Name))
	return inst, nil
}

// Instance is a running Logic Unit.
type Instance struct {
	module api.Module
	memory *Memory
	funcs  map[string]api.Function
	name   string
}

// Name returns the instance name.
func (i *Instance) Name() string {
	return i.name
}

// Function returns an exported function or nil.
func (i *Instance) Function(name string) api.Function {
	if fn, ok := i.funcs[name]; ok {
		return fn
	}
	fn := i.module.ExportedFunction(name)
	if fn != nil {
		i.funcs[name] = fn
	}
	return fn
}

// Call invokes an exported function. A trap or an interrupted call is
// returned as is; timeouts are classified by the caller.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn := i.Function(name)
	if fn == nil {
		return nil, errors.MissingEntryPoint(name)
	}
	return fn.Call(ctx, params...)
}

// Memory returns the exported memory, or nil.
func (i *Instance) Memory() *Memory {
	return i.memory
}

// Closed reports whether the instance was closed, including by an
// interrupted call.
func (i *Instance) Closed() bool {
	return i.module.IsClosed()
}

// Close closes the instance.
func (i *Instance) Close(ctx context.Context) error {
	err := i.module.Close(ctx)
	i.funcs = nil
	Logger().Debug("instance closed", zap.String("name", i.name))
	return err
}

// Memory wraps wazero memory to implement hotswap.Memory
type Memory struct {
	mem api.Memory
}

// Read returns a copy of length bytes at offset.
func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseCall, "memory read", offset, length, m.Size())
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseCall, "memory write", offset, uint32(len(data)), m.Size())
	}
	return nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseCall, "memory read", offset, 4, m.Size())
	}
	return val, nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseCall, "memory write", offset, 4, m.Size())
	}
	return nil
}

func (m *Memory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

var _ hotswap.Memory = (*Memory)(nil)

func valueTypes(vts []api.ValueType) []contract.ValueType {
	if len(vts) == 0 {
		return nil
	}
	out := make([]contract.ValueType, len(vts))
	for i, vt := range vts {
		out[i] = contract.ValueType(vt)
	}
	return out
}
