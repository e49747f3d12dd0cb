// Package hotswap replaces a running program's application logic without
// restarting it and without losing application state.
//
// The logic lives in a Logic Unit: a WebAssembly module that implements the
// Capability Interface defined in package contract. The host keeps the
// application state block and re-attaches it to every new build of the
// unit.
//
// # Architecture Overview
//
//	hotswap/          Root package with the guest Memory interface
//	├── contract/     Shared Contract: messages, state, exports, codecs
//	├── wasm/         WebAssembly binary builder and export scanner
//	├── engine/       wazero integration (compile, instantiate, WASI)
//	├── loader/       Loader and reload protocol, LoadedUnit lifecycle
//	├── host/         Event loop, message queue, commands, watcher
//	├── ui/           bubbletea rendering collaborator
//	├── config/       Configuration (TOML, environment) and logging
//	├── telemetry/    Optional OpenTelemetry trace export
//	├── units/        Programmatically generated Logic Units
//	└── errors/       Structured error taxonomy
//
// # Quick Start
//
//	eng, err := engine.New(ctx, engine.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	ld := loader.New(eng, loader.Locate("build", "counter", ""), loader.Options{})
//	rt := host.New(ld, host.NewLogRenderer(logger), host.Options{})
//	if err := rt.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Reload Protocol
//
// The candidate build is compiled and bound as a second instance while the
// old one keeps serving. Only after the candidate passed every contract
// check is the old unit's unload hook called, the state block attached to
// the candidate, and the old instance closed. A failed candidate leaves
// the running version untouched.
//
// # Thread Safety
//
// The Loader is driven from a single goroutine, the host event loop.
// host.Runtime.Dispatch may be called from any goroutine.
package hotswap
