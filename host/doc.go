// Package host runs a Logic Unit.
//
// A Runtime owns the message queue and the single goroutine that calls
// into the unit. It loads the unit, renders the first view, then loops:
//
//	queued message -> update -> commands -> view -> Renderer
//	artifact change -> Loader.Changed -> Loader.Reload -> view
//
// A watcher goroutine polls the artifact every PollInterval and only
// signals the loop, so a reload always happens between two messages and
// messages dispatched meanwhile reach the new unit in order.
//
// Renderers receive view descriptions; renderers that also implement
// StatusRenderer are told about loads, reloads and failures.
//
//	rt := host.New(ld, host.NewLogRenderer(logger), host.Options{})
//	go rt.Dispatch(contract.Message{Kind: counter.Increment})
//	err := rt.Run(ctx)
package host
