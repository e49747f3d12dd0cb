package loader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/hotswap"
	"github.com/wippyai/hotswap/contract"
	"github.com/wippyai/hotswap/engine"
	"github.com/wippyai/hotswap/errors"
)

// ErrUnitClosed matches errors returned by calls into a closed unit.
var ErrUnitClosed = errors.Closed("")

// Unit is one loaded and bound build of the Logic Unit.
//
// Calls hold the read side of the guard for their whole duration and Close
// takes the write side, so a unit is never closed while a call into it is
// in flight, and no call reaches the instance after Close.
type Unit struct {
	inst      *engine.Instance
	mem       hotswap.Memory
	log       *zap.Logger
	marker    Marker
	name      string
	guard     sync.RWMutex
	calls     atomic.Uint64
	gen       uint64
	statePtr  uint32
	stateSize uint32
	hasUnload bool
	closed    bool
}

// Generation is the load sequence number of this unit, starting at 1.
func (u *Unit) Generation() uint64 {
	return u.gen
}

// Name is the instance name, unique per loader.
func (u *Unit) Name() string {
	return u.name
}

// Marker identifies the artifact version the unit was loaded from.
func (u *Unit) Marker() Marker {
	return u.marker
}

// Calls returns the number of calls that reached the instance.
func (u *Unit) Calls() uint64 {
	return u.calls.Load()
}

// Closed reports whether the unit was closed.
func (u *Unit) Closed() bool {
	u.guard.RLock()
	defer u.guard.RUnlock()
	return u.closed
}

// StateWindow returns the offset and size of the unit's state window.
func (u *Unit) StateWindow() (ptr, size uint32) {
	return u.statePtr, u.stateSize
}

// HasUnload reports whether the unit exports the unload hook.
func (u *Unit) HasUnload() bool {
	return u.hasUnload
}

func (u *Unit) call(ctx context.Context, timeout time.Duration, name string, params ...uint64) (uint64, error) {
	u.guard.RLock()
	defer u.guard.RUnlock()
	if u.closed {
		return 0, errors.Closed(name)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	u.calls.Add(1)
	res, err := u.inst.Call(ctx, name, params...)
	if err != nil {
		if ctx.Err() != nil {
			return 0, errors.Timeout(errors.PhaseCall, name, err)
		}
		return 0, errors.Trap(name, err)
	}
	if len(res) == 0 {
		return 0, nil
	}
	return res[0], nil
}

// attach copies the host state block into the unit's state window.
func (u *Unit) attach(state contract.State) error {
	u.guard.RLock()
	defer u.guard.RUnlock()
	if u.closed {
		return errors.Closed("attach")
	}
	return u.mem.Write(u.statePtr, state)
}

// sync copies the unit's state window back into the host block in place.
func (u *Unit) sync(state contract.State) error {
	u.guard.RLock()
	defer u.guard.RUnlock()
	if u.closed {
		return errors.Closed("sync")
	}
	b, err := u.mem.Read(u.statePtr, u.stateSize)
	if err != nil {
		return err
	}
	copy(state, b)
	return nil
}

// read copies a packed (ptr, len) result out of guest memory.
func (u *Unit) read(packed uint64, export string) ([]byte, error) {
	if packed == 0 {
		return nil, nil
	}
	ptr, n := contract.Unpack(packed)
	u.guard.RLock()
	defer u.guard.RUnlock()
	if u.closed {
		return nil, errors.Closed(export)
	}
	b, err := u.mem.Read(ptr, n)
	if err != nil {
		return nil, errors.New(errors.PhaseCall, errors.KindOutOfBounds).
			Export(export).
			Cause(err).
			Detail("result [%d, +%d)", ptr, n).
			Build()
	}
	return b, nil
}

// close waits for in-flight calls and closes the instance. Idempotent.
func (u *Unit) close(ctx context.Context) error {
	u.guard.Lock()
	defer u.guard.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	err := u.inst.Close(ctx)
	u.log.Debug("unit closed",
		zap.String("name", u.name),
		zap.Uint64("generation", u.gen),
		zap.Uint64("calls", u.calls.Load()))
	return err
}
