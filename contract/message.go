package contract

import "fmt"

// Kind identifies a message. Kinds below KindUser are reserved for
// messages generated by the host.
type Kind uint32

const (
	KindNone Kind = 0
	// KindTick is delivered by host timers (see OpSchedule).
	KindTick Kind = 1
	// KindKey carries a raw key press; Arg is the rune.
	KindKey Kind = 2
	// KindUser is the first kind available to units.
	KindUser Kind = 0x100
)

// Message is one unit of input dispatched into the active unit.
// It is a value; units must not keep references to it.
type Message struct {
	Kind Kind
	Arg  int64
}

func (m Message) String() string {
	switch m.Kind {
	case KindNone:
		return "none"
	case KindTick:
		return fmt.Sprintf("tick(%d)", m.Arg)
	case KindKey:
		return fmt.Sprintf("key(%q)", rune(m.Arg))
	default:
		return fmt.Sprintf("msg(%#x,%d)", uint32(m.Kind), m.Arg)
	}
}

// State is the layout-stable application state block. The host allocates
// it once and keeps the same block across every reload; units see it
// through their state window.
type State []byte

// Clone returns an independent copy of s.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	c := make(State, len(s))
	copy(c, s)
	return c
}

// Int32 reads a little-endian int32 at off.
func (s State) Int32(off int) int32 {
	return int32(le.Uint32(s[off:]))
}

// PutInt32 writes a little-endian int32 at off.
func (s State) PutInt32(off int, v int32) {
	le.PutUint32(s[off:], uint32(v))
}

// Int64 reads a little-endian int64 at off.
func (s State) Int64(off int) int64 {
	return int64(le.Uint64(s[off:]))
}

// PutInt64 writes a little-endian int64 at off.
func (s State) PutInt64(off int, v int64) {
	le.PutUint64(s[off:], uint64(v))
}
