package contract

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var le = binary.LittleEndian

var (
	ErrTruncated      = errors.New("contract: truncated data")
	ErrTrailing       = errors.New("contract: trailing data")
	ErrUnknownElement = errors.New("contract: unknown view element")
	ErrTooLarge       = errors.New("contract: element count too large")
)

// MaxElements bounds the number of commands or view elements accepted
// from a unit.
const MaxElements = 4096

// Op is a command operation requested by update.
type Op uint32

const (
	OpNone Op = 0
	// OpSchedule delivers Message after Arg milliseconds.
	OpSchedule Op = 1
	// OpQuit asks the host to shut down.
	OpQuit Op = 2
)

func (o Op) String() string {
	switch o {
	case OpNone:
		return "none"
	case OpSchedule:
		return "schedule"
	case OpQuit:
		return "quit"
	default:
		return "op(" + strconv.FormatUint(uint64(o), 10) + ")"
	}
}

// Command is a side effect returned as data; the host executes it.
type Command struct {
	Op      Op
	Arg     int64
	Message Message
}

// Output is what update returns besides mutating state.
type Output struct {
	Commands []Command
}

const commandSize = 4 + 8 + 4 + 8

// EncodeOutput encodes out in the wire format read by DecodeOutput.
func EncodeOutput(out Output) []byte {
	b := make([]byte, 4, 4+len(out.Commands)*commandSize)
	le.PutUint32(b, uint32(len(out.Commands)))
	for _, c := range out.Commands {
		b = le.AppendUint32(b, uint32(c.Op))
		b = le.AppendUint64(b, uint64(c.Arg))
		b = le.AppendUint32(b, uint32(c.Message.Kind))
		b = le.AppendUint64(b, uint64(c.Message.Arg))
	}
	return b
}

// DecodeOutput decodes an Output. Empty input decodes to an empty Output.
func DecodeOutput(b []byte) (Output, error) {
	if len(b) == 0 {
		return Output{}, nil
	}
	r := reader{b: b}
	n, err := r.u32()
	if err != nil {
		return Output{}, err
	}
	if n > MaxElements {
		return Output{}, ErrTooLarge
	}
	if uint64(len(r.b)) < uint64(n)*commandSize {
		return Output{}, ErrTruncated
	}
	out := Output{Commands: make([]Command, 0, n)}
	for i := uint32(0); i < n; i++ {
		op, _ := r.u32()
		arg, _ := r.u64()
		kind, _ := r.u32()
		marg, _ := r.u64()
		out.Commands = append(out.Commands, Command{
			Op:      Op(op),
			Arg:     int64(arg),
			Message: Message{Kind: Kind(kind), Arg: int64(marg)},
		})
	}
	if len(r.b) != 0 {
		return Output{}, ErrTrailing
	}
	return out, nil
}

// ElementType tags a view element.
type ElementType uint8

const (
	ElementText   ElementType = 1
	ElementInt    ElementType = 2
	ElementBreak  ElementType = 3
	ElementButton ElementType = 4
)

// Element is one item of a view description. Text holds the text or the
// button label; Value holds the integer; Key and Message describe a button.
type Element struct {
	Text    string
	Key     string
	Value   int64
	Message Message
	Type    ElementType
}

// Text returns a text element.
func Text(s string) Element { return Element{Type: ElementText, Text: s} }

// Int returns an integer element.
func Int(v int64) Element { return Element{Type: ElementInt, Value: v} }

// Break returns a line break element.
func Break() Element { return Element{Type: ElementBreak} }

// Button returns a button element bound to key that dispatches msg.
func Button(key, label string, msg Message) Element {
	return Element{Type: ElementButton, Key: key, Text: label, Message: msg}
}

// View is the description produced by a unit's view entry point.
type View struct {
	Elements []Element
}

// Buttons returns the button elements in order.
func (v View) Buttons() []Element {
	var out []Element
	for _, e := range v.Elements {
		if e.Type == ElementButton {
			out = append(out, e)
		}
	}
	return out
}

// String renders the view as plain text, one line per Break.
func (v View) String() string {
	var b strings.Builder
	for _, e := range v.Elements {
		switch e.Type {
		case ElementText:
			b.WriteString(e.Text)
		case ElementInt:
			b.WriteString(strconv.FormatInt(e.Value, 10))
		case ElementBreak:
			b.WriteByte('\n')
		case ElementButton:
			fmt.Fprintf(&b, "[%s] %s ", e.Key, e.Text)
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// EncodeView encodes v in the wire format read by DecodeView.
func EncodeView(v View) []byte {
	b := le.AppendUint32(nil, uint32(len(v.Elements)))
	for _, e := range v.Elements {
		b = append(b, byte(e.Type))
		switch e.Type {
		case ElementText:
			b = appendString(b, e.Text)
		case ElementInt:
			b = le.AppendUint64(b, uint64(e.Value))
		case ElementBreak:
		case ElementButton:
			b = le.AppendUint32(b, uint32(e.Message.Kind))
			b = le.AppendUint64(b, uint64(e.Message.Arg))
			b = appendString(b, e.Key)
			b = appendString(b, e.Text)
		}
	}
	return b
}

// DecodeView decodes a View.
func DecodeView(b []byte) (View, error) {
	r := reader{b: b}
	n, err := r.u32()
	if err != nil {
		return View{}, err
	}
	if n > MaxElements {
		return View{}, ErrTooLarge
	}
	v := View{Elements: make([]Element, 0, n)}
	for i := uint32(0); i < n; i++ {
		tag, err := r.byte()
		if err != nil {
			return View{}, err
		}
		e := Element{Type: ElementType(tag)}
		switch e.Type {
		case ElementText:
			if e.Text, err = r.str(); err != nil {
				return View{}, err
			}
		case ElementInt:
			u, err := r.u64()
			if err != nil {
				return View{}, err
			}
			e.Value = int64(u)
		case ElementBreak:
		case ElementButton:
			kind, err := r.u32()
			if err != nil {
				return View{}, err
			}
			arg, err := r.u64()
			if err != nil {
				return View{}, err
			}
			e.Message = Message{Kind: Kind(kind), Arg: int64(arg)}
			if e.Key, err = r.str(); err != nil {
				return View{}, err
			}
			if e.Text, err = r.str(); err != nil {
				return View{}, err
			}
		default:
			return View{}, fmt.Errorf("%w: tag %d", ErrUnknownElement, tag)
		}
		v.Elements = append(v.Elements, e)
	}
	if len(r.b) != 0 {
		return View{}, ErrTrailing
	}
	return v, nil
}

func appendString(b []byte, s string) []byte {
	b = le.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

type reader struct {
	b []byte
}

func (r *reader) byte() (byte, error) {
	if len(r.b) < 1 {
		return 0, ErrTruncated
	}
	v := r.b[0]
	r.b = r.b[1:]
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if len(r.b) < 4 {
		return 0, ErrTruncated
	}
	v := le.Uint32(r.b)
	r.b = r.b[4:]
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if len(r.b) < 8 {
		return 0, ErrTruncated
	}
	v := le.Uint64(r.b)
	r.b = r.b[8:]
	return v, nil
}

func (r *reader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if uint64(len(r.b)) < uint64(n) {
		return "", ErrTruncated
	}
	s := string(r.b[:n])
	r.b = r.b[n:]
	return s, nil
}
