package wasm

import "github.com/wippyai/hotswap/wasm/internal/binary"

// Code accumulates the instructions of one function body.
// Methods return the receiver so bodies read top to bottom.
type Code struct {
	w *binary.Writer
}

// NewCode creates an empty instruction sequence.
func NewCode() *Code {
	return &Code{w: binary.NewWriter()}
}

// Bytes returns the encoded instructions terminated with OpEnd.
func (c *Code) Bytes() []byte {
	out := make([]byte, c.w.Len(), c.w.Len()+1)
	copy(out, c.w.Bytes())
	return append(out, OpEnd)
}

// Body wraps the instructions into a function body with the given locals.
func (c *Code) Body(locals ...LocalEntry) FuncBody {
	return FuncBody{Locals: locals, Code: c.Bytes()}
}

func (c *Code) op(b byte) *Code {
	c.w.Byte(b)
	return c
}

func (c *Code) I32Const(v int32) *Code {
	c.w.Byte(OpI32Const)
	c.w.WriteS32(v)
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.w.Byte(OpI64Const)
	c.w.WriteS64(v)
	return c
}

func (c *Code) LocalGet(idx uint32) *Code {
	c.w.Byte(OpLocalGet)
	c.w.WriteU32(idx)
	return c
}

func (c *Code) LocalSet(idx uint32) *Code {
	c.w.Byte(OpLocalSet)
	c.w.WriteU32(idx)
	return c
}

// I32Load loads an aligned i32 from the address on the stack plus offset.
func (c *Code) I32Load(offset uint32) *Code {
	c.w.Byte(OpI32Load)
	c.w.WriteU32(2)
	c.w.WriteU32(offset)
	return c
}

// I32Store stores an aligned i32: [addr, value] -> [].
func (c *Code) I32Store(offset uint32) *Code {
	c.w.Byte(OpI32Store)
	c.w.WriteU32(2)
	c.w.WriteU32(offset)
	return c
}

// I64Store stores an aligned i64: [addr, value] -> [].
func (c *Code) I64Store(offset uint32) *Code {
	c.w.Byte(OpI64Store)
	c.w.WriteU32(3)
	c.w.WriteU32(offset)
	return c
}

func (c *Code) I32Add() *Code { return c.op(OpI32Add) }
func (c *Code) I32Sub() *Code { return c.op(OpI32Sub) }
func (c *Code) I32Eq() *Code { return c.op(OpI32Eq) }
func (c *Code) I64ExtendI32S() *Code { return c.op(OpI64ExtendS) }
func (c *Code) Drop() *Code { return c.op(OpDrop) }
func (c *Code) Return() *Code { return c.op(OpReturn) }
func (c *Code) Unreachable() *Code { return c.op(OpUnreachable) }
func (c *Code) Else() *Code { return c.op(OpElse) }
func (c *Code) End() *Code { return c.op(OpEnd) }

// Loop opens a loop block with no result; Br(0) inside it jumps to the start.
func (c *Code) Loop() *Code {
	c.w.Byte(OpLoop)
	c.w.Byte(BlockVoid)
	return c
}

// Br branches to the enclosing block at depth.
func (c *Code) Br(depth uint32) *Code {
	c.w.Byte(OpBr)
	c.w.WriteU32(depth)
	return c
}

// If opens a block with no result that runs when the i32 on the stack is non-zero.
func (c *Code) If() *Code {
	c.w.Byte(OpIf)
	c.w.Byte(BlockVoid)
	return c
}
