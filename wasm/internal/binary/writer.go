package binary

import "encoding/binary"

// Writer appends WebAssembly binary encodings to a growing byte slice.
// The zero value is ready to use.
type Writer struct {
	b []byte
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{b: make([]byte, 0, 64)}
}

// Bytes returns the encoded bytes. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte { return w.b }

func (w *Writer) Len() int { return len(w.b) }

func (w *Writer) Byte(b byte) { w.b = append(w.b, b) }

func (w *Writer) WriteBytes(data []byte) { w.b = append(w.b, data...) }

// WriteU32 appends v as unsigned LEB128.
func (w *Writer) WriteU32(v uint32) {
	for v >= 0x80 {
		w.b = append(w.b, byte(v)|0x80)
		v >>= 7
	}
	w.b = append(w.b, byte(v))
}

// WriteS32 appends v as signed LEB128.
func (w *Writer) WriteS32(v int32) { w.WriteS64(int64(v)) }

// WriteS64 appends v as signed LEB128. Encoding stops once the remaining
// bits are all copies of the sign bit already emitted.
func (w *Writer) WriteS64(v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		w.b = append(w.b, b)
		if done {
			return
		}
	}
}

// WriteName appends a length-prefixed UTF-8 name.
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.b = append(w.b, s...)
}

// WriteU32LE appends v as four little-endian bytes.
func (w *Writer) WriteU32LE(v uint32) {
	w.b = binary.LittleEndian.AppendUint32(w.b, v)
}

// WriteSized appends the bytes of inner prefixed with their length, the
// framing used by sections and function bodies.
func (w *Writer) WriteSized(inner *Writer) {
	w.WriteU32(uint32(inner.Len()))
	w.WriteBytes(inner.Bytes())
}
