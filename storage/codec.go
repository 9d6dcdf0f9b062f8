package storage

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// encoder writes mus-go encoded fields. With a nil buffer it only measures,
// so the same field sequence computes the size and then fills the buffer.
type encoder struct {
	bs []byte
	n  int
}

// encode runs fields twice: once to size the buffer and once to fill it.
func encode(fields func(e *encoder)) []byte {
	var sizer encoder
	fields(&sizer)
	e := encoder{bs: make([]byte, sizer.n)}
	fields(&e)
	return e.bs
}

func (e *encoder) uint64(v uint64) {
	if e.bs == nil {
		e.n += varint.Uint64.Size(v)
		return
	}
	e.n += varint.Uint64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) int64(v int64) {
	if e.bs == nil {
		e.n += varint.Int64.Size(v)
		return
	}
	e.n += varint.Int64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) int(v int) {
	e.int64(int64(v))
}

func (e *encoder) bool(v bool) {
	if e.bs == nil {
		e.n += ord.Bool.Size(v)
		return
	}
	e.n += ord.Bool.Marshal(v, e.bs[e.n:])
}

func (e *encoder) float32(v float32) {
	if e.bs == nil {
		e.n += raw.Float32.Size(v)
		return
	}
	e.n += raw.Float32.Marshal(v, e.bs[e.n:])
}

func (e *encoder) string(v string) {
	if e.bs == nil {
		e.n += ord.String.Size(v)
		return
	}
	e.n += ord.String.Marshal(v, e.bs[e.n:])
}

// time stores microseconds since the epoch; the zero time is stored as 0.
func (e *encoder) time(t time.Time) {
	if t.IsZero() {
		e.int64(0)
		return
	}
	e.int64(t.UnixMicro())
}

func (e *encoder) vector(v []float32) {
	e.int(len(v))
	for _, f := range v {
		e.float32(f)
	}
}

func (e *encoder) stringMap(m map[string]string) {
	e.int(len(m))
	for k, v := range m {
		e.string(k)
		e.string(v)
	}
}

// decoder reads fields in the order an encoder wrote them.
// The first error sticks and every later read returns a zero value.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) remaining() []byte {
	return d.bs[d.n:]
}

func (d *decoder) uint64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.remaining())
	d.n += n
	d.err = err
	return v
}

func (d *decoder) int64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.remaining())
	d.n += n
	d.err = err
	return v
}

func (d *decoder) int() int {
	return int(d.int64())
}

func (d *decoder) bool() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.remaining())
	d.n += n
	d.err = err
	return v
}

func (d *decoder) float32() float32 {
	if d.err != nil {
		return 0
	}
	v, n, err := raw.Float32.Unmarshal(d.remaining())
	d.n += n
	d.err = err
	return v
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	// ord.String adds the length to its prefix size before bounds checking,
	// which wraps for lengths near MaxInt.
	l, n, err := varint.PositiveInt.Unmarshal(d.remaining())
	if err == nil && (l < 0 || l > len(d.remaining())-n) {
		d.err = ErrTruncatedData
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.remaining())
	d.n += n
	d.err = err
	return v
}

func (d *decoder) time() time.Time {
	micros := d.int64()
	if d.err != nil || micros == 0 {
		return time.Time{}
	}
	return time.UnixMicro(micros).UTC()
}

// length reads a collection length and rejects values that cannot fit in
// the remaining bytes given the minimum encoded size of one element.
func (d *decoder) length(minElemSize int) int {
	l := d.int()
	if d.err != nil {
		return 0
	}
	if l < 0 || l > len(d.remaining())/minElemSize {
		d.err = ErrTruncatedData
		return 0
	}
	return l
}

func (d *decoder) vector() []float32 {
	l := d.length(4)
	if d.err != nil || l == 0 {
		return nil
	}
	v := make([]float32, l)
	for i := range v {
		v[i] = d.float32()
	}
	return v
}

func (d *decoder) stringMap() map[string]string {
	l := d.length(2)
	if d.err != nil || l == 0 {
		return nil
	}
	m := make(map[string]string, l)
	for range l {
		k := d.string()
		m[k] = d.string()
	}
	return m
}
