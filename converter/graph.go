package converter

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"sort"
)

import (
	"github.com/timtadh/offheap/errors"
)

// Graph is a structural binary codec. It walks the value's object graph
// by reflection. Every pointer, map and slice gets an id the first time it
// is seen and later references to it are written as back references, so
// shared substructure is stored once and decodes shared, and cyclic
// graphs terminate. Two slices are the same reference when they start at
// the same address with the same length and type.
//
// Map entries are written in the order of their encoded keys, then of
// their encoded values, which makes the encoding of a value deterministic.
// Entries whose keys and values encode alike on their own keep an
// arbitrary order; this only shows when one of them is also referenced
// from elsewhere in the graph. Unexported struct fields are
// skipped and decode to their zero value. Values stored behind an
// interface must have a registered type (see Register). Channels,
// functions and unsafe pointers cannot be encoded.
type Graph[V any] struct{}

const graphVersion byte = 2

// reference tags for pointers, maps, slices and interfaces
const (
	tagNil byte = iota
	tagNew
	tagRef
)

func (Graph[V]) Encode(value V) ([]byte, error) {
	rv := reflect.ValueOf(&value).Elem()
	if isNil(rv) {
		return nil, nil
	}
	enc := newEncoder()
	enc.buf = append(enc.buf, graphVersion)
	if err := enc.value(rv); err != nil {
		return nil, errors.Wrap(errors.CodecError, err, "encoding %v", rv.Type())
	}
	return enc.buf, nil
}

func (Graph[V]) Decode(data []byte) (value V, err error) {
	if data == nil {
		return value, nil
	}
	rv := reflect.ValueOf(&value).Elem()
	dec := &decoder{buf: data}
	if v, err := dec.byte(); err != nil {
		return value, errors.Wrap(errors.CodecError, err, "decoding %v", rv.Type())
	} else if v != graphVersion {
		return value, errors.Codecf("unknown encoding version %d", v)
	}
	if err := dec.value(rv); err != nil {
		var zero V
		return zero, errors.Wrap(errors.CodecError, err, "decoding %v", rv.Type())
	}
	if dec.off != len(dec.buf) {
		var zero V
		return zero, errors.Codecf("%d trailing bytes after %v", len(dec.buf)-dec.off, rv.Type())
	}
	return value, nil
}

type ref struct {
	p uintptr
	n int
	t reflect.Type
}

type encoder struct {
	buf  []byte
	ids  map[ref]uint64
	next uint64
}

func newEncoder() *encoder {
	return &encoder{ids: make(map[ref]uint64)}
}

func (e *encoder) uvarint(x uint64) {
	e.buf = binary.AppendUvarint(e.buf, x)
}

func (e *encoder) string(s string) {
	e.uvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) float(f float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(f))
}

// seen writes a back reference and reports true when v was written
// before; otherwise it writes tagNew and gives v the next id.
func (e *encoder) seen(v reflect.Value) bool {
	r := ref{p: v.Pointer(), t: v.Type()}
	if v.Kind() == reflect.Slice {
		r.n = v.Len()
	}
	if id, has := e.ids[r]; has {
		e.buf = append(e.buf, tagRef)
		e.uvarint(id)
		return true
	}
	e.ids[r] = e.next
	e.next++
	e.buf = append(e.buf, tagNew)
	return false
}

func (e *encoder) value(v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			e.buf = append(e.buf, 1)
		} else {
			e.buf = append(e.buf, 0)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf = binary.AppendVarint(e.buf, v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.uvarint(v.Uint())
	case reflect.Float32, reflect.Float64:
		e.float(v.Float())
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		e.float(real(c))
		e.float(imag(c))
	case reflect.String:
		e.string(v.String())
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := e.value(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Slice:
		if v.IsNil() {
			e.buf = append(e.buf, tagNil)
			return nil
		}
		if e.seen(v) {
			return nil
		}
		e.uvarint(uint64(v.Len()))
		if v.Type().Elem().Kind() == reflect.Uint8 {
			e.buf = append(e.buf, v.Bytes()...)
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := e.value(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		if v.IsNil() {
			e.buf = append(e.buf, tagNil)
			return nil
		}
		if e.seen(v) {
			return nil
		}
		return e.mapEntries(v)
	case reflect.Pointer:
		if v.IsNil() {
			e.buf = append(e.buf, tagNil)
			return nil
		}
		if e.seen(v) {
			return nil
		}
		return e.value(v.Elem())
	case reflect.Interface:
		if v.IsNil() {
			e.buf = append(e.buf, tagNil)
			return nil
		}
		elem := v.Elem()
		name, err := nameOf(elem.Type())
		if err != nil {
			return err
		}
		e.buf = append(e.buf, tagNew)
		e.string(name)
		return e.value(elem)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := e.value(v.Field(i)); err != nil {
				return err
			}
		}
	default:
		return errors.Codecf("cannot encode a value of type %v", v.Type())
	}
	return nil
}

func (e *encoder) mapEntries(v reflect.Value) error {
	type entry struct {
		key        reflect.Value
		kbuf, vbuf []byte
	}
	keys := v.MapKeys()
	entries := make([]entry, 0, len(keys))
	for _, k := range keys {
		ke := newEncoder()
		if err := ke.value(k); err != nil {
			return err
		}
		ve := newEncoder()
		if err := ve.value(v.MapIndex(k)); err != nil {
			return err
		}
		entries = append(entries, entry{key: k, kbuf: ke.buf, vbuf: ve.buf})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if c := bytes.Compare(entries[i].kbuf, entries[j].kbuf); c != 0 {
			return c < 0
		}
		return bytes.Compare(entries[i].vbuf, entries[j].vbuf) < 0
	})
	e.uvarint(uint64(len(entries)))
	for _, ent := range entries {
		if err := e.value(ent.key); err != nil {
			return err
		}
		if err := e.value(v.MapIndex(ent.key)); err != nil {
			return err
		}
	}
	return nil
}

type decoder struct {
	buf  []byte
	off  int
	refs []reflect.Value
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *decoder) byte() (byte, error) {
	if d.off >= len(d.buf) {
		return 0, errors.Codecf("unexpected end of data at %d", d.off)
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) bytes(n uint64) ([]byte, error) {
	if n > uint64(d.remaining()) {
		return nil, errors.Codecf("need %d bytes at %d, have %d", n, d.off, d.remaining())
	}
	b := d.buf[d.off : d.off+int(n)]
	d.off += int(n)
	return b, nil
}

func (d *decoder) uvarint() (uint64, error) {
	x, n := binary.Uvarint(d.buf[d.off:])
	if n <= 0 {
		return 0, errors.Codecf("bad uvarint at %d", d.off)
	}
	d.off += n
	return x, nil
}

func (d *decoder) varint() (int64, error) {
	x, n := binary.Varint(d.buf[d.off:])
	if n <= 0 {
		return 0, errors.Codecf("bad varint at %d", d.off)
	}
	d.off += n
	return x, nil
}

func (d *decoder) float() (float64, error) {
	b, err := d.bytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

func (d *decoder) string() (string, error) {
	n, err := d.uvarint()
	if err != nil {
		return "", err
	}
	b, err := d.bytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// length reads an element count and refuses counts the remaining bytes
// could not possibly hold.
func (d *decoder) length(n uint64, elem reflect.Type) (int, error) {
	if n > uint64(d.remaining()) && nonEmpty(elem) {
		return 0, errors.Codecf("length %d at %d exceeds the remaining %d bytes", n, d.off, d.remaining())
	}
	if n > math.MaxInt32 {
		return 0, errors.Codecf("length %d at %d is too large", n, d.off)
	}
	return int(n), nil
}

// backref resolves a tagRef to a previously decoded value of type t.
func (d *decoder) backref(t reflect.Type) (reflect.Value, error) {
	id, err := d.uvarint()
	if err != nil {
		return reflect.Value{}, err
	}
	if id >= uint64(len(d.refs)) {
		return reflect.Value{}, errors.Codecf("reference %d to an undecoded value", id)
	}
	r := d.refs[id]
	if r.Type() != t {
		return reflect.Value{}, errors.Codecf("reference %d is a %v not a %v", id, r.Type(), t)
	}
	return r, nil
}

func (d *decoder) tag() (byte, error) {
	tag, err := d.byte()
	if err != nil {
		return 0, err
	}
	if tag > tagRef {
		return 0, errors.Codecf("bad tag %d at %d", tag, d.off-1)
	}
	return tag, nil
}

func (d *decoder) value(v reflect.Value) error {
	t := v.Type()
	switch v.Kind() {
	case reflect.Bool:
		b, err := d.byte()
		if err != nil {
			return err
		}
		if b > 1 {
			return errors.Codecf("bad bool %d at %d", b, d.off-1)
		}
		v.SetBool(b == 1)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		x, err := d.varint()
		if err != nil {
			return err
		}
		if v.OverflowInt(x) {
			return errors.Codecf("%d overflows %v", x, t)
		}
		v.SetInt(x)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		x, err := d.uvarint()
		if err != nil {
			return err
		}
		if v.OverflowUint(x) {
			return errors.Codecf("%d overflows %v", x, t)
		}
		v.SetUint(x)
	case reflect.Float32, reflect.Float64:
		f, err := d.float()
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.Complex64, reflect.Complex128:
		re, err := d.float()
		if err != nil {
			return err
		}
		im, err := d.float()
		if err != nil {
			return err
		}
		v.SetComplex(complex(re, im))
	case reflect.String:
		s, err := d.string()
		if err != nil {
			return err
		}
		v.SetString(s)
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := d.value(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Slice:
		return d.slice(v)
	case reflect.Map:
		return d.mapEntries(v)
	case reflect.Pointer:
		tag, err := d.tag()
		if err != nil {
			return err
		}
		switch tag {
		case tagNil:
			v.SetZero()
		case tagRef:
			r, err := d.backref(t)
			if err != nil {
				return err
			}
			v.Set(r)
		default:
			p := reflect.New(t.Elem())
			d.refs = append(d.refs, p)
			if err := d.value(p.Elem()); err != nil {
				return err
			}
			v.Set(p)
		}
	case reflect.Interface:
		tag, err := d.tag()
		if err != nil {
			return err
		}
		if tag == tagNil {
			v.SetZero()
			return nil
		} else if tag != tagNew {
			return errors.Codecf("bad interface tag %d at %d", tag, d.off-1)
		}
		name, err := d.string()
		if err != nil {
			return err
		}
		ct, err := typeOf(name)
		if err != nil {
			return err
		}
		if !ct.AssignableTo(t) {
			return errors.Codecf("%v is not assignable to %v", ct, t)
		}
		x := reflect.New(ct).Elem()
		if err := d.value(x); err != nil {
			return err
		}
		v.Set(x)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := d.value(v.Field(i)); err != nil {
				return err
			}
		}
	default:
		return errors.Codecf("cannot decode a value of type %v", t)
	}
	return nil
}

func (d *decoder) slice(v reflect.Value) error {
	t := v.Type()
	tag, err := d.tag()
	if err != nil {
		return err
	}
	switch tag {
	case tagNil:
		v.SetZero()
		return nil
	case tagRef:
		r, err := d.backref(t)
		if err != nil {
			return err
		}
		v.Set(r)
		return nil
	}
	n, err := d.uvarint()
	if err != nil {
		return err
	}
	length, err := d.length(n, t.Elem())
	if err != nil {
		return err
	}
	s := reflect.MakeSlice(t, length, length)
	d.refs = append(d.refs, s)
	if t.Elem().Kind() == reflect.Uint8 {
		b, err := d.bytes(uint64(length))
		if err != nil {
			return err
		}
		copy(s.Bytes(), b)
		v.Set(s)
		return nil
	}
	for i := 0; i < length; i++ {
		if err := d.value(s.Index(i)); err != nil {
			return err
		}
	}
	v.Set(s)
	return nil
}

func (d *decoder) mapEntries(v reflect.Value) error {
	t := v.Type()
	tag, err := d.tag()
	if err != nil {
		return err
	}
	switch tag {
	case tagNil:
		v.SetZero()
		return nil
	case tagRef:
		r, err := d.backref(t)
		if err != nil {
			return err
		}
		v.Set(r)
		return nil
	}
	n, err := d.uvarint()
	if err != nil {
		return err
	}
	length, err := d.length(n, t.Key())
	if err != nil {
		return err
	}
	m := reflect.MakeMapWithSize(t, length)
	d.refs = append(d.refs, m)
	v.Set(m)
	for i := 0; i < length; i++ {
		k := reflect.New(t.Key()).Elem()
		if err := d.value(k); err != nil {
			return err
		}
		x := reflect.New(t.Elem()).Elem()
		if err := d.value(x); err != nil {
			return err
		}
		m.SetMapIndex(k, x)
	}
	return nil
}

// nonEmpty reports whether every value of t encodes to at least one byte.
func nonEmpty(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Array:
		return t.Len() > 0 && nonEmpty(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.IsExported() && nonEmpty(f.Type) {
				return true
			}
		}
		return false
	}
	return true
}
