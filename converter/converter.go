// Package converter turns typed values into the byte records the storage
// engine holds and back.
//
// A nil value (nil pointer, map, slice or interface) encodes to a nil
// byte slice, the engine's null marker, and a nil byte slice decodes to
// the zero value. Any failure is an errors.CodecError.
package converter

import (
	"bytes"
	"encoding/gob"
	"reflect"
)

import (
	"github.com/timtadh/offheap/errors"
)

type Converter[V any] interface {
	Encode(value V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// Default is the converter collections use when none is given: the
// structural Graph codec.
func Default[V any]() Converter[V] {
	return Graph[V]{}
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// IsNil reports whether value encodes to the null marker.
func IsNil[V any](value V) bool {
	return isNil(reflect.ValueOf(&value).Elem())
}

// Gob encodes with encoding/gob. It is smaller than Graph for flat
// values but does not preserve sharing and cannot encode cycles.
// Concrete types stored behind interfaces must be gob.Register-ed.
type Gob[V any] struct{}

func (Gob[V]) Encode(value V) ([]byte, error) {
	if IsNil(value) {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return nil, errors.Wrap(errors.CodecError, err, "gob encode")
	}
	return buf.Bytes(), nil
}

func (Gob[V]) Decode(data []byte) (value V, err error) {
	if data == nil {
		return value, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&value); err != nil {
		var zero V
		return zero, errors.Wrap(errors.CodecError, err, "gob decode")
	}
	return value, nil
}

// Bytes stores byte slices as they are.
type Bytes struct{}

func (Bytes) Encode(value []byte) ([]byte, error) {
	return value, nil
}

func (Bytes) Decode(data []byte) ([]byte, error) {
	return data, nil
}

// String stores the bytes of a string. The empty string is stored as an
// empty record, not as null.
type String struct{}

func (String) Encode(value string) ([]byte, error) {
	return append(make([]byte, 0, len(value)), value...), nil
}

func (String) Decode(data []byte) (string, error) {
	return string(data), nil
}

type funcs[V any] struct {
	serialize   func(V) []byte
	deserialize func([]byte) V
}

// Funcs adapts a serializer and deserializer pair. deserialize is never
// called with nil: nil decodes to the zero value.
func Funcs[V any](serialize func(V) []byte, deserialize func([]byte) V) Converter[V] {
	return funcs[V]{serialize: serialize, deserialize: deserialize}
}

func (f funcs[V]) Encode(value V) ([]byte, error) {
	if IsNil(value) {
		return nil, nil
	}
	return f.serialize(value), nil
}

func (f funcs[V]) Decode(data []byte) (value V, err error) {
	if data == nil {
		return value, nil
	}
	return f.deserialize(data), nil
}
