package converter

import (
	"fmt"
	"reflect"
	"sync"
)

import (
	"github.com/timtadh/offheap/errors"
)

// the registry maps the concrete types the Graph codec may find behind
// interfaces to the names written in their place.
var registry = struct {
	sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}{
	byName: make(map[string]reflect.Type),
	byType: make(map[reflect.Type]string),
}

func init() {
	for _, v := range []any{
		false,
		int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0), uintptr(0),
		float32(0), float64(0),
		complex64(0), complex128(0),
		"",
		[]byte(nil),
		[]string(nil),
		[]int(nil),
		[]int64(nil),
		[]float64(nil),
		[]any(nil),
		map[string]any(nil),
		map[string]string(nil),
		map[string]int(nil),
	} {
		Register(v)
	}
}

// Register records the concrete type of value under its default name: the
// package path qualified type name, with a leading * for pointers, or the
// type's string for unnamed types. It panics if the name or the type is
// already registered differently.
func Register(value any) {
	t := reflect.TypeOf(value)
	if t == nil {
		panic("converter: attempt to register a nil value")
	}
	RegisterName(defaultName(t), value)
}

// RegisterName records the concrete type of value under name.
func RegisterName(name string, value any) {
	if name == "" {
		panic("converter: attempt to register an empty name")
	}
	t := reflect.TypeOf(value)
	if t == nil {
		panic("converter: attempt to register a nil value")
	}
	registry.Lock()
	defer registry.Unlock()
	if have, has := registry.byType[t]; has && have != name {
		panic(fmt.Sprintf("converter: registering duplicate types for %q: %v", name, t))
	}
	if have, has := registry.byName[name]; has && have != t {
		panic(fmt.Sprintf("converter: registering duplicate names for %v: %q", t, name))
	}
	registry.byType[t] = name
	registry.byName[name] = t
}

func defaultName(t reflect.Type) string {
	star := ""
	if t.Name() == "" && t.Kind() == reflect.Pointer {
		star = "*"
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return star + t.String()
	}
	return star + t.PkgPath() + "." + t.Name()
}

func nameOf(t reflect.Type) (string, error) {
	registry.RLock()
	defer registry.RUnlock()
	name, has := registry.byType[t]
	if !has {
		return "", errors.Codecf("type not registered for interface: %v", t)
	}
	return name, nil
}

func typeOf(name string) (reflect.Type, error) {
	registry.RLock()
	defer registry.RUnlock()
	t, has := registry.byName[name]
	if !has {
		return nil, errors.Codecf("name not registered for interface: %q", name)
	}
	return t, nil
}
