package pool

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"reflect"
	"sync"
)

// registry maps task names to functions and back. Subprocess workers
// receive only the name; the function body never crosses the boundary.
type taskRegistry struct {
	mu     sync.RWMutex
	byName map[string]Func
	names  map[uintptr]string
}

var registry = &taskRegistry{
	byName: make(map[string]Func),
	names:  make(map[uintptr]string),
}

// Register makes fn addressable by name from worker subprocesses. Both
// the parent and the worker executable must register the same name,
// normally from an init function or early in main. Register panics on a
// duplicate name, mirroring gob.Register semantics.
func Register(name string, fn Func) {
	if name == "" {
		panic("pool: Register with empty task name")
	}
	if fn == nil {
		panic("pool: Register with nil function")
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.byName[name]; exists {
		panic(fmt.Sprintf("pool: task %q registered twice", name))
	}
	registry.byName[name] = fn
	registry.names[reflect.ValueOf(fn).Pointer()] = name
}

// RegisterType records an item or result type with gob so it can cross
// the isolation boundary. Wraps gob.Register.
func RegisterType(value any) {
	gob.Register(value)
}

// Lookup returns the function registered under name.
func Lookup(name string) (Func, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	fn, ok := registry.byName[name]
	return fn, ok
}

// NameOf returns the registered name of fn, if any.
func NameOf(fn Func) (string, bool) {
	if fn == nil {
		return "", false
	}
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	name, ok := registry.names[reflect.ValueOf(fn).Pointer()]
	return name, ok
}

// CheckTransferable verifies that fn and a representative item can cross
// the isolation boundary: the function must be registered by name and
// the item must round-trip through gob. On success it returns the
// encoded payload size in bytes, which the cost model uses as the
// per-item transfer weight.
func CheckTransferable(fn Func, item any) (int64, error) {
	if _, ok := NameOf(fn); !ok {
		return 0, fmt.Errorf("function is not registered; call pool.Register before planning isolated execution")
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(&item); err != nil {
		return 0, fmt.Errorf("item does not gob-encode: %w", err)
	}
	size := int64(buf.Len())

	var decoded any
	dec := gob.NewDecoder(&buf)
	if err := dec.Decode(&decoded); err != nil {
		return 0, fmt.Errorf("item does not gob-decode: %w", err)
	}
	return size, nil
}
