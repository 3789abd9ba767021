package framegraph

import (
	"reflect"
)

// Finalizer is implemented by pass data that holds something to release at
// the end of the frame. Finalize runs on Clear, before the data is recycled.
type Finalizer interface {
	Finalize()
}

// arena hands out per-frame scratch values and recycles them on reset.
// Values are kept per type so steady-state frames allocate nothing.
type arena struct {
	live       []any
	free       map[reflect.Type][]any
	finalizers []Finalizer
}

func allocScratch[T any](a *arena) *T {
	typ := reflect.TypeFor[T]()
	var v *T
	if list := a.free[typ]; len(list) > 0 {
		v = list[len(list)-1].(*T)
		a.free[typ] = list[:len(list)-1]
		var zero T
		*v = zero
	} else {
		v = new(T)
	}
	a.live = append(a.live, v)
	if f, ok := any(v).(Finalizer); ok {
		a.finalizers = append(a.finalizers, f)
	}
	return v
}

// reset runs finalizers in reverse allocation order and makes every live
// value available again.
func (a *arena) reset() {
	for i := len(a.finalizers) - 1; i >= 0; i-- {
		a.finalizers[i].Finalize()
	}
	clear(a.finalizers)
	a.finalizers = a.finalizers[:0]

	if a.free == nil {
		a.free = make(map[reflect.Type][]any)
	}
	for _, v := range a.live {
		typ := reflect.TypeOf(v).Elem()
		a.free[typ] = append(a.free[typ], v)
	}
	clear(a.live)
	a.live = a.live[:0]
}
