package core

import (
	"reflect"

	"github.com/encodeous/tollmesh/state"
)

// Get returns the running module of type T
func Get[T state.Module](s *state.State) T {
	t := reflect.TypeFor[T]()
	return s.Modules[t.String()].(T)
}
