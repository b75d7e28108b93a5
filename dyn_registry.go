package cacheable

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// TableRef identifies an (interface, concrete type) implementation within
// the running process. It is never zero and never leaves the process,
// except as the optional cached value in a dyn header.
type TableRef uint64

// CheckFunc validates the archived concrete value of a dyn field.
type CheckFunc func(c *Validator, pos int) error

const tableSeed = 47

type dynImpl struct {
	id       uint64
	table    TableRef
	iface    reflect.Type
	concrete reflect.Type
	site     string

	layout      func() Layout
	check       CheckFunc
	serialize   func(s *Serializer, v any) (int, error)
	deserialize func(d *Deserializer, pos int) (any, error)
}

type implKey struct {
	iface    reflect.Type
	concrete reflect.Type
}

// dynRegistry collects registrations from init functions and freezes them
// into lookup maps on first use.
type dynRegistry struct {
	mu      sync.Mutex
	pending []*dynImpl
	once    sync.Once
	frozen  atomic.Bool

	tables  map[uint64]TableRef
	checks  map[TableRef]CheckFunc
	byTable map[TableRef]*dynImpl
	byType  map[implKey]*dynImpl
}

var dynTypes dynRegistry

func (r *dynRegistry) add(impl *dynImpl) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		panic(fmt.Errorf("cacheable: %v registered as %v at %s after dyn types were first used", impl.concrete, impl.iface, impl.site))
	}
	r.pending = append(r.pending, impl)
}

func (r *dynRegistry) freeze() {
	r.once.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.tables = make(map[uint64]TableRef, len(r.pending))
		r.checks = make(map[TableRef]CheckFunc, len(r.pending))
		r.byTable = make(map[TableRef]*dynImpl, len(r.pending))
		r.byType = make(map[implKey]*dynImpl, len(r.pending))
		for _, impl := range r.pending {
			if t, found := r.tables[impl.id]; found {
				prev := r.byTable[t]
				panic(fmt.Errorf("cacheable: dyn type id %016x of %v (%s) already used by %v (%s)", impl.id, impl.concrete, impl.site, prev.concrete, prev.site))
			}
			if prev := r.byTable[impl.table]; prev != nil {
				panic(fmt.Errorf("cacheable: %v registered as %v twice, at %s and %s", impl.concrete, impl.iface, prev.site, impl.site))
			}
			r.tables[impl.id] = impl.table
			r.checks[impl.table] = impl.check
			r.byTable[impl.table] = impl
			r.byType[implKey{impl.iface, impl.concrete}] = impl
		}
		r.pending = nil
		r.frozen.Store(true)
	})
}

// LookupTable maps an archived type id to its implementation.
func (r *dynRegistry) LookupTable(id uint64) (TableRef, bool) {
	r.freeze()
	t, ok := r.tables[id]
	return t, ok
}

// LookupCheck returns the validation function of an implementation.
func (r *dynRegistry) LookupCheck(t TableRef) (CheckFunc, bool) {
	r.freeze()
	f, ok := r.checks[t]
	return f, ok
}

func (r *dynRegistry) implByTable(t TableRef) *dynImpl {
	r.freeze()
	return r.byTable[t]
}

func (r *dynRegistry) implByType(iface, concrete reflect.Type) *dynImpl {
	r.freeze()
	return r.byType[implKey{iface, concrete}]
}

// LookupTable maps an archived dyn type id to the implementation
// registered for it in this process.
func LookupTable(id uint64) (TableRef, bool) {
	return dynTypes.LookupTable(id)
}

// LookupCheck returns the validation function registered for t.
func LookupCheck(t TableRef) (CheckFunc, bool) {
	return dynTypes.LookupCheck(t)
}

// RegisterDyn makes T, stored with arch, available to Dyn[I] fields. It is
// meant to be called from init functions or package variable initializers.
// The archived type id is derived from the calling function and line, so
// moving the call changes the id and invalidates existing archives.
func RegisterDyn[I, T any](arch Archiver[T]) uint64 {
	pc, _, line, ok := runtime.Caller(1)
	if !ok {
		panic("cacheable: RegisterDyn cannot determine its call site")
	}
	site := fmt.Sprintf("%s:%d", runtime.FuncForPC(pc).Name(), line)
	id := xxhash.Sum64String(site)
	dynTypes.add(newDynImpl[I, T](id, site, arch))
	return id
}

// RegisterDynID is RegisterDyn with an explicit, stable type id.
func RegisterDynID[I, T any](id uint64, arch Archiver[T]) uint64 {
	site := fmt.Sprintf("id %016x", id)
	if _, file, line, ok := runtime.Caller(1); ok {
		site = fmt.Sprintf("%s:%d", file, line)
	}
	dynTypes.add(newDynImpl[I, T](id, site, arch))
	return id
}

func newDynImpl[I, T any](id uint64, site string, arch Archiver[T]) *dynImpl {
	iface := reflect.TypeFor[I]()
	concrete := reflect.TypeFor[T]()
	if iface.Kind() != reflect.Interface {
		panic(fmt.Errorf("cacheable: dyn target %v is not an interface", iface))
	}
	if !concrete.Implements(iface) {
		panic(fmt.Errorf("cacheable: %v does not implement %v", concrete, iface))
	}
	if id == 0 {
		panic(fmt.Errorf("cacheable: zero dyn type id for %v", concrete))
	}
	if arch == nil {
		arch = Direct[T]()
	}
	table := TableRef(murmur3.Sum64WithSeed([]byte(typeName(iface)+"|"+typeName(concrete)), tableSeed))
	if table == 0 {
		table = 1
	}
	return &dynImpl{
		id:       id,
		table:    table,
		iface:    iface,
		concrete: concrete,
		site:     site,
		layout:   arch.Layout,
		check: func(c *Validator, pos int) error {
			return CheckValue(c, arch, pos)
		},
		serialize: func(s *Serializer, v any) (int, error) {
			t := v.(T)
			return serializeTarget(s, arch, &t)
		},
		deserialize: func(d *Deserializer, pos int) (any, error) {
			v, err := arch.Deserialize(d, pos)
			if err != nil {
				return nil, err
			}
			ptr := d.alloc(concrete)
			if !ptr.IsValid() || ptr.Type() != reflect.PointerTo(concrete) {
				return nil, fmt.Errorf("%w: allocator returned %v for %v", ErrConversion, ptr, concrete)
			}
			ptr.Elem().Set(reflect.ValueOf(&v).Elem())
			return ptr.Elem().Interface(), nil
		},
	}
}
