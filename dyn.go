package cacheable

import (
	"fmt"
	"reflect"
)

// Archived dyn header: a relative pointer to the concrete value, 4 bytes of
// padding, the type id, and a table ref slot that writers leave zero.
var dynLayout = Layout{24, 8}

const (
	dynIDOff    = 8
	dynTableOff = 16
)

// Dyn stores values of interface type I. The concrete type of each value
// must have been registered with RegisterDyn[I]. A nil interface is stored
// as a null header.
func Dyn[I any]() Archiver[I] {
	iface := reflect.TypeFor[I]()
	if iface.Kind() != reflect.Interface {
		panic(fmt.Errorf("cacheable: Dyn[%v] requires an interface type", iface))
	}
	return dynArchiver[I]{iface}
}

type dynArchiver[I any] struct {
	iface reflect.Type
}

func (a dynArchiver[I]) Layout() Layout { return dynLayout }

func (a dynArchiver[I]) Serialize(s *Serializer, v *I) (Resolver, error) {
	val := any(*v)
	if val == nil {
		return Resolver{Pos: -1}, nil
	}
	impl := dynTypes.implByType(a.iface, reflect.TypeOf(val))
	if impl == nil {
		return Resolver{}, fmt.Errorf("%w: %T is not registered as %v", ErrUnknownDynType, val, a.iface)
	}
	pos, err := impl.serialize(s, val)
	if err != nil {
		return Resolver{}, err
	}
	return Resolver{Pos: pos, Tag: impl.id}, nil
}

func (a dynArchiver[I]) Resolve(v *I, pos int, r Resolver, out []byte) {
	if r.Pos < 0 {
		return
	}
	putRelPtr(out, pos, r.Pos)
	le.PutUint64(out[dynIDOff:], r.Tag)
}

func (a dynArchiver[I]) CheckBytes(c *Validator, pos int) error {
	if err := c.CheckRange(pos, dynLayout.Size, dynLayout.Align); err != nil {
		return err
	}
	id := le.Uint64(c.data[pos+dynIDOff:])
	cached := TableRef(le.Uint64(c.data[pos+dynTableOff:]))
	if _, ok := readRelPtr(c.data, pos); !ok {
		if id != 0 || cached != 0 {
			return c.Errorf(pos, nil, "null dyn pointer with type id %016x", id)
		}
		return nil
	}

	table, ok := LookupTable(id)
	if !ok {
		return c.Errorf(pos+dynIDOff, ErrUnknownDynType, "type id %016x", id)
	}
	if cached != 0 && cached != table {
		return c.Errorf(pos+dynTableOff, nil, "cached table %016x does not match %016x", uint64(cached), uint64(table))
	}
	impl := dynTypes.implByTable(table)
	if impl.iface != a.iface {
		return c.Errorf(pos+dynIDOff, nil, "type id %016x belongs to %v, not %v", id, impl.iface, a.iface)
	}
	check, ok := LookupCheck(table)
	if !ok {
		return c.Errorf(pos+dynIDOff, ErrUnknownDynType, "no check for type id %016x", id)
	}
	l := impl.layout()
	target, _, err := c.claimTarget(pos, l.Size, l.Align)
	if err != nil {
		return err
	}
	return check(c, target)
}

func (a dynArchiver[I]) Deserialize(d *Deserializer, pos int) (I, error) {
	var zero I
	target, ok := readRelPtr(d.data, pos)
	if !ok {
		return zero, nil
	}
	id := le.Uint64(d.data[pos+dynIDOff:])
	table, ok := LookupTable(id)
	if !ok {
		return zero, dataErrf(d.data, pos+dynIDOff, ErrUnknownDynType, "type id %016x", id)
	}
	v, err := dynTypes.implByTable(table).deserialize(d, target)
	if err != nil {
		return zero, err
	}
	return v.(I), nil
}
