package cacheable

import (
	"errors"
	"reflect"
	"testing"
)

type (
	Animal interface {
		Name() string
		Color() string
	}

	Dog struct {
		Coat string
	}

	Cat struct {
		Coat  string
		Lives uint8
	}

	// Fish implements Animal but is never registered.
	Fish struct{}

	Zoo struct {
		Star    Animal
		Animals []Animal
	}

	Holder struct {
		Pet Animal
	}
)

func (Dog) Name() string    { return "dog" }
func (d Dog) Color() string { return d.Coat }
func (Cat) Name() string    { return "cat" }
func (c Cat) Color() string { return c.Coat }
func (Fish) Name() string   { return "fish" }
func (Fish) Color() string  { return "silver" }

var (
	dogArchiver = NewStruct(func(b *StructBuilder[Dog]) {
		AddField(b, "Coat", func(v *Dog) *string { return &v.Coat }, String)
	})
	catArchiver = NewStruct(func(b *StructBuilder[Cat]) {
		AddField(b, "Coat", func(v *Cat) *string { return &v.Coat }, String)
		AddField(b, "Lives", func(v *Cat) *uint8 { return &v.Lives }, Uint8)
	})

	dogTypeID = RegisterDyn[Animal](dogArchiver)
	catTypeID = RegisterDynID[Animal](0xca7, catArchiver)

	zooArchiver = NewStruct(func(b *StructBuilder[Zoo]) {
		AddField(b, "Star", func(v *Zoo) *Animal { return &v.Star }, Dyn[Animal]())
		AddField(b, "Animals", func(v *Zoo) *[]Animal { return &v.Animals }, AsVec(Dyn[Animal]()))
	})
	holderArchiver = NewStruct(func(b *StructBuilder[Holder]) {
		AddField(b, "Pet", func(v *Holder) *Animal { return &v.Pet }, Dyn[Animal]())
	})
)

func TestDyn_RoundTrip(t *testing.T) {
	z := Zoo{
		Star:    Cat{"ginger", 9},
		Animals: []Animal{Dog{"brown"}, Cat{"black", 7}, Dog{"white"}},
	}
	got := roundTrip(t, zooArchiver, z, nil)
	deepEqual(t, got, z)

	var names, colors []string
	for _, a := range got.Animals {
		names = append(names, a.Name())
		colors = append(colors, a.Color())
	}
	deepEqual(t, names, []string{"dog", "cat", "dog"})
	deepEqual(t, colors, []string{"brown", "black", "white"})
}

func TestDyn_Nil(t *testing.T) {
	got := roundTrip(t, holderArchiver, Holder{}, nil)
	if got.Pet != nil {
		t.Errorf("** got %v, wanted nil", got.Pet)
	}
}

func TestDyn_TypeIDs(t *testing.T) {
	if dogTypeID == 0 || catTypeID != 0xca7 {
		t.Fatalf("** ids %x, %x", dogTypeID, catTypeID)
	}
	data := must(SerializeWith(Holder{Dog{"x"}}, holderArchiver, nil))
	id := le.Uint64(data[len(data)-24+dynIDOff:])
	if id != dogTypeID {
		t.Errorf("** archived id %x, wanted %x", id, dogTypeID)
	}
	if table := le.Uint64(data[len(data)-24+dynTableOff:]); table != 0 {
		t.Errorf("** table slot %x, wanted 0", table)
	}
	dogTable, ok := LookupTable(dogTypeID)
	catTable, _ := LookupTable(catTypeID)
	if !ok || dogTable == 0 || dogTable == catTable {
		t.Errorf("** tables %x, %x", dogTable, catTable)
	}
	if _, ok := LookupCheck(dogTable); !ok {
		t.Errorf("** no check for dog table")
	}
}

func TestDyn_UnknownTypeID(t *testing.T) {
	data := must(SerializeWith(Holder{Cat{"grey", 3}}, holderArchiver, nil))
	le.PutUint64(data[len(data)-24+dynIDOff:], 0xdeadbeef)
	_, err := DeserializeWith(data, holderArchiver, nil)
	isErr(t, err, ErrUnknownDynType)
	isErr(t, err, ErrCheckBytes)
}

func TestDyn_WrongTypeIDFailsValidation(t *testing.T) {
	// a dog id over cat bytes: Cat's archive is larger and differently laid out
	data := must(SerializeWith(Holder{Cat{"grey", 3}}, holderArchiver, nil))
	le.PutUint64(data[len(data)-24+dynIDOff:], dogTypeID)
	got, err := DeserializeWith(data, holderArchiver, nil)
	if err == nil {
		// Dog's fields are a prefix of Cat's, so the bytes may still check out.
		if got.Pet.Name() != "dog" {
			t.Errorf("** got %v", got.Pet)
		}
	}
}

func TestDyn_CachedTable(t *testing.T) {
	data := must(SerializeWith(Holder{Dog{"spotted"}}, holderArchiver, nil))
	slot := data[len(data)-24+dynTableOff:]

	table, _ := LookupTable(dogTypeID)
	le.PutUint64(slot, uint64(table))
	got := must(DeserializeWith(data, holderArchiver, nil))
	deepEqual(t, got.Pet, Animal(Dog{"spotted"}))

	le.PutUint64(slot, uint64(table)+1)
	_, err := DeserializeWith(data, holderArchiver, nil)
	isErr(t, err, ErrCheckBytes)
	if errors.Is(err, ErrUnknownDynType) {
		t.Errorf("** table mismatch reported as unknown type: %v", err)
	}
}

func TestDyn_UnregisteredConcreteType(t *testing.T) {
	_, err := SerializeWith(Holder{Fish{}}, holderArchiver, nil)
	isErr(t, err, ErrUnknownDynType)
}

func TestDyn_Alloc(t *testing.T) {
	var allocated []reflect.Type
	alloc := func(typ reflect.Type) reflect.Value {
		allocated = append(allocated, typ)
		return reflect.New(typ)
	}
	z := Zoo{Animals: []Animal{Dog{"a"}, Cat{"b", 1}}}
	data := must(SerializeWith(z, zooArchiver, nil))
	got := must(DeserializeWith(data, zooArchiver, nil, WithAlloc(alloc)))
	deepEqual(t, got, z)
	deepEqual(t, allocated, []reflect.Type{reflect.TypeFor[Dog](), reflect.TypeFor[Cat]()})

	bad := func(reflect.Type) reflect.Value { return reflect.ValueOf(new(int)) }
	_, err := DeserializeWith(data, zooArchiver, nil, WithAlloc(bad))
	isErr(t, err, ErrConversion)
}

func TestDynRegistry_Conflicts(t *testing.T) {
	expectPanic := func(t *testing.T, f func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Helper()
				t.Errorf("** did not panic")
			}
		}()
		f()
	}

	t.Run("duplicate id", func(t *testing.T) {
		var r dynRegistry
		r.add(newDynImpl[Animal](1, "a", dogArchiver))
		r.add(newDynImpl[Animal](1, "b", catArchiver))
		expectPanic(t, r.freeze)
	})
	t.Run("duplicate implementation", func(t *testing.T) {
		var r dynRegistry
		r.add(newDynImpl[Animal](1, "a", dogArchiver))
		r.add(newDynImpl[Animal](2, "b", dogArchiver))
		expectPanic(t, r.freeze)
	})
	t.Run("registration after first use", func(t *testing.T) {
		var r dynRegistry
		r.add(newDynImpl[Animal](1, "a", dogArchiver))
		if _, ok := r.LookupTable(1); !ok {
			t.Fatalf("** id 1 not found")
		}
		expectPanic(t, func() { r.add(newDynImpl[Animal](2, "b", catArchiver)) })
	})
	t.Run("not an implementation", func(t *testing.T) {
		expectPanic(t, func() { newDynImpl[Animal](3, "c", pointArchiver) })
	})
	t.Run("not an interface", func(t *testing.T) {
		expectPanic(t, func() { newDynImpl[Dog](4, "d", dogArchiver) })
	})
}
