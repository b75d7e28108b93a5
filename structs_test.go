package cacheable

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"
	"unsafe"
)

func TestStruct_RoundTrip(t *testing.T) {
	p := samplePerson()
	deepEqual(t, roundTrip(t, personArchiver, p, nil), p)

	var empty Person
	got := roundTrip(t, personArchiver, empty, nil)
	if got.Name != "" || got.Tags != nil || got.Home != nil || got.Attrs != nil {
		t.Errorf("** got %+v, wanted zero person", got)
	}
}

func TestStruct_DirectLookup(t *testing.T) {
	p := samplePerson()
	data := must(Serialize(p, nil))
	got := must(Deserialize[Person](data, nil))
	deepEqual(t, got, p)
}

func TestStruct_Bytes(t *testing.T) {
	data := must(SerializeWith(Point{1, -2}, pointArchiver, nil))
	deepEqual(t, data, []byte{1, 0, 0, 0, 0xfe, 0xff, 0xff, 0xff})
	deepEqual(t, pointArchiver.Layout(), Layout{8, 4})
}

func TestStruct_Deterministic(t *testing.T) {
	p := samplePerson()
	p.Attrs = map[string]int64{"only": 1}
	a := must(SerializeWith(p, personArchiver, nil))
	b := must(SerializeWith(p, personArchiver, nil))
	if !bytes.Equal(a, b) {
		t.Errorf("** serializing twice gave different bytes:\n%x\n%x", a, b)
	}
}

func TestValidation_WrongType(t *testing.T) {
	pointData := must(SerializeWith(Point{1, 2}, pointArchiver, nil))

	_, err := DeserializeWith(pointData, personArchiver, nil)
	isErr(t, err, ErrCheckBytes)

	// X is read as a relative pointer, and 1 points forward.
	_, err = DeserializeWith(pointData, labelArchiver, nil)
	isErr(t, err, ErrCheckBytes)
}

func TestValidation_Truncated(t *testing.T) {
	data := must(SerializeWith(samplePerson(), personArchiver, nil))
	for n := range len(data) {
		// prefixes may happen to form some other valid archive, but must not panic
		_, _ = DeserializeWith(data[:n], personArchiver, nil)
		if _, err := DeserializeWith(data[len(data)-n:], personArchiver, nil); err == nil {
			t.Errorf("** last %d of %d bytes accepted", n, len(data))
		}
	}
}

func TestValidation_CorruptedNeverPanics(t *testing.T) {
	data := must(SerializeWith(samplePerson(), personArchiver, nil))
	rnd := rand.New(rand.NewPCG(1, 2))
	corrupted := make([]byte, len(data))
	for i := range 2000 {
		copy(corrupted, data)
		corrupted[i%len(data)] ^= byte(1 + rnd.IntN(255))
		if rnd.IntN(2) == 0 {
			corrupted[rnd.IntN(len(data))] = byte(rnd.IntN(256))
		}
		_, _ = DeserializeWith(corrupted, personArchiver, nil)
	}
}

func TestValidation_BadBool(t *testing.T) {
	data := must(SerializeWith(true, Bool, nil))
	data[0] = 2
	_, err := DeserializeWith(data, Bool, nil)
	isErr(t, err, ErrCheckBytes)
}

func TestValidation_BadUTF8(t *testing.T) {
	data := must(SerializeWith("hi", String, nil))
	data[0] = 0xff
	_, err := DeserializeWith(data, String, nil)
	isErr(t, err, ErrCheckBytes)

	// the same bytes are fine as a byte slice
	got := must(DeserializeWith(data, Bytes, nil))
	deepEqual(t, got, []byte{0xff, 'i'})
}

func TestValidation_FieldErrorNamesField(t *testing.T) {
	data := must(SerializeWith(samplePerson(), personArchiver, nil))
	// Active sits at offset 24 of the root.
	root := len(data) - personArchiver.Layout().Size
	data[root+24] = 9
	_, err := DeserializeWith(data, personArchiver, nil)
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Field != "Active" {
		t.Fatalf("** got %v, wanted error about Active", err)
	}
	isErr(t, err, ErrCheckBytes)
}

func TestArchived_ZeroCopyView(t *testing.T) {
	data := must(SerializeWith(samplePerson(), personArchiver, nil))
	a := must(Check(data, personArchiver))

	name := a.View().Field(0).Str()
	if name != "Ada Lovelace" {
		t.Fatalf("** Name = %q", name)
	}
	p := uintptr(unsafe.Pointer(unsafe.StringData(name)))
	start := uintptr(unsafe.Pointer(&data[0]))
	if p < start || p >= start+uintptr(len(data)) {
		t.Errorf("** Name was copied out of the archive")
	}

	age := a.View().Field(8).Uint8()
	if age != 36 {
		t.Errorf("** Age = %d", age)
	}

	got := must(a.Deserialize(nil))
	deepEqual(t, got, samplePerson())
}

func TestSkip(t *testing.T) {
	type Cached struct {
		Key   string
		Memo  []int
		Count int64
	}
	arch := NewStruct(func(b *StructBuilder[Cached]) {
		AddField(b, "Key", func(v *Cached) *string { return &v.Key }, String)
		Skip(b, "Memo", func(v *Cached) *[]int { return &v.Memo })
		AddField(b, "Count", func(v *Cached) *int64 { return &v.Count }, Int64)
	})
	got := roundTrip(t, arch, Cached{"k", []int{1, 2}, 3}, nil)
	deepEqual(t, got, Cached{"k", nil, 3})
	deepEqual(t, arch.Layout(), Layout{16, 8})
}

func TestDefine_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("** defining Point twice did not panic")
		}
	}()
	Define[Point](pointArchiver)
}

func TestLimits(t *testing.T) {
	long := string(make([]byte, 100))
	_, err := SerializeWith(long, String, nil, WithMaxSize(64))
	isErr(t, err, ErrAllocation)

	tags := []string{"a", "b", "c", "d", "e", "f"}
	_, err = SerializeWith(tags, AsVec(String), nil, WithScratchLimit(4))
	isErr(t, err, ErrScratchExhausted)

	nested := [][]string{tags, tags}
	_, err = SerializeWith(nested, AsVec(AsVec(String)), nil, WithScratchLimit(7))
	isErr(t, err, ErrScratchExhausted)
	deepEqual(t, roundTrip(t, AsVec(AsVec(String)), nested, nil), nested)
}
