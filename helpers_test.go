package cacheable

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

type (
	Point struct {
		X, Y int32
	}

	Person struct {
		Name   string
		Age    uint8
		Score  float64
		Active bool
		Tags   []string
		Born   time.Time
		Home   *Point
		Attrs  map[string]int64
	}

	// Label has a different layout than Point, for reading one as the other.
	Label struct {
		Text string
	}
)

var (
	pointArchiver = DefineStruct(func(b *StructBuilder[Point]) {
		AddField(b, "X", func(v *Point) *int32 { return &v.X }, Int32)
		AddField(b, "Y", func(v *Point) *int32 { return &v.Y }, Int32)
	})
	personArchiver = DefineStruct(func(b *StructBuilder[Person]) {
		AddField(b, "Name", func(v *Person) *string { return &v.Name }, nil)
		AddField(b, "Age", func(v *Person) *uint8 { return &v.Age }, nil)
		AddField(b, "Score", func(v *Person) *float64 { return &v.Score }, nil)
		AddField(b, "Active", func(v *Person) *bool { return &v.Active }, nil)
		AddField(b, "Tags", func(v *Person) *[]string { return &v.Tags }, AsVec(String))
		AddField(b, "Born", func(v *Person) *time.Time { return &v.Born }, nil)
		AddField(b, "Home", func(v *Person) **Point { return &v.Home }, Ptr[Point](nil))
		AddField(b, "Attrs", func(v *Person) *map[string]int64 { return &v.Attrs }, AsMap(String, Int64))
	})
	labelArchiver = DefineStruct(func(b *StructBuilder[Label]) {
		AddField(b, "Text", func(v *Label) *string { return &v.Text }, nil)
	})
)

func samplePerson() Person {
	return Person{
		Name:   "Ada Lovelace",
		Age:    36,
		Score:  99.5,
		Active: true,
		Tags:   []string{"math", "engines", ""},
		Born:   time.Unix(1700000000, 5),
		Home:   &Point{-3, 42},
		Attrs:  map[string]int64{"notes": 7, "letters": -1},
	}
}

func roundTrip[T any](t testing.TB, arch Archiver[T], v T, ctx any) T {
	t.Helper()
	data, err := SerializeWith(v, arch, ctx)
	if err != nil {
		t.Fatalf("** SerializeWith(%v) failed: %v", v, err)
	}
	got, err := DeserializeWith(data, arch, ctx)
	if err != nil {
		t.Fatalf("** DeserializeWith failed: %v", err)
	}
	return got
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isErr(t testing.TB, err, target error) {
	if !errors.Is(err, target) {
		t.Helper()
		t.Errorf("** got error %v, wanted %v", err, target)
	}
}

func success(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("** %v", err)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
