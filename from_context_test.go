package cacheable

import (
	"bytes"
	"errors"
	"testing"
)

type (
	CompilerOptions struct {
		Mode string
	}

	BuildContext struct {
		Options *CompilerOptions
	}

	Module struct {
		Path    string
		Options *CompilerOptions
	}

	Connection struct {
		Addr string
		Done chan struct{}
	}
)

var (
	moduleArchiver = NewStruct(func(b *StructBuilder[Module]) {
		AddField(b, "Path", func(v *Module) *string { return &v.Path }, String)
		AddField(b, "Options", func(v *Module) **CompilerOptions { return &v.Options },
			FromContext(func(c *BuildContext) *CompilerOptions { return c.Options }))
	})
	connectionArchiver = NewStruct(func(b *StructBuilder[Connection]) {
		AddField(b, "Addr", func(v *Connection) *string { return &v.Addr }, String)
		AddField(b, "Done", func(v *Connection) *chan struct{} { return &v.Done }, Unsupported[chan struct{}]())
	})
)

func TestFromContext(t *testing.T) {
	ctx1 := &BuildContext{&CompilerOptions{"development"}}
	ctx2 := &BuildContext{&CompilerOptions{"production"}}
	ctx3 := &BuildContext{&CompilerOptions{"test"}}

	m := Module{"src/index.js", ctx1.Options}
	a := must(SerializeWith(m, moduleArchiver, ctx1))
	b := must(SerializeWith(m, moduleArchiver, ctx2))
	if !bytes.Equal(a, b) {
		t.Errorf("** archive depends on context:\n%x\n%x", a, b)
	}

	// the field contributes no bytes
	plain := must(SerializeWith("src/index.js", String, nil))
	deepEqual(t, a, plain)

	got := must(DeserializeWith(a, moduleArchiver, ctx3))
	if got.Options != ctx3.Options {
		t.Errorf("** Options = %v, wanted the context's %v", got.Options, ctx3.Options)
	}
	deepEqual(t, got.Path, m.Path)
}

func TestFromContext_WrongContextType(t *testing.T) {
	data := must(SerializeWith(Module{Path: "a.js"}, moduleArchiver, nil))
	_, err := DeserializeWith(data, moduleArchiver, "not a build context")
	isErr(t, err, ErrContextType)

	_, err = DeserializeWith(data, moduleArchiver, nil)
	isErr(t, err, ErrContextType)
}

func TestContextOf(t *testing.T) {
	ctx := &BuildContext{}
	got, err := ContextOf[*BuildContext](any(ctx))
	if err != nil || got != ctx {
		t.Errorf("** ContextOf = %v, %v", got, err)
	}
	_, err = ContextOf[*CompilerOptions](any(ctx))
	isErr(t, err, ErrContextType)
}

func TestUnsupported(t *testing.T) {
	_, err := SerializeWith(Connection{"localhost", make(chan struct{})}, connectionArchiver, nil)
	isErr(t, err, ErrUnsupportedField)
	var fe *FieldError
	if !errors.As(err, &fe) || fe.Field != "Done" {
		t.Errorf("** got %v, wanted error about Done", err)
	}

	// a value of the same layout, written without the unsupported field
	data := must(SerializeWith("localhost", String, nil))
	_, err = DeserializeWith(data, connectionArchiver, nil)
	isErr(t, err, ErrUnsupportedField)
}
