package cacheable

type Pair[A, B any] struct {
	First  A
	Second B
}

type Triple[A, B, C any] struct {
	First  A
	Second B
	Third  C
}

// AsTuple2 stores a Pair like a struct with two fields.
func AsTuple2[A, B any](a Archiver[A], b Archiver[B]) Archiver[Pair[A, B]] {
	return NewStruct(func(sb *StructBuilder[Pair[A, B]]) {
		AddField(sb, "0", func(p *Pair[A, B]) *A { return &p.First }, a)
		AddField(sb, "1", func(p *Pair[A, B]) *B { return &p.Second }, b)
	})
}

// AsTuple3 stores a Triple like a struct with three fields.
func AsTuple3[A, B, C any](a Archiver[A], b Archiver[B], c Archiver[C]) Archiver[Triple[A, B, C]] {
	return NewStruct(func(sb *StructBuilder[Triple[A, B, C]]) {
		AddField(sb, "0", func(t *Triple[A, B, C]) *A { return &t.First }, a)
		AddField(sb, "1", func(t *Triple[A, B, C]) *B { return &t.Second }, b)
		AddField(sb, "2", func(t *Triple[A, B, C]) *C { return &t.Third }, c)
	})
}
