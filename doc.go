/*
Package cacheable implements a zero-copy archive format for persisting
build artifacts between runs.

We implement:

1. Archivers, values describing how a Go type is written to and read from an
archive. Structs are described field by field with DefineStruct; combinators
(AsVec, AsMap, AsString, AsInner, AsOnce and friends) cover collections and
types stored through a conversion.

2. Validation. Every archive is checked before any value is reconstructed
from it, so truncated, corrupted or foreign bytes produce an error instead of
a bogus value.

3. Shared pointers. A pointer stored with Shared is written once per pass;
later occurrences reference the first copy, and deserialization hands out
the same pointer for all of them.

4. Dyn fields, holding interface values whose concrete type is recorded in
the archive as a process-independent type id. Implementations are registered
with RegisterDyn from init functions.

5. Context fields, never archived, filled from a context value at load time.

# Technical Details

**Bottom-up writing.**
A value has a fixed part of Layout().Size bytes, plus out-of-line data
(string contents, array elements, pointees). Out-of-line data is always
written before the fixed part that points at it, so the root value's fixed
part ends the archive and sits at len(data) - Layout().Size.

**Relative pointers** are int32 offsets from the pointer's own position.
Zero means nil. Targets always precede the pointer, which makes archives
acyclic and validation linear.

**Scalars** are little-endian and aligned to their size relative to the start
of the archive. Struct fields follow C layout rules.

**Strings, byte slices and collections**: relative pointer (4 bytes), length
as uint32 (4 bytes).

**Dyn header** (24 bytes, 8-aligned):
1. Relative pointer to the concrete value (4 bytes), then 4 bytes of padding.
2. Type id (uint64).
3. Table ref slot (uint64), written as zero. A reader may accept a non-zero
slot only if it matches the implementation resolved from the type id.
*/
package cacheable
