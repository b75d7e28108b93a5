package cacheable

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCheckBytes is matched by every validation failure, including
	// *DataError values produced while checking an archive.
	ErrCheckBytes = errors.New("archive failed validation")

	ErrDuplicateShared  = errors.New("shared pointer registered twice")
	ErrSharedCycle      = errors.New("shared pointer cycle")
	ErrUnknownDynType   = errors.New("unknown dyn type id")
	ErrUnsupportedField = errors.New("field is not serializable")
	ErrConversion       = errors.New("conversion failed")
	ErrAllocation       = errors.New("archive size limit exceeded")
	ErrScratchExhausted = errors.New("scratch space exhausted")
	ErrContextType      = errors.New("context has unexpected type")
)

// DataError describes a problem found at a specific offset of an archive.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Is(target error) bool {
	return target == ErrCheckBytes
}

func (e *DataError) Error() string {
	const prefixLen = 32
	const suffixLen = 32
	n := len(e.Data)
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s at offset %d", e.Msg, e.Off)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	if n <= prefixLen+suffixLen {
		fmt.Fprintf(&buf, ": (%d) %x", n, e.Data)
	} else {
		fmt.Fprintf(&buf, ": (%d) %x...%x", n, e.Data[:prefixLen], e.Data[n-suffixLen:])
	}
	return buf.String()
}

// FieldError attributes a failure to a field of a struct archiver.
type FieldError struct {
	Type  string
	Field string
	Err   error
}

func fieldErr(typ, field string, err error) error {
	return &FieldError{typ, field, err}
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func (e *FieldError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Type)
	buf.WriteByte('.')
	buf.WriteString(e.Field)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
