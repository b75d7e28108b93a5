package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/cacheable/mmap"
)

// File format:
//
//   - file = header record*
//   - header = magic:64 version:32 reserved:32
//   - record = size:uvarint body checksum:64
//   - body = op:8 scopeLen:uvarint scope keyLen:uvarint key value*
//
// The checksum is xxhash64 of the body. Values run to the end of the body.
const (
	fileMagic      = "CACHELOG"
	fileVersion    = 1
	fileHeaderSize = 16

	opSet    = 0
	opRemove = 1

	maxRecordSize = 1 << 30
)

var (
	ErrIncompatibleFile = errors.New("storage: incompatible file")
	errCorruptedRecord  = errors.New("corrupted record")
)

type FileOptions struct {
	// Sync calls fdatasync after every write.
	Sync bool

	Logger *slog.Logger
}

// File is an append-only log of Set/Remove records. The whole log is replayed
// into memory on open; reads never touch the file.
type File struct {
	path   string
	opt    FileOptions
	logger *slog.Logger

	mu     sync.Mutex
	f      *os.File
	size   int64 // end of the last complete record
	failed error // set when a torn write could not be rolled back
	index  *Mem
	buf    []byte
	live   int
	dead   int
}

func OpenFile(path string, opt FileOptions) (*File, error) {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	fs := &File{
		path:   path,
		opt:    opt,
		logger: opt.Logger,
		index:  NewMem(),
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			f.Close()
		}
	}()

	size, err := fs.load(f)
	if err != nil {
		return nil, fmt.Errorf("storage: %s: %w", path, err)
	}
	if _, err := f.Seek(size, io.SeekStart); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	fs.f = f
	fs.size = size
	ok = true
	return fs, nil
}

// load replays the log and returns the size of its valid prefix, trimming
// everything after it.
func (fs *File) load(f *os.File) (int64, error) {
	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if stat.Size() < fileHeaderSize {
		if stat.Size() > 0 {
			fs.logger.LogAttrs(context.Background(), slog.LevelWarn, "storage: resetting truncated file", slog.String("file", fs.path), slog.Int64("size", stat.Size()))
		}
		if err := f.Truncate(0); err != nil {
			return 0, err
		}
		var hdr [fileHeaderSize]byte
		putFileHeader(hdr[:])
		if _, err := f.WriteAt(hdr[:], 0); err != nil {
			return 0, err
		}
		return fileHeaderSize, fs.sync(f)
	}
	if stat.Size() > mmap.MaxSize {
		return 0, fmt.Errorf("file too large (%d bytes)", stat.Size())
	}

	data, err := mmap.Mmap(f, 0, int(stat.Size()), mmap.SequentialAccess)
	if err != nil {
		return 0, err
	}
	defer mmap.Munmap(data)

	if err := checkFileHeader(data); err != nil {
		return 0, err
	}
	valid, err := fs.replay(data)
	if err != nil {
		fs.logger.LogAttrs(context.Background(), slog.LevelWarn, "storage: trimming corrupted tail",
			slog.String("file", fs.path),
			slog.Int("valid", valid),
			slog.Int("size", len(data)),
			slog.String("err", err.Error()))
		if err := f.Truncate(int64(valid)); err != nil {
			return 0, err
		}
		if err := fs.sync(f); err != nil {
			return 0, err
		}
	}
	return int64(valid), nil
}

func (fs *File) replay(data []byte) (int, error) {
	off := fileHeaderSize
	for off < len(data) {
		body, n, err := readRecord(data[off:])
		if err != nil {
			return off, err
		}
		op, scope, key, value, err := decodeBody(body)
		if err != nil {
			return off, err
		}
		fs.apply(op, scope, clone(key), clone(value))
		off += n
	}
	return off, nil
}

func (fs *File) apply(op byte, scope string, key, value []byte) {
	m := fs.index
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := findIn(m, scope, key)
	switch op {
	case opSet:
		m.setLocked(scope, key, value)
		if existed {
			fs.dead++
		} else {
			fs.live++
		}
	case opRemove:
		m.removeLocked(scope, key)
		fs.dead++ // the record itself
		if existed {
			fs.live--
			fs.dead++
		}
	}
}

func findIn(m *Mem, scope string, key []byte) (int, bool) {
	sc := m.scopes[scope]
	if sc == nil {
		return 0, false
	}
	return sc.find(key)
}

func (fs *File) Get(scope string, key []byte) ([]byte, error) {
	return fs.index.Get(scope, key)
}

func (fs *File) Scan(scope string, f func(key, value []byte) error) error {
	return fs.index.Scan(scope, f)
}

func (fs *File) Set(scope string, key, value []byte) error {
	return fs.write(opSet, scope, key, value)
}

func (fs *File) Remove(scope string, key []byte) error {
	return fs.write(opRemove, scope, key, nil)
}

// write appends a record and applies it to the index. Removing a missing key
// writes nothing.
func (fs *File) write(op byte, scope string, key, value []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.f == nil {
		return ErrClosed
	}
	if fs.failed != nil {
		return fmt.Errorf("storage: %s: unusable after a failed write: %w", fs.path, fs.failed)
	}
	if op == opRemove {
		if _, err := fs.index.Get(scope, key); err == ErrNotFound {
			return nil
		}
	}

	fs.buf = appendRecord(fs.buf[:0], op, scope, key, value)
	if len(fs.buf) > maxRecordSize {
		return fmt.Errorf("storage: record too large (%d bytes)", len(fs.buf))
	}
	_, err := fs.f.Write(fs.buf)
	if err == nil {
		err = fs.sync(fs.f)
	}
	if err != nil {
		if rerr := fs.rollback(); rerr != nil {
			fs.failed = rerr
			fs.logger.LogAttrs(context.Background(), slog.LevelError, "storage: cannot roll back a failed write",
				slog.String("file", fs.path),
				slog.Int64("size", fs.size),
				slog.String("err", rerr.Error()))
		}
		return fmt.Errorf("storage: %s: %w", fs.path, err)
	}
	fs.size += int64(len(fs.buf))
	fs.apply(op, scope, clone(key), clone(value))
	return nil
}

// rollback cuts the file back to the last complete record, so that a torn
// record does not hide the ones appended after it on the next open.
func (fs *File) rollback() error {
	if err := fs.f.Truncate(fs.size); err != nil {
		return err
	}
	_, err := fs.f.Seek(fs.size, io.SeekStart)
	return err
}

func (fs *File) sync(f *os.File) error {
	if !fs.opt.Sync {
		return nil
	}
	return mmap.Fdatasync(f, nil)
}

// Garbage returns the number of records that no longer affect the contents.
func (fs *File) Garbage() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.dead
}

// Compact rewrites the log keeping only live pairs.
func (fs *File) Compact() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.f == nil {
		return ErrClosed
	}

	tmpPath := fs.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	var buf bytes.Buffer
	var hdr [fileHeaderSize]byte
	putFileHeader(hdr[:])
	buf.Write(hdr[:])

	live := 0
	fs.index.mu.RLock()
	for scope, sc := range fs.index.scopes {
		for _, it := range sc.items {
			fs.buf = appendRecord(fs.buf[:0], opSet, scope, it.key, it.value)
			buf.Write(fs.buf)
			live++
		}
	}
	fs.index.mu.RUnlock()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := mmap.Fdatasync(tmp, nil); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := os.Rename(tmpPath, fs.path); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	ok = true

	fs.f.Close()
	fs.f = tmp
	fs.size = int64(buf.Len())
	fs.failed = nil
	if _, err := fs.f.Seek(fs.size, io.SeekStart); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	fs.logger.Debug("storage: compacted", "file", fs.path, "live", live, "dropped", fs.dead)
	fs.live, fs.dead = live, 0
	return nil
}

func (fs *File) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.f == nil {
		return nil
	}
	err := fs.f.Close()
	fs.f = nil
	fs.index.Close()
	return err
}

func putFileHeader(b []byte) {
	copy(b[0:8], fileMagic)
	binary.LittleEndian.PutUint32(b[8:], fileVersion)
	binary.LittleEndian.PutUint32(b[12:], 0)
}

func checkFileHeader(data []byte) error {
	if string(data[0:8]) != fileMagic {
		return ErrIncompatibleFile
	}
	if v := binary.LittleEndian.Uint32(data[8:]); v != fileVersion {
		return fmt.Errorf("%w: version %d", ErrIncompatibleFile, v)
	}
	return nil
}

func appendRecord(b []byte, op byte, scope string, key, value []byte) []byte {
	size := 1 + uvarintLen(len(scope)) + len(scope) + uvarintLen(len(key)) + len(key) + len(value)
	b = binary.AppendUvarint(b, uint64(size))
	start := len(b)
	b = append(b, op)
	b = binary.AppendUvarint(b, uint64(len(scope)))
	b = append(b, scope...)
	b = binary.AppendUvarint(b, uint64(len(key)))
	b = append(b, key...)
	b = append(b, value...)
	return binary.LittleEndian.AppendUint64(b, xxhash.Sum64(b[start:]))
}

// readRecord returns the verified body of the first record in data and the
// total length of the record.
func readRecord(data []byte) (body []byte, n int, err error) {
	size, hn := binary.Uvarint(data)
	if hn <= 0 || size == 0 || size > maxRecordSize {
		return nil, 0, errCorruptedRecord
	}
	end := uint64(hn) + size + 8
	if end > uint64(len(data)) {
		return nil, 0, errCorruptedRecord
	}
	body = data[hn : uint64(hn)+size]
	if binary.LittleEndian.Uint64(data[end-8:]) != xxhash.Sum64(body) {
		return nil, 0, errCorruptedRecord
	}
	return body, int(end), nil
}

func decodeBody(body []byte) (op byte, scope string, key, value []byte, err error) {
	op = body[0]
	if op != opSet && op != opRemove {
		return 0, "", nil, nil, errCorruptedRecord
	}
	rest := body[1:]
	s, rest, ok := readVarBytes(rest)
	if !ok {
		return 0, "", nil, nil, errCorruptedRecord
	}
	key, value, ok = readVarBytes(rest)
	if !ok || (op == opRemove && len(value) != 0) {
		return 0, "", nil, nil, errCorruptedRecord
	}
	return op, string(s), key, value, nil
}

func readVarBytes(b []byte) (v, rest []byte, ok bool) {
	n, hn := binary.Uvarint(b)
	if hn <= 0 || n > uint64(len(b)-hn) {
		return nil, nil, false
	}
	end := hn + int(n)
	return b[hn:end], b[end:], true
}

func uvarintLen(v int) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], uint64(v))
}
