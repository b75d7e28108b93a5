package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFile(t *testing.T, path string) *File {
	t.Helper()
	s, err := OpenFile(path, FileOptions{Sync: true})
	require.NoError(t, err)
	return s
}

func TestFile_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.log")
	s := openFile(t, path)
	require.NoError(t, s.Set("make", []byte("a"), []byte("1")))
	require.NoError(t, s.Set("make", []byte("b"), []byte("2")))
	require.NoError(t, s.Set("make", []byte("a"), []byte("3")))
	require.NoError(t, s.Remove("make", []byte("b")))
	require.NoError(t, s.Set("meta", []byte(""), []byte{}))
	require.NoError(t, s.Close())

	s = openFile(t, path)
	defer s.Close()
	v, err := s.Get("make", []byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("3"), v)
	_, err = s.Get("make", []byte("b"))
	require.ErrorIs(t, err, ErrNotFound)
	v, err = s.Get("meta", []byte(""))
	require.NoError(t, err)
	require.Empty(t, v)

	// the first a, b, and the removal of b
	require.Equal(t, 3, s.Garbage())
}

func TestFile_TrimsCorruptedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.log")
	s := openFile(t, path)
	require.NoError(t, s.Set("s", []byte("kept"), []byte("value")))
	require.NoError(t, s.Close())

	stat, err := os.Stat(path)
	require.NoError(t, err)
	good := stat.Size()

	s = openFile(t, path)
	require.NoError(t, s.Set("s", []byte("lost"), []byte("value")))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-3] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	s = openFile(t, path)
	_, err = s.Get("s", []byte("lost"))
	require.ErrorIs(t, err, ErrNotFound)
	v, err := s.Get("s", []byte("kept"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), v)

	stat, err = os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, good, stat.Size())

	// appends continue after the trimmed tail
	require.NoError(t, s.Set("s", []byte("new"), []byte("x")))
	require.NoError(t, s.Close())
	s = openFile(t, path)
	defer s.Close()
	v, err = s.Get("s", []byte("new"))
	require.NoError(t, err)
	require.Equal(t, []byte("x"), v)
}

func TestFile_TruncatedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.log")
	s := openFile(t, path)
	require.NoError(t, s.Set("s", []byte("a"), []byte("1")))
	require.NoError(t, s.Set("s", []byte("b"), []byte("2")))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-1], 0o644))

	s = openFile(t, path)
	defer s.Close()
	n := 0
	require.NoError(t, s.Scan("s", func(key, value []byte) error {
		require.Equal(t, "a", string(key))
		n++
		return nil
	}))
	require.Equal(t, 1, n)
}

func TestFile_Incompatible(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.log")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a cache log"), 0o644))
	_, err := OpenFile(path, FileOptions{})
	require.ErrorIs(t, err, ErrIncompatibleFile)
}

func TestFile_Compact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.log")
	s := openFile(t, path)
	for range 10 {
		require.NoError(t, s.Set("s", []byte("k"), []byte("some fairly long value")))
	}
	require.NoError(t, s.Set("t", []byte("k"), []byte("v")))
	require.Equal(t, 9, s.Garbage())

	before, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, s.Compact())
	after, err := os.Stat(path)
	require.NoError(t, err)
	require.Less(t, after.Size(), before.Size())
	require.Zero(t, s.Garbage())

	require.NoError(t, s.Set("s", []byte("k2"), []byte("v2")))
	require.NoError(t, s.Close())

	s = openFile(t, path)
	defer s.Close()
	for _, kv := range [][3]string{{"s", "k", "some fairly long value"}, {"s", "k2", "v2"}, {"t", "k", "v"}} {
		v, err := s.Get(kv[0], []byte(kv[1]))
		require.NoError(t, err)
		require.Equal(t, kv[2], string(v))
	}
}

func TestFile_FailedWriteKeepsLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.log")
	s := openFile(t, path)
	require.NoError(t, s.Set("s", []byte("a"), []byte("1")))

	// a read-only handle fails the write and the truncate after it
	rw := s.f
	ro, err := os.Open(path)
	require.NoError(t, err)
	s.f = ro
	require.Error(t, s.Set("s", []byte("b"), []byte("2")))
	_, err = s.Get("s", []byte("b"))
	require.ErrorIs(t, err, ErrNotFound)

	s.f = rw
	require.NoError(t, ro.Close())
	require.ErrorContains(t, s.Set("s", []byte("c"), []byte("3")), "unusable after a failed write")

	require.NoError(t, s.Compact())
	require.NoError(t, s.Set("s", []byte("c"), []byte("3")))
	require.NoError(t, s.Close())

	s = openFile(t, path)
	defer s.Close()
	for _, kv := range [][2]string{{"a", "1"}, {"c", "3"}} {
		v, err := s.Get("s", []byte(kv[0]))
		require.NoError(t, err)
		require.Equal(t, kv[1], string(v))
	}
	_, err = s.Get("s", []byte("b"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFile_RollbackDropsTornRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.log")
	s := openFile(t, path)
	require.NoError(t, s.Set("s", []byte("a"), []byte("1")))

	rec := appendRecord(nil, opSet, "s", []byte("torn"), []byte("value"))
	_, err := s.f.Write(rec[:len(rec)/2])
	require.NoError(t, err)
	s.mu.Lock()
	require.NoError(t, s.rollback())
	s.mu.Unlock()

	require.NoError(t, s.Set("s", []byte("b"), []byte("2")))
	require.NoError(t, s.Close())

	s = openFile(t, path)
	defer s.Close()
	for _, kv := range [][2]string{{"a", "1"}, {"b", "2"}} {
		v, err := s.Get("s", []byte(kv[0]))
		require.NoError(t, err)
		require.Equal(t, kv[1], string(v))
	}
	_, err = s.Get("s", []byte("torn"))
	require.ErrorIs(t, err, ErrNotFound)
	require.Zero(t, s.Garbage())
}

func TestFile_ConcurrentRemoves(t *testing.T) {
	s := openFile(t, filepath.Join(t.TempDir(), "cache.log"))
	defer s.Close()
	require.NoError(t, s.Set("s", []byte("k"), []byte("v")))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Remove("s", []byte("k")))
		}()
	}
	wg.Wait()

	// the set and a single removal record
	require.Equal(t, 2, s.Garbage())
	_, err := s.Get("s", []byte("k"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFile_RecordCodec(t *testing.T) {
	rec := appendRecord(nil, opSet, "scope", []byte("key"), []byte("value"))
	body, n, err := readRecord(rec)
	require.NoError(t, err)
	require.Equal(t, len(rec), n)

	op, scope, key, value, err := decodeBody(body)
	require.NoError(t, err)
	require.Equal(t, byte(opSet), op)
	require.Equal(t, "scope", scope)
	require.Equal(t, "key", string(key))
	require.Equal(t, "value", string(value))

	for i := range rec {
		_, _, err := readRecord(rec[:i])
		require.Error(t, err, "prefix of %d bytes", i)
	}
}
