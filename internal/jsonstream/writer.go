// Package jsonstream writes JSON arrays one record at a time so that an
// interrupted run leaves every completed record on disk.
package jsonstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const (
	openArray  = "[\n"
	separator  = ",\n"
	closeArray = "\n]\n"
)

// ErrClosed is returned when appending to a writer that has been closed.
var ErrClosed = errors.New("jsonstream: writer is closed")

// Writer appends records to a JSON array file. Each Append is a single
// write to the underlying file, so records already appended survive a crash
// even though the closing bracket is missing until Close.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	count  int
	closed bool
}

// Create creates (or truncates) path and writes the array opening.
func Create(path string) (*Writer, error) {
	return create(path, os.O_TRUNC)
}

// CreateExclusive is like Create but fails with an error matching
// fs.ErrExist when path already exists, so no two writers share a file.
func CreateExclusive(path string) (*Writer, error) {
	return create(path, os.O_EXCL)
}

func create(path string, mode int) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|mode, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := f.WriteString(openArray); err != nil {
		f.Close() //nolint:errcheck
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return &Writer{f: f, path: path}, nil
}

// Path returns the file the writer appends to.
func (w *Writer) Path() string {
	return w.path
}

// Count returns how many records have been appended.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Append encodes v and writes it as the next array element.
func (w *Writer) Append(v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	var buf bytes.Buffer
	if w.count > 0 {
		buf.WriteString(separator)
	}
	buf.Write(data)

	if _, err := w.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("appending to %s: %w", w.path, err)
	}
	w.count++
	return nil
}

// Close writes the array terminator and closes the file. Calling Close more
// than once is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.f.WriteString(closeArray); err != nil {
		w.f.Close() //nolint:errcheck
		return fmt.Errorf("finalizing %s: %w", w.path, err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close() //nolint:errcheck
		return fmt.Errorf("syncing %s: %w", w.path, err)
	}
	return w.f.Close()
}

// Recover rewrites a possibly unterminated array file so that it holds every
// complete record it contained, as a valid JSON array. It returns the number
// of records kept.
func Recover(path string) (int, error) {
	w, err := Resume(path)
	if err != nil {
		return 0, err
	}
	n := w.Count()
	return n, w.Close()
}

// Resume recovers path like Recover but leaves the writer open so more
// records can be appended.
func Resume(path string) (*Writer, error) {
	records, err := readPartial(path)
	if err != nil {
		return nil, err
	}

	tmp := path + ".recover"
	w, err := Create(tmp)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := w.Append(rec); err != nil {
			w.Close()      //nolint:errcheck
			os.Remove(tmp) //nolint:errcheck
			return nil, err
		}
	}
	if err := w.f.Sync(); err != nil {
		w.Close()      //nolint:errcheck
		os.Remove(tmp) //nolint:errcheck
		return nil, fmt.Errorf("syncing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		w.Close()      //nolint:errcheck
		os.Remove(tmp) //nolint:errcheck
		return nil, fmt.Errorf("replacing %s: %w", path, err)
	}
	w.path = path
	return w, nil
}

// ReadAll decodes a finalized array file into a slice of T.
func ReadAll[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return out, nil
}

// readPartial returns every complete element of the array in path, stopping
// silently at the first truncated or malformed element.
func readPartial(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	dec := json.NewDecoder(f)
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("%s does not contain a JSON array", path)
	}

	var records []json.RawMessage
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			break
		}
		records = append(records, raw)
	}
	return records, nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
