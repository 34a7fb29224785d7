package record

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"codeberg.org/mutker/housemon/internal/errors"
)

// Store appends AveragedRecords to a CSV file created by Open.
type Store struct {
	path    string
	rotated string
	rows    int
	mu      sync.Mutex
}

// RotatedPath returns where an existing file at path is moved by Open:
// "<path without extension>Old<extension>".
func RotatedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + rotatedSuffix + ext
}

// Open validates path, rotates any existing file out of the way and creates
// a fresh file holding only the header. A previous rotated file at the same
// location is overwritten.
func Open(path string) (*Store, error) {
	errFactory := errors.New()

	if filepath.Ext(path) != Extension {
		return nil, errFactory.WithData(errors.ErrInvalidRecordFile, path)
	}

	s := &Store{path: path}

	if _, err := os.Stat(path); err == nil {
		s.rotated = RotatedPath(path)
		if err := os.Rename(path, s.rotated); err != nil {
			return nil, errFactory.Wrap(errors.ErrRecordRotate, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, errFactory.Wrap(errors.ErrRecordRotate, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
			return nil, errFactory.Wrap(errors.ErrRecordCreate, err)
		}
	}

	data, err := encodeRow(Header)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrRecordCreate, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, defaultFilePerm)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrRecordCreate, err)
	}
	if err := writeAndClose(f, data); err != nil {
		return nil, errFactory.Wrap(errors.ErrRecordCreate, err)
	}

	return s, nil
}

// Append durably writes one row. The file must still exist; a missing file
// is reported rather than silently recreated without its header.
func (s *Store) Append(r AveragedRecord) error {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := encodeRow(r.row())
	if err != nil {
		return errFactory.Wrap(errors.ErrRecordWrite, err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, defaultFilePerm)
	if err != nil {
		return errFactory.Wrap(errors.ErrRecordWrite, err)
	}
	if err := writeAndClose(f, data); err != nil {
		return errFactory.Wrap(errors.ErrRecordWrite, err)
	}

	s.rows++
	return nil
}

// Path returns the live record file.
func (s *Store) Path() string {
	return s.path
}

// Rotated returns the path the previous file was moved to, or "" if there
// was nothing to rotate.
func (s *Store) Rotated() string {
	return s.rotated
}

// Rows returns the number of rows appended through this Store.
func (s *Store) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

func encodeRow(fields []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, err
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func writeAndClose(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", f.Name(), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", f.Name(), err)
	}
	return f.Close()
}
