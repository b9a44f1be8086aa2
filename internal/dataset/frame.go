// Package dataset holds the tabular values that flow between pipeline
// stages: string frames read from CSV and numeric matrices built from them.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrNoHeader is returned when a CSV source has no header line.
var ErrNoHeader = errors.New("csv has no header")

// Frame is an ordered set of rows under a fixed named header.
// Missing cells are kept verbatim; interpreting them is up to the caller.
type Frame struct {
	Columns []string
	Rows    [][]string
}

// ReadCSV reads the CSV file at path. The first line is the header and
// every row must have the same number of fields.
func ReadCSV(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSVFrom(f)
}

// ReadCSVFrom reads a CSV stream with a header line.
func ReadCSVFrom(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	frame := &Frame{Columns: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(frame.Rows)+1, err)
		}
		frame.Rows = append(frame.Rows, rec)
	}
	return frame, nil
}

// ReadHeader returns only the header fields of the CSV file at path.
func ReadHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	return header, nil
}

// Write writes the frame as CSV, header first.
func (f *Frame) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(f.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteCSV replaces the file at path with the frame. The content is
// written to a sibling temporary file first and renamed into place.
func (f *Frame) WriteCSV(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// Index returns the position of column name, or -1.
func (f *Frame) Index(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the values of column name.
func (f *Frame) Column(name string) ([]string, bool) {
	idx := f.Index(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]string, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = row[idx]
	}
	return out, true
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		Columns: append([]string(nil), f.Columns...),
		Rows:    make([][]string, len(f.Rows)),
	}
	for i, row := range f.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}
