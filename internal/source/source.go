// Package source reads the operator's CSV of instance IDs. The first
// row is a header and is skipped; the first column of each remaining
// row is the instance ID. Extra columns are ignored.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrEmptyFile is returned when the file does not even contain a
// header row. A file with a header and zero data rows is not an error;
// it simply yields no records.
var ErrEmptyFile = errors.New("input file is empty")

// ErrMalformedRow marks a row the CSV parser rejected, e.g. one with a
// different column count than the header. The reader stays usable
// after returning it.
var ErrMalformedRow = errors.New("malformed row")

// Record is one data row of the input file.
type Record struct {
	// Row is the 1-based data row number (the header is not counted).
	Row int
	// RawID is the first column with surrounding whitespace stripped.
	// It has not been validated.
	RawID string
}

// Reader yields records lazily, one per call to Next.
type Reader struct {
	f   *os.File
	cr  *csv.Reader
	row int
}

// Open opens the CSV at path and consumes the header row. The header's
// column count becomes the expected count for every data row.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	cr := csv.NewReader(f)
	cr.TrimLeadingSpace = true
	if _, err := cr.Read(); err != nil {
		f.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	return &Reader{f: f, cr: cr}, nil
}

// Next returns the next record. It returns io.EOF when the file is
// exhausted and a wrapped ErrMalformedRow for rows the parser rejects;
// the caller may keep calling Next after a malformed row.
func (r *Reader) Next() (Record, error) {
	rec, err := r.cr.Read()
	if err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			r.row++
			return Record{Row: r.row}, fmt.Errorf("%w: row %d: %v", ErrMalformedRow, r.row, err)
		}
		// Not a per-row parse problem; the file itself is unreadable.
		return Record{}, fmt.Errorf("read row: %w", err)
	}
	r.row++
	return Record{Row: r.row, RawID: strings.TrimSpace(rec[0])}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}
