package source

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ids.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.csv"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Open missing file = %v, want os.ErrNotExist", err)
	}
}

func TestOpenEmptyFile(t *testing.T) {
	_, err := Open(writeCSV(t, ""))
	if !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("Open empty file = %v, want ErrEmptyFile", err)
	}
}

func TestHeaderOnlyYieldsNoRecords(t *testing.T) {
	r, err := Open(writeCSV(t, "resourceId,package\n"))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next on header-only file = %v, want io.EOF", err)
	}
}

func TestHeaderSkippedAndFirstColumnTrimmed(t *testing.T) {
	r, err := Open(writeCSV(t, "resourceId,package\n i-1234abcd ,X\ni-00000000,Y\n"))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	rec, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Row != 1 || rec.RawID != "i-1234abcd" {
		t.Errorf("first record = %+v, want row 1 raw i-1234abcd", rec)
	}

	rec, err = r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Row != 2 || rec.RawID != "i-00000000" {
		t.Errorf("second record = %+v, want row 2 raw i-00000000", rec)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next past end = %v, want io.EOF", err)
	}
}

func TestMalformedRowDoesNotStopReader(t *testing.T) {
	// Middle row has the wrong column count.
	r, err := Open(writeCSV(t, "resourceId,package\ni-1234abcd,X\nonly-one-column\ni-00000000,Y\n"))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if rec, err := r.Next(); err != nil || rec.RawID != "i-1234abcd" {
		t.Fatalf("row 1 = %+v, %v", rec, err)
	}

	rec, err := r.Next()
	if !errors.Is(err, ErrMalformedRow) {
		t.Fatalf("row 2 = %v, want ErrMalformedRow", err)
	}
	if rec.Row != 2 {
		t.Errorf("malformed record row = %d, want 2", rec.Row)
	}

	rec, err = r.Next()
	if err != nil || rec.RawID != "i-00000000" {
		t.Fatalf("row 3 after malformed = %+v, %v; reader should continue", rec, err)
	}
}
