package capability

import (
	"bytes"
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Column headers of the two capability tables.
const (
	ColumnKeyPairAlgorithm   = "keypair-algorithm"
	ColumnSignatureAlgorithm = "signature-algorithm"
	ColumnAlgorithm          = "algorithm"
	ColumnKeySize            = "keysize"
)

//go:embed data/*.csv
var embedded embed.FS

// DataLoadError reports a capability source that could not be read or parsed.
type DataLoadError struct {
	Source string // Source name (file path or embedded name)
	Line   int    // 1-based line number, 0 if not line specific
	Err    error  // Underlying error
}

// Error implements the error interface.
func (e *DataLoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("capability source %s line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("capability source %s: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DataLoadError) Unwrap() error { return e.Err }

// ErrMissingColumn indicates a table header without a required column.
var ErrMissingColumn = errors.New("missing column")

// Source is a named, reopenable capability table.
type Source struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// FileSource reads a table from the file system.
func FileSource(path string) Source {
	return Source{
		Name: path,
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// BytesSource reads a table from memory.
func BytesSource(name string, data []byte) Source {
	return Source{
		Name: name,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

// EmbeddedSignatures is the built-in signature algorithm table.
func EmbeddedSignatures() Source {
	return embeddedSource("data/signature_algorithms.csv")
}

// EmbeddedKeySizes is the built-in key size table.
func EmbeddedKeySizes() Source {
	return embeddedSource("data/key_sizes.csv")
}

func embeddedSource(name string) Source {
	return Source{
		Name: "embedded:" + name,
		Open: func() (io.ReadCloser, error) { return embedded.Open(name) },
	}
}

// Load reads both tables and builds a Registry.
// Any read or parse failure is reported as a *DataLoadError.
func Load(sigs, sizes Source) (*Registry, error) {
	sigEntries, err := readSource(sigs, ReadSignatureEntries)
	if err != nil {
		return nil, err
	}
	sizeEntries, err := readSource(sizes, ReadKeySizeEntries)
	if err != nil {
		return nil, err
	}
	return Build(sigEntries, sizeEntries), nil
}

// LoadDefaults builds a Registry from the embedded tables.
func LoadDefaults() (*Registry, error) {
	return Load(EmbeddedSignatures(), EmbeddedKeySizes())
}

func readSource[T any](src Source, read func(io.Reader) ([]T, error)) ([]T, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, &DataLoadError{Source: src.Name, Err: err}
	}
	defer func() { _ = rc.Close() }()

	entries, err := read(rc)
	if err != nil {
		var dle *DataLoadError
		if errors.As(err, &dle) {
			dle.Source = src.Name
			return nil, dle
		}
		return nil, &DataLoadError{Source: src.Name, Err: err}
	}
	return entries, nil
}

// ReadSignatureEntries parses a table with keypair-algorithm and
// signature-algorithm columns.
func ReadSignatureEntries(r io.Reader) ([]SignatureEntry, error) {
	var entries []SignatureEntry
	err := readTable(r, []string{ColumnKeyPairAlgorithm, ColumnSignatureAlgorithm}, func(cells []string, line int) error {
		if cells[1] == "" {
			return &DataLoadError{Line: line, Err: fmt.Errorf("empty %s", ColumnSignatureAlgorithm)}
		}
		entries = append(entries, SignatureEntry{KeyPairAlgorithm: cells[0], SignatureAlgorithm: cells[1]})
		return nil
	})
	return entries, err
}

// ReadKeySizeEntries parses a table with algorithm and keysize columns.
// A blank keysize cell yields an entry with a nil KeySize.
func ReadKeySizeEntries(r io.Reader) ([]KeySizeEntry, error) {
	var entries []KeySizeEntry
	err := readTable(r, []string{ColumnAlgorithm, ColumnKeySize}, func(cells []string, line int) error {
		entry := KeySizeEntry{Algorithm: cells[0]}
		if cells[1] != "" {
			size, err := strconv.Atoi(cells[1])
			if err != nil || size <= 0 {
				return &DataLoadError{Line: line, Err: fmt.Errorf("invalid key size %q", cells[1])}
			}
			entry.KeySize = &size
		}
		entries = append(entries, entry)
		return nil
	})
	return entries, err
}

// readTable reads a header-addressed CSV table and hands each record's
// requested columns, trimmed, to fn.
func readTable(r io.Reader, columns []string, fn func(cells []string, line int) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return &DataLoadError{Line: 1, Err: fmt.Errorf("%w: empty table", ErrMissingColumn)}
	}
	if err != nil {
		return &DataLoadError{Err: err}
	}

	index := make([]int, len(columns))
	for i, col := range columns {
		index[i] = -1
		for j, h := range header {
			if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), col) {
				index[i] = j
				break
			}
		}
		if index[i] < 0 {
			return &DataLoadError{Line: 1, Err: fmt.Errorf("%w %q", ErrMissingColumn, col)}
		}
	}

	cells := make([]string, len(columns))
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &DataLoadError{Err: err}
		}
		line, _ := cr.FieldPos(0)

		blank := true
		for i, idx := range index {
			cells[i] = ""
			if idx < len(record) {
				cells[i] = strings.TrimSpace(record[idx])
			}
			if cells[i] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		if cells[0] == "" {
			return &DataLoadError{Line: line, Err: fmt.Errorf("empty %s", columns[0])}
		}
		if err := fn(cells, line); err != nil {
			return err
		}
	}
}
