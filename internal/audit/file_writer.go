package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	// GenesisHash is the HashPrev of the first event in a chain.
	GenesisHash = "sha256:genesis"

	// HashPrefix is prepended to all hash values.
	HashPrefix = "sha256:"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 1 << 20

// FileWriter appends hash-chained events to a JSONL file.
type FileWriter struct {
	mu       sync.Mutex
	file     *os.File
	lastHash string
}

var _ Writer = (*FileWriter)(nil)

// NewFileWriter opens path for appending, continuing the chain of any
// events already in the file.
func NewFileWriter(path string) (*FileWriter, error) {
	lastHash := GenesisHash
	err := scanEvents(path, func(_ int, line []byte) error {
		var tail struct {
			Hash string `json:"hash"`
		}
		if err := json.Unmarshal(line, &tail); err != nil {
			return fmt.Errorf("failed to parse event: %w", err)
		}
		if tail.Hash == "" {
			return fmt.Errorf("event has no hash")
		}
		lastHash = tail.Hash
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read last hash from existing log: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &FileWriter{file: file, lastHash: lastHash}, nil
}

// Write chains, appends and syncs one event.
func (w *FileWriter) Write(event *Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	event.HashPrev = w.lastHash
	canonical, err := event.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	event.Hash = chainHash(canonical, w.lastHash)

	line, err := event.JSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit log: %w", err)
	}

	w.lastHash = event.Hash
	return nil
}

// Close syncs and closes the file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// LastHash returns the hash of the last written event.
func (w *FileWriter) LastHash() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastHash
}

// chainHash computes SHA256(data || prevHash).
func chainHash(data []byte, prevHash string) string {
	h := sha256.New()
	_, _ = h.Write(data)
	_, _ = h.Write([]byte(prevHash))
	return HashPrefix + hex.EncodeToString(h.Sum(nil))
}

// scanEvents calls fn for every non-blank line of the log with its 1-based line number.
func scanEvents(path string, fn func(lineNum int, line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return scanLines(f, fn)
}

func scanLines(r io.Reader, fn func(lineNum int, line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn(lineNum, []byte(line)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// VerifyChain checks the hash chain of an audit log file.
// It returns the number of valid events before the first error.
func VerifyChain(path string) (int, error) {
	expectedPrev := GenesisHash
	valid := 0

	err := scanEvents(path, func(lineNum int, line []byte) error {
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		if event.HashPrev != expectedPrev {
			return fmt.Errorf("line %d: hash chain broken: expected prev=%s, got prev=%s",
				lineNum, expectedPrev, event.HashPrev)
		}
		canonical, err := event.CanonicalJSON()
		if err != nil {
			return fmt.Errorf("line %d: failed to serialize: %w", lineNum, err)
		}
		if want := chainHash(canonical, event.HashPrev); event.Hash != want {
			return fmt.Errorf("line %d: hash mismatch: expected=%s, got=%s", lineNum, want, event.Hash)
		}
		expectedPrev = event.Hash
		valid++
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("failed to read audit log: %w", err)
		}
		return valid, err
	}
	return valid, nil
}

// Tail returns the last n events of the log, oldest first.
func Tail(path string, n int) ([]Event, error) {
	var events []Event
	err := scanEvents(path, func(lineNum int, line []byte) error {
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		events = append(events, event)
		if n > 0 && len(events) > n {
			events = events[1:]
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return events, nil
}
