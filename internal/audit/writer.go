package audit

// Writer defines the interface for audit log writers.
//
// Implementations MUST:
//   - Return an error if the write fails (audit fails = operation fails)
//   - Flush to persistent storage before returning from Write
//   - Calculate and set the hash chain (HashPrev, Hash)
type Writer interface {
	Write(event *Event) error
	Close() error

	// LastHash returns the hash of the last written event,
	// GenesisHash if none.
	LastHash() string
}

// NopWriter is a no-op writer that discards all events.
// Used when audit logging is disabled.
type NopWriter struct{}

var _ Writer = (*NopWriter)(nil)

func (NopWriter) Write(*Event) error { return nil }
func (NopWriter) Close() error       { return nil }
func (NopWriter) LastHash() string   { return GenesisHash }
