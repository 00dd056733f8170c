package audit

import (
	"fmt"
	"sync"
)

var (
	globalWriter Writer = NopWriter{}
	globalMu     sync.RWMutex
	enabled      bool
)

// Init sets the global audit writer. A nil writer disables audit logging.
func Init(w Writer) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if w == nil {
		globalWriter = NopWriter{}
		enabled = false
		return nil
	}
	globalWriter = w
	enabled = true
	return nil
}

// InitFile sets the global audit writer to a file writer on path.
// An empty path disables audit logging.
func InitFile(path string) error {
	if path == "" {
		return Init(nil)
	}
	w, err := NewFileWriter(path)
	if err != nil {
		return err
	}
	return Init(w)
}

// Close closes the global audit writer and disables audit logging.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	err := globalWriter.Close()
	globalWriter = NopWriter{}
	enabled = false
	return err
}

// Enabled returns whether audit logging is active.
func Enabled() bool {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return enabled
}

// Log writes an audit event to the global writer.
func Log(event *Event) error {
	globalMu.RLock()
	w := globalWriter
	globalMu.RUnlock()

	return w.Write(event)
}

// MustLog writes an audit event and returns an error suitable for
// failing the parent operation if audit logging fails.
//
// Usage:
//
//	if err := audit.MustLog(event); err != nil {
//	    return err // Operation fails if audit fails
//	}
func MustLog(event *Event) error {
	if err := Log(event); err != nil {
		return fmt.Errorf("audit log failed: %w", err)
	}
	return nil
}

func resultOf(err error) (Result, string) {
	if err != nil {
		return ResultFailure, err.Error()
	}
	return ResultSuccess, ""
}

// LogRegistryLoaded logs the outcome of loading the capability tables.
func LogRegistryLoaded(source string, algorithms int, loadErr error) error {
	result, reason := resultOf(loadErr)
	event := NewEvent(EventRegistryLoaded, result).
		WithActor(Actor{Type: "service", ID: "certwizard"}).
		WithObject(Object{Type: "registry", Path: source}).
		WithContext(Context{Count: algorithms, Reason: reason})
	return MustLog(event)
}

// LogRequestStarted logs the creation of a request session.
func LogRequestStarted(sessionID, keyPairAlgorithm, signatureAlgorithm string) error {
	event := NewEvent(EventRequestStarted, ResultSuccess).
		WithObject(Object{Type: "request", ID: sessionID}).
		WithContext(Context{KeyPairAlgorithm: keyPairAlgorithm, SignatureAlgorithm: signatureAlgorithm})
	return MustLog(event)
}

// RequestSummary is the non-secret part of a request recorded in the audit log.
type RequestSummary struct {
	SessionID          string
	Serial             string
	Subject            string
	Issuer             string
	KeyPairAlgorithm   string
	SignatureAlgorithm string
	Version            int
	Extensions         int
}

func (s RequestSummary) object(objType string) Object {
	return Object{Type: objType, ID: s.SessionID, Serial: s.Serial, Subject: s.Subject, Issuer: s.Issuer}
}

func (s RequestSummary) context(reason string) Context {
	return Context{
		KeyPairAlgorithm:   s.KeyPairAlgorithm,
		SignatureAlgorithm: s.SignatureAlgorithm,
		Version:            s.Version,
		Extensions:         s.Extensions,
		Reason:             reason,
	}
}

// LogRequestFinished logs a Finish attempt.
func LogRequestFinished(s RequestSummary, finishErr error) error {
	result, reason := resultOf(finishErr)
	event := NewEvent(EventRequestFinished, result).
		WithObject(s.object("request")).
		WithContext(s.context(reason))
	return MustLog(event)
}

// LogRequestCancelled logs an abandoned request session.
func LogRequestCancelled(sessionID, state string) error {
	event := NewEvent(EventRequestCancelled, ResultSuccess).
		WithObject(Object{Type: "request", ID: sessionID}).
		WithContext(Context{State: state})
	return MustLog(event)
}

// LogCertIssued logs a certificate issuance attempt.
func LogCertIssued(s RequestSummary, issueErr error) error {
	result, reason := resultOf(issueErr)
	event := NewEvent(EventCertIssued, result).
		WithObject(s.object("certificate")).
		WithContext(s.context(reason))
	return MustLog(event)
}
