// Package validation defines the error taxonomy shared by the request model,
// the extension validator and the wizard state machine.
package validation

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a validation failure.
type Kind string

// Validation failure kinds.
const (
	EmptyCommonName                Kind = "EMPTY_COMMON_NAME"
	InvalidOid                     Kind = "INVALID_OID"
	InvalidOctetValue              Kind = "INVALID_OCTET_VALUE"
	PasswordMismatch               Kind = "PASSWORD_MISMATCH"
	InconsistentVersionExtensions  Kind = "INCONSISTENT_VERSION_EXTENSIONS"
	UnsupportedVersion             Kind = "UNSUPPORTED_VERSION"
	InvalidValidity                Kind = "INVALID_VALIDITY"
	InvalidSerial                  Kind = "INVALID_SERIAL"
	IncompatibleSignatureAlgorithm Kind = "INCOMPATIBLE_SIGNATURE_ALGORITHM"
	InvalidExtensionIndex          Kind = "INVALID_EXTENSION_INDEX"
)

// Sentinel errors, one per kind.
// Use errors.Is() to match a *ValidationError against its kind.
var (
	// ErrEmptyCommonName indicates a blank issuer or subject common name.
	ErrEmptyCommonName = &kindError{EmptyCommonName, "common name must not be empty"}

	// ErrInvalidOid indicates an extension identifier that is not a dotted OID.
	ErrInvalidOid = &kindError{InvalidOid, "invalid object identifier"}

	// ErrInvalidOctetValue indicates an extension value that cannot be encoded as an OCTET STRING.
	ErrInvalidOctetValue = &kindError{InvalidOctetValue, "invalid octet string value"}

	// ErrPasswordMismatch indicates the password confirmation differs from the password.
	ErrPasswordMismatch = &kindError{PasswordMismatch, "passwords do not match"}

	// ErrInconsistentVersionExtensions indicates a version 1 request carrying extensions.
	ErrInconsistentVersionExtensions = &kindError{InconsistentVersionExtensions, "version 1 certificates cannot carry extensions"}

	// ErrUnsupportedVersion indicates a certificate version other than 1 or 3.
	ErrUnsupportedVersion = &kindError{UnsupportedVersion, "unsupported certificate version"}

	// ErrInvalidValidity indicates a missing or inverted validity window.
	ErrInvalidValidity = &kindError{InvalidValidity, "invalid validity period"}

	// ErrInvalidSerial indicates a missing or non-positive serial number.
	ErrInvalidSerial = &kindError{InvalidSerial, "invalid serial number"}

	// ErrIncompatibleSignatureAlgorithm indicates a signature algorithm the key pair cannot produce.
	ErrIncompatibleSignatureAlgorithm = &kindError{IncompatibleSignatureAlgorithm, "signature algorithm not supported by key pair algorithm"}

	// ErrInvalidExtensionIndex indicates an extension row that does not exist.
	ErrInvalidExtensionIndex = &kindError{InvalidExtensionIndex, "no extension at index"}
)

type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.msg }

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Kind    Kind   // Failure classification
	Field   string // Field that failed validation
	Value   string // The invalid value (if safe to include)
	Message string // Description of the validation failure
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("validation failed for %s=%q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// Is reports whether target is the sentinel for this error's kind.
func (e *ValidationError) Is(target error) bool {
	var ke *kindError
	if errors.As(target, &ke) {
		return ke.kind == e.Kind
	}
	return false
}

// New creates a new ValidationError.
func New(kind Kind, field, value, message string) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Value: value, Message: message}
}

// KindOf returns the kind of the first ValidationError in err's chain.
func KindOf(err error) (Kind, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind, true
	}
	return "", false
}

// CommonName checks that cn is not blank once surrounding whitespace is removed.
func CommonName(field, cn string) error {
	if strings.TrimSpace(cn) == "" {
		return New(EmptyCommonName, field, "", "common name is required")
	}
	return nil
}

// ConfirmPassword checks that the repeated password matches.
func ConfirmPassword(password, repeat string) error {
	if password != repeat {
		return New(PasswordMismatch, "password", "", "password and repeated password differ")
	}
	return nil
}
