package dto

import "github.com/remiblancher/certwizard/internal/wizard"

// SessionCreateRequest starts a request session.
type SessionCreateRequest struct {
	// KeyPairAlgorithm selects the key to generate (required).
	KeyPairAlgorithm string `json:"keypair_algorithm"`

	// KeySize selects the key size. Zero uses the default.
	KeySize int `json:"key_size,omitempty"`

	// SignatureAlgorithm overrides the registry default.
	SignatureAlgorithm string `json:"signature_algorithm,omitempty"`
}

// ExtensionInfo is one extension row.
type ExtensionInfo struct {
	ID       string `json:"id"`
	Critical bool   `json:"critical"`
	Value    string `json:"value"`
}

// RequestInfo is the non-secret view of the request being edited.
type RequestInfo struct {
	KeyPairAlgorithm   string          `json:"keypair_algorithm"`
	KeySize            int             `json:"key_size,omitempty"`
	SignatureAlgorithm string          `json:"signature_algorithm"`
	Version            int             `json:"version"`
	Serial             string          `json:"serial"` // hex
	Issuer             SubjectInfo     `json:"issuer"`
	Subject            SubjectInfo     `json:"subject"`
	Validity           ValidityInfo    `json:"validity"`
	Extensions         []ExtensionInfo `json:"extensions"`
}

// SessionResponse describes a request session.
type SessionResponse struct {
	ID         string            `json:"id"`
	Navigation wizard.Navigation `json:"navigation"`

	// Request is omitted once the session has been cancelled.
	Request *RequestInfo `json:"request,omitempty"`
}

// DatesRequest updates the dates step. Absent fields are left unchanged.
type DatesRequest struct {
	Version            *int   `json:"version,omitempty"`
	SignatureAlgorithm string `json:"signature_algorithm,omitempty"`

	// Serial is hex with a 0x prefix or decimal.
	Serial         string `json:"serial,omitempty"`
	GenerateSerial bool   `json:"generate_serial,omitempty"`

	NotBefore string `json:"not_before,omitempty"` // RFC3339
	NotAfter  string `json:"not_after,omitempty"`  // RFC3339
}

// CertificateResponse is returned when a session finishes.
type CertificateResponse struct {
	SessionID          string       `json:"session_id"`
	Serial             string       `json:"serial"`
	Subject            SubjectInfo  `json:"subject"`
	Issuer             SubjectInfo  `json:"issuer"`
	SignatureAlgorithm string       `json:"signature_algorithm"`
	Version            int          `json:"version"`
	Validity           ValidityInfo `json:"validity"`

	// Fingerprint is the SHA-256 fingerprint (hex).
	Fingerprint string `json:"fingerprint"`

	// Certificate is the PEM-encoded certificate.
	Certificate string `json:"certificate"`
}
