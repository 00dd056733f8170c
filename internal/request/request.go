// Package request holds the mutable certificate request aggregate that the
// wizard edits step by step.
package request

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"slices"
	"time"

	"github.com/remiblancher/certwizard/internal/extension"
	"github.com/remiblancher/certwizard/internal/validation"
)

// Supported certificate versions.
const (
	Version1 = 1
	Version3 = 3
)

// serialBits bounds generated serial numbers (RFC 5280 allows 20 octets).
const serialBits = 159

// Validity is the certificate validity window.
type Validity struct {
	NotBefore time.Time `json:"notBefore" yaml:"notBefore" cbor:"1,keyasint"`
	NotAfter  time.Time `json:"notAfter" yaml:"notAfter" cbor:"2,keyasint"`
}

// IsZero reports whether neither bound is set.
func (v Validity) IsZero() bool {
	return v.NotBefore.IsZero() && v.NotAfter.IsZero()
}

// Days returns the number of whole days covered by the window.
func (v Validity) Days() int {
	return int(v.NotAfter.Sub(v.NotBefore) / (24 * time.Hour))
}

// Check validates that both bounds are set and NotAfter follows NotBefore.
func (v Validity) Check() error {
	if v.NotBefore.IsZero() || v.NotAfter.IsZero() {
		return validation.New(validation.InvalidValidity, "validity", "", "notBefore and notAfter are required")
	}
	if !v.NotAfter.After(v.NotBefore) {
		return validation.New(validation.InvalidValidity, "validity", v.NotAfter.Format(time.RFC3339),
			"notAfter must be after notBefore")
	}
	return nil
}

// OneYearFrom returns a validity window of one calendar year starting at t.
func OneYearFrom(t time.Time) Validity {
	return Validity{NotBefore: t, NotAfter: t.AddDate(1, 0, 0)}
}

// KeyInfo describes a key without exposing key material to the wizard.
type KeyInfo struct {
	Algorithm string `json:"algorithm"`
	KeySize   int    `json:"keySize,omitempty"`
	Encoded   []byte `json:"encoded,omitempty"`
}

// Request is the certificate request being assembled.
type Request struct {
	PrivateKey         *KeyInfo
	PublicKey          *KeyInfo
	Issuer             DistinguishedName
	Subject            DistinguishedName
	Serial             *big.Int
	Validity           Validity
	Version            int
	KeyPairAlgorithm   string
	SignatureAlgorithm string
	Extensions         []extension.Entry
}

// Option configures New.
type Option func(*options)

type options struct {
	now    func() time.Time
	random io.Reader
}

// WithClock sets the time source for the default validity window.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRandom sets the entropy source for the default serial number.
func WithRandom(r io.Reader) Option {
	return func(o *options) { o.random = r }
}

// New creates a request with the wizard defaults: version 3, a one year
// validity starting now, a random serial and empty names.
func New(keyPairAlgorithm, signatureAlgorithm string, opts ...Option) (*Request, error) {
	o := options{now: time.Now, random: rand.Reader}
	for _, opt := range opts {
		opt(&o)
	}

	serial, err := RandomSerial(o.random)
	if err != nil {
		return nil, err
	}

	return &Request{
		Serial:             serial,
		Validity:           OneYearFrom(o.now().UTC().Truncate(time.Second)),
		Version:            Version3,
		KeyPairAlgorithm:   keyPairAlgorithm,
		SignatureAlgorithm: signatureAlgorithm,
	}, nil
}

// RandomSerial returns a positive random serial number.
func RandomSerial(random io.Reader) (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), serialBits)
	for {
		n, err := rand.Int(random, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to generate serial number: %w", err)
		}
		if n.Sign() > 0 {
			return n, nil
		}
	}
}

// CheckVersion rejects versions other than 1 and 3.
func CheckVersion(v int) error {
	if v != Version1 && v != Version3 {
		return validation.New(validation.UnsupportedVersion, "version", fmt.Sprint(v), "version must be 1 or 3")
	}
	return nil
}

// CheckSerial rejects missing and non-positive serial numbers.
func CheckSerial(serial *big.Int) error {
	if serial == nil {
		return validation.New(validation.InvalidSerial, "serial", "", "serial number is required")
	}
	if serial.Sign() <= 0 {
		return validation.New(validation.InvalidSerial, "serial", serial.String(), "serial number must be positive")
	}
	return nil
}

// Validate checks the whole request as required before issuance.
func (r *Request) Validate() error {
	if err := validation.CommonName("issuer.commonName", r.Issuer.CommonName); err != nil {
		return err
	}
	if err := validation.CommonName("subject.commonName", r.Subject.CommonName); err != nil {
		return err
	}
	if err := CheckSerial(r.Serial); err != nil {
		return err
	}
	if err := r.Validity.Check(); err != nil {
		return err
	}
	if err := CheckVersion(r.Version); err != nil {
		return err
	}
	if r.Version == Version1 && len(r.Extensions) > 0 {
		return validation.New(validation.InconsistentVersionExtensions, "extensions", fmt.Sprint(len(r.Extensions)),
			"remove the extensions or switch to version 3")
	}
	for i, e := range r.Extensions {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("extension %d: %w", i, err)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (r *Request) Clone() *Request {
	c := *r
	if r.Serial != nil {
		c.Serial = new(big.Int).Set(r.Serial)
	}
	c.PrivateKey = cloneKey(r.PrivateKey)
	c.PublicKey = cloneKey(r.PublicKey)
	c.Extensions = slices.Clone(r.Extensions)
	return &c
}

func cloneKey(k *KeyInfo) *KeyInfo {
	if k == nil {
		return nil
	}
	c := *k
	c.Encoded = slices.Clone(k.Encoded)
	return &c
}
