// Package draft saves and restores in-progress wizard sessions as CBOR.
//
// A draft holds the request fields and the current step. Key material is
// never written; only the key-pair algorithm and key size are kept so the
// caller can generate a fresh key pair on resume.
package draft

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/remiblancher/certwizard/internal/capability"
	"github.com/remiblancher/certwizard/internal/extension"
	"github.com/remiblancher/certwizard/internal/request"
	"github.com/remiblancher/certwizard/internal/wizard"
)

// formatVersion is the current draft encoding.
const formatVersion = 1

// ErrUnsupportedFormat indicates a draft written by an unknown format version.
var ErrUnsupportedFormat = errors.New("unsupported draft format")

type snapshot struct {
	Format             int                       `cbor:"1,keyasint"`
	State              string                    `cbor:"2,keyasint"`
	Issuer             request.DistinguishedName `cbor:"3,keyasint"`
	Subject            request.DistinguishedName `cbor:"4,keyasint"`
	Serial             *big.Int                  `cbor:"5,keyasint"`
	Validity           request.Validity          `cbor:"6,keyasint"`
	Version            int                       `cbor:"7,keyasint"`
	KeyPairAlgorithm   string                    `cbor:"8,keyasint"`
	KeySize            int                       `cbor:"9,keyasint,omitempty"`
	SignatureAlgorithm string                    `cbor:"10,keyasint"`
	Extensions         []entry                   `cbor:"11,keyasint,omitempty"`
}

type entry struct {
	ID       string `cbor:"1,keyasint"`
	Critical bool   `cbor:"2,keyasint,omitempty"`
	Value    string `cbor:"3,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("draft: invalid CBOR encoding options: %v", err))
	}
	encMode = em

	dm, err := cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("draft: invalid CBOR decoding options: %v", err))
	}
	decMode = dm
}

// Encode serializes an active wizard.
func Encode(w *wizard.Wizard) ([]byte, error) {
	if w.Status() != wizard.StatusActive {
		return nil, fmt.Errorf("cannot save draft: %w", wizard.ErrSessionClosed)
	}
	req := w.Request()

	s := snapshot{
		Format:             formatVersion,
		State:              w.State().String(),
		Issuer:             req.Issuer,
		Subject:            req.Subject,
		Serial:             req.Serial,
		Validity:           req.Validity,
		Version:            req.Version,
		KeyPairAlgorithm:   req.KeyPairAlgorithm,
		SignatureAlgorithm: req.SignatureAlgorithm,
	}
	if req.PublicKey != nil {
		s.KeySize = req.PublicKey.KeySize
	}
	for _, e := range req.Extensions {
		s.Extensions = append(s.Extensions, entry{ID: e.ID, Critical: e.Critical, Value: e.Value})
	}

	data, err := encMode.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode draft: %w", err)
	}
	return data, nil
}

// Decode restores a wizard from a draft. The restored request carries a
// public key descriptor with the algorithm and key size but no key bytes.
func Decode(data []byte, registry *capability.Registry, opts ...wizard.Option) (*wizard.Wizard, error) {
	var s snapshot
	if err := decMode.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode draft: %w", err)
	}
	if s.Format != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, s.Format)
	}
	state, err := wizard.ParseState(s.State)
	if err != nil {
		return nil, err
	}

	req := &request.Request{
		PublicKey:          &request.KeyInfo{Algorithm: s.KeyPairAlgorithm, KeySize: s.KeySize},
		Issuer:             s.Issuer,
		Subject:            s.Subject,
		Serial:             s.Serial,
		Validity:           s.Validity,
		Version:            s.Version,
		KeyPairAlgorithm:   s.KeyPairAlgorithm,
		SignatureAlgorithm: s.SignatureAlgorithm,
	}
	for _, e := range s.Extensions {
		req.Extensions = append(req.Extensions, extension.Entry{ID: e.ID, Critical: e.Critical, Value: e.Value})
	}

	return wizard.Restore(req, registry, state, opts...)
}
