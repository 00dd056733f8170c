package keygen

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
)

// Public key algorithm OIDs not handled by crypto/x509.
var (
	OIDEd448   = asn1.ObjectIdentifier{1, 3, 101, 113}
	OIDMLDSA44 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 17}
	OIDMLDSA65 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 18}
	OIDMLDSA87 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 3, 19}
)

// PublicKeyInfo is the SubjectPublicKeyInfo structure.
type PublicKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

// EncodePublicKeyInfo builds the SubjectPublicKeyInfo for pub.
func EncodePublicKeyInfo(pub crypto.PublicKey) (PublicKeyInfo, error) {
	var oid asn1.ObjectIdentifier
	var raw []byte
	var err error

	switch key := pub.(type) {
	case ed448.PublicKey:
		oid, raw = OIDEd448, []byte(key)
	case *mldsa44.PublicKey:
		oid = OIDMLDSA44
		raw, err = key.MarshalBinary()
	case *mldsa65.PublicKey:
		oid = OIDMLDSA65
		raw, err = key.MarshalBinary()
	case *mldsa87.PublicKey:
		oid = OIDMLDSA87
		raw, err = key.MarshalBinary()
	default:
		der, merr := x509.MarshalPKIXPublicKey(pub)
		if merr != nil {
			return PublicKeyInfo{}, fmt.Errorf("failed to marshal public key: %w", merr)
		}
		var info PublicKeyInfo
		if _, err := asn1.Unmarshal(der, &info); err != nil {
			return PublicKeyInfo{}, fmt.Errorf("failed to parse public key info: %w", err)
		}
		return info, nil
	}
	if err != nil {
		return PublicKeyInfo{}, fmt.Errorf("failed to marshal public key: %w", err)
	}

	return PublicKeyInfo{
		Algorithm: pkix.AlgorithmIdentifier{Algorithm: oid},
		PublicKey: asn1.BitString{Bytes: raw, BitLength: len(raw) * 8},
	}, nil
}

// MarshalPublicKey returns the DER SubjectPublicKeyInfo for pub.
func MarshalPublicKey(pub crypto.PublicKey) ([]byte, error) {
	info, err := EncodePublicKeyInfo(pub)
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(info)
}
