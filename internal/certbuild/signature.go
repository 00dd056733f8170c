package certbuild

import (
	"crypto"
	"crypto/x509/pkix"
	"encoding/asn1"
	"sort"

	"github.com/remiblancher/certwizard/internal/keygen"
)

// signatureScheme describes how a named signature algorithm signs a TBSCertificate.
type signatureScheme struct {
	keyPairAlgorithm string
	oid              asn1.ObjectIdentifier
	hash             crypto.Hash
	nullParams       bool
}

var (
	oidSHA256WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	oidSHA384WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	oidSHA512WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	oidECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	oidECDSAWithSHA384 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}
	oidECDSAWithSHA512 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}
	oidEd25519         = asn1.ObjectIdentifier{1, 3, 101, 112}
)

var signatureSchemes = map[string]signatureScheme{
	"SHA256withRSA":   {keygen.AlgRSA, oidSHA256WithRSA, crypto.SHA256, true},
	"SHA384withRSA":   {keygen.AlgRSA, oidSHA384WithRSA, crypto.SHA384, true},
	"SHA512withRSA":   {keygen.AlgRSA, oidSHA512WithRSA, crypto.SHA512, true},
	"SHA256withECDSA": {keygen.AlgEC, oidECDSAWithSHA256, crypto.SHA256, false},
	"SHA384withECDSA": {keygen.AlgEC, oidECDSAWithSHA384, crypto.SHA384, false},
	"SHA512withECDSA": {keygen.AlgEC, oidECDSAWithSHA512, crypto.SHA512, false},
	"Ed25519":         {keygen.AlgEd25519, oidEd25519, 0, false},
	"Ed448":           {keygen.AlgEd448, keygen.OIDEd448, 0, false},
	"ML-DSA-44":       {keygen.AlgMLDSA44, keygen.OIDMLDSA44, 0, false},
	"ML-DSA-65":       {keygen.AlgMLDSA65, keygen.OIDMLDSA65, 0, false},
	"ML-DSA-87":       {keygen.AlgMLDSA87, keygen.OIDMLDSA87, 0, false},
}

func (s signatureScheme) algorithmIdentifier() pkix.AlgorithmIdentifier {
	ai := pkix.AlgorithmIdentifier{Algorithm: s.oid}
	if s.nullParams {
		ai.Parameters = asn1.NullRawValue
	}
	return ai
}

// SignatureAlgorithms lists the signature algorithm names Build can produce.
func SignatureAlgorithms() []string {
	names := make([]string, 0, len(signatureSchemes))
	for name := range signatureSchemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// signatureAlgorithmName maps a signature OID back to its name.
func signatureAlgorithmName(oid asn1.ObjectIdentifier) string {
	for name, s := range signatureSchemes {
		if s.oid.Equal(oid) {
			return name
		}
	}
	return oid.String()
}
