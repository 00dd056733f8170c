// Package certbuild turns a finished certificate request into a signed
// X.509 certificate.
package certbuild

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"slices"

	"github.com/remiblancher/certwizard/internal/extension"
	"github.com/remiblancher/certwizard/internal/request"
)

// CertificateInfo is the request as handed to the certificate builder.
type CertificateInfo struct {
	PrivateKey         *request.KeyInfo
	PublicKey          *request.KeyInfo
	Issuer             request.DistinguishedName
	Subject            request.DistinguishedName
	Serial             *big.Int
	Validity           request.Validity
	KeyPairAlgorithm   string
	SignatureAlgorithm string
	Version            int
	Extensions         []extension.Entry
}

// FromRequest converts a finished request.
func FromRequest(r *request.Request) CertificateInfo {
	c := r.Clone()
	return CertificateInfo{
		PrivateKey:         c.PrivateKey,
		PublicKey:          c.PublicKey,
		Issuer:             c.Issuer,
		Subject:            c.Subject,
		Serial:             c.Serial,
		Validity:           c.Validity,
		KeyPairAlgorithm:   c.KeyPairAlgorithm,
		SignatureAlgorithm: c.SignatureAlgorithm,
		Version:            c.Version,
		Extensions:         c.Extensions,
	}
}

// ToRequest converts back to a request.
func (ci CertificateInfo) ToRequest() *request.Request {
	r := &request.Request{
		PrivateKey:         ci.PrivateKey,
		PublicKey:          ci.PublicKey,
		Issuer:             ci.Issuer,
		Subject:            ci.Subject,
		Serial:             ci.Serial,
		Validity:           ci.Validity,
		Version:            ci.Version,
		KeyPairAlgorithm:   ci.KeyPairAlgorithm,
		SignatureAlgorithm: ci.SignatureAlgorithm,
		Extensions:         slices.Clone(ci.Extensions),
	}
	return r.Clone()
}

type outerCertificate struct {
	TBSCertificate     asn1.RawValue
	SignatureAlgorithm pkix.AlgorithmIdentifier
	SignatureValue     asn1.BitString
}

// FromCertificate describes an issued certificate. Key material is not
// recovered; only the public key descriptor is filled in.
func FromCertificate(cert *x509.Certificate) (CertificateInfo, error) {
	var outer outerCertificate
	if _, err := asn1.Unmarshal(cert.Raw, &outer); err != nil {
		return CertificateInfo{}, fmt.Errorf("failed to parse certificate: %w", err)
	}

	sigAlg := signatureAlgorithmName(outer.SignatureAlgorithm.Algorithm)
	kpa := ""
	if s, ok := signatureSchemes[sigAlg]; ok {
		kpa = s.keyPairAlgorithm
	}

	return CertificateInfo{
		PublicKey: &request.KeyInfo{
			Algorithm: kpa,
			Encoded:   slices.Clone(cert.RawSubjectPublicKeyInfo),
		},
		Issuer:             request.FromPKIX(cert.Issuer),
		Subject:            request.FromPKIX(cert.Subject),
		Serial:             new(big.Int).Set(cert.SerialNumber),
		Validity:           request.Validity{NotBefore: cert.NotBefore, NotAfter: cert.NotAfter},
		KeyPairAlgorithm:   kpa,
		SignatureAlgorithm: sigAlg,
		Version:            cert.Version,
		Extensions:         extension.FromCertificate(cert),
	}, nil
}
