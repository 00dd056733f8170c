package certbuild

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/cloudflare/circl/sign/ed448"

	"github.com/remiblancher/certwizard/internal/keygen"
	"github.com/remiblancher/certwizard/internal/request"
)

type tbsCertificate struct {
	Raw                asn1.RawContent
	Version            int `asn1:"optional,explicit,default:0,tag:0"`
	SerialNumber       *big.Int
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Issuer             asn1.RawValue
	Validity           validity
	Subject            asn1.RawValue
	PublicKey          keygen.PublicKeyInfo
	Extensions         []asn1.RawValue `asn1:"optional,explicit,tag:3"`
}

type validity struct {
	NotBefore, NotAfter time.Time
}

type certificate struct {
	TBSCertificate     tbsCertificate
	SignatureAlgorithm pkix.AlgorithmIdentifier
	SignatureValue     asn1.BitString
}

// Build signs info with signer and returns the DER certificate.
// The signer's public key becomes the certificate's subject public key.
func Build(random io.Reader, info CertificateInfo, signer crypto.Signer) ([]byte, error) {
	scheme, ok := signatureSchemes[info.SignatureAlgorithm]
	if !ok || (info.KeyPairAlgorithm != "" && scheme.keyPairAlgorithm != info.KeyPairAlgorithm) {
		return nil, &keygen.UnsupportedAlgorithmError{
			KeyPairAlgorithm:   info.KeyPairAlgorithm,
			SignatureAlgorithm: info.SignatureAlgorithm,
		}
	}

	tbs, err := buildTBS(info, scheme, signer.Public())
	if err != nil {
		return nil, err
	}
	tbsDER, err := asn1.Marshal(tbs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TBSCertificate: %w", err)
	}

	signature, err := signTBS(random, signer, scheme, tbsDER)
	if err != nil {
		return nil, err
	}

	cert := certificate{
		TBSCertificate:     tbs,
		SignatureAlgorithm: scheme.algorithmIdentifier(),
		SignatureValue:     asn1.BitString{Bytes: signature, BitLength: len(signature) * 8},
	}
	certDER, err := asn1.Marshal(cert)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal certificate: %w", err)
	}
	return certDER, nil
}

func buildTBS(info CertificateInfo, scheme signatureScheme, pub crypto.PublicKey) (tbsCertificate, error) {
	if err := request.CheckSerial(info.Serial); err != nil {
		return tbsCertificate{}, err
	}
	if err := request.CheckVersion(info.Version); err != nil {
		return tbsCertificate{}, err
	}

	issuer, err := marshalName(info.Issuer)
	if err != nil {
		return tbsCertificate{}, fmt.Errorf("failed to encode issuer: %w", err)
	}
	subject, err := marshalName(info.Subject)
	if err != nil {
		return tbsCertificate{}, fmt.Errorf("failed to encode subject: %w", err)
	}
	spki, err := keygen.EncodePublicKeyInfo(pub)
	if err != nil {
		return tbsCertificate{}, err
	}

	tbs := tbsCertificate{
		SerialNumber:       info.Serial,
		SignatureAlgorithm: scheme.algorithmIdentifier(),
		Issuer:             issuer,
		Validity:           validity{NotBefore: info.Validity.NotBefore.UTC(), NotAfter: info.Validity.NotAfter.UTC()},
		Subject:            subject,
		PublicKey:          spki,
	}

	if info.Version == request.Version3 {
		tbs.Version = 2
		for _, e := range info.Extensions {
			der, err := e.MarshalDER()
			if err != nil {
				return tbsCertificate{}, fmt.Errorf("extension %s: %w", e.ID, err)
			}
			tbs.Extensions = append(tbs.Extensions, asn1.RawValue{FullBytes: der})
		}
	} else if len(info.Extensions) > 0 {
		return tbsCertificate{}, fmt.Errorf("version %d certificate cannot carry extensions", info.Version)
	}

	return tbs, nil
}

func marshalName(dn request.DistinguishedName) (asn1.RawValue, error) {
	der, err := asn1.Marshal(dn.ToPKIX().ToRDNSequence())
	if err != nil {
		return asn1.RawValue{}, err
	}
	return asn1.RawValue{FullBytes: der}, nil
}

// signTBS signs a digest of tbsDER for hashed schemes, the message itself otherwise.
func signTBS(random io.Reader, signer crypto.Signer, scheme signatureScheme, tbsDER []byte) ([]byte, error) {
	var signature []byte
	var err error

	switch key := signer.(type) {
	case ed448.PrivateKey:
		signature = ed448.Sign(key, tbsDER, "")
	default:
		if scheme.hash != 0 {
			h := scheme.hash.New()
			h.Write(tbsDER)
			signature, err = signer.Sign(random, h.Sum(nil), scheme.hash)
		} else {
			signature, err = signer.Sign(random, tbsDER, crypto.Hash(0))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sign certificate: %w", err)
	}
	return signature, nil
}

// EncodePEM wraps a DER certificate in a PEM block.
func EncodePEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

// Result is an issued certificate.
type Result struct {
	DER []byte

	// Certificate is nil when crypto/x509 rejects the DER, for example a
	// well-known extension OID carrying free-text octets.
	Certificate *x509.Certificate

	// Info describes the issued certificate. It never carries the private key.
	Info CertificateInfo
}

// Issuer issues self-signed certificates with a generated key pair.
// It satisfies wizard.Issuer.
type Issuer struct {
	keys   *keygen.KeyPair
	random io.Reader

	mu     sync.Mutex
	result *Result
}

// NewIssuer creates an Issuer signing with kp.
func NewIssuer(kp *keygen.KeyPair) *Issuer {
	return &Issuer{keys: kp, random: rand.Reader}
}

// Issue builds and signs the certificate for req.
func (i *Issuer) Issue(ctx context.Context, req *request.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.KeyPairAlgorithm != i.keys.Algorithm {
		return &keygen.UnsupportedAlgorithmError{
			KeyPairAlgorithm:   i.keys.Algorithm,
			SignatureAlgorithm: req.SignatureAlgorithm,
		}
	}

	info := FromRequest(req)
	der, err := Build(i.random, info, i.keys.PrivateKey)
	if err != nil {
		return err
	}

	info.PrivateKey = nil
	result := &Result{DER: der, Info: info}
	if cert, err := x509.ParseCertificate(der); err == nil {
		result.Certificate = cert
		if parsed, err := FromCertificate(cert); err == nil {
			result.Info = parsed
		}
	}

	i.mu.Lock()
	i.result = result
	i.mu.Unlock()
	return nil
}

// Result returns the last issued certificate, or nil.
func (i *Issuer) Result() *Result {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.result
}
