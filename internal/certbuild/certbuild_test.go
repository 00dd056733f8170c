package certbuild

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"

	"github.com/remiblancher/certwizard/internal/extension"
	"github.com/remiblancher/certwizard/internal/keygen"
	"github.com/remiblancher/certwizard/internal/request"
)

var (
	notBefore = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	notAfter  = notBefore.AddDate(1, 0, 0)
)

func testInfo(kpa, sigAlg string, version int) CertificateInfo {
	return CertificateInfo{
		Issuer:             request.DistinguishedName{CommonName: "Test Root", Organisation: "Example", CountryCode: "FR"},
		Subject:            request.DistinguishedName{CommonName: "leaf.example.com", Location: "Lyon"},
		Serial:             big.NewInt(0x1234),
		Validity:           request.Validity{NotBefore: notBefore, NotAfter: notAfter},
		KeyPairAlgorithm:   kpa,
		SignatureAlgorithm: sigAlg,
		Version:            version,
	}
}

func mustKey(t *testing.T, alg string, size int) *keygen.KeyPair {
	t.Helper()
	kp, err := keygen.Generate(rand.Reader, alg, size)
	if err != nil {
		t.Fatalf("keygen.Generate(%s) error = %v", alg, err)
	}
	return kp
}

// =============================================================================
// Unit Tests: Build (classical)
// =============================================================================

func TestU_Build_Classical(t *testing.T) {
	tests := []struct {
		name   string
		alg    string
		size   int
		sigAlg string
		want   x509.SignatureAlgorithm
	}{
		{"[Unit] Build: ECDSA P-256 SHA256", keygen.AlgEC, 256, "SHA256withECDSA", x509.ECDSAWithSHA256},
		{"[Unit] Build: ECDSA P-384 SHA384", keygen.AlgEC, 384, "SHA384withECDSA", x509.ECDSAWithSHA384},
		{"[Unit] Build: RSA SHA256", keygen.AlgRSA, 2048, "SHA256withRSA", x509.SHA256WithRSA},
		{"[Unit] Build: Ed25519", keygen.AlgEd25519, 0, "Ed25519", x509.PureEd25519},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kp := mustKey(t, tt.alg, tt.size)
			info := testInfo(tt.alg, tt.sigAlg, request.Version3)
			info.Extensions = []extension.Entry{
				{ID: "1.3.6.1.4.1.55555.1", Critical: false, Value: "hello"},
			}

			der, err := Build(rand.Reader, info, kp.PrivateKey)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			cert, err := x509.ParseCertificate(der)
			if err != nil {
				t.Fatalf("ParseCertificate() error = %v", err)
			}

			if cert.SignatureAlgorithm != tt.want {
				t.Errorf("expected SignatureAlgorithm=%s, got %s", tt.want, cert.SignatureAlgorithm)
			}
			if err := cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature); err != nil {
				t.Errorf("self-signature does not verify: %v", err)
			}
			if cert.Version != 3 {
				t.Errorf("expected Version=3, got %d", cert.Version)
			}
			if cert.Subject.CommonName != "leaf.example.com" || cert.Issuer.Organization[0] != "Example" {
				t.Errorf("unexpected names %s / %s", cert.Subject, cert.Issuer)
			}
			if !cert.NotBefore.Equal(notBefore) || !cert.NotAfter.Equal(notAfter) {
				t.Errorf("unexpected validity %s..%s", cert.NotBefore, cert.NotAfter)
			}
			if cert.SerialNumber.Int64() != 0x1234 {
				t.Errorf("unexpected serial %s", cert.SerialNumber)
			}
		})
	}
}

func TestU_Build_Version1(t *testing.T) {
	kp := mustKey(t, keygen.AlgEd25519, 0)

	der, err := Build(rand.Reader, testInfo(keygen.AlgEd25519, "Ed25519", request.Version1), kp.PrivateKey)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate() error = %v", err)
	}
	if cert.Version != 1 {
		t.Errorf("expected Version=1, got %d", cert.Version)
	}
	if len(cert.Extensions) != 0 {
		t.Errorf("expected no extensions, got %d", len(cert.Extensions))
	}
}

func TestU_Build_Version1_RejectsExtensions(t *testing.T) {
	kp := mustKey(t, keygen.AlgEd25519, 0)
	info := testInfo(keygen.AlgEd25519, "Ed25519", request.Version1)
	info.Extensions = []extension.Entry{{ID: "1.2.3", Value: "x"}}

	if _, err := Build(rand.Reader, info, kp.PrivateKey); err == nil {
		t.Error("Build() should reject extensions on version 1")
	}
}

func TestU_Build_ExtensionValueIsRawOctets(t *testing.T) {
	kp := mustKey(t, keygen.AlgEd25519, 0)
	info := testInfo(keygen.AlgEd25519, "Ed25519", request.Version3)
	info.Extensions = []extension.Entry{
		{ID: "1.3.6.1.4.1.55555.2", Critical: true, Value: "crit"},
		{ID: "1.3.6.1.4.1.55555.3", Value: "plain"},
	}

	der, err := Build(rand.Reader, info, kp.PrivateKey)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate() error = %v", err)
	}

	got := extension.FromCertificate(cert)
	if !reflect.DeepEqual(got, info.Extensions) {
		t.Errorf("extensions = %+v, want %+v", got, info.Extensions)
	}
}

func TestU_Build_Unsupported(t *testing.T) {
	kp := mustKey(t, keygen.AlgEC, 256)

	tests := []struct {
		name string
		info CertificateInfo
	}{
		{"[Unit] Build: unknown signature algorithm", testInfo(keygen.AlgEC, "MD5withRSA", request.Version3)},
		{"[Unit] Build: mismatched key pair", testInfo(keygen.AlgEC, "SHA256withRSA", request.Version3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(rand.Reader, tt.info, kp.PrivateKey)
			var uae *keygen.UnsupportedAlgorithmError
			if !errors.As(err, &uae) {
				t.Errorf("expected *UnsupportedAlgorithmError, got %v", err)
			}
		})
	}
}

// =============================================================================
// Unit Tests: Build (Ed448, ML-DSA)
// =============================================================================

func tbsAndSignature(t *testing.T, der []byte) ([]byte, []byte) {
	t.Helper()
	var outer outerCertificate
	if _, err := asn1.Unmarshal(der, &outer); err != nil {
		t.Fatalf("asn1.Unmarshal() error = %v", err)
	}
	return outer.TBSCertificate.FullBytes, outer.SignatureValue.Bytes
}

func TestU_Build_Ed448(t *testing.T) {
	kp := mustKey(t, keygen.AlgEd448, 0)

	der, err := Build(rand.Reader, testInfo(keygen.AlgEd448, "Ed448", request.Version3), kp.PrivateKey)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, err := x509.ParseCertificate(der); err != nil {
		t.Fatalf("ParseCertificate() error = %v", err)
	}

	tbs, sig := tbsAndSignature(t, der)
	pub := kp.PublicKey.(ed448.PublicKey)
	if !ed448.Verify(pub, tbs, sig, "") {
		t.Error("Ed448 signature does not verify")
	}
}

func TestU_Build_MLDSA(t *testing.T) {
	kp := mustKey(t, keygen.AlgMLDSA44, 0)

	der, err := Build(rand.Reader, testInfo(keygen.AlgMLDSA44, "ML-DSA-44", request.Version3), kp.PrivateKey)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate() error = %v", err)
	}

	tbs, sig := tbsAndSignature(t, der)
	pub := kp.PublicKey.(*mldsa44.PublicKey)
	if !mldsa44.Verify(pub, tbs, nil, sig) {
		t.Error("ML-DSA-44 signature does not verify")
	}

	info, err := FromCertificate(cert)
	if err != nil {
		t.Fatalf("FromCertificate() error = %v", err)
	}
	if info.SignatureAlgorithm != "ML-DSA-44" || info.KeyPairAlgorithm != keygen.AlgMLDSA44 {
		t.Errorf("unexpected algorithms %s/%s", info.KeyPairAlgorithm, info.SignatureAlgorithm)
	}
}

// =============================================================================
// Unit Tests: CertificateInfo conversions
// =============================================================================

func TestU_CertificateInfo_RoundTrip(t *testing.T) {
	req := &request.Request{
		PrivateKey:         &request.KeyInfo{Algorithm: "EC", KeySize: 256, Encoded: []byte{1}},
		PublicKey:          &request.KeyInfo{Algorithm: "EC", KeySize: 256, Encoded: []byte{2}},
		Issuer:             request.DistinguishedName{CommonName: "I", State: "S"},
		Subject:            request.DistinguishedName{CommonName: "S", OrganisationUnit: "OU"},
		Serial:             big.NewInt(99),
		Validity:           request.Validity{NotBefore: notBefore, NotAfter: notAfter},
		Version:            3,
		KeyPairAlgorithm:   "EC",
		SignatureAlgorithm: "SHA256withECDSA",
		Extensions: []extension.Entry{
			{ID: "1.2.3.2", Value: "b"},
			{ID: "1.2.3.1", Critical: true, Value: "a"},
		},
	}

	got := FromRequest(req).ToRequest()
	if !reflect.DeepEqual(got, req) {
		t.Errorf("round trip = %+v, want %+v", got, req)
	}
}

func TestU_FromCertificate(t *testing.T) {
	kp := mustKey(t, keygen.AlgEd25519, 0)
	info := testInfo(keygen.AlgEd25519, "Ed25519", request.Version3)
	info.Extensions = []extension.Entry{
		{ID: "1.3.6.1.4.1.55555.4", Value: "n"},
		{ID: "1.3.6.1.4.1.55555.5", Critical: true, Value: "c"},
	}
	der, err := Build(rand.Reader, info, kp.PrivateKey)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	cert, _ := x509.ParseCertificate(der)

	got, err := FromCertificate(cert)
	if err != nil {
		t.Fatalf("FromCertificate() error = %v", err)
	}
	if got.Issuer != info.Issuer || got.Subject != info.Subject {
		t.Errorf("unexpected names %+v / %+v", got.Issuer, got.Subject)
	}
	if got.SignatureAlgorithm != "Ed25519" || got.Version != 3 {
		t.Errorf("unexpected signature %s version %d", got.SignatureAlgorithm, got.Version)
	}
	if len(got.Extensions) != 2 || got.Extensions[0].ID != "1.3.6.1.4.1.55555.5" {
		t.Errorf("expected critical extension first, got %+v", got.Extensions)
	}
	pub, err := x509.ParsePKIXPublicKey(got.PublicKey.Encoded)
	if err != nil {
		t.Fatalf("ParsePKIXPublicKey() error = %v", err)
	}
	if !pub.(ed25519.PublicKey).Equal(kp.PublicKey) {
		t.Error("public key descriptor does not match")
	}
}

// =============================================================================
// Unit Tests: Issuer
// =============================================================================

func TestU_Issuer_Issue(t *testing.T) {
	kp := mustKey(t, keygen.AlgEC, 256)
	issuer := NewIssuer(kp)

	req := testInfo(keygen.AlgEC, "SHA384withECDSA", request.Version3).ToRequest()
	if err := issuer.Issue(context.Background(), req); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	res := issuer.Result()
	if res == nil || res.Certificate == nil {
		t.Fatal("expected an issued certificate")
	}
	block, _ := pem.Decode(EncodePEM(res.DER))
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatal("EncodePEM() did not produce a CERTIFICATE block")
	}
}

func TestU_Issuer_Issue_KnownOIDFreeText(t *testing.T) {
	kp := mustKey(t, keygen.AlgEC, 256)
	issuer := NewIssuer(kp)
	priv, pub, err := kp.Info()
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}

	info := testInfo(keygen.AlgEC, "SHA256withECDSA", request.Version3)
	info.PrivateKey, info.PublicKey = priv, pub
	info.Extensions = []extension.Entry{{ID: extension.OIDKeyUsage, Critical: true, Value: "hello"}}
	if err := info.Extensions[0].Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if err := issuer.Issue(context.Background(), info.ToRequest()); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	res := issuer.Result()
	if res == nil || len(res.DER) == 0 {
		t.Fatal("expected an issued certificate")
	}
	if res.Info.Subject != info.Subject || res.Info.Issuer != info.Issuer {
		t.Errorf("unexpected names %+v / %+v", res.Info.Subject, res.Info.Issuer)
	}
	if res.Info.Serial.Cmp(info.Serial) != 0 || res.Info.SignatureAlgorithm != "SHA256withECDSA" {
		t.Errorf("unexpected serial %s signature %s", res.Info.Serial, res.Info.SignatureAlgorithm)
	}
	if res.Info.PrivateKey != nil {
		t.Error("result must not carry the private key")
	}
	if len(res.Info.Extensions) != 1 || res.Info.Extensions[0].Value != "hello" {
		t.Errorf("unexpected extensions %+v", res.Info.Extensions)
	}
}

func TestU_Issuer_Issue_Errors(t *testing.T) {
	kp := mustKey(t, keygen.AlgEC, 256)
	issuer := NewIssuer(kp)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := testInfo(keygen.AlgEC, "SHA256withECDSA", request.Version3).ToRequest()
	if err := issuer.Issue(ctx, req); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	req = testInfo(keygen.AlgRSA, "SHA256withRSA", request.Version3).ToRequest()
	var uae *keygen.UnsupportedAlgorithmError
	if err := issuer.Issue(context.Background(), req); !errors.As(err, &uae) {
		t.Errorf("expected *UnsupportedAlgorithmError, got %v", err)
	}
	if issuer.Result() != nil {
		t.Error("failed Issue() should not record a result")
	}
}

func TestU_SignatureAlgorithms(t *testing.T) {
	names := SignatureAlgorithms()
	if len(names) != len(signatureSchemes) {
		t.Fatalf("expected %d names, got %d", len(signatureSchemes), len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("names not sorted: %v", names)
		}
	}
}
