// Package keygen generates the key pair a certificate request is built for.
// It supports classical algorithms (RSA, EC, Ed25519) and Ed448 and ML-DSA
// via the cloudflare/circl library.
package keygen

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"

	"github.com/remiblancher/certwizard/internal/request"
)

// Key-pair algorithm names.
const (
	AlgRSA     = "RSA"
	AlgEC      = "EC"
	AlgEd25519 = "Ed25519"
	AlgEd448   = "Ed448"
	AlgMLDSA44 = "ML-DSA-44"
	AlgMLDSA65 = "ML-DSA-65"
	AlgMLDSA87 = "ML-DSA-87"
)

// minRSABits is the smallest RSA modulus accepted.
const minRSABits = 1024

// UnsupportedAlgorithmError reports an algorithm, key size or signature
// algorithm the provider cannot handle.
type UnsupportedAlgorithmError struct {
	KeyPairAlgorithm   string
	KeySize            int
	SignatureAlgorithm string
}

// Error implements the error interface.
func (e *UnsupportedAlgorithmError) Error() string {
	switch {
	case e.SignatureAlgorithm != "":
		return fmt.Sprintf("unsupported signature algorithm %s for %s key", e.SignatureAlgorithm, e.KeyPairAlgorithm)
	case e.KeySize != 0:
		return fmt.Sprintf("unsupported key size %d for %s", e.KeySize, e.KeyPairAlgorithm)
	default:
		return fmt.Sprintf("unsupported key pair algorithm: %s", e.KeyPairAlgorithm)
	}
}

// KeyPair holds a generated key pair.
type KeyPair struct {
	Algorithm  string
	KeySize    int
	PrivateKey crypto.Signer
	PublicKey  crypto.PublicKey
}

// DefaultKeySizes returns the key sizes the provider offers for an
// algorithm. Algorithms with a fixed key size return nil.
func DefaultKeySizes(algorithm string) []int {
	switch algorithm {
	case AlgRSA:
		return []int{2048, 3072, 4096}
	case AlgEC:
		return []int{256, 384, 521}
	default:
		return nil
	}
}

// DefaultKeySize returns the size used when none is requested.
func DefaultKeySize(algorithm string) int {
	if sizes := DefaultKeySizes(algorithm); len(sizes) > 0 {
		return sizes[0]
	}
	return 0
}

// Supported reports whether Generate knows the algorithm.
func Supported(algorithm string) bool {
	switch algorithm {
	case AlgRSA, AlgEC, AlgEd25519, AlgEd448, AlgMLDSA44, AlgMLDSA65, AlgMLDSA87:
		return true
	}
	return false
}

// Generate creates a key pair. A keySize of 0 selects the provider default;
// it must be 0 for algorithms with a fixed key size.
func Generate(random io.Reader, algorithm string, keySize int) (*KeyPair, error) {
	if !Supported(algorithm) {
		return nil, &UnsupportedAlgorithmError{KeyPairAlgorithm: algorithm}
	}
	if keySize == 0 {
		keySize = DefaultKeySize(algorithm)
	}

	var priv crypto.Signer
	var err error

	switch algorithm {
	case AlgRSA:
		if keySize < minRSABits {
			return nil, &UnsupportedAlgorithmError{KeyPairAlgorithm: algorithm, KeySize: keySize}
		}
		priv, err = rsa.GenerateKey(random, keySize)

	case AlgEC:
		curve, cerr := curveForSize(keySize)
		if cerr != nil {
			return nil, cerr
		}
		priv, err = ecdsa.GenerateKey(curve, random)

	case AlgEd25519:
		if keySize != 0 {
			return nil, &UnsupportedAlgorithmError{KeyPairAlgorithm: algorithm, KeySize: keySize}
		}
		_, priv, err = ed25519.GenerateKey(random)

	case AlgEd448:
		if keySize != 0 {
			return nil, &UnsupportedAlgorithmError{KeyPairAlgorithm: algorithm, KeySize: keySize}
		}
		var k ed448.PrivateKey
		_, k, err = ed448.GenerateKey(random)
		priv = k

	case AlgMLDSA44, AlgMLDSA65, AlgMLDSA87:
		if keySize != 0 {
			return nil, &UnsupportedAlgorithmError{KeyPairAlgorithm: algorithm, KeySize: keySize}
		}
		priv, err = generateMLDSA(random, algorithm)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to generate %s key: %w", algorithm, err)
	}

	return &KeyPair{
		Algorithm:  algorithm,
		KeySize:    keySize,
		PrivateKey: priv,
		PublicKey:  priv.Public(),
	}, nil
}

func curveForSize(size int) (elliptic.Curve, error) {
	switch size {
	case 256:
		return elliptic.P256(), nil
	case 384:
		return elliptic.P384(), nil
	case 521:
		return elliptic.P521(), nil
	default:
		return nil, &UnsupportedAlgorithmError{KeyPairAlgorithm: AlgEC, KeySize: size}
	}
}

func generateMLDSA(random io.Reader, algorithm string) (crypto.Signer, error) {
	switch algorithm {
	case AlgMLDSA44:
		_, priv, err := mldsa44.GenerateKey(random)
		return priv, err
	case AlgMLDSA65:
		_, priv, err := mldsa65.GenerateKey(random)
		return priv, err
	default:
		_, priv, err := mldsa87.GenerateKey(random)
		return priv, err
	}
}

// Info returns descriptors of the key pair for the certificate request:
// the private key as PKCS#8 (or the raw circl encoding where PKCS#8 is not
// available) and the public key as SubjectPublicKeyInfo DER.
func (kp *KeyPair) Info() (priv, pub *request.KeyInfo, err error) {
	pubDER, err := MarshalPublicKey(kp.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	var privDER []byte
	switch k := kp.PrivateKey.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
		privDER, err = x509.MarshalPKCS8PrivateKey(k)
	case ed448.PrivateKey:
		privDER = append([]byte(nil), k.Seed()...)
	case *mldsa44.PrivateKey:
		privDER, err = k.MarshalBinary()
	case *mldsa65.PrivateKey:
		privDER, err = k.MarshalBinary()
	case *mldsa87.PrivateKey:
		privDER, err = k.MarshalBinary()
	default:
		err = fmt.Errorf("unsupported private key type: %T", k)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode private key: %w", err)
	}

	return &request.KeyInfo{Algorithm: kp.Algorithm, KeySize: kp.KeySize, Encoded: privDER},
		&request.KeyInfo{Algorithm: kp.Algorithm, KeySize: kp.KeySize, Encoded: pubDER},
		nil
}
