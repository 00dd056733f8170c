// Package extension validates and encodes free-form X.509 extension entries.
package extension

import (
	"encoding/asn1"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// OID is a parsed dotted-decimal object identifier.
// Arcs are arbitrary precision.
type OID struct {
	arcs []*big.Int
}

var (
	bigZero  = big.NewInt(0)
	bigForty = big.NewInt(40)
)

// ParseOID parses a dotted-decimal object identifier.
//
// The identifier needs at least two arcs. Each arc is a decimal integer
// without sign or leading zeros. The first arc is 0, 1 or 2, and the second
// arc is at most 39 when the first is 0 or 1.
func ParseOID(s string) (OID, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return OID{}, fmt.Errorf("object identifier %q needs at least two arcs", s)
	}

	arcs := make([]*big.Int, len(parts))
	for i, part := range parts {
		arc, err := parseArc(part)
		if err != nil {
			return OID{}, fmt.Errorf("invalid OID component %q: %w", part, err)
		}
		arcs[i] = arc
	}

	if arcs[0].Cmp(big.NewInt(2)) > 0 {
		return OID{}, fmt.Errorf("first arc of %q must be 0, 1 or 2", s)
	}
	if arcs[0].Cmp(big.NewInt(2)) < 0 && arcs[1].Cmp(big.NewInt(39)) > 0 {
		return OID{}, fmt.Errorf("second arc of %q must be at most 39", s)
	}

	return OID{arcs: arcs}, nil
}

func parseArc(part string) (*big.Int, error) {
	if part == "" {
		return nil, fmt.Errorf("empty arc")
	}
	for _, c := range part {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("non-digit %q", c)
		}
	}
	if len(part) > 1 && part[0] == '0' {
		return nil, fmt.Errorf("leading zero")
	}
	n, ok := new(big.Int).SetString(part, 10)
	if !ok {
		return nil, fmt.Errorf("not a number")
	}
	return n, nil
}

// String returns the dotted-decimal form.
func (o OID) String() string {
	parts := make([]string, len(o.arcs))
	for i, a := range o.arcs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ".")
}

// ObjectIdentifier converts the OID for use with encoding/asn1.
// It fails when an arc does not fit in an int.
func (o OID) ObjectIdentifier() (asn1.ObjectIdentifier, error) {
	oid := make(asn1.ObjectIdentifier, len(o.arcs))
	for i, a := range o.arcs {
		if !a.IsInt64() || a.Int64() != int64(int(a.Int64())) {
			return nil, fmt.Errorf("arc %s of %s overflows int", a, o)
		}
		oid[i] = int(a.Int64())
	}
	return oid, nil
}

// AddASN1 appends the DER OBJECT IDENTIFIER to b.
func (o OID) AddASN1(b *cryptobyte.Builder) {
	b.AddASN1(cryptobyte_asn1.OBJECT_IDENTIFIER, func(b *cryptobyte.Builder) {
		first := new(big.Int).Mul(o.arcs[0], bigForty)
		first.Add(first, o.arcs[1])
		addBase128(b, first)
		for _, a := range o.arcs[2:] {
			addBase128(b, a)
		}
	})
}

// MarshalDER returns the DER OBJECT IDENTIFIER.
func (o OID) MarshalDER() ([]byte, error) {
	if len(o.arcs) < 2 {
		return nil, fmt.Errorf("empty object identifier")
	}
	var b cryptobyte.Builder
	o.AddASN1(&b)
	return b.Bytes()
}

// addBase128 writes n as a base-128 integer with continuation bits.
func addBase128(b *cryptobyte.Builder, n *big.Int) {
	if n.Cmp(bigZero) == 0 {
		b.AddUint8(0)
		return
	}
	var groups []byte
	v := new(big.Int).Set(n)
	mask := big.NewInt(0x7f)
	for v.Sign() > 0 {
		groups = append(groups, byte(new(big.Int).And(v, mask).Uint64()))
		v.Rsh(v, 7)
	}
	for i := len(groups) - 1; i >= 0; i-- {
		g := groups[i]
		if i > 0 {
			g |= 0x80
		}
		b.AddUint8(g)
	}
}
