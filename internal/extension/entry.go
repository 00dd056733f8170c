package extension

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/remiblancher/certwizard/internal/validation"
)

// Entry is a user-supplied extension row.
// Value is free text; its bytes become the extnValue octets verbatim.
type Entry struct {
	ID       string `json:"id" yaml:"id"`
	Critical bool   `json:"critical" yaml:"critical"`
	Value    string `json:"value" yaml:"value"`
}

// Validate checks the entry's identifier and value.
func (e Entry) Validate() error {
	return Validate(e.ID, e.Value)
}

// Validate checks that id is a well-formed OID and that value can be
// carried in a DER OCTET STRING.
func Validate(id, value string) error {
	return ValidateBytes(id, []byte(value))
}

// ValidateBytes is Validate for raw values. A nil value is rejected.
func ValidateBytes(id string, value []byte) error {
	if _, err := ParseOID(id); err != nil {
		return validation.New(validation.InvalidOid, "extension.id", id, err.Error())
	}
	if value == nil {
		return validation.New(validation.InvalidOctetValue, "extension.value", "", "value is required")
	}
	if _, err := octetString(value); err != nil {
		return validation.New(validation.InvalidOctetValue, "extension.value", "", err.Error())
	}
	return nil
}

func octetString(value []byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1OctetString(value)
	return b.Bytes()
}

// AddASN1 appends the RFC 5280 Extension SEQUENCE to b.
func (e Entry) AddASN1(b *cryptobyte.Builder) error {
	oid, err := ParseOID(e.ID)
	if err != nil {
		return validation.New(validation.InvalidOid, "extension.id", e.ID, err.Error())
	}
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		oid.AddASN1(b)
		if e.Critical {
			b.AddASN1Boolean(true)
		}
		b.AddASN1OctetString([]byte(e.Value))
	})
	return nil
}

// MarshalDER returns the DER encoding of the Extension SEQUENCE.
func (e Entry) MarshalDER() ([]byte, error) {
	var b cryptobyte.Builder
	if err := e.AddASN1(&b); err != nil {
		return nil, err
	}
	return b.Bytes()
}

// ToPKIX converts the entry for use with crypto/x509 templates.
func (e Entry) ToPKIX() (pkix.Extension, error) {
	oid, err := ParseOID(e.ID)
	if err != nil {
		return pkix.Extension{}, validation.New(validation.InvalidOid, "extension.id", e.ID, err.Error())
	}
	id, err := oid.ObjectIdentifier()
	if err != nil {
		return pkix.Extension{}, fmt.Errorf("extension %s: %w", e.ID, err)
	}
	return pkix.Extension{Id: id, Critical: e.Critical, Value: []byte(e.Value)}, nil
}

// FromPKIX converts a parsed extension back to an entry.
func FromPKIX(ext pkix.Extension) Entry {
	return Entry{ID: ext.Id.String(), Critical: ext.Critical, Value: string(ext.Value)}
}

// FromCertificate lists a certificate's extensions, critical ones first.
func FromCertificate(cert *x509.Certificate) []Entry {
	var critical, other []Entry
	for _, ext := range cert.Extensions {
		if ext.Critical {
			critical = append(critical, FromPKIX(ext))
		} else {
			other = append(other, FromPKIX(ext))
		}
	}
	return append(critical, other...)
}
