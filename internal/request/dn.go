package request

import (
	"crypto/x509/pkix"
	"strings"
)

// DistinguishedName holds the six name attributes the wizard collects.
// Only CommonName is required; the others may be empty.
type DistinguishedName struct {
	CommonName       string `json:"commonName" yaml:"commonName" cbor:"1,keyasint,omitempty"`
	Organisation     string `json:"organisation,omitempty" yaml:"organisation,omitempty" cbor:"2,keyasint,omitempty"`
	OrganisationUnit string `json:"organisationUnit,omitempty" yaml:"organisationUnit,omitempty" cbor:"3,keyasint,omitempty"`
	CountryCode      string `json:"countryCode,omitempty" yaml:"countryCode,omitempty" cbor:"4,keyasint,omitempty"`
	State            string `json:"state,omitempty" yaml:"state,omitempty" cbor:"5,keyasint,omitempty"`
	Location         string `json:"location,omitempty" yaml:"location,omitempty" cbor:"6,keyasint,omitempty"`
}

// IsZero reports whether no attribute is set.
func (dn DistinguishedName) IsZero() bool {
	return dn == DistinguishedName{}
}

// ToPKIX converts the name, skipping blank attributes.
func (dn DistinguishedName) ToPKIX() pkix.Name {
	var name pkix.Name
	name.CommonName = strings.TrimSpace(dn.CommonName)
	if v := strings.TrimSpace(dn.Organisation); v != "" {
		name.Organization = []string{v}
	}
	if v := strings.TrimSpace(dn.OrganisationUnit); v != "" {
		name.OrganizationalUnit = []string{v}
	}
	if v := strings.TrimSpace(dn.CountryCode); v != "" {
		name.Country = []string{v}
	}
	if v := strings.TrimSpace(dn.State); v != "" {
		name.Province = []string{v}
	}
	if v := strings.TrimSpace(dn.Location); v != "" {
		name.Locality = []string{v}
	}
	return name
}

// FromPKIX converts a parsed name, keeping the first value of each attribute.
func FromPKIX(name pkix.Name) DistinguishedName {
	return DistinguishedName{
		CommonName:       name.CommonName,
		Organisation:     first(name.Organization),
		OrganisationUnit: first(name.OrganizationalUnit),
		CountryCode:      first(name.Country),
		State:            first(name.Province),
		Location:         first(name.Locality),
	}
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// String returns the RFC 2253 form.
func (dn DistinguishedName) String() string {
	return dn.ToPKIX().String()
}
