package extension

// Standard X.509 extension OIDs (RFC 5280).
const (
	OIDSubjectKeyID          = "2.5.29.14"
	OIDKeyUsage              = "2.5.29.15"
	OIDSubjectAltName        = "2.5.29.17"
	OIDIssuerAltName         = "2.5.29.18"
	OIDBasicConstraints      = "2.5.29.19"
	OIDNameConstraints       = "2.5.29.30"
	OIDCRLDistributionPoints = "2.5.29.31"
	OIDCertificatePolicies   = "2.5.29.32"
	OIDAuthorityKeyID        = "2.5.29.35"
	OIDExtKeyUsage           = "2.5.29.37"
	OIDAuthorityInfoAccess   = "1.3.6.1.5.5.7.1.1"
)

var names = map[string]string{
	OIDSubjectKeyID:          "subjectKeyIdentifier",
	OIDKeyUsage:              "keyUsage",
	OIDSubjectAltName:        "subjectAltName",
	OIDIssuerAltName:         "issuerAltName",
	OIDBasicConstraints:      "basicConstraints",
	OIDNameConstraints:       "nameConstraints",
	OIDCRLDistributionPoints: "cRLDistributionPoints",
	OIDCertificatePolicies:   "certificatePolicies",
	OIDAuthorityKeyID:        "authorityKeyIdentifier",
	OIDExtKeyUsage:           "extKeyUsage",
	OIDAuthorityInfoAccess:   "authorityInfoAccess",
}

// Name returns the RFC 5280 name of a standard extension, or "" for
// any other identifier.
func Name(id string) string {
	return names[id]
}

// Describe returns id followed by its standard name when it has one.
func Describe(id string) string {
	if n := names[id]; n != "" {
		return id + " (" + n + ")"
	}
	return id
}
