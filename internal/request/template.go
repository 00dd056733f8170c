package request

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/remiblancher/certwizard/internal/extension"
)

// Template prefills a request from a YAML document.
//
// Example:
//
//	keyPairAlgorithm: EC
//	keySize: 384
//	signatureAlgorithm: SHA384withECDSA
//	validityDays: 825
//	issuer:
//	  commonName: Example Root
//	  organisation: Example Corp
//	subject:
//	  commonName: www.example.com
//	extensions:
//	  - id: 1.3.6.1.4.1.99999.1
//	    value: internal-tag
type Template struct {
	KeyPairAlgorithm   string            `yaml:"keyPairAlgorithm,omitempty"`
	KeySize            int               `yaml:"keySize,omitempty"`
	SignatureAlgorithm string            `yaml:"signatureAlgorithm,omitempty"`
	Version            int               `yaml:"version,omitempty"`
	ValidityDays       int               `yaml:"validityDays,omitempty"`
	Issuer             DistinguishedName `yaml:"issuer,omitempty"`
	Subject            DistinguishedName `yaml:"subject,omitempty"`
	Extensions         []extension.Entry `yaml:"extensions,omitempty"`
}

// LoadTemplate reads a template from a YAML file.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	t, err := ParseTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", path, err)
	}
	return t, nil
}

// ParseTemplate parses a template from YAML data.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if t.Version != 0 {
		if err := CheckVersion(t.Version); err != nil {
			return nil, err
		}
	}
	if t.ValidityDays < 0 {
		return nil, fmt.Errorf("validityDays must not be negative")
	}
	return &t, nil
}

// Apply copies the template's non-empty fields into r.
// The validity window keeps its start and is stretched to ValidityDays.
func (t *Template) Apply(r *Request) {
	if t.KeyPairAlgorithm != "" {
		r.KeyPairAlgorithm = t.KeyPairAlgorithm
	}
	if t.SignatureAlgorithm != "" {
		r.SignatureAlgorithm = t.SignatureAlgorithm
	}
	if t.Version != 0 {
		r.Version = t.Version
	}
	if t.ValidityDays > 0 {
		start := r.Validity.NotBefore
		if start.IsZero() {
			start = time.Now().UTC().Truncate(time.Second)
		}
		r.Validity = Validity{NotBefore: start, NotAfter: start.AddDate(0, 0, t.ValidityDays)}
	}
	if !t.Issuer.IsZero() {
		r.Issuer = t.Issuer
	}
	if !t.Subject.IsZero() {
		r.Subject = t.Subject
	}
	if len(t.Extensions) > 0 {
		r.Extensions = append([]extension.Entry(nil), t.Extensions...)
	}
}
