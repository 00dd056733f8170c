package service

import (
	"math/big"
	"time"

	"github.com/remiblancher/certwizard/internal/api/dto"
	"github.com/remiblancher/certwizard/internal/audit"
	"github.com/remiblancher/certwizard/internal/extension"
	"github.com/remiblancher/certwizard/internal/request"
)

func toSubjectInfo(dn request.DistinguishedName) dto.SubjectInfo {
	return dto.SubjectInfo{
		CommonName:         dn.CommonName,
		Organization:       dn.Organisation,
		OrganizationalUnit: dn.OrganisationUnit,
		Country:            dn.CountryCode,
		State:              dn.State,
		Locality:           dn.Location,
	}
}

func fromSubjectInfo(s dto.SubjectInfo) request.DistinguishedName {
	return request.DistinguishedName{
		CommonName:       s.CommonName,
		Organisation:     s.Organization,
		OrganisationUnit: s.OrganizationalUnit,
		CountryCode:      s.Country,
		State:            s.State,
		Location:         s.Locality,
	}
}

func toValidityInfo(v request.Validity) dto.ValidityInfo {
	return dto.ValidityInfo{
		NotBefore: v.NotBefore.UTC().Format(time.RFC3339),
		NotAfter:  v.NotAfter.UTC().Format(time.RFC3339),
	}
}

func fromExtensionInfo(e dto.ExtensionInfo) extension.Entry {
	return extension.Entry{ID: e.ID, Critical: e.Critical, Value: e.Value}
}

func serialHex(serial *big.Int) string {
	if serial == nil {
		return ""
	}
	return "0x" + serial.Text(16)
}

func toRequestInfo(req *request.Request) *dto.RequestInfo {
	if req == nil {
		return nil
	}
	info := &dto.RequestInfo{
		KeyPairAlgorithm:   req.KeyPairAlgorithm,
		SignatureAlgorithm: req.SignatureAlgorithm,
		Version:            req.Version,
		Serial:             serialHex(req.Serial),
		Issuer:             toSubjectInfo(req.Issuer),
		Subject:            toSubjectInfo(req.Subject),
		Validity:           toValidityInfo(req.Validity),
		Extensions:         make([]dto.ExtensionInfo, 0, len(req.Extensions)),
	}
	if req.PublicKey != nil {
		info.KeySize = req.PublicKey.KeySize
	}
	for _, e := range req.Extensions {
		info.Extensions = append(info.Extensions, dto.ExtensionInfo{ID: e.ID, Critical: e.Critical, Value: e.Value})
	}
	return info
}

func summarize(id string, req *request.Request) audit.RequestSummary {
	return audit.RequestSummary{
		SessionID:          id,
		Serial:             serialHex(req.Serial),
		Subject:            req.Subject.String(),
		Issuer:             req.Issuer.String(),
		KeyPairAlgorithm:   req.KeyPairAlgorithm,
		SignatureAlgorithm: req.SignatureAlgorithm,
		Version:            req.Version,
		Extensions:         len(req.Extensions),
	}
}
