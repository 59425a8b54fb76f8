// Copyright 2020 Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package message

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/anapaya/gocmp/go/lib/serrors"
)

// NewMessage builds the shell PKIMessage carrying an empty instance of
// bodyType's variant (msg_create), leaving Header zeroed for
// the caller to run through header.Init.
func NewMessage(bodyType BodyType) (*PKIMessage, error) {
	body := PKIBody{Type: bodyType}
	m := &PKIMessage{}
	if err := m.SetBody(body); err != nil {
		return nil, serrors.WrapStr("creating message shell", err)
	}
	return m, nil
}

// CertRequestParams carries everything a CertReqMsg template needs. Zero
// values mean "not configured"; callers populate only what applies to the
// body type being built.
type CertRequestParams struct {
	Subject      pkix.Name
	Issuer       *pkix.Name
	PublicKey    crypto.PublicKey
	ValidityDays int

	CSRExtensions []pkix.Extension // extracted from a PKCS#10 CSR, if any
	ExtraExts     []pkix.Extension // context-configured, override by OID
	SANs          []GeneralName
	SANCritical   bool
	Policies      []PolicyInfo
	PoliciesCritical bool

	// PoP: exactly one of the following describes how to populate POP.
	POPRAVerified bool
	POPSigner     crypto.Signer // non-nil selects the signature form
	POPSignerHash crypto.Hash

	// KUR only: identifies the certificate being replaced via an
	// OldCertID control (oldCertIssuer + oldCertSerial).
	OldCertIssuer *pkix.Name
	OldCertSerial *big.Int
}

// PolicyInfo is a certificate-policy OID to embed in the certificatePolicies
// extension.
type PolicyInfo struct {
	OID      asn1.ObjectIdentifier
	Critical bool
}

var oidCertificatePolicies = asn1.ObjectIdentifier{2, 5, 29, 32}
var oidSubjectAltName = asn1.ObjectIdentifier{2, 5, 29, 17}
var oidCRLReason = asn1.ObjectIdentifier{2, 5, 29, 21}

// NewCertReqBody builds an ir/cr/kur body with a single CertReqMsg
// (certReqId = 0), filling the CertTemplate per its field precedence
// rules.
func NewCertReqBody(bodyType BodyType, p CertRequestParams) (PKIBody, error) {
	if bodyType != IR && bodyType != CR && bodyType != KUR {
		return PKIBody{}, serrors.New("not a cert-request body type", "type", bodyType)
	}

	tmpl := CertTemplate{}

	if len(p.Subject.ToRDNSequence()) > 0 {
		rdn, err := explicitName(p.Subject, 5)
		if err != nil {
			return PKIBody{}, err
		}
		tmpl.Subject = rdn
	}
	if p.Issuer != nil {
		rdn, err := explicitName(*p.Issuer, 3)
		if err != nil {
			return PKIBody{}, err
		}
		tmpl.Issuer = rdn
	}
	if p.PublicKey != nil {
		spki, err := marshalPublicKey(p.PublicKey)
		if err != nil {
			return PKIBody{}, serrors.WrapStr("marshaling public key", err)
		}
		tmpl.PublicKey = asn1.RawValue{
			Class: asn1.ClassContextSpecific, Tag: 6, IsCompound: true, Bytes: spki,
		}
	}
	if p.ValidityDays > 0 {
		nb := time.Now().UTC().Truncate(time.Second)
		na := nb.AddDate(0, 0, p.ValidityDays)
		tmpl.Validity = &OptionalValidity{NotBefore: &nb, NotAfter: &na}
	}

	exts := mergeExtensions(p.CSRExtensions, p.ExtraExts)
	if len(p.SANs) > 0 {
		sanDER, err := marshalGeneralNames(p.SANs)
		if err != nil {
			return PKIBody{}, serrors.WrapStr("marshaling SANs", err)
		}
		exts = upsertExtension(exts, oidSubjectAltName, p.SANCritical, sanDER)
	}
	if len(p.Policies) > 0 {
		polDER, err := marshalPolicies(p.Policies)
		if err != nil {
			return PKIBody{}, serrors.WrapStr("marshaling policies", err)
		}
		exts = upsertExtension(exts, oidCertificatePolicies, p.PoliciesCritical, polDER)
	}
	tmpl.Extensions = exts

	req := CertRequest{CertReqID: 0, CertTemplate: tmpl}

	if bodyType == KUR && p.OldCertIssuer != nil && p.OldCertSerial != nil {
		certID := CertID{Serial: p.OldCertSerial}
		name, err := explicitName(*p.OldCertIssuer, 4)
		if err != nil {
			return PKIBody{}, err
		}
		certID.Issuer = name
		idDER, err := asn1.Marshal(certID)
		if err != nil {
			return PKIBody{}, serrors.WrapStr("marshaling OldCertID control", err)
		}
		req.Controls = append(req.Controls, AttributeTypeAndValue{
			Type:  OIDRegCtrlOldCertID,
			Value: asn1.RawValue{FullBytes: idDER},
		})
	}

	msg := CertReqMsg{CertReq: req}
	if p.POPSigner != nil {
		sig, alg, err := signPOP(p.POPSigner, p.POPSignerHash, req)
		if err != nil {
			return PKIBody{}, serrors.WrapStr("computing POP signature", err)
		}
		if err := msg.SetPOPSignature(POPOSigningKey{
			Algorithm: alg,
			Signature: asn1.BitString{Bytes: sig, BitLength: len(sig) * 8},
		}); err != nil {
			return PKIBody{}, err
		}
	} else if p.POPRAVerified {
		msg.SetPOPRAVerified()
	}

	return PKIBody{Type: bodyType, CertReqMessages: []CertReqMsg{msg}}, nil
}

func explicitName(name pkix.Name, tag int) (asn1.RawValue, error) {
	inner, err := asn1.Marshal(name.ToRDNSequence())
	if err != nil {
		return asn1.RawValue{}, serrors.WrapStr("marshaling RDNSequence", err)
	}
	return asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: tag, IsCompound: true, Bytes: inner}, nil
}

func marshalPublicKey(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	var raw asn1.RawValue
	if _, err := asn1.Unmarshal(der, &raw); err != nil {
		return nil, err
	}
	return raw.FullBytes, nil
}

func marshalGeneralNames(names []GeneralName) ([]byte, error) {
	raws := make([]asn1.RawValue, len(names))
	for i, n := range names {
		raws[i] = n.Raw
	}
	return asn1.Marshal(raws)
}

func marshalPolicies(policies []PolicyInfo) ([]byte, error) {
	type policyInformation struct {
		PolicyIdentifier asn1.ObjectIdentifier
	}
	infos := make([]policyInformation, len(policies))
	for i, p := range policies {
		infos[i] = policyInformation{PolicyIdentifier: p.OID}
	}
	return asn1.Marshal(infos)
}

// mergeExtensions starts from base (e.g. CSR extensions) and applies
// overrides by OID, appending overrides whose OID isn't already present.
func mergeExtensions(base, overrides []pkix.Extension) []pkix.Extension {
	out := make([]pkix.Extension, len(base))
	copy(out, base)
	for _, o := range overrides {
		out = upsertExtensionFull(out, o)
	}
	return out
}

func upsertExtension(exts []pkix.Extension, oid asn1.ObjectIdentifier, critical bool, value []byte) []pkix.Extension {
	return upsertExtensionFull(exts, pkix.Extension{Id: oid, Critical: critical, Value: value})
}

func upsertExtensionFull(exts []pkix.Extension, ext pkix.Extension) []pkix.Extension {
	for i, e := range exts {
		if e.Id.Equal(ext.Id) {
			exts[i] = ext
			return exts
		}
	}
	return append(exts, ext)
}

// signPOP signs the DER encoding of req to produce the POPOSigningKey
// signature form of Proof-of-Possession.
func signPOP(signer crypto.Signer, hash crypto.Hash, req CertRequest) ([]byte, pkix.AlgorithmIdentifier, error) {
	der, err := asn1.Marshal(req)
	if err != nil {
		return nil, pkix.AlgorithmIdentifier{}, err
	}
	if hash == 0 {
		hash = crypto.SHA256
	}
	h := hash.New()
	h.Write(der)
	digest := h.Sum(nil)
	sig, err := signer.Sign(randReaderForSigning(), digest, hash)
	if err != nil {
		return nil, pkix.AlgorithmIdentifier{}, err
	}
	alg := pkix.AlgorithmIdentifier{Algorithm: sigAlgOIDFor(signer, hash)}
	return sig, alg, nil
}

// NewP10CRBody embeds a duplicate of the caller's PKCS#10 CSR with no CRMF
// structure.
func NewP10CRBody(csrDER []byte) (PKIBody, error) {
	dup := make([]byte, len(csrDER))
	copy(dup, csrDER)
	return PKIBody{Type: P10CR, P10CSR: dup}, nil
}

// NewRRBody fills a CertTemplate with the old cert's issuer and serial
// (optionally its subject and public key), and attaches a CRL-reason
// extension when reason is meaningful (>= 0).
func NewRRBody(oldCert *x509.Certificate, includeSubjectAndKey bool, reason int) (PKIBody, error) {
	if oldCert == nil {
		return PKIBody{}, serrors.New("RR requires the old certificate")
	}
	issuer, err := explicitName(oldCert.Issuer, 3)
	if err != nil {
		return PKIBody{}, err
	}
	tmpl := CertTemplate{
		SerialNumber: oldCert.SerialNumber,
		Issuer:       issuer,
	}
	if includeSubjectAndKey {
		subj, err := explicitName(oldCert.Subject, 5)
		if err != nil {
			return PKIBody{}, err
		}
		tmpl.Subject = subj
		spki, err := marshalPublicKey(oldCert.PublicKey)
		if err != nil {
			return PKIBody{}, err
		}
		tmpl.PublicKey = asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 6, IsCompound: true, Bytes: spki}
	}

	detail := RevDetails{CertDetails: tmpl}
	if reason >= 0 {
		reasonDER, err := asn1.Marshal(asn1.Enumerated(reason))
		if err != nil {
			return PKIBody{}, serrors.WrapStr("marshaling CRL reason", err)
		}
		detail.CrlEntryDetails = []pkix.Extension{{Id: oidCRLReason, Value: reasonDER}}
	}
	return PKIBody{Type: RR, RevReqContent: []RevDetails{detail}}, nil
}

// CertConfEntry is one certConf element input: the issued cert and,
// when it was rejected by the application callback, the failure details.
type CertConfEntry struct {
	Cert      *x509.Certificate
	Rejected  bool
	FailInfo  asn1.BitString
	FailText  []string
}

// NewCertConfBody includes one CertStatus per issued cert, with
// certHash computed using the certificate's own signature-digest
// algorithm.
func NewCertConfBody(entries []CertConfEntry) (PKIBody, error) {
	statuses := make([]CertStatus, len(entries))
	for i, e := range entries {
		hash, err := certHashAlg(e.Cert)
		if err != nil {
			return PKIBody{}, serrors.WrapStr("determining cert hash algorithm", err, "index", i)
		}
		h := hash.New()
		h.Write(e.Cert.Raw)
		status := PKIStatusInfo{Status: int(StatusAccepted)}
		if e.Rejected {
			status = PKIStatusInfo{
				Status:       int(StatusRejection),
				FailInfo:     e.FailInfo,
				StatusString: e.FailText,
			}
		}
		statuses[i] = CertStatus{
			CertHash:   h.Sum(nil),
			CertReqID:  0,
			StatusInfo: &status,
		}
	}
	return PKIBody{Type: CertConf, CertConfirm: statuses}, nil
}

func certHashAlg(cert *x509.Certificate) (crypto.Hash, error) {
	switch cert.SignatureAlgorithm {
	case x509.SHA256WithRSA, x509.ECDSAWithSHA256, x509.SHA256WithRSAPSS:
		return crypto.SHA256, nil
	case x509.SHA384WithRSA, x509.ECDSAWithSHA384, x509.SHA384WithRSAPSS:
		return crypto.SHA384, nil
	case x509.SHA512WithRSA, x509.ECDSAWithSHA512, x509.SHA512WithRSAPSS:
		return crypto.SHA512, nil
	default:
		return crypto.SHA256, nil
	}
}

// NewPollReqBody builds a pollReq carrying a single certReqId.
func NewPollReqBody(certReqID int) PKIBody {
	return PKIBody{Type: PollReq, PollReq: []PollReqItem{{CertReqID: certReqID}}}
}

// NewPollRepBody builds a pollRep carrying a single certReqId and a
// non-negative checkAfter in seconds.
func NewPollRepBody(certReqID, checkAfterSeconds int, reason string) PKIBody {
	item := PollRepItem{CertReqID: certReqID, CheckAfter: checkAfterSeconds}
	if reason != "" {
		item.Reason = []string{reason}
	}
	return PKIBody{Type: PollRep, PollRep: []PollRepItem{item}}
}

// NewGenMBody/NewGenPBody wrap a pre-built (OID, value) sequence.
func NewGenMBody(items []InfoTypeAndValue) PKIBody {
	return PKIBody{Type: GenM, GenMsgContent: items}
}

func NewGenPBody(items []InfoTypeAndValue) PKIBody {
	return PKIBody{Type: GenP, GenRepContent: items}
}

// NewErrorBody wraps a PKIStatusInfo with optional errorCode/details.
func NewErrorBody(status PKIStatusInfo, errorCode *big.Int, details []string) PKIBody {
	return PKIBody{Type: ErrorMsg, ErrorMsgContent: &ErrorMsgContent{
		PKIStatusInfo: status,
		ErrorCode:     errorCode,
		ErrorDetails:  details,
	}}
}

// NewPKIConfBody builds the NULL-bodied pkiConf.
func NewPKIConfBody() PKIBody {
	return PKIBody{Type: PKIConf}
}
