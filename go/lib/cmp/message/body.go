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
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/anapaya/gocmp/go/lib/serrors"
)

// BodyType is the PKIBody CHOICE tag, 0..26.
type BodyType int

const (
	IR BodyType = iota
	IP
	CR
	CP
	P10CR
	PopDecC
	PopDecR
	KUR
	KUP
	KRR
	KRP
	RR
	RP
	CCR
	CCP
	CKUAnn
	CAnn
	RAnn
	CRLAnn
	PKIConf
	Nested
	GenM
	GenP
	ErrorMsg
	CertConf
	PollReq
	PollRep
)

func (t BodyType) String() string {
	names := [...]string{
		"ir", "ip", "cr", "cp", "p10cr", "popdecc", "popdecr", "kur", "kup",
		"krr", "krp", "rr", "rp", "ccr", "ccp", "ckuann", "cann", "rann",
		"crlann", "pkiconf", "nested", "genm", "genp", "error", "certConf",
		"pollReq", "pollRep",
	}
	if int(t) < 0 || int(t) >= len(names) {
		return "unknown"
	}
	return names[t]
}

// PKIBody is the tagged union of the 27 body variants. Exactly one of the
// Content fields is populated, matching BodyType.
type PKIBody struct {
	Type BodyType

	CertReqMessages  []CertReqMsg      // ir, cr, kur
	CertRepMessage   *CertRepMessage   // ip, cp, kup, ccp
	P10CSR           []byte            // p10cr: DER of a CertificationRequest
	RevReqContent    []RevDetails      // rr
	RevRepContent    *RevRepContent    // rp
	CertConfirm      []CertStatus      // certConf
	PollReq          []PollReqItem     // pollReq
	PollRep          []PollRepItem     // pollRep
	GenMsgContent    []InfoTypeAndValue // genm
	GenRepContent    []InfoTypeAndValue // genp
	ErrorMsgContent  *ErrorMsgContent  // error
	// PKIConf (pkiconf) carries no content: a bare ASN.1 NULL.
}

// PKIStatus values (RFC 4210 §5.2.3).
type PKIStatus int

const (
	StatusAccepted PKIStatus = iota
	StatusGrantedWithMods
	StatusRejection
	StatusWaiting
	StatusRevocationWarning
	StatusRevocationNotification
	StatusKeyUpdateWarning
)

func (s PKIStatus) String() string {
	names := [...]string{
		"accepted", "grantedWithMods", "rejection", "waiting",
		"revocationWarning", "revocationNotification", "keyUpdateWarning",
	}
	if int(s) < 0 || int(s) >= len(names) {
		return "unknown"
	}
	return names[s]
}

// PKIFailureInfo bit positions (RFC 4210 §5.2.3), 27 named failures.
const (
	FailBadAlg = iota
	FailBadMessageCheck
	FailBadRequest
	FailBadTime
	FailBadCertID
	FailBadDataFormat
	FailWrongAuthority
	FailIncorrectData
	FailMissingTimeStamp
	FailBadPOP
	FailCertRevoked
	FailCertConfirmed
	FailWrongIntegrity
	FailBadRecipientNonce
	FailTimeNotAvailable
	FailUnacceptedPolicy
	FailUnacceptedExtension
	FailAddInfoNotAvailable
	FailBadSenderNonce
	FailBadCertTemplate
	FailSignerNotTrusted
	FailTransactionIDInUse
	FailUnsupportedVersion
	FailNotAuthorized
	FailSystemUnavail
	FailSystemFailure
	FailDuplicateCertReq
)

var failNames = [...]string{
	"badAlg", "badMessageCheck", "badRequest", "badTime", "badCertId",
	"badDataFormat", "wrongAuthority", "incorrectData", "missingTimeStamp",
	"badPOP", "certRevoked", "certConfirmed", "wrongIntegrity",
	"badRecipientNonce", "timeNotAvailable", "unacceptedPolicy",
	"unacceptedExtension", "addInfoNotAvailable", "badSenderNonce",
	"badCertTemplate", "signerNotTrusted", "transactionIdInUse",
	"unsupportedVersion", "notAuthorized", "systemUnavail", "systemFailure",
	"duplicateCertReq",
}

// PKIStatusInfo is RFC 4210 §5.2.3.
type PKIStatusInfo struct {
	Status       int
	StatusString []string          `asn1:"optional,utf8"`
	FailInfo     asn1.BitString    `asn1:"optional"`
}

// HasFailBit reports whether bit is set in FailInfo.
func (s PKIStatusInfo) HasFailBit(bit int) bool {
	return s.FailInfo.At(bit) != 0
}

// FailBits returns the set of set fail-bit names.
func (s PKIStatusInfo) FailBits() []string {
	var names []string
	for i, n := range failNames {
		if s.HasFailBit(i) {
			names = append(names, n)
		}
	}
	return names
}

// WithinTimeframe reports whether now falls within [notBefore, notAfter],
// inclusive at both ends.
func WithinTimeframe(notBefore, notAfter, now time.Time) bool {
	return !now.Before(notBefore) && !now.After(notAfter)
}

// OptionalValidity is CertTemplate's validity window.
type OptionalValidity struct {
	NotBefore *time.Time `asn1:"optional,explicit,tag:0,generalized"`
	NotAfter  *time.Time `asn1:"optional,explicit,tag:1,generalized"`
}

// CertTemplate is RFC 4211 §5's CertTemplate.
type CertTemplate struct {
	Version      int                    `asn1:"optional,explicit,tag:0"`
	SerialNumber *big.Int               `asn1:"optional,explicit,tag:1"`
	Signature    *pkix.AlgorithmIdentifier `asn1:"optional,explicit,tag:2"`
	Issuer       asn1.RawValue          `asn1:"optional,explicit,tag:3"`
	Validity     *OptionalValidity      `asn1:"optional,explicit,tag:4"`
	Subject      asn1.RawValue          `asn1:"optional,explicit,tag:5"`
	PublicKey    asn1.RawValue          `asn1:"optional,explicit,tag:6"`
	Extensions   []pkix.Extension       `asn1:"optional,explicit,tag:9"`
}

// AttributeTypeAndValue is CRMF's generic control/registration attribute.
type AttributeTypeAndValue struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue
}

var OIDRegCtrlOldCertID = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 5, 1, 5}

// CertID identifies a certificate by issuer + serial.
type CertID struct {
	Issuer asn1.RawValue // GeneralName
	Serial *big.Int
}

// ProofOfPossession CHOICE tags.
const (
	popRAVerified = iota
	popSignature
	popKeyEncipherment
	popKeyAgreement
)

// POPOSigningKey is the signature form of Proof-of-Possession.
type POPOSigningKey struct {
	Algorithm pkix.AlgorithmIdentifier
	Signature asn1.BitString
}

// CertRequest wraps a certReqId and a CertTemplate plus optional controls.
type CertRequest struct {
	CertReqID    int
	CertTemplate CertTemplate
	Controls     []AttributeTypeAndValue `asn1:"optional"`
}

// CertReqMsg is one element of CertReqMessages (ir/cr/kur bodies carry
// exactly one, per this engine's single-request-per-transaction design).
type CertReqMsg struct {
	CertReq CertRequest
	POP     asn1.RawValue           `asn1:"optional"` // ProofOfPossession CHOICE
	RegInfo []AttributeTypeAndValue `asn1:"optional"`
}

// SetPOPRAVerified marks POP as raVerified (NULL, tag [0]).
func (m *CertReqMsg) SetPOPRAVerified() {
	m.POP = asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: popRAVerified, IsCompound: false}
}

// SetPOPSignature marks POP as the signature form (tag [1]).
func (m *CertReqMsg) SetPOPSignature(p POPOSigningKey) error {
	inner, err := asn1.Marshal(p)
	if err != nil {
		return serrors.WrapStr("marshaling POPOSigningKey", err)
	}
	m.POP = asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: popSignature, IsCompound: true, Bytes: inner}
	return nil
}

// CertifiedKeyPair carries the newly issued certificate (or, in principle,
// an encrypted certificate -- not produced by this engine's CA test
// responder, only the plain certificate form is implemented).
type CertifiedKeyPair struct {
	CertOrEncCert asn1.RawValue // [0] EXPLICIT CMPCertificate (raw DER cert)
}

// IssuedCertDER extracts the DER bytes of the issued certificate from the
// explicit [0] wrapper, itself wrapping CMPCertificate's [0] choice tag.
func (c CertifiedKeyPair) IssuedCertDER() ([]byte, error) {
	if c.CertOrEncCert.Class != asn1.ClassContextSpecific || c.CertOrEncCert.Tag != 0 {
		return nil, serrors.New("certOrEncCert: unsupported choice")
	}
	var cmpCert asn1.RawValue
	if _, err := asn1.Unmarshal(c.CertOrEncCert.Bytes, &cmpCert); err != nil {
		return nil, serrors.WrapStr("decoding CMPCertificate", err)
	}
	return cmpCert.FullBytes, nil
}

// NewCertifiedKeyPair wraps a raw certificate DER into a CertifiedKeyPair.
func NewCertifiedKeyPair(certDER []byte) CertifiedKeyPair {
	cmpCert := asn1.RawValue{FullBytes: certDER}
	cmpCertBytes, _ := asn1.Marshal(cmpCert)
	return CertifiedKeyPair{CertOrEncCert: asn1.RawValue{
		Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: cmpCertBytes,
	}}
}

// CertResponse is one element of CertRepMessage.
type CertResponse struct {
	CertReqID         int
	Status            PKIStatusInfo
	CertifiedKeyPair  *CertifiedKeyPair `asn1:"optional"`
	RspInfo           []byte            `asn1:"optional"`
}

// CertRepMessage is the body content of ip/cp/kup/ccp.
type CertRepMessage struct {
	CAPubs   []asn1.RawValue `asn1:"optional,explicit,tag:1"` // raw Certificate DER, each
	Response []CertResponse
}

// RevDetails is one element of RevReqContent (this engine sends exactly
// one per RR).
type RevDetails struct {
	CertDetails     CertTemplate
	CrlEntryDetails []pkix.Extension `asn1:"optional"`
}

// RevRepContent is rp's body.
type RevRepContent struct {
	Status   []PKIStatusInfo
	RevCerts []CertID        `asn1:"optional,explicit,tag:0"`
	CRLs     []asn1.RawValue `asn1:"optional,explicit,tag:1"`
}

// PollReqItem/PollRepItem are pollReq/pollRep's elements.
type PollReqItem struct {
	CertReqID int
}

type PollRepItem struct {
	CertReqID  int
	CheckAfter int
	Reason     []string `asn1:"optional,utf8"`
}

// CertStatus is certConf's element (RFC 9480 adds the hashAlg choice; kept
// optional since pre-9480 peers omit it and imply the cert's own sigalg).
type CertStatus struct {
	CertHash   []byte
	CertReqID  int
	StatusInfo *PKIStatusInfo            `asn1:"optional"`
	HashAlg    *pkix.AlgorithmIdentifier `asn1:"optional,explicit,tag:0"`
}

// ErrorMsgContent is error's body.
type ErrorMsgContent struct {
	PKIStatusInfo PKIStatusInfo
	ErrorCode     *big.Int `asn1:"optional"`
	ErrorDetails  []string `asn1:"optional,utf8"`
}
