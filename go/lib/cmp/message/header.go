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

// Package message implements the RFC 4210/4211 wire types (PKIHeader,
// PKIBody and its 27 variants, PKIMessage, ProtectedPart) and the
// certReq/certConf/pollReq/genM/... content builders. ASN.1 DER encoding
// is delegated to encoding/asn1 and crypto/x509; no third-party CMP/CRMF
// ASN.1 library exists in the retrieved corpus, so this is documented as
// stdlib-only by necessity.
package message

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"time"

	"github.com/anapaya/gocmp/go/lib/serrors"
)

// PVNO is the fixed protocol version this engine speaks.
const PVNO = 2 // cmp2000

// GeneralNameTag values used by this engine. Only directoryName and the
// NULL-DN fallback are produced; rfc822Name etc. are accepted read-only.
const (
	tagOtherName     = 0
	tagRFC822Name    = 1
	tagDNSName       = 2
	tagX400Address   = 3
	tagDirectoryName = 4
	tagEDIPartyName  = 5
	tagURI           = 6
	tagIPAddress     = 7
	tagRegisteredID  = 8
)

// GeneralName is a CHOICE; encoding/asn1 has no CHOICE support, so it is
// modeled as a raw context-tagged value with helpers for the one variant
// the engine constructs (directoryName) and the ones it must read.
type GeneralName struct {
	Raw asn1.RawValue
}

// DirectoryName builds a GeneralName of type directoryName ([4] EXPLICIT
// Name), the only sender/recipient form this engine emits.
func DirectoryName(name pkix.Name) (GeneralName, error) {
	rdn := name.ToRDNSequence()
	inner, err := asn1.Marshal(rdn)
	if err != nil {
		return GeneralName{}, serrors.WrapStr("marshaling RDNSequence", err)
	}
	return GeneralName{Raw: asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        tagDirectoryName,
		IsCompound: true,
		Bytes:      inner,
	}}, nil
}

// NullDN is the empty X509_NAME used when sender identity is not yet
// established (e.g. the very first PBMAC-protected IR).
func NullDN() GeneralName {
	g, _ := DirectoryName(pkix.Name{})
	return g
}

// IsDirectoryName reports whether g is a directoryName and, if so, decodes
// it.
func (g GeneralName) IsDirectoryName() (pkix.Name, bool, error) {
	if g.Raw.Class != asn1.ClassContextSpecific || g.Raw.Tag != tagDirectoryName {
		return pkix.Name{}, false, nil
	}
	var rdn pkix.RDNSequence
	if _, err := asn1.Unmarshal(g.Raw.Bytes, &rdn); err != nil {
		return pkix.Name{}, true, serrors.WrapStr("decoding directoryName", err)
	}
	var name pkix.Name
	name.FillFromRDNSequence(&rdn)
	return name, true, nil
}

// Equal compares the raw DER encoding of two GeneralNames.
func (g GeneralName) Equal(o GeneralName) bool {
	return string(mustRaw(g)) == string(mustRaw(o))
}

func mustRaw(g GeneralName) []byte {
	b, _ := asn1.Marshal(g.Raw)
	return b
}

// InfoTypeAndValue is the (OID, ANY) pair carried in generalInfo, genM and
// genP.
type InfoTypeAndValue struct {
	InfoType  asn1.ObjectIdentifier
	InfoValue asn1.RawValue `asn1:"optional"`
}

// Well-known generalInfo OIDs.
var (
	OIDImplicitConfirm   = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 4, 13}
	OIDConfirmWaitTime   = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 4, 14}
	OIDOrigPKIMessage    = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 4, 15}
	OIDCertProfile       = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 4, 21}
)

// PKIHeader is RFC 4210 §5.1.1's PKIHeader, encoded under the module's
// EXPLICIT TAGS convention.
type PKIHeader struct {
	PVNO          int
	Sender        asn1.RawValue
	Recipient     asn1.RawValue
	MessageTime   *time.Time               `asn1:"optional,explicit,tag:0,generalized"`
	ProtectionAlg *pkix.AlgorithmIdentifier `asn1:"optional,explicit,tag:1"`
	SenderKID     []byte                   `asn1:"optional,explicit,tag:2"`
	RecipKID      []byte                   `asn1:"optional,explicit,tag:3"`
	TransactionID []byte                   `asn1:"optional,explicit,tag:4"`
	SenderNonce   []byte                   `asn1:"optional,explicit,tag:5"`
	RecipNonce    []byte                   `asn1:"optional,explicit,tag:6"`
	FreeText      []string                 `asn1:"optional,explicit,tag:7,utf8"`
	GeneralInfo   []InfoTypeAndValue       `asn1:"optional,explicit,tag:8"`
}

// SenderName is a convenience accessor wrapping the raw Sender field.
func (h *PKIHeader) SenderName() GeneralName { return GeneralName{Raw: h.Sender} }

// RecipientName is a convenience accessor wrapping the raw Recipient field.
func (h *PKIHeader) RecipientName() GeneralName { return GeneralName{Raw: h.Recipient} }

func (h *PKIHeader) SetSender(g GeneralName)    { h.Sender = g.Raw }
func (h *PKIHeader) SetRecipient(g GeneralName) { h.Recipient = g.Raw }

// PushGeneralInfo enforces uniqueness by OID: a later push with the same
// OID replaces the earlier one rather than producing a duplicate entry.
func (h *PKIHeader) PushGeneralInfo(itav InfoTypeAndValue) {
	for i, existing := range h.GeneralInfo {
		if existing.InfoType.Equal(itav.InfoType) {
			h.GeneralInfo[i] = itav
			return
		}
	}
	h.GeneralInfo = append(h.GeneralInfo, itav)
}

// HasImplicitConfirm reports whether generalInfo carries implicitConfirm.
func (h *PKIHeader) HasImplicitConfirm() bool {
	for _, itav := range h.GeneralInfo {
		if itav.InfoType.Equal(OIDImplicitConfirm) {
			return true
		}
	}
	return false
}
