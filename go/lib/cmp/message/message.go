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

	"github.com/anapaya/gocmp/go/lib/serrors"
)

var ErrUnknownBodyType = serrors.New("unknown PKIBody type")

// asn1Seq wraps already-encoded TLV children in a SEQUENCE, used for the
// handful of places (PKIMessage itself, ProtectedPart) where the member
// list mixes a RawValue-based CHOICE with ordinary fields and a plain
// struct tag set isn't expressive enough to get both right at once.
type rawSeq struct {
	Raw asn1.RawContent
}

// PKIMessage is RFC 4210 §5.1's PKIMessage.
type PKIMessage struct {
	Header     PKIHeader
	Body       asn1.RawValue   // explicit [Type] wrapped body content
	Protection asn1.BitString  `asn1:"optional,explicit,tag:0"`
	ExtraCerts []asn1.RawValue `asn1:"optional,explicit,tag:1"` // raw Certificate DER
}

// BodyType reports which of the 27 variants Body holds.
func (m *PKIMessage) BodyType() BodyType {
	return BodyType(m.Body.Tag)
}

// SetBody encodes body and stores it as the message's body field under the
// EXPLICIT [body.Type] tag required by the CMP ASN.1 module.
func (m *PKIMessage) SetBody(body PKIBody) error {
	raw, err := marshalBodyContent(body)
	if err != nil {
		return err
	}
	inner, err := asn1.Marshal(raw)
	if err != nil {
		return serrors.WrapStr("marshaling body content", err)
	}
	m.Body = asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        int(body.Type),
		IsCompound: true,
		Bytes:      inner,
	}
	return nil
}

// GetBody decodes the message's body field into a PKIBody.
func (m *PKIMessage) GetBody() (PKIBody, error) {
	return unmarshalBodyContent(BodyType(m.Body.Tag), m.Body.Bytes)
}

func marshalBodyContent(body PKIBody) (interface{}, error) {
	switch body.Type {
	case IR, CR, KUR:
		return body.CertReqMessages, nil
	case IP, CP, KUP, CCP:
		return body.CertRepMessage, nil
	case P10CR:
		var raw asn1.RawValue
		if _, err := asn1.Unmarshal(body.P10CSR, &raw); err != nil {
			return nil, serrors.WrapStr("decoding p10cr CSR for re-embedding", err)
		}
		return raw, nil
	case RR:
		return body.RevReqContent, nil
	case RP:
		return body.RevRepContent, nil
	case CertConf:
		return body.CertConfirm, nil
	case PollReq:
		return body.PollReq, nil
	case PollRep:
		return body.PollRep, nil
	case GenM:
		return body.GenMsgContent, nil
	case GenP:
		return body.GenRepContent, nil
	case ErrorMsg:
		return body.ErrorMsgContent, nil
	case PKIConf:
		return asn1.NullRawValue, nil
	default:
		return nil, serrors.WithCtx(ErrUnknownBodyType, "type", body.Type)
	}
}

func unmarshalBodyContent(t BodyType, der []byte) (PKIBody, error) {
	body := PKIBody{Type: t}
	var err error
	switch t {
	case IR, CR, KUR:
		_, err = asn1.Unmarshal(der, &body.CertReqMessages)
	case IP, CP, KUP, CCP:
		body.CertRepMessage = &CertRepMessage{}
		_, err = asn1.Unmarshal(der, body.CertRepMessage)
	case P10CR:
		var raw asn1.RawValue
		if _, err = asn1.Unmarshal(der, &raw); err == nil {
			body.P10CSR = raw.FullBytes
		}
	case RR:
		_, err = asn1.Unmarshal(der, &body.RevReqContent)
	case RP:
		body.RevRepContent = &RevRepContent{}
		_, err = asn1.Unmarshal(der, body.RevRepContent)
	case CertConf:
		_, err = asn1.Unmarshal(der, &body.CertConfirm)
	case PollReq:
		_, err = asn1.Unmarshal(der, &body.PollReq)
	case PollRep:
		_, err = asn1.Unmarshal(der, &body.PollRep)
	case GenM:
		_, err = asn1.Unmarshal(der, &body.GenMsgContent)
	case GenP:
		_, err = asn1.Unmarshal(der, &body.GenRepContent)
	case ErrorMsg:
		body.ErrorMsgContent = &ErrorMsgContent{}
		_, err = asn1.Unmarshal(der, body.ErrorMsgContent)
	case PKIConf:
		// NULL body, nothing to decode.
	default:
		return PKIBody{}, serrors.WithCtx(ErrUnknownBodyType, "type", t)
	}
	if err != nil {
		return PKIBody{}, serrors.WrapStr("decoding PKIBody content", err, "type", t)
	}
	return body, nil
}

// ProtectedPart is the DER encoding of SEQUENCE { header, body } that
// protection is computed and verified over. It MUST re-serialize
// byte-identical on sender and receiver.
type protectedPart struct {
	Header PKIHeader
	Body   asn1.RawValue
}

// EncodeProtectedPart returns the exact bytes protection is computed over.
func EncodeProtectedPart(m *PKIMessage) ([]byte, error) {
	pp := protectedPart{Header: m.Header, Body: m.Body}
	der, err := asn1.Marshal(pp)
	if err != nil {
		return nil, serrors.WrapStr("encoding ProtectedPart", err)
	}
	return der, nil
}

// Encode serializes the full PKIMessage to DER.
func Encode(m *PKIMessage) ([]byte, error) {
	der, err := asn1.Marshal(*m)
	if err != nil {
		return nil, serrors.WrapStr("encoding PKIMessage", err)
	}
	return der, nil
}

// Decode parses a DER-encoded PKIMessage.
func Decode(der []byte) (*PKIMessage, error) {
	var m PKIMessage
	rest, err := asn1.Unmarshal(der, &m)
	if err != nil {
		return nil, serrors.WrapStr("decoding PKIMessage", err)
	}
	if len(rest) != 0 {
		return nil, serrors.New("trailing bytes after PKIMessage", "len", len(rest))
	}
	return &m, nil
}

// AlgorithmIdentifier re-exports pkix.AlgorithmIdentifier so callers of
// this package don't need a second import for such a commonly threaded
// type.
type AlgorithmIdentifier = pkix.AlgorithmIdentifier
