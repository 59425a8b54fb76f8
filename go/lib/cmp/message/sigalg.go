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
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/asn1"
	"io"

	"github.com/anapaya/gocmp/go/lib/serrors"
)

// randReaderForSigning is a seam so tests can swap in a deterministic
// reader; production code always gets crypto/rand.Reader.
var randReaderForSigning = func() io.Reader { return rand.Reader }

var (
	oidSHA256WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	oidSHA384WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	oidSHA512WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	oidECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	oidECDSAWithSHA384 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}
	oidECDSAWithSHA512 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}
	oidEd25519         = asn1.ObjectIdentifier{1, 3, 101, 112}
)

// sigAlgOIDFor maps a signer's public key type and chosen digest to the
// PKIX signature-algorithm OID, mirroring the table crypto/x509 keeps
// internal to itself.
func sigAlgOIDFor(signer crypto.Signer, hash crypto.Hash) asn1.ObjectIdentifier {
	switch signer.Public().(type) {
	case *rsa.PublicKey:
		switch hash {
		case crypto.SHA384:
			return oidSHA384WithRSA
		case crypto.SHA512:
			return oidSHA512WithRSA
		default:
			return oidSHA256WithRSA
		}
	case *ecdsa.PublicKey:
		switch hash {
		case crypto.SHA384:
			return oidECDSAWithSHA384
		case crypto.SHA512:
			return oidECDSAWithSHA512
		default:
			return oidECDSAWithSHA256
		}
	default:
		return oidEd25519
	}
}

// VerifyPOPO checks a CertReqMsg's Proof-of-Possession. The raVerified
// form is accepted unconditionally (the RA vouches for it out of band,
// per RFC 4211 §4.1); the signature form is checked by re-deriving the
// CertRequest's DER encoding signPOP originally signed over and verifying
// pub against it.
func VerifyPOPO(req CertReqMsg, pub crypto.PublicKey) error {
	if req.POP.Class != asn1.ClassContextSpecific {
		return serrors.New("missing proof-of-possession")
	}
	switch req.POP.Tag {
	case popRAVerified:
		return nil
	case popSignature:
		var popo POPOSigningKey
		if _, err := asn1.Unmarshal(req.POP.Bytes, &popo); err != nil {
			return serrors.WrapStr("decoding POPOSigningKey", err)
		}
		der, err := asn1.Marshal(req.CertReq)
		if err != nil {
			return serrors.WrapStr("re-encoding CertRequest for POP verification", err)
		}
		hash, err := hashForSigAlgOID(popo.Algorithm.Algorithm)
		if err != nil {
			return err
		}
		h := hash.New()
		h.Write(der)
		digest := h.Sum(nil)
		return verifyPOPSignature(pub, hash, digest, popo.Signature.RightAlign())
	default:
		return serrors.New("unsupported or missing proof-of-possession form", "tag", req.POP.Tag)
	}
}

func verifyPOPSignature(pub crypto.PublicKey, hash crypto.Hash, digest, sig []byte) error {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(k, hash, digest, sig); err != nil {
			return serrors.WrapStr("RSA POP signature verification failed", err)
		}
		return nil
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(k, digest, sig) {
			return serrors.New("ECDSA POP signature verification failed")
		}
		return nil
	default:
		return serrors.New("unsupported public key type for POP verification")
	}
}

// hashForSigAlgOID is sigAlgOIDFor's inverse: the digest algorithm a POP
// signature's AlgorithmIdentifier was produced with.
func hashForSigAlgOID(oid asn1.ObjectIdentifier) (crypto.Hash, error) {
	switch {
	case oid.Equal(oidSHA256WithRSA), oid.Equal(oidECDSAWithSHA256):
		return crypto.SHA256, nil
	case oid.Equal(oidSHA384WithRSA), oid.Equal(oidECDSAWithSHA384):
		return crypto.SHA384, nil
	case oid.Equal(oidSHA512WithRSA), oid.Equal(oidECDSAWithSHA512):
		return crypto.SHA512, nil
	default:
		return 0, serrors.New("unsupported POP signature algorithm OID", "oid", oid.String())
	}
}
