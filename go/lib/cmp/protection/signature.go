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

package protection

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"

	"github.com/anapaya/gocmp/go/lib/serrors"
)

var ErrMissingKeyInput = serrors.New("MISSING_KEY_INPUT_FOR_CREATING_PROTECTION")

var (
	oidSHA256WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	oidSHA384WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	oidSHA512WithRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	oidECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	oidECDSAWithSHA384 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}
	oidECDSAWithSHA512 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}
)

func hashAndOIDFor(signer crypto.Signer, hashAlg string) (crypto.Hash, asn1.ObjectIdentifier) {
	_, isRSA := signer.Public().(*rsa.PublicKey)
	switch hashAlg {
	case "SHA384":
		if isRSA {
			return crypto.SHA384, oidSHA384WithRSA
		}
		return crypto.SHA384, oidECDSAWithSHA384
	case "SHA512":
		if isRSA {
			return crypto.SHA512, oidSHA512WithRSA
		}
		return crypto.SHA512, oidECDSAWithSHA512
	default:
		if isRSA {
			return crypto.SHA256, oidSHA256WithRSA
		}
		return crypto.SHA256, oidECDSAWithSHA256
	}
}

// SignProtectedPart signs protectedPartDER with signer using the digest
// named by hashAlg ("SHA256"/"SHA384"/"SHA512", default SHA256), returning
// the signature bits and the AlgorithmIdentifier to place in
// PKIHeader.ProtectionAlg.
func SignProtectedPart(signer crypto.Signer, hashAlg string, protectedPartDER []byte) ([]byte, pkix.AlgorithmIdentifier, error) {
	hash, oid := hashAndOIDFor(signer, hashAlg)
	h := hash.New()
	h.Write(protectedPartDER)
	digest := h.Sum(nil)
	sig, err := signer.Sign(rand.Reader, digest, hash)
	if err != nil {
		return nil, pkix.AlgorithmIdentifier{}, serrors.WrapStr("signing ProtectedPart", err)
	}
	return sig, pkix.AlgorithmIdentifier{Algorithm: oid}, nil
}

// VerifySignature checks sig against protectedPartDER using cert's public
// key and the digest implied by algID.
func VerifySignature(cert *x509.Certificate, algID pkix.AlgorithmIdentifier, protectedPartDER, sig []byte) error {
	hash, err := hashForSigOID(algID.Algorithm)
	if err != nil {
		return err
	}
	h := hash.New()
	h.Write(protectedPartDER)
	digest := h.Sum(nil)

	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(pub, hash, digest, sig); err != nil {
			return serrors.WrapStr("RSA signature verification failed", err)
		}
		return nil
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(pub, digest, sig) {
			return serrors.New("ECDSA signature verification failed")
		}
		return nil
	default:
		return serrors.New("unsupported public key type for signature verification")
	}
}

func hashForSigOID(oid asn1.ObjectIdentifier) (crypto.Hash, error) {
	switch {
	case oid.Equal(oidSHA256WithRSA), oid.Equal(oidECDSAWithSHA256):
		return crypto.SHA256, nil
	case oid.Equal(oidSHA384WithRSA), oid.Equal(oidECDSAWithSHA384):
		return crypto.SHA384, nil
	case oid.Equal(oidSHA512WithRSA), oid.Equal(oidECDSAWithSHA512):
		return crypto.SHA512, nil
	default:
		return 0, serrors.New("unsupported signature algorithm OID", "oid", oid.String())
	}
}
