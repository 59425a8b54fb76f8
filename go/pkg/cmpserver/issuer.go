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

package cmpserver

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"math/big"
	"time"

	"github.com/anapaya/gocmp/go/lib/cmp/message"
	"github.com/anapaya/gocmp/go/lib/serrors"
)

// IssuancePolicy signs certificates for accepted ir/cr/kur/p10cr requests.
// It is deliberately small: no policy engine, no CRL distribution point
// injection, just enough to hand back a chain a test client can verify
// against CA.
type IssuancePolicy struct {
	// Validity is how long an issued certificate remains valid, measured
	// from CurrentTime (or time.Now() if CurrentTime is zero).
	Validity time.Duration
	CA       *x509.Certificate
	Signer   crypto.Signer

	CurrentTime time.Time
}

// IssueCertReq verifies req's proof-of-possession against pub before
// calling Issue, so a test responder wiring ir/cr/kur through this policy
// never certifies a key the requester hasn't demonstrated control of.
func (p IssuancePolicy) IssueCertReq(req message.CertReqMsg, pub crypto.PublicKey, tmpl *x509.Certificate) (*x509.Certificate, error) {
	if err := message.VerifyPOPO(req, pub); err != nil {
		return nil, serrors.WrapStr("proof-of-possession verification failed", err)
	}
	return p.Issue(tmpl, pub)
}

// Issue signs tmpl (subject, SANs, and extensions already filled in by the
// caller) with pub as the certified key, and returns the parsed result.
// The caller is responsible for checking proof-of-possession before
// calling Issue directly; IssueCertReq does so automatically.
func (p IssuancePolicy) Issue(tmpl *x509.Certificate, pub crypto.PublicKey) (*x509.Certificate, error) {
	if p.CA == nil || p.Signer == nil {
		return nil, serrors.New("issuance policy missing CA certificate or signer")
	}
	now := p.CurrentTime
	if now.IsZero() {
		now = time.Now()
	}
	if !message.WithinTimeframe(p.CA.NotBefore, p.CA.NotAfter, now) ||
		!message.WithinTimeframe(p.CA.NotBefore, p.CA.NotAfter, now.Add(p.Validity)) {
		return nil, serrors.New("CA certificate validity does not cover requested certificate validity",
			"ca_not_before", p.CA.NotBefore, "ca_not_after", p.CA.NotAfter,
			"requested_not_after", now.Add(p.Validity))
	}

	serial := make([]byte, 20)
	if _, err := rand.Read(serial); err != nil {
		return nil, serrors.WrapStr("creating random serial number", err)
	}
	skid, err := SubjectKeyID(pub)
	if err != nil {
		return nil, serrors.WrapStr("computing subject key ID", err)
	}

	out := *tmpl
	out.SerialNumber = big.NewInt(0).SetBytes(serial)
	out.NotBefore = now
	out.NotAfter = now.Add(p.Validity)
	out.SubjectKeyId = skid
	out.AuthorityKeyId = p.CA.SubjectKeyId
	out.BasicConstraintsValid = false

	raw, err := x509.CreateCertificate(rand.Reader, &out, p.CA, pub, p.Signer)
	if err != nil {
		return nil, serrors.WrapStr("creating certificate", err)
	}
	issued, err := x509.ParseCertificate(raw)
	if err != nil {
		return nil, serrors.WrapStr("parsing issued certificate", err)
	}
	return issued, nil
}

// SubjectKeyID computes a subject key identifier per RFC 5280 §4.2.1.2(1):
// the SHA-1 hash of the certified public key's bit string.
func SubjectKeyID(pub crypto.PublicKey) ([]byte, error) {
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		skid := sha1.Sum(elliptic.Marshal(k.Curve, k.X, k.Y))
		return skid[:], nil
	default:
		return nil, serrors.New("unsupported public key type for subject key ID")
	}
}
