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
	"bytes"
	"crypto/rand"
	"crypto/x509"
	"encoding/asn1"

	"github.com/anapaya/gocmp/go/lib/cmp/context"
	"github.com/anapaya/gocmp/go/lib/cmp/message"
	"github.com/anapaya/gocmp/go/lib/serrors"
)

// Protect computes and installs m.Protection and m.Header.ProtectionAlg
// following algorithm-selection rule: PBMAC when ctx has a
// secret-value, else signature when ctx has a matching client cert and
// key, else ErrMissingKeyInput. extraCerts are assembled per Assemble's
// ordering rule when signing; PBMAC-protected messages carry none.
func Protect(ctx *context.Context, m *message.PKIMessage, callerExtras []*x509.Certificate) error {
	switch {
	case len(ctx.SecretValue) > 0:
		return protectPBMAC(ctx, m)
	case ctx.ClientCert != nil && ctx.ClientKey != nil:
		if err := protectSignature(ctx, m); err != nil {
			return err
		}
		chain := buildChain(ctx.ClientCert, ctx.UntrustedCerts)
		m.ExtraCerts = Assemble(ctx.ClientCert, chain, callerExtras)
		return nil
	default:
		return ErrMissingKeyInput
	}
}

// protectPBMAC derives fresh PBM parameters, installs ProtectionAlg, then
// MACs the resulting ProtectedPart encoding. The salt size and OID widths
// are fixed ahead of encoding, so a single pass over EncodeProtectedPart
// already reflects the final header shape.
func protectPBMAC(ctx *context.Context, m *message.PKIMessage) error {
	opts := DefaultPBMACOptions()
	salt := make([]byte, opts.SaltSize)
	if err := fillRandom(salt); err != nil {
		return serrors.WrapStr("generating PBM salt", err)
	}
	params := PBMParameter{
		Salt:           salt,
		OWF:            algID(opts.OWF),
		IterationCount: opts.IterationCount,
		MAC:            algID(opts.MAC),
	}
	paramDER, err := asn1.Marshal(params)
	if err != nil {
		return serrors.WrapStr("marshaling PBM parameters", err)
	}
	m.Header.ProtectionAlg = &message.AlgorithmIdentifier{
		Algorithm:  OIDPasswordBasedMAC,
		Parameters: asn1.RawValue{FullBytes: paramDER},
	}

	der, err := message.EncodeProtectedPart(m)
	if err != nil {
		return err
	}
	mac, err := computePBMAC(ctx.SecretValue, der, params)
	if err != nil {
		return err
	}
	m.Protection = asn1.BitString{Bytes: mac, BitLength: len(mac) * 8}
	return nil
}

func protectSignature(ctx *context.Context, m *message.PKIMessage) error {
	_, oid := hashAndOIDFor(ctx.ClientKey, ctx.DigestAlg)
	m.Header.ProtectionAlg = &message.AlgorithmIdentifier{Algorithm: oid}

	der, err := message.EncodeProtectedPart(m)
	if err != nil {
		return err
	}
	sig, algID, err := SignProtectedPart(ctx.ClientKey, ctx.DigestAlg, der)
	if err != nil {
		return err
	}
	m.Header.ProtectionAlg = &algID
	m.Protection = asn1.BitString{Bytes: sig, BitLength: len(sig) * 8}
	return nil
}

func algID(oid asn1.ObjectIdentifier) pkixAlgorithmIdentifier {
	return pkixAlgorithmIdentifier{Algorithm: oid}
}

// pkixAlgorithmIdentifier is an alias so this file doesn't need a direct
// crypto/x509/pkix import solely for this one helper.
type pkixAlgorithmIdentifier = message.AlgorithmIdentifier

func fillRandom(b []byte) error {
	_, err := rand.Read(b)
	return err
}

// buildChain walks from clientCert through pool by matching each
// certificate's issuer to the next certificate's subject, stopping as
// soon as it would step onto a self-signed certificate: a root's trust
// comes from the verifier's trust store, not from riding along in
// extraCerts, so self-signed members of pool are excluded both as chain
// links and as the chain's final element.
func buildChain(clientCert *x509.Certificate, pool []*x509.Certificate) []*x509.Certificate {
	if clientCert == nil {
		return nil
	}
	bySubject := make(map[string]*x509.Certificate, len(pool))
	for _, c := range pool {
		if c == nil || isSelfSigned(c) {
			continue
		}
		bySubject[string(c.RawSubject)] = c
	}

	var chain []*x509.Certificate
	cur := clientCert
	for range pool {
		next, ok := bySubject[string(cur.RawIssuer)]
		if !ok {
			break
		}
		chain = append(chain, next)
		delete(bySubject, string(next.RawSubject))
		cur = next
	}
	return chain
}

func isSelfSigned(c *x509.Certificate) bool {
	return bytes.Equal(c.RawIssuer, c.RawSubject)
}

// Assemble builds the extraCerts sequence: client cert first, then its
// chain, then caller-supplied extras, de-duplicated by raw DER.
func Assemble(clientCert *x509.Certificate, chain []*x509.Certificate, extras []*x509.Certificate) []asn1.RawValue {
	seen := map[string]bool{}
	var out []asn1.RawValue
	push := func(c *x509.Certificate) {
		if c == nil {
			return
		}
		key := string(c.Raw)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, asn1.RawValue{FullBytes: c.Raw})
	}
	push(clientCert)
	for _, c := range chain {
		push(c)
	}
	for _, c := range extras {
		push(c)
	}
	return out
}
