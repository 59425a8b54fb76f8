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

// Package verify implements sender-certificate discovery, message
// signature/MAC validation, and the received-message checklist (nonce
// and transactionID continuity, pvno, protection presence).
package verify

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"time"

	"github.com/anapaya/gocmp/go/lib/cmp/context"
	"github.com/anapaya/gocmp/go/lib/cmp/message"
	"github.com/anapaya/gocmp/go/lib/cmp/protection"
	"github.com/anapaya/gocmp/go/lib/log"
	"github.com/anapaya/gocmp/go/lib/serrors"
)

var (
	ErrNoProtection          = serrors.New("message carries no protection and none is excused")
	ErrSenderNotDirName      = serrors.New("sender is not a directoryName")
	ErrUnexpectedSender      = serrors.New("sender does not match expected_sender")
	ErrNoAcceptableCert      = serrors.New("no acceptable sender certificate found")
	ErrBadBodyType           = serrors.New("unknown body type in response")
	ErrTransactionIDMismatch = serrors.New("transactionID does not match")
	ErrRecipNonceMismatch    = serrors.New("recipNonce does not match last senderNonce")
	ErrPVNOMismatch          = serrors.New("unsupported pvno")
	Err3GPPExceptionFailed   = serrors.New("3GPP TS 33.310 exception verification failed")
)

const maxReasonableExtraCerts = 10

// AccumulateExtraCerts prepends m's extraCerts (deduplicated) to ctx's
// untrusted pool, logging a warning past the sanity threshold.
func AccumulateExtraCerts(ctx *context.Context, m *message.PKIMessage) error {
	certs, err := decodeCerts(m.ExtraCerts)
	if err != nil {
		return serrors.WrapStr("decoding extraCerts", err)
	}
	if len(certs) > maxReasonableExtraCerts {
		log.Warn("unusually large extraCerts count", "count", len(certs))
	}
	ctx.UntrustedCerts = dedupeCerts(append(certs, ctx.UntrustedCerts...))
	return nil
}

func decodeCerts(raws []asn1.RawValue) ([]*x509.Certificate, error) {
	out := make([]*x509.Certificate, 0, len(raws))
	for i, raw := range raws {
		der := raw.FullBytes
		if der == nil {
			var err error
			der, err = asn1.Marshal(raw)
			if err != nil {
				return nil, serrors.WrapStr("re-marshaling extraCert", err, "index", i)
			}
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, serrors.WrapStr("parsing extraCert", err, "index", i)
		}
		out = append(out, cert)
	}
	return out, nil
}

func dedupeCerts(certs []*x509.Certificate) []*x509.Certificate {
	seen := map[string]bool{}
	out := make([]*x509.Certificate, 0, len(certs))
	for _, c := range certs {
		key := string(c.Raw)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// Verify runs the full validation pipeline: accumulate extraCerts, then
// dispatch on protectionAlg to PBMAC, signature, or the
// unprotected-exception path.
func Verify(ctx *context.Context, m *message.PKIMessage) error {
	if err := AccumulateExtraCerts(ctx, m); err != nil {
		return err
	}

	if m.Header.ProtectionAlg == nil {
		if unprotectedExceptionAllowed(ctx, m) {
			log.Warn("accepting unprotected message under unprotected_errors exception",
				"bodyType", m.BodyType().String())
			return nil
		}
		return ErrNoProtection
	}

	if m.Header.ProtectionAlg.Algorithm.Equal(protection.OIDPasswordBasedMAC) {
		return verifyPBMAC(ctx, m)
	}
	return verifySignature(ctx, m)
}

func verifyPBMAC(ctx *context.Context, m *message.PKIMessage) error {
	var params protection.PBMParameter
	if _, err := asn1.Unmarshal(m.Header.ProtectionAlg.Parameters.FullBytes, &params); err != nil {
		return serrors.WrapStr("decoding PBMParameter", err)
	}
	der, err := message.EncodeProtectedPart(m)
	if err != nil {
		return err
	}
	if err := protection.VerifyPBMAC(ctx.SecretValue, der, m.Protection.Bytes, params); err != nil {
		if unprotectedExceptionAllowed(ctx, m) {
			log.Warn("tolerating invalid PBMAC under unprotected_errors exception")
			return nil
		}
		return err
	}
	return nil
}

func verifySignature(ctx *context.Context, m *message.PKIMessage) error {
	senderName, isDir, err := m.Header.SenderName().IsDirectoryName()
	if err != nil {
		return serrors.WrapStr("decoding sender name", err)
	}
	if !isDir {
		if unprotectedExceptionAllowed(ctx, m) {
			log.Warn("tolerating non-directoryName sender under unprotected_errors exception")
			return nil
		}
		return ErrSenderNotDirName
	}
	if ctx.ExpectedSender != nil && senderName.String() != ctx.ExpectedSender.String() {
		return ErrUnexpectedSender
	}

	der, err := message.EncodeProtectedPart(m)
	if err != nil {
		return err
	}

	tryCert := func(cert *x509.Certificate) error {
		if err := checkAcceptable(cert, senderName, m, ctx); err != nil {
			return err
		}
		if err := protection.VerifySignature(cert, *m.Header.ProtectionAlg, der, m.Protection.Bytes); err != nil {
			return err
		}
		if !ctx.IgnoreKeyUsage && cert.KeyUsage != 0 && cert.KeyUsage&x509.KeyUsageDigitalSignature == 0 {
			return serrors.New("sender certificate lacks digitalSignature key usage")
		}
		if err := pathValidate(cert, ctx); err != nil {
			return err
		}
		return nil
	}

	if ctx.ServerCert != nil {
		if err := tryCert(ctx.ServerCert); err == nil {
			ctx.CacheValidatedServerCert(ctx.ServerCert)
			return nil
		} else {
			ctx.ErrorQueue.Push("pinned_server_cert_rejected", err.Error())
		}
	} else {
		candidates := candidateCerts(ctx)
		for _, c := range candidates {
			if err := tryCert(c); err == nil {
				ctx.CacheValidatedServerCert(c)
				return nil
			} else {
				ctx.ErrorQueue.Push("candidate_cert_rejected",
					fmt.Sprintf("subject=%q: %v", c.Subject, err))
			}
		}
	}

	if ctx.PermitTAInExtraCertsForIR && m.BodyType() == message.IP {
		if err := verify3GPPException(ctx, m, der); err == nil {
			return nil
		}
	}

	ctx.InvalidateValidatedServerCert()
	if unprotectedExceptionAllowed(ctx, m) {
		log.Warn("tolerating failed signature verification under unprotected_errors exception")
		return nil
	}
	if reason := explainFailure(ctx); reason != "" {
		log.Warn("no acceptable sender certificate found", "rejected_candidates", reason)
	}
	return ErrNoAcceptableCert
}

// explainFailure formats every candidate ctx's ErrorQueue has accumulated
// this transaction into a single diagnostic line, the way a failed
// signature-verification dump lists each certificate it tried and why.
// Returns "" if nothing was queued.
func explainFailure(ctx *context.Context) string {
	entries := ctx.ErrorQueue.Entries()
	if len(entries) == 0 {
		return ""
	}
	return ctx.ErrorQueue.String()
}

func candidateCerts(ctx *context.Context) []*x509.Certificate {
	var candidates []*x509.Certificate
	if cached := ctx.CachedServerCert(); cached != nil {
		candidates = append(candidates, cached)
	}
	candidates = append(candidates, ctx.UntrustedCerts...)
	if ctx.TrustedStore != nil {
		candidates = append(candidates, certsFromPool(ctx.TrustedStore)...)
	}
	return candidates
}

// certsFromPool returns the trust store's roots as sender-cert
// candidates. x509.CertPool itself has no portable way to enumerate its
// members, so TrustStore keeps its own slice alongside the pool
// specifically to make this search possible.
func certsFromPool(store *context.TrustStore) []*x509.Certificate {
	return store.Certs()
}

func checkAcceptable(cert *x509.Certificate, senderName pkixNameLike, m *message.PKIMessage, ctx *context.Context) error {
	if !message.WithinTimeframe(cert.NotBefore, cert.NotAfter, time.Now()) {
		return serrors.New("candidate certificate not currently valid")
	}
	if cert.Subject.String() != senderName.String() {
		return serrors.New("candidate certificate subject does not match sender")
	}
	if len(m.Header.SenderKID) > 0 && !bytes.Equal(cert.SubjectKeyId, m.Header.SenderKID) {
		return serrors.New("candidate certificate SubjectKeyIdentifier does not match senderKID")
	}
	return nil
}

func pathValidate(cert *x509.Certificate, ctx *context.Context) error {
	if ctx.TrustedStore == nil {
		return serrors.New("no trust store configured")
	}
	intermediates := x509.NewCertPool()
	for _, c := range ctx.UntrustedCerts {
		intermediates.AddCert(c)
	}
	_, err := cert.Verify(x509.VerifyOptions{
		Roots:         ctx.TrustedStore.Roots(),
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return serrors.WrapStr("X.509 path validation failed", err)
	}
	return nil
}

// unprotectedExceptionAllowed implements the unprotected_errors exception
// table: which rejection-carrying body types are tolerated without valid
// protection.
func unprotectedExceptionAllowed(ctx *context.Context, m *message.PKIMessage) bool {
	if !ctx.UnprotectedErrors {
		return false
	}
	switch m.BodyType() {
	case message.ErrorMsg, message.PKIConf:
		return true
	case message.RP:
		body, err := m.GetBody()
		if err != nil || body.RevRepContent == nil {
			return false
		}
		for _, s := range body.RevRepContent.Status {
			if s.Status == int(message.StatusRejection) {
				return true
			}
		}
		return false
	case message.IP, message.CP, message.KUP:
		body, err := m.GetBody()
		if err != nil || body.CertRepMessage == nil || len(body.CertRepMessage.Response) != 1 {
			return false
		}
		return body.CertRepMessage.Response[0].Status.Status == int(message.StatusRejection)
	default:
		return false
	}
}

// pkixNameLike is the minimal surface used for sender/cert subject
// comparisons; crypto/x509/pkix.Name satisfies it.
type pkixNameLike interface {
	String() string
}
