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

package verify

import (
	"crypto/x509"

	"github.com/anapaya/gocmp/go/lib/cmp/context"
	"github.com/anapaya/gocmp/go/lib/cmp/message"
	"github.com/anapaya/gocmp/go/lib/cmp/protection"
	"github.com/anapaya/gocmp/go/lib/serrors"
)

// verify3GPPException implements the 3GPP TS 33.310 trust-anchor-in-
// extraCerts exception: build an ephemeral trust store from
// the self-signed certs carried in the message's own extraCerts, then
// require BOTH the IP message's protection AND the newly enrolled
// certificate (certReqId 0) to validate against it.
func verify3GPPException(ctx *context.Context, m *message.PKIMessage, protectedPartDER []byte) error {
	ephemeralRoots := x509.NewCertPool()
	var anyRoot bool
	for _, c := range ctx.UntrustedCerts {
		if isSelfSigned(c) {
			ephemeralRoots.AddCert(c)
			anyRoot = true
		}
	}
	if !anyRoot {
		return Err3GPPExceptionFailed
	}

	intermediates := x509.NewCertPool()
	for _, c := range ctx.UntrustedCerts {
		intermediates.AddCert(c)
	}

	var lastErr error
	var acceptedSigner *x509.Certificate
	for _, c := range ctx.UntrustedCerts {
		if err := protection.VerifySignature(c, *m.Header.ProtectionAlg, protectedPartDER, m.Protection.Bytes); err != nil {
			lastErr = err
			continue
		}
		if _, err := c.Verify(x509.VerifyOptions{
			Roots:         ephemeralRoots,
			Intermediates: intermediates,
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		}); err != nil {
			lastErr = err
			continue
		}
		acceptedSigner = c
		break
	}
	if acceptedSigner == nil {
		if lastErr != nil {
			return serrors.WrapStr("3GPP exception: no extraCert signer validates", lastErr)
		}
		return Err3GPPExceptionFailed
	}

	body, err := m.GetBody()
	if err != nil || body.CertRepMessage == nil {
		return serrors.WrapStr("3GPP exception: decoding IP body", err)
	}
	var issuedDER []byte
	for _, resp := range body.CertRepMessage.Response {
		if resp.CertReqID == 0 && resp.CertifiedKeyPair != nil {
			issuedDER, err = resp.CertifiedKeyPair.IssuedCertDER()
			if err != nil {
				return serrors.WrapStr("3GPP exception: extracting issued cert", err)
			}
			break
		}
	}
	if issuedDER == nil {
		return serrors.New("3GPP exception: no certReqId=0 issued certificate in IP")
	}
	issued, err := x509.ParseCertificate(issuedDER)
	if err != nil {
		return serrors.WrapStr("3GPP exception: parsing issued cert", err)
	}
	if _, err := issued.Verify(x509.VerifyOptions{
		Roots:         ephemeralRoots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return serrors.WrapStr("3GPP exception: issued certificate does not validate against ephemeral trust store", err)
	}

	ctx.CacheValidatedServerCert(acceptedSigner)
	return nil
}

func isSelfSigned(c *x509.Certificate) bool {
	return c.CheckSignatureFrom(c) == nil
}
