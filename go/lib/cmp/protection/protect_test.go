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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anapaya/gocmp/go/lib/cmp/context"
	"github.com/anapaya/gocmp/go/lib/cmp/message"
)

func selfSignedCert(t *testing.T, key *ecdsa.PrivateKey) *x509.Certificate {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test client"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

// issueWithKey signs subject (CommonName subjectCN) with issuer/issuerKey,
// returning the parsed leaf.
func issueWithKey(
	t *testing.T, subjectCN string, issuer *x509.Certificate, issuerKey *ecdsa.PrivateKey, subjectKey *ecdsa.PrivateKey,
) *x509.Certificate {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: subjectCN},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, issuer, &subjectKey.PublicKey, issuerKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func testMessage(t *testing.T) *message.PKIMessage {
	t.Helper()
	sender, err := message.DirectoryName(pkix.Name{CommonName: "client"})
	require.NoError(t, err)
	recipient, err := message.DirectoryName(pkix.Name{CommonName: "ca"})
	require.NoError(t, err)
	m := &message.PKIMessage{Header: message.PKIHeader{
		PVNO:          message.PVNO,
		Sender:        sender.Raw,
		Recipient:     recipient.Raw,
		TransactionID: []byte("0123456789abcdef"),
		SenderNonce:   []byte("fedcba9876543210"),
	}}
	require.NoError(t, m.SetBody(message.PKIBody{Type: message.PKIConf}))
	return m
}

func TestProtectUsesPBMACWhenSecretSet(t *testing.T) {
	ctx := context.New()
	require.NoError(t, ctx.Set1SecretValue([]byte("ref"), []byte("sekret")))

	m := testMessage(t)
	require.NoError(t, Protect(ctx, m, nil))

	require.NotNil(t, m.Header.ProtectionAlg)
	require.True(t, m.Header.ProtectionAlg.Algorithm.Equal(OIDPasswordBasedMAC))
	require.NotEmpty(t, m.Protection.Bytes)
	require.Empty(t, m.ExtraCerts)

	der, err := message.EncodeProtectedPart(m)
	require.NoError(t, err)

	var params PBMParameter
	_, err = asn1.Unmarshal(m.Header.ProtectionAlg.Parameters.FullBytes, &params)
	require.NoError(t, err)
	require.NoError(t, VerifyPBMAC([]byte("sekret"), der, m.Protection.Bytes, params))
}

func TestProtectUsesSignatureWhenClientCertSet(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	cert := selfSignedCert(t, key)

	ctx := context.New()
	require.NoError(t, ctx.Set1ClientCertAndKey(cert, key))

	m := testMessage(t)
	require.NoError(t, Protect(ctx, m, nil))

	require.NotNil(t, m.Header.ProtectionAlg)
	require.True(t, m.Header.ProtectionAlg.Algorithm.Equal(oidECDSAWithSHA256))
	require.Len(t, m.ExtraCerts, 1)

	der, err := message.EncodeProtectedPart(m)
	require.NoError(t, err)
	require.NoError(t, VerifySignature(cert, *m.Header.ProtectionAlg, der, m.Protection.Bytes))
}

func TestProtectRejectsMissingKeyInput(t *testing.T) {
	ctx := context.New()
	m := testMessage(t)
	require.ErrorIs(t, Protect(ctx, m, nil), ErrMissingKeyInput)
}

func TestAssembleDedupesByRawDER(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	cert := selfSignedCert(t, key)

	out := Assemble(cert, []*x509.Certificate{cert}, []*x509.Certificate{cert, nil})
	require.Len(t, out, 1)
	require.Equal(t, cert.Raw, out[0].FullBytes)
}

func TestBuildChainWalksIssuerLinksAndExcludesRoot(t *testing.T) {
	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	root := selfSignedCert(t, rootKey)

	intKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	intermediate := issueWithKey(t, "intermediate", root, rootKey, intKey)

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leaf := issueWithKey(t, "leaf", intermediate, intKey, leafKey)

	unrelatedKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	unrelated := selfSignedCert(t, unrelatedKey)

	chain := buildChain(leaf, []*x509.Certificate{root, intermediate, unrelated})
	require.Len(t, chain, 1)
	require.Equal(t, intermediate.Raw, chain[0].Raw)
}

func TestBuildChainReturnsNilWhenNoIssuerFound(t *testing.T) {
	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leaf := selfSignedCert(t, leafKey)

	unrelatedKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	unrelated := selfSignedCert(t, unrelatedKey)

	require.Empty(t, buildChain(leaf, []*x509.Certificate{unrelated}))
}

func TestProtectSignatureExcludesRootAndUnrelatedCertsFromUntrustedPool(t *testing.T) {
	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	root := selfSignedCert(t, rootKey)

	intKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	intermediate := issueWithKey(t, "intermediate", root, rootKey, intKey)

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leaf := issueWithKey(t, "leaf", intermediate, intKey, leafKey)

	unrelatedKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	unrelated := selfSignedCert(t, unrelatedKey)

	ctx := context.New()
	require.NoError(t, ctx.Set1ClientCertAndKey(leaf, leafKey))
	ctx.UntrustedCerts = []*x509.Certificate{root, intermediate, unrelated}

	m := testMessage(t)
	require.NoError(t, Protect(ctx, m, nil))

	require.Len(t, m.ExtraCerts, 2)
	require.Equal(t, leaf.Raw, m.ExtraCerts[0].FullBytes)
	require.Equal(t, intermediate.Raw, m.ExtraCerts[1].FullBytes)
}

func TestAssembleOrdersClientChainThenExtras(t *testing.T) {
	key1, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	key2, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	key3, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	client := selfSignedCert(t, key1)
	chain := selfSignedCert(t, key2)
	extra := selfSignedCert(t, key3)

	out := Assemble(client, []*x509.Certificate{chain}, []*x509.Certificate{extra})
	require.Len(t, out, 3)
	require.Equal(t, client.Raw, out[0].FullBytes)
	require.Equal(t, chain.Raw, out[1].FullBytes)
	require.Equal(t, extra.Raw, out[2].FullBytes)
}
