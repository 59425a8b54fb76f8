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

package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cmpcontext "github.com/anapaya/gocmp/go/lib/cmp/context"
)

func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func selfSignedPEM(t *testing.T) (certPath, keyPath string, cert *x509.Certificate, key *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "client"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err = x509.ParseCertificate(der)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	certPath = writeTempFile(t, "cert.pem", certPEM)
	keyPath = writeTempFile(t, "key.pem", keyPEM)
	return certPath, keyPath, cert, key
}

func TestLoadCertAndKey(t *testing.T) {
	certPath, keyPath, wantCert, wantKey := selfSignedPEM(t)

	cert, key, err := loadCertAndKey(certPath, keyPath)
	require.NoError(t, err)
	require.Equal(t, wantCert.Raw, cert.Raw)
	require.Equal(t, wantKey.D, key.D)
}

func TestLoadCertAndKeyRejectsMissingFile(t *testing.T) {
	_, _, err := loadCertAndKey("/nonexistent/cert.pem", "/nonexistent/key.pem")
	require.Error(t, err)
}

func TestLoadCertPool(t *testing.T) {
	certPath, _, _, _ := selfSignedPEM(t)
	pool, err := loadCertPool(certPath)
	require.NoError(t, err)
	require.NotNil(t, pool)
}

func TestLoadCertPoolRejectsEmptyFile(t *testing.T) {
	path := writeTempFile(t, "empty.pem", []byte("not a cert"))
	_, err := loadCertPool(path)
	require.Error(t, err)
}

func TestGenerateKeyProducesP256Key(t *testing.T) {
	key, err := generateKey()
	require.NoError(t, err)
	require.Equal(t, elliptic.P256(), key.Curve)
}

func TestApplyCredentialsWithSecret(t *testing.T) {
	ctx := cmpcontext.New()
	f := &commonFlags{reference: "ref", secret: "sekret"}
	require.NoError(t, applyCredentials(ctx, f))
	require.Equal(t, []byte("sekret"), ctx.SecretValue)
}

func TestApplyCredentialsWithCert(t *testing.T) {
	certPath, keyPath, wantCert, _ := selfSignedPEM(t)
	ctx := cmpcontext.New()
	f := &commonFlags{certFile: certPath, keyFile: keyPath}
	require.NoError(t, applyCredentials(ctx, f))
	require.Equal(t, wantCert.Raw, ctx.ClientCert.Raw)
}

func TestApplyCredentialsRequiresSecretsFileWithProfile(t *testing.T) {
	ctx := cmpcontext.New()
	f := &commonFlags{secretProfile: "lab-ca"}
	err := applyCredentials(ctx, f)
	require.Error(t, err)
}

func TestApplyCredentialsRejectsMissingCredentials(t *testing.T) {
	ctx := cmpcontext.New()
	err := applyCredentials(ctx, &commonFlags{})
	require.Error(t, err)
}

func TestApplyTemplateSetsSubjectAndExtensions(t *testing.T) {
	templatePath := writeTempFile(t, "subject.json", []byte(`{"common_name": "lab client"}`))
	extPath := writeTempFile(t, "extensions.yaml", []byte(`
extensions:
  - oid: "2.5.29.37"
    critical: true
    value_hex: "300a06082b0601050507030a"
`))

	ctx := cmpcontext.New()
	f := &commonFlags{templateFile: templatePath, extensionFile: extPath}
	require.NoError(t, applyTemplate(ctx, f))
	require.Equal(t, "lab client", ctx.Subject.CommonName)
	require.Len(t, ctx.ReqExtensions, 1)
}

func TestBuildTransferRequiresServer(t *testing.T) {
	_, err := buildTransfer(nil, &commonFlags{})
	require.Error(t, err)
}

func TestBuildTransferHTTP(t *testing.T) {
	transfer, err := buildTransfer(nil, &commonFlags{server: "ca.example.org:8080"})
	require.NoError(t, err)
	require.NotNil(t, transfer)
}

func TestStatusPrinterPlainOutput(t *testing.T) {
	p := &statusPrinter{enabled: false}
	// Exercises the non-TTY code path; correctness is that it does not panic.
	p.Accepted("issued cert serial 1")
	p.Rejected("bad pop")
	p.Waiting("polling in 5s")
}
