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

package context

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func selfSignedForTest(t *testing.T, cn string) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestTrustStoreCertsTracksAddCert(t *testing.T) {
	store := NewTrustStore(nil)
	require.Empty(t, store.Certs())

	a := selfSignedForTest(t, "a")
	b := selfSignedForTest(t, "b")
	store.AddCert(a)
	store.AddCert(b)

	certs := store.Certs()
	require.Len(t, certs, 2)
	require.Equal(t, a.Raw, certs[0].Raw)
	require.Equal(t, b.Raw, certs[1].Raw)
}

func TestTrustStoreCertsReturnsDefensiveCopy(t *testing.T) {
	store := NewTrustStore(nil)
	store.AddCert(selfSignedForTest(t, "a"))

	certs := store.Certs()
	certs[0] = nil
	require.NotNil(t, store.Certs()[0])
}
