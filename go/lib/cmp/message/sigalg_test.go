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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509/pkix"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithinTimeframe(t *testing.T) {
	now := time.Now()
	require.True(t, WithinTimeframe(now.Add(-time.Hour), now.Add(time.Hour), now))
	require.True(t, WithinTimeframe(now, now, now))
	require.False(t, WithinTimeframe(now.Add(time.Minute), now.Add(time.Hour), now))
	require.False(t, WithinTimeframe(now.Add(-time.Hour), now.Add(-time.Minute), now))
}

func TestVerifyPOPOAcceptsRAVerified(t *testing.T) {
	body, err := NewCertReqBody(IR, CertRequestParams{
		Subject:       pkix.Name{CommonName: "client"},
		POPRAVerified: true,
	})
	require.NoError(t, err)

	require.NoError(t, VerifyPOPO(body.CertReqMessages[0], nil))
}

func TestVerifyPOPOAcceptsMatchingSignature(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	body, err := NewCertReqBody(IR, CertRequestParams{
		Subject:   pkix.Name{CommonName: "client"},
		PublicKey: &key.PublicKey,
		POPSigner: key,
	})
	require.NoError(t, err)

	require.NoError(t, VerifyPOPO(body.CertReqMessages[0], &key.PublicKey))
}

func TestVerifyPOPORejectsWrongKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	body, err := NewCertReqBody(IR, CertRequestParams{
		Subject:   pkix.Name{CommonName: "client"},
		PublicKey: &key.PublicKey,
		POPSigner: key,
	})
	require.NoError(t, err)

	require.Error(t, VerifyPOPO(body.CertReqMessages[0], &other.PublicKey))
}

func TestVerifyPOPORejectsMissingForm(t *testing.T) {
	body, err := NewCertReqBody(IR, CertRequestParams{
		Subject: pkix.Name{CommonName: "client"},
	})
	require.NoError(t, err)

	require.Error(t, VerifyPOPO(body.CertReqMessages[0], nil))
}
