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
	"crypto/x509/pkix"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func mustHeader(t *testing.T) PKIHeader {
	t.Helper()
	sender, err := DirectoryName(pkix.Name{CommonName: "client"})
	require.NoError(t, err)
	recipient, err := DirectoryName(pkix.Name{CommonName: "ca"})
	require.NoError(t, err)
	return PKIHeader{
		PVNO:          PVNO,
		Sender:        sender.Raw,
		Recipient:     recipient.Raw,
		TransactionID: []byte("0123456789abcdef"),
		SenderNonce:   []byte("fedcba9876543210"),
	}
}

func roundTrip(t *testing.T, body PKIBody) *PKIMessage {
	t.Helper()
	m := &PKIMessage{Header: mustHeader(t)}
	require.NoError(t, m.SetBody(body))

	der, err := Encode(m)
	require.NoError(t, err)

	decoded, err := Decode(der)
	require.NoError(t, err)
	return decoded
}

func TestGenMRoundTrip(t *testing.T) {
	items := []InfoTypeAndValue{{InfoType: []int{1, 3, 6, 1, 5, 5, 7, 4, 1}}}
	decoded := roundTrip(t, NewGenMBody(items))

	require.Equal(t, GenM, decoded.BodyType())
	body, err := decoded.GetBody()
	require.NoError(t, err)
	if diff := cmp.Diff(items, body.GenMsgContent, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("genMsgContent mismatch (-want +got):\n%s", diff)
	}
}

func TestPollReqRoundTrip(t *testing.T) {
	decoded := roundTrip(t, PKIBody{Type: PollReq, PollReq: []PollReqItem{{CertReqID: 7}}})

	body, err := decoded.GetBody()
	require.NoError(t, err)
	require.Len(t, body.PollReq, 1)
	require.Equal(t, 7, body.PollReq[0].CertReqID)
}

func TestPKIConfRoundTrip(t *testing.T) {
	decoded := roundTrip(t, PKIBody{Type: PKIConf})
	require.Equal(t, PKIConf, decoded.BodyType())
	_, err := decoded.GetBody()
	require.NoError(t, err)
}

func TestP10CRRoundTrip(t *testing.T) {
	// A minimal, syntactically-valid CertificationRequest DER is not needed
	// here: NewP10CRBody/unmarshalBodyContent only re-wrap whatever ANY
	// value they are given, so any well-formed SEQUENCE works as a stand-in.
	csr := []byte{0x30, 0x03, 0x02, 0x01, 0x05}
	body, err := NewP10CRBody(csr)
	require.NoError(t, err)

	decoded := roundTrip(t, body)
	got, err := decoded.GetBody()
	require.NoError(t, err)
	require.Equal(t, csr, got.P10CSR)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	m := &PKIMessage{Header: mustHeader(t)}
	require.NoError(t, m.SetBody(PKIBody{Type: PKIConf}))
	der, err := Encode(m)
	require.NoError(t, err)

	_, err = Decode(append(der, 0x00))
	require.Error(t, err)
}

func TestEncodeProtectedPartIsDeterministic(t *testing.T) {
	m := &PKIMessage{Header: mustHeader(t)}
	require.NoError(t, m.SetBody(PKIBody{Type: PKIConf}))

	a, err := EncodeProtectedPart(m)
	require.NoError(t, err)
	b, err := EncodeProtectedPart(m)
	require.NoError(t, err)
	require.Equal(t, a, b)
}
