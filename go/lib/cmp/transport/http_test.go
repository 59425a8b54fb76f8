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

package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tlsTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *tls.Config) {
	t.Helper()
	ts := httptest.NewTLSServer(handler)
	t.Cleanup(ts.Close)
	return ts, &tls.Config{InsecureSkipVerify: true}
}

func TestHTTPTransferRoundTrip(t *testing.T) {
	ts, tlsCfg := tlsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, ContentTypePKIXCMP, r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Equal(t, []byte("request-der"), body)
		w.Header().Set("Content-Type", ContentTypePKIXCMP)
		_, _ = w.Write([]byte("response-der"))
	})

	tr := NewHTTPTransfer(ts.URL, tlsCfg)
	resp, err := tr.Transfer(context.Background(), []byte("request-der"), 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte("response-der"), resp)
}

func TestHTTPTransferRejectsNonOKStatus(t *testing.T) {
	ts, tlsCfg := tlsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	tr := NewHTTPTransfer(ts.URL, tlsCfg)
	_, err := tr.Transfer(context.Background(), []byte("x"), 5*time.Second)
	require.ErrorIs(t, err, ErrReceiveFailure)
}

func TestHTTPTransferRejectsWrongContentType(t *testing.T) {
	ts, tlsCfg := tlsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("not cmp"))
	})

	tr := NewHTTPTransfer(ts.URL, tlsCfg)
	_, err := tr.Transfer(context.Background(), []byte("x"), 5*time.Second)
	require.ErrorIs(t, err, ErrDecodeFailure)
}

func TestHTTPTransferTimesOut(t *testing.T) {
	release := make(chan struct{})
	ts, tlsCfg := tlsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	t.Cleanup(func() { close(release) })

	tr := NewHTTPTransfer(ts.URL, tlsCfg)
	_, err := tr.Transfer(context.Background(), []byte("x"), 50*time.Millisecond)
	require.ErrorIs(t, err, ErrReadTimeout)
}

func TestHTTPTransferRejectsUnreachableHost(t *testing.T) {
	tr := NewHTTPTransfer("https://127.0.0.1:1", &tls.Config{InsecureSkipVerify: true})
	_, err := tr.Transfer(context.Background(), []byte("x"), time.Second)
	require.ErrorIs(t, err, ErrSendFailure)
}

func TestHTTPTransferString(t *testing.T) {
	tr := NewHTTPTransfer("https://ca.example.org/cmp", nil)
	require.Contains(t, tr.String(), "ca.example.org")
}
