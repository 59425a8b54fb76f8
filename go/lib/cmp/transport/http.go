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
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/anapaya/gocmp/go/lib/serrors"
)

// ContentTypePKIXCMP is the media type RFC 6712 assigns CMP-over-HTTP.
const ContentTypePKIXCMP = "application/pkixcmp"

// HTTPTransfer POSTs DER-encoded CMP messages to a fixed URL. A custom
// *http2.Transport is always installed rather than relying on protocol
// negotiation falling through.
type HTTPTransfer struct {
	URL       string
	TLSConfig *tls.Config
	client    *http.Client
}

// NewHTTPTransfer builds an HTTPTransfer against url, optionally over TLS
// (tlsConfig may be nil for plaintext, test-only use).
func NewHTTPTransfer(url string, tlsConfig *tls.Config) *HTTPTransfer {
	t := &HTTPTransfer{URL: url, TLSConfig: tlsConfig}
	h2 := &http2.Transport{
		TLSClientConfig: tlsConfig,
	}
	if tlsConfig == nil {
		// Plaintext h2c, dialed manually since net/http2 refuses cleartext
		// upgrade without this hook.
		h2.AllowHTTP = true
		h2.DialTLS = func(network, addr string, _ *tls.Config) (net.Conn, error) {
			return net.Dial(network, addr)
		}
	}
	t.client = &http.Client{Transport: h2}
	return t
}

// Transfer implements Transfer.
func (t *HTTPTransfer) Transfer(ctx context.Context, requestDER []byte, timeout time.Duration) ([]byte, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, t.URL, bytes.NewReader(requestDER))
	if err != nil {
		return nil, serrors.WithCtx(ErrSendFailure, "cause", err.Error())
	}
	req.Header.Set("Content-Type", ContentTypePKIXCMP)

	resp, err := t.client.Do(req)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, serrors.WithCtx(ErrReadTimeout, "url", t.URL)
		}
		return nil, serrors.WithCtx(ErrSendFailure, "url", t.URL, "cause", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, serrors.WithCtx(ErrReceiveFailure, "status", resp.StatusCode)
	}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, serrors.WithCtx(ErrReceiveFailure, "cause", err.Error())
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && ct != ContentTypePKIXCMP {
		return nil, serrors.WithCtx(ErrDecodeFailure, "content-type", ct)
	}
	return body, nil
}

var _ fmt.Stringer = (*HTTPTransfer)(nil)

func (t *HTTPTransfer) String() string { return fmt.Sprintf("http-transfer(%s)", t.URL) }
