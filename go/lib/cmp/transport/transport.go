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

// Package transport defines the pluggable Transfer contract
// and its two concrete implementations, HTTP and QUIC-stream.
package transport

import (
	"context"
	"time"

	"github.com/anapaya/gocmp/go/lib/serrors"
)

// Sentinel error reasons a session driver dispatches on.
var (
	ErrSendFailure    = serrors.New("SEND_FAILURE")
	ErrReceiveFailure = serrors.New("RECEIVE_FAILURE")
	ErrDecodeFailure  = serrors.New("DECODE_FAILURE")
	ErrReadTimeout    = serrors.New("READ_TIMEOUT")
	ErrConnectTimeout = serrors.New("CONNECT_TIMEOUT")
	ErrTLSError       = serrors.New("TLS_ERROR")
)

// Transfer sends a DER-encoded PKIMessage and returns the DER-encoded
// response, honoring timeout as the per-round-trip deadline.
// Implementations translate transport-specific failures into the
// sentinel errors above so the session driver can dispatch on them
// uniformly.
type Transfer interface {
	Transfer(ctx context.Context, requestDER []byte, timeout time.Duration) ([]byte, error)
}
