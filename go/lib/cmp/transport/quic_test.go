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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte("a pkimessage, DER-encoded")))

	got, err := readFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, []byte("a pkimessage, DER-encoded"), got)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, make([]byte, 0)))
	buf.Reset()
	// A length prefix claiming 2MiB of payload, no payload behind it.
	buf.Write([]byte{0x00, 0x20, 0x00, 0x00})

	_, err := readFrame(&buf)
	require.ErrorIs(t, err, ErrDecodeFailure)
}

func TestReadFrameRejectsTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x00, 0x00, 0x05})
	buf.Write([]byte("ab"))

	_, err := readFrame(&buf)
	require.Error(t, err)
}

func TestNewQUICTransferFailsFastOnUnreachableAddr(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := NewQUICTransfer(ctx, "127.0.0.1:1", &tls.Config{InsecureSkipVerify: true})
	require.ErrorIs(t, err, ErrConnectTimeout)
}
