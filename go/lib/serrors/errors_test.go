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

package serrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anapaya/gocmp/go/lib/serrors"
)

var ErrNoValidServerCert = serrors.New("no valid server cert found")

func TestIsMatchesThroughContext(t *testing.T) {
	wrapped := serrors.WithCtx(ErrNoValidServerCert, "sender", "CN=ca")
	assert.True(t, errors.Is(wrapped, ErrNoValidServerCert))
	assert.Contains(t, wrapped.Error(), "sender=CN=ca")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := serrors.WrapStr("sending request", cause, "host", "ca.example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), "host=ca.example.com")
}

func TestListToError(t *testing.T) {
	var l serrors.List
	assert.Nil(t, l.ToError())

	l = append(l, serrors.New("bad start_isd_as"))
	assert.Equal(t, l[0], l.ToError())

	l = append(l, serrors.New("bad end_isd_as"))
	err := l.ToError()
	assert.Equal(t, l, err)
	assert.Contains(t, err.Error(), "bad start_isd_as")
	assert.Contains(t, err.Error(), "bad end_isd_as")
}
