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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDerivePBMACVerifyRoundTrip(t *testing.T) {
	secret := []byte("correct horse battery staple")
	protectedPart := []byte("protected-part-der-stand-in")

	mac, params, err := DerivePBMAC(secret, protectedPart, DefaultPBMACOptions())
	require.NoError(t, err)
	require.NotEmpty(t, mac)

	require.NoError(t, VerifyPBMAC(secret, protectedPart, mac, params))
}

func TestVerifyPBMACRejectsWrongSecret(t *testing.T) {
	protectedPart := []byte("protected-part-der-stand-in")
	mac, params, err := DerivePBMAC([]byte("secret-a"), protectedPart, DefaultPBMACOptions())
	require.NoError(t, err)

	err = VerifyPBMAC([]byte("secret-b"), protectedPart, mac, params)
	require.Error(t, err)
}

func TestVerifyPBMACRejectsTamperedBody(t *testing.T) {
	secret := []byte("shared secret")
	mac, params, err := DerivePBMAC(secret, []byte("original"), DefaultPBMACOptions())
	require.NoError(t, err)

	err = VerifyPBMAC(secret, []byte("tampered"), mac, params)
	require.Error(t, err)
}

func TestDerivePBMACRejectsIterationCountOutOfBounds(t *testing.T) {
	secret := []byte("secret")
	body := []byte("body")

	low := DefaultPBMACOptions()
	low.IterationCount = MinIterationCount - 1
	_, _, err := DerivePBMAC(secret, body, low)
	require.ErrorIs(t, err, ErrIterationCountTooLow)

	high := DefaultPBMACOptions()
	high.IterationCount = MaxIterationCount + 1
	_, _, err = DerivePBMAC(secret, body, high)
	require.ErrorIs(t, err, ErrIterationCountTooHigh)
}

func TestVerifyPBMACRejectsShortSalt(t *testing.T) {
	params := PBMParameter{
		Salt:           []byte{0x01, 0x02},
		OWF:            pkixAlgorithmIdentifier{Algorithm: OIDSHA256},
		IterationCount: MinIterationCount,
		MAC:            pkixAlgorithmIdentifier{Algorithm: OIDHMACWithSHA256},
	}
	err := VerifyPBMAC([]byte("secret"), []byte("body"), []byte("mac"), params)
	require.ErrorIs(t, err, ErrBadSalt)
}

func TestDerivePBMACSupportsAESCMAC(t *testing.T) {
	opts := DefaultPBMACOptions()
	opts.MAC = OIDAESCMAC

	mac, params, err := DerivePBMAC([]byte("secret"), []byte("body"), opts)
	require.NoError(t, err)
	require.NoError(t, VerifyPBMAC([]byte("secret"), []byte("body"), mac, params))
}

func TestDerivePBMACRejectsUnsupportedOWF(t *testing.T) {
	opts := DefaultPBMACOptions()
	opts.OWF = OIDAESCMAC // not a one-way function OID
	_, _, err := DerivePBMAC([]byte("secret"), []byte("body"), opts)
	require.ErrorIs(t, err, ErrUnsupportedOWF)
}
