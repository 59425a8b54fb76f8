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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anapaya/gocmp/go/lib/cmp/context"
)

const secretProfileTOML = `
[profiles.lab-ca]
reference = "302a0101"
secret = "00112233445566778899aabbccddeeff"
encoding = "hex"

[profiles.dev]
reference = "dev-client"
secret = "correct horse battery staple"
`

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSecretProfiles(t *testing.T) {
	path := writeTempFile(t, "secrets.toml", secretProfileTOML)

	profiles, err := LoadSecretProfiles(path)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	require.Equal(t, "hex", profiles["lab-ca"].Encoding)
	require.Equal(t, "dev-client", profiles["dev"].Reference)
}

func TestApplySecretProfileHexEncoding(t *testing.T) {
	ctx := context.New()
	err := ApplySecretProfile(ctx, SecretProfile{
		Reference: "302a0101",
		Secret:    "00112233",
		Encoding:  "hex",
	})
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x11, 0x22, 0x33}, ctx.SecretValue)
}

func TestApplySecretProfileUTF8Default(t *testing.T) {
	ctx := context.New()
	err := ApplySecretProfile(ctx, SecretProfile{Reference: "r", Secret: "s3cr3t"})
	require.NoError(t, err)
	require.Equal(t, []byte("s3cr3t"), ctx.SecretValue)
}

func TestApplySecretProfileRejectsUnknownEncoding(t *testing.T) {
	ctx := context.New()
	err := ApplySecretProfile(ctx, SecretProfile{Reference: "r", Secret: "s", Encoding: "base64"})
	require.ErrorIs(t, err, ErrUnknownEncoding)
}

func TestSelectSecretProfile(t *testing.T) {
	path := writeTempFile(t, "secrets.toml", secretProfileTOML)
	profiles, err := LoadSecretProfiles(path)
	require.NoError(t, err)

	ctx := context.New()
	require.NoError(t, SelectSecretProfile(ctx, profiles, "dev"))
	require.Equal(t, []byte("correct horse battery staple"), ctx.SecretValue)
}

func TestSelectSecretProfileRejectsUnknownName(t *testing.T) {
	ctx := context.New()
	err := SelectSecretProfile(ctx, map[string]SecretProfile{}, "missing")
	require.ErrorIs(t, err, ErrUnknownSecretProfile)
}
