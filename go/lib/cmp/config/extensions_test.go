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
	"encoding/asn1"
	"testing"

	"github.com/stretchr/testify/require"
)

const extensionYAML = `
extensions:
  - oid: "2.5.29.37"
    critical: true
    value_hex: "300a06082b0601050507030a"
  - oid: "1.3.6.1.5.5.7.1.1"
    critical: false
    value_hex: "0500"
`

func TestLoadExtensionFile(t *testing.T) {
	path := writeTempFile(t, "extensions.yaml", extensionYAML)

	exts, err := LoadExtensionFile(path)
	require.NoError(t, err)
	require.Len(t, exts, 2)
	require.Equal(t, asn1.ObjectIdentifier{2, 5, 29, 37}, exts[0].Id)
	require.True(t, exts[0].Critical)
	require.Equal(t, []byte{0x30, 0x0a, 0x06, 0x08, 0x2b, 0x06, 0x01, 0x05, 0x05, 0x07, 0x03, 0x0a}, exts[0].Value)
	require.False(t, exts[1].Critical)
}

func TestLoadExtensionFileRejectsBadOID(t *testing.T) {
	path := writeTempFile(t, "extensions.yaml", `
extensions:
  - oid: "2.5.x.37"
    value_hex: "0500"
`)
	_, err := LoadExtensionFile(path)
	require.Error(t, err)
}

func TestLoadExtensionFileRejectsBadHex(t *testing.T) {
	path := writeTempFile(t, "extensions.yaml", `
extensions:
  - oid: "2.5.29.37"
    value_hex: "not-hex"
`)
	_, err := LoadExtensionFile(path)
	require.Error(t, err)
}

func TestLoadExtensionFileMissingFile(t *testing.T) {
	_, err := LoadExtensionFile("/nonexistent/path/extensions.yaml")
	require.Error(t, err)
}
