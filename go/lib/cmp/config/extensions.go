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
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/anapaya/gocmp/go/lib/serrors"
)

// extensionEntry is one line of a CertTemplate extension-merge file: an OID,
// a hex-encoded DER value, and a criticality flag.
type extensionEntry struct {
	OID       string `yaml:"oid"`
	Critical  bool   `yaml:"critical"`
	ValueHex  string `yaml:"value_hex"`
}

type extensionFile struct {
	Extensions []extensionEntry `yaml:"extensions"`
}

// LoadExtensionFile parses a YAML CertTemplate extension-merge file:
//
//	extensions:
//	  - oid: "2.5.29.37"
//	    critical: true
//	    value_hex: "300a06082b0601050507030a"
//
// and returns the decoded pkix.Extension values in file order, ready to pass
// to context.Context.SetReqExtensions.
func LoadExtensionFile(path string) ([]pkix.Extension, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, serrors.WrapStr("reading extension file", err, "path", path)
	}
	var file extensionFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, serrors.WrapStr("decoding extension file", err, "path", path)
	}
	exts := make([]pkix.Extension, 0, len(file.Extensions))
	for i, entry := range file.Extensions {
		oid, err := parseOID(entry.OID)
		if err != nil {
			return nil, serrors.WrapStr("parsing extension OID", err, "index", i, "oid", entry.OID)
		}
		value, err := hex.DecodeString(entry.ValueHex)
		if err != nil {
			return nil, serrors.WrapStr("decoding extension value", err, "index", i, "oid", entry.OID)
		}
		exts = append(exts, pkix.Extension{
			Id:       oid,
			Critical: entry.Critical,
			Value:    value,
		})
	}
	return exts, nil
}

func parseOID(s string) (asn1.ObjectIdentifier, error) {
	parts := strings.Split(s, ".")
	oid := make(asn1.ObjectIdentifier, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, serrors.WrapStr("non-numeric OID arc", err, "arc", p)
		}
		oid[i] = n
	}
	return oid, nil
}
