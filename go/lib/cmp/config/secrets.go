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
	"encoding/hex"

	"github.com/pelletier/go-toml"

	"github.com/anapaya/gocmp/go/lib/cmp/context"
	"github.com/anapaya/gocmp/go/lib/serrors"
)

var (
	ErrUnknownSecretProfile = serrors.New("unknown MAC secret profile")
	ErrUnknownEncoding      = serrors.New("unknown secret-profile field encoding")
)

// SecretProfile is one named reference-value/secret-value pair for PBMAC
// authentication, selectable by name instead of passing the shared secret
// on a command line where it would show up in process listings and shell
// history.
type SecretProfile struct {
	Reference string `toml:"reference"`
	Secret    string `toml:"secret"`
	// Encoding is "utf8" (default) or "hex", applied to both Reference and
	// Secret.
	Encoding string `toml:"encoding"`
}

type secretProfileFile struct {
	Profiles map[string]SecretProfile `toml:"profiles"`
}

// LoadSecretProfiles parses a TOML file of named secret profiles:
//
//	[profiles.lab-ca]
//	reference = "302a0101"
//	secret = "00112233445566778899aabbccddeeff"
//	encoding = "hex"
func LoadSecretProfiles(path string) (map[string]SecretProfile, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, serrors.WrapStr("loading secret-profile file", err, "path", path)
	}
	var file secretProfileFile
	if err := tree.Unmarshal(&file); err != nil {
		return nil, serrors.WrapStr("decoding secret-profile file", err, "path", path)
	}
	return file.Profiles, nil
}

// ApplySecretProfile decodes profile per its Encoding and installs it into
// ctx via Set1SecretValue.
func ApplySecretProfile(ctx *context.Context, profile SecretProfile) error {
	ref, err := decodeProfileField(profile.Reference, profile.Encoding)
	if err != nil {
		return serrors.WrapStr("decoding reference value", err)
	}
	secret, err := decodeProfileField(profile.Secret, profile.Encoding)
	if err != nil {
		return serrors.WrapStr("decoding secret value", err)
	}
	return ctx.Set1SecretValue(ref, secret)
}

func decodeProfileField(value, encoding string) ([]byte, error) {
	switch encoding {
	case "", "utf8":
		return []byte(value), nil
	case "hex":
		return hex.DecodeString(value)
	default:
		return nil, serrors.WithCtx(ErrUnknownEncoding, "encoding", encoding)
	}
}

// SelectSecretProfile looks up name in profiles and applies it to ctx.
func SelectSecretProfile(ctx *context.Context, profiles map[string]SecretProfile, name string) error {
	profile, ok := profiles[name]
	if !ok {
		return serrors.WithCtx(ErrUnknownSecretProfile, "name", name)
	}
	return ApplySecretProfile(ctx, profile)
}
