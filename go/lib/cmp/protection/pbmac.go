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

// Package protection implements the CMP protection engine:
// password-based MAC derivation/verification and RSA/ECDSA signature
// protection, plus the extraCerts chain-assembly rule both modes share.
package protection

import (
	"crypto"
	"crypto/aes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"crypto/x509/pkix"
	"encoding/asn1"

	"github.com/dchest/cmac"
	"golang.org/x/crypto/sha3"

	"github.com/anapaya/gocmp/go/lib/serrors"
)

// Bounds on PBMParameter.iterationCount.
const (
	MinIterationCount = 100
	MaxIterationCount = 100000
)

var (
	ErrIterationCountTooLow  = serrors.New("PBMParameter.iterationCount below minimum")
	ErrIterationCountTooHigh = serrors.New("PBMParameter.iterationCount exceeds implementation cap")
	ErrUnsupportedOWF        = serrors.New("unsupported one-way function OID")
	ErrUnsupportedMAC        = serrors.New("unsupported MAC OID")
	ErrBadSalt               = serrors.New("PBM salt too short")
)

// Well-known algorithm OIDs used by PBMParameter.
var (
	OIDPasswordBasedMAC = asn1.ObjectIdentifier{1, 2, 840, 113533, 7, 66, 13}
	OIDSHA1             = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	OIDSHA256           = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	OIDSHA3_256         = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 8}
	OIDHMACWithSHA1     = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 7}
	OIDHMACWithSHA256   = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 9}
	OIDAESCMAC          = asn1.ObjectIdentifier{1, 2, 840, 113533, 7, 66, 1} // PasswordBasedMac extension for AES-CMAC, vendor-assigned arc
)

// PBMParameter is RFC 4210 Appendix F's PBMParameter.
type PBMParameter struct {
	Salt           []byte
	OWF            pkix.AlgorithmIdentifier
	IterationCount int
	MAC            pkix.AlgorithmIdentifier
}

// PBMACOptions configures the parameters used when deriving a fresh MAC
// for an outbound message.
type PBMACOptions struct {
	SaltSize       int
	IterationCount int
	OWF            asn1.ObjectIdentifier
	MAC            asn1.ObjectIdentifier
}

// DefaultPBMACOptions returns conservative, widely interoperable defaults.
func DefaultPBMACOptions() PBMACOptions {
	return PBMACOptions{
		SaltSize:       16,
		IterationCount: 500,
		OWF:            OIDSHA256,
		MAC:            OIDHMACWithSHA256,
	}
}

// DerivePBMAC computes the PBMAC protection value over protectedPartDER
// using secret and freshly generated parameters, returning both the MAC
// bits and the parameters so the caller can embed them in
// PKIHeader.ProtectionAlg.
func DerivePBMAC(secret, protectedPartDER []byte, opts PBMACOptions) ([]byte, PBMParameter, error) {
	if opts.IterationCount < MinIterationCount {
		return nil, PBMParameter{}, ErrIterationCountTooLow
	}
	if opts.IterationCount > MaxIterationCount {
		return nil, PBMParameter{}, ErrIterationCountTooHigh
	}
	salt := make([]byte, opts.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, PBMParameter{}, serrors.WrapStr("generating PBM salt", err)
	}
	params := PBMParameter{
		Salt:           salt,
		OWF:            pkix.AlgorithmIdentifier{Algorithm: opts.OWF},
		IterationCount: opts.IterationCount,
		MAC:            pkix.AlgorithmIdentifier{Algorithm: opts.MAC},
	}
	mac, err := computePBMAC(secret, protectedPartDER, params)
	if err != nil {
		return nil, PBMParameter{}, err
	}
	return mac, params, nil
}

// VerifyPBMAC recomputes the MAC and compares in constant time.
func VerifyPBMAC(secret, protectedPartDER, mac []byte, params PBMParameter) error {
	if params.IterationCount < MinIterationCount {
		return ErrIterationCountTooLow
	}
	if params.IterationCount > MaxIterationCount {
		return ErrIterationCountTooHigh
	}
	if len(params.Salt) < 8 {
		return ErrBadSalt
	}
	want, err := computePBMAC(secret, protectedPartDER, params)
	if err != nil {
		return err
	}
	if !hmac.Equal(want, mac) {
		return serrors.New("PBMAC mismatch")
	}
	return nil
}

// computePBMAC implements derivation:
//   basekey0    = H(secret || salt)
//   basekey_i   = H(basekey_{i-1})        for i = 1..iterationCount-1
//   protection  = MAC(basekey, DER(ProtectedPart))
func computePBMAC(secret, protectedPartDER []byte, params PBMParameter) ([]byte, error) {
	owf, err := owfFor(params.OWF.Algorithm)
	if err != nil {
		return nil, err
	}

	h := owf()
	h.Write(secret)
	h.Write(params.Salt)
	basekey := h.Sum(nil)

	for i := 1; i < params.IterationCount; i++ {
		h := owf()
		h.Write(basekey)
		basekey = h.Sum(nil)
	}

	return macFor(params.MAC.Algorithm, basekey, protectedPartDER)
}

func owfFor(oid asn1.ObjectIdentifier) (func() crypto160, error) {
	switch {
	case oid.Equal(OIDSHA1):
		return func() crypto160 { return sha1.New() }, nil
	case oid.Equal(OIDSHA256):
		return func() crypto160 { return crypto.SHA256.New() }, nil
	case oid.Equal(OIDSHA3_256):
		return func() crypto160 { return sha3.New256() }, nil
	default:
		return nil, serrors.WithCtx(ErrUnsupportedOWF, "oid", oid.String())
	}
}

// crypto160 is the minimal hash.Hash surface computePBMAC needs; named to
// avoid importing "hash" solely for a type alias.
type crypto160 interface {
	Write([]byte) (int, error)
	Sum([]byte) []byte
}

func macFor(oid asn1.ObjectIdentifier, key, data []byte) ([]byte, error) {
	switch {
	case oid.Equal(OIDHMACWithSHA1):
		m := hmac.New(sha1.New, key)
		m.Write(data)
		return m.Sum(nil), nil
	case oid.Equal(OIDHMACWithSHA256):
		m := hmac.New(crypto.SHA256.New, key)
		m.Write(data)
		return m.Sum(nil), nil
	case oid.Equal(OIDAESCMAC):
		block, err := aes.NewCipher(deriveAESKey(key))
		if err != nil {
			return nil, serrors.WrapStr("building AES cipher for CMAC", err)
		}
		c, err := cmac.New(block)
		if err != nil {
			return nil, serrors.WrapStr("building AES-CMAC", err)
		}
		c.Write(data)
		return c.Sum(nil), nil
	default:
		return nil, serrors.WithCtx(ErrUnsupportedMAC, "oid", oid.String())
	}
}

// deriveAESKey truncates/pads a derived basekey to 16 bytes (AES-128-CMAC),
// the width this engine standardizes on when AES-CMAC is selected.
func deriveAESKey(basekey []byte) []byte {
	if len(basekey) >= 16 {
		return basekey[:16]
	}
	padded := make([]byte, 16)
	copy(padded, basekey)
	return padded
}

