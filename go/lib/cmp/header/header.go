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

// Package header builds and updates PKIHeader values from a Context,
// applying the sender/recipient precedence rules and nonce/transactionID
// bookkeeping every outbound message needs.
package header

import (
	"crypto/rand"
	"crypto/x509/pkix"
	"time"

	"github.com/anapaya/gocmp/go/lib/cmp/context"
	"github.com/anapaya/gocmp/go/lib/cmp/message"
	"github.com/anapaya/gocmp/go/lib/serrors"
)

// Init populates hdr in place following the precedence rules below, and
// updates ctx's nonce/transactionID bookkeeping to match what was written.
//
// sender: client-cert subject, else template subject, else NULL-DN (used
// when authenticating by reference-value rather than a certificate).
//
// recipient: pinned server-cert subject, else an explicit recipient DN,
// else the template issuer, else the old cert's issuer (KUR/RR), else the
// client cert's issuer, else NULL-DN.
func Init(ctx *context.Context, hdr *message.PKIHeader, recipient *pkix.Name) error {
	hdr.PVNO = message.PVNO

	sender, err := senderName(ctx)
	if err != nil {
		return serrors.WrapStr("determining sender", err)
	}
	hdr.SetSender(sender)

	recip, err := recipientName(ctx, recipient)
	if err != nil {
		return serrors.WrapStr("determining recipient", err)
	}
	hdr.SetRecipient(recip)

	now := time.Now().UTC().Truncate(time.Second)
	hdr.MessageTime = &now

	if len(ctx.RecipNonce) > 0 {
		hdr.RecipNonce = ctx.RecipNonce
	}

	if ctx.TransactionID == nil {
		txid, err := randomBytes(16)
		if err != nil {
			return serrors.WrapStr("generating transactionID", err)
		}
		ctx.TransactionID = txid
	}
	hdr.TransactionID = ctx.TransactionID

	nonce, err := randomBytes(16)
	if err != nil {
		return serrors.WrapStr("generating senderNonce", err)
	}
	hdr.SenderNonce = nonce
	ctx.LastSenderNonce = nonce

	return nil
}

func senderName(ctx *context.Context) (message.GeneralName, error) {
	if ctx.ClientCert != nil {
		return message.DirectoryName(ctx.ClientCert.Subject)
	}
	if len(ctx.Subject.ToRDNSequence()) > 0 {
		return message.DirectoryName(ctx.Subject)
	}
	if len(ctx.ReferenceValue) == 0 && len(ctx.SecretValue) == 0 {
		return message.GeneralName{}, serrors.New(
			"no client cert, no template subject, and no reference-value to justify a NULL-DN sender")
	}
	return message.NullDN(), nil
}

func recipientName(ctx *context.Context, explicit *pkix.Name) (message.GeneralName, error) {
	if ctx.ServerCert != nil {
		return message.DirectoryName(ctx.ServerCert.Subject)
	}
	if explicit != nil {
		return message.DirectoryName(*explicit)
	}
	if ctx.Issuer != nil {
		return message.DirectoryName(*ctx.Issuer)
	}
	if ctx.OldCert != nil {
		return message.DirectoryName(ctx.OldCert.Issuer)
	}
	if ctx.ClientCert != nil {
		return message.DirectoryName(ctx.ClientCert.Issuer)
	}
	return message.NullDN(), nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// PushGeneralInfo copies ctx's configured generalInfo items (e.g.
// implicitConfirm) into hdr, deduplicating by OID via the header's own
// push helper.
func PushGeneralInfo(ctx *context.Context, hdr *message.PKIHeader) {
	if ctx.ImplicitConfirm {
		hdr.PushGeneralInfo(message.InfoTypeAndValue{InfoType: message.OIDImplicitConfirm})
	}
}
