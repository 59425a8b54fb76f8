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

package verify

import (
	"bytes"

	"github.com/anapaya/gocmp/go/lib/cmp/context"
	"github.com/anapaya/gocmp/go/lib/cmp/message"
)

// CheckReceived runs the received-message checklist on an
// already-protection-verified (or excused) message, then updates ctx's
// nonce/transactionID bookkeeping for the next outbound message.
func CheckReceived(ctx *context.Context, m *message.PKIMessage) error {
	if m.BodyType() < message.IR || m.BodyType() > message.PollRep {
		return ErrBadBodyType
	}
	if m.Header.PVNO != message.PVNO {
		return ErrPVNOMismatch
	}
	if len(ctx.TransactionID) > 0 && !bytes.Equal(ctx.TransactionID, m.Header.TransactionID) {
		return ErrTransactionIDMismatch
	}
	if len(ctx.LastSenderNonce) > 0 && !bytes.Equal(ctx.LastSenderNonce, m.Header.RecipNonce) {
		return ErrRecipNonceMismatch
	}

	if len(ctx.TransactionID) == 0 {
		ctx.TransactionID = m.Header.TransactionID
	}
	ctx.RecipNonce = m.Header.SenderNonce
	return nil
}
