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

// Package status renders PKIStatusInfo values for logs and diagnostics,
// and keeps the per-transaction error queue the session driver reports on
// failure.
package status

import (
	"encoding/asn1"
	"fmt"
	"strings"

	"github.com/anapaya/gocmp/go/lib/cmp/message"
)

// New builds a PKIStatusInfo from status, a fail-bit bitmask (0 means no
// failInfo), and optional free-text.
func New(st message.PKIStatus, failBits uint32, text ...string) message.PKIStatusInfo {
	info := message.PKIStatusInfo{Status: int(st), StatusString: text}
	if failBits != 0 {
		info.FailInfo = bitStringFromMask(failBits)
	}
	return info
}

func bitStringFromMask(mask uint32) asn1.BitString {
	nbytes := 4
	b := []byte{byte(mask >> 24), byte(mask >> 16), byte(mask >> 8), byte(mask)}
	// Trim trailing all-zero bytes but keep at least one.
	for nbytes > 1 && b[nbytes-1] == 0 {
		nbytes--
	}
	return asn1.BitString{Bytes: b[:nbytes], BitLength: nbytes * 8}
}

// String renders info as a one-line diagnostic:
// `status: rejection; PKIFailureInfo: badPOP, badCertTemplate; StatusStrings: "..."`.
func String(info message.PKIStatusInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "status: %s", message.PKIStatus(info.Status))
	if bits := info.FailBits(); len(bits) > 0 {
		fmt.Fprintf(&b, "; PKIFailureInfo: %s", strings.Join(bits, ", "))
	}
	if len(info.StatusString) > 0 {
		quoted := make([]string, len(info.StatusString))
		for i, s := range info.StatusString {
			quoted[i] = fmt.Sprintf("%q", s)
		}
		fmt.Fprintf(&b, "; StatusStrings: %s", strings.Join(quoted, ", "))
	}
	return b.String()
}

// Entry is one error-queue record: a stable reason code plus free-form
// context for display.
type Entry struct {
	Reason string
	Data   string
}

// Queue is a transaction-local error queue.
type Queue struct {
	entries []Entry
}

// Push appends a new entry.
func (q *Queue) Push(reason string, data string) {
	q.entries = append(q.entries, Entry{Reason: reason, Data: data})
}

// Mark returns an opaque position usable with PopToMark.
func (q *Queue) Mark() int { return len(q.entries) }

// PopToMark discards entries recorded at or after mark and returns them,
// oldest first, for display (e.g. after a sub-operation failed and the
// caller wants only the entries it itself generated).
func (q *Queue) PopToMark(mark int) []Entry {
	if mark > len(q.entries) {
		mark = len(q.entries)
	}
	popped := append([]Entry(nil), q.entries[mark:]...)
	q.entries = q.entries[:mark]
	return popped
}

// Entries returns a snapshot of everything queued so far.
func (q *Queue) Entries() []Entry {
	return append([]Entry(nil), q.entries...)
}

// String renders the whole queue for display on session failure.
func (q *Queue) String() string {
	var b strings.Builder
	for i, e := range q.entries {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", e.Reason, e.Data)
	}
	return b.String()
}
