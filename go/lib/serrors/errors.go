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

// Package serrors provides structured errors that carry free-form
// key/value context alongside a stable, matchable reason.
package serrors

import (
	"errors"
	"fmt"
	"strings"
)

// basicError is a leaf error identified by a message and decorated with
// context. Two basicErrors compare equal under errors.Is when they share
// the same msg and cause.
type basicError struct {
	msg   string
	cause error
	ctx   []ctxPair
}

type ctxPair struct {
	key   string
	value interface{}
}

// New creates a new error with the given message and context pairs. ctx
// must be an even number of arguments, alternating key (string) and value.
func New(msg string, ctx ...interface{}) error {
	return &basicError{msg: msg, ctx: toPairs(ctx)}
}

// WithCtx returns an error that behaves like err but carries additional
// context pairs. The original err is preserved as the Unwrap() cause.
func WithCtx(err error, ctx ...interface{}) error {
	if err == nil {
		return nil
	}
	return &basicError{msg: err.Error(), cause: err, ctx: toPairs(ctx)}
}

// Wrap returns an error annotating cause with msg and context, preserving
// cause for errors.Is / errors.Unwrap / errors.As.
func Wrap(msg string, cause error, ctx ...interface{}) error {
	return &basicError{msg: msg, cause: cause, ctx: toPairs(ctx)}
}

// WrapStr is an alias of Wrap kept for readability at call sites that wrap
// with a literal string message (matches the WrapStr naming convention).
func WrapStr(msg string, cause error, ctx ...interface{}) error {
	return Wrap(msg, cause, ctx...)
}

func toPairs(ctx []interface{}) []ctxPair {
	if len(ctx) == 0 {
		return nil
	}
	if len(ctx)%2 != 0 {
		ctx = append(ctx, "<missing>")
	}
	pairs := make([]ctxPair, 0, len(ctx)/2)
	for i := 0; i+1 < len(ctx); i += 2 {
		key, ok := ctx[i].(string)
		if !ok {
			key = fmt.Sprint(ctx[i])
		}
		pairs = append(pairs, ctxPair{key: key, value: ctx[i+1]})
	}
	return pairs
}

func (e *basicError) Error() string {
	var b strings.Builder
	b.WriteString(e.msg)
	if e.cause != nil && e.cause.Error() != e.msg {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	for _, p := range e.ctx {
		fmt.Fprintf(&b, " [%s=%v]", p.key, p.value)
	}
	return b.String()
}

func (e *basicError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a basicError with the same message. This
// lets sentinel errors created with serrors.New be matched with errors.Is
// after being wrapped with additional context via WithCtx/Wrap.
func (e *basicError) Is(target error) bool {
	o, ok := target.(*basicError)
	if !ok {
		return false
	}
	return e.msg == o.msg
}

// Ctx returns the context pairs attached to err, walking the Unwrap chain
// and accumulating outer-to-inner (closest to the error site first).
func Ctx(err error) []interface{} {
	var out []interface{}
	for err != nil {
		if be, ok := err.(*basicError); ok {
			for _, p := range be.ctx {
				out = append(out, p.key, p.value)
			}
		}
		err = errors.Unwrap(err)
	}
	return out
}

// List aggregates multiple errors, e.g. from validating several independent
// fields, into a single error.
type List []error

func (l List) Error() string {
	msgs := make([]string, 0, len(l))
	for _, e := range l {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// ToError returns nil if the list is empty, the sole error if it contains
// exactly one, or itself otherwise.
func (l List) ToError() error {
	switch len(l) {
	case 0:
		return nil
	case 1:
		return l[0]
	default:
		return l
	}
}

// Is reports whether target is a basicError and equals one of l's elements
// under errors.Is.
func (l List) Is(target error) bool {
	for _, e := range l {
		if errors.Is(e, target) {
			return true
		}
	}
	return false
}
