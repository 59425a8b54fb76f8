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

// Package cmpserver is a minimal CMP-over-HTTP responder: decode a
// PKIMessage, hand it to a caller-supplied Responder, encode whatever
// PKIMessage comes back. It exists for integration tests and small RA/CA
// stand-ins, not as a production-grade CA.
package cmpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/anapaya/gocmp/go/lib/cmp/message"
	"github.com/anapaya/gocmp/go/lib/cmp/transport"
	"github.com/anapaya/gocmp/go/lib/log"
)

// Responder answers a decoded request PKIMessage with a reply PKIMessage,
// or an error if it cannot produce one at all (a malformed or rejected
// request should still be answered with an error PKIMessage; Responder
// returning an error means the HTTP layer itself fails the exchange).
type Responder func(r *http.Request, req *message.PKIMessage) (*message.PKIMessage, error)

// Problem mirrors an RFC 7807-ish error body, used on the handful of JSON
// status endpoints this server exposes alongside its binary CMP endpoint.
type Problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
	Status int    `json:"status"`
}

// Server is the CMP-over-HTTP responder. Respond is required; Info is an
// optional JSON status endpoint, following the indirection-to-handler
// pattern of routing a field of http.HandlerFunc instead of a method.
type Server struct {
	Respond Responder
	Info    http.HandlerFunc
}

// Router builds the chi mux: POST / for CMP exchanges (RFC 6712's default
// path), GET /info for the optional JSON status endpoint, with permissive
// CORS so a browser-based test harness can drive both.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))
	r.Post("/", s.handleCMP)
	if s.Info != nil {
		r.Get("/info", s.Info)
	}
	return r
}

func (s *Server) handleCMP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if ct := r.Header.Get("Content-Type"); ct != "" && ct != transport.ContentTypePKIXCMP {
		writeProblem(w, http.StatusUnsupportedMediaType, "unsupported content type", ct)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "reading request body", err.Error())
		return
	}
	req, err := message.Decode(raw)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "decoding PKIMessage", err.Error())
		return
	}

	resp, err := s.Respond(r, req)
	if err != nil {
		log.Error("CMP request handling failed", "err", err, "elapsed", time.Since(start))
		writeProblem(w, http.StatusInternalServerError, "handling CMP request", err.Error())
		return
	}
	respDER, err := message.Encode(resp)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "encoding PKIMessage", err.Error())
		return
	}
	w.Header().Set("Content-Type", transport.ContentTypePKIXCMP)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(respDER)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	_ = enc.Encode(Problem{Title: title, Detail: detail, Status: status})
}
