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

// Package session implements the shared CMP transaction driver: the
// request/protect/transfer/validate skeleton, its per-body-type
// specializations, the polling loop, and the certConf/pkiConf exchange.
package session

import (
	gocontext "context"
	"crypto/rand"
	"crypto/x509"
	"encoding/asn1"
	"time"

	"golang.org/x/sync/errgroup"

	cmpcontext "github.com/anapaya/gocmp/go/lib/cmp/context"
	"github.com/anapaya/gocmp/go/lib/cmp/header"
	"github.com/anapaya/gocmp/go/lib/cmp/message"
	"github.com/anapaya/gocmp/go/lib/cmp/protection"
	"github.com/anapaya/gocmp/go/lib/cmp/status"
	"github.com/anapaya/gocmp/go/lib/cmp/transport"
	"github.com/anapaya/gocmp/go/lib/cmp/verify"
	"github.com/anapaya/gocmp/go/lib/log"
	"github.com/anapaya/gocmp/go/lib/serrors"
	"github.com/anapaya/gocmp/go/lib/tracing"
)

var (
	ErrTotalTimeout       = serrors.New("total timeout exceeded before a terminal response was obtained")
	ErrNegativeCheckAfter = serrors.New("pollRep checkAfter is negative")
	ErrUnexpectedBodyType = serrors.New("response body type is not one of the expected types")
	ErrOneCertResponse    = serrors.New("expected exactly one CertResponse")
	ErrRequestRejected    = serrors.New("request rejected by the CA")
	ErrKeyMismatch        = serrors.New("issued certificate public key does not match the outstanding private key")
	ErrRevCertMismatch    = serrors.New("RevRepContent.revCerts does not identify the requested certificate")
)

// CertConfCallback lets the application accept, escalate, or downgrade the
// certConf fail-bits for a newly issued certificate. Returning 0 accepts.
type CertConfCallback func(ctx *cmpcontext.Context, newCert *x509.Certificate, currentFailInfo uint32) (failInfo uint32, text string)

// Driver executes CMP transactions against a Transfer implementation.
type Driver struct {
	Transfer transport.Transfer
	Metrics  *Metrics
	CertConf CertConfCallback
}

// EnrollResult is the outcome of a successful IR/CR/KUR/P10CR transaction.
type EnrollResult struct {
	Cert   *x509.Certificate
	Status message.PKIStatusInfo
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, serrors.WrapStr("reading random bytes", err)
	}
	return b, nil
}

// buildProtected constructs a PKIMessage with the given body, fills in its
// header per context precedence rules, and applies protection unless the
// context is configured to send unprotected.
func (d *Driver) buildProtected(ctx *cmpcontext.Context, body message.PKIBody) (*message.PKIMessage, error) {
	m, err := message.NewMessage(body.Type)
	if err != nil {
		return nil, err
	}
	if err := m.SetBody(body); err != nil {
		return nil, err
	}
	if err := header.Init(ctx, &m.Header, nil); err != nil {
		return nil, err
	}
	header.PushGeneralInfo(ctx, &m.Header)

	if ctx.UnprotectedSend {
		return m, nil
	}
	if err := protection.Protect(ctx, m, nil); err != nil {
		return nil, err
	}
	return m, nil
}

// effectiveTimeout returns the per-message timeout to pass to the
// transport, capped by whatever remains of the transaction's total
// timeout, and an error if the total timeout has already elapsed.
func effectiveTimeout(ctx *cmpcontext.Context) (time.Duration, error) {
	effective := ctx.MsgTimeout
	if ctx.TotalTimeout > 0 {
		remaining := ctx.RemainingTime(time.Now())
		if remaining <= 0 {
			return 0, ErrTotalTimeout
		}
		if remaining < effective {
			effective = remaining
		}
	}
	return effective, nil
}

// roundTrip encodes an already-built message, sends it, decodes the
// response, and verifies the response's protection and header fields.
func (d *Driver) roundTrip(goCtx gocontext.Context, ctx *cmpcontext.Context, m *message.PKIMessage) (*message.PKIMessage, error) {
	timeout, err := effectiveTimeout(ctx)
	if err != nil {
		return nil, err
	}
	reqDER, err := message.Encode(m)
	if err != nil {
		return nil, serrors.WrapStr("encoding outbound message", err)
	}
	respDER, err := d.Transfer.Transfer(goCtx, reqDER, timeout)
	if err != nil {
		return nil, err
	}
	resp, err := message.Decode(respDER)
	if err != nil {
		return nil, serrors.WithCtx(transport.ErrDecodeFailure, "cause", err.Error())
	}
	if err := verify.CheckReceived(ctx, resp); err != nil {
		return nil, err
	}
	if err := verify.Verify(ctx, resp); err != nil {
		return nil, serrors.WrapStr("verifying response protection", err)
	}
	return resp, nil
}

// expectBody fails unless resp's body type is one of allowed, surfacing a
// server-sent error body as the returned error's detail.
func expectBody(resp *message.PKIMessage, allowed ...message.BodyType) error {
	bt := resp.BodyType()
	for _, a := range allowed {
		if bt == a {
			return nil
		}
	}
	if bt == message.ErrorMsg {
		body, err := resp.GetBody()
		if err == nil && body.ErrorMsgContent != nil {
			return serrors.New("server returned an error message",
				"detail", status.String(body.ErrorMsgContent.PKIStatusInfo))
		}
	}
	return serrors.WithCtx(ErrUnexpectedBodyType, "got", bt.String())
}

// doCertReqSeq implements the shared skeleton common to ir/cr/kur/p10cr:
// build the request, protect it, transfer it, validate the response,
// drive the poll loop if the CA answers "waiting", and return the single
// terminal CertResponse together with the message that carried it.
func (d *Driver) doCertReqSeq(
	goCtx gocontext.Context,
	ctx *cmpcontext.Context,
	op string,
	repType message.BodyType,
	buildBody func() (message.PKIBody, error),
) (*message.PKIMessage, *message.CertResponse, error) {
	span, goCtx := tracing.CtxWith(goCtx, "cmp."+op)
	defer span.Finish()

	if err := ctx.BeginTransaction(time.Now(), randomBytes); err != nil {
		return nil, nil, err
	}

	body, err := buildBody()
	if err != nil {
		return nil, nil, serrors.WrapStr("building request body", err)
	}
	m, err := d.buildProtected(ctx, body)
	if err != nil {
		return nil, nil, err
	}
	resp, err := d.roundTrip(goCtx, ctx, m)
	if err != nil {
		return nil, nil, err
	}
	if err := expectBody(resp, repType, message.PollRep); err != nil {
		return nil, nil, err
	}

	if resp.BodyType() == message.PollRep {
		resp, err = d.pollLoop(goCtx, ctx, repType)
		if err != nil {
			return nil, nil, err
		}
	}

	cr, err := d.extractCertResponse(ctx, resp)
	if err != nil {
		return nil, nil, err
	}
	// A body of repType (ip/cp/kup) can itself carry status "waiting"
	// instead of a terminal disposition: the CA answers immediately but
	// asks the client to poll for the real outcome. This is distinct
	// from an outer pollRep body and is keyed off CertResponse.Status,
	// not the wire body type.
	if message.PKIStatus(cr.Status.Status) == message.StatusWaiting {
		resp, err = d.pollLoop(goCtx, ctx, repType)
		if err != nil {
			return nil, nil, err
		}
		cr, err = d.extractCertResponse(ctx, resp)
		if err != nil {
			return nil, nil, err
		}
	}
	return resp, cr, nil
}

// extractCertResponse pulls the single CertResponse out of resp's
// CertRepMessage body, folding in any caPubs it carries along the way.
func (d *Driver) extractCertResponse(
	ctx *cmpcontext.Context, resp *message.PKIMessage,
) (*message.CertResponse, error) {
	rbody, err := resp.GetBody()
	if err != nil || rbody.CertRepMessage == nil || len(rbody.CertRepMessage.Response) != 1 {
		return nil, ErrOneCertResponse
	}
	if len(rbody.CertRepMessage.CAPubs) > 0 {
		d.mergeCAPubs(ctx, rbody.CertRepMessage.CAPubs)
	}
	cr := rbody.CertRepMessage.Response[0]
	return &cr, nil
}

// pollLoop implements the pollReq/pollRep round, honoring checkAfter and
// racing it against the transaction's total timeout: if checkAfter would
// overrun the deadline, one last poll is sent right at the deadline and
// its answer is accepted unconditionally.
func (d *Driver) pollLoop(goCtx gocontext.Context, ctx *cmpcontext.Context, repType message.BodyType) (*message.PKIMessage, error) {
	certReqID := 0
	for {
		if d.Metrics != nil {
			d.Metrics.PollRounds.Inc()
		}
		resp, checkAfter, rid, err := d.pollOnce(goCtx, ctx, certReqID, repType)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return resp, nil
		}
		certReqID = rid

		wait := time.Duration(checkAfter) * time.Second
		last := false
		if ctx.TotalTimeout > 0 {
			remaining := ctx.RemainingTime(time.Now())
			if remaining <= 0 {
				return nil, ErrTotalTimeout
			}
			if wait >= remaining {
				wait, last = remaining, true
			}
		}
		if err := sleepOrCancel(goCtx, wait); err != nil {
			return nil, err
		}
		if last {
			return d.finalPollRacingDeadline(goCtx, ctx, certReqID, repType)
		}
	}
}

// finalPollRacingDeadline issues the one unconditional poll due right at
// the transaction deadline, racing it against a timer for that same
// deadline: whichever finishes first determines the outcome, and the
// loser is canceled rather than left to complete after it no longer
// matters.
func (d *Driver) finalPollRacingDeadline(
	goCtx gocontext.Context, ctx *cmpcontext.Context, certReqID int, repType message.BodyType,
) (*message.PKIMessage, error) {
	raceCtx, cancel := gocontext.WithCancel(goCtx)
	defer cancel()

	g, gCtx := errgroup.WithContext(raceCtx)
	var resp *message.PKIMessage
	g.Go(func() error {
		r, _, _, err := d.pollOnce(gCtx, ctx, certReqID, repType)
		if err != nil {
			return err
		}
		resp = r
		cancel()
		return nil
	})
	g.Go(func() error {
		deadline := ctx.EndTime()
		if deadline.IsZero() {
			<-gCtx.Done()
			return nil
		}
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		select {
		case <-timer.C:
			return ErrTotalTimeout
		case <-gCtx.Done():
			return nil
		}
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, ErrTotalTimeout
	}
	return resp, nil
}

// pollOnce sends a single pollReq. If the CA answers with repType, that
// message is returned. If it answers with another pollRep, the next
// checkAfter/certReqId pair is returned instead.
func (d *Driver) pollOnce(
	goCtx gocontext.Context, ctx *cmpcontext.Context, certReqID int, repType message.BodyType,
) (resp *message.PKIMessage, checkAfter, nextCertReqID int, err error) {
	m, err := d.buildProtected(ctx, message.NewPollReqBody(certReqID))
	if err != nil {
		return nil, 0, 0, err
	}
	r, err := d.roundTrip(goCtx, ctx, m)
	if err != nil {
		return nil, 0, 0, err
	}
	if err := expectBody(r, repType, message.PollRep); err != nil {
		return nil, 0, 0, err
	}
	if r.BodyType() != message.PollRep {
		return r, 0, 0, nil
	}
	b, err := r.GetBody()
	if err != nil || len(b.PollRep) == 0 {
		return nil, 0, 0, serrors.New("malformed pollRep body")
	}
	item := b.PollRep[0]
	if item.CheckAfter < 0 {
		return nil, 0, 0, ErrNegativeCheckAfter
	}
	return nil, item.CheckAfter, item.CertReqID, nil
}

func sleepOrCancel(goCtx gocontext.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-goCtx.Done():
		return goCtx.Err()
	}
}

// mergeCAPubs folds ip/cp/kup caPubs into the context's trust material so
// later path validation (including any certConf round) can use them.
func (d *Driver) mergeCAPubs(ctx *cmpcontext.Context, caPubs []asn1.RawValue) {
	for _, raw := range caPubs {
		cert, err := x509.ParseCertificate(raw.FullBytes)
		if err != nil {
			log.Warn("discarding unparsable caPubs entry", "err", err)
			continue
		}
		ctx.TrustedStore.AddCert(cert)
		ctx.CAPubs = append(ctx.CAPubs, cert)
	}
}

// dispositionAccepted classifies a terminal (non-waiting) PKIStatus into
// success/failure for reqType's flow. accepted and grantedWithMods are
// always a usable result; revocationWarning is tolerated everywhere it
// can occur. keyUpdateWarning is only meaningful for a key-update
// request (it says "your old cert still works, but update anyway") and
// is a hard failure for every other request type, including rr.
func dispositionAccepted(st message.PKIStatus, reqType message.BodyType) bool {
	switch st {
	case message.StatusAccepted, message.StatusGrantedWithMods,
		message.StatusRevocationWarning:
		return true
	case message.StatusKeyUpdateWarning:
		return reqType == message.KUR
	default:
		return false
	}
}

// finishEnroll validates the issued certificate, runs the certConf/pkiConf
// round unless suppressed, and returns the caller-facing result.
func (d *Driver) finishEnroll(
	goCtx gocontext.Context, ctx *cmpcontext.Context, reqType message.BodyType,
	resp *message.PKIMessage, cr *message.CertResponse,
) (*EnrollResult, error) {
	st := message.PKIStatus(cr.Status.Status)
	ctx.LastStatus = cr.Status.Status
	ctx.LastStatusIsSet = true
	ctx.LastFailInfo = failInfoMask(cr.Status)
	ctx.LastStatusString = cr.Status.StatusString

	if !dispositionAccepted(st, reqType) {
		return nil, serrors.WithCtx(ErrRequestRejected, "status", st.String(), "detail", status.String(cr.Status))
	}
	if cr.CertifiedKeyPair == nil {
		return nil, serrors.New("accepted response carries no certified key pair")
	}
	certDER, err := cr.CertifiedKeyPair.IssuedCertDER()
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, serrors.WrapStr("parsing issued certificate", err)
	}
	if err := d.checkIssuedKeyMatch(ctx, cert); err != nil {
		return nil, err
	}
	ctx.NewClCert = cert

	failInfo, text := uint32(0), ""
	if d.CertConf != nil {
		failInfo, text = d.CertConf(ctx, cert, ctx.LastFailInfo)
	}

	if !ctx.DisableConfirm && !(ctx.ImplicitConfirm && resp.Header.HasImplicitConfirm()) {
		if err := d.certConfExchange(goCtx, ctx, cert, failInfo, text); err != nil {
			return nil, err
		}
	}
	return &EnrollResult{Cert: cert, Status: cr.Status}, nil
}

// checkIssuedKeyMatch verifies the issued certificate's public key matches
// the private key the client holds for it: the existing key for ir/cr, or
// the freshly generated key for a key-update request.
func (d *Driver) checkIssuedKeyMatch(ctx *cmpcontext.Context, cert *x509.Certificate) error {
	signer := ctx.ClientKey
	if ctx.NewKey != nil {
		signer = ctx.NewKey
	}
	if signer == nil {
		return nil
	}
	want, err := x509.MarshalPKIXPublicKey(signer.Public())
	if err != nil {
		return serrors.WrapStr("marshaling outstanding public key", err)
	}
	got, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return serrors.WrapStr("marshaling issued certificate public key", err)
	}
	if !bytesEqual(want, got) {
		return ErrKeyMismatch
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// certConfExchange sends certConf for the freshly issued certificate and
// waits for pkiConf.
func (d *Driver) certConfExchange(
	goCtx gocontext.Context, ctx *cmpcontext.Context, cert *x509.Certificate, failInfo uint32, text string,
) error {
	span, goCtx := tracing.CtxWith(goCtx, "cmp.certConf")
	defer span.Finish()

	entry := message.CertConfEntry{Cert: cert}
	if failInfo != 0 {
		entry.Rejected = true
		entry.FailInfo = maskToBitString(failInfo)
		if text != "" {
			entry.FailText = []string{text}
		}
	}
	body, err := message.NewCertConfBody([]message.CertConfEntry{entry})
	if err != nil {
		return err
	}
	m, err := d.buildProtected(ctx, body)
	if err != nil {
		return err
	}
	resp, err := d.roundTrip(goCtx, ctx, m)
	if err != nil {
		return err
	}
	return expectBody(resp, message.PKIConf)
}

func maskToBitString(mask uint32) asn1.BitString {
	nbytes := 4
	b := []byte{byte(mask >> 24), byte(mask >> 16), byte(mask >> 8), byte(mask)}
	for nbytes > 1 && b[nbytes-1] == 0 {
		nbytes--
	}
	return asn1.BitString{Bytes: b[:nbytes], BitLength: nbytes * 8}
}

func failInfoMask(info message.PKIStatusInfo) uint32 {
	var mask uint32
	for i := 0; i < 27; i++ {
		if info.HasFailBit(i) {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// ExecIR, ExecCR, ExecKUR run the three certificate-request flows that
// share NewCertReqBody; they differ only in body/response type and in
// whether a freshly generated key is bound into the template.
func (d *Driver) ExecIR(goCtx gocontext.Context, ctx *cmpcontext.Context, p message.CertRequestParams) (*EnrollResult, error) {
	return d.execCertReq(goCtx, ctx, "ir", message.IR, message.IP, p)
}

func (d *Driver) ExecCR(goCtx gocontext.Context, ctx *cmpcontext.Context, p message.CertRequestParams) (*EnrollResult, error) {
	return d.execCertReq(goCtx, ctx, "cr", message.CR, message.CP, p)
}

func (d *Driver) ExecKUR(goCtx gocontext.Context, ctx *cmpcontext.Context, p message.CertRequestParams) (*EnrollResult, error) {
	return d.execCertReq(goCtx, ctx, "kur", message.KUR, message.KUP, p)
}

func (d *Driver) execCertReq(
	goCtx gocontext.Context, ctx *cmpcontext.Context, op string, reqType, repType message.BodyType, p message.CertRequestParams,
) (*EnrollResult, error) {
	start := time.Now()
	resp, cr, err := d.doCertReqSeq(goCtx, ctx, op, repType, func() (message.PKIBody, error) {
		return message.NewCertReqBody(reqType, p)
	})
	if err != nil {
		d.observe(reqType, "transport_or_protocol_error", start)
		logErrorQueue(ctx)
		return nil, err
	}
	result, err := d.finishEnroll(goCtx, ctx, reqType, resp, cr)
	if err != nil {
		d.observe(reqType, "rejected", start)
		logErrorQueue(ctx)
		return nil, err
	}
	d.observe(reqType, "accepted", start)
	return result, nil
}

// observe records the outcome of a completed transaction, if metrics were
// configured for this driver.
func (d *Driver) observe(bodyType message.BodyType, outcome string, start time.Time) {
	if d.Metrics == nil {
		return
	}
	d.Metrics.Transactions.WithLabelValues(bodyType.String(), outcome).Inc()
	d.Metrics.Duration.Observe(time.Since(start).Seconds())
}

// logErrorQueue re-emits whatever ctx.ErrorQueue accumulated during a
// failed transaction (rejected sender-certificate candidates, discarded
// retries) so the diagnostics that led to the failure aren't lost once
// the queue is reset by the next BeginTransaction.
func logErrorQueue(ctx *cmpcontext.Context) {
	if entries := ctx.ErrorQueue.Entries(); len(entries) > 0 {
		log.Warn("transaction failed; error queue", "entries", ctx.ErrorQueue.String())
	}
}

// ExecP10CR submits a PKCS#10 CSR directly; the CA assigns its own
// certReqId, which CertResponse reflects back and this driver honors.
func (d *Driver) ExecP10CR(goCtx gocontext.Context, ctx *cmpcontext.Context, csrDER []byte) (*EnrollResult, error) {
	resp, cr, err := d.doCertReqSeq(goCtx, ctx, "p10cr", message.CP, func() (message.PKIBody, error) {
		return message.NewP10CRBody(csrDER)
	})
	if err != nil {
		logErrorQueue(ctx)
		return nil, err
	}
	result, err := d.finishEnroll(goCtx, ctx, message.P10CR, resp, cr)
	if err != nil {
		logErrorQueue(ctx)
		return nil, err
	}
	return result, nil
}

// RevokeResult is the outcome of an rr transaction.
type RevokeResult struct {
	Status message.PKIStatusInfo
}

// ExecRR revokes oldCert. Unlike enrollment, rr has its own status-only
// response shape (no certConf round) and an optional revCerts echo the
// driver cross-checks against the requested certificate's identity.
func (d *Driver) ExecRR(
	goCtx gocontext.Context, ctx *cmpcontext.Context, oldCert *x509.Certificate, includeSubjectAndKey bool, reason int,
) (*RevokeResult, error) {
	span, goCtx := tracing.CtxWith(goCtx, "cmp.rr")
	defer span.Finish()
	start := time.Now()

	result, err := d.execRR(goCtx, ctx, oldCert, includeSubjectAndKey, reason)
	if err != nil {
		d.observe(message.RR, "rejected", start)
		logErrorQueue(ctx)
		return nil, err
	}
	d.observe(message.RR, "accepted", start)
	return result, nil
}

func (d *Driver) execRR(
	goCtx gocontext.Context, ctx *cmpcontext.Context, oldCert *x509.Certificate, includeSubjectAndKey bool, reason int,
) (*RevokeResult, error) {
	if err := ctx.BeginTransaction(time.Now(), randomBytes); err != nil {
		return nil, err
	}
	body, err := message.NewRRBody(oldCert, includeSubjectAndKey, reason)
	if err != nil {
		return nil, err
	}
	m, err := d.buildProtected(ctx, body)
	if err != nil {
		return nil, err
	}
	resp, err := d.roundTrip(goCtx, ctx, m)
	if err != nil {
		return nil, err
	}
	if err := expectBody(resp, message.RP); err != nil {
		return nil, err
	}
	rbody, err := resp.GetBody()
	if err != nil || rbody.RevRepContent == nil || len(rbody.RevRepContent.Status) != 1 {
		return nil, serrors.New("expected exactly one status in RevRepContent")
	}
	info := rbody.RevRepContent.Status[0]
	st := message.PKIStatus(info.Status)
	if !dispositionAccepted(st, message.RR) {
		return nil, serrors.WithCtx(ErrRequestRejected, "status", st.String(), "detail", status.String(info))
	}
	if len(rbody.RevRepContent.RevCerts) > 0 && !revCertMatches(rbody.RevRepContent.RevCerts, oldCert) {
		return nil, ErrRevCertMismatch
	}
	return &RevokeResult{Status: info}, nil
}

func revCertMatches(ids []message.CertID, cert *x509.Certificate) bool {
	for _, id := range ids {
		if id.Serial != nil && id.Serial.Cmp(cert.SerialNumber) == 0 {
			return true
		}
	}
	return false
}

// ExecGENM sends a general message carrying items and returns whatever
// ITAV stack the CA answers with in genp, unmodified.
func (d *Driver) ExecGENM(
	goCtx gocontext.Context, ctx *cmpcontext.Context, items []message.InfoTypeAndValue,
) ([]message.InfoTypeAndValue, error) {
	span, goCtx := tracing.CtxWith(goCtx, "cmp.genm")
	defer span.Finish()

	if err := ctx.BeginTransaction(time.Now(), randomBytes); err != nil {
		return nil, err
	}
	m, err := d.buildProtected(ctx, message.NewGenMBody(items))
	if err != nil {
		return nil, err
	}
	resp, err := d.roundTrip(goCtx, ctx, m)
	if err != nil {
		return nil, err
	}
	if err := expectBody(resp, message.GenP); err != nil {
		return nil, err
	}
	rbody, err := resp.GetBody()
	if err != nil {
		return nil, err
	}
	return rbody.GenRepContent, nil
}
