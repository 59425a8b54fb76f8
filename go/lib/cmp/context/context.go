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

// Package context holds the per-transaction CMP Context: a mutable bag of
// transport configuration, credentials, trust material, template data,
// and transaction state, owned by the calling application and not safe
// for concurrent use by more than one goroutine at a time.
package context

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/anapaya/gocmp/go/lib/cmp/message"
	"github.com/anapaya/gocmp/go/lib/cmp/status"
	"github.com/anapaya/gocmp/go/lib/serrors"
)

// PoPMethod selects the proof-of-possession mechanism used in CertReqMsg.
type PoPMethod int

const (
	PoPNone PoPMethod = iota
	PoPSignature
	PoPRAVerified
)

// Option identifies a boolean/integer context setting.
type Option int

const (
	ImplicitConfirm Option = iota
	DisableConfirm
	UnprotectedSend
	UnprotectedErrors
	ValidityDays
	SubjectAltNameNoDefault
	SubjectAltNameCritical
	PoliciesCritical
	IgnoreKeyUsage
	PoPOMethod
	DigestAlg
	MsgTimeout
	TotalTimeout
	PermitTAInExtraCertsForIR
	RevocationReason
)

var ErrMissingArgument = serrors.New("option setter: missing required argument")
var ErrMultipleSANSources = serrors.New("reqExtensions: SAN supplied both as list and as extension")

// TrustStore is the minimal interface the verifier needs from a root
// store. crypto/x509.CertPool satisfies read access; Add/mutation happens
// through the setters below, which take the store's own internal lock
// for add/get-certs.
type TrustStore struct {
	mu    sync.RWMutex
	roots *x509.CertPool
	certs []*x509.Certificate
}

func NewTrustStore(roots *x509.CertPool) *TrustStore {
	if roots == nil {
		roots = x509.NewCertPool()
	}
	return &TrustStore{roots: roots}
}

func (t *TrustStore) AddCert(cert *x509.Certificate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roots.AddCert(cert)
	t.certs = append(t.certs, cert)
}

func (t *TrustStore) Roots() *x509.CertPool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.roots
}

// Certs returns the trust anchors added through AddCert, in addition
// order. x509.CertPool keeps no such list itself, so the verifier's
// sender-candidate search (which needs to try each trust anchor's
// subject against the message's sender name) keeps its own copy here
// rather than trying to extract it back out of the pool.
func (t *TrustStore) Certs() []*x509.Certificate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*x509.Certificate, len(t.certs))
	copy(out, t.certs)
	return out
}

// Context is the CMP per-transaction context.
type Context struct {
	// Transport config.
	Host         string
	Port         int
	Path         string
	ProxyHost    string
	ProxyPort    int
	MsgTimeout   time.Duration
	TotalTimeout time.Duration
	endTime      time.Time

	// Credentials.
	ClientCert   *x509.Certificate
	ClientKey    crypto.Signer
	ReferenceValue []byte
	SecretValue    []byte
	NewKey         crypto.Signer

	// Trust material.
	TrustedStore         *TrustStore
	UntrustedCerts       []*x509.Certificate
	ServerCert           *x509.Certificate // pinned
	validatedServerCert  *x509.Certificate
	validatedCache       *gocache.Cache
	ExpectedSender       *pkix.Name

	// Template data.
	Subject             pkix.Name
	Issuer              *pkix.Name
	SubjectAltNames     []message.GeneralName
	SANCritical         bool
	SANNoDefault        bool
	Policies            []Policy
	PoliciesCritical    bool
	ReqExtensions       []pkix.Extension
	ValidityDays        int
	PoPMethod           PoPMethod
	DigestAlg           string // e.g. "SHA256"
	OldCert             *x509.Certificate
	P10CSR              []byte
	RevocationReason    int

	// Transaction state.
	TransactionID    []byte
	LastSenderNonce  []byte
	RecipNonce       []byte
	LastStatus       int
	LastStatusIsSet  bool
	LastFailInfo     uint32
	LastStatusString []string
	NewClCert        *x509.Certificate
	CAPubs           []*x509.Certificate
	ExtraCertsIn     []*x509.Certificate

	// ErrorQueue accumulates non-fatal diagnostics recorded while
	// working through candidates or retries during the transaction
	// (e.g. each sender-certificate candidate verify.Verify rejects
	// before finding one that validates). It is reset at the start of
	// every transaction and is meant to be drained and reported
	// alongside the terminal error when the transaction ultimately
	// fails, not inspected mid-flight.
	ErrorQueue status.Queue

	ImplicitConfirm           bool
	DisableConfirm            bool
	UnprotectedSend           bool
	UnprotectedErrors         bool
	IgnoreKeyUsage            bool
	PermitTAInExtraCertsForIR bool

	GenMItems []message.InfoTypeAndValue
}

// Policy is a certificate-policy OID with its criticality.
type Policy struct {
	OID       []int
	Critical  bool
}

// New returns a zero Context with its trust-cert cache initialized.
func New() *Context {
	return &Context{
		validatedCache: gocache.New(5*time.Minute, 10*time.Minute),
		MsgTimeout:     120 * time.Second,
	}
}

// SetOption implements the enumerated option table: a single dispatch
// point for every boolean/integer setting instead of one setter method
// per option.
func (c *Context) SetOption(opt Option, value int) error {
	switch opt {
	case ImplicitConfirm:
		c.ImplicitConfirm = value != 0
	case DisableConfirm:
		c.DisableConfirm = value != 0
	case UnprotectedSend:
		c.UnprotectedSend = value != 0
	case UnprotectedErrors:
		c.UnprotectedErrors = value != 0
	case ValidityDays:
		if value <= 0 {
			return ErrMissingArgument
		}
		c.ValidityDays = value
	case SubjectAltNameNoDefault:
		c.SANNoDefault = value != 0
	case SubjectAltNameCritical:
		c.SANCritical = value != 0
	case PoliciesCritical:
		c.PoliciesCritical = value != 0
	case IgnoreKeyUsage:
		c.IgnoreKeyUsage = value != 0
	case PoPOMethod:
		c.PoPMethod = PoPMethod(value)
	case DigestAlg:
		return serrors.New("digest alg must be set via SetDigestAlg")
	case MsgTimeout:
		c.MsgTimeout = time.Duration(value) * time.Second
	case TotalTimeout:
		c.TotalTimeout = time.Duration(value) * time.Second
	case PermitTAInExtraCertsForIR:
		c.PermitTAInExtraCertsForIR = value != 0
	case RevocationReason:
		c.RevocationReason = value
	default:
		return serrors.New("unrecognized option", "option", opt)
	}
	return nil
}

// SetDigestAlg sets the digest algorithm name (e.g. "SHA256", "SHA3-256").
func (c *Context) SetDigestAlg(name string) { c.DigestAlg = name }

// Set1ClientCertAndKey is a cloning setter: it duplicates the caller's
// pointers into the context without taking ownership (the caller retains
// responsibility for the values it passed in). Matches the CMP_CTX "1"
// naming convention for non-owning setters.
func (c *Context) Set1ClientCertAndKey(cert *x509.Certificate, key crypto.Signer) error {
	if cert == nil || key == nil {
		return ErrMissingArgument
	}
	c.ClientCert = cert
	c.ClientKey = key
	return nil
}

// Set0NewKey is a transferring-ownership setter: it takes the caller's key,
// which must not be reused by the caller afterwards. Matches the "0"
// naming convention.
func (c *Context) Set0NewKey(key crypto.Signer) {
	c.NewKey = key
}

// Set1SecretValue configures PBMAC credentials; the reference+secret value
// pair and (ClientCert, ClientKey) are mutually exclusive whenever
// UnprotectedSend is false.
func (c *Context) Set1SecretValue(reference, secret []byte) error {
	if len(secret) == 0 {
		return ErrMissingArgument
	}
	ref := make([]byte, len(reference))
	copy(ref, reference)
	sec := make([]byte, len(secret))
	copy(sec, secret)
	c.ReferenceValue = ref
	c.SecretValue = sec
	return nil
}

// SetReqExtensions fails with ErrMultipleSANSources when both a SAN list
// and a SubjectAlternativeName extension are supplied.
func (c *Context) SetReqExtensions(exts []pkix.Extension) error {
	hasSANExt := false
	for _, e := range exts {
		if e.Id.Equal(oidSubjectAltName) {
			hasSANExt = true
		}
	}
	if hasSANExt && len(c.SubjectAltNames) > 0 {
		return ErrMultipleSANSources
	}
	c.ReqExtensions = exts
	return nil
}

var oidSubjectAltName = []int{2, 5, 29, 17}

// BeginTransaction generates a fresh transactionID if none is set yet and
// snapshots end_time from TotalTimeout. Idempotent once a transaction ID
// already exists.
func (c *Context) BeginTransaction(now time.Time, randBytes func(int) ([]byte, error)) error {
	if c.TransactionID == nil {
		id, err := randBytes(16)
		if err != nil {
			return serrors.WrapStr("generating transactionID", err)
		}
		c.TransactionID = id
	}
	if c.TotalTimeout > 0 {
		c.endTime = now.Add(c.TotalTimeout)
	} else {
		c.endTime = time.Time{}
	}
	c.ErrorQueue = status.Queue{}
	return nil
}

// EndTime returns the deadline set by BeginTransaction, or the zero time if
// TotalTimeout is unbounded.
func (c *Context) EndTime() time.Time { return c.endTime }

// RemainingTime returns how long is left before EndTime, or a very large
// duration if unbounded.
func (c *Context) RemainingTime(now time.Time) time.Duration {
	if c.endTime.IsZero() {
		return time.Duration(1<<62 - 1)
	}
	return c.endTime.Sub(now)
}

// EndTransaction clears transaction-scoped state so the Context can be
// reused for a new transaction; nonces and the transaction ID die with
// the last response.
func (c *Context) EndTransaction() {
	c.TransactionID = nil
	c.LastSenderNonce = nil
	c.RecipNonce = nil
	c.LastStatusIsSet = false
}

// CachedServerCert returns the cert validated earlier in this transaction,
// if the TTL cache still holds it.
func (c *Context) CachedServerCert() *x509.Certificate {
	if c.validatedServerCert != nil {
		return c.validatedServerCert
	}
	if v, ok := c.validatedCache.Get("validated"); ok {
		cert := v.(*x509.Certificate)
		c.validatedServerCert = cert
		return cert
	}
	return nil
}

// CacheValidatedServerCert stores cert as the transaction's validated
// server cert, created at the first successful signature validation.
func (c *Context) CacheValidatedServerCert(cert *x509.Certificate) {
	c.validatedServerCert = cert
	c.validatedCache.Set("validated", cert, gocache.DefaultExpiration)
}

// InvalidateValidatedServerCert drops the cached cert once its
// acceptability check next fails.
func (c *Context) InvalidateValidatedServerCert() {
	c.validatedServerCert = nil
	c.validatedCache.Delete("validated")
}
