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

package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	gocontext "context"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anapaya/gocmp/go/lib/cmp/config"
	cmpcontext "github.com/anapaya/gocmp/go/lib/cmp/context"
	"github.com/anapaya/gocmp/go/lib/cmp/session"
	"github.com/anapaya/gocmp/go/lib/cmp/transport"
	"github.com/anapaya/gocmp/go/lib/log"
	"github.com/anapaya/gocmp/go/lib/serrors"
)

// commonFlags is shared by every subcommand, mirroring the flag layout of
// a CSR-renewal command: key/transport cert/CA cert/server/reference/
// secret, plus this engine's own secret-profile and extension-merge files.
type commonFlags struct {
	keyFile       string
	certFile      string
	caCertFile    string
	server        string
	quic          bool
	reference     string
	secret        string
	secretProfile string
	secretsFile   string
	extensionFile string
	templateFile  string
	timeout       time.Duration
	totalTimeout  time.Duration
	logLevel      string
	noColor       bool
}

func addCommonFlags(fs *pflag.FlagSet, f *commonFlags) {
	fs.StringVar(&f.keyFile, "key", "", "private key file (PEM, used to sign the request and/or as the client cert key)")
	fs.StringVar(&f.certFile, "cert", "", "client certificate file (PEM, used for signature protection)")
	fs.StringVar(&f.caCertFile, "cacert", "", "trusted CA certificate file (PEM, used to verify the CA's responses)")
	fs.StringVar(&f.server, "server", "", "CMP server address, host:port")
	fs.BoolVar(&f.quic, "quic", false, "use the QUIC-stream transport instead of HTTP")
	fs.StringVar(&f.reference, "ref", "", "PBMAC reference value (mutually exclusive with --cert)")
	fs.StringVar(&f.secret, "secret", "", "PBMAC shared secret, UTF-8 (mutually exclusive with --cert)")
	fs.StringVar(&f.secretProfile, "secret-profile", "", "named entry in --secrets-file to use instead of --ref/--secret")
	fs.StringVar(&f.secretsFile, "secrets-file", "", "TOML file of named MAC secret profiles")
	fs.StringVar(&f.extensionFile, "extensions", "", "YAML file of CertTemplate extensions to merge in")
	fs.StringVar(&f.templateFile, "template", "", "JSON subject-template file")
	fs.DurationVar(&f.timeout, "timeout", 30*time.Second, "per-round-trip timeout")
	fs.DurationVar(&f.totalTimeout, "total-timeout", 5*time.Minute, "total transaction timeout, including polling")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error, crit")
	fs.BoolVar(&f.noColor, "no-color", false, "disable colored status output even on a TTY")
}

// buildContext turns commonFlags into a ready *context.Context and a
// transport.Transfer, applying viper-bound environment overrides first.
func buildContext(goCtx gocontext.Context, f *commonFlags) (*cmpcontext.Context, transport.Transfer, error) {
	log.Setup(log.Config{Console: log.ConsoleConfig{Level: f.logLevel}})

	ctx := cmpcontext.New()
	ctx.MsgTimeout = f.timeout
	ctx.TotalTimeout = f.totalTimeout

	if f.caCertFile != "" {
		roots, err := loadCertPool(f.caCertFile)
		if err != nil {
			return nil, nil, serrors.WrapStr("loading CA cert", err)
		}
		ctx.TrustedStore = cmpcontext.NewTrustStore(roots)
	} else {
		ctx.TrustedStore = cmpcontext.NewTrustStore(nil)
	}

	if err := applyCredentials(ctx, f); err != nil {
		return nil, nil, err
	}
	if err := applyTemplate(ctx, f); err != nil {
		return nil, nil, err
	}

	transfer, err := buildTransfer(goCtx, f)
	if err != nil {
		return nil, nil, err
	}
	return ctx, transfer, nil
}

func applyCredentials(ctx *cmpcontext.Context, f *commonFlags) error {
	switch {
	case f.secretProfile != "":
		if f.secretsFile == "" {
			return serrors.New("--secret-profile requires --secrets-file")
		}
		profiles, err := config.LoadSecretProfiles(f.secretsFile)
		if err != nil {
			return err
		}
		return config.SelectSecretProfile(ctx, profiles, f.secretProfile)
	case f.secret != "":
		return ctx.Set1SecretValue([]byte(f.reference), []byte(f.secret))
	case f.keyFile != "" && f.certFile != "":
		cert, key, err := loadCertAndKey(f.certFile, f.keyFile)
		if err != nil {
			return err
		}
		return ctx.Set1ClientCertAndKey(cert, key)
	default:
		return serrors.New("no credentials configured: supply --secret, --secret-profile, or --cert/--key")
	}
}

func applyTemplate(ctx *cmpcontext.Context, f *commonFlags) error {
	if f.templateFile != "" {
		raw, err := os.ReadFile(f.templateFile)
		if err != nil {
			return serrors.WrapStr("reading subject template", err, "path", f.templateFile)
		}
		vars, err := config.ParseSubjectTemplate(raw)
		if err != nil {
			return err
		}
		ctx.Subject = vars.ToPKIXName()
	}
	if f.extensionFile != "" {
		exts, err := config.LoadExtensionFile(f.extensionFile)
		if err != nil {
			return err
		}
		if err := ctx.SetReqExtensions(exts); err != nil {
			return err
		}
	}
	return nil
}

func buildTransfer(goCtx gocontext.Context, f *commonFlags) (transport.Transfer, error) {
	if f.server == "" {
		return nil, serrors.New("--server is required")
	}
	if f.quic {
		tlsConfig := &tls.Config{}
		return transport.NewQUICTransfer(goCtx, f.server, tlsConfig)
	}
	return transport.NewHTTPTransfer(fmt.Sprintf("http://%s/cmp", f.server), nil), nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, serrors.New("no certificates found", "path", path)
	}
	return pool, nil
}

func loadCertAndKey(certPath, keyPath string) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	certRaw, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, err
	}
	block, _ := pem.Decode(certRaw)
	if block == nil {
		return nil, nil, serrors.New("no PEM block found", "path", certPath)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, nil, serrors.WrapStr("parsing client certificate", err)
	}

	keyRaw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, err
	}
	keyBlock, _ := pem.Decode(keyRaw)
	if keyBlock == nil {
		return nil, nil, serrors.New("no PEM block found", "path", keyPath)
	}
	key, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, serrors.WrapStr("parsing client key", err)
	}
	return cert, key, nil
}

// generateKey creates a fresh P-256 key, used by ir/cr/kur when no
// --new-key file is supplied.
func generateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

func newDriver(transfer transport.Transfer) *session.Driver {
	return &session.Driver{Transfer: transfer}
}

// statusPrinter renders accepted/rejected/waiting lines, colored when
// stdout is a TTY and --no-color was not given.
type statusPrinter struct {
	enabled bool
}

func newStatusPrinter(noColor bool) *statusPrinter {
	return &statusPrinter{enabled: !noColor && isatty.IsTerminal(os.Stdout.Fd())}
}

func (p *statusPrinter) Accepted(msg string) {
	p.printf(color.FgGreen, "ACCEPTED", msg)
}

func (p *statusPrinter) Rejected(msg string) {
	p.printf(color.FgRed, "REJECTED", msg)
}

func (p *statusPrinter) Waiting(msg string) {
	p.printf(color.FgYellow, "WAITING", msg)
}

func (p *statusPrinter) printf(attr color.Attribute, label, msg string) {
	if !p.enabled {
		fmt.Printf("[%s] %s\n", label, msg)
		return
	}
	c := color.New(attr, color.Bold)
	c.Printf("[%s] ", label)
	fmt.Println(msg)
}

// bindViper lets flags be overridden by GOCMP_* environment variables and
// an optional config file, loaded before cobra parses the command line.
func bindViper(v *viper.Viper) {
	v.SetEnvPrefix("GOCMP")
	v.AutomaticEnv()
}
