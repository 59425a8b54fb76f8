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
	gocontext "context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anapaya/gocmp/go/lib/cmp/message"
	"github.com/anapaya/gocmp/go/lib/cmp/session"
)

// enrollFlags augments commonFlags with the bits specific to an
// ir/cr/kur request: where the issued certificate is written and, for
// kur, which outstanding certificate is being updated.
type enrollFlags struct {
	commonFlags
	outFile string
	oldCert string
}

func newEnrollCmd(use, short string, bodyType message.BodyType) *cobra.Command {
	var flags enrollFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnroll(cmd.Context(), &flags, bodyType)
		},
	}
	addCommonFlags(cmd.Flags(), &flags.commonFlags)
	cmd.Flags().StringVar(&flags.outFile, "out", "", "where to write the issued certificate (PEM); defaults to stdout")
	if bodyType == message.KUR {
		cmd.Flags().StringVar(&flags.oldCert, "old-cert", "", "certificate being updated (PEM)")
	}
	return cmd
}

func runEnroll(goCtx gocontext.Context, flags *enrollFlags, bodyType message.BodyType) error {
	ctx, transfer, err := buildContext(goCtx, &flags.commonFlags)
	if err != nil {
		return err
	}
	if bodyType == message.KUR {
		if flags.oldCert == "" {
			return fmt.Errorf("--old-cert is required for kur")
		}
		old, err := loadCertificate(flags.oldCert)
		if err != nil {
			return err
		}
		ctx.OldCert = old
	}

	key, err := generateKey()
	if err != nil {
		return err
	}
	ctx.Set0NewKey(key)

	printer := newStatusPrinter(flags.noColor)
	printer.Waiting(fmt.Sprintf("sending %s request to %s", bodyType, flags.server))

	driver := newDriver(transfer)
	params := message.CertRequestParams{
		Subject:      ctx.Subject,
		PublicKey:    key.Public(),
		ValidityDays: ctx.ValidityDays,
		ExtraExts:    ctx.ReqExtensions,
		POPSigner:    key,
	}

	var result *session.EnrollResult
	switch bodyType {
	case message.IR:
		result, err = driver.ExecIR(goCtx, ctx, params)
	case message.CR:
		result, err = driver.ExecCR(goCtx, ctx, params)
	case message.KUR:
		result, err = driver.ExecKUR(goCtx, ctx, params)
	default:
		return fmt.Errorf("unsupported enrollment body type %s", bodyType)
	}
	if err != nil {
		printer.Rejected(err.Error())
		return err
	}
	printer.Accepted(fmt.Sprintf("issued certificate serial %s", result.Cert.SerialNumber))
	return writeCertificate(flags.outFile, result.Cert)
}

func loadCertificate(path string) (*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	return x509.ParseCertificate(block.Bytes)
}

func writeCertificate(path string, cert *x509.Certificate) error {
	block := &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}
	if path == "" {
		return pem.Encode(os.Stdout, block)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pem.Encode(f, block)
}
