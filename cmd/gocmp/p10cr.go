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
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anapaya/gocmp/go/lib/cmp/message"
)

func newP10CRCmd() *cobra.Command {
	var flags commonFlags
	var csrFile, outFile string
	cmd := &cobra.Command{
		Use:   "p10cr",
		Short: "Wrap a PKCS#10 CSR in a CMP request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, transfer, err := buildContext(cmd.Context(), &flags)
			if err != nil {
				return err
			}
			csrDER, err := loadCSR(csrFile)
			if err != nil {
				return err
			}

			printer := newStatusPrinter(flags.noColor)
			printer.Waiting(fmt.Sprintf("sending %s request to %s", message.P10CR, flags.server))

			driver := newDriver(transfer)
			result, err := driver.ExecP10CR(cmd.Context(), ctx, csrDER)
			if err != nil {
				printer.Rejected(err.Error())
				return err
			}
			printer.Accepted(fmt.Sprintf("issued certificate serial %s", result.Cert.SerialNumber))
			return writeCertificate(outFile, result.Cert)
		},
	}
	addCommonFlags(cmd.Flags(), &flags)
	cmd.Flags().StringVar(&csrFile, "csr", "", "PKCS#10 certificate request file (PEM)")
	cmd.Flags().StringVar(&outFile, "out", "", "where to write the issued certificate (PEM); defaults to stdout")
	return cmd
}

func loadCSR(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	return block.Bytes, nil
}
