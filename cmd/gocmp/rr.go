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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anapaya/gocmp/go/lib/cmp/message"
)

func newRRCmd() *cobra.Command {
	var flags commonFlags
	var certFile string
	var reason int
	var includeSubjectAndKey bool
	cmd := &cobra.Command{
		Use:   "rr",
		Short: "Send a revocation request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, transfer, err := buildContext(cmd.Context(), &flags)
			if err != nil {
				return err
			}
			cert, err := loadCertificate(certFile)
			if err != nil {
				return err
			}

			printer := newStatusPrinter(flags.noColor)
			printer.Waiting(fmt.Sprintf("sending %s request to %s", message.RR, flags.server))

			driver := newDriver(transfer)
			result, err := driver.ExecRR(cmd.Context(), ctx, cert, includeSubjectAndKey, reason)
			if err != nil {
				printer.Rejected(err.Error())
				return err
			}
			printer.Accepted(fmt.Sprintf("revocation accepted, status %s", message.PKIStatus(result.Status.Status)))
			return nil
		},
	}
	addCommonFlags(cmd.Flags(), &flags)
	cmd.Flags().StringVar(&certFile, "cert-to-revoke", "", "certificate to revoke (PEM)")
	cmd.Flags().IntVar(&reason, "reason", 0, "CRLReason code (RFC 5280 §5.3.1), 0 = unspecified")
	cmd.Flags().BoolVar(&includeSubjectAndKey, "include-subject-and-key", false,
		"echo subject and public key in RevDetails.certDetails instead of issuer/serial alone")
	return cmd
}
