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
	"encoding/asn1"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anapaya/gocmp/go/lib/cmp/message"
)

func newGENMCmd() *cobra.Command {
	var flags commonFlags
	var infoTypes []string
	cmd := &cobra.Command{
		Use:   "genm",
		Short: "Send a general message carrying one or more InfoTypeAndValue OIDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, transfer, err := buildContext(cmd.Context(), &flags)
			if err != nil {
				return err
			}
			items, err := parseInfoTypes(infoTypes)
			if err != nil {
				return err
			}

			printer := newStatusPrinter(flags.noColor)
			printer.Waiting(fmt.Sprintf("sending %s request to %s", message.GenM, flags.server))

			driver := newDriver(transfer)
			reply, err := driver.ExecGENM(cmd.Context(), ctx, items)
			if err != nil {
				printer.Rejected(err.Error())
				return err
			}
			printer.Accepted(fmt.Sprintf("received %d InfoTypeAndValue item(s) in genp", len(reply)))
			for _, item := range reply {
				fmt.Println(item.InfoType.String())
			}
			return nil
		},
	}
	addCommonFlags(cmd.Flags(), &flags)
	cmd.Flags().StringSliceVar(&infoTypes, "info-type", nil, "OID to request, repeatable")
	return cmd
}

func parseInfoTypes(oids []string) ([]message.InfoTypeAndValue, error) {
	items := make([]message.InfoTypeAndValue, 0, len(oids))
	for _, s := range oids {
		parts := strings.Split(s, ".")
		oid := make(asn1.ObjectIdentifier, len(parts))
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("invalid OID %q: %w", s, err)
			}
			oid[i] = n
		}
		items = append(items, message.InfoTypeAndValue{InfoType: oid})
	}
	return items, nil
}
