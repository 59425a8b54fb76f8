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

// Command gocmp drives CMP (RFC 4210) enrollment, revocation, and general
// message exchanges against a CA or RA, one subcommand per PKIBody type.
package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	bindViper(v)

	root := &cobra.Command{
		Use:          "gocmp",
		Short:        "CMP client",
		Long:         "gocmp sends CMP (RFC 4210) requests to a CA or RA and reports the outcome.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return applyEnvOverrides(cmd, v)
		},
	}
	root.AddCommand(
		newIRCmd(),
		newCRCmd(),
		newKURCmd(),
		newP10CRCmd(),
		newRRCmd(),
		newGENMCmd(),
	)
	return root
}

// applyEnvOverrides lets any flag left at its default be set from a
// GOCMP_<FLAG_NAME> environment variable, so credentials in particular need
// not be passed as plaintext command-line arguments.
func applyEnvOverrides(cmd *cobra.Command, v *viper.Viper) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	var firstErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) || firstErr != nil {
			return
		}
		if err := cmd.Flags().Set(f.Name, v.GetString(f.Name)); err != nil {
			firstErr = err
		}
	})
	return firstErr
}
