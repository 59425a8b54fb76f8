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
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("server", "", "")
	cmd.Flags().String("secret", "", "")
	return cmd
}

func TestApplyEnvOverridesFillsUnsetFlag(t *testing.T) {
	t.Setenv("GOCMP_SERVER", "ca.example.org:8080")
	v := viper.New()
	bindViper(v)

	cmd := newTestCommand()
	require.NoError(t, applyEnvOverrides(cmd, v))

	got, err := cmd.Flags().GetString("server")
	require.NoError(t, err)
	require.Equal(t, "ca.example.org:8080", got)
}

func TestApplyEnvOverridesDoesNotOverrideExplicitFlag(t *testing.T) {
	t.Setenv("GOCMP_SERVER", "env-server:8080")
	v := viper.New()
	bindViper(v)

	cmd := newTestCommand()
	require.NoError(t, cmd.Flags().Set("server", "cli-server:9090"))
	require.NoError(t, applyEnvOverrides(cmd, v))

	got, err := cmd.Flags().GetString("server")
	require.NoError(t, err)
	require.Equal(t, "cli-server:9090", got)
}

func TestNewRootCmdRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"ir", "cr", "kur", "p10cr", "rr", "genm"} {
		require.True(t, names[want], "missing subcommand %q", want)
	}
}
