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

package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anapaya/gocmp/go/lib/cmp/context"
)

func TestOptionByNameAcceptsSnakeAndCamelCase(t *testing.T) {
	for _, name := range []string{"implicit_confirm", "ImplicitConfirm", "implicitConfirm"} {
		opt, err := OptionByName(name)
		require.NoError(t, err, name)
		require.Equal(t, context.ImplicitConfirm, opt)
	}
}

func TestOptionByNameRejectsUnknown(t *testing.T) {
	_, err := OptionByName("not_a_real_option")
	require.ErrorIs(t, err, ErrUnknownOption)
}

func TestSetByNameAppliesOption(t *testing.T) {
	ctx := context.New()
	require.NoError(t, SetByName(ctx, "disable_confirm", 1))
	require.True(t, ctx.DisableConfirm)
}

func TestSetByNamePropagatesSetOptionError(t *testing.T) {
	ctx := context.New()
	err := SetByName(ctx, "validity_days", 0)
	require.Error(t, err)
}
