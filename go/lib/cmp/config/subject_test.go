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
)

func TestParseSubjectTemplateValid(t *testing.T) {
	vars, err := ParseSubjectTemplate([]byte(`{"common_name": "lab client", "country": "CH"}`))
	require.NoError(t, err)
	require.Equal(t, "lab client", vars.CommonName)
	require.Equal(t, "CH", vars.Country)
}

func TestParseSubjectTemplateRequiresCommonName(t *testing.T) {
	_, err := ParseSubjectTemplate([]byte(`{"country": "CH"}`))
	require.ErrorIs(t, err, ErrSubjectSchemaViolation)
}

func TestParseSubjectTemplateRejectsUnknownField(t *testing.T) {
	_, err := ParseSubjectTemplate([]byte(`{"common_name": "x", "not_a_field": "y"}`))
	require.ErrorIs(t, err, ErrSubjectSchemaViolation)
}

func TestSubjectVarsToPKIXName(t *testing.T) {
	vars, err := ParseSubjectTemplate([]byte(`{"common_name": "lab client", "organization": "Acme"}`))
	require.NoError(t, err)

	name := vars.ToPKIXName()
	require.Equal(t, "lab client", name.CommonName)
	require.Equal(t, []string{"Acme"}, name.Organization)
	require.Empty(t, name.Locality)
}
