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

// Package config turns human-facing configuration (CLI flags, viper-loaded
// files, environment) into a ready-to-use *context.Context: option-name
// lookup, MAC secret profiles, a CertTemplate extension-merge file, and
// subject-template validation.
package config

import (
	"github.com/iancoleman/strcase"

	"github.com/anapaya/gocmp/go/lib/cmp/context"
	"github.com/anapaya/gocmp/go/lib/serrors"
)

var ErrUnknownOption = serrors.New("unrecognized option name")

// optionNames lists every context.Option in declaration order; the
// snake_case form is derived from the Go constant name so there is exactly
// one place (this slice) to extend when context.Option grows.
var optionNames = []context.Option{
	context.ImplicitConfirm,
	context.DisableConfirm,
	context.UnprotectedSend,
	context.UnprotectedErrors,
	context.ValidityDays,
	context.SubjectAltNameNoDefault,
	context.SubjectAltNameCritical,
	context.PoliciesCritical,
	context.IgnoreKeyUsage,
	context.PoPOMethod,
	context.MsgTimeout,
	context.TotalTimeout,
	context.PermitTAInExtraCertsForIR,
	context.RevocationReason,
}

var optionConstantNames = map[context.Option]string{
	context.ImplicitConfirm:           "ImplicitConfirm",
	context.DisableConfirm:            "DisableConfirm",
	context.UnprotectedSend:           "UnprotectedSend",
	context.UnprotectedErrors:         "UnprotectedErrors",
	context.ValidityDays:              "ValidityDays",
	context.SubjectAltNameNoDefault:   "SubjectAltNameNoDefault",
	context.SubjectAltNameCritical:    "SubjectAltNameCritical",
	context.PoliciesCritical:          "PoliciesCritical",
	context.IgnoreKeyUsage:            "IgnoreKeyUsage",
	context.PoPOMethod:                "PoPOMethod",
	context.MsgTimeout:                "MsgTimeout",
	context.TotalTimeout:              "TotalTimeout",
	context.PermitTAInExtraCertsForIR: "PermitTAInExtraCertsForIR",
	context.RevocationReason:          "RevocationReason",
}

var nameToOption map[string]context.Option

func init() {
	nameToOption = make(map[string]context.Option, len(optionNames))
	for _, opt := range optionNames {
		nameToOption[strcase.ToSnake(optionConstantNames[opt])] = opt
	}
}

// OptionByName resolves a human-facing option name such as
// "implicit_confirm" (or "ImplicitConfirm"/"implicitConfirm" -- any casing
// strcase.ToSnake normalizes the same way) to its context.Option constant.
func OptionByName(name string) (context.Option, error) {
	opt, ok := nameToOption[strcase.ToSnake(name)]
	if !ok {
		return 0, serrors.WithCtx(ErrUnknownOption, "name", name)
	}
	return opt, nil
}

// SetByName looks up name via OptionByName and applies it to ctx.
func SetByName(ctx *context.Context, name string, value int) error {
	opt, err := OptionByName(name)
	if err != nil {
		return err
	}
	return ctx.SetOption(opt, value)
}
