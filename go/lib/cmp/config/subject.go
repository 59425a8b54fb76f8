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
	"crypto/x509/pkix"
	"encoding/json"

	"github.com/xeipuuv/gojsonschema"

	"github.com/anapaya/gocmp/go/lib/serrors"
)

// subjectSchema is the JSON schema a subject-template file must satisfy
// before it is turned into a pkix.Name. Configurable fields:
//
//	{
//	  "common_name": "lab client certificate",
//	  "country": "CH"
//	}
const subjectSchema = `
{
  "type": "object",
  "properties": {
    "common_name":         { "type": "string" },
    "country":             { "type": "string" },
    "locality":            { "type": "string" },
    "organization":        { "type": "string" },
    "organizational_unit": { "type": "string" },
    "postal_code":         { "type": "string" },
    "province":            { "type": "string" },
    "serial_number":       { "type": "string" },
    "street_address":      { "type": "string" }
  },
  "required": ["common_name"],
  "additionalProperties": false
}
`

var ErrSubjectSchemaViolation = serrors.New("subject template fails schema validation")

// SubjectVars is the decoded, schema-validated form of a subject-template
// file, one field per pkix.Name attribute this package fills in.
type SubjectVars struct {
	CommonName         string `json:"common_name,omitempty"`
	Country            string `json:"country,omitempty"`
	Locality           string `json:"locality,omitempty"`
	Organization       string `json:"organization,omitempty"`
	OrganizationalUnit string `json:"organizational_unit,omitempty"`
	PostalCode         string `json:"postal_code,omitempty"`
	Province           string `json:"province,omitempty"`
	SerialNumber       string `json:"serial_number,omitempty"`
	StreetAddress      string `json:"street_address,omitempty"`
}

// ParseSubjectTemplate validates raw JSON against subjectSchema and decodes
// it into SubjectVars. Validation runs before decoding so an unexpected
// field or a wrong type is reported against the schema, not surfaced as an
// opaque json.Unmarshal error.
func ParseSubjectTemplate(raw []byte) (SubjectVars, error) {
	schemaLoader := gojsonschema.NewStringLoader(subjectSchema)
	docLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return SubjectVars{}, serrors.WrapStr("running schema validation", err)
	}
	if !result.Valid() {
		var reasons []string
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return SubjectVars{}, serrors.WithCtx(ErrSubjectSchemaViolation, "reasons", reasons)
	}

	var vars SubjectVars
	if err := json.Unmarshal(raw, &vars); err != nil {
		return SubjectVars{}, serrors.WrapStr("decoding subject template", err)
	}
	return vars, nil
}

// ToPKIXName converts validated SubjectVars into a pkix.Name, the form the
// CMP context consumes for its CertTemplate subject field.
func (v SubjectVars) ToPKIXName() pkix.Name {
	name := pkix.Name{
		CommonName:         v.CommonName,
		SerialNumber:       v.SerialNumber,
		Locality:           nonEmpty(v.Locality),
		Organization:       nonEmpty(v.Organization),
		OrganizationalUnit: nonEmpty(v.OrganizationalUnit),
		PostalCode:         nonEmpty(v.PostalCode),
		Province:           nonEmpty(v.Province),
		StreetAddress:      nonEmpty(v.StreetAddress),
		Country:            nonEmpty(v.Country),
	}
	return name
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
