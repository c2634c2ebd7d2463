// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package apploader

import (
	"encoding/json"

	"github.com/crim-ca/weaver/pkg/ogcerrors"
)

// oapProcessDescription is the OGC API - Processes process description
// document shape needed to map a remote process's I/O onto a rawPackage.
type oapProcessDescription struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Description        string              `json:"description"`
	Keywords           []string            `json:"keywords"`
	JobControlOptions  []string            `json:"jobControlOptions"`
	OutputTransmission []string            `json:"outputTransmission"`
	Inputs             map[string]oapIO    `json:"inputs"`
	Outputs            map[string]oapIO    `json:"outputs"`
}

type oapIO struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	MinOccurs   *int       `json:"minOccurs"`
	MaxOccurs   any        `json:"maxOccurs"`
	Schema      oapSchema  `json:"schema"`
}

type oapSchema struct {
	Type             string         `json:"type"`
	Format           string         `json:"format"`
	ContentMediaType string         `json:"contentMediaType"`
	Enum             []string       `json:"enum"`
	Items            *oapSchema     `json:"items"`
	OneOf            []oapSchema    `json:"oneOf"`
	Default          any            `json:"default"`
}

// rawPackageFromOAPJSON maps an OGC API - Processes process description
// onto a rawPackage, using `schema.oneOf`/`enum`/`format` the same way
// WPS XML documents are mapped: a `format`/`contentMediaType`-bearing
// schema becomes a File; `enum` becomes symbols; an `array`-typed schema
// (or a top-level maxOccurs > 1) carries array cardinality.
func rawPackageFromOAPJSON(body []byte) (*rawPackage, error) {
	var doc oapProcessDescription
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &ogcerrors.ValidationError{
			Message:    "malformed OGC API process description document",
			Suggestion: err.Error(),
		}
	}
	if doc.ID == "" {
		return nil, &ogcerrors.ValidationError{Message: "OGC API process description declares no id"}
	}

	raw := &rawPackage{
		ID:                 doc.ID,
		Title:              doc.Title,
		Abstract:           doc.Description,
		Keywords:           doc.Keywords,
		JobControlOptions:  doc.JobControlOptions,
		OutputTransmission: doc.OutputTransmission,
		Inputs:             map[string]rawIO{},
		Outputs:            map[string]rawIO{},
	}
	for id, in := range doc.Inputs {
		raw.Inputs[id] = oapIOToRawIO(in, true)
	}
	for id, out := range doc.Outputs {
		raw.Outputs[id] = oapIOToRawIO(out, false)
	}
	return raw, nil
}

func oapIOToRawIO(in oapIO, isInput bool) rawIO {
	schema := in.Schema
	resolved := resolveOAPSchema(schema)

	io := rawIO{
		Title:    in.Title,
		Abstract: in.Description,
		Default:  schema.Default,
		Symbols:  resolved.Enum,
	}
	io.Type, io.Format = oapSchemaType(resolved)

	if isInput {
		min := 1
		if in.MinOccurs != nil {
			min = *in.MinOccurs
		}
		io.MinOccurs = &min
		io.MaxOccurs = in.MaxOccurs
		if resolved.Type == "array" && io.MaxOccurs == nil {
			io.MaxOccurs = "unbounded"
		}
	}
	return io
}

// resolveOAPSchema picks the first alternative of a `oneOf` schema,
// mirroring how weaver treats oneOf-wrapped literal/complex alternatives:
// the first alternative that declares a concrete type is authoritative.
func resolveOAPSchema(schema oapSchema) oapSchema {
	if len(schema.OneOf) == 0 {
		return schema
	}
	for _, alt := range schema.OneOf {
		if alt.Type != "" {
			return alt
		}
	}
	return schema.OneOf[0]
}

// oapSchemaType maps a resolved schema onto a rawIO type/format pair.
func oapSchemaType(schema oapSchema) (ioType string, formats []string) {
	if len(schema.Enum) > 0 {
		return "enum", nil
	}
	if schema.ContentMediaType != "" || schema.Format == "binary" {
		if schema.ContentMediaType != "" {
			formats = []string{schema.ContentMediaType}
		}
		return "file", formats
	}
	switch schema.Type {
	case "array":
		if schema.Items != nil {
			itemType, itemFormats := oapSchemaType(*schema.Items)
			return itemType, itemFormats
		}
		return "string", nil
	case "integer":
		return "integer", nil
	case "number":
		return "float", nil
	case "boolean":
		return "boolean", nil
	case "":
		return "string", nil
	default:
		return schema.Type, nil
	}
}
