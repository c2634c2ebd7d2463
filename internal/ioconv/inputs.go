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

package ioconv

import (
	"fmt"

	"github.com/crim-ca/weaver/pkg/iovalue"
	"github.com/crim-ca/weaver/pkg/ogcerrors"
	"github.com/crim-ca/weaver/pkg/process"
)

// ParseInputs decodes an OGC API Execute request's `inputs` object (already
// JSON-decoded into Go values: string/float64/bool/map[string]any/[]any)
// against proc's declared input definitions, producing a normalized Set.
// Missing required inputs (minOccurs > 0 with no declared default) fail
// InvalidParameterValue; inputs the AP doesn't declare are ignored, since
// the AP's input set is the contract (mirroring the I/O merge rule).
func ParseInputs(proc *process.Process, raw map[string]any) (*iovalue.Set, error) {
	set := iovalue.NewSet()
	for _, def := range proc.Inputs {
		val, present := raw[def.ID]
		if !present {
			if def.Default != nil {
				val = def.Default
				present = true
			} else if def.MinOccurs == 0 {
				continue
			} else {
				return nil, &ogcerrors.ValidationError{Field: def.ID, Message: "missing required input"}
			}
		}

		values, err := parseInputValue(def, val)
		if err != nil {
			return nil, err
		}
		set.Put(def.ID, values...)
	}
	return set, nil
}

func parseInputValue(def process.InputDef, raw any) ([]iovalue.Value, error) {
	if items, ok := raw.([]any); ok {
		if def.MaxOccurs == 1 {
			return nil, &ogcerrors.ValidationError{Field: def.ID, Message: "input does not accept multiple values"}
		}
		if def.MaxOccurs > 0 && len(items) > def.MaxOccurs {
			return nil, &ogcerrors.ValidationError{
				Field:   def.ID,
				Message: fmt.Sprintf("too many values: got %d, maxOccurs is %d", len(items), def.MaxOccurs),
			}
		}
		if len(items) < def.MinOccurs {
			return nil, &ogcerrors.ValidationError{
				Field:   def.ID,
				Message: fmt.Sprintf("too few values: got %d, minOccurs is %d", len(items), def.MinOccurs),
			}
		}
		values := make([]iovalue.Value, 0, len(items))
		for _, item := range items {
			v, err := convertOneInputValue(def, item)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return values, nil
	}

	v, err := convertOneInputValue(def, raw)
	if err != nil {
		return nil, err
	}
	return []iovalue.Value{v}, nil
}

func convertOneInputValue(def process.InputDef, raw any) (iovalue.Value, error) {
	switch def.Type {
	case "file":
		return convertFileInput(def, raw)
	case "directory":
		return convertDirInput(def, raw)
	case "bbox":
		return convertBBoxInput(def, raw)
	case "enum":
		v, err := promoteLiteral(def.ID, "string", raw)
		if err != nil {
			return iovalue.Value{}, err
		}
		s := v.(string)
		if !isAllowedSymbol(def.Schema, s) {
			return iovalue.Value{}, &ogcerrors.ValidationError{
				Field:   def.ID,
				Message: fmt.Sprintf("value %q is not one of the allowed symbols", s),
			}
		}
		return iovalue.NewLiteral("enum", s), nil
	default:
		v, err := promoteLiteral(def.ID, def.Type, raw)
		if err != nil {
			return iovalue.Value{}, err
		}
		return iovalue.NewLiteral(def.Type, v), nil
	}
}

func convertFileInput(def process.InputDef, raw any) (iovalue.Value, error) {
	switch v := raw.(type) {
	case string:
		return iovalue.NewFileRef(v, ""), nil
	case map[string]any:
		href, _ := v["href"].(string)
		if href == "" {
			return iovalue.Value{}, &ogcerrors.ValidationError{Field: def.ID, Message: "file input is missing href"}
		}
		mimeType, _ := v["type"].(string)
		return iovalue.NewFileRef(href, mimeType), nil
	default:
		return iovalue.Value{}, &ogcerrors.ValidationError{Field: def.ID, Message: "file input must be a href string or {href, type} object"}
	}
}

func convertDirInput(def process.InputDef, raw any) (iovalue.Value, error) {
	switch v := raw.(type) {
	case string:
		return iovalue.NewDirRef(v), nil
	case map[string]any:
		href, _ := v["href"].(string)
		if href == "" {
			return iovalue.Value{}, &ogcerrors.ValidationError{Field: def.ID, Message: "directory input is missing href"}
		}
		return iovalue.NewDirRef(href), nil
	default:
		return iovalue.Value{}, &ogcerrors.ValidationError{Field: def.ID, Message: "directory input must be a href string or {href} object"}
	}
}

func convertBBoxInput(def process.InputDef, raw any) (iovalue.Value, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return iovalue.Value{}, &ogcerrors.ValidationError{Field: def.ID, Message: "bbox input must be an object with a bbox array"}
	}
	rawBBox, ok := obj["bbox"].([]any)
	if !ok {
		return iovalue.Value{}, &ogcerrors.ValidationError{Field: def.ID, Message: "bbox input is missing a bbox array"}
	}
	values := make([]float64, 0, len(rawBBox))
	for _, elem := range rawBBox {
		f, ok := elem.(float64)
		if !ok {
			return iovalue.Value{}, &ogcerrors.ValidationError{Field: def.ID, Message: "bbox coordinates must be numeric"}
		}
		values = append(values, f)
	}
	crs, _ := obj["crs"].(string)
	return iovalue.NewBBox(values, crs), nil
}

func isAllowedSymbol(schema map[string]any, value string) bool {
	raw, ok := schema["symbols"]
	if !ok {
		return true // no declared symbol constraint to check against
	}
	switch symbols := raw.(type) {
	case []string:
		return containsString(symbols, value)
	case []any:
		for _, s := range symbols {
			if str, ok := s.(string); ok && str == value {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
