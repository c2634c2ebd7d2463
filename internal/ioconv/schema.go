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

import "github.com/crim-ca/weaver/pkg/process"

// InputSchema renders an AP InputDef as an OGC API - Processes JSON Schema
// input description, following the bidirectional AP/OAP table: literal
// types map to a schema `type`, enum symbols become `enum`, File/Directory
// become a string schema carrying `contentMediaType`, and maxOccurs > 1
// wraps the element schema in an `array` schema.
func InputSchema(def process.InputDef) map[string]any {
	schema := map[string]any{
		"title":       def.Title,
		"description": def.Abstract,
		"minOccurs":   def.MinOccurs,
	}
	if def.MaxOccurs != 1 {
		schema["maxOccurs"] = occursJSON(def.MaxOccurs)
	}
	elem := elementSchema(def.Type, def.MimeTypes, def.Schema)
	if def.Default != nil {
		elem["default"] = def.Default
	}
	if def.MaxOccurs != 1 {
		schema["schema"] = map[string]any{"type": "array", "items": elem}
	} else {
		schema["schema"] = elem
	}
	return schema
}

// OutputSchema renders an AP OutputDef as an OGC API - Processes JSON
// Schema output description.
func OutputSchema(def process.OutputDef) map[string]any {
	return map[string]any{
		"title":       def.Title,
		"description": def.Abstract,
		"schema":      elementSchema(def.Type, def.MimeTypes, def.Schema),
	}
}

func elementSchema(ioType string, mimeTypes []string, extra map[string]any) map[string]any {
	switch ioType {
	case "file":
		schema := map[string]any{"type": "string", "format": "binary"}
		if len(mimeTypes) > 0 {
			schema["contentMediaType"] = mimeTypes[0]
		}
		return schema
	case "directory":
		return map[string]any{"type": "string", "contentMediaType": "application/directory"}
	case "bbox":
		return map[string]any{"type": "object", "format": "ogc-bbox"}
	case "enum":
		schema := map[string]any{"type": "string"}
		if symbols, ok := extra["symbols"]; ok {
			schema["enum"] = symbols
		}
		return schema
	case "integer":
		return map[string]any{"type": "integer"}
	case "float":
		return map[string]any{"type": "number"}
	case "boolean":
		return map[string]any{"type": "boolean"}
	default:
		return map[string]any{"type": "string"}
	}
}

func occursJSON(maxOccurs int) any {
	if maxOccurs == 0 {
		return "unbounded"
	}
	return maxOccurs
}
