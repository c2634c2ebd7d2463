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

import "testing"

const sampleOAPDescription = `{
  "id": "buffer",
  "title": "Buffer a geometry",
  "description": "Buffers an input geometry by a distance.",
  "jobControlOptions": ["sync-execute", "async-execute"],
  "outputTransmission": ["value", "reference"],
  "inputs": {
    "distance": {
      "title": "Buffer distance",
      "schema": {"type": "number"}
    },
    "geometry": {
      "title": "Input geometry",
      "minOccurs": 1,
      "maxOccurs": 5,
      "schema": {"type": "string", "contentMediaType": "application/geo+json"}
    },
    "method": {
      "minOccurs": 0,
      "schema": {"type": "string", "enum": ["round", "flat"]}
    }
  },
  "outputs": {
    "result": {
      "title": "Buffered geometry",
      "schema": {"type": "string", "contentMediaType": "application/geo+json"}
    }
  }
}`

func TestRawPackageFromOAPJSON(t *testing.T) {
	raw, err := rawPackageFromOAPJSON([]byte(sampleOAPDescription))
	if err != nil {
		t.Fatalf("rawPackageFromOAPJSON() error = %v", err)
	}
	if raw.ID != "buffer" || raw.Title != "Buffer a geometry" {
		t.Fatalf("rawPackageFromOAPJSON() = %+v", raw)
	}

	distance := raw.Inputs["distance"]
	if distance.Type != "float" {
		t.Errorf("distance.Type = %q, want float", distance.Type)
	}

	geometry := raw.Inputs["geometry"]
	if geometry.Type != "file" {
		t.Errorf("geometry.Type = %q, want file", geometry.Type)
	}
	if maxOccurs(geometry) != 5 {
		t.Errorf("geometry maxOccurs = %d, want 5", maxOccurs(geometry))
	}

	method := raw.Inputs["method"]
	if minOccurs(method) != 0 {
		t.Errorf("method minOccurs = %d, want 0", minOccurs(method))
	}
	if len(method.Symbols) != 2 {
		t.Errorf("method.Symbols = %v, want 2 symbols", method.Symbols)
	}

	result := raw.Outputs["result"]
	if result.Type != "file" {
		t.Errorf("result.Type = %q, want file", result.Type)
	}
}

func TestRawPackageFromOAPJSONRejectsMissingID(t *testing.T) {
	_, err := rawPackageFromOAPJSON([]byte(`{"title":"no id"}`))
	if err == nil {
		t.Fatal("rawPackageFromOAPJSON() error = nil, want error for missing id")
	}
}

func TestOAPSchemaOneOfPicksConcreteAlternative(t *testing.T) {
	schema := oapSchema{OneOf: []oapSchema{{Type: ""}, {Type: "integer"}}}
	resolved := resolveOAPSchema(schema)
	if resolved.Type != "integer" {
		t.Errorf("resolveOAPSchema() = %+v, want type integer", resolved)
	}
}
