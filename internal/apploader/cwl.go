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
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/crim-ca/weaver/pkg/ogcerrors"
	"github.com/crim-ca/weaver/pkg/process"
)

// rawRequirement is one entry of an AP/CWL document's `requirements` or
// `hints` list.
type rawRequirement struct {
	Class      string            `json:"class" yaml:"class"`
	DockerPull string            `json:"dockerPull,omitempty" yaml:"dockerPull,omitempty"`
	ProcessID  string            `json:"process,omitempty" yaml:"process,omitempty"`
	ProviderID string            `json:"provider,omitempty" yaml:"provider,omitempty"`
	ProviderURL string           `json:"url,omitempty" yaml:"url,omitempty"`
	EnvDef     map[string]string `json:"envDef,omitempty" yaml:"envDef,omitempty"`
}

// rawIO is one entry of an AP/CWL document's `inputs` or `outputs` map.
type rawIO struct {
	Type      string         `json:"type" yaml:"type"`
	Title     string         `json:"title,omitempty" yaml:"title,omitempty"`
	Abstract  string         `json:"doc,omitempty" yaml:"doc,omitempty"`
	Format    []string       `json:"format,omitempty" yaml:"format,omitempty"`
	MinOccurs *int           `json:"minOccurs,omitempty" yaml:"minOccurs,omitempty"`
	MaxOccurs any            `json:"maxOccurs,omitempty" yaml:"maxOccurs,omitempty"` // int or "unbounded"
	Default   any            `json:"default,omitempty" yaml:"default,omitempty"`
	Symbols   []string       `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	Schema    map[string]any `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// rawStep is one entry of a Workflow-class document's `steps` map.
type rawStep struct {
	Run string            `json:"run" yaml:"run"`
	In  map[string]string `json:"in,omitempty" yaml:"in,omitempty"`
}

// rawPackage is the decoded, backend-agnostic shape of an AP/CWL
// document, an OAP process description, or a WPS-1/2 DescribeProcess
// document, before it is resolved into a process.Process.
type rawPackage struct {
	ID       string `json:"id" yaml:"id"`
	Version  string `json:"version,omitempty" yaml:"version,omitempty"`
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Class    string `json:"class,omitempty" yaml:"class,omitempty"`

	Requirements []rawRequirement `json:"requirements,omitempty" yaml:"requirements,omitempty"`
	Hints        []rawRequirement `json:"hints,omitempty" yaml:"hints,omitempty"`

	Inputs  map[string]rawIO  `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs map[string]rawIO  `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Steps   map[string]rawStep `json:"steps,omitempty" yaml:"steps,omitempty"`

	JobControlOptions  []string `json:"jobControlOptions,omitempty" yaml:"jobControlOptions,omitempty"`
	OutputTransmission []string `json:"outputTransmission,omitempty" yaml:"outputTransmission,omitempty"`
}

// decodeRawPackage parses body as JSON or YAML depending on kind.
func decodeRawPackage(body []byte, kind format) (*rawPackage, error) {
	raw := &rawPackage{}
	var err error
	switch kind {
	case formatJSON:
		err = json.Unmarshal(body, raw)
	case formatYAML:
		err = yaml.Unmarshal(body, raw)
	default:
		return nil, &ogcerrors.ValidationError{Message: fmt.Sprintf("unsupported document encoding %d", kind)}
	}
	if err != nil {
		return nil, &ogcerrors.ValidationError{Message: "malformed Application Package document", Suggestion: err.Error()}
	}
	return raw, nil
}

func toInputDefs(inputs map[string]rawIO) []process.InputDef {
	ids := sortedKeys(inputs)
	defs := make([]process.InputDef, 0, len(ids))
	for _, id := range ids {
		io := inputs[id]
		defs = append(defs, process.InputDef{
			ID:        id,
			Title:     io.Title,
			Abstract:  io.Abstract,
			Type:      resolveIOType(io),
			MimeTypes: io.Format,
			MinOccurs: minOccurs(io),
			MaxOccurs: maxOccurs(io),
			Default:   io.Default,
			Schema:    ioSchema(io),
		})
	}
	return defs
}

func toOutputDefs(outputs map[string]rawIO) []process.OutputDef {
	ids := sortedKeys(outputs)
	defs := make([]process.OutputDef, 0, len(ids))
	for _, id := range ids {
		io := outputs[id]
		defs = append(defs, process.OutputDef{
			ID:        id,
			Title:     io.Title,
			Abstract:  io.Abstract,
			Type:      resolveIOType(io),
			MimeTypes: io.Format,
			Schema:    ioSchema(io),
		})
	}
	return defs
}

func resolveIOType(io rawIO) string {
	if len(io.Symbols) > 0 {
		return "enum"
	}
	if io.Type != "" {
		return io.Type
	}
	return "string"
}

func ioSchema(io rawIO) map[string]any {
	if len(io.Symbols) == 0 {
		return io.Schema
	}
	schema := map[string]any{}
	for k, v := range io.Schema {
		schema[k] = v
	}
	schema["symbols"] = io.Symbols
	return schema
}

func minOccurs(io rawIO) int {
	if io.MinOccurs != nil {
		return *io.MinOccurs
	}
	return 1
}

func maxOccurs(io rawIO) int {
	switch v := io.MaxOccurs.(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if v == "unbounded" {
			return 0
		}
	}
	return 1
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Go maps don't preserve insertion order; a stable order still
	// matters for reproducible I/O listings.
	sort.Strings(keys)
	return keys
}
