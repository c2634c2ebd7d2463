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

package engine

import (
	"fmt"

	"github.com/crim-ca/weaver/pkg/iovalue"
	"github.com/crim-ca/weaver/pkg/process"
)

// toRawInputs flattens a job's typed input Set into the plain Go values
// (string hrefs, literals, maps, slices) every dispatch backend — the
// container runtime, the builtin registry, and the remote Dispatchers —
// already expects, mirroring ioconv.ParseInputs run in reverse.
func toRawInputs(set *iovalue.Set) map[string]any {
	if set == nil {
		return map[string]any{}
	}
	raw := make(map[string]any, set.Len())
	for _, id := range set.IDs() {
		values, err := set.Get(id)
		if err != nil {
			continue
		}
		if len(values) == 1 {
			raw[id] = rawOne(values[0])
			continue
		}
		items := make([]any, 0, len(values))
		for _, v := range values {
			items = append(items, rawOne(v))
		}
		raw[id] = items
	}
	return raw
}

func rawOne(v iovalue.Value) any {
	switch v.Kind {
	case iovalue.KindLiteral:
		return v.Literal.Value
	case iovalue.KindFileRef:
		return v.File.HRef
	case iovalue.KindDirRef:
		return v.Dir.HRef
	case iovalue.KindBBox:
		doc := map[string]any{"bbox": v.BBox.Values}
		if v.BBox.CRS != "" {
			doc["crs"] = v.BBox.CRS
		}
		return doc
	case iovalue.KindArray:
		items := make([]any, 0, len(v.Array.Items))
		for _, item := range v.Array.Items {
			items = append(items, rawOne(item))
		}
		return items
	default:
		return nil
	}
}

// fromRawOutputs converts a dispatch backend's raw output map (local file
// paths for Docker/Builtin results already moved into durable storage, or
// hrefs for remote/workflow results) back into a typed Set, guided by
// proc's declared output types.
func fromRawOutputs(proc *process.Process, raw map[string]any) (*iovalue.Set, error) {
	set := iovalue.NewSet()
	for _, def := range proc.Outputs {
		value, ok := raw[def.ID]
		if !ok {
			continue
		}
		v, err := rawToValue(def, value)
		if err != nil {
			return nil, fmt.Errorf("engine: output %q: %w", def.ID, err)
		}
		set.Put(def.ID, v)
	}
	return set, nil
}

func rawToValue(def process.OutputDef, raw any) (iovalue.Value, error) {
	if items, ok := raw.([]any); ok {
		array := make([]iovalue.Value, 0, len(items))
		for _, item := range items {
			v, err := rawToValue(def, item)
			if err != nil {
				return iovalue.Value{}, err
			}
			array = append(array, v)
		}
		return iovalue.NewArray(array...), nil
	}

	switch def.Type {
	case "file":
		href, ok := raw.(string)
		if !ok {
			return iovalue.Value{}, fmt.Errorf("expected a file href, got %T", raw)
		}
		mimeType := ""
		if len(def.MimeTypes) > 0 {
			mimeType = def.MimeTypes[0]
		}
		return iovalue.NewFileRef(href, mimeType), nil
	case "directory":
		href, ok := raw.(string)
		if !ok {
			return iovalue.Value{}, fmt.Errorf("expected a directory href, got %T", raw)
		}
		return iovalue.NewDirRef(href), nil
	case "bbox":
		doc, ok := raw.(map[string]any)
		if !ok {
			return iovalue.Value{}, fmt.Errorf("expected a bbox object, got %T", raw)
		}
		values, _ := doc["bbox"].([]float64)
		crs, _ := doc["crs"].(string)
		return iovalue.NewBBox(values, crs), nil
	default:
		return iovalue.NewLiteral(def.Type, raw), nil
	}
}
