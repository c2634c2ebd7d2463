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
	"encoding/base64"

	"github.com/crim-ca/weaver/pkg/iovalue"
	"github.com/crim-ca/weaver/pkg/process"
)

// ContentReader retrieves the bytes behind a file reference, for inlining
// into a value-keyed result. Callers wire this to the object store or
// local filesystem backing the job's work directory; RenderResults falls
// back to a link-keyed shape when read is nil or returns an error.
type ContentReader func(href string) ([]byte, error)

// RenderResults builds the OGC API - Processes results document for a
// completed job's outputs: one entry per output id, each either
// value-keyed (`{"value": ...}`, literals inlined, files base64-inlined
// via read) or link-keyed (`{"href": ..., "type": ...}`), selected per
// output by transmission[id] ("value" is the default). Directories are
// always rendered link-keyed, whatever the transmission mode.
func RenderResults(proc *process.Process, results *iovalue.Set, transmission map[string]string, read ContentReader) (map[string]any, error) {
	doc := make(map[string]any, len(proc.Outputs))
	for _, def := range proc.Outputs {
		values, err := results.Get(def.ID)
		if err != nil {
			continue // output wasn't produced by this run (e.g. conditional step)
		}
		mode := transmission[def.ID]
		if mode == "" {
			mode = "value"
		}

		if len(values) == 1 {
			rendered, err := renderOne(values[0], mode, read)
			if err != nil {
				return nil, err
			}
			doc[def.ID] = rendered
			continue
		}

		items := make([]any, 0, len(values))
		for _, v := range values {
			rendered, err := renderOne(v, mode, read)
			if err != nil {
				return nil, err
			}
			items = append(items, rendered)
		}
		doc[def.ID] = items
	}
	return doc, nil
}

func renderOne(v iovalue.Value, mode string, read ContentReader) (any, error) {
	switch v.Kind {
	case iovalue.KindLiteral:
		return map[string]any{"value": v.Literal.Value}, nil
	case iovalue.KindFileRef:
		return renderFile(v.File, mode, read)
	case iovalue.KindDirRef:
		return map[string]any{"href": v.Dir.HRef}, nil
	case iovalue.KindBBox:
		doc := map[string]any{"value": map[string]any{"bbox": v.BBox.Values}}
		if v.BBox.CRS != "" {
			doc["value"].(map[string]any)["crs"] = v.BBox.CRS
		}
		return doc, nil
	case iovalue.KindArray:
		items := make([]any, 0, len(v.Array.Items))
		for _, item := range v.Array.Items {
			rendered, err := renderOne(item, mode, read)
			if err != nil {
				return nil, err
			}
			items = append(items, rendered)
		}
		return items, nil
	default:
		return nil, nil
	}
}

func renderFile(f iovalue.FileRef, mode string, read ContentReader) (any, error) {
	if mode != "value" || read == nil {
		doc := map[string]any{"href": f.HRef}
		if f.MimeType != "" {
			doc["type"] = f.MimeType
		}
		return doc, nil
	}

	data, err := read(f.HRef)
	if err != nil {
		// Fall back to a link-keyed shape rather than failing the whole
		// results document over one unreadable output.
		doc := map[string]any{"href": f.HRef}
		if f.MimeType != "" {
			doc["type"] = f.MimeType
		}
		return doc, nil
	}
	doc := map[string]any{"value": base64.StdEncoding.EncodeToString(data)}
	if f.MimeType != "" {
		doc["type"] = f.MimeType
	}
	return doc, nil
}
