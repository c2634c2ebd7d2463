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
	"errors"
	"testing"

	"github.com/crim-ca/weaver/pkg/iovalue"
	"github.com/crim-ca/weaver/pkg/process"
)

func TestRenderResultsLiteralIsValueKeyed(t *testing.T) {
	proc := &process.Process{Outputs: []process.OutputDef{{ID: "count", Type: "integer"}}}
	results := iovalue.NewSet()
	results.Put("count", iovalue.NewLiteral("integer", int64(3)))

	doc, err := RenderResults(proc, results, nil, nil)
	if err != nil {
		t.Fatalf("RenderResults() error = %v", err)
	}
	entry, ok := doc["count"].(map[string]any)
	if !ok || entry["value"] != int64(3) {
		t.Errorf("doc[count] = %v", doc["count"])
	}
}

func TestRenderResultsFileDefaultsToLinkKeyed(t *testing.T) {
	proc := &process.Process{Outputs: []process.OutputDef{{ID: "raster", Type: "file"}}}
	results := iovalue.NewSet()
	results.Put("raster", iovalue.NewFileRef("https://store.example.com/raster.tif", "image/tiff"))

	doc, err := RenderResults(proc, results, nil, nil)
	if err != nil {
		t.Fatalf("RenderResults() error = %v", err)
	}
	entry := doc["raster"].(map[string]any)
	if entry["href"] != "https://store.example.com/raster.tif" || entry["type"] != "image/tiff" {
		t.Errorf("doc[raster] = %v", entry)
	}
}

func TestRenderResultsFileValueTransmissionInlinesContent(t *testing.T) {
	proc := &process.Process{Outputs: []process.OutputDef{{ID: "raster", Type: "file"}}}
	results := iovalue.NewSet()
	results.Put("raster", iovalue.NewFileRef("https://store.example.com/raster.tif", "image/tiff"))

	read := func(href string) ([]byte, error) { return []byte("bytes"), nil }
	doc, err := RenderResults(proc, results, map[string]string{"raster": "value"}, read)
	if err != nil {
		t.Fatalf("RenderResults() error = %v", err)
	}
	entry := doc["raster"].(map[string]any)
	if entry["value"] == nil {
		t.Errorf("doc[raster] = %v, want inlined value", entry)
	}
}

func TestRenderResultsFileValueTransmissionFallsBackOnReadError(t *testing.T) {
	proc := &process.Process{Outputs: []process.OutputDef{{ID: "raster", Type: "file"}}}
	results := iovalue.NewSet()
	results.Put("raster", iovalue.NewFileRef("https://store.example.com/raster.tif", "image/tiff"))

	read := func(href string) ([]byte, error) { return nil, errors.New("boom") }
	doc, err := RenderResults(proc, results, map[string]string{"raster": "value"}, read)
	if err != nil {
		t.Fatalf("RenderResults() error = %v", err)
	}
	entry := doc["raster"].(map[string]any)
	if entry["href"] == nil {
		t.Errorf("doc[raster] = %v, want link-keyed fallback", entry)
	}
}

func TestRenderResultsArrayOutput(t *testing.T) {
	proc := &process.Process{Outputs: []process.OutputDef{{ID: "tiles", Type: "file"}}}
	results := iovalue.NewSet()
	results.Put("tiles",
		iovalue.NewFileRef("https://store.example.com/a.tif", "image/tiff"),
		iovalue.NewFileRef("https://store.example.com/b.tif", "image/tiff"))

	doc, err := RenderResults(proc, results, nil, nil)
	if err != nil {
		t.Fatalf("RenderResults() error = %v", err)
	}
	items, ok := doc["tiles"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("doc[tiles] = %v, want 2-item array", doc["tiles"])
	}
}

func TestRenderResultsSkipsUnproducedOutputs(t *testing.T) {
	proc := &process.Process{Outputs: []process.OutputDef{{ID: "optional", Type: "file"}}}
	doc, err := RenderResults(proc, iovalue.NewSet(), nil, nil)
	if err != nil {
		t.Fatalf("RenderResults() error = %v", err)
	}
	if _, ok := doc["optional"]; ok {
		t.Errorf("doc[optional] present, want omitted for unproduced output")
	}
}
