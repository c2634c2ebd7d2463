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

package containerrt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinRegistryLookup(t *testing.T) {
	reg := NewBuiltinRegistry()

	wantIDs := []string{"collection_processor", "file_index_selector", "jsonarray2netcdf"}
	gotIDs := reg.IDs()
	if len(gotIDs) != len(wantIDs) {
		t.Fatalf("IDs() = %v, want %v", gotIDs, wantIDs)
	}
	for i, id := range wantIDs {
		if gotIDs[i] != id {
			t.Errorf("IDs()[%d] = %q, want %q", i, gotIDs[i], id)
		}
	}

	if _, ok := reg.Lookup("does-not-exist"); ok {
		t.Error("Lookup() found an unregistered id")
	}
	if _, ok := reg.Lookup("jsonarray2netcdf"); !ok {
		t.Error("Lookup() did not find jsonarray2netcdf")
	}
}

func newFileServer(t *testing.T, name, body string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/"+name, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestJSONArray2NetCDF(t *testing.T) {
	srv := newFileServer(t, "a.nc", "netcdf-bytes-a")
	outDir := t.TempDir()

	result, err := jsonArray2NetCDF(context.Background(), map[string]any{
		"files": []any{srv.URL + "/a.nc"},
	}, outDir)
	if err != nil {
		t.Fatalf("jsonArray2NetCDF() error = %v", err)
	}

	manifestPath, ok := result["manifest"].(string)
	if !ok {
		t.Fatalf("result missing manifest path: %v", result)
	}
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	var manifest struct {
		NetCDFFiles []string `json:"netcdf_files"`
	}
	if err := json.Unmarshal(raw, &manifest); err != nil {
		t.Fatalf("unmarshalling manifest: %v", err)
	}
	if len(manifest.NetCDFFiles) != 1 {
		t.Fatalf("manifest.NetCDFFiles = %v, want 1 entry", manifest.NetCDFFiles)
	}
	if _, err := os.Stat(manifest.NetCDFFiles[0]); err != nil {
		t.Errorf("fetched file not found: %v", err)
	}
}

func TestJSONArray2NetCDFRejectsNonNetCDF(t *testing.T) {
	outDir := t.TempDir()
	_, err := jsonArray2NetCDF(context.Background(), map[string]any{
		"files": []any{"http://example.test/a.txt"},
	}, outDir)
	if err == nil {
		t.Fatal("expected error for non-.nc reference")
	}
}

func TestFileIndexSelector(t *testing.T) {
	srv := newFileServer(t, "b.tif", "geotiff-bytes")
	outDir := t.TempDir()

	result, err := fileIndexSelector(context.Background(), map[string]any{
		"files": []any{srv.URL + "/missing.tif", srv.URL + "/b.tif"},
		"index": 1,
	}, outDir)
	if err != nil {
		t.Fatalf("fileIndexSelector() error = %v", err)
	}
	selected, ok := result["selected"].(string)
	if !ok || filepath.Base(selected) != "b.tif" {
		t.Errorf("result = %v, want selected ending in b.tif", result)
	}
}

func TestFileIndexSelectorOutOfRange(t *testing.T) {
	outDir := t.TempDir()
	_, err := fileIndexSelector(context.Background(), map[string]any{
		"files": []any{"http://example.test/a.tif"},
		"index": 5,
	}, outDir)
	if err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestCollectionProcessorFiltersByExtension(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/keep.tif", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("x")) })
	mux.HandleFunc("/skip.json", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("x")) })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	outDir := t.TempDir()
	result, err := collectionProcessor(context.Background(), map[string]any{
		"assets":    []any{srv.URL + "/keep.tif", srv.URL + "/skip.json"},
		"extension": ".tif",
	}, outDir)
	if err != nil {
		t.Fatalf("collectionProcessor() error = %v", err)
	}
	files, ok := result["files"].([]string)
	if !ok || len(files) != 1 {
		t.Fatalf("result = %v, want exactly one fetched file", result)
	}
	if filepath.Base(files[0]) != "keep.tif" {
		t.Errorf("fetched file = %s, want keep.tif", files[0])
	}
}

func TestValidateFileReferenceRejectsUnsupportedScheme(t *testing.T) {
	err := validateFileReference("ftp://example.test/a.nc")
	if err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
