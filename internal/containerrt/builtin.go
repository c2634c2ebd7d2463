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
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// BuiltinFunc is the signature every builtin process implements: given its
// raw inputs and an existing output directory, it writes its result files
// into outputDir and returns the set of output keys it populated.
type BuiltinFunc func(ctx context.Context, inputs map[string]any, outputDir string) (map[string]any, error)

// BuiltinRegistry dispatches Builtin requirement process IDs to their
// in-process Go implementation.
type BuiltinRegistry struct {
	funcs map[string]BuiltinFunc
}

// NewBuiltinRegistry returns a registry pre-populated with the three
// ported builtin processes.
func NewBuiltinRegistry() *BuiltinRegistry {
	return &BuiltinRegistry{
		funcs: map[string]BuiltinFunc{
			"jsonarray2netcdf":     jsonArray2NetCDF,
			"file_index_selector":  fileIndexSelector,
			"collection_processor": collectionProcessor,
		},
	}
}

// Lookup returns the builtin function registered under id, if any.
func (r *BuiltinRegistry) Lookup(id string) (BuiltinFunc, bool) {
	f, ok := r.funcs[id]
	return f, ok
}

// IDs returns the registered builtin process identifiers, sorted.
func (r *BuiltinRegistry) IDs() []string {
	ids := make([]string, 0, len(r.funcs))
	for id := range r.funcs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ErrInvalidReference is returned when a builtin is given an input
// reference it cannot safely resolve.
type ErrInvalidReference struct {
	Reference string
	Reason    string
}

func (e *ErrInvalidReference) Error() string {
	return fmt.Sprintf("invalid reference [%s]: %s", e.Reference, e.Reason)
}

// validateFileReference enforces that a reference points at a remote
// http(s) location or a local filesystem path, mirroring the intent of
// rejecting anything that isn't a resolvable file location.
func validateFileReference(ref string) error {
	if ref == "" {
		return &ErrInvalidReference{Reference: ref, Reason: "empty reference"}
	}
	if strings.HasSuffix(ref, "/") {
		return &ErrInvalidReference{Reference: ref, Reason: "directory reference not supported"}
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return nil
	}
	if strings.HasPrefix(ref, "file://") || strings.HasPrefix(ref, "/") {
		return nil
	}
	return &ErrInvalidReference{Reference: ref, Reason: "scheme not supported, expected http(s) or a local path"}
}

// fetchFile retrieves ref (http(s) URL or local path) into destDir,
// preserving its base name, and returns the local path it was written to.
func fetchFile(ctx context.Context, ref, destDir string) (string, error) {
	if err := validateFileReference(ref); err != nil {
		return "", err
	}
	name := filepath.Base(strings.TrimPrefix(ref, "file://"))
	dest := filepath.Join(destDir, name)

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return "", fmt.Errorf("building request for %s: %w", ref, err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("fetching %s: %w", ref, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return "", fmt.Errorf("fetching %s: unexpected status %s", ref, resp.Status)
		}
		out, err := os.Create(dest)
		if err != nil {
			return "", fmt.Errorf("creating %s: %w", dest, err)
		}
		defer out.Close()
		if _, err := io.Copy(out, resp.Body); err != nil {
			return "", fmt.Errorf("writing %s: %w", dest, err)
		}
		return dest, nil
	}

	src := strings.TrimPrefix(ref, "file://")
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", dest, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return "", fmt.Errorf("copying %s: %w", src, err)
	}
	return dest, nil
}

// jsonArray2NetCDF reads a JSON array of file URLs from the "files" input,
// fetches each referenced file, and produces a combined manifest naming
// the fetched NetCDF outputs. It is a simplified stand-in folding together
// the "expand a list of URLs into fetched local files" behavior shared by
// the metalink-to-NetCDF and collection-processor builtins, adapted to a
// plain JSON array input instead of a Metalink XML document.
func jsonArray2NetCDF(ctx context.Context, inputs map[string]any, outputDir string) (map[string]any, error) {
	raw, ok := inputs["files"]
	if !ok {
		return nil, &ErrInvalidReference{Reference: "files", Reason: "missing required input"}
	}

	var refs []string
	switch v := raw.(type) {
	case []string:
		refs = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &ErrInvalidReference{Reference: fmt.Sprintf("%v", item), Reason: "array element is not a string"}
			}
			refs = append(refs, s)
		}
	case string:
		if err := json.Unmarshal([]byte(v), &refs); err != nil {
			return nil, fmt.Errorf("parsing files as JSON array: %w", err)
		}
	default:
		return nil, &ErrInvalidReference{Reference: "files", Reason: "unsupported input shape"}
	}

	fetched := make([]string, 0, len(refs))
	for _, ref := range refs {
		if !strings.HasSuffix(strings.ToLower(ref), ".nc") {
			return nil, &ErrInvalidReference{Reference: ref, Reason: "not a NetCDF (.nc) reference"}
		}
		path, err := fetchFile(ctx, ref, outputDir)
		if err != nil {
			return nil, err
		}
		fetched = append(fetched, path)
	}

	manifest, err := json.MarshalIndent(map[string]any{"netcdf_files": fetched}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	manifestPath := filepath.Join(outputDir, "netcdf_manifest.json")
	if err := os.WriteFile(manifestPath, manifest, 0o644); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}

	return map[string]any{"manifest": manifestPath, "files": fetched}, nil
}

// fileIndexSelector selects the file at "index" within the "files" input
// array, validates its reference, and copies it into outputDir.
func fileIndexSelector(ctx context.Context, inputs map[string]any, outputDir string) (map[string]any, error) {
	rawFiles, ok := inputs["files"]
	if !ok {
		return nil, &ErrInvalidReference{Reference: "files", Reason: "missing required input"}
	}
	rawIndex, ok := inputs["index"]
	if !ok {
		return nil, &ErrInvalidReference{Reference: "index", Reason: "missing required input"}
	}

	var files []string
	switch v := rawFiles.(type) {
	case []string:
		files = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &ErrInvalidReference{Reference: fmt.Sprintf("%v", item), Reason: "array element is not a string"}
			}
			files = append(files, s)
		}
	case string:
		files = []string{v}
	default:
		return nil, &ErrInvalidReference{Reference: "files", Reason: "unsupported input shape"}
	}

	index, err := toInt(rawIndex)
	if err != nil {
		return nil, fmt.Errorf("parsing index: %w", err)
	}
	if index < 0 || index >= len(files) {
		return nil, &ErrInvalidReference{Reference: fmt.Sprintf("%d", index), Reason: "index out of range"}
	}

	ref := files[index]
	if err := validateFileReference(ref); err != nil {
		return nil, err
	}
	path, err := fetchFile(ctx, ref, outputDir)
	if err != nil {
		return nil, err
	}
	return map[string]any{"selected": path}, nil
}

// collectionProcessor resolves a collection reference's items, filtering
// assets by extension, and fetches the matching files. Trimmed to its core
// "fetch & filter by extension" responsibility; STAC/OGC API Features
// catalog querying is delegated to the caller, which supplies the already
// resolved asset URLs via the "assets" input.
func collectionProcessor(ctx context.Context, inputs map[string]any, outputDir string) (map[string]any, error) {
	rawAssets, ok := inputs["assets"]
	if !ok {
		return nil, &ErrInvalidReference{Reference: "assets", Reason: "missing required input"}

	}
	extension, _ := inputs["extension"].(string)

	var assets []string
	switch v := rawAssets.(type) {
	case []string:
		assets = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, &ErrInvalidReference{Reference: fmt.Sprintf("%v", item), Reason: "array element is not a string"}
			}
			assets = append(assets, s)
		}
	default:
		return nil, &ErrInvalidReference{Reference: "assets", Reason: "unsupported input shape"}
	}

	fetched := make([]string, 0, len(assets))
	for _, ref := range assets {
		if extension != "" && !strings.HasSuffix(strings.ToLower(ref), strings.ToLower(extension)) {
			continue
		}
		path, err := fetchFile(ctx, ref, outputDir)
		if err != nil {
			return nil, err
		}
		fetched = append(fetched, path)
	}

	return map[string]any{"files": fetched}, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		var i int
		if _, err := fmt.Sscanf(n, "%d", &i); err != nil {
			return 0, fmt.Errorf("not an integer: %q", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unsupported index type %T", v)
	}
}
