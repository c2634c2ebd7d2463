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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/crim-ca/weaver/internal/containerrt"
	"github.com/crim-ca/weaver/internal/stage"
	"github.com/crim-ca/weaver/pkg/process"
)

// stageLocalInputs resolves every file/directory-typed input of raw to a
// local path under inputsDir, fetching remote hrefs and decrypting vault
// references as needed. Literal and bbox values pass through unchanged;
// array values are staged element by element.
func (e *Engine) stageLocalInputs(ctx context.Context, proc *process.Process, raw map[string]any, inputsDir string) (map[string]any, error) {
	staged := make(map[string]any, len(raw))
	for _, def := range proc.Inputs {
		value, ok := raw[def.ID]
		if !ok {
			continue
		}
		resolved, err := e.stageInputValue(ctx, def, value, inputsDir)
		if err != nil {
			return nil, fmt.Errorf("engine: stage input %q: %w", def.ID, err)
		}
		staged[def.ID] = resolved
	}
	return staged, nil
}

func (e *Engine) stageInputValue(ctx context.Context, def process.InputDef, value any, inputsDir string) (any, error) {
	if items, ok := value.([]any); ok {
		out := make([]any, len(items))
		for i, item := range items {
			resolved, err := e.stageInputValue(ctx, def, item, inputsDir)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	}

	if def.Type != "file" && def.Type != "directory" {
		return value, nil
	}
	href, ok := value.(string)
	if !ok {
		return value, nil
	}
	return e.fetchLocal(ctx, href, inputsDir)
}

// fetchLocal resolves href into a local filesystem path reachable from a
// Docker bind mount: a bare path or "file://" URL is used directly, an
// http(s) URL is downloaded, and a "vault://{id}" reference is decrypted
// through the configured VaultStore.
func (e *Engine) fetchLocal(ctx context.Context, href, destDir string) (string, error) {
	switch {
	case strings.HasPrefix(href, "vault://"):
		return e.fetchVault(ctx, strings.TrimPrefix(href, "vault://"), destDir)
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return fetchHTTP(ctx, href, destDir)
	case strings.HasPrefix(href, "file://"):
		return strings.TrimPrefix(href, "file://"), nil
	default:
		return href, nil
	}
}

func (e *Engine) fetchVault(ctx context.Context, id, destDir string) (string, error) {
	if e.vault == nil {
		return "", fmt.Errorf("engine: vault reference %q given but no vault store is configured", id)
	}
	data, filename, err := e.vault.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if filename == "" {
		filename = id
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, filename)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("engine: writing vault payload %q: %w", id, err)
	}
	return dest, nil
}

func fetchHTTP(ctx context.Context, href, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %q: %w", href, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %q: HTTP %d", href, resp.StatusCode)
	}
	dest := filepath.Join(destDir, filepath.Base(href))
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("writing %q: %w", dest, err)
	}
	return dest, nil
}

// runDocker executes a Docker-requirement process. Since the normalized
// Process model carries no CWL command template, the container's own
// entrypoint is relied upon against a fixed convention: inputs (already
// resolved to local paths by stageLocalInputs) are written as a JSON
// manifest at /inputs/inputs.json, read-only input files are bind-mounted
// under /inputs alongside it, a writable /outputs directory is bind
// -mounted for results, and the image is expected to write each declared
// output as a file named "<outputID>*" directly under /outputs, matching
// the flat glob convention stage.ExpectedOutputs already establishes for
// workflow step outputs.
func (e *Engine) runDocker(ctx context.Context, proc *process.Process, localRaw map[string]any, workDir string) (map[string]any, error) {
	inputsDir := filepath.Join(workDir, "inputs")
	outputsDir := filepath.Join(workDir, "outputs")
	if err := os.MkdirAll(inputsDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputsDir, 0o755); err != nil {
		return nil, err
	}

	manifest, err := json.MarshalIndent(localRaw, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("engine: encoding input manifest: %w", err)
	}
	manifestPath := filepath.Join(inputsDir, "inputs.json")
	if err := os.WriteFile(manifestPath, manifest, 0o644); err != nil {
		return nil, fmt.Errorf("engine: writing input manifest: %w", err)
	}

	spec := containerrt.RunSpec{
		Image: proc.Requirement.DockerImage,
		Mounts: []containerrt.Mount{
			{HostPath: inputsDir, ContainerPath: "/inputs", ReadOnly: true},
			{HostPath: outputsDir, ContainerPath: "/outputs"},
		},
		Env: map[string]string{
			"WEAVER_INPUTS":  "/inputs/inputs.json",
			"WEAVER_OUTPUTS": "/outputs",
		},
		WorkingDir: "/outputs",
		Timeout:    e.jobTimeout,
	}
	if auth := proc.Requirement.DockerAuth; auth != nil {
		spec.RegistryUsername = auth.Username
		spec.RegistryPassword = auth.Password
	}

	if _, err := e.runtime.Run(ctx, spec); err != nil {
		return nil, fmt.Errorf("engine: container run failed: %w", err)
	}

	return collectLocalOutputs(proc, outputsDir)
}

// runBuiltin executes a Builtin-requirement process, looked up in the
// registry under the process's own id.
func (e *Engine) runBuiltin(ctx context.Context, proc *process.Process, localRaw map[string]any, workDir string) (map[string]any, error) {
	fn, ok := e.builtins.Lookup(proc.ID)
	if !ok {
		return nil, fmt.Errorf("engine: no builtin registered for process %q", proc.ID)
	}
	outputsDir := filepath.Join(workDir, "outputs")
	if err := os.MkdirAll(outputsDir, 0o755); err != nil {
		return nil, err
	}
	return fn(ctx, localRaw, outputsDir)
}

// collectLocalOutputs resolves each of proc's declared outputs against
// outputsDir using the id-prefixed glob convention, returning the local
// path for each output that produced a file.
func collectLocalOutputs(proc *process.Process, outputsDir string) (map[string]any, error) {
	expected := stage.ExpectedOutputs(proc)
	outputs := make(map[string]any, len(expected))
	for id := range expected {
		path, err := stage.ResolveOutputPath(outputsDir, id)
		if err != nil {
			return nil, err
		}
		if path == "" {
			continue
		}
		outputs[id] = path
	}
	return outputs, nil
}
