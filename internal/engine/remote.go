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
	"os"
	"path/filepath"

	"github.com/crim-ca/weaver/internal/config"
	"github.com/crim-ca/weaver/internal/dispatch"
	"github.com/crim-ca/weaver/internal/stage"
	"github.com/crim-ca/weaver/pkg/process"
)

// buildDispatcher constructs the Dispatcher matching proc's remote
// requirement kind. A provider registered with type "wps3-ades" is
// dispatched through the deploy-if-absent ADES adapter regardless of the
// process's own RequirementKind, since an ADES-hosted process is always
// reached over the OGC API wire format.
func (e *Engine) buildDispatcher(proc *process.Process) (dispatch.Dispatcher, error) {
	base := dispatch.NewBase(nil, e.wpsOutputDir, e.wpsOutputURL)
	base.WPSOutputDir = e.wpsOutputDir
	base.WPSOutputURL = e.wpsOutputURL

	if providerCfg, ok := e.providers[proc.Requirement.ProviderID]; ok && providerCfg.Type == "wps3-ades" {
		deployBody, err := json.Marshal(minimalDeployDocument(proc))
		if err != nil {
			return nil, fmt.Errorf("engine: encoding ADES deploy body: %w", err)
		}
		creds := dispatch.ADESCredentials{
			WSO2Hostname:        providerCfg.OAuthTokenURL,
			ClientID:            os.Getenv(providerCfg.OAuthClientIDEnv),
			ClientSecret:        os.Getenv(providerCfg.OAuthClientSecretEnv),
			ForwardedAuthHeader: "",
		}
		return dispatch.NewADESDispatcher(base, proc.Requirement.ProviderURL, proc.Requirement.RemoteProcessID, deployBody, creds), nil
	}

	switch proc.Requirement.Kind {
	case process.RequirementOGCAPI:
		return dispatch.NewOAPDispatcher(base, proc.Requirement.ProviderURL, proc.Requirement.RemoteProcessID, ""), nil
	case process.RequirementWPS1:
		return dispatch.NewWPS1Dispatcher(base, proc.Requirement.ProviderURL, proc.Requirement.RemoteProcessID), nil
	case process.RequirementESGFCWT:
		return dispatch.NewESGFCWTDispatcher(base, proc.Requirement.ProviderURL, proc.Requirement.RemoteProcessID), nil
	default:
		return nil, fmt.Errorf("engine: process %q has no remote dispatch requirement", proc.ID)
	}
}

// minimalDeployDocument builds the smallest Application Package document
// an ADES deploy-if-absent call needs to register proc. It carries only
// the I/O contract the ADES needs to accept an execution request; the
// ADES is assumed to already know how to build and run proc.ID's own
// container image, since the normalized Process model this orchestrator
// holds does not itself retain the original package's build instructions.
func minimalDeployDocument(proc *process.Process) map[string]any {
	inputs := make(map[string]any, len(proc.Inputs))
	for _, in := range proc.Inputs {
		inputs[in.ID] = map[string]any{"title": in.Title, "schema": map[string]any{"type": in.Type}}
	}
	outputs := make(map[string]any, len(proc.Outputs))
	for _, out := range proc.Outputs {
		outputs[out.ID] = map[string]any{"title": out.Title, "schema": map[string]any{"type": out.Type}}
	}
	return map[string]any{
		"processDescription": map[string]any{
			"id":      proc.ID,
			"version": proc.Version,
			"inputs":  inputs,
			"outputs": outputs,
		},
	}
}

// runRemote drives a remote-requirement process through the dispatch
// package's phased template and resolves the staged result files back
// into a raw output map, namespaced by output id the way dispatch/stage.go
// writes them.
func (e *Engine) runRemote(ctx context.Context, proc *process.Process, localRaw map[string]any, workDir string, report dispatch.StatusFunc) (map[string]any, error) {
	d, err := e.buildDispatcher(proc)
	if err != nil {
		return nil, err
	}

	expected := stage.ExpectedOutputs(proc)
	ids := make([]string, 0, len(expected))
	for id := range expected {
		ids = append(ids, id)
	}

	outDir := filepath.Join(workDir, "outputs")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	if err := dispatch.Run(ctx, d, report, localRaw, outDir, ids); err != nil {
		return nil, err
	}

	outputs := make(map[string]any, len(ids))
	for _, id := range ids {
		path, err := resolveNamespacedOutput(outDir, id)
		if err != nil {
			return nil, err
		}
		if path != "" {
			outputs[id] = path
		}
	}
	return outputs, nil
}

// resolveNamespacedOutput finds the file dispatch staged for id under
// outDir/<id>/ (a fetched reference) or outDir/<id>.txt (an inlined
// literal), matching the per-output-id layout
// stageResultsByHTTPOrLiteral writes.
func resolveNamespacedOutput(outDir, id string) (string, error) {
	literalPath := filepath.Join(outDir, id+".txt")
	if _, err := os.Stat(literalPath); err == nil {
		return literalPath, nil
	}

	subDir := filepath.Join(outDir, id)
	entries, err := os.ReadDir(subDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			return filepath.Join(subDir, entry.Name()), nil
		}
	}
	return "", nil
}
