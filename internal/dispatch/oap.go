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

package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// OAPDispatcher dispatches a job to a remote OGC API - Processes provider:
// POST the Execute body to {providerBase}/processes/{processID}/execution,
// then poll the returned status link.
type OAPDispatcher struct {
	Base

	ProviderBase string
	ProcessID    string
	AuthHeader   string // forwarded verbatim, e.g. "Bearer <token>"

	statusURL string
}

// NewOAPDispatcher constructs a dispatcher for a single OGC API execution.
func NewOAPDispatcher(base Base, providerBase, processID, authHeader string) *OAPDispatcher {
	return &OAPDispatcher{Base: base, ProviderBase: providerBase, ProcessID: processID, AuthHeader: authHeader}
}

type oapExecuteBody struct {
	Mode    string         `json:"mode"`
	Inputs  map[string]any `json:"inputs"`
	Outputs map[string]any `json:"outputs,omitempty"`
}

func (d *OAPDispatcher) FormatInputs(staged any) (any, error) {
	inputs, ok := staged.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("dispatch(oap): staged inputs have unexpected shape %T", staged)
	}
	return inputs, nil
}

func (d *OAPDispatcher) FormatOutputs(expectedOutputs []string) (any, error) {
	outputs := make(map[string]any, len(expectedOutputs))
	for _, id := range expectedOutputs {
		outputs[id] = map[string]any{"transmissionMode": "reference"}
	}
	return outputs, nil
}

func (d *OAPDispatcher) Dispatch(ctx context.Context, inputs, outputs any) (MonitorRef, error) {
	body := oapExecuteBody{
		Mode:    "async",
		Inputs:  inputs.(map[string]any),
		Outputs: outputs.(map[string]any),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/processes/%s/execution", d.ProviderBase, d.ProcessID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "respond-async")
	if d.AuthHeader != "" {
		req.Header.Set("Authorization", d.AuthHeader)
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dispatch(oap): execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("dispatch(oap): execute returned HTTP %d", resp.StatusCode)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("dispatch(oap): execute response missing Location header")
	}
	if u, err := resp.Request.URL.Parse(location); err == nil {
		location = u.String()
	}
	d.statusURL = location
	return location, nil
}

type oapStatusBody struct {
	Status string `json:"status"`
}

func (d *OAPDispatcher) Monitor(ctx context.Context, ref MonitorRef) (bool, error) {
	statusURL := ref.(string)
	return Poll(ctx, DefaultPollBackoff(), func(ctx context.Context) (PollResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return PollResult{}, err
		}
		if d.AuthHeader != "" {
			req.Header.Set("Authorization", d.AuthHeader)
		}
		resp, err := d.HTTPClient.Do(req)
		if err != nil {
			return PollResult{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return PollResult{}, fmt.Errorf("dispatch(oap): status request returned HTTP %d", resp.StatusCode)
		}

		var body oapStatusBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return PollResult{}, err
		}
		switch body.Status {
		case "successful", "succeeded":
			return PollResult{Done: true, Succeeded: true}, nil
		case "failed", "dismissed":
			return PollResult{Done: true, Succeeded: false}, nil
		default:
			return PollResult{Done: false}, nil
		}
	})
}

type oapResultsBody map[string]struct {
	Href  string `json:"href"`
	Value any    `json:"value"`
}

func (d *OAPDispatcher) GetResults(ctx context.Context, ref MonitorRef) ([]Result, error) {
	statusURL := ref.(string)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL+"/results", nil)
	if err != nil {
		return nil, err
	}
	if d.AuthHeader != "" {
		req.Header.Set("Authorization", d.AuthHeader)
	}
	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dispatch(oap): results request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dispatch(oap): results returned HTTP %d", resp.StatusCode)
	}

	var body oapResultsBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(body))
	for id, entry := range body {
		value := ResultValue{Href: entry.Href, Value: entry.Value}
		results = append(results, Result{ID: id, Values: []ResultValue{value}})
	}
	return results, nil
}

func (d *OAPDispatcher) StageResults(ctx context.Context, results []Result, expectedOutputs map[string]string, outDir string) error {
	return stageResultsByHTTPOrLiteral(ctx, d.HTTPClient, results, expectedOutputs, outDir)
}
