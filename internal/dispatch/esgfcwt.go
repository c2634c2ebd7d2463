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
	"strings"
)

// ESGFCWTDispatcher dispatches a job to an Earth System Grid Federation
// Compute Working Team endpoint. The wire protocol has no Go client in
// the wild, so the request/response shapes below are modeled directly
// off the CWT client library's JSON encoding: a process identifier, a
// list of Variable(url, varname) inputs, and a "domain" describing the
// spatial/temporal subset via named dimensions.
type ESGFCWTDispatcher struct {
	Base

	EndpointURL string
	ProcessID   string

	lastOutputs map[string]cwtOutputPayload
}

// NewESGFCWTDispatcher constructs a dispatcher for a single CWT execute call.
func NewESGFCWTDispatcher(base Base, endpointURL, processID string) *ESGFCWTDispatcher {
	return &ESGFCWTDispatcher{Base: base, EndpointURL: endpointURL, ProcessID: processID}
}

// cwtVariable is the CWT client's Variable(url, var) wire representation:
// a remote dataset location paired with the variable name to read from it.
type cwtVariable struct {
	URI string `json:"uri"`
	ID  string `json:"id"`
}

// cwtDimension describes one named axis of a CWT domain: a start/end
// bound expressed in the coordinate reference named by CRS.
type cwtDimension struct {
	Name  string  `json:"name"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	CRS   string  `json:"crs"`
}

var cwtValidCRS = map[string]bool{"values": true, "indices": true, "timestamps": true}

// extractDimensions reads {dim}_start/{dim}_end/{dim}_crs literal inputs
// for each of lat/lon/time and assembles the CWT domain, reversing
// latitude (the CWT protocol expects start=max, end=min) and rejecting
// any CRS outside the values/indices/timestamps vocabulary.
func extractDimensions(inputs map[string]any) ([]cwtDimension, error) {
	var dims []cwtDimension
	for _, name := range []string{"lat", "lon", "time"} {
		startKey, endKey, crsKey := name+"_start", name+"_end", name+"_crs"
		startVal, hasStart := inputs[startKey]
		endVal, hasEnd := inputs[endKey]
		if !hasStart && !hasEnd {
			continue
		}
		if !hasStart || !hasEnd {
			return nil, fmt.Errorf("dispatch(esgf-cwt): dimension %q requires both %q and %q", name, startKey, endKey)
		}

		crs := "values"
		if crsRaw, ok := inputs[crsKey]; ok {
			crs = fmt.Sprintf("%v", crsRaw)
		}
		if !cwtValidCRS[crs] {
			return nil, fmt.Errorf("dispatch(esgf-cwt): dimension %q has invalid crs %q", name, crs)
		}

		start, err := toFloat(startVal)
		if err != nil {
			return nil, fmt.Errorf("dispatch(esgf-cwt): dimension %q start: %w", name, err)
		}
		end, err := toFloat(endVal)
		if err != nil {
			return nil, fmt.Errorf("dispatch(esgf-cwt): dimension %q end: %w", name, err)
		}

		if name == "lat" {
			if start < end {
				start, end = end, start
			}
		}

		dims = append(dims, cwtDimension{Name: name, Start: start, End: end, CRS: crs})
	}
	return dims, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err != nil {
			return 0, err
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported dimension bound type %T", v)
	}
}

// cwtStagedInputs is the shape FormatInputs produces and Dispatch
// consumes: the variable list plus whatever dimension bounds were present,
// separated from the remaining literal inputs which are forwarded as
// process parameters verbatim.
type cwtStagedInputs struct {
	Variables  []cwtVariable
	Dimensions []cwtDimension
	Parameters map[string]any
}

func (d *ESGFCWTDispatcher) FormatInputs(staged any) (any, error) {
	inputs, ok := staged.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("dispatch(esgf-cwt): staged inputs have unexpected shape %T", staged)
	}

	dims, err := extractDimensions(inputs)
	if err != nil {
		return nil, err
	}

	var vars []cwtVariable
	params := make(map[string]any)
	for id, value := range inputs {
		if isDimensionKey(id) {
			continue
		}
		href, ok := value.(string)
		if ok && looksLikeURL(href) {
			vars = append(vars, cwtVariable{URI: href, ID: id})
			continue
		}
		params[id] = value
	}

	return cwtStagedInputs{Variables: vars, Dimensions: dims, Parameters: params}, nil
}

func isDimensionKey(id string) bool {
	for _, suffix := range []string{"_start", "_end", "_crs"} {
		if strings.HasSuffix(id, suffix) {
			for _, dim := range []string{"lat", "lon", "time"} {
				if id == dim+suffix {
					return true
				}
			}
		}
	}
	return false
}

func (d *ESGFCWTDispatcher) FormatOutputs(expectedOutputs []string) (any, error) {
	return expectedOutputs, nil
}

type cwtExecuteRequest struct {
	Identifier string         `json:"identifier"`
	Variables  []cwtVariable  `json:"variable"`
	Domain     []cwtDimension `json:"domain,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type cwtExecuteResponse struct {
	JobID  string `json:"jobID"`
	Status string `json:"status"`
}

func (d *ESGFCWTDispatcher) Dispatch(ctx context.Context, inputs, outputs any) (MonitorRef, error) {
	staged := inputs.(cwtStagedInputs)
	req := cwtExecuteRequest{
		Identifier: d.ProcessID,
		Variables:  staged.Variables,
		Domain:     staged.Dimensions,
		Parameters: staged.Parameters,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.EndpointURL+"/execute", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatch(esgf-cwt): execute request: %w", err)
	}
	defer resp.Body.Close()

	var body cwtExecuteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("dispatch(esgf-cwt): decode execute response: %w", err)
	}
	return body.JobID, nil
}

type cwtStatusResponse struct {
	Status  string                      `json:"status"`
	Outputs map[string]cwtOutputPayload `json:"outputs,omitempty"`
}

type cwtOutputPayload struct {
	URI string `json:"uri"`
}

func (d *ESGFCWTDispatcher) Monitor(ctx context.Context, ref MonitorRef) (bool, error) {
	jobID := ref.(string)
	statusURL := fmt.Sprintf("%s/jobs/%s", d.EndpointURL, jobID)

	return Poll(ctx, DefaultPollBackoff(), func(ctx context.Context) (PollResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return PollResult{}, err
		}
		resp, err := d.HTTPClient.Do(req)
		if err != nil {
			return PollResult{}, err
		}
		defer resp.Body.Close()

		var body cwtStatusResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return PollResult{}, err
		}

		switch strings.ToLower(body.Status) {
		case "succeeded", "processsucceeded":
			d.lastOutputs = body.Outputs
			return PollResult{Done: true, Succeeded: true}, nil
		case "failed", "processfailed", "error":
			return PollResult{Done: true, Succeeded: false}, nil
		default:
			return PollResult{Done: false}, nil
		}
	})
}

func (d *ESGFCWTDispatcher) GetResults(ctx context.Context, ref MonitorRef) ([]Result, error) {
	results := make([]Result, 0, len(d.lastOutputs))
	for id, out := range d.lastOutputs {
		results = append(results, Result{ID: id, Values: []ResultValue{{Href: out.URI}}})
	}
	return results, nil
}

func (d *ESGFCWTDispatcher) StageResults(ctx context.Context, results []Result, expectedOutputs map[string]string, outDir string) error {
	return stageResultsByHTTPOrLiteral(ctx, d.HTTPClient, results, expectedOutputs, outDir)
}
