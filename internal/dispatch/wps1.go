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
	"encoding/xml"
	"fmt"
	"net/http"

	"github.com/crim-ca/weaver/pkg/status"
)

// WPS1Dispatcher dispatches a job to a legacy WPS 1.0.0/2.0 provider using
// the XML Execute operation, and watches the XML status document it
// returns. The final ProcessSucceeded/ProcessFailed status is mapped
// through pkg/status using the WPS-compliant (pywps) profile.
type WPS1Dispatcher struct {
	Base

	ProviderURL string
	ProcessID   string
}

// NewWPS1Dispatcher constructs a dispatcher for a single WPS Execute call.
func NewWPS1Dispatcher(base Base, providerURL, processID string) *WPS1Dispatcher {
	return &WPS1Dispatcher{Base: base, ProviderURL: providerURL, ProcessID: processID}
}

type wps1ExecuteRequest struct {
	XMLName xml.Name           `xml:"wps:Execute"`
	Version string             `xml:"version,attr"`
	Service string             `xml:"service,attr"`
	Process wps1ProcessRef     `xml:"ows:Identifier"`
	Inputs  []wps1ExecuteInput `xml:"wps:DataInputs>wps:Input"`
	Outputs []wps1OutputRef    `xml:"wps:ResponseForm>wps:ResponseDocument>wps:Output"`
}

type wps1ProcessRef struct {
	Value string `xml:",chardata"`
}

type wps1ExecuteInput struct {
	Identifier string `xml:"ows:Identifier"`
	Data       string `xml:"wps:Data>wps:LiteralData,omitempty"`
	Reference  string `xml:"wps:Reference,attr,omitempty"`
}

type wps1OutputRef struct {
	Identifier string `xml:"ows:Identifier"`
	AsRef      bool   `xml:"asReference,attr"`
}

func (d *WPS1Dispatcher) FormatInputs(staged any) (any, error) {
	inputs, ok := staged.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("dispatch(wps1): staged inputs have unexpected shape %T", staged)
	}
	out := make([]wps1ExecuteInput, 0, len(inputs))
	for id, value := range inputs {
		in := wps1ExecuteInput{Identifier: id}
		if href, ok := value.(string); ok && looksLikeURL(href) {
			in.Reference = href
		} else {
			in.Data = fmt.Sprintf("%v", value)
		}
		out = append(out, in)
	}
	return out, nil
}

func (d *WPS1Dispatcher) FormatOutputs(expectedOutputs []string) (any, error) {
	out := make([]wps1OutputRef, len(expectedOutputs))
	for i, id := range expectedOutputs {
		out[i] = wps1OutputRef{Identifier: id, AsRef: true}
	}
	return out, nil
}

func (d *WPS1Dispatcher) Dispatch(ctx context.Context, inputs, outputs any) (MonitorRef, error) {
	req := wps1ExecuteRequest{
		Version: "1.0.0",
		Service: "WPS",
		Process: wps1ProcessRef{Value: d.ProcessID},
		Inputs:  inputs.([]wps1ExecuteInput),
		Outputs: outputs.([]wps1OutputRef),
	}
	body, err := xml.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.ProviderURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/xml")

	resp, err := d.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatch(wps1): execute request: %w", err)
	}
	defer resp.Body.Close()

	var statusDoc wps1ExecuteResponse
	if err := xml.NewDecoder(resp.Body).Decode(&statusDoc); err != nil {
		return nil, fmt.Errorf("dispatch(wps1): decode execute response: %w", err)
	}
	return &statusDoc, nil
}

// wps1ExecuteResponse is the minimal ExecuteResponse shape needed to learn
// the job's status and, once finished, its output references. The same
// document is both the synchronous execute response and what a
// status-location GET later returns.
type wps1ExecuteResponse struct {
	XMLName        xml.Name         `xml:"ExecuteResponse"`
	StatusLocation string           `xml:"statusLocation,attr"`
	Status         wps1StatusReport `xml:"Status"`
	Outputs        []wps1OutputData `xml:"ProcessOutputs>Output"`
}

type wps1StatusReport struct {
	ProcessSucceeded string `xml:"ProcessSucceeded"`
	ProcessFailed    string `xml:"ProcessFailed"`
	ProcessStarted   string `xml:"ProcessStarted"`
	ProcessAccepted  string `xml:"ProcessAccepted"`
	ProcessPaused    string `xml:"ProcessPaused"`
}

type wps1OutputData struct {
	Identifier string `xml:"Identifier"`
	Reference  struct {
		Href string `xml:"href,attr"`
	} `xml:"Reference"`
	LiteralData string `xml:"Data>LiteralData"`
}

func (d *WPS1Dispatcher) Monitor(ctx context.Context, ref MonitorRef) (bool, error) {
	doc := ref.(*wps1ExecuteResponse)
	if isWPS1Terminal(doc.Status) {
		return status.Map(wps1StatusString(doc.Status), status.CompliantPyWPS, false) == status.Succeeded, nil
	}

	statusLocation := doc.StatusLocation
	if statusLocation == "" {
		statusLocation = d.ProviderURL
	}
	return Poll(ctx, DefaultPollBackoff(), func(ctx context.Context) (PollResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusLocation, nil)
		if err != nil {
			return PollResult{}, err
		}
		resp, err := d.HTTPClient.Do(req)
		if err != nil {
			return PollResult{}, err
		}
		defer resp.Body.Close()

		var fresh wps1ExecuteResponse
		if err := xml.NewDecoder(resp.Body).Decode(&fresh); err != nil {
			return PollResult{}, err
		}
		*doc = fresh

		if !isWPS1Terminal(fresh.Status) {
			return PollResult{Done: false}, nil
		}
		succeeded := status.Map(wps1StatusString(fresh.Status), status.CompliantPyWPS, false) == status.Succeeded
		return PollResult{Done: true, Succeeded: succeeded}, nil
	})
}

func isWPS1Terminal(s wps1StatusReport) bool {
	return s.ProcessSucceeded != "" || s.ProcessFailed != ""
}

func wps1StatusString(s wps1StatusReport) string {
	switch {
	case s.ProcessSucceeded != "":
		return "ProcessSucceeded"
	case s.ProcessFailed != "":
		return "ProcessFailed"
	case s.ProcessStarted != "":
		return "ProcessStarted"
	case s.ProcessPaused != "":
		return "ProcessPaused"
	case s.ProcessAccepted != "":
		return "ProcessAccepted"
	default:
		return "ProcessStarted"
	}
}

func (d *WPS1Dispatcher) GetResults(ctx context.Context, ref MonitorRef) ([]Result, error) {
	doc := ref.(*wps1ExecuteResponse)
	results := make([]Result, 0, len(doc.Outputs))
	for _, out := range doc.Outputs {
		value := ResultValue{Href: out.Reference.Href, Value: out.LiteralData}
		results = append(results, Result{ID: out.Identifier, Values: []ResultValue{value}})
	}
	return results, nil
}

func (d *WPS1Dispatcher) StageResults(ctx context.Context, results []Result, expectedOutputs map[string]string, outDir string) error {
	return stageResultsByHTTPOrLiteral(ctx, d.HTTPClient, results, expectedOutputs, outDir)
}

func looksLikeURL(s string) bool {
	for _, scheme := range []string{"http://", "https://", "s3://", "file://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return true
		}
	}
	return false
}
