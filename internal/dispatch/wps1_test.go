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
	"context"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWPS1DispatcherParsesSucceededResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<ExecuteResponse>
			<Status><ProcessSucceeded>done</ProcessSucceeded></Status>
			<ProcessOutputs>
				<Output><Identifier>result</Identifier><Reference href="https://provider.example.org/out.nc"/></Output>
			</ProcessOutputs>
		</ExecuteResponse>`))
	}))
	defer server.Close()

	base := NewBase(server.Client(), t.TempDir(), "https://weaver.example.org/wpsoutputs")
	d := NewWPS1Dispatcher(base, server.URL, "hello-world")

	inputs, err := d.FormatInputs(map[string]any{"name": "world"})
	if err != nil {
		t.Fatalf("FormatInputs: %v", err)
	}
	outputs, err := d.FormatOutputs([]string{"result"})
	if err != nil {
		t.Fatalf("FormatOutputs: %v", err)
	}

	ref, err := d.Dispatch(context.Background(), inputs, outputs)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	succeeded, err := d.Monitor(context.Background(), ref)
	if err != nil {
		t.Fatalf("Monitor: %v", err)
	}
	if !succeeded {
		t.Fatalf("expected success")
	}

	results, err := d.GetResults(context.Background(), ref)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if len(results) != 1 || results[0].ID != "result" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].Values[0].Href != "https://provider.example.org/out.nc" {
		t.Fatalf("unexpected href: %+v", results[0].Values[0])
	}
}

func TestWPS1DispatcherMapsFailedStatus(t *testing.T) {
	doc := wps1ExecuteResponse{Status: wps1StatusReport{ProcessFailed: "boom"}}
	if !isWPS1Terminal(doc.Status) {
		t.Fatalf("expected ProcessFailed to be terminal")
	}
	if wps1StatusString(doc.Status) != "ProcessFailed" {
		t.Fatalf("expected ProcessFailed, got %q", wps1StatusString(doc.Status))
	}
}

func TestWPS1ExecuteRequestMarshalsProcessIdentifier(t *testing.T) {
	base := NewBase(nil, t.TempDir(), "https://weaver.example.org/wpsoutputs")
	d := NewWPS1Dispatcher(base, "https://provider.example.org/wps", "hello-world")

	inputs, err := d.FormatInputs(map[string]any{"name": "world"})
	if err != nil {
		t.Fatalf("FormatInputs: %v", err)
	}
	outputs, err := d.FormatOutputs([]string{"result"})
	if err != nil {
		t.Fatalf("FormatOutputs: %v", err)
	}

	req := wps1ExecuteRequest{
		Version: "1.0.0",
		Service: "WPS",
		Process: wps1ProcessRef{Value: d.ProcessID},
		Inputs:  inputs.([]wps1ExecuteInput),
		Outputs: outputs.([]wps1OutputRef),
	}
	body, err := xml.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(body), "hello-world") {
		t.Fatalf("expected marshaled request to contain process identifier, got %s", body)
	}
}
