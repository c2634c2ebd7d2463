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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOAPDispatcherFullCycle(t *testing.T) {
	var pollCount int
	mux := http.NewServeMux()
	mux.HandleFunc("/processes/echo/execution", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Prefer") != "respond-async" {
			t.Errorf("expected Prefer: respond-async header")
		}
		w.Header().Set("Location", "/jobs/abc123")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/jobs/abc123", func(w http.ResponseWriter, r *http.Request) {
		pollCount++
		body := oapStatusBody{Status: "running"}
		if pollCount >= 2 {
			body.Status = "successful"
		}
		json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/jobs/abc123/results", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"href": "https://storage.example.org/result.tif"},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	base := NewBase(server.Client(), t.TempDir(), "https://weaver.example.org/wpsoutputs")
	d := NewOAPDispatcher(base, server.URL, "echo", "")

	inputs, err := d.FormatInputs(map[string]any{"x": 1})
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
	if results[0].Values[0].Href != "https://storage.example.org/result.tif" {
		t.Fatalf("unexpected href: %+v", results[0])
	}
}

func TestOAPDispatcherExecuteFailureSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	base := NewBase(server.Client(), t.TempDir(), "https://weaver.example.org/wpsoutputs")
	d := NewOAPDispatcher(base, server.URL, "echo", "")

	_, err := d.Dispatch(context.Background(), map[string]any{}, map[string]any{})
	if err == nil {
		t.Fatalf("expected error on non-2xx execute response")
	}
}
