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

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crim-ca/weaver/internal/jobstore"
	"github.com/crim-ca/weaver/pkg/iovalue"
	"github.com/crim-ca/weaver/pkg/status"
)

func TestPostCallbackFailureSendsStatusDocument(t *testing.T) {
	var received callbackStatusBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(testNotifyConfig(t), nil)
	job := &jobstore.Job{ID: "job-1", ProcessID: "echo", Status: status.Failed, Message: "boom"}

	if err := n.postCallback(context.Background(), srv.URL, job, false); err != nil {
		t.Fatalf("postCallback() error = %v", err)
	}
	if received.JobID != "job-1" || received.Status != string(status.Failed) {
		t.Errorf("unexpected callback body: %+v", received)
	}
}

func TestPostCallbackSuccessSendsResultsDocument(t *testing.T) {
	var received callbackResultsBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	outputs := iovalue.NewSet()
	outputs.Put("result", iovalue.NewFileRef("https://example.org/result.tif", "image/tiff"))

	n := New(testNotifyConfig(t), nil)
	job := &jobstore.Job{ID: "job-2", ProcessID: "echo", Status: status.Succeeded, Outputs: outputs}

	if err := n.postCallback(context.Background(), srv.URL, job, true); err != nil {
		t.Fatalf("postCallback() error = %v", err)
	}
	if len(received.Outputs) != 1 {
		t.Fatalf("expected one output in callback body, got %d", len(received.Outputs))
	}
}

func TestPostCallbackRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New(testNotifyConfig(t), nil)
	job := &jobstore.Job{ID: "job-3", Status: status.Failed}

	if err := n.postCallback(context.Background(), srv.URL, job, false); err == nil {
		t.Fatal("expected an error for a non-2xx callback response")
	}
}

