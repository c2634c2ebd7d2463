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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/crim-ca/weaver/internal/jobstore"
	"github.com/crim-ca/weaver/pkg/iovalue"
)

// callbackStatusBody is sent for running/failed callback notifications:
// the full job status document.
type callbackStatusBody struct {
	JobID     string `json:"jobID"`
	ProcessID string `json:"processID"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Progress  int    `json:"progress"`
}

// callbackResultsBody is sent for success callback notifications: an
// OGC API - Processes results document, value-keyed by output id.
type callbackResultsBody struct {
	Outputs map[string]any `json:"outputs"`
}

// postCallback sends the job status (or, on success, the results
// document) to uri as a JSON POST request.
func (n *Notifier) postCallback(ctx context.Context, uri string, job *jobstore.Job, success bool) error {
	var body any
	if success {
		body = callbackResultsBody{Outputs: setToJSON(job.Outputs)}
	} else {
		body = callbackStatusBody{
			JobID:     job.ID,
			ProcessID: job.ProcessID,
			Status:    string(job.Status),
			Message:   job.Message,
			Progress:  job.Progress,
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("notify: encoding callback body: %w", err)
	}

	ctx, cancel := n.callbackTimeoutContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: building callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: sending callback request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return nil
	default:
		return fmt.Errorf("notify: callback endpoint returned status %d", resp.StatusCode)
	}
}

// setToJSON flattens an IOValue Set into a plain map suitable for JSON
// encoding in an OGC API - Processes results document.
func setToJSON(set *iovalue.Set) map[string]any {
	out := map[string]any{}
	if set == nil {
		return out
	}
	for _, id := range set.IDs() {
		values, err := set.Get(id)
		if err != nil || len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			out[id] = valueToJSON(values[0])
			continue
		}
		items := make([]any, len(values))
		for i, v := range values {
			items[i] = valueToJSON(v)
		}
		out[id] = items
	}
	return out
}

func valueToJSON(v iovalue.Value) any {
	switch v.Kind {
	case iovalue.KindLiteral:
		return v.Literal.Value
	case iovalue.KindFileRef:
		return map[string]any{"href": v.File.HRef, "type": v.File.MimeType}
	case iovalue.KindDirRef:
		return map[string]any{"href": v.Dir.HRef}
	case iovalue.KindBBox:
		return map[string]any{"bbox": v.BBox.Values, "crs": v.BBox.CRS}
	case iovalue.KindArray:
		items := make([]any, len(v.Array.Items))
		for i, item := range v.Array.Items {
			items[i] = valueToJSON(item)
		}
		return items
	default:
		return nil
	}
}
