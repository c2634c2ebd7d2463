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

package ogcerrors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Classified is implemented by errors that know their OGC exception type
// and HTTP status. Domain errors (ValidationError, NotFoundError, ...)
// implement this so the HTTP layer can render them without a type switch
// at every call site.
type Classified interface {
	error
	ExceptionType() string
	HTTPStatus() int
}

// Exception is the OGC API - Processes "exception" response body
// (https://docs.ogc.org/is/18-062r2/18-062r2.html#_response_13).
type Exception struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// ToException converts any error into an Exception, falling back to a
// generic NoApplicableCode/500 when err does not implement Classified.
func ToException(err error, instance string) Exception {
	var classified Classified
	if errors.As(err, &classified) {
		return Exception{
			Type:     classified.ExceptionType(),
			Title:    classified.ExceptionType(),
			Status:   classified.HTTPStatus(),
			Detail:   classified.Error(),
			Instance: instance,
		}
	}
	return Exception{
		Type:     "NoApplicableCode",
		Title:    "NoApplicableCode",
		Status:   http.StatusInternalServerError,
		Detail:   err.Error(),
		Instance: instance,
	}
}

// WriteJSON writes err as an OGC exception body with the correct
// "application/problem+json" content type and status code.
func WriteJSON(w http.ResponseWriter, err error, instance string) {
	exc := ToException(err, instance)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(exc.Status)
	_ = json.NewEncoder(w).Encode(exc)
}
