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

// Package objectstore backs the result-staging destination a completed
// job's outputs are moved into: either the local filesystem (served back
// out under a configured public URL) or an S3-compatible bucket.
package objectstore

import "context"

// Store is the common contract the Result Stager writes finished job
// outputs through, regardless of backend.
type Store interface {
	// Put writes data under key, returning the externally reachable URL
	// the object can be retrieved from.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// PutEmpty writes a zero-byte marker object, used to represent an
	// empty directory-valued output.
	PutEmpty(ctx context.Context, key string) (string, error)

	// URL returns the externally reachable URL for key without writing
	// anything, used when an object was already staged.
	URL(key string) string
}
